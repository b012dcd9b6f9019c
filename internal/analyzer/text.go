package analyzer

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// minTopicLen drops short function words that slip past the stopword list.
const minTopicLen = 4

var stopwords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`
		a about above after again against all also am an and any are aren't as at be because been before being
		below between both but by can can't cannot could couldn't did didn't do does doesn't doing don't down
		during each few for from further had hadn't has hasn't have haven't having he her here hers herself him
		himself his how however i i'm if in into is isn't it it's its itself just let's like make me more most
		much must my myself need no nor not now of off on once only or other ought our ours ourselves out over
		own really same say said shall she should shouldn't so some such than that that's the their theirs them
		themselves then there there's these they they're this those through to too under until up upon very
		want was wasn't we we're were weren't what what's when where which while who whom why will with won't
		would wouldn't yes yet you you're your yours yourself yourselves thing things something anything
		please thanks thank sure okay well going know think tell give take get got just
	`) {
		stopwords[w] = struct{}{}
	}
}

// estimateTokens approximates a token count as one token per four runes,
// rounded up. Whitespace-only text costs nothing.
func estimateTokens(text string) int {
	if strings.TrimSpace(text) == "" {
		return 0
	}
	n := utf8.RuneCountInString(text)
	return (n + 3) / 4
}

// keywords returns the distinct, sorted content words of text: lowercased,
// stopword-filtered and at least minTopicLen runes long.
func keywords(text string) []string {
	set := keywordSet(text)
	out := make([]string, 0, len(set))
	for w := range set {
		out = append(out, w)
	}
	sort.Strings(out)
	return out
}

func keywordSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
	for _, w := range words {
		w = strings.Trim(w, "'")
		if utf8.RuneCountInString(w) < minTopicLen {
			continue
		}
		if _, stop := stopwords[w]; stop {
			continue
		}
		set[w] = struct{}{}
	}
	return set
}

func intersect(a, b map[string]struct{}) []string {
	out := []string{}
	for w := range a {
		if _, ok := b[w]; ok {
			out = append(out, w)
		}
	}
	sort.Strings(out)
	return out
}

func union(a, b map[string]struct{}) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	for w := range a {
		seen[w] = struct{}{}
	}
	for w := range b {
		seen[w] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for w := range seen {
		out = append(out, w)
	}
	sort.Strings(out)
	return out
}

func clamp100(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
