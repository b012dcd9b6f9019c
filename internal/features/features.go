package features

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

// Vector is the fixed feature set derived from a single prompt text.
type Vector struct {
	Length          int      `json:"length"`
	ComplexityScore float64  `json:"complexity_score"`
	SentimentShift  float64  `json:"sentiment_shift"`
	MatchedKeywords []string `json:"matched_keywords"`
}

// SuspiciousKeywords are matched as case-insensitive substrings.
var SuspiciousKeywords = []string{
	"override",
	"bypass",
	"ignore",
	"jailbreak",
	"roleplay",
	"act as",
	"new instructions",
	"pretend",
	"disregard",
	"system prompt",
	"developer mode",
	"unrestricted",
}

// PoliteCues and DemandingCues drive the sentiment shift. Multi-word cues are
// counted as substrings, single words as whole tokens.
var (
	PoliteCues = []string{
		"please", "thank", "thanks", "appreciate", "kindly", "could you", "would you", "grateful",
	}
	DemandingCues = []string{
		"must", "now", "immediately", "obey", "ignore", "never", "always", "required", "do it", "comply",
	}
)

var sentenceSplit = regexp.MustCompile(`[.!?]+`)

// Extract computes the feature vector for text. It is deterministic and never
// divides by zero: empty or whitespace-only text yields the zero vector.
func Extract(text string) Vector {
	v := Vector{MatchedKeywords: []string{}}
	if strings.TrimSpace(text) == "" {
		return v
	}

	v.Length = utf8.RuneCountInString(text)

	lower := strings.ToLower(text)
	words := strings.Fields(lower)

	v.ComplexityScore = complexity(text, words)
	v.SentimentShift = sentimentShift(lower, words)
	v.MatchedKeywords = matchKeywords(lower)
	return v
}

// complexity averages the scaled mean word length with the ratio of distinct
// sentence lengths to sentence count.
func complexity(text string, words []string) float64 {
	if len(words) == 0 {
		return 0
	}

	totalRunes := 0
	for _, w := range words {
		totalRunes += utf8.RuneCountInString(w)
	}
	meanWordLen := float64(totalRunes) / float64(len(words))

	var sentenceLengths []int
	for _, s := range sentenceSplit.Split(text, -1) {
		n := len(strings.Fields(s))
		if n > 0 {
			sentenceLengths = append(sentenceLengths, n)
		}
	}

	variety := 0.0
	if len(sentenceLengths) > 0 {
		distinct := make(map[int]struct{}, len(sentenceLengths))
		for _, n := range sentenceLengths {
			distinct[n] = struct{}{}
		}
		variety = float64(len(distinct)) / float64(len(sentenceLengths))
	}

	return (meanWordLen/10 + variety) / 2
}

func sentimentShift(lower string, words []string) float64 {
	if len(words) == 0 {
		return 0
	}
	positive := countCues(lower, words, PoliteCues)
	negative := countCues(lower, words, DemandingCues)
	if negative <= positive {
		return 0
	}
	return float64(negative-positive) / float64(len(words))
}

func countCues(lower string, words []string, cues []string) int {
	count := 0
	for _, cue := range cues {
		if strings.Contains(cue, " ") {
			count += strings.Count(lower, cue)
			continue
		}
		for _, w := range words {
			if strings.Trim(w, `.,!?;:"'()[]`) == cue {
				count++
			}
		}
	}
	return count
}

func matchKeywords(lower string) []string {
	matched := []string{}
	for _, kw := range SuspiciousKeywords {
		if strings.Contains(lower, kw) {
			matched = append(matched, kw)
		}
	}
	sort.Strings(matched)
	return matched
}
