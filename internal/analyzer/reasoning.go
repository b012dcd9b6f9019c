package analyzer

import (
	"regexp"
	"strings"
)

// confidencePenalty is subtracted from confidence for every hedge found.
const confidencePenalty = 15

var hedges = []string{
	"maybe", "perhaps", "possibly", "probably", "might", "could be", "i think", "i believe",
	"not sure", "unclear", "it seems", "likely", "uncertain", "approximately", "i guess",
}

var correctionCues = regexp.MustCompile(`(?i)\b(actually,|i\s+was\s+wrong|let\s+me\s+correct|correction:|i\s+made\s+a\s+mistake|i\s+misspoke|to\s+correct\s+my\s+(earlier|previous))`)

type hallucinationIndicator struct {
	label      string
	confidence float64
	expr       *regexp.Regexp
}

var hallucinationIndicators = []hallucinationIndicator{
	{"vague_study", 0.6, regexp.MustCompile(`(?i)\b(studies|research)\s+(have\s+)?(shown?|shows|suggests?|proves?|found)\b`)},
	{"vague_authority", 0.5, regexp.MustCompile(`(?i)\b(experts|scientists|doctors|researchers)\s+(say|agree|believe|claim)\b`)},
	{"unnamed_source", 0.7, regexp.MustCompile(`(?i)\baccording\s+to\s+(some\s+|many\s+|recent\s+)?(sources|reports|studies)\b`)},
	{"common_knowledge", 0.4, regexp.MustCompile(`(?i)\bit\s+is\s+(well|widely|commonly)\s+(known|accepted|established)\b`)},
	{"unsourced_statistic", 0.6, regexp.MustCompile(`(?i)\b\d{1,3}(\.\d+)?\s?%\s+of\s+(people|users|experts|cases|americans|companies)\b`)},
}

func computeReasoning(history []exchange) ReasoningState {
	latest := history[len(history)-1].assistant.Text
	markers := uncertaintyMarkers(latest)

	corrections := 0
	flags := []HallucinationFlag{}
	for _, ex := range history {
		if correctionCues.MatchString(ex.assistant.Text) {
			corrections++
		}
		for _, ind := range hallucinationIndicators {
			if m := ind.expr.FindString(ex.assistant.Text); m != "" {
				flags = append(flags, HallucinationFlag{
					MatchedText: m,
					Indicator:   ind.label,
					Confidence:  ind.confidence,
					Timestamp:   ex.assistant.Timestamp,
				})
			}
		}
	}

	return ReasoningState{
		Confidence:          clamp100(100 - confidencePenalty*float64(len(markers))),
		UncertaintyMarkers:  markers,
		HallucinationFlags:  flags,
		SelfCorrectionCount: corrections,
	}
}

// uncertaintyMarkers lists the hedges found in text, each at most once, in
// hedge-list order. Single-word hedges must match whole words.
func uncertaintyMarkers(text string) []string {
	lower := strings.ToLower(text)
	words := make(map[string]struct{})
	for _, w := range strings.Fields(lower) {
		words[strings.Trim(w, `.,!?;:"'()[]`)] = struct{}{}
	}

	found := []string{}
	for _, h := range hedges {
		if strings.Contains(h, " ") {
			if strings.Contains(lower, h) {
				found = append(found, h)
			}
			continue
		}
		if _, ok := words[h]; ok {
			found = append(found, h)
		}
	}
	return found
}
