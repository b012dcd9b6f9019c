package analyzer

import (
	"regexp"
	"time"
)

var (
	referentialPronouns = regexp.MustCompile(`(?i)\b(it|that|this|those|these|they|them|the\s+(one|other)\s+one|the\s+former|the\s+latter)\b`)
	clarifyCues         = regexp.MustCompile(`(?i)(what\s+do\s+you\s+mean|could\s+you\s+clarify|can\s+you\s+clarify|please\s+clarify|which\s+one\s+do\s+you\s+mean|what\s+are\s+you\s+referring\s+to|not\s+sure\s+what\s+you[’']?re\s+referring\s+to|not\s+sure\s+what\s+you\s+are\s+referring\s+to)`)
)

// computeContext derives the topic state of the latest exchange. Drift is the
// share of the user's topics the assistant did not pick up.
func computeContext(history []exchange, window []Turn) ContextState {
	latest := history[len(history)-1]
	user := keywordSet(latest.user.Text)
	assistant := keywordSet(latest.assistant.Text)

	drift := 0.0
	if len(user) > 0 {
		overlap := float64(len(intersect(user, assistant))) / float64(len(user))
		drift = (1 - overlap) * 100
	}

	lost := []time.Time{}
	for _, ex := range history {
		if referentialPronouns.MatchString(ex.user.Text) && clarifyCues.MatchString(ex.assistant.Text) {
			lost = append(lost, ex.assistant.Timestamp)
		}
	}

	return ContextState{
		ActiveTopics:        union(user, assistant),
		DriftScore:          clamp100(drift),
		TokenWindowEstimate: windowTokens(window),
		LostReferences:      lost,
	}
}
