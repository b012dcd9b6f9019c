package analyzer

import "time"

// distractionThreshold is the focus score below which a turn counts as a
// distraction.
const distractionThreshold = 50

// focus is the Jaccard overlap of user and assistant keywords scaled to
// 0-100. Two keyword-free texts are fully focused.
func focus(ex exchange) (float64, []string) {
	user := keywordSet(ex.user.Text)
	assistant := keywordSet(ex.assistant.Text)
	shared := intersect(user, assistant)
	all := union(user, assistant)
	if len(all) == 0 {
		return 100, shared
	}
	return clamp100(float64(len(shared)) / float64(len(all)) * 100), shared
}

func computeAttention(history []exchange) AttentionState {
	events := []time.Time{}
	for _, ex := range history {
		if score, _ := focus(ex); score < distractionThreshold {
			events = append(events, ex.assistant.Timestamp)
		}
	}

	score, shared := focus(history[len(history)-1])
	return AttentionState{
		FocusScore:        score,
		FocusKeywords:     shared,
		DistractionEvents: events,
	}
}
