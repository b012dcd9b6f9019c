package analyzer

import "regexp"

var forgetfulnessCues = regexp.MustCompile(`(?i)\b(` +
	`i\s+(don[’']?t|do\s+not|can[’']?t|cannot|no\s+longer)\s+(remember|recall)` +
	`|i\s+(have\s+|[’']ve\s+)?forgotten|i\s+forgot` +
	`|(no|lost)\s+(memory|record|track)\s+of` +
	`|not\s+sure\s+what\s+(you|we)\s+(said|discussed|mentioned|talked\s+about)` +
	`|remind\s+me\s+what)`)

func computeMemory(history []exchange, windowSize, saturation int) MemoryState {
	turns := flatten(history)

	total := 0
	for _, t := range turns {
		total += t.TokenEstimate
	}

	start := len(turns) - windowSize
	if start < 0 {
		start = 0
	}

	flags := []Turn{}
	for _, ex := range history {
		if forgetfulnessCues.MatchString(ex.assistant.Text) {
			flags = append(flags, ex.assistant)
		}
	}

	return MemoryState{
		RecentWindow:   cloneSlice(turns[start:]),
		ForgottenFlags: flags,
		Pressure:       clamp100(float64(total) / float64(saturation) * 100),
	}
}

func windowTokens(window []Turn) int {
	n := 0
	for _, t := range window {
		n += t.TokenEstimate
	}
	return n
}
