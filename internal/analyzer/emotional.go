package analyzer

import "regexp"

const stressStep = 33

type toneGroup struct {
	tone Tone
	expr *regexp.Regexp
}

// toneGroups are tested in order; the first match wins.
var toneGroups = []toneGroup{
	{ToneDefensive, regexp.MustCompile(`(?i)(as\s+i\s+(already\s+)?(said|mentioned|stated|explained)|i\s+never\s+said|that[’']?s\s+not\s+what\s+i|you\s+misunderstood|to\s+be\s+fair|in\s+my\s+defen[cs]e)`)},
	{ToneApologetic, regexp.MustCompile(`(?i)\b(sorry|apologi[sz]e|apologies|my\s+mistake|my\s+bad|i\s+regret)\b`)},
	{ToneCautious, regexp.MustCompile(`(?i)\b(be\s+careful|caution|please\s+note|keep\s+in\s+mind|consult\s+(a|an|your)|i\s+would\s+recommend\s+checking|proceed\s+with\s+care)\b`)},
	{ToneEnthusiastic, regexp.MustCompile(`(?i)(great\s+question|happy\s+to\s+help|excited|wonderful|fantastic|awesome|love\s+to|!{2,})`)},
	{ToneConfident, regexp.MustCompile(`(?i)\b(certainly|definitely|clearly|without\s+a\s+doubt|of\s+course|undoubtedly|absolutely)\b`)},
}

func detectTone(text string) Tone {
	for _, g := range toneGroups {
		if g.expr.MatchString(text) {
			return g.tone
		}
	}
	return ToneNeutral
}

func computeEmotional(history []exchange, reasoning ReasoningState) EmotionalState {
	tone := detectTone(history[len(history)-1].assistant.Text)

	shifted := false
	if len(history) > 1 {
		prev := detectTone(history[len(history)-2].assistant.Text)
		shifted = prev != ToneNeutral && prev != tone
	}

	conditions := 0
	if reasoning.SelfCorrectionCount > 2 {
		conditions++
	}
	if len(reasoning.UncertaintyMarkers) > 3 {
		conditions++
	}
	if tone == ToneDefensive || tone == ToneApologetic {
		conditions++
	}

	return EmotionalState{
		Tone:        tone,
		ToneShifted: shifted,
		StressLevel: clamp100(float64(stressStep * conditions)),
	}
}
