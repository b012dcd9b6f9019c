package analyzer

import "math"

const (
	pressureAlert   = 80
	driftAlert      = 50
	confidenceAlert = 50
	stressAlert     = 66
)

// Summary is the compact display projection of a Snapshot.
type Summary struct {
	Turns           int      `json:"turns"`
	MemoryPressure  int      `json:"memory_pressure"`
	Drift           int      `json:"drift"`
	Confidence      int      `json:"confidence"`
	Focus           int      `json:"focus"`
	Stress          int      `json:"stress"`
	Tone            Tone     `json:"tone"`
	ToneShifted     bool     `json:"tone_shifted"`
	Forgotten       int      `json:"forgotten"`
	LostReferences  int      `json:"lost_references"`
	Hallucinations  int      `json:"hallucinations"`
	SelfCorrections int      `json:"self_corrections"`
	Distractions    int      `json:"distractions"`
	Alerts          []string `json:"alerts"`
}

func (s Snapshot) Summary() Summary {
	sum := Summary{
		Turns:           s.TurnCount,
		MemoryPressure:  round(s.Memory.Pressure),
		Drift:           round(s.Context.DriftScore),
		Confidence:      round(s.Reasoning.Confidence),
		Focus:           round(s.Attention.FocusScore),
		Stress:          round(s.Emotional.StressLevel),
		Tone:            s.Emotional.Tone,
		ToneShifted:     s.Emotional.ToneShifted,
		Forgotten:       len(s.Memory.ForgottenFlags),
		LostReferences:  len(s.Context.LostReferences),
		Hallucinations:  len(s.Reasoning.HallucinationFlags),
		SelfCorrections: s.Reasoning.SelfCorrectionCount,
		Distractions:    len(s.Attention.DistractionEvents),
		Alerts:          []string{},
	}
	if sum.Tone == "" {
		sum.Tone = ToneNeutral
	}
	if s.TurnCount == 0 {
		return sum
	}

	if s.Memory.Pressure >= pressureAlert {
		sum.Alerts = append(sum.Alerts, "memory pressure high")
	}
	if s.Context.DriftScore > driftAlert {
		sum.Alerts = append(sum.Alerts, "context drift")
	}
	if s.Reasoning.Confidence < confidenceAlert {
		sum.Alerts = append(sum.Alerts, "low confidence")
	}
	if sum.Hallucinations > 0 {
		sum.Alerts = append(sum.Alerts, "possible hallucination")
	}
	if sum.Forgotten > 0 {
		sum.Alerts = append(sum.Alerts, "forgetfulness")
	}
	if s.Attention.FocusScore < distractionThreshold {
		sum.Alerts = append(sum.Alerts, "distracted")
	}
	if s.Emotional.StressLevel >= stressAlert {
		sum.Alerts = append(sum.Alerts, "stressed")
	}
	return sum
}

func round(v float64) int {
	return int(math.Round(v))
}
