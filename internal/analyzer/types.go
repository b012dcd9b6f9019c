package analyzer

import "time"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message in the conversation history.
type Turn struct {
	Role          Role      `json:"role"`
	Text          string    `json:"text"`
	Timestamp     time.Time `json:"timestamp"`
	TokenEstimate int       `json:"token_estimate"`
}

type Tone string

const (
	ToneNeutral      Tone = "neutral"
	ToneDefensive    Tone = "defensive"
	ToneApologetic   Tone = "apologetic"
	ToneEnthusiastic Tone = "enthusiastic"
	ToneCautious     Tone = "cautious"
	ToneConfident    Tone = "confident"
)

type MemoryState struct {
	RecentWindow   []Turn  `json:"recent_window"`
	ForgottenFlags []Turn  `json:"forgotten_flags"`
	Pressure       float64 `json:"pressure"`
}

type ContextState struct {
	ActiveTopics        []string    `json:"active_topics"`
	DriftScore          float64     `json:"drift_score"`
	TokenWindowEstimate int         `json:"token_window_estimate"`
	LostReferences      []time.Time `json:"lost_references"`
}

// HallucinationFlag marks a vague-citation phrase in an assistant reply.
type HallucinationFlag struct {
	MatchedText string    `json:"matched_text"`
	Indicator   string    `json:"indicator"`
	Confidence  float64   `json:"confidence"`
	Timestamp   time.Time `json:"timestamp"`
}

type ReasoningState struct {
	Confidence          float64             `json:"confidence"`
	UncertaintyMarkers  []string            `json:"uncertainty_markers"`
	HallucinationFlags  []HallucinationFlag `json:"hallucination_flags"`
	SelfCorrectionCount int                 `json:"self_correction_count"`
}

type AttentionState struct {
	FocusScore        float64     `json:"focus_score"`
	FocusKeywords     []string    `json:"focus_keywords"`
	DistractionEvents []time.Time `json:"distraction_events"`
}

type EmotionalState struct {
	Tone        Tone    `json:"tone"`
	ToneShifted bool    `json:"tone_shifted"`
	StressLevel float64 `json:"stress_level"`
}

// Snapshot is the full cognitive state after the latest turn. Scores are on
// a 0-100 scale.
type Snapshot struct {
	TurnCount int            `json:"turn_count"`
	UpdatedAt time.Time      `json:"updated_at"`
	Memory    MemoryState    `json:"memory"`
	Context   ContextState   `json:"context"`
	Reasoning ReasoningState `json:"reasoning"`
	Attention AttentionState `json:"attention"`
	Emotional EmotionalState `json:"emotional"`
}

// clone returns a copy sharing no slices with s.
func (s Snapshot) clone() Snapshot {
	c := s
	c.Memory.RecentWindow = cloneSlice(s.Memory.RecentWindow)
	c.Memory.ForgottenFlags = cloneSlice(s.Memory.ForgottenFlags)
	c.Context.ActiveTopics = cloneSlice(s.Context.ActiveTopics)
	c.Context.LostReferences = cloneSlice(s.Context.LostReferences)
	c.Reasoning.UncertaintyMarkers = cloneSlice(s.Reasoning.UncertaintyMarkers)
	c.Reasoning.HallucinationFlags = cloneSlice(s.Reasoning.HallucinationFlags)
	c.Attention.FocusKeywords = cloneSlice(s.Attention.FocusKeywords)
	c.Attention.DistractionEvents = cloneSlice(s.Attention.DistractionEvents)
	return c
}

func cloneSlice[T any](in []T) []T {
	out := make([]T, len(in))
	copy(out, in)
	return out
}

// emptySnapshot is the neutral state before any turn is recorded.
func emptySnapshot() Snapshot {
	return Snapshot{
		Memory: MemoryState{RecentWindow: []Turn{}, ForgottenFlags: []Turn{}},
		Context: ContextState{
			ActiveTopics:   []string{},
			LostReferences: []time.Time{},
		},
		Reasoning: ReasoningState{
			Confidence:         100,
			UncertaintyMarkers: []string{},
			HallucinationFlags: []HallucinationFlag{},
		},
		Attention: AttentionState{
			FocusScore:        100,
			FocusKeywords:     []string{},
			DistractionEvents: []time.Time{},
		},
		Emotional: EmotionalState{Tone: ToneNeutral},
	}
}
