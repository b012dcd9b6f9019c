package hermes

import (
	"errors"
	"time"

	"github.com/X0IVY/prompt-injection-detector/internal/analyzer"
	"github.com/X0IVY/prompt-injection-detector/internal/suspicion"
)

// TurnEvent is one user/assistant exchange in a conversation.
type TurnEvent struct {
	SessionID     string `json:"session_id"`
	UserText      string `json:"user_text"`
	AssistantText string `json:"assistant_text"`
	Domain        string `json:"domain,omitempty"`
}

func (e TurnEvent) Validate() error {
	if e.SessionID == "" {
		return errors.New("session_id is required")
	}
	return nil
}

// PromptEvent is a standalone prompt submitted for scoring.
type PromptEvent struct {
	SessionID string `json:"session_id,omitempty"`
	Text      string `json:"text"`
	Domain    string `json:"domain,omitempty"`
}

func (e PromptEvent) Validate() error {
	if e.Text == "" {
		return errors.New("text is required")
	}
	return nil
}

type SnapshotEvent struct {
	SessionID string           `json:"session_id"`
	Summary   analyzer.Summary `json:"summary"`
	Timestamp time.Time        `json:"timestamp"`
}

type ScoredEvent struct {
	SessionID string          `json:"session_id,omitempty"`
	RecordID  string          `json:"record_id"`
	Domain    string          `json:"domain,omitempty"`
	Score     float64         `json:"score"`
	Level     suspicion.Level `json:"level"`
	Safe      bool            `json:"safe"`
	Reasons   []string        `json:"reasons"`
	Patterns  []string        `json:"patterns,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}
