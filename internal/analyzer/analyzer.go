// Package analyzer tracks the per-conversation cognitive metrics of an
// assistant: memory pressure, context drift, reasoning confidence, attention
// and emotional tone. Each Analyzer belongs to exactly one conversation.
package analyzer

import (
	"sync"
	"time"
)

const (
	DefaultWindowSize       = 10
	DefaultSaturationTokens = 4000
	DefaultMaxHistory       = 1000
	DefaultMaxSessions      = 10000
)

type Config struct {
	// WindowSize is the number of turns kept in Memory.RecentWindow.
	WindowSize int
	// SaturationTokens is the token total at which memory pressure reaches 100.
	SaturationTokens int
	// MaxHistory caps the retained exchanges; older ones are dropped first.
	MaxHistory int
	// MaxSessions caps the sessions a Registry holds; the least recently used
	// session is dropped when a new one would exceed it.
	MaxSessions int
}

func (c Config) withDefaults() Config {
	if c.WindowSize <= 0 {
		c.WindowSize = DefaultWindowSize
	}
	if c.SaturationTokens <= 0 {
		c.SaturationTokens = DefaultSaturationTokens
	}
	if c.MaxHistory <= 0 {
		c.MaxHistory = DefaultMaxHistory
	}
	if c.MaxSessions <= 0 {
		c.MaxSessions = DefaultMaxSessions
	}
	return c
}

type exchange struct {
	user      Turn
	assistant Turn
}

func flatten(history []exchange) []Turn {
	out := make([]Turn, 0, 2*len(history))
	for _, ex := range history {
		out = append(out, ex.user, ex.assistant)
	}
	return out
}

// Analyzer is safe for concurrent use, but turns are applied in call order.
type Analyzer struct {
	cfg Config
	now func() time.Time

	mu       sync.Mutex
	history  []exchange
	turns    int
	snapshot Snapshot
	baseline *Snapshot
}

func New(cfg Config) *Analyzer {
	return &Analyzer{
		cfg:      cfg.withDefaults(),
		now:      time.Now,
		snapshot: emptySnapshot(),
	}
}

// RecordTurn appends one user/assistant exchange and recomputes the snapshot
// from the retained history. Empty texts are accepted and score as neutral.
func (a *Analyzer) RecordTurn(userText, assistantText string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	ts := a.now().UTC()
	ex := exchange{
		user:      Turn{Role: RoleUser, Text: userText, Timestamp: ts, TokenEstimate: estimateTokens(userText)},
		assistant: Turn{Role: RoleAssistant, Text: assistantText, Timestamp: ts, TokenEstimate: estimateTokens(assistantText)},
	}

	a.history = append(a.history, ex)
	if over := len(a.history) - a.cfg.MaxHistory; over > 0 {
		a.history = append([]exchange(nil), a.history[over:]...)
	}
	a.turns++

	a.snapshot = a.compute(ts)
	if a.baseline == nil {
		b := a.snapshot.clone()
		a.baseline = &b
	}
}

func (a *Analyzer) compute(ts time.Time) Snapshot {
	memory := computeMemory(a.history, a.cfg.WindowSize, a.cfg.SaturationTokens)
	reasoning := computeReasoning(a.history)
	return Snapshot{
		TurnCount: a.turns,
		UpdatedAt: ts,
		Memory:    memory,
		Context:   computeContext(a.history, memory.RecentWindow),
		Reasoning: reasoning,
		Attention: computeAttention(a.history),
		Emotional: computeEmotional(a.history, reasoning),
	}
}

// Snapshot returns a deep copy of the current state.
func (a *Analyzer) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshot.clone()
}

// Baseline returns the snapshot taken after the first recorded turn.
func (a *Analyzer) Baseline() (Snapshot, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.baseline == nil {
		return Snapshot{}, false
	}
	return a.baseline.clone(), true
}

// TurnCount returns the number of exchanges recorded, including any that
// have since been dropped from the retained history.
func (a *Analyzer) TurnCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.turns
}
