package detector

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/X0IVY/prompt-injection-detector/internal/features"
	"github.com/X0IVY/prompt-injection-detector/internal/patterns"
	"github.com/X0IVY/prompt-injection-detector/internal/suspicion"
)

// Analysis is the verdict for one submitted prompt.
type Analysis struct {
	Safe     bool            `json:"safe"`
	Score    float64         `json:"score"`
	Level    suspicion.Level `json:"level"`
	Reasons  []string        `json:"reasons"`
	Patterns []string        `json:"patterns,omitempty"`
	Record   patterns.Record `json:"record"`
}

// Detector scores prompts and records every scored prompt in the pattern store.
type Detector struct {
	store     *patterns.Store
	scorer    *suspicion.Scorer
	threshold float64
	logger    *slog.Logger
	now       func() time.Time
}

func New(store *patterns.Store, scorer *suspicion.Scorer, threshold float64, logger *slog.Logger) *Detector {
	if threshold <= 0 {
		threshold = patterns.DefaultSuspicionThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{
		store:     store,
		scorer:    scorer,
		threshold: threshold,
		logger:    logger,
		now:       time.Now,
	}
}

// AnalyzePrompt extracts features, scores them and appends the resulting
// record to the store. No analysis is returned when the append fails.
func (d *Detector) AnalyzePrompt(ctx context.Context, text, domain string) (*Analysis, error) {
	vec := features.Extract(text)
	res := d.scorer.Score(vec, text)

	rec := patterns.Record{
		ID:             uuid.New().String(),
		Text:           text,
		Timestamp:      d.now().UnixMilli(),
		Domain:         domain,
		Features:       vec,
		SuspicionScore: res.Score,
	}

	if err := d.store.Append(ctx, rec); err != nil {
		return nil, fmt.Errorf("record pattern: %w", err)
	}

	a := &Analysis{
		Safe:     res.Score < d.threshold,
		Score:    res.Score,
		Level:    res.Level,
		Reasons:  res.Reasons,
		Patterns: res.Patterns,
		Record:   rec,
	}

	d.logger.Debug("prompt scored",
		"id", rec.ID,
		"domain", domain,
		"score", res.Score,
		"level", res.Level,
	)
	return a, nil
}

// Threshold returns the score at or above which a prompt is unsafe.
func (d *Detector) Threshold() float64 {
	return d.threshold
}

// Store exposes the underlying pattern store.
func (d *Detector) Store() *patterns.Store {
	return d.store
}
