package replay

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/X0IVY/prompt-injection-detector/internal/analyzer"
	"github.com/X0IVY/prompt-injection-detector/internal/detector"
	"github.com/X0IVY/prompt-injection-detector/internal/suspicion"
)

type Options struct {
	// Learn submits every user message to the detector.
	Learn bool
	// Domain overrides the per-message domain labels when set.
	Domain string
}

// Result summarises one replayed conversation.
type Result struct {
	SessionID     string            `json:"session_id"`
	Exchanges     int               `json:"exchanges"`
	PromptsScored int               `json:"prompts_scored"`
	Unsafe        int               `json:"unsafe"`
	Highest       suspicion.Level   `json:"highest_level,omitempty"`
	Snapshot      analyzer.Snapshot `json:"snapshot"`
}

// Runner replays exported conversations through a fresh analyzer.
type Runner struct {
	cfg      analyzer.Config
	detector *detector.Detector
	logger   *slog.Logger
}

// NewRunner creates a runner. det may be nil when learning is never requested.
func NewRunner(cfg analyzer.Config, det *detector.Detector, logger *slog.Logger) *Runner {
	return &Runner{cfg: cfg, detector: det, logger: logger}
}

// Run replays the JSONL file at path.
func (r *Runner) Run(ctx context.Context, path string, opts Options) (*Result, error) {
	msgs, err := ParseFile(path)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return r.Replay(ctx, Pair(msgs), opts)
}

// Replay feeds exchanges in order. It stops at the first detector failure
// or when ctx is cancelled.
func (r *Runner) Replay(ctx context.Context, exchanges []Exchange, opts Options) (*Result, error) {
	if opts.Learn && r.detector == nil {
		return nil, fmt.Errorf("learn requested without a detector")
	}

	res := &Result{SessionID: uuid.New().String()}
	a := analyzer.New(r.cfg)

	for i, ex := range exchanges {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		a.RecordTurn(ex.User, ex.Assistant)
		res.Exchanges++

		if !opts.Learn {
			continue
		}
		domain := ex.Domain
		if opts.Domain != "" {
			domain = opts.Domain
		}
		analysis, err := r.detector.AnalyzePrompt(ctx, ex.User, domain)
		if err != nil {
			return nil, fmt.Errorf("exchange %d: %w", i, err)
		}
		res.PromptsScored++
		if !analysis.Safe {
			res.Unsafe++
		}
		if analysis.Level.Rank() > res.Highest.Rank() {
			res.Highest = analysis.Level
		}
	}

	res.Snapshot = a.Snapshot()
	r.logger.Info("replay complete",
		"session_id", res.SessionID,
		"exchanges", res.Exchanges,
		"prompts_scored", res.PromptsScored,
		"unsafe", res.Unsafe,
		"highest_level", res.Highest,
	)
	return res, nil
}
