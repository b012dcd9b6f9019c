package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/X0IVY/prompt-injection-detector/internal/analyzer"
	"github.com/X0IVY/prompt-injection-detector/internal/detector"
	"github.com/X0IVY/prompt-injection-detector/internal/hermes"
	"github.com/X0IVY/prompt-injection-detector/internal/slack"
	"github.com/X0IVY/prompt-injection-detector/internal/suspicion"
)

// Publisher emits result events. *hermes.Client satisfies it.
type Publisher interface {
	Publish(subject string, data any) error
}

// Alerter posts critical prompts for human attention. *slack.Poster satisfies it.
type Alerter interface {
	PostAlert(ctx context.Context, a slack.Alert) (string, error)
	PostThread(ctx context.Context, threadTS, text string) error
}

// Processor wires inbound NATS events to the analyzers and the detector.
type Processor struct {
	sessions *analyzer.Registry
	detector *detector.Detector
	hermes   Publisher
	alerts   Alerter
	logger   *slog.Logger
	timeout  time.Duration
	now      func() time.Time
}

// New builds a Processor. pub and alerts may be nil.
func New(sessions *analyzer.Registry, det *detector.Detector, pub Publisher, alerts Alerter, logger *slog.Logger) *Processor {
	return &Processor{
		sessions: sessions,
		detector: det,
		hermes:   pub,
		alerts:   alerts,
		logger:   logger,
		timeout:  10 * time.Second,
		now:      time.Now,
	}
}

// Subscribe registers the inbound handlers on the client.
func (p *Processor) Subscribe(c *hermes.Client) error {
	if err := c.Subscribe(hermes.SubjectTurnRecorded, p.HandleTurnRecorded); err != nil {
		return fmt.Errorf("subscribe turns: %w", err)
	}
	if err := c.Subscribe(hermes.SubjectPromptSubmitted, p.HandlePromptSubmitted); err != nil {
		return fmt.Errorf("subscribe prompts: %w", err)
	}
	return nil
}

// HandleTurnRecorded is the NATS handler for detector.turn.recorded.
func (p *Processor) HandleTurnRecorded(subject string, data []byte) {
	var evt hermes.TurnEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		p.logger.Warn("failed to parse turn event", "subject", subject, "error", err)
		return
	}
	if err := evt.Validate(); err != nil {
		p.logger.Warn("invalid turn event", "subject", subject, "error", err)
		return
	}

	a := p.sessions.Get(evt.SessionID)
	a.RecordTurn(evt.UserText, evt.AssistantText)
	summary := a.Snapshot().Summary()

	p.logger.Info("turn recorded",
		"session_id", evt.SessionID,
		"domain", evt.Domain,
		"turns", summary.Turns,
		"drift", summary.Drift,
		"alerts", len(summary.Alerts),
	)

	p.publish(hermes.SubjectSnapshotUpdated, hermes.SnapshotEvent{
		SessionID: evt.SessionID,
		Summary:   summary,
		Timestamp: p.now().UTC(),
	})
}

// HandlePromptSubmitted is the NATS handler for detector.prompt.submitted.
func (p *Processor) HandlePromptSubmitted(subject string, data []byte) {
	var evt hermes.PromptEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		p.logger.Warn("failed to parse prompt event", "subject", subject, "error", err)
		return
	}
	if err := evt.Validate(); err != nil {
		p.logger.Warn("invalid prompt event", "subject", subject, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	res, err := p.detector.AnalyzePrompt(ctx, evt.Text, evt.Domain)
	if err != nil {
		p.logger.Error("failed to analyze prompt", "session_id", evt.SessionID, "error", err)
		return
	}

	p.logger.Info("prompt scored",
		"session_id", evt.SessionID,
		"record_id", res.Record.ID,
		"domain", evt.Domain,
		"score", res.Score,
		"level", res.Level,
	)

	p.publish(hermes.SubjectPatternScored, hermes.ScoredEvent{
		SessionID: evt.SessionID,
		RecordID:  res.Record.ID,
		Domain:    evt.Domain,
		Score:     res.Score,
		Level:     res.Level,
		Safe:      res.Safe,
		Reasons:   res.Reasons,
		Patterns:  res.Patterns,
		Timestamp: p.now().UTC(),
	})

	if res.Level == suspicion.LevelCritical {
		p.alert(ctx, evt, res)
	}
}

func (p *Processor) alert(ctx context.Context, evt hermes.PromptEvent, res *detector.Analysis) {
	if p.alerts == nil {
		return
	}

	ts, err := p.alerts.PostAlert(ctx, slack.Alert{
		SessionID: evt.SessionID,
		RecordID:  res.Record.ID,
		Domain:    evt.Domain,
		Text:      evt.Text,
		Score:     res.Score,
		Level:     string(res.Level),
		Reasons:   res.Reasons,
		Patterns:  res.Patterns,
	})
	if err != nil {
		p.logger.Error("slack alert failed", "record_id", res.Record.ID, "error", err)
		return
	}

	if evt.SessionID == "" {
		return
	}
	a, ok := p.sessions.Lookup(evt.SessionID)
	if !ok {
		return
	}
	if err := p.alerts.PostThread(ctx, ts, formatSessionContext(a.Snapshot().Summary())); err != nil {
		p.logger.Error("slack thread failed", "record_id", res.Record.ID, "error", err)
	}
}

func (p *Processor) publish(subject string, data any) {
	if p.hermes == nil {
		return
	}
	if err := p.hermes.Publish(subject, data); err != nil {
		p.logger.Error("failed to publish", "subject", subject, "error", err)
	}
}

func formatSessionContext(s analyzer.Summary) string {
	return fmt.Sprintf("Session after %d turns: drift %d, confidence %d, focus %d, stress %d, tone %s",
		s.Turns, s.Drift, s.Confidence, s.Focus, s.Stress, s.Tone)
}
