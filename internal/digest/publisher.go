package digest

import (
	"fmt"
	"time"

	"github.com/X0IVY/prompt-injection-detector/internal/hermes"
)

// Event is the payload published on detector.digest.published.
type Event struct {
	Clusters  []Cluster `json:"clusters"`
	Threshold float64   `json:"threshold"`
	Records   int       `json:"records"`
	Timestamp time.Time `json:"timestamp"`
}

type natsPublisher interface {
	Publish(subject string, data any) error
}

// Publisher publishes digests to NATS.
type Publisher struct {
	hermes natsPublisher
}

func NewPublisher(h natsPublisher) *Publisher {
	return &Publisher{hermes: h}
}

// Publish emits one digest event. Empty digests are not published.
func (p *Publisher) Publish(clusters []Cluster, threshold float64) error {
	if len(clusters) == 0 {
		return nil
	}

	seen := make(map[string]struct{})
	for _, c := range clusters {
		for _, id := range c.RecordIDs {
			seen[id] = struct{}{}
		}
	}

	evt := Event{
		Clusters:  clusters,
		Threshold: threshold,
		Records:   len(seen),
		Timestamp: time.Now().UTC(),
	}
	if err := p.hermes.Publish(hermes.SubjectDigestPublished, evt); err != nil {
		return fmt.Errorf("publish digest: %w", err)
	}
	return nil
}
