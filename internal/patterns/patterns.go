package patterns

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/X0IVY/prompt-injection-detector/internal/features"
)

const (
	// DefaultMaxRecords is the capacity of the store.
	DefaultMaxRecords = 1000
	// DefaultSuspicionThreshold is the cutoff used by QuerySuspicious when no
	// threshold is given.
	DefaultSuspicionThreshold = 0.5
	// DefaultCollection is the blob key the collection is persisted under.
	DefaultCollection = "patterns"
)

// Record is one persisted, scored observation of a single prompt. Records are
// never mutated after creation.
type Record struct {
	ID             string          `json:"id"`
	Text           string          `json:"text"`
	Timestamp      int64           `json:"timestamp"`
	Domain         string          `json:"domain"`
	Features       features.Vector `json:"features"`
	SuspicionScore float64         `json:"suspicion_score"`
}

// Backend is the durable medium behind the store: a blob store keyed by
// collection name. Load returns nil data when the key has never been saved.
type Backend interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, data []byte) error
}

type Options struct {
	Collection         string
	MaxRecords         int
	SuspicionThreshold float64
}

func (o Options) withDefaults() Options {
	if o.Collection == "" {
		o.Collection = DefaultCollection
	}
	if o.MaxRecords <= 0 {
		o.MaxRecords = DefaultMaxRecords
	}
	if o.SuspicionThreshold <= 0 {
		o.SuspicionThreshold = DefaultSuspicionThreshold
	}
	return o
}

// Store is an insertion-ordered, capacity-bounded collection of records cached
// in memory and written through to a Backend.
//
// Mutations hold the lock across the durable write so a single Store owns all
// writes to its collection. The cache is only replaced after the write
// succeeds. Two processes writing the same collection is not supported.
type Store struct {
	backend Backend
	opts    Options

	mu      sync.RWMutex
	records []Record
}

// Open loads the collection from b. A missing collection yields an empty store.
func Open(ctx context.Context, b Backend, opts Options) (*Store, error) {
	s := &Store{backend: b, opts: opts.withDefaults()}

	data, err := b.Load(ctx, s.opts.Collection)
	if err != nil {
		return nil, fmt.Errorf("load collection %s: %w", s.opts.Collection, err)
	}
	if len(data) > 0 {
		var recs []Record
		if err := json.Unmarshal(data, &recs); err != nil {
			return nil, fmt.Errorf("parse collection %s: %w", s.opts.Collection, err)
		}
		s.records = evict(recs, s.opts.MaxRecords)
	}
	return s, nil
}

// Append inserts r at the end, then drops the oldest records until the store
// is back at capacity. A record whose id is already stored is rejected with
// ErrDuplicateID.
func (s *Store) Append(ctx context.Context, r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.records {
		if existing.ID == r.ID {
			return fmt.Errorf("append record %s: %w", r.ID, ErrDuplicateID)
		}
	}

	next := make([]Record, 0, len(s.records)+1)
	next = append(next, s.records...)
	next = append(next, r)
	next = evict(next, s.opts.MaxRecords)

	if err := s.persist(ctx, next); err != nil {
		return fmt.Errorf("append record %s: %w", r.ID, err)
	}
	s.records = next
	return nil
}

// DeleteByID removes at most one record with the given id and reports whether
// a record was removed.
func (s *Store) DeleteByID(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, r := range s.records {
		if r.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false, nil
	}

	next := make([]Record, 0, len(s.records)-1)
	next = append(next, s.records[:idx]...)
	next = append(next, s.records[idx+1:]...)

	if err := s.persist(ctx, next); err != nil {
		return false, fmt.Errorf("delete record %s: %w", id, err)
	}
	s.records = next
	return true, nil
}

// Clear empties the store.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.persist(ctx, []Record{}); err != nil {
		return fmt.Errorf("clear collection: %w", err)
	}
	s.records = nil
	return nil
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Get returns the record with the given id.
func (s *Store) Get(id string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.records {
		if r.ID == id {
			return r.clone(), true
		}
	}
	return Record{}, false
}

// clone copies the slice fields so callers cannot reach the cached record.
func (r Record) clone() Record {
	if r.Features.MatchedKeywords != nil {
		r.Features.MatchedKeywords = append([]string{}, r.Features.MatchedKeywords...)
	}
	return r
}

func (s *Store) persist(ctx context.Context, recs []Record) error {
	data, err := json.Marshal(recs)
	if err != nil {
		return fmt.Errorf("marshal collection: %w", err)
	}
	return s.backend.Save(ctx, s.opts.Collection, data)
}

// evict drops records from the front until len(recs) <= max.
func evict(recs []Record, max int) []Record {
	if len(recs) <= max {
		return recs
	}
	return recs[len(recs)-max:]
}
