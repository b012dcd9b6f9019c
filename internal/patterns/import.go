package patterns

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
)

// Import validates data as a JSON array of records and merges the records
// whose id is not already present, then re-applies capacity eviction. It
// returns the number of imported records still stored after eviction.
//
// Every element must carry a non-empty string id and text and a numeric
// timestamp. Any invalid element rejects the whole batch with a
// *ValidationError and leaves the store unchanged. Within one batch the first
// occurrence of an id wins.
func (s *Store) Import(ctx context.Context, data []byte) (int, error) {
	incoming, err := decodeImport(data)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{}, len(s.records)+len(incoming))
	for _, r := range s.records {
		seen[r.ID] = struct{}{}
	}

	next := make([]Record, 0, len(s.records)+len(incoming))
	next = append(next, s.records...)
	fresh := 0
	for _, r := range incoming {
		if _, dup := seen[r.ID]; dup {
			continue
		}
		seen[r.ID] = struct{}{}
		next = append(next, r)
		fresh++
	}
	if fresh == 0 {
		return 0, nil
	}
	next = evict(next, s.opts.MaxRecords)
	// Imported records sit at the tail, so eviction drops them last.
	added := min(fresh, len(next))

	if err := s.persist(ctx, next); err != nil {
		return 0, fmt.Errorf("import records: %w", err)
	}
	s.records = next
	return added, nil
}

func decodeImport(data []byte) ([]Record, error) {
	var elems []json.RawMessage
	if err := json.Unmarshal(data, &elems); err != nil || elems == nil {
		return nil, &ValidationError{Index: -1, Reason: "expected a JSON array of records"}
	}

	out := make([]Record, 0, len(elems))
	for i, raw := range elems {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
			return nil, &ValidationError{Index: i, Reason: "expected an object"}
		}
		if err := requireString(i, fields, "id"); err != nil {
			return nil, err
		}
		if err := requireString(i, fields, "text"); err != nil {
			return nil, err
		}
		if err := requireNumber(i, fields, "timestamp"); err != nil {
			return nil, err
		}

		var r Record
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, &ValidationError{Index: i, Reason: err.Error()}
		}
		if r.Features.MatchedKeywords == nil {
			r.Features.MatchedKeywords = []string{}
		}
		out = append(out, r)
	}
	return out, nil
}

func requireString(i int, fields map[string]json.RawMessage, name string) error {
	raw, ok := fields[name]
	if !ok {
		return &ValidationError{Index: i, Field: name, Reason: "is missing"}
	}
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return &ValidationError{Index: i, Field: name, Reason: "must be a string"}
	}
	if v == "" {
		return &ValidationError{Index: i, Field: name, Reason: "must not be empty"}
	}
	return nil
}

func requireNumber(i int, fields map[string]json.RawMessage, name string) error {
	raw, ok := fields[name]
	if !ok {
		return &ValidationError{Index: i, Field: name, Reason: "is missing"}
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || !(raw[0] == '-' || (raw[0] >= '0' && raw[0] <= '9')) {
		return &ValidationError{Index: i, Field: name, Reason: "must be a number"}
	}
	return nil
}
