package patterns

import "encoding/json"

// QueryByDomain returns the records labelled with domain, in insertion order.
func (s *Store) QueryByDomain(domain string) []Record {
	return s.filter(func(r Record) bool { return r.Domain == domain })
}

// QueryByTimeRange returns the records with start <= Timestamp <= end.
func (s *Store) QueryByTimeRange(start, end int64) []Record {
	return s.filter(func(r Record) bool { return r.Timestamp >= start && r.Timestamp <= end })
}

// QuerySuspicious returns the records scoring at or above threshold. A
// threshold <= 0 selects the store's configured threshold.
func (s *Store) QuerySuspicious(threshold float64) []Record {
	if threshold <= 0 {
		threshold = s.opts.SuspicionThreshold
	}
	return s.filter(func(r Record) bool { return r.SuspicionScore >= threshold })
}

// Export returns a copy of the full ordered collection.
func (s *Store) Export() []Record {
	return s.filter(func(Record) bool { return true })
}

// ExportJSON serializes the full ordered collection. An empty store exports "[]".
func (s *Store) ExportJSON() ([]byte, error) {
	return json.Marshal(s.Export())
}

// Stats summarises the collection.
type Stats struct {
	Count           int   `json:"count"`
	Suspicious      int   `json:"suspicious"`
	OldestTimestamp int64 `json:"oldest_timestamp"`
	NewestTimestamp int64 `json:"newest_timestamp"`
	SizeBytes       int   `json:"size_bytes"`
}

// Stats reports the record count, the suspicious count at the configured
// threshold, the timestamp bounds and the serialized size of the collection.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{Count: len(s.records)}
	for i, r := range s.records {
		if r.SuspicionScore >= s.opts.SuspicionThreshold {
			st.Suspicious++
		}
		if i == 0 || r.Timestamp < st.OldestTimestamp {
			st.OldestTimestamp = r.Timestamp
		}
		if i == 0 || r.Timestamp > st.NewestTimestamp {
			st.NewestTimestamp = r.Timestamp
		}
	}

	recs := s.records
	if recs == nil {
		recs = []Record{}
	}
	if data, err := json.Marshal(recs); err == nil {
		st.SizeBytes = len(data)
	}
	return st
}

func (s *Store) filter(keep func(Record) bool) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []Record{}
	for _, r := range s.records {
		if keep(r) {
			out = append(out, r.clone())
		}
	}
	return out
}
