package dedup

import (
	"github.com/X0IVY/prompt-injection-detector/internal/patterns"
)

// Rank picks the survivor of a cluster of duplicate records.
func Rank(cluster []patterns.Record) (patterns.Record, bool) {
	if len(cluster) == 0 {
		return patterns.Record{}, false
	}
	best := cluster[0]
	for _, r := range cluster[1:] {
		if isBetter(r, best) {
			best = r
		}
	}
	return best, true
}

// isBetter determines if record a should survive over record b.
func isBetter(a, b patterns.Record) bool {
	// 1. Higher suspicion score
	if a.SuspicionScore != b.SuspicionScore {
		return a.SuspicionScore > b.SuspicionScore
	}

	// 2. More matched keywords
	if len(a.Features.MatchedKeywords) != len(b.Features.MatchedKeywords) {
		return len(a.Features.MatchedKeywords) > len(b.Features.MatchedKeywords)
	}

	// 3. More recent
	if a.Timestamp != b.Timestamp {
		return a.Timestamp > b.Timestamp
	}

	// 4. Lowest id, for a stable choice
	return a.ID < b.ID
}
