// Package digest groups suspicious pattern records by the keyword that
// flagged them, for periodic review.
package digest

import (
	"sort"

	"github.com/X0IVY/prompt-injection-detector/internal/patterns"
)

// Unclassified labels suspicious records that matched no keyword.
const Unclassified = "unclassified"

// Cluster is every suspicious record that matched one keyword.
type Cluster struct {
	Keyword         string   `json:"keyword"`
	Category        string   `json:"category"`
	Count           int      `json:"count"`
	RecordIDs       []string `json:"record_ids"`
	MaxScore        float64  `json:"max_score"`
	NewestTimestamp int64    `json:"newest_timestamp"`
	Example         string   `json:"example"`
}

// Build clusters the records scoring at or above threshold. A record that
// matched several keywords appears in each of their clusters. Clusters are
// ordered by size, largest first, then by keyword.
func Build(records []patterns.Record, threshold float64) []Cluster {
	mapper := NewMapper()
	byKeyword := make(map[string]*Cluster)

	for _, r := range records {
		if r.SuspicionScore < threshold {
			continue
		}
		keys := r.Features.MatchedKeywords
		if len(keys) == 0 {
			keys = []string{Unclassified}
		}
		for _, k := range keys {
			c, ok := byKeyword[k]
			if !ok {
				c = &Cluster{Keyword: k, Category: mapper.Category(k), RecordIDs: []string{}}
				byKeyword[k] = c
			}
			c.Count++
			c.RecordIDs = append(c.RecordIDs, r.ID)
			if c.Count == 1 || r.SuspicionScore > c.MaxScore {
				c.MaxScore = r.SuspicionScore
				c.Example = r.Text
			}
			if r.Timestamp > c.NewestTimestamp {
				c.NewestTimestamp = r.Timestamp
			}
		}
	}

	clusters := make([]Cluster, 0, len(byKeyword))
	for _, c := range byKeyword {
		clusters = append(clusters, *c)
	}
	sort.Slice(clusters, func(i, j int) bool {
		if clusters[i].Count != clusters[j].Count {
			return clusters[i].Count > clusters[j].Count
		}
		return clusters[i].Keyword < clusters[j].Keyword
	})
	return clusters
}
