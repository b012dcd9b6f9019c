// Package dedup collapses near-duplicate prompt records in the pattern store.
package dedup

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/X0IVY/prompt-injection-detector/internal/patterns"
)

// DefaultThreshold is the Jaccard similarity at which two prompts count as
// duplicates.
const DefaultThreshold = 0.9

// Result represents the result of a deduplication run.
type Result struct {
	Threshold  float64         `json:"threshold"`
	Execute    bool            `json:"execute"`
	Clusters   int             `json:"clusters"`
	TotalItems int             `json:"total_items"`
	Deduped    int             `json:"deduped"`
	Survivors  int             `json:"survivors"`
	Details    []ClusterDetail `json:"details,omitempty"`
}

// ClusterDetail provides information about a specific duplicate cluster.
type ClusterDetail struct {
	SurvivorID string   `json:"survivor_id"`
	DedupedIDs []string `json:"deduped_ids"`
	Size       int      `json:"size"`
}

// Deduplicator orchestrates the deduplication process.
type Deduplicator struct {
	store  *patterns.Store
	logger *slog.Logger
}

func New(store *patterns.Store, logger *slog.Logger) *Deduplicator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Deduplicator{store: store, logger: logger}
}

// Run finds clusters of near-duplicate records and keeps one survivor per
// cluster. Nothing is deleted unless execute is set. A threshold <= 0 means
// DefaultThreshold.
func (d *Deduplicator) Run(ctx context.Context, threshold float64, execute bool) (*Result, error) {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	d.logger.Info("starting pattern deduplication", "threshold", threshold, "execute", execute)

	records := d.store.Export()
	pairs := FindDuplicates(records, threshold)
	d.logger.Info("found duplicate pairs", "count", len(pairs))

	result := &Result{Threshold: threshold, Execute: execute}
	if len(pairs) == 0 {
		return result, nil
	}

	byID := make(map[string]patterns.Record, len(records))
	order := make(map[string]int, len(records))
	for i, r := range records {
		byID[r.ID] = r
		order[r.ID] = i
	}

	clusters := clusterPairs(pairs, order)
	result.Clusters = len(clusters)
	d.logger.Info("clustered duplicates", "clusters", len(clusters))

	for _, ids := range clusters {
		members := make([]patterns.Record, 0, len(ids))
		for _, id := range ids {
			members = append(members, byID[id])
		}
		survivor, _ := Rank(members)

		dedupedIDs := []string{}
		for _, id := range ids {
			if id != survivor.ID {
				dedupedIDs = append(dedupedIDs, id)
			}
		}

		if execute {
			for _, id := range dedupedIDs {
				if _, err := d.store.DeleteByID(ctx, id); err != nil {
					return nil, fmt.Errorf("delete duplicate %s of %s: %w", id, survivor.ID, err)
				}
			}
		}

		result.TotalItems += len(ids)
		result.Survivors++
		result.Deduped += len(dedupedIDs)
		result.Details = append(result.Details, ClusterDetail{
			SurvivorID: survivor.ID,
			DedupedIDs: dedupedIDs,
			Size:       len(ids),
		})
	}

	d.logger.Info("deduplication completed", "survivors", result.Survivors, "deduped", result.Deduped)
	return result, nil
}

// clusterPairs groups duplicate pairs into connected components using
// union-find. Members keep store order and clusters are ordered by their
// oldest member.
func clusterPairs(pairs []DuplicatePair, order map[string]int) [][]string {
	if len(pairs) == 0 {
		return nil
	}

	parent := make(map[string]string)
	for _, pair := range pairs {
		if _, exists := parent[pair.ID1]; !exists {
			parent[pair.ID1] = pair.ID1
		}
		if _, exists := parent[pair.ID2]; !exists {
			parent[pair.ID2] = pair.ID2
		}
	}

	var find func(string) string
	find = func(id string) string {
		if parent[id] != id {
			parent[id] = find(parent[id])
		}
		return parent[id]
	}

	for _, pair := range pairs {
		r1, r2 := find(pair.ID1), find(pair.ID2)
		if r1 != r2 {
			parent[r2] = r1
		}
	}

	groups := make(map[string][]string)
	for id := range parent {
		root := find(id)
		groups[root] = append(groups[root], id)
	}

	var clusters [][]string
	for _, cluster := range groups {
		if len(cluster) < 2 {
			continue
		}
		sort.Slice(cluster, func(i, j int) bool { return order[cluster[i]] < order[cluster[j]] })
		clusters = append(clusters, cluster)
	}
	sort.Slice(clusters, func(i, j int) bool { return order[clusters[i][0]] < order[clusters[j][0]] })
	return clusters
}
