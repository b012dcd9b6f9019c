package dedup

import (
	"strings"
	"unicode"

	"github.com/X0IVY/prompt-injection-detector/internal/patterns"
)

// DuplicatePair represents two potentially duplicate records.
type DuplicatePair struct {
	ID1        string
	ID2        string
	Similarity float64
}

// FindDuplicates compares every pair of records and returns those whose word
// sets have a Jaccard similarity at or above threshold. Pairs keep store
// order: ID1 is always the older record.
func FindDuplicates(records []patterns.Record, threshold float64) []DuplicatePair {
	sets := make([]map[string]struct{}, len(records))
	for i, r := range records {
		sets[i] = wordSet(r.Text)
	}

	var pairs []DuplicatePair
	for i := 0; i < len(records); i++ {
		for j := i + 1; j < len(records); j++ {
			sim := jaccard(sets[i], sets[j])
			if sim >= threshold {
				pairs = append(pairs, DuplicatePair{ID1: records[i].ID, ID2: records[j].ID, Similarity: sim})
			}
		}
	}
	return pairs
}

func wordSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		set[w] = struct{}{}
	}
	return set
}

// jaccard returns 0 when either set is empty.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for w := range a {
		if _, ok := b[w]; ok {
			inter++
		}
	}
	return float64(inter) / float64(len(a)+len(b)-inter)
}
