package services

import "github.com/prudhvinik1/episync/internal/models"

// MergeStats describes how a merged collection was assembled.
type MergeStats struct {
	Total      int `json:"total"`
	LocalAdded int `json:"local_added"`
	LocalWins  int `json:"local_wins"`
	RemoteKept int `json:"remote_kept"`
}

// RemoteOnly is the number of entities that existed only in the base.
func (s MergeStats) RemoteOnly() int {
	return s.Total - s.LocalAdded - s.LocalWins - s.RemoteKept
}

// MergeLatest folds incoming into base by id, last writer wins. Base order is
// preserved and unknown ids are appended in incoming order. An incoming
// entity replaces the accumulated one only when its UpdatedAt is strictly
// later, so ties keep the base side.
func MergeLatest[T models.Entity[T]](base, incoming []T) ([]T, MergeStats) {
	merged := make([]T, len(base), len(base)+len(incoming))
	copy(merged, base)

	index := make(map[string]int, len(merged)+len(incoming))
	for i, e := range merged {
		if _, seen := index[e.GetID()]; !seen {
			index[e.GetID()] = i
		}
	}

	inBase := make(map[string]bool, len(index))
	for id := range index {
		inBase[id] = true
	}

	var stats MergeStats
	contested := make(map[string]bool)
	localWon := make(map[string]bool)

	for _, e := range incoming {
		id := e.GetID()
		i, ok := index[id]
		if !ok {
			index[id] = len(merged)
			merged = append(merged, e)
			stats.LocalAdded++
			continue
		}
		if inBase[id] {
			contested[id] = true
		}
		if e.GetUpdatedAt().After(merged[i].GetUpdatedAt()) {
			merged[i] = e
			localWon[id] = true
		}
	}

	for id := range contested {
		if localWon[id] {
			stats.LocalWins++
		} else {
			stats.RemoteKept++
		}
	}
	stats.Total = len(merged)
	return merged, stats
}
