package search

import (
	"sort"

	"github.com/agentindex/gateway/internal/vectordb"
)

// mergeMaxScore folds the fan-out branches into one result set, keeping the
// highest score seen per agent id, sorted by score descending. Ties break on
// id so merged pages are deterministic.
func mergeMaxScore(branches [][]vectordb.ScoredPoint, limit int) []vectordb.ScoredPoint {
	best := map[string]vectordb.ScoredPoint{}
	for _, branch := range branches {
		for _, p := range branch {
			id := pointAgentID(p)
			if prev, ok := best[id]; !ok || p.Score > prev.Score {
				best[id] = p
			}
		}
	}

	merged := make([]vectordb.ScoredPoint, 0, len(best))
	for _, p := range best {
		merged = append(merged, p)
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Score != merged[j].Score {
			return merged[i].Score > merged[j].Score
		}
		return pointAgentID(merged[i]) < pointAgentID(merged[j])
	})

	if limit > 0 && len(merged) > limit {
		merged = merged[:limit]
	}
	return merged
}

// pointAgentID prefers the payload's agent_id and falls back to the point id,
// so merging works for both index generations.
func pointAgentID(p vectordb.ScoredPoint) string {
	if v, ok := p.Payload["agent_id"].(string); ok && v != "" {
		return v
	}
	return p.ID
}
