package search

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/agentindex/gateway/internal/vectordb"
)

func point(id string, score float64) vectordb.ScoredPoint {
	return vectordb.ScoredPoint{
		ID:      id,
		Score:   score,
		Payload: map[string]interface{}{"agent_id": id},
	}
}

func TestMergeMaxScoreKeepsBestPerAgent(t *testing.T) {
	merged := mergeMaxScore([][]vectordb.ScoredPoint{
		{point("1:1", 0.5), point("1:2", 0.9)},
		{point("1:1", 0.8), point("1:3", 0.4)},
	}, 10)

	assert.Len(t, merged, 3)
	assert.Equal(t, "1:2", pointAgentID(merged[0]))
	assert.Equal(t, "1:1", pointAgentID(merged[1]))
	assert.InDelta(t, 0.8, merged[1].Score, 1e-9)
	assert.Equal(t, "1:3", pointAgentID(merged[2]))
}

func TestMergeMaxScoreTruncatesToLimit(t *testing.T) {
	merged := mergeMaxScore([][]vectordb.ScoredPoint{
		{point("1:1", 0.9), point("1:2", 0.8), point("1:3", 0.7)},
	}, 2)
	assert.Len(t, merged, 2)
}

func TestMergeMaxScoreTieBreaksOnID(t *testing.T) {
	merged := mergeMaxScore([][]vectordb.ScoredPoint{
		{point("1:9", 0.5)},
		{point("1:2", 0.5)},
	}, 10)
	assert.Equal(t, "1:2", pointAgentID(merged[0]))
	assert.Equal(t, "1:9", pointAgentID(merged[1]))
}

func TestPointAgentIDFallsBackToPointID(t *testing.T) {
	p := vectordb.ScoredPoint{ID: "raw-id", Payload: map[string]interface{}{}}
	assert.Equal(t, "raw-id", pointAgentID(p))
}
