package trustgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentindex/gateway/internal/core"
)

func TestEdgeWeightBounds(t *testing.T) {
	// Ratings 1..5 spread linearly over [0.2, 1.0].
	assert.InDelta(t, 0.2, EdgeWeight(0), 1e-9)
	assert.InDelta(t, 0.4, EdgeWeight(25), 1e-9)
	assert.InDelta(t, 0.6, EdgeWeight(50), 1e-9)
	assert.InDelta(t, 0.8, EdgeWeight(75), 1e-9)
	assert.InDelta(t, 1.0, EdgeWeight(100), 1e-9)

	for s := 0; s <= 100; s += 7 {
		w := EdgeWeight(s)
		assert.GreaterOrEqual(t, w, 0.2)
		assert.LessOrEqual(t, w, 1.0)
	}
}

func edge(from, to string, weight float64) core.TrustEdge {
	return core.TrustEdge{FromWallet: from, ToAgentID: to, Weight: weight}
}

const (
	walletA = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	walletB = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	walletC = "0xcccccccccccccccccccccccccccccccccccccccc"
)

func TestRankEmptyGraph(t *testing.T) {
	assert.Nil(t, Rank(nil))
}

func TestRankScoresWithinBounds(t *testing.T) {
	scores := Rank([]core.TrustEdge{
		edge(walletA, "1:1", 1.0),
		edge(walletA, "1:2", 0.2),
		edge(walletB, "1:1", 0.8),
		edge(walletC, "1:3", 0.6),
	})

	require.Len(t, scores, 3)
	var sawMax bool
	for _, s := range scores {
		assert.GreaterOrEqual(t, s.TrustScore, 0.0)
		assert.LessOrEqual(t, s.TrustScore, 100.0)
		assert.LessOrEqual(t, s.Iteration, MaxIterations)
		if s.TrustScore == 100.0 {
			sawMax = true
		}
	}
	assert.True(t, sawMax, "best agent scales to 100")
}

func TestRankFavorsMoreEndorsedAgent(t *testing.T) {
	scores := Rank([]core.TrustEdge{
		edge(walletA, "1:1", 1.0),
		edge(walletB, "1:1", 1.0),
		edge(walletC, "1:2", 0.2),
	})

	byID := map[string]core.TrustScore{}
	for _, s := range scores {
		byID[s.AgentID] = s
	}
	assert.Greater(t, byID["1:1"].TrustScore, byID["1:2"].TrustScore)
	assert.Equal(t, 2, byID["1:1"].InDegree)
	assert.Equal(t, 1, byID["1:2"].InDegree)
}

func TestRankOutDegreeSplitsWalletInfluence(t *testing.T) {
	// One wallet endorsing two agents contributes half its weight to each.
	scores := Rank([]core.TrustEdge{
		edge(walletA, "1:1", 1.0),
		edge(walletA, "1:2", 1.0),
		edge(walletB, "1:3", 1.0),
	})

	byID := map[string]core.TrustScore{}
	for _, s := range scores {
		byID[s.AgentID] = s
	}
	assert.Greater(t, byID["1:3"].TrustScore, byID["1:1"].TrustScore)
}

func TestRankNormalizesWalletCase(t *testing.T) {
	upper := "0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
	scores := Rank([]core.TrustEdge{
		edge(upper, "1:1", 1.0),
		edge(walletA, "1:2", 1.0),
	})

	// Same wallet in two cases has out-degree 2, so each agent gets half.
	byID := map[string]core.TrustScore{}
	for _, s := range scores {
		byID[s.AgentID] = s
	}
	assert.InDelta(t, byID["1:1"].RawPagerank, byID["1:2"].RawPagerank, 1e-9)
}

func TestRankConverges(t *testing.T) {
	edges := []core.TrustEdge{}
	wallets := []string{walletA, walletB, walletC}
	agents := []string{"1:1", "1:2", "1:3", "1:4", "1:5"}
	for i, w := range wallets {
		for j, a := range agents {
			if (i+j)%2 == 0 {
				edges = append(edges, edge(w, a, 0.2+0.1*float64(j)))
			}
		}
	}

	scores := Rank(edges)
	require.NotEmpty(t, scores)
	for _, s := range scores {
		assert.Less(t, s.Iteration, MaxIterations, "should converge well before the cap")
	}
}
