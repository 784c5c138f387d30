// Package trustgraph builds the wallet->agent trust graph from feedback and
// ranks agents with a weighted PageRank.
package trustgraph

import (
	"context"
	"errors"
	"log"
	"math"
	"time"

	"github.com/agentindex/gateway/internal/core"
	"github.com/agentindex/gateway/internal/database"
)

// PageRank parameters.
const (
	Damping       = 0.85
	Epsilon       = 1e-4
	MaxIterations = 100
)

// ErrRebuildInProgress is returned when another rebuild holds the computing
// state; the caller decides whether to retry or report 409.
var ErrRebuildInProgress = errors.New("trust graph rebuild already in progress")

// Service runs trust graph rebuilds. Single writer: the persisted state row
// serializes concurrent callers.
type Service struct {
	store  *database.Store
	logger *log.Logger
}

func NewService(store *database.Store) *Service {
	return &Service{
		store:  store,
		logger: log.New(log.Writer(), "[TRUSTGRAPH] ", log.LstdFlags),
	}
}

// EdgeWeight maps a 0-100 feedback score onto [0.2, 1.0].
// Scores arrive on the attestation 1-5 scale before conversion, so the
// formula is expressed over that scale.
func EdgeWeight(score int) float64 {
	rating := scoreToRating(score)
	return 0.2 + ((rating-1)/4)*0.8
}

// scoreToRating inverts the 0-100 projection back to the 1-5 rating.
func scoreToRating(score int) float64 {
	switch {
	case score <= 0:
		return 1
	case score <= 25:
		return 2
	case score <= 50:
		return 3
	case score <= 75:
		return 4
	default:
		return 5
	}
}

// Rebuild executes both phases: edge build from all feedback, then PageRank
// over the resulting bipartite graph. The state row moves
// idle -> computing -> completed|failed.
func (s *Service) Rebuild(ctx context.Context) error {
	ok, err := s.store.BeginGraphRebuild(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return ErrRebuildInProgress
	}

	rebuildErr := s.rebuild(ctx)
	if err := s.store.FinishGraphRebuild(ctx, rebuildErr); err != nil {
		s.logger.Printf("record rebuild state: %v", err)
	}
	return rebuildErr
}

func (s *Service) rebuild(ctx context.Context) error {
	start := time.Now()

	// Phase 1: edges. Max-merge on (from, to) happens in the store.
	var edgeCount int
	err := s.store.IterateAllFeedback(ctx, func(f core.Feedback) error {
		edgeCount++
		return s.store.UpsertTrustEdge(ctx, &core.TrustEdge{
			FromWallet: f.Submitter,
			ToAgentID:  f.AgentID,
			Weight:     EdgeWeight(f.Score),
			FeedbackID: f.ID,
		})
	})
	if err != nil {
		return err
	}

	// Phase 2: rank.
	edges, err := s.store.GetAllTrustEdges(ctx)
	if err != nil {
		return err
	}

	scores := Rank(edges)
	if err := s.store.ReplaceTrustScores(ctx, scores); err != nil {
		return err
	}

	s.logger.Printf("rebuild done: %d feedback rows, %d edges, %d agents ranked in %s",
		edgeCount, len(edges), len(scores), time.Since(start).Round(time.Millisecond))
	return nil
}

// Rank runs weighted PageRank over the wallet->agent bipartite graph.
// Agents start at 1/n, wallets are fixed sources at 1.0:
//
//	score'(a) = (1-d)/n + d * sum over edges w->a of walletScore(w)*weight/outDegree(w)
//
// iterated until the max per-agent delta drops under epsilon or the
// iteration cap. Trust scores are the raw ranks scaled so the best agent
// lands on 100.
func Rank(edges []core.TrustEdge) []core.TrustScore {
	if len(edges) == 0 {
		return nil
	}

	type inbound struct {
		wallet string
		weight float64
	}

	agents := map[string][]inbound{}
	outDegree := map[string]int{}
	inDegree := map[string]int{}
	for _, e := range edges {
		wallet := core.NormalizeWallet(e.FromWallet)
		agents[e.ToAgentID] = append(agents[e.ToAgentID], inbound{wallet: wallet, weight: e.Weight})
		outDegree[wallet]++
		inDegree[e.ToAgentID]++
	}

	n := float64(len(agents))
	rank := make(map[string]float64, len(agents))
	for id := range agents {
		rank[id] = 1 / n
	}

	iterations := 0
	for ; iterations < MaxIterations; iterations++ {
		next := make(map[string]float64, len(agents))
		var maxDelta float64
		for id, in := range agents {
			sum := 0.0
			for _, e := range in {
				sum += 1.0 * e.weight / float64(outDegree[e.wallet])
			}
			next[id] = (1-Damping)/n + Damping*sum
			if d := math.Abs(next[id] - rank[id]); d > maxDelta {
				maxDelta = d
			}
		}
		rank = next
		if maxDelta < Epsilon {
			iterations++
			break
		}
	}

	var maxRank float64
	for _, r := range rank {
		if r > maxRank {
			maxRank = r
		}
	}

	now := time.Now().UTC()
	out := make([]core.TrustScore, 0, len(rank))
	for id, r := range rank {
		trust := 0.0
		if maxRank > 0 {
			trust = r / maxRank * 100
		}
		out = append(out, core.TrustScore{
			AgentID:     id,
			RawPagerank: r,
			TrustScore:  core.Round2(trust),
			InDegree:    inDegree[id],
			Iteration:   iterations,
			ComputedAt:  now,
		})
	}
	return out
}

// State reports the current rebuild status.
func (s *Service) State(ctx context.Context) (*database.GraphState, error) {
	return s.store.GetGraphState(ctx)
}

// TopTrusted returns the highest-ranked agents.
func (s *Service) TopTrusted(ctx context.Context, limit int) ([]core.TrustScore, error) {
	return s.store.GetTopTrusted(ctx, limit)
}
