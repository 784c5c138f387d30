package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/agentindex/gateway/internal/core"
)

// UpsertTrustEdge writes a wallet->agent edge; weight max-merges on conflict.
func (s *Store) UpsertTrustEdge(ctx context.Context, e *core.TrustEdge) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trust_edges (from_wallet, to_agent_id, weight, feedback_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (from_wallet, to_agent_id) DO UPDATE SET
			weight = GREATEST(trust_edges.weight, EXCLUDED.weight),
			feedback_id = CASE
				WHEN EXCLUDED.weight > trust_edges.weight THEN EXCLUDED.feedback_id
				ELSE trust_edges.feedback_id
			END`,
		core.NormalizeWallet(e.FromWallet), e.ToAgentID, e.Weight, e.FeedbackID)
	if err != nil {
		return fmt.Errorf("upsert trust edge: %w", err)
	}
	return nil
}

// GetAllTrustEdges loads the full bipartite graph for a PageRank run.
func (s *Store) GetAllTrustEdges(ctx context.Context) ([]core.TrustEdge, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT from_wallet, to_agent_id, weight, feedback_id FROM trust_edges`)
	if err != nil {
		return nil, fmt.Errorf("get trust edges: %w", err)
	}
	defer rows.Close()

	var out []core.TrustEdge
	for rows.Next() {
		var e core.TrustEdge
		if err := rows.Scan(&e.FromWallet, &e.ToAgentID, &e.Weight, &e.FeedbackID); err != nil {
			return nil, fmt.Errorf("scan trust edge: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// GetTrustScore returns the PageRank result for one agent, or nil.
func (s *Store) GetTrustScore(ctx context.Context, agentID string) (*core.TrustScore, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT agent_id, raw_pagerank, trust_score, in_degree, iteration, computed_at
		FROM trust_scores WHERE agent_id = $1`, agentID)

	var t core.TrustScore
	err := row.Scan(&t.AgentID, &t.RawPagerank, &t.TrustScore, &t.InDegree, &t.Iteration, &t.ComputedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get trust score: %w", err)
	}
	return &t, nil
}

// GetTrustScoresBatch returns trust scores keyed by agent id.
func (s *Store) GetTrustScoresBatch(ctx context.Context, agentIDs []string) (map[string]*core.TrustScore, error) {
	out := make(map[string]*core.TrustScore, len(agentIDs))

	for _, chunk := range chunkIDs(agentIDs) {
		query := fmt.Sprintf(`
			SELECT agent_id, raw_pagerank, trust_score, in_degree, iteration, computed_at
			FROM trust_scores WHERE agent_id IN (%s)`, placeholders(1, len(chunk)))

		rows, err := s.db.QueryContext(ctx, query, idsToArgs(chunk)...)
		if err != nil {
			return nil, fmt.Errorf("batch trust scores: %w", err)
		}
		for rows.Next() {
			var t core.TrustScore
			if err := rows.Scan(&t.AgentID, &t.RawPagerank, &t.TrustScore, &t.InDegree, &t.Iteration, &t.ComputedAt); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan trust score: %w", err)
			}
			out[t.AgentID] = &t
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}
	return out, nil
}

// GetTopTrusted returns the highest-ranked agents.
func (s *Store) GetTopTrusted(ctx context.Context, limit int) ([]core.TrustScore, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT agent_id, raw_pagerank, trust_score, in_degree, iteration, computed_at
		FROM trust_scores ORDER BY trust_score DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("top trusted: %w", err)
	}
	defer rows.Close()

	var out []core.TrustScore
	for rows.Next() {
		var t core.TrustScore
		if err := rows.Scan(&t.AgentID, &t.RawPagerank, &t.TrustScore, &t.InDegree, &t.Iteration, &t.ComputedAt); err != nil {
			return nil, fmt.Errorf("scan trust score: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ReplaceTrustScores persists a full PageRank run.
func (s *Store) ReplaceTrustScores(ctx context.Context, scores []core.TrustScore) error {
	for _, t := range scores {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO trust_scores (agent_id, raw_pagerank, trust_score, in_degree, iteration, computed_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (agent_id) DO UPDATE SET
				raw_pagerank = EXCLUDED.raw_pagerank,
				trust_score = EXCLUDED.trust_score,
				in_degree = EXCLUDED.in_degree,
				iteration = EXCLUDED.iteration,
				computed_at = EXCLUDED.computed_at`,
			t.AgentID, t.RawPagerank, t.TrustScore, t.InDegree, t.Iteration, t.ComputedAt)
		if err != nil {
			return fmt.Errorf("replace trust score %s: %w", t.AgentID, err)
		}
	}
	return nil
}

// Trust graph state machine: idle -> computing -> completed|failed -> idle.

// GraphState is the singleton trust_graph_state row.
type GraphState struct {
	Status    string
	Error     string
	UpdatedAt time.Time
}

// GetGraphState reads the rebuild state; defaults to idle when unset.
func (s *Store) GetGraphState(ctx context.Context) (*GraphState, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT status, COALESCE(error, ''), updated_at FROM trust_graph_state WHERE id = 1`)

	var gs GraphState
	err := row.Scan(&gs.Status, &gs.Error, &gs.UpdatedAt)
	if err == sql.ErrNoRows {
		return &GraphState{Status: "idle"}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get graph state: %w", err)
	}
	return &gs, nil
}

// BeginGraphRebuild transitions idle|completed|failed -> computing.
// Returns false when another rebuild holds the computing state.
func (s *Store) BeginGraphRebuild(ctx context.Context) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO trust_graph_state (id, status, error, updated_at)
		VALUES (1, 'computing', NULL, NOW())
		ON CONFLICT (id) DO UPDATE SET status = 'computing', error = NULL, updated_at = NOW()
		WHERE trust_graph_state.status <> 'computing'`)
	if err != nil {
		return false, fmt.Errorf("begin graph rebuild: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// FinishGraphRebuild records the terminal state; a later successful run
// clears any stored error.
func (s *Store) FinishGraphRebuild(ctx context.Context, rebuildErr error) error {
	status := "completed"
	msg := ""
	if rebuildErr != nil {
		status = "failed"
		msg = rebuildErr.Error()
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE trust_graph_state SET status = $1, error = NULLIF($2, ''), updated_at = NOW() WHERE id = 1`,
		status, msg)
	if err != nil {
		return fmt.Errorf("finish graph rebuild: %w", err)
	}
	return nil
}
