package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/agentindex/gateway/internal/core"
)

// GetReputation returns the aggregated reputation for one agent, or nil.
func (s *Store) GetReputation(ctx context.Context, agentID string) (*core.Reputation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT agent_id, feedback_count, average_score, low_count, medium_count, high_count, last_calculated_at
		FROM reputation WHERE agent_id = $1`, agentID)

	var r core.Reputation
	err := row.Scan(&r.AgentID, &r.FeedbackCount, &r.AverageScore, &r.LowCount, &r.MediumCount, &r.HighCount, &r.LastCalculatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get reputation: %w", err)
	}
	return &r, nil
}

// GetReputationsBatch returns reputations keyed by agent id; missing ids absent.
func (s *Store) GetReputationsBatch(ctx context.Context, agentIDs []string) (map[string]*core.Reputation, error) {
	out := make(map[string]*core.Reputation, len(agentIDs))

	for _, chunk := range chunkIDs(agentIDs) {
		query := fmt.Sprintf(`
			SELECT agent_id, feedback_count, average_score, low_count, medium_count, high_count, last_calculated_at
			FROM reputation WHERE agent_id IN (%s)`, placeholders(1, len(chunk)))

		rows, err := s.db.QueryContext(ctx, query, idsToArgs(chunk)...)
		if err != nil {
			return nil, fmt.Errorf("batch reputations: %w", err)
		}
		for rows.Next() {
			var r core.Reputation
			if err := rows.Scan(&r.AgentID, &r.FeedbackCount, &r.AverageScore, &r.LowCount,
				&r.MediumCount, &r.HighCount, &r.LastCalculatedAt); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan reputation: %w", err)
			}
			out[r.AgentID] = &r
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}
	return out, nil
}

// UpsertReputation replaces the aggregate row for the agent.
func (s *Store) UpsertReputation(ctx context.Context, r *core.Reputation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reputation (agent_id, feedback_count, average_score, low_count, medium_count, high_count, last_calculated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (agent_id) DO UPDATE SET
			feedback_count = EXCLUDED.feedback_count,
			average_score = EXCLUDED.average_score,
			low_count = EXCLUDED.low_count,
			medium_count = EXCLUDED.medium_count,
			high_count = EXCLUDED.high_count,
			last_calculated_at = EXCLUDED.last_calculated_at`,
		r.AgentID, r.FeedbackCount, r.AverageScore, r.LowCount, r.MediumCount, r.HighCount, r.LastCalculatedAt)
	if err != nil {
		return fmt.Errorf("upsert reputation: %w", err)
	}
	return nil
}
