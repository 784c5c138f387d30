package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/agentindex/gateway/internal/core"
)

// InsertFeedback appends one feedback row and returns the new id.
// easUid dedup is the caller's job via FeedbackExistsByEASUID.
func (s *Store) InsertFeedback(ctx context.Context, f *core.Feedback) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO feedback (agent_id, chain_id, score, tags, context, feedback_uri, submitter, eas_uid, submitted_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7, NULLIF($8, ''), $9)
		RETURNING id`,
		f.AgentID, f.ChainID, f.Score, pq.Array(f.Tags), f.Context, f.FeedbackURI,
		core.NormalizeWallet(f.Submitter), f.EASUID, f.SubmittedAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert feedback: %w", err)
	}
	return id, nil
}

// FeedbackExistsByEASUID reports whether an attestation was already ingested.
func (s *Store) FeedbackExistsByEASUID(ctx context.Context, easUID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM feedback WHERE eas_uid = $1)`, easUID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("feedback exists: %w", err)
	}
	return exists, nil
}

// GetFeedback returns the most recent feedback for an agent, newest first.
func (s *Store) GetFeedback(ctx context.Context, agentID string, limit int) ([]core.Feedback, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, agent_id, chain_id, score, tags, COALESCE(context, ''), COALESCE(feedback_uri, ''),
		       submitter, COALESCE(eas_uid, ''), submitted_at
		FROM feedback WHERE agent_id = $1
		ORDER BY submitted_at DESC
		LIMIT $2`, agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("get feedback: %w", err)
	}
	defer rows.Close()
	return scanFeedbackRows(rows)
}

// GetAllFeedback returns every feedback row for an agent, newest first.
func (s *Store) GetAllFeedback(ctx context.Context, agentID string) ([]core.Feedback, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, agent_id, chain_id, score, tags, COALESCE(context, ''), COALESCE(feedback_uri, ''),
		       submitter, COALESCE(eas_uid, ''), submitted_at
		FROM feedback WHERE agent_id = $1
		ORDER BY submitted_at DESC`, agentID)
	if err != nil {
		return nil, fmt.Errorf("get all feedback: %w", err)
	}
	defer rows.Close()
	return scanFeedbackRows(rows)
}

// IterateAllFeedback streams every feedback row to fn; used by the trust
// graph edge build so the whole table never sits in memory at once.
func (s *Store) IterateAllFeedback(ctx context.Context, fn func(core.Feedback) error) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, agent_id, chain_id, score, tags, COALESCE(context, ''), COALESCE(feedback_uri, ''),
		       submitter, COALESCE(eas_uid, ''), submitted_at
		FROM feedback ORDER BY id`)
	if err != nil {
		return fmt.Errorf("iterate feedback: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		f, err := scanFeedback(rows)
		if err != nil {
			return err
		}
		if err := fn(f); err != nil {
			return err
		}
	}
	return rows.Err()
}

func scanFeedbackRows(rows *sql.Rows) ([]core.Feedback, error) {
	var out []core.Feedback
	for rows.Next() {
		f, err := scanFeedback(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func scanFeedback(rows *sql.Rows) (core.Feedback, error) {
	var f core.Feedback
	if err := rows.Scan(&f.ID, &f.AgentID, &f.ChainID, &f.Score, pq.Array(&f.Tags),
		&f.Context, &f.FeedbackURI, &f.Submitter, &f.EASUID, &f.SubmittedAt); err != nil {
		return f, fmt.Errorf("scan feedback: %w", err)
	}
	return f, nil
}
