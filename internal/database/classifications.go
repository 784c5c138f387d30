package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/agentindex/gateway/internal/core"
)

// GetClassification returns the classification row for one agent, or nil.
func (s *Store) GetClassification(ctx context.Context, agentID string) (*core.Classification, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT agent_id, skills, domains, confidence, model_version, classified_at, updated_at
		FROM classifications WHERE agent_id = $1`, agentID)

	c, err := scanClassification(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get classification: %w", err)
	}
	return c, nil
}

// GetClassificationsBatch returns classifications keyed by agent id.
// Missing ids are simply absent. Ids are chunked to respect the store's
// bound-parameter limit.
func (s *Store) GetClassificationsBatch(ctx context.Context, agentIDs []string) (map[string]*core.Classification, error) {
	out := make(map[string]*core.Classification, len(agentIDs))

	for _, chunk := range chunkIDs(agentIDs) {
		query := fmt.Sprintf(`
			SELECT agent_id, skills, domains, confidence, model_version, classified_at, updated_at
			FROM classifications WHERE agent_id IN (%s)`, placeholders(1, len(chunk)))

		rows, err := s.db.QueryContext(ctx, query, idsToArgs(chunk)...)
		if err != nil {
			return nil, fmt.Errorf("batch classifications: %w", err)
		}
		for rows.Next() {
			c, err := scanClassification(rows)
			if err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan classification: %w", err)
			}
			out[c.AgentID] = c
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}
	return out, nil
}

// UpsertClassification atomically replaces the row for the agent.
func (s *Store) UpsertClassification(ctx context.Context, c *core.Classification) error {
	skills, err := json.Marshal(c.Skills)
	if err != nil {
		return fmt.Errorf("marshal skills: %w", err)
	}
	domains, err := json.Marshal(c.Domains)
	if err != nil {
		return fmt.Errorf("marshal domains: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO classifications (agent_id, skills, domains, confidence, model_version, classified_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (agent_id) DO UPDATE SET
			skills = EXCLUDED.skills,
			domains = EXCLUDED.domains,
			confidence = EXCLUDED.confidence,
			model_version = EXCLUDED.model_version,
			classified_at = EXCLUDED.classified_at,
			updated_at = NOW()`,
		c.AgentID, skills, domains, c.Confidence, c.ModelVersion, c.ClassifiedAt)
	if err != nil {
		return fmt.Errorf("upsert classification: %w", err)
	}
	return nil
}

// EnqueueClassificationsBatch inserts pending jobs only for agents that do
// not already have an active (pending or processing) job. Returns the ids
// actually enqueued; callers hand those to the external queue. Partial
// enqueue surfaces as the returned subset, no rollback.
func (s *Store) EnqueueClassificationsBatch(ctx context.Context, agentIDs []string) ([]string, error) {
	var enqueued []string
	for _, agentID := range agentIDs {
		var inserted string
		err := s.db.QueryRowContext(ctx, `
			INSERT INTO classification_jobs (id, agent_id, status, attempts, created_at)
			SELECT $1, $2, 'pending', 0, NOW()
			WHERE NOT EXISTS (
				SELECT 1 FROM classification_jobs
				WHERE agent_id = $2 AND status IN ('pending', 'processing')
			)
			RETURNING agent_id`, uuid.NewString(), agentID).Scan(&inserted)
		if err == sql.ErrNoRows {
			continue // active job already present
		}
		if err != nil {
			return enqueued, fmt.Errorf("enqueue classification %s: %w", agentID, err)
		}
		enqueued = append(enqueued, inserted)
	}
	return enqueued, nil
}

// ClaimClassificationJob moves one pending job to processing and returns it.
// Used by the worker; nil when no pending work exists.
func (s *Store) ClaimClassificationJob(ctx context.Context) (*core.ClassificationJob, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE classification_jobs SET status = 'processing', attempts = attempts + 1
		WHERE id = (
			SELECT id FROM classification_jobs
			WHERE status = 'pending'
			ORDER BY created_at
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING id, agent_id, status, attempts, COALESCE(error, ''), created_at, processed_at`)

	var job core.ClassificationJob
	err := row.Scan(&job.ID, &job.AgentID, &job.Status, &job.Attempts, &job.Error, &job.CreatedAt, &job.ProcessedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim classification job: %w", err)
	}
	return &job, nil
}

// CompleteClassificationJob records terminal state and processed_at.
func (s *Store) CompleteClassificationJob(ctx context.Context, jobID string, jobErr error) error {
	status := core.JobCompleted
	msg := ""
	if jobErr != nil {
		status = core.JobFailed
		msg = jobErr.Error()
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE classification_jobs
		SET status = $2, error = NULLIF($3, ''), processed_at = NOW()
		WHERE id = $1`, jobID, status, msg)
	if err != nil {
		return fmt.Errorf("complete classification job: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanClassification(row rowScanner) (*core.Classification, error) {
	var c core.Classification
	var skills, domains []byte
	if err := row.Scan(&c.AgentID, &skills, &domains, &c.Confidence, &c.ModelVersion, &c.ClassifiedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(skills, &c.Skills); err != nil {
		return nil, fmt.Errorf("decode skills: %w", err)
	}
	if err := json.Unmarshal(domains, &c.Domains); err != nil {
		return nil, fmt.Errorf("decode domains: %w", err)
	}
	return &c, nil
}
