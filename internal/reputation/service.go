// Package reputation aggregates feedback into per-agent reputation rows.
package reputation

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/agentindex/gateway/internal/apierror"
	"github.com/agentindex/gateway/internal/core"
	"github.com/agentindex/gateway/internal/database"
)

// Service owns feedback ingestion and the reputation aggregate.
type Service struct {
	store  *database.Store
	logger *log.Logger
}

func NewService(store *database.Store) *Service {
	return &Service{
		store:  store,
		logger: log.New(log.Writer(), "[REPUTATION] ", log.LstdFlags),
	}
}

// AddFeedback validates and appends one feedback row, recalculates the
// agent's aggregate, and returns the new feedback id. Attestation dedup runs
// first: a repeated easUid is rejected before anything is written.
func (s *Service) AddFeedback(ctx context.Context, f *core.Feedback) (int64, error) {
	if f.Score < 0 || f.Score > 100 {
		return 0, apierror.Validation("score must be between 0 and 100")
	}
	if !core.ValidWallet(f.Submitter) {
		return 0, apierror.Validation("submitter must be a wallet address")
	}
	if _, err := core.ParseAgentID(f.AgentID); err != nil {
		return 0, apierror.Validation(err.Error())
	}

	if f.EASUID != "" {
		exists, err := s.store.FeedbackExistsByEASUID(ctx, f.EASUID)
		if err != nil {
			return 0, apierror.Internal(err)
		}
		if exists {
			return 0, apierror.BadRequest("attestation already recorded")
		}
	}

	if f.SubmittedAt.IsZero() {
		f.SubmittedAt = time.Now().UTC()
	}

	id, err := s.store.InsertFeedback(ctx, f)
	if err != nil {
		return 0, apierror.Internal(err)
	}

	if err := s.Recalculate(ctx, f.AgentID); err != nil {
		// The row is already in; the aggregate catches up on the next write.
		s.logger.Printf("recalculate after feedback %d: %v", id, err)
	}
	return id, nil
}

// Recalculate rebuilds the aggregate row for one agent from all of its
// feedback: count, mean to 2 decimals, and the low/medium/high buckets
// (low <=33, medium (33,66], high (66,100]).
func (s *Service) Recalculate(ctx context.Context, agentID string) error {
	feedback, err := s.store.GetAllFeedback(ctx, agentID)
	if err != nil {
		return fmt.Errorf("recalculate %s: %w", agentID, err)
	}

	r := Aggregate(agentID, feedback)
	if err := s.store.UpsertReputation(ctx, r); err != nil {
		return fmt.Errorf("recalculate %s: %w", agentID, err)
	}
	return nil
}

// Aggregate folds feedback rows into a Reputation value.
func Aggregate(agentID string, feedback []core.Feedback) *core.Reputation {
	r := &core.Reputation{
		AgentID:          agentID,
		FeedbackCount:    len(feedback),
		LastCalculatedAt: time.Now().UTC(),
	}

	var sum float64
	for _, f := range feedback {
		sum += float64(f.Score)
		switch {
		case f.Score <= 33:
			r.LowCount++
		case f.Score <= 66:
			r.MediumCount++
		default:
			r.HighCount++
		}
	}
	if r.FeedbackCount > 0 {
		r.AverageScore = core.Round2(sum / float64(r.FeedbackCount))
	}
	return r
}

// Get returns the aggregate for one agent; nil when no feedback exists yet.
func (s *Service) Get(ctx context.Context, agentID string) (*core.Reputation, error) {
	return s.store.GetReputation(ctx, agentID)
}

// Feedback returns the most recent feedback rows for an agent.
func (s *Service) Feedback(ctx context.Context, agentID string, limit int) ([]core.Feedback, error) {
	return s.store.GetFeedback(ctx, agentID, limit)
}
