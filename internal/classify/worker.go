package classify

import (
	"context"
	"log"
	"time"

	"github.com/agentindex/gateway/internal/cache"
	"github.com/agentindex/gateway/internal/chain"
	"github.com/agentindex/gateway/internal/circuitbreaker"
	"github.com/agentindex/gateway/internal/core"
	"github.com/agentindex/gateway/internal/database"
	"github.com/agentindex/gateway/internal/events"
)

// pollInterval is the idle sleep between claim attempts when the job table
// is empty.
const pollInterval = 5 * time.Second

// Worker drains the classification job table: claim, classify, upsert,
// complete. One worker per process is enough; the claim query serializes
// pickup across replicas.
type Worker struct {
	store      *database.Store
	cache      *cache.Service
	chain      chain.Registry
	classifier Classifier
	breakers   *circuitbreaker.GatewayBreakers
	emitter    events.Emitter
	logger     *log.Logger
}

func NewWorker(store *database.Store, c *cache.Service, registry chain.Registry,
	classifier Classifier, breakers *circuitbreaker.GatewayBreakers, emitter events.Emitter) *Worker {
	return &Worker{
		store:      store,
		cache:      c,
		chain:      registry,
		classifier: classifier,
		breakers:   breakers,
		emitter:    emitter,
		logger:     log.New(log.Writer(), "[CLASSIFY-WORKER] ", log.LstdFlags),
	}
}

// Run processes jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		job, err := w.store.ClaimClassificationJob(ctx)
		if err != nil {
			w.logger.Printf("claim: %v", err)
		}
		if job == nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(pollInterval):
			}
			continue
		}

		jobErr := w.process(ctx, job)
		if err := w.store.CompleteClassificationJob(ctx, job.ID, jobErr); err != nil {
			w.logger.Printf("complete job %s: %v", job.ID, err)
		}
		if jobErr != nil {
			w.logger.Printf("job %s (%s) failed: %v", job.ID, job.AgentID, jobErr)
		}

		if ctx.Err() != nil {
			return
		}
	}
}

func (w *Worker) process(ctx context.Context, job *core.ClassificationJob) error {
	id, err := core.ParseAgentID(job.AgentID)
	if err != nil {
		return err
	}

	var detail *core.AgentDetail
	err = w.breakers.ChainSDK.Execute(ctx, func(ctx context.Context) error {
		var err error
		detail, err = w.chain.GetAgent(ctx, id.ChainID, id.TokenID)
		return err
	})
	if err != nil {
		return err
	}
	if detail == nil {
		// Token gone from the registry; nothing to classify.
		return nil
	}

	var result *Result
	err = w.breakers.Classifier.Execute(ctx, func(ctx context.Context) error {
		var err error
		result, err = w.classifier.Classify(ctx, detail)
		return err
	})
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	c := &core.Classification{
		AgentID:      job.AgentID,
		Skills:       result.Skills,
		Domains:      result.Domains,
		Confidence:   core.OverallConfidence(result.Skills, result.Domains),
		ModelVersion: result.Model,
		ClassifiedAt: now,
		UpdatedAt:    now,
	}
	if err := w.store.UpsertClassification(ctx, c); err != nil {
		return err
	}

	if err := w.cache.Delete(ctx, cache.KeyClassification(job.AgentID), cache.KeyAgentDetail(job.AgentID)); err != nil {
		w.logger.Printf("classification cache invalidation: %v", err)
	}
	w.emitter.Emit(events.TypeAgentClassified, "/classify-worker", job.AgentID, map[string]interface{}{
		"agentId":    job.AgentID,
		"skills":     len(c.Skills),
		"domains":    len(c.Domains),
		"confidence": c.Confidence,
	})
	return nil
}
