package enrichment

import (
	"context"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/agentindex/gateway/internal/cache"
	"github.com/agentindex/gateway/internal/circuitbreaker"
	"github.com/agentindex/gateway/internal/core"
	"github.com/agentindex/gateway/internal/database"
	"github.com/agentindex/gateway/internal/ipfs"
	"github.com/agentindex/gateway/internal/queue"
)

// maxBackgroundClassify caps how many unclassified agents one listing
// response may fan out to the queue.
const maxBackgroundClassify = 10

// Enricher attaches classifications and reputations to summaries, assembles
// agent detail, and backfills missing classifications through the queue.
type Enricher struct {
	store    *database.Store
	cache    *cache.Service
	ipfs     *ipfs.Gateway
	queue    queue.ClassificationQueue
	breakers *circuitbreaker.GatewayBreakers
	logger   *log.Logger
}

func NewEnricher(store *database.Store, c *cache.Service, gw *ipfs.Gateway,
	q queue.ClassificationQueue, breakers *circuitbreaker.GatewayBreakers) *Enricher {
	return &Enricher{
		store:    store,
		cache:    c,
		ipfs:     gw,
		queue:    q,
		breakers: breakers,
		logger:   log.New(log.Writer(), "[ENRICH] ", log.LstdFlags),
	}
}

// EnrichSummaries batch-loads classifications and reputations for the ids in
// summaries and applies them in place. Enrichment errors never fail the
// request; affected fields stay absent.
func (e *Enricher) EnrichSummaries(ctx context.Context, summaries []core.AgentSummary) []core.AgentSummary {
	if len(summaries) == 0 {
		return summaries
	}

	ids := make([]string, 0, len(summaries))
	for _, s := range summaries {
		ids = append(ids, s.ID)
	}

	var classifications map[string]*core.Classification
	var reputations map[string]*core.Reputation

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		classifications, err = e.store.GetClassificationsBatch(gctx, ids)
		return err
	})
	g.Go(func() error {
		var err error
		reputations, err = e.store.GetReputationsBatch(gctx, ids)
		return err
	})
	if err := g.Wait(); err != nil {
		e.logger.Printf("batch enrichment degraded: %v", err)
	}

	for i := range summaries {
		if c, ok := classifications[summaries[i].ID]; ok {
			ApplyClassification(&summaries[i], c)
		}
		if r, ok := reputations[summaries[i].ID]; ok {
			score := r.AverageScore
			summaries[i].ReputationScore = &score
		}
	}
	return summaries
}

// AssembleDetail fans out to the SDK record's IPFS metadata, classification,
// reputation, and trust score in parallel. Missing pieces degrade the
// response rather than failing it.
func (e *Enricher) AssembleDetail(ctx context.Context, detail *core.AgentDetail) *core.AgentDetail {
	agentID := detail.ID

	g, gctx := errgroup.WithContext(ctx)

	if detail.MetadataURI != "" && e.ipfs != nil {
		g.Go(func() error {
			var meta map[string]interface{}
			key := cache.KeyIPFSMetadata(agentID)
			if err := e.cache.GetJSON(gctx, key, &meta); err == nil {
				detail.Metadata = meta
				return nil
			}

			err := e.breakers.IPFS.Execute(gctx, func(ctx context.Context) error {
				var err error
				meta, err = e.ipfs.FetchMetadata(ctx, detail.MetadataURI)
				return err
			})
			if err != nil {
				e.logger.Printf("ipfs metadata for %s skipped: %v", agentID, err)
				return nil
			}
			detail.Metadata = meta
			if err := e.cache.SetJSON(gctx, key, meta, cache.TTLIPFSMetadata); err != nil {
				e.logger.Printf("ipfs metadata cache write: %v", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		c, err := e.store.GetClassification(gctx, agentID)
		if err != nil {
			e.logger.Printf("classification for %s skipped: %v", agentID, err)
			return nil
		}
		ApplyClassification(&detail.AgentSummary, c)
		return nil
	})

	g.Go(func() error {
		r, err := e.store.GetReputation(gctx, agentID)
		if err != nil {
			e.logger.Printf("reputation for %s skipped: %v", agentID, err)
			return nil
		}
		if r != nil {
			detail.Reputation = r
			score := r.AverageScore
			detail.ReputationScore = &score
		}
		return nil
	})

	g.Go(func() error {
		t, err := e.store.GetTrustScore(gctx, agentID)
		if err != nil {
			e.logger.Printf("trust score for %s skipped: %v", agentID, err)
			return nil
		}
		detail.TrustScore = t
		return nil
	})

	g.Wait() // goroutines swallow their own errors
	return detail
}

// QueueMissingClassifications selects up to 10 unclassified ids from the
// listing and hands them to the queue. Best-effort, not awaited by the
// request; call from a deferred goroutine with a detached context.
func (e *Enricher) QueueMissingClassifications(summaries []core.AgentSummary) {
	var missing []string
	for _, s := range summaries {
		if s.OASFSource != core.OASFSourceLLM {
			missing = append(missing, s.ID)
		}
		if len(missing) == maxBackgroundClassify {
			break
		}
	}
	if len(missing) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	enqueued, err := e.store.EnqueueClassificationsBatch(ctx, missing)
	if err != nil {
		e.logger.Printf("background enqueue: %v", err)
	}
	if len(enqueued) == 0 {
		return
	}
	if err := e.queue.Enqueue(ctx, enqueued); err != nil {
		e.logger.Printf("queue dispatch: %v", err)
	}
}
