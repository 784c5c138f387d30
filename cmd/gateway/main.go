package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/agentindex/gateway/internal/api"
	"github.com/agentindex/gateway/internal/cache"
	"github.com/agentindex/gateway/internal/chain"
	"github.com/agentindex/gateway/internal/circuitbreaker"
	"github.com/agentindex/gateway/internal/classify"
	"github.com/agentindex/gateway/internal/config"
	"github.com/agentindex/gateway/internal/database"
	"github.com/agentindex/gateway/internal/embed"
	"github.com/agentindex/gateway/internal/enrichment"
	"github.com/agentindex/gateway/internal/events"
	"github.com/agentindex/gateway/internal/ipfs"
	"github.com/agentindex/gateway/internal/mcp"
	"github.com/agentindex/gateway/internal/metrics"
	"github.com/agentindex/gateway/internal/oauth"
	"github.com/agentindex/gateway/internal/queue"
	"github.com/agentindex/gateway/internal/reputation"
	"github.com/agentindex/gateway/internal/search"
	"github.com/agentindex/gateway/internal/trustgraph"
	"github.com/agentindex/gateway/internal/vectordb"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	store, err := database.Open(cfg.Postgres)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer store.Close()

	cacheSvc, err := cache.New(cfg.Redis)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	defer cacheSvc.Close()

	// External collaborators.
	index := vectordb.NewClient(cfg.Vector)
	registry := chain.NewHTTPRegistry(cfg.Chain)
	embedder := embed.NewHTTPEmbedder(cfg.Embedder)
	ipfsGateway := ipfs.NewGateway(cfg.IPFS)
	breakers := circuitbreaker.NewGatewayBreakers()

	var classQueue queue.ClassificationQueue = queue.NopQueue{}
	if cfg.Queue.URL != "" {
		classQueue = queue.NewHTTPQueue(cfg.Queue)
	}

	// Core subsystems.
	enricher := enrichment.NewEnricher(store, cacheSvc, ipfsGateway, classQueue, breakers)
	engine := search.NewEngine(index, registry, embedder, enricher, store, breakers)
	repService := reputation.NewService(store)
	trustService := trustgraph.NewService(store)

	bus := events.NewRedisBus(cacheSvc.Client(), "agentindex:events")
	defer bus.Close()

	oauthServer := oauth.NewServer(store, cfg.OAuth)
	mcpServer := mcp.NewServer(engine, registry, cacheSvc, oauthServer, cfg.Server.Version)
	m := metrics.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Background loops: token cleanup, classification worker, breaker gauges.
	go oauthServer.RunCleanup(ctx, time.Hour)

	classifier := classify.NewHTTPClassifier(cfg.Classifier)
	worker := classify.NewWorker(store, cacheSvc, registry, classifier, breakers, bus)
	go worker.Run(ctx)

	go reportBreakerStates(ctx, m, breakers)

	server := api.NewServer(api.Deps{
		Config:     cfg,
		Engine:     engine,
		Enricher:   enricher,
		Chain:      registry,
		Cache:      cacheSvc,
		Store:      store,
		Reputation: repService,
		TrustGraph: trustService,
		Bus:        bus.Bus,
		Emitter:    bus,
		OAuth:      oauthServer,
		MCP:        mcpServer,
		Metrics:    m,
		Breakers:   breakers,
	})

	if err := server.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server: %v", err)
	}
}

// reportBreakerStates mirrors breaker states into the gauge every 15s.
func reportBreakerStates(ctx context.Context, m *metrics.Metrics, b *circuitbreaker.GatewayBreakers) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.SetBreakerState("vector-index", int(b.VectorIndex.State()))
			m.SetBreakerState("chain-sdk", int(b.ChainSDK.State()))
			m.SetBreakerState("embedder", int(b.Embedder.State()))
			m.SetBreakerState("classifier", int(b.Classifier.State()))
			m.SetBreakerState("ipfs", int(b.IPFS.State()))
		}
	}
}
