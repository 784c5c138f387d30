package api

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/agentindex/gateway/internal/apierror"
	"github.com/agentindex/gateway/internal/cache"
	"github.com/agentindex/gateway/internal/chain"
	"github.com/agentindex/gateway/internal/circuitbreaker"
	"github.com/agentindex/gateway/internal/config"
	"github.com/agentindex/gateway/internal/database"
	"github.com/agentindex/gateway/internal/enrichment"
	"github.com/agentindex/gateway/internal/events"
	"github.com/agentindex/gateway/internal/mcp"
	"github.com/agentindex/gateway/internal/metrics"
	"github.com/agentindex/gateway/internal/middleware"
	"github.com/agentindex/gateway/internal/oauth"
	"github.com/agentindex/gateway/internal/reputation"
	"github.com/agentindex/gateway/internal/search"
	"github.com/agentindex/gateway/internal/trustgraph"
)

// Deps collects everything the edge needs wired in.
type Deps struct {
	Config     *config.Config
	Engine     *search.Engine
	Enricher   *enrichment.Enricher
	Chain      chain.Registry
	Cache      *cache.Service
	Store      *database.Store
	Reputation *reputation.Service
	TrustGraph *trustgraph.Service
	Bus        *events.Bus
	Emitter    events.Emitter
	OAuth      *oauth.Server
	MCP        *mcp.Server
	Metrics    *metrics.Metrics
	Breakers   *circuitbreaker.GatewayBreakers
}

// Server is the HTTP edge tying every subsystem to the route table.
type Server struct {
	Deps

	limiter *middleware.RateLimiter
	logger  *log.Logger
	http    *http.Server
}

func NewServer(deps Deps) *Server {
	return &Server{
		Deps:    deps,
		limiter: middleware.NewRateLimiter(deps.Cache, deps.Config.RateLimit),
		logger:  log.New(log.Writer(), "[API] ", log.LstdFlags),
	}
}

// Router assembles the middleware chain and the full route table.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()

	r.Use(
		middleware.RequestID,
		middleware.SecurityHeaders,
		middleware.CORS(s.Config.CORS),
		middleware.BodyLimit(s.Config.Server.MaxBodyBytes),
		middleware.Auth(s.Config.Server.APIKeys),
		s.instrument,
	)

	// --- Agents ---

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.Use(s.limiter.Limit)

	v1.HandleFunc("/agents", s.handleListAgents).Methods(http.MethodGet)
	v1.HandleFunc("/search", s.handleSearch).Methods(http.MethodPost)
	v1.HandleFunc("/search/stream", s.handleSearchStream).Methods(http.MethodPost)
	v1.HandleFunc("/agents/{id}", s.handleGetAgent).Methods(http.MethodGet)
	v1.HandleFunc("/agents/{id}/similar", s.handleSimilar).Methods(http.MethodGet)
	v1.HandleFunc("/agents/{id}/complementary", s.handleComplementary).Methods(http.MethodGet)
	v1.HandleFunc("/agents/{id}/compatible", s.handleCompatible).Methods(http.MethodGet)

	// --- Reputation & validations ---

	v1.HandleFunc("/agents/{id}/reputation", s.handleReputation).Methods(http.MethodGet)
	v1.HandleFunc("/agents/{id}/reputation/feedback", s.handleFeedbackList).Methods(http.MethodGet)
	v1.Handle("/agents/{id}/reputation/feedback",
		s.limiter.LimitMutations(http.HandlerFunc(s.handleFeedbackSubmit))).Methods(http.MethodPost)
	v1.HandleFunc("/agents/{id}/validations", s.handleValidations).Methods(http.MethodGet)
	v1.HandleFunc("/agents/{id}/validations/summary", s.handleValidationSummary).Methods(http.MethodGet)

	// --- Trust graph ---

	v1.HandleFunc("/trust-graph", s.handleTrustGraphState).Methods(http.MethodGet)
	v1.HandleFunc("/trust-graph/top", s.handleTopTrusted).Methods(http.MethodGet)
	v1.Handle("/trust-graph/rebuild",
		middleware.RequireAPIKey(http.HandlerFunc(s.handleTrustGraphRebuild))).Methods(http.MethodPost)

	// --- Registry metadata ---

	v1.HandleFunc("/chains/stats", s.handleChainStats).Methods(http.MethodGet)
	v1.HandleFunc("/taxonomy/skills", s.handleSkillsTaxonomy).Methods(http.MethodGet)
	v1.HandleFunc("/taxonomy/domains", s.handleDomainsTaxonomy).Methods(http.MethodGet)
	v1.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	v1.HandleFunc("/events", s.handleEvents).Methods(http.MethodGet)

	// --- MCP ---

	r.HandleFunc("/mcp", s.MCP.HandleRPC).Methods(http.MethodPost)
	r.HandleFunc("/mcp", s.MCP.HandleDocs).Methods(http.MethodGet)
	r.HandleFunc("/mcp", s.MCP.HandleDelete).Methods(http.MethodDelete)
	r.HandleFunc("/sse", s.MCP.HandleSSE).Methods(http.MethodGet)
	r.HandleFunc("/mcp/schema.json", s.MCP.HandleSchema).Methods(http.MethodGet)
	r.HandleFunc("/mcp/docs", s.MCP.HandleDocs).Methods(http.MethodGet)

	// --- OAuth 2.1 ---

	r.HandleFunc("/oauth/register", s.OAuth.HandleRegister).Methods(http.MethodPost)
	r.HandleFunc("/oauth/authorize", s.OAuth.HandleAuthorize).Methods(http.MethodGet)
	r.HandleFunc("/oauth/token", s.OAuth.HandleToken).Methods(http.MethodPost)
	r.HandleFunc("/.well-known/oauth-authorization-server", s.OAuth.HandleMetadata).Methods(http.MethodGet)
	r.HandleFunc("/.well-known/oauth-protected-resource", s.OAuth.HandleProtectedResourceMetadata).Methods(http.MethodGet)

	// --- Operations ---

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	r.NotFoundHandler = s.applyCommon(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, apierror.NotFound("route"))
	}))

	return r
}

// instrument records per-route request metrics.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		route := r.URL.Path
		if current := mux.CurrentRoute(r); current != nil {
			if tmpl, err := current.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}
		s.Metrics.RecordRequest(route, r.Method, strconv.Itoa(sw.status), time.Since(start).Seconds())
	})
}

// applyCommon wraps a handler with the same outer middleware mux.Use applies,
// for handlers mounted outside the router (the 404 handler).
func (s *Server) applyCommon(h http.Handler) http.Handler {
	for _, mw := range []mux.MiddlewareFunc{
		s.instrument,
		middleware.Auth(s.Config.Server.APIKeys),
		middleware.BodyLimit(s.Config.Server.MaxBodyBytes),
		middleware.CORS(s.Config.CORS),
		middleware.SecurityHeaders,
		middleware.RequestID,
	} {
		h = mw(h)
	}
	return h
}

// statusWriter captures the response status for metrics. Flush passes
// through so SSE handlers keep streaming.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Start runs the server until ctx is cancelled, then drains for up to 15s.
func (s *Server) Start(ctx context.Context) error {
	s.http = &http.Server{
		Addr:              ":" + s.Config.Server.Port,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Printf("listening on %s", s.http.Addr)
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Printf("drained")
	return nil
}
