package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/agentindex/gateway/internal/apierror"
	"github.com/agentindex/gateway/internal/cache"
	"github.com/agentindex/gateway/internal/core"
	"github.com/agentindex/gateway/internal/taxonomy"
)

// handleChainStats serves GET /chains/stats with a 900s cache.
func (s *Server) handleChainStats(w http.ResponseWriter, r *http.Request) {
	key := cache.KeyChainStats()
	var stats []core.ChainStat
	if cerr := s.Cache.GetJSON(r.Context(), key, &stats); cerr == nil {
		s.Metrics.RecordCache("chains:stats", true)
		writeData(w, http.StatusOK, stats, nil)
		return
	}
	s.Metrics.RecordCache("chains:stats", false)

	err := s.Breakers.ChainSDK.Execute(r.Context(), func(ctx context.Context) error {
		var err error
		stats, err = s.Chain.ChainStats(ctx)
		return err
	})
	if err != nil {
		writeError(w, r, apierror.ServiceUnavailable("registry", err))
		return
	}

	if err := s.Cache.SetJSON(r.Context(), key, stats, cache.TTLChainStats); err != nil {
		s.logger.Printf("chain stats cache write: %v", err)
	}
	writeData(w, http.StatusOK, stats, nil)
}

func (s *Server) handleSkillsTaxonomy(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, map[string]interface{}{"skills": taxonomy.Skills()}, nil)
}

func (s *Server) handleDomainsTaxonomy(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, map[string]interface{}{"domains": taxonomy.Domains()}, nil)
}

// handleHealth reports dependency status. No envelope: monitors expect the
// flat shape.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status, services := s.Breakers.HealthStatus()

	if err := s.Store.Ping(ctx); err != nil {
		services["postgres"] = "down"
		status = "DEGRADED"
	} else {
		services["postgres"] = "up"
	}
	if err := s.Cache.Ping(ctx); err != nil {
		services["redis"] = "down"
		status = "DEGRADED"
	} else {
		services["redis"] = "up"
	}

	code := http.StatusOK
	if status != "HEALTHY" {
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":      status,
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
		"version":     s.Config.Server.Version,
		"services":    services,
		"subscribers": s.Bus.SubscriberCount(),
	})
}
