package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/agentindex/gateway/internal/apierror"
	"github.com/agentindex/gateway/internal/cache"
	"github.com/agentindex/gateway/internal/core"
	"github.com/agentindex/gateway/internal/events"
	"github.com/agentindex/gateway/internal/search"
)

// handleListAgents serves GET /agents: cache, engine, envelope.
func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	q, err := parseListQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	key := cache.KeyAgentsList(cacheParams(q))
	var res search.Result
	if cerr := s.Cache.GetJSON(r.Context(), key, &res); cerr == nil {
		s.Metrics.RecordCache("agents:list", true)
		s.writePage(w, q, &res)
		return
	}
	s.Metrics.RecordCache("agents:list", false)

	start := time.Now()
	out, err := s.Engine.List(r.Context(), q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.Metrics.RecordSearch(out.SearchMode, time.Since(start).Seconds(), len(out.Items))

	if err := s.Cache.SetJSON(r.Context(), key, out, cache.TTLAgentsList); err != nil {
		s.logger.Printf("list cache write: %v", err)
	}
	s.writePage(w, q, out)
}

// handleSearch serves POST /search.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q, err := parseSearchBody(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	key := cache.KeySearch(cacheParams(q))
	var res search.Result
	if cerr := s.Cache.GetJSON(r.Context(), key, &res); cerr == nil {
		s.Metrics.RecordCache("search", true)
		s.writePage(w, q, &res)
		return
	}
	s.Metrics.RecordCache("search", false)

	start := time.Now()
	out, err := s.Engine.Search(r.Context(), q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.Metrics.RecordSearch(out.SearchMode, time.Since(start).Seconds(), len(out.Items))
	s.Emitter.Emit(events.TypeSearchPerformed, "/api/v1/search", "", map[string]interface{}{
		"query":      q.Text,
		"results":    len(out.Items),
		"searchMode": out.SearchMode,
	})

	if err := s.Cache.SetJSON(r.Context(), key, out, cache.TTLSearch); err != nil {
		s.logger.Printf("search cache write: %v", err)
	}
	s.writePage(w, q, out)
}

// cachedDetail is the detail cache entry; Found=false is the negative entry
// so repeated misses do not hammer the SDK.
type cachedDetail struct {
	Found bool              `json:"found"`
	Agent *core.AgentDetail `json:"agent,omitempty"`
}

// negativeDetailTTL is shorter than the positive TTL: a 404 can flip to 200
// as soon as the token is minted.
const negativeDetailTTL = 60 * time.Second

// handleGetAgent serves GET /agents/{id}: SDK fetch, parallel enrichment,
// positive and negative caching.
func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	id, err := pathAgentID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	key := cache.KeyAgentDetail(id.String())
	var cached cachedDetail
	if cerr := s.Cache.GetJSON(r.Context(), key, &cached); cerr == nil {
		s.Metrics.RecordCache("agents:detail", true)
		if !cached.Found {
			writeError(w, r, apierror.NotFound("agent"))
			return
		}
		writeData(w, http.StatusOK, cached.Agent, nil)
		return
	}
	s.Metrics.RecordCache("agents:detail", false)

	var detail *core.AgentDetail
	err = s.Breakers.ChainSDK.Execute(r.Context(), func(ctx context.Context) error {
		var err error
		detail, err = s.Chain.GetAgent(ctx, id.ChainID, id.TokenID)
		return err
	})
	if err != nil {
		writeError(w, r, apierror.ServiceUnavailable("registry", err))
		return
	}
	if detail == nil {
		if err := s.Cache.SetJSON(r.Context(), key, cachedDetail{}, negativeDetailTTL); err != nil {
			s.logger.Printf("negative detail cache write: %v", err)
		}
		writeError(w, r, apierror.NotFound("agent"))
		return
	}

	detail = s.Enricher.AssembleDetail(r.Context(), detail)
	s.Emitter.Emit(events.TypeAgentDetailFetched, "/api/v1/agents", id.String(), map[string]interface{}{
		"agentId": id.String(),
	})

	if err := s.Cache.SetJSON(r.Context(), key, cachedDetail{Found: true, Agent: detail}, cache.TTLAgentDetail); err != nil {
		s.logger.Printf("detail cache write: %v", err)
	}
	writeData(w, http.StatusOK, detail, nil)
}

// --- relations ---

func (s *Server) handleSimilar(w http.ResponseWriter, r *http.Request) {
	s.handleRelation(w, r, s.Engine.Similar)
}

func (s *Server) handleComplementary(w http.ResponseWriter, r *http.Request) {
	s.handleRelation(w, r, s.Engine.Complementary)
}

func (s *Server) handleRelation(w http.ResponseWriter, r *http.Request,
	relate func(ctx context.Context, agentID string, limit int) ([]core.AgentSummary, error)) {
	id, err := pathAgentID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	limit, err := relationLimit(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	items, err := relate(r.Context(), id.String(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, items, &Meta{Limit: limit, HasMore: false})
}

func (s *Server) handleCompatible(w http.ResponseWriter, r *http.Request) {
	id, err := pathAgentID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	limit, err := relationLimit(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out, err := s.Engine.Compatible(r.Context(), id, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, out, nil)
}

// --- shared helpers ---

func (s *Server) writePage(w http.ResponseWriter, q core.Query, res *search.Result) {
	writeData(w, http.StatusOK, res.Items, &Meta{
		Limit:      q.Limit,
		Offset:     q.Offset,
		Total:      res.Total,
		HasMore:    res.HasMore,
		NextCursor: res.NextCursor,
		SearchMode: res.SearchMode,
	})
}

func pathAgentID(r *http.Request) (core.AgentID, error) {
	id, err := core.ParseAgentID(mux.Vars(r)["id"])
	if err != nil {
		return core.AgentID{}, apierror.Validation(err.Error())
	}
	return id, nil
}

func relationLimit(r *http.Request) (int, error) {
	limit, set, err := intParam(r.URL.Query(), "limit")
	if err != nil {
		return 0, err
	}
	return search.ClampLimit(limit, set)
}

// cacheParams flattens a query into the normalized map the key hasher sorts.
// Only set fields participate so equivalent requests share an entry.
func cacheParams(q core.Query) map[string]interface{} {
	m := map[string]interface{}{
		"limit":  q.Limit,
		"offset": q.Offset,
	}
	if q.Text != "" {
		m["q"] = q.Text
	}
	if q.Cursor != "" {
		m["cursor"] = q.Cursor
	}
	if q.MinScore != 0 {
		m["minScore"] = q.MinScore
	}
	if q.Sort != "" {
		m["sort"] = q.Sort
	}
	if q.Order != "" {
		m["order"] = q.Order
	}

	f := q.Filters
	if len(f.ChainIDs) > 0 {
		m["chainIds"] = f.ChainIDs
	}
	if len(f.ExcludeChainIDs) > 0 {
		m["excludeChainIds"] = f.ExcludeChainIDs
	}
	for name, v := range map[string]*bool{
		"active":              f.Active,
		"mcp":                 f.MCP,
		"a2a":                 f.A2A,
		"x402":                f.X402,
		"hasRegistrationFile": f.HasRegistrationFile,
		"hasTrusts":           f.HasTrusts,
	} {
		if v != nil {
			m[name] = *v
		}
	}
	for name, v := range map[string][]string{
		"skills":         f.Skills,
		"domains":        f.Domains,
		"mcpTools":       f.MCPTools,
		"a2aSkills":      f.A2ASkills,
		"excludeSkills":  f.ExcludeSkills,
		"excludeDomains": f.ExcludeDomains,
		"trustModels":    f.TrustModels,
	} {
		if len(v) > 0 {
			m[name] = v
		}
	}
	if f.Owner != "" {
		m["owner"] = core.NormalizeWallet(f.Owner)
	}
	if f.WalletAddress != "" {
		m["walletAddress"] = core.NormalizeWallet(f.WalletAddress)
	}
	if f.ENS != "" {
		m["ens"] = f.ENS
	}
	if f.DID != "" {
		m["did"] = f.DID
	}
	if f.FilterMode != "" {
		m["filterMode"] = string(f.FilterMode)
	}
	if f.MinRep != nil {
		m["minRep"] = *f.MinRep
	}
	if f.MaxRep != nil {
		m["maxRep"] = *f.MaxRep
	}
	if f.CreatedAfter != nil {
		m["createdAfter"] = f.CreatedAfter.UTC().Format(time.RFC3339)
	}
	if f.CreatedBefore != nil {
		m["createdBefore"] = f.CreatedBefore.UTC().Format(time.RFC3339)
	}
	return m
}
