package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/agentindex/gateway/internal/apierror"
	"github.com/agentindex/gateway/internal/cache"
	"github.com/agentindex/gateway/internal/core"
	"github.com/agentindex/gateway/internal/events"
	"github.com/agentindex/gateway/internal/trustgraph"
)

// handleReputation serves GET /agents/{id}/reputation.
func (s *Server) handleReputation(w http.ResponseWriter, r *http.Request) {
	id, err := pathAgentID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	rep, err := s.Reputation.Get(r.Context(), id.String())
	if err != nil {
		writeError(w, r, apierror.Internal(err))
		return
	}
	if rep == nil {
		writeError(w, r, apierror.NotFound("reputation"))
		return
	}
	writeData(w, http.StatusOK, rep, nil)
}

// handleFeedbackList serves GET /agents/{id}/reputation/feedback.
func (s *Server) handleFeedbackList(w http.ResponseWriter, r *http.Request) {
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

	feedback, err := s.Reputation.Feedback(r.Context(), id.String(), limit)
	if err != nil {
		writeError(w, r, apierror.Internal(err))
		return
	}
	writeData(w, http.StatusOK, feedback, &Meta{Limit: limit, HasMore: len(feedback) == limit})
}

// feedbackRequest is the POST feedback body; agent id and chain come from the
// path.
type feedbackRequest struct {
	Score       int      `json:"score"`
	Tags        []string `json:"tags,omitempty"`
	Context     string   `json:"context,omitempty"`
	FeedbackURI string   `json:"feedbackUri,omitempty"`
	Submitter   string   `json:"submitter"`
	EASUID      string   `json:"easUid,omitempty"`
}

// handleFeedbackSubmit serves POST /agents/{id}/reputation/feedback.
func (s *Server) handleFeedbackSubmit(w http.ResponseWriter, r *http.Request) {
	id, err := pathAgentID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, apierror.BadRequest("request body is not valid JSON"))
		return
	}

	feedbackID, err := s.Reputation.AddFeedback(r.Context(), &core.Feedback{
		AgentID:     id.String(),
		ChainID:     id.ChainID,
		Score:       req.Score,
		Tags:        req.Tags,
		Context:     req.Context,
		FeedbackURI: req.FeedbackURI,
		Submitter:   req.Submitter,
		EASUID:      req.EASUID,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	// The aggregate changed; the cached detail carries a stale score.
	if err := s.Cache.Delete(r.Context(), cache.KeyAgentDetail(id.String())); err != nil {
		s.logger.Printf("detail cache invalidation: %v", err)
	}
	s.Emitter.Emit(events.TypeFeedbackSubmitted, "/api/v1/agents", id.String(), map[string]interface{}{
		"agentId":    id.String(),
		"feedbackId": feedbackID,
		"score":      req.Score,
	})

	writeData(w, http.StatusCreated, map[string]interface{}{"id": feedbackID}, nil)
}

// --- validations (subgraph-sourced) ---

func (s *Server) handleValidations(w http.ResponseWriter, r *http.Request) {
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

	var items []core.Validation
	err = s.Breakers.ChainSDK.Execute(r.Context(), func(ctx context.Context) error {
		var err error
		items, err = s.Chain.Validations(ctx, id.ChainID, id.TokenID, limit)
		return err
	})
	if err != nil {
		writeError(w, r, apierror.ServiceUnavailable("registry", err))
		return
	}
	if items == nil {
		items = []core.Validation{}
	}
	writeData(w, http.StatusOK, items, &Meta{Limit: limit, HasMore: len(items) == limit})
}

func (s *Server) handleValidationSummary(w http.ResponseWriter, r *http.Request) {
	id, err := pathAgentID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var summary *core.ValidationSummary
	err = s.Breakers.ChainSDK.Execute(r.Context(), func(ctx context.Context) error {
		var err error
		summary, err = s.Chain.ValidationSummary(ctx, id.ChainID, id.TokenID)
		return err
	})
	if err != nil {
		writeError(w, r, apierror.ServiceUnavailable("registry", err))
		return
	}
	if summary == nil {
		summary = &core.ValidationSummary{AgentID: id.String()}
	}
	writeData(w, http.StatusOK, summary, nil)
}

// --- trust graph ---

func (s *Server) handleTrustGraphState(w http.ResponseWriter, r *http.Request) {
	state, err := s.TrustGraph.State(r.Context())
	if err != nil {
		writeError(w, r, apierror.Internal(err))
		return
	}
	writeData(w, http.StatusOK, state, nil)
}

func (s *Server) handleTopTrusted(w http.ResponseWriter, r *http.Request) {
	limit, err := relationLimit(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	scores, err := s.TrustGraph.TopTrusted(r.Context(), limit)
	if err != nil {
		writeError(w, r, apierror.Internal(err))
		return
	}
	if scores == nil {
		scores = []core.TrustScore{}
	}
	writeData(w, http.StatusOK, scores, &Meta{Limit: limit, HasMore: false})
}

// handleTrustGraphRebuild serves POST /trust-graph/rebuild. Synchronous: the
// response reports the completed rebuild, 409 when one is already running.
func (s *Server) handleTrustGraphRebuild(w http.ResponseWriter, r *http.Request) {
	if err := s.TrustGraph.Rebuild(r.Context()); err != nil {
		if errors.Is(err, trustgraph.ErrRebuildInProgress) {
			writeErrorStatus(w, r, http.StatusConflict, apierror.CodeBadRequest, err.Error())
			return
		}
		writeError(w, r, apierror.Internal(err))
		return
	}

	s.Emitter.Emit(events.TypeTrustGraphRebuilt, "/api/v1/trust-graph", "", nil)
	writeData(w, http.StatusOK, map[string]string{"status": "completed"}, nil)
}
