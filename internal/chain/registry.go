// Package chain is the client for the chain-reading SDK, the live fallback
// behind the vector index and the source of truth for agent detail.
package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/agentindex/gateway/internal/config"
	"github.com/agentindex/gateway/internal/core"
)

// Registry is the chain-reading SDK surface the search engine depends on.
type Registry interface {
	ListAgents(ctx context.Context, filters core.SearchFilters, cursor string, limit int) ([]core.AgentDetail, string, error)
	GetAgent(ctx context.Context, chainID int64, tokenID string) (*core.AgentDetail, error)
	ChainStats(ctx context.Context) ([]core.ChainStat, error)
	Validations(ctx context.Context, chainID int64, tokenID string, limit int) ([]core.Validation, error)
	ValidationSummary(ctx context.Context, chainID int64, tokenID string) (*core.ValidationSummary, error)
}

// HTTPRegistry talks to the indexer service that fronts the on-chain registry.
type HTTPRegistry struct {
	http *http.Client
	base string
}

// NewHTTPRegistry builds the client from config.
func NewHTTPRegistry(cfg config.ChainConfig) *HTTPRegistry {
	return &HTTPRegistry{
		http: &http.Client{Timeout: time.Duration(cfg.TimeoutMs) * time.Millisecond},
		base: cfg.IndexerURL,
	}
}

type listRequest struct {
	Filters core.SearchFilters `json:"filters"`
	Cursor  string             `json:"cursor,omitempty"`
	Limit   int                `json:"limit,omitempty"`
}

type listResponse struct {
	Items      []core.AgentDetail `json:"items"`
	NextCursor string             `json:"nextCursor,omitempty"`
}

// ListAgents pages through registry agents matching the filters.
func (r *HTTPRegistry) ListAgents(ctx context.Context, filters core.SearchFilters, cursor string, limit int) ([]core.AgentDetail, string, error) {
	var resp listResponse
	err := r.post(ctx, "/v1/agents/list", listRequest{Filters: filters, Cursor: cursor, Limit: limit}, &resp)
	if err != nil {
		return nil, "", err
	}
	return resp.Items, resp.NextCursor, nil
}

// GetAgent fetches one agent; nil when the registry has no such token.
func (r *HTTPRegistry) GetAgent(ctx context.Context, chainID int64, tokenID string) (*core.AgentDetail, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/v1/agents/%d/%s", r.base, chainID, tokenID), nil)
	if err != nil {
		return nil, err
	}

	resp, err := r.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sdk get agent: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sdk get agent: status %d", resp.StatusCode)
	}

	var detail core.AgentDetail
	if err := json.NewDecoder(resp.Body).Decode(&detail); err != nil {
		return nil, fmt.Errorf("sdk decode agent: %w", err)
	}
	return &detail, nil
}

// ChainStats returns the per-chain census.
func (r *HTTPRegistry) ChainStats(ctx context.Context) ([]core.ChainStat, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.base+"/v1/chains/stats", nil)
	if err != nil {
		return nil, err
	}

	resp, err := r.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sdk chain stats: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sdk chain stats: status %d", resp.StatusCode)
	}

	var stats []core.ChainStat
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return nil, fmt.Errorf("sdk decode stats: %w", err)
	}
	return stats, nil
}

// Validations lists on-chain validation attestations for one agent, newest
// first.
func (r *HTTPRegistry) Validations(ctx context.Context, chainID int64, tokenID string, limit int) ([]core.Validation, error) {
	var out struct {
		Items []core.Validation `json:"items"`
	}
	err := r.get(ctx, fmt.Sprintf("/v1/agents/%d/%s/validations?limit=%d", chainID, tokenID, limit), &out)
	if err != nil {
		return nil, err
	}
	return out.Items, nil
}

// ValidationSummary aggregates an agent's validations; nil when none exist.
func (r *HTTPRegistry) ValidationSummary(ctx context.Context, chainID int64, tokenID string) (*core.ValidationSummary, error) {
	var out core.ValidationSummary
	err := r.get(ctx, fmt.Sprintf("/v1/agents/%d/%s/validations/summary", chainID, tokenID), &out)
	if err != nil {
		return nil, err
	}
	if out.Count == 0 {
		return nil, nil
	}
	return &out, nil
}

func (r *HTTPRegistry) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.base+path, nil)
	if err != nil {
		return err
	}

	resp, err := r.http.Do(req)
	if err != nil {
		return fmt.Errorf("sdk %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("sdk %s: status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (r *HTTPRegistry) post(ctx context.Context, path string, body, out interface{}) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.base+path, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.http.Do(req)
	if err != nil {
		return fmt.Errorf("sdk %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("sdk %s: status %d: %s", path, resp.StatusCode, string(b))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
