// Package vectordb is a minimal Qdrant HTTP client for the agent collection.
// Only the endpoints the search engine needs are implemented: query, scroll,
// count, upsert, delete, and collection info.
package vectordb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/agentindex/gateway/internal/config"
)

// Client is a minimal Qdrant HTTP client.
type Client struct {
	http       *http.Client
	base       string
	apiKey     string
	collection string
}

// NewClient builds a client from config. No connection is made until first use.
func NewClient(cfg config.VectorConfig) *Client {
	return &Client{
		http:       &http.Client{Timeout: time.Duration(cfg.TimeoutMs) * time.Millisecond},
		base:       fmt.Sprintf("http://%s:%d", cfg.Host, cfg.Port),
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
	}
}

// Point is one stored vector with its payload.
type Point struct {
	ID      string                 `json:"id"`
	Vector  []float32              `json:"vector,omitempty"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// ScoredPoint is a search hit.
type ScoredPoint struct {
	ID      string                 `json:"-"`
	Score   float64                `json:"score"`
	Payload map[string]interface{} `json:"payload"`
}

// OrderBy selects scroll ordering when no vector query is present.
type OrderBy struct {
	Key       string `json:"key"`
	Direction string `json:"direction,omitempty"` // asc | desc
}

// SearchParams covers both ANN queries and filter-only scrolls.
// With a Vector set, Qdrant ANN is used and OrderBy is ignored.
type SearchParams struct {
	Vector         []float32
	Filter         *Filter
	Limit          int
	Offset         int
	ScoreThreshold float64
	WithPayload    bool
	OrderBy        *OrderBy
}

type qdrantPoint struct {
	ID      interface{}            `json:"id"`
	Score   float64                `json:"score"`
	Payload map[string]interface{} `json:"payload"`
}

func (p qdrantPoint) toScored() ScoredPoint {
	return ScoredPoint{ID: fmt.Sprintf("%v", p.ID), Score: p.Score, Payload: p.Payload}
}

// Search runs an ANN query against /points/query.
func (c *Client) Search(ctx context.Context, p SearchParams) ([]ScoredPoint, error) {
	body := map[string]interface{}{
		"query":        p.Vector,
		"limit":        p.Limit,
		"with_payload": p.WithPayload,
	}
	if p.Offset > 0 {
		body["offset"] = p.Offset
	}
	if p.ScoreThreshold > 0 {
		body["score_threshold"] = p.ScoreThreshold
	}
	if !p.Filter.IsEmpty() {
		body["filter"] = p.Filter
	}

	var resp struct {
		Result struct {
			Points []qdrantPoint `json:"points"`
		} `json:"result"`
		Status string `json:"status"`
	}
	if err := c.post(ctx, fmt.Sprintf("/collections/%s/points/query", c.collection), body, &resp); err != nil {
		return nil, err
	}

	out := make([]ScoredPoint, 0, len(resp.Result.Points))
	for _, pt := range resp.Result.Points {
		out = append(out, pt.toScored())
	}
	return out, nil
}

// Scroll pages through points matching the filter without a vector query,
// ordered by OrderBy when set. Offset is positional, not a point id; the
// caller owns cursor arithmetic.
func (c *Client) Scroll(ctx context.Context, p SearchParams) ([]ScoredPoint, error) {
	// Qdrant's scroll offset is a point id, which does not compose with
	// the gateway's positional cursors. Over-fetch and slice instead.
	body := map[string]interface{}{
		"limit":        p.Limit + p.Offset,
		"with_payload": p.WithPayload,
	}
	if !p.Filter.IsEmpty() {
		body["filter"] = p.Filter
	}
	if p.OrderBy != nil {
		body["order_by"] = p.OrderBy
	}

	var resp struct {
		Result struct {
			Points []qdrantPoint `json:"points"`
		} `json:"result"`
		Status string `json:"status"`
	}
	if err := c.post(ctx, fmt.Sprintf("/collections/%s/points/scroll", c.collection), body, &resp); err != nil {
		return nil, err
	}

	pts := resp.Result.Points
	if p.Offset >= len(pts) {
		return nil, nil
	}
	pts = pts[p.Offset:]

	out := make([]ScoredPoint, 0, len(pts))
	for _, pt := range pts {
		out = append(out, pt.toScored())
	}
	return out, nil
}

// Count returns the number of points matching the filter.
func (c *Client) Count(ctx context.Context, filter *Filter) (int64, error) {
	body := map[string]interface{}{"exact": true}
	if !filter.IsEmpty() {
		body["filter"] = filter
	}

	var resp struct {
		Result struct {
			Count int64 `json:"count"`
		} `json:"result"`
	}
	if err := c.post(ctx, fmt.Sprintf("/collections/%s/points/count", c.collection), body, &resp); err != nil {
		return 0, err
	}
	return resp.Result.Count, nil
}

// Upsert writes points into the collection.
func (c *Client) Upsert(ctx context.Context, points []Point) error {
	body := map[string]interface{}{"points": points}
	return c.put(ctx, fmt.Sprintf("/collections/%s/points?wait=true", c.collection), body, nil)
}

// Delete removes points by id.
func (c *Client) Delete(ctx context.Context, ids []string) error {
	body := map[string]interface{}{"points": ids}
	return c.post(ctx, fmt.Sprintf("/collections/%s/points/delete?wait=true", c.collection), body, nil)
}

// CollectionInfo returns point count and status for the health endpoint.
func (c *Client) CollectionInfo(ctx context.Context) (map[string]interface{}, error) {
	var resp struct {
		Result map[string]interface{} `json:"result"`
	}
	if err := c.get(ctx, fmt.Sprintf("/collections/%s", c.collection), &resp); err != nil {
		return nil, err
	}
	return resp.Result, nil
}

// --- transport ---

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

func (c *Client) put(ctx context.Context, path string, body, out interface{}) error {
	return c.do(ctx, http.MethodPut, path, body, out)
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("api-key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("qdrant %s %s: status %d: %s", method, path, resp.StatusCode, string(b))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("qdrant decode: %w", err)
		}
	}
	return nil
}
