// Package queue is the client for the external classification job queue.
// The jobs table's active-job rule gives at-most-once delivery per agent;
// this client only hands ids over.
package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/agentindex/gateway/internal/config"
)

// ClassificationQueue delivers one enqueue per agent to the worker fleet.
type ClassificationQueue interface {
	Enqueue(ctx context.Context, agentIDs []string) error
}

// HTTPQueue posts batches to the queue service.
type HTTPQueue struct {
	http *http.Client
	url  string
}

func NewHTTPQueue(cfg config.QueueConfig) *HTTPQueue {
	return &HTTPQueue{
		http: &http.Client{Timeout: 5 * time.Second},
		url:  cfg.URL,
	}
}

func (q *HTTPQueue) Enqueue(ctx context.Context, agentIDs []string) error {
	if len(agentIDs) == 0 {
		return nil
	}

	body, err := json.Marshal(map[string]interface{}{"agent_ids": agentIDs})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, q.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := q.http.Do(req)
	if err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("queue enqueue: status %d", resp.StatusCode)
	}
	return nil
}

// NopQueue drops enqueues; used when no queue service is configured.
type NopQueue struct{}

func (NopQueue) Enqueue(ctx context.Context, agentIDs []string) error { return nil }
