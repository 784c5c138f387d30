// Package classify is the client for the LLM classifier, with a primary and
// a fallback provider.
package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/agentindex/gateway/internal/config"
	"github.com/agentindex/gateway/internal/core"
)

// Result is the classifier's verdict for one agent.
type Result struct {
	Skills     []core.ScoredSlug `json:"skills"`
	Domains    []core.ScoredSlug `json:"domains"`
	Confidence float64           `json:"confidence"`
	Model      string            `json:"model"`
}

// Classifier assigns OASF skills and domains to an agent.
type Classifier interface {
	Classify(ctx context.Context, agent *core.AgentDetail) (*Result, error)
}

// HTTPClassifier posts agent records to the classification service; when the
// primary provider errors, the fallback is tried once.
type HTTPClassifier struct {
	http     *http.Client
	primary  string
	fallback string
	apiKey   string
	model    string
	logger   *log.Logger
}

func NewHTTPClassifier(cfg config.ClassifierConfig) *HTTPClassifier {
	return &HTTPClassifier{
		http:     &http.Client{Timeout: 30 * time.Second},
		primary:  cfg.PrimaryURL,
		fallback: cfg.FallbackURL,
		apiKey:   cfg.APIKey,
		model:    cfg.ModelVersion,
		logger:   log.New(log.Writer(), "[CLASSIFY] ", log.LstdFlags),
	}
}

func (c *HTTPClassifier) Classify(ctx context.Context, agent *core.AgentDetail) (*Result, error) {
	res, err := c.call(ctx, c.primary, agent)
	if err == nil {
		return res, nil
	}
	if c.fallback == "" {
		return nil, err
	}

	c.logger.Printf("primary classifier failed (%v), trying fallback", err)
	return c.call(ctx, c.fallback, agent)
}

func (c *HTTPClassifier) call(ctx context.Context, url string, agent *core.AgentDetail) (*Result, error) {
	body, err := json.Marshal(map[string]interface{}{
		"agent": agent,
		"model": c.model,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("classifier: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("classifier: status %d", resp.StatusCode)
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("classifier decode: %w", err)
	}
	return &result, nil
}
