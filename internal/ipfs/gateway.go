// Package ipfs fetches registration-file metadata through a public gateway.
package ipfs

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/agentindex/gateway/internal/config"
)

// Gateway resolves ipfs:// URIs to registration-file metadata.
type Gateway struct {
	http *http.Client
	base string
}

func NewGateway(cfg config.IPFSConfig) *Gateway {
	base := strings.TrimSuffix(cfg.GatewayURL, "/")
	if base == "" {
		base = "https://ipfs.io/ipfs"
	}
	return &Gateway{
		http: &http.Client{Timeout: time.Duration(cfg.TimeoutMs) * time.Millisecond},
		base: base,
	}
}

// FetchMetadata resolves a metadata URI and decodes the JSON document.
// ipfs://CID and bare-CID forms resolve through the configured gateway;
// https URIs are fetched directly.
func (g *Gateway) FetchMetadata(ctx context.Context, uri string) (map[string]interface{}, error) {
	url := g.resolve(uri)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := g.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ipfs fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ipfs fetch: status %d", resp.StatusCode)
	}

	var meta map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return nil, fmt.Errorf("ipfs decode: %w", err)
	}
	return meta, nil
}

func (g *Gateway) resolve(uri string) string {
	switch {
	case strings.HasPrefix(uri, "ipfs://"):
		return g.base + "/" + strings.TrimPrefix(uri, "ipfs://")
	case strings.HasPrefix(uri, "http://"), strings.HasPrefix(uri, "https://"):
		return uri
	default:
		return g.base + "/" + uri
	}
}
