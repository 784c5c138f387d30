package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"
)

// TTL classes. Distinct prefixes and distinct parameter sets yield distinct
// keys; that is the only invariant this level relies on.
const (
	TTLAgentsList     = 300 * time.Second
	TTLAgentDetail    = 300 * time.Second
	TTLClassification = 86400 * time.Second
	TTLChainStats     = 900 * time.Second
	TTLTaxonomy       = 3600 * time.Second
	TTLSearch         = 300 * time.Second
	TTLIPFSMetadata   = 3600 * time.Second
	TTLPaginationSet  = 300 * time.Second
	TTLMCPSession     = time.Hour
)

// ParamsHash produces a stable SHA-256 hex digest over a parameter object:
// map keys sorted, unordered arrays sorted, booleans canonical.
func ParamsHash(params map[string]interface{}) string {
	normalized := normalize(params)
	buf, _ := json.Marshal(normalized)
	sum := sha256.Sum256(buf)
	return hex.EncodeToString(sum[:])
}

// normalize rewrites params into a canonical form: nested maps become sorted
// key/value pair lists, string slices are sorted.
func normalize(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([][2]interface{}, 0, len(keys))
		for _, k := range keys {
			pairs = append(pairs, [2]interface{}{k, normalize(t[k])})
		}
		return pairs
	case []string:
		sorted := append([]string(nil), t...)
		sort.Strings(sorted)
		return sorted
	case []int64:
		sorted := append([]int64(nil), t...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		return sorted
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = normalize(e)
		}
		return out
	default:
		return v
	}
}

// Key builders. One namespace per query shape.

func KeyAgentsList(params map[string]interface{}) string {
	return "agents:list:" + ParamsHash(params)
}

func KeyAgentDetail(agentID string) string {
	return "agents:detail:" + agentID
}

func KeyClassification(agentID string) string {
	return "classification:" + agentID
}

func KeySearch(params map[string]interface{}) string {
	return "search:" + ParamsHash(params)
}

func KeyChainStats() string {
	return "chains:stats"
}

func KeyTaxonomy(taxonomyType string) string {
	return "taxonomy:" + taxonomyType
}

func KeyIPFSMetadata(agentID string) string {
	return "ipfs:metadata:" + agentID
}

func KeyPaginationSet(params map[string]interface{}) string {
	return "pagination:set:" + ParamsHash(params)
}

func KeyMCPSession(sessionID string) string {
	return "mcp:session:" + sessionID
}

func KeyRateLimit(identity, class string) string {
	return "ratelimit:" + class + ":" + identity
}
