package core

import "time"

// FilterMode governs how boolean capability filters combine.
type FilterMode string

const (
	FilterModeAND FilterMode = "AND"
	FilterModeOR  FilterMode = "OR"
)

// SearchFilters is the flat filter set accepted by the list and search routes.
// Pointer booleans distinguish "unset" from an explicit false.
type SearchFilters struct {
	ChainIDs        []int64 `json:"chainIds,omitempty"`
	ExcludeChainIDs []int64 `json:"excludeChainIds,omitempty"`

	Active              *bool `json:"active,omitempty"`
	MCP                 *bool `json:"mcp,omitempty"`
	A2A                 *bool `json:"a2a,omitempty"`
	X402                *bool `json:"x402,omitempty"`
	HasRegistrationFile *bool `json:"hasRegistrationFile,omitempty"`

	Skills         []string `json:"skills,omitempty"`
	Domains        []string `json:"domains,omitempty"`
	MCPTools       []string `json:"mcpTools,omitempty"`
	A2ASkills      []string `json:"a2aSkills,omitempty"`
	ExcludeSkills  []string `json:"excludeSkills,omitempty"`
	ExcludeDomains []string `json:"excludeDomains,omitempty"`

	Owner         string `json:"owner,omitempty"`
	WalletAddress string `json:"walletAddress,omitempty"`
	ENS           string `json:"ens,omitempty"`
	DID           string `json:"did,omitempty"`

	TrustModels []string `json:"trustModels,omitempty"`
	HasTrusts   *bool    `json:"hasTrusts,omitempty"`

	CreatedAfter  *time.Time `json:"createdAfter,omitempty"`
	CreatedBefore *time.Time `json:"createdBefore,omitempty"`

	MinRep *float64 `json:"minRep,omitempty"`
	MaxRep *float64 `json:"maxRep,omitempty"`

	FilterMode FilterMode `json:"filterMode,omitempty"`
}

// BoolFilters returns the capability booleans that participate in OR-mode
// fan-out, keyed by index field name.
func (f *SearchFilters) BoolFilters() map[string]bool {
	out := map[string]bool{}
	if f.MCP != nil {
		out["has_mcp"] = *f.MCP
	}
	if f.A2A != nil {
		out["has_a2a"] = *f.A2A
	}
	if f.X402 != nil {
		out["x402_support"] = *f.X402
	}
	return out
}

// Mode defaults to AND when unset.
func (f *SearchFilters) Mode() FilterMode {
	if f.FilterMode == FilterModeOR {
		return FilterModeOR
	}
	return FilterModeAND
}

// SortField values accepted on the list route.
const (
	SortRelevance  = "relevance"
	SortName       = "name"
	SortCreatedAt  = "createdAt"
	SortReputation = "reputation"
)

// Query is a fully parsed list/search request.
type Query struct {
	Text     string
	Filters  SearchFilters
	MinScore float64
	Sort     string
	Order    string // asc | desc, default desc
	Limit    int
	Offset   int
	Cursor   string
}
