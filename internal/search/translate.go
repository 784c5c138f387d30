// Package search is the query planner: it translates flat request filters
// into the vector-index filter tree, picks a backend per query shape, fans
// out and merges OR-mode boolean searches, and owns pagination cursors.
package search

import (
	"time"

	"github.com/agentindex/gateway/internal/core"
	"github.com/agentindex/gateway/internal/vectordb"
)

// Index payload fields the translator targets.
const (
	fieldAgentID     = "agent_id"
	fieldChainID     = "chain_id"
	fieldActive      = "active"
	fieldHasMCP      = "has_mcp"
	fieldHasA2A      = "has_a2a"
	fieldX402        = "x402_support"
	fieldHasRegFile  = "has_registration_file"
	fieldSkills      = "skills"
	fieldDomains     = "domains"
	fieldMCPTools    = "mcp_tools"
	fieldA2ASkills   = "a2a_skills"
	fieldOwner       = "owner"
	fieldWallet      = "wallet_address"
	fieldENS         = "ens"
	fieldDID         = "did"
	fieldTrusts      = "supported_trusts"
	fieldCreatedAt   = "created_at"
	fieldInputModes  = "input_modes"
	fieldOutputModes = "output_modes"
)

// Translate builds the full index filter for f, capability booleans included.
// Callers on the OR fan-out path use TranslateBase plus WithBool per branch
// instead; minRep/maxRep are never pushed down (post-filter only).
func Translate(f core.SearchFilters) *vectordb.Filter {
	out := TranslateBase(f)
	for _, b := range capabilityConds(f) {
		out.Must = append(out.Must, b)
	}
	return out
}

// TranslateBase translates everything except the capability booleans
// (mcp, a2a, x402), which filterMode governs.
func TranslateBase(f core.SearchFilters) *vectordb.Filter {
	out := &vectordb.Filter{}

	if len(f.ChainIDs) > 0 {
		out.Must = append(out.Must, vectordb.MatchAny(fieldChainID, vectordb.Int64sToAny(f.ChainIDs)...))
	}
	if len(f.ExcludeChainIDs) > 0 {
		out.MustNot = append(out.MustNot, vectordb.MatchAny(fieldChainID, vectordb.Int64sToAny(f.ExcludeChainIDs)...))
	}

	if f.Active != nil {
		out.Must = append(out.Must, vectordb.MatchValue(fieldActive, *f.Active))
	}
	if f.HasRegistrationFile != nil {
		out.Must = append(out.Must, vectordb.MatchValue(fieldHasRegFile, *f.HasRegistrationFile))
	}

	arrayConds := slugConds(f)
	if f.Mode() == core.FilterModeOR && len(arrayConds) > 1 {
		out.MinShould = &vectordb.MinShould{Conditions: arrayConds, MinCount: 1}
	} else {
		out.Must = append(out.Must, arrayConds...)
	}

	if len(f.ExcludeSkills) > 0 {
		out.MustNot = append(out.MustNot, vectordb.MatchAny(fieldSkills, vectordb.StringsToAny(f.ExcludeSkills)...))
	}
	if len(f.ExcludeDomains) > 0 {
		out.MustNot = append(out.MustNot, vectordb.MatchAny(fieldDomains, vectordb.StringsToAny(f.ExcludeDomains)...))
	}

	if f.Owner != "" {
		out.Must = append(out.Must, vectordb.MatchValue(fieldOwner, core.NormalizeWallet(f.Owner)))
	}
	if f.WalletAddress != "" {
		out.Must = append(out.Must, vectordb.MatchValue(fieldWallet, core.NormalizeWallet(f.WalletAddress)))
	}
	if f.ENS != "" {
		out.Must = append(out.Must, vectordb.MatchValue(fieldENS, f.ENS))
	}
	if f.DID != "" {
		out.Must = append(out.Must, vectordb.MatchValue(fieldDID, f.DID))
	}

	if len(f.TrustModels) > 0 {
		out.Must = append(out.Must, vectordb.MatchAny(fieldTrusts, vectordb.StringsToAny(f.TrustModels)...))
	}
	if f.HasTrusts != nil {
		if *f.HasTrusts {
			out.Must = append(out.Must, vectordb.CountGT(fieldTrusts, 0))
		} else {
			out.Must = append(out.Must, vectordb.Empty(fieldTrusts))
		}
	}

	if f.CreatedAfter != nil || f.CreatedBefore != nil {
		r := vectordb.Range{}
		if f.CreatedAfter != nil {
			r.GTE = f.CreatedAfter.Format(time.RFC3339)
		}
		if f.CreatedBefore != nil {
			r.LTE = f.CreatedBefore.Format(time.RFC3339)
		}
		out.Must = append(out.Must, vectordb.InDatetimeRange(fieldCreatedAt, r))
	}

	return out
}

// WithBool returns a copy of base with one capability condition appended to
// must. Used by the OR fan-out, one branch per boolean.
func WithBool(base *vectordb.Filter, field string, value bool) *vectordb.Filter {
	out := &vectordb.Filter{
		Must:      append(append([]vectordb.Condition(nil), base.Must...), vectordb.MatchValue(field, value)),
		Should:    base.Should,
		MustNot:   base.MustNot,
		MinShould: base.MinShould,
	}
	return out
}

// withoutAgent excludes one agent id, for similar/compatible lookups.
func withoutAgent(f *vectordb.Filter, agentID string) *vectordb.Filter {
	f.MustNot = append(f.MustNot, vectordb.MatchValue(fieldAgentID, agentID))
	return f
}

func capabilityConds(f core.SearchFilters) []vectordb.Condition {
	var out []vectordb.Condition
	if f.MCP != nil {
		out = append(out, vectordb.MatchValue(fieldHasMCP, *f.MCP))
	}
	if f.A2A != nil {
		out = append(out, vectordb.MatchValue(fieldHasA2A, *f.A2A))
	}
	if f.X402 != nil {
		out = append(out, vectordb.MatchValue(fieldX402, *f.X402))
	}
	return out
}

func slugConds(f core.SearchFilters) []vectordb.Condition {
	var out []vectordb.Condition
	if len(f.Skills) > 0 {
		out = append(out, vectordb.MatchAny(fieldSkills, vectordb.StringsToAny(f.Skills)...))
	}
	if len(f.Domains) > 0 {
		out = append(out, vectordb.MatchAny(fieldDomains, vectordb.StringsToAny(f.Domains)...))
	}
	if len(f.MCPTools) > 0 {
		out = append(out, vectordb.MatchAny(fieldMCPTools, vectordb.StringsToAny(f.MCPTools)...))
	}
	if len(f.A2ASkills) > 0 {
		out = append(out, vectordb.MatchAny(fieldA2ASkills, vectordb.StringsToAny(f.A2ASkills)...))
	}
	return out
}
