// Package enrichment assembles AgentSummary responses from heterogeneous
// sources and opportunistically backfills missing classifications.
package enrichment

import (
	"time"

	"github.com/agentindex/gateway/internal/core"
	"github.com/agentindex/gateway/internal/vectordb"
)

// FromPoint builds an AgentSummary from a vector-index hit without a detail
// fetch. Payloads are loosely typed; every field degrades to its zero value.
func FromPoint(p vectordb.ScoredPoint) core.AgentSummary {
	pl := payload(p.Payload)

	chainID := pl.int64Of("chain_id")
	tokenID := pl.stringOf("token_id")
	id := pl.stringOf("agent_id")
	if id == "" && tokenID != "" {
		id = core.AgentID{ChainID: chainID, TokenID: tokenID}.String()
	}

	s := core.AgentSummary{
		ID:             id,
		ChainID:        chainID,
		TokenID:        tokenID,
		Name:           pl.stringOf("name"),
		Description:    pl.stringOf("description"),
		Image:          pl.stringOf("image"),
		Active:         pl.boolOf("active"),
		HasMCP:         pl.boolOf("has_mcp"),
		HasA2A:         pl.boolOf("has_a2a"),
		X402Support:    pl.boolOf("x402_support"),
		SupportedTrust: pl.stringsOf("supported_trusts"),
		Owner:          pl.stringOf("owner"),
		Operators:      pl.stringsOf("operators"),
		ENS:            pl.stringOf("ens"),
		DID:            pl.stringOf("did"),
		WalletAddress:  pl.stringOf("wallet_address"),
		MatchReasons:   pl.stringsOf("match_reasons"),
		OASFSource:     core.OASFSourceNone,
	}
	if s.MatchReasons == nil {
		s.MatchReasons = []string{}
	}
	if ts := pl.stringOf("created_at"); ts != "" {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			s.CreatedAt = t
		}
	}
	if p.Score > 0 {
		score := p.Score
		s.SearchScore = &score
	}

	s.OASF, s.OASFSource = oasfFromPayload(pl)
	return s
}

// oasfFromPayload promotes the enriched confidence-bearing payload shape when
// present, otherwise falls back to slug lists with confidence 1 (degraded).
func oasfFromPayload(pl payload) (*core.OASF, string) {
	skills := pl.scoredOf("skills_with_confidence")
	domains := pl.scoredOf("domains_with_confidence")
	if len(skills) > 0 || len(domains) > 0 {
		return &core.OASF{
			Skills:     skills,
			Domains:    domains,
			Confidence: core.OverallConfidence(skills, domains),
		}, core.OASFSourceLLM
	}

	slugSkills := pl.stringsOf("skills")
	slugDomains := pl.stringsOf("domains")
	if len(slugSkills) == 0 && len(slugDomains) == 0 {
		return nil, core.OASFSourceNone
	}

	return &core.OASF{
		Skills:     slugsToScored(slugSkills),
		Domains:    slugsToScored(slugDomains),
		Confidence: 1,
	}, core.OASFSourceDeclared
}

func slugsToScored(slugs []string) []core.ScoredSlug {
	out := make([]core.ScoredSlug, len(slugs))
	for i, s := range slugs {
		out[i] = core.ScoredSlug{Slug: s, Confidence: 1}
	}
	return out
}

// ApplyClassification overwrites the payload-derived OASF with the persisted
// classification record.
func ApplyClassification(s *core.AgentSummary, c *core.Classification) {
	if c == nil {
		return
	}
	s.OASF = &core.OASF{
		Skills:       c.Skills,
		Domains:      c.Domains,
		Confidence:   c.Confidence,
		ClassifiedAt: c.ClassifiedAt,
		ModelVersion: c.ModelVersion,
	}
	s.OASFSource = core.OASFSourceLLM
}

// FromDetail builds an AgentSummary out of an SDK record, used on the
// chain-registry fallback path where no vector hit exists.
func FromDetail(d core.AgentDetail) core.AgentSummary {
	s := d.AgentSummary
	if s.MatchReasons == nil {
		s.MatchReasons = []string{}
	}
	if s.OASFSource == "" {
		s.OASFSource = core.OASFSourceNone
	}
	s.SearchScore = nil
	return s
}

// --- loose payload accessors ---

type payload map[string]interface{}

func (p payload) stringOf(key string) string {
	if v, ok := p[key].(string); ok {
		return v
	}
	return ""
}

func (p payload) boolOf(key string) bool {
	if v, ok := p[key].(bool); ok {
		return v
	}
	return false
}

func (p payload) int64Of(key string) int64 {
	switch v := p[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	default:
		return 0
	}
}

func (p payload) stringsOf(key string) []string {
	raw, ok := p[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, e := range raw {
		if s, ok := e.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// scoredOf decodes [{slug, confidence}] entries, skipping malformed items.
func (p payload) scoredOf(key string) []core.ScoredSlug {
	raw, ok := p[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]core.ScoredSlug, 0, len(raw))
	for _, e := range raw {
		m, ok := e.(map[string]interface{})
		if !ok {
			continue
		}
		slug, _ := m["slug"].(string)
		if slug == "" {
			continue
		}
		conf, _ := m["confidence"].(float64)
		out = append(out, core.ScoredSlug{Slug: slug, Confidence: conf})
	}
	return out
}
