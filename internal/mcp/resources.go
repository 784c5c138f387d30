package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/agentindex/gateway/internal/taxonomy"
)

// Canonical resource URIs under the registry's 8004:// scheme.
const (
	uriScheme         = "8004://"
	uriSkillsTaxonomy = "8004://taxonomy/skills"
	uriDomainTaxonomy = "8004://taxonomy/domains"
	uriChainStats     = "8004://chains/stats"
)

func resourceDefinitions() []map[string]interface{} {
	return []map[string]interface{}{
		{
			"uri":         uriSkillsTaxonomy,
			"name":        "OASF skills taxonomy",
			"description": "Skill slugs agents can be classified with",
			"mimeType":    "application/json",
		},
		{
			"uri":         uriDomainTaxonomy,
			"name":        "OASF domains taxonomy",
			"description": "Domain slugs agents can be classified with",
			"mimeType":    "application/json",
		},
		{
			"uri":         uriChainStats,
			"name":        "Chain statistics",
			"description": "Per-chain agent counts and sync status",
			"mimeType":    "application/json",
		},
	}
}

type resourceReadParams struct {
	URI string `json:"uri"`
}

func (s *Server) handleResourceRead(ctx context.Context, req *request) *response {
	var params resourceReadParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, codeInvalidParams, "invalid resources/read params", nil)
	}
	if !strings.HasPrefix(params.URI, uriScheme) {
		return errorResponse(req.ID, codeInvalidParams,
			fmt.Sprintf("resource URIs must start with %s", uriScheme), nil)
	}

	var payload interface{}
	switch params.URI {
	case uriSkillsTaxonomy:
		payload = map[string]interface{}{"skills": taxonomy.Skills()}
	case uriDomainTaxonomy:
		payload = map[string]interface{}{"domains": taxonomy.Domains()}
	case uriChainStats:
		stats, err := s.chain.ChainStats(ctx)
		if err != nil {
			return errorResponse(req.ID, codeInternalError, "chain stats unavailable", nil)
		}
		payload = map[string]interface{}{"chains": stats}
	default:
		return errorResponse(req.ID, codeInvalidParams, fmt.Sprintf("unknown resource %q", params.URI), nil)
	}

	text, err := json.Marshal(payload)
	if err != nil {
		return errorResponse(req.ID, codeInternalError, "could not encode resource", nil)
	}
	return resultResponse(req.ID, map[string]interface{}{
		"contents": []map[string]interface{}{
			{"uri": params.URI, "mimeType": "application/json", "text": string(text)},
		},
	})
}
