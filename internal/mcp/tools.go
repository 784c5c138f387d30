package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/agentindex/gateway/internal/core"
	"github.com/agentindex/gateway/internal/search"
)

const maxQueryLength = 500

func toolDefinitions() []map[string]interface{} {
	limitProp := map[string]interface{}{
		"type": "integer", "minimum": 1, "maximum": 100,
		"description": "Maximum results to return",
	}

	return []map[string]interface{}{
		{
			"name":        "search_agents",
			"description": "Semantic search over registered agents with optional capability filters",
			"inputSchema": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"query":   map[string]interface{}{"type": "string", "description": "Natural-language search query"},
					"chainId": map[string]interface{}{"type": "integer", "description": "Restrict to one chain"},
					"mcp":     map[string]interface{}{"type": "boolean", "description": "Require MCP support"},
					"a2a":     map[string]interface{}{"type": "boolean", "description": "Require A2A support"},
					"limit":   limitProp,
				},
				"required": []string{"query"},
			},
		},
		{
			"name":        "get_agent",
			"description": "Fetch one agent's full record by its chainId:tokenId identifier",
			"inputSchema": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"agentId": map[string]interface{}{"type": "string", "description": "Agent id in chainId:tokenId form"},
				},
				"required": []string{"agentId"},
			},
		},
		{
			"name":        "list_agents",
			"description": "List registered agents with filters, newest first",
			"inputSchema": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"chainId": map[string]interface{}{"type": "integer", "description": "Restrict to one chain"},
					"mcp":     map[string]interface{}{"type": "boolean", "description": "Require MCP support"},
					"a2a":     map[string]interface{}{"type": "boolean", "description": "Require A2A support"},
					"limit":   limitProp,
				},
			},
		},
		{
			"name":        "get_chain_stats",
			"description": "Per-chain agent counts and sync status",
			"inputSchema": map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
	}
}

type toolCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type toolArgs struct {
	Query   string `json:"query"`
	AgentID string `json:"agentId"`
	ChainID int64  `json:"chainId"`
	MCP     *bool  `json:"mcp"`
	A2A     *bool  `json:"a2a"`
	Limit   int    `json:"limit"`
}

func (s *Server) handleToolCall(ctx context.Context, req *request) *response {
	var params toolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, codeInvalidParams, "invalid tools/call params", nil)
	}

	var args toolArgs
	if len(params.Arguments) > 0 {
		if err := json.Unmarshal(params.Arguments, &args); err != nil {
			return errorResponse(req.ID, codeInvalidParams, "invalid tool arguments", nil)
		}
	}
	if args.Limit <= 0 {
		args.Limit = 10
	}
	if args.Limit > search.MaxLimit {
		args.Limit = search.MaxLimit
	}

	var payload interface{}
	var err error
	switch params.Name {
	case "search_agents":
		payload, err = s.toolSearchAgents(ctx, args)
	case "get_agent":
		payload, err = s.toolGetAgent(ctx, args)
	case "list_agents":
		payload, err = s.toolListAgents(ctx, args)
	case "get_chain_stats":
		payload, err = s.chain.ChainStats(ctx)
	default:
		return errorResponse(req.ID, codeInvalidParams, fmt.Sprintf("unknown tool %q", params.Name), nil)
	}
	if err != nil {
		return toolError(req.ID, err)
	}

	text, merr := json.Marshal(payload)
	if merr != nil {
		return errorResponse(req.ID, codeInternalError, "could not encode tool result", nil)
	}
	return resultResponse(req.ID, map[string]interface{}{
		"content": []map[string]interface{}{
			{"type": "text", "text": string(text)},
		},
	})
}

func (s *Server) toolSearchAgents(ctx context.Context, args toolArgs) (interface{}, error) {
	if args.Query == "" {
		return nil, fmt.Errorf("query is required")
	}
	if utf8.RuneCountInString(args.Query) > maxQueryLength {
		return nil, fmt.Errorf("query exceeds %d characters", maxQueryLength)
	}
	return s.engine.Search(ctx, core.Query{
		Text:    args.Query,
		Filters: args.filters(),
		Limit:   args.Limit,
	})
}

func (s *Server) toolGetAgent(ctx context.Context, args toolArgs) (interface{}, error) {
	id, err := core.ParseAgentID(args.AgentID)
	if err != nil {
		return nil, err
	}
	detail, err := s.chain.GetAgent(ctx, id.ChainID, id.TokenID)
	if err != nil {
		return nil, err
	}
	if detail == nil {
		return nil, fmt.Errorf("agent %s not found", args.AgentID)
	}
	return detail, nil
}

func (s *Server) toolListAgents(ctx context.Context, args toolArgs) (interface{}, error) {
	return s.engine.List(ctx, core.Query{
		Filters: args.filters(),
		Limit:   args.Limit,
	})
}

func (args toolArgs) filters() core.SearchFilters {
	f := core.SearchFilters{MCP: args.MCP, A2A: args.A2A}
	if args.ChainID != 0 {
		f.ChainIDs = []int64{args.ChainID}
	}
	return f
}

// toolError renders a failed tool as an error-flagged content item, the
// shape clients surface to the model.
func toolError(id json.RawMessage, err error) *response {
	return resultResponse(id, map[string]interface{}{
		"isError": true,
		"content": []map[string]interface{}{
			{"type": "text", "text": err.Error()},
		},
	})
}
