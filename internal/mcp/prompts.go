package mcp

import (
	"encoding/json"
	"fmt"
)

func promptDefinitions() []map[string]interface{} {
	return []map[string]interface{}{
		{
			"name":        "find_agents_for_task",
			"description": "Find registry agents suited to a task description",
			"arguments": []map[string]interface{}{
				{"name": "task", "description": "What the agent should accomplish", "required": true},
				{"name": "chainId", "description": "Restrict to one chain id", "required": false},
			},
		},
		{
			"name":        "evaluate_agent",
			"description": "Assess one agent's capabilities, reputation, and trust standing",
			"arguments": []map[string]interface{}{
				{"name": "agentId", "description": "Agent id in chainId:tokenId form", "required": true},
			},
		},
	}
}

type promptGetParams struct {
	Name      string            `json:"name"`
	Arguments map[string]string `json:"arguments"`
}

func (s *Server) handlePromptGet(req *request) *response {
	var params promptGetParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, codeInvalidParams, "invalid prompts/get params", nil)
	}

	var text string
	switch params.Name {
	case "find_agents_for_task":
		task := params.Arguments["task"]
		if task == "" {
			return errorResponse(req.ID, codeInvalidParams, "task argument is required", nil)
		}
		text = fmt.Sprintf("Use the search_agents tool to find agents that can: %s. "+
			"Compare the top results by skills, reputation score, and supported trust models, "+
			"then recommend the best match with its agentId.", task)
		if chainID := params.Arguments["chainId"]; chainID != "" {
			text += fmt.Sprintf(" Only consider agents on chain %s.", chainID)
		}
	case "evaluate_agent":
		agentID := params.Arguments["agentId"]
		if agentID == "" {
			return errorResponse(req.ID, codeInvalidParams, "agentId argument is required", nil)
		}
		text = fmt.Sprintf("Use the get_agent tool to fetch agent %s, then summarize its "+
			"capabilities, classification confidence, reputation, and trust score. "+
			"Flag anything that looks stale or inconsistent.", agentID)
	default:
		return errorResponse(req.ID, codeInvalidParams, fmt.Sprintf("unknown prompt %q", params.Name), nil)
	}

	return resultResponse(req.ID, map[string]interface{}{
		"messages": []map[string]interface{}{
			{
				"role":    "user",
				"content": map[string]string{"type": "text", "text": text},
			},
		},
	})
}
