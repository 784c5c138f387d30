package mcp

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const keepaliveInterval = 15 * time.Second

// HandleSSE serves the legacy SSE transport: one endpoint event naming the
// JSON-RPC URL for this session, then keepalive comments until the client
// goes away.
func (s *Server) HandleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sessionID := r.Header.Get(headerSession)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	fmt.Fprintf(w, "event: endpoint\ndata: /mcp?sessionId=%s\n\n", sessionID)
	flusher.Flush()

	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		}
	}
}

// HandleSchema serves a machine-readable description of the MCP surface.
func (s *Server) HandleSchema(w http.ResponseWriter, r *http.Request) {
	writeJSONBody(w, map[string]interface{}{
		"name":               serverName,
		"version":            s.version,
		"protocolVersions":   SupportedProtocolVersions,
		"tools":              toolDefinitions(),
		"resources":          resourceDefinitions(),
		"prompts":            promptDefinitions(),
		"transport":          []string{"streamable-http", "sse"},
		"sessionHeader":      headerSession,
		"sessionTTLSeconds":  3600,
		"authorizationModes": []string{"anonymous", "bearer"},
	})
}

// HandleDocs is a short human-readable pointer page.
func (s *Server) HandleDocs(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "%s MCP endpoint\n\n", serverName)
	fmt.Fprint(w, "POST /mcp          JSON-RPC 2.0 (initialize, tools/*, resources/*, prompts/*)\n")
	fmt.Fprint(w, "GET  /sse          legacy SSE transport\n")
	fmt.Fprint(w, "GET  /mcp/schema.json  full tool and resource schema\n\n")
	fmt.Fprintf(w, "Protocol versions: %v\n", SupportedProtocolVersions)
}

func writeJSONBody(w http.ResponseWriter, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	buf, err := json.MarshalIndent(body, "", "  ")
	if err != nil {
		fmt.Fprint(w, "{}")
		return
	}
	w.Write(buf)
}
