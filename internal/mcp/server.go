package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/agentindex/gateway/internal/cache"
	"github.com/agentindex/gateway/internal/chain"
	"github.com/agentindex/gateway/internal/oauth"
	"github.com/agentindex/gateway/internal/search"
)

// Protocol versions this server accepts, newest last.
var SupportedProtocolVersions = []string{
	"2024-11-05",
	"2025-03-26",
	"2025-06-18",
	"2025-11-25",
}

const (
	headerSession  = "Mcp-Session-Id"
	headerProtocol = "MCP-Protocol-Version"

	serverName = "agentindex-gateway"
)

type clientInfo struct {
	Name    string `json:"name,omitempty"`
	Version string `json:"version,omitempty"`
}

type serverInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// session is the Redis-backed per-client record, 1-hour TTL, touched on use.
type session struct {
	ID              string      `json:"id"`
	ProtocolVersion string      `json:"protocolVersion"`
	ClientInfo      *clientInfo `json:"clientInfo,omitempty"`
	ServerInfo      serverInfo  `json:"serverInfo"`
	Initialized     bool        `json:"initialized"`
	CreatedAt       time.Time   `json:"createdAt"`
	LastActivityAt  time.Time   `json:"lastActivityAt"`
}

// Server is the MCP endpoint: POST /mcp for JSON-RPC, GET /sse for the
// legacy transport, DELETE /mcp to end a session.
type Server struct {
	engine  *search.Engine
	chain   chain.Registry
	cache   *cache.Service
	auth    *oauth.Server
	version string
	logger  *log.Logger
}

func NewServer(engine *search.Engine, registry chain.Registry, c *cache.Service,
	auth *oauth.Server, version string) *Server {
	return &Server{
		engine:  engine,
		chain:   registry,
		cache:   c,
		auth:    auth,
		version: version,
		logger:  log.New(log.Writer(), "[MCP] ", log.LstdFlags),
	}
}

// HandleRPC serves POST /mcp. Bearer auth is dual-mode: absent is anonymous,
// present must be valid.
func (s *Server) HandleRPC(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(w, r) {
		return
	}

	var req request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeResponse(w, latestProtocolVersion(), errorResponse(nil, codeParseError, "parse error", nil))
		return
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		s.writeResponse(w, latestProtocolVersion(), errorResponse(req.ID, codeInvalidRequest, "invalid request", nil))
		return
	}

	sess := s.touchSession(r.Context(), r.Header.Get(headerSession))
	version := latestProtocolVersion()
	if sess != nil {
		version = sess.ProtocolVersion
	}

	if req.isNotification() {
		// initialized and notifications/* produce no body.
		if req.Method == "notifications/initialized" && sess != nil {
			sess.Initialized = true
			s.saveSession(r.Context(), sess)
		}
		w.Header().Set(headerProtocol, version)
		w.WriteHeader(http.StatusAccepted)
		return
	}

	resp := s.dispatch(r.Context(), w, &req)
	s.writeResponse(w, version, resp)
}

// HandleDelete terminates the session named in the header.
func (s *Server) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.Header.Get(headerSession)
	if id == "" {
		http.Error(w, "missing "+headerSession, http.StatusBadRequest)
		return
	}
	if err := s.cache.Delete(r.Context(), cache.KeyMCPSession(id)); err != nil {
		s.logger.Printf("terminate session %s: %v", id, err)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) dispatch(ctx context.Context, w http.ResponseWriter, req *request) *response {
	switch req.Method {
	case "initialize":
		return s.handleInitialize(ctx, w, req)
	case "ping":
		return resultResponse(req.ID, map[string]interface{}{})
	case "tools/list":
		return resultResponse(req.ID, map[string]interface{}{"tools": toolDefinitions()})
	case "tools/call":
		return s.handleToolCall(ctx, req)
	case "resources/list":
		return resultResponse(req.ID, map[string]interface{}{"resources": resourceDefinitions()})
	case "resources/read":
		return s.handleResourceRead(ctx, req)
	case "prompts/list":
		return resultResponse(req.ID, map[string]interface{}{"prompts": promptDefinitions()})
	case "prompts/get":
		return s.handlePromptGet(req)
	default:
		return errorResponse(req.ID, codeMethodNotFound, fmt.Sprintf("method %q not found", req.Method), nil)
	}
}

type initializeParams struct {
	ProtocolVersion string     `json:"protocolVersion"`
	ClientInfo      clientInfo `json:"clientInfo"`
}

func (s *Server) handleInitialize(ctx context.Context, w http.ResponseWriter, req *request) *response {
	var params initializeParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errorResponse(req.ID, codeInvalidParams, "invalid initialize params", nil)
		}
	}

	version := params.ProtocolVersion
	if version == "" {
		version = latestProtocolVersion()
	}
	if !supportedVersion(version) {
		return errorResponse(req.ID, codeInvalidParams, "unsupported protocol version",
			map[string]interface{}{"supported": SupportedProtocolVersions})
	}

	now := time.Now().UTC()
	sess := &session{
		ID:              uuid.NewString(),
		ProtocolVersion: version,
		ServerInfo:      serverInfo{Name: serverName, Version: s.version},
		CreatedAt:       now,
		LastActivityAt:  now,
	}
	if params.ClientInfo != (clientInfo{}) {
		sess.ClientInfo = &params.ClientInfo
	}
	s.saveSession(ctx, sess)
	w.Header().Set(headerSession, sess.ID)
	w.Header().Set(headerProtocol, version)

	return resultResponse(req.ID, map[string]interface{}{
		"protocolVersion": version,
		"serverInfo":      sess.ServerInfo,
		"capabilities": map[string]interface{}{
			"tools":     map[string]interface{}{},
			"resources": map[string]interface{}{},
			"prompts":   map[string]interface{}{},
		},
	})
}

// authorize implements dual-mode bearer auth: no header is anonymous, a
// presented bearer must validate.
func (s *Server) authorize(w http.ResponseWriter, r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return true
	}
	const prefix = "Bearer "
	if len(auth) <= len(prefix) || auth[:len(prefix)] != prefix {
		s.deny(w)
		return false
	}
	if _, err := s.auth.ValidateAccessToken(r.Context(), auth[len(prefix):]); err != nil {
		if !errors.Is(err, oauth.ErrInvalidToken) {
			s.logger.Printf("bearer validation: %v", err)
		}
		s.deny(w)
		return false
	}
	return true
}

func (s *Server) deny(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="mcp", error="invalid_token"`)
	http.Error(w, "invalid bearer token", http.StatusUnauthorized)
}

// touchSession loads the named session, records the activity, and rewrites
// it with a fresh TTL. Returns nil for absent or expired sessions.
func (s *Server) touchSession(ctx context.Context, id string) *session {
	if id == "" {
		return nil
	}
	var sess session
	if err := s.cache.GetJSON(ctx, cache.KeyMCPSession(id), &sess); err != nil {
		if err != cache.ErrMiss {
			s.logger.Printf("touch session %s: %v", id, err)
		}
		return nil
	}
	sess.LastActivityAt = time.Now().UTC()
	s.saveSession(ctx, &sess)
	return &sess
}

func (s *Server) saveSession(ctx context.Context, sess *session) {
	if err := s.cache.SetJSON(ctx, cache.KeyMCPSession(sess.ID), sess, cache.TTLMCPSession); err != nil {
		s.logger.Printf("store session %s: %v", sess.ID, err)
	}
}

// writeResponse sets the protocol header to the caller's negotiated version;
// initialize sets it itself for the version it just granted.
func (s *Server) writeResponse(w http.ResponseWriter, version string, resp *response) {
	w.Header().Set("Content-Type", "application/json")
	if w.Header().Get(headerProtocol) == "" {
		w.Header().Set(headerProtocol, version)
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Printf("write response: %v", err)
	}
}

func supportedVersion(v string) bool {
	for _, sv := range SupportedProtocolVersions {
		if sv == v {
			return true
		}
	}
	return false
}

func latestProtocolVersion() string {
	return SupportedProtocolVersions[len(SupportedProtocolVersions)-1]
}
