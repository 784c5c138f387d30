package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentindex/gateway/internal/cache"
)

// newTestServer builds a dispatcher whose cache points at a dead address.
// Session writes fail and are logged; the protocol paths under test do not
// depend on them.
func newTestServer() *Server {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
	})
	return NewServer(nil, nil, cache.NewFromClient(rdb), nil, "test")
}

func postRPC(t *testing.T, s *Server, body string) (*httptest.ResponseRecorder, *response) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.HandleRPC(rec, req)

	if rec.Body.Len() == 0 {
		return rec, nil
	}
	var resp response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec, &resp
}

func TestInitializeNegotiatesVersion(t *testing.T) {
	s := newTestServer()
	rec, resp := postRPC(t, s, `{
		"jsonrpc": "2.0", "id": 1, "method": "initialize",
		"params": {"protocolVersion": "2025-03-26", "clientInfo": {"name": "test-client"}}
	}`)

	require.Nil(t, resp.Error)
	result := resp.Result.(map[string]interface{})
	assert.Equal(t, "2025-03-26", result["protocolVersion"])

	info := result["serverInfo"].(map[string]interface{})
	assert.Equal(t, serverName, info["name"])
	assert.NotEmpty(t, rec.Header().Get(headerSession))
	assert.Equal(t, "2025-03-26", rec.Header().Get(headerProtocol))
}

func TestInitializeDefaultsToLatestVersion(t *testing.T) {
	s := newTestServer()
	_, resp := postRPC(t, s, `{"jsonrpc": "2.0", "id": 1, "method": "initialize"}`)

	require.Nil(t, resp.Error)
	result := resp.Result.(map[string]interface{})
	assert.Equal(t, latestProtocolVersion(), result["protocolVersion"])
}

func TestInitializeRejectsUnsupportedVersion(t *testing.T) {
	s := newTestServer()
	_, resp := postRPC(t, s, `{
		"jsonrpc": "2.0", "id": 1, "method": "initialize",
		"params": {"protocolVersion": "1999-01-01"}
	}`)

	require.NotNil(t, resp.Error)
	assert.Equal(t, codeInvalidParams, resp.Error.Code)

	data := resp.Error.Data.(map[string]interface{})
	supported := data["supported"].([]interface{})
	assert.Len(t, supported, len(SupportedProtocolVersions))
}

func TestNotificationReturnsAcceptedWithoutBody(t *testing.T) {
	s := newTestServer()
	rec, resp := postRPC(t, s, `{"jsonrpc": "2.0", "method": "notifications/initialized"}`)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Nil(t, resp)
	assert.Equal(t, latestProtocolVersion(), rec.Header().Get(headerProtocol))
}

func TestUnknownMethod(t *testing.T) {
	s := newTestServer()
	_, resp := postRPC(t, s, `{"jsonrpc": "2.0", "id": 7, "method": "bogus/thing"}`)

	require.NotNil(t, resp.Error)
	assert.Equal(t, codeMethodNotFound, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "bogus/thing")
	assert.JSONEq(t, "7", string(resp.ID))
}

func TestParseError(t *testing.T) {
	s := newTestServer()
	_, resp := postRPC(t, s, `{not json`)

	require.NotNil(t, resp.Error)
	assert.Equal(t, codeParseError, resp.Error.Code)
}

func TestInvalidRequestVersion(t *testing.T) {
	s := newTestServer()
	_, resp := postRPC(t, s, `{"jsonrpc": "1.0", "id": 1, "method": "ping"}`)

	require.NotNil(t, resp.Error)
	assert.Equal(t, codeInvalidRequest, resp.Error.Code)
}

func TestPing(t *testing.T) {
	s := newTestServer()
	_, resp := postRPC(t, s, `{"jsonrpc": "2.0", "id": 1, "method": "ping"}`)

	require.Nil(t, resp.Error)
	assert.Equal(t, map[string]interface{}{}, resp.Result)
}

func TestToolsListNames(t *testing.T) {
	s := newTestServer()
	_, resp := postRPC(t, s, `{"jsonrpc": "2.0", "id": 1, "method": "tools/list"}`)

	require.Nil(t, resp.Error)
	result := resp.Result.(map[string]interface{})
	tools := result["tools"].([]interface{})

	names := make([]string, 0, len(tools))
	for _, tool := range tools {
		names = append(names, tool.(map[string]interface{})["name"].(string))
	}
	assert.ElementsMatch(t,
		[]string{"search_agents", "get_agent", "list_agents", "get_chain_stats"}, names)
}

func TestToolCallUnknownTool(t *testing.T) {
	s := newTestServer()
	_, resp := postRPC(t, s, `{
		"jsonrpc": "2.0", "id": 1, "method": "tools/call",
		"params": {"name": "drop_tables"}
	}`)

	require.NotNil(t, resp.Error)
	assert.Equal(t, codeInvalidParams, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "drop_tables")
}

func TestToolCallSearchRequiresQuery(t *testing.T) {
	s := newTestServer()
	_, resp := postRPC(t, s, `{
		"jsonrpc": "2.0", "id": 1, "method": "tools/call",
		"params": {"name": "search_agents", "arguments": {}}
	}`)

	// Tool failures come back as error-flagged content, not protocol errors.
	require.Nil(t, resp.Error)
	result := resp.Result.(map[string]interface{})
	assert.Equal(t, true, result["isError"])
}

func TestToolCallGetAgentRejectsBadID(t *testing.T) {
	s := newTestServer()
	_, resp := postRPC(t, s, `{
		"jsonrpc": "2.0", "id": 1, "method": "tools/call",
		"params": {"name": "get_agent", "arguments": {"agentId": "not-an-id"}}
	}`)

	require.Nil(t, resp.Error)
	result := resp.Result.(map[string]interface{})
	assert.Equal(t, true, result["isError"])
}

func TestMalformedBearerDenied(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/mcp",
		strings.NewReader(`{"jsonrpc": "2.0", "id": 1, "method": "ping"}`))
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	rec := httptest.NewRecorder()
	s.HandleRPC(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "invalid_token")
}

// newSessionServer backs the dispatcher with a live in-process Redis so the
// session lifecycle is observable.
func newSessionServer(t *testing.T) *Server {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewServer(nil, nil, cache.NewFromClient(rdb), nil, "test")
}

func loadSession(t *testing.T, s *Server, id string) session {
	t.Helper()
	var sess session
	require.NoError(t, s.cache.GetJSON(context.Background(), cache.KeyMCPSession(id), &sess))
	return sess
}

func TestSessionRecordStoresNegotiatedState(t *testing.T) {
	s := newSessionServer(t)
	rec, resp := postRPC(t, s, `{
		"jsonrpc": "2.0", "id": 1, "method": "initialize",
		"params": {"protocolVersion": "2024-11-05", "clientInfo": {"name": "inspector", "version": "0.9"}}
	}`)
	require.Nil(t, resp.Error)

	id := rec.Header().Get(headerSession)
	require.NotEmpty(t, id)

	sess := loadSession(t, s, id)
	assert.Equal(t, "2024-11-05", sess.ProtocolVersion)
	require.NotNil(t, sess.ClientInfo)
	assert.Equal(t, "inspector", sess.ClientInfo.Name)
	assert.Equal(t, serverInfo{Name: serverName, Version: "test"}, sess.ServerInfo)
	assert.False(t, sess.Initialized)
	assert.False(t, sess.CreatedAt.IsZero())
	assert.Equal(t, sess.CreatedAt, sess.LastActivityAt)
}

func TestInitializedNotificationMarksSession(t *testing.T) {
	s := newSessionServer(t)
	rec, _ := postRPC(t, s, `{
		"jsonrpc": "2.0", "id": 1, "method": "initialize",
		"params": {"protocolVersion": "2024-11-05"}
	}`)
	id := rec.Header().Get(headerSession)
	require.NotEmpty(t, id)

	req := httptest.NewRequest(http.MethodPost, "/mcp",
		strings.NewReader(`{"jsonrpc": "2.0", "method": "notifications/initialized"}`))
	req.Header.Set(headerSession, id)
	rec2 := httptest.NewRecorder()
	s.HandleRPC(rec2, req)

	assert.Equal(t, http.StatusAccepted, rec2.Code)
	sess := loadSession(t, s, id)
	assert.True(t, sess.Initialized)
	assert.False(t, sess.LastActivityAt.Before(sess.CreatedAt))
}

func TestProtocolHeaderEchoesNegotiatedVersion(t *testing.T) {
	s := newSessionServer(t)
	rec, _ := postRPC(t, s, `{
		"jsonrpc": "2.0", "id": 1, "method": "initialize",
		"params": {"protocolVersion": "2024-11-05"}
	}`)
	assert.Equal(t, "2024-11-05", rec.Header().Get(headerProtocol))

	id := rec.Header().Get(headerSession)
	req := httptest.NewRequest(http.MethodPost, "/mcp",
		strings.NewReader(`{"jsonrpc": "2.0", "id": 2, "method": "ping"}`))
	req.Header.Set(headerSession, id)
	rec2 := httptest.NewRecorder()
	s.HandleRPC(rec2, req)

	assert.Equal(t, "2024-11-05", rec2.Header().Get(headerProtocol))

	// Without a session the header reports the newest supported version.
	rec3, _ := postRPC(t, s, `{"jsonrpc": "2.0", "id": 3, "method": "ping"}`)
	assert.Equal(t, latestProtocolVersion(), rec3.Header().Get(headerProtocol))
}

func TestDeleteSession(t *testing.T) {
	s := newTestServer()

	req := httptest.NewRequest(http.MethodDelete, "/mcp", nil)
	rec := httptest.NewRecorder()
	s.HandleDelete(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodDelete, "/mcp", nil)
	req.Header.Set(headerSession, "abc123")
	rec = httptest.NewRecorder()
	s.HandleDelete(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
