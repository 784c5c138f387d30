package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentindex/gateway/internal/cache"
	"github.com/agentindex/gateway/internal/config"
)

func testLimiter(t *testing.T, cfg config.RateLimitConfig) *RateLimiter {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewRateLimiter(cache.NewFromClient(rdb), cfg)
}

func limitedRequest(rl *RateLimiter, id Identity) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/agents", nil)
	req = req.WithContext(context.WithValue(req.Context(), identityKey, id))
	rec := httptest.NewRecorder()
	rl.Limit(okHandler()).ServeHTTP(rec, req)
	return rec
}

func TestLimitAllowsUnderBudget(t *testing.T) {
	rl := testLimiter(t, config.RateLimitConfig{AnonymousPerMinute: 2})
	id := Identity{ClientIP: "203.0.113.9"}

	rec := limitedRequest(rl, id)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Remaining"))

	rec = limitedRequest(rl, id)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
}

func TestLimitRejectsOverBudget(t *testing.T) {
	rl := testLimiter(t, config.RateLimitConfig{AnonymousPerMinute: 1})
	id := Identity{ClientIP: "203.0.113.9"}

	require.Equal(t, http.StatusOK, limitedRequest(rl, id).Code)

	rec := limitedRequest(rl, id)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Contains(t, rec.Body.String(), "RATE_LIMIT_EXCEEDED")

	reset, err := strconv.ParseInt(rec.Header().Get("X-RateLimit-Reset"), 10, 64)
	require.NoError(t, err, "X-RateLimit-Reset must be epoch seconds")
	assert.GreaterOrEqual(t, reset, time.Now().Unix())
	assert.LessOrEqual(t, reset, time.Now().Add(rateWindow).Unix())

	retry, err := strconv.Atoi(rec.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.Positive(t, retry)
	assert.LessOrEqual(t, retry, int(rateWindow.Seconds()))
}

func TestLimitKeysTiersSeparately(t *testing.T) {
	rl := testLimiter(t, config.RateLimitConfig{AnonymousPerMinute: 1, AuthenticatedPerMinute: 3})
	anon := Identity{ClientIP: "203.0.113.9"}
	authed := Identity{APIKey: "secret-key", Authenticated: true}

	require.Equal(t, http.StatusOK, limitedRequest(rl, anon).Code)
	assert.Equal(t, http.StatusTooManyRequests, limitedRequest(rl, anon).Code)

	// The authenticated caller counts against its own key and budget.
	rec := limitedRequest(rl, authed)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "3", rec.Header().Get("X-RateLimit-Limit"))
}

func TestLimitMutationsBudget(t *testing.T) {
	rl := testLimiter(t, config.RateLimitConfig{MutationPerMinute: 1})
	id := Identity{APIKey: "secret-key", Authenticated: true}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/agents/1:1/reputation/feedback", nil)
	req = req.WithContext(context.WithValue(req.Context(), identityKey, id))
	rec := httptest.NewRecorder()
	rl.LimitMutations(okHandler()).ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	rl.LimitMutations(okHandler()).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestLimitFailsClosedWhenCounterUnavailable(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond})
	t.Cleanup(func() { rdb.Close() })
	rl := NewRateLimiter(cache.NewFromClient(rdb), config.RateLimitConfig{AnonymousPerMinute: 100})

	rec := limitedRequest(rl, Identity{ClientIP: "203.0.113.9"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
