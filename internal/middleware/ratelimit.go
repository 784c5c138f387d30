package middleware

import (
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/agentindex/gateway/internal/apierror"
	"github.com/agentindex/gateway/internal/cache"
	"github.com/agentindex/gateway/internal/config"
)

const rateWindow = time.Minute

// RateLimiter enforces fixed-window per-identity limits backed by the cache.
// Counter errors fail closed: a limiter that cannot count cannot protect.
type RateLimiter struct {
	cache  *cache.Service
	cfg    config.RateLimitConfig
	logger *log.Logger
}

func NewRateLimiter(c *cache.Service, cfg config.RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		cache:  c,
		cfg:    cfg,
		logger: log.New(log.Writer(), "[RATE-LIMIT] ", log.LstdFlags),
	}
}

// Limit applies the caller's tier limit (anonymous/authenticated).
func (rl *RateLimiter) Limit(next http.Handler) http.Handler {
	return rl.limitWith(next, func(id Identity) (string, int) {
		if id.Authenticated {
			return TierAuthenticated, rl.cfg.AuthenticatedPerMinute
		}
		return TierAnonymous, rl.cfg.AnonymousPerMinute
	})
}

// LimitMutations applies the tight classification-mutation budget.
func (rl *RateLimiter) LimitMutations(next http.Handler) http.Handler {
	return rl.limitWith(next, func(id Identity) (string, int) {
		return "mutation", rl.cfg.MutationPerMinute
	})
}

func (rl *RateLimiter) limitWith(next http.Handler, pick func(Identity) (string, int)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := GetIdentity(r.Context())
		class, limit := pick(id)
		key := cache.KeyRateLimit(id.Key(), class)

		count, err := rl.cache.IncrWindow(r.Context(), key, rateWindow)
		if err != nil {
			rl.logger.Printf("counter unavailable, failing closed: %v", err)
			writeError(w, r, apierror.Internal(fmt.Errorf("rate limit counter: %w", err)))
			return
		}

		remaining := int64(limit) - count
		if remaining < 0 {
			remaining = 0
		}
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

		if count > int64(limit) {
			retry := rateWindow
			if ttl, terr := rl.cache.TTL(r.Context(), key); terr == nil && ttl > 0 {
				retry = ttl
			}
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(retry).Unix(), 10))
			w.Header().Set("Retry-After", strconv.Itoa(int(retry.Seconds())))
			writeError(w, r, apierror.RateLimited())
			return
		}

		next.ServeHTTP(w, r)
	})
}
