package middleware

import (
	"context"
	"crypto/subtle"
	"net"
	"net/http"
	"strings"

	"github.com/agentindex/gateway/internal/apierror"
)

// Tier names used for rate-limit classes.
const (
	TierAnonymous     = "anonymous"
	TierAuthenticated = "authenticated"
)

// Identity is the resolved caller for one request.
type Identity struct {
	APIKey        string
	Authenticated bool
	ClientIP      string
}

// Tier maps the identity onto a rate-limit class.
func (id Identity) Tier() string {
	if id.Authenticated {
		return TierAuthenticated
	}
	return TierAnonymous
}

// Key is the rate-limit counter identity: the API key when authenticated,
// the client IP otherwise.
func (id Identity) Key() string {
	if id.Authenticated {
		return id.APIKey
	}
	return id.ClientIP
}

// Auth resolves the caller from X-API-Key, then Authorization: Bearer.
// Unknown keys downgrade to anonymous instead of failing; the listing
// surface stays open and only requireApiKey routes enforce.
func Auth(validKeys []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := Identity{ClientIP: clientIP(r)}
			if key := extractAPIKey(r); key != "" && keyValid(validKeys, key) {
				id.APIKey = key
				id.Authenticated = true
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey, id)))
		})
	}
}

// RequireAPIKey rejects anonymous callers; used only on protected routes.
func RequireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !GetIdentity(r.Context()).Authenticated {
			writeError(w, r, apierror.Unauthorized("valid API key required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetIdentity returns the resolved caller, anonymous when the auth
// middleware did not run.
func GetIdentity(ctx context.Context) Identity {
	id, _ := ctx.Value(identityKey).(Identity)
	return id
}

func extractAPIKey(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

func keyValid(validKeys []string, key string) bool {
	for _, k := range validKeys {
		if subtle.ConstantTimeCompare([]byte(k), []byte(key)) == 1 {
			return true
		}
	}
	return false
}

// clientIP trusts only the proxy-set True-Client-IP header; forwarded
// headers are client-spoofable and ignored.
func clientIP(r *http.Request) string {
	if ip := r.Header.Get("True-Client-IP"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
