package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/agentindex/gateway/internal/config"
	"github.com/agentindex/gateway/internal/database"
)

// ErrInvalidToken is returned for revoked, expired, or unknown bearers.
var ErrInvalidToken = errors.New("invalid or expired token")

// Server is the authorization server mounted under /oauth.
type Server struct {
	store  *database.Store
	cfg    config.OAuthConfig
	logger *log.Logger
}

func NewServer(store *database.Store, cfg config.OAuthConfig) *Server {
	return &Server{
		store:  store,
		cfg:    cfg,
		logger: log.New(log.Writer(), "[OAUTH] ", log.LstdFlags),
	}
}

// --- registration (RFC 7591) ---

type registrationRequest struct {
	RedirectURIs  []string `json:"redirect_uris"`
	ClientName    string   `json:"client_name"`
	GrantTypes    []string `json:"grant_types"`
	ResponseTypes []string `json:"response_types"`
	Scope         string   `json:"scope"`
	TokenAuth     string   `json:"token_endpoint_auth_method"`
}

type registrationResponse struct {
	ClientID      string   `json:"client_id"`
	ClientSecret  string   `json:"client_secret,omitempty"`
	ClientName    string   `json:"client_name"`
	RedirectURIs  []string `json:"redirect_uris"`
	GrantTypes    []string `json:"grant_types"`
	ResponseTypes []string `json:"response_types"`
	Scope         string   `json:"scope"`
	TokenAuth     string   `json:"token_endpoint_auth_method"`
	IssuedAt      int64    `json:"client_id_issued_at"`
}

// HandleRegister implements dynamic client registration.
func (s *Server) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_client_metadata", "request body is not valid JSON")
		return
	}
	if len(req.RedirectURIs) == 0 {
		writeOAuthError(w, http.StatusBadRequest, "invalid_redirect_uri", "redirect_uris is required")
		return
	}
	for _, uri := range req.RedirectURIs {
		if err := validateRedirectURI(uri); err != nil {
			writeOAuthError(w, http.StatusBadRequest, "invalid_redirect_uri", err.Error())
			return
		}
	}

	if len(req.GrantTypes) == 0 {
		req.GrantTypes = []string{"authorization_code", "refresh_token"}
	}
	if len(req.ResponseTypes) == 0 {
		req.ResponseTypes = []string{"code"}
	}
	if req.TokenAuth == "" {
		req.TokenAuth = "client_secret_post"
	}

	client := &database.OAuthClient{
		ClientID:      uuid.NewString(),
		Name:          req.ClientName,
		RedirectURIs:  req.RedirectURIs,
		GrantTypes:    req.GrantTypes,
		ResponseTypes: req.ResponseTypes,
		Scope:         req.Scope,
		TokenAuth:     req.TokenAuth,
		CreatedAt:     time.Now().UTC(),
	}

	var secret string
	if req.TokenAuth != "none" {
		var err error
		secret, _, err = NewToken()
		if err != nil {
			writeOAuthError(w, http.StatusInternalServerError, "server_error", "could not mint client secret")
			return
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
		if err != nil {
			writeOAuthError(w, http.StatusInternalServerError, "server_error", "could not hash client secret")
			return
		}
		client.SecretHash = string(hash)
	}

	if err := s.store.CreateOAuthClient(r.Context(), client); err != nil {
		s.logger.Printf("register client: %v", err)
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "registration failed")
		return
	}

	s.logger.Printf("registered client %s (%s)", client.ClientID, client.Name)
	writeJSON(w, http.StatusCreated, registrationResponse{
		ClientID:      client.ClientID,
		ClientSecret:  secret,
		ClientName:    client.Name,
		RedirectURIs:  client.RedirectURIs,
		GrantTypes:    client.GrantTypes,
		ResponseTypes: client.ResponseTypes,
		Scope:         client.Scope,
		TokenAuth:     client.TokenAuth,
		IssuedAt:      client.CreatedAt.Unix(),
	})
}

// --- authorization ---

// HandleAuthorize runs the code flow. Errors found before the redirect_uri
// is trusted render HTML; errors after it redirect back to the client.
func (s *Server) HandleAuthorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	clientID := q.Get("client_id")
	redirectURI := q.Get("redirect_uri")

	client, err := s.store.GetOAuthClient(r.Context(), clientID)
	if err != nil {
		s.logger.Printf("authorize lookup: %v", err)
		renderHTMLError(w, "Authorization failed", "The server could not process the request.")
		return
	}
	if client == nil {
		renderHTMLError(w, "Unknown client", "The client_id is not registered.")
		return
	}
	if !containsString(client.RedirectURIs, redirectURI) {
		renderHTMLError(w, "Invalid redirect URI", "The redirect_uri does not match the client registration.")
		return
	}
	if err := validateRedirectURI(redirectURI); err != nil {
		renderHTMLError(w, "Invalid redirect URI", err.Error())
		return
	}

	// redirect_uri is trusted from here; everything else redirects back.
	state := q.Get("state")
	if q.Get("response_type") != "code" {
		redirectError(w, r, redirectURI, state, "unsupported_response_type", "only the code flow is supported")
		return
	}

	challenge := q.Get("code_challenge")
	method := q.Get("code_challenge_method")
	if challenge == "" {
		redirectError(w, r, redirectURI, state, "invalid_request", "code_challenge is required")
		return
	}
	if method != "S256" {
		redirectError(w, r, redirectURI, state, "invalid_request", ErrPKCEMethod.Error())
		return
	}

	code, codeHash, err := NewToken()
	if err != nil {
		redirectError(w, r, redirectURI, state, "server_error", "could not mint authorization code")
		return
	}

	err = s.store.CreateOAuthCode(r.Context(), &database.OAuthCode{
		CodeHash:            codeHash,
		ClientID:            clientID,
		RedirectURI:         redirectURI,
		Scope:               q.Get("scope"),
		CodeChallenge:       challenge,
		CodeChallengeMethod: method,
		ExpiresAt:           time.Now().UTC().Add(time.Duration(s.cfg.CodeTTLSeconds) * time.Second),
		CreatedAt:           time.Now().UTC(),
	})
	if err != nil {
		s.logger.Printf("store code: %v", err)
		redirectError(w, r, redirectURI, state, "server_error", "could not persist authorization code")
		return
	}

	loc, _ := url.Parse(redirectURI)
	params := loc.Query()
	params.Set("code", code)
	if state != "" {
		params.Set("state", state)
	}
	loc.RawQuery = params.Encode()
	http.Redirect(w, r, loc.String(), http.StatusFound)
}

// --- token ---

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// HandleToken exchanges codes and refresh tokens for access tokens.
func (s *Server) HandleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "request body is not a valid form")
		return
	}

	clientID, secret := clientCredentials(r)
	client, err := s.store.GetOAuthClient(r.Context(), clientID)
	if err != nil {
		s.logger.Printf("token client lookup: %v", err)
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "client lookup failed")
		return
	}
	if client == nil {
		writeOAuthError(w, http.StatusUnauthorized, "invalid_client", "unknown client")
		return
	}
	if client.TokenAuth != "none" {
		if bcrypt.CompareHashAndPassword([]byte(client.SecretHash), []byte(secret)) != nil {
			writeOAuthError(w, http.StatusUnauthorized, "invalid_client", "client authentication failed")
			return
		}
	}

	switch r.PostFormValue("grant_type") {
	case "authorization_code":
		s.exchangeCode(w, r, client)
	case "refresh_token":
		s.refreshGrant(w, r, client)
	default:
		writeOAuthError(w, http.StatusBadRequest, "unsupported_grant_type", "grant_type must be authorization_code or refresh_token")
	}
}

func (s *Server) exchangeCode(w http.ResponseWriter, r *http.Request, client *database.OAuthClient) {
	code := r.PostFormValue("code")
	redirectURI := r.PostFormValue("redirect_uri")
	verifier := r.PostFormValue("code_verifier")
	if code == "" || redirectURI == "" || verifier == "" {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "code, redirect_uri and code_verifier are required")
		return
	}

	stored, err := s.store.RedeemOAuthCode(r.Context(), HashToken(code), client.ClientID, redirectURI)
	if err != nil {
		s.logger.Printf("redeem code: %v", err)
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "code redemption failed")
		return
	}
	if stored == nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "authorization code is invalid, used, or expired")
		return
	}

	if err := VerifyPKCE(verifier, stored.CodeChallenge, stored.CodeChallengeMethod); err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", err.Error())
		return
	}

	s.issueTokens(r.Context(), w, client.ClientID, stored.Scope)
}

func (s *Server) refreshGrant(w http.ResponseWriter, r *http.Request, client *database.OAuthClient) {
	presented := r.PostFormValue("refresh_token")
	if presented == "" {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "refresh_token is required")
		return
	}

	hash := HashToken(presented)
	stored, err := s.store.GetRefreshToken(r.Context(), hash)
	if err != nil {
		s.logger.Printf("refresh lookup: %v", err)
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "refresh lookup failed")
		return
	}
	if stored == nil || stored.Revoked || stored.ClientID != client.ClientID ||
		time.Now().After(stored.ExpiresAt) {
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "refresh token is invalid, revoked, or expired")
		return
	}

	// Rotation: the presented token dies before its replacement is issued.
	if err := s.store.RevokeRefreshToken(r.Context(), hash); err != nil {
		s.logger.Printf("rotate refresh: %v", err)
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "rotation failed")
		return
	}

	s.issueTokens(r.Context(), w, client.ClientID, stored.Scope)
}

func (s *Server) issueTokens(ctx context.Context, w http.ResponseWriter, clientID, scope string) {
	access, accessHash, err := NewToken()
	if err != nil {
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "could not mint access token")
		return
	}
	refresh, refreshHash, err := NewToken()
	if err != nil {
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "could not mint refresh token")
		return
	}

	now := time.Now().UTC()
	err = s.store.CreateAccessToken(ctx, &database.OAuthToken{
		TokenHash: accessHash,
		ClientID:  clientID,
		Scope:     scope,
		ExpiresAt: now.Add(time.Duration(s.cfg.TokenTTLSeconds) * time.Second),
		CreatedAt: now,
	})
	if err == nil {
		err = s.store.CreateRefreshToken(ctx, &database.OAuthToken{
			TokenHash: refreshHash,
			ClientID:  clientID,
			Scope:     scope,
			ExpiresAt: now.Add(time.Duration(s.cfg.RefreshTTLDays) * 24 * time.Hour),
			CreatedAt: now,
		})
	}
	if err != nil {
		s.logger.Printf("persist tokens: %v", err)
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "token persistence failed")
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  access,
		TokenType:    "Bearer",
		ExpiresIn:    s.cfg.TokenTTLSeconds,
		RefreshToken: refresh,
		Scope:        scope,
	})
}

// ValidateAccessToken resolves a presented bearer, rejecting revoked,
// expired, and unknown tokens.
func (s *Server) ValidateAccessToken(ctx context.Context, token string) (*database.OAuthToken, error) {
	stored, err := s.store.GetAccessToken(ctx, HashToken(token))
	if err != nil {
		return nil, err
	}
	if stored == nil || stored.Revoked || time.Now().After(stored.ExpiresAt) {
		return nil, ErrInvalidToken
	}
	return stored, nil
}

// --- metadata ---

// HandleMetadata serves /.well-known/oauth-authorization-server.
func (s *Server) HandleMetadata(w http.ResponseWriter, r *http.Request) {
	issuer := strings.TrimSuffix(s.cfg.Issuer, "/")
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"issuer":                                issuer,
		"authorization_endpoint":                issuer + "/oauth/authorize",
		"token_endpoint":                        issuer + "/oauth/token",
		"registration_endpoint":                 issuer + "/oauth/register",
		"response_types_supported":              []string{"code"},
		"grant_types_supported":                 []string{"authorization_code", "refresh_token"},
		"code_challenge_methods_supported":      []string{"S256"},
		"token_endpoint_auth_methods_supported": []string{"client_secret_post", "client_secret_basic", "none"},
	})
}

// HandleProtectedResourceMetadata serves
// /.well-known/oauth-protected-resource for MCP clients.
func (s *Server) HandleProtectedResourceMetadata(w http.ResponseWriter, r *http.Request) {
	issuer := strings.TrimSuffix(s.cfg.Issuer, "/")
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"resource":                 issuer + "/mcp",
		"authorization_servers":    []string{issuer},
		"bearer_methods_supported": []string{"header"},
	})
}

// RunCleanup deletes expired codes and tokens on the given interval until
// ctx is done.
func (s *Server) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.store.CleanupExpiredTokens(ctx)
			if err != nil {
				s.logger.Printf("cleanup: %v", err)
				continue
			}
			if n > 0 {
				s.logger.Printf("cleanup removed %d expired rows", n)
			}
		}
	}
}

// --- helpers ---

// validateRedirectURI enforces HTTPS with no fragment; plain http is allowed
// for localhost development only.
func validateRedirectURI(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("redirect_uri is not a valid URL")
	}
	if u.Fragment != "" {
		return fmt.Errorf("redirect_uri must not contain a fragment")
	}
	switch u.Scheme {
	case "https":
		return nil
	case "http":
		host := u.Hostname()
		if host == "localhost" || host == "127.0.0.1" {
			return nil
		}
		return fmt.Errorf("http redirect_uri is only allowed for localhost")
	default:
		return fmt.Errorf("redirect_uri must use https")
	}
}

func containsString(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}

// clientCredentials reads client_secret_basic then client_secret_post.
func clientCredentials(r *http.Request) (id, secret string) {
	if id, secret, ok := r.BasicAuth(); ok {
		return id, secret
	}
	return r.PostFormValue("client_id"), r.PostFormValue("client_secret")
}

func redirectError(w http.ResponseWriter, r *http.Request, redirectURI, state, code, description string) {
	loc, _ := url.Parse(redirectURI)
	params := loc.Query()
	params.Set("error", code)
	params.Set("error_description", description)
	if state != "" {
		params.Set("state", state)
	}
	loc.RawQuery = params.Encode()
	http.Redirect(w, r, loc.String(), http.StatusFound)
}

func renderHTMLError(w http.ResponseWriter, title, detail string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusBadRequest)
	fmt.Fprintf(w, "<!doctype html><html><head><title>%s</title></head><body><h1>%s</h1><p>%s</p></body></html>",
		html.EscapeString(title), html.EscapeString(title), html.EscapeString(detail))
}

func writeOAuthError(w http.ResponseWriter, status int, code, description string) {
	writeJSON(w, status, map[string]string{
		"error":             code,
		"error_description": description,
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
