package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// OAuthClient is a dynamically registered client (RFC 7591).
type OAuthClient struct {
	ClientID      string
	SecretHash    string // bcrypt; empty for public clients
	Name          string
	RedirectURIs  []string
	GrantTypes    []string
	ResponseTypes []string
	Scope         string
	TokenAuth     string // token_endpoint_auth_method
	CreatedAt     time.Time
}

// OAuthCode is a single-use authorization code, stored hashed.
type OAuthCode struct {
	CodeHash            string
	ClientID            string
	RedirectURI         string
	Scope               string
	CodeChallenge       string
	CodeChallengeMethod string
	Used                bool
	ExpiresAt           time.Time
	CreatedAt           time.Time
}

// OAuthToken is an access or refresh token row; only the SHA-256 base64url
// hash of the issued token is stored.
type OAuthToken struct {
	TokenHash string
	ClientID  string
	Scope     string
	Revoked   bool
	ExpiresAt time.Time
	CreatedAt time.Time
}

// CreateOAuthClient persists a registration.
func (s *Store) CreateOAuthClient(ctx context.Context, c *OAuthClient) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO oauth_clients (client_id, secret_hash, name, redirect_uris, grant_types, response_types, scope, token_auth, created_at)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8, $9)`,
		c.ClientID, c.SecretHash, c.Name, pq.Array(c.RedirectURIs), pq.Array(c.GrantTypes),
		pq.Array(c.ResponseTypes), c.Scope, c.TokenAuth, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("create oauth client: %w", err)
	}
	return nil
}

// GetOAuthClient returns a client by id, or nil.
func (s *Store) GetOAuthClient(ctx context.Context, clientID string) (*OAuthClient, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT client_id, COALESCE(secret_hash, ''), name, redirect_uris, grant_types, response_types, scope, token_auth, created_at
		FROM oauth_clients WHERE client_id = $1`, clientID)

	var c OAuthClient
	err := row.Scan(&c.ClientID, &c.SecretHash, &c.Name, pq.Array(&c.RedirectURIs),
		pq.Array(&c.GrantTypes), pq.Array(&c.ResponseTypes), &c.Scope, &c.TokenAuth, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get oauth client: %w", err)
	}
	return &c, nil
}

// CreateOAuthCode stores a hashed authorization code.
func (s *Store) CreateOAuthCode(ctx context.Context, c *OAuthCode) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO oauth_codes (code_hash, client_id, redirect_uri, scope, code_challenge, code_challenge_method, used, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7, $8)`,
		c.CodeHash, c.ClientID, c.RedirectURI, c.Scope, c.CodeChallenge, c.CodeChallengeMethod, c.ExpiresAt, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("create oauth code: %w", err)
	}
	return nil
}

// RedeemOAuthCode atomically marks a code used and returns it. The predicate
// enforces single use: (hash, client, redirect_uri, used=false, unexpired).
// Returns nil when no live code matches.
func (s *Store) RedeemOAuthCode(ctx context.Context, codeHash, clientID, redirectURI string) (*OAuthCode, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE oauth_codes SET used = TRUE
		WHERE code_hash = $1 AND client_id = $2 AND redirect_uri = $3 AND used = FALSE AND expires_at > NOW()
		RETURNING code_hash, client_id, redirect_uri, scope, code_challenge, code_challenge_method, used, expires_at, created_at`,
		codeHash, clientID, redirectURI)

	var c OAuthCode
	err := row.Scan(&c.CodeHash, &c.ClientID, &c.RedirectURI, &c.Scope, &c.CodeChallenge,
		&c.CodeChallengeMethod, &c.Used, &c.ExpiresAt, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redeem oauth code: %w", err)
	}
	return &c, nil
}

// CreateAccessToken stores an access-token hash.
func (s *Store) CreateAccessToken(ctx context.Context, t *OAuthToken) error {
	return s.createToken(ctx, "oauth_access_tokens", t)
}

// CreateRefreshToken stores a refresh-token hash.
func (s *Store) CreateRefreshToken(ctx context.Context, t *OAuthToken) error {
	return s.createToken(ctx, "oauth_refresh_tokens", t)
}

func (s *Store) createToken(ctx context.Context, table string, t *OAuthToken) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (token_hash, client_id, scope, revoked, expires_at, created_at)
		VALUES ($1, $2, $3, FALSE, $4, $5)`, table),
		t.TokenHash, t.ClientID, t.Scope, t.ExpiresAt, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("create token in %s: %w", table, err)
	}
	return nil
}

// GetAccessToken looks up an access token by hash, or nil.
func (s *Store) GetAccessToken(ctx context.Context, tokenHash string) (*OAuthToken, error) {
	return s.getToken(ctx, "oauth_access_tokens", tokenHash)
}

// GetRefreshToken looks up a refresh token by hash, or nil.
func (s *Store) GetRefreshToken(ctx context.Context, tokenHash string) (*OAuthToken, error) {
	return s.getToken(ctx, "oauth_refresh_tokens", tokenHash)
}

func (s *Store) getToken(ctx context.Context, table, tokenHash string) (*OAuthToken, error) {
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT token_hash, client_id, scope, revoked, expires_at, created_at
		FROM %s WHERE token_hash = $1`, table), tokenHash)

	var t OAuthToken
	err := row.Scan(&t.TokenHash, &t.ClientID, &t.Scope, &t.Revoked, &t.ExpiresAt, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get token from %s: %w", table, err)
	}
	return &t, nil
}

// RevokeRefreshToken marks a refresh token revoked (rotation).
func (s *Store) RevokeRefreshToken(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE oauth_refresh_tokens SET revoked = TRUE WHERE token_hash = $1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

// CleanupExpiredTokens removes expired rows across the code and token tables.
// Returns total deletions.
func (s *Store) CleanupExpiredTokens(ctx context.Context) (int64, error) {
	var total int64
	for _, table := range []string{"oauth_codes", "oauth_access_tokens", "oauth_refresh_tokens"} {
		res, err := s.db.ExecContext(ctx,
			fmt.Sprintf(`DELETE FROM %s WHERE expires_at < NOW()`, table))
		if err != nil {
			return total, fmt.Errorf("cleanup %s: %w", table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}
