// Package oauth implements the OAuth 2.1 authorization server fronting the
// MCP surface: dynamic client registration, the PKCE code flow, token
// issuance with rotation, and bearer validation.
package oauth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
)

// PKCE errors surfaced as invalid_grant at the token endpoint.
var (
	ErrPKCEMethod   = errors.New("only the S256 code_challenge_method is supported")
	ErrPKCEVerifier = errors.New("code_verifier must be 43-128 characters of the unreserved alphabet")
	ErrPKCEMismatch = errors.New("code_verifier does not match code_challenge")
)

// ValidVerifier enforces RFC 7636 3.1: length 43-128 over the unreserved
// URI alphabet.
func ValidVerifier(v string) bool {
	if len(v) < 43 || len(v) > 128 {
		return false
	}
	for i := 0; i < len(v); i++ {
		c := v[i]
		switch {
		case c >= 'A' && c <= 'Z':
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
		case c == '-' || c == '.' || c == '_' || c == '~':
		default:
			return false
		}
	}
	return true
}

// ChallengeS256 derives the S256 challenge for a verifier.
func ChallengeS256(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// VerifyPKCE checks a presented verifier against the stored challenge.
// plain is rejected outright.
func VerifyPKCE(verifier, challenge, method string) error {
	if method != "S256" {
		return ErrPKCEMethod
	}
	if !ValidVerifier(verifier) {
		return ErrPKCEVerifier
	}
	derived := ChallengeS256(verifier)
	if subtle.ConstantTimeCompare([]byte(derived), []byte(challenge)) != 1 {
		return ErrPKCEMismatch
	}
	return nil
}
