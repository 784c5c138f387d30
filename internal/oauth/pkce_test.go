package oauth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const verifier = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk" // RFC 7636 appendix B

func TestVerifyPKCEValidPair(t *testing.T) {
	assert.NoError(t, VerifyPKCE(verifier, ChallengeS256(verifier), "S256"))
}

func TestVerifyPKCERejectsPlain(t *testing.T) {
	err := VerifyPKCE(verifier, verifier, "plain")
	assert.ErrorIs(t, err, ErrPKCEMethod)
}

func TestVerifyPKCEMismatch(t *testing.T) {
	other := strings.Repeat("a", 43)
	err := VerifyPKCE(other, ChallengeS256(verifier), "S256")
	assert.ErrorIs(t, err, ErrPKCEMismatch)
}

func TestValidVerifierBounds(t *testing.T) {
	assert.False(t, ValidVerifier(strings.Repeat("a", 42)))
	assert.True(t, ValidVerifier(strings.Repeat("a", 43)))
	assert.True(t, ValidVerifier(strings.Repeat("a", 128)))
	assert.False(t, ValidVerifier(strings.Repeat("a", 129)))
	assert.False(t, ValidVerifier(strings.Repeat("a", 42)+"!"))
	assert.True(t, ValidVerifier(strings.Repeat("a", 40)+"-._~"))
}

func TestChallengeS256KnownVector(t *testing.T) {
	// RFC 7636 appendix B.
	assert.Equal(t, "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM",
		ChallengeS256("dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"))
}

func TestNewTokenHashMatches(t *testing.T) {
	plaintext, hash, err := NewToken()
	require.NoError(t, err)
	assert.NotEmpty(t, plaintext)
	assert.Equal(t, HashToken(plaintext), hash)
	assert.NotEqual(t, plaintext, hash)

	// 256 bits of entropy: two mints never collide.
	other, _, err := NewToken()
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, other)
}
