package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	tok, err := NewToken("secret", "u1", 60)
	require.NoError(t, err)

	claims, err := ParseToken("secret", tok)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "mmchat", claims.Issuer)
}

func TestParseTokenWrongSecret(t *testing.T) {
	tok, err := NewToken("secret", "u1", 60)
	require.NoError(t, err)

	_, err = ParseToken("other", tok)
	require.Error(t, err)
}

func TestParseTokenExpired(t *testing.T) {
	tok, err := NewToken("secret", "u1", -1)
	require.NoError(t, err)

	_, err = ParseToken("secret", tok)
	require.Error(t, err)
}

func TestIdentityFromUserIDClaim(t *testing.T) {
	tok, err := NewToken("secret", "u1", 60)
	require.NoError(t, err)

	id, err := Identity(tok)
	require.NoError(t, err)
	assert.Equal(t, "u1", id)
}

func TestIdentityFallsBackToSub(t *testing.T) {
	// Token minted elsewhere, carrying only a subject.
	claims := jwt.RegisteredClaims{
		Subject:   "u7",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("whatever"))
	require.NoError(t, err)

	id, err := Identity(tok)
	require.NoError(t, err)
	assert.Equal(t, "u7", id)
}

func TestIdentityNeedsNoSecret(t *testing.T) {
	tok, err := NewToken("server-only-secret", "u1", 60)
	require.NoError(t, err)

	id, err := Identity(tok)
	require.NoError(t, err)
	assert.Equal(t, "u1", id)
}

func TestIdentityGarbage(t *testing.T) {
	_, err := Identity("not-a-jwt")
	require.Error(t, err)
}
