package token

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueVerify_RoundTrip(t *testing.T) {
	issuer := NewIssuer([]byte("test-secret"), time.Hour)

	tok, sessionID, err := issuer.Issue("admin-123", "admin")
	require.NoError(t, err)
	require.NotEmpty(t, tok)
	require.NotEmpty(t, sessionID)

	claims, err := issuer.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "admin-123", claims.PrincipalID())
	assert.Equal(t, "admin", claims.Kind)
	assert.Equal(t, sessionID, claims.SessionID)
}

func TestIssue_FreshSessionIDPerCall(t *testing.T) {
	issuer := NewIssuer([]byte("test-secret"), time.Hour)

	_, first, err := issuer.Issue("user-1", "user")
	require.NoError(t, err)
	_, second, err := issuer.Issue("user-1", "user")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestVerify_Expired(t *testing.T) {
	issuer := NewIssuer([]byte("test-secret"), -time.Minute)

	tok, _, err := issuer.Issue("user-1", "user")
	require.NoError(t, err)

	_, err = issuer.Verify(tok)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestVerify_BadSignature(t *testing.T) {
	issuer := NewIssuer([]byte("right-secret"), time.Hour)
	other := NewIssuer([]byte("wrong-secret"), time.Hour)

	tok, _, err := other.Issue("user-1", "user")
	require.NoError(t, err)

	_, err = issuer.Verify(tok)
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestVerify_Malformed(t *testing.T) {
	issuer := NewIssuer([]byte("test-secret"), time.Hour)

	for _, tok := range []string{"", "not-a-token", "a.b", "a.b.c.d"} {
		_, err := issuer.Verify(tok)
		assert.ErrorIs(t, err, ErrMalformed, "token %q", tok)
	}
}

func TestVerify_TamperedPayload(t *testing.T) {
	issuer := NewIssuer([]byte("test-secret"), time.Hour)

	tok, _, err := issuer.Issue("user-1", "user")
	require.NoError(t, err)

	parts := strings.Split(tok, ".")
	require.Len(t, parts, 3)
	parts[1] = parts[1][:len(parts[1])-2] + "xx"
	tampered := strings.Join(parts, ".")

	_, err = issuer.Verify(tampered)
	assert.Error(t, err)
}

func TestVerify_RejectsUnsignedAlgorithm(t *testing.T) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Kind:      "user",
		SessionID: "sid",
	}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	issuer := NewIssuer([]byte("test-secret"), time.Hour)
	_, err = issuer.Verify(unsigned)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestVerify_TokenOutlivesIssuerRestart(t *testing.T) {
	// Same secret, different issuer instance: tokens remain valid within
	// their expiry window.
	first := NewIssuer([]byte("shared-secret"), time.Hour)
	tok, sessionID, err := first.Issue("admin-9", "admin")
	require.NoError(t, err)

	second := NewIssuer([]byte("shared-secret"), time.Hour)
	claims, err := second.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, sessionID, claims.SessionID)
}
