// Package token issues and verifies the signed tokens that bind a principal
// to a login session. Tokens are stateless HS256 JWTs carrying the principal
// id, principal kind, and a per-login session identifier; they are always
// cross-checked against the live session registry by the authentication gate.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Verification errors. Callers treat all three as an authentication failure
// but log which one occurred.
var (
	ErrMalformed    = errors.New("token: malformed token")
	ErrBadSignature = errors.New("token: signature verification failed")
	ErrExpired      = errors.New("token: token expired")
)

// Claims are the verified contents of a token
type Claims struct {
	jwt.RegisteredClaims

	// Kind is the principal kind, "user" or "admin"
	Kind string `json:"kind"`

	// SessionID binds the token to a single login session
	SessionID string `json:"sid"`
}

// PrincipalID returns the principal id the token was issued for
func (c *Claims) PrincipalID() string {
	return c.Subject
}

// Issuer creates and verifies session-bound tokens
type Issuer struct {
	secret []byte
	expiry time.Duration
}

// NewIssuer creates an issuer with the given signing secret and token
// lifetime. Rotating the secret invalidates all outstanding tokens.
func NewIssuer(secret []byte, expiry time.Duration) *Issuer {
	return &Issuer{
		secret: secret,
		expiry: expiry,
	}
}

// Issue signs a token for the principal with a freshly generated session id.
// The session id is a v4 UUID, 128 bits of randomness, so collisions are
// cryptographically negligible.
func (i *Issuer) Issue(principalID, kind string) (token string, sessionID string, err error) {
	sessionID = uuid.NewString()
	now := time.Now()

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principalID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.expiry)),
		},
		Kind:      kind,
		SessionID: sessionID,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, sessionID, nil
}

// Verify validates the signature and expiry of a token and returns its
// claims. The signing method is pinned to HMAC so tokens signed with other
// algorithms are rejected as malformed.
func (i *Issuer) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}

	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return i.secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrBadSignature
		default:
			return nil, ErrMalformed
		}
	}

	return claims, nil
}
