// Package session provides the session registry: an external key-value
// store holding at most one active session record per principal.
//
// The registry is the single source of truth for "is this principal
// currently logged in". Records expire on their own after the configured
// TTL, so callers must never assume explicit deletion is the only way a
// session disappears.
package session

import (
	"context"
	"time"
)

// Kind values for the composite session key
const (
	KindUser  = "user"
	KindAdmin = "admin"
)

// Record is the stored session state for one principal
type Record struct {
	// SessionID is the opaque per-login identifier the token must match
	SessionID string `json:"sessionId"`

	// UserAgent is the client user-agent string captured at login
	UserAgent string `json:"userAgent"`

	// IP is the client origin address captured at login
	IP string `json:"ip"`

	// LoginTime is when the session was established
	LoginTime time.Time `json:"loginTime"`
}

// Registry is the narrow interface the core consumes. Implementations must
// be idempotent and safe for concurrent use across distinct (kind, id)
// keys; no cross-key transactions are required.
type Registry interface {
	// Get returns the live record for a principal, or (nil, nil) when no
	// session exists (including TTL expiry).
	Get(ctx context.Context, kind, id string) (*Record, error)

	// Set stores the record under the principal's key with the given TTL,
	// replacing any existing record.
	Set(ctx context.Context, kind, id string, record *Record, ttl time.Duration) error

	// Delete removes the principal's record. Deleting an absent record is
	// not an error.
	Delete(ctx context.Context, kind, id string) error
}
