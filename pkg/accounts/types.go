package accounts

import (
	"strings"
	"time"
)

// Kind distinguishes the two principal classes
type Kind string

const (
	KindUser  Kind = "user"
	KindAdmin Kind = "admin"
)

// Valid reports whether k is a known principal kind
func (k Kind) Valid() bool {
	return k == KindUser || k == KindAdmin
}

// Principal is an authenticatable actor, either a User or an Admin.
// RoleID and IsActive are only meaningful for the admin kind.
type Principal struct {
	ID            string     `json:"id"`
	Kind          Kind       `json:"kind"`
	FirstName     string     `json:"first_name"`
	LastName      string     `json:"last_name"`
	Email         string     `json:"email"`
	PasswordHash  string     `json:"-"`
	RoleID        string     `json:"role_id,omitempty"`
	IsActive      bool       `json:"is_active"`
	LoginAttempts int        `json:"login_attempts"`
	LockUntil     *time.Time `json:"lock_until,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Locked reports whether the principal is locked out at the given instant
func (p *Principal) Locked(now time.Time) bool {
	return p.LockUntil != nil && p.LockUntil.After(now)
}

// LockRemaining returns the remaining lock duration, zero when not locked
func (p *Principal) LockRemaining(now time.Time) time.Duration {
	if !p.Locked(now) {
		return 0
	}
	return p.LockUntil.Sub(now)
}

// NormalizeEmail lowercases an email address. Email comparison is
// case-insensitive everywhere in the system; addresses are stored
// normalized and looked up normalized.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
