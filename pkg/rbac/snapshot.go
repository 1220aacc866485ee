package rbac

import (
	"context"
	"fmt"

	"github.com/platinummonkey/warden/pkg/accounts"
)

// Snapshot is an immutable view of a principal and its resolved role,
// captured once per request. All permission checks read from the
// snapshot so that a single request sees one consistent role state.
type Snapshot struct {
	Principal *accounts.Principal
	Role      *Role
}

// BuildSnapshot resolves the principal's role and returns a snapshot.
// A principal with no role, or with a dangling role id, gets a nil
// Role and no permissions.
func BuildSnapshot(ctx context.Context, store *Store, principal *accounts.Principal) (*Snapshot, error) {
	snap := &Snapshot{Principal: principal}
	if principal.RoleID == "" {
		return snap, nil
	}

	role, err := store.GetRole(ctx, principal.RoleID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve role for principal %s: %w", principal.ID, err)
	}
	snap.Role = role
	return snap, nil
}

// IsSuperadmin reports whether the snapshot's role is the superadmin role
func (s *Snapshot) IsSuperadmin() bool {
	return s.Role != nil && s.Role.IsSuperadmin()
}

// HasPermission reports whether the principal holds the permission code.
// Superadmins hold every permission.
func (s *Snapshot) HasPermission(code string) bool {
	if s.IsSuperadmin() {
		return true
	}
	if s.Role == nil {
		return false
	}
	return s.Role.HasPermission(code)
}

// HasAnyPermission reports whether the principal holds at least one of the codes
func (s *Snapshot) HasAnyPermission(codes ...string) bool {
	if s.IsSuperadmin() {
		return true
	}
	for _, code := range codes {
		if s.HasPermission(code) {
			return true
		}
	}
	return false
}

// HasAllPermissions reports whether the principal holds every code
func (s *Snapshot) HasAllPermissions(codes ...string) bool {
	if s.IsSuperadmin() {
		return true
	}
	for _, code := range codes {
		if !s.HasPermission(code) {
			return false
		}
	}
	return true
}
