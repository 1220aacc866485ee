package rbac

import (
	"context"
	"fmt"

	"github.com/platinummonkey/warden/pkg/accounts"
)

// InvariantViolationError reports a refused role or principal mutation.
// Code is a stable machine-readable identifier, Message is safe to
// surface to API clients.
type InvariantViolationError struct {
	Code    string
	Message string
}

func (e *InvariantViolationError) Error() string {
	return e.Message
}

// Invariant violation codes
const (
	CodeSelfDelete            = "SELF_DELETE"
	CodeLastSuperadmin        = "LAST_SUPERADMIN"
	CodeSuperadminOnly        = "SUPERADMIN_ONLY"
	CodeSystemRoleProtected   = "SYSTEM_ROLE_PROTECTED"
	CodeSuperadminRoleLocked  = "SUPERADMIN_ROLE_LOCKED"
	CodeRoleInUse             = "ROLE_IN_USE"
	CodePermissionInUse       = "PERMISSION_IN_USE"
	CodeRoleNameReserved      = "ROLE_NAME_RESERVED"
)

func violation(code, format string, args ...interface{}) error {
	return &InvariantViolationError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Guard enforces the mutation invariants around superadmins, system
// roles, and referenced permissions. Every admin-facing write path
// consults the guard before touching the stores.
type Guard struct {
	roles    *Store
	accounts *accounts.Store
}

// NewGuard creates a guard over the given stores
func NewGuard(roles *Store, accountStore *accounts.Store) *Guard {
	return &Guard{roles: roles, accounts: accountStore}
}

// CanDeletePrincipal checks whether actor may delete target. Admins may
// never delete themselves, the last active superadmin is protected, and
// only a superadmin may delete another superadmin.
func (g *Guard) CanDeletePrincipal(ctx context.Context, actor *Snapshot, target *accounts.Principal) error {
	if actor.Principal.ID == target.ID {
		return violation(CodeSelfDelete, "you cannot delete your own account")
	}
	if err := g.requireSuperadminForSuperadminTarget(ctx, actor, target, "delete"); err != nil {
		return err
	}
	return g.protectLastSuperadmin(ctx, target, "deleted")
}

// CanDeactivatePrincipal checks whether target may be deactivated
func (g *Guard) CanDeactivatePrincipal(ctx context.Context, actor *Snapshot, target *accounts.Principal) error {
	if err := g.requireSuperadminForSuperadminTarget(ctx, actor, target, "deactivate"); err != nil {
		return err
	}
	if !target.IsActive {
		return nil
	}
	return g.protectLastSuperadmin(ctx, target, "deactivated")
}

// CanModifyPrincipal checks whether actor may update target at all
func (g *Guard) CanModifyPrincipal(ctx context.Context, actor *Snapshot, target *accounts.Principal) error {
	return g.requireSuperadminForSuperadminTarget(ctx, actor, target, "modify")
}

// CanChangeRole checks whether target may be moved from its current
// role to newRoleID. Moving the last active superadmin off the
// superadmin role would leave the system without one.
func (g *Guard) CanChangeRole(ctx context.Context, actor *Snapshot, target *accounts.Principal, newRoleID string) error {
	if err := g.requireSuperadminForSuperadminTarget(ctx, actor, target, "modify"); err != nil {
		return err
	}
	if newRoleID == target.RoleID {
		return nil
	}
	if !target.IsActive {
		return nil
	}
	return g.protectLastSuperadmin(ctx, target, "moved to another role")
}

// CanCreateRole rejects roles claiming the reserved superadmin name
func (g *Guard) CanCreateRole(ctx context.Context, actor *Snapshot, name string) error {
	if name == SuperadminRoleName {
		return violation(CodeRoleNameReserved, "the role name %q is reserved", SuperadminRoleName)
	}
	return nil
}

// CanUpdateRole checks a rename or description change. The superadmin
// role may not be renamed, and system roles are only touchable by
// superadmins.
func (g *Guard) CanUpdateRole(ctx context.Context, actor *Snapshot, role *Role, newName string) error {
	if role.IsSystemRole && !actor.IsSuperadmin() {
		return violation(CodeSystemRoleProtected, "only a superadmin can modify system roles")
	}
	if role.IsSuperadmin() && newName != role.Name {
		return violation(CodeSuperadminRoleLocked, "the superadmin role cannot be renamed")
	}
	if !role.IsSuperadmin() && newName == SuperadminRoleName {
		return violation(CodeRoleNameReserved, "the role name %q is reserved", SuperadminRoleName)
	}
	return nil
}

// CanSetRolePermissions rejects emptying the superadmin role's
// permission set and guards system roles.
func (g *Guard) CanSetRolePermissions(ctx context.Context, actor *Snapshot, role *Role, permissionIDs []string) error {
	if role.IsSystemRole && !actor.IsSuperadmin() {
		return violation(CodeSystemRoleProtected, "only a superadmin can modify system roles")
	}
	if role.IsSuperadmin() && len(permissionIDs) == 0 {
		return violation(CodeSuperadminRoleLocked, "the superadmin role cannot be stripped of all permissions")
	}
	return nil
}

// CanDeleteRole checks whether a role may be deleted. The superadmin
// role is permanent, system roles require a superadmin actor, and a
// role still assigned to principals is in use.
func (g *Guard) CanDeleteRole(ctx context.Context, actor *Snapshot, role *Role) error {
	if role.IsSuperadmin() {
		return violation(CodeSuperadminRoleLocked, "the superadmin role cannot be deleted")
	}
	if role.IsSystemRole && !actor.IsSuperadmin() {
		return violation(CodeSystemRoleProtected, "only a superadmin can delete system roles")
	}

	count, err := g.accounts.CountByRole(ctx, role.ID)
	if err != nil {
		return fmt.Errorf("failed to check role usage: %w", err)
	}
	if count > 0 {
		return violation(CodeRoleInUse, "role %q is assigned to %d account(s) and cannot be deleted", role.Name, count)
	}
	return nil
}

// CanDeletePermission rejects deleting a permission still assigned to roles
func (g *Guard) CanDeletePermission(ctx context.Context, permissionID string) error {
	count, err := g.roles.CountRolesWithPermission(ctx, permissionID)
	if err != nil {
		return fmt.Errorf("failed to check permission usage: %w", err)
	}
	if count > 0 {
		return violation(CodePermissionInUse, "permission is assigned to %d role(s) and cannot be deleted", count)
	}
	return nil
}

// requireSuperadminForSuperadminTarget lets only superadmins act on
// superadmin accounts
func (g *Guard) requireSuperadminForSuperadminTarget(ctx context.Context, actor *Snapshot, target *accounts.Principal, verb string) error {
	if actor.IsSuperadmin() {
		return nil
	}
	targetRole, err := g.roles.GetRole(ctx, target.RoleID)
	if err != nil {
		return fmt.Errorf("failed to resolve target role: %w", err)
	}
	if targetRole != nil && targetRole.IsSuperadmin() {
		return violation(CodeSuperadminOnly, "only a superadmin can %s a superadmin account", verb)
	}
	return nil
}

// protectLastSuperadmin refuses removing the last active superadmin
func (g *Guard) protectLastSuperadmin(ctx context.Context, target *accounts.Principal, action string) error {
	role, err := g.roles.GetRole(ctx, target.RoleID)
	if err != nil {
		return fmt.Errorf("failed to resolve target role: %w", err)
	}
	if role == nil || !role.IsSuperadmin() {
		return nil
	}

	remaining, err := g.accounts.CountActiveByRole(ctx, role.ID, target.ID)
	if err != nil {
		return fmt.Errorf("failed to count active superadmins: %w", err)
	}
	if remaining == 0 {
		return violation(CodeLastSuperadmin, "the last active superadmin cannot be %s", action)
	}
	return nil
}
