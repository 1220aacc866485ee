package rbac

import (
	"context"
	"fmt"
)

// Seed makes sure the baseline permissions and the superadmin role
// exist. It is idempotent and safe to run on every start.
func Seed(ctx context.Context, store *Store) (*Role, error) {
	var permissionIDs []string
	for _, seed := range SeedPermissions() {
		existing, err := store.GetPermissionByCode(ctx, seed.Code)
		if err != nil {
			return nil, fmt.Errorf("failed to look up permission %s: %w", seed.Code, err)
		}
		if existing != nil {
			permissionIDs = append(permissionIDs, existing.ID)
			continue
		}
		p := seed
		if err := store.CreatePermission(ctx, &p); err != nil {
			return nil, fmt.Errorf("failed to seed permission %s: %w", seed.Code, err)
		}
		permissionIDs = append(permissionIDs, p.ID)
	}

	role, err := store.GetRoleByName(ctx, SuperadminRoleName)
	if err != nil {
		return nil, fmt.Errorf("failed to look up superadmin role: %w", err)
	}
	if role != nil {
		return role, nil
	}

	role = &Role{
		Name:         SuperadminRoleName,
		Description:  "Full access to every module",
		IsSystemRole: true,
	}
	if err := store.CreateRole(ctx, role, permissionIDs); err != nil {
		return nil, fmt.Errorf("failed to seed superadmin role: %w", err)
	}
	return role, nil
}
