package rbac

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Store errors
var (
	ErrRoleNameTaken       = errors.New("rbac: a role with this name already exists")
	ErrPermissionCodeTaken = errors.New("rbac: a permission with this code already exists")
	ErrPermissionNotFound  = errors.New("rbac: permission does not exist")
)

// Store handles role and permission persistence
type Store struct {
	db *sql.DB
}

// NewStore creates a new RBAC store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the roles, permissions, and role_permissions tables
func (s *Store) EnsureSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS roles (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			description TEXT,
			is_system_role INTEGER NOT NULL DEFAULT 0,
			created_by TEXT,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);

		CREATE TABLE IF NOT EXISTS permissions (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			code TEXT NOT NULL UNIQUE,
			description TEXT,
			module TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);

		CREATE TABLE IF NOT EXISTS role_permissions (
			role_id TEXT NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
			permission_id TEXT NOT NULL REFERENCES permissions(id),
			PRIMARY KEY (role_id, permission_id)
		);

		CREATE INDEX IF NOT EXISTS idx_role_permissions_permission ON role_permissions(permission_id);
	`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create rbac schema: %w", err)
	}
	return nil
}

// CreateRole creates a role and assigns the given permission ids
func (s *Store) CreateRole(ctx context.Context, role *Role, permissionIDs []string) error {
	if role.ID == "" {
		role.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	role.CreatedAt = now
	role.UpdatedAt = now

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO roles (id, name, description, is_system_role, created_by, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		role.ID, role.Name, role.Description, role.IsSystemRole, nullable(role.CreatedBy), role.CreatedAt, role.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrRoleNameTaken
		}
		return fmt.Errorf("failed to create role: %w", err)
	}

	if err := assignPermissions(ctx, tx, role.ID, permissionIDs); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit role creation: %w", err)
	}

	return s.loadRolePermissions(ctx, role)
}

// GetRole retrieves a role by id with its permission set, (nil, nil) on miss
func (s *Store) GetRole(ctx context.Context, id string) (*Role, error) {
	return s.getRole(ctx, `WHERE id = $1`, id)
}

// GetRoleByName retrieves a role by its unique name, (nil, nil) on miss
func (s *Store) GetRoleByName(ctx context.Context, name string) (*Role, error) {
	return s.getRole(ctx, `WHERE name = $1`, name)
}

func (s *Store) getRole(ctx context.Context, where string, arg interface{}) (*Role, error) {
	query := `SELECT id, name, description, is_system_role, created_by, created_at, updated_at FROM roles ` + where

	role, err := scanRole(s.db.QueryRowContext(ctx, query, arg))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}

	if err := s.loadRolePermissions(ctx, role); err != nil {
		return nil, err
	}
	return role, nil
}

// ListRoles returns all roles with their permission sets
func (s *Store) ListRoles(ctx context.Context) ([]*Role, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, description, is_system_role, created_by, created_at, updated_at FROM roles ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	var roles []*Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, role := range roles {
		if err := s.loadRolePermissions(ctx, role); err != nil {
			return nil, err
		}
	}
	return roles, nil
}

// UpdateRole persists name and description changes
func (s *Store) UpdateRole(ctx context.Context, role *Role) error {
	role.UpdatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`UPDATE roles SET name = $1, description = $2, updated_at = $3 WHERE id = $4`,
		role.Name, role.Description, role.UpdatedAt, role.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrRoleNameTaken
		}
		return fmt.Errorf("failed to update role: %w", err)
	}
	return nil
}

// SetRolePermissions replaces the role's assigned permission set
func (s *Store) SetRolePermissions(ctx context.Context, roleID string, permissionIDs []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
		return fmt.Errorf("failed to clear role permissions: %w", err)
	}

	if err := assignPermissions(ctx, tx, roleID, permissionIDs); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE roles SET updated_at = $1 WHERE id = $2`, time.Now().UTC(), roleID); err != nil {
		return fmt.Errorf("failed to touch role: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit permission assignment: %w", err)
	}
	return nil
}

// DeleteRole removes a role and its permission assignments
func (s *Store) DeleteRole(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, id); err != nil {
		return fmt.Errorf("failed to clear role permissions: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM roles WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete role: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit role deletion: %w", err)
	}
	return nil
}

// CreatePermission creates a permission. The code is immutable afterwards.
func (s *Store) CreatePermission(ctx context.Context, p *Permission) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO permissions (id, name, code, description, module, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.ID, p.Name, p.Code, p.Description, p.Module, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrPermissionCodeTaken
		}
		return fmt.Errorf("failed to create permission: %w", err)
	}
	return nil
}

// GetPermission retrieves a permission by id, (nil, nil) on miss
func (s *Store) GetPermission(ctx context.Context, id string) (*Permission, error) {
	return s.getPermission(ctx, `WHERE id = $1`, id)
}

// GetPermissionByCode retrieves a permission by its stable code, (nil, nil) on miss
func (s *Store) GetPermissionByCode(ctx context.Context, code string) (*Permission, error) {
	return s.getPermission(ctx, `WHERE code = $1`, code)
}

func (s *Store) getPermission(ctx context.Context, where string, arg interface{}) (*Permission, error) {
	query := `SELECT id, name, code, description, module, created_at, updated_at FROM permissions ` + where

	p, err := scanPermission(s.db.QueryRowContext(ctx, query, arg))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get permission: %w", err)
	}
	return p, nil
}

// ListPermissions returns all permissions ordered by module and code
func (s *Store) ListPermissions(ctx context.Context) ([]*Permission, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, code, description, module, created_at, updated_at FROM permissions ORDER BY module, code`)
	if err != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", err)
	}
	defer rows.Close()

	var permissions []*Permission
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		permissions = append(permissions, p)
	}
	return permissions, rows.Err()
}

// UpdatePermission persists name, description, and module. The code column
// is deliberately not part of the statement.
func (s *Store) UpdatePermission(ctx context.Context, p *Permission) error {
	p.UpdatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`UPDATE permissions SET name = $1, description = $2, module = $3, updated_at = $4 WHERE id = $5`,
		p.Name, p.Description, p.Module, p.UpdatedAt, p.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update permission: %w", err)
	}
	return nil
}

// DeletePermission removes a permission
func (s *Store) DeletePermission(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM permissions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete permission: %w", err)
	}
	return nil
}

// CountRolesWithPermission counts role assignments referencing a permission
func (s *Store) CountRolesWithPermission(ctx context.Context, permissionID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM role_permissions WHERE permission_id = $1`, permissionID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count permission references: %w", err)
	}
	return count, nil
}

// assignPermissions inserts junction rows after verifying each permission
// id exists. Dangling ids must never reach role_permissions; a role's
// non-empty permission set has to mean real grants.
func assignPermissions(ctx context.Context, tx *sql.Tx, roleID string, permissionIDs []string) error {
	for _, pid := range permissionIDs {
		var exists int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM permissions WHERE id = $1`, pid).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check permission: %w", err)
		}
		if exists == 0 {
			return fmt.Errorf("%w: %s", ErrPermissionNotFound, pid)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO role_permissions (role_id, permission_id) VALUES ($1, $2)`,
			roleID, pid,
		); err != nil {
			return fmt.Errorf("failed to assign permission: %w", err)
		}
	}
	return nil
}

// loadRolePermissions populates role.Permissions from the junction table
func (s *Store) loadRolePermissions(ctx context.Context, role *Role) error {
	query := `
		SELECT p.id, p.name, p.code, p.description, p.module, p.created_at, p.updated_at
		FROM permissions p
		JOIN role_permissions rp ON rp.permission_id = p.id
		WHERE rp.role_id = $1
		ORDER BY p.module, p.code
	`

	rows, err := s.db.QueryContext(ctx, query, role.ID)
	if err != nil {
		return fmt.Errorf("failed to load role permissions: %w", err)
	}
	defer rows.Close()

	role.Permissions = []Permission{}
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return fmt.Errorf("failed to scan permission: %w", err)
		}
		role.Permissions = append(role.Permissions, *p)
	}
	return rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanRole scans a role row without its permission set
func scanRole(scanner rowScanner) (*Role, error) {
	var role Role
	var description, createdBy sql.NullString

	err := scanner.Scan(
		&role.ID,
		&role.Name,
		&description,
		&role.IsSystemRole,
		&createdBy,
		&role.CreatedAt,
		&role.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	role.Description = description.String
	role.CreatedBy = createdBy.String
	return &role, nil
}

// scanPermission scans a permission row
func scanPermission(scanner rowScanner) (*Permission, error) {
	var p Permission
	var description sql.NullString

	err := scanner.Scan(
		&p.ID,
		&p.Name,
		&p.Code,
		&description,
		&p.Module,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.Description = description.String
	return &p, nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// isUniqueViolation detects a unique-constraint failure from sqlite
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
