package accounts

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Store handles principal persistence
type Store struct {
	db *sql.DB
}

// NewStore creates a new account store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the principals table if it does not exist
func (s *Store) EnsureSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS principals (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL CHECK (kind IN ('user', 'admin')),
			first_name TEXT NOT NULL,
			last_name TEXT NOT NULL,
			email TEXT NOT NULL,
			password_hash TEXT NOT NULL,
			role_id TEXT,
			is_active INTEGER NOT NULL DEFAULT 1,
			login_attempts INTEGER NOT NULL DEFAULT 0,
			lock_until TIMESTAMP,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_principals_kind_email ON principals(kind, email);
		CREATE INDEX IF NOT EXISTS idx_principals_role_id ON principals(role_id);
	`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create principals schema: %w", err)
	}
	return nil
}

const principalColumns = `id, kind, first_name, last_name, email, password_hash, role_id, is_active, login_attempts, lock_until, created_at, updated_at`

// scanPrincipal scans a principal from a database row
func scanPrincipal(scanner interface {
	Scan(dest ...interface{}) error
}) (*Principal, error) {
	var p Principal
	var roleID sql.NullString
	var lockUntil sql.NullTime

	err := scanner.Scan(
		&p.ID,
		&p.Kind,
		&p.FirstName,
		&p.LastName,
		&p.Email,
		&p.PasswordHash,
		&roleID,
		&p.IsActive,
		&p.LoginAttempts,
		&lockUntil,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if roleID.Valid {
		p.RoleID = roleID.String
	}
	if lockUntil.Valid {
		t := lockUntil.Time
		p.LockUntil = &t
	}

	return &p, nil
}

// GetByID retrieves a principal by kind and id, (nil, nil) on miss
func (s *Store) GetByID(ctx context.Context, kind Kind, id string) (*Principal, error) {
	query := `SELECT ` + principalColumns + ` FROM principals WHERE kind = $1 AND id = $2`

	p, err := scanPrincipal(s.db.QueryRowContext(ctx, query, kind, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get principal: %w", err)
	}
	return p, nil
}

// GetByEmail retrieves a principal by kind and normalized email, (nil, nil) on miss
func (s *Store) GetByEmail(ctx context.Context, kind Kind, email string) (*Principal, error) {
	query := `SELECT ` + principalColumns + ` FROM principals WHERE kind = $1 AND email = $2`

	p, err := scanPrincipal(s.db.QueryRowContext(ctx, query, kind, NormalizeEmail(email)))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get principal by email: %w", err)
	}
	return p, nil
}

// List returns principals of a kind, optionally filtered by role
func (s *Store) List(ctx context.Context, kind Kind, roleID string) ([]*Principal, error) {
	query := `SELECT ` + principalColumns + ` FROM principals WHERE kind = $1`
	args := []interface{}{kind}
	if roleID != "" {
		query += ` AND role_id = $2`
		args = append(args, roleID)
	}
	query += ` ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list principals: %w", err)
	}
	defer rows.Close()

	var principals []*Principal
	for rows.Next() {
		p, err := scanPrincipal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan principal: %w", err)
		}
		principals = append(principals, p)
	}

	return principals, rows.Err()
}

// Create inserts a new principal. The email is normalized before storage;
// a duplicate email within the kind returns ErrEmailTaken.
func (s *Store) Create(ctx context.Context, p *Principal) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.Email = NormalizeEmail(p.Email)

	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	query := `
		INSERT INTO principals (` + principalColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	var roleID interface{}
	if p.RoleID != "" {
		roleID = p.RoleID
	}

	_, err := s.db.ExecContext(ctx, query,
		p.ID, p.Kind, p.FirstName, p.LastName, p.Email, p.PasswordHash,
		roleID, p.IsActive, p.LoginAttempts, p.LockUntil, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrEmailTaken
		}
		return fmt.Errorf("failed to create principal: %w", err)
	}

	return nil
}

// Update persists profile fields (name, email, role, active flag)
func (s *Store) Update(ctx context.Context, p *Principal) error {
	p.Email = NormalizeEmail(p.Email)
	p.UpdatedAt = time.Now().UTC()

	var roleID interface{}
	if p.RoleID != "" {
		roleID = p.RoleID
	}

	query := `
		UPDATE principals
		SET first_name = $1, last_name = $2, email = $3, role_id = $4, is_active = $5, updated_at = $6
		WHERE kind = $7 AND id = $8
	`

	res, err := s.db.ExecContext(ctx, query,
		p.FirstName, p.LastName, p.Email, roleID, p.IsActive, p.UpdatedAt, p.Kind, p.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrEmailTaken
		}
		return fmt.Errorf("failed to update principal: %w", err)
	}

	return requireRowAffected(res)
}

// UpdatePassword replaces the stored password hash
func (s *Store) UpdatePassword(ctx context.Context, kind Kind, id, passwordHash string) error {
	query := `UPDATE principals SET password_hash = $1, updated_at = $2 WHERE kind = $3 AND id = $4`

	res, err := s.db.ExecContext(ctx, query, passwordHash, time.Now().UTC(), kind, id)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return requireRowAffected(res)
}

// SetActive toggles the admin activation flag
func (s *Store) SetActive(ctx context.Context, kind Kind, id string, active bool) error {
	query := `UPDATE principals SET is_active = $1, updated_at = $2 WHERE kind = $3 AND id = $4`

	res, err := s.db.ExecContext(ctx, query, active, time.Now().UTC(), kind, id)
	if err != nil {
		return fmt.Errorf("failed to set active flag: %w", err)
	}
	return requireRowAffected(res)
}

// Delete removes a principal from the credential store. Audit entries are
// append-only in their own table and outlive the principal.
func (s *Store) Delete(ctx context.Context, kind Kind, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM principals WHERE kind = $1 AND id = $2`, kind, id)
	if err != nil {
		return fmt.Errorf("failed to delete principal: %w", err)
	}
	return requireRowAffected(res)
}

// CountActiveByRole counts active principals holding a role, excluding the
// given id when excludeID is non-empty. The invariant guard uses this to
// protect the last superadmin.
func (s *Store) CountActiveByRole(ctx context.Context, roleID, excludeID string) (int, error) {
	query := `SELECT COUNT(*) FROM principals WHERE role_id = $1 AND is_active = 1`
	args := []interface{}{roleID}
	if excludeID != "" {
		query += ` AND id != $2`
		args = append(args, excludeID)
	}

	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count principals by role: %w", err)
	}
	return count, nil
}

// CountByRole counts all principals assigned to a role
func (s *Store) CountByRole(ctx context.Context, roleID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM principals WHERE role_id = $1`, roleID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count principals by role: %w", err)
	}
	return count, nil
}

// RecordFailure increments the attempt counter and sets the lock timestamp
// when the threshold is reached, in a single UPDATE so concurrent failures
// at worst undercount. The counter is left at the triggering value so the
// caller can report "locked". Returns the new attempt count.
func (s *Store) RecordFailure(ctx context.Context, kind Kind, id string, threshold int, lockUntil time.Time) (int, error) {
	query := `
		UPDATE principals
		SET login_attempts = login_attempts + 1,
		    lock_until = CASE WHEN login_attempts + 1 >= $1 THEN $2 ELSE lock_until END,
		    updated_at = $3
		WHERE kind = $4 AND id = $5
	`

	res, err := s.db.ExecContext(ctx, query, threshold, lockUntil.UTC(), time.Now().UTC(), kind, id)
	if err != nil {
		return 0, fmt.Errorf("failed to record login failure: %w", err)
	}
	if err := requireRowAffected(res); err != nil {
		return 0, err
	}

	var attempts int
	err = s.db.QueryRowContext(ctx,
		`SELECT login_attempts FROM principals WHERE kind = $1 AND id = $2`, kind, id,
	).Scan(&attempts)
	if err != nil {
		return 0, fmt.Errorf("failed to read attempt count: %w", err)
	}

	return attempts, nil
}

// RecordSuccess resets the attempt counter and clears any lock
func (s *Store) RecordSuccess(ctx context.Context, kind Kind, id string) error {
	query := `UPDATE principals SET login_attempts = 0, lock_until = NULL, updated_at = $1 WHERE kind = $2 AND id = $3`

	res, err := s.db.ExecContext(ctx, query, time.Now().UTC(), kind, id)
	if err != nil {
		return fmt.Errorf("failed to record login success: %w", err)
	}
	return requireRowAffected(res)
}

// requireRowAffected maps a zero-row update to ErrNotFound
func requireRowAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// isUniqueViolation detects a unique-constraint failure from sqlite
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
