package rbac

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// RoleStore handles role persistence
type RoleStore interface {
	CreateRole(ctx context.Context, role *Role) error
	GetRole(ctx context.Context, roleID int64) (*Role, error)
	GetRoleByName(ctx context.Context, name string) (*Role, error)
	ListRoles(ctx context.Context, scope *Scope) ([]Role, error)
	DeleteRole(ctx context.Context, roleID int64) error
}

// AssignmentStore handles role assignment persistence. Upsert implements
// the ledger's merge-on-duplicate-key semantics atomically.
type AssignmentStore interface {
	Upsert(ctx context.Context, assignment *RoleAssignment) error
	Delete(ctx context.Context, userID, roleID int64, scopeType Scope, scopeID *string) (bool, error)
	ListActive(ctx context.Context, userID int64, scope *Scope, scopeID *string) ([]RoleAssignment, error)
	GetPrimary(ctx context.Context, userID int64, scope *Scope, scopeID *string) (*RoleAssignment, error)
	ListActiveForTenant(ctx context.Context, userID int64, tenantID string) ([]RoleAssignment, error)
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// SQLStore implements RoleStore and AssignmentStore on PostgreSQL
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore creates a new SQL-backed store
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// CreateRole creates a new role
func (s *SQLStore) CreateRole(ctx context.Context, role *Role) error {
	permissionsJSON, err := json.Marshal(role.Permissions)
	if err != nil {
		return fmt.Errorf("failed to marshal permissions: %w", err)
	}

	query := `
		INSERT INTO roles (name, display_name, description, scope, permissions, is_system, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	now := time.Now()
	err = s.db.QueryRowContext(ctx, query,
		role.Name,
		role.DisplayName,
		role.Description,
		role.Scope,
		string(permissionsJSON),
		role.IsSystem,
		now,
		now,
	).Scan(&role.ID)

	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: role %s already exists", ErrConflict, role.Name)
		}
		return fmt.Errorf("failed to create role: %w", err)
	}

	role.CreatedAt = now
	role.UpdatedAt = now
	return nil
}

// GetRole retrieves a role by ID
func (s *SQLStore) GetRole(ctx context.Context, roleID int64) (*Role, error) {
	query := `
		SELECT id, name, display_name, description, scope, permissions, is_system, created_at, updated_at
		FROM roles
		WHERE id = $1
	`
	return s.scanRole(s.db.QueryRowContext(ctx, query, roleID), fmt.Sprintf("role %d", roleID))
}

// GetRoleByName retrieves a role by unique name
func (s *SQLStore) GetRoleByName(ctx context.Context, name string) (*Role, error) {
	query := `
		SELECT id, name, display_name, description, scope, permissions, is_system, created_at, updated_at
		FROM roles
		WHERE name = $1
	`
	return s.scanRole(s.db.QueryRowContext(ctx, query, name), fmt.Sprintf("role %s", name))
}

func (s *SQLStore) scanRole(row *sql.Row, label string) (*Role, error) {
	var role Role
	var permissionsJSON string

	err := row.Scan(
		&role.ID,
		&role.Name,
		&role.DisplayName,
		&role.Description,
		&role.Scope,
		&permissionsJSON,
		&role.IsSystem,
		&role.CreatedAt,
		&role.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, label)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}

	if err := json.Unmarshal([]byte(permissionsJSON), &role.Permissions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal permissions: %w", err)
	}

	return &role, nil
}

// ListRoles lists roles, optionally filtered by scope
func (s *SQLStore) ListRoles(ctx context.Context, scope *Scope) ([]Role, error) {
	query := `
		SELECT id, name, display_name, description, scope, permissions, is_system, created_at, updated_at
		FROM roles
	`
	args := []interface{}{}
	if scope != nil {
		query += ` WHERE scope = $1`
		args = append(args, *scope)
	}
	query += ` ORDER BY is_system DESC, name ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		var role Role
		var permissionsJSON string

		err := rows.Scan(
			&role.ID,
			&role.Name,
			&role.DisplayName,
			&role.Description,
			&role.Scope,
			&permissionsJSON,
			&role.IsSystem,
			&role.CreatedAt,
			&role.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}

		if err := json.Unmarshal([]byte(permissionsJSON), &role.Permissions); err != nil {
			return nil, fmt.Errorf("failed to unmarshal permissions: %w", err)
		}

		roles = append(roles, role)
	}

	return roles, rows.Err()
}

// DeleteRole deletes a non-system role
func (s *SQLStore) DeleteRole(ctx context.Context, roleID int64) error {
	role, err := s.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	if role.IsSystem {
		return fmt.Errorf("%w: %s", ErrSystemRole, role.Name)
	}

	_, err = s.db.ExecContext(ctx, `DELETE FROM roles WHERE id = $1`, roleID)
	if err != nil {
		return fmt.Errorf("failed to delete role: %w", err)
	}
	return nil
}

// Upsert inserts an assignment, or merges expires_at and is_primary into
// the existing row when the (user, role, scope_type, scope_id) key already
// exists. The conflict target matches the unique index in the migrations.
func (s *SQLStore) Upsert(ctx context.Context, assignment *RoleAssignment) error {
	query := `
		INSERT INTO role_assignments (user_id, role_id, scope_type, scope_id, is_primary, granted_by, granted_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id, role_id, scope_type, COALESCE(scope_id, ''))
		DO UPDATE SET is_primary = EXCLUDED.is_primary,
		              expires_at = EXCLUDED.expires_at,
		              granted_by = EXCLUDED.granted_by
		RETURNING id, granted_at
	`

	now := time.Now()
	err := s.db.QueryRowContext(ctx, query,
		assignment.UserID,
		assignment.RoleID,
		assignment.ScopeType,
		assignment.ScopeID,
		assignment.IsPrimary,
		assignment.GrantedBy,
		now,
		assignment.ExpiresAt,
	).Scan(&assignment.ID, &assignment.GrantedAt)

	if err != nil {
		return fmt.Errorf("failed to upsert assignment: %w", err)
	}
	return nil
}

// Delete removes an assignment by key, returning whether a row was removed
func (s *SQLStore) Delete(ctx context.Context, userID, roleID int64, scopeType Scope, scopeID *string) (bool, error) {
	query := `
		DELETE FROM role_assignments
		WHERE user_id = $1 AND role_id = $2 AND scope_type = $3
		  AND COALESCE(scope_id, '') = COALESCE($4, '')
	`

	result, err := s.db.ExecContext(ctx, query, userID, roleID, scopeType, scopeID)
	if err != nil {
		return false, fmt.Errorf("failed to delete assignment: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected > 0, nil
}

// ListActive returns unexpired assignments for a user, optionally filtered
// by scope type and scope ID
func (s *SQLStore) ListActive(ctx context.Context, userID int64, scope *Scope, scopeID *string) ([]RoleAssignment, error) {
	query := `
		SELECT id, user_id, role_id, scope_type, scope_id, is_primary, granted_by, granted_at, expires_at
		FROM role_assignments
		WHERE user_id = $1
		  AND (expires_at IS NULL OR expires_at > CURRENT_TIMESTAMP)
	`
	args := []interface{}{userID}

	if scope != nil {
		args = append(args, *scope)
		query += fmt.Sprintf(` AND scope_type = $%d`, len(args))
	}
	if scopeID != nil {
		args = append(args, *scopeID)
		query += fmt.Sprintf(` AND scope_id = $%d`, len(args))
	}
	query += ` ORDER BY granted_at DESC`

	return s.queryAssignments(ctx, query, args...)
}

// ListActiveForTenant returns unexpired tenant-scoped assignments binding
// the user to the given tenant
func (s *SQLStore) ListActiveForTenant(ctx context.Context, userID int64, tenantID string) ([]RoleAssignment, error) {
	scope := ScopeTenant
	return s.ListActive(ctx, userID, &scope, &tenantID)
}

// GetPrimary returns the user's primary assignment at the given scope, or
// nil when none is marked primary
func (s *SQLStore) GetPrimary(ctx context.Context, userID int64, scope *Scope, scopeID *string) (*RoleAssignment, error) {
	query := `
		SELECT id, user_id, role_id, scope_type, scope_id, is_primary, granted_by, granted_at, expires_at
		FROM role_assignments
		WHERE user_id = $1 AND is_primary = TRUE
		  AND (expires_at IS NULL OR expires_at > CURRENT_TIMESTAMP)
	`
	args := []interface{}{userID}

	if scope != nil {
		args = append(args, *scope)
		query += fmt.Sprintf(` AND scope_type = $%d`, len(args))
	}
	if scopeID != nil {
		args = append(args, *scopeID)
		query += fmt.Sprintf(` AND scope_id = $%d`, len(args))
	}
	query += ` ORDER BY granted_at DESC LIMIT 1`

	assignments, err := s.queryAssignments(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if len(assignments) == 0 {
		return nil, nil
	}
	return &assignments[0], nil
}

// DeleteExpired garbage-collects assignments whose expiry passed before the
// given cutoff, returning the number of rows removed
func (s *SQLStore) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM role_assignments WHERE expires_at IS NOT NULL AND expires_at < $1`,
		before,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired assignments: %w", err)
	}
	return result.RowsAffected()
}

func (s *SQLStore) queryAssignments(ctx context.Context, query string, args ...interface{}) ([]RoleAssignment, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query assignments: %w", err)
	}
	defer rows.Close()

	var assignments []RoleAssignment
	for rows.Next() {
		var a RoleAssignment
		var scopeID sql.NullString
		var grantedBy sql.NullInt64
		var expiresAt sql.NullTime

		err := rows.Scan(
			&a.ID,
			&a.UserID,
			&a.RoleID,
			&a.ScopeType,
			&scopeID,
			&a.IsPrimary,
			&grantedBy,
			&a.GrantedAt,
			&expiresAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}

		if scopeID.Valid {
			sid := scopeID.String
			a.ScopeID = &sid
		}
		if grantedBy.Valid {
			gb := grantedBy.Int64
			a.GrantedBy = &gb
		}
		if expiresAt.Valid {
			ea := expiresAt.Time
			a.ExpiresAt = &ea
		}

		assignments = append(assignments, a)
	}

	return assignments, rows.Err()
}

// isUniqueViolation reports whether the error is a Postgres unique
// constraint violation (SQLSTATE 23505)
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
