package rbac

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/caregrid/caregrid/pkg/observability"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns all schema migrations in apply order
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create tenants table",
			SQL: `
				CREATE TABLE IF NOT EXISTS tenants (
					id VARCHAR(64) PRIMARY KEY,
					name VARCHAR(255) NOT NULL,
					slug VARCHAR(64) NOT NULL UNIQUE,
					region_id VARCHAR(64),
					status VARCHAR(32) NOT NULL DEFAULT 'pending_setup',
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_tenants_region_id ON tenants(region_id);
				CREATE INDEX idx_tenants_status ON tenants(status);
			`,
		},
		{
			Version:     2,
			Description: "Create users table",
			SQL: `
				CREATE TABLE IF NOT EXISTS users (
					id BIGSERIAL PRIMARY KEY,
					email VARCHAR(255) NOT NULL UNIQUE,
					display_name VARCHAR(255),
					tenant_id VARCHAR(64) REFERENCES tenants(id) ON DELETE SET NULL,
					role VARCHAR(64),
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_users_tenant_id ON users(tenant_id);
			`,
		},
		{
			Version:     3,
			Description: "Create roles table",
			SQL: `
				CREATE TABLE IF NOT EXISTS roles (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(255) NOT NULL UNIQUE,
					display_name VARCHAR(255) NOT NULL,
					description TEXT,
					scope VARCHAR(32) NOT NULL,
					permissions JSONB NOT NULL DEFAULT '[]',
					is_system BOOLEAN DEFAULT FALSE,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_roles_scope ON roles(scope);
				CREATE INDEX idx_roles_is_system ON roles(is_system);
			`,
		},
		{
			Version:     4,
			Description: "Create role_assignments table",
			SQL: `
				CREATE TABLE IF NOT EXISTS role_assignments (
					id BIGSERIAL PRIMARY KEY,
					user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					role_id BIGINT NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
					scope_type VARCHAR(32) NOT NULL,
					scope_id VARCHAR(64),
					is_primary BOOLEAN DEFAULT FALSE,
					granted_by BIGINT REFERENCES users(id) ON DELETE SET NULL,
					granted_at TIMESTAMP NOT NULL DEFAULT NOW(),
					expires_at TIMESTAMP
				);

				CREATE UNIQUE INDEX idx_role_assignments_key
					ON role_assignments(user_id, role_id, scope_type, COALESCE(scope_id, ''));
				CREATE INDEX idx_role_assignments_user_id ON role_assignments(user_id);
				CREATE INDEX idx_role_assignments_role_id ON role_assignments(role_id);
				CREATE INDEX idx_role_assignments_scope ON role_assignments(scope_type, scope_id);
				CREATE INDEX idx_role_assignments_expires_at ON role_assignments(expires_at);
			`,
		},
		{
			Version:     5,
			Description: "Create support_access_grants table",
			SQL: `
				CREATE TABLE IF NOT EXISTS support_access_grants (
					id BIGSERIAL PRIMARY KEY,
					support_user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					tenant_id VARCHAR(64) NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
					access_level VARCHAR(32) NOT NULL,
					reason TEXT NOT NULL,
					approved_by BIGINT REFERENCES users(id) ON DELETE SET NULL,
					granted_at TIMESTAMP NOT NULL DEFAULT NOW(),
					expires_at TIMESTAMP NOT NULL,
					revoked_at TIMESTAMP,
					revoked_by BIGINT REFERENCES users(id) ON DELETE SET NULL
				);

				CREATE INDEX idx_support_grants_support_user_id ON support_access_grants(support_user_id);
				CREATE INDEX idx_support_grants_tenant_id ON support_access_grants(tenant_id);
				CREATE INDEX idx_support_grants_expires_at ON support_access_grants(expires_at);
			`,
		},
		{
			Version:     6,
			Description: "Create audit_logs table",
			SQL: `
				CREATE TABLE IF NOT EXISTS audit_logs (
					id BIGSERIAL PRIMARY KEY,
					timestamp TIMESTAMP NOT NULL DEFAULT NOW(),
					event_type VARCHAR(100) NOT NULL,
					status VARCHAR(32) NOT NULL,
					actor_id BIGINT,
					tenant_id VARCHAR(64),
					resource_type VARCHAR(64),
					resource_id VARCHAR(255),
					ip_address VARCHAR(64),
					request_id VARCHAR(64),
					message TEXT,
					error_message TEXT,
					metadata JSONB
				);

				CREATE INDEX idx_audit_logs_timestamp ON audit_logs(timestamp);
				CREATE INDEX idx_audit_logs_event_type ON audit_logs(event_type);
				CREATE INDEX idx_audit_logs_actor_id ON audit_logs(actor_id);
				CREATE INDEX idx_audit_logs_tenant_id ON audit_logs(tenant_id);
			`,
		},
		{
			Version:     7,
			Description: "Enable row-level security on tenant-owned tables",
			SQL: `
				ALTER TABLE support_access_grants ENABLE ROW LEVEL SECURITY;
				CREATE POLICY support_grants_tenant_isolation ON support_access_grants
					USING (
						current_setting('app.current_tenant_id', true) IS NULL
						OR current_setting('app.current_tenant_id', true) = ''
						OR tenant_id = current_setting('app.current_tenant_id', true)
					);

				ALTER TABLE audit_logs ENABLE ROW LEVEL SECURITY;
				CREATE POLICY audit_logs_tenant_isolation ON audit_logs
					USING (
						current_setting('app.current_tenant_id', true) IS NULL
						OR current_setting('app.current_tenant_id', true) = ''
						OR tenant_id IS NULL
						OR tenant_id = current_setting('app.current_tenant_id', true)
					);
			`,
		},
	}
}

// RunMigrations executes all pending migrations, each in its own transaction
func RunMigrations(ctx context.Context, db *sql.DB, logger *observability.Logger) error {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}

	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS caregrid_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM caregrid_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}

	appliedVersions := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		appliedVersions[version] = true
	}
	rows.Close()

	for _, migration := range GetMigrations() {
		if appliedVersions[migration.Version] {
			continue
		}

		logger.WithFields(map[string]interface{}{
			"version":     migration.Version,
			"description": migration.Description,
		}).Info("Running migration")

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO caregrid_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}

// SeedDefaultRoles creates the system roles if they don't exist. Safe to run
// at every startup.
func SeedDefaultRoles(ctx context.Context, store RoleStore, logger *observability.Logger) error {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}

	for _, role := range DefaultRoles() {
		existing, err := store.GetRoleByName(ctx, role.Name)
		if err == nil && existing != nil {
			continue
		}

		role := role
		if err := store.CreateRole(ctx, &role); err != nil {
			return fmt.Errorf("failed to create system role %s: %w", role.Name, err)
		}
		logger.WithField("role", role.Name).Info("Created system role")
	}

	return nil
}
