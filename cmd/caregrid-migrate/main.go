// caregrid-migrate moves legacy single-role user records into the role
// assignment ledger. Legacy users carry one role string on the users row;
// the ledger replaces that with scoped assignments. The tool is safe to
// re-run: users who already hold any assignment are skipped.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	_ "github.com/lib/pq"

	"github.com/caregrid/caregrid/pkg/async"
	"github.com/caregrid/caregrid/pkg/observability"
	"github.com/caregrid/caregrid/pkg/rbac"
)

// legacyRoleMap translates the legacy users.role strings into catalog
// role names plus the scope the assignment should carry.
var legacyRoleMap = map[string]struct {
	RoleName string
	Scope    rbac.Scope
}{
	"superadmin":   {rbac.RoleSuperAdmin, rbac.ScopePlatform},
	"super_admin":  {rbac.RoleSuperAdmin, rbac.ScopePlatform},
	"support":      {rbac.RolePlatformSupport, rbac.ScopePlatform},
	"admin":        {rbac.RoleTenantAdmin, rbac.ScopeTenant},
	"provider":     {rbac.RoleProvider, rbac.ScopeTenant},
	"doctor":       {rbac.RoleProvider, rbac.ScopeTenant},
	"front_desk":   {rbac.RoleFrontDesk, rbac.ScopeTenant},
	"receptionist": {rbac.RoleFrontDesk, rbac.ScopeTenant},
	"biller":       {rbac.RoleBiller, rbac.ScopeTenant},
	"billing":      {rbac.RoleBiller, rbac.ScopeTenant},
}

type legacyUser struct {
	ID       int64
	Email    string
	Role     sql.NullString
	TenantID sql.NullString
}

type counters struct {
	migrated         int64
	skippedAlready   int64
	skippedNoLegacy  int64
	skippedNoMapping int64
	errors           int64
}

func main() {
	dryRun := flag.Bool("dry-run", false, "Classify users and report counts without writing")
	verifyOnly := flag.Bool("verify-only", false, "Report migrated vs unmigrated counts without writing")
	workers := flag.Int("workers", 4, "Concurrent migration workers")
	dbURL := flag.String("database-url", os.Getenv("CAREGRID_POSTGRES_URL"), "PostgreSQL connection URL")
	flag.Parse()

	if *dbURL == "" {
		fmt.Fprintln(os.Stderr, "A database URL is required (--database-url or CAREGRID_POSTGRES_URL)")
		os.Exit(1)
	}

	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
	ctx := context.Background()

	db, err := sql.Open("postgres", *dbURL)
	if err != nil {
		logger.WithError(err).Error("Failed to open database")
		os.Exit(1)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		logger.WithError(err).Error("Failed to connect to database")
		os.Exit(1)
	}

	roleStore := rbac.NewSQLStore(db)
	ledger := rbac.NewLedger(roleStore, roleStore, nil, nil, logger)

	users, err := loadUsers(ctx, db)
	if err != nil {
		logger.WithError(err).Error("Failed to load users")
		os.Exit(1)
	}
	logger.WithField("users", len(users)).Info("Loaded legacy user records")

	live := !*dryRun && !*verifyOnly

	var c counters
	async.Batch(ctx, users, *workers, "legacy role migration", 30*time.Second,
		func(ctx context.Context, user legacyUser) error {
			migrateUser(ctx, db, ledger, user, live, &c, logger)
			return nil
		})

	mode := "live"
	if *dryRun {
		mode = "dry-run"
	}
	if *verifyOnly {
		mode = "verify-only"
	}

	fmt.Printf("Mode: %s\n", mode)
	fmt.Printf("migrated:               %d\n", atomic.LoadInt64(&c.migrated))
	fmt.Printf("skipped-already:        %d\n", atomic.LoadInt64(&c.skippedAlready))
	fmt.Printf("skipped-no-legacy-role: %d\n", atomic.LoadInt64(&c.skippedNoLegacy))
	fmt.Printf("skipped-no-mapping:     %d\n", atomic.LoadInt64(&c.skippedNoMapping))
	fmt.Printf("errors:                 %d\n", atomic.LoadInt64(&c.errors))

	if live && atomic.LoadInt64(&c.errors) > 0 {
		os.Exit(1)
	}
}

// migrateUser classifies one user and, in a live run, writes the ledger
// assignment. Counter updates are atomic because users are processed by a
// worker pool.
func migrateUser(ctx context.Context, db *sql.DB, ledger *rbac.Ledger, user legacyUser, live bool, c *counters, logger *observability.Logger) {
	assigned, err := hasAssignments(ctx, db, user.ID)
	if err != nil {
		logger.WithError(err).WithField("user_id", user.ID).Error("Failed to check existing assignments")
		atomic.AddInt64(&c.errors, 1)
		return
	}
	if assigned {
		atomic.AddInt64(&c.skippedAlready, 1)
		return
	}

	if !user.Role.Valid || user.Role.String == "" {
		atomic.AddInt64(&c.skippedNoLegacy, 1)
		return
	}

	mapping, ok := legacyRoleMap[user.Role.String]
	if !ok {
		logger.WithFields(map[string]interface{}{
			"user_id": user.ID,
			"role":    user.Role.String,
		}).Warn("Legacy role has no catalog mapping")
		atomic.AddInt64(&c.skippedNoMapping, 1)
		return
	}

	var scopeID *string
	if mapping.Scope == rbac.ScopeTenant {
		if !user.TenantID.Valid || user.TenantID.String == "" {
			logger.WithField("user_id", user.ID).Error("Tenant-scoped legacy role on a user without a tenant")
			atomic.AddInt64(&c.errors, 1)
			return
		}
		tenantID := user.TenantID.String
		scopeID = &tenantID
	}

	if !live {
		atomic.AddInt64(&c.migrated, 1)
		return
	}

	_, err = ledger.Assign(ctx, rbac.AssignInput{
		UserID:    user.ID,
		RoleName:  mapping.RoleName,
		ScopeType: mapping.Scope,
		ScopeID:   scopeID,
		IsPrimary: true,
	})
	if err != nil {
		logger.WithError(err).WithField("user_id", user.ID).Error("Failed to write assignment")
		atomic.AddInt64(&c.errors, 1)
		return
	}
	atomic.AddInt64(&c.migrated, 1)
}

func loadUsers(ctx context.Context, db *sql.DB) ([]legacyUser, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, email, role, tenant_id FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []legacyUser
	for rows.Next() {
		var u legacyUser
		if err := rows.Scan(&u.ID, &u.Email, &u.Role, &u.TenantID); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func hasAssignments(ctx context.Context, db *sql.DB, userID int64) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM role_assignments WHERE user_id = $1)`, userID).Scan(&exists)
	return exists, err
}
