package rbac

import (
	"context"
	"testing"
	"time"
)

// Round-trips a role grant through a real Postgres instance. Requires
// CAREGRID_TEST_POSTGRES_URL; skipped otherwise.
func TestSQLStoreLive(t *testing.T) {
	db := RequireDatabase(t)
	defer db.Close()

	ctx := context.Background()

	if err := RunMigrations(ctx, db, nil); err != nil {
		t.Fatalf("RunMigrations: %v", err)
	}

	store := NewSQLStore(db)
	if err := SeedDefaultRoles(ctx, store, nil); err != nil {
		t.Fatalf("SeedDefaultRoles: %v", err)
	}
	// Seeding twice must be a no-op.
	if err := SeedDefaultRoles(ctx, store, nil); err != nil {
		t.Fatalf("SeedDefaultRoles rerun: %v", err)
	}

	ledger := NewLedger(store, store, nil, nil, nil)
	resolver := NewResolver(store, store, nil, nil)

	userID := time.Now().UnixNano() // avoid collisions across test runs
	tenantID := "live-test-tenant"

	assignment, err := ledger.Assign(ctx, AssignInput{
		UserID:    userID,
		RoleName:  RoleProvider,
		ScopeType: ScopeTenant,
		ScopeID:   &tenantID,
		IsPrimary: true,
	})
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}

	// Duplicate key merges rather than inserting a second row.
	expires := time.Now().Add(time.Hour).UTC()
	merged, err := ledger.Assign(ctx, AssignInput{
		UserID:    userID,
		RoleName:  RoleProvider,
		ScopeType: ScopeTenant,
		ScopeID:   &tenantID,
		ExpiresAt: &expires,
	})
	if err != nil {
		t.Fatalf("Assign merge: %v", err)
	}
	if merged.ID != assignment.ID {
		t.Errorf("Expected merge onto assignment %d, got new row %d", assignment.ID, merged.ID)
	}

	scope := ScopeTenant
	ok, err := resolver.HasPermission(ctx, userID, PermissionClinicalAccess, &scope, &tenantID)
	if err != nil {
		t.Fatalf("HasPermission: %v", err)
	}
	if !ok {
		t.Error("Expected provider to hold clinical_access in its tenant")
	}

	removed, err := ledger.Revoke(ctx, userID, RoleProvider, ScopeTenant, &tenantID, nil)
	if err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if !removed {
		t.Error("Expected revoke to remove the assignment")
	}
	if removed, _ = ledger.Revoke(ctx, userID, RoleProvider, ScopeTenant, &tenantID, nil); removed {
		t.Error("Expected second revoke to report nothing removed")
	}
}
