package rbac

import (
	"context"
	"errors"
	"testing"
	"time"
)

type recordingInvalidator struct {
	users []int64
}

func (r *recordingInvalidator) InvalidateUser(_ context.Context, userID int64) {
	r.users = append(r.users, userID)
}

func strPtr(s string) *string { return &s }

func int64Ptr(v int64) *int64 { return &v }

func newTestLedger(t *testing.T) (*Ledger, *MemoryStore, *recordingInvalidator) {
	t.Helper()
	store := NewMemoryStore()
	ctx := context.Background()
	for _, role := range DefaultRoles() {
		role := role
		if err := store.CreateRole(ctx, &role); err != nil {
			t.Fatalf("Failed to seed role %s: %v", role.Name, err)
		}
	}
	inv := &recordingInvalidator{}
	return NewLedger(store, store, nil, inv, nil), store, inv
}

func TestLedgerAssignValidation(t *testing.T) {
	ledger, _, _ := newTestLedger(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		input   AssignInput
		wantErr error
	}{
		{
			name: "unknown role",
			input: AssignInput{
				UserID:    1,
				RoleName:  "chief_wizard",
				ScopeType: ScopePlatform,
			},
			wantErr: ErrNotFound,
		},
		{
			name: "scope mismatch",
			input: AssignInput{
				UserID:    1,
				RoleName:  RoleProvider,
				ScopeType: ScopePlatform,
			},
			wantErr: ErrInvalidScope,
		},
		{
			name: "tenant role without scope id",
			input: AssignInput{
				UserID:    1,
				RoleName:  RoleProvider,
				ScopeType: ScopeTenant,
			},
			wantErr: ErrMissingScopeID,
		},
		{
			name: "platform role with scope id",
			input: AssignInput{
				UserID:    1,
				RoleName:  RoleSuperAdmin,
				ScopeType: ScopePlatform,
				ScopeID:   strPtr("tenant-1"),
			},
			wantErr: ErrUnexpectedScopeID,
		},
		{
			name: "invalid scope value",
			input: AssignInput{
				UserID:    1,
				RoleName:  RoleProvider,
				ScopeType: Scope("galactic"),
			},
			wantErr: ErrInvalidScope,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ledger.Assign(ctx, tt.input)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Assign error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestLedgerAssignIdempotentMerge(t *testing.T) {
	ledger, _, inv := newTestLedger(t)
	ctx := context.Background()

	first, err := ledger.Assign(ctx, AssignInput{
		UserID:    42,
		RoleName:  RoleProvider,
		ScopeType: ScopeTenant,
		ScopeID:   strPtr("tenant-1"),
		GrantedBy: int64Ptr(7),
	})
	if err != nil {
		t.Fatalf("First assign failed: %v", err)
	}

	expiry := time.Now().Add(24 * time.Hour)
	second, err := ledger.Assign(ctx, AssignInput{
		UserID:    42,
		RoleName:  RoleProvider,
		ScopeType: ScopeTenant,
		ScopeID:   strPtr("tenant-1"),
		IsPrimary: true,
		ExpiresAt: &expiry,
	})
	if err != nil {
		t.Fatalf("Duplicate assign should merge, got: %v", err)
	}

	if second.ID != first.ID {
		t.Errorf("Duplicate assign created new row: id %d vs %d", second.ID, first.ID)
	}
	if !second.IsPrimary {
		t.Error("Merge should have updated is_primary")
	}
	if second.ExpiresAt == nil || !second.ExpiresAt.Equal(expiry) {
		t.Errorf("Merge should have updated expires_at, got %v", second.ExpiresAt)
	}

	active, err := ledger.ListActive(ctx, 42, nil, nil)
	if err != nil {
		t.Fatalf("ListActive failed: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("Expected exactly one assignment after merge, got %d", len(active))
	}

	if len(inv.users) != 2 {
		t.Errorf("Expected 2 cache invalidations, got %d", len(inv.users))
	}
}

func TestLedgerRevoke(t *testing.T) {
	ledger, _, inv := newTestLedger(t)
	ctx := context.Background()

	_, err := ledger.Assign(ctx, AssignInput{
		UserID:    42,
		RoleName:  RoleProvider,
		ScopeType: ScopeTenant,
		ScopeID:   strPtr("tenant-1"),
	})
	if err != nil {
		t.Fatalf("Assign failed: %v", err)
	}

	removed, err := ledger.Revoke(ctx, 42, RoleProvider, ScopeTenant, strPtr("tenant-1"), nil)
	if err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	if !removed {
		t.Error("Revoke should report removal")
	}

	removed, err = ledger.Revoke(ctx, 42, RoleProvider, ScopeTenant, strPtr("tenant-1"), nil)
	if err != nil {
		t.Fatalf("Second revoke errored: %v", err)
	}
	if removed {
		t.Error("Second revoke should be a no-op")
	}

	if _, err := ledger.Revoke(ctx, 42, "chief_wizard", ScopeTenant, strPtr("tenant-1"), nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("Revoke of unknown role = %v, want ErrNotFound", err)
	}

	// assign + successful revoke, not the no-op revoke
	if len(inv.users) != 2 {
		t.Errorf("Expected 2 cache invalidations, got %d", len(inv.users))
	}
}

func TestLedgerGetPrimaryRole(t *testing.T) {
	ledger, _, _ := newTestLedger(t)
	ctx := context.Background()
	scope := ScopeTenant

	role, err := ledger.GetPrimaryRole(ctx, 42, &scope, strPtr("tenant-1"))
	if err != nil {
		t.Fatalf("GetPrimaryRole failed: %v", err)
	}
	if role != nil {
		t.Errorf("Expected no primary role, got %s", role.Name)
	}

	_, err = ledger.Assign(ctx, AssignInput{
		UserID:    42,
		RoleName:  RoleProvider,
		ScopeType: ScopeTenant,
		ScopeID:   strPtr("tenant-1"),
		IsPrimary: true,
	})
	if err != nil {
		t.Fatalf("Assign failed: %v", err)
	}

	role, err = ledger.GetPrimaryRole(ctx, 42, &scope, strPtr("tenant-1"))
	if err != nil {
		t.Fatalf("GetPrimaryRole failed: %v", err)
	}
	if role == nil || role.Name != RoleProvider {
		t.Errorf("GetPrimaryRole = %v, want provider", role)
	}
}

func TestLedgerDeleteExpired(t *testing.T) {
	ledger, _, _ := newTestLedger(t)
	ctx := context.Background()

	past := time.Now().Add(-time.Hour)
	_, err := ledger.Assign(ctx, AssignInput{
		UserID:    42,
		RoleName:  RoleProvider,
		ScopeType: ScopeTenant,
		ScopeID:   strPtr("tenant-1"),
		ExpiresAt: &past,
	})
	if err != nil {
		t.Fatalf("Assign failed: %v", err)
	}
	_, err = ledger.Assign(ctx, AssignInput{
		UserID:    43,
		RoleName:  RoleProvider,
		ScopeType: ScopeTenant,
		ScopeID:   strPtr("tenant-1"),
	})
	if err != nil {
		t.Fatalf("Assign failed: %v", err)
	}

	removed, err := ledger.DeleteExpired(ctx, time.Now())
	if err != nil {
		t.Fatalf("DeleteExpired failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("DeleteExpired removed %d, want 1", removed)
	}

	active, err := ledger.ListActive(ctx, 43, nil, nil)
	if err != nil {
		t.Fatalf("ListActive failed: %v", err)
	}
	if len(active) != 1 {
		t.Errorf("Unexpired assignment should survive, got %d active", len(active))
	}
}
