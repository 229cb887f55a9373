package support

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/caregrid/caregrid/pkg/audit"
	"github.com/caregrid/caregrid/pkg/rbac"
)

type captureAudit struct {
	mu     sync.Mutex
	events []*audit.Event
}

func (c *captureAudit) Log(_ context.Context, event *audit.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *captureAudit) Close() error { return nil }

func (c *captureAudit) countType(eventType audit.EventType) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.events {
		if e.EventType == eventType {
			n++
		}
	}
	return n
}

type stubRoles struct {
	superAdmins map[int64]bool
}

func (s *stubRoles) IsSuperAdmin(_ context.Context, userID int64) (bool, error) {
	return s.superAdmins[userID], nil
}

type stubAssignments struct {
	tenantUsers map[string][]int64
}

func (s *stubAssignments) ListActiveForTenant(_ context.Context, userID int64, tenantID string) ([]rbac.RoleAssignment, error) {
	for _, id := range s.tenantUsers[tenantID] {
		if id == userID {
			return []rbac.RoleAssignment{{UserID: userID, ScopeType: rbac.ScopeTenant, ScopeID: &tenantID}}, nil
		}
	}
	return nil, nil
}

func newTestManager(t *testing.T) (*Manager, *captureAudit) {
	t.Helper()
	auditLog := &captureAudit{}
	roles := &stubRoles{superAdmins: map[int64]bool{100: true}}
	assignments := &stubAssignments{tenantUsers: map[string][]int64{"tenant-1": {200}}}
	mgr := NewManager(NewMemoryStore(), roles, assignments, auditLog, nil, nil, 0)
	return mgr, auditLog
}

func levelPtr(l AccessLevel) *AccessLevel { return &l }

func TestGrantValidation(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	base := GrantInput{
		TenantID:    "tenant-1",
		GrantedTo:   300,
		Reason:      "Ticket #4821: investigate failed claim submissions",
		AccessLevel: AccessLevelMetadata,
		Duration:    time.Hour,
	}

	tests := []struct {
		name    string
		mutate  func(*GrantInput)
		wantErr error
	}{
		{"bad access level", func(in *GrantInput) { in.AccessLevel = "root" }, ErrInvalidAccessLevel},
		{"zero duration", func(in *GrantInput) { in.Duration = 0 }, ErrInvalidDuration},
		{"negative duration", func(in *GrantInput) { in.Duration = -time.Hour }, ErrInvalidDuration},
		{"over 48 hours", func(in *GrantInput) { in.Duration = 49 * time.Hour }, ErrDurationTooLong},
		{"blank reason", func(in *GrantInput) { in.Reason = "   " }, ErrEmptyReason},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := base
			tt.mutate(&input)
			if _, err := mgr.Grant(ctx, input); !errors.Is(err, tt.wantErr) {
				t.Errorf("Grant = %v, want %v", err, tt.wantErr)
			}
		})
	}

	// Exactly 48 hours is allowed.
	input := base
	input.Duration = 48 * time.Hour
	if _, err := mgr.Grant(ctx, input); err != nil {
		t.Errorf("48h grant should succeed, got %v", err)
	}
}

func TestGrantAndIsActive(t *testing.T) {
	mgr, auditLog := newTestManager(t)
	ctx := context.Background()

	grant, err := mgr.Grant(ctx, GrantInput{
		TenantID:    "tenant-1",
		GrantedTo:   300,
		GrantedBy:   int64Ptr(100),
		Reason:      "Ticket #4821",
		AccessLevel: AccessLevelMetadata,
		Duration:    2 * time.Hour,
	})
	if err != nil {
		t.Fatalf("Grant failed: %v", err)
	}
	if grant.ID == 0 {
		t.Error("Grant should have an ID")
	}

	active, err := mgr.IsActive(ctx, 300, "tenant-1", nil)
	if err != nil || !active {
		t.Errorf("IsActive = %v, %v; want true", active, err)
	}

	// Level filter: a metadata grant does not satisfy a full-access check.
	active, err = mgr.IsActive(ctx, 300, "tenant-1", levelPtr(AccessLevelFull))
	if err != nil || active {
		t.Errorf("IsActive(full) = %v, %v; want false", active, err)
	}
	active, err = mgr.IsActive(ctx, 300, "tenant-1", levelPtr(AccessLevelMetadata))
	if err != nil || !active {
		t.Errorf("IsActive(metadata) = %v, %v; want true", active, err)
	}

	// Wrong tenant, wrong user.
	if active, _ := mgr.IsActive(ctx, 300, "tenant-2", nil); active {
		t.Error("Grant must not leak into another tenant")
	}
	if active, _ := mgr.IsActive(ctx, 301, "tenant-1", nil); active {
		t.Error("Grant must not apply to another user")
	}

	if n := auditLog.countType(audit.EventTypeSupportGrantIssue); n != 1 {
		t.Errorf("Expected 1 grant_issue audit event, got %d", n)
	}
}

func TestGrantExpiry(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	grant, err := mgr.Grant(ctx, GrantInput{
		TenantID:    "tenant-1",
		GrantedTo:   300,
		Reason:      "Ticket #4821",
		AccessLevel: AccessLevelFull,
		Duration:    time.Hour,
	})
	if err != nil {
		t.Fatalf("Grant failed: %v", err)
	}

	// Advance the clock past expiry.
	mgr.now = func() time.Time { return grant.ExpiresAt.Add(time.Second) }

	active, err := mgr.IsActive(ctx, 300, "tenant-1", nil)
	if err != nil || active {
		t.Errorf("Expired grant should be inactive, got %v, %v", active, err)
	}

	expired, err := mgr.ReportExpired(ctx, mgr.now())
	if err != nil {
		t.Fatalf("ReportExpired failed: %v", err)
	}
	if len(expired) != 1 || expired[0].ID != grant.ID {
		t.Errorf("ReportExpired = %v, want the expired grant", expired)
	}
}

func TestRevokeIdempotent(t *testing.T) {
	mgr, auditLog := newTestManager(t)
	ctx := context.Background()

	grant, err := mgr.Grant(ctx, GrantInput{
		TenantID:    "tenant-1",
		GrantedTo:   300,
		Reason:      "Ticket #4821",
		AccessLevel: AccessLevelFull,
		Duration:    time.Hour,
	})
	if err != nil {
		t.Fatalf("Grant failed: %v", err)
	}

	if err := mgr.Revoke(ctx, grant.ID, 100); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	if active, _ := mgr.IsActive(ctx, 300, "tenant-1", nil); active {
		t.Error("Revoked grant should be inactive")
	}

	// Second revoke is a no-op, not an error, and emits no second event.
	if err := mgr.Revoke(ctx, grant.ID, 101); err != nil {
		t.Errorf("Second revoke should succeed quietly, got %v", err)
	}
	if n := auditLog.countType(audit.EventTypeSupportGrantRevoke); n != 1 {
		t.Errorf("Expected 1 grant_revoke audit event, got %d", n)
	}

	// The row survives revocation with both stamps intact.
	stored, err := mgr.grants.Get(ctx, grant.ID)
	if err != nil {
		t.Fatalf("Revoked grant should still exist: %v", err)
	}
	if stored.RevokedAt == nil || stored.RevokedBy == nil || *stored.RevokedBy != 100 {
		t.Errorf("Revocation stamps wrong: at=%v by=%v", stored.RevokedAt, stored.RevokedBy)
	}

	if err := mgr.Revoke(ctx, 9999, 100); !errors.Is(err, ErrGrantNotFound) {
		t.Errorf("Revoke of unknown grant = %v, want ErrGrantNotFound", err)
	}
}

func TestCanAccessTenant(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	// Super admin passes everywhere.
	if ok, err := mgr.CanAccessTenant(ctx, 100, "tenant-1"); err != nil || !ok {
		t.Errorf("Super admin access = %v, %v; want true", ok, err)
	}
	if ok, _ := mgr.CanAccessTenant(ctx, 100, "tenant-other"); !ok {
		t.Error("Super admin should access any tenant")
	}

	// Tenant member passes in their tenant only.
	if ok, _ := mgr.CanAccessTenant(ctx, 200, "tenant-1"); !ok {
		t.Error("Tenant member should access their tenant")
	}
	if ok, _ := mgr.CanAccessTenant(ctx, 200, "tenant-2"); ok {
		t.Error("Tenant member must not access another tenant")
	}

	// Plain user is denied until granted.
	if ok, _ := mgr.CanAccessTenant(ctx, 300, "tenant-1"); ok {
		t.Error("User without assignment or grant must be denied")
	}

	grant, err := mgr.Grant(ctx, GrantInput{
		TenantID:    "tenant-1",
		GrantedTo:   300,
		Reason:      "Ticket #4821",
		AccessLevel: AccessLevelMetadata,
		Duration:    time.Hour,
	})
	if err != nil {
		t.Fatalf("Grant failed: %v", err)
	}

	if ok, _ := mgr.CanAccessTenant(ctx, 300, "tenant-1"); !ok {
		t.Error("Active grant should open the gate")
	}

	if err := mgr.Revoke(ctx, grant.ID, 100); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	if ok, _ := mgr.CanAccessTenant(ctx, 300, "tenant-1"); ok {
		t.Error("Revoked grant must close the gate")
	}
}

func int64Ptr(v int64) *int64 { return &v }
