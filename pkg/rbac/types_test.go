package rbac

import (
	"errors"
	"testing"
	"time"
)

func TestPermissionSetHas(t *testing.T) {
	tests := []struct {
		name  string
		set   PermissionSet
		check Permission
		want  bool
	}{
		{"direct member", NewPermissionSet(PermissionViewSchedule), PermissionViewSchedule, true},
		{"non-member", NewPermissionSet(PermissionViewSchedule), PermissionBillingAccess, false},
		{"wildcard grants anything", NewPermissionSet(PermissionAll), PermissionManagePlatform, true},
		{"wildcard grants unlisted", NewPermissionSet(PermissionAll), Permission("future_permission"), true},
		{"empty set", NewPermissionSet(), PermissionViewSchedule, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.set.Has(tt.check); got != tt.want {
				t.Errorf("Has(%q) = %v, want %v", tt.check, got, tt.want)
			}
		})
	}
}

func TestPermissionSetHasWildcard(t *testing.T) {
	if NewPermissionSet(PermissionViewSchedule).HasWildcard() {
		t.Error("plain set should not report wildcard")
	}
	if !NewPermissionSet(PermissionViewSchedule, PermissionAll).HasWildcard() {
		t.Error("set containing * should report wildcard")
	}
}

func TestParseScope(t *testing.T) {
	tests := []struct {
		input   string
		want    Scope
		wantErr bool
	}{
		{"platform", ScopePlatform, false},
		{"regional", ScopeRegional, false},
		{"tenant", ScopeTenant, false},
		{"global", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseScope(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidScope) {
					t.Errorf("ParseScope(%q) error = %v, want ErrInvalidScope", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseScope(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseScope(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestScopeRequiresScopeID(t *testing.T) {
	if ScopePlatform.RequiresScopeID() {
		t.Error("platform scope should not require a scope ID")
	}
	if !ScopeRegional.RequiresScopeID() {
		t.Error("regional scope should require a scope ID")
	}
	if !ScopeTenant.RequiresScopeID() {
		t.Error("tenant scope should require a scope ID")
	}
}

func TestRoleAssignmentExpired(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name      string
		expiresAt *time.Time
		want      bool
	}{
		{"no expiry", nil, false},
		{"future expiry", &future, false},
		{"past expiry", &past, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := RoleAssignment{ExpiresAt: tt.expiresAt}
			if got := a.Expired(now); got != tt.want {
				t.Errorf("Expired = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDefaultRoles(t *testing.T) {
	roles := DefaultRoles()
	byName := make(map[string]Role, len(roles))
	for _, role := range roles {
		if _, dup := byName[role.Name]; dup {
			t.Errorf("duplicate role name %q", role.Name)
		}
		byName[role.Name] = role
		if !role.IsSystem {
			t.Errorf("role %q should be a system role", role.Name)
		}
		if !role.Scope.Valid() {
			t.Errorf("role %q has invalid scope %q", role.Name, role.Scope)
		}
	}

	super, ok := byName[RoleSuperAdmin]
	if !ok {
		t.Fatal("super_admin role missing")
	}
	if super.Scope != ScopePlatform {
		t.Errorf("super_admin scope = %v, want platform", super.Scope)
	}
	if !super.HasWildcard() {
		t.Error("super_admin should hold the wildcard permission")
	}

	for name, role := range byName {
		if name != RoleSuperAdmin && role.HasWildcard() {
			t.Errorf("role %q must not hold the wildcard", name)
		}
	}

	provider, ok := byName[RoleProvider]
	if !ok {
		t.Fatal("provider role missing")
	}
	if !provider.PermissionSet().Has(PermissionClinicalAccess) {
		t.Error("provider should hold clinical_access")
	}
	if provider.Scope != ScopeTenant {
		t.Errorf("provider scope = %v, want tenant", provider.Scope)
	}
}
