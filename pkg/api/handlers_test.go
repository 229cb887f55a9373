package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/caregrid/caregrid/pkg/identity"
	"github.com/caregrid/caregrid/pkg/rbac"
	"github.com/caregrid/caregrid/pkg/support"
	"github.com/caregrid/caregrid/pkg/tenancy"
)

const testSecret = "test-secret-at-least-32-bytes-long!"

func strPtr(s string) *string { return &s }

func newTestServer(t *testing.T) *Server {
	t.Helper()
	ctx := context.Background()

	roles := rbac.NewMemoryStore()
	for _, role := range rbac.DefaultRoles() {
		role := role
		if err := roles.CreateRole(ctx, &role); err != nil {
			t.Fatalf("Failed to seed role: %v", err)
		}
	}

	cache := rbac.NewMemoryCache(128, time.Minute, nil)
	ledger := rbac.NewLedger(roles, roles, nil, cache, nil)
	resolver := rbac.NewResolver(roles, roles, cache, nil)

	// User 1 is a super admin, user 2 a provider in tenant-1.
	seed := []rbac.AssignInput{
		{UserID: 1, RoleName: rbac.RoleSuperAdmin, ScopeType: rbac.ScopePlatform},
		{UserID: 2, RoleName: rbac.RoleProvider, ScopeType: rbac.ScopeTenant, ScopeID: strPtr("tenant-1")},
	}
	for _, input := range seed {
		if _, err := ledger.Assign(ctx, input); err != nil {
			t.Fatalf("Failed to seed assignment: %v", err)
		}
	}

	tenants := tenancy.NewMemoryStore()
	if err := tenants.CreateTenant(ctx, &tenancy.Tenant{
		ID: "tenant-1", Name: "Clinic One", Slug: "clinic-one", Status: tenancy.StatusActive,
	}); err != nil {
		t.Fatalf("Failed to seed tenant: %v", err)
	}

	tenantMgr := tenancy.NewManager(tenants, nil, nil, nil, nil, tenancy.ManagerOptions{})
	grantMgr := support.NewManager(support.NewMemoryStore(), resolver, roles, nil, nil, nil, 0)

	return NewServer(ServerConfig{
		Roles:    roles,
		Ledger:   ledger,
		Resolver: resolver,
		Grants:   grantMgr,
		Tenants:  tenantMgr,
		Verifier: identity.NewTokenVerifier(testSecret, "caregrid"),
	})
}

func bearerFor(t *testing.T, userID int64) string {
	t.Helper()
	verifier := identity.NewTokenVerifier(testSecret, "caregrid")
	token, err := verifier.Issue(&identity.Actor{UserID: userID}, time.Hour)
	if err != nil {
		t.Fatalf("Failed to issue token: %v", err)
	}
	return "Bearer " + token
}

func doRequest(t *testing.T, s *Server, method, path string, userID int64, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if userID != 0 {
		req.Header.Set("Authorization", bearerFor(t, userID))
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dest); err != nil {
		t.Fatalf("Failed to decode response %q: %v", rec.Body.String(), err)
	}
}

func TestRoleEndpoints(t *testing.T) {
	s := newTestServer(t)

	t.Run("unauthenticated request is rejected", func(t *testing.T) {
		rec := doRequest(t, s, "GET", "/api/v1/roles", 0, nil)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("Status = %d, want 401", rec.Code)
		}
	})

	t.Run("any authenticated user can list roles", func(t *testing.T) {
		rec := doRequest(t, s, "GET", "/api/v1/roles", 2, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("Status = %d, want 200 (%s)", rec.Code, rec.Body.String())
		}
		var resp struct {
			Roles []rbac.Role `json:"roles"`
		}
		decodeBody(t, rec, &resp)
		if len(resp.Roles) != len(rbac.DefaultRoles()) {
			t.Errorf("Got %d roles, want %d", len(resp.Roles), len(rbac.DefaultRoles()))
		}
	})

	t.Run("scope filter narrows the list", func(t *testing.T) {
		rec := doRequest(t, s, "GET", "/api/v1/roles?scope=platform", 2, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("Status = %d, want 200", rec.Code)
		}
		var resp struct {
			Roles []rbac.Role `json:"roles"`
		}
		decodeBody(t, rec, &resp)
		for _, role := range resp.Roles {
			if role.Scope != rbac.ScopePlatform {
				t.Errorf("Role %s has scope %s, want platform", role.Name, role.Scope)
			}
		}
	})

	t.Run("get role by name", func(t *testing.T) {
		rec := doRequest(t, s, "GET", "/api/v1/roles/provider", 2, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("Status = %d, want 200", rec.Code)
		}
		var role rbac.Role
		decodeBody(t, rec, &role)
		if role.Name != rbac.RoleProvider {
			t.Errorf("Name = %s, want provider", role.Name)
		}
	})

	t.Run("unknown role is 404", func(t *testing.T) {
		rec := doRequest(t, s, "GET", "/api/v1/roles/no-such-role", 2, nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("Status = %d, want 404", rec.Code)
		}
	})

	t.Run("create role requires manage_roles", func(t *testing.T) {
		body := createRoleRequest{Name: "auditor", Scope: "tenant", Permissions: []string{"view_reports"}}
		rec := doRequest(t, s, "POST", "/api/v1/roles", 2, body)
		if rec.Code != http.StatusForbidden {
			t.Fatalf("Status = %d, want 403", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "not authorized") {
			t.Errorf("Denial must be generic, got %s", rec.Body.String())
		}

		rec = doRequest(t, s, "POST", "/api/v1/roles", 1, body)
		if rec.Code != http.StatusCreated {
			t.Fatalf("Status = %d, want 201 (%s)", rec.Code, rec.Body.String())
		}
	})

	t.Run("create rejects bogus scope", func(t *testing.T) {
		body := createRoleRequest{Name: "ghost", Scope: "galactic"}
		rec := doRequest(t, s, "POST", "/api/v1/roles", 1, body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("Status = %d, want 400", rec.Code)
		}
	})
}

func TestAssignmentEndpoints(t *testing.T) {
	s := newTestServer(t)

	assign := assignRequest{
		UserID:    5,
		RoleName:  rbac.RoleTenantAdmin,
		ScopeType: "tenant",
		ScopeID:   strPtr("tenant-1"),
	}

	t.Run("non-admin cannot assign", func(t *testing.T) {
		rec := doRequest(t, s, "POST", "/api/v1/assignments", 2, assign)
		if rec.Code != http.StatusForbidden {
			t.Errorf("Status = %d, want 403", rec.Code)
		}
	})

	t.Run("super admin assigns a role", func(t *testing.T) {
		rec := doRequest(t, s, "POST", "/api/v1/assignments", 1, assign)
		if rec.Code != http.StatusCreated {
			t.Fatalf("Status = %d, want 201 (%s)", rec.Code, rec.Body.String())
		}
		var got rbac.RoleAssignment
		decodeBody(t, rec, &got)
		if got.UserID != 5 || got.GrantedBy == nil || *got.GrantedBy != 1 {
			t.Errorf("Assignment = %+v, want user 5 granted by 1", got)
		}
	})

	t.Run("scope mismatch is rejected", func(t *testing.T) {
		bad := assignRequest{UserID: 5, RoleName: rbac.RoleTenantAdmin, ScopeType: "platform"}
		rec := doRequest(t, s, "POST", "/api/v1/assignments", 1, bad)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("Status = %d, want 400 (%s)", rec.Code, rec.Body.String())
		}
	})

	t.Run("list shows the new assignment", func(t *testing.T) {
		rec := doRequest(t, s, "GET", "/api/v1/users/5/assignments", 1, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("Status = %d, want 200", rec.Code)
		}
		var resp struct {
			Assignments []rbac.RoleAssignment `json:"assignments"`
		}
		decodeBody(t, rec, &resp)
		if len(resp.Assignments) != 1 {
			t.Errorf("Got %d assignments, want 1", len(resp.Assignments))
		}
	})

	t.Run("resolved permissions reflect the role", func(t *testing.T) {
		rec := doRequest(t, s, "GET", "/api/v1/users/5/permissions?scope=tenant&scope_id=tenant-1", 1, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("Status = %d, want 200", rec.Code)
		}
		var resp struct {
			Permissions []rbac.Permission `json:"permissions"`
			Wildcard    bool              `json:"wildcard"`
		}
		decodeBody(t, rec, &resp)
		if resp.Wildcard {
			t.Error("Tenant admin must not resolve to the wildcard")
		}
		found := false
		for _, p := range resp.Permissions {
			if p == rbac.PermissionManageUsers {
				found = true
			}
		}
		if !found {
			t.Errorf("Permissions %v missing manage_users", resp.Permissions)
		}
	})

	t.Run("wildcard flagged for super admin", func(t *testing.T) {
		rec := doRequest(t, s, "GET", "/api/v1/users/1/permissions", 1, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("Status = %d, want 200", rec.Code)
		}
		var resp struct {
			Wildcard bool `json:"wildcard"`
		}
		decodeBody(t, rec, &resp)
		if !resp.Wildcard {
			t.Error("Super admin must resolve to the wildcard")
		}
	})

	t.Run("revoke is idempotent", func(t *testing.T) {
		revoke := revokeAssignmentRequest{
			UserID:    5,
			RoleName:  rbac.RoleTenantAdmin,
			ScopeType: "tenant",
			ScopeID:   strPtr("tenant-1"),
		}
		rec := doRequest(t, s, "DELETE", "/api/v1/assignments", 1, revoke)
		if rec.Code != http.StatusOK {
			t.Fatalf("Status = %d, want 200 (%s)", rec.Code, rec.Body.String())
		}
		var resp struct {
			Removed bool `json:"removed"`
		}
		decodeBody(t, rec, &resp)
		if !resp.Removed {
			t.Error("First revoke must remove the assignment")
		}

		rec = doRequest(t, s, "DELETE", "/api/v1/assignments", 1, revoke)
		decodeBody(t, rec, &resp)
		if rec.Code != http.StatusOK || resp.Removed {
			t.Errorf("Second revoke: status %d removed %v, want 200 and false", rec.Code, resp.Removed)
		}
	})
}

func TestSupportGrantEndpoints(t *testing.T) {
	s := newTestServer(t)

	t.Run("provider cannot issue grants", func(t *testing.T) {
		body := createGrantRequest{TenantID: "tenant-1", GrantedTo: 7, Reason: "Ticket #9", AccessLevel: "full", DurationMinutes: 60}
		rec := doRequest(t, s, "POST", "/api/v1/support-grants", 2, body)
		if rec.Code != http.StatusForbidden {
			t.Errorf("Status = %d, want 403", rec.Code)
		}
	})

	var grantID int64
	t.Run("super admin issues a grant", func(t *testing.T) {
		body := createGrantRequest{TenantID: "tenant-1", GrantedTo: 7, Reason: "Ticket #9", AccessLevel: "full", DurationMinutes: 60}
		rec := doRequest(t, s, "POST", "/api/v1/support-grants", 1, body)
		if rec.Code != http.StatusCreated {
			t.Fatalf("Status = %d, want 201 (%s)", rec.Code, rec.Body.String())
		}
		var grant support.SupportAccessGrant
		decodeBody(t, rec, &grant)
		if grant.GrantedBy == nil || *grant.GrantedBy != 1 {
			t.Errorf("GrantedBy = %v, want 1", grant.GrantedBy)
		}
		grantID = grant.ID
	})

	t.Run("duration over the cap is rejected", func(t *testing.T) {
		body := createGrantRequest{TenantID: "tenant-1", GrantedTo: 7, Reason: "Ticket #9", AccessLevel: "full", DurationMinutes: 60 * 72}
		rec := doRequest(t, s, "POST", "/api/v1/support-grants", 1, body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("Status = %d, want 400 (%s)", rec.Code, rec.Body.String())
		}
	})

	t.Run("grant holder can enter the tenant", func(t *testing.T) {
		rec := doRequest(t, s, "GET", "/api/v1/tenants/tenant-1/context", 7, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("Status = %d, want 200 (%s)", rec.Code, rec.Body.String())
		}
	})

	t.Run("revoke twice succeeds quietly", func(t *testing.T) {
		path := "/api/v1/support-grants/" + strconv.FormatInt(grantID, 10)
		rec := doRequest(t, s, "DELETE", path, 1, nil)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("Status = %d, want 204 (%s)", rec.Code, rec.Body.String())
		}
		rec = doRequest(t, s, "DELETE", path, 1, nil)
		if rec.Code != http.StatusNoContent {
			t.Errorf("Second revoke status = %d, want 204", rec.Code)
		}
	})

	t.Run("revoked grant no longer opens the tenant", func(t *testing.T) {
		rec := doRequest(t, s, "GET", "/api/v1/tenants/tenant-1/context", 7, nil)
		if rec.Code != http.StatusForbidden {
			t.Errorf("Status = %d, want 403 (%s)", rec.Code, rec.Body.String())
		}
	})
}

func TestTenantContextEndpoint(t *testing.T) {
	s := newTestServer(t)

	t.Run("member sees their tenant frame", func(t *testing.T) {
		rec := doRequest(t, s, "GET", "/api/v1/tenants/tenant-1/context", 2, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("Status = %d, want 200 (%s)", rec.Code, rec.Body.String())
		}
		var resp struct {
			TenantID string `json:"tenant_id"`
			Depth    int    `json:"depth"`
		}
		decodeBody(t, rec, &resp)
		if resp.TenantID != "tenant-1" || resp.Depth != 1 {
			t.Errorf("Frame = %+v, want tenant-1 at depth 1", resp)
		}
	})

	t.Run("outsider is denied", func(t *testing.T) {
		rec := doRequest(t, s, "GET", "/api/v1/tenants/tenant-1/context", 9, nil)
		if rec.Code != http.StatusForbidden {
			t.Errorf("Status = %d, want 403", rec.Code)
		}
	})

	t.Run("unknown tenant is 404", func(t *testing.T) {
		rec := doRequest(t, s, "GET", "/api/v1/tenants/tenant-missing/context", 1, nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("Status = %d, want 404 (%s)", rec.Code, rec.Body.String())
		}
	})
}

