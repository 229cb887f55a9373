package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"github.com/caregrid/caregrid/pkg/identity"
	"github.com/caregrid/caregrid/pkg/rbac"
	"github.com/caregrid/caregrid/pkg/support"
	"github.com/caregrid/caregrid/pkg/tenancy"
)

const testSecret = "test-secret-at-least-32-bytes-long!"

func strPtr(s string) *string { return &s }

func newVerifier() *identity.TokenVerifier {
	return identity.NewTokenVerifier(testSecret, "caregrid")
}

func bearerFor(t *testing.T, userID int64) string {
	t.Helper()
	token, err := newVerifier().Issue(&identity.Actor{UserID: userID}, time.Hour)
	if err != nil {
		t.Fatalf("Failed to issue token: %v", err)
	}
	return "Bearer " + token
}

func TestAuthMiddleware(t *testing.T) {
	var gotActor *identity.Actor
	handler := NewAuthMiddleware(newVerifier(), false).Handler(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotActor, _ = identity.ActorFromContext(r.Context())
		}))

	t.Run("valid token", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/roles", nil)
		req.Header.Set("Authorization", bearerFor(t, 42))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("Status = %d, want 200", rec.Code)
		}
		if gotActor == nil || gotActor.UserID != 42 {
			t.Errorf("Actor = %v, want user 42", gotActor)
		}
	})

	t.Run("missing header", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("GET", "/roles", nil))
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("Status = %d, want 401", rec.Code)
		}
	})

	t.Run("malformed header", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/roles", nil)
		req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("Status = %d, want 401", rec.Code)
		}
	})

	t.Run("bad token", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/roles", nil)
		req.Header.Set("Authorization", "Bearer not.a.token")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("Status = %d, want 401", rec.Code)
		}
	})

	t.Run("optional mode passes anonymous", func(t *testing.T) {
		optional := NewAuthMiddleware(newVerifier(), true).Handler(
			http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		rec := httptest.NewRecorder()
		optional.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
		if rec.Code != http.StatusOK {
			t.Errorf("Status = %d, want 200", rec.Code)
		}
	})
}

func buildTenantFixture(t *testing.T) (*tenancy.Manager, *support.Manager, *rbac.Resolver) {
	t.Helper()
	ctx := context.Background()

	tenants := tenancy.NewMemoryStore()
	for _, tn := range []tenancy.Tenant{
		{ID: "tenant-1", Name: "Clinic One", Slug: "clinic-one", Status: tenancy.StatusActive},
		{ID: "tenant-susp", Name: "Clinic Susp", Slug: "clinic-susp", Status: tenancy.StatusSuspended},
	} {
		tn := tn
		if err := tenants.CreateTenant(ctx, &tn); err != nil {
			t.Fatalf("Failed to seed tenant: %v", err)
		}
	}

	roles := rbac.NewMemoryStore()
	for _, role := range rbac.DefaultRoles() {
		role := role
		if err := roles.CreateRole(ctx, &role); err != nil {
			t.Fatalf("Failed to seed role: %v", err)
		}
	}

	ledger := rbac.NewLedger(roles, roles, nil, nil, nil)
	// User 42 is a provider in tenant-1; user 7 has nothing.
	if _, err := ledger.Assign(ctx, rbac.AssignInput{
		UserID:    42,
		RoleName:  rbac.RoleProvider,
		ScopeType: rbac.ScopeTenant,
		ScopeID:   strPtr("tenant-1"),
	}); err != nil {
		t.Fatalf("Failed to assign role: %v", err)
	}

	resolver := rbac.NewResolver(roles, roles, nil, nil)
	tenantMgr := tenancy.NewManager(tenants, nil, nil, nil, nil, tenancy.ManagerOptions{})
	supportMgr := support.NewManager(support.NewMemoryStore(), resolver, roles, nil, nil, nil, 0)
	return tenantMgr, supportMgr, resolver
}

func tenantRouter(t *testing.T, tenantMgr *tenancy.Manager, supportMgr *support.Manager, inner http.HandlerFunc) *mux.Router {
	t.Helper()
	router := mux.NewRouter()
	tm := NewTenantMiddleware(tenantMgr, supportMgr, nil)
	auth := NewAuthMiddleware(newVerifier(), false)
	router.Handle("/tenants/{tenant_id}/ping", auth.Handler(tm.Handler(inner))).Methods("GET")
	return router
}

func TestTenantMiddleware(t *testing.T) {
	tenantMgr, supportMgr, _ := buildTenantFixture(t)

	var sawTenant string
	router := tenantRouter(t, tenantMgr, supportMgr, func(w http.ResponseWriter, r *http.Request) {
		sawTenant, _ = tenancy.CurrentTenantID(r.Context())
	})

	t.Run("member enters their tenant", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/tenants/tenant-1/ping", nil)
		req.Header.Set("Authorization", bearerFor(t, 42))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("Status = %d, want 200 (%s)", rec.Code, rec.Body.String())
		}
		if sawTenant != "tenant-1" {
			t.Errorf("Handler ran with tenant %q, want tenant-1", sawTenant)
		}
	})

	t.Run("outsider is denied", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/tenants/tenant-1/ping", nil)
		req.Header.Set("Authorization", bearerFor(t, 7))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusForbidden {
			t.Errorf("Status = %d, want 403", rec.Code)
		}
	})

	t.Run("suspended tenant rejects even members", func(t *testing.T) {
		// Give user 42 a support grant into the suspended tenant; entry
		// must still fail on tenant status.
		_, err := supportMgr.Grant(context.Background(), support.GrantInput{
			TenantID:    "tenant-susp",
			GrantedTo:   42,
			Reason:      "Ticket #1",
			AccessLevel: support.AccessLevelFull,
			Duration:    time.Hour,
		})
		if err != nil {
			t.Fatalf("Grant failed: %v", err)
		}

		req := httptest.NewRequest("GET", "/tenants/tenant-susp/ping", nil)
		req.Header.Set("Authorization", bearerFor(t, 42))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusForbidden {
			t.Errorf("Status = %d, want 403", rec.Code)
		}
	})
}

func TestPermissionMiddleware(t *testing.T) {
	tenantMgr, supportMgr, resolver := buildTenantFixture(t)

	pm := NewPermissionMiddleware(resolver, nil)
	inner := pm.Require(rbac.PermissionClinicalAccess)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
	router := tenantRouter(t, tenantMgr, supportMgr, inner.ServeHTTP)

	t.Run("provider has clinical access", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/tenants/tenant-1/ping", nil)
		req.Header.Set("Authorization", bearerFor(t, 42))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("Status = %d, want 200 (%s)", rec.Code, rec.Body.String())
		}
	})

	t.Run("denial is generic", func(t *testing.T) {
		pmDeny := pm.Require(rbac.PermissionManagePlatform)(
			http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		denyRouter := tenantRouter(t, tenantMgr, supportMgr, pmDeny.ServeHTTP)

		req := httptest.NewRequest("GET", "/tenants/tenant-1/ping", nil)
		req.Header.Set("Authorization", bearerFor(t, 42))
		rec := httptest.NewRecorder()
		denyRouter.ServeHTTP(rec, req)

		if rec.Code != http.StatusForbidden {
			t.Errorf("Status = %d, want 403", rec.Code)
		}
		if body := rec.Body.String(); !strings.Contains(body, "not authorized") || strings.Contains(body, "manage_platform") {
			t.Errorf("Denial must be generic, got %s", body)
		}
	})
}
