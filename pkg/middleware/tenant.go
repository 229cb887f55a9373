package middleware

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/caregrid/caregrid/pkg/audit"
	"github.com/caregrid/caregrid/pkg/httputil"
	"github.com/caregrid/caregrid/pkg/identity"
	"github.com/caregrid/caregrid/pkg/support"
	"github.com/caregrid/caregrid/pkg/tenancy"
)

// TenantMiddleware gates routes that carry a {tenant_id} path variable: the
// actor must pass the cross-tenant access check, and the request runs inside
// an entered tenant context that is exited when the handler returns.
type TenantMiddleware struct {
	manager  *tenancy.Manager
	gate     *support.Manager
	auditLog audit.Logger
}

// NewTenantMiddleware creates tenant-scoping middleware. auditLog may be
// nil.
func NewTenantMiddleware(manager *tenancy.Manager, gate *support.Manager, auditLog audit.Logger) *TenantMiddleware {
	return &TenantMiddleware{manager: manager, gate: gate, auditLog: auditLog}
}

// Handler wraps an HTTP handler with tenant entry
func (m *TenantMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := mux.Vars(r)["tenant_id"]
		if !ok || tenantID == "" {
			next.ServeHTTP(w, r)
			return
		}

		actor, err := identity.RequireActor(r.Context())
		if err != nil {
			httputil.WriteDomainError(w, err)
			return
		}

		allowed, err := m.gate.CanAccessTenant(r.Context(), actor.UserID, tenantID)
		if err != nil {
			httputil.WriteDomainError(w, err)
			return
		}
		if !allowed {
			m.emitDenied(r, actor.UserID, tenantID)
			httputil.WriteAccessDenied(w)
			return
		}

		err = m.manager.RunInTenant(r.Context(), tenantID, func(ctx context.Context) error {
			next.ServeHTTP(w, r.WithContext(ctx))
			return nil
		})
		if err != nil {
			httputil.WriteDomainError(w, err)
		}
	})
}

func (m *TenantMiddleware) emitDenied(r *http.Request, userID int64, tenantID string) {
	event := audit.NewEvent(r.Context(), audit.EventTypeAccessDenied, audit.EventStatusDenied)
	event.ActorID = &userID
	event.TenantID = tenantID
	event.ResourceType = audit.ResourceTypeTenant
	event.ResourceID = tenantID
	audit.Emit(r.Context(), m.auditLog, event)
}
