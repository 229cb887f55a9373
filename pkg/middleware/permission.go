package middleware

import (
	"net/http"

	"github.com/caregrid/caregrid/pkg/audit"
	"github.com/caregrid/caregrid/pkg/httputil"
	"github.com/caregrid/caregrid/pkg/identity"
	"github.com/caregrid/caregrid/pkg/rbac"
	"github.com/caregrid/caregrid/pkg/tenancy"
)

// PermissionMiddleware enforces individual permissions via the resolver
type PermissionMiddleware struct {
	resolver *rbac.Resolver
	auditLog audit.Logger
}

// NewPermissionMiddleware creates permission-check middleware. auditLog may
// be nil.
func NewPermissionMiddleware(resolver *rbac.Resolver, auditLog audit.Logger) *PermissionMiddleware {
	return &PermissionMiddleware{resolver: resolver, auditLog: auditLog}
}

// Require returns middleware rejecting requests whose actor lacks the
// permission. When the request runs inside a tenant context, the check is
// scoped to that tenant; otherwise it spans all of the actor's assignments.
// Denials render the same generic response regardless of which permission
// was missing.
func (m *PermissionMiddleware) Require(perm rbac.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, err := identity.RequireActor(r.Context())
			if err != nil {
				httputil.WriteDomainError(w, err)
				return
			}

			var scope *rbac.Scope
			var scopeID *string
			if frame, ok := tenancy.Current(r.Context()); ok {
				s := rbac.ScopeTenant
				scope = &s
				scopeID = &frame.TenantID
			}

			allowed, err := m.resolver.HasPermission(r.Context(), actor.UserID, perm, scope, scopeID)
			if err != nil {
				httputil.WriteDomainError(w, err)
				return
			}
			if !allowed {
				m.emitDenied(r, actor.UserID, perm)
				httputil.WriteAccessDenied(w)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (m *PermissionMiddleware) emitDenied(r *http.Request, userID int64, perm rbac.Permission) {
	event := audit.NewEvent(r.Context(), audit.EventTypeAccessDenied, audit.EventStatusDenied)
	event.ActorID = &userID
	event.Metadata["permission"] = string(perm)
	if tenantID, ok := tenancy.CurrentTenantID(r.Context()); ok {
		event.TenantID = tenantID
	}
	audit.Emit(r.Context(), m.auditLog, event)
}
