package api

import (
	"net/http"
	"time"

	"github.com/caregrid/caregrid/pkg/httputil"
	"github.com/caregrid/caregrid/pkg/identity"
	"github.com/caregrid/caregrid/pkg/support"
	"github.com/caregrid/caregrid/pkg/tenancy"
)

type createGrantRequest struct {
	TenantID        string `json:"tenant_id"`
	GrantedTo       int64  `json:"granted_to"`
	Reason          string `json:"reason"`
	AccessLevel     string `json:"access_level"`
	DurationMinutes int64  `json:"duration_minutes"`
}

func (s *Server) createSupportGrant(w http.ResponseWriter, r *http.Request) {
	var req createGrantRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.TenantID == "" || req.GrantedTo == 0 {
		httputil.WriteBadRequest(w, "tenant_id and granted_to are required")
		return
	}

	input := support.GrantInput{
		TenantID:    req.TenantID,
		GrantedTo:   req.GrantedTo,
		Reason:      req.Reason,
		AccessLevel: support.AccessLevel(req.AccessLevel),
		Duration:    time.Duration(req.DurationMinutes) * time.Minute,
	}
	if actor, ok := identity.ActorFromContext(r.Context()); ok {
		input.GrantedBy = &actor.UserID
	}

	grant, err := s.grants.Grant(r.Context(), input)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteCreated(w, grant)
}

func (s *Server) revokeSupportGrant(w http.ResponseWriter, r *http.Request) {
	grantID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	actor, err := identity.RequireActor(r.Context())
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	if err := s.grants.Revoke(r.Context(), grantID, actor.UserID); err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// getTenantContext reports the tenant frame the request is executing in.
// It only exists under the tenant gate, so reaching it proves entry succeeded.
func (s *Server) getTenantContext(w http.ResponseWriter, r *http.Request) {
	frame, ok := tenancy.Current(r.Context())
	if !ok {
		httputil.WriteDomainError(w, tenancy.ErrNoTenantContext)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{
		"tenant_id":  frame.TenantID,
		"status":     frame.Tenant.Status,
		"entered_at": frame.EnteredAt,
		"depth":      frame.Depth(),
	})
}
