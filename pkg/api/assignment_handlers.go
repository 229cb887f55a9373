package api

import (
	"net/http"
	"time"

	"github.com/caregrid/caregrid/pkg/httputil"
	"github.com/caregrid/caregrid/pkg/identity"
	"github.com/caregrid/caregrid/pkg/rbac"
)

type assignRequest struct {
	UserID    int64      `json:"user_id"`
	RoleName  string     `json:"role_name"`
	ScopeType string     `json:"scope_type"`
	ScopeID   *string    `json:"scope_id,omitempty"`
	IsPrimary bool       `json:"is_primary"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func (s *Server) createAssignment(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.UserID == 0 || req.RoleName == "" {
		httputil.WriteBadRequest(w, "user_id and role_name are required")
		return
	}

	scope, err := rbac.ParseScope(req.ScopeType)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	input := rbac.AssignInput{
		UserID:    req.UserID,
		RoleName:  req.RoleName,
		ScopeType: scope,
		ScopeID:   req.ScopeID,
		IsPrimary: req.IsPrimary,
		ExpiresAt: req.ExpiresAt,
	}
	if actor, ok := identity.ActorFromContext(r.Context()); ok {
		input.GrantedBy = &actor.UserID
	}

	assignment, err := s.ledger.Assign(r.Context(), input)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteCreated(w, assignment)
}

type revokeAssignmentRequest struct {
	UserID    int64   `json:"user_id"`
	RoleName  string  `json:"role_name"`
	ScopeType string  `json:"scope_type"`
	ScopeID   *string `json:"scope_id,omitempty"`
}

func (s *Server) revokeAssignment(w http.ResponseWriter, r *http.Request) {
	var req revokeAssignmentRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.UserID == 0 || req.RoleName == "" {
		httputil.WriteBadRequest(w, "user_id and role_name are required")
		return
	}

	scope, err := rbac.ParseScope(req.ScopeType)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	var revokedBy *int64
	if actor, ok := identity.ActorFromContext(r.Context()); ok {
		revokedBy = &actor.UserID
	}

	removed, err := s.ledger.Revoke(r.Context(), req.UserID, req.RoleName, scope, req.ScopeID, revokedBy)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"removed": removed})
}

func (s *Server) listAssignments(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathInt64OrError(w, r, "user_id")
	if !ok {
		return
	}

	scope, scopeID, err := scopeFilterFromQuery(r)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	assignments, err := s.ledger.ListActive(r.Context(), userID, scope, scopeID)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"assignments": assignments})
}

func (s *Server) resolveUserPermissions(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathInt64OrError(w, r, "user_id")
	if !ok {
		return
	}

	scope, scopeID, err := scopeFilterFromQuery(r)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	perms, err := s.resolver.ResolvePermissions(r.Context(), userID, scope, scopeID)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{
		"permissions": perms.List(),
		"wildcard":    perms.Has(rbac.PermissionAll),
	})
}

func scopeFilterFromQuery(r *http.Request) (*rbac.Scope, *string, error) {
	var scope *rbac.Scope
	if raw := httputil.ParseQueryString(r, "scope", ""); raw != "" {
		parsed, err := rbac.ParseScope(raw)
		if err != nil {
			return nil, nil, err
		}
		scope = &parsed
	}
	var scopeID *string
	if raw := httputil.ParseQueryString(r, "scope_id", ""); raw != "" {
		scopeID = &raw
	}
	return scope, scopeID, nil
}
