package api

import (
	"net/http"

	"github.com/caregrid/caregrid/pkg/httputil"
	"github.com/caregrid/caregrid/pkg/observability"
	"github.com/caregrid/caregrid/pkg/rbac"
)

type createRoleRequest struct {
	Name        string   `json:"name"`
	DisplayName string   `json:"display_name"`
	Description string   `json:"description"`
	Scope       string   `json:"scope"`
	Permissions []string `json:"permissions"`
}

func (s *Server) createRole(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Name == "" {
		httputil.WriteBadRequest(w, "name is required")
		return
	}

	scope, err := rbac.ParseScope(req.Scope)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	perms := make([]rbac.Permission, 0, len(req.Permissions))
	for _, p := range req.Permissions {
		perms = append(perms, rbac.Permission(p))
	}

	role := &rbac.Role{
		Name:        req.Name,
		DisplayName: req.DisplayName,
		Description: req.Description,
		Scope:       scope,
		Permissions: perms,
	}
	if err := s.roles.CreateRole(r.Context(), role); err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	observability.FromContext(r.Context()).
		WithField("role", role.Name).
		Info("Role created")
	httputil.WriteCreated(w, role)
}

func (s *Server) listRoles(w http.ResponseWriter, r *http.Request) {
	var scope *rbac.Scope
	if raw := httputil.ParseQueryString(r, "scope", ""); raw != "" {
		parsed, err := rbac.ParseScope(raw)
		if err != nil {
			httputil.WriteDomainError(w, err)
			return
		}
		scope = &parsed
	}

	roles, err := s.roles.ListRoles(r.Context(), scope)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"roles": roles})
}

func (s *Server) getRole(w http.ResponseWriter, r *http.Request) {
	name, ok := httputil.ParsePathStringOrError(w, r, "name")
	if !ok {
		return
	}
	role, err := s.roles.GetRoleByName(r.Context(), name)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteSuccess(w, role)
}

func (s *Server) deleteRole(w http.ResponseWriter, r *http.Request) {
	roleID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	if err := s.roles.DeleteRole(r.Context(), roleID); err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}
