package rbac

import (
	"context"
	"time"

	"github.com/caregrid/caregrid/pkg/observability"
)

// Resolver computes a user's effective permissions from their active role
// assignments. Results are the union of all matching roles' permission sets;
// a wildcard role short-circuits the union entirely.
type Resolver struct {
	roles       RoleStore
	assignments AssignmentStore
	cache       PermissionCache
	metrics     *observability.Metrics
}

// NewResolver creates a permission resolver. cache and metrics may be nil.
func NewResolver(roles RoleStore, assignments AssignmentStore, cache PermissionCache, metrics *observability.Metrics) *Resolver {
	return &Resolver{
		roles:       roles,
		assignments: assignments,
		cache:       cache,
		metrics:     metrics,
	}
}

// ResolvePermissions returns the union of permission sets held by the user's
// active assignments at the given scope. A nil scope resolves across all
// scopes. As soon as a wildcard role is seen the set {*} is returned without
// loading further roles.
func (r *Resolver) ResolvePermissions(ctx context.Context, userID int64, scope *Scope, scopeID *string) (PermissionSet, error) {
	if r.cache != nil {
		if perms, ok := r.cache.Get(ctx, userID, scope, scopeID); ok {
			return perms, nil
		}
	}

	assignments, err := r.assignments.ListActive(ctx, userID, scope, scopeID)
	if err != nil {
		return nil, err
	}

	perms := NewPermissionSet()
	for _, assignment := range assignments {
		role, err := r.roles.GetRole(ctx, assignment.RoleID)
		if err != nil {
			return nil, err
		}
		if role.HasWildcard() {
			if r.metrics != nil {
				r.metrics.WildcardShortCircuits.Inc()
			}
			perms = NewPermissionSet(PermissionAll)
			break
		}
		perms.Add(role.Permissions...)
	}

	if r.cache != nil {
		r.cache.Set(ctx, userID, scope, scopeID, perms)
	}
	return perms, nil
}

// HasPermission reports whether the user holds the permission at the given
// scope, directly or through the wildcard.
func (r *Resolver) HasPermission(ctx context.Context, userID int64, perm Permission, scope *Scope, scopeID *string) (bool, error) {
	start := time.Now()
	perms, err := r.ResolvePermissions(ctx, userID, scope, scopeID)
	if err != nil {
		return false, err
	}
	allowed := perms.Has(perm)
	if r.metrics != nil {
		r.metrics.ObservePermissionCheck(scopeLabel(scope), allowed, time.Since(start))
	}
	return allowed, nil
}

// HasAny reports whether the user holds at least one of the permissions
func (r *Resolver) HasAny(ctx context.Context, userID int64, scope *Scope, scopeID *string, perms ...Permission) (bool, error) {
	resolved, err := r.ResolvePermissions(ctx, userID, scope, scopeID)
	if err != nil {
		return false, err
	}
	for _, p := range perms {
		if resolved.Has(p) {
			return true, nil
		}
	}
	return false, nil
}

// HasAll reports whether the user holds every one of the permissions
func (r *Resolver) HasAll(ctx context.Context, userID int64, scope *Scope, scopeID *string, perms ...Permission) (bool, error) {
	resolved, err := r.ResolvePermissions(ctx, userID, scope, scopeID)
	if err != nil {
		return false, err
	}
	for _, p := range perms {
		if !resolved.Has(p) {
			return false, nil
		}
	}
	return true, nil
}

// IsSuperAdmin reports whether the user holds a platform-scoped super_admin
// assignment. The check compares role names over active assignments rather
// than consulting the permission union.
func (r *Resolver) IsSuperAdmin(ctx context.Context, userID int64) (bool, error) {
	scope := ScopePlatform
	return r.hasRoleAt(ctx, userID, RoleSuperAdmin, &scope, nil)
}

// IsRegionalAdmin reports whether the user holds a regional_admin assignment.
// With a nil regionID, any region qualifies.
func (r *Resolver) IsRegionalAdmin(ctx context.Context, userID int64, regionID *string) (bool, error) {
	scope := ScopeRegional
	return r.hasRoleAt(ctx, userID, RoleRegionalAdmin, &scope, regionID)
}

// IsTenantAdmin reports whether the user holds a tenant_admin assignment.
// With a nil tenantID, any tenant qualifies.
func (r *Resolver) IsTenantAdmin(ctx context.Context, userID int64, tenantID *string) (bool, error) {
	scope := ScopeTenant
	return r.hasRoleAt(ctx, userID, RoleTenantAdmin, &scope, tenantID)
}

func (r *Resolver) hasRoleAt(ctx context.Context, userID int64, roleName string, scope *Scope, scopeID *string) (bool, error) {
	assignments, err := r.assignments.ListActive(ctx, userID, scope, scopeID)
	if err != nil {
		return false, err
	}
	for _, assignment := range assignments {
		role, err := r.roles.GetRole(ctx, assignment.RoleID)
		if err != nil {
			return false, err
		}
		if role.Name == roleName {
			return true, nil
		}
	}
	return false, nil
}

func scopeLabel(scope *Scope) string {
	if scope == nil {
		return "all"
	}
	return string(*scope)
}
