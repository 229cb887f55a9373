package rbac

import (
	"fmt"
	"time"
)

// Permission is an opaque permission identifier. The reserved wildcard
// PermissionAll grants every permission and is held only by super_admin.
type Permission string

const (
	// PermissionAll is the reserved wildcard meaning "all permissions"
	PermissionAll Permission = "*"

	PermissionManagePlatform     Permission = "manage_platform"
	PermissionManageTenants      Permission = "manage_tenants"
	PermissionManageRegions      Permission = "manage_regions"
	PermissionManageUsers        Permission = "manage_users"
	PermissionManageRoles        Permission = "manage_roles"
	PermissionViewAuditLogs      Permission = "view_audit_logs"
	PermissionClinicalAccess     Permission = "clinical_access"
	PermissionViewSchedule       Permission = "view_schedule"
	PermissionManageAppointments Permission = "manage_appointments"
	PermissionBillingAccess      Permission = "billing_access"
	PermissionViewReports        Permission = "view_reports"
	PermissionSupportAccess      Permission = "support_access"
	PermissionManageSettings     Permission = "manage_settings"
)

// IsWildcard reports whether the permission is the reserved wildcard
func (p Permission) IsWildcard() bool {
	return p == PermissionAll
}

// PermissionSet is a set of permissions with wildcard-aware membership
type PermissionSet map[Permission]struct{}

// NewPermissionSet builds a set from a list of permissions
func NewPermissionSet(perms ...Permission) PermissionSet {
	set := make(PermissionSet, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return set
}

// Has reports whether the set grants the permission. A set containing
// the wildcard grants everything.
func (s PermissionSet) Has(p Permission) bool {
	if _, ok := s[PermissionAll]; ok {
		return true
	}
	_, ok := s[p]
	return ok
}

// HasWildcard reports whether the set contains the wildcard
func (s PermissionSet) HasWildcard() bool {
	_, ok := s[PermissionAll]
	return ok
}

// Add inserts permissions into the set
func (s PermissionSet) Add(perms ...Permission) {
	for _, p := range perms {
		s[p] = struct{}{}
	}
}

// List returns the set as a slice
func (s PermissionSet) List() []Permission {
	perms := make([]Permission, 0, len(s))
	for p := range s {
		perms = append(perms, p)
	}
	return perms
}

// Scope represents the breadth at which a role applies
type Scope string

const (
	// ScopePlatform applies system-wide
	ScopePlatform Scope = "platform"
	// ScopeRegional applies within a single region
	ScopeRegional Scope = "regional"
	// ScopeTenant applies within a single tenant organization
	ScopeTenant Scope = "tenant"
)

// Valid reports whether the scope is a known value
func (s Scope) Valid() bool {
	switch s {
	case ScopePlatform, ScopeRegional, ScopeTenant:
		return true
	}
	return false
}

// RequiresScopeID reports whether assignments at this scope carry a scope ID.
// Platform assignments are global and carry none.
func (s Scope) RequiresScopeID() bool {
	return s != ScopePlatform
}

func (s Scope) String() string {
	return string(s)
}

// ParseScope parses a scope string
func ParseScope(value string) (Scope, error) {
	s := Scope(value)
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidScope, value)
	}
	return s, nil
}

// Role is a named, scope-tagged bundle of permissions. System roles are
// seeded at startup and must not be deleted through normal mutation paths.
type Role struct {
	ID          int64        `json:"id"`
	Name        string       `json:"name"`
	DisplayName string       `json:"display_name"`
	Description string       `json:"description"`
	Scope       Scope        `json:"scope"`
	Permissions []Permission `json:"permissions"`
	IsSystem    bool         `json:"is_system"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// PermissionSet returns the role's permissions as a set
func (r *Role) PermissionSet() PermissionSet {
	return NewPermissionSet(r.Permissions...)
}

// HasWildcard reports whether the role carries the wildcard permission
func (r *Role) HasWildcard() bool {
	for _, p := range r.Permissions {
		if p.IsWildcard() {
			return true
		}
	}
	return false
}

// System role names
const (
	RoleSuperAdmin      = "super_admin"
	RolePlatformSupport = "platform_support"
	RoleRegionalAdmin   = "regional_admin"
	RoleTenantAdmin     = "tenant_admin"
	RoleProvider        = "provider"
	RoleFrontDesk       = "front_desk"
	RoleBiller          = "biller"
	RoleSupportAgent    = "support_agent"
)

// RoleAssignment records a role granted to a user at a specific scope.
// ScopeID is nil exactly when ScopeType is platform. An assignment with
// ExpiresAt in the past is inert: excluded from every permission
// computation without requiring deletion.
type RoleAssignment struct {
	ID        int64      `json:"id"`
	UserID    int64      `json:"user_id"`
	RoleID    int64      `json:"role_id"`
	ScopeType Scope      `json:"scope_type"`
	ScopeID   *string    `json:"scope_id,omitempty"`
	IsPrimary bool       `json:"is_primary"`
	GrantedBy *int64     `json:"granted_by,omitempty"`
	GrantedAt time.Time  `json:"granted_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the assignment is inert as of now
func (a *RoleAssignment) Expired(now time.Time) bool {
	return a.ExpiresAt != nil && !a.ExpiresAt.After(now)
}

// DefaultRoles returns the fixed system role set
func DefaultRoles() []Role {
	return []Role{
		{
			Name:        RoleSuperAdmin,
			DisplayName: "Super Administrator",
			Description: "Full platform access via the wildcard permission",
			Scope:       ScopePlatform,
			IsSystem:    true,
			Permissions: []Permission{PermissionAll},
		},
		{
			Name:        RolePlatformSupport,
			DisplayName: "Platform Support",
			Description: "Platform-wide support staff; cross-tenant access requires a support grant",
			Scope:       ScopePlatform,
			IsSystem:    true,
			Permissions: []Permission{
				PermissionSupportAccess,
				PermissionViewAuditLogs,
				PermissionViewReports,
			},
		},
		{
			Name:        RoleRegionalAdmin,
			DisplayName: "Regional Administrator",
			Description: "Administers tenants within one region",
			Scope:       ScopeRegional,
			IsSystem:    true,
			Permissions: []Permission{
				PermissionManageTenants,
				PermissionManageUsers,
				PermissionViewReports,
				PermissionViewAuditLogs,
			},
		},
		{
			Name:        RoleTenantAdmin,
			DisplayName: "Tenant Administrator",
			Description: "Full administration of one tenant organization",
			Scope:       ScopeTenant,
			IsSystem:    true,
			Permissions: []Permission{
				PermissionManageUsers,
				PermissionManageRoles,
				PermissionManageSettings,
				PermissionViewSchedule,
				PermissionManageAppointments,
				PermissionBillingAccess,
				PermissionViewReports,
				PermissionViewAuditLogs,
			},
		},
		{
			Name:        RoleProvider,
			DisplayName: "Provider",
			Description: "Clinical staff with access to patient records",
			Scope:       ScopeTenant,
			IsSystem:    true,
			Permissions: []Permission{
				PermissionClinicalAccess,
				PermissionViewSchedule,
				PermissionManageAppointments,
			},
		},
		{
			Name:        RoleFrontDesk,
			DisplayName: "Front Desk",
			Description: "Scheduling and check-in staff",
			Scope:       ScopeTenant,
			IsSystem:    true,
			Permissions: []Permission{
				PermissionViewSchedule,
				PermissionManageAppointments,
			},
		},
		{
			Name:        RoleBiller,
			DisplayName: "Biller",
			Description: "Billing staff",
			Scope:       ScopeTenant,
			IsSystem:    true,
			Permissions: []Permission{
				PermissionBillingAccess,
				PermissionViewReports,
			},
		},
		{
			Name:        RoleSupportAgent,
			DisplayName: "Support Agent",
			Description: "Support staff granted time-boxed access into a tenant",
			Scope:       ScopeTenant,
			IsSystem:    true,
			Permissions: []Permission{
				PermissionSupportAccess,
				PermissionViewSchedule,
				PermissionViewReports,
			},
		},
	}
}
