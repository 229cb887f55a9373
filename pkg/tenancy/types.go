package tenancy

import "time"

// TenantStatus is the lifecycle state of a tenant
type TenantStatus string

const (
	// StatusPendingSetup marks a tenant that is provisioned but not yet
	// fully onboarded. Entry is allowed but logged.
	StatusPendingSetup TenantStatus = "pending_setup"
	// StatusActive marks a fully operational tenant
	StatusActive TenantStatus = "active"
	// StatusSuspended marks a tenant blocked for administrative reasons.
	// Entry always fails regardless of policy.
	StatusSuspended TenantStatus = "suspended"
	// StatusDeactivated marks a tenant that has been shut down
	StatusDeactivated TenantStatus = "deactivated"
)

// Valid reports whether the status is one of the known lifecycle states
func (s TenantStatus) Valid() bool {
	switch s {
	case StatusPendingSetup, StatusActive, StatusSuspended, StatusDeactivated:
		return true
	}
	return false
}

// Tenant represents a customer organization (clinic, practice, hospital)
type Tenant struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Slug      string       `json:"slug"`
	RegionID  *string      `json:"region_id,omitempty"`
	Status    TenantStatus `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// IsActive reports whether the tenant can serve requests. pending_setup is
// conditionally enterable; only active is unconditionally so.
func (t *Tenant) IsActive() bool {
	return t.Status == StatusActive
}

// TenantContext is one frame of the request-local tenant stack
type TenantContext struct {
	TenantID  string
	Tenant    *Tenant
	EnteredAt time.Time
	Parent    *TenantContext
}

// Depth returns the number of frames at and below this one
func (tc *TenantContext) Depth() int {
	depth := 0
	for frame := tc; frame != nil; frame = frame.Parent {
		depth++
	}
	return depth
}
