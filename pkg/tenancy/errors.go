package tenancy

import "errors"

var (
	// ErrTenantNotFound is returned when the tenant ID does not exist
	ErrTenantNotFound = errors.New("tenant not found")

	// ErrTenantInactive is returned when entering a deactivated tenant, or
	// a pending_setup tenant when policy forbids it
	ErrTenantInactive = errors.New("tenant is not active")

	// ErrTenantSuspended is returned when entering a suspended tenant.
	// Suspension is never overridable by policy.
	ErrTenantSuspended = errors.New("tenant is suspended")

	// ErrNoTenantContext is returned by RequireCurrent and Exit when the
	// context carries no tenant frame
	ErrNoTenantContext = errors.New("no tenant context set")

	// ErrContextTooDeep is returned when nesting exceeds the configured
	// maximum stack depth
	ErrContextTooDeep = errors.New("tenant context stack too deep")
)
