package rbac

import "errors"

var (
	// ErrNotFound indicates a role or assignment does not exist
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a unique constraint violation (duplicate role name)
	ErrConflict = errors.New("conflict")

	// ErrInvalidScope indicates an assignment scope that does not match the
	// role's scope, or an unknown scope value
	ErrInvalidScope = errors.New("invalid scope")

	// ErrMissingScopeID indicates a regional/tenant assignment without a scope ID
	ErrMissingScopeID = errors.New("scope id required for non-platform scope")

	// ErrUnexpectedScopeID indicates a platform assignment carrying a scope ID
	ErrUnexpectedScopeID = errors.New("scope id must be empty for platform scope")

	// ErrSystemRole indicates an attempt to delete or mutate a system role
	ErrSystemRole = errors.New("system role cannot be modified")
)
