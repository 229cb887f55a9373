// Package tenancy manages request-local tenant context and tenant
// isolation.
//
// A request enters a tenant through Manager.Enter, which validates the
// tenant's lifecycle status, pushes a frame onto a stack carried on the
// context.Context, and points the storage session filter at the tenant.
// Nested enters stack; Exit pops and restores the parent tenant's filter,
// clearing it when the stack empties. RunInTenant wraps the pair with a
// deferred exit so the filter is released on error and panic paths.
//
// The stack lives only on the context. Nothing in this package holds
// process-global tenant state, so concurrent requests cannot observe each
// other's tenant.
package tenancy
