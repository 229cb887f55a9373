// Package middleware provides the request authorization chain: bearer token
// verification into an actor, tenant entry gated by the cross-tenant access
// check, and per-route permission enforcement.
package middleware
