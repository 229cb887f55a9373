// Package api exposes the authorization engine over HTTP: the role
// catalog, the assignment ledger, support access grants, and a
// tenant-scoped surface that establishes a tenant context per request.
package api
