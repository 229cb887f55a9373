// Package rbac implements the permission catalog, role store, role
// assignment ledger, and permission resolver.
//
// Permissions form a closed catalog of string constants plus the reserved
// wildcard "*", held only by super_admin. Roles are scope-tagged (platform,
// regional, or tenant) and carry a permission set stored as JSONB.
// Assignments bind a user to a role at a concrete scope; the (user, role,
// scope_type, scope_id) key is unique, and re-assigning merges expiry and
// primary flags into the existing row. Expired assignments are inert: every
// read path excludes them, and the sweeper garbage-collects them later.
//
// Resolution unions the permission sets of a user's active assignments at
// the requested scope. A wildcard role short-circuits the union. Resolved
// sets can be cached in-process (expirable LRU) or in Redis; both backends
// are invalidated synchronously on every ledger write.
package rbac
