// Package support implements time-boxed support access grants.
//
// A grant lets a named support user act inside a specific tenant for at
// most 48 hours, with an access level, a recorded reason, and an approver.
// Grants are never hard-deleted; revocation stamps the row and expiry is
// computed at read time, so the complete history remains available to
// auditors.
//
// CanAccessTenant is the single gate for cross-tenant access: platform
// super admins, users with an active role assignment in the tenant, and
// holders of an active support grant pass; everyone else is denied.
package support
