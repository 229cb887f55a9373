package tenancy

import "context"

// SessionFilter is the boundary to the storage session that scopes queries
// to a tenant. Enter issues SetTenantFilter; Exit re-issues the parent's
// filter or clears it when the stack empties.
//
// The Postgres implementation sets app.current_tenant_id on a pinned
// connection so row-level security policies see it. Application queries
// still filter by tenant_id explicitly; the session filter is the second
// layer, not the only one.
type SessionFilter interface {
	SetTenantFilter(ctx context.Context, tenantID string) error
	ClearTenantFilter(ctx context.Context) error
}

// NoopFilter satisfies SessionFilter without touching any storage. Used in
// tests and in deployments that rely on application-level filtering alone.
type NoopFilter struct{}

func (NoopFilter) SetTenantFilter(ctx context.Context, tenantID string) error { return nil }

func (NoopFilter) ClearTenantFilter(ctx context.Context) error { return nil }
