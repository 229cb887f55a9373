// Package contextkeys provides centralized context key definitions
//
// IMPORTANT: All context keys used across the application must be defined here.
// This prevents typos, documents dependencies, and makes key usage discoverable.
//
// USAGE PATTERN:
//   import "github.com/caregrid/caregrid/pkg/contextkeys"
//   ctx = context.WithValue(ctx, contextkeys.ActorKey, actor)
//   actor := ctx.Value(contextkeys.ActorKey).(*identity.Actor)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// ActorKey contains *identity.Actor
	// Set by: middleware.AuthMiddleware (pkg/middleware/auth.go)
	// Required by: all protected endpoints, permission middleware
	// Type: *identity.Actor
	ActorKey Key = "actor"

	// TenantStackKey contains *tenancy.TenantContext (top of the context stack)
	// Set by: tenancy.Manager.Enter (pkg/tenancy/manager.go)
	// Required by: tenant-scoped handlers, storage session filter
	// Type: *tenancy.TenantContext
	TenantStackKey Key = "tenant_context"

	// RequestIDKey contains request ID string (UUID)
	// Set by: httputil request middleware
	// Used by: logger, audit trail
	// Type: string
	RequestIDKey Key = "request_id"

	// AuditLoggerKey contains audit.Logger interface
	// Set by: audit middleware (pkg/audit/logger.go)
	// Used by: handlers that record audit events
	// Type: audit.Logger
	AuditLoggerKey Key = "audit_logger"

	// RemoteIPKey contains the client IP string extracted from the request
	// Set by: httputil request middleware
	// Used by: audit trail
	// Type: string
	RemoteIPKey Key = "remote_ip"
)

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// WithRemoteIP adds the client IP to the context
func WithRemoteIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, RemoteIPKey, ip)
}

// GetRemoteIP retrieves the client IP from context
func GetRemoteIP(ctx context.Context) string {
	if ip, ok := ctx.Value(RemoteIPKey).(string); ok {
		return ip
	}
	return ""
}
