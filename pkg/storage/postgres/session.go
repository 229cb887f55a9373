package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
)

// TenantSession pins a single connection from the pool and scopes it to a
// tenant via the app.current_tenant_id setting, which the row-level
// security policies consume. One session serves one request; the pinned
// connection guarantees the setting and the queries share a backend.
type TenantSession struct {
	mu   sync.Mutex
	conn *sql.Conn
}

// NewTenantSession pins a connection from the primary pool
func NewTenantSession(ctx context.Context, db *sql.DB) (*TenantSession, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to pin connection: %w", err)
	}
	return &TenantSession{conn: conn}, nil
}

// SetTenantFilter points the session at the tenant. The third argument to
// set_config keeps the setting for the life of the session rather than a
// single transaction.
func (s *TenantSession) SetTenantFilter(ctx context.Context, tenantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.conn.ExecContext(ctx,
		`SELECT set_config('app.current_tenant_id', $1, false)`, tenantID)
	if err != nil {
		return fmt.Errorf("failed to set tenant filter: %w", err)
	}
	return nil
}

// ClearTenantFilter removes the tenant scoping from the session
func (s *TenantSession) ClearTenantFilter(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.conn.ExecContext(ctx,
		`SELECT set_config('app.current_tenant_id', '', false)`)
	if err != nil {
		return fmt.Errorf("failed to clear tenant filter: %w", err)
	}
	return nil
}

// Conn exposes the pinned connection for queries that must run under the
// session's tenant filter
func (s *TenantSession) Conn() *sql.Conn {
	return s.conn
}

// Close clears the filter and returns the connection to the pool
func (s *TenantSession) Close(ctx context.Context) error {
	if err := s.ClearTenantFilter(ctx); err != nil {
		s.conn.Close()
		return err
	}
	return s.conn.Close()
}

type sessionCtxKey struct{}

// WithSession stores a pinned session on the context for the rest of the
// request
func WithSession(ctx context.Context, session *TenantSession) context.Context {
	return context.WithValue(ctx, sessionCtxKey{}, session)
}

// SessionFromContext returns the request's pinned session, if one exists
func SessionFromContext(ctx context.Context) (*TenantSession, bool) {
	session, ok := ctx.Value(sessionCtxKey{}).(*TenantSession)
	return session, ok
}

// ContextFilter applies tenant filters to whatever session the request
// carries. Requests without a pinned session pass through unfiltered,
// which is only safe for paths that never touch tenant-scoped tables.
type ContextFilter struct{}

// NewContextFilter creates a filter that resolves sessions from context
func NewContextFilter() *ContextFilter {
	return &ContextFilter{}
}

func (f *ContextFilter) SetTenantFilter(ctx context.Context, tenantID string) error {
	if session, ok := SessionFromContext(ctx); ok {
		return session.SetTenantFilter(ctx, tenantID)
	}
	return nil
}

func (f *ContextFilter) ClearTenantFilter(ctx context.Context) error {
	if session, ok := SessionFromContext(ctx); ok {
		return session.ClearTenantFilter(ctx)
	}
	return nil
}
