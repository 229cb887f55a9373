package middleware

import (
	"database/sql"
	"net/http"

	"github.com/caregrid/caregrid/pkg/httputil"
	"github.com/caregrid/caregrid/pkg/observability"
	"github.com/caregrid/caregrid/pkg/storage/postgres"
)

// SessionMiddleware pins a database connection for the request so tenant
// filters set via set_config and the request's queries share a backend.
type SessionMiddleware struct {
	db     *sql.DB
	logger *observability.Logger
}

// NewSessionMiddleware creates middleware that pins one connection per request
func NewSessionMiddleware(db *sql.DB, logger *observability.Logger) *SessionMiddleware {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &SessionMiddleware{db: db, logger: logger}
}

// Handler wraps next so it runs with a pinned session on the context. The
// session is cleared and released when the request finishes.
func (m *SessionMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, err := postgres.NewTenantSession(r.Context(), m.db)
		if err != nil {
			m.logger.WithError(err).Error("Failed to pin database session")
			httputil.WriteServiceUnavailable(w, "service unavailable")
			return
		}
		defer func() {
			if err := session.Close(r.Context()); err != nil {
				m.logger.WithError(err).Warn("Failed to release database session")
			}
		}()

		next.ServeHTTP(w, r.WithContext(postgres.WithSession(r.Context(), session)))
	})
}
