package rbac

import (
	"database/sql"
	"os"
	"testing"

	_ "github.com/lib/pq"
)

// SkipIfNoDatabase skips the test unless CAREGRID_TEST_POSTGRES_URL is set.
// CI exports the variable; local runs without a database skip cleanly.
func SkipIfNoDatabase(t *testing.T) string {
	t.Helper()

	dbURL := os.Getenv("CAREGRID_TEST_POSTGRES_URL")
	if dbURL == "" {
		t.Skip("Skipping test: CAREGRID_TEST_POSTGRES_URL not set (database not available)")
	}

	return dbURL
}

// SkipIfNoDatabaseOrShort additionally skips in -short mode.
func SkipIfNoDatabaseOrShort(t *testing.T) string {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping database test in short mode")
	}

	return SkipIfNoDatabase(t)
}

// RequireDatabase opens and pings the test database, skipping the test if
// it is not configured or not reachable.
func RequireDatabase(t *testing.T) *sql.DB {
	t.Helper()

	dbURL := SkipIfNoDatabase(t)

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		t.Skipf("Failed to connect to database: %v", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		t.Skipf("Database not reachable: %v", err)
	}

	return db
}
