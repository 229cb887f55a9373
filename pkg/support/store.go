package support

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"
)

// GrantStore handles support access grant persistence. There is no delete:
// revocation and expiry are the only ways a grant stops conferring access.
type GrantStore interface {
	Create(ctx context.Context, grant *SupportAccessGrant) error
	Get(ctx context.Context, grantID int64) (*SupportAccessGrant, error)
	// MarkRevoked stamps the grant, returning false when it was already
	// revoked. ErrGrantNotFound when the ID does not exist.
	MarkRevoked(ctx context.Context, grantID int64, revokedBy int64, revokedAt time.Time) (bool, error)
	ListActiveFor(ctx context.Context, userID int64, tenantID string, now time.Time) ([]SupportAccessGrant, error)
	ListExpired(ctx context.Context, before time.Time) ([]SupportAccessGrant, error)
}

// SQLStore implements GrantStore on PostgreSQL
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore creates a new SQL-backed grant store
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

const grantColumns = `id, support_user_id, tenant_id, access_level, reason, approved_by, granted_at, expires_at, revoked_at, revoked_by`

// Create inserts a new grant
func (s *SQLStore) Create(ctx context.Context, grant *SupportAccessGrant) error {
	query := `
		INSERT INTO support_access_grants (support_user_id, tenant_id, access_level, reason, approved_by, granted_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	now := time.Now()
	err := s.db.QueryRowContext(ctx, query,
		grant.GrantedTo,
		grant.TenantID,
		grant.AccessLevel,
		grant.Reason,
		grant.GrantedBy,
		now,
		grant.ExpiresAt,
	).Scan(&grant.ID)
	if err != nil {
		return fmt.Errorf("failed to create support grant: %w", err)
	}
	grant.GrantedAt = now
	return nil
}

// Get retrieves a grant by ID
func (s *SQLStore) Get(ctx context.Context, grantID int64) (*SupportAccessGrant, error) {
	query := `SELECT ` + grantColumns + ` FROM support_access_grants WHERE id = $1`

	grants, err := s.queryGrants(ctx, query, grantID)
	if err != nil {
		return nil, err
	}
	if len(grants) == 0 {
		return nil, fmt.Errorf("%w: %d", ErrGrantNotFound, grantID)
	}
	return &grants[0], nil
}

// MarkRevoked stamps the grant as revoked if it isn't already
func (s *SQLStore) MarkRevoked(ctx context.Context, grantID int64, revokedBy int64, revokedAt time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE support_access_grants
		SET revoked_at = $1, revoked_by = $2
		WHERE id = $3 AND revoked_at IS NULL
	`, revokedAt, revokedBy, grantID)
	if err != nil {
		return false, fmt.Errorf("failed to revoke support grant: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected > 0 {
		return true, nil
	}

	// Distinguish already-revoked from missing.
	if _, err := s.Get(ctx, grantID); err != nil {
		return false, err
	}
	return false, nil
}

// ListActiveFor returns unrevoked, unexpired grants binding the user to
// the tenant
func (s *SQLStore) ListActiveFor(ctx context.Context, userID int64, tenantID string, now time.Time) ([]SupportAccessGrant, error) {
	query := `
		SELECT ` + grantColumns + `
		FROM support_access_grants
		WHERE support_user_id = $1 AND tenant_id = $2
		  AND revoked_at IS NULL AND expires_at > $3
		ORDER BY granted_at DESC
	`
	return s.queryGrants(ctx, query, userID, tenantID, now)
}

// ListExpired returns unrevoked grants whose expiry passed before the cutoff
func (s *SQLStore) ListExpired(ctx context.Context, before time.Time) ([]SupportAccessGrant, error) {
	query := `
		SELECT ` + grantColumns + `
		FROM support_access_grants
		WHERE revoked_at IS NULL AND expires_at < $1
		ORDER BY expires_at ASC
	`
	return s.queryGrants(ctx, query, before)
}

func (s *SQLStore) queryGrants(ctx context.Context, query string, args ...interface{}) ([]SupportAccessGrant, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query support grants: %w", err)
	}
	defer rows.Close()

	var grants []SupportAccessGrant
	for rows.Next() {
		var g SupportAccessGrant
		var approvedBy sql.NullInt64
		var revokedAt sql.NullTime
		var revokedBy sql.NullInt64

		err := rows.Scan(
			&g.ID,
			&g.GrantedTo,
			&g.TenantID,
			&g.AccessLevel,
			&g.Reason,
			&approvedBy,
			&g.GrantedAt,
			&g.ExpiresAt,
			&revokedAt,
			&revokedBy,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan support grant: %w", err)
		}

		if approvedBy.Valid {
			ab := approvedBy.Int64
			g.GrantedBy = &ab
		}
		if revokedAt.Valid {
			ra := revokedAt.Time
			g.RevokedAt = &ra
		}
		if revokedBy.Valid {
			rb := revokedBy.Int64
			g.RevokedBy = &rb
		}

		grants = append(grants, g)
	}
	return grants, rows.Err()
}

// MemoryStore implements GrantStore in memory for tests
type MemoryStore struct {
	mu     sync.RWMutex
	grants map[int64]*SupportAccessGrant
	nextID int64
}

// NewMemoryStore creates an empty in-memory grant store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{grants: make(map[int64]*SupportAccessGrant), nextID: 1}
}

func (m *MemoryStore) Create(ctx context.Context, grant *SupportAccessGrant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	grant.ID = m.nextID
	m.nextID++
	grant.GrantedAt = time.Now()
	stored := *grant
	m.grants[grant.ID] = &stored
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, grantID int64) (*SupportAccessGrant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	grant, ok := m.grants[grantID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrGrantNotFound, grantID)
	}
	copied := *grant
	return &copied, nil
}

func (m *MemoryStore) MarkRevoked(ctx context.Context, grantID int64, revokedBy int64, revokedAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	grant, ok := m.grants[grantID]
	if !ok {
		return false, fmt.Errorf("%w: %d", ErrGrantNotFound, grantID)
	}
	if grant.RevokedAt != nil {
		return false, nil
	}
	grant.RevokedAt = &revokedAt
	grant.RevokedBy = &revokedBy
	return true, nil
}

func (m *MemoryStore) ListActiveFor(ctx context.Context, userID int64, tenantID string, now time.Time) ([]SupportAccessGrant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var grants []SupportAccessGrant
	for _, g := range m.grants {
		if g.GrantedTo == userID && g.TenantID == tenantID && g.Active(now) {
			grants = append(grants, *g)
		}
	}
	sort.Slice(grants, func(i, j int) bool { return grants[i].ID < grants[j].ID })
	return grants, nil
}

func (m *MemoryStore) ListExpired(ctx context.Context, before time.Time) ([]SupportAccessGrant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var grants []SupportAccessGrant
	for _, g := range m.grants {
		if g.RevokedAt == nil && g.ExpiresAt.Before(before) {
			grants = append(grants, *g)
		}
	}
	sort.Slice(grants, func(i, j int) bool { return grants[i].ID < grants[j].ID })
	return grants, nil
}
