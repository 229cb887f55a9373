package tenancy

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// TenantStore handles tenant persistence
type TenantStore interface {
	CreateTenant(ctx context.Context, tenant *Tenant) error
	GetTenant(ctx context.Context, tenantID string) (*Tenant, error)
	ListTenants(ctx context.Context, status *TenantStatus) ([]Tenant, error)
	UpdateStatus(ctx context.Context, tenantID string, status TenantStatus) error
}

// SQLStore implements TenantStore on PostgreSQL
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore creates a new SQL-backed tenant store
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// CreateTenant inserts a new tenant
func (s *SQLStore) CreateTenant(ctx context.Context, tenant *Tenant) error {
	if !tenant.Status.Valid() {
		return fmt.Errorf("invalid tenant status %q", tenant.Status)
	}

	query := `
		INSERT INTO tenants (id, name, slug, region_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	now := time.Now()
	_, err := s.db.ExecContext(ctx, query,
		tenant.ID, tenant.Name, tenant.Slug, tenant.RegionID, tenant.Status, now, now)
	if err != nil {
		return fmt.Errorf("failed to create tenant: %w", err)
	}
	tenant.CreatedAt = now
	tenant.UpdatedAt = now
	return nil
}

// GetTenant retrieves a tenant by ID
func (s *SQLStore) GetTenant(ctx context.Context, tenantID string) (*Tenant, error) {
	query := `
		SELECT id, name, slug, region_id, status, created_at, updated_at
		FROM tenants
		WHERE id = $1
	`
	var tenant Tenant
	var regionID sql.NullString
	err := s.db.QueryRowContext(ctx, query, tenantID).Scan(
		&tenant.ID, &tenant.Name, &tenant.Slug, &regionID,
		&tenant.Status, &tenant.CreatedAt, &tenant.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrTenantNotFound, tenantID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	if regionID.Valid {
		rid := regionID.String
		tenant.RegionID = &rid
	}
	return &tenant, nil
}

// ListTenants lists tenants, optionally filtered by status
func (s *SQLStore) ListTenants(ctx context.Context, status *TenantStatus) ([]Tenant, error) {
	query := `
		SELECT id, name, slug, region_id, status, created_at, updated_at
		FROM tenants
	`
	args := []interface{}{}
	if status != nil {
		query += ` WHERE status = $1`
		args = append(args, *status)
	}
	query += ` ORDER BY name ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []Tenant
	for rows.Next() {
		var tenant Tenant
		var regionID sql.NullString
		err := rows.Scan(&tenant.ID, &tenant.Name, &tenant.Slug, &regionID,
			&tenant.Status, &tenant.CreatedAt, &tenant.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}
		if regionID.Valid {
			rid := regionID.String
			tenant.RegionID = &rid
		}
		tenants = append(tenants, tenant)
	}
	return tenants, rows.Err()
}

// UpdateStatus transitions a tenant's lifecycle status
func (s *SQLStore) UpdateStatus(ctx context.Context, tenantID string, status TenantStatus) error {
	if !status.Valid() {
		return fmt.Errorf("invalid tenant status %q", status)
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE tenants SET status = $1, updated_at = NOW() WHERE id = $2`,
		status, tenantID)
	if err != nil {
		return fmt.Errorf("failed to update tenant status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrTenantNotFound, tenantID)
	}
	return nil
}

// MemoryStore implements TenantStore in memory for tests
type MemoryStore struct {
	mu      sync.RWMutex
	tenants map[string]*Tenant
}

// NewMemoryStore creates an empty in-memory tenant store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tenants: make(map[string]*Tenant)}
}

func (m *MemoryStore) CreateTenant(ctx context.Context, tenant *Tenant) error {
	if !tenant.Status.Valid() {
		return fmt.Errorf("invalid tenant status %q", tenant.Status)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.tenants[tenant.ID]; exists {
		return fmt.Errorf("tenant %s already exists", tenant.ID)
	}
	now := time.Now()
	tenant.CreatedAt = now
	tenant.UpdatedAt = now
	stored := *tenant
	m.tenants[tenant.ID] = &stored
	return nil
}

func (m *MemoryStore) GetTenant(ctx context.Context, tenantID string) (*Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tenant, ok := m.tenants[tenantID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTenantNotFound, tenantID)
	}
	copied := *tenant
	return &copied, nil
}

func (m *MemoryStore) ListTenants(ctx context.Context, status *TenantStatus) ([]Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var tenants []Tenant
	for _, tenant := range m.tenants {
		if status != nil && tenant.Status != *status {
			continue
		}
		tenants = append(tenants, *tenant)
	}
	sort.Slice(tenants, func(i, j int) bool { return tenants[i].Name < tenants[j].Name })
	return tenants, nil
}

func (m *MemoryStore) UpdateStatus(ctx context.Context, tenantID string, status TenantStatus) error {
	if !status.Valid() {
		return fmt.Errorf("invalid tenant status %q", status)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	tenant, ok := m.tenants[tenantID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTenantNotFound, tenantID)
	}
	tenant.Status = status
	tenant.UpdatedAt = time.Now()
	return nil
}
