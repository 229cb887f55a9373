package rbac

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory RoleStore and AssignmentStore used by tests
// and dry runs. Safe for concurrent use.
type MemoryStore struct {
	mu          sync.RWMutex
	roles       map[int64]*Role
	assignments map[string]*RoleAssignment
	nextRoleID  int64
	nextAssnID  int64
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		roles:       make(map[int64]*Role),
		assignments: make(map[string]*RoleAssignment),
		nextRoleID:  1,
		nextAssnID:  1,
	}
}

func assignmentKey(userID, roleID int64, scopeType Scope, scopeID *string) string {
	sid := ""
	if scopeID != nil {
		sid = *scopeID
	}
	return fmt.Sprintf("%d|%d|%s|%s", userID, roleID, scopeType, sid)
}

// CreateRole creates a new role
func (m *MemoryStore) CreateRole(ctx context.Context, role *Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.roles {
		if existing.Name == role.Name {
			return fmt.Errorf("%w: role %s already exists", ErrConflict, role.Name)
		}
	}

	role.ID = m.nextRoleID
	m.nextRoleID++
	now := time.Now()
	role.CreatedAt = now
	role.UpdatedAt = now

	stored := *role
	m.roles[role.ID] = &stored
	return nil
}

// GetRole retrieves a role by ID
func (m *MemoryStore) GetRole(ctx context.Context, roleID int64) (*Role, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	role, ok := m.roles[roleID]
	if !ok {
		return nil, fmt.Errorf("%w: role %d", ErrNotFound, roleID)
	}
	copied := *role
	return &copied, nil
}

// GetRoleByName retrieves a role by unique name
func (m *MemoryStore) GetRoleByName(ctx context.Context, name string) (*Role, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, role := range m.roles {
		if role.Name == name {
			copied := *role
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("%w: role %s", ErrNotFound, name)
}

// ListRoles lists roles, optionally filtered by scope
func (m *MemoryStore) ListRoles(ctx context.Context, scope *Scope) ([]Role, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var roles []Role
	for _, role := range m.roles {
		if scope != nil && role.Scope != *scope {
			continue
		}
		roles = append(roles, *role)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].Name < roles[j].Name })
	return roles, nil
}

// DeleteRole deletes a non-system role
func (m *MemoryStore) DeleteRole(ctx context.Context, roleID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	role, ok := m.roles[roleID]
	if !ok {
		return fmt.Errorf("%w: role %d", ErrNotFound, roleID)
	}
	if role.IsSystem {
		return fmt.Errorf("%w: %s", ErrSystemRole, role.Name)
	}
	delete(m.roles, roleID)
	return nil
}

// Upsert inserts or merges an assignment by key
func (m *MemoryStore) Upsert(ctx context.Context, assignment *RoleAssignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := assignmentKey(assignment.UserID, assignment.RoleID, assignment.ScopeType, assignment.ScopeID)
	if existing, ok := m.assignments[key]; ok {
		existing.IsPrimary = assignment.IsPrimary
		existing.ExpiresAt = assignment.ExpiresAt
		existing.GrantedBy = assignment.GrantedBy
		*assignment = *existing
		return nil
	}

	assignment.ID = m.nextAssnID
	m.nextAssnID++
	assignment.GrantedAt = time.Now()

	stored := *assignment
	m.assignments[key] = &stored
	return nil
}

// Delete removes an assignment by key
func (m *MemoryStore) Delete(ctx context.Context, userID, roleID int64, scopeType Scope, scopeID *string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := assignmentKey(userID, roleID, scopeType, scopeID)
	if _, ok := m.assignments[key]; !ok {
		return false, nil
	}
	delete(m.assignments, key)
	return true, nil
}

// ListActive returns unexpired assignments for a user
func (m *MemoryStore) ListActive(ctx context.Context, userID int64, scope *Scope, scopeID *string) ([]RoleAssignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := time.Now()
	var assignments []RoleAssignment
	for _, a := range m.assignments {
		if a.UserID != userID || a.Expired(now) {
			continue
		}
		if scope != nil && a.ScopeType != *scope {
			continue
		}
		if scopeID != nil && (a.ScopeID == nil || *a.ScopeID != *scopeID) {
			continue
		}
		assignments = append(assignments, *a)
	}
	sort.Slice(assignments, func(i, j int) bool { return assignments[i].ID < assignments[j].ID })
	return assignments, nil
}

// ListActiveForTenant returns unexpired tenant-scoped assignments for a tenant
func (m *MemoryStore) ListActiveForTenant(ctx context.Context, userID int64, tenantID string) ([]RoleAssignment, error) {
	scope := ScopeTenant
	return m.ListActive(ctx, userID, &scope, &tenantID)
}

// GetPrimary returns the user's primary assignment at the given scope
func (m *MemoryStore) GetPrimary(ctx context.Context, userID int64, scope *Scope, scopeID *string) (*RoleAssignment, error) {
	assignments, err := m.ListActive(ctx, userID, scope, scopeID)
	if err != nil {
		return nil, err
	}
	for i := range assignments {
		if assignments[i].IsPrimary {
			return &assignments[i], nil
		}
	}
	return nil, nil
}

// DeleteExpired garbage-collects assignments expired before the cutoff
func (m *MemoryStore) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed int64
	for key, a := range m.assignments {
		if a.ExpiresAt != nil && a.ExpiresAt.Before(before) {
			delete(m.assignments, key)
			removed++
		}
	}
	return removed, nil
}
