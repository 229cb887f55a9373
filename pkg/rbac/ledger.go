package rbac

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/caregrid/caregrid/pkg/audit"
	"github.com/caregrid/caregrid/pkg/observability"
)

// Invalidator receives synchronous invalidation on every assignment write.
// The permission cache implements it.
type Invalidator interface {
	InvalidateUser(ctx context.Context, userID int64)
}

// Ledger is the role assignment ledger: the source of truth for who holds
// which role at which scope. All writes validate scope invariants before
// touching storage and emit audit events after.
type Ledger struct {
	roles       RoleStore
	assignments AssignmentStore
	auditLog    audit.Logger
	invalidator Invalidator
	logger      *observability.Logger
}

// NewLedger creates a new assignment ledger. auditLog and invalidator may
// be nil.
func NewLedger(roles RoleStore, assignments AssignmentStore, auditLog audit.Logger, invalidator Invalidator, logger *observability.Logger) *Ledger {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &Ledger{
		roles:       roles,
		assignments: assignments,
		auditLog:    auditLog,
		invalidator: invalidator,
		logger:      logger,
	}
}

// AssignInput carries the parameters for a role grant
type AssignInput struct {
	UserID    int64
	RoleName  string
	ScopeType Scope
	ScopeID   *string
	GrantedBy *int64
	IsPrimary bool
	ExpiresAt *time.Time
}

// Assign grants a role to a user. The operation is idempotent by
// (user, role, scope_type, scope_id): a second call with the same key
// merges expires_at and is_primary into the existing assignment instead of
// inserting a duplicate.
func (l *Ledger) Assign(ctx context.Context, input AssignInput) (*RoleAssignment, error) {
	if !input.ScopeType.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidScope, input.ScopeType)
	}

	role, err := l.roles.GetRoleByName(ctx, input.RoleName)
	if err != nil {
		return nil, err
	}

	if role.Scope != input.ScopeType {
		return nil, fmt.Errorf("%w: role %s is %s-scoped, assignment is %s-scoped",
			ErrInvalidScope, role.Name, role.Scope, input.ScopeType)
	}

	if input.ScopeType.RequiresScopeID() {
		if input.ScopeID == nil || *input.ScopeID == "" {
			return nil, fmt.Errorf("%w: %s", ErrMissingScopeID, input.ScopeType)
		}
	} else if input.ScopeID != nil {
		return nil, ErrUnexpectedScopeID
	}

	assignment := &RoleAssignment{
		UserID:    input.UserID,
		RoleID:    role.ID,
		ScopeType: input.ScopeType,
		ScopeID:   input.ScopeID,
		IsPrimary: input.IsPrimary,
		GrantedBy: input.GrantedBy,
		ExpiresAt: input.ExpiresAt,
	}

	if err := l.assignments.Upsert(ctx, assignment); err != nil {
		return nil, err
	}

	l.invalidate(ctx, input.UserID)
	l.emitAssignmentEvent(ctx, audit.EventTypeAssignmentGrant, assignment, role, input.GrantedBy)

	return assignment, nil
}

// Revoke removes an assignment by key, returning true when something was
// removed
func (l *Ledger) Revoke(ctx context.Context, userID int64, roleName string, scopeType Scope, scopeID *string, revokedBy *int64) (bool, error) {
	role, err := l.roles.GetRoleByName(ctx, roleName)
	if err != nil {
		return false, err
	}

	removed, err := l.assignments.Delete(ctx, userID, role.ID, scopeType, scopeID)
	if err != nil {
		return false, err
	}
	if !removed {
		return false, nil
	}

	l.invalidate(ctx, userID)
	l.emitAssignmentEvent(ctx, audit.EventTypeAssignmentRevoke, &RoleAssignment{
		UserID:    userID,
		RoleID:    role.ID,
		ScopeType: scopeType,
		ScopeID:   scopeID,
	}, role, revokedBy)

	return true, nil
}

// ListActive returns the user's unexpired assignments, optionally filtered
// by scope
func (l *Ledger) ListActive(ctx context.Context, userID int64, scope *Scope, scopeID *string) ([]RoleAssignment, error) {
	return l.assignments.ListActive(ctx, userID, scope, scopeID)
}

// GetPrimaryRole returns the role behind the user's primary assignment at
// the given scope, or nil when none exists
func (l *Ledger) GetPrimaryRole(ctx context.Context, userID int64, scope *Scope, scopeID *string) (*Role, error) {
	assignment, err := l.assignments.GetPrimary(ctx, userID, scope, scopeID)
	if err != nil {
		return nil, err
	}
	if assignment == nil {
		return nil, nil
	}
	return l.roles.GetRole(ctx, assignment.RoleID)
}

// DeleteExpired garbage-collects assignments expired before the cutoff.
// Expired assignments are already inert everywhere; this only reclaims
// storage.
func (l *Ledger) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	removed, err := l.assignments.DeleteExpired(ctx, before)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		l.logger.WithField("removed", removed).Info("Garbage-collected expired role assignments")
	}
	return removed, nil
}

func (l *Ledger) invalidate(ctx context.Context, userID int64) {
	if l.invalidator != nil {
		l.invalidator.InvalidateUser(ctx, userID)
	}
}

func (l *Ledger) emitAssignmentEvent(ctx context.Context, eventType audit.EventType, assignment *RoleAssignment, role *Role, actor *int64) {
	event := audit.NewEvent(ctx, eventType, audit.EventStatusSuccess)
	event.ActorID = actor
	event.ResourceType = audit.ResourceTypeAssignment
	event.ResourceID = strconv.FormatInt(assignment.ID, 10)
	event.Metadata["user_id"] = assignment.UserID
	event.Metadata["role"] = role.Name
	event.Metadata["scope_type"] = string(assignment.ScopeType)
	if assignment.ScopeID != nil {
		event.Metadata["scope_id"] = *assignment.ScopeID
		if assignment.ScopeType == ScopeTenant {
			event.TenantID = *assignment.ScopeID
		}
	}
	if assignment.ExpiresAt != nil {
		event.Metadata["expires_at"] = assignment.ExpiresAt.UTC().Format(time.RFC3339)
	}
	audit.Emit(ctx, l.auditLog, event)
}
