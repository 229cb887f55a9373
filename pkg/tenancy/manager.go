package tenancy

import (
	"context"
	"fmt"
	"time"

	"github.com/caregrid/caregrid/pkg/audit"
	"github.com/caregrid/caregrid/pkg/observability"
)

// ManagerOptions tunes tenant entry policy
type ManagerOptions struct {
	// AllowPendingSetup permits entering tenants that have not finished
	// onboarding. Suspended tenants are rejected regardless.
	AllowPendingSetup bool
	// MaxContextDepth caps stack nesting. Zero means the default of 8.
	MaxContextDepth int
}

// Manager validates tenant entry and maintains the request-local tenant
// context stack. Every Enter pushes a frame and points the storage session
// filter at the new tenant; Exit pops and restores the parent's filter.
type Manager struct {
	store    TenantStore
	filter   SessionFilter
	auditLog audit.Logger
	logger   *observability.Logger
	metrics  *observability.Metrics
	opts     ManagerOptions
}

// NewManager creates a tenant context manager. filter, auditLog, and
// metrics may be nil.
func NewManager(store TenantStore, filter SessionFilter, auditLog audit.Logger, logger *observability.Logger, metrics *observability.Metrics, opts ManagerOptions) *Manager {
	if filter == nil {
		filter = NoopFilter{}
	}
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	if opts.MaxContextDepth <= 0 {
		opts.MaxContextDepth = 8
	}
	return &Manager{
		store:    store,
		filter:   filter,
		auditLog: auditLog,
		logger:   logger,
		metrics:  metrics,
		opts:     opts,
	}
}

// Enter validates the tenant and pushes a frame onto the context stack. The
// returned context carries the new frame; the input context is unchanged.
func (m *Manager) Enter(ctx context.Context, tenantID string) (context.Context, error) {
	parent, _ := Current(ctx)
	if parent != nil && parent.Depth() >= m.opts.MaxContextDepth {
		return nil, fmt.Errorf("%w: depth %d", ErrContextTooDeep, parent.Depth())
	}

	tenant, err := m.store.GetTenant(ctx, tenantID)
	if err != nil {
		m.observeEnter("not_found")
		return nil, err
	}

	switch tenant.Status {
	case StatusActive:
	case StatusSuspended:
		m.observeEnter("suspended")
		m.emitEnterDenied(ctx, tenantID, ErrTenantSuspended)
		return nil, fmt.Errorf("%w: %s", ErrTenantSuspended, tenantID)
	case StatusPendingSetup:
		if !m.opts.AllowPendingSetup {
			m.observeEnter("pending_rejected")
			return nil, fmt.Errorf("%w: %s is pending setup", ErrTenantInactive, tenantID)
		}
		m.logger.WithField("tenant_id", tenantID).
			WithField("request_id", observability.GetRequestID(ctx)).
			Warn("Entering tenant that has not completed setup")
	default:
		m.observeEnter("inactive")
		return nil, fmt.Errorf("%w: %s is %s", ErrTenantInactive, tenantID, tenant.Status)
	}

	frame := &TenantContext{
		TenantID:  tenantID,
		Tenant:    tenant,
		EnteredAt: time.Now(),
		Parent:    parent,
	}

	if err := m.filter.SetTenantFilter(ctx, tenantID); err != nil {
		m.observeEnter("filter_error")
		return nil, fmt.Errorf("failed to set tenant filter: %w", err)
	}

	m.observeEnter("ok")
	if m.metrics != nil {
		m.metrics.TenantContextDepth.Observe(float64(frame.Depth()))
	}

	// Only top-level entries are audited; nested frames are an
	// implementation detail of the request.
	if parent == nil {
		event := audit.NewEvent(ctx, audit.EventTypeTenantContextEnter, audit.EventStatusSuccess)
		event.TenantID = tenantID
		event.ResourceType = audit.ResourceTypeTenant
		event.ResourceID = tenantID
		audit.Emit(ctx, m.auditLog, event)
	}

	return withFrame(ctx, frame), nil
}

// Exit pops the innermost frame and restores the parent's filter, or clears
// the filter when the stack empties. The returned context carries the parent
// frame.
func (m *Manager) Exit(ctx context.Context) (context.Context, error) {
	frame, err := RequireCurrent(ctx)
	if err != nil {
		return ctx, err
	}

	if frame.Parent != nil {
		if err := m.filter.SetTenantFilter(ctx, frame.Parent.TenantID); err != nil {
			return ctx, fmt.Errorf("failed to restore tenant filter: %w", err)
		}
	} else {
		if err := m.filter.ClearTenantFilter(ctx); err != nil {
			return ctx, fmt.Errorf("failed to clear tenant filter: %w", err)
		}
	}

	if m.metrics != nil {
		m.metrics.TenantExitsTotal.Inc()
	}

	if frame.Parent == nil {
		event := audit.NewEvent(ctx, audit.EventTypeTenantContextExit, audit.EventStatusSuccess)
		event.TenantID = frame.TenantID
		event.ResourceType = audit.ResourceTypeTenant
		event.ResourceID = frame.TenantID
		event.Metadata["duration_ms"] = time.Since(frame.EnteredAt).Milliseconds()
		audit.Emit(ctx, m.auditLog, event)
	}

	return withFrame(ctx, frame.Parent), nil
}

// RunInTenant enters the tenant, runs fn with the scoped context, and exits
// on every path out of fn, including panics.
func (m *Manager) RunInTenant(ctx context.Context, tenantID string, fn func(ctx context.Context) error) error {
	scoped, err := m.Enter(ctx, tenantID)
	if err != nil {
		return err
	}

	defer func() {
		if _, exitErr := m.Exit(scoped); exitErr != nil {
			m.logger.WithError(exitErr).WithField("tenant_id", tenantID).
				Error("Failed to exit tenant context")
		}
	}()

	return fn(scoped)
}

func (m *Manager) observeEnter(status string) {
	if m.metrics != nil {
		m.metrics.TenantEntersTotal.WithLabelValues(status).Inc()
	}
}

func (m *Manager) emitEnterDenied(ctx context.Context, tenantID string, cause error) {
	event := audit.NewEvent(ctx, audit.EventTypeTenantContextEnter, audit.EventStatusDenied)
	event.TenantID = tenantID
	event.ResourceType = audit.ResourceTypeTenant
	event.ResourceID = tenantID
	event.ErrorMessage = cause.Error()
	audit.Emit(ctx, m.auditLog, event)
}
