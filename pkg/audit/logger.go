package audit

import (
	"context"
	"time"

	"github.com/caregrid/caregrid/pkg/contextkeys"
	"github.com/caregrid/caregrid/pkg/observability"
)

// Logger is the interface for audit logging. Emission is best-effort:
// callers use Emit, which logs failures but never propagates them, so a
// broken audit sink cannot abort a successful authorization decision.
type Logger interface {
	// Log logs an audit event
	Log(ctx context.Context, event *Event) error

	// Close closes the logger and flushes any buffered logs
	Close() error
}

// WithLogger adds an audit logger to the context
func WithLogger(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, contextkeys.AuditLoggerKey, logger)
}

// FromContext retrieves the audit logger from context, falling back to a
// no-op logger when none is set
func FromContext(ctx context.Context) Logger {
	if logger, ok := ctx.Value(contextkeys.AuditLoggerKey).(Logger); ok {
		return logger
	}
	return &noOpLogger{}
}

// noOpLogger discards all events
type noOpLogger struct{}

// NewNoOpLogger returns a logger that discards all events
func NewNoOpLogger() Logger {
	return &noOpLogger{}
}

func (l *noOpLogger) Log(ctx context.Context, event *Event) error { return nil }
func (l *noOpLogger) Close() error                                { return nil }

// NewEvent builds an event with timestamp and request context populated
func NewEvent(ctx context.Context, eventType EventType, status EventStatus) *Event {
	event := &Event{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Status:    status,
		RequestID: contextkeys.GetRequestID(ctx),
		IPAddress: contextkeys.GetRemoteIP(ctx),
		Metadata:  make(map[string]interface{}),
	}
	return event
}

// Emit logs an event through the given logger, swallowing failures. A nil
// logger is treated as no-op.
func Emit(ctx context.Context, logger Logger, event *Event) {
	if logger == nil {
		return
	}
	if err := logger.Log(ctx, event); err != nil {
		observability.FromContext(ctx).
			WithError(err).
			WithField("event_type", string(event.EventType)).
			Warn("Audit emission failed")
	}
}
