// Package audit provides the audit emission boundary for authorization and
// tenancy events.
//
// # Overview
//
// Every role assignment grant/revoke, support grant issue/revoke, and
// top-level tenant context transition produces an audit event. Emission is
// best-effort: failures are logged but never block the underlying
// operation.
//
// # Logging Events
//
//	event := audit.NewEvent(ctx, audit.EventTypeAssignmentGrant, audit.EventStatusSuccess)
//	event.ActorID = &actorID
//	event.TenantID = tenantID
//	event.ResourceType = audit.ResourceTypeAssignment
//	audit.Emit(ctx, logger, event)
//
// # Destinations
//
// Events can be written to PostgreSQL (append-only audit_logs table), to
// NDJSON files with rotation, or fanned out to both:
//
//	dbLogger, _ := audit.NewDBLogger(db)
//	fileLogger, _ := audit.NewFileLogger(audit.DefaultFileLoggerConfig())
//	logger := audit.NewMultiLogger(dbLogger, fileLogger)
//	defer logger.Close()
//
// # Related Packages
//
//   - pkg/rbac: assignment ledger emitting grant/revoke events
//   - pkg/support: grant manager emitting issue/revoke events
//   - pkg/tenancy: context manager emitting enter/exit events
package audit
