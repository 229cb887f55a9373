package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"
)

// DBLogger implements audit logging to a PostgreSQL append-only table.
// Audit rows are never updated or deleted by this logger.
type DBLogger struct {
	db *sql.DB
}

// NewDBLogger creates a new database-backed audit logger
func NewDBLogger(db *sql.DB) (*DBLogger, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	return &DBLogger{db: db}, nil
}

// Log inserts an audit event
func (l *DBLogger) Log(ctx context.Context, event *Event) error {
	var metadataJSON, changesJSON []byte
	var err error

	if event.Metadata != nil {
		metadataJSON, err = json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}

	if event.Changes != nil {
		changesJSON, err = json.Marshal(event.Changes)
		if err != nil {
			return fmt.Errorf("failed to marshal changes: %w", err)
		}
	}

	query := `
		INSERT INTO audit_logs (
			timestamp, event_type, status,
			actor_id, tenant_id,
			resource_type, resource_id,
			ip_address, request_id,
			message, error_message, metadata, changes
		) VALUES (
			$1, $2, $3,
			$4, $5,
			$6, $7,
			$8, $9,
			$10, $11, $12, $13
		) RETURNING id
	`

	err = l.db.QueryRowContext(ctx, query,
		event.Timestamp, event.EventType, event.Status,
		event.ActorID, nullString(event.TenantID),
		nullString(string(event.ResourceType)), nullString(event.ResourceID),
		nullString(event.IPAddress), nullString(event.RequestID),
		event.Message, nullString(event.ErrorMessage), metadataJSON, changesJSON,
	).Scan(&event.ID)

	if err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}
	return nil
}

// Search retrieves audit events matching the filter, newest first
func (l *DBLogger) Search(ctx context.Context, filter SearchFilter) ([]*Event, error) {
	query := `
		SELECT
			id, timestamp, event_type, status,
			actor_id, tenant_id,
			resource_type, resource_id,
			ip_address, request_id,
			message, error_message, metadata, changes
		FROM audit_logs
		WHERE 1=1
	`

	args := []interface{}{}

	if filter.StartTime != nil {
		args = append(args, *filter.StartTime)
		query += fmt.Sprintf(" AND timestamp >= $%d", len(args))
	}
	if filter.EndTime != nil {
		args = append(args, *filter.EndTime)
		query += fmt.Sprintf(" AND timestamp <= $%d", len(args))
	}
	if filter.ActorID != nil {
		args = append(args, *filter.ActorID)
		query += fmt.Sprintf(" AND actor_id = $%d", len(args))
	}
	if filter.TenantID != "" {
		args = append(args, filter.TenantID)
		query += fmt.Sprintf(" AND tenant_id = $%d", len(args))
	}
	if len(filter.EventTypes) > 0 {
		eventTypeStrs := make([]string, len(filter.EventTypes))
		for i, et := range filter.EventTypes {
			eventTypeStrs[i] = string(et)
		}
		args = append(args, pq.Array(eventTypeStrs))
		query += fmt.Sprintf(" AND event_type = ANY($%d)", len(args))
	}
	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.ResourceType != "" {
		args = append(args, string(filter.ResourceType))
		query += fmt.Sprintf(" AND resource_type = $%d", len(args))
	}
	if filter.ResourceID != "" {
		args = append(args, filter.ResourceID)
		query += fmt.Sprintf(" AND resource_id = $%d", len(args))
	}

	query += " ORDER BY timestamp DESC"

	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search audit logs: %w", err)
	}
	defer rows.Close()

	events := make([]*Event, 0)
	for rows.Next() {
		event := &Event{}

		var tenantID, resourceType, resourceID, ipAddress, requestID, errorMessage sql.NullString
		var metadataJSON, changesJSON []byte

		err := rows.Scan(
			&event.ID, &event.Timestamp, &event.EventType, &event.Status,
			&event.ActorID, &tenantID,
			&resourceType, &resourceID,
			&ipAddress, &requestID,
			&event.Message, &errorMessage, &metadataJSON, &changesJSON,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}

		event.TenantID = tenantID.String
		event.ResourceType = ResourceType(resourceType.String)
		event.ResourceID = resourceID.String
		event.IPAddress = ipAddress.String
		event.RequestID = requestID.String
		event.ErrorMessage = errorMessage.String

		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &event.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}
		if len(changesJSON) > 0 {
			event.Changes = &ChangeDetails{}
			if err := json.Unmarshal(changesJSON, event.Changes); err != nil {
				return nil, fmt.Errorf("failed to unmarshal changes: %w", err)
			}
		}

		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit logs: %w", err)
	}
	return events, nil
}

// Close is a no-op; the database connection may be shared
func (l *DBLogger) Close() error {
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
