package audit

import (
	"encoding/json"
	"time"
)

// EventType represents the category of audit event
type EventType string

const (
	// RBAC events
	EventTypeAssignmentGrant  EventType = "rbac.assignment_grant"
	EventTypeAssignmentRevoke EventType = "rbac.assignment_revoke"
	EventTypeRoleCreate       EventType = "rbac.role_create"
	EventTypeRoleDelete       EventType = "rbac.role_delete"

	// Support access grant events
	EventTypeSupportGrantIssue  EventType = "support.grant_issue"
	EventTypeSupportGrantRevoke EventType = "support.grant_revoke"

	// Tenant context events (top-level frames only)
	EventTypeTenantContextEnter EventType = "tenancy.context_enter"
	EventTypeTenantContextExit  EventType = "tenancy.context_exit"

	// Authorization events
	EventTypeAccessDenied    EventType = "authz.access_denied"
	EventTypePermissionCheck EventType = "authz.permission_check"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusDenied  EventStatus = "denied"
)

// ResourceType represents the type of resource being acted on
type ResourceType string

const (
	ResourceTypeRole         ResourceType = "role"
	ResourceTypeAssignment   ResourceType = "role_assignment"
	ResourceTypeSupportGrant ResourceType = "support_grant"
	ResourceTypeTenant       ResourceType = "tenant"
	ResourceTypeUser         ResourceType = "user"
)

// Event represents a single audit log entry
type Event struct {
	// Core fields
	ID        int64       `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	// Actor information
	ActorID  *int64 `json:"actor_id,omitempty"`
	TenantID string `json:"tenant_id,omitempty"`

	// Resource information
	ResourceType ResourceType `json:"resource_type,omitempty"`
	ResourceID   string       `json:"resource_id,omitempty"`

	// Request context
	IPAddress string `json:"ip_address,omitempty"`
	RequestID string `json:"request_id,omitempty"`

	// Additional details
	Message      string                 `json:"message,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`

	// Changes tracking (before/after for updates)
	Changes *ChangeDetails `json:"changes,omitempty"`
}

// ChangeDetails tracks before/after values for updates
type ChangeDetails struct {
	Before map[string]interface{} `json:"before,omitempty"`
	After  map[string]interface{} `json:"after,omitempty"`
}

// ToJSON converts the event to JSON
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// FromJSON parses an event from JSON
func FromJSON(data []byte) (*Event, error) {
	var event Event
	err := json.Unmarshal(data, &event)
	return &event, err
}

// SearchFilter represents filters for searching audit logs
type SearchFilter struct {
	StartTime *time.Time
	EndTime   *time.Time

	ActorID  *int64
	TenantID string

	EventTypes []EventType
	Status     *EventStatus

	ResourceType ResourceType
	ResourceID   string

	Limit  int
	Offset int
}
