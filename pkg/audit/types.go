package audit

import (
	"encoding/json"
	"time"
)

// EventType represents the category of audit event
type EventType string

const (
	// Organization events
	EventTypeOrgCreate            EventType = "org.create"
	EventTypeOrgUpdate            EventType = "org.update"
	EventTypeOrgRemove            EventType = "org.remove"
	EventTypeOrgTransferOwnership EventType = "org.transfer_ownership"

	// Membership events
	EventTypeMemberSetAdmin EventType = "member.set_admin"
	EventTypeMemberRemove   EventType = "member.remove"
	EventTypeMemberLeave    EventType = "member.leave"

	// Invite events
	EventTypeInviteCreate EventType = "invite.create"
	EventTypeInviteAccept EventType = "invite.accept"
	EventTypeInviteRevoke EventType = "invite.revoke"

	// Join request events
	EventTypeJoinRequestCreate  EventType = "join_request.create"
	EventTypeJoinRequestApprove EventType = "join_request.approve"
	EventTypeJoinRequestReject  EventType = "join_request.reject"
	EventTypeJoinRequestCancel  EventType = "join_request.cancel"

	// Document events
	EventTypeDocumentCreate  EventType = "document.create"
	EventTypeDocumentUpdate  EventType = "document.update"
	EventTypeDocumentDelete  EventType = "document.delete"
	EventTypeDocumentRestore EventType = "document.restore"
	EventTypeDocumentEditors EventType = "document.editors"

	// Cascade events
	EventTypeCascadeComplete EventType = "cascade.complete"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusDenied  EventStatus = "denied"
)

// ResourceType represents the type of resource being changed
type ResourceType string

const (
	ResourceTypeOrganization ResourceType = "organization"
	ResourceTypeMembership   ResourceType = "membership"
	ResourceTypeInvite       ResourceType = "invite"
	ResourceTypeJoinRequest  ResourceType = "join_request"
	ResourceTypeDocument     ResourceType = "document"
)

// AuditEvent represents a single audit log entry
type AuditEvent struct {
	ID        int64       `json:"id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	// Actor
	UserID string `json:"user_id,omitempty"`
	OrgID  string `json:"org_id,omitempty"`

	// Resource
	ResourceType ResourceType `json:"resource_type,omitempty"`
	ResourceID   string       `json:"resource_id,omitempty"`
	Table        string       `json:"table,omitempty"`

	RequestID string `json:"request_id,omitempty"`

	Message  string                 `json:"message,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
	Changes  *ChangeDetails         `json:"changes,omitempty"`
}

// ChangeDetails tracks before/after values for updates
type ChangeDetails struct {
	Before map[string]interface{} `json:"before,omitempty"`
	After  map[string]interface{} `json:"after,omitempty"`
}

// ToJSON converts the audit event to JSON
func (e *AuditEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// FromJSON parses an audit event from JSON
func FromJSON(data []byte) (*AuditEvent, error) {
	var event AuditEvent
	err := json.Unmarshal(data, &event)
	return &event, err
}

// SearchFilter selects audit events
type SearchFilter struct {
	OrgID      string
	UserID     string
	EventTypes []EventType
	StartTime  *time.Time
	EndTime    *time.Time
	Limit      int
}
