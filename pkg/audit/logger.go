package audit

import (
	"context"
	"time"

	"github.com/1qh/nexvex/pkg/contextkeys"
)

// Logger is the interface for audit sinks
type Logger interface {
	// Log records an audit event
	Log(ctx context.Context, event *AuditEvent) error

	// Close flushes buffered events and releases resources
	Close() error
}

// WithLogger adds an audit logger to the context
func WithLogger(ctx context.Context, logger Logger) context.Context {
	return contextkeys.WithAuditLogger(ctx, logger)
}

// FromContext retrieves the audit logger from context
func FromContext(ctx context.Context) Logger {
	if logger, ok := ctx.Value(contextkeys.AuditLoggerKey).(Logger); ok {
		return logger
	}
	return NoOp()
}

// NoOp returns a logger that drops every event
func NoOp() Logger {
	return noOpLogger{}
}

type noOpLogger struct{}

func (noOpLogger) Log(ctx context.Context, event *AuditEvent) error { return nil }

func (noOpLogger) Close() error { return nil }

// NewEvent creates a successful event stamped with the request and user IDs
// carried by ctx
func NewEvent(ctx context.Context, eventType EventType, orgID string) *AuditEvent {
	return &AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Status:    EventStatusSuccess,
		UserID:    contextkeys.GetUserID(ctx),
		OrgID:     orgID,
		RequestID: contextkeys.GetRequestID(ctx),
		Metadata:  make(map[string]interface{}),
	}
}

// Resource sets the resource the event is about
func (e *AuditEvent) Resource(resourceType ResourceType, id string) *AuditEvent {
	e.ResourceType = resourceType
	e.ResourceID = id
	return e
}

// With adds a metadata entry
func (e *AuditEvent) With(key string, value interface{}) *AuditEvent {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}
