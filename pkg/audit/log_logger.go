package audit

import (
	"context"

	"github.com/1qh/nexvex/pkg/observability"
)

// LogLogger writes audit events to the process log as structured lines
type LogLogger struct {
	logger *observability.Logger
}

// NewLogLogger creates an audit logger backed by the process logger
func NewLogLogger(logger *observability.Logger) *LogLogger {
	if logger == nil {
		logger = observability.Nop()
	}
	return &LogLogger{logger: logger.WithField("component", "audit")}
}

// Log writes the event at info level, or warn level for failures and denials
func (l *LogLogger) Log(ctx context.Context, event *AuditEvent) error {
	fields := map[string]interface{}{
		"event_type": string(event.EventType),
		"status":     string(event.Status),
	}
	if event.UserID != "" {
		fields["user_id"] = event.UserID
	}
	if event.OrgID != "" {
		fields["org_id"] = event.OrgID
	}
	if event.ResourceID != "" {
		fields["resource_type"] = string(event.ResourceType)
		fields["resource_id"] = event.ResourceID
	}
	if event.Table != "" {
		fields["table"] = event.Table
	}
	if event.RequestID != "" {
		fields["request_id"] = event.RequestID
	}

	entry := l.logger.WithFields(fields)
	msg := event.Message
	if msg == "" {
		msg = string(event.EventType)
	}
	if event.Status == EventStatusFailure || event.Status == EventStatusDenied {
		entry.Warn(msg)
		return nil
	}
	entry.Info(msg)
	return nil
}

// Close is a no-op
func (l *LogLogger) Close() error {
	return nil
}
