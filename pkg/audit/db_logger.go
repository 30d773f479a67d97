package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// DBLogger implements audit logging to PostgreSQL
type DBLogger struct {
	db *sql.DB
}

// NewDBLogger creates a database-backed audit logger and ensures its table
func NewDBLogger(ctx context.Context, db *sql.DB) (*DBLogger, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	logger := &DBLogger{db: db}
	if err := logger.ensureTable(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure audit_events table: %w", err)
	}
	return logger, nil
}

func (l *DBLogger) ensureTable(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS audit_events (
		id BIGSERIAL PRIMARY KEY,
		timestamp TIMESTAMP WITH TIME ZONE NOT NULL,
		event_type VARCHAR(100) NOT NULL,
		status VARCHAR(20) NOT NULL,
		user_id VARCHAR(255),
		org_id VARCHAR(255),
		resource_type VARCHAR(50),
		resource_id VARCHAR(255),
		table_name VARCHAR(255),
		request_id VARCHAR(100),
		message TEXT,
		metadata JSONB,
		changes JSONB
	);

	CREATE INDEX IF NOT EXISTS idx_audit_events_timestamp ON audit_events(timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_audit_events_org_id ON audit_events(org_id);
	CREATE INDEX IF NOT EXISTS idx_audit_events_user_id ON audit_events(user_id);
	`
	_, err := l.db.ExecContext(ctx, query)
	return err
}

// Log inserts an audit event
func (l *DBLogger) Log(ctx context.Context, event *AuditEvent) error {
	// untyped nil so empty JSONB columns are written as NULL
	var metadataJSON, changesJSON interface{}

	if len(event.Metadata) > 0 {
		data, err := json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
		metadataJSON = data
	}
	if event.Changes != nil {
		data, err := json.Marshal(event.Changes)
		if err != nil {
			return fmt.Errorf("failed to marshal changes: %w", err)
		}
		changesJSON = data
	}

	query := `
		INSERT INTO audit_events (
			timestamp, event_type, status, user_id, org_id, resource_type,
			resource_id, table_name, request_id, message, metadata, changes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id
	`
	err := l.db.QueryRowContext(ctx, query,
		event.Timestamp, string(event.EventType), string(event.Status),
		nullString(event.UserID), nullString(event.OrgID), nullString(string(event.ResourceType)),
		nullString(event.ResourceID), nullString(event.Table), nullString(event.RequestID),
		nullString(event.Message), metadataJSON, changesJSON,
	).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}

// Search returns events matching filter, newest first
func (l *DBLogger) Search(ctx context.Context, filter SearchFilter) ([]*AuditEvent, error) {
	var (
		conds []string
		args  []interface{}
	)
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.OrgID != "" {
		add("org_id = $%d", filter.OrgID)
	}
	if filter.UserID != "" {
		add("user_id = $%d", filter.UserID)
	}
	if len(filter.EventTypes) > 0 {
		types := make([]string, len(filter.EventTypes))
		for i, t := range filter.EventTypes {
			types[i] = string(t)
		}
		add("event_type = ANY($%d)", pq.Array(types))
	}
	if filter.StartTime != nil {
		add("timestamp >= $%d", *filter.StartTime)
	}
	if filter.EndTime != nil {
		add("timestamp <= $%d", *filter.EndTime)
	}

	query := `SELECT id, timestamp, event_type, status, user_id, org_id, resource_type,
		resource_id, table_name, request_id, message, metadata, changes FROM audit_events`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY timestamp DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search audit events: %w", err)
	}
	defer rows.Close()

	var events []*AuditEvent
	for rows.Next() {
		event := &AuditEvent{}
		var eventType, status string
		var userID, orgID, resourceType, resourceID, table, requestID, message sql.NullString
		var metadataJSON, changesJSON []byte
		if err := rows.Scan(&event.ID, &event.Timestamp, &eventType, &status, &userID, &orgID,
			&resourceType, &resourceID, &table, &requestID, &message, &metadataJSON, &changesJSON); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		event.EventType = EventType(eventType)
		event.Status = EventStatus(status)
		event.UserID = userID.String
		event.OrgID = orgID.String
		event.ResourceType = ResourceType(resourceType.String)
		event.ResourceID = resourceID.String
		event.Table = table.String
		event.RequestID = requestID.String
		event.Message = message.String
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
		return nil, fmt.Errorf("failed to iterate audit events: %w", err)
	}
	return events, nil
}

// Close is a no-op; the database handle is owned by the caller
func (l *DBLogger) Close() error {
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
