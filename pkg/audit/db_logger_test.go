package audit

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDBLogger(t *testing.T) (*DBLogger, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS audit_events").WillReturnResult(sqlmock.NewResult(0, 0))
	logger, err := NewDBLogger(context.Background(), db)
	require.NoError(t, err)
	return logger, mock
}

func TestNewDBLogger(t *testing.T) {
	t.Run("nil db", func(t *testing.T) {
		_, err := NewDBLogger(context.Background(), nil)
		assert.Error(t, err)
	})

	t.Run("table creation fails", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectExec("CREATE TABLE IF NOT EXISTS audit_events").WillReturnError(errors.New("permission denied"))
		_, err = NewDBLogger(context.Background(), db)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to ensure audit_events table")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestDBLogger_Log(t *testing.T) {
	logger, mock := newMockDBLogger(t)
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	event := &AuditEvent{
		Timestamp:    ts,
		EventType:    EventTypeInviteCreate,
		Status:       EventStatusSuccess,
		UserID:       "u1",
		OrgID:        "o1",
		ResourceType: ResourceTypeInvite,
		ResourceID:   "inv1",
		Metadata:     map[string]interface{}{"email": "a@b.c"},
	}

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO audit_events")).
		WithArgs(ts, "invite.create", "success", "u1", "o1", "invite", "inv1",
			nil, nil, nil, []byte(`{"email":"a@b.c"}`), nil).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))

	require.NoError(t, logger.Log(context.Background(), event))
	assert.Equal(t, int64(42), event.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBLogger_Log_Error(t *testing.T) {
	logger, mock := newMockDBLogger(t)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO audit_events")).WillReturnError(errors.New("connection reset"))

	err := logger.Log(context.Background(), &AuditEvent{EventType: EventTypeOrgCreate, Status: EventStatusSuccess})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to insert audit event")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBLogger_Search(t *testing.T) {
	logger, mock := newMockDBLogger(t)
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	columns := []string{"id", "timestamp", "event_type", "status", "user_id", "org_id", "resource_type",
		"resource_id", "table_name", "request_id", "message", "metadata", "changes"}
	rows := sqlmock.NewRows(columns).
		AddRow(2, ts, "member.remove", "success", "u1", "o1", "membership", "m1", nil, "req-1", nil,
			[]byte(`{"target":"u2"}`), nil).
		AddRow(1, ts.Add(-time.Minute), "document.update", "success", "u1", "o1", "document", "d1", "tasks", nil, nil,
			nil, []byte(`{"before":{"title":"a"},"after":{"title":"b"}}`))

	mock.ExpectQuery(regexp.QuoteMeta("FROM audit_events WHERE org_id = $1 AND user_id = $2 ORDER BY timestamp DESC LIMIT $3")).
		WithArgs("o1", "u1", 10).
		WillReturnRows(rows)

	events, err := logger.Search(context.Background(), SearchFilter{OrgID: "o1", UserID: "u1", Limit: 10})
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, EventTypeMemberRemove, events[0].EventType)
	assert.Equal(t, "req-1", events[0].RequestID)
	assert.Equal(t, "u2", events[0].Metadata["target"])
	assert.Empty(t, events[0].Table)

	assert.Equal(t, "tasks", events[1].Table)
	require.NotNil(t, events[1].Changes)
	assert.Equal(t, "b", events[1].Changes.After["title"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBLogger_Search_DefaultLimit(t *testing.T) {
	logger, mock := newMockDBLogger(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM audit_events ORDER BY timestamp DESC LIMIT $1")).
		WithArgs(100).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	events, err := logger.Search(context.Background(), SearchFilter{})
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.NoError(t, mock.ExpectationsWereMet())
}
