package audit

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileLogger_LogAndRead(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewFileLogger(FileLoggerConfig{BasePath: dir})
	require.NoError(t, err)
	defer logger.Close()

	ctx := context.Background()
	require.NoError(t, logger.Log(ctx, &AuditEvent{EventType: EventTypeOrgCreate, OrgID: "o1"}))
	require.NoError(t, logger.Log(ctx, &AuditEvent{EventType: EventTypeOrgUpdate, OrgID: "o1"}))

	events, err := logger.ReadLogs(0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, EventTypeOrgCreate, events[0].EventType)
	assert.Equal(t, EventTypeOrgUpdate, events[1].EventType)

	events, err = logger.ReadLogs(1)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestFileLogger_Rotation(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewFileLogger(FileLoggerConfig{BasePath: dir, Rotate: true, MaxSize: 1, MaxFiles: 2})
	require.NoError(t, err)
	defer logger.Close()

	tick := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	logger.now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, logger.Log(ctx, &AuditEvent{EventType: EventTypeDocumentCreate}))
	}

	rotated, err := filepath.Glob(filepath.Join(dir, "audit-*.log"))
	require.NoError(t, err)
	assert.Len(t, rotated, 2)

	events, err := logger.ReadLogs(0)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestFileLogger_Closed(t *testing.T) {
	logger, err := NewFileLogger(FileLoggerConfig{BasePath: t.TempDir()})
	require.NoError(t, err)

	require.NoError(t, logger.Close())
	require.NoError(t, logger.Close())
	assert.Error(t, logger.Log(context.Background(), &AuditEvent{}))
}

func TestNewFileLogger_BadPath(t *testing.T) {
	file := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))

	_, err := NewFileLogger(FileLoggerConfig{BasePath: filepath.Join(file, "audit")})
	assert.Error(t, err)
}
