package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConnectionConfig(t *testing.T) {
	config := DefaultConnectionConfig("postgres://localhost:5432/nexvex")

	assert.Equal(t, "postgres://localhost:5432/nexvex", config.URL)
	assert.Equal(t, 25, config.MaxConns)
	assert.Equal(t, 5, config.MinConns)
	assert.LessOrEqual(t, config.MinConns, config.MaxConns)
	assert.Equal(t, 5*time.Second, config.Timeout)
	assert.Equal(t, time.Hour, config.MaxLifetime)
	assert.Equal(t, 10*time.Minute, config.MaxIdleTime)
}

func TestOpen_Failures(t *testing.T) {
	tests := []struct {
		name string
		url  string
	}{
		{"invalid scheme", "invalid://badurl"},
		{"unreachable host", "postgres://nonexistent.invalid:9999/nexvex?connect_timeout=1&sslmode=disable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConnectionConfig(tt.url)
			config.Timeout = 2 * time.Second

			db, err := Open(context.Background(), config)
			require.Error(t, err)
			assert.Nil(t, db)
			assert.Contains(t, err.Error(), "failed to ping database")
		})
	}
}

func TestOpen_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	db, err := Open(ctx, DefaultConnectionConfig("postgres://localhost:5432/nexvex?sslmode=disable"))
	assert.Error(t, err)
	assert.Nil(t, db)
}

func TestStats(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	stats := Stats(db)
	assert.Zero(t, stats.InUse)
	assert.Zero(t, stats.WaitCount)
	assert.Equal(t, stats.OpenConnections, stats.InUse+stats.Idle)

	mock.ExpectClose()
	require.NoError(t, db.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}
