package observability

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewShutdownManager(t *testing.T) {
	assert.Equal(t, defaultShutdownTimeout, NewShutdownManager(nil, 0).Timeout())
	assert.Equal(t, 5*time.Second, NewShutdownManager(Nop(), 5*time.Second).Timeout())
}

func TestShutdownManager_ReverseOrder(t *testing.T) {
	sm := NewShutdownManager(Nop(), time.Second)

	var order []string
	for _, name := range []string{"store", "api", "ops"} {
		name := name
		sm.Register(name, func(context.Context) error {
			order = append(order, name)
			return nil
		})
	}
	sm.Register("ignored", nil)

	require.NoError(t, sm.Shutdown(context.Background()))
	assert.Equal(t, []string{"ops", "api", "store"}, order)
}

func TestShutdownManager_CollectsErrors(t *testing.T) {
	var buf bytes.Buffer
	sm := NewShutdownManager(NewLogger(InfoLevel, &buf), time.Second)

	boom := errors.New("boom")
	ran := false
	sm.Register("store", func(context.Context) error {
		ran = true
		return nil
	})
	sm.Register("cache", func(context.Context) error { return boom })

	err := sm.Shutdown(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "cache")
	assert.True(t, ran)
	assert.Contains(t, buf.String(), "shutdown step failed")
}

func TestShutdownManager_Deadline(t *testing.T) {
	sm := NewShutdownManager(Nop(), 20*time.Millisecond)

	ran := false
	sm.Register("store", func(context.Context) error {
		ran = true
		return nil
	})
	sm.Register("stuck", func(ctx context.Context) error {
		time.Sleep(time.Second)
		return nil
	})

	err := sm.Shutdown(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, ran)
}

func TestShutdownManager_Server(t *testing.T) {
	srv := httptest.NewUnstartedServer(http.NotFoundHandler())
	srv.Start()
	defer srv.Close()

	sm := NewShutdownManager(Nop(), time.Second)
	sm.RegisterServer("api", srv.Config)
	require.NoError(t, sm.Shutdown(context.Background()))

	_, err := http.Get(srv.URL)
	assert.Error(t, err)
}
