package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"
)

const defaultShutdownTimeout = 30 * time.Second

// ShutdownFunc releases one resource
type ShutdownFunc func(context.Context) error

type shutdownStep struct {
	name string
	fn   ShutdownFunc
}

// ShutdownManager releases the process resources in reverse registration
// order under one deadline: listeners registered last stop first, the store
// they use closes after them.
type ShutdownManager struct {
	logger  *Logger
	timeout time.Duration

	mu    sync.Mutex
	steps []shutdownStep
}

// NewShutdownManager creates a manager; a zero timeout uses 30 seconds
func NewShutdownManager(logger *Logger, timeout time.Duration) *ShutdownManager {
	if logger == nil {
		logger = Nop()
	}
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	return &ShutdownManager{logger: logger, timeout: timeout}
}

// Register adds a named shutdown step. Nil functions are ignored.
func (sm *ShutdownManager) Register(name string, fn ShutdownFunc) {
	if fn == nil {
		return
	}
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.steps = append(sm.steps, shutdownStep{name: name, fn: fn})
}

// RegisterServer stops server gracefully on shutdown
func (sm *ShutdownManager) RegisterServer(name string, server *http.Server) {
	sm.Register(name, server.Shutdown)
}

// Timeout returns the shutdown deadline
func (sm *ShutdownManager) Timeout() time.Duration {
	return sm.timeout
}

// Shutdown runs every step, last registered first, and joins their errors.
// A step still running at the deadline is abandoned.
func (sm *ShutdownManager) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, sm.timeout)
	defer cancel()

	sm.mu.Lock()
	steps := append([]shutdownStep(nil), sm.steps...)
	sm.mu.Unlock()

	var errs []error
	for i := len(steps) - 1; i >= 0; i-- {
		step := steps[i]
		logger := sm.logger.WithField("step", step.name)

		done := make(chan error, 1)
		go func() { done <- step.fn(ctx) }()

		select {
		case err := <-done:
			if err != nil {
				logger.WithError(err).Error("shutdown step failed")
				errs = append(errs, fmt.Errorf("%s: %w", step.name, err))
				continue
			}
			logger.Debug("shutdown step complete")
		case <-ctx.Done():
			logger.Warn("shutdown deadline reached")
			errs = append(errs, fmt.Errorf("%s: %w", step.name, ctx.Err()))
			return errors.Join(errs...)
		}
	}
	if len(errs) == 0 {
		sm.logger.Info("shutdown complete")
	}
	return errors.Join(errs...)
}
