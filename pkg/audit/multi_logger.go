package audit

import (
	"context"
	"errors"
	"sync"

	"github.com/1qh/nexvex/pkg/observability"
)

// MultiLogger fans audit events out to several loggers
type MultiLogger struct {
	loggers []Logger
	async   bool
	wg      sync.WaitGroup
	errChan chan error
	logger  *observability.Logger
}

// NewMultiLogger creates a synchronous multi-logger
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	return &MultiLogger{
		loggers: loggers,
		errChan: make(chan error, len(loggers)+1),
		logger:  observability.Nop(),
	}
}

// SetAsync sets whether logging should be asynchronous
func (m *MultiLogger) SetAsync(async bool) {
	m.async = async
}

// SetLogger reports async delivery failures to logger as well as Errors
func (m *MultiLogger) SetLogger(logger *observability.Logger) {
	if logger != nil {
		m.logger = logger
	}
}

// Log logs an audit event to all configured loggers
func (m *MultiLogger) Log(ctx context.Context, event *AuditEvent) error {
	if len(m.loggers) == 0 {
		return nil
	}
	if m.async {
		m.logAsync(ctx, event)
		return nil
	}
	return m.logSync(ctx, event)
}

// logSync keeps going after a failure and returns the first error
func (m *MultiLogger) logSync(ctx context.Context, event *AuditEvent) error {
	var firstErr error
	for _, logger := range m.loggers {
		if err := logger.Log(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *MultiLogger) logAsync(ctx context.Context, event *AuditEvent) {
	// detach so a finished request does not cancel its own audit writes
	ctx = context.WithoutCancel(ctx)
	for _, logger := range m.loggers {
		m.wg.Add(1)
		go func(l Logger) {
			defer m.wg.Done()
			if err := l.Log(ctx, event); err != nil {
				m.logger.WithError(err).
					WithField("event_type", string(event.EventType)).
					Warn("async audit delivery failed")
				select {
				case m.errChan <- err:
				default:
				}
			}
		}(logger)
	}
}

// Errors returns async logging errors; the channel drops errors when full
func (m *MultiLogger) Errors() <-chan error {
	return m.errChan
}

// Wait blocks until pending async writes finish
func (m *MultiLogger) Wait() {
	m.wg.Wait()
}

// Close waits for pending writes then closes every logger
func (m *MultiLogger) Close() error {
	m.wg.Wait()

	var errs []error
	for _, logger := range m.loggers {
		if err := logger.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
