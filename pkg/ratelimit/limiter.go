package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/1qh/nexvex/pkg/apperr"
)

// Limit is a fixed window quota: at most Max operations per Window
type Limit struct {
	Max    int           `yaml:"max" json:"max"`
	Window time.Duration `yaml:"window" json:"window"`
}

// Enabled reports whether the limit throttles anything
func (l Limit) Enabled() bool {
	return l.Max > 0 && l.Window > 0
}

// Result is the outcome of one increment-and-check
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
	ResetAt    time.Time
}

// Limiter counts operations per key. Allow increments the key's counter and
// reports whether the operation fits the quota; the increment and the check
// are one atomic step.
type Limiter interface {
	Allow(ctx context.Context, key string, limit Limit) (*Result, error)
}

// Key builds the counter key for a user and an endpoint such as "tasks.create"
func Key(userID, table, operation string) string {
	return fmt.Sprintf("%s:%s.%s", userID, table, operation)
}

// Enforce runs Allow and converts a rejection into a RATE_LIMITED error.
// Disabled limits are never counted.
func Enforce(ctx context.Context, l Limiter, key string, limit Limit) error {
	if l == nil || !limit.Enabled() {
		return nil
	}
	res, err := l.Allow(ctx, key, limit)
	if err != nil {
		return fmt.Errorf("failed to check rate limit: %w", err)
	}
	if !res.Allowed {
		return apperr.RateLimited(res.RetryAfter, res.Limit, res.Remaining)
	}
	return nil
}

type window struct {
	count int
	end   time.Time
}

// MemoryLimiter is a process-local fixed window limiter
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
	calls   int
}

// sweepEvery bounds how often expired windows are pruned
const sweepEvery = 1024

// NewMemoryLimiter creates an in-memory limiter
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

// Allow increments key's counter in the current window
func (m *MemoryLimiter) Allow(ctx context.Context, key string, limit Limit) (*Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.calls++
	if m.calls%sweepEvery == 0 {
		m.sweep(now)
	}

	w, ok := m.windows[key]
	if !ok || !now.Before(w.end) {
		w = &window{end: now.Add(limit.Window)}
		m.windows[key] = w
	}
	w.count++

	reset := w.end
	res := &Result{
		Allowed:   w.count <= limit.Max,
		Limit:     limit.Max,
		Remaining: limit.Max - w.count,
		ResetAt:   reset,
	}
	if res.Remaining < 0 {
		res.Remaining = 0
	}
	if !res.Allowed {
		res.RetryAfter = reset.Sub(now)
	}
	return res, nil
}

// Reset clears a key's counter
func (m *MemoryLimiter) Reset(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.windows, key)
}

// sweep drops windows that have ended
func (m *MemoryLimiter) sweep(now time.Time) {
	for key, w := range m.windows {
		if !now.Before(w.end) {
			delete(m.windows, key)
		}
	}
}
