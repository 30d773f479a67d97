package audit

import (
	"context"
	"sync"
)

// MemoryLogger keeps events in memory. It backs tests and single-process
// deployments that expose recent events through Search.
type MemoryLogger struct {
	mu     sync.Mutex
	events []*AuditEvent
	nextID int64
}

// NewMemoryLogger creates an empty in-memory audit logger
func NewMemoryLogger() *MemoryLogger {
	return &MemoryLogger{}
}

// Log stores a copy of the event
func (m *MemoryLogger) Log(ctx context.Context, event *AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	event.ID = m.nextID
	cp := *event
	m.events = append(m.events, &cp)
	return nil
}

// Events returns every recorded event in insertion order
func (m *MemoryLogger) Events() []*AuditEvent {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*AuditEvent, len(m.events))
	copy(out, m.events)
	return out
}

// OfType returns recorded events with the given type
func (m *MemoryLogger) OfType(eventType EventType) []*AuditEvent {
	var out []*AuditEvent
	for _, e := range m.Events() {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

// Search returns events matching filter, newest first
func (m *MemoryLogger) Search(ctx context.Context, filter SearchFilter) ([]*AuditEvent, error) {
	events := m.Events()
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	var out []*AuditEvent
	for i := len(events) - 1; i >= 0 && len(out) < limit; i-- {
		if filter.matches(events[i]) {
			out = append(out, events[i])
		}
	}
	return out, nil
}

// Close is a no-op
func (m *MemoryLogger) Close() error {
	return nil
}

func (f SearchFilter) matches(e *AuditEvent) bool {
	if f.OrgID != "" && e.OrgID != f.OrgID {
		return false
	}
	if f.UserID != "" && e.UserID != f.UserID {
		return false
	}
	if len(f.EventTypes) > 0 {
		found := false
		for _, t := range f.EventTypes {
			if t == e.EventType {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.StartTime != nil && e.Timestamp.Before(*f.StartTime) {
		return false
	}
	if f.EndTime != nil && e.Timestamp.After(*f.EndTime) {
		return false
	}
	return true
}

// Searcher is implemented by loggers that can query past events
type Searcher interface {
	Search(ctx context.Context, filter SearchFilter) ([]*AuditEvent, error)
}
