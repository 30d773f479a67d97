package hooks

import (
	"context"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/1qh/nexvex/pkg/audit"
	"github.com/1qh/nexvex/pkg/models"
	"github.com/1qh/nexvex/pkg/observability"
)

// AuditLog records every committed document mutation on an audit sink
type AuditLog struct {
	Base
	sink audit.Logger
}

// NewAuditLog creates the audit hook. A nil sink uses the logger carried by
// the request context.
func NewAuditLog(sink audit.Logger) *AuditLog {
	return &AuditLog{sink: sink}
}

func (a *AuditLog) Name() string { return "audit" }

func (a *AuditLog) AfterCreate(ctx context.Context, op *Operation, doc *models.Document) {
	event := a.event(ctx, op, audit.EventTypeDocumentCreate, doc)
	event.Changes = &audit.ChangeDetails{After: doc.Data}
	a.log(ctx, event)
}

func (a *AuditLog) AfterUpdate(ctx context.Context, op *Operation, prev, next *models.Document) {
	switch op.Kind {
	case KindRestore:
		a.log(ctx, a.event(ctx, op, audit.EventTypeDocumentRestore, next))
	case KindEditors:
		event := a.event(ctx, op, audit.EventTypeDocumentEditors, next)
		event.Changes = &audit.ChangeDetails{
			Before: map[string]interface{}{models.FieldEditors: prev.Editors},
			After:  map[string]interface{}{models.FieldEditors: next.Editors},
		}
		a.log(ctx, event)
	default:
		event := a.event(ctx, op, audit.EventTypeDocumentUpdate, next)
		event.Changes = diff(prev.Data, next.Data)
		a.log(ctx, event)
	}
}

func (a *AuditLog) AfterDelete(ctx context.Context, op *Operation, doc *models.Document) {
	event := a.event(ctx, op, audit.EventTypeDocumentDelete, doc)
	event.With("soft", doc.Deleted)
	a.log(ctx, event)
}

func (a *AuditLog) event(ctx context.Context, op *Operation, eventType audit.EventType, doc *models.Document) *audit.AuditEvent {
	event := audit.NewEvent(ctx, eventType, op.OrgID).Resource(audit.ResourceTypeDocument, doc.ID)
	event.Table = op.Table
	if op.UserID != "" {
		event.UserID = op.UserID
	}
	return event
}

func (a *AuditLog) log(ctx context.Context, event *audit.AuditEvent) {
	sink := a.sink
	if sink == nil {
		sink = audit.FromContext(ctx)
	}
	if err := sink.Log(ctx, event); err != nil {
		observability.FromContext(ctx).WithError(err).
			WithField("event_type", string(event.EventType)).
			Warn("failed to write audit event")
	}
}

// diff returns the keys whose values changed between before and after
func diff(before, after map[string]any) *audit.ChangeDetails {
	changes := &audit.ChangeDetails{
		Before: map[string]interface{}{},
		After:  map[string]interface{}{},
	}
	keys := make(map[string]struct{}, len(before)+len(after))
	for k := range before {
		keys[k] = struct{}{}
	}
	for k := range after {
		keys[k] = struct{}{}
	}
	for k := range keys {
		b, inBefore := before[k]
		n, inAfter := after[k]
		if inBefore && inAfter && reflect.DeepEqual(b, n) {
			continue
		}
		if inBefore {
			changes.Before[k] = b
		}
		if inAfter {
			changes.After[k] = n
		}
	}
	return changes
}

// Sanitize trims surrounding whitespace from string values and strips
// reserved field names from create and update payloads
type Sanitize struct {
	Base
}

// NewSanitize creates the sanitize hook
func NewSanitize() *Sanitize {
	return &Sanitize{}
}

func (s *Sanitize) Name() string { return "sanitize" }

func (s *Sanitize) BeforeCreate(ctx context.Context, op *Operation, data map[string]any) (map[string]any, error) {
	return sanitize(data), nil
}

func (s *Sanitize) BeforeUpdate(ctx context.Context, op *Operation, prev *models.Document, patch map[string]any) (map[string]any, error) {
	return sanitize(patch), nil
}

func sanitize(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		if models.IsReservedField(k) {
			continue
		}
		if str, ok := v.(string); ok {
			v = strings.TrimSpace(str)
		}
		out[k] = v
	}
	return out
}

// SlowOperation warns when a mutation takes longer than a threshold,
// measured from Operation.StartedAt to the after hook
type SlowOperation struct {
	Base
	threshold time.Duration
	logger    *observability.Logger
	now       func() time.Time
}

// NewSlowOperation creates the slow operation hook. A nil logger uses the
// logger carried by the request context.
func NewSlowOperation(threshold time.Duration, logger *observability.Logger) *SlowOperation {
	return &SlowOperation{threshold: threshold, logger: logger, now: time.Now}
}

func (s *SlowOperation) Name() string { return "slow_operation" }

func (s *SlowOperation) AfterCreate(ctx context.Context, op *Operation, doc *models.Document) {
	s.check(ctx, op)
}

func (s *SlowOperation) AfterUpdate(ctx context.Context, op *Operation, prev, next *models.Document) {
	s.check(ctx, op)
}

func (s *SlowOperation) AfterDelete(ctx context.Context, op *Operation, doc *models.Document) {
	s.check(ctx, op)
}

func (s *SlowOperation) check(ctx context.Context, op *Operation) {
	if op.StartedAt.IsZero() {
		return
	}
	elapsed := s.now().Sub(op.StartedAt)
	if elapsed <= s.threshold {
		return
	}
	logger := s.logger
	if logger == nil {
		logger = observability.FromContext(ctx)
	}
	logger.WithFields(map[string]interface{}{
		"table":       op.Table,
		"kind":        string(op.Kind),
		"document_id": op.DocumentID,
		"elapsed_ms":  elapsed.Milliseconds(),
	}).Warnf("slow %s on %s took %s", op.Kind, op.Table, elapsed)
}

// Names returns the names of the stages in a pipeline, in order
func (p *Pipeline) Names() []string {
	if p == nil {
		return nil
	}
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = stageName(s, i)
	}
	return names
}

// Builtins maps the names accepted in configuration to built-in hooks
func Builtins(sink audit.Logger, slowThreshold time.Duration, logger *observability.Logger) map[string]Middleware {
	return map[string]Middleware{
		"sanitize":       NewSanitize(),
		"audit":          NewAuditLog(sink),
		"slow_operation": NewSlowOperation(slowThreshold, logger),
	}
}

// FromNames builds a pipeline from configured built-in names, in order
func FromNames(names []string, builtins map[string]Middleware, opts ...Option) (*Pipeline, error) {
	stages := make([]Middleware, 0, len(names))
	for _, name := range names {
		m, ok := builtins[name]
		if !ok {
			known := make([]string, 0, len(builtins))
			for k := range builtins {
				known = append(known, k)
			}
			sort.Strings(known)
			return nil, &UnknownHookError{Name: name, Known: known}
		}
		stages = append(stages, m)
	}
	return NewPipeline(stages, opts...), nil
}

// UnknownHookError reports a configured hook name with no implementation
type UnknownHookError struct {
	Name  string
	Known []string
}

func (e *UnknownHookError) Error() string {
	return "unknown hook " + e.Name + " (known: " + strings.Join(e.Known, ", ") + ")"
}
