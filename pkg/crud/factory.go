package crud

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/1qh/nexvex/pkg/cascade"
	"github.com/1qh/nexvex/pkg/hooks"
	"github.com/1qh/nexvex/pkg/observability"
	"github.com/1qh/nexvex/pkg/ratelimit"
	"github.com/1qh/nexvex/pkg/rbac"
	"github.com/1qh/nexvex/pkg/storage"
)

// Factory builds the handlers of org-scoped tables over one store
type Factory struct {
	store    storage.Store
	resolver *rbac.Resolver
	limiter  ratelimit.Limiter
	pipeline *hooks.Pipeline
	metrics  *observability.Metrics
	logger   *observability.Logger
	now      func() time.Time
	newID    func() string
	maxBulk  int

	mu     sync.RWMutex
	tables map[string]*Handlers
	order  []string
}

// FactoryOption configures a Factory
type FactoryOption func(*Factory)

// WithLimiter sets the limiter used by tables with a rate limit
func WithLimiter(l ratelimit.Limiter) FactoryOption {
	return func(f *Factory) {
		f.limiter = l
	}
}

// WithHooks sets the hook pipeline run around every mutation
func WithHooks(p *hooks.Pipeline) FactoryOption {
	return func(f *Factory) {
		f.pipeline = p
	}
}

// WithMetrics records operation counters and durations
func WithMetrics(m *observability.Metrics) FactoryOption {
	return func(f *Factory) {
		f.metrics = m
	}
}

// WithLogger sets the factory logger
func WithLogger(l *observability.Logger) FactoryOption {
	return func(f *Factory) {
		f.logger = l
	}
}

// WithClock overrides the clock used for timestamps
func WithClock(now func() time.Time) FactoryOption {
	return func(f *Factory) {
		f.now = now
	}
}

// WithIDGenerator overrides document id generation
func WithIDGenerator(newID func() string) FactoryOption {
	return func(f *Factory) {
		f.newID = newID
	}
}

// WithMaxBulkItems sets the bulk request cap
func WithMaxBulkItems(n int) FactoryOption {
	return func(f *Factory) {
		if n > 0 {
			f.maxBulk = n
		}
	}
}

// NewFactory creates a factory over store
func NewFactory(store storage.Store, opts ...FactoryOption) *Factory {
	f := &Factory{
		store:    store,
		resolver: rbac.NewResolver(),
		logger:   observability.Nop(),
		now:      time.Now,
		newID:    uuid.NewString,
		maxBulk:  DefaultMaxBulkItems,
		tables:   make(map[string]*Handlers),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Build generates the handlers of table. Each table can be built once.
func (f *Factory) Build(table string, opts Options) (*Handlers, error) {
	if table == "" {
		return nil, fmt.Errorf("table name is required")
	}
	if err := opts.validate(); err != nil {
		return nil, fmt.Errorf("invalid options for table %s: %w", table, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tables[table]; ok {
		return nil, fmt.Errorf("table %s is already built", table)
	}

	t := &tableHandlers{f: f, table: table, opts: opts}
	h := &Handlers{
		Table:      table,
		Options:    opts,
		List:       t.list,
		Read:       t.read,
		Create:     t.create,
		Update:     t.update,
		Remove:     t.remove,
		BulkCreate: t.bulkCreate,
		BulkRemove: t.bulkRemove,
		BulkUpdate: t.bulkUpdate,
	}
	if opts.ACL {
		h.AddEditor = t.addEditor
		h.RemoveEditor = t.removeEditor
		h.SetEditors = t.setEditors
		h.Editors = t.editors
	}
	if opts.SoftDelete {
		h.Restore = t.restore
	}

	f.tables[table] = h
	f.order = append(f.order, table)
	f.logger.WithFields(map[string]interface{}{
		"table":       table,
		"acl":         opts.ACL,
		"soft_delete": opts.SoftDelete,
	}).Debug("table handlers built")
	return h, nil
}

// Handlers returns the handlers built for table
func (f *Factory) Handlers(table string) (*Handlers, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	h, ok := f.tables[table]
	return h, ok
}

// Tables returns the built table names, sorted
func (f *Factory) Tables() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := append([]string(nil), f.order...)
	sort.Strings(out)
	return out
}

// CascadeTargets returns the cascade edges of every built table: the edge
// to the organization and one edge per declared child
func (f *Factory) CascadeTargets() []cascade.Edge {
	f.mu.RLock()
	defer f.mu.RUnlock()

	var edges []cascade.Edge
	for _, table := range f.order {
		edges = append(edges, cascade.OrgEdge(table))
		for _, c := range f.tables[table].Options.Cascade {
			edges = append(edges, cascade.Edge{Table: c.Table, ForeignKey: c.ForeignKey, Parent: table})
		}
	}
	return edges
}

// Validate checks references between built tables: aclFrom parents and
// cascade children must be built tables
func (f *Factory) Validate() error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, table := range f.order {
		opts := f.tables[table].Options
		if opts.ACLFrom != nil {
			if _, ok := f.tables[opts.ACLFrom.Table]; !ok {
				return fmt.Errorf("table %s inherits acl from unknown table %s", table, opts.ACLFrom.Table)
			}
		}
		for _, c := range opts.Cascade {
			if _, ok := f.tables[c.Table]; !ok {
				return fmt.Errorf("table %s cascades to unknown table %s", table, c.Table)
			}
		}
	}
	return nil
}
