package hooks

import (
	"context"
	"fmt"

	"github.com/1qh/nexvex/pkg/models"
	"github.com/1qh/nexvex/pkg/observability"
)

// Pipeline runs an ordered list of middlewares
type Pipeline struct {
	stages  []Middleware
	logger  *observability.Logger
	metrics *observability.Metrics
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithLogger sets the logger used for recovered after-hook panics
func WithLogger(logger *observability.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithMetrics counts recovered after-hook panics
func WithMetrics(metrics *observability.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = metrics
	}
}

// NewPipeline creates a pipeline. Nil stages are skipped.
func NewPipeline(stages []Middleware, opts ...Option) *Pipeline {
	p := &Pipeline{logger: observability.Nop()}
	for _, s := range stages {
		if s != nil {
			p.stages = append(p.stages, s)
		}
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Len returns the number of stages
func (p *Pipeline) Len() int {
	if p == nil {
		return 0
	}
	return len(p.stages)
}

func stageName(m Middleware, i int) string {
	if name := m.Name(); name != "" {
		return name
	}
	return fmt.Sprintf("hook[%d]", i)
}

// BeforeCreate chains data through every stage. The first error aborts.
func (p *Pipeline) BeforeCreate(ctx context.Context, op *Operation, data map[string]any) (map[string]any, error) {
	if p == nil {
		return data, nil
	}
	for _, s := range p.stages {
		var err error
		if data, err = s.BeforeCreate(ctx, op, data); err != nil {
			return nil, err
		}
	}
	return data, nil
}

// BeforeUpdate chains patch through every stage. The first error aborts.
func (p *Pipeline) BeforeUpdate(ctx context.Context, op *Operation, prev *models.Document, patch map[string]any) (map[string]any, error) {
	if p == nil {
		return patch, nil
	}
	for _, s := range p.stages {
		var err error
		if patch, err = s.BeforeUpdate(ctx, op, prev, patch); err != nil {
			return nil, err
		}
	}
	return patch, nil
}

// BeforeDelete runs every stage. The first error aborts.
func (p *Pipeline) BeforeDelete(ctx context.Context, op *Operation, doc *models.Document) error {
	if p == nil {
		return nil
	}
	for _, s := range p.stages {
		if err := s.BeforeDelete(ctx, op, doc); err != nil {
			return err
		}
	}
	return nil
}

// AfterCreate notifies every stage; panics are recovered and logged
func (p *Pipeline) AfterCreate(ctx context.Context, op *Operation, doc *models.Document) {
	p.observe(ctx, op, func(s Middleware) { s.AfterCreate(ctx, op, doc) })
}

// AfterUpdate notifies every stage; panics are recovered and logged
func (p *Pipeline) AfterUpdate(ctx context.Context, op *Operation, prev, next *models.Document) {
	p.observe(ctx, op, func(s Middleware) { s.AfterUpdate(ctx, op, prev, next) })
}

// AfterDelete notifies every stage; panics are recovered and logged
func (p *Pipeline) AfterDelete(ctx context.Context, op *Operation, doc *models.Document) {
	p.observe(ctx, op, func(s Middleware) { s.AfterDelete(ctx, op, doc) })
}

func (p *Pipeline) observe(ctx context.Context, op *Operation, call func(Middleware)) {
	if p == nil {
		return
	}
	for i, s := range p.stages {
		p.safeCall(op, stageName(s, i), func() { call(s) })
	}
}

func (p *Pipeline) safeCall(op *Operation, name string, fn func()) {
	logger := p.logger.WithFields(map[string]interface{}{
		"hook":  name,
		"table": op.Table,
		"kind":  string(op.Kind),
	})
	defer observability.RecoverPanicWithCallback(logger, "after hook", func(r interface{}) {
		p.metrics.RecordHookPanic(name)
	})
	fn()
}
