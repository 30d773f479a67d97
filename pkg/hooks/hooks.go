package hooks

import (
	"context"
	"time"

	"github.com/1qh/nexvex/pkg/models"
)

// Kind is the kind of mutation a hook observes
type Kind string

const (
	KindCreate  Kind = "create"
	KindUpdate  Kind = "update"
	KindDelete  Kind = "delete"
	KindRestore Kind = "restore"
	KindEditors Kind = "editors"
)

// Operation describes the mutation being run
type Operation struct {
	Table      string
	Kind       Kind
	UserID     string
	OrgID      string
	DocumentID string
	StartedAt  time.Time
}

// Middleware is one stage of the hook pipeline. Implementations embed Base
// and override the methods they need; the interface cannot be satisfied
// without Base.
//
// Before hooks may rewrite the payload and abort the request by returning
// an error. After hooks observe committed state and cannot fail the request.
type Middleware interface {
	Name() string

	BeforeCreate(ctx context.Context, op *Operation, data map[string]any) (map[string]any, error)
	AfterCreate(ctx context.Context, op *Operation, doc *models.Document)

	BeforeUpdate(ctx context.Context, op *Operation, prev *models.Document, patch map[string]any) (map[string]any, error)
	AfterUpdate(ctx context.Context, op *Operation, prev, next *models.Document)

	BeforeDelete(ctx context.Context, op *Operation, doc *models.Document) error
	AfterDelete(ctx context.Context, op *Operation, doc *models.Document)

	base()
}

// Base provides no-op defaults for every Middleware method
type Base struct{}

func (Base) base() {}

// Name returns an empty name; override it for readable logs
func (Base) Name() string { return "" }

func (Base) BeforeCreate(ctx context.Context, op *Operation, data map[string]any) (map[string]any, error) {
	return data, nil
}

func (Base) AfterCreate(ctx context.Context, op *Operation, doc *models.Document) {}

func (Base) BeforeUpdate(ctx context.Context, op *Operation, prev *models.Document, patch map[string]any) (map[string]any, error) {
	return patch, nil
}

func (Base) AfterUpdate(ctx context.Context, op *Operation, prev, next *models.Document) {}

func (Base) BeforeDelete(ctx context.Context, op *Operation, doc *models.Document) error {
	return nil
}

func (Base) AfterDelete(ctx context.Context, op *Operation, doc *models.Document) {}
