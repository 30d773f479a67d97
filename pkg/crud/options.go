package crud

import (
	"context"
	"fmt"
	"time"

	"github.com/1qh/nexvex/pkg/models"
	"github.com/1qh/nexvex/pkg/ratelimit"
)

// DefaultMaxBulkItems caps the documents touched by one bulk request
const DefaultMaxBulkItems = 100

// ACLFrom inherits update permission from a parent document: the parent is
// the document of Table whose id is stored in the child's Field
type ACLFrom struct {
	Field string `yaml:"field" json:"field"`
	Table string `yaml:"table" json:"table"`
}

// Child declares a dependent table removed with its parent during
// organization removal
type Child struct {
	ForeignKey string `yaml:"foreignKey" json:"foreignKey"`
	Table      string `yaml:"table" json:"table"`
}

// Options configures one org-scoped table
type Options struct {
	ACL        bool             `yaml:"acl" json:"acl"`
	ACLFrom    *ACLFrom         `yaml:"aclFrom,omitempty" json:"aclFrom,omitempty"`
	Cascade    []Child          `yaml:"cascade,omitempty" json:"cascade,omitempty"`
	RateLimit  *ratelimit.Limit `yaml:"rateLimit,omitempty" json:"rateLimit,omitempty"`
	SoftDelete bool             `yaml:"softDelete" json:"softDelete"`
}

func (o Options) validate() error {
	if o.ACLFrom != nil && (o.ACLFrom.Field == "" || o.ACLFrom.Table == "") {
		return fmt.Errorf("aclFrom requires field and table")
	}
	for _, c := range o.Cascade {
		if c.ForeignKey == "" || c.Table == "" {
			return fmt.Errorf("cascade entries require foreignKey and table")
		}
	}
	if o.RateLimit != nil && (o.RateLimit.Max < 0 || o.RateLimit.Window < 0) {
		return fmt.Errorf("rate limit must not be negative")
	}
	return nil
}

// ListRequest lists the documents of one organization
type ListRequest struct {
	OrgID string `json:"org_id"`
	// IncludeDeleted returns soft-deleted documents too and requires admin
	IncludeDeleted bool `json:"include_deleted,omitempty"`
	// Where matches data fields by string equality
	Where map[string]string `json:"where,omitempty"`
	Limit int               `json:"limit,omitempty"`
}

// ReadRequest reads one document
type ReadRequest struct {
	ID             string `json:"id"`
	IncludeDeleted bool   `json:"include_deleted,omitempty"`
}

// CreateRequest creates a document in an organization
type CreateRequest struct {
	OrgID string         `json:"org_id"`
	Data  map[string]any `json:"data"`
}

// UpdateRequest patches a document. Keys set to null are removed. When
// ExpectedUpdatedAt is set the update fails with CONFLICT unless it equals
// the stored UpdatedAt.
type UpdateRequest struct {
	ID                string         `json:"id"`
	Data              map[string]any `json:"data"`
	ExpectedUpdatedAt *time.Time     `json:"expected_updated_at,omitempty"`
}

// BulkCreateRequest creates several documents in one transaction
type BulkCreateRequest struct {
	OrgID string           `json:"org_id"`
	Items []map[string]any `json:"items"`
}

// BulkUpdateRequest applies one patch to several documents in one transaction
type BulkUpdateRequest struct {
	OrgID string         `json:"org_id"`
	IDs   []string       `json:"ids"`
	Data  map[string]any `json:"data"`
}

// BulkRemoveRequest removes several documents in one transaction
type BulkRemoveRequest struct {
	OrgID string   `json:"org_id"`
	IDs   []string `json:"ids"`
}

// EditorRequest adds or removes one editor
type EditorRequest struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
}

// SetEditorsRequest replaces the editor list
type SetEditorsRequest struct {
	ID      string   `json:"id"`
	UserIDs []string `json:"user_ids"`
}

// Handlers are the operations generated for one table. List through
// BulkUpdate are always set. The editor operations are set only for tables
// with ACL and Restore only for tables with SoftDelete; otherwise they are nil.
type Handlers struct {
	Table   string
	Options Options

	List       func(ctx context.Context, req ListRequest) ([]*models.Document, error)
	Read       func(ctx context.Context, req ReadRequest) (*models.Document, error)
	Create     func(ctx context.Context, req CreateRequest) (*models.Document, error)
	Update     func(ctx context.Context, req UpdateRequest) (*models.Document, error)
	Remove     func(ctx context.Context, id string) (*models.Document, error)
	BulkCreate func(ctx context.Context, req BulkCreateRequest) ([]*models.Document, error)
	BulkRemove func(ctx context.Context, req BulkRemoveRequest) (int, error)
	BulkUpdate func(ctx context.Context, req BulkUpdateRequest) ([]*models.Document, error)

	AddEditor    func(ctx context.Context, req EditorRequest) (*models.Document, error)
	RemoveEditor func(ctx context.Context, req EditorRequest) (*models.Document, error)
	SetEditors   func(ctx context.Context, req SetEditorsRequest) (*models.Document, error)
	Editors      func(ctx context.Context, id string) ([]string, error)

	Restore func(ctx context.Context, id string) (*models.Document, error)
}
