package crud

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/1qh/nexvex/pkg/apperr"
	"github.com/1qh/nexvex/pkg/contextkeys"
	"github.com/1qh/nexvex/pkg/hooks"
	"github.com/1qh/nexvex/pkg/models"
	"github.com/1qh/nexvex/pkg/ratelimit"
	"github.com/1qh/nexvex/pkg/rbac"
	"github.com/1qh/nexvex/pkg/storage"
)

var tracer = otel.Tracer("nexvex/crud")

// Operation names used for spans, metrics and rate limit keys
const (
	opList         = "list"
	opRead         = "read"
	opCreate       = "create"
	opUpdate       = "update"
	opRemove       = "remove"
	opRestore      = "restore"
	opBulkCreate   = "bulk_create"
	opBulkUpdate   = "bulk_update"
	opBulkRemove   = "bulk_remove"
	opEditors      = "editors"
	opAddEditor    = "add_editor"
	opRemoveEditor = "remove_editor"
	opSetEditors   = "set_editors"
)

type tableHandlers struct {
	f     *Factory
	table string
	opts  Options
}

// instrument wraps one handler call in a span and records its outcome
func instrument[T any](ctx context.Context, t *tableHandlers, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	ctx, span := tracer.Start(ctx, "crud."+op,
		trace.WithAttributes(
			attribute.String("crud.table", t.table),
			attribute.String("crud.operation", op),
		),
	)
	defer span.End()

	start := t.f.now()
	out, err := fn(ctx)
	t.f.metrics.RecordOperation(t.table, op, t.f.now().Sub(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(apperr.CodeOf(err)))
	}
	return out, err
}

func caller(ctx context.Context) (string, error) {
	userID := contextkeys.GetUserID(ctx)
	if userID == "" {
		return "", apperr.New(apperr.CodeNotAuthenticated)
	}
	return userID, nil
}

func requireField(name, value string) error {
	if value == "" {
		return apperr.Validation(map[string]string{name: "is required"})
	}
	return nil
}

// throttle counts one write against the table's rate limit
func (t *tableHandlers) throttle(ctx context.Context, userID, op string) error {
	if t.opts.RateLimit == nil {
		return nil
	}
	return ratelimit.Enforce(ctx, t.f.limiter, ratelimit.Key(userID, t.table, op), *t.opts.RateLimit)
}

func (t *tableHandlers) operation(kind hooks.Kind, userID, orgID, docID string) *hooks.Operation {
	return &hooks.Operation{
		Table:      t.table,
		Kind:       kind,
		UserID:     userID,
		OrgID:      orgID,
		DocumentID: docID,
		StartedAt:  t.f.now(),
	}
}

func (t *tableHandlers) load(ctx context.Context, tx storage.Tx, id string) (*models.Document, error) {
	doc, err := tx.GetDocument(ctx, t.table, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperr.NotFound(t.table)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", t.table, err)
	}
	return doc, nil
}

// loadLive loads a document that is not soft-deleted
func (t *tableHandlers) loadLive(ctx context.Context, tx storage.Tx, id string) (*models.Document, error) {
	doc, err := t.load(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if doc.Deleted {
		return nil, apperr.NotFound(t.table)
	}
	return doc, nil
}

// loadInOrg loads a live document and hides documents of other organizations
func (t *tableHandlers) loadInOrg(ctx context.Context, tx storage.Tx, orgID, id string) (*models.Document, error) {
	doc, err := t.loadLive(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if doc.OrgID != orgID {
		return nil, apperr.NotFound(t.table)
	}
	return doc, nil
}

func (t *tableHandlers) role(ctx context.Context, tx storage.Tx, orgID, userID string) (rbac.Role, error) {
	role, _, err := t.f.resolver.Resolve(ctx, tx, orgID, userID)
	return role, err
}

// checkWrite applies the update rule to doc. With aclFrom, a caller denied
// on doc itself is granted by the same rule on the parent document.
func (t *tableHandlers) checkWrite(ctx context.Context, tx storage.Tx, role rbac.Role, userID string, doc *models.Document) error {
	access := rbac.Access{Role: role, Operation: rbac.OpUpdate, UserID: userID, Resource: doc, ACL: t.opts.ACL}
	if rbac.CanAccess(access) {
		return nil
	}
	if t.opts.ACLFrom != nil && role.AtLeast(rbac.RoleMember) {
		parent, err := t.parent(ctx, tx, doc)
		if err != nil {
			return err
		}
		if parent != nil && rbac.CanAccess(rbac.Access{
			Role:      role,
			Operation: rbac.OpUpdate,
			UserID:    userID,
			Resource:  parent,
			ACL:       true,
		}) {
			return nil
		}
	}
	return rbac.Check(access)
}

// parent returns the live parent named by aclFrom, or nil when there is none
func (t *tableHandlers) parent(ctx context.Context, tx storage.Tx, doc *models.Document) (*models.Document, error) {
	id, ok := doc.StringField(t.opts.ACLFrom.Field)
	if !ok {
		return nil, nil
	}
	parent, err := tx.GetDocument(ctx, t.opts.ACLFrom.Table, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load parent %s: %w", t.opts.ACLFrom.Table, err)
	}
	if parent.OrgID != doc.OrgID || parent.Deleted {
		return nil, nil
	}
	return parent, nil
}

// validateData rejects payload keys that address typed columns
func validateData(prefix string, data map[string]any) error {
	fields := make(map[string]string)
	for k := range data {
		switch {
		case k == "":
			fields[prefix+"data"] = "field names must not be empty"
		case models.IsReservedField(k):
			fields[prefix+k] = "is a reserved field"
		}
	}
	if len(fields) > 0 {
		return apperr.Validation(fields)
	}
	return nil
}

func (t *tableHandlers) checkBulkSize(field string, n int) error {
	switch {
	case n == 0:
		return apperr.Validation(map[string]string{field: "at least one item is required"})
	case n > t.f.maxBulk:
		return apperr.Validation(map[string]string{field: fmt.Sprintf("at most %d items are allowed", t.f.maxBulk)})
	}
	return nil
}

// apply merges patch into a copy of prev; nil values remove keys
func (t *tableHandlers) apply(prev *models.Document, patch map[string]any) *models.Document {
	next := prev.Clone()
	for k, v := range patch {
		if v == nil {
			delete(next.Data, k)
			continue
		}
		next.Data[k] = v
	}
	next.UpdatedAt = models.NextStamp(prev.UpdatedAt, t.f.now())
	return next
}

func (t *tableHandlers) list(ctx context.Context, req ListRequest) ([]*models.Document, error) {
	return instrument(ctx, t, opList, func(ctx context.Context) ([]*models.Document, error) {
		userID, err := caller(ctx)
		if err != nil {
			return nil, err
		}
		if err := requireField("org_id", req.OrgID); err != nil {
			return nil, err
		}

		var docs []*models.Document
		err = t.f.store.WithTx(ctx, func(tx storage.Tx) error {
			role, err := t.role(ctx, tx, req.OrgID, userID)
			if err != nil {
				return err
			}
			if err := rbac.Check(rbac.Access{Role: role, Operation: rbac.OpList, UserID: userID}); err != nil {
				return err
			}
			includeDeleted := req.IncludeDeleted && t.opts.SoftDelete
			if includeDeleted {
				if err := rbac.Require(role, rbac.RoleAdmin); err != nil {
					return err
				}
			}

			docs, err = tx.ListDocuments(ctx, storage.DocumentFilter{
				Table:          t.table,
				OrgID:          req.OrgID,
				IncludeDeleted: includeDeleted,
				Where:          req.Where,
				Limit:          req.Limit,
			})
			if err != nil {
				return fmt.Errorf("failed to list %s: %w", t.table, err)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		if docs == nil {
			docs = []*models.Document{}
		}
		return docs, nil
	})
}

func (t *tableHandlers) read(ctx context.Context, req ReadRequest) (*models.Document, error) {
	return instrument(ctx, t, opRead, func(ctx context.Context) (*models.Document, error) {
		userID, err := caller(ctx)
		if err != nil {
			return nil, err
		}

		var doc *models.Document
		err = t.f.store.WithTx(ctx, func(tx storage.Tx) error {
			var err error
			if doc, err = t.load(ctx, tx, req.ID); err != nil {
				return err
			}
			role, err := t.role(ctx, tx, doc.OrgID, userID)
			if err != nil {
				return err
			}
			if err := rbac.Check(rbac.Access{Role: role, Operation: rbac.OpRead, UserID: userID, Resource: doc}); err != nil {
				return err
			}
			if doc.Deleted {
				if !req.IncludeDeleted {
					return apperr.NotFound(t.table)
				}
				return rbac.Require(role, rbac.RoleAdmin)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		return doc, nil
	})
}

func (t *tableHandlers) create(ctx context.Context, req CreateRequest) (*models.Document, error) {
	return instrument(ctx, t, opCreate, func(ctx context.Context) (*models.Document, error) {
		userID, err := caller(ctx)
		if err != nil {
			return nil, err
		}
		if err := requireField("org_id", req.OrgID); err != nil {
			return nil, err
		}
		if err := t.throttle(ctx, userID, opCreate); err != nil {
			return nil, err
		}

		op := t.operation(hooks.KindCreate, userID, req.OrgID, "")
		var doc *models.Document
		err = t.f.store.WithTx(ctx, func(tx storage.Tx) error {
			role, err := t.role(ctx, tx, req.OrgID, userID)
			if err != nil {
				return err
			}
			if err := rbac.Check(rbac.Access{Role: role, Operation: rbac.OpCreate, UserID: userID}); err != nil {
				return err
			}
			doc, err = t.newDocument(ctx, tx, op, "", req.Data)
			return err
		})
		if err != nil {
			return nil, err
		}

		t.f.pipeline.AfterCreate(ctx, op, doc)
		return doc, nil
	})
}

// newDocument runs the create hooks on data and inserts the document
func (t *tableHandlers) newDocument(ctx context.Context, tx storage.Tx, op *hooks.Operation, prefix string, data map[string]any) (*models.Document, error) {
	data, err := t.f.pipeline.BeforeCreate(ctx, op, models.CloneData(data))
	if err != nil {
		return nil, err
	}
	if err := validateData(prefix, data); err != nil {
		return nil, err
	}
	if data == nil {
		data = map[string]any{}
	}

	now := t.f.now().UTC().Truncate(time.Millisecond)
	doc := &models.Document{
		ID:        t.f.newID(),
		Table:     t.table,
		OrgID:     op.OrgID,
		UserID:    op.UserID,
		Data:      data,
		CreatedAt: now,
		UpdatedAt: now,
	}
	op.DocumentID = doc.ID
	if err := tx.InsertDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to insert %s: %w", t.table, err)
	}
	return doc, nil
}

func (t *tableHandlers) update(ctx context.Context, req UpdateRequest) (*models.Document, error) {
	return instrument(ctx, t, opUpdate, func(ctx context.Context) (*models.Document, error) {
		userID, err := caller(ctx)
		if err != nil {
			return nil, err
		}
		if err := t.throttle(ctx, userID, opUpdate); err != nil {
			return nil, err
		}

		op := t.operation(hooks.KindUpdate, userID, "", req.ID)
		var prev, next *models.Document
		err = t.f.store.WithTx(ctx, func(tx storage.Tx) error {
			var err error
			if prev, err = t.loadLive(ctx, tx, req.ID); err != nil {
				return err
			}
			op.OrgID = prev.OrgID
			role, err := t.role(ctx, tx, prev.OrgID, userID)
			if err != nil {
				return err
			}
			if err := t.checkWrite(ctx, tx, role, userID, prev); err != nil {
				return err
			}
			if req.ExpectedUpdatedAt != nil && !req.ExpectedUpdatedAt.Equal(prev.UpdatedAt) {
				return apperr.Newf(apperr.CodeConflict, "%s %s was modified at %s",
					t.table, prev.ID, prev.UpdatedAt.Format(time.RFC3339Nano))
			}
			next, err = t.patch(ctx, tx, op, "", prev, req.Data)
			return err
		})
		if err != nil {
			return nil, err
		}

		t.f.pipeline.AfterUpdate(ctx, op, prev, next)
		return next, nil
	})
}

// patch runs the update hooks on data and writes the patched document
func (t *tableHandlers) patch(ctx context.Context, tx storage.Tx, op *hooks.Operation, prefix string, prev *models.Document, data map[string]any) (*models.Document, error) {
	data, err := t.f.pipeline.BeforeUpdate(ctx, op, prev, models.CloneData(data))
	if err != nil {
		return nil, err
	}
	if err := validateData(prefix, data); err != nil {
		return nil, err
	}

	next := t.apply(prev, data)
	if op.Kind == hooks.KindRestore {
		next.Deleted = false
	}
	if err := tx.UpdateDocument(ctx, next); err != nil {
		return nil, fmt.Errorf("failed to update %s: %w", t.table, err)
	}
	return next, nil
}

// checkRemove applies the removal rule: the update rule for soft deletes,
// admin for hard deletes
func (t *tableHandlers) checkRemove(ctx context.Context, tx storage.Tx, role rbac.Role, userID string, doc *models.Document) error {
	if t.opts.SoftDelete {
		return t.checkWrite(ctx, tx, role, userID, doc)
	}
	return rbac.Check(rbac.Access{Role: role, Operation: rbac.OpDelete, UserID: userID, Resource: doc})
}

// erase soft-deletes or deletes doc after the delete hooks approve
func (t *tableHandlers) erase(ctx context.Context, tx storage.Tx, op *hooks.Operation, doc *models.Document) (*models.Document, error) {
	if err := t.f.pipeline.BeforeDelete(ctx, op, doc); err != nil {
		return nil, err
	}
	if !t.opts.SoftDelete {
		if err := tx.DeleteDocument(ctx, t.table, doc.ID); err != nil {
			return nil, fmt.Errorf("failed to delete %s: %w", t.table, err)
		}
		return doc, nil
	}

	removed := doc.Clone()
	removed.Deleted = true
	removed.UpdatedAt = models.NextStamp(doc.UpdatedAt, t.f.now())
	if err := tx.UpdateDocument(ctx, removed); err != nil {
		return nil, fmt.Errorf("failed to soft delete %s: %w", t.table, err)
	}
	return removed, nil
}

func (t *tableHandlers) remove(ctx context.Context, id string) (*models.Document, error) {
	return instrument(ctx, t, opRemove, func(ctx context.Context) (*models.Document, error) {
		userID, err := caller(ctx)
		if err != nil {
			return nil, err
		}
		if err := t.throttle(ctx, userID, opRemove); err != nil {
			return nil, err
		}

		op := t.operation(hooks.KindDelete, userID, "", id)
		var removed *models.Document
		err = t.f.store.WithTx(ctx, func(tx storage.Tx) error {
			doc, err := t.loadLive(ctx, tx, id)
			if err != nil {
				return err
			}
			op.OrgID = doc.OrgID
			role, err := t.role(ctx, tx, doc.OrgID, userID)
			if err != nil {
				return err
			}
			if err := t.checkRemove(ctx, tx, role, userID, doc); err != nil {
				return err
			}
			removed, err = t.erase(ctx, tx, op, doc)
			return err
		})
		if err != nil {
			return nil, err
		}

		t.f.pipeline.AfterDelete(ctx, op, removed)
		return removed, nil
	})
}

func (t *tableHandlers) restore(ctx context.Context, id string) (*models.Document, error) {
	return instrument(ctx, t, opRestore, func(ctx context.Context) (*models.Document, error) {
		userID, err := caller(ctx)
		if err != nil {
			return nil, err
		}
		if err := t.throttle(ctx, userID, opRestore); err != nil {
			return nil, err
		}

		op := t.operation(hooks.KindRestore, userID, "", id)
		var prev, next *models.Document
		err = t.f.store.WithTx(ctx, func(tx storage.Tx) error {
			var err error
			if prev, err = t.load(ctx, tx, id); err != nil {
				return err
			}
			op.OrgID = prev.OrgID
			role, err := t.role(ctx, tx, prev.OrgID, userID)
			if err != nil {
				return err
			}
			if err := rbac.Check(rbac.Access{Role: role, Operation: rbac.OpRestore, UserID: userID, Resource: prev}); err != nil {
				return err
			}
			if !prev.Deleted {
				next = prev
				return nil
			}
			next, err = t.patch(ctx, tx, op, "", prev, nil)
			return err
		})
		if err != nil {
			return nil, err
		}

		if next != prev {
			t.f.pipeline.AfterUpdate(ctx, op, prev, next)
		}
		return next, nil
	})
}

func (t *tableHandlers) bulkCreate(ctx context.Context, req BulkCreateRequest) ([]*models.Document, error) {
	return instrument(ctx, t, opBulkCreate, func(ctx context.Context) ([]*models.Document, error) {
		userID, err := caller(ctx)
		if err != nil {
			return nil, err
		}
		if err := requireField("org_id", req.OrgID); err != nil {
			return nil, err
		}
		if err := t.checkBulkSize("items", len(req.Items)); err != nil {
			return nil, err
		}
		if err := t.throttle(ctx, userID, opBulkCreate); err != nil {
			return nil, err
		}

		var (
			docs []*models.Document
			ops  []*hooks.Operation
		)
		err = t.f.store.WithTx(ctx, func(tx storage.Tx) error {
			docs, ops = docs[:0], ops[:0]
			role, err := t.role(ctx, tx, req.OrgID, userID)
			if err != nil {
				return err
			}
			if err := rbac.Check(rbac.Access{Role: role, Operation: rbac.OpBulk, UserID: userID}); err != nil {
				return err
			}
			for i, item := range req.Items {
				op := t.operation(hooks.KindCreate, userID, req.OrgID, "")
				doc, err := t.newDocument(ctx, tx, op, fmt.Sprintf("items[%d].", i), item)
				if err != nil {
					return err
				}
				docs = append(docs, doc)
				ops = append(ops, op)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}

		for i, doc := range docs {
			t.f.pipeline.AfterCreate(ctx, ops[i], doc)
		}
		return docs, nil
	})
}

// loadBulk loads every id of a bulk request from orgID. Any id that is
// missing, deleted or owned by another organization fails the whole
// request as NOT_FOUND.
func (t *tableHandlers) loadBulk(ctx context.Context, tx storage.Tx, orgID string, ids []string) ([]*models.Document, error) {
	docs := make([]*models.Document, 0, len(ids))
	for _, id := range ids {
		doc, err := t.loadInOrg(ctx, tx, orgID, id)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (t *tableHandlers) bulkUpdate(ctx context.Context, req BulkUpdateRequest) ([]*models.Document, error) {
	return instrument(ctx, t, opBulkUpdate, func(ctx context.Context) ([]*models.Document, error) {
		userID, err := caller(ctx)
		if err != nil {
			return nil, err
		}
		if err := requireField("org_id", req.OrgID); err != nil {
			return nil, err
		}
		ids := uniqueStrings(req.IDs)
		if err := t.checkBulkSize("ids", len(ids)); err != nil {
			return nil, err
		}
		if err := t.throttle(ctx, userID, opBulkUpdate); err != nil {
			return nil, err
		}

		var (
			prevs, nexts []*models.Document
			ops          []*hooks.Operation
		)
		err = t.f.store.WithTx(ctx, func(tx storage.Tx) error {
			nexts, ops = nexts[:0], ops[:0]
			role, err := t.role(ctx, tx, req.OrgID, userID)
			if err != nil {
				return err
			}
			if err := rbac.Check(rbac.Access{Role: role, Operation: rbac.OpBulk, UserID: userID}); err != nil {
				return err
			}
			if prevs, err = t.loadBulk(ctx, tx, req.OrgID, ids); err != nil {
				return err
			}
			for i, prev := range prevs {
				op := t.operation(hooks.KindUpdate, userID, req.OrgID, prev.ID)
				next, err := t.patch(ctx, tx, op, fmt.Sprintf("ids[%d].", i), prev, req.Data)
				if err != nil {
					return err
				}
				nexts = append(nexts, next)
				ops = append(ops, op)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}

		for i, next := range nexts {
			t.f.pipeline.AfterUpdate(ctx, ops[i], prevs[i], next)
		}
		return nexts, nil
	})
}

func (t *tableHandlers) bulkRemove(ctx context.Context, req BulkRemoveRequest) (int, error) {
	return instrument(ctx, t, opBulkRemove, func(ctx context.Context) (int, error) {
		userID, err := caller(ctx)
		if err != nil {
			return 0, err
		}
		if err := requireField("org_id", req.OrgID); err != nil {
			return 0, err
		}
		ids := uniqueStrings(req.IDs)
		if err := t.checkBulkSize("ids", len(ids)); err != nil {
			return 0, err
		}
		if err := t.throttle(ctx, userID, opBulkRemove); err != nil {
			return 0, err
		}

		var (
			removed []*models.Document
			ops     []*hooks.Operation
		)
		err = t.f.store.WithTx(ctx, func(tx storage.Tx) error {
			removed, ops = removed[:0], ops[:0]
			role, err := t.role(ctx, tx, req.OrgID, userID)
			if err != nil {
				return err
			}
			if err := rbac.Check(rbac.Access{Role: role, Operation: rbac.OpBulk, UserID: userID}); err != nil {
				return err
			}
			docs, err := t.loadBulk(ctx, tx, req.OrgID, ids)
			if err != nil {
				return err
			}
			for _, doc := range docs {
				op := t.operation(hooks.KindDelete, userID, req.OrgID, doc.ID)
				gone, err := t.erase(ctx, tx, op, doc)
				if err != nil {
					return err
				}
				removed = append(removed, gone)
				ops = append(ops, op)
			}
			return nil
		})
		if err != nil {
			return 0, err
		}

		for i, doc := range removed {
			t.f.pipeline.AfterDelete(ctx, ops[i], doc)
		}
		return len(removed), nil
	})
}

func (t *tableHandlers) editors(ctx context.Context, id string) ([]string, error) {
	return instrument(ctx, t, opEditors, func(ctx context.Context) ([]string, error) {
		userID, err := caller(ctx)
		if err != nil {
			return nil, err
		}

		var editors []string
		err = t.f.store.WithTx(ctx, func(tx storage.Tx) error {
			doc, err := t.loadLive(ctx, tx, id)
			if err != nil {
				return err
			}
			role, err := t.role(ctx, tx, doc.OrgID, userID)
			if err != nil {
				return err
			}
			if err := rbac.Check(rbac.Access{Role: role, Operation: rbac.OpRead, UserID: userID, Resource: doc}); err != nil {
				return err
			}
			editors = append([]string{}, doc.Editors...)
			return nil
		})
		if err != nil {
			return nil, err
		}
		return editors, nil
	})
}

func (t *tableHandlers) addEditor(ctx context.Context, req EditorRequest) (*models.Document, error) {
	if err := requireField("user_id", req.UserID); err != nil {
		return nil, err
	}
	return t.changeEditors(ctx, opAddEditor, req.ID, func(ctx context.Context, tx storage.Tx, doc *models.Document) ([]string, error) {
		if err := t.requireMember(ctx, tx, doc.OrgID, req.UserID); err != nil {
			return nil, err
		}
		return uniqueStrings(append(append([]string{}, doc.Editors...), req.UserID)), nil
	})
}

func (t *tableHandlers) removeEditor(ctx context.Context, req EditorRequest) (*models.Document, error) {
	if err := requireField("user_id", req.UserID); err != nil {
		return nil, err
	}
	return t.changeEditors(ctx, opRemoveEditor, req.ID, func(ctx context.Context, tx storage.Tx, doc *models.Document) ([]string, error) {
		editors := make([]string, 0, len(doc.Editors))
		for _, e := range doc.Editors {
			if e != req.UserID {
				editors = append(editors, e)
			}
		}
		return editors, nil
	})
}

func (t *tableHandlers) setEditors(ctx context.Context, req SetEditorsRequest) (*models.Document, error) {
	return t.changeEditors(ctx, opSetEditors, req.ID, func(ctx context.Context, tx storage.Tx, doc *models.Document) ([]string, error) {
		editors := uniqueStrings(req.UserIDs)
		for _, userID := range editors {
			if err := t.requireMember(ctx, tx, doc.OrgID, userID); err != nil {
				return nil, err
			}
		}
		return editors, nil
	})
}

// changeEditors rewrites a document's editor list. Unchanged lists are not
// written and do not run hooks.
func (t *tableHandlers) changeEditors(ctx context.Context, name, id string, edit func(ctx context.Context, tx storage.Tx, doc *models.Document) ([]string, error)) (*models.Document, error) {
	return instrument(ctx, t, name, func(ctx context.Context) (*models.Document, error) {
		userID, err := caller(ctx)
		if err != nil {
			return nil, err
		}
		if err := t.throttle(ctx, userID, opEditors); err != nil {
			return nil, err
		}

		op := t.operation(hooks.KindEditors, userID, "", id)
		var prev, next *models.Document
		err = t.f.store.WithTx(ctx, func(tx storage.Tx) error {
			var err error
			if prev, err = t.loadLive(ctx, tx, id); err != nil {
				return err
			}
			op.OrgID = prev.OrgID
			role, err := t.role(ctx, tx, prev.OrgID, userID)
			if err != nil {
				return err
			}
			if err := rbac.Check(rbac.Access{Role: role, Operation: rbac.OpManageEditors, UserID: userID, Resource: prev}); err != nil {
				return err
			}

			editors, err := edit(ctx, tx, prev)
			if err != nil {
				return err
			}
			if sameStrings(prev.Editors, editors) {
				next = prev
				return nil
			}
			next = prev.Clone()
			next.Editors = editors
			next.UpdatedAt = models.NextStamp(prev.UpdatedAt, t.f.now())
			if err := tx.UpdateDocument(ctx, next); err != nil {
				return fmt.Errorf("failed to update %s editors: %w", t.table, err)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}

		if next != prev {
			t.f.pipeline.AfterUpdate(ctx, op, prev, next)
		}
		return next, nil
	})
}

// requireMember fails with NOT_ORG_MEMBER unless userID holds a role in orgID
func (t *tableHandlers) requireMember(ctx context.Context, tx storage.Tx, orgID, userID string) error {
	role, err := t.role(ctx, tx, orgID, userID)
	if err != nil {
		return err
	}
	if role == rbac.RoleNone {
		return apperr.Newf(apperr.CodeNotOrgMember, "user %s is not a member of the organization", userID)
	}
	return nil
}

// uniqueStrings drops empty and repeated values, keeping first occurrences
func uniqueStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func sameStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
