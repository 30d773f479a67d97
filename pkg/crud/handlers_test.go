package crud

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1qh/nexvex/pkg/apperr"
	"github.com/1qh/nexvex/pkg/hooks"
	"github.com/1qh/nexvex/pkg/models"
	"github.com/1qh/nexvex/pkg/observability"
	"github.com/1qh/nexvex/pkg/ratelimit"
	"github.com/1qh/nexvex/pkg/storage"
)

func build(t *testing.T, store storage.Store, table string, opts Options, fopts ...FactoryOption) *Handlers {
	t.Helper()
	h, err := newFactory(store, fopts...).Build(table, opts)
	require.NoError(t, err)
	return h
}

func TestHandlers_CreateReadList(t *testing.T) {
	h := build(t, seed(t), "notes", Options{})

	doc, err := h.Create(as("member"), CreateRequest{OrgID: "o1", Data: map[string]any{"title": "hello"}})
	require.NoError(t, err)
	assert.Equal(t, "d1", doc.ID)
	assert.Equal(t, "notes", doc.Table)
	assert.Equal(t, "o1", doc.OrgID)
	assert.Equal(t, "member", doc.UserID)
	assert.Equal(t, doc.CreatedAt, doc.UpdatedAt)

	got, err := h.Read(as("member2"), ReadRequest{ID: doc.ID})
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Data["title"])

	docs, err := h.List(as("owner"), ListRequest{OrgID: "o1"})
	require.NoError(t, err)
	assert.Len(t, docs, 1)

	docs, err = h.List(as("member"), ListRequest{OrgID: "o1", Where: map[string]string{"title": "other"}})
	require.NoError(t, err)
	assert.Empty(t, docs)
	assert.NotNil(t, docs)
}

func TestHandlers_NonMembers(t *testing.T) {
	h := build(t, seed(t), "notes", Options{})
	doc, err := h.Create(as("member"), CreateRequest{OrgID: "o1"})
	require.NoError(t, err)

	_, err = h.Create(as("other"), CreateRequest{OrgID: "o1"})
	assert.True(t, apperr.Is(err, apperr.CodeNotOrgMember))
	_, err = h.Read(as("other"), ReadRequest{ID: doc.ID})
	assert.True(t, apperr.Is(err, apperr.CodeNotOrgMember))
	_, err = h.List(as("other"), ListRequest{OrgID: "o1"})
	assert.True(t, apperr.Is(err, apperr.CodeNotOrgMember))
	_, err = h.List(as("member"), ListRequest{OrgID: "missing"})
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))
}

func TestHandlers_ReservedFieldsRejected(t *testing.T) {
	h := build(t, seed(t), "notes", Options{})

	_, err := h.Create(as("member"), CreateRequest{OrgID: "o1", Data: map[string]any{"orgId": "o2", "title": "x"}})
	e, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.CodeValidationFailed, e.Code)
	assert.Contains(t, e.Fields, "orgId")

	doc, err := h.Create(as("member"), CreateRequest{OrgID: "o1"})
	require.NoError(t, err)
	_, err = h.Update(as("member"), UpdateRequest{ID: doc.ID, Data: map[string]any{"userId": "member2"}})
	assert.True(t, apperr.Is(err, apperr.CodeValidationFailed))
}

func TestHandlers_UpdatePermissions(t *testing.T) {
	h := build(t, seed(t), "notes", Options{ACL: true})
	doc, err := h.Create(as("member"), CreateRequest{OrgID: "o1", Data: map[string]any{"title": "a"}})
	require.NoError(t, err)

	tests := []struct {
		name   string
		userID string
		code   apperr.Code
	}{
		{name: "creator", userID: "member"},
		{name: "admin", userID: "admin"},
		{name: "owner", userID: "owner"},
		{name: "other member", userID: "member2", code: apperr.CodeForbidden},
		{name: "outsider", userID: "other", code: apperr.CodeNotOrgMember},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.Update(as(tt.userID), UpdateRequest{ID: doc.ID, Data: map[string]any{"title": tt.name}})
			if tt.code == "" {
				assert.NoError(t, err)
				return
			}
			assert.True(t, apperr.Is(err, tt.code), "got %v", err)
		})
	}

	_, err = h.AddEditor(as("admin"), EditorRequest{ID: doc.ID, UserID: "member2"})
	require.NoError(t, err)
	updated, err := h.Update(as("member2"), UpdateRequest{ID: doc.ID, Data: map[string]any{"title": "edited", "draft": nil}})
	require.NoError(t, err)
	assert.Equal(t, "edited", updated.Data["title"])
}

func TestHandlers_UpdatePatchSemantics(t *testing.T) {
	h := build(t, seed(t), "notes", Options{})
	doc, err := h.Create(as("member"), CreateRequest{OrgID: "o1", Data: map[string]any{"title": "a", "draft": true}})
	require.NoError(t, err)

	updated, err := h.Update(as("member"), UpdateRequest{ID: doc.ID, Data: map[string]any{"body": "b", "draft": nil}})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"title": "a", "body": "b"}, updated.Data)
	assert.True(t, updated.UpdatedAt.After(doc.UpdatedAt))
	assert.Equal(t, doc.CreatedAt, updated.CreatedAt)
}

func TestHandlers_OptimisticConcurrency(t *testing.T) {
	h := build(t, seed(t), "notes", Options{})
	doc, err := h.Create(as("member"), CreateRequest{OrgID: "o1", Data: map[string]any{"n": 1}})
	require.NoError(t, err)
	stale := doc.UpdatedAt

	first, err := h.Update(as("member"), UpdateRequest{ID: doc.ID, Data: map[string]any{"n": 2}, ExpectedUpdatedAt: &stale})
	require.NoError(t, err)

	_, err = h.Update(as("member"), UpdateRequest{ID: doc.ID, Data: map[string]any{"n": 3}, ExpectedUpdatedAt: &stale})
	assert.True(t, apperr.Is(err, apperr.CodeConflict))

	current, err := h.Read(as("member"), ReadRequest{ID: doc.ID})
	require.NoError(t, err)
	assert.Equal(t, 2, current.Data["n"], "conflicting update made no change")

	_, err = h.Update(as("member"), UpdateRequest{ID: doc.ID, Data: map[string]any{"n": 4}})
	require.NoError(t, err, "omitted expectation always succeeds")

	_, err = h.Update(as("member"), UpdateRequest{ID: doc.ID, Data: map[string]any{"n": 5}, ExpectedUpdatedAt: &first.UpdatedAt})
	assert.True(t, apperr.Is(err, apperr.CodeConflict))
}

func TestHandlers_SameMillisecondWritesConflict(t *testing.T) {
	fixed := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	h := build(t, seed(t), "notes", Options{}, WithClock(func() time.Time { return fixed }))

	doc, err := h.Create(as("member"), CreateRequest{OrgID: "o1"})
	require.NoError(t, err)
	seen := doc.UpdatedAt

	_, err = h.Update(as("member"), UpdateRequest{ID: doc.ID, Data: map[string]any{"a": 1}})
	require.NoError(t, err)
	_, err = h.Update(as("member"), UpdateRequest{ID: doc.ID, Data: map[string]any{"a": 2}, ExpectedUpdatedAt: &seen})
	assert.True(t, apperr.Is(err, apperr.CodeConflict))
}

func TestHandlers_SoftDelete(t *testing.T) {
	h := build(t, seed(t), "tasks", Options{SoftDelete: true})
	doc, err := h.Create(as("member"), CreateRequest{OrgID: "o1", Data: map[string]any{"title": "t"}})
	require.NoError(t, err)

	_, err = h.Remove(as("member2"), doc.ID)
	assert.True(t, apperr.Is(err, apperr.CodeForbidden), "soft delete follows the update rule")

	removed, err := h.Remove(as("member"), doc.ID)
	require.NoError(t, err)
	assert.True(t, removed.Deleted)
	assert.True(t, removed.UpdatedAt.After(doc.UpdatedAt))

	_, err = h.Read(as("member"), ReadRequest{ID: doc.ID})
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))
	_, err = h.Read(as("member"), ReadRequest{ID: doc.ID, IncludeDeleted: true})
	assert.True(t, apperr.Is(err, apperr.CodeInsufficientOrgRole))
	got, err := h.Read(as("admin"), ReadRequest{ID: doc.ID, IncludeDeleted: true})
	require.NoError(t, err)
	assert.True(t, got.Deleted)

	docs, err := h.List(as("member"), ListRequest{OrgID: "o1"})
	require.NoError(t, err)
	assert.Empty(t, docs)
	_, err = h.List(as("member"), ListRequest{OrgID: "o1", IncludeDeleted: true})
	assert.True(t, apperr.Is(err, apperr.CodeInsufficientOrgRole))
	docs, err = h.List(as("admin"), ListRequest{OrgID: "o1", IncludeDeleted: true})
	require.NoError(t, err)
	assert.Len(t, docs, 1)

	_, err = h.Update(as("member"), UpdateRequest{ID: doc.ID, Data: map[string]any{"title": "x"}})
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))
	_, err = h.Remove(as("member"), doc.ID)
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))

	_, err = h.Restore(as("member"), doc.ID)
	assert.True(t, apperr.Is(err, apperr.CodeInsufficientOrgRole))
	restored, err := h.Restore(as("admin"), doc.ID)
	require.NoError(t, err)
	assert.False(t, restored.Deleted)
	assert.Equal(t, "t", restored.Data["title"])

	again, err := h.Restore(as("admin"), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, restored.UpdatedAt, again.UpdatedAt, "restoring a live document is a no-op")
}

func TestHandlers_HardDeleteRequiresAdmin(t *testing.T) {
	h := build(t, seed(t), "notes", Options{})
	doc, err := h.Create(as("member"), CreateRequest{OrgID: "o1"})
	require.NoError(t, err)

	_, err = h.Remove(as("member"), doc.ID)
	assert.True(t, apperr.Is(err, apperr.CodeInsufficientOrgRole))

	_, err = h.Remove(as("admin"), doc.ID)
	require.NoError(t, err)
	_, err = h.Read(as("admin"), ReadRequest{ID: doc.ID, IncludeDeleted: true})
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))
}

func TestHandlers_Editors(t *testing.T) {
	h := build(t, seed(t), "projects", Options{ACL: true})
	doc, err := h.Create(as("member"), CreateRequest{OrgID: "o1"})
	require.NoError(t, err)

	_, err = h.AddEditor(as("member"), EditorRequest{ID: doc.ID, UserID: "member2"})
	assert.True(t, apperr.Is(err, apperr.CodeInsufficientOrgRole))

	_, err = h.AddEditor(as("admin"), EditorRequest{ID: doc.ID, UserID: "other"})
	assert.True(t, apperr.Is(err, apperr.CodeNotOrgMember))

	_, err = h.AddEditor(as("admin"), EditorRequest{ID: doc.ID})
	assert.True(t, apperr.Is(err, apperr.CodeValidationFailed))

	_, err = h.AddEditor(as("admin"), EditorRequest{ID: doc.ID, UserID: "member2"})
	require.NoError(t, err)
	again, err := h.AddEditor(as("admin"), EditorRequest{ID: doc.ID, UserID: "member2"})
	require.NoError(t, err)
	assert.Equal(t, []string{"member2"}, again.Editors)

	set, err := h.SetEditors(as("owner"), SetEditorsRequest{ID: doc.ID, UserIDs: []string{"admin", "owner", "admin", "member2"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"admin", "owner", "member2"}, set.Editors)

	_, err = h.SetEditors(as("owner"), SetEditorsRequest{ID: doc.ID, UserIDs: []string{"admin", "other"}})
	assert.True(t, apperr.Is(err, apperr.CodeNotOrgMember))

	removed, err := h.RemoveEditor(as("admin"), EditorRequest{ID: doc.ID, UserID: "owner"})
	require.NoError(t, err)
	assert.Equal(t, []string{"admin", "member2"}, removed.Editors)

	editors, err := h.Editors(as("member"), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"admin", "member2"}, editors)

	_, err = h.Editors(as("other"), doc.ID)
	assert.True(t, apperr.Is(err, apperr.CodeNotOrgMember))
}

func TestHandlers_ACLFromParent(t *testing.T) {
	store := seed(t)
	f := newFactory(store)
	projects, err := f.Build("projects", Options{ACL: true})
	require.NoError(t, err)
	tasks, err := f.Build("tasks", Options{ACLFrom: &ACLFrom{Field: "projectId", Table: "projects"}})
	require.NoError(t, err)

	project, err := projects.Create(as("admin"), CreateRequest{OrgID: "o1"})
	require.NoError(t, err)
	task, err := tasks.Create(as("member"), CreateRequest{OrgID: "o1", Data: map[string]any{"projectId": project.ID}})
	require.NoError(t, err)

	_, err = tasks.Update(as("member2"), UpdateRequest{ID: task.ID, Data: map[string]any{"done": true}})
	assert.True(t, apperr.Is(err, apperr.CodeForbidden))

	_, err = projects.AddEditor(as("admin"), EditorRequest{ID: project.ID, UserID: "member2"})
	require.NoError(t, err)
	updated, err := tasks.Update(as("member2"), UpdateRequest{ID: task.ID, Data: map[string]any{"done": true}})
	require.NoError(t, err)
	assert.Equal(t, true, updated.Data["done"])
}

func TestHandlers_BulkCreate(t *testing.T) {
	store := seed(t)
	h := build(t, store, "notes", Options{}, WithMaxBulkItems(3))

	_, err := h.BulkCreate(as("member"), BulkCreateRequest{OrgID: "o1", Items: []map[string]any{{"n": 1}}})
	assert.True(t, apperr.Is(err, apperr.CodeInsufficientOrgRole))

	_, err = h.BulkCreate(as("admin"), BulkCreateRequest{OrgID: "o1", Items: make([]map[string]any, 4)})
	assert.True(t, apperr.Is(err, apperr.CodeValidationFailed))
	_, err = h.BulkCreate(as("admin"), BulkCreateRequest{OrgID: "o1"})
	assert.True(t, apperr.Is(err, apperr.CodeValidationFailed))

	// one invalid item rolls back the whole request
	_, err = h.BulkCreate(as("admin"), BulkCreateRequest{OrgID: "o1", Items: []map[string]any{{"n": 1}, {"id": "x"}}})
	e, ok := apperr.As(err)
	require.True(t, ok)
	assert.Contains(t, e.Fields, "items[1].id")
	docs, err := h.List(as("admin"), ListRequest{OrgID: "o1"})
	require.NoError(t, err)
	assert.Empty(t, docs)

	created, err := h.BulkCreate(as("admin"), BulkCreateRequest{OrgID: "o1", Items: []map[string]any{{"n": 1}, {"n": 2}, {"n": 3}}})
	require.NoError(t, err)
	assert.Len(t, created, 3)
}

func TestHandlers_BulkTenantGuard(t *testing.T) {
	store := seed(t)
	f := newFactory(store)
	h, err := f.Build("notes", Options{})
	require.NoError(t, err)

	mine, err := h.Create(as("member"), CreateRequest{OrgID: "o1", Data: map[string]any{"n": 1}})
	require.NoError(t, err)
	theirs, err := h.Create(as("other"), CreateRequest{OrgID: "o2", Data: map[string]any{"n": 1}})
	require.NoError(t, err)

	_, err = h.BulkUpdate(as("admin"), BulkUpdateRequest{OrgID: "o1", IDs: []string{mine.ID, theirs.ID}, Data: map[string]any{"n": 9}})
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))
	n, err := h.BulkRemove(as("admin"), BulkRemoveRequest{OrgID: "o1", IDs: []string{mine.ID, theirs.ID}})
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))
	assert.Zero(t, n)

	got, err := h.Read(as("member"), ReadRequest{ID: mine.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, got.Data["n"], "rejected bulk request changed nothing")
	got, err = h.Read(as("other"), ReadRequest{ID: theirs.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, got.Data["n"])
}

func TestHandlers_BulkUpdateAndRemove(t *testing.T) {
	h := build(t, seed(t), "tasks", Options{SoftDelete: true})
	var ids []string
	for i := 0; i < 3; i++ {
		doc, err := h.Create(as("member"), CreateRequest{OrgID: "o1", Data: map[string]any{"n": i}})
		require.NoError(t, err)
		ids = append(ids, doc.ID)
	}

	updated, err := h.BulkUpdate(as("admin"), BulkUpdateRequest{OrgID: "o1", IDs: append(ids, ids[0]), Data: map[string]any{"done": true}})
	require.NoError(t, err)
	require.Len(t, updated, 3, "duplicate ids are collapsed")
	for _, doc := range updated {
		assert.Equal(t, true, doc.Data["done"])
	}

	n, err := h.BulkRemove(as("admin"), BulkRemoveRequest{OrgID: "o1", IDs: ids[:2]})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	docs, err := h.List(as("member"), ListRequest{OrgID: "o1"})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, ids[2], docs[0].ID)

	_, err = h.BulkRemove(as("admin"), BulkRemoveRequest{OrgID: "o1", IDs: ids[:1]})
	assert.True(t, apperr.Is(err, apperr.CodeNotFound), "already removed")
}

func TestHandlers_RateLimitAppliesToWrites(t *testing.T) {
	limiter := ratelimit.NewMemoryLimiter()
	h := build(t, seed(t), "notes", Options{RateLimit: &ratelimit.Limit{Max: 2, Window: time.Minute}}, WithLimiter(limiter))

	for i := 0; i < 2; i++ {
		_, err := h.Create(as("member"), CreateRequest{OrgID: "o1"})
		require.NoError(t, err)
	}
	_, err := h.Create(as("member"), CreateRequest{OrgID: "o1"})
	e, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.CodeRateLimited, e.Code)
	assert.Equal(t, 2, e.Limit)
	assert.Zero(t, e.Remaining)
	assert.Positive(t, e.RetryAfter)

	_, err = h.Create(as("member2"), CreateRequest{OrgID: "o1"})
	assert.NoError(t, err, "limits are per user")

	for i := 0; i < 5; i++ {
		_, err := h.List(as("member"), ListRequest{OrgID: "o1"})
		require.NoError(t, err, "reads are never limited")
	}
}

type recordingHook struct {
	hooks.Base
	events []string
}

func (r *recordingHook) Name() string { return "recording" }

func (r *recordingHook) BeforeCreate(ctx context.Context, op *hooks.Operation, data map[string]any) (map[string]any, error) {
	data["stamped"] = op.UserID
	return data, nil
}

func (r *recordingHook) AfterCreate(ctx context.Context, op *hooks.Operation, doc *models.Document) {
	r.events = append(r.events, "create:"+doc.ID)
}

func (r *recordingHook) AfterUpdate(ctx context.Context, op *hooks.Operation, prev, next *models.Document) {
	r.events = append(r.events, string(op.Kind)+":"+next.ID)
}

func (r *recordingHook) BeforeDelete(ctx context.Context, op *hooks.Operation, doc *models.Document) error {
	if doc.Data["locked"] == true {
		return apperr.Newf(apperr.CodeForbidden, "document is locked")
	}
	return nil
}

func (r *recordingHook) AfterDelete(ctx context.Context, op *hooks.Operation, doc *models.Document) {
	r.events = append(r.events, "delete:"+doc.ID)
}

func TestHandlers_Hooks(t *testing.T) {
	rec := &recordingHook{}
	pipeline := hooks.NewPipeline([]hooks.Middleware{rec})
	h := build(t, seed(t), "notes", Options{ACL: true, SoftDelete: true}, WithHooks(pipeline))

	doc, err := h.Create(as("member"), CreateRequest{OrgID: "o1", Data: map[string]any{"locked": true}})
	require.NoError(t, err)
	assert.Equal(t, "member", doc.Data["stamped"])

	_, err = h.Remove(as("member"), doc.ID)
	assert.True(t, apperr.Is(err, apperr.CodeForbidden))

	_, err = h.Update(as("member"), UpdateRequest{ID: doc.ID, Data: map[string]any{"locked": false}})
	require.NoError(t, err)
	_, err = h.AddEditor(as("admin"), EditorRequest{ID: doc.ID, UserID: "member2"})
	require.NoError(t, err)
	_, err = h.AddEditor(as("admin"), EditorRequest{ID: doc.ID, UserID: "member2"})
	require.NoError(t, err)
	_, err = h.Remove(as("member"), doc.ID)
	require.NoError(t, err)
	_, err = h.Restore(as("admin"), doc.ID)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"create:d1",
		"update:d1",
		"editors:d1",
		"delete:d1",
		"restore:d1",
	}, rec.events)
}

func TestHandlers_RecordsMetrics(t *testing.T) {
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	h := build(t, seed(t), "notes", Options{}, WithMetrics(metrics))

	_, err := h.Create(as("member"), CreateRequest{OrgID: "o1"})
	require.NoError(t, err)
	_, err = h.Create(as("other"), CreateRequest{OrgID: "o1"})
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.OperationsTotal.WithLabelValues("notes", "create", "OK")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.OperationsTotal.WithLabelValues("notes", "create", string(apperr.CodeNotOrgMember))))
}
