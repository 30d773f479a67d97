package crud

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1qh/nexvex/pkg/apperr"
	"github.com/1qh/nexvex/pkg/cascade"
	"github.com/1qh/nexvex/pkg/contextkeys"
	"github.com/1qh/nexvex/pkg/models"
	"github.com/1qh/nexvex/pkg/ratelimit"
	"github.com/1qh/nexvex/pkg/storage"
	"github.com/1qh/nexvex/pkg/storage/memory"
)

// seed creates org o1 (owner, admin, member, member2) and org o2 (other)
func seed(t *testing.T) *memory.Store {
	t.Helper()
	store := memory.NewStore()
	now := time.Now().UTC()
	err := store.WithTx(context.Background(), func(tx storage.Tx) error {
		ctx := context.Background()
		for _, org := range []*models.Organization{
			{ID: "o1", Name: "One", Slug: "one", OwnerUserID: "owner", CreatedAt: now, UpdatedAt: now},
			{ID: "o2", Name: "Two", Slug: "two", OwnerUserID: "other", CreatedAt: now, UpdatedAt: now},
		} {
			if err := tx.InsertOrganization(ctx, org); err != nil {
				return err
			}
		}
		for _, m := range []*models.Membership{
			{ID: "m-admin", OrgID: "o1", UserID: "admin", IsAdmin: true},
			{ID: "m-member", OrgID: "o1", UserID: "member"},
			{ID: "m-member2", OrgID: "o1", UserID: "member2"},
		} {
			if err := tx.InsertMembership(ctx, m); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
	return store
}

func as(userID string) context.Context {
	return contextkeys.WithUserID(context.Background(), userID)
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("d%d", n)
	}
}

func newFactory(store storage.Store, opts ...FactoryOption) *Factory {
	return NewFactory(store, append([]FactoryOption{WithIDGenerator(sequentialIDs())}, opts...)...)
}

func TestFactory_BuildOptionalHandlers(t *testing.T) {
	f := newFactory(memory.NewStore())

	plain, err := f.Build("notes", Options{})
	require.NoError(t, err)
	assert.NotNil(t, plain.List)
	assert.NotNil(t, plain.BulkUpdate)
	assert.Nil(t, plain.AddEditor)
	assert.Nil(t, plain.Editors)
	assert.Nil(t, plain.Restore)

	full, err := f.Build("projects", Options{ACL: true, SoftDelete: true})
	require.NoError(t, err)
	assert.NotNil(t, full.AddEditor)
	assert.NotNil(t, full.RemoveEditor)
	assert.NotNil(t, full.SetEditors)
	assert.NotNil(t, full.Editors)
	assert.NotNil(t, full.Restore)

	got, ok := f.Handlers("projects")
	require.True(t, ok)
	assert.Same(t, full, got)
	assert.Equal(t, []string{"notes", "projects"}, f.Tables())
}

func TestFactory_BuildErrors(t *testing.T) {
	f := newFactory(memory.NewStore())
	_, err := f.Build("notes", Options{})
	require.NoError(t, err)

	tests := []struct {
		name    string
		table   string
		opts    Options
		wantErr string
	}{
		{name: "empty name", table: "", wantErr: "table name is required"},
		{name: "duplicate", table: "notes", wantErr: "already built"},
		{name: "incomplete aclFrom", table: "a", opts: Options{ACLFrom: &ACLFrom{Field: "projectId"}}, wantErr: "aclFrom"},
		{name: "incomplete cascade", table: "b", opts: Options{Cascade: []Child{{Table: "tasks"}}}, wantErr: "cascade"},
		{name: "negative limit", table: "c", opts: Options{RateLimit: &ratelimit.Limit{Max: -1}}, wantErr: "negative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.Build(tt.table, tt.opts)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestFactory_CascadeTargets(t *testing.T) {
	f := newFactory(memory.NewStore())
	_, err := f.Build("projects", Options{Cascade: []Child{{ForeignKey: "projectId", Table: "tasks"}}})
	require.NoError(t, err)
	_, err = f.Build("tasks", Options{ACLFrom: &ACLFrom{Field: "projectId", Table: "projects"}})
	require.NoError(t, err)
	require.NoError(t, f.Validate())

	edges := f.CascadeTargets()
	assert.Equal(t, []cascade.Edge{
		cascade.OrgEdge("projects"),
		{Table: "tasks", ForeignKey: "projectId", Parent: "projects"},
		cascade.OrgEdge("tasks"),
	}, edges)

	g, err := cascade.NewGraph(edges)
	require.NoError(t, err)
	assert.Equal(t, []string{"tasks", "projects"}, g.Tables())
}

func TestFactory_CascadeStaysInsideOrganization(t *testing.T) {
	store := seed(t)
	f := newFactory(store)
	projects, err := f.Build("projects", Options{Cascade: []Child{{ForeignKey: "projectId", Table: "tasks"}}})
	require.NoError(t, err)
	tasks, err := f.Build("tasks", Options{})
	require.NoError(t, err)
	require.NoError(t, f.Validate())

	project, err := projects.Create(as("owner"), CreateRequest{OrgID: "o1"})
	require.NoError(t, err)
	own, err := tasks.Create(as("member"), CreateRequest{OrgID: "o1", Data: map[string]any{"projectId": project.ID}})
	require.NoError(t, err)
	// o2 may store any value in its own rows, including an o1 project id
	foreign, err := tasks.Create(as("other"), CreateRequest{OrgID: "o2", Data: map[string]any{"projectId": project.ID}})
	require.NoError(t, err)

	engine, err := cascade.NewEngine(store, f.CascadeTargets())
	require.NoError(t, err)
	result, err := engine.Remove(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"projects": 1, "tasks": 1}, result.Deleted)

	require.NoError(t, store.WithTx(context.Background(), func(tx storage.Tx) error {
		_, err := tx.GetDocument(context.Background(), "tasks", own.ID)
		assert.ErrorIs(t, err, storage.ErrNotFound)
		kept, err := tx.GetDocument(context.Background(), "tasks", foreign.ID)
		require.NoError(t, err)
		assert.Equal(t, "o2", kept.OrgID)
		return nil
	}))
}

func TestFactory_ValidateUnknownReferences(t *testing.T) {
	f := newFactory(memory.NewStore())
	_, err := f.Build("tasks", Options{ACLFrom: &ACLFrom{Field: "projectId", Table: "projects"}})
	require.NoError(t, err)
	assert.ErrorContains(t, f.Validate(), "unknown table projects")

	f = newFactory(memory.NewStore())
	_, err = f.Build("projects", Options{Cascade: []Child{{ForeignKey: "projectId", Table: "tasks"}}})
	require.NoError(t, err)
	assert.ErrorContains(t, f.Validate(), "unknown table tasks")
}

func TestHandlers_Unauthenticated(t *testing.T) {
	h, err := newFactory(seed(t)).Build("notes", Options{})
	require.NoError(t, err)

	_, err = h.Create(context.Background(), CreateRequest{OrgID: "o1"})
	assert.True(t, apperr.Is(err, apperr.CodeNotAuthenticated))
	_, err = h.List(context.Background(), ListRequest{OrgID: "o1"})
	assert.True(t, apperr.Is(err, apperr.CodeNotAuthenticated))
}

func TestHandlers_RemovingOrganizationIsHidden(t *testing.T) {
	store := seed(t)
	require.NoError(t, store.WithTx(context.Background(), func(tx storage.Tx) error {
		org, err := tx.GetOrganization(context.Background(), "o1")
		if err != nil {
			return err
		}
		now := time.Now()
		org.RemovingAt = &now
		return tx.UpdateOrganization(context.Background(), org)
	}))
	h, err := newFactory(store).Build("notes", Options{})
	require.NoError(t, err)

	_, err = h.Create(as("owner"), CreateRequest{OrgID: "o1"})
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))
}
