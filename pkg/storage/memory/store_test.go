package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1qh/nexvex/pkg/models"
	"github.com/1qh/nexvex/pkg/storage"
)

func TestStore_RollbackOnError(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx storage.Tx) error {
		require.NoError(t, tx.InsertOrganization(ctx, &models.Organization{ID: "o1", Slug: "acme"}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	err = s.WithTx(ctx, func(tx storage.Tx) error {
		_, err := tx.GetOrganization(ctx, "o1")
		return err
	})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStore_CommitOnSuccess(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	require.NoError(t, s.WithTx(ctx, func(tx storage.Tx) error {
		return tx.InsertOrganization(ctx, &models.Organization{ID: "o1", Slug: "acme", OwnerUserID: "u1"})
	}))

	require.NoError(t, s.WithTx(ctx, func(tx storage.Tx) error {
		org, err := tx.GetOrganizationBySlug(ctx, "acme")
		require.NoError(t, err)
		assert.Equal(t, "o1", org.ID)
		return nil
	}))
}

func TestStore_Uniqueness(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	err := s.WithTx(ctx, func(tx storage.Tx) error {
		require.NoError(t, tx.InsertOrganization(ctx, &models.Organization{ID: "o1", Slug: "x"}))
		assert.ErrorIs(t, tx.InsertOrganization(ctx, &models.Organization{ID: "o2", Slug: "x"}), storage.ErrDuplicate)

		require.NoError(t, tx.InsertOrganization(ctx, &models.Organization{ID: "o3", Slug: "y"}))
		assert.ErrorIs(t, tx.UpdateOrganization(ctx, &models.Organization{ID: "o3", Slug: "x"}), storage.ErrDuplicate)
		assert.NoError(t, tx.UpdateOrganization(ctx, &models.Organization{ID: "o1", Slug: "x", Name: "same slug"}))

		require.NoError(t, tx.InsertMembership(ctx, &models.Membership{ID: "m1", OrgID: "o1", UserID: "u1"}))
		assert.ErrorIs(t, tx.InsertMembership(ctx, &models.Membership{ID: "m2", OrgID: "o1", UserID: "u1"}), storage.ErrDuplicate)

		require.NoError(t, tx.InsertInvite(ctx, &models.Invite{ID: "i1", OrgID: "o1", Token: "t"}))
		assert.ErrorIs(t, tx.InsertInvite(ctx, &models.Invite{ID: "i2", OrgID: "o1", Token: "t"}), storage.ErrDuplicate)
		return nil
	})
	require.NoError(t, err)
}

func TestStore_ReturnedValuesDoNotAlias(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	require.NoError(t, s.WithTx(ctx, func(tx storage.Tx) error {
		doc := &models.Document{ID: "d1", Table: "projects", OrgID: "o1", Data: map[string]any{"title": "a"}}
		require.NoError(t, tx.InsertDocument(ctx, doc))
		doc.Data["title"] = "mutated"

		got, err := tx.GetDocument(ctx, "projects", "d1")
		require.NoError(t, err)
		assert.Equal(t, "a", got.Data["title"])

		got.Data["title"] = "mutated again"
		again, err := tx.GetDocument(ctx, "projects", "d1")
		require.NoError(t, err)
		assert.Equal(t, "a", again.Data["title"])
		return nil
	}))
}

func TestStore_ListDocuments(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	base := time.Now()

	require.NoError(t, s.WithTx(ctx, func(tx storage.Tx) error {
		docs := []*models.Document{
			{ID: "a", Table: "tasks", OrgID: "o1", CreatedAt: base, Data: map[string]any{"projectId": "p1"}},
			{ID: "b", Table: "tasks", OrgID: "o1", CreatedAt: base.Add(time.Second), Data: map[string]any{"projectId": "p2"}},
			{ID: "c", Table: "tasks", OrgID: "o1", CreatedAt: base.Add(2 * time.Second), Deleted: true, Data: map[string]any{"projectId": "p1"}},
			{ID: "d", Table: "tasks", OrgID: "o2", CreatedAt: base, Data: map[string]any{"projectId": "p1"}},
		}
		for _, d := range docs {
			require.NoError(t, tx.InsertDocument(ctx, d))
		}
		return nil
	}))

	require.NoError(t, s.WithTx(ctx, func(tx storage.Tx) error {
		got, err := tx.ListDocuments(ctx, storage.DocumentFilter{Table: "tasks", OrgID: "o1"})
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, docIDs(got))

		got, err = tx.ListDocuments(ctx, storage.DocumentFilter{Table: "tasks", OrgID: "o1", IncludeDeleted: true})
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "c"}, docIDs(got))

		got, err = tx.ListDocuments(ctx, storage.DocumentFilter{
			Table: "tasks", OrgID: "o1", IncludeDeleted: true,
			Where: map[string]string{"projectId": "p1"},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "c"}, docIDs(got))

		ids, err := tx.ListDocumentIDs(ctx, "o1", "tasks", "projectId", []string{"p1"})
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "c"}, ids, "d names p1 but belongs to o2")

		ids, err = tx.ListDocumentIDs(ctx, "o2", "tasks", "projectId", []string{"p1"})
		require.NoError(t, err)
		assert.Equal(t, []string{"d"}, ids)

		ids, err = tx.ListDocumentIDs(ctx, "o2", "tasks", models.FieldOrgID, []string{"o2"})
		require.NoError(t, err)
		assert.Equal(t, []string{"d"}, ids)
		return nil
	}))
}

func TestStore_DeletesAreIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	require.NoError(t, s.WithTx(ctx, func(tx storage.Tx) error {
		require.NoError(t, tx.InsertDocument(ctx, &models.Document{ID: "a", Table: "tasks", OrgID: "o1"}))

		n, err := tx.DeleteDocuments(ctx, "tasks", []string{"a", "missing"})
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		assert.NoError(t, tx.DeleteDocument(ctx, "tasks", "a"))
		assert.NoError(t, tx.DeleteDocument(ctx, "unknown", "a"))
		assert.NoError(t, tx.DeleteOrganization(ctx, "missing"))
		return nil
	}))
}

func TestStore_ListRemovingOrganizations(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	now := time.Now()
	earlier := now.Add(-time.Hour)

	require.NoError(t, s.WithTx(ctx, func(tx storage.Tx) error {
		require.NoError(t, tx.InsertOrganization(ctx, &models.Organization{ID: "o1", Slug: "a", RemovingAt: &earlier}))
		require.NoError(t, tx.InsertOrganization(ctx, &models.Organization{ID: "o2", Slug: "b"}))

		orgs, err := tx.ListRemovingOrganizations(ctx, now)
		require.NoError(t, err)
		require.Len(t, orgs, 1)
		assert.Equal(t, "o1", orgs[0].ID)

		orgs, err = tx.ListRemovingOrganizations(ctx, earlier)
		require.NoError(t, err)
		assert.Empty(t, orgs)
		return nil
	}))
}

func TestStore_JoinRequests(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	require.NoError(t, s.WithTx(ctx, func(tx storage.Tx) error {
		require.NoError(t, tx.InsertJoinRequest(ctx, &models.JoinRequest{ID: "j1", OrgID: "o1", UserID: "u1", Status: models.JoinRequestRejected}))
		_, err := tx.FindPendingJoinRequest(ctx, "o1", "u1")
		assert.ErrorIs(t, err, storage.ErrNotFound)

		require.NoError(t, tx.InsertJoinRequest(ctx, &models.JoinRequest{ID: "j2", OrgID: "o1", UserID: "u1", Status: models.JoinRequestPending}))
		jr, err := tx.FindPendingJoinRequest(ctx, "o1", "u1")
		require.NoError(t, err)
		assert.Equal(t, "j2", jr.ID)

		pending, err := tx.ListJoinRequests(ctx, "o1", models.JoinRequestPending)
		require.NoError(t, err)
		assert.Len(t, pending, 1)

		all, err := tx.ListJoinRequests(ctx, "o1", "")
		require.NoError(t, err)
		assert.Len(t, all, 2)
		return nil
	}))
}

func TestStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewStore().WithTx(ctx, func(tx storage.Tx) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func docIDs(docs []*models.Document) []string {
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	return ids
}
