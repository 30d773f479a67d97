// Package memory provides an in-process storage.Store.
//
// Transactions are serialized under a single lock. Each transaction works on
// a shallow copy of the state maps; stored records are never mutated in
// place, so discarding the copy is a full rollback.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/1qh/nexvex/pkg/models"
	"github.com/1qh/nexvex/pkg/storage"
)

// Store is an in-memory storage.Store
type Store struct {
	mu    sync.Mutex
	state *state
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{state: newState()}
}

// WithTx runs fn against a private copy of the state and publishes the copy
// if fn succeeds
func (s *Store) WithTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.state.clone()
	if err := fn(&tx{st: next}); err != nil {
		return err
	}
	s.state = next
	return nil
}

// Ping always succeeds
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Close is a no-op
func (s *Store) Close() error {
	return nil
}

type state struct {
	orgs         map[string]*models.Organization
	members      map[string]*models.Membership
	invites      map[string]*models.Invite
	joinRequests map[string]*models.JoinRequest
	docs         map[string]map[string]*models.Document
}

func newState() *state {
	return &state{
		orgs:         make(map[string]*models.Organization),
		members:      make(map[string]*models.Membership),
		invites:      make(map[string]*models.Invite),
		joinRequests: make(map[string]*models.JoinRequest),
		docs:         make(map[string]map[string]*models.Document),
	}
}

func (st *state) clone() *state {
	c := &state{
		orgs:         copyMap(st.orgs),
		members:      copyMap(st.members),
		invites:      copyMap(st.invites),
		joinRequests: copyMap(st.joinRequests),
		docs:         make(map[string]map[string]*models.Document, len(st.docs)),
	}
	for table, rows := range st.docs {
		c.docs[table] = copyMap(rows)
	}
	return c
}

func copyMap[V any](m map[string]V) map[string]V {
	out := make(map[string]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// tx implements storage.Tx over one state copy. Values are copied on the way
// in and out so callers never alias stored records.
type tx struct {
	st *state
}

// Organizations

func (t *tx) InsertOrganization(ctx context.Context, org *models.Organization) error {
	if _, ok := t.st.orgs[org.ID]; ok {
		return storage.ErrDuplicate
	}
	if t.slugTaken(org.Slug, "") {
		return storage.ErrDuplicate
	}
	t.st.orgs[org.ID] = copyOrg(org)
	return nil
}

func (t *tx) GetOrganization(ctx context.Context, id string) (*models.Organization, error) {
	org, ok := t.st.orgs[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return copyOrg(org), nil
}

func (t *tx) GetOrganizationBySlug(ctx context.Context, slug string) (*models.Organization, error) {
	for _, org := range t.st.orgs {
		if org.Slug == slug {
			return copyOrg(org), nil
		}
	}
	return nil, storage.ErrNotFound
}

func (t *tx) UpdateOrganization(ctx context.Context, org *models.Organization) error {
	if _, ok := t.st.orgs[org.ID]; !ok {
		return storage.ErrNotFound
	}
	if t.slugTaken(org.Slug, org.ID) {
		return storage.ErrDuplicate
	}
	t.st.orgs[org.ID] = copyOrg(org)
	return nil
}

func (t *tx) DeleteOrganization(ctx context.Context, id string) error {
	delete(t.st.orgs, id)
	return nil
}

func (t *tx) ListOrganizationsForUser(ctx context.Context, userID string) ([]*models.Organization, error) {
	memberOf := make(map[string]bool)
	for _, m := range t.st.members {
		if m.UserID == userID {
			memberOf[m.OrgID] = true
		}
	}

	var out []*models.Organization
	for _, org := range t.st.orgs {
		if org.OwnerUserID == userID || memberOf[org.ID] {
			out = append(out, copyOrg(org))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (t *tx) ListRemovingOrganizations(ctx context.Context, before time.Time) ([]*models.Organization, error) {
	var out []*models.Organization
	for _, org := range t.st.orgs {
		if org.RemovingAt != nil && org.RemovingAt.Before(before) {
			out = append(out, copyOrg(org))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RemovingAt.Before(*out[j].RemovingAt) })
	return out, nil
}

func (t *tx) slugTaken(slug, exceptID string) bool {
	for id, org := range t.st.orgs {
		if id != exceptID && org.Slug == slug {
			return true
		}
	}
	return false
}

func copyOrg(org *models.Organization) *models.Organization {
	c := *org
	if org.RemovingAt != nil {
		at := *org.RemovingAt
		c.RemovingAt = &at
	}
	return &c
}

// Memberships

func (t *tx) InsertMembership(ctx context.Context, m *models.Membership) error {
	if _, ok := t.st.members[m.ID]; ok {
		return storage.ErrDuplicate
	}
	for _, existing := range t.st.members {
		if existing.OrgID == m.OrgID && existing.UserID == m.UserID {
			return storage.ErrDuplicate
		}
	}
	c := *m
	t.st.members[m.ID] = &c
	return nil
}

func (t *tx) GetMembership(ctx context.Context, id string) (*models.Membership, error) {
	m, ok := t.st.members[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	c := *m
	return &c, nil
}

func (t *tx) GetMembershipByUser(ctx context.Context, orgID, userID string) (*models.Membership, error) {
	for _, m := range t.st.members {
		if m.OrgID == orgID && m.UserID == userID {
			c := *m
			return &c, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (t *tx) UpdateMembership(ctx context.Context, m *models.Membership) error {
	if _, ok := t.st.members[m.ID]; !ok {
		return storage.ErrNotFound
	}
	c := *m
	t.st.members[m.ID] = &c
	return nil
}

func (t *tx) DeleteMembership(ctx context.Context, id string) error {
	delete(t.st.members, id)
	return nil
}

func (t *tx) ListMemberships(ctx context.Context, orgID string) ([]*models.Membership, error) {
	var out []*models.Membership
	for _, m := range t.st.members {
		if m.OrgID == orgID {
			c := *m
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (t *tx) DeleteMembershipsByOrg(ctx context.Context, orgID string) (int, error) {
	n := 0
	for id, m := range t.st.members {
		if m.OrgID == orgID {
			delete(t.st.members, id)
			n++
		}
	}
	return n, nil
}

// Invites

func (t *tx) InsertInvite(ctx context.Context, inv *models.Invite) error {
	if _, ok := t.st.invites[inv.ID]; ok {
		return storage.ErrDuplicate
	}
	for _, existing := range t.st.invites {
		if existing.Token == inv.Token {
			return storage.ErrDuplicate
		}
	}
	c := *inv
	t.st.invites[inv.ID] = &c
	return nil
}

func (t *tx) GetInvite(ctx context.Context, id string) (*models.Invite, error) {
	inv, ok := t.st.invites[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	c := *inv
	return &c, nil
}

func (t *tx) GetInviteByToken(ctx context.Context, token string) (*models.Invite, error) {
	for _, inv := range t.st.invites {
		if inv.Token == token {
			c := *inv
			return &c, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (t *tx) DeleteInvite(ctx context.Context, id string) error {
	delete(t.st.invites, id)
	return nil
}

func (t *tx) ListInvites(ctx context.Context, orgID string) ([]*models.Invite, error) {
	var out []*models.Invite
	for _, inv := range t.st.invites {
		if inv.OrgID == orgID {
			c := *inv
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (t *tx) DeleteInvitesByOrg(ctx context.Context, orgID string) (int, error) {
	n := 0
	for id, inv := range t.st.invites {
		if inv.OrgID == orgID {
			delete(t.st.invites, id)
			n++
		}
	}
	return n, nil
}

// Join requests

func (t *tx) InsertJoinRequest(ctx context.Context, jr *models.JoinRequest) error {
	if _, ok := t.st.joinRequests[jr.ID]; ok {
		return storage.ErrDuplicate
	}
	c := *jr
	t.st.joinRequests[jr.ID] = &c
	return nil
}

func (t *tx) GetJoinRequest(ctx context.Context, id string) (*models.JoinRequest, error) {
	jr, ok := t.st.joinRequests[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	c := *jr
	return &c, nil
}

func (t *tx) UpdateJoinRequest(ctx context.Context, jr *models.JoinRequest) error {
	if _, ok := t.st.joinRequests[jr.ID]; !ok {
		return storage.ErrNotFound
	}
	c := *jr
	t.st.joinRequests[jr.ID] = &c
	return nil
}

func (t *tx) DeleteJoinRequest(ctx context.Context, id string) error {
	delete(t.st.joinRequests, id)
	return nil
}

func (t *tx) FindPendingJoinRequest(ctx context.Context, orgID, userID string) (*models.JoinRequest, error) {
	for _, jr := range t.st.joinRequests {
		if jr.OrgID == orgID && jr.UserID == userID && jr.Status == models.JoinRequestPending {
			c := *jr
			return &c, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (t *tx) ListJoinRequests(ctx context.Context, orgID string, status models.JoinRequestStatus) ([]*models.JoinRequest, error) {
	var out []*models.JoinRequest
	for _, jr := range t.st.joinRequests {
		if jr.OrgID == orgID && (status == "" || jr.Status == status) {
			c := *jr
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (t *tx) DeleteJoinRequestsByOrg(ctx context.Context, orgID string) (int, error) {
	n := 0
	for id, jr := range t.st.joinRequests {
		if jr.OrgID == orgID {
			delete(t.st.joinRequests, id)
			n++
		}
	}
	return n, nil
}

// Documents

func (t *tx) InsertDocument(ctx context.Context, doc *models.Document) error {
	rows := t.st.docs[doc.Table]
	if rows == nil {
		rows = make(map[string]*models.Document)
		t.st.docs[doc.Table] = rows
	}
	if _, ok := rows[doc.ID]; ok {
		return storage.ErrDuplicate
	}
	rows[doc.ID] = doc.Clone()
	return nil
}

func (t *tx) GetDocument(ctx context.Context, table, id string) (*models.Document, error) {
	doc, ok := t.st.docs[table][id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return doc.Clone(), nil
}

func (t *tx) UpdateDocument(ctx context.Context, doc *models.Document) error {
	rows := t.st.docs[doc.Table]
	if _, ok := rows[doc.ID]; !ok {
		return storage.ErrNotFound
	}
	rows[doc.ID] = doc.Clone()
	return nil
}

func (t *tx) DeleteDocument(ctx context.Context, table, id string) error {
	delete(t.st.docs[table], id)
	return nil
}

func (t *tx) DeleteDocuments(ctx context.Context, table string, ids []string) (int, error) {
	rows := t.st.docs[table]
	n := 0
	for _, id := range ids {
		if _, ok := rows[id]; ok {
			delete(rows, id)
			n++
		}
	}
	return n, nil
}

func (t *tx) ListDocuments(ctx context.Context, filter storage.DocumentFilter) ([]*models.Document, error) {
	var out []*models.Document
	for _, doc := range t.st.docs[filter.Table] {
		if filter.OrgID != "" && doc.OrgID != filter.OrgID {
			continue
		}
		if doc.Deleted && !filter.IncludeDeleted {
			continue
		}
		if !matches(doc, filter.Where) {
			continue
		}
		out = append(out, doc.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (t *tx) ListDocumentIDs(ctx context.Context, orgID, table, field string, values []string) ([]string, error) {
	want := make(map[string]bool, len(values))
	for _, v := range values {
		want[v] = true
	}

	var ids []string
	for id, doc := range t.st.docs[table] {
		if doc.OrgID != orgID {
			continue
		}
		if v, ok := doc.StringField(field); ok && want[v] {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func matches(doc *models.Document, where map[string]string) bool {
	for field, want := range where {
		got, ok := doc.StringField(field)
		if !ok || got != want {
			return false
		}
	}
	return true
}
