package storage

import (
	"context"
	"errors"
	"time"

	"github.com/1qh/nexvex/pkg/models"
)

var (
	// ErrNotFound is returned when a looked up row does not exist
	ErrNotFound = errors.New("storage: not found")

	// ErrDuplicate is returned when a write violates a uniqueness constraint
	// (organization slug, membership per org and user, invite token)
	ErrDuplicate = errors.New("storage: duplicate")
)

// OrganizationRepo persists organizations
type OrganizationRepo interface {
	InsertOrganization(ctx context.Context, org *models.Organization) error
	GetOrganization(ctx context.Context, id string) (*models.Organization, error)
	GetOrganizationBySlug(ctx context.Context, slug string) (*models.Organization, error)
	UpdateOrganization(ctx context.Context, org *models.Organization) error
	// DeleteOrganization is a no-op when the row is absent
	DeleteOrganization(ctx context.Context, id string) error
	// ListOrganizationsForUser returns organizations owned by userID or where
	// userID holds a membership row
	ListOrganizationsForUser(ctx context.Context, userID string) ([]*models.Organization, error)
	// ListRemovingOrganizations returns organizations whose removal started
	// before the given time
	ListRemovingOrganizations(ctx context.Context, before time.Time) ([]*models.Organization, error)
}

// MembershipRepo persists organization memberships
type MembershipRepo interface {
	InsertMembership(ctx context.Context, m *models.Membership) error
	GetMembership(ctx context.Context, id string) (*models.Membership, error)
	GetMembershipByUser(ctx context.Context, orgID, userID string) (*models.Membership, error)
	UpdateMembership(ctx context.Context, m *models.Membership) error
	DeleteMembership(ctx context.Context, id string) error
	ListMemberships(ctx context.Context, orgID string) ([]*models.Membership, error)
	DeleteMembershipsByOrg(ctx context.Context, orgID string) (int, error)
}

// InviteRepo persists organization invites
type InviteRepo interface {
	InsertInvite(ctx context.Context, inv *models.Invite) error
	GetInvite(ctx context.Context, id string) (*models.Invite, error)
	GetInviteByToken(ctx context.Context, token string) (*models.Invite, error)
	DeleteInvite(ctx context.Context, id string) error
	ListInvites(ctx context.Context, orgID string) ([]*models.Invite, error)
	DeleteInvitesByOrg(ctx context.Context, orgID string) (int, error)
}

// JoinRequestRepo persists join requests
type JoinRequestRepo interface {
	InsertJoinRequest(ctx context.Context, jr *models.JoinRequest) error
	GetJoinRequest(ctx context.Context, id string) (*models.JoinRequest, error)
	UpdateJoinRequest(ctx context.Context, jr *models.JoinRequest) error
	DeleteJoinRequest(ctx context.Context, id string) error
	// FindPendingJoinRequest returns ErrNotFound if the user has no pending request
	FindPendingJoinRequest(ctx context.Context, orgID, userID string) (*models.JoinRequest, error)
	// ListJoinRequests filters by status unless status is empty
	ListJoinRequests(ctx context.Context, orgID string, status models.JoinRequestStatus) ([]*models.JoinRequest, error)
	DeleteJoinRequestsByOrg(ctx context.Context, orgID string) (int, error)
}

// DocumentFilter selects documents of one table
type DocumentFilter struct {
	Table          string
	OrgID          string
	IncludeDeleted bool
	// Where matches data fields by string equality
	Where map[string]string
	Limit int
}

// DocumentRepo persists org-scoped documents of every table
type DocumentRepo interface {
	InsertDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, table, id string) (*models.Document, error)
	UpdateDocument(ctx context.Context, doc *models.Document) error
	// DeleteDocument is a no-op when the row is absent
	DeleteDocument(ctx context.Context, table, id string) error
	// DeleteDocuments removes the given ids and returns how many existed
	DeleteDocuments(ctx context.Context, table string, ids []string) (int, error)
	ListDocuments(ctx context.Context, filter DocumentFilter) ([]*models.Document, error)
	// ListDocumentIDs returns the ids of orgID's documents whose field equals
	// one of values. The field may be a reserved column such as orgId.
	ListDocumentIDs(ctx context.Context, orgID, table, field string, values []string) ([]string, error)
}

// Tx is a unit of work over every repository
type Tx interface {
	OrganizationRepo
	MembershipRepo
	InviteRepo
	JoinRequestRepo
	DocumentRepo
}

// Store is a transactional document store. Every engine operation runs
// inside exactly one WithTx call; fn's writes are committed if it returns
// nil and discarded otherwise. WithTx calls must not be nested.
type Store interface {
	WithTx(ctx context.Context, fn func(tx Tx) error) error
	Ping(ctx context.Context) error
	Close() error
}
