package orgs

import (
	"context"
	"time"

	"github.com/1qh/nexvex/pkg/cascade"
	"github.com/1qh/nexvex/pkg/models"
	"github.com/1qh/nexvex/pkg/rbac"
)

// OrgWithRole is an organization together with the caller's role in it
type OrgWithRole struct {
	*models.Organization
	Role rbac.Role `json:"role"`
}

// MembershipInfo is the caller's standing in an organization. Membership is
// nil when the caller holds no membership row.
type MembershipInfo struct {
	OrgID      string             `json:"org_id"`
	Role       rbac.Role          `json:"role"`
	Membership *models.Membership `json:"membership,omitempty"`
}

// Member is one entry of an organization's member list. MembershipID is
// empty for an owner who holds no membership row.
type Member struct {
	MembershipID string    `json:"membership_id,omitempty"`
	UserID       string    `json:"user_id"`
	Role         rbac.Role `json:"role"`
	IsAdmin      bool      `json:"is_admin"`
	CreatedAt    time.Time `json:"created_at"`
}

// CreateRequest represents request to create an organization
type CreateRequest struct {
	Name string `json:"name"`
	// Slug is derived from Name when empty
	Slug string `json:"slug,omitempty"`
}

// UpdateRequest represents request to update an organization. Nil fields
// are left unchanged.
type UpdateRequest struct {
	Name              *string    `json:"name,omitempty"`
	Slug              *string    `json:"slug,omitempty"`
	ExpectedUpdatedAt *time.Time `json:"expected_updated_at,omitempty"`
}

// InviteRequest represents request to invite someone by email
type InviteRequest struct {
	Email   string `json:"email"`
	IsAdmin bool   `json:"is_admin"`
}

// InviteResult carries the token to deliver to the invitee
type InviteResult struct {
	InviteID  string    `json:"invite_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// PendingInvite is an outstanding invite as listed to admins
type PendingInvite struct {
	*models.Invite
	Expired bool `json:"expired"`
}

// Service defines the organization management surface
type Service interface {
	// Organizations
	Create(ctx context.Context, req CreateRequest) (*OrgWithRole, error)
	Update(ctx context.Context, orgID string, req UpdateRequest) (*OrgWithRole, error)
	Get(ctx context.Context, orgID string) (*OrgWithRole, error)
	GetBySlug(ctx context.Context, slug string) (*OrgWithRole, error)
	GetPublic(ctx context.Context, slug string) (*models.PublicOrganization, error)
	MyOrgs(ctx context.Context) ([]*OrgWithRole, error)
	Remove(ctx context.Context, orgID string) (*cascade.Result, error)
	IsSlugAvailable(ctx context.Context, slug string) (bool, error)

	// Membership
	Membership(ctx context.Context, orgID string) (*MembershipInfo, error)
	Members(ctx context.Context, orgID string) ([]*Member, error)
	SetAdmin(ctx context.Context, memberID string, isAdmin bool) (*models.Membership, error)
	RemoveMember(ctx context.Context, memberID string) error
	Leave(ctx context.Context, orgID string) error
	TransferOwnership(ctx context.Context, orgID, newOwnerUserID string) (*OrgWithRole, error)

	// Invites
	Invite(ctx context.Context, orgID string, req InviteRequest) (*InviteResult, error)
	AcceptInvite(ctx context.Context, token string) (*models.Membership, error)
	RevokeInvite(ctx context.Context, inviteID string) error
	PendingInvites(ctx context.Context, orgID string) ([]*PendingInvite, error)

	// Join requests
	RequestJoin(ctx context.Context, orgID, message string) (*models.JoinRequest, error)
	ApproveJoinRequest(ctx context.Context, requestID string, isAdmin bool) (*models.JoinRequest, error)
	RejectJoinRequest(ctx context.Context, requestID string) (*models.JoinRequest, error)
	CancelJoinRequest(ctx context.Context, requestID string) error
	PendingJoinRequests(ctx context.Context, orgID string) ([]*models.JoinRequest, error)
	MyJoinRequest(ctx context.Context, orgID string) (*models.JoinRequest, error)
}
