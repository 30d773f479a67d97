package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/1qh/nexvex/pkg/apperr"
	"github.com/1qh/nexvex/pkg/models"
	"github.com/1qh/nexvex/pkg/storage"
)

// RoleOf derives userID's role from the organization and the user's
// membership row, which may be nil. Ownership is decided by OwnerUserID
// alone; a membership row held by the owner does not change the result.
func RoleOf(org *models.Organization, membership *models.Membership, userID string) Role {
	if userID == "" || org == nil {
		return RoleNone
	}
	if org.OwnerUserID == userID {
		return RoleOwner
	}
	if membership == nil || membership.OrgID != org.ID || membership.UserID != userID {
		return RoleNone
	}
	if membership.IsAdmin {
		return RoleAdmin
	}
	return RoleMember
}

// MinRole returns the role threshold of an operation
func MinRole(op Operation) Role {
	switch op {
	case OpList, OpRead, OpCreate, OpUpdate:
		return RoleMember
	default:
		return RoleAdmin
	}
}

// CanAccess evaluates a permission question. Updates are granted to admins,
// to the resource creator, and to listed editors when ACL is enabled.
// Every other operation reduces to its role threshold.
func CanAccess(a Access) bool {
	if a.Operation != OpUpdate {
		return a.Role.AtLeast(MinRole(a.Operation))
	}
	if !a.Role.AtLeast(RoleMember) {
		return false
	}
	if a.Role.AtLeast(RoleAdmin) {
		return true
	}
	if a.Resource == nil {
		return false
	}
	if a.Resource.UserID == a.UserID {
		return true
	}
	return a.ACL && a.Resource.HasEditor(a.UserID)
}

// Require fails unless role meets min. A caller with no role gets
// NOT_ORG_MEMBER, anyone else INSUFFICIENT_ORG_ROLE.
func Require(role, min Role) error {
	if role.AtLeast(min) {
		return nil
	}
	if role == RoleNone {
		return apperr.New(apperr.CodeNotOrgMember)
	}
	return apperr.New(apperr.CodeInsufficientOrgRole)
}

// Check evaluates a and maps a denial to the matching error: a failed
// role threshold to Require's codes, a failed per-resource check to
// FORBIDDEN
func Check(a Access) error {
	if CanAccess(a) {
		return nil
	}
	if err := Require(a.Role, MinRole(a.Operation)); err != nil {
		return err
	}
	return apperr.New(apperr.CodeForbidden)
}

// Resolver loads organizations and memberships and derives roles
type Resolver struct{}

// NewResolver creates a role resolver
func NewResolver() *Resolver {
	return &Resolver{}
}

// Resolve loads the organization and the caller's membership inside tx and
// derives the caller's role. An absent organization, or one being removed,
// is NOT_FOUND. Results are never cached.
func (r *Resolver) Resolve(ctx context.Context, tx storage.Tx, orgID, userID string) (Role, *models.Organization, error) {
	org, err := tx.GetOrganization(ctx, orgID)
	if errors.Is(err, storage.ErrNotFound) {
		return RoleNone, nil, apperr.NotFound("organization")
	}
	if err != nil {
		return RoleNone, nil, fmt.Errorf("failed to load organization: %w", err)
	}
	if org.Removing() {
		return RoleNone, nil, apperr.NotFound("organization")
	}

	role, err := r.RoleIn(ctx, tx, org, userID)
	if err != nil {
		return RoleNone, nil, err
	}
	return role, org, nil
}

// RoleIn derives userID's role in an already loaded organization
func (r *Resolver) RoleIn(ctx context.Context, tx storage.Tx, org *models.Organization, userID string) (Role, error) {
	if userID == "" {
		return RoleNone, nil
	}
	if org.OwnerUserID == userID {
		return RoleOwner, nil
	}

	membership, err := tx.GetMembershipByUser(ctx, org.ID, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return RoleNone, nil
	}
	if err != nil {
		return RoleNone, fmt.Errorf("failed to load membership: %w", err)
	}
	return RoleOf(org, membership, userID), nil
}
