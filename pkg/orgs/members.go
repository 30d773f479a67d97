package orgs

import (
	"context"
	"errors"
	"fmt"

	"github.com/1qh/nexvex/pkg/apperr"
	"github.com/1qh/nexvex/pkg/audit"
	"github.com/1qh/nexvex/pkg/models"
	"github.com/1qh/nexvex/pkg/rbac"
	"github.com/1qh/nexvex/pkg/storage"
)

// loadMembership loads a membership row by id
func loadMembership(ctx context.Context, tx storage.Tx, memberID string) (*models.Membership, error) {
	membership, err := tx.GetMembership(ctx, memberID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperr.NotFound("member")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	return membership, nil
}

// Membership returns the caller's role and membership row. A caller with no
// role gets RoleNone, not an error.
func (m *Manager) Membership(ctx context.Context, orgID string) (result *MembershipInfo, err error) {
	defer m.track("membership", m.now(), &err)

	userID, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	err = m.store.WithTx(ctx, func(tx storage.Tx) error {
		role, org, err := m.resolver.Resolve(ctx, tx, orgID, userID)
		if err != nil {
			return err
		}
		result = &MembershipInfo{OrgID: org.ID, Role: role}
		membership, err := tx.GetMembershipByUser(ctx, org.ID, userID)
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to get member: %w", err)
		}
		result.Membership = membership
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Members lists the members of an organization. The owner is listed even
// when they hold no membership row.
func (m *Manager) Members(ctx context.Context, orgID string) (result []*Member, err error) {
	defer m.track("members", m.now(), &err)

	userID, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	err = m.store.WithTx(ctx, func(tx storage.Tx) error {
		role, org, err := m.resolver.Resolve(ctx, tx, orgID, userID)
		if err != nil {
			return err
		}
		if err := rbac.Require(role, rbac.RoleMember); err != nil {
			return err
		}
		rows, err := tx.ListMemberships(ctx, org.ID)
		if err != nil {
			return fmt.Errorf("failed to list members: %w", err)
		}

		result = make([]*Member, 0, len(rows)+1)
		ownerListed := false
		for _, row := range rows {
			if row.UserID == org.OwnerUserID {
				ownerListed = true
			}
			result = append(result, &Member{
				MembershipID: row.ID,
				UserID:       row.UserID,
				Role:         rbac.RoleOf(org, row, row.UserID),
				IsAdmin:      row.IsAdmin,
				CreatedAt:    row.CreatedAt,
			})
		}
		if !ownerListed {
			result = append([]*Member{{
				UserID:    org.OwnerUserID,
				Role:      rbac.RoleOwner,
				IsAdmin:   true,
				CreatedAt: org.CreatedAt,
			}}, result...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// SetAdmin promotes or demotes a member. Only the owner may call it and the
// owner's own row cannot be changed.
func (m *Manager) SetAdmin(ctx context.Context, memberID string, isAdmin bool) (result *models.Membership, err error) {
	defer m.track("set_admin", m.now(), &err)

	userID, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	changed := false
	err = m.store.WithTx(ctx, func(tx storage.Tx) error {
		membership, err := loadMembership(ctx, tx, memberID)
		if err != nil {
			return err
		}
		role, org, err := m.resolver.Resolve(ctx, tx, membership.OrgID, userID)
		if err != nil {
			return err
		}
		if err := rbac.Require(role, rbac.RoleOwner); err != nil {
			return err
		}
		if membership.UserID == org.OwnerUserID {
			return apperr.New(apperr.CodeCannotModifyOwner)
		}

		result = membership
		if changed = membership.IsAdmin != isAdmin; !changed {
			return nil
		}
		membership.IsAdmin = isAdmin
		membership.UpdatedAt = models.NextStamp(membership.UpdatedAt, m.now())
		if err := tx.UpdateMembership(ctx, membership); err != nil {
			return fmt.Errorf("failed to update member: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		m.record(ctx, audit.NewEvent(ctx, audit.EventTypeMemberSetAdmin, result.OrgID).
			Resource(audit.ResourceTypeMembership, result.ID).
			With("member_user_id", result.UserID).
			With("is_admin", isAdmin))
	}
	return result, nil
}

// RemoveMember removes a member. Admins may remove members; only the owner
// may remove admins; nobody may remove the owner.
func (m *Manager) RemoveMember(ctx context.Context, memberID string) (err error) {
	defer m.track("remove_member", m.now(), &err)

	userID, err := caller(ctx)
	if err != nil {
		return err
	}
	var membership *models.Membership
	err = m.store.WithTx(ctx, func(tx storage.Tx) error {
		var err error
		if membership, err = loadMembership(ctx, tx, memberID); err != nil {
			return err
		}
		role, org, err := m.resolver.Resolve(ctx, tx, membership.OrgID, userID)
		if err != nil {
			return err
		}
		if err := rbac.Require(role, rbac.RoleAdmin); err != nil {
			return err
		}
		if membership.UserID == org.OwnerUserID {
			return apperr.New(apperr.CodeCannotModifyOwner)
		}
		if membership.IsAdmin && role != rbac.RoleOwner {
			return apperr.New(apperr.CodeCannotModifyAdmin)
		}
		if err := tx.DeleteMembership(ctx, membership.ID); err != nil {
			return fmt.Errorf("failed to remove member: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	m.record(ctx, audit.NewEvent(ctx, audit.EventTypeMemberRemove, membership.OrgID).
		Resource(audit.ResourceTypeMembership, membership.ID).
		With("member_user_id", membership.UserID))
	return nil
}

// Leave removes the caller's own membership. The owner must transfer
// ownership first.
func (m *Manager) Leave(ctx context.Context, orgID string) (err error) {
	defer m.track("leave", m.now(), &err)

	userID, err := caller(ctx)
	if err != nil {
		return err
	}
	var membership *models.Membership
	err = m.store.WithTx(ctx, func(tx storage.Tx) error {
		role, org, err := m.resolver.Resolve(ctx, tx, orgID, userID)
		if err != nil {
			return err
		}
		switch role {
		case rbac.RoleOwner:
			return apperr.New(apperr.CodeMustTransferOwnership)
		case rbac.RoleNone:
			return apperr.New(apperr.CodeNotOrgMember)
		}
		if membership, err = tx.GetMembershipByUser(ctx, org.ID, userID); err != nil {
			return fmt.Errorf("failed to get member: %w", err)
		}
		if err := tx.DeleteMembership(ctx, membership.ID); err != nil {
			return fmt.Errorf("failed to leave organization: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	m.record(ctx, audit.NewEvent(ctx, audit.EventTypeMemberLeave, orgID).
		Resource(audit.ResourceTypeMembership, membership.ID))
	return nil
}

// TransferOwnership hands the organization to an admin. Only OwnerUserID is
// rewritten; both users' membership rows are left as they are, so the
// previous owner's role is recomputed from their row.
func (m *Manager) TransferOwnership(ctx context.Context, orgID, newOwnerUserID string) (result *OrgWithRole, err error) {
	defer m.track("transfer_ownership", m.now(), &err)

	userID, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if newOwnerUserID == "" {
		return nil, apperr.Validation(map[string]string{"new_owner_user_id": "is required"})
	}
	err = m.store.WithTx(ctx, func(tx storage.Tx) error {
		role, org, err := m.resolver.Resolve(ctx, tx, orgID, userID)
		if err != nil {
			return err
		}
		if err := rbac.Require(role, rbac.RoleOwner); err != nil {
			return err
		}
		target, err := m.resolver.RoleIn(ctx, tx, org, newOwnerUserID)
		if err != nil {
			return err
		}
		if target != rbac.RoleAdmin {
			return apperr.New(apperr.CodeTargetMustBeAdmin)
		}

		org.OwnerUserID = newOwnerUserID
		org.UpdatedAt = models.NextStamp(org.UpdatedAt, m.now())
		if err := tx.UpdateOrganization(ctx, org); err != nil {
			return fmt.Errorf("failed to transfer ownership: %w", err)
		}

		// the caller's role follows from their membership row now
		callerRole, err := m.resolver.RoleIn(ctx, tx, org, userID)
		if err != nil {
			return err
		}
		result = &OrgWithRole{Organization: org, Role: callerRole}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.record(ctx, audit.NewEvent(ctx, audit.EventTypeOrgTransferOwnership, orgID).
		Resource(audit.ResourceTypeOrganization, orgID).
		With("previous_owner", userID).
		With("new_owner", newOwnerUserID))
	return result, nil
}
