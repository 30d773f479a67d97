package orgs

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/1qh/nexvex/pkg/apperr"
	"github.com/1qh/nexvex/pkg/audit"
	"github.com/1qh/nexvex/pkg/models"
	"github.com/1qh/nexvex/pkg/rbac"
	"github.com/1qh/nexvex/pkg/storage"
)

// normalizeEmail validates a bare address and returns it lowercased
func normalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", apperr.Validation(map[string]string{"email": "is required"})
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", apperr.Validation(map[string]string{"email": "is not a valid address"})
	}
	return strings.ToLower(addr.Address), nil
}

// Invite issues an invite token for email. The token is returned once and
// must be delivered to the invitee out of band.
func (m *Manager) Invite(ctx context.Context, orgID string, req InviteRequest) (result *InviteResult, err error) {
	defer m.track("invite", m.now(), &err)

	userID, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	token, err := m.newToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate invite token: %w", err)
	}

	now := m.stamp()
	invite := &models.Invite{
		ID:        m.newID(),
		OrgID:     orgID,
		Email:     email,
		Token:     token,
		IsAdmin:   req.IsAdmin,
		InvitedBy: userID,
		CreatedAt: now,
		ExpiresAt: now.Add(m.inviteTTL),
	}
	err = m.store.WithTx(ctx, func(tx storage.Tx) error {
		role, _, err := m.resolver.Resolve(ctx, tx, orgID, userID)
		if err != nil {
			return err
		}
		if err := rbac.Require(role, rbac.RoleAdmin); err != nil {
			return err
		}
		if err := tx.InsertInvite(ctx, invite); err != nil {
			return fmt.Errorf("failed to create invite: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.record(ctx, audit.NewEvent(ctx, audit.EventTypeInviteCreate, orgID).
		Resource(audit.ResourceTypeInvite, invite.ID).
		With("email", email).
		With("is_admin", req.IsAdmin))
	m.logger.WithFields(map[string]interface{}{
		"org_id":    orgID,
		"invite_id": invite.ID,
	}).Info("Invite issued")

	return &InviteResult{InviteID: invite.ID, Token: token, ExpiresAt: invite.ExpiresAt}, nil
}

// AcceptInvite redeems a token for the caller. The membership is created
// and the invite deleted in the same transaction.
func (m *Manager) AcceptInvite(ctx context.Context, token string) (result *models.Membership, err error) {
	defer m.track("accept_invite", m.now(), &err)

	userID, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, apperr.New(apperr.CodeInvalidInvite)
	}
	var invite *models.Invite
	err = m.store.WithTx(ctx, func(tx storage.Tx) error {
		var err error
		invite, err = tx.GetInviteByToken(ctx, token)
		if errors.Is(err, storage.ErrNotFound) {
			return apperr.New(apperr.CodeInvalidInvite)
		}
		if err != nil {
			return fmt.Errorf("failed to get invite: %w", err)
		}
		org, err := liveOrg(tx.GetOrganization(ctx, invite.OrgID))
		if apperr.Is(err, apperr.CodeNotFound) {
			return apperr.New(apperr.CodeInvalidInvite)
		}
		if err != nil {
			return err
		}
		if invite.Expired(m.now()) {
			return apperr.New(apperr.CodeInviteExpired)
		}
		role, err := m.resolver.RoleIn(ctx, tx, org, userID)
		if err != nil {
			return err
		}
		if role != rbac.RoleNone {
			return apperr.New(apperr.CodeAlreadyOrgMember)
		}

		now := m.stamp()
		result = &models.Membership{
			ID:        m.newID(),
			OrgID:     org.ID,
			UserID:    userID,
			IsAdmin:   invite.IsAdmin,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.InsertMembership(ctx, result); err != nil {
			if errors.Is(err, storage.ErrDuplicate) {
				return apperr.New(apperr.CodeAlreadyOrgMember)
			}
			return fmt.Errorf("failed to create member: %w", err)
		}
		if err := tx.DeleteInvite(ctx, invite.ID); err != nil {
			return fmt.Errorf("failed to delete invite: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.record(ctx, audit.NewEvent(ctx, audit.EventTypeInviteAccept, result.OrgID).
		Resource(audit.ResourceTypeInvite, invite.ID).
		With("membership_id", result.ID).
		With("is_admin", result.IsAdmin))
	return result, nil
}

// RevokeInvite deletes an outstanding invite
func (m *Manager) RevokeInvite(ctx context.Context, inviteID string) (err error) {
	defer m.track("revoke_invite", m.now(), &err)

	userID, err := caller(ctx)
	if err != nil {
		return err
	}
	var invite *models.Invite
	err = m.store.WithTx(ctx, func(tx storage.Tx) error {
		var err error
		invite, err = tx.GetInvite(ctx, inviteID)
		if errors.Is(err, storage.ErrNotFound) {
			return apperr.NotFound("invite")
		}
		if err != nil {
			return fmt.Errorf("failed to get invite: %w", err)
		}
		role, _, err := m.resolver.Resolve(ctx, tx, invite.OrgID, userID)
		if err != nil {
			return err
		}
		if err := rbac.Require(role, rbac.RoleAdmin); err != nil {
			return err
		}
		if err := tx.DeleteInvite(ctx, invite.ID); err != nil {
			return fmt.Errorf("failed to revoke invite: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	m.record(ctx, audit.NewEvent(ctx, audit.EventTypeInviteRevoke, invite.OrgID).
		Resource(audit.ResourceTypeInvite, invite.ID))
	return nil
}

// PendingInvites lists the organization's outstanding invites. Tokens are
// not included.
func (m *Manager) PendingInvites(ctx context.Context, orgID string) (result []*PendingInvite, err error) {
	defer m.track("pending_invites", m.now(), &err)

	userID, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	err = m.store.WithTx(ctx, func(tx storage.Tx) error {
		role, _, err := m.resolver.Resolve(ctx, tx, orgID, userID)
		if err != nil {
			return err
		}
		if err := rbac.Require(role, rbac.RoleAdmin); err != nil {
			return err
		}
		invites, err := tx.ListInvites(ctx, orgID)
		if err != nil {
			return fmt.Errorf("failed to list invites: %w", err)
		}
		now := m.now()
		result = make([]*PendingInvite, 0, len(invites))
		for _, invite := range invites {
			invite.Token = ""
			result = append(result, &PendingInvite{Invite: invite, Expired: invite.Expired(now)})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
