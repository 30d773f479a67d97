package orgs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/1qh/nexvex/pkg/apperr"
	"github.com/1qh/nexvex/pkg/audit"
	"github.com/1qh/nexvex/pkg/models"
	"github.com/1qh/nexvex/pkg/rbac"
	"github.com/1qh/nexvex/pkg/storage"
)

const maxJoinMessageLength = 500

// loadPendingRequest loads a join request that is still pending; any other
// state reads as NOT_FOUND
func loadPendingRequest(ctx context.Context, tx storage.Tx, requestID string) (*models.JoinRequest, error) {
	jr, err := tx.GetJoinRequest(ctx, requestID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperr.NotFound("join request")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get join request: %w", err)
	}
	if jr.Status != models.JoinRequestPending {
		return nil, apperr.NotFound("join request")
	}
	return jr, nil
}

// RequestJoin asks to join an organization. Only a pending request blocks a
// new one; earlier approved or rejected requests do not.
func (m *Manager) RequestJoin(ctx context.Context, orgID, message string) (result *models.JoinRequest, err error) {
	defer m.track("request_join", m.now(), &err)

	userID, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	message = strings.TrimSpace(message)
	if utf8.RuneCountInString(message) > maxJoinMessageLength {
		return nil, apperr.Validation(map[string]string{
			"message": fmt.Sprintf("must be at most %d characters", maxJoinMessageLength),
		})
	}
	err = m.store.WithTx(ctx, func(tx storage.Tx) error {
		role, org, err := m.resolver.Resolve(ctx, tx, orgID, userID)
		if err != nil {
			return err
		}
		if role != rbac.RoleNone {
			return apperr.New(apperr.CodeAlreadyOrgMember)
		}
		_, err = tx.FindPendingJoinRequest(ctx, org.ID, userID)
		if err == nil {
			return apperr.New(apperr.CodeJoinRequestExists)
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("failed to look up join request: %w", err)
		}

		now := m.stamp()
		result = &models.JoinRequest{
			ID:        m.newID(),
			OrgID:     org.ID,
			UserID:    userID,
			Message:   message,
			Status:    models.JoinRequestPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.InsertJoinRequest(ctx, result); err != nil {
			return fmt.Errorf("failed to create join request: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.record(ctx, audit.NewEvent(ctx, audit.EventTypeJoinRequestCreate, orgID).
		Resource(audit.ResourceTypeJoinRequest, result.ID))
	return result, nil
}

// decideJoinRequest moves a pending request to approved or rejected. On
// approval the requester gets a membership unless they already hold a role.
func (m *Manager) decideJoinRequest(ctx context.Context, requestID string, status models.JoinRequestStatus, isAdmin bool) (*models.JoinRequest, error) {
	userID, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	var result *models.JoinRequest
	err = m.store.WithTx(ctx, func(tx storage.Tx) error {
		jr, err := loadPendingRequest(ctx, tx, requestID)
		if err != nil {
			return err
		}
		role, org, err := m.resolver.Resolve(ctx, tx, jr.OrgID, userID)
		if err != nil {
			return err
		}
		if err := rbac.Require(role, rbac.RoleAdmin); err != nil {
			return err
		}

		if status == models.JoinRequestApproved {
			existing, err := m.resolver.RoleIn(ctx, tx, org, jr.UserID)
			if err != nil {
				return err
			}
			if existing == rbac.RoleNone {
				now := m.stamp()
				membership := &models.Membership{
					ID:        m.newID(),
					OrgID:     org.ID,
					UserID:    jr.UserID,
					IsAdmin:   isAdmin,
					CreatedAt: now,
					UpdatedAt: now,
				}
				if err := tx.InsertMembership(ctx, membership); err != nil {
					return fmt.Errorf("failed to create member: %w", err)
				}
			}
		}

		jr.Status = status
		jr.UpdatedAt = models.NextStamp(jr.UpdatedAt, m.now())
		if err := tx.UpdateJoinRequest(ctx, jr); err != nil {
			return fmt.Errorf("failed to update join request: %w", err)
		}
		result = jr
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ApproveJoinRequest accepts a pending request
func (m *Manager) ApproveJoinRequest(ctx context.Context, requestID string, isAdmin bool) (result *models.JoinRequest, err error) {
	defer m.track("approve_join_request", m.now(), &err)

	if result, err = m.decideJoinRequest(ctx, requestID, models.JoinRequestApproved, isAdmin); err != nil {
		return nil, err
	}
	m.record(ctx, audit.NewEvent(ctx, audit.EventTypeJoinRequestApprove, result.OrgID).
		Resource(audit.ResourceTypeJoinRequest, result.ID).
		With("requester", result.UserID).
		With("is_admin", isAdmin))
	return result, nil
}

// RejectJoinRequest declines a pending request
func (m *Manager) RejectJoinRequest(ctx context.Context, requestID string) (result *models.JoinRequest, err error) {
	defer m.track("reject_join_request", m.now(), &err)

	if result, err = m.decideJoinRequest(ctx, requestID, models.JoinRequestRejected, false); err != nil {
		return nil, err
	}
	m.record(ctx, audit.NewEvent(ctx, audit.EventTypeJoinRequestReject, result.OrgID).
		Resource(audit.ResourceTypeJoinRequest, result.ID).
		With("requester", result.UserID))
	return result, nil
}

// CancelJoinRequest withdraws the caller's own pending request
func (m *Manager) CancelJoinRequest(ctx context.Context, requestID string) (err error) {
	defer m.track("cancel_join_request", m.now(), &err)

	userID, err := caller(ctx)
	if err != nil {
		return err
	}
	var jr *models.JoinRequest
	err = m.store.WithTx(ctx, func(tx storage.Tx) error {
		var err error
		jr, err = tx.GetJoinRequest(ctx, requestID)
		if errors.Is(err, storage.ErrNotFound) {
			return apperr.NotFound("join request")
		}
		if err != nil {
			return fmt.Errorf("failed to get join request: %w", err)
		}
		if jr.UserID != userID {
			return apperr.New(apperr.CodeForbidden)
		}
		if jr.Status != models.JoinRequestPending {
			return apperr.NotFound("join request")
		}
		if err := tx.DeleteJoinRequest(ctx, jr.ID); err != nil {
			return fmt.Errorf("failed to cancel join request: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	m.record(ctx, audit.NewEvent(ctx, audit.EventTypeJoinRequestCancel, jr.OrgID).
		Resource(audit.ResourceTypeJoinRequest, jr.ID))
	return nil
}

// PendingJoinRequests lists the organization's pending requests
func (m *Manager) PendingJoinRequests(ctx context.Context, orgID string) (result []*models.JoinRequest, err error) {
	defer m.track("pending_join_requests", m.now(), &err)

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
		if result, err = tx.ListJoinRequests(ctx, orgID, models.JoinRequestPending); err != nil {
			return fmt.Errorf("failed to list join requests: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if result == nil {
		result = []*models.JoinRequest{}
	}
	return result, nil
}

// MyJoinRequest returns the caller's pending request, or nil without error
// when there is none
func (m *Manager) MyJoinRequest(ctx context.Context, orgID string) (result *models.JoinRequest, err error) {
	defer m.track("my_join_request", m.now(), &err)

	userID, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	err = m.store.WithTx(ctx, func(tx storage.Tx) error {
		org, err := liveOrg(tx.GetOrganization(ctx, orgID))
		if err != nil {
			return err
		}
		jr, err := tx.FindPendingJoinRequest(ctx, org.ID, userID)
		if errors.Is(err, storage.ErrNotFound) {
			result = nil
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to look up join request: %w", err)
		}
		result = jr
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
