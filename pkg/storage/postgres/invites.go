package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/1qh/nexvex/pkg/models"
	"github.com/1qh/nexvex/pkg/storage"
)

const inviteColumns = `id, org_id, email, token, is_admin, invited_by, created_at, expires_at`

func scanInvite(row rowScanner) (*models.Invite, error) {
	inv := &models.Invite{}
	err := row.Scan(&inv.ID, &inv.OrgID, &inv.Email, &inv.Token, &inv.IsAdmin,
		&inv.InvitedBy, &inv.CreatedAt, &inv.ExpiresAt)
	return inv, err
}

func (t *tx) InsertInvite(ctx context.Context, inv *models.Invite) error {
	query := `
		INSERT INTO invites (id, org_id, email, token, is_admin, invited_by, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := t.q.ExecContext(ctx, query, inv.ID, inv.OrgID, inv.Email, inv.Token,
		inv.IsAdmin, inv.InvitedBy, inv.CreatedAt, inv.ExpiresAt)
	if err != nil {
		return insertErr("create invite", err)
	}
	return nil
}

func (t *tx) getInvite(ctx context.Context, where string, arg interface{}) (*models.Invite, error) {
	query := `SELECT ` + inviteColumns + ` FROM invites WHERE ` + where
	inv, err := scanInvite(t.q.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invite: %w", err)
	}
	return inv, nil
}

func (t *tx) GetInvite(ctx context.Context, id string) (*models.Invite, error) {
	return t.getInvite(ctx, "id = $1", id)
}

func (t *tx) GetInviteByToken(ctx context.Context, token string) (*models.Invite, error) {
	return t.getInvite(ctx, "token = $1", token)
}

func (t *tx) DeleteInvite(ctx context.Context, id string) error {
	_, err := execCount(ctx, t.q, "delete invite", `DELETE FROM invites WHERE id = $1`, id)
	return err
}

func (t *tx) ListInvites(ctx context.Context, orgID string) ([]*models.Invite, error) {
	query := `SELECT ` + inviteColumns + ` FROM invites WHERE org_id = $1 ORDER BY created_at ASC`
	rows, err := t.q.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list invites: %w", err)
	}
	defer rows.Close()

	var invites []*models.Invite
	for rows.Next() {
		inv, err := scanInvite(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invite: %w", err)
		}
		invites = append(invites, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate invites: %w", err)
	}
	return invites, nil
}

func (t *tx) DeleteInvitesByOrg(ctx context.Context, orgID string) (int, error) {
	return execCount(ctx, t.q, "delete invites", `DELETE FROM invites WHERE org_id = $1`, orgID)
}
