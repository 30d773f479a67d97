package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/1qh/nexvex/pkg/models"
	"github.com/1qh/nexvex/pkg/storage"
)

const membershipColumns = `id, org_id, user_id, is_admin, created_at, updated_at`

func scanMembership(row rowScanner) (*models.Membership, error) {
	m := &models.Membership{}
	err := row.Scan(&m.ID, &m.OrgID, &m.UserID, &m.IsAdmin, &m.CreatedAt, &m.UpdatedAt)
	return m, err
}

func (t *tx) InsertMembership(ctx context.Context, m *models.Membership) error {
	query := `
		INSERT INTO memberships (id, org_id, user_id, is_admin, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := t.q.ExecContext(ctx, query, m.ID, m.OrgID, m.UserID, m.IsAdmin, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return insertErr("create membership", err)
	}
	return nil
}

func (t *tx) getMembership(ctx context.Context, where string, args ...interface{}) (*models.Membership, error) {
	query := `SELECT ` + membershipColumns + ` FROM memberships WHERE ` + where
	m, err := scanMembership(t.q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	return m, nil
}

func (t *tx) GetMembership(ctx context.Context, id string) (*models.Membership, error) {
	return t.getMembership(ctx, "id = $1", id)
}

func (t *tx) GetMembershipByUser(ctx context.Context, orgID, userID string) (*models.Membership, error) {
	return t.getMembership(ctx, "org_id = $1 AND user_id = $2", orgID, userID)
}

func (t *tx) UpdateMembership(ctx context.Context, m *models.Membership) error {
	query := `UPDATE memberships SET is_admin = $2, updated_at = $3 WHERE id = $1`
	return execOne(ctx, t.q, "update membership", query, m.ID, m.IsAdmin, m.UpdatedAt)
}

func (t *tx) DeleteMembership(ctx context.Context, id string) error {
	_, err := execCount(ctx, t.q, "delete membership", `DELETE FROM memberships WHERE id = $1`, id)
	return err
}

func (t *tx) ListMemberships(ctx context.Context, orgID string) ([]*models.Membership, error) {
	query := `SELECT ` + membershipColumns + ` FROM memberships WHERE org_id = $1 ORDER BY created_at ASC`
	rows, err := t.q.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	defer rows.Close()

	var members []*models.Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate memberships: %w", err)
	}
	return members, nil
}

func (t *tx) DeleteMembershipsByOrg(ctx context.Context, orgID string) (int, error) {
	return execCount(ctx, t.q, "delete memberships", `DELETE FROM memberships WHERE org_id = $1`, orgID)
}
