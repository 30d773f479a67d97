package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/1qh/nexvex/pkg/models"
	"github.com/1qh/nexvex/pkg/storage"
)

const joinRequestColumns = `id, org_id, user_id, message, status, created_at, updated_at`

func scanJoinRequest(row rowScanner) (*models.JoinRequest, error) {
	jr := &models.JoinRequest{}
	err := row.Scan(&jr.ID, &jr.OrgID, &jr.UserID, &jr.Message, &jr.Status, &jr.CreatedAt, &jr.UpdatedAt)
	return jr, err
}

func (t *tx) InsertJoinRequest(ctx context.Context, jr *models.JoinRequest) error {
	query := `
		INSERT INTO join_requests (id, org_id, user_id, message, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := t.q.ExecContext(ctx, query, jr.ID, jr.OrgID, jr.UserID, jr.Message,
		string(jr.Status), jr.CreatedAt, jr.UpdatedAt)
	if err != nil {
		return insertErr("create join request", err)
	}
	return nil
}

func (t *tx) getJoinRequest(ctx context.Context, where string, args ...interface{}) (*models.JoinRequest, error) {
	query := `SELECT ` + joinRequestColumns + ` FROM join_requests WHERE ` + where
	jr, err := scanJoinRequest(t.q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get join request: %w", err)
	}
	return jr, nil
}

func (t *tx) GetJoinRequest(ctx context.Context, id string) (*models.JoinRequest, error) {
	return t.getJoinRequest(ctx, "id = $1", id)
}

func (t *tx) FindPendingJoinRequest(ctx context.Context, orgID, userID string) (*models.JoinRequest, error) {
	return t.getJoinRequest(ctx, "org_id = $1 AND user_id = $2 AND status = $3 LIMIT 1",
		orgID, userID, string(models.JoinRequestPending))
}

func (t *tx) UpdateJoinRequest(ctx context.Context, jr *models.JoinRequest) error {
	query := `UPDATE join_requests SET status = $2, message = $3, updated_at = $4 WHERE id = $1`
	return execOne(ctx, t.q, "update join request", query, jr.ID, string(jr.Status), jr.Message, jr.UpdatedAt)
}

func (t *tx) DeleteJoinRequest(ctx context.Context, id string) error {
	_, err := execCount(ctx, t.q, "delete join request", `DELETE FROM join_requests WHERE id = $1`, id)
	return err
}

func (t *tx) ListJoinRequests(ctx context.Context, orgID string, status models.JoinRequestStatus) ([]*models.JoinRequest, error) {
	query := `SELECT ` + joinRequestColumns + ` FROM join_requests WHERE org_id = $1`
	args := []interface{}{orgID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at ASC`

	rows, err := t.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list join requests: %w", err)
	}
	defer rows.Close()

	var requests []*models.JoinRequest
	for rows.Next() {
		jr, err := scanJoinRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan join request: %w", err)
		}
		requests = append(requests, jr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate join requests: %w", err)
	}
	return requests, nil
}

func (t *tx) DeleteJoinRequestsByOrg(ctx context.Context, orgID string) (int, error) {
	return execCount(ctx, t.q, "delete join requests", `DELETE FROM join_requests WHERE org_id = $1`, orgID)
}
