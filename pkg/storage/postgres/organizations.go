package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/1qh/nexvex/pkg/models"
	"github.com/1qh/nexvex/pkg/storage"
)

const orgColumns = `id, name, slug, owner_user_id, created_at, updated_at, removing_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrganization(row rowScanner) (*models.Organization, error) {
	org := &models.Organization{}
	var removingAt sql.NullTime
	if err := row.Scan(&org.ID, &org.Name, &org.Slug, &org.OwnerUserID,
		&org.CreatedAt, &org.UpdatedAt, &removingAt); err != nil {
		return nil, err
	}
	if removingAt.Valid {
		at := removingAt.Time
		org.RemovingAt = &at
	}
	return org, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func (t *tx) InsertOrganization(ctx context.Context, org *models.Organization) error {
	query := `
		INSERT INTO organizations (id, name, slug, owner_user_id, created_at, updated_at, removing_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := t.q.ExecContext(ctx, query, org.ID, org.Name, org.Slug, org.OwnerUserID,
		org.CreatedAt, org.UpdatedAt, nullTime(org.RemovingAt))
	if err != nil {
		return insertErr("create organization", err)
	}
	return nil
}

func (t *tx) getOrganization(ctx context.Context, where string, arg interface{}) (*models.Organization, error) {
	query := `SELECT ` + orgColumns + ` FROM organizations WHERE ` + where
	org, err := scanOrganization(t.q.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	return org, nil
}

func (t *tx) GetOrganization(ctx context.Context, id string) (*models.Organization, error) {
	return t.getOrganization(ctx, "id = $1", id)
}

func (t *tx) GetOrganizationBySlug(ctx context.Context, slug string) (*models.Organization, error) {
	return t.getOrganization(ctx, "slug = $1", slug)
}

func (t *tx) UpdateOrganization(ctx context.Context, org *models.Organization) error {
	query := `
		UPDATE organizations
		SET name = $2, slug = $3, owner_user_id = $4, updated_at = $5, removing_at = $6
		WHERE id = $1
	`
	return execOne(ctx, t.q, "update organization", query, org.ID, org.Name, org.Slug,
		org.OwnerUserID, org.UpdatedAt, nullTime(org.RemovingAt))
}

func (t *tx) DeleteOrganization(ctx context.Context, id string) error {
	_, err := execCount(ctx, t.q, "delete organization", `DELETE FROM organizations WHERE id = $1`, id)
	return err
}

func (t *tx) ListOrganizationsForUser(ctx context.Context, userID string) ([]*models.Organization, error) {
	query := `
		SELECT ` + orgColumns + `
		FROM organizations
		WHERE owner_user_id = $1
		   OR id IN (SELECT org_id FROM memberships WHERE user_id = $1)
		ORDER BY created_at ASC
	`
	return t.listOrganizations(ctx, query, userID)
}

func (t *tx) ListRemovingOrganizations(ctx context.Context, before time.Time) ([]*models.Organization, error) {
	query := `
		SELECT ` + orgColumns + `
		FROM organizations
		WHERE removing_at IS NOT NULL AND removing_at < $1
		ORDER BY removing_at ASC
	`
	return t.listOrganizations(ctx, query, before)
}

func (t *tx) listOrganizations(ctx context.Context, query string, args ...interface{}) ([]*models.Organization, error) {
	rows, err := t.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	defer rows.Close()

	var orgs []*models.Organization
	for rows.Next() {
		org, err := scanOrganization(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan organization: %w", err)
		}
		orgs = append(orgs, org)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate organizations: %w", err)
	}
	return orgs, nil
}
