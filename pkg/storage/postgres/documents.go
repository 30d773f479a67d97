package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/lib/pq"

	"github.com/1qh/nexvex/pkg/models"
	"github.com/1qh/nexvex/pkg/storage"
)

const documentColumns = `table_name, id, org_id, user_id, editors, deleted, data, created_at, updated_at`

// reservedColumns maps reserved document fields to their typed columns
var reservedColumns = map[string]string{
	models.FieldID:     "id",
	models.FieldOrgID:  "org_id",
	models.FieldUserID: "user_id",
}

func scanDocument(row rowScanner) (*models.Document, error) {
	doc := &models.Document{}
	var data []byte
	if err := row.Scan(&doc.Table, &doc.ID, &doc.OrgID, &doc.UserID, pq.Array(&doc.Editors),
		&doc.Deleted, &data, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
		return nil, err
	}
	doc.Data = map[string]any{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &doc.Data); err != nil {
			return nil, fmt.Errorf("failed to unmarshal data: %w", err)
		}
	}
	return doc, nil
}

func marshalData(data map[string]any) ([]byte, error) {
	if data == nil {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal data: %w", err)
	}
	return b, nil
}

func editorsArray(editors []string) interface{} {
	if editors == nil {
		editors = []string{}
	}
	return pq.Array(editors)
}

func (t *tx) InsertDocument(ctx context.Context, doc *models.Document) error {
	data, err := marshalData(doc.Data)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO documents (` + documentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = t.q.ExecContext(ctx, query, doc.Table, doc.ID, doc.OrgID, doc.UserID,
		editorsArray(doc.Editors), doc.Deleted, data, doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		return insertErr("create document", err)
	}
	return nil
}

func (t *tx) GetDocument(ctx context.Context, table, id string) (*models.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE table_name = $1 AND id = $2`
	doc, err := scanDocument(t.q.QueryRowContext(ctx, query, table, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return doc, nil
}

func (t *tx) UpdateDocument(ctx context.Context, doc *models.Document) error {
	data, err := marshalData(doc.Data)
	if err != nil {
		return err
	}
	query := `
		UPDATE documents
		SET editors = $3, deleted = $4, data = $5, updated_at = $6
		WHERE table_name = $1 AND id = $2
	`
	return execOne(ctx, t.q, "update document", query, doc.Table, doc.ID,
		editorsArray(doc.Editors), doc.Deleted, data, doc.UpdatedAt)
}

func (t *tx) DeleteDocument(ctx context.Context, table, id string) error {
	_, err := execCount(ctx, t.q, "delete document",
		`DELETE FROM documents WHERE table_name = $1 AND id = $2`, table, id)
	return err
}

func (t *tx) DeleteDocuments(ctx context.Context, table string, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	return execCount(ctx, t.q, "delete documents",
		`DELETE FROM documents WHERE table_name = $1 AND id = ANY($2)`, table, pq.Array(ids))
}

func (t *tx) ListDocuments(ctx context.Context, filter storage.DocumentFilter) ([]*models.Document, error) {
	var (
		conds = []string{"table_name = $1"}
		args  = []interface{}{filter.Table}
	)
	if filter.OrgID != "" {
		args = append(args, filter.OrgID)
		conds = append(conds, fmt.Sprintf("org_id = $%d", len(args)))
	}
	if !filter.IncludeDeleted {
		conds = append(conds, "deleted = FALSE")
	}

	fields := make([]string, 0, len(filter.Where))
	for field := range filter.Where {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	for _, field := range fields {
		args = append(args, filter.Where[field])
		value := len(args)
		if col, ok := reservedColumns[field]; ok {
			conds = append(conds, fmt.Sprintf("%s = $%d", col, value))
			continue
		}
		args = append(args, field)
		conds = append(conds, fmt.Sprintf("data->>$%d = $%d", len(args), value))
	}

	query := `SELECT ` + documentColumns + ` FROM documents WHERE ` +
		strings.Join(conds, " AND ") + ` ORDER BY created_at ASC, id ASC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := t.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []*models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate documents: %w", err)
	}
	return docs, nil
}

func (t *tx) ListDocumentIDs(ctx context.Context, orgID, table, field string, values []string) ([]string, error) {
	if len(values) == 0 {
		return nil, nil
	}

	var (
		query string
		args  []interface{}
	)
	if col, ok := reservedColumns[field]; ok {
		query = `SELECT id FROM documents WHERE table_name = $1 AND org_id = $2 AND ` + col + ` = ANY($3) ORDER BY id`
		args = []interface{}{table, orgID, pq.Array(values)}
	} else {
		query = `SELECT id FROM documents WHERE table_name = $1 AND org_id = $2 AND data->>$3 = ANY($4) ORDER BY id`
		args = []interface{}{table, orgID, field, pq.Array(values)}
	}

	rows, err := t.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list document ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan document id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate document ids: %w", err)
	}
	return ids, nil
}
