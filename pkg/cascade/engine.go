package cascade

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/1qh/nexvex/pkg/apperr"
	"github.com/1qh/nexvex/pkg/models"
	"github.com/1qh/nexvex/pkg/observability"
	"github.com/1qh/nexvex/pkg/storage"
)

// DefaultBatchSize bounds the rows deleted per transaction
const DefaultBatchSize = 200

// Engine removes an organization together with every row that depends on it
type Engine struct {
	store     storage.Store
	graph     *Graph
	batchSize int
	logger    *observability.Logger
	metrics   *observability.Metrics
	now       func() time.Time
}

// Option configures an Engine
type Option func(*Engine)

// WithBatchSize sets the rows deleted per transaction
func WithBatchSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// WithLogger sets the engine logger
func WithLogger(logger *observability.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithMetrics records cascade progress
func WithMetrics(metrics *observability.Metrics) Option {
	return func(e *Engine) {
		e.metrics = metrics
	}
}

// WithClock overrides the clock used for RemovingAt stamps
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine validates edges and creates an engine
func NewEngine(store storage.Store, edges []Edge, opts ...Option) (*Engine, error) {
	graph, err := NewGraph(edges)
	if err != nil {
		return nil, err
	}
	e := &Engine{
		store:     store,
		graph:     graph,
		batchSize: DefaultBatchSize,
		logger:    observability.Nop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Graph returns the validated cascade graph
func (e *Engine) Graph() *Graph {
	return e.graph
}

// Cleared counts the membership facts removed when removal starts
type Cleared struct {
	Memberships  int `json:"memberships"`
	Invites      int `json:"invites"`
	JoinRequests int `json:"join_requests"`
}

// Result summarises one removal pass
type Result struct {
	OrgID   string         `json:"org_id"`
	Cleared Cleared        `json:"cleared"`
	Deleted map[string]int `json:"deleted"`
	Failed  map[string]int `json:"failed,omitempty"`
	// Complete is false when rows were skipped; the organization then stays
	// marked as removing so a later pass can retry them
	Complete bool `json:"complete"`
}

// FailedRows returns the number of rows skipped across all tables
func (r *Result) FailedRows() int {
	n := 0
	for _, c := range r.Failed {
		n += c
	}
	return n
}

// MarkRemoving stamps RemovingAt on org and deletes its memberships, invites
// and join requests inside the caller's transaction. A failure here must
// abort the caller's transaction. Marking an already removing organization
// keeps the original stamp.
func (e *Engine) MarkRemoving(ctx context.Context, tx storage.Tx, org *models.Organization) (Cleared, error) {
	var cleared Cleared

	if org.RemovingAt == nil {
		at := e.now().UTC()
		org.RemovingAt = &at
		if err := tx.UpdateOrganization(ctx, org); err != nil {
			return cleared, fmt.Errorf("failed to mark organization removing: %w", err)
		}
	}

	var err error
	if cleared.Memberships, err = tx.DeleteMembershipsByOrg(ctx, org.ID); err != nil {
		return cleared, fmt.Errorf("failed to delete memberships: %w", err)
	}
	if cleared.Invites, err = tx.DeleteInvitesByOrg(ctx, org.ID); err != nil {
		return cleared, fmt.Errorf("failed to delete invites: %w", err)
	}
	if cleared.JoinRequests, err = tx.DeleteJoinRequestsByOrg(ctx, org.ID); err != nil {
		return cleared, fmt.Errorf("failed to delete join requests: %w", err)
	}
	return cleared, nil
}

// Remove runs a full removal of orgID: mark it removing and clear its
// membership facts in one transaction, then delete dependent documents and
// finally the organization row. Authorization is the caller's concern.
func (e *Engine) Remove(ctx context.Context, orgID string) (*Result, error) {
	var cleared Cleared
	err := e.store.WithTx(ctx, func(tx storage.Tx) error {
		org, err := tx.GetOrganization(ctx, orgID)
		if err != nil {
			return err
		}
		cleared, err = e.MarkRemoving(ctx, tx, org)
		return err
	})
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperr.NotFound("organization")
	}
	if err != nil {
		e.metrics.RecordCascade(err)
		return nil, err
	}

	result, err := e.Resume(ctx, orgID)
	if result != nil {
		result.Cleared = cleared
	}
	return result, err
}

// Resume deletes the dependent documents of an organization already marked
// removing, deepest tables first, then the organization row. It is safe to
// call repeatedly; absent rows are skipped. Rows that fail to delete are
// logged and skipped, and the organization row is kept while any remain.
func (e *Engine) Resume(ctx context.Context, orgID string) (result *Result, err error) {
	start := e.now()
	logger := e.logger.WithField("org_id", orgID)
	defer func() {
		e.metrics.RecordCascade(err)
		if err != nil {
			logger.WithError(err).Error("organization removal failed")
		}
	}()

	result = &Result{
		OrgID:   orgID,
		Deleted: make(map[string]int),
		Failed:  make(map[string]int),
	}

	// the organization row can already be gone when a previous pass finished
	if err := e.store.WithTx(ctx, func(tx storage.Tx) error {
		org, err := tx.GetOrganization(ctx, orgID)
		if err != nil {
			return err
		}
		if !org.Removing() {
			return fmt.Errorf("organization %s is not marked for removal", orgID)
		}
		return nil
	}); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	ids, err := e.resolve(ctx, orgID)
	if err != nil {
		return nil, err
	}

	for _, table := range e.graph.Tables() {
		deleted, failed, err := e.deleteTable(ctx, logger, table, ids[table])
		if err != nil {
			return result, err
		}
		result.Deleted[table] = deleted
		if failed > 0 {
			result.Failed[table] = failed
		}
		e.metrics.RecordCascadeRows(table, deleted, failed)
	}

	if result.FailedRows() > 0 {
		logger.WithField("failed_rows", result.FailedRows()).
			Warn("organization removal incomplete, rows were skipped")
		return result, nil
	}

	if err := e.store.WithTx(ctx, func(tx storage.Tx) error {
		return tx.DeleteOrganization(ctx, orgID)
	}); err != nil {
		return result, fmt.Errorf("failed to delete organization: %w", err)
	}
	result.Complete = true

	logger.WithFields(map[string]interface{}{
		"deleted":     result.Deleted,
		"duration_ms": e.now().Sub(start).Milliseconds(),
	}).Info("organization removed")
	return result, nil
}

// resolve collects dependent document ids top-down, one read transaction.
// Child edges only reach rows of orgID.
func (e *Engine) resolve(ctx context.Context, orgID string) (map[string][]string, error) {
	ids := make(map[string][]string)
	err := e.store.WithTx(ctx, func(tx storage.Tx) error {
		for _, level := range e.graph.levels() {
			for _, table := range level {
				set := make(map[string]struct{})
				for _, edge := range e.graph.edgesInto(table) {
					values := []string{orgID}
					if edge.Parent != "" {
						values = ids[edge.Parent]
					}
					for _, chunk := range chunks(values, e.batchSize) {
						found, err := tx.ListDocumentIDs(ctx, orgID, table, edge.ForeignKey, chunk)
						if err != nil {
							return fmt.Errorf("failed to resolve %s: %w", edge, err)
						}
						for _, id := range found {
							set[id] = struct{}{}
						}
					}
				}
				ids[table] = sortedKeys(set)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// deleteTable deletes ids in batches. A failing batch is retried row by row.
// Only a cancelled context stops the pass.
func (e *Engine) deleteTable(ctx context.Context, logger *observability.Logger, table string, ids []string) (deleted, failed int, err error) {
	for _, batch := range chunks(ids, e.batchSize) {
		var n int
		batchErr := e.store.WithTx(ctx, func(tx storage.Tx) error {
			var err error
			n, err = tx.DeleteDocuments(ctx, table, batch)
			return err
		})
		if batchErr == nil {
			deleted += n
			continue
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return deleted, failed, ctxErr
		}

		logger.WithError(batchErr).WithFields(map[string]interface{}{
			"table": table,
			"rows":  len(batch),
		}).Warn("cascade batch failed, retrying row by row")

		for _, id := range batch {
			rowErr := e.store.WithTx(ctx, func(tx storage.Tx) error {
				return tx.DeleteDocument(ctx, table, id)
			})
			if rowErr == nil {
				deleted++
				continue
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return deleted, failed, ctxErr
			}
			failed++
			logger.WithError(rowErr).WithFields(map[string]interface{}{
				"table":       table,
				"document_id": id,
			}).Error("cascade row delete failed, skipping")
		}
	}
	return deleted, failed, nil
}

func (g *Graph) edgesInto(table string) []Edge {
	var out []Edge
	for _, e := range g.edges {
		if e.Table == table {
			out = append(out, e)
		}
	}
	return out
}

func chunks(ids []string, size int) [][]string {
	var out [][]string
	for len(ids) > 0 {
		n := size
		if n > len(ids) {
			n = len(ids)
		}
		out = append(out, ids[:n])
		ids = ids[n:]
	}
	return out
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
