package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/1qh/nexvex/pkg/storage"
)

//go:embed schema.sql
var schema string

const (
	pqUniqueViolation         = "23505"
	pqSerializationFailure    = "40001"
	defaultSerializationRetry = 3
)

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Store implements storage.Store using PostgreSQL. Every WithTx call runs in
// a serializable transaction and is retried when PostgreSQL reports a
// serialization failure.
type Store struct {
	db         *sql.DB
	maxRetries int
}

// Option configures a Store
type Option func(*Store)

// WithSerializationRetries sets how many times a transaction is retried
// after a serialization failure
func WithSerializationRetries(n int) Option {
	return func(s *Store) {
		s.maxRetries = n
	}
}

// NewStore creates a store over an open database
func NewStore(db *sql.DB, opts ...Option) *Store {
	s := &Store{db: db, maxRetries: defaultSerializationRetry}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Migrate creates the schema if it does not exist
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// WithTx runs fn inside a serializable transaction
func (s *Store) WithTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	for attempt := 0; ; attempt++ {
		err := s.runTx(ctx, fn)
		if err == nil || !isSerializationFailure(err) || attempt >= s.maxRetries {
			return err
		}
	}
}

func (s *Store) runTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(&tx{q: sqlTx}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Ping checks database connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying database handle
func (s *Store) DB() *sql.DB {
	return s.db
}

type tx struct {
	q querier
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation
}

func isSerializationFailure(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqSerializationFailure
}

// insertErr maps a unique violation to storage.ErrDuplicate
func insertErr(what string, err error) error {
	if isUniqueViolation(err) {
		return storage.ErrDuplicate
	}
	return fmt.Errorf("failed to %s: %w", what, err)
}

// execOne runs an update that must touch exactly one row
func execOne(ctx context.Context, q querier, what, query string, args ...interface{}) error {
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return insertErr(what, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to %s: %w", what, err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// execCount runs a delete and returns the affected row count
func execCount(ctx context.Context, q querier, what, query string, args ...interface{}) (int, error) {
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to %s: %w", what, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to %s: %w", what, err)
	}
	return int(n), nil
}
