package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/stackbill/stackbill/internal/config"
	ierr "github.com/stackbill/stackbill/internal/errors"
	"github.com/stackbill/stackbill/internal/logger"
	"github.com/stackbill/stackbill/internal/types"
)

// Querier is the query surface shared by *sqlx.DB and *sqlx.Tx, so
// repositories run the same code inside and outside a transaction.
type Querier interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error)
}

// IClient defines the interface for postgres client operations
type IClient interface {
	// WithTx wraps the given function in a transaction. Nested calls join
	// the enclosing transaction.
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error

	// WithTxRetry wraps the function in a transaction and re-executes it
	// from scratch, after a full rollback, when the store reports a
	// serialization conflict or deadlock. Each attempt recomputes all
	// transaction-scoped state. After maxAttempts the conflict surfaces as
	// ierr.ErrTransactionConflict.
	WithTxRetry(ctx context.Context, maxAttempts int, fn func(ctx context.Context) error) error

	// Querier returns the current transaction if one is in the context, or
	// the regular connection pool
	Querier(ctx context.Context) Querier
}

// Client wraps sqlx.DB to provide transaction management
type Client struct {
	db     *sqlx.DB
	logger *logger.Logger
}

// NewDB opens the postgres connection pool
func NewDB(cfg *config.Configuration) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", cfg.Postgres.GetDSN())
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("failed to connect to postgres").
			Mark(ierr.ErrDatabase)
	}

	db.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Postgres.MaxIdleConns)

	if err := db.Ping(); err != nil {
		return nil, ierr.WithError(err).
			WithHint("postgres ping failed").
			Mark(ierr.ErrDatabase)
	}

	return db, nil
}

// NewClient creates a new postgres client
func NewClient(db *sqlx.DB, logger *logger.Logger) IClient {
	return &Client{db: db, logger: logger}
}

// TxFromContext returns the transaction from context if it exists
func TxFromContext(ctx context.Context) *sqlx.Tx {
	if tx, ok := ctx.Value(types.CtxDBTransaction).(*sqlx.Tx); ok {
		return tx
	}
	return nil
}

func (c *Client) Querier(ctx context.Context) Querier {
	if tx := TxFromContext(ctx); tx != nil {
		return tx
	}
	return c.db
}

func (c *Client) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if TxFromContext(ctx) != nil {
		return fn(ctx)
	}

	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return ierr.WithError(err).
			WithHint("failed to begin transaction").
			Mark(ierr.ErrDatabase)
	}

	txCtx := context.WithValue(ctx, types.CtxDBTransaction, tx)

	if err := fn(txCtx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			c.logger.Errorw("transaction rollback failed", "error", rbErr)
		}
		return MarkConflict(err)
	}

	if err := tx.Commit(); err != nil {
		return MarkConflict(ierr.WithError(err).
			WithHint("failed to commit transaction").
			Mark(ierr.ErrDatabase))
	}

	return nil
}

func (c *Client) WithTxRetry(ctx context.Context, maxAttempts int, fn func(ctx context.Context) error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	attempt := 0
	operation := func() error {
		attempt++
		err := c.WithTx(ctx, fn)
		if err == nil {
			return nil
		}
		if ierr.IsTransactionConflict(err) {
			c.logger.Warnw("transaction conflict, retrying",
				"attempt", attempt,
				"max_attempts", maxAttempts,
			)
			return err
		}
		return backoff.Permanent(err)
	}

	bo := backoff.WithContext(
		backoff.WithMaxRetries(newConflictBackOff(), uint64(maxAttempts-1)),
		ctx,
	)
	return backoff.Retry(operation, bo)
}

func newConflictBackOff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 10 * time.Millisecond
	bo.MaxInterval = 250 * time.Millisecond
	bo.MaxElapsedTime = 0 // bounded by retry count, not wall clock
	return bo
}

// Postgres error codes that signal the transaction should be rolled back and
// the whole operation re-executed.
const (
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
	pqUniqueViolation      = "23505"
)

// IsSerializationConflict reports whether the error is a write-write
// serialization failure or a detected deadlock
func IsSerializationConflict(err error) bool {
	var pqErr *pq.Error
	if ierr.As(err, &pqErr) {
		return string(pqErr.Code) == pqSerializationFailure ||
			string(pqErr.Code) == pqDeadlockDetected
	}
	return false
}

// IsUniqueViolation reports whether the error is a unique constraint
// violation on the named constraint. An empty constraint matches any.
// Allocators that read MAX inside their insert use this to classify a lost
// race on their backing index as retryable.
func IsUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !ierr.As(err, &pqErr) {
		return false
	}
	if string(pqErr.Code) != pqUniqueViolation {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}

// MarkConflict rewraps serialization conflicts with the transient conflict
// sentinel so callers can decide to retry
func MarkConflict(err error) error {
	if err == nil {
		return nil
	}
	if IsSerializationConflict(err) && !ierr.IsTransactionConflict(err) {
		return ierr.WithError(err).
			WithHint("transaction serialization conflict").
			Mark(ierr.ErrTransactionConflict)
	}
	return err
}
