package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrNestedTransaction is returned when WithinTx is called with a context
// that already carries an open transaction.  A unit-of-work must not open
// a second, independent one against the same database.
var ErrNestedTransaction = errors.New("database: nested transaction")

type txKey struct{}

// Coordinator runs fn inside one unit-of-work.  The transaction travels in
// the context handed to fn; repositories pick it up with ExecutorFrom.
type Coordinator interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Executor is the subset of *sql.DB and *sql.Tx the repositories use.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// TxCoordinator is the *sql.DB backed Coordinator.
type TxCoordinator struct {
	db   *sql.DB
	opts *sql.TxOptions
}

// NewTxCoordinator returns a coordinator whose transactions run at READ
// COMMITTED.  Correctness comes from explicit row locks (SELECT ... FOR
// UPDATE), and plain reads issued after a lock is granted must observe
// rows committed by the previous lock holder.
func NewTxCoordinator(db *sql.DB) *TxCoordinator {
	return &TxCoordinator{db: db, opts: &sql.TxOptions{Isolation: sql.LevelReadCommitted}}
}

// WithinTx begins a transaction, calls fn and commits when fn returns nil.
// Any error, panic or commit failure leaves the transaction rolled back;
// a panic is re-raised after the rollback.
func (c *TxCoordinator) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := TxFrom(ctx); ok {
		return ErrNestedTransaction
	}
	tx, err := c.db.BeginTx(ctx, c.opts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		_ = tx.Rollback()
	}()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	committed = true
	return nil
}

// RunInTransaction is the value-returning form of Coordinator.WithinTx.
// On failure the zero value of T is returned alongside the error.
func RunInTransaction[T any](ctx context.Context, c Coordinator, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := c.WithinTx(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// TxFrom returns the transaction carried by ctx, if any.
func TxFrom(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(*sql.Tx)
	return tx, ok && tx != nil
}

// ExecutorFrom returns the open transaction when ctx carries one and db
// otherwise.
func ExecutorFrom(ctx context.Context, db *sql.DB) Executor {
	if tx, ok := TxFrom(ctx); ok {
		return tx
	}
	return db
}

// InTx reports whether ctx carries an open transaction.
func InTx(ctx context.Context) bool {
	_, ok := TxFrom(ctx)
	return ok
}
