package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type TxContextKey string

const txStatusKey = TxContextKey("txStatus")
const txKey = TxContextKey("tx-context-key")

type Tx interface {
	IsOpen() bool
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	DriverName() string
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	QueryxContext(ctx context.Context, query string, args ...any) (*sqlx.Rows, error)
	Rebind(query string) string
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	Savepoint(ctx context.Context, name string) error
	RollbackToSavepoint(ctx context.Context, name string) error
	ReleaseSavepoint(ctx context.Context, name string) error
}

// Transaction is a struct that wraps the sqlx.Tx struct and provides additional functionality
type Transaction struct {
	*sqlx.Tx
	logger   ectologger.Logger
	isClosed bool
}

func NewTx(tx *sqlx.Tx, logger ectologger.Logger) Tx {
	return &Transaction{
		Tx:       tx,
		logger:   logger,
		isClosed: false,
	}
}

// GetTx returns the open transaction carried by ctx, or begins a new one and stores it
// in the returned context. Only the caller that began the transaction, holding the
// original ctx, can roll it back.
func GetTx(ctx context.Context, logger ectologger.Logger, db DB, opts *sql.TxOptions) (context.Context, Tx, error) {
	ctxTx, ok := ctx.Value(txKey).(Tx)
	if ok && ctxTx != nil && ctxTx.IsOpen() {
		status, ok := ctx.Value(txStatusKey).(string)
		if ok && status == "open" {
			return ctx, ctxTx, nil
		}
	}

	tx, err := db.BeginTxx(ctx, opts)
	if err != nil {
		logger.WithContext(ctx).WithError(err).Errorf("error while beginning transaction")
		return ctx, nil, fmt.Errorf("error while beginning transaction: %w", err)
	}

	newTx := NewTx(tx, logger)

	ctx = context.WithValue(ctx, txStatusKey, "open")
	ctx = context.WithValue(ctx, txKey, newTx)
	return ctx, newTx, nil
}

func (t *Transaction) IsOpen() bool {
	return !t.isClosed
}

func (t *Transaction) Rollback(ctx context.Context) error {
	if t.isClosed {
		return nil // do nothing if already committed
	}

	status, ok := ctx.Value(txStatusKey).(string)
	if ok && status == "open" {
		return nil // do nothing. Ctx tx is open and must be closed by the caller
	}

	err := t.Tx.Rollback()
	t.isClosed = true
	if err != nil && err != sql.ErrTxDone {
		t.logger.WithContext(ctx).WithError(err).Errorf("error while rolling back transaction")
		return fmt.Errorf("error while rolling back transaction: %w", err)
	}

	return nil
}

func (t *Transaction) Commit(ctx context.Context) error {
	if t.isClosed {
		return nil // do nothing if already committed
	}

	err := t.Tx.Commit()
	t.isClosed = true
	if err != nil {
		t.logger.WithContext(ctx).WithError(err).Errorf("error while committing transaction")
		return fmt.Errorf("error while committing transaction: %w", err)
	}

	return nil
}

// Savepoint marks a point inside the transaction that work can be rolled back to.
func (t *Transaction) Savepoint(ctx context.Context, name string) error {
	_, err := t.Tx.ExecContext(ctx, "SAVEPOINT "+pq.QuoteIdentifier(name))
	if err != nil {
		return fmt.Errorf("error while creating savepoint %s: %w", name, err)
	}
	return nil
}

// RollbackToSavepoint discards the work done since the savepoint was created.
func (t *Transaction) RollbackToSavepoint(ctx context.Context, name string) error {
	_, err := t.Tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+pq.QuoteIdentifier(name))
	if err != nil {
		t.logger.WithContext(ctx).WithError(err).Errorf("error while rolling back to savepoint %s", name)
		return fmt.Errorf("error while rolling back to savepoint %s: %w", name, err)
	}
	return nil
}

// ReleaseSavepoint keeps the work done since the savepoint and forgets the savepoint.
func (t *Transaction) ReleaseSavepoint(ctx context.Context, name string) error {
	_, err := t.Tx.ExecContext(ctx, "RELEASE SAVEPOINT "+pq.QuoteIdentifier(name))
	if err != nil {
		return fmt.Errorf("error while releasing savepoint %s: %w", name, err)
	}
	return nil
}

// SavepointError is returned by WithSavepoint when the work failed and was rolled back.
type SavepointError struct {
	Name string
	Err  error
}

func (e *SavepointError) Error() string {
	return fmt.Sprintf("savepoint %s rolled back: %v", e.Name, e.Err)
}

func (e *SavepointError) Unwrap() error {
	return e.Err
}

// WithSavepoint runs fn inside a savepoint. When fn fails the savepoint is rolled back
// and a *SavepointError is returned; the enclosing transaction stays usable. Any other
// error means the enclosing transaction can no longer be trusted.
func WithSavepoint(ctx context.Context, tx Tx, name string, fn func(ctx context.Context) error) error {
	if err := tx.Savepoint(ctx, name); err != nil {
		return err
	}

	if fnErr := fn(ctx); fnErr != nil {
		if err := tx.RollbackToSavepoint(ctx, name); err != nil {
			return fmt.Errorf("%w (after: %w)", err, fnErr)
		}
		return &SavepointError{Name: name, Err: fnErr}
	}

	return tx.ReleaseSavepoint(ctx, name)
}
