package txn

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Manager runs fn inside a transaction. A nested WithinTx joins the
// transaction already carried by ctx.
type Manager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type ctxKey struct{}

func withTx(ctx context.Context, tx *sqlx.Tx) context.Context {
	return context.WithValue(ctx, ctxKey{}, tx)
}

func TxFrom(ctx context.Context) (*sqlx.Tx, bool) {
	tx, ok := ctx.Value(ctxKey{}).(*sqlx.Tx)
	return tx, ok
}

// Executor returns the transaction in ctx if there is one, db otherwise.
func Executor(ctx context.Context, db *sqlx.DB) sqlx.ExtContext {
	if tx, ok := TxFrom(ctx); ok {
		return tx
	}
	return db
}

type SQLXManager struct {
	db        *sqlx.DB
	policy    Policy
	retryable func(error) bool
}

func NewSQLXManager(db *sqlx.DB, policy Policy, retryable func(error) bool) *SQLXManager {
	return &SQLXManager{db: db, policy: policy, retryable: retryable}
}

func (m *SQLXManager) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := TxFrom(ctx); ok {
		return fn(ctx)
	}

	return Retry(ctx, m.policy, m.retryable, func(ctx context.Context) error {
		tx, err := m.db.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback()

		txCtx, runHooks := Begin(withTx(ctx, tx))
		if err := fn(txCtx); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		runHooks()
		return nil
	})
}
