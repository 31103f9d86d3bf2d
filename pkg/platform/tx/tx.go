// Package tx carries the open transaction through a context so stores called
// inside StoreTx.RunInTx join it: an *sql.Tx for Postgres, an UndoLog for the
// in-memory stores.
package tx

import (
	"context"
	"database/sql"
	"sync"
)

type txKey struct{}

// WithTx returns a context that carries tx.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// From returns the transaction carried by ctx, if any.
func From(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(*sql.Tx)
	return tx, ok && tx != nil
}

// Executor is the subset of *sql.DB and *sql.Tx used by stores.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ExecutorFor picks the transaction in ctx when present, otherwise db.
func ExecutorFor(ctx context.Context, db *sql.DB) Executor {
	if tx, ok := From(ctx); ok {
		return tx
	}
	return db
}

// UndoLog collects compensations registered by stores that have no native
// transactions. The in-memory StoreTx replays it in reverse when fn fails.
type UndoLog struct {
	mu    sync.Mutex
	steps []func()
}

type undoKey struct{}

// WithUndoLog returns a context that carries log.
func WithUndoLog(ctx context.Context, log *UndoLog) context.Context {
	return context.WithValue(ctx, undoKey{}, log)
}

// OnRollback registers fn with the undo log in ctx. Outside a transaction it
// does nothing.
func OnRollback(ctx context.Context, fn func()) {
	log, ok := ctx.Value(undoKey{}).(*UndoLog)
	if !ok || log == nil {
		return
	}
	log.mu.Lock()
	log.steps = append(log.steps, fn)
	log.mu.Unlock()
}

// Rollback runs the registered steps newest first and clears the log.
func (l *UndoLog) Rollback() {
	l.mu.Lock()
	steps := l.steps
	l.steps = nil
	l.mu.Unlock()
	for i := len(steps) - 1; i >= 0; i-- {
		steps[i]()
	}
}
