package service

import (
	"context"
	"sync"
	"time"

	dErrors "tripkey/pkg/domain-errors"
	txcontext "tripkey/pkg/platform/tx"
)

// StoreTx is the all-or-nothing boundary for directory mutations: bootstrap,
// join, and removal. Implementations wrap a database transaction or a lock.
type StoreTx interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

const defaultTxTimeout = 5 * time.Second

// inMemoryStoreTx serializes mutations against the in-memory stores and undoes
// every write fn made when fn returns an error.
type inMemoryStoreTx struct {
	mu      sync.Mutex
	timeout time.Duration
}

func NewInMemoryStoreTx() StoreTx {
	return &inMemoryStoreTx{}
}

func (t *inMemoryStoreTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	undo := &txcontext.UndoLog{}
	if err := fn(txcontext.WithUndoLog(ctx, undo)); err != nil {
		undo.Rollback()
		return err
	}
	return nil
}
