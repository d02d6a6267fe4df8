package main

import (
	"context"
	"database/sql"
	"time"

	dErrors "carebook/pkg/domain-errors"
	txcontext "carebook/pkg/platform/tx"
)

const defaultRecordTxTimeout = 5 * time.Second

// recordPostgresTx runs a record mutation and its compliance event in one
// database transaction. The record store and the outbox store both pick the
// transaction up from the context.
type recordPostgresTx struct {
	db      *sql.DB
	timeout time.Duration
}

func newRecordPostgresTx(db *sql.DB, timeout time.Duration) *recordPostgresTx {
	return &recordPostgresTx{db: db, timeout: timeout}
}

func (t *recordPostgresTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, ok := txcontext.From(ctx); ok {
		return fn(ctx)
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultRecordTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to begin transaction")
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(txcontext.WithTx(ctx, tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to commit transaction")
	}
	return nil
}
