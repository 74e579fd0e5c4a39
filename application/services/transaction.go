package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"stackture/application/ports"
	"stackture/domain/core/valueobjects"
	pkgerrors "stackture/pkg/errors"
)

// TxFunc is the body of a unit of work. Every read and write it performs
// goes through tx.
type TxFunc func(ctx context.Context, tx ports.Tx) error

// TransactionBoundary runs a TxFunc as one all-or-nothing unit: the workspace
// lease is held for the whole call and the transaction is either committed or
// rolled back on every exit path, panics included.
type TransactionBoundary struct {
	store  ports.Store
	locker ports.WorkspaceLocker
	logger *zap.Logger
}

// NewTransactionBoundary creates a boundary over store. A nil locker means the
// store's own isolation is the only serialization.
func NewTransactionBoundary(store ports.Store, locker ports.WorkspaceLocker, logger *zap.Logger) *TransactionBoundary {
	return &TransactionBoundary{store: store, locker: locker, logger: logger}
}

// Run executes fn inside a transaction scoped to workspaceID
func (b *TransactionBoundary) Run(ctx context.Context, workspaceID valueobjects.WorkspaceID, fn TxFunc) (err error) {
	if b.locker != nil && !workspaceID.IsZero() {
		lease, lockErr := b.locker.Acquire(ctx, workspaceID)
		if lockErr != nil {
			return pkgerrors.DatabaseOperationFailed("acquire workspace lock", lockErr)
		}
		defer func() {
			if relErr := lease.Release(context.WithoutCancel(ctx)); relErr != nil {
				b.logger.Warn("Failed to release workspace lock",
					zap.Int64("workspaceID", int64(workspaceID)),
					zap.Error(relErr),
				)
			}
		}()
	}

	tx, err := b.store.Begin(ctx, workspaceID)
	if err != nil {
		return pkgerrors.DatabaseOperationFailed("begin transaction", err)
	}

	done := false
	defer func() {
		if done {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil {
			b.logger.Error("Rollback failed",
				zap.Int64("workspaceID", int64(workspaceID)),
				zap.Error(rbErr),
			)
		}
		if p := recover(); p != nil {
			panic(p)
		}
	}()

	if err = fn(ctx, tx); err != nil {
		return storeError("transaction", err)
	}

	if err = tx.Commit(); err != nil {
		done = true
		// Most drivers have already discarded the transaction when commit fails.
		_ = tx.Rollback()
		return pkgerrors.DatabaseOperationFailed("commit", err)
	}
	done = true
	return nil
}

// View runs fn in a read-only snapshot transaction that is always rolled
// back. No workspace lease is taken.
func (b *TransactionBoundary) View(ctx context.Context, fn TxFunc) error {
	tx, err := b.store.BeginRead(ctx)
	if err != nil {
		return pkgerrors.DatabaseOperationFailed("begin read", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil {
			b.logger.Debug("Read transaction rollback failed", zap.Error(rbErr))
		}
	}()
	return storeError("read", fn(ctx, tx))
}

// storeError passes operation errors through and wraps anything else as a
// store failure.
func storeError(operation string, err error) error {
	if err == nil {
		return nil
	}
	if pkgerrors.IsAppError(err) {
		return err
	}
	return pkgerrors.DatabaseOperationFailed(operation, err)
}

// storeErrorf wraps err with a formatted operation name
func storeErrorf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return storeError(fmt.Sprintf(format, args...), err)
}
