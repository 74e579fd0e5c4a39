package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"stackture/application/ports"
	"stackture/domain/core/entities"
	"stackture/infrastructure/locking"
	"stackture/infrastructure/persistence/memory"
	pkgerrors "stackture/pkg/errors"
)

func workspaceCount(t *testing.T, b *TransactionBoundary, owner string) int {
	t.Helper()
	var n int
	require.NoError(t, b.View(context.Background(), func(ctx context.Context, tx ports.Tx) error {
		list, err := tx.ListWorkspaces(ctx, owner)
		n = len(list)
		return err
	}))
	return n
}

func insertWorkspace(ctx context.Context, tx ports.Tx) error {
	ws, err := entities.NewWorkspace("owner", "title", "")
	if err != nil {
		return err
	}
	_, err = tx.InsertWorkspace(ctx, ws)
	return err
}

func TestTransactionBoundary_Commit(t *testing.T) {
	b := NewTransactionBoundary(memory.NewStore(), locking.NewLocalLocker(), zap.NewNop())

	require.NoError(t, b.Run(context.Background(), 1, insertWorkspace))

	assert.Equal(t, 1, workspaceCount(t, b, "owner"))
}

func TestTransactionBoundary_RollbackOnError(t *testing.T) {
	b := NewTransactionBoundary(memory.NewStore(), nil, zap.NewNop())

	err := b.Run(context.Background(), 1, func(ctx context.Context, tx ports.Tx) error {
		if err := insertWorkspace(ctx, tx); err != nil {
			return err
		}
		return errors.New("boom")
	})

	assert.True(t, pkgerrors.IsKind(err, pkgerrors.KindDatabaseOperationFailed))
	assert.Equal(t, 0, workspaceCount(t, b, "owner"))
}

func TestTransactionBoundary_PassesOperationErrorsThrough(t *testing.T) {
	b := NewTransactionBoundary(memory.NewStore(), nil, zap.NewNop())

	err := b.Run(context.Background(), 1, func(context.Context, ports.Tx) error {
		return pkgerrors.CyclicReference(1, 2)
	})

	assert.True(t, pkgerrors.IsKind(err, pkgerrors.KindCyclicReference))
}

func TestTransactionBoundary_RollbackOnPanic(t *testing.T) {
	locker := locking.NewLocalLocker()
	b := NewTransactionBoundary(memory.NewStore(), locker, zap.NewNop())

	assert.PanicsWithValue(t, "mid-transaction", func() {
		_ = b.Run(context.Background(), 1, func(ctx context.Context, tx ports.Tx) error {
			if err := insertWorkspace(ctx, tx); err != nil {
				return err
			}
			panic("mid-transaction")
		})
	})

	assert.Equal(t, 0, workspaceCount(t, b, "owner"))
	assert.Equal(t, 0, locker.Held())
	// The store must be usable again.
	assert.NoError(t, b.Run(context.Background(), 1, insertWorkspace))
}

func TestTransactionBoundary_CommitFailure(t *testing.T) {
	store := memory.NewStore()
	store.InjectFault("Commit", errors.New("io error"))
	b := NewTransactionBoundary(store, nil, zap.NewNop())

	err := b.Run(context.Background(), 1, insertWorkspace)

	assert.True(t, pkgerrors.IsKind(err, pkgerrors.KindDatabaseOperationFailed))
	store.InjectFault("Commit", nil)
	assert.Equal(t, 0, workspaceCount(t, b, "owner"))
}

func TestTransactionBoundary_CancelledWhileWaitingForLock(t *testing.T) {
	locker := locking.NewLocalLocker()
	b := NewTransactionBoundary(memory.NewStore(), locker, zap.NewNop())
	lease, err := locker.Acquire(context.Background(), 1)
	require.NoError(t, err)
	defer lease.Release(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = b.Run(ctx, 1, insertWorkspace)

	assert.True(t, pkgerrors.IsKind(err, pkgerrors.KindDatabaseOperationFailed))
}
