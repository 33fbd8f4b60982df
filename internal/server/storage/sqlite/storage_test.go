package sqlite

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/boardsync/internal/server/storage"
)

func TestStorage_InTx(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	user := createTestUser(t, s, "alice")

	t.Run("commit", func(t *testing.T) {
		err := s.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
			return tx.InsertBoard(ctx, newTestBoard("b1", user.ID))
		})
		require.NoError(t, err)

		_, err = s.GetBoard(ctx, "b1")
		require.NoError(t, err)
	})

	t.Run("rollback on error", func(t *testing.T) {
		boom := errors.New("boom")
		err := s.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
			if err := tx.InsertBoard(ctx, newTestBoard("b2", user.ID)); err != nil {
				return err
			}
			if _, err := tx.GetOrCreateClientGroup(ctx, "g1", user.ID); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.False(t, storage.IsTransient(err))

		_, err = s.GetBoard(ctx, "b2")
		assert.ErrorIs(t, err, storage.ErrRowNotFound)

		versions, err := s.ListClientVersions(ctx, "g1")
		require.NoError(t, err)
		assert.Empty(t, versions)
	})
}

func TestMarkTransient(t *testing.T) {
	assert.NoError(t, markTransient(nil))

	plain := errors.New("plain")
	assert.Same(t, plain, markTransient(plain))

	already := fmt.Errorf("%w: x", storage.ErrTransient)
	assert.True(t, storage.IsTransient(markTransient(already)))
}

func TestNew_MigrationsApplied(t *testing.T) {
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	tables := []string{"users", "board", "board_column", "board_item", "list", "list_item",
		"sync_client_groups", "sync_clients", "sync_cvrs"}
	for _, table := range tables {
		var name string
		err := s.DB().QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		require.NoError(t, err, table)
	}
}
