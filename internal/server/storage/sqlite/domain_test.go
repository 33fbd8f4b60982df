package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/boardsync/internal/models"
	"github.com/iudanet/boardsync/internal/server/storage"
)

func TestDomainStorage_BoardLifecycle(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	user := createTestUser(t, s, "alice")
	board := newTestBoard("b1", user.ID)

	require.NoError(t, s.InsertBoard(ctx, board))
	assert.EqualValues(t, 1, board.Version)

	got, err := s.GetBoard(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, "Board b1", got.Name)
	assert.Equal(t, user.ID, got.CreatedBy)
	assert.EqualValues(t, 1, got.Version)
	assert.False(t, got.Deleted)

	// Каждое изменение увеличивает версию
	got.Name = "Renamed"
	got.Updated = time.Now().UTC()
	require.NoError(t, s.UpdateBoard(ctx, got))
	assert.EqualValues(t, 2, got.Version)

	got.Deleted = true
	require.NoError(t, s.UpdateBoard(ctx, got))
	assert.EqualValues(t, 3, got.Version)

	tomb, err := s.GetBoard(ctx, "b1")
	require.NoError(t, err)
	assert.True(t, tomb.Deleted)
	assert.Equal(t, "Renamed", tomb.Name)
	assert.EqualValues(t, 3, tomb.Version)
}

func TestDomainStorage_Errors(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	user := createTestUser(t, s, "alice")
	require.NoError(t, s.InsertBoard(ctx, newTestBoard("b1", user.ID)))

	tests := []struct {
		wantError error
		run       func() error
		name      string
	}{
		{
			name:      "get missing board",
			run:       func() error { _, err := s.GetBoard(ctx, "nope"); return err },
			wantError: storage.ErrRowNotFound,
		},
		{
			name:      "insert duplicate id",
			run:       func() error { return s.InsertBoard(ctx, newTestBoard("b1", user.ID)) },
			wantError: storage.ErrRowAlreadyExists,
		},
		{
			name:      "update missing board",
			run:       func() error { return s.UpdateBoard(ctx, newTestBoard("ghost", user.ID)) },
			wantError: storage.ErrRowNotFound,
		},
		{
			name:      "update missing list item",
			run:       func() error { return s.UpdateListItem(ctx, &models.ListItem{Entity: models.Entity{ID: "x"}}) },
			wantError: storage.ErrRowNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.run(), tt.wantError)
		})
	}
}

func TestDomainStorage_Hierarchy(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	user := createTestUser(t, s, "alice")
	now := time.Now().UTC()
	entity := func(id string) models.Entity {
		return models.Entity{ID: id, PublicID: "P" + id, CreatedBy: user.ID, Created: now, Updated: now}
	}

	require.NoError(t, s.InsertBoard(ctx, newTestBoard("b1", user.ID)))
	require.NoError(t, s.InsertBoardColumn(ctx, &models.BoardColumn{Board: "b1", Name: "Todo", Entity: entity("c1")}))
	require.NoError(t, s.InsertBoardColumn(ctx, &models.BoardColumn{Board: "b1", Name: "Done", Entity: entity("c2")}))
	require.NoError(t, s.InsertBoardItem(ctx, &models.BoardItem{Column: "c1", Text: "card", Entity: entity("i1")}))

	item, err := s.GetBoardItem(ctx, "i1")
	require.NoError(t, err)
	assert.Equal(t, "c1", item.Column)

	// Перенос карточки между колонками
	item.Column = "c2"
	require.NoError(t, s.UpdateBoardItem(ctx, item))
	moved, err := s.GetBoardItem(ctx, "i1")
	require.NoError(t, err)
	assert.Equal(t, "c2", moved.Column)
	assert.EqualValues(t, 2, moved.Version)

	require.NoError(t, s.InsertList(ctx, &models.List{Name: "Groceries", Entity: entity("l1")}))
	require.NoError(t, s.InsertListItem(ctx, &models.ListItem{List: "l1", Text: "milk", Entity: entity("li1")}))

	li, err := s.GetListItem(ctx, "li1")
	require.NoError(t, err)
	li.Done = true
	require.NoError(t, s.UpdateListItem(ctx, li))

	li, err = s.GetListItem(ctx, "li1")
	require.NoError(t, err)
	assert.True(t, li.Done)
	assert.Equal(t, "l1", li.List)

	// Родитель должен существовать
	err = s.InsertListItem(ctx, &models.ListItem{List: "missing", Text: "x", Entity: entity("li2")})
	assert.Error(t, err)
}
