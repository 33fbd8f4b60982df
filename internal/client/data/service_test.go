package data

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/boardsync/internal/client/storage"
	"github.com/iudanet/boardsync/internal/client/storage/boltdb"
	"github.com/iudanet/boardsync/internal/models"
	"github.com/iudanet/boardsync/pkg/api"
)

func ptr[T any](v T) *T {
	return &v
}

func setup(t *testing.T) (*Service, *boltdb.Storage) {
	t.Helper()

	replica, err := boltdb.New(context.Background(), filepath.Join(t.TempDir(), "client.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = replica.Close() })

	return NewService(replica), replica
}

// decodePending возвращает единственную операцию каждой мутации в очереди
func decodePending(t *testing.T, replica *boltdb.Storage) ([]api.Mutation, []api.EntityOp) {
	t.Helper()

	pending, err := replica.Pending(context.Background())
	require.NoError(t, err)

	ops := make([]api.EntityOp, 0, len(pending))
	for _, m := range pending {
		var args []api.EntityOp
		require.NoError(t, json.Unmarshal(m.Args, &args))
		require.Len(t, args, 1)
		ops = append(ops, args[0])
	}
	return pending, ops
}

// putRows кладет строки в реплику так, как их прислал бы сервер
func putRows(t *testing.T, replica *boltdb.Storage, collection models.Collection, rows ...any) {
	t.Helper()

	patch := make([]api.PatchOp, 0, len(rows))
	for _, r := range rows {
		value, err := json.Marshal(r)
		require.NoError(t, err)
		patch = append(patch, api.PatchOp{
			Op:    api.PatchOpPut,
			Key:   collection.Key(r.(models.Record).RecordID()),
			Value: value,
		})
	}

	require.NoError(t, replica.ApplyPull(context.Background(), &api.PullResponse{
		Cookie: &api.Cookie{CVRID: "cvr", Order: 1},
		Patch:  patch,
	}))
}

func TestCreate_EnqueuesMutation(t *testing.T) {
	s, replica := setup(t)
	ctx := context.Background()

	boardID, err := s.Create(ctx, models.CollectionBoard, Fields{Name: ptr("Work")})
	require.NoError(t, err)
	assert.NotEmpty(t, boardID)

	columnID, err := s.Create(ctx, models.CollectionBoardColumn, Fields{Name: ptr("Todo"), Parent: &boardID, Order: ptr(5.0)})
	require.NoError(t, err)

	_, err = s.Create(ctx, models.CollectionListItem, Fields{Text: ptr("milk"), Parent: ptr("list-1"), Done: ptr(true)})
	require.NoError(t, err)

	pending, ops := decodePending(t, replica)
	require.Len(t, pending, 3)

	assert.Equal(t, "board", pending[0].Name)
	assert.Equal(t, int64(1), pending[0].ID)
	assert.Equal(t, api.OpCreate, ops[0].Op)
	assert.Equal(t, boardID, ops[0].ID)
	assert.Equal(t, 0.0, *ops[0].Order)

	assert.Equal(t, "board_column", pending[1].Name)
	assert.Equal(t, columnID, ops[1].ID)
	assert.Equal(t, boardID, *ops[1].Board)
	assert.Equal(t, 5.0, *ops[1].Order)

	assert.Equal(t, "list_item", pending[2].Name)
	assert.Equal(t, "list-1", *ops[2].List)
	assert.True(t, *ops[2].Done)

	// nil поля не попадают в args
	assert.NotContains(t, string(pending[0].Args), "text")
}

func TestCreate_OrderFollowsSiblings(t *testing.T) {
	s, replica := setup(t)
	ctx := context.Background()

	putRows(t, replica, models.CollectionBoardColumn,
		models.BoardColumn{Board: "b1", Name: "Todo", Entity: models.Entity{ID: "c1", Order: 0}},
		models.BoardColumn{Board: "b1", Name: "Done", Entity: models.Entity{ID: "c2", Order: 3}},
		models.BoardColumn{Board: "b2", Name: "Other", Entity: models.Entity{ID: "c3", Order: 10}},
	)

	_, err := s.Create(ctx, models.CollectionBoardColumn, Fields{Name: ptr("Doing"), Parent: ptr("b1")})
	require.NoError(t, err)

	_, ops := decodePending(t, replica)
	require.Len(t, ops, 1)
	assert.Equal(t, 4.0, *ops[0].Order)
}

func TestCreate_Validation(t *testing.T) {
	tests := []struct {
		name       string
		collection models.Collection
		fields     Fields
		wantErr    string
	}{
		{name: "unknown collection", collection: "client", fields: Fields{Name: ptr("x")}, wantErr: "unknown collection"},
		{name: "missing name", collection: models.CollectionBoard, fields: Fields{}, wantErr: "name is required"},
		{name: "blank name", collection: models.CollectionList, fields: Fields{Name: ptr("   ")}, wantErr: "name cannot be empty"},
		{name: "name too long", collection: models.CollectionBoard, fields: Fields{Name: ptr(strings.Repeat("a", 51))}, wantErr: "must not exceed 50"},
		{name: "text on board", collection: models.CollectionBoard, fields: Fields{Name: ptr("a"), Text: ptr("b")}, wantErr: "use name"},
		{name: "missing parent", collection: models.CollectionBoardItem, fields: Fields{Text: ptr("card")}, wantErr: "board_column is required"},
		{name: "parent on root", collection: models.CollectionList, fields: Fields{Name: ptr("a"), Parent: ptr("x")}, wantErr: "parent is not supported"},
		{name: "bad parent id", collection: models.CollectionListItem, fields: Fields{Text: ptr("a"), Parent: ptr("bad id")}, wantErr: "list must be"},
		{name: "done on board item", collection: models.CollectionBoardItem, fields: Fields{Text: ptr("a"), Parent: ptr("c1"), Done: ptr(true)}, wantErr: "done is not supported"},
		{name: "negative order", collection: models.CollectionBoard, fields: Fields{Name: ptr("a"), Order: ptr(-1.0)}, wantErr: "order must not be negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, replica := setup(t)

			_, err := s.Create(context.Background(), tt.collection, tt.fields)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)

			pending, _ := decodePending(t, replica)
			assert.Empty(t, pending)
		})
	}
}

func TestUpdateAndDelete(t *testing.T) {
	s, replica := setup(t)
	ctx := context.Background()

	require.NoError(t, s.Update(ctx, models.CollectionBoardItem, "i1", Fields{Parent: ptr("c2")}))
	require.NoError(t, s.Update(ctx, models.CollectionListItem, "li1", Fields{Done: ptr(false)}))
	require.NoError(t, s.Delete(ctx, models.CollectionBoard, "b1"))

	assert.ErrorIs(t, s.Update(ctx, models.CollectionBoard, "b1", Fields{}), ErrNothingToUpdate)
	assert.Error(t, s.Update(ctx, models.CollectionBoard, "", Fields{Name: ptr("x")}))
	assert.ErrorIs(t, s.Delete(ctx, "nope", "b1"), ErrUnknownCollection)

	pending, ops := decodePending(t, replica)
	require.Len(t, pending, 3)

	assert.Equal(t, api.OpUpdate, ops[0].Op)
	assert.Equal(t, "i1", ops[0].ID)
	assert.Equal(t, "c2", *ops[0].Column)
	assert.Nil(t, ops[0].Text)

	assert.False(t, *ops[1].Done)

	assert.Equal(t, api.OpDelete, ops[2].Op)
	assert.Equal(t, "b1", ops[2].ID)
	assert.Equal(t, `[{"_op":"delete","id":"b1"}]`, string(pending[2].Args))
}

func TestList(t *testing.T) {
	s, replica := setup(t)
	ctx := context.Background()

	putRows(t, replica, models.CollectionListItem,
		models.ListItem{List: "l1", Text: "bread", Entity: models.Entity{ID: "a", Order: 2}},
		models.ListItem{List: "l1", Text: "milk", Done: true, Entity: models.Entity{ID: "b", Order: 1}},
		models.ListItem{List: "l1", Text: "gone", Entity: models.Entity{ID: "c", Order: 0, Deleted: true}},
	)

	rows, err := s.List(ctx, models.CollectionListItem, false)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "milk", rows[0].Text)
	assert.True(t, rows[0].Done)
	assert.Equal(t, "l1", rows[0].Parent())
	assert.Equal(t, "bread", rows[1].Text)

	all, err := s.List(ctx, models.CollectionListItem, true)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.True(t, all[0].Deleted)

	boards, err := s.List(ctx, models.CollectionBoard, false)
	require.NoError(t, err)
	assert.Empty(t, boards)

	row, err := s.Get(ctx, models.CollectionListItem, "b")
	require.NoError(t, err)
	assert.Equal(t, "milk", row.Text)

	_, err = s.Get(ctx, models.CollectionListItem, "missing")
	assert.ErrorIs(t, err, storage.ErrRowNotFound)
}
