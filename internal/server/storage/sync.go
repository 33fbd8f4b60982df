package storage

import (
	"context"
	"time"

	"github.com/iudanet/boardsync/internal/cvr"
	"github.com/iudanet/boardsync/internal/models"
)

// LedgerStorage дает проекции (id, version) и полные строки по коллекциям.
// Все проекции ограничены видимостью пользователя: created_by == userID.
type LedgerStorage interface {
	// ListVersions returns (id, version) of every row of collection visible to userID.
	// Tombstoned rows are included.
	ListVersions(ctx context.Context, collection models.Collection, userID string) ([]models.RowVersion, error)

	// ListClientVersions returns (client id, last mutation id) for a client group.
	ListClientVersions(ctx context.Context, clientGroupID string) ([]models.RowVersion, error)

	// GetRows fetches full rows by id. Missing ids are skipped, an empty id
	// list returns without touching the database.
	GetRows(ctx context.Context, collection models.Collection, ids []string) ([]models.Record, error)
}

// ClientStorage хранит группы клиентов и клиентов
type ClientStorage interface {
	// GetOrCreateClientGroup returns the group, creating it owned by userID
	// with cvr_version 0 when absent. Ownership is checked by the caller.
	GetOrCreateClientGroup(ctx context.Context, id, userID string) (*models.ClientGroup, error)

	// PutClientGroup persists cvr_version of an existing group.
	PutClientGroup(ctx context.Context, group *models.ClientGroup) error

	// GetOrCreateClient returns the client, creating it in clientGroupID with
	// last_mutation_id 0 when absent. Group membership is checked by the caller.
	GetOrCreateClient(ctx context.Context, id, clientGroupID string) (*models.Client, error)

	// PutClient persists last_mutation_id of an existing client.
	PutClient(ctx context.Context, client *models.Client) error
}

// DomainStorage чтение и запись доменных строк.
// Insert* выставляет версию 1, Update* увеличивает версию на единицу
// и записывает новое значение обратно в переданную структуру.
type DomainStorage interface {
	GetBoard(ctx context.Context, id string) (*models.Board, error)
	InsertBoard(ctx context.Context, board *models.Board) error
	UpdateBoard(ctx context.Context, board *models.Board) error

	GetBoardColumn(ctx context.Context, id string) (*models.BoardColumn, error)
	InsertBoardColumn(ctx context.Context, column *models.BoardColumn) error
	UpdateBoardColumn(ctx context.Context, column *models.BoardColumn) error

	GetBoardItem(ctx context.Context, id string) (*models.BoardItem, error)
	InsertBoardItem(ctx context.Context, item *models.BoardItem) error
	UpdateBoardItem(ctx context.Context, item *models.BoardItem) error

	GetList(ctx context.Context, id string) (*models.List, error)
	InsertList(ctx context.Context, list *models.List) error
	UpdateList(ctx context.Context, list *models.List) error

	GetListItem(ctx context.Context, id string) (*models.ListItem, error)
	InsertListItem(ctx context.Context, item *models.ListItem) error
	UpdateListItem(ctx context.Context, item *models.ListItem) error
}

// Tx набор операций, доступных внутри одной транзакции
type Tx interface {
	LedgerStorage
	ClientStorage
	DomainStorage
}

// TxRunner runs fn inside a serializable transaction. The transaction
// commits when fn returns nil and rolls back otherwise.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// CVRStorage хранилище снимков CVR, ключ - непрозрачный cvrID.
// Снимок привязан к группе клиентов и к order из cookie: чужой cvrID
// или устаревший order считаются отсутствием снимка.
type CVRStorage interface {
	// GetCVR returns ErrCVRNotFound when the id is unknown, expired, was
	// issued to another client group or was overwritten by a later order.
	GetCVR(ctx context.Context, clientGroupID, cvrID string, order int64) (cvr.CVR, error)

	// PutCVR stores a snapshot under cvrID, replacing the previous one of the
	// same group. ErrCVRConflict if another group holds cvrID.
	PutCVR(ctx context.Context, clientGroupID, cvrID string, order int64, record cvr.CVR) error

	// DeleteCVRsBefore removes snapshots last written before cutoff.
	DeleteCVRsBefore(ctx context.Context, cutoff time.Time) (int, error)
}
