package storage

import (
	"context"
	"encoding/json"

	"github.com/iudanet/boardsync/internal/models"
	"github.com/iudanet/boardsync/pkg/api"
)

// Identity идентификаторы этой реплики в протоколе синхронизации
type Identity struct {
	ClientGroupID string `json:"client_group_id"`
	ClientID      string `json:"client_id"`
}

// Row строка локальной реплики в том виде, в каком ее прислал сервер
type Row struct {
	Value json.RawMessage
	Key   string
}

// ReplicaStorage локальная копия данных пользователя и очередь мутаций
type ReplicaStorage interface {
	// Identity возвращает идентификаторы группы и клиента, создавая их при первом вызове
	Identity(ctx context.Context) (Identity, error)

	// Cookie возвращает cookie последнего pull, nil если pull еще не было
	Cookie(ctx context.Context) (*api.Cookie, error)

	// ResetCookie забывает cookie: следующий pull вернет полный патч
	ResetCookie(ctx context.Context) error

	// ApplyPull атомарно применяет патч, сохраняет новый cookie и удаляет
	// из очереди мутации, подтвержденные в lastMutationIDChanges
	ApplyPull(ctx context.Context, resp *api.PullResponse) error

	// RestartClient выдает реплике новый ClientID и перенумеровывает очередь
	// с 1: сервер больше не примет последовательность старого клиента
	RestartClient(ctx context.Context) (Identity, error)

	// Enqueue добавляет мутацию в очередь, присваивая ей следующий ID
	Enqueue(ctx context.Context, name string, args json.RawMessage) (api.Mutation, error)

	// Pending возвращает неподтвержденные мутации в порядке ID
	Pending(ctx context.Context) ([]api.Mutation, error)

	// GetRow возвращает строку по ключу "<collection>/<id>"
	GetRow(ctx context.Context, key string) (json.RawMessage, error)

	// ListRows возвращает все строки коллекции в порядке ключей
	ListRows(ctx context.Context, collection models.Collection) ([]Row, error)

	// Reset удаляет реплику, очередь и идентификаторы (смена пользователя)
	Reset(ctx context.Context) error
}
