// Package mutators применяет именованные мутации клиента к доменным строкам.
//
// Имя мутации совпадает с именем коллекции, args - массив операций
// {"_op": "create"|"update"|"delete", ...}, которые применяются по порядку.
// Неизвестные имена игнорируются, чтобы клиент и сервер разных версий
// могли работать вместе.
package mutators

import (
	"context"
	"log/slog"
	"time"

	"github.com/iudanet/boardsync/internal/models"
	"github.com/iudanet/boardsync/internal/server/storage"
)

// Dispatcher routes mutations to per-collection handlers
type Dispatcher struct {
	logger *slog.Logger
	now    func() time.Time
}

// NewDispatcher creates a new mutation dispatcher
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Dispatch applies mutation m on behalf of userID using tx and returns the
// touched row ids. Malformed args yield a validation error, rows owned by
// someone else an authorization error; the caller rolls tx back on any error.
func (d *Dispatcher) Dispatch(ctx context.Context, tx storage.DomainStorage, userID string, m models.Mutation) (models.Affected, error) {
	affected := models.Affected{}

	collection, ok := models.ParseCollection(m.Name)
	if !ok {
		d.logger.Debug("Ignoring unknown mutation",
			"name", m.Name,
			"client_id", m.ClientID,
			"mutation_id", m.ID)
		return affected, nil
	}

	ops, err := decodeOps(m.Args)
	if err != nil {
		return nil, err
	}

	a := &applier{tx: tx, userID: userID, now: d.now()}

	for i, o := range ops {
		var id string
		switch collection {
		case models.CollectionBoard:
			id, err = a.board(ctx, o)
		case models.CollectionBoardColumn:
			id, err = a.boardColumn(ctx, o)
		case models.CollectionBoardItem:
			id, err = a.boardItem(ctx, o)
		case models.CollectionList:
			id, err = a.list(ctx, o)
		case models.CollectionListItem:
			id, err = a.listItem(ctx, o)
		}
		if err != nil {
			return nil, wrapOpErr(collection, i, o.Op, err)
		}
		affected.Add(collection, id)
	}

	return affected, nil
}

// applier контекст применения одной мутации
type applier struct {
	now    time.Time
	tx     storage.DomainStorage
	userID string
}
