package data

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/iudanet/boardsync/internal/client/storage"
	"github.com/iudanet/boardsync/internal/ids"
	"github.com/iudanet/boardsync/internal/models"
	"github.com/iudanet/boardsync/internal/validation"
	"github.com/iudanet/boardsync/pkg/api"
)

var (
	ErrUnknownCollection = errors.New("unknown collection")
	ErrNothingToUpdate   = errors.New("nothing to update")
)

// Fields поля строки для create/update. Nil значит "не передано".
// Parent - ID родителя: доска для колонки, колонка для карточки, список для элемента.
type Fields struct {
	Name   *string
	Text   *string
	Order  *float64
	Done   *bool
	Parent *string
}

// Row строка любой коллекции в том виде, в каком ее прислал сервер
type Row struct {
	Name   string `json:"name"`
	Text   string `json:"text"`
	Board  string `json:"board"`
	Column string `json:"column"`
	List   string `json:"list"`
	models.Entity
	Done bool `json:"done"`
}

// Parent возвращает ID родительской строки, если он есть
func (r Row) Parent() string {
	return cmp.Or(r.Board, r.Column, r.List)
}

// Service ставит мутации в очередь локальной реплики и читает подтвержденные строки.
// Изменения видны в реплике только после sync.
type Service struct {
	replica storage.ReplicaStorage
}

// NewService creates a new data service
func NewService(replica storage.ReplicaStorage) *Service {
	return &Service{replica: replica}
}

// schema описывает поля коллекции
type schema struct {
	textField string // name или text
	maxLen    int
	parent    models.Collection // пусто для корневых коллекций
	hasDone   bool
}

var schemas = map[models.Collection]schema{
	models.CollectionBoard:       {textField: "name", maxLen: validation.MaxBoardNameLen},
	models.CollectionBoardColumn: {textField: "name", maxLen: validation.MaxBoardNameLen, parent: models.CollectionBoard},
	models.CollectionBoardItem:   {textField: "text", maxLen: validation.MaxTextLen, parent: models.CollectionBoardColumn},
	models.CollectionList:        {textField: "name", maxLen: validation.MaxListNameLen},
	models.CollectionListItem:    {textField: "text", maxLen: validation.MaxTextLen, parent: models.CollectionList, hasDone: true},
}

func lookupSchema(collection models.Collection) (schema, error) {
	sc, ok := schemas[collection]
	if !ok {
		return schema{}, fmt.Errorf("%w: %q", ErrUnknownCollection, collection)
	}
	return sc, nil
}

// Create ставит в очередь создание строки и возвращает ее ID.
// Без Order строка встает последней среди соседей в реплике.
func (s *Service) Create(ctx context.Context, collection models.Collection, f Fields) (string, error) {
	sc, err := lookupSchema(collection)
	if err != nil {
		return "", err
	}

	if f.text(sc) == nil {
		return "", fmt.Errorf("%s is required", sc.textField)
	}
	if sc.parent != "" && f.Parent == nil {
		return "", fmt.Errorf("%s is required", sc.parent)
	}
	if err := f.validate(sc); err != nil {
		return "", err
	}

	if f.Order == nil {
		order, err := s.nextOrder(ctx, collection, f.Parent)
		if err != nil {
			return "", err
		}
		f.Order = &order
	}

	op := f.toOp(sc, api.OpCreate)
	op.ID = ids.NewEntityID()
	if err := s.enqueue(ctx, collection, op); err != nil {
		return "", err
	}

	return op.ID, nil
}

// Update ставит в очередь изменение переданных полей строки
func (s *Service) Update(ctx context.Context, collection models.Collection, id string, f Fields) error {
	sc, err := lookupSchema(collection)
	if err != nil {
		return err
	}
	if err := validation.ValidateID("id", id); err != nil {
		return err
	}
	if f.Name == nil && f.Text == nil && f.Order == nil && f.Done == nil && f.Parent == nil {
		return ErrNothingToUpdate
	}
	if err := f.validate(sc); err != nil {
		return err
	}

	op := f.toOp(sc, api.OpUpdate)
	op.ID = id
	return s.enqueue(ctx, collection, op)
}

// Delete ставит в очередь удаление строки. Сервер хранит ее как tombstone.
func (s *Service) Delete(ctx context.Context, collection models.Collection, id string) error {
	if _, err := lookupSchema(collection); err != nil {
		return err
	}
	if err := validation.ValidateID("id", id); err != nil {
		return err
	}

	return s.enqueue(ctx, collection, api.EntityOp{Op: api.OpDelete, ID: id})
}

// List возвращает строки коллекции, упорядоченные по order.
// Удаленные строки пропускаются, если includeDeleted не задан.
func (s *Service) List(ctx context.Context, collection models.Collection, includeDeleted bool) ([]Row, error) {
	if _, err := lookupSchema(collection); err != nil {
		return nil, err
	}

	stored, err := s.replica.ListRows(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s rows: %w", collection, err)
	}

	rows := make([]Row, 0, len(stored))
	for _, r := range stored {
		var row Row
		if err := json.Unmarshal(r.Value, &row); err != nil {
			return nil, fmt.Errorf("failed to decode row %s: %w", r.Key, err)
		}
		if row.Deleted && !includeDeleted {
			continue
		}
		rows = append(rows, row)
	}

	slices.SortStableFunc(rows, func(a, b Row) int {
		return cmp.Or(cmp.Compare(a.Order, b.Order), cmp.Compare(a.ID, b.ID))
	})

	return rows, nil
}

// Get возвращает строку из реплики
func (s *Service) Get(ctx context.Context, collection models.Collection, id string) (*Row, error) {
	if _, err := lookupSchema(collection); err != nil {
		return nil, err
	}

	value, err := s.replica.GetRow(ctx, collection.Key(id))
	if err != nil {
		return nil, err
	}

	var row Row
	if err := json.Unmarshal(value, &row); err != nil {
		return nil, fmt.Errorf("failed to decode row %s: %w", collection.Key(id), err)
	}
	return &row, nil
}

// nextOrder ставит новую строку после последнего соседа
func (s *Service) nextOrder(ctx context.Context, collection models.Collection, parent *string) (float64, error) {
	rows, err := s.List(ctx, collection, false)
	if err != nil {
		return 0, err
	}

	order := 0.0
	for _, r := range rows {
		if parent != nil && r.Parent() != *parent {
			continue
		}
		order = max(order, r.Order+1)
	}
	return order, nil
}

func (s *Service) enqueue(ctx context.Context, collection models.Collection, op api.EntityOp) error {
	args, err := json.Marshal([]api.EntityOp{op})
	if err != nil {
		return fmt.Errorf("failed to marshal args: %w", err)
	}

	if _, err := s.replica.Enqueue(ctx, collection.String(), args); err != nil {
		return fmt.Errorf("failed to enqueue %s %s: %w", collection, op.Op, err)
	}
	return nil
}

func (f Fields) text(sc schema) *string {
	if sc.textField == "name" {
		return f.Name
	}
	return f.Text
}

// validate проверяет поля так же, как сервер, чтобы не копить заведомо битые мутации
func (f Fields) validate(sc schema) error {
	if sc.textField == "name" && f.Text != nil {
		return errors.New("text is not supported, use name")
	}
	if sc.textField == "text" && f.Name != nil {
		return errors.New("name is not supported, use text")
	}
	if value := f.text(sc); value != nil {
		if err := validation.ValidateText(sc.textField, *value, sc.maxLen); err != nil {
			return err
		}
	}
	if f.Parent != nil {
		if sc.parent == "" {
			return errors.New("parent is not supported")
		}
		if err := validation.ValidateID(sc.parent.String(), *f.Parent); err != nil {
			return err
		}
	}
	if f.Done != nil && !sc.hasDone {
		return errors.New("done is not supported")
	}
	if f.Order != nil {
		if err := validation.ValidateOrder(*f.Order); err != nil {
			return err
		}
	}
	return nil
}

func (f Fields) toOp(sc schema, kind string) api.EntityOp {
	op := api.EntityOp{
		Op:    kind,
		Name:  f.Name,
		Text:  f.Text,
		Order: f.Order,
		Done:  f.Done,
	}
	switch sc.parent {
	case models.CollectionBoard:
		op.Board = f.Parent
	case models.CollectionBoardColumn:
		op.Column = f.Parent
	case models.CollectionList:
		op.List = f.Parent
	}
	return op
}
