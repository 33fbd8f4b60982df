package mutators

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/iudanet/boardsync/internal/ids"
	"github.com/iudanet/boardsync/internal/models"
	"github.com/iudanet/boardsync/internal/server/rowsync"
	"github.com/iudanet/boardsync/internal/server/storage"
	"github.com/iudanet/boardsync/internal/validation"
	"github.com/iudanet/boardsync/pkg/api"
)

const (
	OpCreate = api.OpCreate
	OpUpdate = api.OpUpdate
	OpDelete = api.OpDelete
)

// Максимальная длина названий и текста
const (
	MaxBoardNameLen = validation.MaxBoardNameLen
	MaxListNameLen  = validation.MaxListNameLen
	MaxTextLen      = validation.MaxTextLen
)

// op одна операция из args мутации.
// Указатели отличают "поле не передано" от нулевого значения.
type op struct {
	Name     *string  `json:"name"`
	Text     *string  `json:"text"`
	Order    *float64 `json:"order"`
	Done     *bool    `json:"done"`
	Board    *string  `json:"board"`
	Column   *string  `json:"column"`
	List     *string  `json:"list"`
	Op       string   `json:"_op"`
	ID       string   `json:"id"`
	PublicID string   `json:"public_id"`
}

func decodeOps(args json.RawMessage) ([]op, error) {
	if len(args) == 0 {
		return nil, rowsync.ValidationErrorf("args are required")
	}

	var ops []op
	if err := json.Unmarshal(args, &ops); err != nil {
		return nil, rowsync.ValidationErrorf("args must be an array of operations: %v", err)
	}
	if ops == nil {
		return nil, rowsync.ValidationErrorf("args must be an array of operations")
	}

	for i, o := range ops {
		if err := o.validate(); err != nil {
			return nil, rowsync.ValidationErrorf("operation %d: %v", i, err)
		}
	}

	return ops, nil
}

// validate проверяет поля, общие для всех коллекций
func (o *op) validate() error {
	switch o.Op {
	case OpCreate:
		if o.ID != "" {
			if err := validation.ValidateID("id", o.ID); err != nil {
				return err
			}
		}
		if o.PublicID != "" {
			if err := validation.ValidatePublicID(o.PublicID); err != nil {
				return err
			}
		}
		if o.Order == nil {
			return errors.New("order is required")
		}
	case OpUpdate, OpDelete:
		if err := validation.ValidateID("id", o.ID); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown _op %q", o.Op)
	}

	if o.Order != nil {
		if err := validation.ValidateOrder(*o.Order); err != nil {
			return err
		}
	}

	return nil
}

// newEntity заполняет Entity для создаваемой строки
func (a *applier) newEntity(o op) (models.Entity, error) {
	id := o.ID
	if id == "" {
		id = ids.NewEntityID()
	}

	publicID := o.PublicID
	if publicID == "" {
		var err error
		publicID, err = ids.NewPublicID()
		if err != nil {
			return models.Entity{}, err
		}
	}

	return models.Entity{
		ID:        id,
		PublicID:  publicID,
		CreatedBy: a.userID,
		Order:     *o.Order,
		Created:   a.now,
		Updated:   a.now,
	}, nil
}

// checkOwner запрещает менять чужие строки
func (a *applier) checkOwner(collection models.Collection, e *models.Entity) error {
	if e.CreatedBy != a.userID {
		return rowsync.AuthorizationErrorf("%s %s is not owned by caller", collection, e.ID)
	}
	return nil
}

// checkParent проверяет, что родитель существует, не удален и принадлежит вызывающему
func (a *applier) checkParent(collection models.Collection, parent *models.Entity, err error, id string) error {
	if errors.Is(err, storage.ErrRowNotFound) {
		return rowsync.ValidationErrorf("%s %s not found", collection, id)
	}
	if err != nil {
		return err
	}
	if err := a.checkOwner(collection, parent); err != nil {
		return err
	}
	if parent.Deleted {
		return rowsync.ValidationErrorf("%s %s is deleted", collection, id)
	}
	return nil
}

// touch применяет общие поля update/delete
func (a *applier) touch(o op, e *models.Entity) {
	if o.Op == OpDelete {
		e.Deleted = true
	}
	if o.Order != nil {
		e.Order = *o.Order
	}
	e.Updated = a.now
}

// lookupErr приводит ошибки чтения строки к ошибкам протокола
func lookupErr(collection models.Collection, id string, err error) error {
	if errors.Is(err, storage.ErrRowNotFound) {
		return rowsync.ValidationErrorf("%s %s not found", collection, id)
	}
	return err
}

// insertErr приводит ошибки вставки к ошибкам протокола
func insertErr(collection models.Collection, id string, err error) error {
	if errors.Is(err, storage.ErrRowAlreadyExists) {
		return rowsync.ValidationErrorf("%s %s already exists", collection, id)
	}
	return err
}

func wrapOpErr(collection models.Collection, index int, name string, err error) error {
	var protoErr *rowsync.Error
	if errors.As(err, &protoErr) {
		return &rowsync.Error{
			Kind: protoErr.Kind,
			Err:  fmt.Errorf("%s operation %d (%s): %w", collection, index, name, protoErr.Err),
		}
	}
	return fmt.Errorf("%s operation %d (%s): %w", collection, index, name, err)
}

func requireText(field string, value *string, max int) error {
	if value == nil {
		return rowsync.ValidationErrorf("%s is required", field)
	}
	return optionalText(field, value, max)
}

func optionalText(field string, value *string, max int) error {
	if value == nil {
		return nil
	}
	if err := validation.ValidateText(field, *value, max); err != nil {
		return rowsync.ValidationErrorf("%v", err)
	}
	return nil
}

func requireRef(field string, value *string) error {
	if value == nil {
		return rowsync.ValidationErrorf("%s is required", field)
	}
	return optionalRef(field, value)
}

func optionalRef(field string, value *string) error {
	if value == nil {
		return nil
	}
	if err := validation.ValidateID(field, *value); err != nil {
		return rowsync.ValidationErrorf("%v", err)
	}
	return nil
}
