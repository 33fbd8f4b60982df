package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iudanet/boardsync/internal/models"
	"github.com/iudanet/boardsync/internal/server/storage"
)

// scanner общий интерфейс *sql.Row и *sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

const (
	boardColumns       = `id, public_id, name, "order", deleted, created_by, row_version, created, updated`
	boardColumnColumns = `id, public_id, board, name, "order", deleted, created_by, row_version, created, updated`
	boardItemColumns   = `id, public_id, "column", text, "order", deleted, created_by, row_version, created, updated`
	listColumns        = `id, public_id, name, "order", deleted, created_by, row_version, created, updated`
	listItemColumns    = `id, public_id, list, text, done, "order", deleted, created_by, row_version, created, updated`
)

// entityFields поля Entity для Scan, порядок совпадает с хвостом *Columns
type entityFields struct {
	e       *models.Entity
	created int64
	updated int64
}

func (f *entityFields) tail() []any {
	return []any{&f.e.Order, &f.e.Deleted, &f.e.CreatedBy, &f.e.Version, &f.created, &f.updated}
}

func (f *entityFields) finish() {
	f.e.Created = time.UnixMilli(f.created).UTC()
	f.e.Updated = time.UnixMilli(f.updated).UTC()
}

func scanBoard(row scanner) (*models.Board, error) {
	b := &models.Board{}
	f := entityFields{e: &b.Entity}
	dest := append([]any{&b.ID, &b.PublicID, &b.Name}, f.tail()...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	f.finish()
	return b, nil
}

func scanBoardColumn(row scanner) (*models.BoardColumn, error) {
	c := &models.BoardColumn{}
	f := entityFields{e: &c.Entity}
	dest := append([]any{&c.ID, &c.PublicID, &c.Board, &c.Name}, f.tail()...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	f.finish()
	return c, nil
}

func scanBoardItem(row scanner) (*models.BoardItem, error) {
	i := &models.BoardItem{}
	f := entityFields{e: &i.Entity}
	dest := append([]any{&i.ID, &i.PublicID, &i.Column, &i.Text}, f.tail()...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	f.finish()
	return i, nil
}

func scanList(row scanner) (*models.List, error) {
	l := &models.List{}
	f := entityFields{e: &l.Entity}
	dest := append([]any{&l.ID, &l.PublicID, &l.Name}, f.tail()...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	f.finish()
	return l, nil
}

func scanListItem(row scanner) (*models.ListItem, error) {
	i := &models.ListItem{}
	f := entityFields{e: &i.Entity}
	dest := append([]any{&i.ID, &i.PublicID, &i.List, &i.Text, &i.Done}, f.tail()...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	f.finish()
	return i, nil
}

// getErr приводит sql.ErrNoRows к storage.ErrRowNotFound
func getErr(table string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrRowNotFound
	}
	return fmt.Errorf("failed to get %s: %w", table, err)
}

func insertErr(table string, err error) error {
	if err == nil {
		return nil
	}
	if isUniqueViolation(err) {
		return storage.ErrRowAlreadyExists
	}
	return fmt.Errorf("failed to insert %s: %w", table, err)
}

func updateErr(table string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrRowNotFound
	}
	return fmt.Errorf("failed to update %s: %w", table, err)
}

// GetBoard retrieves a board by id, tombstones included
func (q *queries) GetBoard(ctx context.Context, id string) (*models.Board, error) {
	b, err := scanBoard(q.db.QueryRowContext(ctx, `SELECT `+boardColumns+` FROM board WHERE id = ?`, id))
	if err != nil {
		return nil, getErr("board", err)
	}
	return b, nil
}

// InsertBoard inserts a board with version 1
func (q *queries) InsertBoard(ctx context.Context, b *models.Board) error {
	b.Version = 1
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO board (`+boardColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.PublicID, b.Name, b.Order, b.Deleted, b.CreatedBy, b.Version,
		b.Created.UnixMilli(), b.Updated.UnixMilli(),
	)
	return insertErr("board", err)
}

// UpdateBoard writes mutable fields and bumps the row version
func (q *queries) UpdateBoard(ctx context.Context, b *models.Board) error {
	err := q.db.QueryRowContext(ctx, `
		UPDATE board
		SET name = ?, "order" = ?, deleted = ?, updated = ?, row_version = row_version + 1
		WHERE id = ?
		RETURNING row_version`,
		b.Name, b.Order, b.Deleted, b.Updated.UnixMilli(), b.ID,
	).Scan(&b.Version)
	return updateErr("board", err)
}

// GetBoardColumn retrieves a board column by id
func (q *queries) GetBoardColumn(ctx context.Context, id string) (*models.BoardColumn, error) {
	c, err := scanBoardColumn(q.db.QueryRowContext(ctx, `SELECT `+boardColumnColumns+` FROM board_column WHERE id = ?`, id))
	if err != nil {
		return nil, getErr("board column", err)
	}
	return c, nil
}

// InsertBoardColumn inserts a board column with version 1
func (q *queries) InsertBoardColumn(ctx context.Context, c *models.BoardColumn) error {
	c.Version = 1
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO board_column (`+boardColumnColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.PublicID, c.Board, c.Name, c.Order, c.Deleted, c.CreatedBy, c.Version,
		c.Created.UnixMilli(), c.Updated.UnixMilli(),
	)
	return insertErr("board column", err)
}

// UpdateBoardColumn writes mutable fields and bumps the row version
func (q *queries) UpdateBoardColumn(ctx context.Context, c *models.BoardColumn) error {
	err := q.db.QueryRowContext(ctx, `
		UPDATE board_column
		SET board = ?, name = ?, "order" = ?, deleted = ?, updated = ?, row_version = row_version + 1
		WHERE id = ?
		RETURNING row_version`,
		c.Board, c.Name, c.Order, c.Deleted, c.Updated.UnixMilli(), c.ID,
	).Scan(&c.Version)
	return updateErr("board column", err)
}

// GetBoardItem retrieves a board item by id
func (q *queries) GetBoardItem(ctx context.Context, id string) (*models.BoardItem, error) {
	i, err := scanBoardItem(q.db.QueryRowContext(ctx, `SELECT `+boardItemColumns+` FROM board_item WHERE id = ?`, id))
	if err != nil {
		return nil, getErr("board item", err)
	}
	return i, nil
}

// InsertBoardItem inserts a board item with version 1
func (q *queries) InsertBoardItem(ctx context.Context, i *models.BoardItem) error {
	i.Version = 1
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO board_item (`+boardItemColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		i.ID, i.PublicID, i.Column, i.Text, i.Order, i.Deleted, i.CreatedBy, i.Version,
		i.Created.UnixMilli(), i.Updated.UnixMilli(),
	)
	return insertErr("board item", err)
}

// UpdateBoardItem writes mutable fields and bumps the row version.
// Карточку можно перенести в другую колонку.
func (q *queries) UpdateBoardItem(ctx context.Context, i *models.BoardItem) error {
	err := q.db.QueryRowContext(ctx, `
		UPDATE board_item
		SET "column" = ?, text = ?, "order" = ?, deleted = ?, updated = ?, row_version = row_version + 1
		WHERE id = ?
		RETURNING row_version`,
		i.Column, i.Text, i.Order, i.Deleted, i.Updated.UnixMilli(), i.ID,
	).Scan(&i.Version)
	return updateErr("board item", err)
}

// GetList retrieves a list by id
func (q *queries) GetList(ctx context.Context, id string) (*models.List, error) {
	l, err := scanList(q.db.QueryRowContext(ctx, `SELECT `+listColumns+` FROM list WHERE id = ?`, id))
	if err != nil {
		return nil, getErr("list", err)
	}
	return l, nil
}

// InsertList inserts a list with version 1
func (q *queries) InsertList(ctx context.Context, l *models.List) error {
	l.Version = 1
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO list (`+listColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.PublicID, l.Name, l.Order, l.Deleted, l.CreatedBy, l.Version,
		l.Created.UnixMilli(), l.Updated.UnixMilli(),
	)
	return insertErr("list", err)
}

// UpdateList writes mutable fields and bumps the row version
func (q *queries) UpdateList(ctx context.Context, l *models.List) error {
	err := q.db.QueryRowContext(ctx, `
		UPDATE list
		SET name = ?, "order" = ?, deleted = ?, updated = ?, row_version = row_version + 1
		WHERE id = ?
		RETURNING row_version`,
		l.Name, l.Order, l.Deleted, l.Updated.UnixMilli(), l.ID,
	).Scan(&l.Version)
	return updateErr("list", err)
}

// GetListItem retrieves a list item by id
func (q *queries) GetListItem(ctx context.Context, id string) (*models.ListItem, error) {
	i, err := scanListItem(q.db.QueryRowContext(ctx, `SELECT `+listItemColumns+` FROM list_item WHERE id = ?`, id))
	if err != nil {
		return nil, getErr("list item", err)
	}
	return i, nil
}

// InsertListItem inserts a list item with version 1
func (q *queries) InsertListItem(ctx context.Context, i *models.ListItem) error {
	i.Version = 1
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO list_item (`+listItemColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		i.ID, i.PublicID, i.List, i.Text, i.Done, i.Order, i.Deleted, i.CreatedBy, i.Version,
		i.Created.UnixMilli(), i.Updated.UnixMilli(),
	)
	return insertErr("list item", err)
}

// UpdateListItem writes mutable fields and bumps the row version
func (q *queries) UpdateListItem(ctx context.Context, i *models.ListItem) error {
	err := q.db.QueryRowContext(ctx, `
		UPDATE list_item
		SET text = ?, done = ?, "order" = ?, deleted = ?, updated = ?, row_version = row_version + 1
		WHERE id = ?
		RETURNING row_version`,
		i.Text, i.Done, i.Order, i.Deleted, i.Updated.UnixMilli(), i.ID,
	).Scan(&i.Version)
	return updateErr("list item", err)
}
