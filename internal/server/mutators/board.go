package mutators

import (
	"context"

	"github.com/iudanet/boardsync/internal/models"
)

func (a *applier) board(ctx context.Context, o op) (string, error) {
	if o.Op == OpCreate {
		if err := requireText("name", o.Name, MaxBoardNameLen); err != nil {
			return "", err
		}
		entity, err := a.newEntity(o)
		if err != nil {
			return "", err
		}
		b := &models.Board{Name: *o.Name, Entity: entity}
		return b.ID, insertErr(models.CollectionBoard, b.ID, a.tx.InsertBoard(ctx, b))
	}

	if err := optionalText("name", o.Name, MaxBoardNameLen); err != nil {
		return "", err
	}

	b, err := a.tx.GetBoard(ctx, o.ID)
	if err != nil {
		return "", lookupErr(models.CollectionBoard, o.ID, err)
	}
	if err := a.checkOwner(models.CollectionBoard, &b.Entity); err != nil {
		return "", err
	}

	if o.Name != nil {
		b.Name = *o.Name
	}
	a.touch(o, &b.Entity)

	return b.ID, a.tx.UpdateBoard(ctx, b)
}

func (a *applier) boardColumn(ctx context.Context, o op) (string, error) {
	if err := optionalText("name", o.Name, MaxBoardNameLen); err != nil {
		return "", err
	}
	if err := optionalRef("board", o.Board); err != nil {
		return "", err
	}
	if o.Board != nil {
		parent, err := a.tx.GetBoard(ctx, *o.Board)
		var pe *models.Entity
		if parent != nil {
			pe = &parent.Entity
		}
		if err := a.checkParent(models.CollectionBoard, pe, err, *o.Board); err != nil {
			return "", err
		}
	}

	if o.Op == OpCreate {
		if err := requireText("name", o.Name, MaxBoardNameLen); err != nil {
			return "", err
		}
		if err := requireRef("board", o.Board); err != nil {
			return "", err
		}
		entity, err := a.newEntity(o)
		if err != nil {
			return "", err
		}
		c := &models.BoardColumn{Board: *o.Board, Name: *o.Name, Entity: entity}
		return c.ID, insertErr(models.CollectionBoardColumn, c.ID, a.tx.InsertBoardColumn(ctx, c))
	}

	c, err := a.tx.GetBoardColumn(ctx, o.ID)
	if err != nil {
		return "", lookupErr(models.CollectionBoardColumn, o.ID, err)
	}
	if err := a.checkOwner(models.CollectionBoardColumn, &c.Entity); err != nil {
		return "", err
	}

	if o.Name != nil {
		c.Name = *o.Name
	}
	if o.Board != nil {
		c.Board = *o.Board
	}
	a.touch(o, &c.Entity)

	return c.ID, a.tx.UpdateBoardColumn(ctx, c)
}

func (a *applier) boardItem(ctx context.Context, o op) (string, error) {
	if err := optionalText("text", o.Text, MaxTextLen); err != nil {
		return "", err
	}
	if err := optionalRef("column", o.Column); err != nil {
		return "", err
	}
	if o.Column != nil {
		parent, err := a.tx.GetBoardColumn(ctx, *o.Column)
		var pe *models.Entity
		if parent != nil {
			pe = &parent.Entity
		}
		if err := a.checkParent(models.CollectionBoardColumn, pe, err, *o.Column); err != nil {
			return "", err
		}
	}

	if o.Op == OpCreate {
		if err := requireText("text", o.Text, MaxTextLen); err != nil {
			return "", err
		}
		if err := requireRef("column", o.Column); err != nil {
			return "", err
		}
		entity, err := a.newEntity(o)
		if err != nil {
			return "", err
		}
		i := &models.BoardItem{Column: *o.Column, Text: *o.Text, Entity: entity}
		return i.ID, insertErr(models.CollectionBoardItem, i.ID, a.tx.InsertBoardItem(ctx, i))
	}

	i, err := a.tx.GetBoardItem(ctx, o.ID)
	if err != nil {
		return "", lookupErr(models.CollectionBoardItem, o.ID, err)
	}
	if err := a.checkOwner(models.CollectionBoardItem, &i.Entity); err != nil {
		return "", err
	}

	if o.Text != nil {
		i.Text = *o.Text
	}
	if o.Column != nil {
		i.Column = *o.Column
	}
	a.touch(o, &i.Entity)

	return i.ID, a.tx.UpdateBoardItem(ctx, i)
}
