package mutators

import (
	"context"

	"github.com/iudanet/boardsync/internal/models"
)

func (a *applier) list(ctx context.Context, o op) (string, error) {
	if o.Op == OpCreate {
		if err := requireText("name", o.Name, MaxListNameLen); err != nil {
			return "", err
		}
		entity, err := a.newEntity(o)
		if err != nil {
			return "", err
		}
		l := &models.List{Name: *o.Name, Entity: entity}
		return l.ID, insertErr(models.CollectionList, l.ID, a.tx.InsertList(ctx, l))
	}

	if err := optionalText("name", o.Name, MaxListNameLen); err != nil {
		return "", err
	}

	l, err := a.tx.GetList(ctx, o.ID)
	if err != nil {
		return "", lookupErr(models.CollectionList, o.ID, err)
	}
	if err := a.checkOwner(models.CollectionList, &l.Entity); err != nil {
		return "", err
	}

	if o.Name != nil {
		l.Name = *o.Name
	}
	a.touch(o, &l.Entity)

	return l.ID, a.tx.UpdateList(ctx, l)
}

func (a *applier) listItem(ctx context.Context, o op) (string, error) {
	if err := optionalText("text", o.Text, MaxTextLen); err != nil {
		return "", err
	}

	if o.Op == OpCreate {
		if err := requireText("text", o.Text, MaxTextLen); err != nil {
			return "", err
		}
		if err := requireRef("list", o.List); err != nil {
			return "", err
		}
		parent, err := a.tx.GetList(ctx, *o.List)
		var pe *models.Entity
		if parent != nil {
			pe = &parent.Entity
		}
		if err := a.checkParent(models.CollectionList, pe, err, *o.List); err != nil {
			return "", err
		}

		entity, err := a.newEntity(o)
		if err != nil {
			return "", err
		}
		i := &models.ListItem{List: *o.List, Text: *o.Text, Entity: entity}
		if o.Done != nil {
			i.Done = *o.Done
		}
		return i.ID, insertErr(models.CollectionListItem, i.ID, a.tx.InsertListItem(ctx, i))
	}

	i, err := a.tx.GetListItem(ctx, o.ID)
	if err != nil {
		return "", lookupErr(models.CollectionListItem, o.ID, err)
	}
	if err := a.checkOwner(models.CollectionListItem, &i.Entity); err != nil {
		return "", err
	}

	if o.Text != nil {
		i.Text = *o.Text
	}
	if o.Done != nil {
		i.Done = *o.Done
	}
	a.touch(o, &i.Entity)

	return i.ID, a.tx.UpdateListItem(ctx, i)
}
