package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iudanet/boardsync/internal/client/data"
	"github.com/iudanet/boardsync/internal/models"
)

// entityKind описывает команду одной коллекции
type entityKind struct {
	use        string
	collection models.Collection
	textFlag   string // name или text
	parentFlag string // флаг ID родителя, пусто для корневых коллекций
	hasDone    bool
}

var entityKinds = []entityKind{
	{use: "board", collection: models.CollectionBoard, textFlag: "name"},
	{use: "column", collection: models.CollectionBoardColumn, textFlag: "name", parentFlag: "board"},
	{use: "item", collection: models.CollectionBoardItem, textFlag: "text", parentFlag: "column"},
	{use: "list", collection: models.CollectionList, textFlag: "name"},
	{use: "list-item", collection: models.CollectionListItem, textFlag: "text", parentFlag: "list", hasDone: true},
}

// lookupKind принимает имя команды или имя коллекции
func lookupKind(name string) (entityKind, bool) {
	for _, k := range entityKinds {
		if k.use == name || string(k.collection) == name {
			return k, true
		}
	}
	return entityKind{}, false
}

// entityFlags значения флагов полей строки
type entityFlags struct {
	text   string
	parent string
	order  float64
	done   bool
}

func (k entityKind) addFlags(cmd *cobra.Command, f *entityFlags) {
	cmd.Flags().StringVar(&f.text, k.textFlag, "", k.textFlag+" of the "+k.use)
	if k.parentFlag != "" {
		cmd.Flags().StringVar(&f.parent, k.parentFlag, "", "ID of the parent "+k.parentFlag)
	}
	cmd.Flags().Float64Var(&f.order, "order", 0, "position among siblings")
	if k.hasDone {
		cmd.Flags().BoolVar(&f.done, "done", false, "mark as done")
	}
}

// fields переносит в data.Fields только явно заданные флаги
func (k entityKind) fields(cmd *cobra.Command, f *entityFlags) data.Fields {
	var out data.Fields
	changed := cmd.Flags().Changed

	if changed(k.textFlag) {
		if k.textFlag == "name" {
			out.Name = &f.text
		} else {
			out.Text = &f.text
		}
	}
	if k.parentFlag != "" && changed(k.parentFlag) {
		out.Parent = &f.parent
	}
	if changed("order") {
		out.Order = &f.order
	}
	if k.hasDone && changed("done") {
		out.Done = &f.done
	}
	return out
}

func (c *Cli) entityCommand(k entityKind) *cobra.Command {
	cmd := &cobra.Command{
		Use:   k.use,
		Short: fmt.Sprintf("Create, update or delete %s rows", k.collection),
	}

	var createFlags entityFlags
	create := &cobra.Command{
		Use:   "create",
		Short: "Queue creation of a " + k.use,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := c.dataService.Create(cmd.Context(), k.collection, k.fields(cmd, &createFlags))
			if err != nil {
				return err
			}
			c.io.Printf("✓ %s %s queued for creation\n", k.use, id)
			return nil
		},
	}
	k.addFlags(create, &createFlags)
	_ = create.MarkFlagRequired(k.textFlag)
	if k.parentFlag != "" {
		_ = create.MarkFlagRequired(k.parentFlag)
	}

	var updateFlags entityFlags
	update := &cobra.Command{
		Use:   "update <id>",
		Short: "Queue an update of a " + k.use,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.dataService.Update(cmd.Context(), k.collection, args[0], k.fields(cmd, &updateFlags)); err != nil {
				return err
			}
			c.io.Printf("✓ %s %s queued for update\n", k.use, args[0])
			return nil
		},
	}
	k.addFlags(update, &updateFlags)

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Queue deletion of a " + k.use,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.dataService.Delete(cmd.Context(), k.collection, args[0]); err != nil {
				return err
			}
			c.io.Printf("✓ %s %s queued for deletion\n", k.use, args[0])
			return nil
		},
	}

	cmd.AddCommand(create, update, del)
	return cmd
}
