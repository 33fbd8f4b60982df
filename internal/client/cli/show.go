package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/iudanet/boardsync/internal/client/data"
)

func (c *Cli) showCommand() *cobra.Command {
	var all bool
	var parent string

	names := make([]string, 0, len(entityKinds))
	for _, k := range entityKinds {
		names = append(names, k.use)
	}

	cmd := &cobra.Command{
		Use:       "show <collection>",
		Short:     "Show rows of a collection from the local replica",
		Long:      "Show rows of a collection as of the last sync. Collections: " + strings.Join(names, ", "),
		Args:      cobra.ExactArgs(1),
		ValidArgs: names,
		RunE: func(cmd *cobra.Command, args []string) error {
			k, ok := lookupKind(args[0])
			if !ok {
				return fmt.Errorf("unknown collection %q, expected one of: %s", args[0], strings.Join(names, ", "))
			}

			rows, err := c.dataService.List(cmd.Context(), k.collection, all)
			if err != nil {
				return err
			}
			if parent != "" {
				rows = filterByParent(rows, parent)
			}

			if len(rows) == 0 {
				c.io.Printf("No %s rows\n", k.use)
			} else {
				c.printRows(k, rows)
			}

			pending, err := c.syncService.PendingCount(cmd.Context())
			if err != nil {
				return err
			}
			if pending > 0 {
				c.io.Printf("\n%d change(s) not yet synced, run 'boardsync sync'\n", pending)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "include deleted rows")
	cmd.Flags().StringVar(&parent, "parent", "", "show only rows of this parent ID")
	return cmd
}

func filterByParent(rows []data.Row, parent string) []data.Row {
	out := rows[:0]
	for _, r := range rows {
		if r.Parent() == parent {
			out = append(out, r)
		}
	}
	return out
}

func (c *Cli) printRows(k entityKind, rows []data.Row) {
	w := tabwriter.NewWriter(c.io, 0, 0, 2, ' ', 0)

	header := []string{"ID", "PUBLIC ID", strings.ToUpper(k.textFlag)}
	if k.parentFlag != "" {
		header = append(header, strings.ToUpper(k.parentFlag))
	}
	if k.hasDone {
		header = append(header, "DONE")
	}
	header = append(header, "ORDER", "VERSION")
	deleted := hasDeleted(rows)
	if deleted {
		header = append(header, "DELETED")
	}
	fmt.Fprintln(w, strings.Join(header, "\t"))

	for _, r := range rows {
		cols := []string{r.ID, r.PublicID, r.Name + r.Text}
		if k.parentFlag != "" {
			cols = append(cols, r.Parent())
		}
		if k.hasDone {
			cols = append(cols, fmt.Sprint(r.Done))
		}
		cols = append(cols, fmt.Sprint(r.Order), fmt.Sprint(r.Version))
		if deleted {
			cols = append(cols, fmt.Sprint(r.Deleted))
		}
		fmt.Fprintln(w, strings.Join(cols, "\t"))
	}
	_ = w.Flush()
}

func hasDeleted(rows []data.Row) bool {
	for _, r := range rows {
		if r.Deleted {
			return true
		}
	}
	return false
}
