package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iudanet/boardsync/internal/client/sync"
)

func (c *Cli) printResult(result *sync.Result) {
	c.io.Printf("Pushed:  %d mutation(s)\n", result.Pushed)
	c.io.Printf("Patch:   %d operation(s)", result.PatchOps)
	if result.FullResync {
		c.io.Printf(" (full resync)")
	}
	c.io.Println()
	if result.Pending > 0 {
		c.io.Printf("Pending: %d mutation(s) not yet confirmed\n", result.Pending)
	}
}

func syncErr(err error) error {
	if errors.Is(err, sync.ErrUnauthorized) {
		return fmt.Errorf("%w: run 'boardsync login'", err)
	}
	return fmt.Errorf("synchronization failed: %w", err)
}

func (c *Cli) syncCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Push queued changes and pull updates from the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			authData, err := c.session(cmd.Context())
			if err != nil {
				return err
			}

			result, err := c.syncService.Sync(cmd.Context(), authData.AccessToken)
			if err != nil {
				return syncErr(err)
			}

			c.io.Println("✓ Synchronization completed")
			c.printResult(result)
			return nil
		},
	}
}

func (c *Cli) watchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stay connected and sync whenever the server reports changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			authData, err := c.session(cmd.Context())
			if err != nil {
				return err
			}

			c.io.Println("Watching for changes, press Ctrl+C to stop")
			err = c.syncService.Watch(cmd.Context(), authData.AccessToken, func(result *sync.Result, err error) {
				if err != nil {
					c.io.Printf("✗ %v\n", syncErr(err))
					return
				}
				c.io.Println("✓ Synced")
				c.printResult(result)
			})
			if err != nil {
				return syncErr(err)
			}
			return nil
		},
	}
}
