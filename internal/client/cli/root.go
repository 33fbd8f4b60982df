package cli

import (
	"github.com/spf13/cobra"
)

// RootCommand собирает дерево команд клиента
func (c *Cli) RootCommand(info BuildInfo) *cobra.Command {
	root := &cobra.Command{
		Use:           "boardsync",
		Short:         "Offline-first boards and lists synchronized with a boardsync server",
		Version:       info.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.init(cmd.Context())
		},
	}
	root.SetVersionTemplate("boardsync client " + info.Version +
		"\nBuild Date: " + info.BuildDate +
		"\nGit Commit: " + info.GitCommit + "\n")
	root.SetOut(c.io)
	root.SetErr(c.io)

	serverURL := defaultServerURL
	if v := c.getenv("BOARDSYNC_SERVER"); v != "" {
		serverURL = v
	}
	dbPath := defaultDBPath
	if v := c.getenv("BOARDSYNC_DB"); v != "" {
		dbPath = v
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.opts.serverURL, "server", serverURL, "server URL (env BOARDSYNC_SERVER)")
	flags.StringVar(&c.opts.dbPath, "db", dbPath, "path to local database (env BOARDSYNC_DB)")
	flags.StringVar(&c.opts.logLevel, "log-level", "warn", "log level: debug, info, warn, error")

	root.AddCommand(
		c.registerCommand(),
		c.loginCommand(),
		c.logoutCommand(),
		c.statusCommand(),
		c.syncCommand(),
		c.watchCommand(),
		c.showCommand(),
	)
	for _, kind := range entityKinds {
		root.AddCommand(c.entityCommand(kind))
	}

	return root
}
