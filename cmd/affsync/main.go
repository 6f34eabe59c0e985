// Command affsync copies commission and contest-entrant feeds into a
// spreadsheet, one tab per commission month plus one tab of entrants.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"affsync/internal/cli"
	"affsync/internal/config"
	"affsync/internal/log"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stdout, "affsync: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	sync := newSyncCmd()

	root := &cobra.Command{
		Use:   "affsync",
		Short: "Sync affiliate commissions and contest entrants into a spreadsheet",
		Long: `affsync pulls commissions from GetAmbassador and active subscribers from a
Campaign Monitor list, and writes them into a spreadsheet: one tab per
commission month and a single tab of entrants. Running it with no
subcommand performs one sync pass.`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRun: func(*cobra.Command, []string) {
			cli.LoadEnvFile()
		},
		RunE: sync.RunE,
	}
	root.Flags().AddFlagSet(sync.Flags())

	root.AddCommand(sync, newAuthoriseCmd(), newTabsCmd(), newRunsCmd(), newEventsCmd())
	return root
}

// bootstrap loads and validates the configuration for needs and builds the
// logger from it.
func bootstrap(needs config.Need) (*config.Config, *log.Logger, error) {
	cfg := config.Load()
	logger := cli.SetupLogger(os.Stdout, cfg.LogLevel)
	if err := cfg.Require(needs); err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}
