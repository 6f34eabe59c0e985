package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"affsync/internal/amqp"
	"affsync/internal/auth"
	"affsync/internal/cli"
	"affsync/internal/config"
	"affsync/internal/log"
	"affsync/internal/storage"
)

const authoriseTimeout = 5 * time.Minute

func newAuthoriseCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "authorise",
		Aliases: []string{"authorize"},
		Short:   "Authorise access to the spreadsheet and cache the token",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := bootstrap(config.NeedOAuth)
			if err != nil {
				return err
			}

			oauthCfg, err := auth.Config(cfg.ClientSecretPath)
			if err != nil {
				return err
			}

			ctx, cancel := cli.SignalContext(logger)
			defer cancel()
			ctx, cancelTimeout := context.WithTimeout(ctx, authoriseTimeout)
			defer cancelTimeout()

			out := cmd.OutOrStdout()
			_, err = auth.Authorise(ctx, oauthCfg, cfg.OAuthRedirectPort, cfg.CredentialsPath, func(url string) {
				fmt.Fprintf(out, "Open this URL to authorise affsync:\n%s\n", url)
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "Saved token to %s\n", cfg.CredentialsPath)
			return nil
		},
	}
}

func newTabsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tabs",
		Short: "List the spreadsheet's tabs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := bootstrap(config.NeedSpreadsheet)
			if err != nil {
				return err
			}

			ctx, cancel := cli.SignalContext(logger)
			defer cancel()

			sheet, closeSheet, err := cli.OpenSpreadsheet(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer closeSheet()

			tabs, err := sheet.ListTabs(ctx)
			if err != nil {
				return fmt.Errorf("list tabs: %w", err)
			}
			for _, t := range tabs {
				fmt.Fprintln(cmd.OutOrStdout(), t)
			}
			return nil
		},
	}
}

func newRunsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent sync runs from the ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := bootstrap(config.NeedLedger)
			if err != nil {
				return err
			}

			ledger, err := cli.OpenLedger(cfg, logger)
			if err != nil {
				return err
			}
			defer ledger.Close()

			runs, err := ledger.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return printRuns(cmd, runs)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Number of runs to show")
	return cmd
}

func printRuns(cmd *cobra.Command, runs []storage.Run) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTARTED\tSCOPE\tSTATUS\tENTRANTS\tCOMMISSIONS\tDURATION\tERROR")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
			r.ID,
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.Scope,
			r.Status,
			r.Entrants,
			r.Commissions,
			r.Duration().Round(time.Millisecond),
			firstLine(r.Error))
	}
	return w.Flush()
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}

func newEventsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "events",
		Short: "Print run-completed events as they arrive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := bootstrap(config.NeedEvents)
			if err != nil {
				return err
			}

			ctx, cancel := cli.SignalContext(logger)
			defer cancel()

			client, err := cli.OpenEvents(cfg, logger)
			if err != nil {
				return err
			}
			defer client.Close()

			out := cmd.OutOrStdout()
			err = client.ConsumeRunCompleted(ctx, func(_ context.Context, msg *amqp.RunCompletedMessage) error {
				fmt.Fprintf(out, "%s run=%s scope=%s status=%s entrants=%d commissions=%d tabs=%s duration=%s",
					msg.FinishedAt.Local().Format(time.RFC3339),
					msg.RunID, msg.Scope, msg.Status,
					msg.Entrants, msg.Commissions,
					strings.Join(msg.Tabs, ","),
					msg.Duration().Round(time.Millisecond))
				if msg.Error != "" {
					fmt.Fprintf(out, " error=%q", msg.Error)
				}
				fmt.Fprintln(out)
				return nil
			})
			if ctx.Err() != nil {
				logger.Info("Stopped consuming events", log.FieldError, err)
				return nil
			}
			return err
		},
	}
}
