package main

import (
	"github.com/spf13/cobra"

	"affsync/internal/cli"
	"affsync/internal/config"
	"affsync/internal/log"
	"affsync/internal/services"
	"affsync/internal/sources"
	"affsync/internal/sources/ambassador"
	"affsync/internal/sources/campaignmonitor"
)

func newSyncCmd() *cobra.Command {
	var only string

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one sync pass",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			scope, err := services.ParseScope(only)
			if err != nil {
				return err
			}
			return runSync(cmd, scope)
		},
	}
	cmd.Flags().StringVar(&only, "only", "", "Sync a single feed: entrants or commissions")
	return cmd
}

func runSync(cmd *cobra.Command, scope services.Scope) error {
	cfg, logger, err := bootstrap(config.NeedSources | config.NeedSpreadsheet)
	if err != nil {
		return err
	}

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	httpClient := sources.NewHTTPClient(cfg.HTTPTimeout)
	commissions, err := ambassador.New(ambassador.Config{
		BaseURL:     cfg.AmbassadorBaseURL,
		Username:    cfg.AmbassadorUsername,
		APIKey:      cfg.AmbassadorKey,
		CreatedFrom: cfg.CommissionsFrom,
		CreatedTo:   cfg.CommissionsTo,
		HTTPClient:  httpClient,
	})
	if err != nil {
		return err
	}
	entrants, err := campaignmonitor.New(campaignmonitor.Config{
		BaseURL:    cfg.CMBaseURL,
		APIKey:     cfg.CMAPIKey,
		ListID:     cfg.CMListID,
		Since:      cfg.EntrantsFrom,
		HTTPClient: httpClient,
	})
	if err != nil {
		return err
	}

	sheet, closeSheet, err := cli.OpenSpreadsheet(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeSheet()

	var recorder services.RunRecorder
	if ledger, err := cli.OpenLedger(cfg, logger); err != nil {
		logger.Warn("Run ledger unavailable", log.FieldError, err)
	} else if ledger != nil {
		defer ledger.Close()
		recorder = ledger
	}

	var publisher services.RunPublisher
	if events, err := cli.OpenEvents(cfg, logger); err != nil {
		logger.Warn("Run events unavailable", log.FieldError, err)
	} else if events != nil {
		defer events.Close()
		publisher = events
	}

	svc := services.NewSyncService(
		sheet,
		sources.NewFetcher(commissions, entrants, logger),
		recorder,
		publisher,
		services.SyncOptions{
			EntrantsTab: cfg.EntrantsTab,
			TabLayout:   cfg.CommissionTabLayout,
			Scope:       scope,
		},
		logger,
	)

	result, err := svc.Run(ctx)
	if err != nil {
		return err
	}

	logger.Info("Tabs written",
		log.FieldRunID, result.RunID,
		log.FieldBackend, cfg.DataBackend,
		"tabs", result.Tabs)
	return nil
}
