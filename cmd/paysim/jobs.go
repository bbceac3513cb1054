package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xraph/paysim"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the store schema migrations and exit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}
		logger := newLogger(cfg.Log)

		s, err := openStore(cmd.Context(), cfg.Store, logger)
		if err != nil {
			return err
		}
		return s.Close()
	},
}

var runJobsCmd = &cobra.Command{
	Use:   "run-jobs",
	Short: "Evaluate the billing jobs once against the store and exit",
	Long: `run-jobs runs metered billing and invoice finalization a single time.
Events the jobs emit are stored; no webhooks are registered in this mode, so
nothing is delivered.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}
		logger := newLogger(cfg.Log)
		ctx := cmd.Context()

		s, err := openStore(ctx, cfg.Store, logger)
		if err != nil {
			return err
		}
		defer s.Close() //nolint:errcheck

		ecfg := cfg.engineConfig()
		ecfg.DisableJobs = false
		engine, err := paysim.New(paysim.WithStore(s), paysim.WithLogger(logger), paysim.WithConfig(ecfg))
		if err != nil {
			return fmt.Errorf("create engine: %w", err)
		}

		runErr := engine.RunJobs(ctx)
		wait := ecfg.ShutdownTimeout
		if wait <= 0 {
			wait = paysim.DefaultConfig().ShutdownTimeout
		}
		stopCtx, cancel := context.WithTimeout(context.Background(), wait)
		defer cancel()
		if err := engine.Stop(stopCtx); err != nil {
			logger.Warn("engine stop", "error", err)
		}
		if runErr != nil {
			return fmt.Errorf("run jobs: %w", runErr)
		}
		logger.Info("jobs completed", "tasks", engine.Scheduler().Tasks())
		return nil
	},
}
