package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"pilothub/api/internal/config"
	"pilothub/api/internal/kv"
	"pilothub/api/internal/logging"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "pilot",
		Short:   "Pilot API: project storage and AI streaming for the app builder",
		Version: version,
		// Running without a subcommand serves the API.
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newMigrateCmd())
	rootCmd.AddCommand(newProjectsCmd())
	rootCmd.AddCommand(newSnapshotCmd())

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// runtime is the shared setup every subcommand needs.
type runtime struct {
	cfg    config.Config
	logger *slog.Logger
	store  kv.Store
	close  func()
}

func openRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger, closeLog := logging.New(logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
	})
	store, err := kv.Open(ctx, kv.Options{
		Driver:        cfg.StoreDriver,
		RedisURL:      cfg.RedisURL,
		RedisPrefix:   cfg.RedisPrefix,
		DatabaseURL:   cfg.DatabaseURL,
		MigrationsDir: cfg.MigrationsDir,
	}, logger)
	if err != nil {
		_ = closeLog()
		return nil, fmt.Errorf("open store: %w", err)
	}
	return &runtime{
		cfg:    cfg,
		logger: logger,
		store:  store,
		close: func() {
			if err := store.Close(); err != nil {
				logger.Warn("close store", "error", err)
			}
			_ = closeLog()
		},
	}, nil
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply Postgres migrations for the postgres store driver",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			db, err := kv.OpenDB(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer db.Close()
			applied, err := kv.ApplyMigrations(cmd.Context(), db, cfg.MigrationsDir)
			if err != nil {
				return fmt.Errorf("apply migrations: %w", err)
			}
			if len(applied) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No pending migrations.")
				return nil
			}
			for _, name := range applied {
				fmt.Fprintf(cmd.OutOrStdout(), "applied %s\n", name)
			}
			return nil
		},
	}
}
