package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/piwi3910/nfvacct/internal/storage"
)

func newMigrateCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrate(cmd.Context(), *configPath)
		},
	}
}

func runMigrate(ctx context.Context, configPath string) error {
	cfg, logger, err := setup(configPath)
	if err != nil {
		return err
	}
	defer syncLogger(logger)

	if ctx == nil {
		ctx = context.Background()
	}

	dbCfg := cfg.Database
	dbCfg.AutoMigrate = false

	store, err := storage.Open(ctx, dbCfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("failed to close database", zap.Error(err))
		}
	}()

	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	logger.Info("database schema up to date", zap.String("driver", dbCfg.Driver))
	return nil
}
