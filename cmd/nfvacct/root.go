package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/piwi3910/nfvacct/internal/config"
	"github.com/piwi3910/nfvacct/internal/observability"
)

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           ServiceName,
		Short:         "OSM accounting reconciler",
		Long:          "nfvacct mirrors OSM network service lifecycles and VNF telemetry into a billing backend.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", config.DefaultConfigPath, "path to configuration file")

	root.AddCommand(
		newServeCommand(&configPath),
		newAggregateCommand(&configPath),
		newMigrateCommand(&configPath),
		newVersionCommand(),
	)
	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", ServiceName, Version)
			return err
		},
	}
}

// loadConfiguration loads and validates the application configuration.
func loadConfiguration(configPath string) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setup loads configuration and builds the logger every subcommand needs.
func setup(configPath string) (*config.Config, *zap.Logger, error) {
	cfg, err := loadConfiguration(configPath)
	if err != nil {
		return nil, nil, err
	}

	logger, err := observability.NewLogger(cfg.Observability.Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger = logger.With(zap.String("service", ServiceName))

	return cfg, logger, nil
}

// syncLogger flushes buffered entries. Sync fails on terminals and is ignored.
func syncLogger(logger *zap.Logger) {
	_ = logger.Sync()
}
