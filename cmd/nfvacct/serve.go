package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/piwi3910/nfvacct/internal/config"
	"github.com/piwi3910/nfvacct/internal/server"
)

func newServeCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Consume OSM events, aggregate consumption and serve ops endpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), *configPath)
		},
	}
}

func runServe(parent context.Context, configPath string) error {
	cfg, logger, err := setup(configPath)
	if err != nil {
		return err
	}
	defer syncLogger(logger)

	logger.Info("nfvacct starting",
		zap.String("version", Version),
		zap.String("environment", cfg.Environment),
		zap.String("bus", cfg.Bus.Driver))

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize components", zap.Error(err))
		return err
	}
	defer components.Close(logger)

	for _, consumer := range components.consumers {
		consumer.Start(ctx)
	}
	if components.aggregator != nil {
		components.aggregator.Start(ctx)
	}

	var srv *server.Server
	serverErrors := make(chan error, 1)
	if cfg.Server.Enabled {
		srv = server.New(cfg, logger, components.healthChecker, Version)
		go func() {
			if err := srv.Start(); err != nil {
				serverErrors <- err
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErrors:
		logger.Error("ops server error", zap.Error(err))
		runErr = err
	}

	if err := gracefulShutdown(cfg, components, srv, logger); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// gracefulShutdown stops intake first, then the aggregator, then the ops
// server, bounded by the configured shutdown timeout.
func gracefulShutdown(cfg *config.Config, c *applicationComponents, srv *server.Server, logger *zap.Logger) error {
	logger.Info("initiating graceful shutdown", zap.Duration("timeout", cfg.Server.ShutdownTimeout))

	done := make(chan error, 1)
	go func() {
		for _, consumer := range c.consumers {
			consumer.Stop()
		}
		if c.aggregator != nil {
			c.aggregator.Stop()
		}
		if srv != nil {
			if err := srv.Shutdown(); err != nil {
				done <- err
				return
			}
		}
		done <- nil
	}()

	timeout := cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	select {
	case err := <-done:
		if err != nil {
			logger.Error("graceful shutdown failed", zap.Error(err))
			return err
		}
		logger.Info("graceful shutdown completed")
		return nil
	case <-time.After(timeout):
		logger.Warn("graceful shutdown timed out")
		return fmt.Errorf("shutdown timeout exceeded")
	}
}
