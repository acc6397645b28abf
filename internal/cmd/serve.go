package cmd

import (
	"context"
	"errors"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tailorforge/tailorbatch/internal/config"
	"github.com/tailorforge/tailorbatch/internal/observability"
	"github.com/tailorforge/tailorbatch/internal/server"
	"github.com/tailorforge/tailorbatch/internal/server/handlers"
	"github.com/tailorforge/tailorbatch/pkg/batchstore"
	"github.com/tailorforge/tailorbatch/pkg/orchestrator"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the batch orchestration HTTP API",
	Long: `Start the tailorbatch HTTP server.

Endpoints:
  POST /v1/batches                  submit a batch
  GET  /v1/batches/{id}             poll batch status
  GET  /v1/batches/{id}/results     fetch final results
  GET  /health, /version

Configuration comes from tailorbatch.yaml, TAILORBATCH_* environment
variables, and flags.`,
	RunE: runServe,
}

var (
	serveHost  string
	servePort  int
	serveLocal bool
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveHost, "host", "", "Override listen host")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Override listen port")
	serveCmd.Flags().BoolVar(&serveLocal, "local", false, "Use in-memory stub fetcher instead of live HTTP")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	overrides := map[string]any{}
	if serveHost != "" || servePort != 0 {
		serverOverride := map[string]any{}
		if serveHost != "" {
			serverOverride["host"] = serveHost
		}
		if servePort != 0 {
			serverOverride["port"] = servePort
		}
		overrides["server"] = serverOverride
	}

	cfg, err := config.Load(ctx, overrides)
	if err != nil {
		observability.CLILogger.Error("Failed to load configuration", zap.Error(err))
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}

	// Re-init logging with the configured level and profile.
	if err := observability.InitLogging(cfg.Logging.Level, cfg.Logging.Profile); err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid logging configuration", err)
	}
	logger := observability.ServerLogger

	store, err := buildStore(ctx, cfg)
	if err != nil {
		logger.Error("Failed to open batch store", zap.Error(err))
		return exitError(foundry.ExitFileWriteError, "Failed to open batch store", err)
	}
	defer func() { _ = store.Close() }()

	artifacts, err := buildArtifacts(ctx, cfg)
	if err != nil {
		logger.Error("Failed to open artifact store", zap.Error(err))
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to open artifact store", err)
	}
	defer func() { _ = artifacts.Close() }()

	orch := orchestrator.New(store, artifacts, buildCollaborators(cfg, serveLocal), logger)

	handlers.InitHealthManager(versionInfo.Version)
	handlers.RegisterHealthChecker("store", storeHealthChecker{store: store})

	srv := server.New(cfg.Server.Host, cfg.Server.Port,
		server.WithBatchHandler(handlers.NewBatchHandler(orch, logger)),
		server.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.IdleTimeout),
	)

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Start() }()

	select {
	case err := <-serveErr:
		if err != nil {
			logger.Error("Server failed", zap.Error(err))
			return exitError(foundry.ExitExternalServiceUnavailable, "Server failed", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down", zap.Duration("timeout", cfg.Server.ShutdownTimeout))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown incomplete", zap.Error(err))
	}
	if err := orch.Shutdown(shutdownCtx); err != nil {
		logger.Warn("orchestrator shutdown incomplete", zap.Error(err))
	}
	return nil
}

// storeHealthChecker verifies the batch store answers queries. A
// lookup for an unknown id exercises the full query path; ErrNotFound
// is the healthy answer.
type storeHealthChecker struct {
	store batchstore.Store
}

func (c storeHealthChecker) CheckHealth(ctx context.Context) error {
	checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	_, err := c.store.GetStatus(checkCtx, "healthcheck")
	if err != nil && !errors.Is(err, batchstore.ErrNotFound) {
		return err
	}
	return nil
}
