package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/anithp/buddi-chain/internal/api"
	"github.com/anithp/buddi-chain/internal/app"
	"github.com/anithp/buddi-chain/internal/config"
	"github.com/anithp/buddi-chain/internal/logging"
)

// newServeCmd creates the 'serve' subcommand: the long-running ingestion
// service with its HTTP control surface.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Runs the ingestion scheduler and its HTTP control surface",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize application services: %w", err)
	}
	defer func() {
		if cerr := application.Close(); cerr != nil {
			logger.Warn("shutdown cleanup failed", zap.Error(cerr))
		}
	}()

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           api.NewServer(application.Scheduler(), application.Store(), application.Datasets(), application.Verifier(), cfg.Server, logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if cfg.Scheduler.Autostart {
		application.Scheduler().Start()
	} else {
		logger.Info("scheduler autostart disabled; start it via POST /api/scheduler/start")
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.Int("port", cfg.Server.Port))
		if serveErr := server.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			errCh <- serveErr
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err = <-errCh:
		logger.Error("http server failed", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if serr := server.Shutdown(shutdownCtx); serr != nil {
		logger.Warn("http shutdown incomplete", zap.Error(serr))
	}

	application.Scheduler().Stop()
	logger.Info("service stopped")
	return err
}
