package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/szaher/xcompanion/internal/config"
	"github.com/szaher/xcompanion/internal/events"
	"github.com/szaher/xcompanion/internal/server"
	"github.com/szaher/xcompanion/internal/session"
	"github.com/szaher/xcompanion/internal/target"
	"github.com/szaher/xcompanion/internal/telemetry"
	"github.com/szaher/xcompanion/internal/xctest"
)

func newServeCmd() *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the session manager server",
		Long:  "Loads the configuration, starts the HTTP server and the session reaper, and runs until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Listen = listen
			}

			level := telemetry.ParseLevel(cfg.LogLevel)
			if verbose {
				level = slog.LevelDebug
			}
			logger := telemetry.NewLogger(os.Stderr, level)

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			return serve(ctx, cfg, logger)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (overrides config)")

	return cmd
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	metrics := telemetry.NewMetrics()
	emitter := &events.LogEmitter{Logger: logger}

	scratch, err := target.NewTemporaryDirectory("")
	if err != nil {
		return err
	}
	defer func() { _ = scratch.Cleanup() }()

	runner := xctest.NewRunner(
		target.NewCommandTarget(cfg.Runner.Command, cfg.Runner.Args, target.WithCommandLogger(logger)),
		target.NewDirectoryStorage(cfg.Bundles.Root),
		scratch,
		xctest.WithRunnerLogger(logger),
	)

	manager := session.NewManager(
		runner.Start,
		session.WithLogger[xctest.RunRequest, xctest.Result](logger),
		session.WithEmitter[xctest.RunRequest, xctest.Result](emitter),
		session.WithMetrics[xctest.RunRequest, xctest.Result](metrics),
		session.WithMaxLifetime[xctest.RunRequest, xctest.Result](time.Duration(cfg.Sessions.MaxLifetime)),
	)

	reaper := session.NewReaper(
		manager.Registry(),
		time.Duration(cfg.Sessions.SweepInterval),
		time.Duration(cfg.Sessions.Retention),
		session.WithReaperLogger[xctest.Result](logger),
		session.WithReaperEmitter[xctest.Result](emitter),
		session.WithReaperMetrics[xctest.Result](metrics),
	)
	go reaper.Run(ctx)

	srv := server.New(manager,
		server.WithAPIKey(cfg.APIKey),
		server.WithLogger(logger),
		server.WithMetricsHandler(metrics.Handler()),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe(cfg.Listen)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	}
}
