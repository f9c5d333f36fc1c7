package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	httpadapter "github.com/couchcryptid/station-data-etl/internal/adapter/http"
	"github.com/couchcryptid/station-data-etl/internal/config"
	"github.com/couchcryptid/station-data-etl/internal/observability"
	"github.com/couchcryptid/station-data-etl/internal/pipeline"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

func newServeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Rebuild on an interval and expose health and metrics over HTTP",
		Long: `serve rebuilds the dataset immediately and then every interval until
interrupted. /healthz, /readyz and /metrics are served on http_addr; /readyz
turns ready after the first successful rebuild.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), c.cfg, c.logger)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	sched := pipeline.NewScheduler(func(ctx context.Context) error {
		return runETL(ctx, cfg, logger, metrics)
	}, cfg.Interval, clockwork.NewRealClock(), logger)

	srv := httpadapter.NewServer(cfg.HTTPAddr, sched, metrics.Registry(), logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	logger.Info("scheduled rebuilds started", "interval", cfg.Interval, "addr", cfg.HTTPAddr)
	err := sched.Run(ctx)
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	logger.Info("shutdown complete", "runs", sched.Runs())
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
