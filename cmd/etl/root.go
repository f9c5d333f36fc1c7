package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/couchcryptid/station-data-etl/internal/config"
	"github.com/couchcryptid/station-data-etl/internal/observability"
	"github.com/spf13/cobra"
)

// cli carries the state shared by every subcommand once the root command
// has loaded configuration.
type cli struct {
	configPath string
	cfg        *config.Config
	logger     *slog.Logger
	logCloser  io.Closer
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "etl",
		Short: "Reconcile weather station exports into one canonical dataset.",
		Long: `etl reads per-day spreadsheet workbooks, per-station Parquet exports and the
aggregate weather-network feed, reconciles them into one flat observation
schema and writes it as a JSON array ready for bulk load.

Configuration is layered: defaults, then the YAML file given by --config or
$STATION_ETL_CONFIG, then STATION_ETL_* environment variables.`,
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.Load(c.configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, closer, err := observability.NewLogger(cfg.LogLevel, cfg.LogFormat, cfg.LogFile)
			if err != nil {
				return err
			}
			c.cfg, c.logger, c.logCloser = cfg, logger, closer
			return nil
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			if c.logCloser != nil {
				return c.logCloser.Close()
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "YAML configuration file (default $"+config.EnvConfigPath+")")

	root.AddCommand(newRunCmd(c), newServeCmd(c), newAuditCmd(c))
	return root
}
