package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/station-data-etl/internal/adapter/columnar"
	"github.com/couchcryptid/station-data-etl/internal/adapter/excel"
	"github.com/couchcryptid/station-data-etl/internal/adapter/jsonfile"
	"github.com/couchcryptid/station-data-etl/internal/adapter/jsonl"
	"github.com/couchcryptid/station-data-etl/internal/adapter/kafka"
	"github.com/couchcryptid/station-data-etl/internal/adapter/parquet"
	"github.com/couchcryptid/station-data-etl/internal/config"
	"github.com/couchcryptid/station-data-etl/internal/domain"
	"github.com/couchcryptid/station-data-etl/internal/observability"
	"github.com/couchcryptid/station-data-etl/internal/pipeline"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

func newRunCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Rebuild the canonical dataset from every declared source",
		Long: `run reads every declared source in order, normalizes and audits the combined
observations and replaces the output document. It fails when no source
produced a record, in which case no output is written.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			metrics := observability.NewMetrics(prometheus.NewRegistry())
			return runETL(cmd.Context(), c.cfg, c.logger, metrics)
		},
	}
}

// runETL performs one rebuild. Metrics accumulate across calls that share
// the same Metrics.
func runETL(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) error {
	runID := uuid.NewString()
	logger = logger.With("run_id", runID)

	var loader columnar.TableLoader
	if needsLoader(cfg.Sources) {
		l, err := columnar.NewLoader()
		if err != nil {
			return err
		}
		defer l.Close()
		loader = l
	}

	sources, err := buildSources(cfg, loader, logger)
	if err != nil {
		return err
	}

	normalizer := domain.NewNormalizer(domain.NormalizerConfig{
		NumericFields: cfg.NumericFields,
		Profiles:      cfg.Profiles(),
	})

	var sinks []pipeline.Sink
	if cfg.ParquetPath != "" {
		sinks = append(sinks, parquet.NewSnapshotWriter(cfg.ParquetPath, logger))
	}
	if len(cfg.KafkaBrokers) > 0 {
		kw := kafka.NewWriter(cfg.KafkaBrokers, cfg.KafkaTopic, runID, logger)
		defer func() {
			if err := kw.Close(); err != nil {
				logger.Error("kafka writer close error", "error", err)
			}
		}()
		sinks = append(sinks, kw)
	}

	p := pipeline.New(sources,
		pipeline.NewTransformer(normalizer, logger),
		jsonfile.NewWriter(cfg.OutputPath),
		sinks, logger, metrics,
	)
	_, runErr := p.Run(ctx)
	if runErr == nil {
		logger.Info("output written", "path", cfg.OutputPath)
	}

	if err := metrics.Export(ctx, cfg.MetricsTextfile, cfg.PushgatewayURL, cfg.MetricsJob); err != nil {
		logger.Warn("metrics export failed", "error", err)
	}
	return runErr
}

func needsLoader(sources []config.Source) bool {
	for _, s := range sources {
		if s.Kind == config.KindStation || s.Kind == config.KindAggregate {
			return true
		}
	}
	return false
}

// buildSources maps each source declaration onto its reader, in declaration
// order.
func buildSources(cfg *config.Config, loader columnar.TableLoader, logger *slog.Logger) ([]pipeline.Source, error) {
	out := make([]pipeline.Source, 0, len(cfg.Sources))
	for _, s := range cfg.Sources {
		var station domain.StationMetadata
		if s.StationID != "" {
			m, ok := cfg.Stations.Lookup(s.StationID)
			if !ok {
				return nil, fmt.Errorf("source %s: unknown station %q", s.Name, s.StationID)
			}
			station = m
		}

		switch s.Kind {
		case config.KindSpreadsheet:
			out = append(out, excel.NewReader(s.Name, s.Path, station, logger))
		case config.KindStation:
			out = append(out, columnar.NewStationReader(s.Name, s.Path, station, s.FlattenRules(), s.Prefix(), loader, logger))
		case config.KindAggregate:
			lines := jsonl.NewReader(s.Name, s.Path, logger)
			out = append(out, columnar.NewAggregateReader(s.Name, s.Path, s.Prefix(), loader, lines, logger))
		case config.KindJSONL:
			out = append(out, jsonl.NewReader(s.Name, s.Path, logger))
		default:
			return nil, fmt.Errorf("source %s: unknown kind %q", s.Name, s.Kind)
		}
	}
	return out, nil
}
