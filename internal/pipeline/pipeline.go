package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/station-data-etl/internal/domain"
	"github.com/couchcryptid/station-data-etl/internal/observability"
)

// ErrNoRecords aborts a run in which no source produced a usable record.
var ErrNoRecords = errors.New("no source produced any record")

// Source reads one declared input into canonical-shaped records. A returned
// error fails that source only.
type Source interface {
	Name() string
	Read(ctx context.Context) ([]domain.Record, error)
}

// Transformer turns the concatenated raw dataset into the output dataset.
type Transformer interface {
	Transform(ds domain.Dataset) (domain.Dataset, TransformStats)
}

// DatasetWriter persists the output document. Its failure fails the run.
type DatasetWriter interface {
	Write(ctx context.Context, ds domain.Dataset) error
}

// Sink receives a copy of the output. Sink failures are logged and counted
// but never fail the run.
type Sink interface {
	Name() string
	Write(ctx context.Context, ds domain.Dataset) error
}

// SourceResult reports how one source fared.
type SourceResult struct {
	Name    string
	Records int
	Err     error
}

// Summary describes a completed or aborted run.
type Summary struct {
	Sources    []SourceResult
	Read       int
	Dropped    int
	Written    int
	Report     domain.QualityReport
	SinkErrors map[string]error
	Duration   time.Duration
}

// Pipeline reads every source in declaration order, transforms the combined
// dataset, audits it and writes it out.
type Pipeline struct {
	sources     []Source
	transformer Transformer
	writer      DatasetWriter
	sinks       []Sink
	logger      *slog.Logger
	metrics     *observability.Metrics
}

// New creates a Pipeline with the given stages and observability.
func New(sources []Source, t Transformer, w DatasetWriter, sinks []Sink, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{
		sources:     sources,
		transformer: t,
		writer:      w,
		sinks:       sinks,
		logger:      logger,
		metrics:     metrics,
	}
}

// Run executes one full rebuild of the dataset. Sources are read one after
// another; a failing source contributes nothing. The run fails with
// ErrNoRecords when the combined dataset is empty, and with the writer's
// error when the output cannot be written.
func (p *Pipeline) Run(ctx context.Context) (summary Summary, err error) {
	start := domain.Now()
	summary.SinkErrors = make(map[string]error)
	defer func() {
		summary.Duration = domain.Now().Sub(start)
		p.metrics.RunDuration.Set(summary.Duration.Seconds())
	}()

	p.logger.Info("pipeline started", "sources", len(p.sources))

	var ds domain.Dataset
	for _, src := range p.sources {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		recs := p.extract(ctx, src, &summary)
		ds = append(ds, recs...)
	}
	summary.Read = len(ds)

	if len(ds) == 0 {
		p.logger.Error("run aborted, no output written", "error", ErrNoRecords)
		return summary, ErrNoRecords
	}

	out, stats := p.transformer.Transform(ds)
	summary.Dropped = stats.Dropped
	if stats.Dropped > 0 {
		p.metrics.RecordsDropped.WithLabelValues("no_timestamp").Add(float64(stats.Dropped))
	}
	for field, n := range stats.Normalize.CoercionFailures {
		p.metrics.CoercionFailures.WithLabelValues(field).Add(float64(n))
	}
	if len(out) == 0 {
		err = fmt.Errorf("%w: all %d records lacked a timestamp", ErrNoRecords, summary.Read)
		p.logger.Error("run aborted, no output written", "error", err)
		return summary, err
	}

	summary.Report = domain.Audit(out)
	summary.Report.Log(p.logger)
	for field, n := range summary.Report.Missing() {
		p.metrics.MissingValues.WithLabelValues(field).Set(float64(n))
	}
	p.metrics.Duplicates.Set(float64(summary.Report.Duplicates))

	if err := p.writer.Write(ctx, out); err != nil {
		return summary, fmt.Errorf("write output: %w", err)
	}
	summary.Written = len(out)
	p.metrics.RecordsWritten.Add(float64(len(out)))

	for _, s := range p.sinks {
		if err := s.Write(ctx, out); err != nil {
			p.logger.Error("sink write failed", "sink", s.Name(), "error", err)
			p.metrics.SinkErrors.WithLabelValues(s.Name()).Inc()
			summary.SinkErrors[s.Name()] = err
		}
	}

	p.metrics.LastSuccess.Set(float64(domain.Now().Unix()))
	p.logger.Info("pipeline finished",
		"read", summary.Read,
		"dropped", summary.Dropped,
		"written", summary.Written,
		"duration", domain.Now().Sub(start),
	)
	return summary, nil
}

// extract reads one source, logging and counting a failure instead of
// returning it.
func (p *Pipeline) extract(ctx context.Context, src Source, summary *Summary) []domain.Record {
	start := domain.Now()
	recs, err := src.Read(ctx)
	p.metrics.SourceDuration.WithLabelValues(src.Name()).Observe(domain.Now().Sub(start).Seconds())

	res := SourceResult{Name: src.Name(), Err: err}
	defer func() { summary.Sources = append(summary.Sources, res) }()

	if err != nil {
		p.logger.Error("source failed, skipping", "source", src.Name(), "error", err)
		p.metrics.SourceFailures.WithLabelValues(src.Name()).Inc()
		return nil
	}
	if len(recs) == 0 {
		p.logger.Warn("source produced no records", "source", src.Name())
		return nil
	}

	res.Records = len(recs)
	p.metrics.RecordsRead.WithLabelValues(src.Name()).Add(float64(len(recs)))
	p.logger.Info("source read", "source", src.Name(), "records", len(recs))
	return recs
}
