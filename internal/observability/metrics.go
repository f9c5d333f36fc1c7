package observability

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

const namespace = "station_etl"

// Metrics holds the Prometheus counters and gauges describing one ETL run.
type Metrics struct {
	registry *prometheus.Registry

	RecordsRead    *prometheus.CounterVec // labels: source
	SourceFailures *prometheus.CounterVec // labels: source
	SourceDuration *prometheus.HistogramVec
	RecordsDropped *prometheus.CounterVec // labels: reason
	RecordsWritten prometheus.Counter

	// Data quality.
	CoercionFailures *prometheus.CounterVec // labels: field
	MissingValues    *prometheus.GaugeVec   // labels: field
	Duplicates       prometheus.Gauge

	RunDuration prometheus.Gauge
	LastSuccess prometheus.Gauge
	SinkErrors  *prometheus.CounterVec // labels: sink
}

// NewMetrics creates all run metrics and registers them with reg.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		RecordsRead: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_read_total",
			Help:      "Records produced by each source reader.",
		}, []string{"source"}),
		SourceFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_failures_total",
			Help:      "Sources that failed and contributed no records.",
		}, []string{"source"}),
		SourceDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_read_duration_seconds",
			Help:      "Time spent reading each source.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"source"}),
		RecordsDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_dropped_total",
			Help:      "Records removed before output, by reason.",
		}, []string{"reason"}),
		RecordsWritten: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_written_total",
			Help:      "Records written to the output document.",
		}),
		CoercionFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "coercion_failures_total",
			Help:      "Numeric values that could not be parsed and became null.",
		}, []string{"field"}),
		MissingValues: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "missing_values",
			Help:      "Null or absent values per field in the last output.",
		}, []string{"field"}),
		Duplicates: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "duplicate_records",
			Help:      "Exact duplicate records in the last output.",
		}),
		RunDuration: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of the last run.",
		}),
		LastSuccess: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run.",
		}),
		SinkErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_errors_total",
			Help:      "Failed writes to secondary sinks.",
		}, []string{"sink"}),
	}
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}

// Registry returns the registry the metrics are registered with.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Export writes the metrics to textfile (node_exporter textfile collector
// format) and pushes them to a Pushgateway at pushURL under job. Empty
// destinations are skipped.
func (m *Metrics) Export(ctx context.Context, textfile, pushURL, job string) error {
	if textfile != "" {
		if err := prometheus.WriteToTextfile(textfile, m.registry); err != nil {
			return fmt.Errorf("write metrics textfile: %w", err)
		}
	}
	if pushURL != "" {
		if err := push.New(pushURL, job).Gatherer(m.registry).PushContext(ctx); err != nil {
			return fmt.Errorf("push metrics: %w", err)
		}
	}
	return nil
}
