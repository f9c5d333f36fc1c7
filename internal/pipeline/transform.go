package pipeline

import (
	"log/slog"

	"github.com/couchcryptid/station-data-etl/internal/domain"
)

// TransformStats describes what the transform stage changed.
type TransformStats struct {
	Normalize domain.NormalizeStats
	// Dropped counts records removed for lacking a timestamp.
	Dropped int
}

// StationTransformer implements Transformer: it normalizes the concatenated
// dataset and drops records whose timestamp could not be established.
type StationTransformer struct {
	normalizer *domain.Normalizer
	logger     *slog.Logger
}

// NewTransformer creates a StationTransformer around normalizer.
func NewTransformer(normalizer *domain.Normalizer, logger *slog.Logger) *StationTransformer {
	return &StationTransformer{normalizer: normalizer, logger: logger}
}

func (t *StationTransformer) Transform(ds domain.Dataset) (domain.Dataset, TransformStats) {
	normalized, nstats := t.normalizer.Normalize(ds)
	stats := TransformStats{Normalize: nstats}

	out := normalized[:0]
	dropped := make(map[string]int)
	for i := range normalized {
		if ts, ok := normalized[i].Get(domain.FieldTimestamp); !ok || ts.IsNull() {
			dropped[normalized[i].Origin()]++
			continue
		}
		out = append(out, normalized[i])
	}
	stats.Dropped = len(normalized) - len(out)

	for field, n := range nstats.CoercionFailures {
		t.logger.Debug("numeric values coerced to null", "field", field, "count", n)
	}
	for source, n := range dropped {
		t.logger.Warn("records without timestamp dropped", "source", source, "count", n)
	}
	return out, stats
}
