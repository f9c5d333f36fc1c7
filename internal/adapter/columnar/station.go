package columnar

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/station-data-etl/internal/domain"
)

// StationReader reads the columnar export of exactly one station.
// It implements pipeline.Source.
type StationReader struct {
	name       string
	dir        string
	station    domain.StationMetadata
	rules      domain.FlattenRules
	dropPrefix string
	loader     TableLoader
	logger     *slog.Logger
}

// NewStationReader creates a reader for one station's export directory.
func NewStationReader(name, dir string, station domain.StationMetadata, rules domain.FlattenRules,
	dropPrefix string, loader TableLoader, logger *slog.Logger,
) *StationReader {
	return &StationReader{
		name:       name,
		dir:        dir,
		station:    station,
		rules:      rules,
		dropPrefix: dropPrefix,
		loader:     loader,
		logger:     logger,
	}
}

// Name returns the source name.
func (r *StationReader) Name() string { return r.name }

// Read loads the directory, unwraps wrapped columns, stamps the station
// metadata on every row and drops bookkeeping columns.
func (r *StationReader) Read(ctx context.Context) ([]domain.Record, error) {
	tbl, err := r.loader.ReadDir(ctx, r.dir)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", r.name, err)
	}
	if tbl.Len() == 0 {
		r.logger.Warn("columnar directory is empty or missing", "source", r.name, "dir", r.dir)
		return nil, nil
	}

	flat, unwrapped := tbl.Flatten(r.rules)
	for _, c := range unwrapped {
		r.logger.Debug("unwrapped column", "source", r.name, "column", c)
	}

	rows := flat.DropPrefix(r.dropPrefix).RowsOf()
	out := make([]domain.Record, 0, len(rows))
	for _, row := range rows {
		for _, rec := range row.Records(r.name) {
			r.station.Apply(&rec)
			out = append(out, rec)
		}
	}
	return out, nil
}
