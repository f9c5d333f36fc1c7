package columnar

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/couchcryptid/station-data-etl/internal/adapter/jsonl"
	"github.com/couchcryptid/station-data-etl/internal/domain"
)

// Shape is the detected layout of an aggregate table.
type Shape int

const (
	ShapeEmpty Shape = iota
	ShapeFlat
	ShapeWrapped // one JSON payload per row in the connector data column
	ShapeHourly  // an hourly column holding per-station arrays
)

func (s Shape) String() string {
	switch s {
	case ShapeFlat:
		return "flat"
	case ShapeWrapped:
		return "wrapped"
	case ShapeHourly:
		return "hourly"
	default:
		return "empty"
	}
}

// DetectShape inspects the columns of tbl.
func DetectShape(tbl domain.ColumnarTable) Shape {
	switch {
	case tbl.Len() == 0:
		return ShapeEmpty
	case tbl.HasColumn(domain.PayloadColumn):
		return ShapeWrapped
	case tbl.HasColumn(domain.PayloadHourly):
		return ShapeHourly
	default:
		return ShapeFlat
	}
}

// AggregateReader reads the multi-station aggregate feed. The directory may
// hold Parquet files, line-delimited exports or both; Parquet is read first.
// It implements pipeline.Source.
type AggregateReader struct {
	name       string
	dir        string
	dropPrefix string
	loader     TableLoader
	lines      *jsonl.Reader
	logger     *slog.Logger
}

// NewAggregateReader creates an aggregate reader. lines may be nil to
// ignore line-delimited files.
func NewAggregateReader(name, dir, dropPrefix string, loader TableLoader, lines *jsonl.Reader, logger *slog.Logger) *AggregateReader {
	return &AggregateReader{
		name:       name,
		dir:        dir,
		dropPrefix: dropPrefix,
		loader:     loader,
		lines:      lines,
		logger:     logger,
	}
}

// Name returns the source name.
func (r *AggregateReader) Name() string { return r.name }

// Read detects the table shape and maps every row into records. A payload
// that cannot be decoded or routed fails the whole source.
func (r *AggregateReader) Read(ctx context.Context) ([]domain.Record, error) {
	tbl, err := r.loader.ReadDir(ctx, r.dir)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", r.name, err)
	}

	shape := DetectShape(tbl)
	r.logger.Debug("aggregate shape detected", "source", r.name, "shape", shape.String(), "rows", tbl.Len())

	out, err := r.route(shape, tbl)
	if err != nil {
		return nil, fmt.Errorf("source %s: %s table: %w", r.name, shape, err)
	}

	if r.lines != nil {
		files, err := jsonl.Files(r.dir)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", r.name, err)
		}
		for _, path := range files {
			recs, err := r.lines.ReadFile(ctx, path)
			if err != nil {
				return nil, fmt.Errorf("source %s: %w", r.name, err)
			}
			out = append(out, recs...)
		}
	}

	if len(out) == 0 {
		r.logger.Warn("aggregate directory is empty or missing", "source", r.name, "dir", r.dir)
	}
	return out, nil
}

func (r *AggregateReader) route(shape Shape, tbl domain.ColumnarTable) ([]domain.Record, error) {
	switch shape {
	case ShapeWrapped:
		return r.wrapped(tbl)
	case ShapeHourly:
		return r.hourly(tbl)
	case ShapeFlat:
		var out []domain.Record
		for _, row := range tbl.DropPrefix(r.dropPrefix).RowsOf() {
			out = append(out, row.Records(r.name)...)
		}
		return out, nil
	default:
		return nil, nil
	}
}

func (r *AggregateReader) wrapped(tbl domain.ColumnarTable) ([]domain.Record, error) {
	var out []domain.Record
	for i, row := range tbl.Rows {
		payload, err := domain.DecodePayload(row[domain.PayloadColumn])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		if !domain.HasHourly(payload) {
			for _, rec := range domain.PromotePayload(payload).Records(r.name) {
				r.dropFields(&rec)
				out = append(out, rec)
			}
			continue
		}
		p, err := domain.ParseHourlyPayload(payload)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out = append(out, domain.Explode(p, r.name)...)
	}
	return out, nil
}

func (r *AggregateReader) hourly(tbl domain.ColumnarTable) ([]domain.Record, error) {
	var out []domain.Record
	for i, row := range tbl.Rows {
		payload := map[string]any{
			domain.PayloadHourly:   decodeIfText(row[domain.PayloadHourly]),
			domain.PayloadStations: decodeIfText(row[domain.PayloadStations]),
		}
		p, err := domain.ParseHourlyPayload(payload)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out = append(out, domain.Explode(p, r.name)...)
	}
	return out, nil
}

func (r *AggregateReader) dropFields(rec *domain.Record) {
	if r.dropPrefix == "" {
		return
	}
	for _, k := range rec.Keys() {
		if strings.HasPrefix(k, r.dropPrefix) {
			rec.Delete(k)
		}
	}
}

// decodeIfText decodes columns stored as JSON text; other values pass
// through unchanged.
func decodeIfText(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	var out any
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return v
	}
	return out
}
