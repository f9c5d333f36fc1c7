package parquet

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/couchcryptid/station-data-etl/internal/domain"
	"github.com/xitongsys/parquet-go-source/local"
	pq "github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

// writerParallelism is the number of goroutines parquet-go uses per file.
const writerParallelism = 4

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9_]`)

// column maps a dataset field onto a Parquet column.
type column struct {
	field   string
	name    string
	numeric bool
}

// SnapshotWriter writes the canonical dataset as a Snappy-compressed Parquet
// file. Columns holding only numbers are DOUBLE; all others are UTF-8 text,
// with timestamps in the canonical layout and nested values as JSON.
type SnapshotWriter struct {
	path   string
	logger *slog.Logger
}

// NewSnapshotWriter creates a snapshot writer for path.
func NewSnapshotWriter(path string, logger *slog.Logger) *SnapshotWriter {
	return &SnapshotWriter{path: path, logger: logger}
}

// Name identifies the sink in logs and metrics.
func (w *SnapshotWriter) Name() string { return "parquet" }

// Write replaces the snapshot file with ds. An empty dataset writes nothing.
func (w *SnapshotWriter) Write(ctx context.Context, ds domain.Dataset) error {
	if len(ds) == 0 {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return fmt.Errorf("create snapshot directory: %w", err)
	}

	cols := schemaFor(ds)
	meta := make([]string, len(cols))
	for i, c := range cols {
		if c.numeric {
			meta[i] = fmt.Sprintf("name=%s, type=DOUBLE, repetitiontype=OPTIONAL", c.name)
		} else {
			meta[i] = fmt.Sprintf("name=%s, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL", c.name)
		}
	}

	tmp := w.path + ".tmp"
	fw, err := local.NewLocalFileWriter(tmp)
	if err != nil {
		return fmt.Errorf("create snapshot file: %w", err)
	}
	defer os.Remove(tmp)

	pw, err := writer.NewCSVWriter(meta, fw, writerParallelism)
	if err != nil {
		fw.Close()
		return fmt.Errorf("create snapshot writer: %w", err)
	}
	pw.CompressionType = pq.CompressionCodec_SNAPPY

	for i := range ds {
		if i%1000 == 0 {
			if err := ctx.Err(); err != nil {
				fw.Close()
				return err
			}
		}
		if err := pw.WriteString(rowValues(&ds[i], cols)); err != nil {
			fw.Close()
			return fmt.Errorf("write snapshot row %d: %w", i, err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		fw.Close()
		return fmt.Errorf("finish snapshot: %w", err)
	}
	if err := fw.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmp, w.path); err != nil {
		return fmt.Errorf("move snapshot into place: %w", err)
	}
	w.logger.Info("parquet snapshot written", "path", w.path, "rows", len(ds), "columns", len(cols))
	return nil
}

// schemaFor derives one column per dataset field. Names are reduced to
// [A-Za-z0-9_] and made unique.
func schemaFor(ds domain.Dataset) []column {
	fields := ds.Columns()
	cols := make([]column, len(fields))
	used := make(map[string]bool, len(fields))
	for i, f := range fields {
		name := unsafeName.ReplaceAllString(strings.TrimSpace(f), "_")
		if name == "" || (name[0] >= '0' && name[0] <= '9') {
			name = "column_" + name
		}
		base := name
		for n := 2; used[strings.ToLower(name)]; n++ {
			name = fmt.Sprintf("%s_%d", base, n)
		}
		used[strings.ToLower(name)] = true
		cols[i] = column{field: f, name: name, numeric: numericField(ds, f)}
	}
	return cols
}

// numericField reports whether every non-null value of field is a number.
// All-null fields are text.
func numericField(ds domain.Dataset, field string) bool {
	seen := false
	for i := range ds {
		v, ok := ds[i].Get(field)
		if !ok || v.IsNull() {
			continue
		}
		if v.Kind() != domain.KindNumber {
			return false
		}
		seen = true
	}
	return seen
}

func rowValues(r *domain.Record, cols []column) []*string {
	out := make([]*string, len(cols))
	for i, c := range cols {
		v, ok := r.Get(c.field)
		if !ok || v.IsNull() {
			continue
		}
		var s string
		if f, isNum := v.NumberValue(); isNum {
			if math.IsNaN(f) || math.IsInf(f, 0) {
				continue
			}
			s = strconv.FormatFloat(f, 'f', -1, 64)
		} else {
			s = v.String()
		}
		out[i] = &s
	}
	return out
}
