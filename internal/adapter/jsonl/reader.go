package jsonl

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/couchcryptid/station-data-etl/internal/domain"
)

// maxLineSize bounds one exported line; a day of hourly data for a whole
// network fits comfortably.
const maxLineSize = 64 << 20

// Reader reads newline-delimited connector exports of the aggregate feed.
// Each line wraps one payload under "_airbyte_data"; payloads with an hourly
// block are exploded into per-station records. It implements pipeline.Source.
type Reader struct {
	name   string
	dir    string
	logger *slog.Logger
}

// NewReader creates a reader for the *.jsonl files in dir.
func NewReader(name, dir string, logger *slog.Logger) *Reader {
	return &Reader{name: name, dir: dir, logger: logger}
}

// Name returns the source name.
func (r *Reader) Name() string { return r.name }

// Read reads every *.jsonl file of the directory in name order. A missing
// directory yields no records.
func (r *Reader) Read(ctx context.Context) ([]domain.Record, error) {
	files, err := Files(r.dir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		r.logger.Warn("no line-delimited files found", "source", r.name, "dir", r.dir)
		return nil, nil
	}

	var out []domain.Record
	for _, path := range files {
		recs, err := r.ReadFile(ctx, path)
		if err != nil {
			return nil, err
		}
		out = append(out, recs...)
	}
	return out, nil
}

// Files lists the *.jsonl files of dir in name order. A missing directory
// is not an error.
func Files(dir string) ([]string, error) {
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	files, err := filepath.Glob(filepath.Join(dir, "*.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	sort.Strings(files)
	return files, nil
}

// ReadFile reads one file. Malformed lines and lines without an hourly
// payload are logged and skipped.
func (r *Reader) ReadFile(ctx context.Context, path string) ([]domain.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var out []domain.Record
	line := 0
	for sc.Scan() {
		line++
		if line%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 {
			continue
		}
		recs, err := r.decodeLine(b)
		if err != nil {
			r.logger.Warn("skipping line", "source", r.name, "file", path, "line", line, "error", err)
			continue
		}
		out = append(out, recs...)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	r.logger.Debug("file read", "source", r.name, "file", path, "lines", line, "records", len(out))
	return out, nil
}

var errNoHourlyPayload = errors.New("line has no hourly payload")

func (r *Reader) decodeLine(b []byte) ([]domain.Record, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var envelope map[string]any
	if err := dec.Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decode line: %w", err)
	}

	raw, ok := envelope[domain.PayloadColumn]
	if !ok {
		return nil, errNoHourlyPayload
	}
	payload, err := domain.DecodePayload(raw)
	if err != nil {
		return nil, err
	}
	if !domain.HasHourly(payload) {
		return nil, errNoHourlyPayload
	}
	p, err := domain.ParseHourlyPayload(payload)
	if err != nil {
		return nil, err
	}
	return domain.Explode(p, r.name), nil
}
