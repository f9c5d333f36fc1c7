package jsonfile

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/couchcryptid/station-data-etl/internal/domain"
)

const indent = "    "

// Writer writes the canonical dataset as one JSON array.
// It implements pipeline.DatasetWriter.
type Writer struct {
	path string
}

// NewWriter creates a writer for path. Missing parent directories are
// created on write.
func NewWriter(path string) *Writer {
	return &Writer{path: path}
}

// Path returns the output location.
func (w *Writer) Path() string { return w.path }

// Write replaces the output file with ds. The document is written to a
// temporary file in the same directory and renamed into place, so readers
// never see a partial array.
func (w *Writer) Write(ctx context.Context, ds domain.Dataset) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(w.path)+".*")
	if err != nil {
		return fmt.Errorf("create temp output: %w", err)
	}
	defer os.Remove(tmp.Name())

	bw := bufio.NewWriter(tmp)
	if err := encode(bw, ds); err != nil {
		tmp.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("write output: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}
	if err := os.Rename(tmp.Name(), w.path); err != nil {
		return fmt.Errorf("move output into place: %w", err)
	}
	return nil
}

// encode writes ds as an indented array, one record at a time.
func encode(w *bufio.Writer, ds domain.Dataset) error {
	if len(ds) == 0 {
		_, err := w.WriteString("[]\n")
		return err
	}
	w.WriteString("[\n")
	var buf bytes.Buffer
	for i := range ds {
		b, err := ds[i].MarshalJSON()
		if err != nil {
			return fmt.Errorf("encode record %d: %w", i, err)
		}
		buf.Reset()
		if err := json.Indent(&buf, b, indent, indent); err != nil {
			return fmt.Errorf("indent record %d: %w", i, err)
		}
		w.WriteString(indent)
		w.Write(buf.Bytes())
		if i < len(ds)-1 {
			w.WriteByte(',')
		}
		w.WriteByte('\n')
	}
	_, err := w.WriteString("]\n")
	return err
}

// ReadDataset reads a dataset previously written by Writer.
func ReadDataset(path string) (domain.Dataset, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	var ds domain.Dataset
	if err := json.Unmarshal(b, &ds); err != nil {
		return nil, fmt.Errorf("parse dataset %s: %w", path, err)
	}
	return ds, nil
}
