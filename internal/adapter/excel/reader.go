package excel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/couchcryptid/station-data-etl/internal/domain"
	"github.com/xuri/excelize/v2"
)

// Reader reads per-day workbooks, one sheet per calendar day.
// It implements pipeline.Source.
type Reader struct {
	name    string
	path    string
	station domain.StationMetadata
	logger  *slog.Logger
}

// NewReader creates a spreadsheet reader. path is either one workbook or a
// directory of *.xlsx workbooks read in name order.
func NewReader(name, path string, station domain.StationMetadata, logger *slog.Logger) *Reader {
	return &Reader{name: name, path: path, station: station, logger: logger}
}

// Name returns the source name.
func (r *Reader) Name() string { return r.name }

// Read returns the rows of every dated sheet. Sheets whose name is not a
// DDMMYY date are logged and skipped.
func (r *Reader) Read(ctx context.Context) ([]domain.Record, error) {
	files, err := r.workbooks()
	if err != nil {
		return nil, err
	}

	var out []domain.Record
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		recs, err := r.readWorkbook(ctx, path)
		if err != nil {
			return nil, err
		}
		out = append(out, recs...)
	}
	return out, nil
}

func (r *Reader) workbooks() ([]string, error) {
	info, err := os.Stat(r.path)
	if errors.Is(err, os.ErrNotExist) {
		r.logger.Warn("spreadsheet source not found", "source", r.name, "path", r.path)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stat workbook %s: %w", r.path, err)
	}
	if !info.IsDir() {
		return []string{r.path}, nil
	}
	files, err := filepath.Glob(filepath.Join(r.path, "*.xlsx"))
	if err != nil {
		return nil, fmt.Errorf("list workbooks in %s: %w", r.path, err)
	}
	sort.Strings(files)
	return files, nil
}

func (r *Reader) readWorkbook(ctx context.Context, path string) ([]domain.Record, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", path, err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			r.logger.Warn("close workbook failed", "source", r.name, "file", path, "error", err)
		}
	}()

	var out []domain.Record
	for _, sheet := range f.GetSheetList() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		date, err := domain.ParseSheetDate(sheet)
		if err != nil {
			r.logger.Warn("skipping sheet", "source", r.name, "file", path, "sheet", sheet, "error", err)
			continue
		}
		rows, err := f.GetRows(sheet)
		if err != nil {
			r.logger.Warn("skipping sheet", "source", r.name, "file", path, "sheet", sheet, "error", err)
			continue
		}
		for _, row := range sheetRows(sheet, date, rows, r.station) {
			out = append(out, row.Records(r.name)...)
		}
		r.logger.Debug("sheet read", "source", r.name, "sheet", sheet, "rows", max(len(rows)-1, 0))
	}
	return out, nil
}

// sheetRows pairs every data row with the header row. Short rows are padded
// with empty cells and fully blank rows are skipped.
func sheetRows(sheet string, date time.Time, rows [][]string, station domain.StationMetadata) []domain.SheetRow {
	if len(rows) == 0 {
		return nil
	}
	header := rows[0]
	out := make([]domain.SheetRow, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if blank(row) {
			continue
		}
		width := max(len(header), len(row))
		cells := make([]domain.Cell, width)
		for i := range width {
			if i < len(header) {
				cells[i].Header = header[i]
			}
			if i < len(row) {
				cells[i].Value = row[i]
			}
		}
		out = append(out, domain.SheetRow{Sheet: sheet, Date: date, Cells: cells, Station: station})
	}
	return out
}

func blank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
