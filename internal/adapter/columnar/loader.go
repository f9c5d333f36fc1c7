package columnar

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/couchcryptid/station-data-etl/internal/domain"
	"github.com/marcboeker/go-duckdb"
)

// TableLoader reads every columnar file of a directory into one table.
type TableLoader interface {
	ReadDir(ctx context.Context, dir string) (domain.ColumnarTable, error)
}

// Loader reads Parquet directories through an in-memory DuckDB instance.
type Loader struct {
	db *sql.DB
}

// NewLoader opens an in-memory DuckDB database.
func NewLoader() (*Loader, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	return &Loader{db: db}, nil
}

// Close releases the database.
func (l *Loader) Close() error {
	return l.db.Close()
}

// ParquetFiles lists the *.parquet files of dir in name order. A missing
// directory is not an error.
func ParquetFiles(dir string) ([]string, error) {
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	files, err := filepath.Glob(filepath.Join(dir, "*.parquet"))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	sort.Strings(files)
	return files, nil
}

// ReadDir reads all Parquet files of dir into one table. Files with
// different schemas are unioned by column name. An empty or missing
// directory yields an empty table.
func (l *Loader) ReadDir(ctx context.Context, dir string) (domain.ColumnarTable, error) {
	files, err := ParquetFiles(dir)
	if err != nil || len(files) == 0 {
		return domain.ColumnarTable{}, err
	}

	query := fmt.Sprintf("SELECT * FROM read_parquet(%s, union_by_name = true)", fileListLiteral(files))
	rows, err := l.db.QueryContext(ctx, query)
	if err != nil {
		return domain.ColumnarTable{}, fmt.Errorf("read parquet in %s: %w", dir, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return domain.ColumnarTable{}, fmt.Errorf("read columns in %s: %w", dir, err)
	}

	tbl := domain.ColumnarTable{Columns: cols}
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return domain.ColumnarTable{}, fmt.Errorf("scan row in %s: %w", dir, err)
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			row[c] = plain(vals[i])
		}
		tbl.Rows = append(tbl.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return domain.ColumnarTable{}, fmt.Errorf("iterate rows in %s: %w", dir, err)
	}
	return tbl, nil
}

// fileListLiteral renders paths as a DuckDB list literal.
func fileListLiteral(files []string) string {
	quoted := make([]string, len(files))
	for i, f := range files {
		quoted[i] = "'" + strings.ReplaceAll(filepath.ToSlash(f), "'", "''") + "'"
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

// plain converts DuckDB scan results into the types domain.FromAny knows:
// STRUCT and MAP become map[string]any, LIST stays []any, DECIMAL and
// HUGEINT become float64.
func plain(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, x := range t {
			out[k] = plain(x)
		}
		return out
	case duckdb.Map:
		out := make(map[string]any, len(t))
		for k, x := range t {
			out[fmt.Sprint(k)] = plain(x)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, x := range t {
			out[i] = plain(x)
		}
		return out
	case duckdb.Decimal:
		return t.Float64()
	case *big.Int:
		f, _ := new(big.Float).SetInt(t).Float64()
		return f
	case []byte:
		return string(t)
	default:
		return v
	}
}
