package domain

import "strings"

// DefaultWrapperKey is the scalar sub-key used by ingestion connectors that
// wrap column values, e.g. {"string": "53.1 °F"}.
const DefaultWrapperKey = "string"

// ColumnarTable is the in-memory result of reading a columnar directory.
type ColumnarTable struct {
	Columns []string
	Rows    []map[string]any
}

// Len reports the number of rows.
func (t ColumnarTable) Len() int { return len(t.Rows) }

// HasColumn reports whether name is one of the table's columns.
func (t ColumnarTable) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// DropPrefix returns a copy of t without the columns starting with prefix.
func (t ColumnarTable) DropPrefix(prefix string) ColumnarTable {
	if prefix == "" {
		return t
	}
	var keep, drop []string
	for _, c := range t.Columns {
		if strings.HasPrefix(c, prefix) {
			drop = append(drop, c)
			continue
		}
		keep = append(keep, c)
	}
	if len(drop) == 0 {
		return t
	}
	rows := make([]map[string]any, len(t.Rows))
	for i, row := range t.Rows {
		out := make(map[string]any, len(keep))
		for _, c := range keep {
			if v, ok := row[c]; ok {
				out[c] = v
			}
		}
		rows[i] = out
	}
	return ColumnarTable{Columns: keep, Rows: rows}
}

// RowsOf returns the table's rows as raw columnar records.
func (t ColumnarTable) RowsOf() []ColumnarRow {
	out := make([]ColumnarRow, len(t.Rows))
	for i, row := range t.Rows {
		out[i] = ColumnarRow{Columns: t.Columns, Values: row}
	}
	return out
}

// FlattenRules declares how wrapped columns are unwrapped. Declared columns
// are always unwrapped; undeclared columns are only inspected when Detect
// is set.
type FlattenRules struct {
	SubKey string
	Unwrap []string
	Detect bool
}

func (r FlattenRules) subKey() string {
	if r.SubKey == "" {
		return DefaultWrapperKey
	}
	return r.SubKey
}

// Flatten replaces wrapped values by their scalar sub-value and returns the
// new table with the names of the columns it unwrapped. The receiver is not
// modified. Values that are not wrappers are left untouched, so flattening a
// flat table is a no-op.
func (t ColumnarTable) Flatten(rules FlattenRules) (ColumnarTable, []string) {
	key := rules.subKey()
	declared := make(map[string]bool, len(rules.Unwrap))
	for _, c := range rules.Unwrap {
		declared[c] = true
	}

	var unwrap []string
	for _, c := range t.Columns {
		switch {
		case declared[c]:
			unwrap = append(unwrap, c)
		case rules.Detect && t.wrappedColumn(c, key):
			unwrap = append(unwrap, c)
		}
	}
	if len(unwrap) == 0 {
		return t, nil
	}

	rows := make([]map[string]any, len(t.Rows))
	for i, row := range t.Rows {
		out := make(map[string]any, len(row))
		for k, v := range row {
			out[k] = v
		}
		for _, c := range unwrap {
			if m, ok := row[c].(map[string]any); ok {
				out[c] = m[key]
			}
		}
		rows[i] = out
	}
	return ColumnarTable{Columns: t.Columns, Rows: rows}, unwrap
}

// wrappedColumn samples the first non-null value of column c.
func (t ColumnarTable) wrappedColumn(c, key string) bool {
	for _, row := range t.Rows {
		v := row[c]
		if v == nil {
			continue
		}
		m, ok := v.(map[string]any)
		if !ok {
			return false
		}
		_, ok = m[key]
		return ok
	}
	return false
}
