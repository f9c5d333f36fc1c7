package domain

import (
	"log/slog"
	"sort"
	"strings"
	"time"
)

// ColumnProfile summarizes one column of a dataset.
type ColumnProfile struct {
	Name    string         `json:"name"`
	Missing int            `json:"missing"`
	Kinds   map[string]int `json:"kinds"`
}

// QualityReport describes a dataset's completeness and uniqueness. A field a
// record does not carry counts as missing for that record.
type QualityReport struct {
	GeneratedAt time.Time       `json:"generated_at"`
	Rows        int             `json:"rows"`
	Duplicates  int             `json:"duplicates"`
	Excluded    []string        `json:"excluded_columns,omitempty"`
	Columns     []ColumnProfile `json:"columns"`
}

// Missing returns the missing-value count per column.
func (q QualityReport) Missing() map[string]int {
	out := make(map[string]int, len(q.Columns))
	for _, c := range q.Columns {
		out[c.Name] = c.Missing
	}
	return out
}

// Audit inspects ds without modifying it. Columns holding nested values
// anywhere are left out of the duplicate comparison and listed in Excluded.
func Audit(ds Dataset) QualityReport {
	cols := ds.Columns()
	profiles := make([]ColumnProfile, len(cols))
	nested := make(map[string]bool)
	for i, c := range cols {
		p := ColumnProfile{Name: c, Kinds: make(map[string]int)}
		for j := range ds {
			v, ok := ds[j].Get(c)
			if !ok || v.IsNull() {
				p.Missing++
				continue
			}
			p.Kinds[v.Kind().String()]++
			if v.Kind() == KindNested {
				nested[c] = true
			}
		}
		profiles[i] = p
	}

	var excluded, compared []string
	for _, c := range cols {
		if nested[c] {
			excluded = append(excluded, c)
			continue
		}
		compared = append(compared, c)
	}
	sort.Strings(excluded)

	return QualityReport{
		GeneratedAt: clock.Now().UTC(),
		Rows:        len(ds),
		Duplicates:  countDuplicates(ds, compared),
		Excluded:    excluded,
		Columns:     profiles,
	}
}

// countDuplicates counts rows equal to an earlier row on every column in cols.
func countDuplicates(ds Dataset, cols []string) int {
	seen := make(map[string]struct{}, len(ds))
	dups := 0
	var b strings.Builder
	for i := range ds {
		b.Reset()
		for _, c := range cols {
			v, _ := ds[i].Get(c)
			b.WriteString(v.Kind().String())
			b.WriteByte(':')
			b.WriteString(v.String())
			b.WriteByte('\x1f')
		}
		key := b.String()
		if _, ok := seen[key]; ok {
			dups++
			continue
		}
		seen[key] = struct{}{}
	}
	return dups
}

// Log writes the report to logger: one summary line, then one line per
// check. Failing checks are warnings; a clean check logs a pass.
func (q QualityReport) Log(logger *slog.Logger) {
	logger.Info("data quality report",
		"rows", q.Rows,
		"columns", len(q.Columns),
		"duplicates", q.Duplicates,
		"excluded_columns", q.Excluded,
	)

	incomplete := 0
	for _, c := range q.Columns {
		if c.Missing == 0 {
			continue
		}
		incomplete++
		logger.Warn("missing values", "field", c.Name, "count", c.Missing)
	}
	if incomplete == 0 {
		logger.Info("missing values check passed", "columns", len(q.Columns))
	}

	if q.Duplicates > 0 {
		logger.Warn("duplicate records", "count", q.Duplicates, "excluded_columns", q.Excluded)
	} else {
		logger.Info("duplicate check passed", "rows", q.Rows)
	}
}
