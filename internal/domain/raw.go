package domain

// RawRecord is the closed set of per-source raw shapes. Each member has a
// total mapping into canonical records. The unexported marker keeps the set
// closed to this package.
type RawRecord interface {
	Records(origin string) []Record
	rawRecord()
}

var (
	_ RawRecord = SheetRow{}
	_ RawRecord = ColumnarRow{}
	_ RawRecord = HourlyPayload{}
)

// Cell is one header/value pair of a spreadsheet row.
type Cell struct {
	Header string
	Value  string
}

// ColumnarRow is one row of a columnar table after flattening.
type ColumnarRow struct {
	Columns []string
	Values  map[string]any
}

func (ColumnarRow) rawRecord() {}

// Records maps the row into a single record, one field per column.
func (r ColumnarRow) Records(origin string) []Record {
	rec := NewRecord(origin)
	for _, c := range r.Columns {
		rec.Set(c, FromAny(r.Values[c]))
	}
	return []Record{rec}
}
