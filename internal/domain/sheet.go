package domain

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// TimeColumn is the spreadsheet column holding the time of day.
const TimeColumn = "Time"

// sheetNameRe matches the day-month-year sheet naming, e.g. "010124".
var sheetNameRe = regexp.MustCompile(`^\d{6}$`)

var timeOfDayLayouts = []string{
	"15:04",
	"15:04:05",
	"3:04 PM",
	"3:04:05 PM",
	"3:04PM",
	"3:04:05PM",
}

// SheetRow is one row of a per-day workbook sheet.
type SheetRow struct {
	Sheet   string
	Date    time.Time
	Cells   []Cell
	Station StationMetadata
}

// ParseSheetDate parses a DDMMYY sheet name into a UTC date.
func ParseSheetDate(name string) (time.Time, error) {
	name = strings.TrimSpace(name)
	if !sheetNameRe.MatchString(name) {
		return time.Time{}, fmt.Errorf("sheet name %q is not a DDMMYY date", name)
	}
	d, err := time.ParseInLocation("020106", name, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("sheet name %q: %w", name, err)
	}
	return d, nil
}

// ParseTimeOfDay reads a wall-clock time as written in a sheet cell. Clock
// text ("06:00", "6:00 AM") and Excel day fractions ("0.25") are accepted.
func ParseTimeOfDay(s string) (time.Duration, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	upper := strings.ToUpper(s)
	for _, layout := range timeOfDayLayouts {
		t, err := time.Parse(layout, upper)
		if err == nil {
			return time.Duration(t.Hour())*time.Hour +
				time.Duration(t.Minute())*time.Minute +
				time.Duration(t.Second())*time.Second, true
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 || f >= 1 {
		return 0, false
	}
	secs := math.Round(f * 24 * 60 * 60)
	return time.Duration(secs) * time.Second, true
}

// CombineDateTime returns date at the given time of day.
func CombineDateTime(date time.Time, tod time.Duration) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Add(tod)
}

func (SheetRow) rawRecord() {}

// Records maps the row into one record. A Time cell is merged with the
// sheet date into the timestamp field and then removed; a Time cell that
// does not parse leaves the record without a timestamp.
func (r SheetRow) Records(origin string) []Record {
	rec := NewRecord(origin)
	for i, c := range r.Cells {
		header := strings.TrimSpace(c.Header)
		if header == "" {
			header = fmt.Sprintf("column_%d", i)
		}
		if header == TimeColumn {
			if tod, ok := ParseTimeOfDay(c.Value); ok {
				rec.Set(FieldTimestamp, Time(CombineDateTime(r.Date, tod)))
			}
			continue
		}
		if strings.TrimSpace(c.Value) == "" {
			rec.Set(header, Null())
			continue
		}
		rec.Set(header, Text(c.Value))
	}
	if r.Station.StationID != "" {
		r.Station.Apply(&rec)
	}
	return []Record{rec}
}
