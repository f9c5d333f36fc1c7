package domain

import (
	"fmt"
	"maps"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"
)

// numberRe extracts the first decimal number from text such as "53.1 °F".
var numberRe = regexp.MustCompile(`-?\d+\.?\d*`)

// isoLayouts are tried in order when parsing ISO-8601 text. Layouts without
// a zone are read as UTC.
var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// TimestampRule is how a source's timestamp values are read.
type TimestampRule uint8

const (
	// TimestampISO8601 reads text as ISO-8601; numbers become null.
	TimestampISO8601 TimestampRule = iota
	// TimestampEpochSeconds reads numbers and numeric text as Unix seconds;
	// other text becomes null.
	TimestampEpochSeconds
)

func (r TimestampRule) String() string {
	if r == TimestampEpochSeconds {
		return "epoch_seconds"
	}
	return "iso8601"
}

// ParseTimestampRule maps a configuration name to a rule.
func ParseTimestampRule(s string) (TimestampRule, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "iso8601", "iso":
		return TimestampISO8601, nil
	case "epoch_seconds", "epoch", "unix":
		return TimestampEpochSeconds, nil
	default:
		return 0, fmt.Errorf("unknown timestamp rule %q", s)
	}
}

// Profile holds the per-source conventions applied during normalization.
type Profile struct {
	Timestamp    TimestampRule
	DecimalComma bool
}

// DefaultRenames maps verbose source labels to canonical field names.
func DefaultRenames() map[string]string {
	return map[string]string{
		"Dew Point":      "dew_point",
		"Precip. Rate.":  "precip_rate",
		"Precip. Accum.": "precip_accum",
		"Speed":          "speed",
		"Gust":           "gust",
		"Pressure":       "pressure",
		"UV":             "uv",
		"Humidity":       "humidity",
		"Wind":           "wind",
		"Solar":          "solar",
		"Temperature":    "temperature",
	}
}

// DefaultNumericFields lists the fields coerced to numbers.
func DefaultNumericFields() []string {
	return []string{
		"dew_point", "precip_rate", "precip_accum", "speed", "gust",
		"pressure", "uv", "humidity", "solar", "temperature",
		FieldLatitude, FieldLongitude, FieldElevation,
	}
}

// NormalizerConfig configures a Normalizer. Profiles are keyed by source
// name; records from other sources use Default.
type NormalizerConfig struct {
	Renames       map[string]string
	NumericFields []string
	DropFields    []string
	Profiles      map[string]Profile
	Default       Profile
}

// NormalizeStats counts values that normalization turned into null.
type NormalizeStats struct {
	CoercionFailures  map[string]int
	TimestampFailures int
}

// Normalizer drops raw fields, renames fields, coerces numeric text and
// normalizes timestamps. Every pass is total: bad input yields null, never
// an error.
type Normalizer struct {
	renames  map[string]string
	order    []string
	numeric  []string
	drop     []string
	profiles map[string]Profile
	fallback Profile
}

// NewNormalizer builds a Normalizer. Nil renames, numeric or drop fields
// select the defaults; the default drop list is the raw Time column.
func NewNormalizer(cfg NormalizerConfig) *Normalizer {
	n := &Normalizer{
		renames:  cfg.Renames,
		numeric:  cfg.NumericFields,
		drop:     cfg.DropFields,
		profiles: cfg.Profiles,
		fallback: cfg.Default,
	}
	if n.renames == nil {
		n.renames = DefaultRenames()
	}
	// Renames apply in source-label order so colliding targets resolve the
	// same way on every run.
	n.order = slices.Sorted(maps.Keys(n.renames))
	if n.numeric == nil {
		n.numeric = DefaultNumericFields()
	}
	if n.drop == nil {
		n.drop = []string{TimeColumn}
	}
	return n
}

func (n *Normalizer) profile(origin string) Profile {
	if p, ok := n.profiles[origin]; ok {
		return p
	}
	return n.fallback
}

// Normalize returns a normalized copy of ds.
func (n *Normalizer) Normalize(ds Dataset) (Dataset, NormalizeStats) {
	stats := NormalizeStats{CoercionFailures: make(map[string]int)}
	out := make(Dataset, len(ds))
	for i := range ds {
		rec := ds[i].Clone()
		p := n.profile(rec.Origin())

		for _, field := range n.drop {
			rec.Delete(field)
		}
		for _, from := range n.order {
			rec.Rename(from, n.renames[from])
		}

		for _, field := range n.numeric {
			v, ok := rec.Get(field)
			if !ok {
				continue
			}
			c := CoerceNumber(v, p.DecimalComma)
			if c.IsNull() && !v.IsNull() {
				stats.CoercionFailures[field]++
			}
			rec.Set(field, c)
		}

		if v, ok := rec.Get(FieldTimestamp); ok {
			ts := NormalizeTimestamp(v, p.Timestamp)
			if ts.IsNull() && !v.IsNull() {
				stats.TimestampFailures++
			}
			rec.Set(FieldTimestamp, ts)
		}
		out[i] = rec
	}
	return out, stats
}

// CoerceNumber extracts a number from v. Numbers pass through; text yields
// its first decimal substring, after turning decimal commas into dots when
// decimalComma is set. Anything else is null.
func CoerceNumber(v Value, decimalComma bool) Value {
	switch v.Kind() {
	case KindNumber:
		return v
	case KindText:
		s, _ := v.TextValue()
		if decimalComma {
			s = strings.ReplaceAll(s, ",", ".")
		}
		m := numberRe.FindString(s)
		if m == "" {
			return Null()
		}
		f, err := strconv.ParseFloat(m, 64)
		if err != nil {
			return Null()
		}
		return Number(f)
	default:
		return Null()
	}
}

// NormalizeTimestamp converts v into a Time value under rule, or null.
func NormalizeTimestamp(v Value, rule TimestampRule) Value {
	switch v.Kind() {
	case KindTime:
		return v
	case KindNumber:
		if rule != TimestampEpochSeconds {
			return Null()
		}
		f, _ := v.NumberValue()
		return epochSeconds(f)
	case KindText:
		s, _ := v.TextValue()
		s = strings.TrimSpace(s)
		if rule == TimestampEpochSeconds {
			f, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return Null()
			}
			return epochSeconds(f)
		}
		if t, ok := ParseISO8601(s); ok {
			return Time(t)
		}
		return Null()
	default:
		return Null()
	}
}

// ParseISO8601 parses the ISO-8601 forms seen in the feeds.
func ParseISO8601(s string) (time.Time, bool) {
	for _, layout := range isoLayouts {
		t, err := time.ParseInLocation(layout, s, time.UTC)
		if err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func epochSeconds(f float64) Value {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Null()
	}
	sec, frac := math.Modf(f)
	return Time(time.Unix(int64(sec), int64(frac*1e9)).UTC())
}
