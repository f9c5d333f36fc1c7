package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// Payload keys of the aggregate weather-network feed.
const (
	PayloadColumn   = "_airbyte_data"
	PayloadHourly   = "hourly"
	PayloadStations = "stations"
	metricTime      = "time"
)

// ErrNoHourly reports a payload without an hourly per-station block.
var ErrNoHourly = errors.New("payload has no hourly block")

// StationDescriptor describes a station inside an aggregate payload.
type StationDescriptor struct {
	ID        string
	Name      Value
	Latitude  Value
	Longitude Value
	Elevation Value
}

// HourlyPayload is one decoded aggregate payload: for each station id a
// mapping of metric name to a time-aligned array.
type HourlyPayload struct {
	Stations map[string]StationDescriptor
	Hourly   map[string]map[string]any
}

// DecodePayload returns v as a JSON object. Connectors store the payload
// either already decoded or as JSON text.
func DecodePayload(v any) (map[string]any, error) {
	var b []byte
	switch t := v.(type) {
	case map[string]any:
		return t, nil
	case string:
		b = []byte(t)
	case []byte:
		b = t
	default:
		return nil, fmt.Errorf("payload is %T, not a JSON object", v)
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if m == nil {
		return nil, errors.New("payload is null")
	}
	return m, nil
}

// HasHourly reports whether payload carries an hourly block.
func HasHourly(payload map[string]any) bool {
	_, ok := payload[PayloadHourly]
	return ok
}

// ParseHourlyPayload extracts the hourly block and station list from a
// decoded payload. Station entries that are not mappings are ignored, as are
// hourly entries whose measurements are not mappings.
func ParseHourlyPayload(payload map[string]any) (HourlyPayload, error) {
	raw, ok := payload[PayloadHourly]
	if !ok {
		return HourlyPayload{}, ErrNoHourly
	}
	hourly, ok := raw.(map[string]any)
	if !ok {
		return HourlyPayload{}, fmt.Errorf("%w: hourly is %T, not a mapping", ErrNoHourly, raw)
	}

	p := HourlyPayload{
		Stations: make(map[string]StationDescriptor),
		Hourly:   make(map[string]map[string]any, len(hourly)),
	}
	if list, ok := payload[PayloadStations].([]any); ok {
		for _, s := range list {
			m, ok := s.(map[string]any)
			if !ok {
				continue
			}
			id := FromAny(m["id"])
			if id.IsNull() {
				continue
			}
			p.Stations[id.String()] = StationDescriptor{
				ID:        id.String(),
				Name:      FromAny(m["name"]),
				Latitude:  FromAny(m["latitude"]),
				Longitude: FromAny(m["longitude"]),
				Elevation: FromAny(m["elevation"]),
			}
		}
	}
	for id, v := range hourly {
		measurements, ok := v.(map[string]any)
		if !ok {
			continue
		}
		p.Hourly[id] = measurements
	}
	return p, nil
}

func (HourlyPayload) rawRecord() {}

// Records explodes the payload into one record per station and time index.
// Stations are visited in ascending id order. A metric whose array length
// differs from the station's time array is omitted from all of that
// station's records. Unknown stations get null descriptor fields.
func (p HourlyPayload) Records(origin string) []Record {
	ids := make([]string, 0, len(p.Hourly))
	for id := range p.Hourly {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []Record
	for _, id := range ids {
		measurements := p.Hourly[id]
		times, _ := measurements[metricTime].([]any)
		if len(times) == 0 {
			continue
		}
		metrics := alignedMetrics(measurements, len(times))
		station := p.Stations[id]

		for i := range times {
			rec := NewRecord(origin)
			rec.Set(FieldStationID, Text(id))
			rec.Set(FieldStationName, station.Name)
			rec.Set(FieldLatitude, station.Latitude)
			rec.Set(FieldLongitude, station.Longitude)
			rec.Set(FieldElevation, station.Elevation)
			rec.Set(FieldTimestamp, FromAny(times[i]))
			for _, name := range metrics {
				rec.Set(name, FromAny(measurements[name].([]any)[i]))
			}
			out = append(out, rec)
		}
	}
	return out
}

// Explode is shorthand for p.Records(origin).
func Explode(p HourlyPayload, origin string) []Record {
	return p.Records(origin)
}

// alignedMetrics returns, sorted, the metrics whose arrays have exactly n
// entries.
func alignedMetrics(measurements map[string]any, n int) []string {
	var names []string
	for name, v := range measurements {
		if name == metricTime {
			continue
		}
		values, ok := v.([]any)
		if !ok || len(values) != n {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PromotePayload turns a decoded flat payload into a columnar row. Nested
// mappings are promoted with dotted keys ("wind.speed"); arrays are kept as
// nested values.
func PromotePayload(payload map[string]any) ColumnarRow {
	row := ColumnarRow{Values: make(map[string]any)}
	promote("", payload, &row)
	return row
}

func promote(prefix string, m map[string]any, row *ColumnarRow) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		name := k
		if prefix != "" {
			name = prefix + "." + k
		}
		if sub, ok := m[k].(map[string]any); ok && len(sub) > 0 {
			promote(name, sub, row)
			continue
		}
		row.Columns = append(row.Columns, name)
		row.Values[name] = m[k]
	}
}
