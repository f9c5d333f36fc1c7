package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoerceNumber(t *testing.T) {
	tests := []struct {
		name         string
		in           Value
		decimalComma bool
		want         Value
	}{
		{"unit suffix", Text("53.1 °F"), false, Number(53.1)},
		{"negative", Text("-3.5 °C"), false, Number(-3.5)},
		{"percent", Text("90 %"), false, Number(90)},
		{"decimal comma", Text("12,5"), true, Number(12.5)},
		{"comma without profile", Text("12,5"), false, Number(12)},
		{"trailing dot", Text("7. mm"), false, Number(7)},
		{"no digits", Text("N/A"), false, Null()},
		{"empty", Text(""), false, Null()},
		{"number passes through", Number(4), false, Number(4)},
		{"null stays null", Null(), false, Null()},
		{"nested is null", Nested(map[string]any{"string": "5"}), false, Null()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CoerceNumber(tt.in, tt.decimalComma))
		})
	}
}

func TestNormalizeTimestamp(t *testing.T) {
	six := time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		in   Value
		rule TimestampRule
		want Value
	}{
		{"iso minutes", Text("2024-01-01T06:00"), TimestampISO8601, Time(six)},
		{"iso zulu", Text("2024-01-01T06:00:00Z"), TimestampISO8601, Time(six)},
		{"iso offset", Text("2024-01-01T07:00:00+01:00"), TimestampISO8601, Time(six)},
		{"iso space", Text("2024-01-01 06:00:00"), TimestampISO8601, Time(six)},
		{"iso garbage", Text("yesterday"), TimestampISO8601, Null()},
		{"iso number", Number(1704088800), TimestampISO8601, Null()},
		{"epoch number", Number(1704088800), TimestampEpochSeconds, Time(six)},
		{"epoch text", Text(" 1704088800 "), TimestampEpochSeconds, Time(six)},
		{"epoch iso text", Text("2024-01-01T06:00"), TimestampEpochSeconds, Null()},
		{"time passes through", Time(six), TimestampEpochSeconds, Time(six)},
		{"null", Null(), TimestampISO8601, Null()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeTimestamp(tt.in, tt.rule))
		})
	}
}

func TestParseTimestampRule(t *testing.T) {
	r, err := ParseTimestampRule("epoch_seconds")
	require.NoError(t, err)
	assert.Equal(t, TimestampEpochSeconds, r)

	r, err = ParseTimestampRule("ISO8601")
	require.NoError(t, err)
	assert.Equal(t, TimestampISO8601, r)
	assert.Equal(t, "iso8601", r.String())

	_, err = ParseTimestampRule("rfc822")
	assert.Error(t, err)
}

func TestNormalizer_Normalize(t *testing.T) {
	n := NewNormalizer(NormalizerConfig{
		Profiles: map[string]Profile{
			"ichtegem_xlsx":    {DecimalComma: true},
			"ichtegem_weather": {Timestamp: TimestampEpochSeconds},
		},
	})

	sheet := NewRecord("ichtegem_xlsx")
	sheet.Set("Temperature", Text("12,5 °C"))
	sheet.Set("Dew Point", Text("N/A"))
	sheet.Set("Wind", Text("WSW"))
	sheet.Set(FieldTimestamp, Time(time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC)))

	station := NewRecord("ichtegem_weather")
	station.Set("Time", Text("12:04 AM"))
	station.Set(FieldTimestamp, Number(1704088800))
	station.Set("Precip. Rate.", Text("0.00 in"))

	unknown := NewRecord("other")
	unknown.Set(FieldTimestamp, Text("not a time"))

	in := Dataset{sheet, station, unknown}
	out, stats := n.Normalize(in)
	require.Len(t, out, 3)

	assert.Equal(t, []string{"temperature", "dew_point", "wind", FieldTimestamp}, out[0].Keys())
	v, _ := out[0].Get("temperature")
	assert.Equal(t, Number(12.5), v)
	v, _ = out[0].Get("dew_point")
	assert.True(t, v.IsNull())
	v, _ = out[0].Get("wind")
	assert.Equal(t, Text("WSW"), v, "wind direction is renamed but not numeric")

	v, _ = out[1].Get(FieldTimestamp)
	assert.Equal(t, Time(time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC)), v)
	v, _ = out[1].Get("precip_rate")
	assert.Equal(t, Number(0), v)
	_, ok := out[1].Get("Time")
	assert.False(t, ok, "raw Time column is dropped")

	v, _ = out[2].Get(FieldTimestamp)
	assert.True(t, v.IsNull())

	assert.Equal(t, 1, stats.CoercionFailures["dew_point"])
	assert.Equal(t, 1, stats.TimestampFailures)

	orig, _ := in[0].Get("Temperature")
	assert.Equal(t, Text("12,5 °C"), orig, "input is not modified")
}

func TestNormalizer_CustomNumericFields(t *testing.T) {
	n := NewNormalizer(NormalizerConfig{
		Renames:       map[string]string{},
		NumericFields: []string{"pressure_hpa"},
	})
	r := NewRecord("x")
	r.Set("pressure_hpa", Text("1013 hPa"))
	r.Set("Temperature", Text("5 °C"))

	out, _ := n.Normalize(Dataset{r})
	v, _ := out[0].Get("pressure_hpa")
	assert.Equal(t, Number(1013), v)
	v, _ = out[0].Get("Temperature")
	assert.Equal(t, Text("5 °C"), v)
}

func TestNormalizer_RenameCollision(t *testing.T) {
	n := NewNormalizer(NormalizerConfig{
		Renames: map[string]string{
			"Temp":        "temperature",
			"Temperature": "temperature",
			"Dew Point":   "dew",
			"dew":         "dew_point",
		},
	})

	rec := NewRecord("s")
	rec.Set("Temp", Text("1"))
	rec.Set("Temperature", Text("2"))
	rec.Set("Dew Point", Text("3"))

	// Map iteration is random; repeat so an order-dependent rename shows up.
	for range 50 {
		out, _ := n.Normalize(Dataset{rec})
		v, _ := out[0].Get("temperature")
		assert.Equal(t, Number(2), v, "the later label in sorted order wins")
		_, ok := out[0].Get("Temp")
		assert.False(t, ok)
		v, _ = out[0].Get("dew_point")
		assert.Equal(t, Number(3), v, "renames chain in sorted order")
		_, ok = out[0].Get("dew")
		assert.False(t, ok)
	}
}

func TestSpreadsheetRowsEndToEnd(t *testing.T) {
	station := DefaultStations()["ILAMAD25"]
	var ds Dataset
	for _, sheet := range []string{"010124", "020124"} {
		date, err := ParseSheetDate(sheet)
		require.NoError(t, err)
		row := SheetRow{
			Sheet: sheet,
			Date:  date,
			Cells: []Cell{
				{Header: "Time", Value: "06:00"},
				{Header: "Temperature", Value: "53.1 °F"},
			},
			Station: station,
		}
		ds = append(ds, row.Records("la_madeleine_xlsx")...)
	}

	out, _ := NewNormalizer(NormalizerConfig{}).Normalize(ds)
	require.Len(t, out, 2)

	b, err := json.Marshal(out)
	require.NoError(t, err)

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, "2024-01-01T06:00:00", decoded[0]["timestamp"])
	assert.Equal(t, "2024-01-02T06:00:00", decoded[1]["timestamp"])
	assert.Equal(t, 53.1, decoded[0]["temperature"])
	assert.Equal(t, "ILAMAD25", decoded[1]["station_id"])
	assert.NotContains(t, decoded[0], "Time")
}

func TestAggregatePayloadEndToEnd(t *testing.T) {
	p, err := ParseHourlyPayload(decodePayload(t, hourlyPayloadJSON))
	require.NoError(t, err)

	out, stats := NewNormalizer(NormalizerConfig{}).Normalize(Explode(p, "infoclimat"))
	require.Len(t, out, 3)
	assert.Zero(t, stats.TimestampFailures)

	ts, _ := out[2].Get(FieldTimestamp)
	assert.Equal(t, Time(time.Date(2024, 1, 1, 2, 0, 0, 0, time.UTC)), ts)
	temp, _ := out[2].Get("temperature")
	assert.Equal(t, Number(4.6), temp)
	name, _ := out[0].Get(FieldStationName)
	assert.Equal(t, Text("Lille-Lesquin"), name)
}
