package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/couchcryptid/station-data-etl/internal/domain"
	"github.com/smartystreets/goconvey/convey"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "etl.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv(EnvConfigPath, "")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Empty(t, cfg.LogFile)
	assert.Equal(t, "transformed_data/data_for_mongodb.json", cfg.OutputPath)
	assert.Empty(t, cfg.ParquetPath)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Equal(t, "weather-observations", cfg.KafkaTopic)
	assert.Equal(t, "station_etl", cfg.MetricsJob)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, time.Hour, cfg.Interval)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, domain.DefaultNumericFields(), cfg.NumericFields)
	assert.Equal(t, DefaultSources(), cfg.Sources)
	assert.Contains(t, cfg.Stations, "ILAMAD25")
}

func TestConfigLayers(t *testing.T) {
	convey.Convey("Given a YAML config file", t, func() {
		path := writeConfig(t, `
log_format: text
output_path: out/data.json
kafka_brokers: [" broker1:9092 ", "broker2:9092"]
numeric_fields: [temp]
sources:
  - name: network
    kind: aggregate
    path: data/network
  - name: home
    kind: station
    path: data/home
    station_id: IICHTE19
    timestamp: iso8601
    decimal_comma: true
    drop_prefix: ""
    flatten:
      sub_key: value
      unwrap: [Temperature]
      detect: false
`)
		t.Setenv(EnvConfigPath, "")

		convey.Convey("When it is loaded alone", func() {
			cfg, err := Load(path)

			convey.Convey("Then file values replace the defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.LogFormat, convey.ShouldEqual, "text")
				convey.So(cfg.LogLevel, convey.ShouldEqual, "info")
				convey.So(cfg.OutputPath, convey.ShouldEqual, "out/data.json")
				convey.So(cfg.KafkaBrokers, convey.ShouldResemble, []string{"broker1:9092", "broker2:9092"})
				convey.So(cfg.NumericFields, convey.ShouldResemble, []string{"temp"})
			})

			convey.Convey("Then the source list replaces the default list", func() {
				convey.So(cfg.Sources, convey.ShouldHaveLength, 2)
				home := cfg.Sources[1]
				convey.So(home.Prefix(), convey.ShouldEqual, "")
				convey.So(home.FlattenRules(), convey.ShouldResemble, domain.FlattenRules{
					SubKey: "value", Unwrap: []string{"Temperature"}, Detect: false,
				})
				p, err := home.Profile()
				convey.So(err, convey.ShouldBeNil)
				convey.So(p, convey.ShouldResemble, domain.Profile{Timestamp: domain.TimestampISO8601, DecimalComma: true})
			})
		})

		convey.Convey("When environment variables are also set", func() {
			t.Setenv("STATION_ETL_LOG_FORMAT", "json")
			t.Setenv("STATION_ETL_KAFKA_TOPIC", "obs")
			t.Setenv("STATION_ETL_PARQUET_PATH", "out/data.parquet")
			cfg, err := Load(path)

			convey.Convey("Then the environment wins", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.LogFormat, convey.ShouldEqual, "json")
				convey.So(cfg.KafkaTopic, convey.ShouldEqual, "obs")
				convey.So(cfg.ParquetPath, convey.ShouldEqual, "out/data.parquet")
				convey.So(cfg.OutputPath, convey.ShouldEqual, "out/data.json")
			})
		})

		convey.Convey("When the path comes from the environment", func() {
			t.Setenv(EnvConfigPath, path)
			cfg, err := Load("")

			convey.Convey("Then the file is loaded", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.OutputPath, convey.ShouldEqual, "out/data.json")
			})
		})
	})
}

func TestLoad_EnvList(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	t.Setenv("STATION_ETL_KAFKA_BROKERS", "b1:9092, b2:9092")
	t.Setenv("STATION_ETL_NUMERIC_FIELDS", " temperature , humidity,")
	t.Setenv("STATION_ETL_INTERVAL", "15m")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, []string{"b1:9092", "b2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, []string{"temperature", "humidity"}, cfg.NumericFields)
	assert.Equal(t, 15*time.Minute, cfg.Interval)
}

func TestLoad_EnvNumericFieldsReachNormalizer(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	t.Setenv("STATION_ETL_NUMERIC_FIELDS", "temperature,humidity")

	cfg, err := Load("")
	require.NoError(t, err)

	rec := domain.NewRecord("s")
	rec.Set("temperature", domain.Text("53.1 °F"))
	rec.Set("humidity", domain.Text("81 %"))
	rec.Set("pressure", domain.Text("29.9 in"))

	out, _ := domain.NewNormalizer(domain.NormalizerConfig{NumericFields: cfg.NumericFields}).Normalize(domain.Dataset{rec})
	v, _ := out[0].Get("temperature")
	assert.Equal(t, domain.Number(53.1), v)
	v, _ = out[0].Get("humidity")
	assert.Equal(t, domain.Number(81), v)
	v, _ = out[0].Get("pressure")
	assert.Equal(t, domain.Text("29.9 in"), v, "not listed, left as text")
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitList("a, b"))
	assert.Equal(t, []string{"a"}, splitList(" a ,, "))
	assert.Empty(t, splitList(""))
}

func TestLoad_StationsFile(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	stations := filepath.Join(t.TempDir(), "stations.yaml")
	require.NoError(t, os.WriteFile(stations, []byte(`
- station_id: LILLE1
  station_name: Lille
  latitude: 50.6
  longitude: 3.1
  elevation: 20
`), 0o600))
	path := writeConfig(t, `
stations_file: `+stations+`
sources:
  - {name: lille, kind: station, path: data/lille, station_id: LILLE1}
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Contains(t, cfg.Stations, "LILLE1")
	assert.Contains(t, cfg.Stations, "IICHTE19")
}

func TestLoad_Errors(t *testing.T) {
	t.Setenv(EnvConfigPath, "")

	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorIs(t, err, ErrLoadConfig)

	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"empty output", "output_path: \"\"", "output_path"},
		{"no sources", "sources: []", "no sources"},
		{"unknown kind", "sources: [{name: a, kind: csv, path: p}]", "unknown kind"},
		{"empty path", "sources: [{name: a, kind: jsonl}]", "path must not be empty"},
		{"missing station", "sources: [{name: a, kind: station, path: p}]", "station_id is required"},
		{"unknown station", "sources: [{name: a, kind: spreadsheet, path: p, station_id: NOPE}]", "unknown station"},
		{"duplicate names", "sources: [{name: a, kind: jsonl, path: p}, {name: a, kind: jsonl, path: q}]", "duplicate source name"},
		{"bad timestamp rule", "sources: [{name: a, kind: jsonl, path: p, timestamp: julian}]", "unknown timestamp rule"},
		{"unnamed source", "sources: [{kind: jsonl, path: p}]", "has no name"},
		{"zero interval", "interval: 0s", "interval must be positive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.yaml))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidConfig))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestSource_Defaults(t *testing.T) {
	tests := []struct {
		kind   Kind
		want   domain.Profile
		detect bool
	}{
		{KindSpreadsheet, domain.Profile{Timestamp: domain.TimestampISO8601, DecimalComma: true}, false},
		{KindStation, domain.Profile{Timestamp: domain.TimestampEpochSeconds}, true},
		{KindAggregate, domain.Profile{Timestamp: domain.TimestampISO8601}, false},
		{KindJSONL, domain.Profile{Timestamp: domain.TimestampISO8601, DecimalComma: true}, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			s := Source{Name: "s", Kind: tt.kind}
			p, err := s.Profile()
			require.NoError(t, err)
			assert.Equal(t, tt.want, p)
			assert.Equal(t, tt.detect, s.FlattenRules().Detect)
			assert.Equal(t, "_airbyte", s.Prefix())
		})
	}
}

func TestConfig_Profiles(t *testing.T) {
	cfg := New()
	profiles := cfg.Profiles()
	assert.Len(t, profiles, len(DefaultSources()))
	assert.Equal(t, domain.TimestampEpochSeconds, profiles["ichtegem_weather"].Timestamp)
	assert.True(t, profiles["la_madeleine_xlsx"].DecimalComma)
}
