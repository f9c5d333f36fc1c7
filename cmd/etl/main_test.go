package main

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/couchcryptid/station-data-etl/internal/adapter/columnar"
	"github.com/couchcryptid/station-data-etl/internal/adapter/excel"
	"github.com/couchcryptid/station-data-etl/internal/adapter/jsonfile"
	"github.com/couchcryptid/station-data-etl/internal/adapter/jsonl"
	"github.com/couchcryptid/station-data-etl/internal/config"
	"github.com/couchcryptid/station-data-etl/internal/domain"
	"github.com/couchcryptid/station-data-etl/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const hourlyLine = `{"_airbyte_data":"{\"stations\":[{\"id\":\"07015\",\"name\":\"Lille-Lesquin\",\"latitude\":50.57,\"longitude\":3.1,\"elevation\":47}],\"hourly\":{\"07015\":{\"time\":[\"2024-01-01T00:00\",\"2024-01-01T01:00\"],\"temperature\":[\"4,5\",\"4,1\"]}}}"}`

func restoreDefaultLogger(t *testing.T) {
	t.Helper()
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
}

func writeFixtures(t *testing.T) (configPath, outputPath string) {
	t.Helper()
	dir := t.TempDir()
	lines := filepath.Join(dir, "network")
	require.NoError(t, os.MkdirAll(lines, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(lines, "day.jsonl"), []byte(hourlyLine+"\n"), 0o600))

	outputPath = filepath.Join(dir, "out", "data.json")
	configPath = filepath.Join(dir, "etl.yaml")
	cfg := `
log_level: error
output_path: ` + outputPath + `
metrics_textfile: ` + filepath.Join(dir, "etl.prom") + `
sources:
  - name: network
    kind: jsonl
    path: ` + lines + `
  - name: missing_home
    kind: station
    path: ` + filepath.Join(dir, "absent") + `
    station_id: IICHTE19
`
	require.NoError(t, os.WriteFile(configPath, []byte(cfg), 0o600))
	return configPath, outputPath
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv(config.EnvConfigPath, "")
	restoreDefaultLogger(t)

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRunAndAudit(t *testing.T) {
	configPath, outputPath := writeFixtures(t)

	_, err := execute(t, "--config", configPath, "run")
	require.NoError(t, err)

	ds, err := jsonfile.ReadDataset(outputPath)
	require.NoError(t, err)
	require.Len(t, ds, 2)
	temp, _ := ds[1].Get("temperature")
	assert.Equal(t, domain.Number(4.1), temp, "jsonl sources read decimal commas")
	name, _ := ds[0].Get(domain.FieldStationName)
	assert.Equal(t, domain.Text("Lille-Lesquin"), name)

	_, err = os.Stat(filepath.Join(filepath.Dir(configPath), "etl.prom"))
	assert.NoError(t, err, "metrics textfile is written")

	out, err := execute(t, "--config", configPath, "audit")
	require.NoError(t, err)
	assert.Contains(t, out, "Data Quality Report")
	assert.Contains(t, out, "2 records")
	assert.Contains(t, out, "duplicate records")
}

func TestAudit_Strict(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.json")
	rec := domain.NewRecord("s")
	rec.Set(domain.FieldStationID, domain.Text("A"))
	rec.Set(domain.FieldTimestamp, domain.Time(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, jsonfile.NewWriter(path).Write(context.Background(), domain.Dataset{rec, rec.Clone()}))

	out, err := execute(t, "audit", path)
	require.NoError(t, err, "the report is advisory by default")
	assert.Contains(t, out, "WARN (1 records)")

	_, err = execute(t, "audit", "--strict", path)
	assert.ErrorIs(t, err, errQualityCheck)
}

func TestRun_NoRecords(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "data.json")
	configPath := filepath.Join(dir, "etl.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(`
log_level: error
output_path: `+output+`
sources:
  - {name: empty, kind: jsonl, path: `+filepath.Join(dir, "absent")+`}
`), 0o600))

	_, err := execute(t, "--config", configPath, "run")
	require.ErrorIs(t, err, pipeline.ErrNoRecords)
	_, statErr := os.Stat(output)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRun_BadConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "etl.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("sources: [{name: a, kind: csv, path: p}]"), 0o600))

	_, err := execute(t, "--config", configPath, "run")
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestBuildSources(t *testing.T) {
	cfg := config.New()
	cfg.Stations = domain.DefaultStations()
	cfg.Sources = append(cfg.Sources, config.Source{Name: "lines", Kind: config.KindJSONL, Path: "p"})

	sources, err := buildSources(cfg, &columnar.Loader{}, slog.Default())
	require.NoError(t, err)
	require.Len(t, sources, 6)

	assert.IsType(t, &columnar.AggregateReader{}, sources[0])
	assert.IsType(t, &columnar.StationReader{}, sources[1])
	assert.IsType(t, &excel.Reader{}, sources[3])
	assert.IsType(t, &jsonl.Reader{}, sources[5])
	for i, s := range sources {
		assert.Equal(t, cfg.Sources[i].Name, s.Name())
	}

	cfg.Sources = []config.Source{{Name: "x", Kind: config.KindStation, Path: "p", StationID: "NOPE"}}
	_, err = buildSources(cfg, nil, slog.Default())
	assert.ErrorContains(t, err, "unknown station")
}

func TestNeedsLoader(t *testing.T) {
	assert.False(t, needsLoader([]config.Source{{Kind: config.KindJSONL}, {Kind: config.KindSpreadsheet}}))
	assert.True(t, needsLoader([]config.Source{{Kind: config.KindJSONL}, {Kind: config.KindAggregate}}))
}

func TestRenderReport(t *testing.T) {
	var buf bytes.Buffer
	renderReport(&buf, "data.json", domain.QualityReport{
		GeneratedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Rows:        3,
		Excluded:    []string{"hourly"},
		Columns: []domain.ColumnProfile{
			{Name: "station_id", Kinds: map[string]int{"text": 3}},
			{Name: "humidity", Missing: 1, Kinds: map[string]int{"text": 1, "number": 1}},
		},
	})
	out := buf.String()
	assert.Contains(t, out, "data.json: 3 records, generated 2024-01-01T00:00:00")
	assert.Contains(t, out, "WARN (1 fields)")
	assert.Contains(t, out, "number=1 text=1")
	assert.Contains(t, out, "excluded from duplicate check: hourly")
}

func TestServe_RebuildsUntilCancelled(t *testing.T) {
	configPath, outputPath := writeFixtures(t)
	t.Setenv(config.EnvConfigPath, "")
	t.Setenv("STATION_ETL_HTTP_ADDR", "127.0.0.1:0")
	cfg, err := config.Load(configPath)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, cfg, slog.New(slog.DiscardHandler)) }()

	require.Eventually(t, func() bool {
		_, err := os.Stat(outputPath)
		return err == nil
	}, 10*time.Second, 10*time.Millisecond, "first rebuild runs immediately")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("serve did not stop")
	}
}
