// Command genmock writes a small, deterministic input tree for local runs of
// the ETL: one day-per-sheet workbook per home station, a line-delimited
// export of the aggregate network feed and an etl.yaml that declares them.
//
// Usage:
//
//	go run ./cmd/genmock -out data/mock -days 2
//	go run ./cmd/etl --config data/mock/etl.yaml run
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/couchcryptid/station-data-etl/internal/domain"
	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"
)

var workbookHeader = []any{
	"Time", "Temperature", "Dew Point", "Humidity", "Wind", "Speed", "Gust",
	"Pressure", "Precip. Rate.", "Precip. Accum.", "UV", "Solar",
}

// networkStations are the synoptic stations of the aggregate feed.
var networkStations = []map[string]any{
	{"id": "07015", "name": "Lille-Lesquin", "latitude": 50.57, "longitude": 3.0975, "elevation": 47},
	{"id": "00052", "name": "Armentières", "latitude": 50.689, "longitude": 2.877, "elevation": 16},
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "", "output directory for the fixture tree")
	days := flag.Int("days", 2, "number of days to generate")
	start := flag.String("start", "2024-10-01", "first day, YYYY-MM-DD")
	flag.Parse()

	if *out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out")
	}
	first, err := time.Parse(time.DateOnly, *start)
	if err != nil {
		return fmt.Errorf("parse -start: %w", err)
	}
	if *days < 1 {
		return fmt.Errorf("-days must be at least 1")
	}

	if err := generate(*out, first, *days); err != nil {
		return err
	}
	log.Printf("wrote fixtures for %d day(s) to %s", *days, *out)
	return nil
}

// generate writes the full fixture tree under dir.
func generate(dir string, first time.Time, days int) error {
	if err := os.MkdirAll(filepath.Join(dir, "network"), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	stations := []string{"ILAMAD25", "IICHTE19"}
	for i, id := range stations {
		path := filepath.Join(dir, strings.ToLower(id)+".xlsx")
		if err := writeWorkbook(path, first, days, float64(i)); err != nil {
			return err
		}
	}
	if err := writeNetworkExport(filepath.Join(dir, "network", "export.jsonl"), first, days); err != nil {
		return err
	}
	return writeConfig(filepath.Join(dir, "etl.yaml"), dir, stations)
}

// writeWorkbook writes one sheet per day with half-hourly rows. Values use
// decimal commas and unit suffixes the way the station software exports them.
func writeWorkbook(path string, first time.Time, days int, offset float64) error {
	f := excelize.NewFile()
	defer f.Close()

	for d := range days {
		date := first.AddDate(0, 0, d)
		name := date.Format("020106")
		if d == 0 {
			if err := f.SetSheetName("Sheet1", name); err != nil {
				return err
			}
		} else if _, err := f.NewSheet(name); err != nil {
			return err
		}
		if err := f.SetSheetRow(name, "A1", &workbookHeader); err != nil {
			return err
		}
		for slot := range 48 {
			hour := float64(slot) / 2
			row := []any{
				fmt.Sprintf("%d:%02d %s", clock12(slot/2), (slot%2)*30, meridiem(slot/2)),
				commaUnit(50+offset+8*math.Sin(hour/24*2*math.Pi), "°F"),
				commaUnit(45+offset+4*math.Sin(hour/24*2*math.Pi), "°F"),
				fmt.Sprintf("%d %%", 70+slot%20),
				"SW",
				commaUnit(3+float64(slot%7), "mph"),
				commaUnit(5+float64(slot%9), "mph"),
				commaUnit(29.9+float64(slot%5)/100, "in"),
				"0,00 in",
				"0,00 in",
				fmt.Sprintf("%d", max(0, 6-abs(slot/2-12)/2)),
				commaUnit(math.Max(0, 400*math.Sin((hour-6)/12*math.Pi)), "w/m²"),
			}
			// One unreadable reading per day exercises coercion to null.
			if slot == 13 {
				row[3] = "N/A"
			}
			cell, err := excelize.CoordinatesToCellName(1, slot+2)
			if err != nil {
				return err
			}
			if err := f.SetSheetRow(name, cell, &row); err != nil {
				return err
			}
		}
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

// writeNetworkExport writes one connector line per day. The payload is
// stored as JSON text under the bookkeeping column.
func writeNetworkExport(path string, first time.Time, days int) error {
	var lines []string
	for d := range days {
		date := first.AddDate(0, 0, d)
		hourly := make(map[string]any, len(networkStations))
		for i, st := range networkStations {
			times := make([]string, 24)
			temps := make([]any, 24)
			hum := make([]any, 24)
			for h := range 24 {
				times[h] = date.Add(time.Duration(h) * time.Hour).Format("2006-01-02T15:04")
				temps[h] = fmt.Sprintf("%.1f", 9+float64(i)+3*math.Sin(float64(h)/24*2*math.Pi))
				hum[h] = 75 + h%10
			}
			temps[5] = nil
			hourly[st["id"].(string)] = map[string]any{
				"time":        times,
				"temperature": temps,
				"humidity":    hum,
			}
		}
		payload, err := json.Marshal(map[string]any{
			domain.PayloadStations: networkStations,
			domain.PayloadHourly:   hourly,
		})
		if err != nil {
			return err
		}
		line, err := json.Marshal(map[string]any{
			"_airbyte_raw_id":       fmt.Sprintf("mock-%d", d),
			"_airbyte_extracted_at": date.Format(time.RFC3339),
			domain.PayloadColumn:    string(payload),
		})
		if err != nil {
			return err
		}
		lines = append(lines, string(line))
	}
	return os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644)
}

type sourceDecl struct {
	Name      string `yaml:"name"`
	Kind      string `yaml:"kind"`
	Path      string `yaml:"path"`
	StationID string `yaml:"station_id,omitempty"`
}

func writeConfig(path, dir string, stations []string) error {
	sources := []sourceDecl{{Name: "network", Kind: "jsonl", Path: filepath.Join(dir, "network")}}
	for _, id := range stations {
		sources = append(sources, sourceDecl{
			Name:      strings.ToLower(id) + "_xlsx",
			Kind:      "spreadsheet",
			Path:      filepath.Join(dir, strings.ToLower(id)+".xlsx"),
			StationID: id,
		})
	}
	b, err := yaml.Marshal(map[string]any{
		"log_format":   "text",
		"output_path":  filepath.Join(dir, "out", "data.json"),
		"parquet_path": filepath.Join(dir, "out", "data.parquet"),
		"sources":      sources,
	})
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

func commaUnit(v float64, unit string) string {
	return strings.Replace(fmt.Sprintf("%.1f", v), ".", ",", 1) + " " + unit
}

func clock12(h int) int {
	if h%12 == 0 {
		return 12
	}
	return h % 12
}

func meridiem(h int) string {
	if h < 12 {
		return "AM"
	}
	return "PM"
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
