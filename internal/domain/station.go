package domain

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// StationMetadata holds the fixed attributes of a physical weather station.
type StationMetadata struct {
	StationID   string  `yaml:"station_id"`
	StationName string  `yaml:"station_name"`
	Latitude    float64 `yaml:"latitude"`
	Longitude   float64 `yaml:"longitude"`
	Elevation   float64 `yaml:"elevation"`
	City        string  `yaml:"city"`
	State       string  `yaml:"state"`
	Hardware    string  `yaml:"hardware"`
	Software    string  `yaml:"software"`
}

// Apply writes the station attributes onto r, replacing any values the
// source carried for the same fields.
func (m StationMetadata) Apply(r *Record) {
	r.Set(FieldStationID, Text(m.StationID))
	r.Set(FieldStationName, Text(m.StationName))
	r.Set(FieldLatitude, Number(m.Latitude))
	r.Set(FieldLongitude, Number(m.Longitude))
	r.Set(FieldElevation, Number(m.Elevation))
	r.Set("city", Text(m.City))
	r.Set("state", Text(m.State))
	r.Set("hardware", Text(m.Hardware))
	r.Set("software", Text(m.Software))
}

// StationRegistry is the static station table keyed by station id.
type StationRegistry map[string]StationMetadata

// DefaultStations returns the built-in table of personal weather stations.
func DefaultStations() StationRegistry {
	return StationRegistry{
		"ILAMAD25": {
			StationID:   "ILAMAD25",
			StationName: "La Madeleine",
			Latitude:    50.659,
			Longitude:   3.07,
			Elevation:   23,
			City:        "La Madeleine",
			State:       "-/-",
			Hardware:    "other",
			Software:    "EasyWeatherPro_V5.1.6",
		},
		"IICHTE19": {
			StationID:   "IICHTE19",
			StationName: "WeerstationBS",
			Latitude:    51.092,
			Longitude:   2.999,
			Elevation:   15,
			City:        "Ichtegem",
			State:       "-/-",
			Hardware:    "other",
			Software:    "EasyWeatherV1.6.6",
		},
	}
}

// Lookup returns the metadata for id.
func (s StationRegistry) Lookup(id string) (StationMetadata, bool) {
	m, ok := s[id]
	return m, ok
}

// IDs returns the registered station ids in ascending order.
func (s StationRegistry) IDs() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// LoadStations reads a YAML list of stations and merges it over base.
// Entries with a known id replace the base entry.
func LoadStations(path string, base StationRegistry) (StationRegistry, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read stations file: %w", err)
	}
	var entries []StationMetadata
	if err := yaml.Unmarshal(b, &entries); err != nil {
		return nil, fmt.Errorf("parse stations file %s: %w", path, err)
	}

	out := make(StationRegistry, len(base)+len(entries))
	for id, m := range base {
		out[id] = m
	}
	for i, m := range entries {
		if m.StationID == "" {
			return nil, fmt.Errorf("parse stations file %s: entry %d has no station_id", path, i)
		}
		out[m.StationID] = m
	}
	return out, nil
}
