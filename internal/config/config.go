// Package config loads the ETL run configuration.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/couchcryptid/station-data-etl/internal/domain"
	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "STATION_ETL_"
	// EnvConfigPath names the YAML file to load when no path is given.
	EnvConfigPath = EnvPrefix + "CONFIG"
)

// Sentinel error kinds, checkable with errors.Is.
var (
	ErrInvalidConfig = errors.New("invalid config")
	ErrLoadConfig    = errors.New("load config failed")
)

// Kind is the declared shape of a source.
type Kind string

const (
	KindSpreadsheet Kind = "spreadsheet"
	KindStation     Kind = "station"
	KindAggregate   Kind = "aggregate"
	KindJSONL       Kind = "jsonl"
)

// Flatten declares how wrapped columns of a station source are unwrapped.
type Flatten struct {
	SubKey string   `koanf:"sub_key"`
	Unwrap []string `koanf:"unwrap"`
	Detect *bool    `koanf:"detect"`
}

// Source declares one input. Unset optional fields take the defaults of
// the source kind.
type Source struct {
	Name         string  `koanf:"name"`
	Kind         Kind    `koanf:"kind"`
	Path         string  `koanf:"path"`
	StationID    string  `koanf:"station_id"`
	Timestamp    string  `koanf:"timestamp"`
	DecimalComma *bool   `koanf:"decimal_comma"`
	Flatten      Flatten `koanf:"flatten"`
	DropPrefix   *string `koanf:"drop_prefix"`
}

// Profile returns the normalization conventions of the source.
func (s Source) Profile() (domain.Profile, error) {
	p := domain.Profile{}
	switch s.Kind {
	case KindStation:
		p.Timestamp = domain.TimestampEpochSeconds
	case KindSpreadsheet, KindJSONL:
		p.DecimalComma = true
	}
	if s.Timestamp != "" {
		rule, err := domain.ParseTimestampRule(s.Timestamp)
		if err != nil {
			return p, err
		}
		p.Timestamp = rule
	}
	if s.DecimalComma != nil {
		p.DecimalComma = *s.DecimalComma
	}
	return p, nil
}

// FlattenRules returns the declared flatten table. Detection defaults to on
// for station sources.
func (s Source) FlattenRules() domain.FlattenRules {
	detect := s.Kind == KindStation
	if s.Flatten.Detect != nil {
		detect = *s.Flatten.Detect
	}
	return domain.FlattenRules{SubKey: s.Flatten.SubKey, Unwrap: s.Flatten.Unwrap, Detect: detect}
}

// Prefix returns the bookkeeping column prefix to drop.
func (s Source) Prefix() string {
	if s.DropPrefix != nil {
		return *s.DropPrefix
	}
	return "_airbyte"
}

// Config holds all run settings.
type Config struct {
	LogLevel  string `koanf:"log_level"`
	LogFormat string `koanf:"log_format"`
	LogFile   string `koanf:"log_file"`

	OutputPath    string   `koanf:"output_path"`
	ParquetPath   string   `koanf:"parquet_path"`
	StationsFile  string   `koanf:"stations_file"`
	NumericFields []string `koanf:"numeric_fields"`

	KafkaBrokers []string `koanf:"kafka_brokers"`
	KafkaTopic   string   `koanf:"kafka_topic"`

	MetricsTextfile string `koanf:"metrics_textfile"`
	PushgatewayURL  string `koanf:"pushgateway_url"`
	MetricsJob      string `koanf:"metrics_job"`

	// Scheduled mode.
	HTTPAddr        string        `koanf:"http_addr"`
	Interval        time.Duration `koanf:"interval"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	Sources []Source `koanf:"sources"`

	// Stations is the built-in station table merged with StationsFile.
	Stations domain.StationRegistry `koanf:"-"`
}

// listKeys are the settings read from the environment as comma-separated
// lists.
var listKeys = map[string]struct{}{
	"numeric_fields": {},
	"kafka_brokers":  {},
}

func splitList(s string) []string {
	out := []string{}
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// New returns a Config holding the defaults.
func New() *Config {
	return &Config{
		LogLevel:        "info",
		LogFormat:       "json",
		OutputPath:      "transformed_data/data_for_mongodb.json",
		NumericFields:   domain.DefaultNumericFields(),
		KafkaTopic:      "weather-observations",
		MetricsJob:      "station_etl",
		HTTPAddr:        ":8080",
		Interval:        time.Hour,
		ShutdownTimeout: 10 * time.Second,
		Sources:         DefaultSources(),
	}
}

// DefaultSources returns the sources of the standard deployment, laid out
// under temp_data/.
func DefaultSources() []Source {
	return []Source{
		{Name: "infoclimat", Kind: KindAggregate, Path: "temp_data/infoclimat"},
		{Name: "ichtegem_weather", Kind: KindStation, Path: "temp_data/ichtegem_weather", StationID: "IICHTE19"},
		{Name: "la_madeleine_weather", Kind: KindStation, Path: "temp_data/la_madeleine_weather", StationID: "ILAMAD25"},
		{Name: "la_madeleine_xlsx", Kind: KindSpreadsheet, Path: "temp_data/la_madeleine_weather.xlsx", StationID: "ILAMAD25"},
		{Name: "ichtegem_xlsx", Kind: KindSpreadsheet, Path: "temp_data/ichtegem_weather.xlsx", StationID: "IICHTE19"},
	}
}

// Load builds a Config by layering, from low to high precedence: defaults,
// the YAML file at path (or $STATION_ETL_CONFIG), and STATION_ETL_*
// environment variables. List settings given in a layer replace the
// default list instead of merging with it.
func Load(path string) (*Config, error) {
	if path == "" {
		path = sharedcfg.EnvOrDefault(EnvConfigPath, "")
	}

	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}
	envProvider := env.ProviderWithValue(EnvPrefix, ".", func(key, value string) (string, any) {
		key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
		if _, ok := listKeys[key]; ok {
			return key, splitList(value)
		}
		return key, value
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	cfg := New()
	if k.Exists("numeric_fields") {
		cfg.NumericFields = nil
	}
	if k.Exists("sources") {
		cfg.Sources = nil
	}
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}
	cfg.KafkaBrokers = sharedcfg.ParseBrokers(strings.Join(cfg.KafkaBrokers, ","))

	stations := domain.DefaultStations()
	if cfg.StationsFile != "" {
		var err error
		if stations, err = domain.LoadStations(cfg.StationsFile, stations); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
		}
	}
	cfg.Stations = stations

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first configuration error found.
func (c *Config) Validate() error {
	if c.OutputPath == "" {
		return fmt.Errorf("%w: output_path must not be empty", ErrInvalidConfig)
	}
	if c.Interval <= 0 {
		return fmt.Errorf("%w: interval must be positive", ErrInvalidConfig)
	}
	if len(c.Sources) == 0 {
		return fmt.Errorf("%w: no sources declared", ErrInvalidConfig)
	}
	seen := make(map[string]bool, len(c.Sources))
	for i, s := range c.Sources {
		if s.Name == "" {
			return fmt.Errorf("%w: source %d has no name", ErrInvalidConfig, i)
		}
		if seen[s.Name] {
			return fmt.Errorf("%w: duplicate source name %q", ErrInvalidConfig, s.Name)
		}
		seen[s.Name] = true

		switch s.Kind {
		case KindSpreadsheet, KindStation:
			if s.StationID == "" {
				return fmt.Errorf("%w: source %q: station_id is required for kind %s", ErrInvalidConfig, s.Name, s.Kind)
			}
			if _, ok := c.Stations.Lookup(s.StationID); !ok {
				return fmt.Errorf("%w: source %q: unknown station %q", ErrInvalidConfig, s.Name, s.StationID)
			}
		case KindAggregate, KindJSONL:
		default:
			return fmt.Errorf("%w: source %q: unknown kind %q", ErrInvalidConfig, s.Name, s.Kind)
		}
		if s.Path == "" {
			return fmt.Errorf("%w: source %q: path must not be empty", ErrInvalidConfig, s.Name)
		}
		if _, err := s.Profile(); err != nil {
			return fmt.Errorf("%w: source %q: %w", ErrInvalidConfig, s.Name, err)
		}
	}
	return nil
}

// Profiles returns the normalization profile of every source by name.
func (c *Config) Profiles() map[string]domain.Profile {
	out := make(map[string]domain.Profile, len(c.Sources))
	for _, s := range c.Sources {
		p, err := s.Profile()
		if err != nil {
			continue
		}
		out[s.Name] = p
	}
	return out
}
