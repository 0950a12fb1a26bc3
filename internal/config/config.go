// Package config loads the settings of the station database from the
// environment. A .env file in the working directory is read first, when present.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Prefix of every environment variable, e.g. STATIONS_DB.
const Prefix = "STATIONS"

// Config holds application configuration
type Config struct {
	DBPath          string `envconfig:"DB" default:"stations.db"`
	SourceURL       string `envconfig:"SOURCE_URL" default:"https://unpkg.com/db-stations/data.ndjson"`
	LogLevel        string `envconfig:"LOG_LEVEL" default:"warn"`
	NominatimServer string `envconfig:"NOMINATIM_SERVER" default:"https://nominatim.openstreetmap.org/"`
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}
	if _, err := cfg.Level(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(c.LogLevel))); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	return level, nil
}

// Logger returns a text logger writing to w at the configured level.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	level, err := c.Level()
	if err != nil {
		level = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
