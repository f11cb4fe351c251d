// Package config loads process settings from ORGANIZER_* environment
// variables. Command-line flags may override them before Validate runs.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Store kinds accepted by ORGANIZER_STORE.
const (
	StoreSQLite   = "sqlite"
	StoreGorm     = "gorm"
	StorePostgres = "postgres"
	StoreLocal    = "local"
)

// Config is read from ORGANIZER_* environment variables.
type Config struct {
	Addr          string        `env:"ORGANIZER_ADDR" envDefault:":8080"`
	Store         string        `env:"ORGANIZER_STORE" envDefault:"sqlite"`
	DBPath        string        `env:"ORGANIZER_DB_PATH" envDefault:"data/organizer.db"`
	PostgresURL   string        `env:"ORGANIZER_POSTGRES_URL"`
	DataDir       string        `env:"ORGANIZER_DATA_DIR" envDefault:"data"`
	StaticDir     string        `env:"ORGANIZER_STATIC_DIR" envDefault:"web/dist"`
	JWTSecret     string        `env:"ORGANIZER_JWT_SECRET"`
	TokenTTL      time.Duration `env:"ORGANIZER_TOKEN_TTL" envDefault:"168h"`
	LogLevel      string        `env:"ORGANIZER_LOG_LEVEL" envDefault:"info"`
	LegacyOwnerID string        `env:"ORGANIZER_LEGACY_OWNER_ID"`
	MaxUploadMB   int64         `env:"ORGANIZER_MAX_UPLOAD_MB" envDefault:"32"`
	MaxRangeDays  int           `env:"ORGANIZER_MAX_RANGE_DAYS" envDefault:"36600"`
}

// Load reads the environment. It does not validate; call Validate once flags
// have been applied.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Validate fails fast on settings the process cannot start without.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.JWTSecret) == "" {
		errs = append(errs, errors.New("ORGANIZER_JWT_SECRET is required"))
	}
	switch c.Store {
	case StoreSQLite, StoreGorm:
		if c.DBPath == "" {
			errs = append(errs, fmt.Errorf("ORGANIZER_DB_PATH is required for store %q", c.Store))
		}
	case StorePostgres:
		if strings.TrimSpace(c.PostgresURL) == "" {
			errs = append(errs, errors.New("ORGANIZER_POSTGRES_URL is required for store \"postgres\""))
		}
	case StoreLocal:
	default:
		errs = append(errs, fmt.Errorf("unknown ORGANIZER_STORE %q", c.Store))
	}
	if c.DataDir == "" {
		errs = append(errs, errors.New("ORGANIZER_DATA_DIR is required"))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, errors.New("ORGANIZER_TOKEN_TTL must be positive"))
	}
	if c.MaxUploadMB <= 0 {
		errs = append(errs, errors.New("ORGANIZER_MAX_UPLOAD_MB must be positive"))
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Level maps LogLevel onto slog.
func (c Config) Level() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("ORGANIZER_LOG_LEVEL: %w", err)
	}
	return lvl, nil
}

// MaxUploadBytes is the request body limit for uploads.
func (c Config) MaxUploadBytes() int64 {
	return c.MaxUploadMB << 20
}
