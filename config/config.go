// Package config loads service configuration from the environment.
//
// An optional .env file in the working directory is read first; real
// environment variables always win over values from the file.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Supported values for DB_DRIVER.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config is the root configuration for the service.
type Config struct {
	Service   ServiceConfig
	Logging   LoggingConfig
	Tracing   TracingConfig
	Profiling ProfilingConfig
	Database  DatabaseConfig
	Shutdown  ShutdownConfig
}

// ServiceConfig identifies the running process.
type ServiceConfig struct {
	Name    string `env:"SERVICE_NAME" envDefault:"vibex-gravity"`
	Version string `env:"SERVICE_VERSION" envDefault:"dev"`
	Env     string `env:"ENV" envDefault:"development"`
	Port    string `env:"PORT" envDefault:"8080"`
}

type LoggingConfig struct {
	Level string `env:"LOG_LEVEL" envDefault:"info"`
}

type TracingConfig struct {
	Enabled    bool    `env:"TRACING_ENABLED" envDefault:"false"`
	Endpoint   string  `env:"OTEL_COLLECTOR_ENDPOINT" envDefault:"localhost:4318"`
	SampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"0.1"`
}

type ProfilingConfig struct {
	Enabled  bool   `env:"PROFILING_ENABLED" envDefault:"false"`
	Endpoint string `env:"PYROSCOPE_ENDPOINT" envDefault:"http://localhost:4040"`
}

// DatabaseConfig selects and tunes the persistence gateway.
type DatabaseConfig struct {
	Driver         string `env:"DB_DRIVER" envDefault:"sqlite"`
	URL            string `env:"DATABASE_URL"`
	SQLitePath     string `env:"SQLITE_PATH" envDefault:"vibex-gravity.db"`
	MaxConns       int32  `env:"DB_POOL_MAX_CONNECTIONS" envDefault:"10"`
	MigrateOnStart bool   `env:"DB_MIGRATE_ON_START" envDefault:"true"`
}

type ShutdownConfig struct {
	Timeout             time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	ReadinessDrainDelay time.Duration `env:"READINESS_DRAIN_DELAY" envDefault:"5s"`
}

// Load reads .env (if present) and parses the environment into a Config.
func Load() (*Config, error) {
	// Missing .env is the normal case outside local development.
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.Database.Driver = strings.ToLower(strings.TrimSpace(cfg.Database.Driver))
	return &cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Service.Name == "" {
		errs = append(errs, errors.New("SERVICE_NAME is required"))
	}
	if port, err := strconv.Atoi(c.Service.Port); err != nil || port <= 0 || port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %q is not a valid port", c.Service.Port))
	}
	if _, err := zerolog.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL %q: %w", c.Logging.Level, err))
	}
	if c.Tracing.Enabled {
		if c.Tracing.Endpoint == "" {
			errs = append(errs, errors.New("OTEL_COLLECTOR_ENDPOINT is required when tracing is enabled"))
		}
		if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
			errs = append(errs, fmt.Errorf("OTEL_SAMPLE_RATE %v must be within [0, 1]", c.Tracing.SampleRate))
		}
	}
	if c.Profiling.Enabled && c.Profiling.Endpoint == "" {
		errs = append(errs, errors.New("PYROSCOPE_ENDPOINT is required when profiling is enabled"))
	}

	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.URL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres driver"))
		}
		if c.Database.MaxConns <= 0 {
			errs = append(errs, fmt.Errorf("DB_POOL_MAX_CONNECTIONS %d must be positive", c.Database.MaxConns))
		}
	case DriverSQLite:
		if strings.TrimSpace(c.Database.SQLitePath) == "" {
			errs = append(errs, errors.New("SQLITE_PATH is required for the sqlite driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER %q must be %q or %q", c.Database.Driver, DriverPostgres, DriverSQLite))
	}

	if c.Shutdown.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("SHUTDOWN_TIMEOUT %v must be positive", c.Shutdown.Timeout))
	}
	if c.Shutdown.ReadinessDrainDelay < 0 {
		errs = append(errs, fmt.Errorf("READINESS_DRAIN_DELAY %v must not be negative", c.Shutdown.ReadinessDrainDelay))
	}

	return errors.Join(errs...)
}

// GetShutdownTimeoutDuration returns how long graceful shutdown may take.
func (c *Config) GetShutdownTimeoutDuration() time.Duration {
	return c.Shutdown.Timeout
}

// GetReadinessDrainDelayDuration returns how long /ready reports
// shutting_down before the HTTP server stops accepting connections.
func (c *Config) GetReadinessDrainDelayDuration() time.Duration {
	return c.Shutdown.ReadinessDrainDelay
}
