package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Service.Port != "8080" {
		t.Fatalf("port = %q, want 8080", cfg.Service.Port)
	}
	if cfg.Database.Driver != DriverSQLite {
		t.Fatalf("driver = %q, want %q", cfg.Database.Driver, DriverSQLite)
	}
	if !cfg.Database.MigrateOnStart {
		t.Fatal("expected migrations on start by default")
	}
	if got := cfg.GetShutdownTimeoutDuration(); got != 10*time.Second {
		t.Fatalf("shutdown timeout = %v, want 10s", got)
	}
	if got := cfg.GetReadinessDrainDelayDuration(); got != 5*time.Second {
		t.Fatalf("drain delay = %v, want 5s", got)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PORT", "9090")
	t.Setenv("DB_DRIVER", " Postgres ")
	t.Setenv("DATABASE_URL", "postgres://gravity@localhost/gravity")
	t.Setenv("DB_POOL_MAX_CONNECTIONS", "25")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")
	t.Setenv("READINESS_DRAIN_DELAY", "0s")
	t.Setenv("TRACING_ENABLED", "true")
	t.Setenv("OTEL_SAMPLE_RATE", "1")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Database.Driver != DriverPostgres {
		t.Fatalf("driver = %q, want %q", cfg.Database.Driver, DriverPostgres)
	}
	if cfg.Database.MaxConns != 25 {
		t.Fatalf("max conns = %d, want 25", cfg.Database.MaxConns)
	}
	if cfg.GetShutdownTimeoutDuration() != 30*time.Second {
		t.Fatalf("shutdown timeout = %v, want 30s", cfg.GetShutdownTimeoutDuration())
	}
	if !cfg.Tracing.Enabled || cfg.Tracing.SampleRate != 1 {
		t.Fatalf("tracing = %+v", cfg.Tracing)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SHUTDOWN_TIMEOUT", "soon")

	if _, err := Load(); err == nil {
		t.Fatal("expected parse error for malformed duration")
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Service:  ServiceConfig{Name: "vibex-gravity", Port: "8080"},
			Logging:  LoggingConfig{Level: "info"},
			Database: DatabaseConfig{Driver: DriverSQLite, SQLitePath: "gravity.db", MaxConns: 10},
			Shutdown: ShutdownConfig{Timeout: time.Second},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "bad port", mutate: func(c *Config) { c.Service.Port = "http" }, wantErr: "PORT"},
		{name: "bad log level", mutate: func(c *Config) { c.Logging.Level = "loud" }, wantErr: "LOG_LEVEL"},
		{name: "unknown driver", mutate: func(c *Config) { c.Database.Driver = "mysql" }, wantErr: "DB_DRIVER"},
		{name: "postgres without url", mutate: func(c *Config) { c.Database.Driver = DriverPostgres }, wantErr: "DATABASE_URL"},
		{name: "sqlite without path", mutate: func(c *Config) { c.Database.SQLitePath = " " }, wantErr: "SQLITE_PATH"},
		{name: "sample rate out of range", mutate: func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.Endpoint = "localhost:4318"
			c.Tracing.SampleRate = 2
		}, wantErr: "OTEL_SAMPLE_RATE"},
		{name: "zero shutdown timeout", mutate: func(c *Config) { c.Shutdown.Timeout = 0 }, wantErr: "SHUTDOWN_TIMEOUT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want mention of %s", err, tt.wantErr)
			}
		})
	}
}
