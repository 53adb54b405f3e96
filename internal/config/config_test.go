package config

import (
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("POSTGRES_HOST", "testhost")
	t.Setenv("CACHE_VERSION_TTL", "30s")
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("VERSIONING_MAX_ATTEMPTS", "5")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("Server.Port = %v, want %v", cfg.Server.Port, "9090")
	}
	if cfg.Database.Postgres.Host != "testhost" {
		t.Errorf("Database.Postgres.Host = %v, want %v", cfg.Database.Postgres.Host, "testhost")
	}
	if cfg.Cache.VersionTTL != 30*time.Second {
		t.Errorf("Cache.VersionTTL = %v, want %v", cfg.Cache.VersionTTL, 30*time.Second)
	}
	if cfg.Storage.Driver != DriverMemory {
		t.Errorf("Storage.Driver = %v, want %v", cfg.Storage.Driver, DriverMemory)
	}
	if cfg.Versioning.MaxAttempts != 5 {
		t.Errorf("Versioning.MaxAttempts = %v, want 5", cfg.Versioning.MaxAttempts)
	}
	if cfg.Versioning.StringFallback {
		t.Errorf("Versioning.StringFallback should default to false")
	}
}

func TestLoadConfigRejectsUnknownDriver(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "sqlite")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("LoadConfig() expected error for unknown driver")
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Storage:    StorageConfig{Driver: DriverPostgres},
			Cache:      CacheConfig{VersionTTL: time.Hour},
			Versioning: VersioningConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Second},
			RateLimit:  RateLimitConfig{RequestsPerSecond: 1, Burst: 1},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"zero attempts", func(c *Config) { c.Versioning.MaxAttempts = 0 }, true},
		{"inverted backoff", func(c *Config) { c.Versioning.MaxBackoff = 0 }, true},
		{"negative ttl", func(c *Config) { c.Cache.VersionTTL = -time.Second }, true},
		{"no burst", func(c *Config) { c.RateLimit.Burst = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestPostgresURL(t *testing.T) {
	cfg := PostgresConfig{User: "u", Password: "p", Host: "db", Port: "5432", Database: "portfolio", SSLMode: "disable"}
	want := "postgres://u:p@db:5432/portfolio?sslmode=disable"
	if got := cfg.URL(); got != want {
		t.Errorf("URL() = %v, want %v", got, want)
	}
}

func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		want         string
	}{
		{
			name:         "returns environment variable when set",
			key:          "TEST_KEY",
			defaultValue: "default",
			envValue:     "custom",
			want:         "custom",
		},
		{
			name:         "returns default when environment variable not set",
			key:          "NONEXISTENT_KEY",
			defaultValue: "default",
			envValue:     "",
			want:         "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv(tt.key, tt.envValue)
			}

			got := getEnv(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnv() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetEnvAsTypes(t *testing.T) {
	t.Setenv("TEST_INT", "200")
	t.Setenv("TEST_INT_INVALID", "invalid")
	t.Setenv("TEST_BOOL", "true")
	t.Setenv("TEST_FLOAT", "2.5")
	t.Setenv("TEST_DURATION", "30s")

	if got := getEnvAsInt("TEST_INT", 100); got != 200 {
		t.Errorf("getEnvAsInt() = %v, want 200", got)
	}
	if got := getEnvAsInt("TEST_INT_INVALID", 100); got != 100 {
		t.Errorf("getEnvAsInt() = %v, want 100", got)
	}
	if got := getEnvAsBool("TEST_BOOL", false); !got {
		t.Errorf("getEnvAsBool() = %v, want true", got)
	}
	if got := getEnvAsFloat("TEST_FLOAT", 1); got != 2.5 {
		t.Errorf("getEnvAsFloat() = %v, want 2.5", got)
	}
	if got := getEnvAsDuration("TEST_DURATION", time.Second); got != 30*time.Second {
		t.Errorf("getEnvAsDuration() = %v, want 30s", got)
	}
	if got := getEnvAsDuration("TEST_DURATION_NOTSET", time.Second); got != time.Second {
		t.Errorf("getEnvAsDuration() = %v, want 1s", got)
	}
}
