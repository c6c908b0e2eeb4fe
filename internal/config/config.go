// Package config provides configuration management for RoomHaven.
// Settings come from an optional YAML file plus environment variables with
// the ROOMHAVEN_ prefix; environment variables override the file, and both
// fall back to sensible defaults.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration settings for the RoomHaven search service.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Security SecurityConfig `yaml:"security"`
	Search   SearchConfig   `yaml:"search"`
	Features FeaturesConfig `yaml:"features"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port int    `yaml:"port"` // Server port (default: 8484)
	Host string `yaml:"host"` // Server host (default: 127.0.0.1)
}

// StorageConfig contains database configuration.
type StorageConfig struct {
	// StorageEngine selects the backend: postgres or sqlite (default: sqlite).
	StorageEngine string `yaml:"storage_engine"`

	// PostgresDSN is the PostgreSQL connection string when StorageEngine is
	// postgres.
	PostgresDSN string `yaml:"postgres_dsn"`

	// SQLitePath is the database file path when StorageEngine is sqlite
	// (default: ./data/roomhaven.db).
	SQLitePath string `yaml:"sqlite_path"`
}

// SecurityConfig contains security and authentication settings.
type SecurityConfig struct {
	// APIToken is the bearer token required on API routes. Empty disables
	// authentication (development mode).
	APIToken string `yaml:"api_token"`

	// CursorSecret enables HMAC-signed pagination cursors. Empty selects
	// the deliberately permitted unsigned mode.
	CursorSecret string `yaml:"cursor_secret"`

	// RateLimitPerSecond caps requests per client (default: 10; 0 disables).
	RateLimitPerSecond float64 `yaml:"rate_limit_per_second"`

	// RateLimitBurst is the rate limiter burst size (default: 20).
	RateLimitBurst int `yaml:"rate_limit_burst"`
}

// SearchConfig tunes the search engine.
type SearchConfig struct {
	// PageSize is the listing page size (default: 20).
	PageSize int `yaml:"page_size"`

	// CenterRadiusKm is the bounding-box radius derived from a bare center
	// point (default: 10).
	CenterRadiusKm float64 `yaml:"center_radius_km"`

	// ScoreRefreshInterval is the recommended-score refresh cadence,
	// as a Go duration string (default: 1h).
	ScoreRefreshInterval string `yaml:"score_refresh_interval"`
}

// FeaturesConfig contains feature flags.
type FeaturesConfig struct {
	// KeysetPagination enables cursor-based pagination (default: true).
	// When disabled the service serves offset pagination with legacy
	// cursors.
	KeysetPagination bool `yaml:"keyset_pagination"`

	// SearchV2 gates the /api/v2 search routes (default: true).
	SearchV2 bool `yaml:"search_v2"`
}

// LoadConfig loads configuration from environment variables with sensible
// defaults. All environment variables use the ROOMHAVEN_ prefix.
func LoadConfig() (*Config, error) {
	cfg := defaultConfig()
	applyEnv(cfg)
	return cfg, nil
}

// LoadConfigFromFile loads a YAML config file and then applies environment
// overrides on top of it.
func LoadConfigFromFile(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	applyEnv(cfg)
	return cfg, nil
}

// defaultConfig returns the built-in defaults.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 8484,
			Host: "127.0.0.1",
		},
		Storage: StorageConfig{
			StorageEngine: "sqlite",
			SQLitePath:    "./data/roomhaven.db",
		},
		Security: SecurityConfig{
			RateLimitPerSecond: 10,
			RateLimitBurst:     20,
		},
		Search: SearchConfig{
			PageSize:             20,
			CenterRadiusKm:       10,
			ScoreRefreshInterval: "1h",
		},
		Features: FeaturesConfig{
			KeysetPagination: true,
			SearchV2:         true,
		},
	}
}

// applyEnv overrides cfg fields from ROOMHAVEN_ environment variables.
func applyEnv(cfg *Config) {
	cfg.Server.Port = getEnvInt("ROOMHAVEN_PORT", cfg.Server.Port)
	cfg.Server.Host = getEnv("ROOMHAVEN_HOST", cfg.Server.Host)

	cfg.Storage.StorageEngine = getEnv("ROOMHAVEN_STORAGE_ENGINE", cfg.Storage.StorageEngine)
	cfg.Storage.PostgresDSN = getEnv("ROOMHAVEN_POSTGRES_DSN", cfg.Storage.PostgresDSN)
	cfg.Storage.SQLitePath = getEnv("ROOMHAVEN_SQLITE_PATH", cfg.Storage.SQLitePath)

	cfg.Security.APIToken = getEnv("ROOMHAVEN_API_TOKEN", cfg.Security.APIToken)
	cfg.Security.CursorSecret = getEnv("ROOMHAVEN_CURSOR_SECRET", cfg.Security.CursorSecret)
	cfg.Security.RateLimitPerSecond = getEnvFloat("ROOMHAVEN_RATE_LIMIT_PER_SECOND", cfg.Security.RateLimitPerSecond)
	cfg.Security.RateLimitBurst = getEnvInt("ROOMHAVEN_RATE_LIMIT_BURST", cfg.Security.RateLimitBurst)

	cfg.Search.PageSize = getEnvInt("ROOMHAVEN_PAGE_SIZE", cfg.Search.PageSize)
	cfg.Search.CenterRadiusKm = getEnvFloat("ROOMHAVEN_CENTER_RADIUS_KM", cfg.Search.CenterRadiusKm)
	cfg.Search.ScoreRefreshInterval = getEnv("ROOMHAVEN_SCORE_REFRESH_INTERVAL", cfg.Search.ScoreRefreshInterval)

	cfg.Features.KeysetPagination = getEnvBool("ROOMHAVEN_KEYSET_PAGINATION", cfg.Features.KeysetPagination)
	cfg.Features.SearchV2 = getEnvBool("ROOMHAVEN_SEARCH_V2", cfg.Features.SearchV2)
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default
// value. If the environment variable exists but cannot be parsed as an
// integer, it returns the default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat retrieves a float environment variable or returns a default
// value.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns a default
// value. It recognizes "true", "1", "yes" as true and "false", "0", "no" as
// false (case-insensitive).
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch value {
		case "true", "1", "yes", "True", "TRUE", "Yes", "YES":
			return true
		case "false", "0", "no", "False", "FALSE", "No", "NO":
			return false
		}
	}
	return defaultValue
}
