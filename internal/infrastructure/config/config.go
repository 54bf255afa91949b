package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server ServerConfig
	Pool   PoolConfig
	Log    LogConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host           string        `envconfig:"SERVER_HOST" default:"localhost"`
	Port           int           `envconfig:"SERVER_PORT" default:"4242"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"`
}

// PoolConfig holds browser fleet pool configuration.
type PoolConfig struct {
	MaxSize         int           `envconfig:"BROWSER_POOL_MAX_SIZE" default:"5"`
	MaxAge          time.Duration `envconfig:"BROWSER_MAX_AGE" default:"60s"`
	MaxRecycleCount int           `envconfig:"BROWSER_MAX_RECYCLE_COUNT" default:"10"`
	BrowserProgram  string        `envconfig:"BROWSER_PROGRAM" default:"firefox"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string `envconfig:"LOG_LEVEL" default:"info"`
}

// Load loads configuration from environment variables prefixed PANTIN_.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("pantin", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "localhost",
			Port:           4242,
			RequestTimeout: 30 * time.Second,
		},
		Pool: PoolConfig{
			MaxSize:         5,
			MaxAge:          60 * time.Second,
			MaxRecycleCount: 10,
			BrowserProgram:  "firefox",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}
