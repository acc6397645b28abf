// Package config loads the tailorbatch service configuration.
//
// Precedence, highest first: runtime overrides, environment variables
// (TAILORBATCH_ prefix), config file, built-in defaults.
package config

import (
	"time"
)

// Config is the full service configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Store     StoreConfig     `mapstructure:"store"`
	Artifacts ArtifactsConfig `mapstructure:"artifacts"`
	Batch     BatchConfig     `mapstructure:"batch"`
	Fetcher   FetcherConfig   `mapstructure:"fetcher"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggingConfig configures the process loggers.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `mapstructure:"level"`

	// Profile is "structured" (JSON) or "cli" (console).
	Profile string `mapstructure:"profile"`
}

// StoreConfig configures the batch store backend.
type StoreConfig struct {
	// Driver is "memory" or "sqlite".
	Driver string `mapstructure:"driver"`

	// Path is the SQLite database path. ":memory:" is accepted.
	Path string `mapstructure:"path"`
}

// ArtifactsConfig configures the artifact store backend.
type ArtifactsConfig struct {
	// Backend is "file" or "s3".
	Backend string `mapstructure:"backend"`

	// Dir is the base directory for the file backend.
	Dir string `mapstructure:"dir"`

	// S3 settings, used when Backend is "s3".
	Bucket         string `mapstructure:"bucket"`
	Prefix         string `mapstructure:"prefix"`
	Region         string `mapstructure:"region"`
	Endpoint       string `mapstructure:"endpoint"`
	Profile        string `mapstructure:"profile"`
	ForcePathStyle bool   `mapstructure:"force_path_style"`
}

// BatchConfig carries the server-side defaults for submissions that
// omit processing parameters.
type BatchConfig struct {
	Mode           string        `mapstructure:"mode"`
	Concurrency    int           `mapstructure:"concurrency"`
	ItemTimeout    time.Duration `mapstructure:"item_timeout"`
	UnderThreshold time.Duration `mapstructure:"under_threshold"`
}

// FetcherConfig configures the HTTP posting fetcher.
type FetcherConfig struct {
	// RequestTimeout bounds a single fetch request.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`

	// RateLimit is the maximum fetch requests per second.
	// Zero means unlimited.
	RateLimit float64 `mapstructure:"rate_limit"`
}
