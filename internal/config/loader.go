package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// EnvPrefix is the environment variable prefix.
// TAILORBATCH_SERVER_PORT overrides server.port, and so on.
const EnvPrefix = "TAILORBATCH"

var (
	configMu  sync.RWMutex
	appConfig *Config
)

// Load builds the configuration from defaults, an optional config
// file, environment variables, and runtime overrides (highest
// precedence). The result is cached for GetConfig.
func Load(ctx context.Context, overrides ...map[string]any) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("tailorbatch")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/tailorbatch")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file is optional; only a malformed file is an error.
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	for _, override := range overrides {
		if err := v.MergeConfigMap(override); err != nil {
			return nil, fmt.Errorf("apply runtime overrides: %w", err)
		}
	}

	var cfg Config
	decodeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, decodeHook); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	configMu.Lock()
	appConfig = &cfg
	configMu.Unlock()

	return &cfg, nil
}

// GetConfig returns the most recently loaded configuration, or nil if
// Load has not run.
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

// setDefaults installs the built-in defaults.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "structured")

	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.path", "tailorbatch.db")

	v.SetDefault("artifacts.backend", "file")
	v.SetDefault("artifacts.dir", "artifacts")
	v.SetDefault("artifacts.prefix", "")
	v.SetDefault("artifacts.force_path_style", false)

	v.SetDefault("batch.mode", "standard")
	v.SetDefault("batch.concurrency", 0)
	v.SetDefault("batch.item_timeout", "0s")
	v.SetDefault("batch.under_threshold", "30s")

	v.SetDefault("fetcher.request_timeout", "20s")
	v.SetDefault("fetcher.rate_limit", 5.0)
}

func validate(cfg *Config) error {
	switch cfg.Store.Driver {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("unknown store driver: %s", cfg.Store.Driver)
	}

	switch cfg.Artifacts.Backend {
	case "file":
	case "s3":
		if cfg.Artifacts.Bucket == "" {
			return fmt.Errorf("artifacts.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("unknown artifacts backend: %s", cfg.Artifacts.Backend)
	}

	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", cfg.Server.Port)
	}

	return nil
}
