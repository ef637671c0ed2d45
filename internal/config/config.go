// Package config loads bunstore configuration from an optional .env
// file and BUNSTORE_-prefixed environment variables.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Prefix is the environment variable prefix for all settings.
const Prefix = "BUNSTORE_"

// Config holds the full bunstore configuration.
type Config struct {
	Store StoreConfig `mapstructure:"store"`
	HTTP  HTTPConfig  `mapstructure:"http"`
	Log   LogConfig   `mapstructure:"log"`
}

// StoreConfig selects and configures the backend.
type StoreConfig struct {
	// URL picks the backend by scheme: postgres://, sqlite://, memory://.
	URL string `mapstructure:"url"`
}

// HTTPConfig configures the HTTP API server.
type HTTPConfig struct {
	Addr  string  `mapstructure:"addr"`
	Rate  float64 `mapstructure:"rate"`  // requests per second per client IP
	Burst int     `mapstructure:"burst"` // rate limiter burst per client IP
}

// LogConfig configures the global logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Source bool   `mapstructure:"source"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Store: StoreConfig{URL: "memory://"},
		HTTP:  HTTPConfig{Addr: ":8080", Rate: 50, Burst: 100},
		Log:   LogConfig{Level: "INFO", Format: "text"},
	}
}

// Load reads configuration on top of Default. A .env file in the
// working directory is read first if present, then BUNSTORE_ env vars.
// BUNSTORE_STORE_URL maps to store.url, BUNSTORE_HTTP_ADDR to
// http.addr, and so on.
func Load() (Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("read .env: %w", err)
			}
		}
	}

	// AutomaticEnv does not surface keys that only exist as env vars,
	// so populate viper from the environment explicitly.
	for _, envStr := range os.Environ() {
		pair := strings.SplitN(envStr, "=", 2)
		key, value := pair[0], pair[1]
		if !strings.HasPrefix(key, Prefix) {
			continue
		}
		propKey := strings.TrimPrefix(key, Prefix)
		propKey = strings.ToLower(strings.ReplaceAll(propKey, "_", "."))
		v.Set(propKey, value)
	}

	cfg := Default()
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}
