package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// ErrConfiguration wraps every loading or validation failure.
var ErrConfiguration = errors.New("configuration error")

// LoadConfig reads configuration in this order of precedence:
//  1. BOT_* environment variables (e.g. BOT_TELEGRAM_TOKEN)
//  2. the YAML file at path, if it exists
//  3. built-in defaults
func LoadConfig(path string) (*Config, error) {
	startTime := time.Now()

	v := viper.New()
	for key, value := range defaultValues() {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType(configType)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("%w: failed to read config file %s: %v", ErrConfiguration, path, err)
			}
			slog.Info("Configuration file not found, using defaults and environment", "path", path)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrConfiguration, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	slog.Debug("Configuration loaded",
		"path", path,
		"log_level", cfg.Logger.Level,
		"db_path", cfg.Database.Path,
		"suggestion_count", cfg.Suggestions.Count,
		"suggestion_ttl", cfg.Suggestions.TTL,
		"duration_ms", time.Since(startTime).Milliseconds())

	return cfg, nil
}

// Validate checks the struct tags on the whole configuration tree.
func (c *Config) Validate() error {
	return validator.New().Struct(c)
}
