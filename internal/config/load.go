package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. SPAREP_DATABASE_URL.
const EnvPrefix = "SPAREP"

// Load configuration from environment variables and an optional config.yaml
// in the working directory. Environment variables take precedence over values
// from the config file.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return decode(v)
}

// LoadFile loads configuration from the YAML file at path, with environment
// variables still taking precedence.
func LoadFile(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return decode(v)
}

func newViper() *viper.Viper {
	v := viper.New()

	v.SetDefault("server.log_level", "info")
	v.SetDefault("srs.desired_retention", 0.9)
	v.SetDefault("srs.min_interval_days", 1)
	v.SetDefault("srs.max_interval_days", 36500)
	v.SetDefault("session.size", 20)
	v.SetDefault("session.shuffle", true)
	v.SetDefault("quota.timezone", "UTC")
	v.SetDefault("quota.free.new_cards_per_day", 10)
	v.SetDefault("quota.free.reviews_per_day", 20)
	v.SetDefault("quota.paid.new_cards_per_day", 0)
	v.SetDefault("quota.paid.reviews_per_day", 0)
	v.SetDefault("quota.admin.new_cards_per_day", 0)
	v.SetDefault("quota.admin.reviews_per_day", 0)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Keys without a default are invisible to Unmarshal unless bound explicitly.
	_ = v.BindEnv("database.url")
	_ = v.BindEnv("srs.weights")

	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}
