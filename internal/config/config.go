package config

import "github.com/smibbs/sparep/internal/domain/srs"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Database DatabaseConfig `mapstructure:"database"`
	SRS      SRSConfig      `mapstructure:"srs" validate:"required"`
	Session  SessionConfig  `mapstructure:"session" validate:"required"`
	Quota    QuotaConfig    `mapstructure:"quota" validate:"required"`
}

// ServerConfig contains process-wide settings.
type ServerConfig struct {
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
// The URL is optional for library use with the in-memory store; cmd/migrate
// requires it.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"omitempty,url"`
}

// SRSConfig holds the memory model parameters. Empty or zero values keep the
// model defaults.
type SRSConfig struct {
	Weights          []float64 `mapstructure:"weights" validate:"omitempty,len=19"`
	DesiredRetention float64   `mapstructure:"desired_retention" validate:"gt=0,lt=1"`
	MinIntervalDays  int       `mapstructure:"min_interval_days" validate:"gte=1"`
	MaxIntervalDays  int       `mapstructure:"max_interval_days" validate:"gtefield=MinIntervalDays"`
}

// ParamsConfig converts the section into the memory model's parameter overrides.
func (c SRSConfig) ParamsConfig() srs.ParamsConfig {
	return srs.ParamsConfig{
		Weights:          c.Weights,
		DesiredRetention: c.DesiredRetention,
		MinIntervalDays:  c.MinIntervalDays,
		MaxIntervalDays:  c.MaxIntervalDays,
	}
}

// SessionConfig controls how study sessions are built.
type SessionConfig struct {
	Size    int  `mapstructure:"size" validate:"gte=1,lte=1000"`
	Shuffle bool `mapstructure:"shuffle"`
}

// QuotaConfig holds the per-tier daily limits and the timezone their day
// boundary is computed in.
type QuotaConfig struct {
	Timezone string     `mapstructure:"timezone" validate:"required"`
	Free     TierLimits `mapstructure:"free"`
	Paid     TierLimits `mapstructure:"paid"`
	Admin    TierLimits `mapstructure:"admin"`
}

// TierLimits are the daily caps of one tier; 0 means unlimited.
type TierLimits struct {
	NewCardsPerDay int `mapstructure:"new_cards_per_day" validate:"gte=0"`
	ReviewsPerDay  int `mapstructure:"reviews_per_day" validate:"gte=0"`
}
