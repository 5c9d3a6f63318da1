// Package config holds runtime configuration for a magnetar session.
package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config is populated from .magnetar.yaml, MAGNETAR_* env vars, and CLI
// flags, in increasing order of precedence.
type Config struct {
	BuildDir        string        `mapstructure:"build_dir"`
	ClaimExpiry     time.Duration `mapstructure:"claim_expiry"`
	ProgressTimeout time.Duration `mapstructure:"progress_timeout"`
	MaxRetries      int           `mapstructure:"max_retries"`
	SweepInterval   time.Duration `mapstructure:"sweep_interval"`
	JournalPath     string        `mapstructure:"journal_path"`
	JournalDB       string        `mapstructure:"journal_db"`
	Inbox           string        `mapstructure:"inbox"`
	Outbox          string        `mapstructure:"outbox"`
	Verbose         bool          `mapstructure:"verbose"`
}

// Load reads configuration from viper, applying built-in defaults for any
// values not set by config file, environment, or flags.
func Load() Config {
	viper.SetDefault("build_dir", ".")
	viper.SetDefault("claim_expiry", 2*time.Minute)
	viper.SetDefault("progress_timeout", 10*time.Minute)
	viper.SetDefault("max_retries", 3)
	viper.SetDefault("sweep_interval", 15*time.Second)
	viper.SetDefault("journal_path", "")
	viper.SetDefault("journal_db", "")
	viper.SetDefault("inbox", "")
	viper.SetDefault("outbox", "")
	viper.SetDefault("verbose", false)

	var cfg Config
	_ = viper.Unmarshal(&cfg)
	return cfg
}
