// Package config loads and validates archiver configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Source    SourceConfig    `mapstructure:"source"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	DB        DBConfig        `mapstructure:"db"`
	Telegraph TelegraphConfig `mapstructure:"telegraph"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// SourceConfig configures the authenticated source-site session.
type SourceConfig struct {
	BaseURL        string            `mapstructure:"base_url"`
	Cookie         string            `mapstructure:"cookie"`
	UserAgent      string            `mapstructure:"user_agent"`
	TimeoutSeconds int               `mapstructure:"timeout_seconds"`
	DelayMs        int               `mapstructure:"delay_ms"`
	Search         map[string]string `mapstructure:"search"`
}

// PipelineConfig governs the media pipeline worker pool.
type PipelineConfig struct {
	Workers int `mapstructure:"workers"`
}

// SchedulerConfig controls sweep and refresh rounds.
type SchedulerConfig struct {
	MaxPerSweep          int `mapstructure:"max_per_sweep"`
	PaceSeconds          int `mapstructure:"pace_seconds"`
	SweepIntervalMinutes int `mapstructure:"sweep_interval_minutes"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN     string `mapstructure:"dsn"`
	Migrate bool   `mapstructure:"migrate"`
}

// TelegraphConfig holds the article host credentials.
type TelegraphConfig struct {
	AccessToken string `mapstructure:"access_token"`
	AuthorName  string `mapstructure:"author_name"`
	AuthorURL   string `mapstructure:"author_url"`
}

// TelegramConfig binds the announcer bot to its channel.
type TelegramConfig struct {
	Token   string `mapstructure:"token"`
	Channel string `mapstructure:"channel"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("GALARC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("source.base_url", "https://exhentai.org")
	v.SetDefault("source.user_agent", "Mozilla/5.0 (X11; Linux x86_64; rv:109.0) Gecko/20100101 Firefox/115.0")
	v.SetDefault("source.timeout_seconds", 15)
	v.SetDefault("source.delay_ms", 1000)
	v.SetDefault("pipeline.workers", 4)
	v.SetDefault("scheduler.max_per_sweep", 50)
	v.SetDefault("scheduler.pace_seconds", 1)
	v.SetDefault("scheduler.sweep_interval_minutes", 60)
	v.SetDefault("db.migrate", true)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Source.Cookie == "" {
		return fmt.Errorf("source.cookie must be set")
	}
	if c.Source.TimeoutSeconds <= 0 {
		return fmt.Errorf("source.timeout_seconds must be > 0")
	}
	if c.Pipeline.Workers <= 0 {
		return fmt.Errorf("pipeline.workers must be > 0")
	}
	if c.DB.DSN == "" {
		return fmt.Errorf("db.dsn must be set")
	}
	if c.Telegram.Token == "" || c.Telegram.Channel == "" {
		return fmt.Errorf("telegram.token and telegram.channel must be set")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}

// SourceTimeout converts the source timeout into a duration.
func (c Config) SourceTimeout() time.Duration {
	return time.Duration(c.Source.TimeoutSeconds) * time.Second
}

// SourceDelay converts the politeness delay into a duration.
func (c Config) SourceDelay() time.Duration {
	return time.Duration(c.Source.DelayMs) * time.Millisecond
}

// SweepInterval converts the round spacing into a duration.
func (c Config) SweepInterval() time.Duration {
	return time.Duration(c.Scheduler.SweepIntervalMinutes) * time.Minute
}
