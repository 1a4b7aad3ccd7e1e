package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Store backends
const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMemory   = "memory"
)

// Config holds all configuration for the application
type Config struct {
	TelegramToken  string        `mapstructure:"telegram_token"`
	TelegramChatID int64         `mapstructure:"telegram_chat_id"`
	StoreBackend   string        `mapstructure:"store_backend"`
	DatabaseURL    string        `mapstructure:"database_url"`
	MigrationsPath string        `mapstructure:"migrations_path"`
	RedisURL       string        `mapstructure:"redis_url"`
	RedisNamespace string        `mapstructure:"redis_namespace"`
	LogLevel       string        `mapstructure:"log_level"`
	LogFormat      string        `mapstructure:"log_format"`
	Port           string        `mapstructure:"port"`
	PrometheusPort string        `mapstructure:"prometheus_port"`
	RemoteAPIURL   string        `mapstructure:"remote_api_url"`
	RemoteAPIToken string        `mapstructure:"remote_api_token"`
	RemoteRetries  int           `mapstructure:"remote_api_retries"`
	RemoteTimeout  time.Duration `mapstructure:"remote_api_timeout"`
	CallTimeout    time.Duration `mapstructure:"call_timeout"`
	SyncInterval   time.Duration `mapstructure:"plan_sync_interval"`
	Window         time.Duration `mapstructure:"adherence_window"`
	AlarmTick      time.Duration `mapstructure:"alarm_tick"`
	AlarmRepeats   int           `mapstructure:"alarm_max_repeats"`
	Timezone       string        `mapstructure:"timezone"`
}

var keys = []string{
	"telegram_token", "telegram_chat_id",
	"store_backend", "database_url", "migrations_path", "redis_url", "redis_namespace",
	"log_level", "log_format", "port", "prometheus_port",
	"remote_api_url", "remote_api_token", "remote_api_retries", "remote_api_timeout",
	"call_timeout", "plan_sync_interval", "adherence_window",
	"alarm_tick", "alarm_max_repeats", "timezone",
}

// Load loads configuration from a .env file (if present) and environment variables
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// AutomaticEnv only applies to keys viper already knows about
	for _, k := range keys {
		if err := v.BindEnv(k, strings.ToUpper(k)); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", k, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store_backend", BackendPostgres)
	v.SetDefault("migrations_path", "migrations")
	v.SetDefault("redis_namespace", "dosebot:")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("port", "8080")
	v.SetDefault("prometheus_port", "9090")
	v.SetDefault("remote_api_retries", 3)
	v.SetDefault("remote_api_timeout", 10*time.Second)
	v.SetDefault("call_timeout", 5*time.Second)
	v.SetDefault("plan_sync_interval", 15*time.Minute)
	v.SetDefault("adherence_window", 30*24*time.Hour)
	v.SetDefault("alarm_tick", 30*time.Second)
	v.SetDefault("alarm_max_repeats", 3)
	v.SetDefault("timezone", "Local")
}

// Validate checks required settings for the selected backend
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL environment variable is required for the postgres backend")
		}
	case BackendRedis:
		if c.RedisURL == "" {
			return errors.New("REDIS_URL environment variable is required for the redis backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}

	if c.TelegramToken != "" && c.TelegramChatID == 0 {
		return errors.New("TELEGRAM_CHAT_ID is required when TELEGRAM_TOKEN is set")
	}
	if c.CallTimeout <= 0 {
		return errors.New("CALL_TIMEOUT must be positive")
	}
	if c.SyncInterval <= 0 {
		return errors.New("PLAN_SYNC_INTERVAL must be positive")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves the configured timezone
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}
