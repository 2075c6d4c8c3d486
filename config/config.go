package config

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Steam    SteamConfig    `yaml:"steam"`
	Poller   PollerConfig   `yaml:"poller"`
	Push     PushConfig     `yaml:"push"`
	Triggers TriggerConfig  `yaml:"triggers"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int     `yaml:"port" env:"SERVER_PORT,overwrite"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"`
	DSN                    string `yaml:"dsn" env:"DATABASE_DSN,overwrite"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// SteamConfig configures the storefront price lookup.
type SteamConfig struct {
	BaseURL           string        `yaml:"base_url"`
	CountryCode       string        `yaml:"country_code"`
	Currency          string        `yaml:"currency"`
	CurrencySymbol    string        `yaml:"currency_symbol"`
	TimeoutSeconds    int           `yaml:"timeout_seconds"`
	Timeout           time.Duration `yaml:"-"`
	HTTPProxy         string        `yaml:"http_proxy" env:"STEAM_HTTP_PROXY,overwrite"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
}

// PollerConfig holds the price poller schedule.
type PollerConfig struct {
	Enabled         bool          `yaml:"enabled"`
	IntervalSeconds int           `yaml:"interval_seconds"`
	Interval        time.Duration `yaml:"-"`
	RunOnStart      bool          `yaml:"run_on_start"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey   string `yaml:"vapid_public_key" env:"VAPID_PUBLIC_KEY,overwrite"`
	PrivateKey  string `yaml:"vapid_private_key" env:"VAPID_PRIVATE_KEY,overwrite"`
	Subject     string `yaml:"subject"`
	TTL         int    `yaml:"ttl"`
	Concurrency int    `yaml:"concurrency"`
}

// TriggerConfig sizes the pool that runs document write triggers.
type TriggerConfig struct {
	Workers                  int           `yaml:"workers"`
	InvocationTimeoutSeconds int           `yaml:"invocation_timeout_seconds"`
	InvocationTimeout        time.Duration `yaml:"-"`
}

// LogConfig selects the log level.
type LogConfig struct {
	Level string `yaml:"level" env:"LOG_LEVEL,overwrite"`
}

// Load reads the configuration from the given path, applies environment
// overrides and fills in defaults.
func Load(ctx context.Context, path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 300
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}

	if cfg.Steam.BaseURL == "" {
		cfg.Steam.BaseURL = "https://store.steampowered.com/api"
	}
	if cfg.Steam.CountryCode == "" {
		cfg.Steam.CountryCode = "au"
	}
	if cfg.Steam.Currency == "" {
		cfg.Steam.Currency = "AUD"
	}
	if cfg.Steam.CurrencySymbol == "" {
		cfg.Steam.CurrencySymbol = "A$"
	}
	if cfg.Steam.TimeoutSeconds <= 0 {
		cfg.Steam.TimeoutSeconds = 30
	}
	cfg.Steam.Timeout = time.Duration(cfg.Steam.TimeoutSeconds) * time.Second
	if cfg.Steam.RequestsPerSecond <= 0 {
		cfg.Steam.RequestsPerSecond = 1
	}

	// Two hours between polls unless told otherwise.
	if cfg.Poller.IntervalSeconds <= 0 {
		cfg.Poller.IntervalSeconds = 7200
	}
	cfg.Poller.Interval = time.Duration(cfg.Poller.IntervalSeconds) * time.Second

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}
	if cfg.Push.Concurrency <= 0 {
		cfg.Push.Concurrency = 8
	}

	if cfg.Triggers.Workers <= 0 {
		cfg.Triggers.Workers = 4
	}
	if cfg.Triggers.InvocationTimeoutSeconds <= 0 {
		cfg.Triggers.InvocationTimeoutSeconds = 60
	}
	cfg.Triggers.InvocationTimeout = time.Duration(cfg.Triggers.InvocationTimeoutSeconds) * time.Second

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}
