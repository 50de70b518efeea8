// Package config loads and validates application configuration from YAML files
// and environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// TokenKey is the name of the persisted session flag checked at logout.
const TokenKey = "crm_token"

// Config is the root application configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	API           APIConfig           `yaml:"api"`
	Cache         CacheConfig         `yaml:"cache"`
	Assets        AssetsConfig        `yaml:"assets"`
	Navigation    NavigationConfig    `yaml:"navigation"`
	Stats         StatsConfig         `yaml:"stats"`
	Session       SessionConfig       `yaml:"session"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig describes HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	HandlerTimeout  time.Duration `yaml:"handler_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// APIConfig describes the remote CRM API.
type APIConfig struct {
	BaseURL        string               `yaml:"base_url"`
	Timeout        time.Duration        `yaml:"timeout"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	Retry          RetryConfig          `yaml:"retry"`
}

// CircuitBreakerConfig describes circuit breaker settings for the CRM API.
type CircuitBreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	SuccessThreshold int           `yaml:"success_threshold"`
	Timeout          time.Duration `yaml:"timeout"`
}

// RetryConfig describes retry settings for idempotent reads. MaxAttempts of
// 1 disables retries.
type RetryConfig struct {
	MaxAttempts       int           `yaml:"max_attempts"`
	BackoffInitial    time.Duration `yaml:"backoff_initial"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
	BackoffMax        time.Duration `yaml:"backoff_max"`
}

// CacheConfig describes the response cache.
type CacheConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

// AssetsConfig describes where page markup and stylesheets come from.
// BaseURL takes precedence over Dir when both are set.
type AssetsConfig struct {
	Dir     string `yaml:"dir"`
	BaseURL string `yaml:"base_url"`
}

// NavigationConfig describes the page router.
type NavigationConfig struct {
	HistoryCapacity int    `yaml:"history_capacity"`
	StartPage       string `yaml:"start_page"`
}

// StatsConfig describes the dashboard statistics.
type StatsConfig struct {
	ProfitMargin float64       `yaml:"profit_margin"`
	Window       time.Duration `yaml:"window"`
	RecentLimit  int           `yaml:"recent_limit"`
	ChartMonths  int           `yaml:"chart_months"`
}

// SessionConfig describes per-browser application state and the persisted
// session flag.
type SessionConfig struct {
	IdleTTL       time.Duration      `yaml:"idle_ttl"`
	SweepInterval time.Duration      `yaml:"sweep_interval"`
	CookieName    string             `yaml:"cookie_name"`
	TokenKey      string             `yaml:"token_key"`
	Store         SessionStoreConfig `yaml:"store"`
}

// SessionStoreConfig describes token flag persistence.
type SessionStoreConfig struct {
	Driver  string `yaml:"driver"`
	AddrEnv string `yaml:"addr_env"`
	DB      int    `yaml:"db"`
}

// ObservabilityConfig describes logging, tracing, and metrics settings.
type ObservabilityConfig struct {
	LogLevel string        `yaml:"log_level"`
	Tracing  TracingConfig `yaml:"tracing"`
	Metrics  MetricsConfig `yaml:"metrics"`
}

// TracingConfig describes distributed tracing settings.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
}

// MetricsConfig describes Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Defaults returns a Config with sensible default values.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			HandlerTimeout:  25 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		API: APIConfig{
			BaseURL: "http://localhost:3000",
			Timeout: 10 * time.Second,
			CircuitBreaker: CircuitBreakerConfig{
				FailureThreshold: 5,
				SuccessThreshold: 2,
				Timeout:          30 * time.Second,
			},
			Retry: RetryConfig{
				MaxAttempts:       1,
				BackoffInitial:    100 * time.Millisecond,
				BackoffMultiplier: 2,
				BackoffMax:        2 * time.Second,
			},
		},
		Cache: CacheConfig{
			TTL: 30 * time.Second,
		},
		Assets: AssetsConfig{
			Dir: "web",
		},
		Navigation: NavigationConfig{
			HistoryCapacity: 10,
			StartPage:       "dashboard",
		},
		Stats: StatsConfig{
			ProfitMargin: 0.3,
			Window:       30 * 24 * time.Hour,
			RecentLimit:  10,
			ChartMonths:  6,
		},
		Session: SessionConfig{
			IdleTTL:       30 * time.Minute,
			SweepInterval: time.Minute,
			CookieName:    "crm_session",
			TokenKey:      TokenKey,
			Store: SessionStoreConfig{
				Driver:  "memory",
				AddrEnv: "CRMDESK_REDIS_ADDR",
			},
		},
		Observability: ObservabilityConfig{
			LogLevel: "info",
			Tracing: TracingConfig{
				Exporter:     "otlp",
				SamplingRate: 0.1,
			},
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
	}
}

// Load reads a YAML config file, applies environment variable overrides,
// and validates required fields. A missing file is not an error: defaults
// and environment overrides still apply.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required fields are present and valid.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}
	if u, err := url.Parse(c.API.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, "api.base_url must be an absolute URL")
	}
	if c.Cache.TTL <= 0 {
		errs = append(errs, "cache.ttl must be positive")
	}
	if c.Navigation.HistoryCapacity < 1 {
		errs = append(errs, "navigation.history_capacity must be at least 1")
	}
	if c.Stats.ProfitMargin < 0 || c.Stats.ProfitMargin > 1 {
		errs = append(errs, "stats.profit_margin must be between 0 and 1")
	}
	if c.Stats.Window <= 0 {
		errs = append(errs, "stats.window must be positive")
	}
	switch c.Session.Store.Driver {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Sprintf("session.store.driver %q is not supported (memory, redis)", c.Session.Store.Driver))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// applyEnvOverrides reads CRMDESK_* environment variables and overrides config
// values. Only the most commonly overridden fields are supported.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CRMDESK_SERVER_PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("CRMDESK_API_BASE_URL"); v != "" {
		cfg.API.BaseURL = v
	}
	if v := os.Getenv("CRMDESK_ASSETS_DIR"); v != "" {
		cfg.Assets.Dir = v
	}
	if v := os.Getenv("CRMDESK_ASSETS_BASE_URL"); v != "" {
		cfg.Assets.BaseURL = v
	}
	if v := os.Getenv("CRMDESK_STATS_PROFIT_MARGIN"); v != "" {
		var margin float64
		if _, err := fmt.Sscanf(v, "%g", &margin); err == nil {
			cfg.Stats.ProfitMargin = margin
		}
	}
	if v := os.Getenv("CRMDESK_SESSION_STORE_DRIVER"); v != "" {
		cfg.Session.Store.Driver = v
	}
	if v := os.Getenv("CRMDESK_OBSERVABILITY_LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}
}
