// Package config loads service settings from the environment and an optional .env file.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port           string        `mapstructure:"PORT"`
	Env            string        `mapstructure:"ENV"`
	LogLevel       string        `mapstructure:"LOG_LEVEL"`
	BackendURL     string        `mapstructure:"BACKEND_URL"`
	BackendTimeout time.Duration `mapstructure:"BACKEND_TIMEOUT"`
	SessionTTL     time.Duration `mapstructure:"SESSION_TTL"`
	DraftTTL       time.Duration `mapstructure:"DRAFT_TTL"`
	ShareWorkers   int           `mapstructure:"SHARE_WORKERS"`
	CORSOrigins    []string      `mapstructure:"CORS_ORIGINS"`
	DatabaseURL    string        `mapstructure:"DATABASE_URL"`
	KafkaBrokers   []string      `mapstructure:"KAFKA_BROKERS"`
	OTLPEndpoint   string        `mapstructure:"OTLP_ENDPOINT"`
	MockAPIPort    string        `mapstructure:"MOCK_API_PORT"`
	MockAPIKey     string        `mapstructure:"MOCK_API_SIGNING_KEY"`
}

var keys = []string{
	"PORT", "ENV", "LOG_LEVEL", "BACKEND_URL", "BACKEND_TIMEOUT", "SESSION_TTL",
	"DRAFT_TTL", "SHARE_WORKERS", "CORS_ORIGINS", "DATABASE_URL", "KAFKA_BROKERS",
	"OTLP_ENDPOINT", "MOCK_API_PORT", "MOCK_API_SIGNING_KEY",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("BACKEND_URL", "https://68866870f52d34140f6c26f9.mockapi.io/projects/automedic/api")
	v.SetDefault("BACKEND_TIMEOUT", "10s")
	v.SetDefault("SESSION_TTL", "168h")
	v.SetDefault("DRAFT_TTL", "12h")
	v.SetDefault("SHARE_WORKERS", 4)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("KAFKA_BROKERS", "localhost:9092")
	v.SetDefault("MOCK_API_PORT", "8090")
	v.SetDefault("MOCK_API_SIGNING_KEY", "clinic-mock-api-dev-key")

	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// A missing .env is fine.
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.CORSOrigins = splitList(cfg.CORSOrigins)
	cfg.KafkaBrokers = splitList(cfg.KafkaBrokers)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// splitList flattens comma-separated entries and drops blanks.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// SecureCookies reports whether session cookies carry the Secure flag.
func (c *Config) SecureCookies() bool {
	return c.IsProduction()
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	u, err := url.Parse(c.BackendURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("BACKEND_URL must be an absolute URL, got %q", c.BackendURL)
	}
	if c.BackendTimeout <= 0 {
		return fmt.Errorf("BACKEND_TIMEOUT must be positive, got %s", c.BackendTimeout)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive, got %s", c.SessionTTL)
	}
	if c.DraftTTL <= 0 {
		return fmt.Errorf("DRAFT_TTL must be positive, got %s", c.DraftTTL)
	}
	if c.ShareWorkers < 1 {
		return fmt.Errorf("SHARE_WORKERS must be at least 1, got %d", c.ShareWorkers)
	}
	if c.IsProduction() && c.MockAPIKey == "clinic-mock-api-dev-key" && c.BackendURLIsLocal() {
		return fmt.Errorf("MOCK_API_SIGNING_KEY must be changed in production")
	}
	return nil
}

// BackendURLIsLocal reports whether the backend is on this machine.
func (c *Config) BackendURLIsLocal() bool {
	u, err := url.Parse(c.BackendURL)
	if err != nil {
		return false
	}
	h := u.Hostname()
	return h == "localhost" || h == "127.0.0.1" || h == "::1"
}
