// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	LogLevel string `mapstructure:"LOG_LEVEL"`
	DBURL    string `mapstructure:"DB_URL"`
	HTTPAddr string `mapstructure:"HTTP_ADDR"`

	GithubClientID          string  `mapstructure:"GITHUB_CLIENT_ID"`
	GithubClientSecret      string  `mapstructure:"GITHUB_CLIENT_SECRET"`
	GithubRedirectURI       string  `mapstructure:"GITHUB_REDIRECT_URI"`
	GithubAPIURL            string  `mapstructure:"GITHUB_API_URL"`
	GithubRequestsPerSecond float64 `mapstructure:"GITHUB_REQUESTS_PER_SECOND"`

	SyncPageSize        int           `mapstructure:"SYNC_PAGE_SIZE"`
	SyncMaxRetries      int           `mapstructure:"SYNC_MAX_RETRIES"`
	SyncRepoConcurrency int           `mapstructure:"SYNC_REPO_CONCURRENCY"`
	SyncInterval        time.Duration `mapstructure:"SYNC_INTERVAL"`

	OtelEnabled bool `mapstructure:"OTEL_ENABLED"`
	OtelStdout  bool `mapstructure:"OTEL_STDOUT"`
}

// SetDefaults registers the default of every key. Unmarshal only sees
// environment variables for keys viper already knows, so every key gets one.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_URL", "")
	v.SetDefault("HTTP_ADDR", ":8000")
	v.SetDefault("GITHUB_CLIENT_ID", "")
	v.SetDefault("GITHUB_CLIENT_SECRET", "")
	v.SetDefault("GITHUB_REDIRECT_URI", "http://localhost:8000/auth/github/callback")
	v.SetDefault("GITHUB_API_URL", "")
	v.SetDefault("GITHUB_REQUESTS_PER_SECOND", 0)
	v.SetDefault("SYNC_PAGE_SIZE", 100)
	v.SetDefault("SYNC_MAX_RETRIES", 3)
	v.SetDefault("SYNC_REPO_CONCURRENCY", 1)
	v.SetDefault("SYNC_INTERVAL", "0s")
	v.SetDefault("OTEL_ENABLED", false)
	v.SetDefault("OTEL_STDOUT", false)
}

// LoadConfig reads configuration from the .env file and environment variables
// through the global viper instance, which also carries the CLI flag bindings.
func LoadConfig() (*Config, error) {
	return Load(viper.GetViper())
}

// Load reads and validates configuration from v.
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	// Load from .env file if it exists
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // Ignore error if file not found

	// Bind environment variables
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.DBURL == "" {
		return errors.New("DB_URL is a required configuration field")
	}
	if c.SyncPageSize < 1 || c.SyncPageSize > 100 {
		return fmt.Errorf("SYNC_PAGE_SIZE must be between 1 and 100, got %d", c.SyncPageSize)
	}
	if c.SyncMaxRetries < 0 {
		return fmt.Errorf("SYNC_MAX_RETRIES must not be negative, got %d", c.SyncMaxRetries)
	}
	if c.SyncRepoConcurrency < 1 {
		return fmt.Errorf("SYNC_REPO_CONCURRENCY must be at least 1, got %d", c.SyncRepoConcurrency)
	}
	if c.SyncInterval < 0 {
		return fmt.Errorf("SYNC_INTERVAL must not be negative, got %s", c.SyncInterval)
	}
	if c.GithubRequestsPerSecond < 0 {
		return fmt.Errorf("GITHUB_REQUESTS_PER_SECOND must not be negative, got %v", c.GithubRequestsPerSecond)
	}
	return nil
}

// ValidateOAuth checks the settings only the HTTP server needs.
func (c *Config) ValidateOAuth() error {
	if c.GithubClientID == "" || c.GithubClientSecret == "" {
		return errors.New("GITHUB_CLIENT_ID and GITHUB_CLIENT_SECRET are required to serve the API")
	}
	if c.GithubRedirectURI == "" {
		return errors.New("GITHUB_REDIRECT_URI is a required configuration field")
	}
	return nil
}
