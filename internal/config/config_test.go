// internal/config/config_test.go
package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DB_URL", "postgres://localhost/github")

	cfg, err := Load(viper.New())

	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, ":8000", cfg.HTTPAddr)
	assert.Equal(t, "http://localhost:8000/auth/github/callback", cfg.GithubRedirectURI)
	assert.Equal(t, 100, cfg.SyncPageSize)
	assert.Equal(t, 3, cfg.SyncMaxRetries)
	assert.Equal(t, 1, cfg.SyncRepoConcurrency)
	assert.Zero(t, cfg.SyncInterval)
	assert.False(t, cfg.OtelEnabled)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("DB_URL", "postgres://localhost/github")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("GITHUB_API_URL", "https://ghe.example.com/api/v3")
	t.Setenv("GITHUB_REQUESTS_PER_SECOND", "2.5")
	t.Setenv("SYNC_PAGE_SIZE", "50")
	t.Setenv("SYNC_REPO_CONCURRENCY", "4")
	t.Setenv("SYNC_INTERVAL", "30m")
	t.Setenv("OTEL_ENABLED", "true")

	cfg, err := Load(viper.New())

	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "https://ghe.example.com/api/v3", cfg.GithubAPIURL)
	assert.Equal(t, 2.5, cfg.GithubRequestsPerSecond)
	assert.Equal(t, 50, cfg.SyncPageSize)
	assert.Equal(t, 4, cfg.SyncRepoConcurrency)
	assert.Equal(t, 30*time.Minute, cfg.SyncInterval)
	assert.True(t, cfg.OtelEnabled)
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "missing database URL", env: map[string]string{"DB_URL": ""}},
		{name: "page size above the API maximum", env: map[string]string{"SYNC_PAGE_SIZE": "101"}},
		{name: "zero page size", env: map[string]string{"SYNC_PAGE_SIZE": "0"}},
		{name: "negative retries", env: map[string]string{"SYNC_MAX_RETRIES": "-1"}},
		{name: "zero repository concurrency", env: map[string]string{"SYNC_REPO_CONCURRENCY": "0"}},
		{name: "negative rate", env: map[string]string{"GITHUB_REQUESTS_PER_SECOND": "-1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DB_URL", "postgres://localhost/github")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load(viper.New())

			assert.Error(t, err)
		})
	}
}

func TestConfig_ValidateOAuth(t *testing.T) {
	cfg := &Config{GithubRedirectURI: "http://localhost:8000/auth/github/callback"}
	assert.Error(t, cfg.ValidateOAuth())

	cfg.GithubClientID = "id"
	cfg.GithubClientSecret = "secret"
	assert.NoError(t, cfg.ValidateOAuth())
}
