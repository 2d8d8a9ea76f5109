package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("RD_API_APP_NAME", "Reference Data API")
	t.Setenv("RD_API_APP_VERSION", "1.0.0")
	t.Setenv("RD_API_TOKEN_HASH", "$2a$10$abcdefghijklmnopqrstuv")
	t.Setenv("RD_API_SERVER_PORT", "3007")
	t.Setenv("RD_API_SERVER_LOG_LEVEL", "info")
	t.Setenv("RD_API_PG_DSN", "host=localhost user=refdata dbname=refdata")
	t.Setenv("RD_API_PG_LOG_LEVEL", "warn")
	t.Setenv("RD_API_REDIS_HOST", "localhost")
	t.Setenv("RD_API_REDIS_PORT", "6379")
	t.Setenv("RD_API_LEI_REGISTRY_URL", "https://registry.example.com")
}

func TestLoadFromEnv(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("RD_API_LEI_CACHE_TTL_MINS", "120")

	cfg := &Config{}
	require.NoError(t, cfg.loadFromEnv())
	assert.Equal(t, "Reference Data API", cfg.APIName)
	assert.Equal(t, "3007", cfg.ServerPort)
	assert.Equal(t, "120", cfg.RegistryCacheTTLMins)
	// optional fields default to empty
	assert.Empty(t, cfg.RedisPassword)
}

func TestLoadFromEnvMissingRequired(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("RD_API_PG_DSN", "")

	cfg := &Config{}
	err := cfg.loadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RD_API_PG_DSN")
}

func TestStringMasksSensitiveFields(t *testing.T) {
	setRequiredEnv(t)

	cfg := &Config{}
	require.NoError(t, cfg.loadFromEnv())

	out := cfg.String()
	assert.NotContains(t, out, "host=localhost user=refdata dbname=refdata")
	assert.NotContains(t, out, "$2a$10$abcdefghijklmnopqrstuv")
	assert.True(t, strings.Contains(out, "*******"))
}
