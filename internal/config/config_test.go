package config

import (
	"context"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := LoadFrom(context.Background(), envconfig.MapLookuper(map[string]string{}))
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "http://localhost:8080/graphql", cfg.Backend.GraphQLURL)
	assert.Equal(t, ":3000", cfg.Gateway.Addr)
	assert.Empty(t, cfg.Gateway.AllowOrigins)
	assert.Equal(t, 15*time.Minute, cfg.Dev.AccessTokenTTL)
	assert.Equal(t, 168*time.Hour, cfg.Dev.RefreshTokenTTL)
	assert.Empty(t, cfg.Dev.RedisAddress)
	assert.Equal(t, "admin@quill.dev", cfg.Dev.SeedEmail)
}

func TestLoadFrom_Overrides(t *testing.T) {
	cfg, err := LoadFrom(context.Background(), envconfig.MapLookuper(map[string]string{
		"LOG_LEVEL":             "debug",
		"GRAPHQL_URL":           "http://api.test/graphql",
		"GATEWAY_ALLOW_ORIGINS": "http://localhost:5173,https://quill.dev",
		"COOKIE_SECURE":         "true",
		"ACCESS_TOKEN_TTL":      "2m",
		"REDIS_ADDRESS":         "localhost:6379",
	}))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "http://api.test/graphql", cfg.Backend.GraphQLURL)
	assert.Equal(t, []string{"http://localhost:5173", "https://quill.dev"}, cfg.Gateway.AllowOrigins)
	assert.True(t, cfg.Gateway.CookieSecure)
	assert.True(t, cfg.Dev.CookieSecure)
	assert.Equal(t, 2*time.Minute, cfg.Dev.AccessTokenTTL)
	assert.Equal(t, "localhost:6379", cfg.Dev.RedisAddress)
}

func TestLoadFrom_Invalid(t *testing.T) {
	tests := map[string]map[string]string{
		"unparseable duration":        {"ACCESS_TOKEN_TTL": "soon"},
		"refresh shorter than access": {"ACCESS_TOKEN_TTL": "1h", "REFRESH_TOKEN_TTL": "30m"},
	}
	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := LoadFrom(context.Background(), envconfig.MapLookuper(env))
			assert.Error(t, err)
		})
	}
}
