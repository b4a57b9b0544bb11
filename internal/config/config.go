package config

import (
	"context"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

// Config holds all configuration for the application
type Config struct {
	// Logging Configuration
	Logging LoggingConfig

	// Upstream GraphQL API used by the CLI and the gateway
	Backend BackendConfig

	// Auth gateway Configuration
	Gateway GatewayConfig

	// Development backend Configuration
	Dev DevConfig
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL, default=info"`
	Format string `env:"LOG_FORMAT, default=json"` // json, console
}

// BackendConfig holds the upstream GraphQL endpoint
type BackendConfig struct {
	GraphQLURL string `env:"GRAPHQL_URL, default=http://localhost:8080/graphql"`
}

// GatewayConfig holds the auth gateway configuration
type GatewayConfig struct {
	Addr         string   `env:"GATEWAY_ADDR, default=:3000"`
	AllowOrigins []string `env:"GATEWAY_ALLOW_ORIGINS"`
	CookieSecure bool     `env:"COOKIE_SECURE, default=false"`
}

// DevConfig holds the development backend configuration
type DevConfig struct {
	Addr            string        `env:"DEV_ADDR, default=:8080"`
	DatabaseURL     string        `env:"DATABASE_URL, default=quill.sqlite"`
	JWTSecret       string        `env:"JWT_SECRET, default=quill-dev-secret"`
	AccessTokenTTL  time.Duration `env:"ACCESS_TOKEN_TTL, default=15m"`
	RefreshTokenTTL time.Duration `env:"REFRESH_TOKEN_TTL, default=168h"`
	RedisAddress    string        `env:"REDIS_ADDRESS"` // empty keeps refresh tokens in the database
	CookieSecure    bool          `env:"COOKIE_SECURE, default=false"`

	SeedEmail    string `env:"SEED_EMAIL, default=admin@quill.dev"`
	SeedPassword string `env:"SEED_PASSWORD, default=changeme"`
	SeedName     string `env:"SEED_NAME, default=Quill Admin"`
}

// Load loads configuration from .env files and environment variables
func Load() (*Config, error) {
	// Load .env files (fails silently if files don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	return LoadFrom(context.Background(), envconfig.OsLookuper())
}

// LoadFrom fills the configuration from the given lookuper
func LoadFrom(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if cfg.Dev.AccessTokenTTL <= 0 {
		return nil, fmt.Errorf("ACCESS_TOKEN_TTL must be positive")
	}
	if cfg.Dev.RefreshTokenTTL <= cfg.Dev.AccessTokenTTL {
		return nil, fmt.Errorf("REFRESH_TOKEN_TTL must be longer than ACCESS_TOKEN_TTL")
	}

	return &cfg, nil
}
