// Copyright (c) 2026 Veriscore. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package config handles application-wide settings and environment parsing.

It leverages 'caarlos0/env' to map OS environment variables into a strongly-typed
Go struct, providing early validation and default values.

Usage:

	cfg, err := config.Load()
	if err != nil {
	    log.Fatal(err)
	}

Architecture:

  - Immutability: Once loaded, configuration is read-only.
  - DI-Friendly: Passed to core components (DB, Redis) via constructors.
  - Zero Hidden State: No global variables are used to store config.

This ensures the application is Twelve-Factor compliant by storing config in the env.
*/
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// # Configuration Schema

// Config holds all runtime configuration for the Veriscore API server.
type Config struct {

	// Server settings
	ServerPort  string `env:"SERVER_PORT"  envDefault:"8080"`
	Environment string `env:"ENVIRONMENT"  envDefault:"development"`
	Debug       bool   `env:"DEBUG"        envDefault:"false"`

	// Relational Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required"`

	// MigrationPath is the filesystem path to the SQL migrations directory.
	MigrationPath string `env:"MIGRATION_PATH" envDefault:"./data/migrations"`

	// Key-Value Cache (Redis). Optional: only required when the distributed
	// nonce store backend is selected.
	RedisURL string `env:"REDIS_URL"`

	// NonceStoreBackend selects "memory" (single instance) or "redis".
	NonceStoreBackend string `env:"NONCE_STORE_BACKEND" envDefault:"memory"`

	// Symmetric signing secrets. Access and refresh tokens use distinct
	// secrets so a leak of one cannot forge the other.
	JWTSecretAccess  string `env:"JWT_SECRET_ACCESS,required"`
	JWTSecretRefresh string `env:"JWT_SECRET_REFRESH,required"`

	// Token lifetimes. The refresh lifetime is clamped to a 30-day hard cap
	// by the token service regardless of what is configured here.
	AccessTokenTTL  time.Duration `env:"ACCESS_TOKEN_TTL"  envDefault:"15m"`
	RefreshTokenTTL time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"168h"`

	// TokenSweepInterval is the cadence of the expired-token purge.
	TokenSweepInterval time.Duration `env:"TOKEN_SWEEP_INTERVAL" envDefault:"1h"`

	// IPBindingMode controls how strictly tokens are bound to the network
	// origin they were issued to: "exact", "subnet", or "disabled".
	IPBindingMode string `env:"IP_BINDING_MODE" envDefault:"exact"`

	// FingerprintBinding additionally binds tokens to a device fingerprint.
	FingerprintBinding bool `env:"FINGERPRINT_BINDING" envDefault:"true"`

	// ClientDomain is the domain embedded in wallet challenge messages and
	// required back on login (EIP-4361 style anti-phishing binding).
	ClientDomain string `env:"CLIENT_DOMAIN,required"`

	// Wallet challenge window
	NonceTTL           time.Duration `env:"NONCE_TTL"            envDefault:"5m"`
	NonceSweepInterval time.Duration `env:"NONCE_SWEEP_INTERVAL" envDefault:"1m"`
	SignatureMaxAge    time.Duration `env:"SIGNATURE_MAX_AGE"    envDefault:"15m"`

	// ScoringProfile selects "weighted" (per-category weights) or "simple"
	// (straight sum). The two are mutually exclusive, never composed.
	ScoringProfile string `env:"SCORING_PROFILE" envDefault:"weighted"`

	// GithubAccessToken authorizes the optional GitHub activity enrichment.
	// Empty disables the enrichment entirely.
	GithubAccessToken string `env:"GITHUB_ACCESS_TOKEN"`

	// TelegramBotToken verifies Telegram login payloads. Empty disables the
	// telegram social provider.
	TelegramBotToken string `env:"TELEGRAM_BOT_TOKEN"`

	// Cross-Origin Resource Sharing
	ExtraOrigins string `env:"EXTRA_ORIGINS"`
}

// # Configuration Loading

// Load parses environment variables into a [Config] struct.
func Load() (*Config, error) {

	// Initialize an empty config struct
	cfg := &Config{}

	// Use the 'env' package to map environment variables to struct fields.
	// This will fail if any field marked with 'required' is missing.
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse environment variables: %w", err)
	}

	if cfg.NonceStoreBackend == "redis" && cfg.RedisURL == "" {
		return nil, fmt.Errorf("config: NONCE_STORE_BACKEND=redis requires REDIS_URL")
	}

	return cfg, nil
}

// IsDevelopment reports whether the server is running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction reports whether the server is running in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// AllowedOrigins returns the extra origins permitted by CORS in production.
func (c *Config) AllowedOrigins() []string {
	if strings.TrimSpace(c.ExtraOrigins) == "" {
		return nil
	}
	origins := strings.Split(c.ExtraOrigins, ",")
	for index := range origins {
		origins[index] = strings.TrimSpace(origins[index])
	}
	return origins
}
