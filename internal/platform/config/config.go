// Copyright (c) 2026 Pixveil. All rights reserved.
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

	"github.com/caarlos0/env/v11"
)

// Token store backends selectable via TOKEN_STORE.
const (
	TokenStoreMemory = "memory"
	TokenStoreRedis  = "redis"
)

// # Configuration Schema

// Config holds all runtime configuration for the Pixveil API server.
type Config struct {

	// Server settings
	ServerPort  string `env:"SERVER_PORT"  envDefault:"8080"`
	Environment string `env:"ENVIRONMENT"  envDefault:"development"`
	Debug       bool   `env:"DEBUG"        envDefault:"false"`

	// Relational Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required"`

	// MigrationPath is the filesystem path to the SQL migrations directory.
	MigrationPath string `env:"MIGRATION_PATH" envDefault:"./data/migrations"`

	// Key-Value Cache (Redis). Required only when TOKEN_STORE is "redis".
	RedisURL string `env:"REDIS_URL"`

	// ServerSecret seeds HKDF derivation of subsystem signing keys.
	ServerSecret string `env:"SERVER_SECRET,required"`

	// Operator JWT keys (RS256)
	JWTPrivKeyPath string `env:"JWT_PRIVATE_KEY_PATH,required"`
	JWTPubKeyPath  string `env:"JWT_PUBLIC_KEY_PATH,required"`

	// PhotoStorageRoot is the directory holding original gallery photos.
	PhotoStorageRoot string `env:"PHOTO_STORAGE_ROOT,required"`

	// TokenStore selects the access-token store backend: "memory" for
	// single-instance deployments, "redis" when running multiple replicas.
	TokenStore string `env:"TOKEN_STORE" envDefault:"memory"`

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

	if cfg.TokenStore != TokenStoreMemory && cfg.TokenStore != TokenStoreRedis {
		return nil, fmt.Errorf("config: TOKEN_STORE must be %q or %q, got %q",
			TokenStoreMemory, TokenStoreRedis, cfg.TokenStore)
	}

	if cfg.TokenStore == TokenStoreRedis && cfg.RedisURL == "" {
		return nil, fmt.Errorf("config: REDIS_URL is required when TOKEN_STORE is %q", TokenStoreRedis)
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
