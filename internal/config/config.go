// Package config manages environment variables.
//
// It reads variables from the `.env` file (if present), loads them into a
// structured Go type, and validates that required values are present.
package config

import (
	"strings"

	"github.com/go-playground/validator/v10"
	// Side-effect import: triggers godotenv's autoload feature.
	// If a `.env` file exists, it gets loaded into process env *before*
	// this package reads env vars. No explicit call needed.
	_ "github.com/joho/godotenv/autoload"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the only prefix this CLI reads environment variables under.
// Database connection env vars (PGHOST, PGPORT, ...) are handled separately
// by the Postgres backend, matching libpq's own precedence rules rather
// than koanf's.
const EnvPrefix = "SQIGL_"

// Config is process-level configuration: everything that governs how the
// CLI itself behaves, as opposed to a single project's sqigl.toml.
type Config struct {
	LogLevel string `koanf:"log_level" validate:"required"`

	// DefaultStatementTimeoutMS floors the Postgres backend's per-transaction
	// statement timeout when PGSTATEMENT_TIMEOUT isn't set in the
	// environment. Zero means no floor is applied.
	DefaultStatementTimeoutMS int `koanf:"default_statement_timeout_ms"`
}

// Load reads SQIGL_-prefixed env vars (and .env, via the autoload import
// above) into a Config, defaulting LogLevel to "info" when unset.
func Load() (*Config, error) {
	k := koanf.New(".")

	err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil)
	if err != nil {
		return nil, err
	}

	cfg := &Config{LogLevel: "info"}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, err
	}

	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
