// Package config loads service settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config is the runtime configuration of the statement service.
type Config struct {
	Port           string
	GinMode        string
	Currency       string
	MaxUploadBytes int64
	AliasFile      string
	DatabaseURL    string
	IngestProc     string
}

const (
	defaultPort        = "8083"
	defaultCurrency    = "INR"
	defaultMaxUploadMB = 20
	defaultIngestProc  = "ingest_bank_statement"
)

// Load reads an optional .env file (variables already set in the environment win)
// and then the environment itself.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return FromLookup(os.LookupEnv)
}

// FromLookup builds a Config from any variable source.
func FromLookup(lookup func(string) (string, bool)) (*Config, error) {
	get := func(key, def string) string {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
		return def
	}

	cfg := &Config{
		Port:        get("PORT", defaultPort),
		GinMode:     get("GIN_MODE", ""),
		Currency:    strings.ToUpper(get("STATEMENT_CURRENCY", defaultCurrency)),
		AliasFile:   get("STATEMENT_ALIAS_FILE", ""),
		DatabaseURL: get("DATABASE_URL", ""),
		IngestProc:  get("INGEST_PROCEDURE", defaultIngestProc),
	}

	mb, err := strconv.Atoi(get("STATEMENT_MAX_UPLOAD_MB", strconv.Itoa(defaultMaxUploadMB)))
	if err != nil || mb <= 0 {
		return nil, fmt.Errorf("STATEMENT_MAX_UPLOAD_MB must be a positive integer")
	}
	cfg.MaxUploadBytes = int64(mb) << 20

	if _, err := strconv.Atoi(cfg.Port); err != nil {
		return nil, fmt.Errorf("PORT must be numeric, got %q", cfg.Port)
	}
	return cfg, nil
}

// IngestEnabled reports whether a database is configured for commits.
func (c *Config) IngestEnabled() bool {
	return c.DatabaseURL != ""
}
