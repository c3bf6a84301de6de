package config

import (
	"fmt"
	"os"
	"time"

	"fiscal/internal/logger"
)

// Default corporate tax IDs. The importer (origin) brings goods into the
// country; the distributor (dest) sells them on. Overridable via env for
// other operations using the same ledger layout.
const (
	DefaultInternalOriginTaxID = "60415819000141"
	DefaultInternalDestTaxID   = "61081232000106"
)

type Config struct {
	// Ledger (Google Sheets) Configuration
	SpreadsheetID string // spreadsheet ID or full URL

	// Corporate identities driving invoice classification
	InternalOriginTaxID string
	InternalDestTaxID   string

	// Pending-submission lifetime (0 = no expiry)
	SessionTTL time.Duration

	// Logging Configuration
	LogLevel      string
	LogFormat     string
	LogTimeFormat string
	LogOutput     string
}

func Load() (*Config, error) {
	config := &Config{
		SpreadsheetID:       getEnv("SPREADSHEET_ID", ""),
		InternalOriginTaxID: getEnv("CNPJ_INTERNAL_ORIGIN", DefaultInternalOriginTaxID),
		InternalDestTaxID:   getEnv("CNPJ_INTERNAL_DEST", DefaultInternalDestTaxID),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		LogFormat:           getEnv("LOG_FORMAT", "console"),
		LogTimeFormat:       getEnv("LOG_TIME_FORMAT", "2006-01-02T15:04:05Z07:00"),
		LogOutput:           getEnv("LOG_OUTPUT", "stdout"),
	}

	ttlRaw := getEnv("SESSION_TTL", "0")
	ttl, err := time.ParseDuration(ttlRaw)
	if err != nil {
		return nil, fmt.Errorf("config validation failed: invalid SESSION_TTL %q: %w", ttlRaw, err)
	}
	config.SessionTTL = ttl

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func (c *Config) validate() error {
	if c.SessionTTL < 0 {
		return fmt.Errorf("SESSION_TTL must not be negative")
	}
	if c.InternalOriginTaxID == "" {
		return fmt.Errorf("CNPJ_INTERNAL_ORIGIN must not be empty")
	}
	if c.InternalDestTaxID == "" {
		return fmt.Errorf("CNPJ_INTERNAL_DEST must not be empty")
	}
	return nil
}

// ValidateLedger checks the settings the Google Sheets backend needs.
// Commands that never touch the ledger skip this.
func (c *Config) ValidateLedger() error {
	if c.SpreadsheetID == "" {
		return fmt.Errorf("SPREADSHEET_ID is required")
	}
	return nil
}

// GetLoggerConfig returns a logger configuration from the main config
func (c *Config) GetLoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		TimeFormat: c.LogTimeFormat,
		Output:     c.LogOutput,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
