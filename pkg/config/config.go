// Package config loads autoexpense configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"

	"github.com/ArionMiles/autoexpense/pkg/logging"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	// Port is the HTTP listen port.
	// Environment variable: PORT
	Port int `koanf:"PORT"`

	// DatabaseURL takes precedence over the discrete POSTGRES_* settings.
	// Environment variable: DATABASE_URL
	DatabaseURL string `koanf:"DATABASE_URL"`

	PostgresHost     string `koanf:"POSTGRES_HOST"`
	PostgresPort     int    `koanf:"POSTGRES_PORT"`
	PostgresDB       string `koanf:"POSTGRES_DB"`
	PostgresUser     string `koanf:"POSTGRES_USER"`
	PostgresPassword string `koanf:"POSTGRES_PASSWORD"`
	PostgresSSLMode  string `koanf:"POSTGRES_SSLMODE"`
	PostgresMaxConns int    `koanf:"POSTGRES_MAX_CONNS"`

	// GeminiAPIKey authenticates model calls. API_KEY is accepted as a fallback.
	// Environment variable: GEMINI_API_KEY
	GeminiAPIKey string `koanf:"GEMINI_API_KEY"`
	APIKey       string `koanf:"API_KEY"`

	// GeminiModel is used for transaction extraction.
	GeminiModel string `koanf:"GEMINI_MODEL"`
	// GeminiDemoModel is used to synthesize demo emails.
	GeminiDemoModel string `koanf:"GEMINI_DEMO_MODEL"`
	DemoEmailCount  int    `koanf:"DEMO_EMAIL_COUNT"`

	// ScanMaxResults caps how many messages one scan pulls from the mailbox.
	ScanMaxResults int `koanf:"SCAN_MAX_RESULTS"`
	// DedupMatchMerchant adds merchant equality to the duplicate check.
	DedupMatchMerchant bool `koanf:"DEDUP_MATCH_MERCHANT"`

	// LogLevel is DEBUG, INFO, WARN or ERROR. LogFormat "json" selects the
	// JSON handler.
	LogLevel  string `koanf:"LOG_LEVEL"`
	LogFormat string `koanf:"LOG_FORMAT"`

	CORSAllowedOrigin string        `koanf:"CORS_ALLOWED_ORIGIN"`
	ShutdownTimeout   time.Duration `koanf:"SHUTDOWN_TIMEOUT"`
}

// Default returns the configuration used when no environment is set.
func Default() Config {
	return Config{
		Port:              4000,
		PostgresHost:      "localhost",
		PostgresPort:      5432,
		PostgresDB:        "autoexpense",
		PostgresUser:      "autoexpense",
		PostgresSSLMode:   "disable",
		PostgresMaxConns:  10,
		GeminiModel:       "gemini-2.5-flash-lite",
		GeminiDemoModel:   "gemini-2.5-flash",
		DemoEmailCount:    5,
		ScanMaxResults:    10,
		CORSAllowedOrigin: "*",
		ShutdownTimeout:   10 * time.Second,
	}
}

// Load reads an optional .env file and then the process environment on top
// of Default. Variables already set in the environment win over .env.
func Load(dotenvFiles ...string) (Config, error) {
	if len(dotenvFiles) == 0 {
		dotenvFiles = []string{".env"}
	}
	for _, f := range dotenvFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("loading %s: %w", f, err)
		}
	}

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", nil), nil); err != nil {
		return Config{}, fmt.Errorf("loading environment: %w", err)
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf", FlatPaths: true}); err != nil {
		return Config{}, fmt.Errorf("unmarshaling config: %w", err)
	}

	if cfg.GeminiAPIKey == "" {
		cfg.GeminiAPIKey = cfg.APIKey
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Logging returns the logger settings, including any set in .env.
func (c Config) Logging() logging.Config {
	return logging.Config{
		Level:  logging.ParseLevel(c.LogLevel),
		JSON:   strings.EqualFold(c.LogFormat, "json"),
		Output: os.Stderr,
	}
}

// Validate checks values that have no sensible fallback.
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port)
	}
	if c.ScanMaxResults <= 0 {
		return fmt.Errorf("SCAN_MAX_RESULTS must be positive, got %d", c.ScanMaxResults)
	}
	if c.DemoEmailCount <= 0 {
		return fmt.Errorf("DEMO_EMAIL_COUNT must be positive, got %d", c.DemoEmailCount)
	}
	if c.DatabaseURL == "" && c.PostgresHost == "" {
		return errors.New("either DATABASE_URL or POSTGRES_HOST is required")
	}
	return nil
}
