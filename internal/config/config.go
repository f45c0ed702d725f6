package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds the application configuration.
type Config struct {
	ServerURL       string        `env:"CODEBOUND_SERVER_URL"       envDefault:"http://localhost:5000"`
	RefreshInterval time.Duration `env:"CODEBOUND_REFRESH_INTERVAL" envDefault:"5s"`
	RequestTimeout  time.Duration `env:"CODEBOUND_REQUEST_TIMEOUT"  envDefault:"10s"`
	AllowStale      bool          `env:"CODEBOUND_ALLOW_STALE"`
	StoryFile       string        `env:"CODEBOUND_STORY_FILE"`
	SaveDir         string        `env:"CODEBOUND_SAVE_DIR"         envDefault:".saves"`
	LogFile         string        `env:"CODEBOUND_LOG_FILE"         envDefault:"codebound.log"`
	Telemetry       bool          `env:"CODEBOUND_TELEMETRY"`
	DevServerAddr   string        `env:"CODEBOUND_DEVSERVER_ADDR"   envDefault:":5000"`

	// The advisor is optional; it stays off without a key.
	GeminiAPIKey string `env:"GEMINI_API_KEY"`
	GeminiModel  string `env:"GEMINI_MODEL" envDefault:"gemini-2.5-flash"`
}

// LoadConfig loads the configuration from a .env file, if present, and the environment.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("Note: .env file not loaded: %v", err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values env parsing cannot.
func (c *Config) Validate() error {
	u, err := url.Parse(c.ServerURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("CODEBOUND_SERVER_URL %q is not an absolute URL", c.ServerURL)
	}
	if c.RefreshInterval <= 0 {
		return fmt.Errorf("CODEBOUND_REFRESH_INTERVAL must be positive, got %s", c.RefreshInterval)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("CODEBOUND_REQUEST_TIMEOUT must be positive, got %s", c.RequestTimeout)
	}
	return nil
}

// AdvisorEnabled reports whether a Gemini key was configured.
func (c *Config) AdvisorEnabled() bool {
	return c.GeminiAPIKey != ""
}
