// Package config loads client configuration from the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config captures the client runtime parameters.
type Config struct {
	// BaseURL is the HTTP endpoint of the room management API.
	BaseURL string `env:"KSELI_BASE_URL" envDefault:"https://kseli.app"`

	// WSURL is the WebSocket endpoint. Derived from BaseURL when empty.
	WSURL string `env:"KSELI_WS_URL"`

	// APIKey is sent as X-Api-Key on room management requests.
	APIKey string `env:"KSELI_API_KEY"`

	// ProfileDir holds state shared by all sessions of one profile.
	// Defaults to the user config directory.
	ProfileDir string `env:"KSELI_PROFILE_DIR"`

	LogLevel    string        `env:"KSELI_LOG_LEVEL" envDefault:"info"`
	HTTPTimeout time.Duration `env:"KSELI_HTTP_TIMEOUT" envDefault:"10s"`
}

// Load reads configuration from the environment and fills in derived
// defaults.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if cfg.WSURL == "" {
		cfg.WSURL = deriveWSURL(cfg.BaseURL)
	}
	if cfg.ProfileDir == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return Config{}, fmt.Errorf("resolve profile dir: %w", err)
		}
		cfg.ProfileDir = filepath.Join(dir, "kseli")
	}
	return cfg, nil
}

func deriveWSURL(baseURL string) string {
	switch {
	case strings.HasPrefix(baseURL, "https://"):
		return "wss://" + strings.TrimPrefix(baseURL, "https://")
	case strings.HasPrefix(baseURL, "http://"):
		return "ws://" + strings.TrimPrefix(baseURL, "http://")
	default:
		return baseURL
	}
}
