// Package config provides application configuration.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all application configuration, read from the environment.
type Config struct {
	TelegramBotToken string `env:"TELEGRAM_BOT_TOKEN"`
	LuoguBaseURL     string `env:"LUOGU_BASE_URL" envDefault:"https://www.luogu.com.cn"`
	UserAgent        string `env:"USER_AGENT" envDefault:"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36"`

	// DBPath selects the SQLite dialogue store. Empty means in-memory only.
	DBPath string `env:"DB_PATH" envDefault:"./data/dialogues.db"`

	HTTPTimeoutSeconds int `env:"HTTP_TIMEOUT_SECONDS" envDefault:"30"`
}

// Load parses configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.TelegramBotToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}
	if c.LuoguBaseURL == "" {
		return fmt.Errorf("LUOGU_BASE_URL cannot be empty")
	}
	if c.HTTPTimeoutSeconds <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT_SECONDS must be > 0")
	}
	return nil
}

// HTTPTimeout returns the outbound HTTP timeout as a duration.
func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSeconds) * time.Second
}
