// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port               string
	ChannelAccessToken string
	ChannelSecret      string // empty disables webhook signature verification
	DBPath             string // empty keeps sessions in memory only
	StepDelay          time.Duration
	IntroCooldown      time.Duration
	DedupTTL           time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:               getEnv("PORT", "3000"),
		ChannelAccessToken: getEnv("LINE_CHANNEL_ACCESS_TOKEN", ""),
		ChannelSecret:      getEnv("LINE_CHANNEL_SECRET", ""),
		DBPath:             getEnv("DB_PATH", ""),
		StepDelay:          time.Duration(getEnvInt("STEP_DELAY_MS", 1500)) * time.Millisecond,
		IntroCooldown:      time.Duration(getEnvInt("INTRO_COOLDOWN_SECONDS", 20)) * time.Second,
		DedupTTL:           time.Duration(getEnvInt("EVENT_DEDUP_TTL_SECONDS", 60)) * time.Second,
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.ChannelAccessToken == "" {
		return fmt.Errorf("LINE_CHANNEL_ACCESS_TOKEN cannot be empty")
	}
	if c.StepDelay <= 0 {
		return fmt.Errorf("STEP_DELAY_MS must be > 0")
	}
	if c.IntroCooldown <= 0 {
		return fmt.Errorf("INTRO_COOLDOWN_SECONDS must be > 0")
	}
	if c.DedupTTL <= 0 {
		return fmt.Errorf("EVENT_DEDUP_TTL_SECONDS must be > 0")
	}
	return nil
}

// VerifiesSignature reports whether inbound requests will be checked
// against the channel secret. Running without a secret is an explicit
// trade-off; main logs it at startup.
func (c *Config) VerifiesSignature() bool {
	return c.ChannelSecret != ""
}

// PersistsSessions reports whether sessions are backed by SQLite.
func (c *Config) PersistsSessions() bool {
	return c.DBPath != ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}
