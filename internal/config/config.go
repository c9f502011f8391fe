// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds everything the CLI needs to reach the session service.
type Config struct {
	// APIURL is the REST base URL of the session service.
	APIURL string
	// WSURL is the websocket endpoint for live sessions.
	WSURL string
	// UserID identifies the user; sent as the x-user-id header.
	UserID string
	// MicSampleRateHz requests a specific microphone device rate. Zero
	// means the wire rate.
	MicSampleRateHz int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		APIURL:          getEnv("FEYNMAN_API_URL", "http://localhost:3000"),
		WSURL:           getEnv("FEYNMAN_WS_URL", "ws://localhost:3000/ws"),
		UserID:          getEnv("FEYNMAN_USER_ID", ""),
		MicSampleRateHz: getEnvInt("FEYNMAN_MIC_SAMPLE_RATE", 0),
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.APIURL == "" {
		return fmt.Errorf("FEYNMAN_API_URL cannot be empty")
	}
	if c.WSURL == "" {
		return fmt.Errorf("FEYNMAN_WS_URL cannot be empty")
	}
	if c.UserID == "" {
		return fmt.Errorf("FEYNMAN_USER_ID must be set")
	}
	if c.MicSampleRateHz < 0 {
		return fmt.Errorf("FEYNMAN_MIC_SAMPLE_RATE must be >= 0")
	}
	return nil
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
