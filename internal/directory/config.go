package directory

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config stores connectivity information for the directory client.
type Config struct {
	BaseURL       string
	Token         string
	HTTPClient    *http.Client
	MaxAttempts   int
	RetryInterval time.Duration
}

// LoadConfigFromEnv initialises a Config from environment variables.
func LoadConfigFromEnv() (Config, error) {
	cfg := Config{
		BaseURL:       strings.TrimSpace(os.Getenv("STREAMPULSE_DIRECTORY_API")),
		Token:         strings.TrimSpace(os.Getenv("STREAMPULSE_DIRECTORY_TOKEN")),
		MaxAttempts:   3,
		RetryInterval: 250 * time.Millisecond,
	}

	if attempts := strings.TrimSpace(os.Getenv("STREAMPULSE_DIRECTORY_MAX_ATTEMPTS")); attempts != "" {
		parsed, err := strconv.Atoi(attempts)
		if err != nil {
			return Config{}, fmt.Errorf("parse STREAMPULSE_DIRECTORY_MAX_ATTEMPTS: %w", err)
		}
		if parsed > 0 {
			cfg.MaxAttempts = parsed
		}
	}

	if interval := strings.TrimSpace(os.Getenv("STREAMPULSE_DIRECTORY_RETRY_INTERVAL")); interval != "" {
		parsed, err := time.ParseDuration(interval)
		if err != nil {
			return Config{}, fmt.Errorf("parse STREAMPULSE_DIRECTORY_RETRY_INTERVAL: %w", err)
		}
		if parsed >= 0 {
			cfg.RetryInterval = parsed
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Enabled reports whether a directory endpoint has been configured.
func (c Config) Enabled() bool {
	return c.BaseURL != ""
}

// Validate ensures the configuration is usable.
func (c Config) Validate() error {
	if !c.Enabled() {
		return nil
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("directory max attempts must be positive")
	}
	if c.RetryInterval < 0 {
		return fmt.Errorf("directory retry interval cannot be negative")
	}
	return nil
}

// NewHTTPClient constructs a Client backed by the directory's REST API.
func (c Config) NewHTTPClient() (*HTTPClient, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if !c.Enabled() {
		return nil, fmt.Errorf("directory base URL required")
	}
	client := &HTTPClient{config: c}
	if client.config.HTTPClient == nil {
		client.config.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	return client, nil
}
