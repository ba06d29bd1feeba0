package analyzer

import (
	"errors"
	"strings"
	"time"
)

const (
	DefaultBaseURL      = "https://www.virustotal.com/api/v3"
	DefaultPollInterval = 5 * time.Second
)

// Config carries the static settings of the scanning service. The API key is
// the only credential and is attached to every outbound call.
type Config struct {
	BaseURL      string
	APIKey       string
	PollInterval time.Duration
}

// WithDefaults fills zero values.
func (c Config) WithDefaults() Config {
	if strings.TrimSpace(c.BaseURL) == "" {
		c.BaseURL = DefaultBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	return c
}

// Validate reports settings the service cannot work without.
func (c Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return errors.New("analyzer: api key is required")
	}
	return nil
}
