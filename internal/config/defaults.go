package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sentinelapp/sentinel/internal/analyzer"
)

// Default returns a Config with default values. APIKey is empty.
func Default() *Config {
	return &Config{
		BaseURL:      analyzer.DefaultBaseURL,
		PollInterval: analyzer.DefaultPollInterval,
		HTTPTimeout:  30 * time.Second,
		UserAgent:    "sentinel/" + Version,
		ListenAddr:   ":8080",
		LogLevel:     "info",
		JobRetention: 10 * time.Minute,
		Workers:      4,
	}
}

// Version is the release string reported by the CLI and the User-Agent.
var Version = "0.1.0-dev"

type entry struct {
	key     string
	value   string
	tag     string
	comment string
}

func (c *Config) entries() []entry {
	return []entry{
		{"api_key", c.APIKey, "!!str", "Scanning service API key. Prefer SENTINEL_API_KEY over storing it here."},
		{"base_url", c.BaseURL, "!!str", "Service API root."},
		{"poll_interval", c.PollInterval.String(), "!!str", "Wait between analysis polls."},
		{"http_timeout", c.HTTPTimeout.String(), "!!str", "Timeout of one outbound request."},
		{"user_agent", c.UserAgent, "!!str", ""},
		{"listen_addr", c.ListenAddr, "!!str", "Address of the HTTP API started by `sentinel serve`."},
		{"log_level", c.LogLevel, "!!str", "debug, info, warn or error."},
		{"job_retention", c.JobRetention.String(), "!!str", "How long finished scan jobs stay queryable."},
		{"workers", strconv.Itoa(c.Workers), "!!int", "Scans allowed to run at once."},
	}
}

// Render renders c as a commented YAML document.
func (c *Config) Render() ([]byte, error) {
	mapping := &yaml.Node{Kind: yaml.MappingNode}
	for _, e := range c.entries() {
		mapping.Content = append(mapping.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: e.key, HeadComment: e.comment},
			&yaml.Node{Kind: yaml.ScalarNode, Tag: e.tag, Value: e.value},
		)
	}
	doc := &yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{mapping}}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return data, nil
}

// WriteDefault writes a default configuration to the specified path.
func WriteDefault(path string) error {
	data, err := Default().Render()
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
