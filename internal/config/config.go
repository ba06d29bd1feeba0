// Package config loads sentinel settings from a YAML file, SENTINEL_*
// environment variables and command-line flags, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/sentinelapp/sentinel/internal/analyzer"
	"github.com/sentinelapp/sentinel/internal/app"
	"github.com/sentinelapp/sentinel/internal/logging"
	"github.com/sentinelapp/sentinel/internal/webclient"
)

const (
	// FileName is the base name searched for when no path is given.
	FileName  = "sentinel"
	EnvPrefix = "SENTINEL"
)

// Config represents the application configuration.
type Config struct {
	APIKey       string        `mapstructure:"api_key"`
	BaseURL      string        `mapstructure:"base_url"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	HTTPTimeout  time.Duration `mapstructure:"http_timeout"`
	UserAgent    string        `mapstructure:"user_agent"`
	ListenAddr   string        `mapstructure:"listen_addr"`
	LogLevel     string        `mapstructure:"log_level"`
	JobRetention time.Duration `mapstructure:"job_retention"`
	Workers      int           `mapstructure:"workers"`
}

// Options controls where Load looks for settings.
type Options struct {
	// Path is an explicit config file. When empty, sentinel.yaml is searched
	// for in ., ./configs and ~/.config/sentinel, and a missing file is fine.
	Path string

	// Flags, when set, override file and env values for keys whose flag was
	// changed. Flag names use dashes: --api-key sets api_key.
	Flags *pflag.FlagSet
}

// Load reads and validates the configuration.
func Load(opts Options) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if opts.Path != "" {
		v.SetConfigFile(opts.Path)
	} else {
		v.SetConfigName(FileName)
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if homeDir, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(homeDir, ".config", FileName))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if opts.Path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if opts.Flags != nil {
		if err := bindFlags(v, opts.Flags); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("api_key", d.APIKey)
	v.SetDefault("base_url", d.BaseURL)
	v.SetDefault("poll_interval", d.PollInterval)
	v.SetDefault("http_timeout", d.HTTPTimeout)
	v.SetDefault("user_agent", d.UserAgent)
	v.SetDefault("listen_addr", d.ListenAddr)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("job_retention", d.JobRetention)
	v.SetDefault("workers", d.Workers)
}

// flagKeys maps flag names to config keys.
var flagKeys = map[string]string{
	"api-key":   "api_key",
	"base-url":  "base_url",
	"log-level": "log_level",
	"listen":    "listen_addr",
	"workers":   "workers",
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %q: %w", name, err)
		}
	}
	return nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.APIKey) == "" {
		errs = append(errs, errors.New("api_key cannot be empty (set SENTINEL_API_KEY or --api-key)"))
	}

	if u, err := url.Parse(c.BaseURL); err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		errs = append(errs, fmt.Errorf("base_url must be an absolute http(s) URL, got %q", c.BaseURL))
	}

	if c.PollInterval <= 0 {
		errs = append(errs, errors.New("poll_interval must be positive"))
	}

	if c.HTTPTimeout <= 0 {
		errs = append(errs, errors.New("http_timeout must be positive"))
	}

	if c.JobRetention < 0 {
		errs = append(errs, errors.New("job_retention cannot be negative"))
	}

	if c.Workers <= 0 {
		errs = append(errs, errors.New("workers must be positive"))
	}

	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// ToAppConfig converts c into the component configs used at runtime.
func (c *Config) ToAppConfig() *app.Config {
	return &app.Config{
		Analyzer: analyzer.Config{
			BaseURL:      c.BaseURL,
			APIKey:       c.APIKey,
			PollInterval: c.PollInterval,
		},
		WebClient: webclient.Config{
			Client:    webclient.ClientNetHTTP,
			Timeout:   c.HTTPTimeout,
			UserAgent: c.UserAgent,
		},
		ListenAddr:       c.ListenAddr,
		JobRetentionTime: c.JobRetention,
		Workers:          c.Workers,
		LogLevel:         c.LogLevel,
	}
}
