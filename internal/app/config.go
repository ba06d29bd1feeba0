package app

import (
	"time"

	"github.com/sentinelapp/sentinel/internal/analyzer"
	"github.com/sentinelapp/sentinel/internal/webclient"
)

// Config contains the runtime options the job layer and its components need.
// It is normally produced by internal/config from file, env and flags.
type Config struct {
	// Analyzer carries the service endpoint, API key and poll interval.
	Analyzer analyzer.Config

	// WebClient configuration shared by every scan.
	WebClient webclient.Config

	// ListenAddr is where the HTTP API listens.
	ListenAddr string

	// JobRetentionTime is how long finished jobs stay queryable.
	JobRetentionTime time.Duration

	// Workers bounds the number of scans running at once.
	Workers int

	LogLevel string
}

// DefaultConfig returns a Config populated with defaults. The API key is left
// empty and must be supplied.
func DefaultConfig() *Config {
	return &Config{
		Analyzer: analyzer.Config{
			BaseURL:      analyzer.DefaultBaseURL,
			PollInterval: analyzer.DefaultPollInterval,
		},
		WebClient: webclient.Config{
			Client:  webclient.ClientNetHTTP,
			Timeout: 30 * time.Second,
		},
		ListenAddr:       ":8080",
		JobRetentionTime: 10 * time.Minute,
		Workers:          4,
		LogLevel:         "info",
	}
}
