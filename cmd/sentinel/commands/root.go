package commands

import (
	"errors"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sentinelapp/sentinel/internal/cli"
	"github.com/sentinelapp/sentinel/internal/config"
	"github.com/sentinelapp/sentinel/internal/logging"
)

// ErrThreatsFound is returned by scan and poll with --fail-on-detection when
// an engine flagged a target.
var ErrThreatsFound = errors.New("threats detected")

var (
	flagConfig   string
	flagAPIKey   string
	flagBaseURL  string
	flagLogLevel string
	flagNoColor  bool
	flagJSON     bool
)

// Set by PersistentPreRunE for commands that need a configuration.
var (
	cfg    *config.Config
	logger logging.Logger = logging.Nop{}
)

var rootCmd = &cobra.Command{
	Use:   "sentinel",
	Short: "Submit files and URLs for multi-engine malware analysis",
	Long: `Sentinel submits files and URLs to a VirusTotal-compatible scanning service,
polls the analysis until it completes and reports every engine's verdict.
It can also run as an HTTP API with live progress over WebSocket.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "Config file (default: sentinel.yaml in ., ./configs or ~/.config/sentinel)")
	rootCmd.PersistentFlags().StringVar(&flagAPIKey, "api-key", "", "Scanning service API key (env: SENTINEL_API_KEY)")
	rootCmd.PersistentFlags().StringVar(&flagBaseURL, "base-url", "", "Scanning service API root")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&flagNoColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "Print results as JSON")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// needsConfig is false for commands that run without an API key.
func needsConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		switch c.Name() {
		case "version", "config", "help", "completion":
			return false
		}
	}
	return true
}

func loadConfig(cmd *cobra.Command, _ []string) error {
	if flagNoColor || os.Getenv("NO_COLOR") != "" {
		color.NoColor = true
	}
	if !needsConfig(cmd) {
		return nil
	}

	loaded, err := config.Load(config.Options{Path: flagConfig, Flags: cmd.Flags()})
	if err != nil {
		return err
	}
	level, err := logging.ParseLevel(loaded.LogLevel)
	if err != nil {
		return err
	}

	cfg = loaded
	logger = logging.NewLogger(os.Stderr, "sentinel", level)
	return nil
}

func newFormatter(allEngines bool) cli.Formatter {
	if flagJSON {
		return cli.JSONFormatter{}
	}
	return &cli.TerminalFormatter{NoColor: color.NoColor, AllEngines: allEngines}
}
