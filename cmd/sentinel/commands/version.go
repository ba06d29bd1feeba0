package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sentinelapp/sentinel/internal/config"
)

// Commit is set via ldflags at build time, together with config.Version.
var Commit = "none"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "sentinel %s (commit: %s)\n", config.Version, Commit)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
