package commands

import (
	"fmt"
	"sync/atomic"

	"github.com/spf13/cobra"

	"github.com/sentinelapp/sentinel/internal/analyzer"
	"github.com/sentinelapp/sentinel/internal/cli"
	"github.com/sentinelapp/sentinel/internal/model"
	"github.com/sentinelapp/sentinel/internal/webclient"
)

var pollCmd = &cobra.Command{
	Use:   "poll <analysis>",
	Short: "Wait for an existing analysis by self-link or ID",
	Long: `Poll resumes an analysis submitted earlier, for example one interrupted with
Ctrl-C. The argument is the analysis self-link printed by scan or a bare
analysis ID.`,
	Args: cobra.ExactArgs(1),
	RunE: runPoll,
}

func init() {
	pollCmd.Flags().BoolVar(&flagAllEngines, "all-engines", false, "List every engine, not only those that flagged the target")
	pollCmd.Flags().BoolVar(&flagFailOnDetection, "fail-on-detection", false, "Exit with code 1 if any engine flagged the target")
	rootCmd.AddCommand(pollCmd)
}

func runPoll(cmd *cobra.Command, args []string) error {
	handle := model.AnalysisHandle(args[0])
	appCfg := cfg.ToAppConfig()

	client, err := webclient.NewWebClient(appCfg.WebClient, logger)
	if err != nil {
		return fmt.Errorf("creating web client: %w", err)
	}
	defer client.Close()

	var stop atomic.Bool
	ctx, cancel := contextWithInterrupt(cmd.ErrOrStderr(), &stop)
	defer cancel()

	progress := progressPrinter(cmd.ErrOrStderr())
	scanner := analyzer.New(appCfg.Analyzer, client, logger, nil)
	rep, err := scanner.Resume(ctx, handle, func(r *model.ScanReport) { progress(args[0], r) }, stop.Load)

	res := cli.Result{Target: args[0], Analysis: handle, Report: rep, Err: err}
	if rep != nil && rep.Subject != nil {
		res.Kind = rep.Subject.Kind()
	}
	return report(cmd.OutOrStdout(), []cli.Result{res})
}
