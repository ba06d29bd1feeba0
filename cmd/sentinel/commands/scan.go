package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/fatih/color"
	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/cobra"

	"github.com/sentinelapp/sentinel/internal/analyzer"
	"github.com/sentinelapp/sentinel/internal/cli"
	"github.com/sentinelapp/sentinel/internal/model"
	"github.com/sentinelapp/sentinel/internal/webclient"
)

var (
	flagAllEngines      bool
	flagFailOnDetection bool
	flagWorkers         int
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan files or URLs",
}

var scanFileCmd = &cobra.Command{
	Use:   "file <path>...",
	Short: "Upload files and wait for their analyses",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runScanFiles,
}

var scanURLCmd = &cobra.Command{
	Use:   "url <url>...",
	Short: "Submit URLs and wait for their analyses",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runScanURLs,
}

func init() {
	scanCmd.PersistentFlags().BoolVar(&flagAllEngines, "all-engines", false, "List every engine, not only those that flagged the target")
	scanCmd.PersistentFlags().BoolVar(&flagFailOnDetection, "fail-on-detection", false, "Exit with code 1 if any engine flagged a target")
	scanCmd.PersistentFlags().IntVar(&flagWorkers, "workers", 0, "Targets scanned at once (config: workers)")
	scanCmd.AddCommand(scanFileCmd, scanURLCmd)
	rootCmd.AddCommand(scanCmd)
}

// pending is a target ready for submission, or the reason it could not be
// built.
type pending struct {
	label  string
	kind   model.TargetKind
	target model.ScanTarget
	err    error
}

func runScanFiles(cmd *cobra.Command, args []string) error {
	targets := make([]pending, 0, len(args))
	for _, path := range args {
		p := pending{label: path, kind: model.TargetFile}
		data, err := os.ReadFile(path)
		if err != nil {
			p.err = fmt.Errorf("reading file: %w", err)
		} else {
			p.target = model.FileTarget{Name: filepath.Base(path), Data: data}
		}
		targets = append(targets, p)
	}
	return scanAll(cmd, targets)
}

func runScanURLs(cmd *cobra.Command, args []string) error {
	targets := make([]pending, 0, len(args))
	for _, u := range args {
		targets = append(targets, pending{label: u, kind: model.TargetURL, target: model.URLTarget{URL: u}})
	}
	return scanAll(cmd, targets)
}

type indexedResult struct {
	index int
	cli.Result
}

func scanAll(cmd *cobra.Command, targets []pending) error {
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

	p := pool.NewWithResults[indexedResult]().WithMaxGoroutines(cfg.Workers)
	for i, t := range targets {
		p.Go(func() indexedResult {
			res := indexedResult{index: i, Result: cli.Result{Target: t.label, Kind: t.kind, Err: t.err}}
			if t.err != nil {
				return res
			}

			scanner := analyzer.New(appCfg.Analyzer, client, logger, nil,
				analyzer.WithSubmitHook(func(h model.AnalysisHandle) { res.Analysis = h }))
			res.Report, res.Err = scanner.RunScan(ctx, t.target,
				func(r *model.ScanReport) { progress(t.label, r) }, stop.Load)
			return res
		})
	}

	return report(cmd.OutOrStdout(), collect(p.Wait()))
}

func collect(indexed []indexedResult) []cli.Result {
	sort.Slice(indexed, func(a, b int) bool { return indexed[a].index < indexed[b].index })
	out := make([]cli.Result, len(indexed))
	for i, r := range indexed {
		out[i] = r.Result
	}
	return out
}

func report(w io.Writer, results []cli.Result) error {
	if err := newFormatter(flagAllEngines).Format(w, results); err != nil {
		return err
	}
	if flagFailOnDetection && cli.HasThreats(results) {
		return ErrThreatsFound
	}
	return nil
}

// progressPrinter returns an update callback that prints non-final reports.
// It prints nothing in JSON mode.
func progressPrinter(w io.Writer) func(label string, r *model.ScanReport) {
	if flagJSON {
		return func(string, *model.ScanReport) {}
	}
	f := &cli.TerminalFormatter{NoColor: color.NoColor}
	var mu sync.Mutex
	return func(label string, r *model.ScanReport) {
		if r.Status == model.StatusCompleted {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		f.Progress(w, label, r)
	}
}

// contextWithInterrupt sets stop on the first interrupt so running polls
// return their latest report, and cancels the context on the second.
func contextWithInterrupt(w io.Writer, stop *atomic.Bool) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		defer signal.Stop(sigCh)
		select {
		case <-sigCh:
		case <-ctx.Done():
			return
		}
		stop.Store(true)
		fmt.Fprintln(w, "interrupted: stopping after the current poll (Ctrl-C again to abort)")
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
