// Package cli formats scan results for the terminal (colored) and as JSON.
package cli

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"

	"github.com/sentinelapp/sentinel/internal/model"
	"github.com/sentinelapp/sentinel/internal/utils"
)

const lineWidth = 72

// Result is the outcome of scanning one target.
type Result struct {
	Target   string
	Kind     model.TargetKind
	Analysis model.AnalysisHandle
	Report   *model.ScanReport
	Err      error
}

// Formatter writes a batch of results.
type Formatter interface {
	Format(w io.Writer, results []Result) error
}

// HasThreats reports whether any completed result was flagged by an engine.
func HasThreats(results []Result) bool {
	for _, r := range results {
		if r.Report != nil && r.Report.Stats.Threats() > 0 {
			return true
		}
	}
	return false
}

// ─── Terminal ──────────────────────────────────────────────────────────

// TerminalFormatter prints a summary per target. Only flagged engines are
// listed unless AllEngines is set.
type TerminalFormatter struct {
	NoColor    bool
	AllEngines bool
}

type palette struct {
	bold, dim, red, yellow, green func(a ...any) string
}

func (f *TerminalFormatter) palette() palette {
	mk := func(attrs ...color.Attribute) func(a ...any) string {
		c := color.New(attrs...)
		if f.NoColor {
			c.DisableColor()
		} else {
			c.EnableColor()
		}
		return c.SprintFunc()
	}
	return palette{
		bold:   mk(color.Bold),
		dim:    mk(color.Faint),
		red:    mk(color.FgRed, color.Bold),
		yellow: mk(color.FgYellow),
		green:  mk(color.FgGreen),
	}
}

func (f *TerminalFormatter) Format(w io.Writer, results []Result) error {
	p := f.palette()
	for _, r := range results {
		f.formatOne(w, p, r)
	}
	return nil
}

// Progress prints one line for an intermediate report.
func (f *TerminalFormatter) Progress(w io.Writer, target string, report *model.ScanReport) {
	p := f.palette()
	fmt.Fprintf(w, "%s %s: %s (%d engines reported)\n",
		p.dim("..."), target, statusText(p, report.Status), len(report.Verdicts))
}

func (f *TerminalFormatter) formatOne(w io.Writer, p palette, r Result) {
	fmt.Fprintf(w, "\n%s\n", p.dim(strings.Repeat("─", lineWidth)))
	fmt.Fprintf(w, "  %s  %s  %s\n", p.bold(r.Target), p.dim("·"), string(r.Kind))
	if r.Analysis != "" {
		fmt.Fprintf(w, "  %-12s %s\n", "Analysis:", r.Analysis)
	}

	if r.Err != nil {
		fmt.Fprintf(w, "  %s %s\n", p.red("✖"), r.Err)
		return
	}
	if r.Report == nil {
		return
	}

	rep := r.Report
	fmt.Fprintf(w, "  %-12s %s\n", "Status:", statusText(p, rep.Status))

	switch s := rep.Subject.(type) {
	case model.FileInfo:
		fmt.Fprintf(w, "  %-12s %s\n", "SHA256:", s.SHA256)
		if s.MD5 != "" {
			fmt.Fprintf(w, "  %-12s %s\n", "MD5:", s.MD5)
		}
		if s.SHA1 != "" {
			fmt.Fprintf(w, "  %-12s %s\n", "SHA1:", s.SHA1)
		}
		fmt.Fprintf(w, "  %-12s %s\n", "Size:", FormatSize(s.SizeBytes))
	case model.URLInfo:
		fmt.Fprintf(w, "  %-12s %s\n", "URL:", s.URL)
		if ascii, unicode, ok := utils.IDNHost(s.URL); ok {
			fmt.Fprintf(w, "  %-12s %s %s\n", "IDN host:", ascii, p.yellow("("+unicode+")"))
		}
		fmt.Fprintf(w, "  %-12s %s\n", "URL ID:", s.ID)
	}

	stats := rep.Stats
	flagged := fmt.Sprintf("%d/%d", stats.Threats(), stats.Total())
	if stats.Threats() > 0 {
		flagged = p.red(flagged)
	} else {
		flagged = p.green(flagged)
	}
	fmt.Fprintf(w, "  %-12s %s engines flagged (%d malicious, %d suspicious, %d undetected, %d harmless)\n",
		"Detections:", flagged, stats.Malicious, stats.Suspicious, stats.Undetected, stats.Harmless)

	verdicts := rep.Verdicts
	if !f.AllEngines {
		verdicts = rep.Threats()
	}
	if len(verdicts) == 0 {
		if rep.Status == model.StatusCompleted && stats.Threats() == 0 {
			fmt.Fprintf(w, "\n  %s No engine flagged this target.\n", p.green("✔"))
		}
		return
	}

	nameWidth := len("ENGINE")
	for _, v := range verdicts {
		nameWidth = max(nameWidth, utf8.RuneCountInString(v.EngineName))
	}
	catWidth := len("type-unsupported")

	fmt.Fprintf(w, "\n  %s\n", p.bold(fmt.Sprintf("%-*s  %-*s  %s", nameWidth, "ENGINE", catWidth, "CATEGORY", "RESULT")))
	for _, v := range verdicts {
		cat := fmt.Sprintf("%-*s", catWidth, v.Category)
		fmt.Fprintf(w, "  %-*s  %s  %s\n", nameWidth, v.EngineName, categoryColor(p, v.Category)(cat), v.ResultLabel)
	}
}

func statusText(p palette, s model.ScanStatus) string {
	switch s {
	case model.StatusCompleted:
		return p.green(string(s))
	case model.StatusFailed:
		return p.red(string(s))
	default:
		return p.yellow(string(s))
	}
}

func categoryColor(p palette, c model.Category) func(a ...any) string {
	switch c {
	case model.CategoryMalicious:
		return p.red
	case model.CategorySuspicious:
		return p.yellow
	case model.CategoryHarmless, model.CategoryUndetected:
		return p.green
	default:
		return p.dim
	}
}

// FormatSize renders a byte count in 1024 steps, e.g. "1.5 KiB".
func FormatSize(n int64) string {
	if n < 0 {
		return fmt.Sprintf("%d B", n)
	}
	return humanize.IBytes(uint64(n))
}

// ─── JSON ──────────────────────────────────────────────────────────────

// JSONFormatter writes the results as an indented JSON array.
type JSONFormatter struct{}

type resultJSON struct {
	Target   string               `json:"target"`
	Kind     model.TargetKind     `json:"kind"`
	Analysis model.AnalysisHandle `json:"analysis,omitempty"`
	Report   *model.ScanReport    `json:"report,omitempty"`
	Error    string               `json:"error,omitempty"`
}

func (JSONFormatter) Format(w io.Writer, results []Result) error {
	out := make([]resultJSON, 0, len(results))
	for _, r := range results {
		rj := resultJSON{Target: r.Target, Kind: r.Kind, Analysis: r.Analysis, Report: r.Report}
		if r.Err != nil {
			rj.Error = r.Err.Error()
		}
		out = append(out, rj)
	}
	if err := json.MarshalWrite(w, out, jsontext.WithIndent("  ")); err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	_, err := io.WriteString(w, "\n")
	return err
}
