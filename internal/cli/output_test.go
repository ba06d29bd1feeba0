package cli_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/go-json-experiment/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinelapp/sentinel/internal/cli"
	"github.com/sentinelapp/sentinel/internal/model"
)

func flaggedFile() cli.Result {
	return cli.Result{
		Target:   "eicar.com",
		Kind:     model.TargetFile,
		Analysis: "https://vt.test/api/v3/analyses/an-1",
		Report: &model.ScanReport{
			Status: model.StatusCompleted,
			Verdicts: []model.EngineVerdict{
				model.NewEngineVerdict("EngineA", model.CategoryMalicious, "EICAR-Test-File"),
				model.NewEngineVerdict("LongerEngineName", model.CategoryUndetected, ""),
				model.NewEngineVerdict("EngineC", model.CategorySuspicious, "heur"),
			},
			Stats:   model.ScanStats{Malicious: 1, Suspicious: 1, Undetected: 1},
			Subject: model.FileInfo{SHA256: "abc", MD5: "m", SHA1: "s", SizeBytes: 1536},
		},
	}
}

func cleanURL() cli.Result {
	return cli.Result{
		Target:   "https://example.com/",
		Kind:     model.TargetURL,
		Analysis: "an-2",
		Report: &model.ScanReport{
			Status:   model.StatusCompleted,
			Verdicts: []model.EngineVerdict{model.NewEngineVerdict("EngineA", model.CategoryHarmless, "clean")},
			Stats:    model.ScanStats{Harmless: 1},
			Subject:  model.URLInfo{ID: "u-1", URL: "https://example.com/"},
		},
	}
}

// ─── Terminal ──────────────────────────────────────────────────────────

func TestTerminal_ThreatsOnlyByDefault(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	f := &cli.TerminalFormatter{NoColor: true}
	require.NoError(t, f.Format(&buf, []cli.Result{flaggedFile()}))

	out := buf.String()
	assert.Contains(t, out, "eicar.com")
	assert.Contains(t, out, "SHA256:      abc")
	assert.Contains(t, out, "Size:        1.5 KiB")
	assert.Contains(t, out, "2/3 engines flagged")
	assert.Contains(t, out, "EICAR-Test-File")
	assert.Contains(t, out, "heur")
	assert.NotContains(t, out, "LongerEngineName")
	assert.NotContains(t, out, "\x1b[", "no escape codes with NoColor")
}

func TestTerminal_AllEngines(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	f := &cli.TerminalFormatter{NoColor: true, AllEngines: true}
	require.NoError(t, f.Format(&buf, []cli.Result{flaggedFile()}))

	out := buf.String()
	assert.Contains(t, out, "LongerEngineName")
	assert.Contains(t, out, model.DefaultResultLabel)

	// rows are aligned on the widest engine name
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "  EngineA ") {
			assert.True(t, strings.HasPrefix(line, "  EngineA"+strings.Repeat(" ", len("LongerEngineName")-len("EngineA"))+"  malicious"), line)
		}
	}
}

func TestTerminal_CleanURL(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	f := &cli.TerminalFormatter{NoColor: true}
	require.NoError(t, f.Format(&buf, []cli.Result{cleanURL()}))

	out := buf.String()
	assert.Contains(t, out, "URL ID:      u-1")
	assert.Contains(t, out, "0/1 engines flagged")
	assert.Contains(t, out, "No engine flagged this target.")
	assert.NotContains(t, out, "ENGINE")
	assert.NotContains(t, out, "IDN host:")
}

func TestTerminal_IDNHostShown(t *testing.T) {
	t.Parallel()
	r := cleanURL()
	r.Report.Subject = model.URLInfo{ID: "u-2", URL: "https://xn--r8jz45g.xn--zckzah/login"}

	var buf bytes.Buffer
	f := &cli.TerminalFormatter{NoColor: true}
	require.NoError(t, f.Format(&buf, []cli.Result{r}))

	assert.Contains(t, buf.String(), "IDN host:    xn--r8jz45g.xn--zckzah (例え.テスト)")
}

func TestTerminal_Error(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	f := &cli.TerminalFormatter{NoColor: true}
	res := cli.Result{Target: "missing.bin", Kind: model.TargetFile, Err: errors.New("submission failed: boom")}
	require.NoError(t, f.Format(&buf, []cli.Result{res}))

	out := buf.String()
	assert.Contains(t, out, "✖ submission failed: boom")
	assert.NotContains(t, out, "Status:")
}

func TestTerminal_ColorEnabled(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	f := &cli.TerminalFormatter{}
	require.NoError(t, f.Format(&buf, []cli.Result{flaggedFile()}))
	assert.Contains(t, buf.String(), "\x1b[")
}

func TestTerminal_Progress(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	f := &cli.TerminalFormatter{NoColor: true}
	f.Progress(&buf, "eicar.com", &model.ScanReport{Status: model.StatusQueued})
	assert.Equal(t, "... eicar.com: queued (0 engines reported)\n", buf.String())
}

// ─── JSON ──────────────────────────────────────────────────────────────

func TestJSON_Format(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	failed := cli.Result{Target: "x", Kind: model.TargetURL, Err: errors.New("boom")}
	require.NoError(t, cli.JSONFormatter{}.Format(&buf, []cli.Result{flaggedFile(), failed}))

	var got []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 2)

	assert.Equal(t, "eicar.com", got[0]["target"])
	assert.Equal(t, "file", got[0]["kind"])
	report := got[0]["report"].(map[string]any)
	assert.Equal(t, "completed", report["status"])
	assert.Equal(t, "file", report["subject"].(map[string]any)["kind"])
	assert.NotContains(t, got[0], "error")

	assert.Equal(t, "boom", got[1]["error"])
	assert.NotContains(t, got[1], "report")
	assert.NotContains(t, got[1], "analysis")
}

// ─── helpers ───────────────────────────────────────────────────────────

func TestHasThreats(t *testing.T) {
	t.Parallel()
	assert.True(t, cli.HasThreats([]cli.Result{cleanURL(), flaggedFile()}))
	assert.False(t, cli.HasThreats([]cli.Result{cleanURL(), {Err: errors.New("x")}}))
}

func TestFormatSize(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "68 B", cli.FormatSize(68))
	assert.Equal(t, "1.0 KiB", cli.FormatSize(1024))
	assert.Equal(t, "-1 B", cli.FormatSize(-1))
}
