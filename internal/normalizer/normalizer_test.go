package normalizer_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinelapp/sentinel/internal/model"
	"github.com/sentinelapp/sentinel/internal/normalizer"
)

func loadFixture(t *testing.T, name string) []byte {
	t.Helper()
	b, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return b
}

func requireParseError(t *testing.T, err error, field string) {
	t.Helper()
	require.Error(t, err)
	var perr *model.ParseError
	require.True(t, errors.As(err, &perr), "expected ParseError, got %T: %v", err, err)
	assert.Equal(t, field, perr.Field)
}

// ─── Completed reports ─────────────────────────────────────────────────

func TestNormalize_CompletedFileReport(t *testing.T) {
	t.Parallel()
	report, err := normalizer.Normalize(loadFixture(t, "file_completed.json"))
	require.NoError(t, err)

	assert.Equal(t, model.StatusCompleted, report.Status)
	require.Len(t, report.Verdicts, 6)

	// Payload order, not alphabetical.
	names := make([]string, 0, len(report.Verdicts))
	for _, v := range report.Verdicts {
		names = append(names, v.EngineName)
		assert.Equal(t, v.Category.IsThreat(), v.IsThreat, "engine %s", v.EngineName)
	}
	assert.Equal(t, []string{"Zeta", "Bkav", "Lionic", "Avast", "Trapmine", "Elastic"}, names)

	assert.Equal(t, model.DefaultResultLabel, report.Verdicts[0].ResultLabel, "null result")
	assert.Equal(t, "W32.AIDetectMalware", report.Verdicts[1].ResultLabel)
	assert.Equal(t, model.CategoryTypeUnsupported, report.Verdicts[4].Category)
	assert.Equal(t, model.DefaultResultLabel, report.Verdicts[4].ResultLabel, "missing result")
	assert.Len(t, report.Threats(), 3)

	assert.Equal(t, model.ScanStats{Malicious: 2, Suspicious: 1, Undetected: 1, TypeUnsupported: 2}, report.Stats)

	fi, ok := report.Subject.(model.FileInfo)
	require.True(t, ok, "expected FileInfo, got %T", report.Subject)
	assert.Equal(t, "275a021bbfb6489e54d471899f7db9d1663fc695ec2fe2a2c4538aabf651fd0f", fi.SHA256)
	assert.Equal(t, "44d88612fea8a8f36de82e1278abb02f", fi.MD5)
	assert.Equal(t, int64(68), fi.SizeBytes)
}

func TestNormalize_QueuedURLReport(t *testing.T) {
	t.Parallel()
	report, err := normalizer.Normalize(loadFixture(t, "url_queued.json"))
	require.NoError(t, err)

	assert.Equal(t, model.StatusQueued, report.Status)
	assert.NotNil(t, report.Verdicts)
	assert.Empty(t, report.Verdicts)
	assert.Equal(t, model.ScanStats{}, report.Stats)
	assert.Equal(t, model.URLInfo{
		ID:  "0f115db062b7c0dd030b16878c99dea5c354b49dc37b38eb8846179c7783e9d7",
		URL: "http://www.example.com/",
	}, report.Subject)
}

func TestNormalize_SingleMaliciousEngine(t *testing.T) {
	t.Parallel()
	raw := `{"data":{"attributes":{"status":"completed","stats":{"malicious":1},
		"results":{"EngineA":{"engine_name":"EngineA","category":"malicious","result":"Trojan.X"}}}}}`

	report, err := normalizer.Normalize([]byte(raw))
	require.NoError(t, err)
	require.Len(t, report.Verdicts, 1)
	assert.Equal(t, model.EngineVerdict{
		EngineName:  "EngineA",
		Category:    model.CategoryMalicious,
		ResultLabel: "Trojan.X",
		IsThreat:    true,
	}, report.Verdicts[0])
	assert.Nil(t, report.Subject)
}

func TestNormalize_MissingResultDefaultsToNA(t *testing.T) {
	t.Parallel()
	raw := `{"data":{"attributes":{"status":"completed","stats":{},
		"results":{"EngineB":{"engine_name":"EngineB","category":"harmless"}}}}}`

	report, err := normalizer.Normalize([]byte(raw))
	require.NoError(t, err)
	require.Len(t, report.Verdicts, 1)
	assert.Equal(t, "N/A", report.Verdicts[0].ResultLabel)
	assert.False(t, report.Verdicts[0].IsThreat)
}

func TestNormalize_EmptyResultKept(t *testing.T) {
	t.Parallel()
	raw := `{"data":{"attributes":{"status":"completed","stats":{},
		"results":{"EngineB":{"engine_name":"EngineB","category":"undetected","result":""}}}}}`

	report, err := normalizer.Normalize([]byte(raw))
	require.NoError(t, err)
	require.Len(t, report.Verdicts, 1)
	assert.Equal(t, "", report.Verdicts[0].ResultLabel)
}

func TestNormalize_UnknownCategoryMapsToOther(t *testing.T) {
	t.Parallel()
	raw := `{"data":{"attributes":{"status":"completed","stats":{},
		"results":{"E":{"engine_name":"E","category":"confirmed-timeout","result":"x"}}}}}`

	report, err := normalizer.Normalize([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, model.CategoryOther, report.Verdicts[0].Category)
	assert.False(t, report.Verdicts[0].IsThreat)
}

func TestNormalize_EmptyStatsAreZero(t *testing.T) {
	t.Parallel()
	raw := `{"data":{"attributes":{"status":"in-progress","stats":{},"results":{}}}}`

	report, err := normalizer.Normalize([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, model.StatusInProgress, report.Status)
	assert.Equal(t, 0, report.Stats.Total())
}

func TestNormalize_LargeSizePreserved(t *testing.T) {
	t.Parallel()
	raw := `{"data":{"attributes":{"status":"completed","stats":{},"results":{}}},
		"meta":{"file_info":{"sha256":"h","size":6442450944}}}`

	report, err := normalizer.Normalize([]byte(raw))
	require.NoError(t, err)
	fi := report.Subject.(model.FileInfo)
	assert.Equal(t, int64(6442450944), fi.SizeBytes)
	assert.Empty(t, fi.MD5)
	assert.Empty(t, fi.SHA1)
}

func TestNormalize_SizeDecodedLeniently(t *testing.T) {
	t.Parallel()
	tests := []struct {
		size string
		want int64
	}{
		{size: `68`, want: 68},
		{size: `68.0`, want: 68},
		{size: `"68"`, want: 68},
		{size: `null`, want: 0},
		{size: `"unknown"`, want: 0},
		{size: `{}`, want: 0},
	}
	for _, tt := range tests {
		raw := `{"data":{"attributes":{"status":"completed","stats":{},"results":{}}},
			"meta":{"file_info":{"sha256":"h","size":` + tt.size + `}}}`

		report, err := normalizer.Normalize([]byte(raw))
		require.NoError(t, err, tt.size)
		assert.Equal(t, tt.want, report.Subject.(model.FileInfo).SizeBytes, tt.size)
	}
}

// ─── Parse errors ──────────────────────────────────────────────────────

func TestNormalize_MissingStructure(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		raw   string
		field string
	}{
		{"invalid json", `{"data":`, "body"},
		{"no data", `{}`, "data"},
		{"no attributes", `{"data":{}}`, "data.attributes"},
		{"no status", `{"data":{"attributes":{"stats":{},"results":{}}}}`, "data.attributes.status"},
		{"status wrong type", `{"data":{"attributes":{"status":3,"stats":{},"results":{}}}}`, "data.attributes.status"},
		{"no results", `{"data":{"attributes":{"status":"queued","stats":{}}}}`, "data.attributes.results"},
		{"null results", `{"data":{"attributes":{"status":"queued","stats":{},"results":null}}}`, "data.attributes.results"},
		{"results not object", `{"data":{"attributes":{"status":"queued","stats":{},"results":[]}}}`, "data.attributes.results"},
		{"no stats", `{"data":{"attributes":{"status":"queued","results":{}}}}`, "data.attributes.stats"},
		{"engine name missing", `{"data":{"attributes":{"status":"completed","stats":{},"results":{"X":{"category":"harmless"}}}}}`, "data.attributes.results.X.engine_name"},
		{"category missing", `{"data":{"attributes":{"status":"completed","stats":{},"results":{"X":{"engine_name":"X"}}}}}`, "data.attributes.results.X.category"},
		{"file info without sha256", `{"data":{"attributes":{"status":"completed","stats":{},"results":{}}},"meta":{"file_info":{"md5":"m"}}}`, "meta.file_info.sha256"},
		{"url info without url", `{"data":{"attributes":{"status":"completed","stats":{},"results":{}}},"meta":{"url_info":{"id":"i"}}}`, "meta.url_info.url"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			report, err := normalizer.Normalize([]byte(tt.raw))
			assert.Nil(t, report)
			requireParseError(t, err, tt.field)
		})
	}
}
