package analyzer_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinelapp/sentinel/internal/analyzer"
	"github.com/sentinelapp/sentinel/internal/model"
	"github.com/sentinelapp/sentinel/internal/testutil"
)

const verdictsJSON = `{
	"Zeta":{"engine_name":"Zeta","category":"malicious","result":"Trojan.X"},
	"Alpha":{"engine_name":"Alpha","category":"undetected","result":null}
}`

func newScanner(wc *testutil.ScriptedWebClient, sl *testutil.RecordingSleeper, opts ...analyzer.ScannerOption) *analyzer.Scanner {
	return analyzer.New(testConfig(), wc, &testutil.DummyLogger{},
		[]analyzer.PollerOption{analyzer.WithSleeper(sl.Sleep)}, opts...)
}

func TestRunScan_SubmitsThenPollsToCompletion(t *testing.T) {
	t.Parallel()
	wc := testutil.NewScriptedWebClient().
		On(http.MethodPost, testBase+"/files", testutil.Reply{Body: testutil.SubmissionBody(testHandle)}).
		On(http.MethodGet, testHandle,
			testutil.Reply{Body: testutil.AnalysisBody("queued", "")},
			testutil.Reply{Body: testutil.AnalysisBody("completed", verdictsJSON)})
	sl := &testutil.RecordingSleeper{}

	var hooked model.AnalysisHandle
	s := newScanner(wc, sl, analyzer.WithSubmitHook(func(h model.AnalysisHandle) { hooked = h }))

	updates := 0
	report, err := s.RunScan(context.Background(), model.FileTarget{Name: "x.exe", Data: []byte("MZ")},
		func(*model.ScanReport) { updates++ }, nil)
	require.NoError(t, err)

	assert.Equal(t, model.AnalysisHandle(testHandle), hooked)
	assert.Equal(t, 2, updates)
	assert.Equal(t, 1, sl.Count())
	require.Len(t, report.Verdicts, 2)
	assert.Equal(t, "Zeta", report.Verdicts[0].EngineName)
	assert.True(t, report.Verdicts[0].IsThreat)
	assert.Equal(t, "Alpha", report.Verdicts[1].EngineName)
	assert.Equal(t, model.DefaultResultLabel, report.Verdicts[1].ResultLabel)
}

func TestRunScan_SubmissionFailureSkipsPolling(t *testing.T) {
	t.Parallel()
	wc := testutil.NewScriptedWebClient().
		On(http.MethodPost, testBase+"/files", testutil.Reply{Status: http.StatusBadRequest, Body: `{"error":{"code":"BadRequestError","message":"bad"}}`}).
		On(http.MethodGet, testHandle, testutil.Reply{Body: testutil.AnalysisBody("completed", "")})
	sl := &testutil.RecordingSleeper{}

	hookCalled := false
	s := newScanner(wc, sl, analyzer.WithSubmitHook(func(model.AnalysisHandle) { hookCalled = true }))

	updates := 0
	report, err := s.RunScan(context.Background(), model.FileTarget{Name: "x", Data: []byte("x")},
		func(*model.ScanReport) { updates++ }, nil)
	assert.Nil(t, report)

	var subErr *model.SubmissionError
	require.True(t, errors.As(err, &subErr))
	var pollErr *model.PollError
	assert.False(t, errors.As(err, &pollErr))

	assert.False(t, hookCalled)
	assert.Zero(t, updates)
	assert.Zero(t, wc.RequestCount(http.MethodGet, testHandle))
	assert.Zero(t, sl.Count())
}

func TestRunScan_PollFailurePropagates(t *testing.T) {
	t.Parallel()
	wc := testutil.NewScriptedWebClient().
		On(http.MethodPost, testBase+"/urls", testutil.Reply{Body: testutil.SubmissionBody(testHandle)}).
		On(http.MethodGet, testHandle, testutil.Reply{Body: `{"data":{"attributes":{"status":"completed"}}}`})

	_, err := newScanner(wc, &testutil.RecordingSleeper{}).
		RunScan(context.Background(), model.URLTarget{URL: "example.com"}, nil, nil)

	var pollErr *model.PollError
	require.True(t, errors.As(err, &pollErr))
	var parseErr *model.ParseError
	require.True(t, errors.As(err, &parseErr))
	assert.Equal(t, "data.attributes.results", parseErr.Field)
}

func TestResume_PollsExistingHandle(t *testing.T) {
	t.Parallel()
	wc := testutil.NewScriptedWebClient().
		On(http.MethodGet, testBase+"/analyses/an-9", testutil.Reply{Body: testutil.AnalysisBody("completed", verdictsJSON)})

	report, err := newScanner(wc, &testutil.RecordingSleeper{}).
		Resume(context.Background(), "an-9", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, report.Status)
	assert.Len(t, report.Threats(), 1)
	assert.Zero(t, wc.RequestCount(http.MethodPost, testBase+"/files"))
}
