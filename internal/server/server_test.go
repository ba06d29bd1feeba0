package server_test

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-json-experiment/json"
	"github.com/gorilla/websocket"

	"github.com/sentinelapp/sentinel/internal/analyzer"
	"github.com/sentinelapp/sentinel/internal/app"
	"github.com/sentinelapp/sentinel/internal/model"
	"github.com/sentinelapp/sentinel/internal/server"
	"github.com/sentinelapp/sentinel/internal/testutil"
)

// scriptedRunner reports queued, optionally waits on gate, then completes.
type scriptedRunner struct {
	gate        chan struct{}
	onSubmitted func(model.AnalysisHandle)
}

func (r *scriptedRunner) RunScan(ctx context.Context, _ model.ScanTarget, onUpdate analyzer.UpdateFunc, isCancelled analyzer.CancelledFunc) (*model.ScanReport, error) {
	r.onSubmitted("an-1")
	queued := &model.ScanReport{Status: model.StatusQueued}
	onUpdate(queued)
	if r.gate != nil {
		select {
		case <-r.gate:
		case <-ctx.Done():
			return nil, &model.PollError{Cause: ctx.Err()}
		}
	}
	if isCancelled() {
		return queued, nil
	}
	done := &model.ScanReport{
		Status:   model.StatusCompleted,
		Verdicts: []model.EngineVerdict{model.NewEngineVerdict("EngineA", model.CategoryMalicious, "Trojan.X")},
		Stats:    model.ScanStats{Malicious: 1},
	}
	onUpdate(done)
	return done, nil
}

func newTestServer(t *testing.T, gate chan struct{}) *server.Server {
	t.Helper()

	logger := &testutil.DummyLogger{}
	factory := func(onSubmitted func(model.AnalysisHandle)) app.ScanRunner {
		return &scriptedRunner{gate: gate, onSubmitted: onSubmitted}
	}
	orch := app.NewOrchestrator(app.DefaultConfig(), testutil.NewScriptedWebClient(), logger, app.WithScannerFactory(factory))

	s, err := server.NewServer(server.Config{
		ListenAddr:     ":0",
		Orchestrator:   orch,
		Logger:         logger,
		MaxUploadBytes: 1 << 16,
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
		orch.Close()
	})
	return s
}

func doJSON(t *testing.T, s http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func doUpload(t *testing.T, s http.Handler, field, name string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(field, name)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	_, _ = part.Write(data)
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/scans/files", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.UnmarshalRead(rec.Body, v); err != nil {
		t.Fatalf("decode JSON response: %v (body: %s)", err, rec.Body.String())
	}
}

func waitDone(t *testing.T, s *server.Server, jobID string) *app.Job {
	t.Helper()
	job := s.Orchestrator().GetJob(jobID)
	if job == nil {
		t.Fatalf("job %s not found", jobID)
	}
	for range job.Events {
	}
	return s.Orchestrator().GetJob(jobID)
}

// ─── CORS ──────────────────────────────────────────────────────────────

func TestServer_CORS_HeaderPresent(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)

	rec := doJSON(t, s, "GET", "/scans", "")

	if origin := rec.Header().Get("Access-Control-Allow-Origin"); origin != "*" {
		t.Errorf("expected CORS origin *, got %q", origin)
	}
}

func TestServer_OptionsPreflight(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)

	rec := doJSON(t, s, "OPTIONS", "/scans/abc", "")
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204 for OPTIONS, got %d", rec.Code)
	}
	if methods := rec.Header().Get("Access-Control-Allow-Methods"); methods != "GET, DELETE" {
		t.Errorf("unexpected Allow-Methods %q", methods)
	}
}

// ─── Health & docs ─────────────────────────────────────────────────────

func TestServer_Healthz(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)

	rec := doJSON(t, s, "GET", "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body server.HealthResponse
	decodeJSON(t, rec, &body)
	if body.Status != "ok" {
		t.Errorf("expected ok, got %q", body.Status)
	}
}

func TestServer_SwaggerDoc(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)

	rec := doJSON(t, s, "GET", "/swagger/doc.json", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Sentinel API") {
		t.Error("expected swagger document to carry the API title")
	}
}

// ─── URL scans ─────────────────────────────────────────────────────────

func TestServer_ScanURL_Accepted(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)

	rec := doJSON(t, s, "POST", "/scans/urls", `{"url":"https://example.com/x"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	var job map[string]any
	decodeJSON(t, rec, &job)
	id, _ := job["id"].(string)
	if id == "" {
		t.Fatal("expected job id")
	}
	if job["kind"] != "url" || job["target"] != "https://example.com/x" {
		t.Errorf("unexpected job: %v", job)
	}

	final := waitDone(t, s, id)
	if final.Status != app.JobDone {
		t.Fatalf("expected done, got %q (%s)", final.Status, final.Error)
	}

	rec = doJSON(t, s, "GET", "/scans/"+id, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got map[string]any
	decodeJSON(t, rec, &got)
	if got["status"] != "done" || got["analysis"] != "an-1" {
		t.Errorf("unexpected job body: %v", got)
	}
	report, ok := got["report"].(map[string]any)
	if !ok {
		t.Fatalf("expected report object, got %T", got["report"])
	}
	verdicts, _ := report["verdicts"].([]any)
	if len(verdicts) != 1 {
		t.Errorf("expected 1 verdict, got %d", len(verdicts))
	}
}

func TestServer_ScanURL_BadInput(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)

	for _, body := range []string{`{invalid}`, `{"url":""}`, `{"url":"https://"}`, `{"url":"example.com/no-scheme"}`} {
		rec := doJSON(t, s, "POST", "/scans/urls", body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", body, rec.Code)
		}
	}
	if jobs := s.Orchestrator().ListJobs(); len(jobs) != 0 {
		t.Errorf("expected no jobs, got %d", len(jobs))
	}
}

func TestServer_ScanURL_KeepsURLAsWritten(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)

	const target = "http://www.paypal.com@evil.example/login#frag"
	rec := doJSON(t, s, "POST", "/scans/urls", `{"url":"  `+target+`  "}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var job map[string]any
	decodeJSON(t, rec, &job)
	if job["target"] != target {
		t.Errorf("expected target %q, got %v", target, job["target"])
	}
	waitDone(t, s, job["id"].(string))
}

// ─── File scans ────────────────────────────────────────────────────────

func TestServer_ScanFile_Accepted(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)

	rec := doUpload(t, s, "file", "sample.exe", []byte("MZ\x90\x00"))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var job map[string]any
	decodeJSON(t, rec, &job)
	if job["kind"] != "file" || job["target"] != "sample.exe" {
		t.Errorf("unexpected job: %v", job)
	}
	waitDone(t, s, job["id"].(string))
}

func TestServer_ScanFile_MissingField(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)

	rec := doUpload(t, s, "upload", "sample.exe", []byte("MZ"))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestServer_ScanFile_TooLarge(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)

	rec := doUpload(t, s, "file", "big.bin", bytes.Repeat([]byte("a"), 1<<17))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413, got %d", rec.Code)
	}
}

// ─── Jobs ──────────────────────────────────────────────────────────────

func TestServer_ListJobs(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)

	rec := doJSON(t, s, "GET", "/scans", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var empty []map[string]any
	decodeJSON(t, rec, &empty)
	if len(empty) != 0 {
		t.Errorf("expected 0 jobs, got %d", len(empty))
	}

	doJSON(t, s, "POST", "/scans/urls", `{"url":"https://a.example"}`)
	doJSON(t, s, "POST", "/scans/urls", `{"url":"https://b.example"}`)

	rec = doJSON(t, s, "GET", "/scans", "")
	var jobs []map[string]any
	decodeJSON(t, rec, &jobs)
	if len(jobs) != 2 {
		t.Errorf("expected 2 jobs, got %d", len(jobs))
	}
}

func TestServer_GetJob_NotFound(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)

	rec := doJSON(t, s, "GET", "/scans/nonexistent", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestServer_CancelJob_NoContent(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)

	rec := doJSON(t, s, "DELETE", "/scans/nonexistent", "")
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
}

func TestServer_CancelJob_StopsRunningScan(t *testing.T) {
	t.Parallel()
	gate := make(chan struct{})
	s := newTestServer(t, gate)

	rec := doJSON(t, s, "POST", "/scans/urls", `{"url":"https://example.com"}`)
	var job map[string]any
	decodeJSON(t, rec, &job)
	id := job["id"].(string)

	rec = doJSON(t, s, "DELETE", "/scans/"+id, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	close(gate)

	final := waitDone(t, s, id)
	if final.Status != app.JobCanceled {
		t.Errorf("expected canceled, got %q", final.Status)
	}
}

// ─── WebSocket ─────────────────────────────────────────────────────────

func TestServer_ScanWS_StreamsUntilDone(t *testing.T) {
	t.Parallel()
	gate := make(chan struct{})
	s := newTestServer(t, gate)
	srv := httptest.NewServer(s)
	defer srv.Close()

	rec := doJSON(t, s, "POST", "/scans/urls", `{"url":"https://example.com"}`)
	var job map[string]any
	decodeJSON(t, rec, &job)
	id := job["id"].(string)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/scans/" + id
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first map[string]any
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if err := json.Unmarshal(data, &first); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if first["id"] != id {
		t.Fatalf("expected job snapshot first, got %v", first)
	}

	close(gate)

	var (
		last    map[string]any
		reports int
	)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		var msg map[string]any
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("decode message: %v", err)
		}
		if msg["type"] == "report" {
			reports++
		}
		last = msg
	}

	if reports != 2 {
		t.Errorf("expected 2 report events, got %d", reports)
	}
	if last == nil || last["id"] != id || last["status"] != "done" {
		t.Errorf("expected final done snapshot, got %v", last)
	}
}

func TestServer_ScanWS_UnknownJob(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)

	rec := doJSON(t, s, "GET", "/ws/scans/missing", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestNewServer_RequiresAPIKeyWithoutOrchestrator(t *testing.T) {
	t.Parallel()
	if _, err := server.NewServer(server.Config{Logger: &testutil.DummyLogger{}}); err == nil {
		t.Fatal("expected error without api key")
	}
}
