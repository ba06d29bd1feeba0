// Package testutil provides shared test doubles for use across package tests.
// All dummies implement the corresponding interfaces from the production code,
// allowing injection into components under test without real I/O or side effects.
package testutil

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sentinelapp/sentinel/internal/logging"
	"github.com/sentinelapp/sentinel/internal/webclient"
)

// ─── Logger ────────────────────────────────────────────────────────────

// DummyLogger implements logging.Logger with in-memory recording.
type DummyLogger struct {
	mu     sync.Mutex
	Errors []string
	Infos  []string
	Debugs []string
	Warns  []string
}

func (l *DummyLogger) Debug(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Debugs = append(l.Debugs, msg)
}

func (l *DummyLogger) Info(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Infos = append(l.Infos, msg)
}

func (l *DummyLogger) Warn(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Warns = append(l.Warns, msg)
}

func (l *DummyLogger) Error(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Errors = append(l.Errors, msg)
}

func (l *DummyLogger) With(_ ...logging.Field) logging.Logger { return l }

// WarnCount returns the number of recorded warnings.
func (l *DummyLogger) WarnCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.Warns)
}

// ─── WebClient ─────────────────────────────────────────────────────────

// Reply is one scripted answer of a ScriptedWebClient.
type Reply struct {
	Status int
	Body   string
	Err    error
}

// ScriptedWebClient implements webclient.WebClient. Replies are keyed by
// "METHOD URL" and consumed in order; the last reply for a key repeats.
// Every request is recorded.
type ScriptedWebClient struct {
	mu       sync.Mutex
	replies  map[string][]Reply
	Requests []*webclient.Request
	Closed   bool
}

// NewScriptedWebClient creates an empty ScriptedWebClient.
func NewScriptedWebClient() *ScriptedWebClient {
	return &ScriptedWebClient{replies: map[string][]Reply{}}
}

// On appends replies for method and url.
func (c *ScriptedWebClient) On(method, url string, replies ...Reply) *ScriptedWebClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := method + " " + url
	c.replies[key] = append(c.replies[key], replies...)
	return c
}

func (c *ScriptedWebClient) Do(_ context.Context, req *webclient.Request) (*webclient.Response, error) {
	if req == nil {
		return nil, fmt.Errorf("nil request")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Requests = append(c.Requests, req)

	key := req.Method + " " + req.URL
	queue := c.replies[key]
	if len(queue) == 0 {
		return &webclient.Response{Request: req, StatusCode: http.StatusNotFound, Body: []byte(`{"error":{"code":"NotFoundError","message":"no scripted reply"}}`), FetchedAt: time.Now()}, nil
	}
	reply := queue[0]
	if len(queue) > 1 {
		c.replies[key] = queue[1:]
	}
	if reply.Err != nil {
		return nil, reply.Err
	}
	status := reply.Status
	if status == 0 {
		status = http.StatusOK
	}
	return &webclient.Response{
		Request:    req,
		Headers:    http.Header{"Content-Type": {"application/json"}},
		Body:       []byte(reply.Body),
		StatusCode: status,
		FetchedAt:  time.Now(),
	}, nil
}

func (c *ScriptedWebClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Closed = true
	return nil
}

// RequestCount counts recorded requests with the given method and URL.
func (c *ScriptedWebClient) RequestCount(method, url string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, r := range c.Requests {
		if r.Method == method && r.URL == url {
			n++
		}
	}
	return n
}

// ─── Sleeper ───────────────────────────────────────────────────────────

// RecordingSleeper records requested delays and returns immediately.
type RecordingSleeper struct {
	mu     sync.Mutex
	Delays []time.Duration
}

func (s *RecordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.Delays = append(s.Delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

// Count returns the number of recorded sleeps.
func (s *RecordingSleeper) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Delays)
}

// ─── Fixtures ──────────────────────────────────────────────────────────

// AnalysisBody renders a minimal analysis document with the given status
// and results JSON object.
func AnalysisBody(status, results string) string {
	if results == "" {
		results = "{}"
	}
	return fmt.Sprintf(`{"data":{"type":"analysis","attributes":{"status":%q,"stats":{},"results":%s}}}`, status, results)
}

// SubmissionBody renders a submission response pointing at selfLink.
func SubmissionBody(selfLink string) string {
	return fmt.Sprintf(`{"data":{"type":"analysis","id":"an-1","links":{"self":%q}}}`, selfLink)
}
