package app

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/sentinelapp/sentinel/internal/analyzer"
	"github.com/sentinelapp/sentinel/internal/logging"
	"github.com/sentinelapp/sentinel/internal/model"
	"github.com/sentinelapp/sentinel/internal/webclient"
)

// ErrClosed is returned when a scan is started on a closed Orchestrator.
var ErrClosed = errors.New("orchestrator is closed")

type JobEventType string

const (
	JobEventStatus JobEventType = "status"
	JobEventReport JobEventType = "report"
)

type JobEvent struct {
	JobID string       `json:"job_id"`
	Type  JobEventType `json:"type"`

	// For status changes
	Status JobStatus `json:"status,omitempty"`
	Error  string    `json:"error,omitempty"`

	// For report updates
	Report *model.ScanReport `json:"report,omitempty"`
}

type JobStatus string

const (
	JobPending  JobStatus = "pending"
	JobRunning  JobStatus = "running"
	JobDone     JobStatus = "done"
	JobFailed   JobStatus = "failed"
	JobCanceled JobStatus = "canceled"
)

// Finished reports whether no further events will be emitted for the job.
func (s JobStatus) Finished() bool {
	return s == JobDone || s == JobFailed || s == JobCanceled
}

// Job is a snapshot of one scan. Events is closed when the job finishes.
type Job struct {
	ID        string               `json:"id"`
	Kind      model.TargetKind     `json:"kind"`
	Target    string               `json:"target"`
	Status    JobStatus            `json:"status"`
	Analysis  model.AnalysisHandle `json:"analysis,omitempty"`
	Report    *model.ScanReport    `json:"report,omitempty"`
	Error     string               `json:"error,omitempty"`
	StartedAt time.Time            `json:"started_at"`
	EndedAt   time.Time            `json:"ended_at,omitzero"`
	Events    chan JobEvent        `json:"-"`
}

// ScanRunner runs one scan to the end. *analyzer.Scanner implements it.
type ScanRunner interface {
	RunScan(ctx context.Context, target model.ScanTarget, onUpdate analyzer.UpdateFunc, isCancelled analyzer.CancelledFunc) (*model.ScanReport, error)
}

// ScannerFactory builds the runner for one job. onSubmitted must be called
// with the analysis handle once the target is accepted.
type ScannerFactory func(onSubmitted func(model.AnalysisHandle)) ScanRunner

// Option customises an Orchestrator.
type Option func(*Orchestrator)

// WithScannerFactory replaces how per-job scanners are built.
func WithScannerFactory(f ScannerFactory) Option {
	return func(o *Orchestrator) {
		if f != nil {
			o.newScanner = f
		}
	}
}

// WithPollerOptions passes options to every poller built by the default
// factory.
func WithPollerOptions(opts ...analyzer.PollerOption) Option {
	return func(o *Orchestrator) { o.pollOpts = append(o.pollOpts, opts...) }
}

type jobRecord struct {
	job        Job
	cancelled  atomic.Bool
	cancel     context.CancelFunc
	cancelCh   chan struct{} // closed by CancelJob
	cancelOnce sync.Once
}

// Orchestrator runs scans as background jobs, one Scanner per job, and keeps
// finished jobs around for JobRetentionTime.
type Orchestrator struct {
	cfg        *Config
	client     webclient.WebClient
	logger     logging.Logger
	newScanner ScannerFactory
	pollOpts   []analyzer.PollerOption

	slots chan struct{}

	jobsMu sync.Mutex
	jobs   map[string]*jobRecord
	closed bool

	stopCleanup chan struct{}
	wg          sync.WaitGroup
	closeOnce   sync.Once
}

// NewOrchestrator ties together config, the shared web client and logger.
func NewOrchestrator(cfg *Config, client webclient.WebClient, logger logging.Logger, opts ...Option) *Orchestrator {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}

	o := &Orchestrator{
		cfg:         cfg,
		client:      client,
		logger:      logger.With(logging.Field{Key: "component", Value: "orchestrator"}),
		slots:       make(chan struct{}, workers),
		jobs:        make(map[string]*jobRecord),
		stopCleanup: make(chan struct{}),
	}
	o.newScanner = o.defaultScanner
	for _, opt := range opts {
		opt(o)
	}

	if cfg.JobRetentionTime > 0 {
		o.wg.Add(1)
		go o.cleanupLoop(cfg.JobRetentionTime)
	}
	return o
}

func (o *Orchestrator) defaultScanner(onSubmitted func(model.AnalysisHandle)) ScanRunner {
	return analyzer.New(o.cfg.Analyzer, o.client, o.logger, o.pollOpts, analyzer.WithSubmitHook(onSubmitted))
}

func (o *Orchestrator) newJob(target model.ScanTarget) *jobRecord {
	return &jobRecord{
		job: Job{
			ID:        uuid.New().String(),
			Kind:      target.Kind(),
			Target:    describeTarget(target),
			Status:    JobPending,
			StartedAt: time.Now().UTC(),
			Events:    make(chan JobEvent, 16),
		},
		cancelCh: make(chan struct{}),
	}
}

func describeTarget(target model.ScanTarget) string {
	switch t := target.(type) {
	case model.FileTarget:
		return t.Name
	case *model.FileTarget:
		return t.Name
	default:
		return target.Describe()
	}
}

func (o *Orchestrator) emitJobEvent(rec *jobRecord, ev JobEvent) {
	// Non-blocking send; drop if buffer is full.
	select {
	case rec.job.Events <- ev:
	default:
		o.logger.Debug("dropping job event",
			logging.Field{Key: "job_id", Value: ev.JobID},
			logging.Field{Key: "type", Value: string(ev.Type)})
	}
}

func (o *Orchestrator) update(rec *jobRecord, fn func(j *Job)) {
	o.jobsMu.Lock()
	defer o.jobsMu.Unlock()
	fn(&rec.job)
}

// StartScan registers a job for target and runs it in the background. The
// returned snapshot is taken before the job starts.
func (o *Orchestrator) StartScan(ctx context.Context, target model.ScanTarget) (*Job, error) {
	if target == nil {
		return nil, model.ErrNilTarget
	}

	rec := o.newJob(target)
	jobCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	rec.cancel = cancel

	o.jobsMu.Lock()
	if o.closed {
		o.jobsMu.Unlock()
		cancel()
		return nil, ErrClosed
	}
	o.jobs[rec.job.ID] = rec
	snapshot := rec.job
	o.wg.Add(1)
	o.jobsMu.Unlock()

	o.logger.Info("scan job created",
		logging.Field{Key: "job_id", Value: rec.job.ID},
		logging.Field{Key: "kind", Value: string(rec.job.Kind)})

	o.emitJobEvent(rec, JobEvent{JobID: rec.job.ID, Type: JobEventStatus, Status: JobPending})

	go o.run(jobCtx, rec, target)

	return &snapshot, nil
}

func (o *Orchestrator) run(ctx context.Context, rec *jobRecord, target model.ScanTarget) {
	jobID := rec.job.ID
	logger := o.logger.With(logging.Field{Key: "job_id", Value: jobID})

	defer o.wg.Done()
	defer rec.cancel()
	defer close(rec.job.Events)

	select {
	case o.slots <- struct{}{}:
		defer func() { <-o.slots }()
	case <-rec.cancelCh:
		o.finish(rec, nil, nil, logger)
		return
	case <-ctx.Done():
		o.finish(rec, nil, ctx.Err(), logger)
		return
	}
	if rec.cancelled.Load() {
		o.finish(rec, nil, nil, logger)
		return
	}

	o.update(rec, func(j *Job) { j.Status = JobRunning })
	o.emitJobEvent(rec, JobEvent{JobID: jobID, Type: JobEventStatus, Status: JobRunning})

	scanner := o.newScanner(func(h model.AnalysisHandle) {
		o.update(rec, func(j *Job) { j.Analysis = h })
	})

	onUpdate := func(r *model.ScanReport) {
		o.update(rec, func(j *Job) { j.Report = r })
		o.emitJobEvent(rec, JobEvent{JobID: jobID, Type: JobEventReport, Report: r})
	}
	isCancelled := func() bool {
		return rec.cancelled.Load() || ctx.Err() != nil
	}

	report, err := scanner.RunScan(ctx, target, onUpdate, isCancelled)
	o.finish(rec, report, err, logger)
}

func (o *Orchestrator) finish(rec *jobRecord, report *model.ScanReport, err error, logger logging.Logger) {
	var (
		status JobStatus
		msg    string
	)
	switch {
	case err != nil && (rec.cancelled.Load() || errors.Is(err, context.Canceled)):
		status, msg = JobCanceled, err.Error()
	case err != nil:
		status, msg = JobFailed, err.Error()
		last := report
		if last == nil {
			o.jobsMu.Lock()
			last = rec.job.Report
			o.jobsMu.Unlock()
		}
		report = model.FailedReport(last, msg)
	case report != nil && report.Status == model.StatusCompleted:
		status = JobDone
	default:
		status = JobCanceled
	}

	o.update(rec, func(j *Job) {
		j.Status = status
		j.Error = msg
		if report != nil {
			j.Report = report
		}
		j.EndedAt = time.Now().UTC()
	})
	o.emitJobEvent(rec, JobEvent{JobID: rec.job.ID, Type: JobEventStatus, Status: status, Error: msg, Report: report})

	fields := []logging.Field{{Key: "status", Value: string(status)}}
	if report != nil {
		fields = append(fields,
			logging.Field{Key: "malicious", Value: report.Stats.Malicious},
			logging.Field{Key: "suspicious", Value: report.Stats.Suspicious})
	}
	if msg != "" {
		fields = append(fields, logging.Field{Key: "error", Value: msg})
		logger.Warn("scan job ended", fields...)
		return
	}
	logger.Info("scan job ended", fields...)
}

// CancelJob asks a job to stop after its current poll. The job ends as
// canceled with the latest report it saw; a job still waiting for a worker
// ends right away. Unknown IDs are ignored.
func (o *Orchestrator) CancelJob(jobID string) bool {
	o.jobsMu.Lock()
	rec, ok := o.jobs[jobID]
	o.jobsMu.Unlock()
	if !ok {
		return false
	}
	rec.cancelled.Store(true)
	rec.cancelOnce.Do(func() { close(rec.cancelCh) })
	return true
}

// GetJob returns a snapshot of the job or nil if it is unknown.
func (o *Orchestrator) GetJob(jobID string) *Job {
	o.jobsMu.Lock()
	defer o.jobsMu.Unlock()
	rec, ok := o.jobs[jobID]
	if !ok {
		return nil
	}
	j := rec.job
	return &j
}

// ListJobs returns snapshots of all known jobs, oldest first.
func (o *Orchestrator) ListJobs() []Job {
	o.jobsMu.Lock()
	out := make([]Job, 0, len(o.jobs))
	for _, rec := range o.jobs {
		out = append(out, rec.job)
	}
	o.jobsMu.Unlock()

	sort.Slice(out, func(i, k int) bool {
		if out[i].StartedAt.Equal(out[k].StartedAt) {
			return out[i].ID < out[k].ID
		}
		return out[i].StartedAt.Before(out[k].StartedAt)
	})
	return out
}

func (o *Orchestrator) cleanupLoop(retention time.Duration) {
	defer o.wg.Done()
	interval := retention / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-o.stopCleanup:
			return
		case now := <-ticker.C:
			o.pruneFinished(now.UTC(), retention)
		}
	}
}

// pruneFinished drops jobs that ended more than retention before now.
func (o *Orchestrator) pruneFinished(now time.Time, retention time.Duration) int {
	o.jobsMu.Lock()
	defer o.jobsMu.Unlock()
	n := 0
	for id, rec := range o.jobs {
		if rec.job.Status.Finished() && !rec.job.EndedAt.IsZero() && now.Sub(rec.job.EndedAt) > retention {
			delete(o.jobs, id)
			n++
		}
	}
	if n > 0 {
		o.logger.Debug("pruned finished jobs", logging.Field{Key: "count", Value: n})
	}
	return n
}

// Close stops accepting scans, aborts running jobs and waits for them.
// It is safe to call more than once.
func (o *Orchestrator) Close() {
	o.closeOnce.Do(func() {
		o.jobsMu.Lock()
		o.closed = true
		for _, rec := range o.jobs {
			rec.cancelled.Store(true)
			if rec.cancel != nil {
				rec.cancel()
			}
		}
		o.jobsMu.Unlock()
		close(o.stopCleanup)
	})
	o.wg.Wait()
}
