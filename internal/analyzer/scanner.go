package analyzer

import (
	"context"

	"github.com/sentinelapp/sentinel/internal/logging"
	"github.com/sentinelapp/sentinel/internal/model"
	"github.com/sentinelapp/sentinel/internal/webclient"
)

// Scanner is the public entry point: submit a target, then poll its
// analysis to the end. A Scanner runs one scan at a time; run independent
// Scanners for parallel scans.
type Scanner struct {
	submitter   Submitter
	poller      Poller
	logger      logging.Logger
	onSubmitted func(model.AnalysisHandle)
}

// ScannerOption customises a Scanner.
type ScannerOption func(*Scanner)

// WithSubmitHook registers fn to receive the analysis handle right after a
// successful submission, e.g. to resume polling later.
func WithSubmitHook(fn func(model.AnalysisHandle)) ScannerOption {
	return func(s *Scanner) { s.onSubmitted = fn }
}

// NewScanner composes a Submitter and a Poller.
func NewScanner(sub Submitter, poll Poller, logger logging.Logger, opts ...ScannerOption) *Scanner {
	s := &Scanner{
		submitter: sub,
		poller:    poll,
		logger:    logger.With(logging.Field{Key: "component", Value: "scanner"}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// New builds a Scanner backed by the HTTP submission client and poller.
func New(cfg Config, client webclient.WebClient, logger logging.Logger, pollOpts []PollerOption, opts ...ScannerOption) *Scanner {
	return NewScanner(
		NewSubmissionClient(cfg, client, logger),
		NewAnalysisPoller(cfg, client, logger, pollOpts...),
		logger,
		opts...,
	)
}

// RunScan submits target and polls until the analysis completes or
// isCancelled reports true. *model.SubmissionError and *model.PollError are
// returned unchanged; the poller is not used when submission fails.
func (s *Scanner) RunScan(ctx context.Context, target model.ScanTarget, onUpdate UpdateFunc, isCancelled CancelledFunc) (*model.ScanReport, error) {
	handle, err := s.submitter.Submit(ctx, target)
	if err != nil {
		return nil, err
	}
	if s.onSubmitted != nil {
		s.onSubmitted(handle)
	}
	return s.poller.PollUntilTerminal(ctx, handle, onUpdate, isCancelled)
}

// Resume re-enters the poll loop for an analysis submitted earlier.
func (s *Scanner) Resume(ctx context.Context, handle model.AnalysisHandle, onUpdate UpdateFunc, isCancelled CancelledFunc) (*model.ScanReport, error) {
	s.logger.Info("resuming analysis", logging.Field{Key: "analysis", Value: handle.String()})
	return s.poller.PollUntilTerminal(ctx, handle, onUpdate, isCancelled)
}
