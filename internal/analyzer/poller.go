package analyzer

import (
	"context"
	"net/http"

	"github.com/sentinelapp/sentinel/internal/logging"
	"github.com/sentinelapp/sentinel/internal/model"
	"github.com/sentinelapp/sentinel/internal/normalizer"
	"github.com/sentinelapp/sentinel/internal/webclient"
)

// AnalysisPoller re-queries one analysis until the service reports it
// completed. There is no attempt limit and no overall timeout; the caller
// ends the loop through CancelledFunc or the context.
type AnalysisPoller struct {
	cfg       Config
	client    webclient.WebClient
	logger    logging.Logger
	sleep     Sleeper
	normalize func([]byte) (*model.ScanReport, error)
}

// PollerOption customises an AnalysisPoller.
type PollerOption func(*AnalysisPoller)

// WithSleeper replaces the wait between polls, mostly for tests.
func WithSleeper(s Sleeper) PollerOption {
	return func(p *AnalysisPoller) {
		if s != nil {
			p.sleep = s
		}
	}
}

// NewAnalysisPoller creates a poller. cfg is completed with defaults.
func NewAnalysisPoller(cfg Config, client webclient.WebClient, logger logging.Logger, opts ...PollerOption) *AnalysisPoller {
	p := &AnalysisPoller{
		cfg:       cfg.WithDefaults(),
		client:    client,
		logger:    logger.With(logging.Field{Key: "component", Value: "poller"}),
		sleep:     SleepContext,
		normalize: normalizer.Normalize,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// PollOnce issues one GET for handle and normalizes the body. The returned
// report may be non-terminal. Every failure is a *model.PollError.
func (p *AnalysisPoller) PollOnce(ctx context.Context, handle model.AnalysisHandle) (*model.ScanReport, error) {
	target, err := analysisURL(p.cfg.BaseURL, handle)
	if err != nil {
		return nil, &model.PollError{Cause: err}
	}

	resp, err := p.client.Do(ctx, &webclient.Request{
		Method:  http.MethodGet,
		URL:     target,
		Headers: serviceHeaders(p.cfg.APIKey),
	})
	if err != nil {
		return nil, &model.PollError{Cause: err}
	}
	if !resp.OK() {
		return nil, &model.PollError{Cause: responseError(resp)}
	}

	report, err := p.normalize(resp.Body)
	if err != nil {
		return nil, &model.PollError{Cause: err}
	}
	return report, nil
}

// PollUntilTerminal polls handle, hands every report to onUpdate and returns
// the first completed report. If isCancelled reports true after an update,
// the latest report is returned without another request. A failed poll
// aborts the loop; the handle can be polled again to resume.
func (p *AnalysisPoller) PollUntilTerminal(ctx context.Context, handle model.AnalysisHandle, onUpdate UpdateFunc, isCancelled CancelledFunc) (*model.ScanReport, error) {
	if onUpdate == nil {
		onUpdate = func(*model.ScanReport) {}
	}
	if isCancelled == nil {
		isCancelled = func() bool { return false }
	}

	logger := p.logger.With(logging.Field{Key: "analysis", Value: handle.String()})

	for attempt := 1; ; attempt++ {
		report, err := p.PollOnce(ctx, handle)
		if err != nil {
			logger.Warn("poll failed",
				logging.Field{Key: "attempt", Value: attempt},
				logging.Field{Key: "error", Value: err.Error()})
			return nil, err
		}

		logger.Debug("polled analysis",
			logging.Field{Key: "attempt", Value: attempt},
			logging.Field{Key: "status", Value: string(report.Status)},
			logging.Field{Key: "verdicts", Value: len(report.Verdicts)})

		onUpdate(report)

		if report.Status == model.StatusCompleted {
			logger.Info("analysis completed",
				logging.Field{Key: "attempts", Value: attempt},
				logging.Field{Key: "malicious", Value: report.Stats.Malicious},
				logging.Field{Key: "suspicious", Value: report.Stats.Suspicious})
			return report, nil
		}
		if isCancelled() {
			logger.Info("polling cancelled", logging.Field{Key: "attempts", Value: attempt})
			return report, nil
		}

		if err := p.sleep(ctx, p.cfg.PollInterval); err != nil {
			return nil, &model.PollError{Cause: err}
		}
	}
}
