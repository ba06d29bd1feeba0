package analyzer

import (
	"context"
	"time"

	"github.com/sentinelapp/sentinel/internal/model"
)

// UpdateFunc receives every report produced by the poll loop, including the
// last one. It runs on the polling goroutine and must return quickly.
type UpdateFunc func(report *model.ScanReport)

// CancelledFunc is checked between polls. Returning true ends the loop with
// the latest report.
type CancelledFunc func() bool

// Sleeper waits d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Submitter uploads a file or registers a URL and returns the analysis to
// poll.
type Submitter interface {
	Submit(ctx context.Context, target model.ScanTarget) (model.AnalysisHandle, error)
}

// Poller queries an analysis until it completes or the caller cancels.
type Poller interface {
	PollOnce(ctx context.Context, handle model.AnalysisHandle) (*model.ScanReport, error)
	PollUntilTerminal(ctx context.Context, handle model.AnalysisHandle, onUpdate UpdateFunc, isCancelled CancelledFunc) (*model.ScanReport, error)
}

// SleepContext is the production Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
