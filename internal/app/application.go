package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/sentinelapp/sentinel/internal/logging"
	"github.com/sentinelapp/sentinel/internal/webclient"
)

// Application is the global runtime state container.
// It holds config and the services shared across modules (web client,
// orchestrator, logger). Pass Application into modules that need access to
// the global state rather than using package-level variables.
type Application struct {
	Config    *Config
	Logger    logging.Logger
	WebClient webclient.WebClient
	Orch      *Orchestrator
}

// NewApplication builds the web client and orchestrator from cfg. The API
// key is validated here so a misconfigured process fails at startup.
func NewApplication(cfg *Config, logger logging.Logger, opts ...Option) (*Application, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = logging.Nop{}
	}
	if err := cfg.Analyzer.Validate(); err != nil {
		return nil, err
	}

	wc, err := webclient.NewWebClient(cfg.WebClient, logger)
	if err != nil {
		return nil, fmt.Errorf("new webclient: %w", err)
	}

	return &Application{
		Config:    cfg,
		Logger:    logger,
		WebClient: wc,
		Orch:      NewOrchestrator(cfg, wc, logger, opts...),
	}, nil
}

// Shutdown stops the orchestrator, waiting for running jobs until ctx ends,
// and releases the web client.
func (a *Application) Shutdown(ctx context.Context) error {
	if a == nil {
		return errors.New("application is nil")
	}
	a.Logger.Info("application shutdown initiated")

	done := make(chan struct{})
	go func() {
		a.Orch.Close()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = fmt.Errorf("waiting for jobs: %w", ctx.Err())
	}

	if cerr := a.WebClient.Close(); cerr != nil {
		err = errors.Join(err, fmt.Errorf("close webclient: %w", cerr))
	}
	return err
}
