package server

import (
	"github.com/sentinelapp/sentinel/internal/app"
	"github.com/sentinelapp/sentinel/internal/logging"
)

type Config struct {
	// ListenAddr is the HTTP listen address for the API server.
	ListenAddr string

	// AppConfig configures the orchestrator the server builds when
	// Orchestrator is nil.
	AppConfig *app.Config

	// Orchestrator, when set, is used instead of building one. The server
	// does not close it.
	Orchestrator *app.Orchestrator

	Logger logging.Logger

	// MaxUploadBytes caps multipart uploads. Zero means 32 MiB.
	MaxUploadBytes int64
}
