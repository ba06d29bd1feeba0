package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-json-experiment/json"
	"github.com/gorilla/websocket"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/sentinelapp/sentinel/internal/app"
	"github.com/sentinelapp/sentinel/internal/logging"
	"github.com/sentinelapp/sentinel/internal/model"
	_ "github.com/sentinelapp/sentinel/internal/server/docs" // registers the swagger spec
	"github.com/sentinelapp/sentinel/internal/utils"
	"github.com/sentinelapp/sentinel/internal/webclient"
)

const defaultMaxUploadBytes = 32 << 20

// Server is the HTTP + WebSocket API surface for Sentinel.
type Server struct {
	cfg          Config
	orchestrator *app.Orchestrator
	router       chi.Router
	upgrader     websocket.Upgrader
	logger       logging.Logger

	// owned resources, closed by Close
	client   webclient.WebClient
	ownsOrch bool
}

// NewServer creates a new Server. Without cfg.Orchestrator it builds its own
// web client and orchestrator from cfg.AppConfig.
func NewServer(cfg Config) (*Server, error) {
	if cfg.AppConfig == nil {
		cfg.AppConfig = app.DefaultConfig()
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = cfg.AppConfig.ListenAddr
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewStdoutLogger("server")
	}

	s := &Server{
		cfg:          cfg,
		orchestrator: cfg.Orchestrator,
		router:       chi.NewRouter(),
		logger:       logger.With(logging.Field{Key: "component", Value: "server"}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	if s.orchestrator == nil {
		if err := cfg.AppConfig.Analyzer.Validate(); err != nil {
			return nil, err
		}
		wc, err := webclient.NewWebClient(cfg.AppConfig.WebClient, logger)
		if err != nil {
			return nil, fmt.Errorf("creating webclient: %w", err)
		}
		s.client = wc
		s.orchestrator = app.NewOrchestrator(cfg.AppConfig, wc, logger)
		s.ownsOrch = true
	}

	s.routes()
	return s, nil
}

// Orchestrator returns the underlying orchestrator for advanced use (tests, etc.).
func (s *Server) Orchestrator() *app.Orchestrator {
	return s.orchestrator
}

func (s *Server) routes() {
	r := s.router

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.corsMiddleware)

	// CORS preflight
	r.Options("/scans", s.optionsHandler("GET"))
	r.Options("/scans/files", s.optionsHandler("POST"))
	r.Options("/scans/urls", s.optionsHandler("POST"))
	r.Options("/scans/{jobID}", s.optionsHandler("GET, DELETE"))
	r.Options("/ws/scans/{jobID}", s.optionsHandler("GET"))

	r.Get("/healthz", s.handleHealth)

	// Scans over REST
	r.Post("/scans/files", s.handleScanFile)
	r.Post("/scans/urls", s.handleScanURL)
	r.Get("/scans", s.handleListJobs)
	r.Get("/scans/{jobID}", s.handleGetJob)
	r.Delete("/scans/{jobID}", s.handleCancelJob)

	// WebSocket for scan progress
	r.Get("/ws/scans/{jobID}", s.handleScanWS)

	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		next.ServeHTTP(w, r)
	})
}

func (s *Server) optionsHandler(methods string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Methods", methods)
		w.WriteHeader(http.StatusNoContent)
	}
}

// ServeHTTP implements http.Handler. Every request is logged once it has
// been answered. Bodies are not logged since they carry uploads.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

	s.router.ServeHTTP(ww, r)

	fields := []logging.Field{
		{Key: "method", Value: r.Method},
		{Key: "path", Value: r.URL.Path},
		{Key: "status", Value: ww.Status()},
		{Key: "bytes", Value: ww.BytesWritten()},
		{Key: "duration_ms", Value: time.Since(start).Milliseconds()},
	}
	if q := r.URL.Query(); len(q) > 0 {
		fields = append(fields, logging.Field{Key: "query", Value: q})
	}
	s.logger.Info("http_request", fields...)
}

// Close shuts down the orchestrator and web client when the server built
// them.
func (s *Server) Close() {
	if s.ownsOrch && s.orchestrator != nil {
		s.orchestrator.Close()
	}
	if s.client != nil {
		_ = s.client.Close()
	}
}

// HTTPServer creates an *http.Server ready to ListenAndServe.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       2 * time.Minute,
		WriteTimeout:      0, // allow streaming
	}
}

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.MarshalWrite(w, v)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// --- HTTP handlers ---

// handleHealth godoc
// @Summary Liveness probe
// @Tags health
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /healthz [get]
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// Scans

// handleScanFile godoc
// @Summary Scan a file
// @Description Uploads the multipart part "file" to the scanning service and starts a job that polls its analysis.
// @Tags scans
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "file to scan"
// @Success 202 {object} app.Job
// @Failure 400 {object} ErrorResponse
// @Failure 413 {object} ErrorResponse
// @Router /scans/files [post]
func (s *Server) handleScanFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", s.cfg.MaxUploadBytes))
			return
		}
		s.logger.Warn("reading upload", logging.Field{Key: "error", Value: err.Error()})
		writeError(w, http.StatusBadRequest, `missing multipart file field "file"`)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		s.logger.Warn("reading upload body", logging.Field{Key: "error", Value: err.Error()})
		writeError(w, http.StatusBadRequest, "could not read upload")
		return
	}

	s.startScan(w, r, model.FileTarget{Name: header.Filename, Data: data})
}

// handleScanURL godoc
// @Summary Scan a URL
// @Tags scans
// @Accept json
// @Produce json
// @Param request body ScanURLRequest true "URL to scan"
// @Success 202 {object} app.Job
// @Failure 400 {object} ErrorResponse
// @Router /scans/urls [post]
func (s *Server) handleScanURL(w http.ResponseWriter, r *http.Request) {
	var body ScanURLRequest
	if err := json.UnmarshalRead(r.Body, &body); err != nil {
		s.logger.Warn("decoding scan url body", logging.Field{Key: "error", Value: err.Error()})
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	target, err := utils.CheckURL(body.URL)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid url: %v", err))
		return
	}

	s.startScan(w, r, model.URLTarget{URL: target})
}

func (s *Server) startScan(w http.ResponseWriter, r *http.Request, target model.ScanTarget) {
	job, err := s.orchestrator.StartScan(r.Context(), target)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, app.ErrClosed) {
			status = http.StatusServiceUnavailable
		}
		s.logger.Warn("starting scan job", logging.Field{Key: "error", Value: err.Error()})
		writeError(w, status, err.Error())
		return
	}
	s.logger.Info("started scan job",
		logging.Field{Key: "job_id", Value: job.ID},
		logging.Field{Key: "kind", Value: string(job.Kind)})
	writeJSON(w, http.StatusAccepted, job)
}

// handleListJobs godoc
// @Summary List scan jobs
// @Tags scans
// @Produce json
// @Success 200 {array} app.Job
// @Router /scans [get]
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs := s.orchestrator.ListJobs()
	s.logger.Debug("listed jobs", logging.Field{Key: "count", Value: len(jobs)})
	writeJSON(w, http.StatusOK, jobs)
}

// handleGetJob godoc
// @Summary Get a scan job
// @Tags scans
// @Produce json
// @Param jobID path string true "job ID"
// @Success 200 {object} app.Job
// @Failure 404 {object} ErrorResponse
// @Router /scans/{jobID} [get]
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job := s.orchestrator.GetJob(jobID)
	if job == nil {
		s.logger.Warn("getting job: not found", logging.Field{Key: "job_id", Value: jobID})
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// handleCancelJob godoc
// @Summary Cancel a scan job
// @Description The job stops after its current poll and keeps the latest report.
// @Tags scans
// @Param jobID path string true "job ID"
// @Success 204
// @Router /scans/{jobID} [delete]
func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if s.orchestrator.CancelJob(jobID) {
		s.logger.Info("canceled job", logging.Field{Key: "job_id", Value: jobID})
	}
	w.WriteHeader(http.StatusNoContent)
}

// WebSockets

// handleScanWS godoc
// @Summary Stream scan progress
// @Description Upgrades to a WebSocket, sends the job snapshot, then every job event until the job ends, then the final snapshot.
// @Tags scans
// @Param jobID path string true "job ID"
// @Failure 404 {object} ErrorResponse
// @Router /ws/scans/{jobID} [get]
func (s *Server) handleScanWS(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job := s.orchestrator.GetJob(jobID)
	if job == nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrading to websocket", logging.Field{Key: "error", Value: err.Error()})
		return
	}
	defer conn.Close()

	if err := writeWS(conn, job); err != nil {
		return
	}

	for ev := range job.Events {
		if err := writeWS(conn, ev); err != nil {
			// Client went away; the job keeps running and stays queryable.
			s.logger.Debug("websocket write failed", logging.Field{Key: "job_id", Value: jobID}, logging.Field{Key: "error", Value: err.Error()})
			return
		}
	}

	if final := s.orchestrator.GetJob(jobID); final != nil {
		_ = writeWS(conn, final)
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "job finished"),
		time.Now().Add(time.Second))
}

func writeWS(conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}
