// Package server exposes the workflow over a JSON HTTP API: starting runs,
// polling their progress, downloading artifacts, and submitting feedback that
// reopens completed stages.
package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/rajarajane97/mastt/internal/log"
	"github.com/rajarajane97/mastt/internal/workflow"
)

// Runner is one workflow execution. *team.Team satisfies it.
type Runner interface {
	Run(ctx context.Context) (*workflow.Report, error)
	HandleFeedback(ctx context.Context, target, feedback string) error
	Status() workflow.StatusSnapshot
	Results() workflow.Results
	OutputDir() string
}

// Factory builds a runner for one run. It returns the runner and a close
// function releasing the run's resources (the output-directory lock). A
// second concurrent run over the same output directory must fail with
// workflow.ErrRunInProgress.
type Factory func(ctx context.Context, projectName, outputDir string) (Runner, func() error, error)

// Config contains configuration for creating the API server.
type Config struct {
	Logger  log.Logger
	Factory Factory // Required

	// DefaultOutputDir is used when a start request omits output_dir.
	DefaultOutputDir string
}

// Server is the JSON API HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates the API server with all routes configured. ctx bounds
// the lifetime of run goroutines: canceling it aborts in-flight runs.
func NewServer(ctx context.Context, cfg Config) (*Server, error) {
	if cfg.Factory == nil {
		return nil, errors.New("runner factory is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	rh := &runHandler{
		factory:          cfg.Factory,
		defaultOutputDir: cfg.DefaultOutputDir,
		runs:             make(map[string]*run),
		baseCtx:          ctx,
		logger:           logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/project/start", rh.startRun)
	mux.HandleFunc("GET /api/project/status", rh.projectStatus)
	mux.HandleFunc("GET /api/project/results", rh.projectResults)
	mux.HandleFunc("POST /api/project/feedback", rh.submitFeedback)
	mux.HandleFunc("GET /api/files/list", rh.listFiles)
	mux.HandleFunc("GET /api/files/download/{path...}", rh.downloadFile)
	mux.HandleFunc("GET /api/runs", rh.listRuns)
	mux.HandleFunc("GET /api/runs/{id}", rh.getRun)

	var handler http.Handler = mux
	handler = loggingMiddleware(logger)(handler)
	handler = recoveryMiddleware(logger)(handler)

	// Health probes bypass the middleware stack.
	health := func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"}, logger)
	}
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", health)
	topMux.HandleFunc("GET /api/health", health)
	topMux.Handle("/", handler)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}
