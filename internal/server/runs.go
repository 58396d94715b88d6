package server

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rajarajane97/mastt/internal/log"
	"github.com/rajarajane97/mastt/internal/workflow"
)

// Run lifecycle states as reported by the API. They wrap the workflow's own
// status with the registry's view of the goroutine.
const (
	runStateRunning   = "running"
	runStateRevising  = "revising"
	runStateCompleted = "completed"
	runStateFailed    = "failed"
)

// run is one registered workflow execution.
type run struct {
	id        uuid.UUID
	runner    Runner
	cancel    context.CancelFunc
	startedAt time.Time

	mu     sync.RWMutex
	state  string
	errMsg string
	report *workflow.Report
}

func (r *run) snapshot() (state, errMsg string, report *workflow.Report) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state, r.errMsg, r.report
}

type runHandler struct {
	factory          Factory
	defaultOutputDir string
	baseCtx          context.Context
	logger           log.Logger

	mu      sync.RWMutex
	runs    map[string]*run
	current *run
	// starting reserves the current-run slot between the conflict check and
	// registration, so two concurrent starts cannot both pass the check
	// while the factory is still building the first run.
	starting bool
}

func (rh *runHandler) reserveStart() bool {
	rh.mu.Lock()
	defer rh.mu.Unlock()
	if rh.starting {
		return false
	}
	if rh.current != nil {
		if state, _, _ := rh.current.snapshot(); state == runStateRunning {
			return false
		}
	}
	rh.starting = true
	return true
}

func (rh *runHandler) releaseStart(entry *run) {
	rh.mu.Lock()
	defer rh.mu.Unlock()
	rh.starting = false
	if entry != nil {
		rh.runs[entry.id.String()] = entry
		rh.current = entry
	}
}

type startRunRequest struct {
	ProjectName string `json:"project_name"`
	OutputDir   string `json:"output_dir,omitempty"`
}

type runSummary struct {
	RunID     string                  `json:"run_id"`
	State     string                  `json:"state"`
	Error     string                  `json:"error,omitempty"`
	StartedAt time.Time               `json:"started_at"`
	Workflow  workflow.StatusSnapshot `json:"workflow"`
}

func (rh *runHandler) startRun(w http.ResponseWriter, r *http.Request) {
	var req startRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "request body must be JSON", rh.logger)
		return
	}
	if req.ProjectName == "" {
		writeError(w, http.StatusBadRequest, "missing_project", "project_name is required", rh.logger)
		return
	}
	outputDir := req.OutputDir
	if outputDir == "" {
		outputDir = rh.defaultOutputDir
	}
	if outputDir == "" {
		writeError(w, http.StatusBadRequest, "missing_output_dir", "output_dir is required", rh.logger)
		return
	}

	// One pipeline at a time. The output-directory lock catches cross-process
	// conflicts; the reservation catches a second start on the same server,
	// including one arriving while the factory is still building this run.
	if !rh.reserveStart() {
		writeError(w, http.StatusConflict, "run_in_progress", "a run is already in progress", rh.logger)
		return
	}

	runCtx, cancel := context.WithCancel(rh.baseCtx)
	runner, closeFn, err := rh.factory(runCtx, req.ProjectName, outputDir)
	if err != nil {
		cancel()
		rh.releaseStart(nil)
		if errors.Is(err, workflow.ErrRunInProgress) {
			writeError(w, http.StatusConflict, "run_in_progress", err.Error(), rh.logger)
			return
		}
		rh.logger.Error("run setup failed", "project", req.ProjectName, "error", err)
		writeError(w, http.StatusInternalServerError, "setup_failed", err.Error(), rh.logger)
		return
	}

	entry := &run{
		id:        uuid.New(),
		runner:    runner,
		cancel:    cancel,
		startedAt: time.Now().UTC(),
		state:     runStateRunning,
	}
	rh.releaseStart(entry)

	go func() {
		defer cancel()
		report, err := runner.Run(runCtx)

		entry.mu.Lock()
		if err != nil {
			entry.state = runStateFailed
			entry.errMsg = err.Error()
		} else {
			entry.state = runStateCompleted
			entry.report = report
		}
		entry.mu.Unlock()

		if closeFn != nil {
			if err := closeFn(); err != nil {
				rh.logger.Warn("releasing run resources", "run_id", entry.id.String(), "error", err)
			}
		}
	}()

	rh.logger.Info("run started", "run_id", entry.id.String(), "project", req.ProjectName, "output", outputDir)
	writeJSON(w, http.StatusAccepted, map[string]string{
		"run_id": entry.id.String(),
		"state":  runStateRunning,
	}, rh.logger)
}

// currentRun returns the most recently started run. The project-scoped
// endpoints all operate on it.
func (rh *runHandler) currentRun(w http.ResponseWriter) *run {
	rh.mu.RLock()
	entry := rh.current
	rh.mu.RUnlock()
	if entry == nil {
		writeError(w, http.StatusNotFound, "no_run", "no run has been started", rh.logger)
		return nil
	}
	return entry
}

func (rh *runHandler) lookup(w http.ResponseWriter, r *http.Request) *run {
	idStr := r.PathValue("id")
	if _, err := uuid.Parse(idStr); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "invalid run ID", rh.logger)
		return nil
	}
	rh.mu.RLock()
	entry := rh.runs[idStr]
	rh.mu.RUnlock()
	if entry == nil {
		writeError(w, http.StatusNotFound, "not_found", "run not found", rh.logger)
		return nil
	}
	return entry
}

func (rh *runHandler) listRuns(w http.ResponseWriter, r *http.Request) {
	rh.mu.RLock()
	entries := make([]*run, 0, len(rh.runs))
	for _, entry := range rh.runs {
		entries = append(entries, entry)
	}
	rh.mu.RUnlock()

	summaries := make([]runSummary, 0, len(entries))
	for _, entry := range entries {
		summaries = append(summaries, summarize(entry))
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": summaries}, rh.logger)
}

func (rh *runHandler) getRun(w http.ResponseWriter, r *http.Request) {
	entry := rh.lookup(w, r)
	if entry == nil {
		return
	}
	writeJSON(w, http.StatusOK, summarize(entry), rh.logger)
}

func summarize(entry *run) runSummary {
	state, errMsg, _ := entry.snapshot()
	return runSummary{
		RunID:     entry.id.String(),
		State:     state,
		Error:     errMsg,
		StartedAt: entry.startedAt,
		Workflow:  entry.runner.Status(),
	}
}

func (rh *runHandler) projectStatus(w http.ResponseWriter, _ *http.Request) {
	entry := rh.currentRun(w)
	if entry == nil {
		return
	}
	state, errMsg, _ := entry.snapshot()
	ws := entry.runner.Status()
	writeJSON(w, http.StatusOK, map[string]any{
		"run_id":           entry.id.String(),
		"status":           state,
		"progress":         ws.ProgressPercent,
		"current_phase":    ws.CurrentStage,
		"message":          errMsg,
		"completed_stages": ws.CompletedStages,
		"total_stages":     ws.TotalStages,
		"started_at":       entry.startedAt,
	}, rh.logger)
}

func (rh *runHandler) projectResults(w http.ResponseWriter, _ *http.Request) {
	entry := rh.currentRun(w)
	if entry == nil {
		return
	}
	state, errMsg, report := entry.snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"state":   state,
		"error":   errMsg,
		"report":  report,
		"results": entry.runner.Results(),
	}, rh.logger)
}

// fileEntry describes one artifact in the run's output directory.
type fileEntry struct {
	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"modified_at"`
}

func (rh *runHandler) listFiles(w http.ResponseWriter, _ *http.Request) {
	entry := rh.currentRun(w)
	if entry == nil {
		return
	}

	root := entry.runner.OutputDir()
	var files []fileEntry
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if filepath.Base(rel) == ".mastt.lock" {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		files = append(files, fileEntry{
			Path:    filepath.ToSlash(rel),
			Size:    info.Size(),
			ModTime: info.ModTime().UTC(),
		})
		return nil
	})
	if err != nil {
		rh.logger.Error("listing run files", "run_id", entry.id.String(), "error", err)
		writeError(w, http.StatusInternalServerError, "list_failed", "could not list output files", rh.logger)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"files": files}, rh.logger)
}

func (rh *runHandler) downloadFile(w http.ResponseWriter, r *http.Request) {
	entry := rh.currentRun(w)
	if entry == nil {
		return
	}

	rel := filepath.FromSlash(r.PathValue("path"))
	// Reject absolute paths and anything escaping the output directory.
	if rel == "" || !filepath.IsLocal(rel) {
		writeError(w, http.StatusBadRequest, "invalid_path", "invalid file path", rh.logger)
		return
	}
	if filepath.Base(rel) == ".mastt.lock" {
		writeError(w, http.StatusNotFound, "not_found", "file not found", rh.logger)
		return
	}

	http.ServeFile(w, r, filepath.Join(entry.runner.OutputDir(), rel))
}

type feedbackRequest struct {
	Target   string `json:"target"`
	Feedback string `json:"feedback"`
}

func (rh *runHandler) submitFeedback(w http.ResponseWriter, r *http.Request) {
	entry := rh.currentRun(w)
	if entry == nil {
		return
	}

	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "request body must be JSON", rh.logger)
		return
	}
	if req.Feedback == "" {
		writeError(w, http.StatusBadRequest, "missing_feedback", "feedback is required", rh.logger)
		return
	}

	// Claim the run for this revision; feedback against a live run or a
	// revision already underway gets a conflict instead of racing the
	// stage machine.
	entry.mu.Lock()
	switch entry.state {
	case runStateRunning:
		entry.mu.Unlock()
		writeError(w, http.StatusConflict, "run_in_progress", "run is still in progress", rh.logger)
		return
	case runStateRevising:
		entry.mu.Unlock()
		writeError(w, http.StatusConflict, "revision_in_progress", "another revision is in progress", rh.logger)
		return
	}
	prev := entry.state
	entry.state = runStateRevising
	entry.mu.Unlock()

	err := entry.runner.HandleFeedback(r.Context(), req.Target, req.Feedback)

	entry.mu.Lock()
	entry.state = prev
	entry.mu.Unlock()

	if err != nil {
		switch {
		case errors.Is(err, workflow.ErrStageNotDone):
			writeError(w, http.StatusConflict, "stage_not_done", err.Error(), rh.logger)
		case errors.Is(err, workflow.ErrStageOrder), errors.Is(err, workflow.ErrStageCompleted),
			errors.Is(err, workflow.ErrStageNotEntered):
			writeError(w, http.StatusConflict, "stage_conflict", err.Error(), rh.logger)
		default:
			// Unknown targets and generation failures.
			rh.logger.Error("feedback failed", "run_id", entry.id.String(), "error", err)
			writeError(w, http.StatusBadRequest, "feedback_failed", err.Error(), rh.logger)
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "revised",
		"target": req.Target,
	}, rh.logger)
}
