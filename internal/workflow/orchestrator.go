package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gofrs/flock"

	"github.com/rajarajane97/mastt/internal/agent"
	"github.com/rajarajane97/mastt/internal/analysis"
	"github.com/rajarajane97/mastt/internal/document"
	"github.com/rajarajane97/mastt/internal/log"
	"github.com/rajarajane97/mastt/internal/rag"
)

// ErrRunInProgress means another orchestrator already holds the output
// directory's run lock.
var ErrRunInProgress = errors.New("a run is already in progress for this output directory")

// lockFileName is the per-output-directory run lock.
const lockFileName = ".mastt.lock"

// outputDirectories is the layout created under the output root.
var outputDirectories = []string{
	"test_plans",
	"test_cases",
	"automation_code/framework",
	"automation_code/api_tests",
	"automation_code/db_tests",
	"automation_code/cli_tests",
	"automation_code/gui_tests",
	"automation_code/integration_tests",
	"automation_code/e2e_tests",
	"automation_code/utilities",
	"reports",
	"documentation",
	"logs",
}

// CodeAnalyzer is the analysis collaborator the orchestrator drives.
type CodeAnalyzer interface {
	FullAnalysis(ctx context.Context) (*analysis.Analysis, error)
}

// DocumentProcessor is the local-file collaborator.
type DocumentProcessor interface {
	ProcessFile(path string) (rag.Document, error)
	ProcessDirectory(dir string) []rag.Document
}

// PageFetcher pulls documents from a remote wiki space.
type PageFetcher interface {
	FetchSpace(ctx context.Context, spaceKey string, limit int) ([]rag.Document, error)
}

// ContextEngine is the retrieval side the orchestrator assembles agent
// context from. *rag.Engine satisfies it.
type ContextEngine interface {
	AddDocuments(ctx context.Context, docs []rag.Document) int
	ContextForAgent(ctx context.Context, query, sourceType string, maxTokens int) string
}

// AutomationCode groups the per-area automation results.
type AutomationCode struct {
	API      agent.Result `json:"api,omitempty"`
	Database agent.Result `json:"database,omitempty"`
	CLI      agent.Result `json:"cli,omitempty"`
	GUI      agent.Result `json:"gui,omitempty"`
}

// Results accumulates the latest result per pipeline artifact. A rerun
// overwrites its slot in place; prior versions survive only as separately
// named output files. Recorded payloads are never mutated after being
// stored, only replaced whole, so a field-level copy is a safe read view.
type Results struct {
	CodeAnalysis        *analysis.Analysis `json:"code_analysis,omitempty"`
	TestPlan            agent.Result       `json:"test_plan,omitempty"`
	TestPlanReview      agent.Result       `json:"test_plan_review,omitempty"`
	TestCases           agent.Result       `json:"test_cases,omitempty"`
	TestCaseReview      agent.Result       `json:"test_case_review,omitempty"`
	AutomationFramework agent.Result       `json:"automation_framework,omitempty"`
	AutomationCode      AutomationCode     `json:"automation_code"`
	Documentation       agent.Result       `json:"documentation,omitempty"`
}

// Config configures an orchestrator run.
type Config struct {
	ProjectName      string
	OutputDir        string
	DocumentPaths    []string
	ConfluenceSpace  string
	ConfluenceLimit  int // default 50
	MaxContextTokens int // default 4000
}

// Deps are the orchestrator's collaborators. Analyzer and Confluence may be
// nil when the project has no repository or no wiki; Engine and Processor
// are required.
type Deps struct {
	Analyzer   CodeAnalyzer
	Processor  DocumentProcessor
	Confluence PageFetcher
	Engine     ContextEngine
	Logger     log.Logger
}

// Orchestrator drives one run: stage transitions, context assembly, and
// output persistence. Single-goroutine use; concurrent runs over the same
// output directory are excluded by the file lock.
type Orchestrator struct {
	cfg    Config
	deps   Deps
	state  *State
	lock   *flock.Flock
	logger log.Logger

	resMu   sync.RWMutex
	results *Results
}

// New creates the output directory layout and acquires the run lock. A
// second orchestrator over the same directory fails fast with
// ErrRunInProgress.
func New(cfg Config, deps Deps) (*Orchestrator, error) {
	if cfg.OutputDir == "" {
		return nil, errors.New("output directory is required")
	}
	if deps.Engine == nil || deps.Processor == nil {
		return nil, errors.New("context engine and document processor are required")
	}
	if cfg.MaxContextTokens <= 0 {
		cfg.MaxContextTokens = 4000
	}
	if cfg.ConfluenceLimit <= 0 {
		cfg.ConfluenceLimit = 50
	}
	logger := deps.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	for _, dir := range outputDirectories {
		if err := os.MkdirAll(filepath.Join(cfg.OutputDir, dir), 0o755); err != nil {
			return nil, fmt.Errorf("creating output directory %s: %w", dir, err)
		}
	}

	lock := flock.New(filepath.Join(cfg.OutputDir, lockFileName))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring run lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%s: %w", cfg.OutputDir, ErrRunInProgress)
	}

	o := &Orchestrator{
		cfg:     cfg,
		deps:    deps,
		state:   NewState(),
		results: &Results{},
		lock:    lock,
		logger:  logger,
	}
	o.logger.Info("orchestrator initialized", "project", cfg.ProjectName, "output", cfg.OutputDir)
	return o, nil
}

// Close releases the run lock.
func (o *Orchestrator) Close() error {
	return o.lock.Unlock()
}

// State exposes the run's stage machine, used by the coordinator for
// feedback reruns.
func (o *Orchestrator) State() *State { return o.state }

// Results returns a copy of the accumulator, safe to read while the run is
// still filling it in.
func (o *Orchestrator) Results() Results {
	o.resMu.RLock()
	defer o.resMu.RUnlock()
	return *o.results
}

// UpdateResults gives fn exclusive access to the live accumulator. The
// coordinator records each phase's artifact through it.
func (o *Orchestrator) UpdateResults(fn func(*Results)) {
	o.resMu.Lock()
	defer o.resMu.Unlock()
	fn(o.results)
}

// OutputDir returns the run's output root.
func (o *Orchestrator) OutputDir() string { return o.cfg.OutputDir }

// RunCodeAnalysis analyzes the repository, persists code_analysis.json, and
// records the result. Analysis errors abort the run.
func (o *Orchestrator) RunCodeAnalysis(ctx context.Context) (*analysis.Analysis, error) {
	if err := o.state.Enter(StageCodeAnalysis); err != nil {
		return nil, err
	}
	if o.deps.Analyzer == nil {
		return nil, errors.New("code analyzer not configured")
	}

	o.logger.Info("stage started", "stage", StageCodeAnalysis.String())
	result, err := o.deps.Analyzer.FullAnalysis(ctx)
	if err != nil {
		return nil, fmt.Errorf("code analysis: %w", err)
	}
	if err := result.Save(o.cfg.OutputDir); err != nil {
		return nil, err
	}

	o.UpdateResults(func(r *Results) { r.CodeAnalysis = result })
	if err := o.state.Complete(StageCodeAnalysis, result.Summary); err != nil {
		return nil, err
	}
	o.logger.Info("stage complete", "stage", StageCodeAnalysis.String(), "files", result.Summary.TotalFiles)
	return result, nil
}

// documentProcessingOutput is what the document stage records in the state.
type documentProcessingOutput struct {
	TotalDocuments int `json:"total_documents"`
	RAGChunks      int `json:"rag_chunks"`
}

// RunDocumentProcessing collects documents from the configured paths and the
// wiki space, feeds them to the RAG engine, and persists the processed batch.
func (o *Orchestrator) RunDocumentProcessing(ctx context.Context) ([]rag.Document, error) {
	if err := o.state.Enter(StageDocumentProcessing); err != nil {
		return nil, err
	}
	o.logger.Info("stage started", "stage", StageDocumentProcessing.String())

	var docs []rag.Document
	for _, path := range o.cfg.DocumentPaths {
		info, err := os.Stat(path)
		switch {
		case err != nil:
			o.logger.Warn("skipping document path", "path", path, "error", err)
		case info.IsDir():
			docs = append(docs, o.deps.Processor.ProcessDirectory(path)...)
		default:
			doc, err := o.deps.Processor.ProcessFile(path)
			if err != nil {
				o.logger.Warn("skipping document", "path", path, "error", err)
				continue
			}
			docs = append(docs, doc)
		}
	}

	if o.deps.Confluence != nil && o.cfg.ConfluenceSpace != "" {
		pages, err := o.deps.Confluence.FetchSpace(ctx, o.cfg.ConfluenceSpace, o.cfg.ConfluenceLimit)
		if err != nil {
			// The wiki is one source among several; its failure does not
			// abort local-document ingestion.
			o.logger.Error("confluence fetch failed", "space", o.cfg.ConfluenceSpace, "error", err)
		} else {
			docs = append(docs, pages...)
		}
	}

	chunks := 0
	if len(docs) > 0 {
		chunks = o.deps.Engine.AddDocuments(ctx, docs)
	}
	if err := document.SaveProcessed(o.cfg.OutputDir, docs); err != nil {
		return nil, err
	}

	output := documentProcessingOutput{TotalDocuments: len(docs), RAGChunks: chunks}
	if err := o.state.Complete(StageDocumentProcessing, output); err != nil {
		return nil, err
	}
	o.logger.Info("stage complete", "stage", StageDocumentProcessing.String(),
		"documents", len(docs), "chunks", chunks)
	return docs, nil
}

// ContextForAgent assembles one context string for a downstream generation
// call: the code-analysis summary (when requested and available), retrieved
// documentation, and the prior-stage outputs the role depends on. Selection
// dispatches on the Role tag.
func (o *Orchestrator) ContextForAgent(ctx context.Context, role agent.Role, query string, includeAnalysis bool) string {
	var parts []string
	results := o.Results()

	if includeAnalysis && results.CodeAnalysis != nil {
		if summary, err := json.MarshalIndent(results.CodeAnalysis.Summary, "", "  "); err == nil {
			parts = append(parts, "=== CODE ANALYSIS RESULTS ===", string(summary), "")
		}
	}

	if ragContext := o.deps.Engine.ContextForAgent(ctx, query, role.SourceType(), o.cfg.MaxContextTokens); ragContext != "" {
		parts = append(parts, "=== RELEVANT DOCUMENTATION ===", ragContext, "")
	}

	switch {
	case role == agent.RoleTestCaseWriter || role == agent.RoleTestCritic:
		if results.TestPlan != nil {
			parts = append(parts, "=== TEST PLAN ===", stringify(results.TestPlan), "")
		}
	case role.IsAutomation():
		if results.TestCases != nil {
			parts = append(parts, "=== TEST CASES ===", stringify(results.TestCases), "")
		}
		if results.AutomationFramework != nil {
			parts = append(parts, "=== AUTOMATION FRAMEWORK ===", stringify(results.AutomationFramework), "")
		}
	}

	return strings.Join(parts, "\n")
}

// SaveAgentOutput persists one agent artifact under the role's output
// subdirectory. Structured payloads are written as indented JSON, strings
// verbatim.
func (o *Orchestrator) SaveAgentOutput(role agent.Role, output any, filename string) error {
	dir := filepath.Join(o.cfg.OutputDir, role.OutputDir())
	path := filepath.Join(dir, filename)

	var data []byte
	switch v := output.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		var err error
		data, err = json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling %s output: %w", role, err)
		}
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	o.logger.Info("agent output saved", "role", role.String(), "file", path)
	return nil
}

// Report is the final run report written as final_report.json.
type Report struct {
	ProjectName    string          `json:"project_name"`
	State          *State          `json:"workflow_state"`
	ResultsSummary map[string]bool `json:"results_summary"`
	OutputLocation string          `json:"output_location"`
}

// Finalize closes the run: stamps the end time, moves to the complete
// stage, and writes final_report.json with presence booleans per artifact.
func (o *Orchestrator) Finalize() (*Report, error) {
	if err := o.state.Enter(StageComplete); err != nil {
		return nil, err
	}
	o.state.Finish()

	results := o.Results()
	report := &Report{
		ProjectName: o.cfg.ProjectName,
		State:       o.state,
		ResultsSummary: map[string]bool{
			"code_analysis":                  results.CodeAnalysis != nil,
			"test_plan_generated":            results.TestPlan != nil,
			"test_cases_generated":           results.TestCases != nil,
			"automation_framework_generated": results.AutomationFramework != nil,
			"api_tests_generated":            results.AutomationCode.API != nil,
			"db_tests_generated":             results.AutomationCode.Database != nil,
			"cli_tests_generated":            results.AutomationCode.CLI != nil,
			"gui_tests_generated":            results.AutomationCode.GUI != nil,
			"documentation_generated":        results.Documentation != nil,
		},
		OutputLocation: o.cfg.OutputDir,
	}

	if err := o.saveJSON("final_report.json", report); err != nil {
		return nil, err
	}
	o.logger.Info("workflow finalized", "project", o.cfg.ProjectName)
	return report, nil
}

// StatusSnapshot is a progress summary for the HTTP surface.
type StatusSnapshot struct {
	ProjectName     string   `json:"project_name"`
	CurrentStage    string   `json:"current_stage"`
	CompletedStages []string `json:"completed_stages"`
	TotalStages     int      `json:"total_stages"`
	ProgressPercent float64  `json:"progress_percentage"`
	Status          string   `json:"status"`
	StartTime       string   `json:"start_time"`
}

// Status reports run progress. Safe to call while the run goroutine is
// still transitioning stages.
func (o *Orchestrator) Status() StatusSnapshot {
	progress := o.state.Progress()
	completed := make([]string, len(progress.Completed))
	for i, s := range progress.Completed {
		completed[i] = s.String()
	}
	total := len(Stages())
	return StatusSnapshot{
		ProjectName:     o.cfg.ProjectName,
		CurrentStage:    progress.Current.String(),
		CompletedStages: completed,
		TotalStages:     total,
		ProgressPercent: float64(len(completed)) / float64(total) * 100,
		Status:          progress.Status,
		StartTime:       progress.StartTime.Format("2006-01-02T15:04:05Z07:00"),
	}
}

func (o *Orchestrator) saveJSON(filename string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", filename, err)
	}
	path := filepath.Join(o.cfg.OutputDir, filename)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// stringify renders a structured result for inclusion in a prompt context
// block.
func stringify(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
