package team

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rajarajane97/mastt/internal/agent"
	"github.com/rajarajane97/mastt/internal/analysis"
	"github.com/rajarajane97/mastt/internal/log"
	"github.com/rajarajane97/mastt/internal/rag"
	"github.com/rajarajane97/mastt/internal/workflow"
)

type stubGenerator struct {
	response string
	err      error
	calls    int
	prompts  []string
}

func (g *stubGenerator) Generate(ctx context.Context, system, prompt string) (string, error) {
	g.calls++
	g.prompts = append(g.prompts, prompt)
	if g.err != nil {
		return "", g.err
	}
	return g.response, nil
}

type stubAnalyzer struct{}

func (stubAnalyzer) FullAnalysis(ctx context.Context) (*analysis.Analysis, error) {
	return &analysis.Analysis{
		RepositoryPath: "/repo",
		Summary:        analysis.Summary{TotalFiles: 5, RequiresBackendTesting: true},
	}, nil
}

type stubProcessor struct{}

func (stubProcessor) ProcessFile(path string) (rag.Document, error) {
	return rag.Document{Text: "doc", Source: filepath.Base(path), SourceType: "text"}, nil
}

func (stubProcessor) ProcessDirectory(dir string) []rag.Document { return nil }

type stubEngine struct{}

func (stubEngine) AddDocuments(ctx context.Context, docs []rag.Document) int { return len(docs) }

func (stubEngine) ContextForAgent(ctx context.Context, query, sourceType string, maxTokens int) string {
	return "[Source: spec.md]\nretrieved context\n"
}

// defaultResponses gives every role a plausible happy-path reply. The
// critics approve, so no revision round happens unless a test overrides
// their generators.
func defaultResponses() map[agent.Role]*stubGenerator {
	gens := map[agent.Role]*stubGenerator{
		agent.RoleProjectManager:      {response: "# Final Report\nAll deliverables complete."},
		agent.RoleArchitect:           {response: "# Test Plan\nScope, strategy, risks."},
		agent.RoleArchitectCritic:     {response: "STRENGTHS:\n- thorough\n\nApproval status: Approved"},
		agent.RoleTestCaseWriter:      {response: `[{"test_case_id": "TC_X_001", "title": "login works"}]`},
		agent.RoleTestCritic:          {response: "No gaps found.\n\nApproval status: Approved"},
		agent.RoleAutomationArchitect: {response: "# Framework\nLayered pytest architecture."},
		agent.RoleDocumentation:       {response: "# Documentation\nGenerated file."},
	}
	for _, role := range agent.Roles() {
		if role.IsAutomation() {
			gens[role] = &stubGenerator{response: "```python\ndef test_case():\n    pass\n```"}
		}
	}
	return gens
}

func newTestTeam(t *testing.T, gens map[agent.Role]*stubGenerator) (*Team, string) {
	t.Helper()
	dir := t.TempDir()

	docFile := filepath.Join(t.TempDir(), "spec.md")
	if err := os.WriteFile(docFile, []byte("spec"), 0o644); err != nil {
		t.Fatal(err)
	}

	orc, err := workflow.New(workflow.Config{
		ProjectName:   "demo",
		OutputDir:     dir,
		DocumentPaths: []string{docFile},
	}, workflow.Deps{
		Analyzer:  stubAnalyzer{},
		Processor: stubProcessor{},
		Engine:    stubEngine{},
		Logger:    log.NewNop(),
	})
	if err != nil {
		t.Fatalf("workflow.New: %v", err)
	}
	t.Cleanup(func() { orc.Close() })

	agents := make(map[agent.Role]*agent.Agent, len(gens))
	for role, gen := range gens {
		a, err := agent.New(role, agent.Config{Generator: gen, Logger: log.NewNop()})
		if err != nil {
			t.Fatalf("agent.New(%s): %v", role, err)
		}
		agents[role] = a
	}

	tm, err := New(orc, agents, log.NewNop())
	if err != nil {
		t.Fatalf("team.New: %v", err)
	}
	return tm, dir
}

func TestNewRequiresAllRoles(t *testing.T) {
	gens := defaultResponses()
	dir := t.TempDir()
	orc, err := workflow.New(workflow.Config{ProjectName: "demo", OutputDir: dir}, workflow.Deps{
		Analyzer:  stubAnalyzer{},
		Processor: stubProcessor{},
		Engine:    stubEngine{},
		Logger:    log.NewNop(),
	})
	if err != nil {
		t.Fatal(err)
	}
	defer orc.Close()

	agents := make(map[agent.Role]*agent.Agent)
	for role, gen := range gens {
		if role == agent.RoleDocumentation {
			continue
		}
		a, err := agent.New(role, agent.Config{Generator: gen, Logger: log.NewNop()})
		if err != nil {
			t.Fatal(err)
		}
		agents[role] = a
	}

	if _, err := New(orc, agents, log.NewNop()); err == nil {
		t.Fatal("expected error for missing documentation agent")
	}
}

func TestRunHappyPath(t *testing.T) {
	gens := defaultResponses()
	tm, dir := newTestTeam(t, gens)

	report, err := tm.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	for key, want := range map[string]bool{
		"code_analysis":                  true,
		"test_plan_generated":            true,
		"test_cases_generated":           true,
		"automation_framework_generated": true,
		"api_tests_generated":            true,
		"db_tests_generated":             true,
		"cli_tests_generated":            true,
		"gui_tests_generated":            true,
		"documentation_generated":        true,
	} {
		if report.ResultsSummary[key] != want {
			t.Errorf("results summary %s: got %v", key, report.ResultsSummary[key])
		}
	}

	for _, file := range []string{
		"code_analysis.json",
		"processed_documents.json",
		"test_plans/test_plan_v1.md",
		"test_plans/test_plan_review.md",
		"test_cases/test_cases.json",
		"automation_code/framework/framework_design.md",
		"automation_code/api_tests/api_automation.md",
		"automation_code/db_tests/db_automation.md",
		"automation_code/cli_tests/cli_automation.md",
		"automation_code/gui_tests/gui_automation.md",
		"documentation/README.md",
		"documentation/ARCHITECTURE.md",
		"reports/final_project_report.md",
		"final_report.json",
	} {
		if _, err := os.Stat(filepath.Join(dir, file)); err != nil {
			t.Errorf("missing artifact %s: %v", file, err)
		}
	}

	// Approved review means no revision round.
	if _, err := os.Stat(filepath.Join(dir, "test_plans", "test_plan_v2.md")); !os.IsNotExist(err) {
		t.Error("revision artifact written despite approval")
	}
	if gens[agent.RoleArchitect].calls != 1 {
		t.Errorf("architect calls: got %d, want 1", gens[agent.RoleArchitect].calls)
	}
	// Six test case categories, one generation each.
	if gens[agent.RoleTestCaseWriter].calls != 6 {
		t.Errorf("writer calls: got %d, want 6", gens[agent.RoleTestCaseWriter].calls)
	}

	state := tm.Orchestrator().State()
	if state.Status != workflow.StatusCompleted {
		t.Errorf("run status: got %q", state.Status)
	}
	for _, stage := range []workflow.Stage{
		workflow.StageCodeAnalysis,
		workflow.StageTestPlanning,
		workflow.StageGUIAutomation,
		workflow.StageFinalReview,
	} {
		if !state.IsCompleted(stage) {
			t.Errorf("stage %s not completed", stage)
		}
	}
}

func TestRunRevisionRound(t *testing.T) {
	gens := defaultResponses()
	gens[agent.RoleArchitectCritic] = &stubGenerator{
		response: "CRITICAL:\n- no rollback plan\n\nApproval status: Needs Revision",
	}
	tm, dir := newTestTeam(t, gens)

	if _, err := tm.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "test_plans", "test_plan_v2.md")); err != nil {
		t.Fatalf("revised plan not written: %v", err)
	}
	// Draft plus one revision.
	if gens[agent.RoleArchitect].calls != 2 {
		t.Errorf("architect calls: got %d, want 2", gens[agent.RoleArchitect].calls)
	}
	if got := tm.Orchestrator().Results().TestPlan["version"]; got != "1.1" {
		t.Errorf("plan version after revision: got %v", got)
	}
	revision := gens[agent.RoleArchitect].prompts[1]
	if !strings.Contains(revision, "no rollback plan") {
		t.Error("revision prompt missing review feedback")
	}
}

func TestRunStopsOnPhaseFailure(t *testing.T) {
	gens := defaultResponses()
	gens[agent.RoleTestCaseWriter] = &stubGenerator{err: errors.New("invalid api key")}
	tm, dir := newTestTeam(t, gens)

	if _, err := tm.Run(context.Background()); err == nil {
		t.Fatal("expected run failure")
	}

	state := tm.Orchestrator().State()
	if state.Status != workflow.StatusFailed {
		t.Errorf("run status: got %q", state.Status)
	}
	// Earlier artifacts survive the failure; later ones were never written.
	if _, err := os.Stat(filepath.Join(dir, "test_plans", "test_plan_v1.md")); err != nil {
		t.Errorf("test plan missing after failure: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "test_cases", "test_cases.json")); !os.IsNotExist(err) {
		t.Error("test cases written despite failure")
	}
	if _, err := os.Stat(filepath.Join(dir, "final_report.json")); !os.IsNotExist(err) {
		t.Error("final report written despite failure")
	}
	if gens[agent.RoleAutomationArchitect].calls != 0 {
		t.Error("later phase ran after failure")
	}
}

func TestHandleFeedbackTestPlan(t *testing.T) {
	gens := defaultResponses()
	tm, dir := newTestTeam(t, gens)
	if _, err := tm.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if err := tm.HandleFeedback(context.Background(), FeedbackTestPlan, "add performance test coverage"); err != nil {
		t.Fatalf("HandleFeedback: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "test_plans", "test_plan_revised.md")); err != nil {
		t.Fatalf("revised plan not written: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "test_plans", "test_plan_review_revised.md")); err != nil {
		t.Fatalf("revised review not written: %v", err)
	}
	if got := tm.Orchestrator().Results().TestPlan["version"]; got != "1.1" {
		t.Errorf("plan version: got %v", got)
	}
	prompts := gens[agent.RoleArchitect].prompts
	if !strings.Contains(prompts[len(prompts)-1], "add performance test coverage") {
		t.Error("revision prompt missing user feedback")
	}

	// A rerun keeps the stage completed exactly once.
	state := tm.Orchestrator().State()
	count := 0
	for _, stage := range state.Completed {
		if stage == workflow.StageTestPlanning {
			count++
		}
	}
	if count != 1 {
		t.Errorf("planning stage completed %d times in state, want 1", count)
	}
}

func TestHandleFeedbackAutomation(t *testing.T) {
	gens := defaultResponses()
	tm, dir := newTestTeam(t, gens)
	if _, err := tm.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if err := tm.HandleFeedback(context.Background(), FeedbackAutomation, "use fixtures for database setup"); err != nil {
		t.Fatalf("HandleFeedback: %v", err)
	}

	for _, file := range []string{
		"automation_code/api_tests/api_automation_revised.md",
		"automation_code/db_tests/db_automation_revised.md",
		"automation_code/cli_tests/cli_automation_revised.md",
		"automation_code/gui_tests/gui_automation_revised.md",
	} {
		if _, err := os.Stat(filepath.Join(dir, file)); err != nil {
			t.Errorf("missing revised artifact %s: %v", file, err)
		}
	}
}

func TestHandleFeedbackRequiresCompletedStage(t *testing.T) {
	tm, _ := newTestTeam(t, defaultResponses())

	err := tm.HandleFeedback(context.Background(), FeedbackTestPlan, "feedback")
	if !errors.Is(err, workflow.ErrStageNotDone) {
		t.Fatalf("feedback before run: got %v, want ErrStageNotDone", err)
	}
}

func TestHandleFeedbackUnknownTarget(t *testing.T) {
	tm, _ := newTestTeam(t, defaultResponses())

	if err := tm.HandleFeedback(context.Background(), "deployment", "feedback"); err == nil {
		t.Fatal("expected error for unknown feedback target")
	}
}
