package agent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rajarajane97/mastt/internal/log"
)

// fakeGenerator returns scripted responses in order and records prompts.
type fakeGenerator struct {
	responses []string
	errs      []error
	calls     int
	systems   []string
	prompts   []string
}

func (f *fakeGenerator) Generate(ctx context.Context, system, prompt string) (string, error) {
	i := f.calls
	f.calls++
	f.systems = append(f.systems, system)
	f.prompts = append(f.prompts, prompt)

	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	if len(f.responses) > 0 {
		return f.responses[len(f.responses)-1], nil
	}
	return "default response", nil
}

func fastRetry() RetryConfig {
	return RetryConfig{MaxRetries: 2, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
}

func newTestAgent(t *testing.T, role Role, gen Generator) *Agent {
	t.Helper()
	a, err := New(role, Config{Generator: gen, Logger: log.NewNop(), Retry: fastRetry()})
	if err != nil {
		t.Fatalf("New(%s): %v", role, err)
	}
	return a
}

func TestNewRequiresGenkitOrGenerator(t *testing.T) {
	if _, err := New(RoleArchitect, Config{}); err == nil {
		t.Fatal("expected configuration error without genkit or generator")
	}
}

func TestArchitectCreatesTestPlan(t *testing.T) {
	gen := &fakeGenerator{responses: []string{"# Test Plan\n\ncomprehensive plan"}}
	a := newTestAgent(t, RoleArchitect, gen)

	result, err := a.Execute(context.Background(), Task{}, "project context")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if result["test_plan_document"] != "# Test Plan\n\ncomprehensive plan" {
		t.Errorf("test_plan_document = %v", result["test_plan_document"])
	}
	if result["status"] != "draft" || result["created_by"] != "Test Architect" {
		t.Errorf("bookkeeping = %v / %v", result["status"], result["created_by"])
	}
	if !strings.Contains(gen.systems[0], "Test Architect") {
		t.Errorf("system prompt = %q", gen.systems[0])
	}
	if !strings.Contains(gen.prompts[0], "=== CONTEXT ===\nproject context") {
		t.Errorf("context block missing from prompt: %q", gen.prompts[0])
	}
	if !strings.Contains(gen.prompts[0], "=== TASK ===") {
		t.Errorf("task block missing from prompt: %q", gen.prompts[0])
	}
}

func TestExecuteOmitsEmptyContextBlock(t *testing.T) {
	gen := &fakeGenerator{responses: []string{"plan"}}
	a := newTestAgent(t, RoleArchitect, gen)

	if _, err := a.Execute(context.Background(), Task{}, ""); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if strings.Contains(gen.prompts[0], "=== CONTEXT ===") {
		t.Error("empty context must not produce a context block")
	}
}

func TestArchitectCriticReviewStatus(t *testing.T) {
	gen := &fakeGenerator{responses: []string{
		"CRITICAL\n- missing security tests\n- no performance plan\n\nSTRENGTHS\n- good scope\n\nStatus: Needs Revision",
	}}
	a := newTestAgent(t, RoleArchitectCritic, gen)

	result, err := a.Execute(context.Background(), Task{"test_plan": "the plan"}, "")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result["review_status"] != "needs_revision" {
		t.Errorf("review_status = %v, want needs_revision", result["review_status"])
	}
	if result["critical_issues_count"] != 2 {
		t.Errorf("critical_issues_count = %v, want 2", result["critical_issues_count"])
	}
}

func TestTestCaseWriterGeneratesPerCategory(t *testing.T) {
	gen := &fakeGenerator{responses: []string{
		`[{"test_case_id": "TC_API_001", "title": "login"}]`,
	}}
	a := newTestAgent(t, RoleTestCaseWriter, gen)

	result, err := a.Execute(context.Background(), Task{}, "plan context")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if gen.calls != len(testCaseCategories) {
		t.Errorf("generation calls = %d, want %d (one per category)", gen.calls, len(testCaseCategories))
	}
	for _, category := range testCaseCategories {
		cases, ok := result[category+"_test_cases"].([]map[string]any)
		if !ok || len(cases) != 1 {
			t.Errorf("%s_test_cases = %v", category, result[category+"_test_cases"])
		}
	}
	summary, ok := result["summary"].(map[string]any)
	if !ok {
		t.Fatalf("summary missing: %v", result)
	}
	if summary["total_test_cases"] != len(testCaseCategories) {
		t.Errorf("total = %v, want %d", summary["total_test_cases"], len(testCaseCategories))
	}
}

func TestAutomationAgentResult(t *testing.T) {
	gen := &fakeGenerator{responses: []string{"package apitests\n\nfunc TestLogin(t *testing.T) {}"}}
	a := newTestAgent(t, RoleAPIAutomation, gen)

	task := Task{"test_cases": []map[string]any{{"test_case_id": "TC_API_001"}}, "framework": "design"}
	result, err := a.Execute(context.Background(), task, "")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result["area"] != "api" {
		t.Errorf("area = %v, want api", result["area"])
	}
	if result["automation_code"] == "" {
		t.Error("automation_code empty")
	}
	if !strings.Contains(gen.prompts[0], "TC_API_001") {
		t.Error("test cases not forwarded into prompt")
	}
}

func TestDocumentationAgentProducesAllFiles(t *testing.T) {
	gen := &fakeGenerator{responses: []string{"# Doc content"}}
	a := newTestAgent(t, RoleDocumentation, gen)

	result, err := a.Execute(context.Background(), Task{}, "")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if gen.calls != len(documentationFiles) {
		t.Errorf("generation calls = %d, want %d", gen.calls, len(documentationFiles))
	}
	for _, file := range documentationFiles {
		if result[file] != "# Doc content" {
			t.Errorf("%s = %v", file, result[file])
		}
	}
}

func TestReviseTestPlanOnlyForArchitect(t *testing.T) {
	a := newTestAgent(t, RoleTestCritic, &fakeGenerator{})
	if _, err := a.ReviseTestPlan(context.Background(), "plan", "feedback", ""); err == nil {
		t.Fatal("expected error for non-architect revision")
	}
}

func TestReviseTestPlanResult(t *testing.T) {
	gen := &fakeGenerator{responses: []string{"# Revised Plan"}}
	a := newTestAgent(t, RoleArchitect, gen)

	result, err := a.ReviseTestPlan(context.Background(), "old plan", "fix the gaps", "ctx")
	if err != nil {
		t.Fatalf("ReviseTestPlan: %v", err)
	}
	if result["status"] != "revised" || result["version"] != "1.1" {
		t.Errorf("bookkeeping = %v / %v", result["status"], result["version"])
	}
	if !strings.Contains(gen.prompts[0], "old plan") || !strings.Contains(gen.prompts[0], "fix the gaps") {
		t.Error("plan and feedback not forwarded into prompt")
	}
}

func TestExecuteRecordsHistory(t *testing.T) {
	gen := &fakeGenerator{responses: []string{"plan text"}}
	a := newTestAgent(t, RoleArchitect, gen)

	if _, err := a.Execute(context.Background(), Task{}, ""); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	history := a.History()
	if len(history) != 2 {
		t.Fatalf("history entries = %d, want 2", len(history))
	}
	if history[0].Role != "user" || history[1].Role != "assistant" {
		t.Errorf("history roles = %s/%s", history[0].Role, history[1].Role)
	}
	if history[1].Content != "plan text" {
		t.Errorf("assistant entry = %q", history[1].Content)
	}

	a.Reset()
	if len(a.History()) != 0 {
		t.Error("Reset did not clear history")
	}
}

func TestGenerateRetriesTransientErrors(t *testing.T) {
	gen := &fakeGenerator{
		errs:      []error{errors.New("429 rate limit exceeded"), errors.New("503 unavailable")},
		responses: []string{"", "", "plan after retries"},
	}
	a := newTestAgent(t, RoleArchitect, gen)

	result, err := a.Execute(context.Background(), Task{}, "")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if gen.calls != 3 {
		t.Errorf("calls = %d, want 3", gen.calls)
	}
	if result["test_plan_document"] != "plan after retries" {
		t.Errorf("result = %v", result["test_plan_document"])
	}
}

func TestGenerateFailsFastOnPermanentError(t *testing.T) {
	wantErr := errors.New("invalid api key")
	gen := &fakeGenerator{errs: []error{wantErr, wantErr, wantErr}}
	a := newTestAgent(t, RoleArchitect, gen)

	if _, err := a.Execute(context.Background(), Task{}, ""); !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}
	if gen.calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry on permanent error)", gen.calls)
	}
}

func TestGenerateExhaustsRetryBudget(t *testing.T) {
	transient := errors.New("connection reset by peer")
	gen := &fakeGenerator{errs: []error{transient, transient, transient, transient}}
	a := newTestAgent(t, RoleArchitect, gen)

	if _, err := a.Execute(context.Background(), Task{}, ""); !errors.Is(err, transient) {
		t.Fatalf("err = %v, want wrapped %v", err, transient)
	}
	// MaxRetries 2 means 3 attempts total.
	if gen.calls != 3 {
		t.Errorf("calls = %d, want 3", gen.calls)
	}
}

func TestGenerateStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	gen := &fakeGenerator{errs: []error{errors.New("timeout")}}
	a, err := New(RoleArchitect, Config{
		Generator: gen,
		Logger:    log.NewNop(),
		Retry:     RetryConfig{MaxRetries: 5, InitialInterval: time.Hour, MaxInterval: time.Hour},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := a.Execute(ctx, Task{}, ""); err == nil {
		t.Fatal("expected error after context cancellation")
	}
	if gen.calls != 1 {
		t.Errorf("calls = %d, want 1", gen.calls)
	}
}
