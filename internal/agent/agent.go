// Package agent implements the generation clients of the pipeline: thin,
// stateless wrappers around a hosted model prompt plus light response
// post-processing. Each agent carries a Role tag; everything downstream
// (context assembly, output routing) dispatches on the tag.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/rajarajane97/mastt/internal/log"
)

// Generation defaults, matching the hosted-model limits the pipeline was
// tuned for.
const (
	DefaultTemperature float32 = 0.7
	DefaultMaxTokens   int32   = 8192
)

// testCaseCategories are the writer's fixed categories, generated one call
// each so no single response has to carry the whole suite.
var testCaseCategories = []string{"api", "database", "cli", "gui", "integration", "e2e"}

// documentationFiles are the files the documentation agent produces, one
// generation call each.
var documentationFiles = []string{
	"README.md",
	"INSTALLATION.md",
	"ARCHITECTURE.md",
	"USAGE.md",
	"DEBUGGING.md",
	"CONTRIBUTING.md",
	"API_REFERENCE.md",
	"CHANGELOG.md",
}

// Task is the structured input of one agent invocation.
type Task map[string]any

// Result is the structured payload an agent produces. Always carries a
// created_by entry naming the producing agent.
type Result map[string]any

// Exchange is one prompt/response pair in an agent's conversation log.
type Exchange struct {
	Role    string // "user" or "assistant"
	Content string
}

// Generator produces model text for a system prompt and a user prompt.
// Production uses the Genkit-backed implementation; tests substitute fakes.
type Generator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// Config carries the shared dependencies of all agents.
type Config struct {
	Genkit    *genkit.Genkit
	ModelName string // provider-qualified, e.g. "googleai/gemini-2.5-flash"
	Logger    log.Logger

	// Generator overrides the Genkit-backed generator. Used in tests.
	Generator Generator

	RateLimiter *rate.Limiter
	Retry       RetryConfig // zero value uses DefaultRetryConfig

	Temperature float32 // zero uses DefaultTemperature
	MaxTokens   int32   // zero uses DefaultMaxTokens
}

func (cfg Config) validate() error {
	if cfg.Generator == nil && cfg.Genkit == nil {
		return errors.New("genkit instance is required")
	}
	if cfg.Generator == nil && cfg.ModelName == "" {
		return errors.New("model name is required")
	}
	return nil
}

// Agent is one generation client. It is stateless aside from its
// conversation log and is not safe for concurrent use; the pipeline drives
// each agent from a single goroutine.
type Agent struct {
	role      Role
	generator Generator
	limiter   *rate.Limiter
	retry     RetryConfig
	logger    log.Logger
	history   []Exchange
}

// New creates an agent for role. Configuration problems are detected here,
// before any run starts.
func New(role Role, cfg Config) (*Agent, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("agent %s: %w", role, err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	retry := cfg.Retry
	if retry == (RetryConfig{}) {
		retry = DefaultRetryConfig()
	}

	generator := cfg.Generator
	if generator == nil {
		temperature := cfg.Temperature
		if temperature == 0 {
			temperature = DefaultTemperature
		}
		maxTokens := cfg.MaxTokens
		if maxTokens == 0 {
			maxTokens = DefaultMaxTokens
		}
		generator = &genkitGenerator{
			g:           cfg.Genkit,
			modelName:   cfg.ModelName,
			temperature: temperature,
			maxTokens:   maxTokens,
		}
	}

	a := &Agent{
		role:      role,
		generator: generator,
		limiter:   cfg.RateLimiter,
		retry:     retry,
		logger:    logger,
	}
	a.logger.Info("agent initialized", "role", role.String(), "name", role.DisplayName())
	return a, nil
}

// Role returns the agent's role tag.
func (a *Agent) Role() Role { return a.role }

// History returns the conversation log so far.
func (a *Agent) History() []Exchange { return a.history }

// Reset clears the conversation log.
func (a *Agent) Reset() {
	a.history = nil
}

// Execute runs one task against the model and shapes the reply into the
// role's result form. contextStr is the orchestrator-assembled context block;
// it may be empty.
func (a *Agent) Execute(ctx context.Context, task Task, contextStr string) (Result, error) {
	switch a.role {
	case RoleArchitect:
		return a.createTestPlan(ctx, contextStr)
	case RoleArchitectCritic:
		return a.reviewTestPlan(ctx, task, contextStr)
	case RoleTestCaseWriter:
		return a.writeAllTestCases(ctx, contextStr)
	case RoleTestCritic:
		return a.reviewTestCases(ctx, task, contextStr)
	case RoleAutomationArchitect:
		return a.designFramework(ctx, contextStr)
	case RoleAPIAutomation, RoleDBAutomation, RoleCLIAutomation, RoleGUIAutomation:
		return a.generateAutomation(ctx, task, contextStr)
	case RoleDocumentation:
		return a.generateDocumentation(ctx, contextStr)
	case RoleProjectManager:
		return a.finalReport(ctx, task, contextStr)
	default:
		return nil, fmt.Errorf("no task handler for role %s", a.role)
	}
}

// generate builds the full prompt, calls the model with retry, and records
// the exchange.
func (a *Agent) generate(ctx context.Context, prompt, contextStr string) (string, error) {
	var sb strings.Builder
	if contextStr != "" {
		sb.WriteString("=== CONTEXT ===\n")
		sb.WriteString(contextStr)
		sb.WriteString("\n\n")
	}
	sb.WriteString("=== TASK ===\n")
	sb.WriteString(prompt)

	text, err := a.generateWithRetry(ctx, a.role.SystemPrompt(), sb.String())
	if err != nil {
		return "", err
	}

	a.history = append(a.history,
		Exchange{Role: "user", Content: prompt},
		Exchange{Role: "assistant", Content: text},
	)
	a.logger.Info("response generated", "role", a.role.String(), "chars", len(text))
	return text, nil
}

func (a *Agent) createTestPlan(ctx context.Context, contextStr string) (Result, error) {
	prompt := `Create a comprehensive test plan for the software project described in the context.

The test plan must cover:
1. Overview: purpose, objectives, scope (in and out)
2. Test approach: methodology, test levels, test types per component
3. Backend strategy: API testing, database testing, CLI testing
4. Frontend strategy: GUI testing, component testing
5. Integration and end-to-end testing: critical journeys and contracts
6. Non-functional testing: performance, security, compatibility
7. Test environment and data requirements
8. Risk analysis with mitigations
9. Timeline, milestones, and resource allocation
10. Entry/exit criteria and deliverables

Format the output as a well-structured markdown document that can be saved
directly as the test plan.`

	text, err := a.generate(ctx, prompt, contextStr)
	if err != nil {
		return nil, fmt.Errorf("creating test plan: %w", err)
	}
	return Result{
		"test_plan_document": text,
		"version":            "1.0",
		"status":             "draft",
		"created_by":         a.role.DisplayName(),
	}, nil
}

// ReviseTestPlan reworks a reviewed plan according to the critic's feedback.
// Only the architect supports revision.
func (a *Agent) ReviseTestPlan(ctx context.Context, plan, feedback, contextStr string) (Result, error) {
	if a.role != RoleArchitect {
		return nil, fmt.Errorf("role %s cannot revise test plans", a.role)
	}

	prompt := fmt.Sprintf(`Revise the following test plan according to the review feedback.
Address every critical and important point; keep the document structure.

=== CURRENT TEST PLAN ===
%s

=== REVIEW FEEDBACK ===
%s

Output the complete revised test plan as markdown.`, plan, feedback)

	text, err := a.generate(ctx, prompt, contextStr)
	if err != nil {
		return nil, fmt.Errorf("revising test plan: %w", err)
	}
	return Result{
		"test_plan_document": text,
		"version":            "1.1",
		"status":             "revised",
		"created_by":         a.role.DisplayName(),
	}, nil
}

func (a *Agent) reviewTestPlan(ctx context.Context, task Task, contextStr string) (Result, error) {
	plan, _ := task["test_plan"].(string)
	prompt := fmt.Sprintf(`Review the following test plan critically.

%s

Structure the review as:
- CRITICAL issues (must fix before approval)
- IMPORTANT issues (should fix)
- NICE TO HAVE suggestions
- STRENGTHS
- Approval status: Approved / Needs Revision / Rejected`, plan)

	text, err := a.generate(ctx, prompt, contextStr)
	if err != nil {
		return nil, fmt.Errorf("reviewing test plan: %w", err)
	}
	return Result{
		"review_feedback":       text,
		"review_status":         reviewStatus(text),
		"critical_issues_count": countCriticalIssues(text),
		"created_by":            a.role.DisplayName(),
	}, nil
}

func (a *Agent) writeAllTestCases(ctx context.Context, contextStr string) (Result, error) {
	result := Result{}
	total := 0
	breakdown := map[string]int{}

	for _, category := range testCaseCategories {
		cases, err := a.writeCategoryTestCases(ctx, category, contextStr)
		if err != nil {
			return nil, fmt.Errorf("writing %s test cases: %w", category, err)
		}
		key := category + "_test_cases"
		result[key] = cases
		breakdown[key] = len(cases)
		total += len(cases)
	}

	result["summary"] = map[string]any{
		"total_test_cases": total,
		"breakdown":        breakdown,
		"created_by":       a.role.DisplayName(),
	}
	return result, nil
}

func (a *Agent) writeCategoryTestCases(ctx context.Context, category, contextStr string) ([]map[string]any, error) {
	prompt := fmt.Sprintf(`Write comprehensive %s test cases based on the test plan in the context.

Output a JSON array where each element has the fields:
  test_case_id, title, category, priority, preconditions,
  steps (array of strings), test_data, expected_results

Cover positive and negative scenarios. Output only the JSON array.`, strings.ToUpper(category))

	text, err := a.generate(ctx, prompt, contextStr)
	if err != nil {
		return nil, err
	}
	return extractTestCases(text, category), nil
}

func (a *Agent) reviewTestCases(ctx context.Context, task Task, contextStr string) (Result, error) {
	prompt := fmt.Sprintf(`Review the following test cases for quality, completeness, and executability.

%v

Structure the review as:
- CRITICAL issues
- Missing scenarios and coverage gaps
- Ambiguities in steps, data, or expected results
- Approval status: Approved / Needs Revision / Rejected`, task["test_cases"])

	text, err := a.generate(ctx, prompt, contextStr)
	if err != nil {
		return nil, fmt.Errorf("reviewing test cases: %w", err)
	}
	return Result{
		"review_feedback": text,
		"review_status":   reviewStatus(text),
		"created_by":      a.role.DisplayName(),
	}, nil
}

func (a *Agent) designFramework(ctx context.Context, contextStr string) (Result, error) {
	prompt := `Design a complete test automation framework for the project in the context.

Cover:
1. Project structure and directory layout
2. Configuration and test data management
3. Backend automation (API, database, CLI)
4. Frontend automation (GUI, Page Object Model)
5. Reporting, logging, and debugging support
6. CI/CD integration

Provide the architecture as markdown with concrete code examples.`

	text, err := a.generate(ctx, prompt, contextStr)
	if err != nil {
		return nil, fmt.Errorf("designing framework: %w", err)
	}
	return Result{
		"framework_design": text,
		"created_by":       a.role.DisplayName(),
	}, nil
}

func (a *Agent) generateAutomation(ctx context.Context, task Task, contextStr string) (Result, error) {
	area := strings.TrimSuffix(a.role.String(), "_automation")
	prompt := fmt.Sprintf(`Generate complete %s test automation code.

TEST CASES:
%v

FRAMEWORK DESIGN:
%v

Implement every test case. Output complete, executable code files with clear
file headers, plus brief usage notes.`, strings.ToUpper(area), task["test_cases"], task["framework"])

	text, err := a.generate(ctx, prompt, contextStr)
	if err != nil {
		return nil, fmt.Errorf("generating %s automation: %w", area, err)
	}
	return Result{
		"automation_code": text,
		"area":            area,
		"created_by":      a.role.DisplayName(),
	}, nil
}

func (a *Agent) generateDocumentation(ctx context.Context, contextStr string) (Result, error) {
	result := Result{}
	for _, file := range documentationFiles {
		prompt := fmt.Sprintf(`Write the %s file for the test automation project described in the context.

Write complete, well-structured markdown ready to commit as-is.`, file)

		text, err := a.generate(ctx, prompt, contextStr)
		if err != nil {
			return nil, fmt.Errorf("generating %s: %w", file, err)
		}
		result[file] = text
	}
	result["summary"] = map[string]any{
		"files_generated": len(documentationFiles),
		"created_by":      a.role.DisplayName(),
	}
	return result, nil
}

func (a *Agent) finalReport(ctx context.Context, task Task, contextStr string) (Result, error) {
	prompt := fmt.Sprintf(`Generate the final project report for the completed testing workflow.

Project results:
%v

Include:
1. Executive summary
2. Objectives and completion status
3. Deliverables summary (test plan, test cases, framework, automation, docs)
4. Quality metrics
5. Recommendations for future improvements

Format as a detailed markdown report.`, task["results"])

	text, err := a.generate(ctx, prompt, contextStr)
	if err != nil {
		return nil, fmt.Errorf("generating final report: %w", err)
	}
	return Result{
		"final_report": text,
		"created_by":   a.role.DisplayName(),
	}, nil
}

// genkitGenerator is the production Generator, backed by genkit.Generate.
type genkitGenerator struct {
	g           *genkit.Genkit
	modelName   string
	temperature float32
	maxTokens   int32
}

func (gg *genkitGenerator) Generate(ctx context.Context, system, prompt string) (string, error) {
	resp, err := genkit.Generate(ctx, gg.g,
		ai.WithModelName(gg.modelName),
		ai.WithSystem(system),
		ai.WithPrompt(prompt),
		ai.WithConfig(&genai.GenerateContentConfig{
			Temperature:     genai.Ptr[float32](gg.temperature),
			MaxOutputTokens: gg.maxTokens,
		}),
	)
	if err != nil {
		return "", err
	}
	text := resp.Text()
	if text == "" {
		return "", errors.New("empty model response")
	}
	return text, nil
}
