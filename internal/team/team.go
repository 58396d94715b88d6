// Package team coordinates the full multi-agent workflow: it drives the
// orchestrator's stage machine through analysis, planning, review, test case
// writing, automation, documentation, and the final report.
package team

import (
	"context"
	"fmt"

	"github.com/rajarajane97/mastt/internal/agent"
	"github.com/rajarajane97/mastt/internal/log"
	"github.com/rajarajane97/mastt/internal/workflow"
)

// Team is one agent per role plus the orchestrator that sequences them.
type Team struct {
	orc    *workflow.Orchestrator
	agents map[agent.Role]*agent.Agent
	logger log.Logger
}

// New builds a team. Every pipeline role must have an agent.
func New(orc *workflow.Orchestrator, agents map[agent.Role]*agent.Agent, logger log.Logger) (*Team, error) {
	if orc == nil {
		return nil, fmt.Errorf("orchestrator is required")
	}
	for _, role := range agent.Roles() {
		if agents[role] == nil {
			return nil, fmt.Errorf("missing agent for role %s", role)
		}
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Team{orc: orc, agents: agents, logger: logger}, nil
}

// Orchestrator exposes the underlying run for status queries.
func (t *Team) Orchestrator() *workflow.Orchestrator { return t.orc }

// Status reports the run's progress.
func (t *Team) Status() workflow.StatusSnapshot { return t.orc.Status() }

// Results returns a copy of the run's accumulated artifacts.
func (t *Team) Results() workflow.Results { return t.orc.Results() }

// OutputDir returns the run's output root.
func (t *Team) OutputDir() string { return t.orc.OutputDir() }

// Run executes the workflow end to end. On failure the run state is marked
// failed and the error is returned; artifacts produced by earlier phases
// stay on disk.
func (t *Team) Run(ctx context.Context) (*workflow.Report, error) {
	report, err := t.run(ctx)
	if err != nil {
		t.orc.State().Fail()
		t.logger.Error("workflow failed", "error", err)
		return nil, err
	}
	return report, nil
}

func (t *Team) run(ctx context.Context) (*workflow.Report, error) {
	if _, err := t.orc.RunCodeAnalysis(ctx); err != nil {
		return nil, err
	}
	if _, err := t.orc.RunDocumentProcessing(ctx); err != nil {
		return nil, err
	}
	if err := t.runTestPlanning(ctx); err != nil {
		return nil, err
	}
	if err := t.runTestCases(ctx); err != nil {
		return nil, err
	}
	if err := t.runAutomation(ctx); err != nil {
		return nil, err
	}
	if err := t.runDocumentation(ctx); err != nil {
		return nil, err
	}
	if err := t.runFinalReview(ctx); err != nil {
		return nil, err
	}
	return t.orc.Finalize()
}

// runTestPlanning has the architect draft the plan and the critic review it.
// A review that comes back anything but approved triggers exactly one
// revision round.
func (t *Team) runTestPlanning(ctx context.Context) error {
	state := t.orc.State()

	if err := state.Enter(workflow.StageTestPlanning); err != nil {
		return err
	}
	architect := t.agents[agent.RoleArchitect]
	planCtx := t.orc.ContextForAgent(ctx, agent.RoleArchitect, "comprehensive test plan strategy scope risks", true)
	plan, err := architect.Execute(ctx, nil, planCtx)
	if err != nil {
		return fmt.Errorf("test planning: %w", err)
	}
	if err := t.saveDocument(agent.RoleArchitect, plan["test_plan_document"], "test_plan_v1.md"); err != nil {
		return err
	}
	t.orc.UpdateResults(func(r *workflow.Results) { r.TestPlan = plan })
	if err := state.Complete(workflow.StageTestPlanning, plan); err != nil {
		return err
	}

	if err := state.Enter(workflow.StageTestPlanningReview); err != nil {
		return err
	}
	critic := t.agents[agent.RoleArchitectCritic]
	planText, _ := plan["test_plan_document"].(string)
	review, err := critic.Execute(ctx, agent.Task{"test_plan": planText}, "")
	if err != nil {
		return fmt.Errorf("test plan review: %w", err)
	}
	if err := t.saveDocument(agent.RoleArchitectCritic, review["review_feedback"], "test_plan_review.md"); err != nil {
		return err
	}
	t.orc.UpdateResults(func(r *workflow.Results) { r.TestPlanReview = review })

	if status, _ := review["review_status"].(string); status != "approved" {
		t.logger.Info("test plan revision required", "status", status)
		feedback, _ := review["review_feedback"].(string)
		revised, err := architect.ReviseTestPlan(ctx, planText, feedback, planCtx)
		if err != nil {
			return fmt.Errorf("test plan revision: %w", err)
		}
		if err := t.saveDocument(agent.RoleArchitect, revised["test_plan_document"], "test_plan_v2.md"); err != nil {
			return err
		}
		t.orc.UpdateResults(func(r *workflow.Results) { r.TestPlan = revised })
	}

	return state.Complete(workflow.StageTestPlanningReview, review)
}

func (t *Team) runTestCases(ctx context.Context) error {
	state := t.orc.State()

	if err := state.Enter(workflow.StageTestCaseWriting); err != nil {
		return err
	}
	writer := t.agents[agent.RoleTestCaseWriter]
	writerCtx := t.orc.ContextForAgent(ctx, agent.RoleTestCaseWriter, "detailed test cases for all categories", true)
	cases, err := writer.Execute(ctx, nil, writerCtx)
	if err != nil {
		return fmt.Errorf("test case writing: %w", err)
	}
	if err := t.orc.SaveAgentOutput(agent.RoleTestCaseWriter, cases, "test_cases.json"); err != nil {
		return err
	}
	t.orc.UpdateResults(func(r *workflow.Results) { r.TestCases = cases })
	if err := state.Complete(workflow.StageTestCaseWriting, cases["summary"]); err != nil {
		return err
	}

	if err := state.Enter(workflow.StageTestCaseReview); err != nil {
		return err
	}
	critic := t.agents[agent.RoleTestCritic]
	review, err := critic.Execute(ctx, agent.Task{"test_cases": cases}, "")
	if err != nil {
		return fmt.Errorf("test case review: %w", err)
	}
	if err := t.saveDocument(agent.RoleTestCritic, review["review_feedback"], "test_case_review.md"); err != nil {
		return err
	}
	t.orc.UpdateResults(func(r *workflow.Results) { r.TestCaseReview = review })
	return state.Complete(workflow.StageTestCaseReview, review)
}

// automationStages maps each automation role to its stage and output file.
var automationStages = []struct {
	role  agent.Role
	stage workflow.Stage
	file  string
}{
	{agent.RoleAPIAutomation, workflow.StageAPIAutomation, "api_tests/api_automation.md"},
	{agent.RoleDBAutomation, workflow.StageDBAutomation, "db_tests/db_automation.md"},
	{agent.RoleCLIAutomation, workflow.StageCLIAutomation, "cli_tests/cli_automation.md"},
	{agent.RoleGUIAutomation, workflow.StageGUIAutomation, "gui_tests/gui_automation.md"},
}

func (t *Team) runAutomation(ctx context.Context) error {
	state := t.orc.State()

	if err := state.Enter(workflow.StageAutomationFramework); err != nil {
		return err
	}
	framework, err := t.agents[agent.RoleAutomationArchitect].Execute(ctx, nil,
		t.orc.ContextForAgent(ctx, agent.RoleAutomationArchitect, "test automation framework architecture", true))
	if err != nil {
		return fmt.Errorf("framework design: %w", err)
	}
	if err := t.saveDocument(agent.RoleAutomationArchitect, framework["framework_design"], "framework/framework_design.md"); err != nil {
		return err
	}
	t.orc.UpdateResults(func(r *workflow.Results) { r.AutomationFramework = framework })
	if err := state.Complete(workflow.StageAutomationFramework, framework); err != nil {
		return err
	}

	task := agent.Task{
		"test_cases": t.orc.Results().TestCases,
		"framework":  framework["framework_design"],
	}
	for _, area := range automationStages {
		if err := state.Enter(area.stage); err != nil {
			return err
		}
		result, err := t.runAutomationArea(ctx, area.role, area.file, task)
		if err != nil {
			return err
		}
		t.recordAutomation(area.role, result)
		if err := state.Complete(area.stage, result); err != nil {
			return err
		}
	}
	return nil
}

func (t *Team) runAutomationArea(ctx context.Context, role agent.Role, file string, task agent.Task) (agent.Result, error) {
	contextStr := t.orc.ContextForAgent(ctx, role, role.DisplayName()+" test automation code", false)
	result, err := t.agents[role].Execute(ctx, task, contextStr)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", role, err)
	}
	if err := t.saveDocument(role, result["automation_code"], file); err != nil {
		return nil, err
	}
	return result, nil
}

func (t *Team) recordAutomation(role agent.Role, result agent.Result) {
	t.orc.UpdateResults(func(r *workflow.Results) {
		switch role {
		case agent.RoleAPIAutomation:
			r.AutomationCode.API = result
		case agent.RoleDBAutomation:
			r.AutomationCode.Database = result
		case agent.RoleCLIAutomation:
			r.AutomationCode.CLI = result
		case agent.RoleGUIAutomation:
			r.AutomationCode.GUI = result
		}
	})
}

func (t *Team) runDocumentation(ctx context.Context) error {
	state := t.orc.State()

	if err := state.Enter(workflow.StageDocumentation); err != nil {
		return err
	}
	docs, err := t.agents[agent.RoleDocumentation].Execute(ctx, nil,
		t.orc.ContextForAgent(ctx, agent.RoleDocumentation, "project documentation for the test automation suite", true))
	if err != nil {
		return fmt.Errorf("documentation: %w", err)
	}
	for name, content := range docs {
		if name == "summary" {
			continue
		}
		if err := t.saveDocument(agent.RoleDocumentation, content, name); err != nil {
			return err
		}
	}
	t.orc.UpdateResults(func(r *workflow.Results) { r.Documentation = docs })
	return state.Complete(workflow.StageDocumentation, docs["summary"])
}

func (t *Team) runFinalReview(ctx context.Context) error {
	state := t.orc.State()
	results := t.orc.Results()

	if err := state.Enter(workflow.StageFinalReview); err != nil {
		return err
	}
	summary := map[string]any{
		"code_analysis":        results.CodeAnalysis != nil,
		"test_plan":            results.TestPlan["status"],
		"test_plan_review":     results.TestPlanReview["review_status"],
		"test_cases":           results.TestCases["summary"],
		"test_case_review":     results.TestCaseReview["review_status"],
		"automation_framework": results.AutomationFramework != nil,
		"api_automation":       results.AutomationCode.API != nil,
		"db_automation":        results.AutomationCode.Database != nil,
		"cli_automation":       results.AutomationCode.CLI != nil,
		"gui_automation":       results.AutomationCode.GUI != nil,
		"documentation":        results.Documentation["summary"],
	}
	report, err := t.agents[agent.RoleProjectManager].Execute(ctx, agent.Task{"results": summary}, "")
	if err != nil {
		return fmt.Errorf("final report: %w", err)
	}
	if err := t.orc.SaveAgentOutput(agent.RoleProjectManager, report["final_report"], "reports/final_project_report.md"); err != nil {
		return err
	}
	return state.Complete(workflow.StageFinalReview, report)
}

// saveDocument writes one markdown artifact, tolerating a missing key by
// persisting an empty file rather than aborting the run.
func (t *Team) saveDocument(role agent.Role, content any, filename string) error {
	text, _ := content.(string)
	return t.orc.SaveAgentOutput(role, text, filename)
}
