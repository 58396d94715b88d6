package team

import (
	"context"
	"fmt"

	"github.com/rajarajane97/mastt/internal/agent"
	"github.com/rajarajane97/mastt/internal/workflow"
)

// Feedback targets accepted by HandleFeedback.
const (
	FeedbackTestPlan   = "test_plan"
	FeedbackTestCases  = "test_cases"
	FeedbackAutomation = "automation"
)

// HandleFeedback reopens the stages behind the targeted artifact and
// regenerates them with the user's feedback in context. Each reopened
// stage's recorded output is replaced in place; revised files are written
// alongside the originals. The targeted stages must have completed, so
// feedback against an unfinished run fails with a stage error.
func (t *Team) HandleFeedback(ctx context.Context, target, feedback string) error {
	switch target {
	case FeedbackTestPlan:
		return t.reviseTestPlan(ctx, feedback)
	case FeedbackTestCases:
		return t.reviseTestCases(ctx, feedback)
	case FeedbackAutomation:
		return t.reviseAutomation(ctx, feedback)
	default:
		return fmt.Errorf("unknown feedback target %q", target)
	}
}

func (t *Team) reviseTestPlan(ctx context.Context, feedback string) error {
	state := t.orc.State()
	results := t.orc.Results()

	if err := state.Rerun(workflow.StageTestPlanning); err != nil {
		return err
	}
	planText, _ := results.TestPlan["test_plan_document"].(string)
	revised, err := t.agents[agent.RoleArchitect].ReviseTestPlan(ctx, planText, feedback, "")
	if err != nil {
		return fmt.Errorf("revising test plan: %w", err)
	}
	if err := t.saveDocument(agent.RoleArchitect, revised["test_plan_document"], "test_plan_revised.md"); err != nil {
		return err
	}
	t.orc.UpdateResults(func(r *workflow.Results) { r.TestPlan = revised })
	if err := state.Complete(workflow.StageTestPlanning, revised); err != nil {
		return err
	}

	if err := state.Rerun(workflow.StageTestPlanningReview); err != nil {
		return err
	}
	revisedText, _ := revised["test_plan_document"].(string)
	review, err := t.agents[agent.RoleArchitectCritic].Execute(ctx, agent.Task{"test_plan": revisedText}, "")
	if err != nil {
		return fmt.Errorf("reviewing revised test plan: %w", err)
	}
	if err := t.saveDocument(agent.RoleArchitectCritic, review["review_feedback"], "test_plan_review_revised.md"); err != nil {
		return err
	}
	t.orc.UpdateResults(func(r *workflow.Results) { r.TestPlanReview = review })
	return state.Complete(workflow.StageTestPlanningReview, review)
}

func (t *Team) reviseTestCases(ctx context.Context, feedback string) error {
	state := t.orc.State()

	if err := state.Rerun(workflow.StageTestCaseWriting); err != nil {
		return err
	}
	writerCtx := t.orc.ContextForAgent(ctx, agent.RoleTestCaseWriter, "detailed test cases for all categories", true)
	writerCtx += "\n=== USER FEEDBACK ===\n" + feedback
	cases, err := t.agents[agent.RoleTestCaseWriter].Execute(ctx, nil, writerCtx)
	if err != nil {
		return fmt.Errorf("revising test cases: %w", err)
	}
	if err := t.orc.SaveAgentOutput(agent.RoleTestCaseWriter, cases, "test_cases_revised.json"); err != nil {
		return err
	}
	t.orc.UpdateResults(func(r *workflow.Results) { r.TestCases = cases })
	if err := state.Complete(workflow.StageTestCaseWriting, cases["summary"]); err != nil {
		return err
	}

	if err := state.Rerun(workflow.StageTestCaseReview); err != nil {
		return err
	}
	review, err := t.agents[agent.RoleTestCritic].Execute(ctx, agent.Task{"test_cases": cases}, "")
	if err != nil {
		return fmt.Errorf("reviewing revised test cases: %w", err)
	}
	if err := t.saveDocument(agent.RoleTestCritic, review["review_feedback"], "test_case_review_revised.md"); err != nil {
		return err
	}
	t.orc.UpdateResults(func(r *workflow.Results) { r.TestCaseReview = review })
	return state.Complete(workflow.StageTestCaseReview, review)
}

func (t *Team) reviseAutomation(ctx context.Context, feedback string) error {
	state := t.orc.State()
	results := t.orc.Results()

	task := agent.Task{
		"test_cases": results.TestCases,
		"framework":  results.AutomationFramework["framework_design"],
		"feedback":   feedback,
	}
	for _, area := range automationStages {
		if err := state.Rerun(area.stage); err != nil {
			return err
		}
		contextStr := t.orc.ContextForAgent(ctx, area.role, area.role.DisplayName()+" test automation code", false)
		contextStr += "\n=== USER FEEDBACK ===\n" + feedback
		result, err := t.agents[area.role].Execute(ctx, task, contextStr)
		if err != nil {
			return fmt.Errorf("revising %s: %w", area.role, err)
		}
		revisedFile := area.file[:len(area.file)-len(".md")] + "_revised.md"
		if err := t.saveDocument(area.role, result["automation_code"], revisedFile); err != nil {
			return err
		}
		t.recordAutomation(area.role, result)
		if err := state.Complete(area.stage, result); err != nil {
			return err
		}
	}
	return nil
}
