// Package workflow owns the run lifecycle: the stage machine, the output
// directory layout, context assembly for agents, and persistence of every
// agent's output.
package workflow

import "fmt"

// Stage is one step of the pipeline. The declaration order is the total
// order stages must be entered in.
type Stage int

const (
	StageInitialization Stage = iota
	StageCodeAnalysis
	StageDocumentProcessing
	StageTestPlanning
	StageTestPlanningReview
	StageTestCaseWriting
	StageTestCaseReview
	StageAutomationFramework
	StageAPIAutomation
	StageDBAutomation
	StageCLIAutomation
	StageGUIAutomation
	StageDocumentation
	StageFinalReview
	StageComplete
)

var stageNames = [...]string{
	StageInitialization:      "initialization",
	StageCodeAnalysis:        "code_analysis",
	StageDocumentProcessing:  "document_processing",
	StageTestPlanning:        "test_planning",
	StageTestPlanningReview:  "test_planning_review",
	StageTestCaseWriting:     "test_case_writing",
	StageTestCaseReview:      "test_case_review",
	StageAutomationFramework: "automation_framework",
	StageAPIAutomation:       "api_automation",
	StageDBAutomation:        "db_automation",
	StageCLIAutomation:       "cli_automation",
	StageGUIAutomation:       "gui_automation",
	StageDocumentation:       "documentation",
	StageFinalReview:         "final_review",
	StageComplete:            "complete",
}

// Stages returns every stage in pipeline order.
func Stages() []Stage {
	stages := make([]Stage, len(stageNames))
	for i := range stageNames {
		stages[i] = Stage(i)
	}
	return stages
}

func (s Stage) String() string {
	if s >= 0 && int(s) < len(stageNames) {
		return stageNames[s]
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// ParseStage converts the wire form back to a Stage.
func ParseStage(name string) (Stage, error) {
	for i, n := range stageNames {
		if n == name {
			return Stage(i), nil
		}
	}
	return 0, fmt.Errorf("unknown stage %q", name)
}

// MarshalText makes stages serialize by name in JSON maps and fields.
func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a stage name.
func (s *Stage) UnmarshalText(text []byte) error {
	parsed, err := ParseStage(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
