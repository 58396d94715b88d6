package workflow

import (
	"encoding/json"
	"testing"
)

func TestStageStringRoundTrip(t *testing.T) {
	for _, stage := range Stages() {
		parsed, err := ParseStage(stage.String())
		if err != nil {
			t.Fatalf("ParseStage(%q): %v", stage.String(), err)
		}
		if parsed != stage {
			t.Errorf("round trip: got %v, want %v", parsed, stage)
		}
	}
}

func TestParseStageUnknown(t *testing.T) {
	if _, err := ParseStage("warp_core_alignment"); err == nil {
		t.Fatal("expected error for unknown stage name")
	}
}

func TestStageTextMarshaling(t *testing.T) {
	data, err := json.Marshal(StageTestPlanning)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `"test_planning"` {
		t.Errorf("marshal: got %s", data)
	}

	var stage Stage
	if err := json.Unmarshal([]byte(`"gui_automation"`), &stage); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if stage != StageGUIAutomation {
		t.Errorf("unmarshal: got %v, want %v", stage, StageGUIAutomation)
	}
}

func TestStagesOrdered(t *testing.T) {
	stages := Stages()
	if stages[0] != StageInitialization {
		t.Errorf("first stage: got %v", stages[0])
	}
	if stages[len(stages)-1] != StageComplete {
		t.Errorf("last stage: got %v", stages[len(stages)-1])
	}
	for i := 1; i < len(stages); i++ {
		if stages[i] <= stages[i-1] {
			t.Errorf("stages out of order at %d: %v <= %v", i, stages[i], stages[i-1])
		}
	}
}
