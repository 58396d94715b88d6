package workflow

import (
	"errors"
	"testing"
)

func TestStateForwardProgress(t *testing.T) {
	s := NewState()
	if s.Current != StageInitialization {
		t.Fatalf("initial stage: got %v", s.Current)
	}
	if s.Status != StatusInProgress {
		t.Fatalf("initial status: got %q", s.Status)
	}

	if err := s.Enter(StageCodeAnalysis); err != nil {
		t.Fatalf("Enter: %v", err)
	}
	if err := s.Complete(StageCodeAnalysis, "analysis output"); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if !s.IsCompleted(StageCodeAnalysis) {
		t.Error("stage not marked completed")
	}
	out, ok := s.Outputs[StageCodeAnalysis]
	if !ok {
		t.Fatal("output not recorded")
	}
	if out.Output != "analysis output" {
		t.Errorf("output: got %v", out.Output)
	}
	if out.CompletedAt.IsZero() {
		t.Error("completion time not stamped")
	}
}

func TestStateEnterRejectsBackwardMove(t *testing.T) {
	s := NewState()
	if err := s.Enter(StageTestPlanning); err != nil {
		t.Fatalf("Enter: %v", err)
	}

	err := s.Enter(StageCodeAnalysis)
	if !errors.Is(err, ErrStageOrder) {
		t.Fatalf("backward Enter: got %v, want ErrStageOrder", err)
	}
	if s.Current != StageTestPlanning {
		t.Errorf("stage changed on rejected entry: %v", s.Current)
	}
}

func TestStateCompleteRequiresCurrentStage(t *testing.T) {
	s := NewState()
	if err := s.Enter(StageCodeAnalysis); err != nil {
		t.Fatalf("Enter: %v", err)
	}

	err := s.Complete(StageTestPlanning, nil)
	if !errors.Is(err, ErrStageNotEntered) {
		t.Fatalf("Complete without Enter: got %v, want ErrStageNotEntered", err)
	}
	if s.IsCompleted(StageTestPlanning) {
		t.Error("rejected completion recorded")
	}
}

func TestStateCompleteRejectsDuplicate(t *testing.T) {
	s := NewState()
	if err := s.Enter(StageCodeAnalysis); err != nil {
		t.Fatalf("Enter: %v", err)
	}
	if err := s.Complete(StageCodeAnalysis, "first"); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	err := s.Complete(StageCodeAnalysis, "second")
	if !errors.Is(err, ErrStageCompleted) {
		t.Fatalf("duplicate Complete: got %v, want ErrStageCompleted", err)
	}
	if s.Outputs[StageCodeAnalysis].Output != "first" {
		t.Errorf("duplicate overwrote output: %v", s.Outputs[StageCodeAnalysis].Output)
	}
}

func TestStateRerunReplacesOutputInPlace(t *testing.T) {
	s := NewState()
	for _, stage := range []Stage{StageCodeAnalysis, StageTestPlanning, StageTestPlanningReview} {
		if err := s.Enter(stage); err != nil {
			t.Fatalf("Enter(%v): %v", stage, err)
		}
		if err := s.Complete(stage, stage.String()+" v1"); err != nil {
			t.Fatalf("Complete(%v): %v", stage, err)
		}
	}

	if err := s.Rerun(StageTestPlanning); err != nil {
		t.Fatalf("Rerun: %v", err)
	}
	if s.Current != StageTestPlanning {
		t.Fatalf("current after rerun: %v", s.Current)
	}
	if err := s.Complete(StageTestPlanning, "test_planning v2"); err != nil {
		t.Fatalf("Complete after rerun: %v", err)
	}

	if got := s.Outputs[StageTestPlanning].Output; got != "test_planning v2" {
		t.Errorf("rerun output: got %v", got)
	}
	count := 0
	for _, stage := range s.Completed {
		if stage == StageTestPlanning {
			count++
		}
	}
	if count != 1 {
		t.Errorf("completed list holds stage %d times, want 1", count)
	}

	// The rerun window closes after one completion.
	if err := s.Complete(StageTestPlanning, "v3"); !errors.Is(err, ErrStageCompleted) {
		t.Errorf("Complete after rerun window closed: got %v, want ErrStageCompleted", err)
	}
}

func TestStateRerunRequiresCompletion(t *testing.T) {
	s := NewState()
	err := s.Rerun(StageTestPlanning)
	if !errors.Is(err, ErrStageNotDone) {
		t.Fatalf("Rerun of unfinished stage: got %v, want ErrStageNotDone", err)
	}
}

func TestStateFinishAndFail(t *testing.T) {
	s := NewState()
	s.Finish()
	if s.Status != StatusCompleted {
		t.Errorf("Finish status: got %q", s.Status)
	}
	if s.EndTime.IsZero() {
		t.Error("Finish did not stamp end time")
	}

	s = NewState()
	s.Fail()
	if s.Status != StatusFailed {
		t.Errorf("Fail status: got %q", s.Status)
	}
	if s.EndTime.IsZero() {
		t.Error("Fail did not stamp end time")
	}
}
