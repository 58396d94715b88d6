package workflow

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"
)

// Run status values.
const (
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Stage transition violations. The machine rejects out-of-order entry,
// completing a stage that was never entered, and duplicate completion;
// the only way back to a finished stage is an explicit Rerun.
var (
	ErrStageOrder      = errors.New("stage entered out of order")
	ErrStageNotEntered = errors.New("stage was not entered")
	ErrStageCompleted  = errors.New("stage already completed")
	ErrStageNotDone    = errors.New("stage has not been completed")
)

// StageOutput records what a completed stage produced and when.
type StageOutput struct {
	CompletedAt time.Time `json:"completed_at"`
	Output      any       `json:"output"`
}

// State is the mutable record of one run. Stage transitions come from the
// single goroutine driving the run, but status handlers poll concurrently,
// so every access goes through the mutex. The orchestrator guards cross-run
// exclusion separately with a file lock.
type State struct {
	mu        sync.RWMutex
	Current   Stage                 `json:"current_stage"`
	Completed []Stage               `json:"completed_stages"`
	Outputs   map[Stage]StageOutput `json:"agent_outputs"`
	StartTime time.Time             `json:"start_time"`
	EndTime   time.Time             `json:"end_time,omitzero"`
	Status    string                `json:"status"`

	// rerunning marks the one stage a feedback rerun has reopened, so its
	// next completion replaces the recorded output instead of failing as a
	// duplicate.
	rerunning Stage
	hasRerun  bool
}

// NewState starts a run at the initialization stage.
func NewState() *State {
	return &State{
		Current:   StageInitialization,
		Outputs:   make(map[Stage]StageOutput),
		StartTime: time.Now().UTC(),
		Status:    StatusInProgress,
	}
}

// Enter moves the run to stage. Stages can only move forward; going back is
// reserved for Rerun.
func (s *State) Enter(stage Stage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if stage < s.Current {
		return fmt.Errorf("entering %s while at %s: %w", stage, s.Current, ErrStageOrder)
	}
	s.Current = stage
	return nil
}

// Complete records output for the current stage. The stage must be the one
// most recently entered and must not already be completed (unless reopened
// by Rerun, in which case the recorded output is replaced in place).
func (s *State) Complete(stage Stage, output any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if stage != s.Current {
		return fmt.Errorf("completing %s while at %s: %w", stage, s.Current, ErrStageNotEntered)
	}

	if s.hasRerun && s.rerunning == stage {
		s.Outputs[stage] = StageOutput{CompletedAt: time.Now().UTC(), Output: output}
		s.hasRerun = false
		return nil
	}

	if slices.Contains(s.Completed, stage) {
		return fmt.Errorf("completing %s twice: %w", stage, ErrStageCompleted)
	}
	s.Completed = append(s.Completed, stage)
	s.Outputs[stage] = StageOutput{CompletedAt: time.Now().UTC(), Output: output}
	return nil
}

// Rerun reopens an already-completed stage, typically on user feedback. The
// rerun's completion replaces the stage's recorded output; the stage still
// appears in the completed list exactly once.
func (s *State) Rerun(stage Stage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !slices.Contains(s.Completed, stage) {
		return fmt.Errorf("rerunning %s: %w", stage, ErrStageNotDone)
	}
	s.Current = stage
	s.rerunning = stage
	s.hasRerun = true
	return nil
}

// Fail marks the run failed and stamps the end time.
func (s *State) Fail() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Status = StatusFailed
	s.EndTime = time.Now().UTC()
}

// Finish marks the run completed and stamps the end time.
func (s *State) Finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Status = StatusCompleted
	s.EndTime = time.Now().UTC()
}

// IsCompleted reports whether stage has been completed.
func (s *State) IsCompleted(stage Stage) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Contains(s.Completed, stage)
}

// Progress is a consistent view of the run's advancement, safe to read
// while the run goroutine keeps transitioning.
type Progress struct {
	Current   Stage
	Completed []Stage
	Status    string
	StartTime time.Time
}

// Progress returns a snapshot of the run's progress fields.
func (s *State) Progress() Progress {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Progress{
		Current:   s.Current,
		Completed: slices.Clone(s.Completed),
		Status:    s.Status,
		StartTime: s.StartTime,
	}
}

// MarshalJSON serializes the state under the read lock so reports can be
// rendered while transitions are still happening.
func (s *State) MarshalJSON() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return json.Marshal(struct {
		Current   Stage                 `json:"current_stage"`
		Completed []Stage               `json:"completed_stages"`
		Outputs   map[Stage]StageOutput `json:"agent_outputs"`
		StartTime time.Time             `json:"start_time"`
		EndTime   time.Time             `json:"end_time,omitzero"`
		Status    string                `json:"status"`
	}{s.Current, s.Completed, s.Outputs, s.StartTime, s.EndTime, s.Status})
}
