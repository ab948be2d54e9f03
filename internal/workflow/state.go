// Package workflow tracks progress through the fixed step sequence of one
// project and answers "what should happen next". It never invokes any
// processing itself; the caller runs processors and reports outcomes back.
// Every mutation is immediately persisted with an atomic rewrite of
// workflow_state.json, so on-disk state is never more than one operation
// behind memory.
package workflow

import (
	"errors"
	"fmt"
	"os"
	"time"

	"video-studio/internal/fsjson"
)

const StateFileName = "workflow_state.json"

// ErrUnknownStep marks an operation on a step name outside the fixed
// vocabulary.
var ErrUnknownStep = errors.New("unknown workflow step")

// StepStatus is the persisted status of one step. Completed and Error are
// mutually exclusive: marking one clears the other.
type StepStatus struct {
	Enabled   bool   `json:"enabled"`
	Completed bool   `json:"completed"`
	Skipped   bool   `json:"skipped"`
	Error     string `json:"error,omitempty"`
}

// StepInfo pairs a step name with its current status, in pipeline order.
type StepInfo struct {
	Name   string     `json:"name"`
	Label  string     `json:"label,omitempty"`
	Status StepStatus `json:"status"`
}

// Summary aggregates progress for display.
type Summary struct {
	Completed int  `json:"completed"`
	Enabled   int  `json:"enabled"`
	Done      bool `json:"done"`
}

type stateFile struct {
	Steps   map[string]StepStatus `json:"steps"`
	Updated string                `json:"updated"`
}

// State is the workflow state machine for one project.
type State struct {
	path  string
	order []string
	steps map[string]StepStatus
}

// Initialize creates a fresh state at path with every step enabled and
// unresolved, and persists it. The given ordering is the only place the
// step sequence is established.
func Initialize(path string, steps []string) (*State, error) {
	s := &State{
		path:  path,
		order: append([]string(nil), steps...),
		steps: make(map[string]StepStatus, len(steps)),
	}
	for _, step := range steps {
		s.steps[step] = StepStatus{Enabled: true}
	}
	if err := s.persist(); err != nil {
		return nil, err
	}
	return s, nil
}

// Open loads persisted state from path, initializing a fresh one when no
// file exists yet. Persisted statuses are merged over defaults so steps
// added to the vocabulary after the file was written get default status;
// names no longer in the vocabulary are dropped.
func Open(path string, steps []string) (*State, error) {
	var file stateFile
	if err := fsjson.ReadJSON(path, &file); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Initialize(path, steps)
		}
		return nil, err
	}

	s := &State{
		path:  path,
		order: append([]string(nil), steps...),
		steps: make(map[string]StepStatus, len(steps)),
	}
	for _, step := range steps {
		if status, ok := file.Steps[step]; ok {
			s.steps[step] = status
		} else {
			s.steps[step] = StepStatus{Enabled: true}
		}
	}
	return s, nil
}

// Steps returns the step names in pipeline order.
func (s *State) Steps() []string {
	return append([]string(nil), s.order...)
}

// Status returns the current status of one step.
func (s *State) Status(step string) (StepStatus, error) {
	status, ok := s.steps[step]
	if !ok {
		return StepStatus{}, fmt.Errorf("%w: %q", ErrUnknownStep, step)
	}
	return status, nil
}

// All returns every step with its status, in pipeline order.
func (s *State) All() []StepInfo {
	out := make([]StepInfo, 0, len(s.order))
	for _, step := range s.order {
		out = append(out, StepInfo{Name: step, Label: StepLabels[step], Status: s.steps[step]})
	}
	return out
}

// Enable re-enables a step. A previously recorded completion is preserved,
// so re-enabling does not force recomputation.
func (s *State) Enable(step string) error {
	return s.update(step, func(status *StepStatus) {
		status.Enabled = true
		status.Skipped = false
	})
}

// Disable removes a step from the run without clearing its completion.
func (s *State) Disable(step string) error {
	return s.update(step, func(status *StepStatus) {
		status.Enabled = false
		status.Skipped = true
	})
}

// MarkCompleted records success and clears any previous error.
func (s *State) MarkCompleted(step string) error {
	return s.update(step, func(status *StepStatus) {
		status.Completed = true
		status.Error = ""
	})
}

// MarkError records the failure message and clears completion. Enabled is
// left untouched so the step stays eligible for a manual retry.
func (s *State) MarkError(step, message string) error {
	return s.update(step, func(status *StepStatus) {
		status.Error = message
		status.Completed = false
	})
}

// MarkSkipped bypasses a step the user opted out of; it stops blocking
// downstream steps even though it neither completed nor errored.
func (s *State) MarkSkipped(step string) error {
	return s.update(step, func(status *StepStatus) {
		status.Skipped = true
	})
}

// NextStep returns the first step in pipeline order that is enabled, not
// completed, and not skipped, or "" when every enabled step is resolved.
// An errored step that was neither completed nor skipped is returned
// again: failures here are usually transient and retried manually.
func (s *State) NextStep() string {
	for _, step := range s.order {
		status := s.steps[step]
		if status.Enabled && !status.Completed && !status.Skipped {
			return step
		}
	}
	return ""
}

// Done reports whether every enabled step is resolved.
func (s *State) Done() bool {
	return s.NextStep() == ""
}

// Reset clears completion, skips and errors on every step while keeping
// each step's enabled flag, allowing a full re-run without forgetting which
// steps the user wanted active.
func (s *State) Reset() error {
	for step, status := range s.steps {
		status.Completed = false
		status.Skipped = false
		status.Error = ""
		s.steps[step] = status
	}
	return s.persist()
}

// Summarize aggregates progress over enabled steps.
func (s *State) Summarize() Summary {
	sum := Summary{}
	for _, step := range s.order {
		status := s.steps[step]
		if !status.Enabled {
			continue
		}
		sum.Enabled++
		if status.Completed {
			sum.Completed++
		}
	}
	sum.Done = s.NextStep() == ""
	return sum
}

func (s *State) update(step string, mutate func(*StepStatus)) error {
	status, ok := s.steps[step]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownStep, step)
	}
	mutate(&status)
	s.steps[step] = status
	return s.persist()
}

func (s *State) persist() error {
	return fsjson.WriteJSON(s.path, stateFile{
		Steps:   s.steps,
		Updated: time.Now().UTC().Format(time.RFC3339),
	})
}
