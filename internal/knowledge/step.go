package knowledge

import (
	"encoding/json"
	"fmt"
)

// StepAction is the closed set of things a solution step can do.
type StepAction string

const (
	// ActionExec runs a shell command.
	ActionExec StepAction = "exec"
	// ActionPatch applies a diff.
	ActionPatch StepAction = "patch"
	// ActionDelete removes a file or path.
	ActionDelete StepAction = "delete"
	// ActionCreate writes a new file.
	ActionCreate StepAction = "create"
	// ActionDescription is a free-form instruction for the agent.
	ActionDescription StepAction = "description"
)

// Valid reports whether the action is one of the known kinds.
func (a StepAction) Valid() bool {
	switch a {
	case ActionExec, ActionPatch, ActionDelete, ActionCreate, ActionDescription:
		return true
	}
	return false
}

// Step is one ordered element of a solution. It is a tagged variant: Action
// selects the kind, and only the fields relevant to that kind are set.
//
//	exec        -> Command
//	patch       -> Diff, optional Target
//	delete      -> Target
//	create      -> Target, Content
//	description -> Description
type Step struct {
	Action      StepAction `json:"action"`
	Command     string     `json:"command,omitempty"`
	Diff        string     `json:"diff,omitempty"`
	Content     string     `json:"content,omitempty"`
	Description string     `json:"description,omitempty"`
	Target      string     `json:"target,omitempty"`
}

// Validate checks the tag and the per-kind required field.
func (s Step) Validate() error {
	if !s.Action.Valid() {
		return fmt.Errorf("%w: unrecognized step action %q", ErrValidation, s.Action)
	}
	switch s.Action {
	case ActionExec:
		if s.Command == "" {
			return fmt.Errorf("%w: exec step requires command", ErrValidation)
		}
	case ActionPatch:
		if s.Diff == "" {
			return fmt.Errorf("%w: patch step requires diff", ErrValidation)
		}
	case ActionDelete:
		if s.Target == "" {
			return fmt.Errorf("%w: delete step requires target", ErrValidation)
		}
	case ActionCreate:
		if s.Target == "" && s.Content == "" {
			return fmt.Errorf("%w: create step requires target or content", ErrValidation)
		}
	case ActionDescription:
		if s.Description == "" {
			return fmt.Errorf("%w: description step requires description", ErrValidation)
		}
	}
	return nil
}

// UnmarshalJSON rejects unknown action kinds at the decoding boundary so
// malformed steps never reach a write path.
func (s *Step) UnmarshalJSON(data []byte) error {
	type alias Step
	var raw alias
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = Step(raw)
	return s.Validate()
}

// ValidateSteps validates an ordered step sequence.
func ValidateSteps(steps []Step) error {
	if len(steps) == 0 {
		return fmt.Errorf("%w: solution requires at least one step", ErrValidation)
	}
	for i, step := range steps {
		if err := step.Validate(); err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
	}
	return nil
}
