// Package models defines the core data structures for Boothflow.
//
// It includes the step variants of an experience, the per-run session record,
// and the transformation status shared between the engine and the worker.
package models

import (
	"errors"
	"fmt"
)

// StepType identifies one of the supported step variants.
type StepType string

const (
	// StepTypeInfo shows a static information screen.
	StepTypeInfo StepType = "info"
	// StepTypeCapture captures a photo from the guest.
	StepTypeCapture StepType = "capture"
	// StepTypeAITransform triggers the asynchronous AI transformation job.
	StepTypeAITransform StepType = "ai-transform"
	// StepTypeShortText collects a single-line text answer.
	StepTypeShortText StepType = "short_text"
	// StepTypeLongText collects a multi-line text answer.
	StepTypeLongText StepType = "long_text"
	// StepTypeMultipleChoice collects one or more selections from a list.
	StepTypeMultipleChoice StepType = "multiple_choice"
	// StepTypeYesNo collects a boolean answer.
	StepTypeYesNo StepType = "yes_no"
	// StepTypeOpinionScale collects a numeric rating on a bounded scale.
	StepTypeOpinionScale StepType = "opinion_scale"
	// StepTypeEmail collects an email address or phone number for delivery.
	StepTypeEmail StepType = "email"
	// StepTypeProcessing waits for the transformation job to finish.
	StepTypeProcessing StepType = "processing"
	// StepTypeReward presents the transformation result.
	StepTypeReward StepType = "reward"
)

// Validation constants for step configuration.
const (
	// MaxPromptLength defines the maximum allowed length for an AI prompt template.
	MaxPromptLength = 4096
	// MaxChoiceOptionsCount defines the maximum number of multiple-choice options.
	MaxChoiceOptionsCount = 12
	// MinChoiceOptionsCount defines the minimum number of multiple-choice options.
	MinChoiceOptionsCount = 2
)

// Error variables for step validation.
var (
	ErrEmptyStepID         = errors.New("step id cannot be empty")
	ErrInvalidStepType     = errors.New("invalid step type")
	ErrEmptyPrompt         = errors.New("prompt template is required for ai-transform steps")
	ErrPromptTooLong       = errors.New("prompt template exceeds maximum length")
	ErrMissingChoices      = errors.New("options are required for multiple_choice steps")
	ErrTooFewChoices       = errors.New("insufficient multiple_choice options")
	ErrTooManyChoices      = errors.New("too many multiple_choice options")
	ErrEmptyChoiceLabel    = errors.New("choice option label cannot be empty")
	ErrInvalidScaleBounds  = errors.New("opinion_scale bounds must satisfy min < max")
	ErrInvalidVariableDef  = errors.New("variable definition is incomplete")
	ErrDuplicateStepID     = errors.New("duplicate step id")
	ErrOrderLengthMismatch = errors.New("steps and stepsOrder must have the same length")
	ErrUnknownOrderID      = errors.New("stepsOrder references an unknown step id")
)

// IsValidStepType checks if the given step type is supported.
func IsValidStepType(st StepType) bool {
	switch st {
	case StepTypeInfo, StepTypeCapture, StepTypeAITransform, StepTypeShortText,
		StepTypeLongText, StepTypeMultipleChoice, StepTypeYesNo,
		StepTypeOpinionScale, StepTypeEmail, StepTypeProcessing, StepTypeReward:
		return true
	default:
		return false
	}
}

// VariableSource identifies where a prompt variable takes its value from.
type VariableSource string

const (
	// VariableSourceStatic uses a fixed value authored with the experience.
	VariableSourceStatic VariableSource = "static"
	// VariableSourceInput reads the value from a collected step input.
	VariableSourceInput VariableSource = "input"
	// VariableSourceCapture reads the value from a captured photo reference.
	VariableSourceCapture VariableSource = "capture"
)

// VariableDef declares one {{key}} placeholder available to a prompt template.
type VariableDef struct {
	Key          string         `json:"key" yaml:"key"`
	SourceType   VariableSource `json:"source_type" yaml:"sourceType"`
	StaticValue  string         `json:"static_value,omitempty" yaml:"staticValue,omitempty"`
	SourceStepID string         `json:"source_step_id,omitempty" yaml:"sourceStepId,omitempty"`
}

// Validate checks that the variable definition names a usable source.
func (v *VariableDef) Validate() error {
	if v.Key == "" {
		return ErrInvalidVariableDef
	}
	switch v.SourceType {
	case VariableSourceStatic:
		return nil
	case VariableSourceInput, VariableSourceCapture:
		if v.SourceStepID == "" {
			return ErrInvalidVariableDef
		}
		return nil
	default:
		return ErrInvalidVariableDef
	}
}

// StepConfig carries the type-specific payload of a step. Only the fields
// relevant to the step's type are consulted.
type StepConfig struct {
	Title       string        `json:"title,omitempty" yaml:"title,omitempty"`
	Body        string        `json:"body,omitempty" yaml:"body,omitempty"`
	Placeholder string        `json:"placeholder,omitempty" yaml:"placeholder,omitempty"`
	Required    bool          `json:"required,omitempty" yaml:"required,omitempty"`
	Options     []string      `json:"options,omitempty" yaml:"options,omitempty"`
	MultiSelect bool          `json:"multi_select,omitempty" yaml:"multiSelect,omitempty"`
	ScaleMin    int           `json:"scale_min,omitempty" yaml:"scaleMin,omitempty"`
	ScaleMax    int           `json:"scale_max,omitempty" yaml:"scaleMax,omitempty"`
	Prompt      string        `json:"prompt,omitempty" yaml:"prompt,omitempty"`
	Variables   []VariableDef `json:"variables,omitempty" yaml:"variables,omitempty"`
	OutputSize  string        `json:"output_size,omitempty" yaml:"outputSize,omitempty"`
	Messages    []string      `json:"messages,omitempty" yaml:"messages,omitempty"`
}

// Step is one unit of the linear experience sequence.
type Step struct {
	ID     string     `json:"id" yaml:"id"`
	Type   StepType   `json:"type" yaml:"type"`
	Config StepConfig `json:"config" yaml:"config"`
}

// Validate performs type-specific validation on a step definition.
func (s *Step) Validate() error {
	if s.ID == "" {
		return ErrEmptyStepID
	}
	if !IsValidStepType(s.Type) {
		return fmt.Errorf("%w: %q (step %s)", ErrInvalidStepType, s.Type, s.ID)
	}
	switch s.Type {
	case StepTypeAITransform:
		return s.validateTransform()
	case StepTypeMultipleChoice:
		return s.validateChoices()
	case StepTypeOpinionScale:
		if s.Config.ScaleMin >= s.Config.ScaleMax {
			return ErrInvalidScaleBounds
		}
	}
	return nil
}

func (s *Step) validateTransform() error {
	if s.Config.Prompt == "" {
		return ErrEmptyPrompt
	}
	if len(s.Config.Prompt) > MaxPromptLength {
		return ErrPromptTooLong
	}
	for i := range s.Config.Variables {
		if err := s.Config.Variables[i].Validate(); err != nil {
			return fmt.Errorf("variable %q: %w", s.Config.Variables[i].Key, err)
		}
	}
	return nil
}

func (s *Step) validateChoices() error {
	if len(s.Config.Options) == 0 {
		return ErrMissingChoices
	}
	if len(s.Config.Options) < MinChoiceOptionsCount {
		return ErrTooFewChoices
	}
	if len(s.Config.Options) > MaxChoiceOptionsCount {
		return ErrTooManyChoices
	}
	for _, opt := range s.Config.Options {
		if opt == "" {
			return ErrEmptyChoiceLabel
		}
	}
	return nil
}

// ValidateSequence checks the steps/stepsOrder pair invariants: equal length,
// unique ids, and every order entry resolving to exactly one step.
func ValidateSequence(steps []Step, order []string) error {
	if len(steps) != len(order) {
		return fmt.Errorf("%w: %d steps, %d order entries", ErrOrderLengthMismatch, len(steps), len(order))
	}
	byID := make(map[string]struct{}, len(steps))
	for i := range steps {
		if _, dup := byID[steps[i].ID]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateStepID, steps[i].ID)
		}
		byID[steps[i].ID] = struct{}{}
	}
	for _, id := range order {
		if _, ok := byID[id]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownOrderID, id)
		}
	}
	return nil
}
