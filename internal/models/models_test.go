package models

import (
	"errors"
	"testing"
)

func TestStepValidate(t *testing.T) {
	cases := []struct {
		name    string
		step    Step
		wantErr error
	}{
		{
			name: "valid info step",
			step: Step{ID: "welcome", Type: StepTypeInfo},
		},
		{
			name:    "empty id",
			step:    Step{Type: StepTypeInfo},
			wantErr: ErrEmptyStepID,
		},
		{
			name:    "unknown type",
			step:    Step{ID: "x", Type: StepType("hologram")},
			wantErr: ErrInvalidStepType,
		},
		{
			name:    "transform without prompt",
			step:    Step{ID: "t", Type: StepTypeAITransform},
			wantErr: ErrEmptyPrompt,
		},
		{
			name: "transform with bad variable",
			step: Step{ID: "t", Type: StepTypeAITransform, Config: StepConfig{
				Prompt:    "make {{style}}",
				Variables: []VariableDef{{Key: "style", SourceType: VariableSourceInput}},
			}},
			wantErr: ErrInvalidVariableDef,
		},
		{
			name:    "choice without options",
			step:    Step{ID: "c", Type: StepTypeMultipleChoice},
			wantErr: ErrMissingChoices,
		},
		{
			name:    "choice with one option",
			step:    Step{ID: "c", Type: StepTypeMultipleChoice, Config: StepConfig{Options: []string{"only"}}},
			wantErr: ErrTooFewChoices,
		},
		{
			name:    "choice with empty label",
			step:    Step{ID: "c", Type: StepTypeMultipleChoice, Config: StepConfig{Options: []string{"a", ""}}},
			wantErr: ErrEmptyChoiceLabel,
		},
		{
			name:    "scale with inverted bounds",
			step:    Step{ID: "s", Type: StepTypeOpinionScale, Config: StepConfig{ScaleMin: 5, ScaleMax: 1}},
			wantErr: ErrInvalidScaleBounds,
		},
		{
			name: "valid scale",
			step: Step{ID: "s", Type: StepTypeOpinionScale, Config: StepConfig{ScaleMin: 1, ScaleMax: 10}},
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := c.step.Validate()
			if c.wantErr == nil {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}
			if !errors.Is(err, c.wantErr) {
				t.Fatalf("expected %v, got %v", c.wantErr, err)
			}
		})
	}
}

func TestValidateSequence(t *testing.T) {
	steps := []Step{
		{ID: "a", Type: StepTypeInfo},
		{ID: "b", Type: StepTypeCapture},
	}

	if err := ValidateSequence(steps, []string{"b", "a"}); err != nil {
		t.Fatalf("expected valid sequence, got %v", err)
	}
	if err := ValidateSequence(steps, []string{"a"}); !errors.Is(err, ErrOrderLengthMismatch) {
		t.Errorf("expected length mismatch, got %v", err)
	}
	if err := ValidateSequence(steps, []string{"a", "missing"}); !errors.Is(err, ErrUnknownOrderID) {
		t.Errorf("expected unknown order id, got %v", err)
	}
	dup := []Step{
		{ID: "a", Type: StepTypeInfo},
		{ID: "a", Type: StepTypeInfo},
	}
	if err := ValidateSequence(dup, []string{"a", "a"}); !errors.Is(err, ErrDuplicateStepID) {
		t.Errorf("expected duplicate step id, got %v", err)
	}
}

func TestStepInputDisplayString(t *testing.T) {
	cases := []struct {
		input    StepInput
		expected string
	}{
		{TextInput("Alice"), "Alice"},
		{BooleanInput(true), "yes"},
		{BooleanInput(false), "no"},
		{NumberInput(7), "7"},
		{NumberInput(3.5), "3.5"},
		{ChoiceInput("neon"), "neon"},
		{MultiChoiceInput([]string{"neon", "retro"}), "neon, retro"},
		{PhotoInput("https://cdn.example/p.jpg"), "https://cdn.example/p.jpg"},
		{StepInput{}, ""},
	}
	for _, c := range cases {
		if got := c.input.DisplayString(); got != c.expected {
			t.Errorf("DisplayString(%+v) = %q, want %q", c.input, got, c.expected)
		}
	}
}

func TestStepInputValidate(t *testing.T) {
	if err := TextInput("hi").Validate(); err != nil {
		t.Fatalf("expected text input to validate, got %v", err)
	}
	if err := (StepInput{Kind: InputKind("emoji")}).Validate(); !errors.Is(err, ErrInvalidInputKind) {
		t.Fatalf("expected ErrInvalidInputKind, got %v", err)
	}
}

func TestErrorCodeIsFatal(t *testing.T) {
	fatal := []ErrorCode{ErrorCodeInitFailed, ErrorCodeSessionLoadFailed}
	for _, code := range fatal {
		if !code.IsFatal() {
			t.Errorf("expected %s to be fatal", code)
		}
	}
	recoverable := []ErrorCode{ErrorCodeSessionSyncFailed, ErrorCodeTransformFailed, ErrorCodeRendererError, ErrorCodeNavBlocked, ErrorCodeUnknown}
	for _, code := range recoverable {
		if code.IsFatal() {
			t.Errorf("expected %s to be recoverable", code)
		}
	}
}

func TestEngineErrorUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewStepError(ErrorCodeSessionSyncFailed, "photo", "write failed", cause)
	if !errors.Is(err, cause) {
		t.Error("expected cause to be reachable via errors.Is")
	}
	if err.Error() != "SESSION_SYNC_FAILED (step photo): write failed" {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestSessionDataClone(t *testing.T) {
	data := SessionData{"name": TextInput("Alice")}
	clone := data.Clone()
	clone["name"] = TextInput("Bob")
	if data["name"].Text != "Alice" {
		t.Error("clone mutation leaked into original")
	}
}
