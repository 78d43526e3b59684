package models

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// InputKind identifies the variant of a collected step input.
type InputKind string

const (
	// InputKindText is a free-form text answer.
	InputKindText InputKind = "text"
	// InputKindBoolean is a yes/no answer.
	InputKindBoolean InputKind = "boolean"
	// InputKindNumber is a numeric answer (opinion scales).
	InputKindNumber InputKind = "number"
	// InputKindSingleChoice is one selected option.
	InputKindSingleChoice InputKind = "single_choice"
	// InputKindMultiChoice is a set of selected options.
	InputKindMultiChoice InputKind = "multi_choice"
	// InputKindPhoto is a reference to an uploaded photo.
	InputKindPhoto InputKind = "photo"
)

// ErrInvalidInputKind indicates an input value carrying an unknown kind tag.
var ErrInvalidInputKind = errors.New("invalid input kind")

// StepInput is the tagged union of values a step can collect. Kind selects
// which payload field is meaningful.
type StepInput struct {
	Kind       InputKind `json:"kind"`
	Text       string    `json:"text,omitempty"`
	Boolean    bool      `json:"boolean,omitempty"`
	Number     float64   `json:"number,omitempty"`
	Selection  string    `json:"selection,omitempty"`
	Selections []string  `json:"selections,omitempty"`
	PhotoURL   string    `json:"photo_url,omitempty"`
}

// TextInput builds a text-kind input value.
func TextInput(text string) StepInput {
	return StepInput{Kind: InputKindText, Text: text}
}

// BooleanInput builds a boolean-kind input value.
func BooleanInput(v bool) StepInput {
	return StepInput{Kind: InputKindBoolean, Boolean: v}
}

// NumberInput builds a number-kind input value.
func NumberInput(v float64) StepInput {
	return StepInput{Kind: InputKindNumber, Number: v}
}

// ChoiceInput builds a single-selection input value.
func ChoiceInput(selection string) StepInput {
	return StepInput{Kind: InputKindSingleChoice, Selection: selection}
}

// MultiChoiceInput builds a multi-selection input value.
func MultiChoiceInput(selections []string) StepInput {
	return StepInput{Kind: InputKindMultiChoice, Selections: selections}
}

// PhotoInput builds a photo-reference input value.
func PhotoInput(url string) StepInput {
	return StepInput{Kind: InputKindPhoto, PhotoURL: url}
}

// DisplayString extracts the string representation used for prompt variable
// interpolation: text as-is, photo references as their URL, selections joined.
func (in StepInput) DisplayString() string {
	switch in.Kind {
	case InputKindText:
		return in.Text
	case InputKindBoolean:
		if in.Boolean {
			return "yes"
		}
		return "no"
	case InputKindNumber:
		return strconv.FormatFloat(in.Number, 'f', -1, 64)
	case InputKindSingleChoice:
		return in.Selection
	case InputKindMultiChoice:
		return strings.Join(in.Selections, ", ")
	case InputKindPhoto:
		return in.PhotoURL
	default:
		return ""
	}
}

// Validate checks the input carries a known kind tag.
func (in StepInput) Validate() error {
	switch in.Kind {
	case InputKindText, InputKindBoolean, InputKindNumber,
		InputKindSingleChoice, InputKindMultiChoice, InputKindPhoto:
		return nil
	default:
		return ErrInvalidInputKind
	}
}

// SessionData maps step ids to collected inputs. Entries are last-write-wins
// per step id and are only removed by a restart.
type SessionData map[string]StepInput

// Clone returns a shallow copy safe to hand to callbacks and renderers.
func (d SessionData) Clone() SessionData {
	out := make(SessionData, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// TransformState represents the lifecycle state of a transformation job.
type TransformState string

const (
	// TransformStateIdle indicates no job has been triggered.
	TransformStateIdle TransformState = "idle"
	// TransformStatePending indicates the job has been accepted but not started.
	TransformStatePending TransformState = "pending"
	// TransformStateProcessing indicates the job is being executed.
	TransformStateProcessing TransformState = "processing"
	// TransformStateComplete indicates the job produced a result.
	TransformStateComplete TransformState = "complete"
	// TransformStateError indicates the job failed permanently.
	TransformStateError TransformState = "error"
)

// TransformationStatus is written by the transformation orchestrator and
// worker; every other component only reads it.
type TransformationStatus struct {
	Status       TransformState `json:"status"`
	ResultURL    string         `json:"result_url,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	JobID        string         `json:"job_id,omitempty"`
	UpdatedAt    time.Time      `json:"updated_at,omitempty"`
}

// EngineSession is the aggregate root for one run of an experience. It is
// mutated exclusively through the session store.
type EngineSession struct {
	ID               string               `json:"id"`
	ExperienceID     string               `json:"experience_id"`
	CurrentStepIndex int                  `json:"current_step_index"`
	Data             SessionData          `json:"data"`
	Transform        TransformationStatus `json:"transform"`
	EventID          string               `json:"event_id,omitempty"`
	ProjectID        string               `json:"project_id,omitempty"`
	CompanyID        string               `json:"company_id,omitempty"`
	CreatedAt        time.Time            `json:"created_at"`
	UpdatedAt        time.Time            `json:"updated_at"`
}

// Clone returns a deep-enough copy for read-only consumers.
func (s *EngineSession) Clone() *EngineSession {
	if s == nil {
		return nil
	}
	out := *s
	out.Data = s.Data.Clone()
	return &out
}
