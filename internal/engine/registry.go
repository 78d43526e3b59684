package engine

import (
	"time"

	"github.com/boothlabs/boothflow/internal/models"
)

// View is the renderer's output: the presentation payload for the current
// step plus the behavioral flags the engine needs to drive it.
type View struct {
	StepID      string          `json:"step_id"`
	Kind        models.StepType `json:"kind"`
	Title       string          `json:"title,omitempty"`
	Body        string          `json:"body,omitempty"`
	Placeholder string          `json:"placeholder,omitempty"`
	Options     []string        `json:"options,omitempty"`
	MultiSelect bool            `json:"multi_select,omitempty"`
	ScaleMin    int             `json:"scale_min,omitempty"`
	ScaleMax    int             `json:"scale_max,omitempty"`
	Messages    []string        `json:"messages,omitempty"`
	ResultURL   string          `json:"result_url,omitempty"`

	// Loading marks a skeleton view awaiting an external signal.
	Loading bool `json:"loading,omitempty"`
	// ErrorMessage marks an inline step-local error state.
	ErrorMessage string `json:"error_message,omitempty"`
	// CanRetry offers a retry affordance for a failed trigger.
	CanRetry bool `json:"can_retry,omitempty"`

	// AdvanceOnInput asks the engine to auto-advance as soon as an input for
	// this step is submitted (capture, yes_no).
	AdvanceOnInput bool `json:"-"`
	// AutoAdvancing marks the step as waiting on its own advance signal, which
	// suppresses user navigation until it fires.
	AutoAdvancing bool `json:"-"`
}

// Context is the capability set handed to a renderer when its step becomes
// current. All closures are bound to the current step generation: once the
// engine commits another transition they become no-ops, so a stale timer or
// watcher can never advance the wrong step.
type Context struct {
	Step         *models.Step
	Session      *models.EngineSession
	CurrentValue models.StepInput
	HasValue     bool
	Theme        map[string]any

	// Advance asks the engine to auto-advance past this step.
	Advance func()
	// ScheduleAfter arms a timer invalidated on the next transition.
	ScheduleAfter func(delay time.Duration, fn func())
	// WatchTransform subscribes to transform status changes until the next
	// transition.
	WatchTransform func(handler func(models.TransformationStatus))
	// TriggerTransform interpolates the step's prompt and fires the
	// transformation job, recording the pending status.
	TriggerTransform func() error
	// UpdateView replaces the rendered view in place, without navigation.
	UpdateView func(view View)

	// ConfirmDelay is the pause between a successful trigger and the
	// unconditional advance.
	ConfirmDelay time.Duration
}

// Renderer implements one step variant's control logic.
type Renderer interface {
	Render(rc *Context) (View, error)
}

var registry = make(map[models.StepType]Renderer)

// Register associates a step type with a Renderer implementation.
func Register(t models.StepType, r Renderer) {
	registry[t] = r
}

// Get retrieves the Renderer for a given step type.
func Get(t models.StepType) (Renderer, bool) {
	r, ok := registry[t]
	return r, ok
}

// Register default renderers. Dispatch stays total: unknown types fall back
// to the unregistered renderer at the call site.
func init() {
	Register(models.StepTypeInfo, &infoRenderer{})
	Register(models.StepTypeCapture, &captureRenderer{})
	Register(models.StepTypeAITransform, &aiTransformRenderer{})
	Register(models.StepTypeShortText, &textRenderer{})
	Register(models.StepTypeLongText, &textRenderer{})
	Register(models.StepTypeMultipleChoice, &multipleChoiceRenderer{})
	Register(models.StepTypeYesNo, &yesNoRenderer{})
	Register(models.StepTypeOpinionScale, &opinionScaleRenderer{})
	Register(models.StepTypeEmail, &textRenderer{})
	Register(models.StepTypeProcessing, &processingRenderer{})
	Register(models.StepTypeReward, &rewardRenderer{})
}
