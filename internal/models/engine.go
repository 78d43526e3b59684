package models

// EngineStatus represents the navigation state machine's top-level state.
type EngineStatus string

const (
	// EngineStatusIdle is the pre-initialization state.
	EngineStatusIdle EngineStatus = "idle"
	// EngineStatusLoading spans session resolution.
	EngineStatusLoading EngineStatus = "loading"
	// EngineStatusRunning is entered once the first step is resolvable.
	EngineStatusRunning EngineStatus = "running"
	// EngineStatusCompleted is terminal on forward-advance past the last step.
	EngineStatusCompleted EngineStatus = "completed"
	// EngineStatusError is terminal on unrecoverable failure.
	EngineStatusError EngineStatus = "error"
)

// Direction labels a committed navigation transition.
type Direction string

const (
	// DirectionForward is a next() or auto-advance transition.
	DirectionForward Direction = "forward"
	// DirectionBackward is a previous() transition.
	DirectionBackward Direction = "backward"
	// DirectionSkip is a skip() transition.
	DirectionSkip Direction = "skip"
	// DirectionRestart is a restart() transition back to the first step.
	DirectionRestart Direction = "restart"
)

// EngineState is a pure projection of the session plus navigation flags,
// recomputed on every committed transition.
type EngineState struct {
	Status           EngineStatus         `json:"status"`
	CurrentStepIndex int                  `json:"current_step_index"`
	CurrentStep      *Step                `json:"current_step,omitempty"`
	Data             SessionData          `json:"data"`
	Transform        TransformationStatus `json:"transform"`
	CanGoBack        bool                 `json:"can_go_back"`
	CanGoNext        bool                 `json:"can_go_next"`
	CanSkip          bool                 `json:"can_skip"`
	IsAutoAdvancing  bool                 `json:"is_auto_advancing"`
}

// StepChange is the payload delivered to OnStepChange.
type StepChange struct {
	Index         int       `json:"index"`
	PreviousIndex int       `json:"previous_index"`
	Step          *Step     `json:"step,omitempty"`
	Direction     Direction `json:"direction"`
}

// Callbacks holds the lifecycle handlers supplied with the engine config.
// Handlers are invoked synchronously in emission order; panics inside a
// handler are recovered at the call site and never reach engine internals.
type Callbacks struct {
	OnStart      func(session *EngineSession)
	OnStepChange func(change StepChange)
	OnDataUpdate func(data SessionData)
	OnComplete   func(session *EngineSession)
	OnError      func(err EngineError)
}

// EngineConfig is the immutable input to an engine run. It is supplied as a
// finished, validated artifact by the experience loader.
type EngineConfig struct {
	ExperienceID string   `json:"experience_id"`
	Steps        []Step   `json:"steps"`
	StepsOrder   []string `json:"steps_order"`

	// PersistSession selects the persisted session store. When false the run
	// is purely in-memory and performs no external I/O.
	PersistSession bool `json:"persist_session"`

	AllowBack bool `json:"allow_back"`
	AllowSkip bool `json:"allow_skip"`
	Debug     bool `json:"debug"`

	// Persisted-mode scoping. ExistingSessionID resumes a prior run.
	ExistingSessionID string `json:"existing_session_id,omitempty"`
	ProjectID         string `json:"project_id,omitempty"`
	EventID           string `json:"event_id,omitempty"`
	CompanyID         string `json:"company_id,omitempty"`

	// Theme is an opaque visual payload passed through to renderers unmodified.
	Theme map[string]any `json:"theme,omitempty"`

	Callbacks Callbacks `json:"-"`
}

// Validate checks the config's structural invariants. Step-level validation
// is delegated to Step.Validate; unknown step types are deliberately allowed
// through so dispatch can isolate them at render time.
func (c *EngineConfig) Validate() error {
	if err := ValidateSequence(c.Steps, c.StepsOrder); err != nil {
		return err
	}
	for i := range c.Steps {
		if c.Steps[i].ID == "" {
			return ErrEmptyStepID
		}
	}
	return nil
}

// StepByID returns the step with the given id, or nil if absent.
func (c *EngineConfig) StepByID(id string) *Step {
	for i := range c.Steps {
		if c.Steps[i].ID == id {
			return &c.Steps[i]
		}
	}
	return nil
}

// StepAt resolves the step at the given execution-order index, or nil if the
// index is out of range or the order entry does not resolve.
func (c *EngineConfig) StepAt(index int) *Step {
	if index < 0 || index >= len(c.StepsOrder) {
		return nil
	}
	return c.StepByID(c.StepsOrder[index])
}
