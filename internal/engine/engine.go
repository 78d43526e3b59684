// Package engine is the composition root of the experience runtime. It wires
// the session store, navigation state machine, step registry, and
// transformation trigger together, and emits the lifecycle callbacks.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/boothlabs/boothflow/internal/metrics"
	"github.com/boothlabs/boothflow/internal/models"
	"github.com/boothlabs/boothflow/internal/session"
)

// TriggerFunc fires the external transformation job for a session and
// returns the accepted job's id. Acceptance is synchronous; the job itself
// completes out of process and is observed through the session store.
type TriggerFunc func(ctx context.Context, sessionID, prompt, outputSize string) (string, error)

// Deps are the engine's collaborators. Sessions is required for persisted
// mode; an ephemeral store is constructed automatically otherwise. Trigger
// and Metrics may be nil.
type Deps struct {
	Sessions session.Store
	Trigger  TriggerFunc
	Metrics  *metrics.Metrics
}

// Engine executes one run of an experience: a strictly linear walk over the
// configured steps, with auto-advancing steps driving themselves through the
// single advance primitive.
//
// All operations are serialized; nothing in the engine blocks waiting for
// the transformation job. Waiting is expressed as "advance when the watched
// status changes".
type Engine struct {
	cfg      models.EngineConfig
	sessions session.Store
	trigger  TriggerFunc
	metrics  *metrics.Metrics
	timer    *Timer

	debounce     time.Duration
	confirmDelay time.Duration
	now          func() time.Time

	// navMu serializes whole operations: navigation, input submission,
	// rendering, disposal.
	navMu     sync.Mutex
	ctx       context.Context
	emissions []func()

	// stateMu guards the fields read by State and by renderer closures on
	// other goroutines.
	stateMu       sync.RWMutex
	status        models.EngineStatus
	generation    int
	lastCommit    time.Time
	hasCommit     bool
	autoAdvancing bool
	rendering     bool
	pendingAdv    bool
	view          View
	cleanups      []func()
	disposed      bool
}

// New builds an engine for the given config. The config must already be
// validated by the experience loader; structural violations fail here with
// an INIT_FAILED error.
func New(cfg models.EngineConfig, deps Deps) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, models.NewEngineError(models.ErrorCodeInitFailed, "invalid engine config", err)
	}

	sessions := deps.Sessions
	if sessions == nil {
		if cfg.PersistSession {
			return nil, models.NewEngineError(models.ErrorCodeInitFailed, "persisted mode requires a session store", nil)
		}
		sessions = session.NewEphemeral(session.Config{ExperienceID: cfg.ExperienceID})
	}

	return &Engine{
		cfg:          cfg,
		sessions:     sessions,
		trigger:      deps.Trigger,
		metrics:      deps.Metrics,
		timer:        NewTimer(),
		debounce:     DefaultDebounce,
		confirmDelay: DefaultConfirmDelay,
		now:          time.Now,
		status:       models.EngineStatusIdle,
	}, nil
}

// Start resolves the session and renders the first step. Fatal failures move
// the machine to the error state; only Restart can leave it.
func (e *Engine) Start(ctx context.Context) error {
	e.navMu.Lock()

	e.stateMu.Lock()
	if e.status != models.EngineStatusIdle {
		e.stateMu.Unlock()
		e.navMu.Unlock()
		return fmt.Errorf("engine already started")
	}
	e.status = models.EngineStatusLoading
	e.stateMu.Unlock()
	e.ctx = ctx

	sess, err := e.sessions.Init(ctx)
	if err != nil {
		code := models.ErrorCodeInitFailed
		if errors.Is(err, session.ErrSessionLoadFailed) {
			code = models.ErrorCodeSessionLoadFailed
		}
		e.setStatus(models.EngineStatusError)
		engineErr := models.NewEngineError(code, "session resolution failed", err)
		e.reportLocked(engineErr)
		e.finish()
		return engineErr
	}

	// A resumed index outside the configured order is clamped, not fatal.
	total := len(e.cfg.StepsOrder)
	if sess.CurrentStepIndex < 0 || sess.CurrentStepIndex >= total {
		clamped := 0
		if sess.CurrentStepIndex >= total {
			clamped = total - 1
		}
		slog.Warn("Engine.Start clamping out-of-range step index", "sessionID", sess.ID, "index", sess.CurrentStepIndex, "clamped", clamped)
		if err := e.sessions.SetStepIndex(ctx, clamped); err != nil {
			slog.Error("Engine.Start clamp write failed", "error", err, "sessionID", sess.ID)
		}
	}

	e.setStatus(models.EngineStatusRunning)
	if e.metrics != nil {
		e.metrics.SessionsStarted.Inc()
	}
	if cb := e.cfg.Callbacks.OnStart; cb != nil {
		snapshot := sess.Clone()
		e.queue(func() { cb(snapshot) })
	}
	slog.Info("Engine started", "experienceID", e.cfg.ExperienceID, "sessionID", sess.ID)

	e.renderLoop()
	e.finish()
	return nil
}

// Next advances to the next step, or completes the run from the last step.
func (e *Engine) Next() {
	e.userNavigate(models.DirectionForward)
}

// Previous moves back one step. A no-op at index 0 or when back navigation
// is disallowed. Stored input for the step being left is kept.
func (e *Engine) Previous() {
	e.userNavigate(models.DirectionBackward)
}

// Skip advances without recording input for the current step. A no-op when
// skipping is disallowed.
func (e *Engine) Skip() {
	e.userNavigate(models.DirectionSkip)
}

// Restart returns to the first step with cleared data. It is the only exit
// from the terminal completed and error states.
func (e *Engine) Restart() {
	e.navMu.Lock()
	defer e.finish()

	e.stateMu.RLock()
	status := e.status
	e.stateMu.RUnlock()
	if status == models.EngineStatusIdle || status == models.EngineStatusLoading {
		slog.Debug("Engine.Restart ignored", "status", status)
		return
	}

	prev := e.currentIndex()
	e.runCleanups()
	if e.sessions.Session() == nil {
		// A failed Init never resolved a session; restart retries resolution.
		if _, err := e.sessions.Init(e.ctx); err != nil {
			e.setStatus(models.EngineStatusError)
			code := models.ErrorCodeInitFailed
			if errors.Is(err, session.ErrSessionLoadFailed) {
				code = models.ErrorCodeSessionLoadFailed
			}
			e.reportLocked(models.NewEngineError(code, "session resolution failed", err))
			return
		}
	} else if err := e.sessions.Reset(e.ctx); err != nil {
		slog.Error("Engine.Restart reset failed", "error", err)
		e.reportLocked(models.NewEngineError(models.ErrorCodeUnknown, "session reset failed", err))
		return
	}

	e.stateMu.Lock()
	e.status = models.EngineStatusRunning
	e.generation++
	e.lastCommit = e.now()
	e.hasCommit = true
	e.autoAdvancing = false
	e.stateMu.Unlock()

	e.countNav(models.DirectionRestart)
	e.queueStepChange(0, prev, models.DirectionRestart)
	slog.Debug("Engine restarted", "experienceID", e.cfg.ExperienceID)
	e.renderLoop()
}

// SubmitInput records the guest's answer for a step. Submitting for the
// current step auto-advances it when the step's renderer asked for that
// behavior (capture, yes_no).
func (e *Engine) SubmitInput(stepID string, value models.StepInput) error {
	if err := value.Validate(); err != nil {
		return err
	}

	e.navMu.Lock()
	defer e.finish()

	e.stateMu.RLock()
	status := e.status
	advanceOnInput := e.view.AdvanceOnInput && e.view.StepID == stepID
	e.stateMu.RUnlock()
	if status != models.EngineStatusRunning {
		return fmt.Errorf("engine is not running")
	}

	if err := e.sessions.SetStepInput(e.ctx, stepID, value); err != nil {
		e.reportLocked(models.NewStepError(models.ErrorCodeSessionSyncFailed, stepID, "input write failed", err))
		return nil
	}
	if cb := e.cfg.Callbacks.OnDataUpdate; cb != nil {
		data := e.sessions.Session().Data
		e.queue(func() { cb(data) })
	}

	if advanceOnInput {
		if e.advance(models.DirectionForward) {
			e.renderLoop()
		}
	}
	return nil
}

// Retry re-attempts a failed transformation and re-renders the current step.
// At transform status error it re-enqueues the job for the governing
// ai-transform step without navigating; any other status just re-renders.
func (e *Engine) Retry() {
	e.navMu.Lock()
	defer e.finish()

	e.stateMu.RLock()
	status := e.status
	e.stateMu.RUnlock()
	if status != models.EngineStatusRunning {
		return
	}

	if sess := e.sessions.Session(); sess != nil && sess.Transform.Status == models.TransformStateError {
		if step := e.transformStepAtOrBefore(sess.CurrentStepIndex); step != nil {
			if err := e.triggerTransform(step, sess); err != nil {
				slog.Debug("Engine.Retry re-trigger failed", "error", err)
			}
		}
	}
	e.renderLoop()
}

// transformStepAtOrBefore returns the nearest ai-transform step at or before
// the given index. The processing and reward steps always follow their
// trigger, so this resolves the step that owns the failed job.
func (e *Engine) transformStepAtOrBefore(index int) *models.Step {
	for i := index; i >= 0; i-- {
		if step := e.cfg.StepAt(i); step != nil && step.Type == models.StepTypeAITransform {
			return step
		}
	}
	return nil
}

// State returns the current projection of session and navigation flags.
func (e *Engine) State() models.EngineState {
	e.stateMu.RLock()
	status := e.status
	autoAdvancing := e.autoAdvancing
	e.stateMu.RUnlock()

	sess := e.sessions.Session()
	state := models.EngineState{
		Status:          status,
		IsAutoAdvancing: autoAdvancing,
	}
	if sess != nil {
		state.CurrentStepIndex = sess.CurrentStepIndex
		state.Data = sess.Data
		state.Transform = sess.Transform
		state.CurrentStep = e.cfg.StepAt(sess.CurrentStepIndex)
	}
	state.CanGoBack, state.CanGoNext, state.CanSkip = availability(
		status, state.CurrentStepIndex, len(e.cfg.StepsOrder),
		e.cfg.AllowBack, e.cfg.AllowSkip, autoAdvancing)
	return state
}

// CurrentView returns the rendered view of the current step.
func (e *Engine) CurrentView() View {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return e.view
}

// Session returns a snapshot of the underlying session.
func (e *Engine) Session() *models.EngineSession {
	return e.sessions.Session()
}

// Dispose releases subscriptions and pending timers. The transformation job
// is deliberately left running; a remount resumes it via the session id.
func (e *Engine) Dispose() {
	e.navMu.Lock()
	defer e.finish()

	e.stateMu.RLock()
	disposed := e.disposed
	e.stateMu.RUnlock()
	if disposed {
		return
	}

	e.runCleanups()
	e.timer.Stop()
	e.sessions.Dispose()

	e.stateMu.Lock()
	e.disposed = true
	e.generation++
	e.stateMu.Unlock()
	slog.Debug("Engine disposed", "experienceID", e.cfg.ExperienceID)
}

// userNavigate applies the debounce gate and policy checks, then commits.
// Blocked attempts are dropped silently, never surfaced to OnError.
func (e *Engine) userNavigate(dir models.Direction) {
	e.navMu.Lock()
	defer e.finish()

	e.stateMu.RLock()
	status := e.status
	autoAdvancing := e.autoAdvancing
	lastCommit := e.lastCommit
	hasCommit := e.hasCommit
	e.stateMu.RUnlock()

	if status != models.EngineStatusRunning || autoAdvancing {
		slog.Debug("Navigation blocked", "direction", dir, "status", status, "autoAdvancing", autoAdvancing)
		return
	}

	index := e.currentIndex()
	switch dir {
	case models.DirectionBackward:
		if !e.cfg.AllowBack || index == 0 {
			slog.Debug("Navigation blocked", "direction", dir, "index", index)
			return
		}
	case models.DirectionSkip:
		if !e.cfg.AllowSkip {
			slog.Debug("Navigation blocked", "direction", dir)
			return
		}
	}

	if hasCommit && e.now().Sub(lastCommit) < e.debounce {
		slog.Debug("Navigation debounced", "direction", dir)
		return
	}

	if e.advance(dir) {
		e.renderLoop()
	}
}

// autoAdvance is the advance primitive exposed to renderers via Context. The
// generation guard drops signals from steps that are no longer current. It
// bypasses the debounce gate: a self-advancing step commits exactly once by
// construction.
func (e *Engine) autoAdvance(gen int) {
	e.navMu.Lock()
	defer e.finish()

	e.stateMu.RLock()
	current := gen == e.generation && e.status == models.EngineStatusRunning && !e.disposed
	e.stateMu.RUnlock()
	if !current {
		slog.Debug("Stale auto-advance dropped", "generation", gen)
		return
	}

	if e.advance(models.DirectionForward) {
		e.renderLoop()
	}
}

// advance commits one transition. Returns true when a new step must be
// rendered; false when the run completed or the transition failed.
// Caller holds navMu.
func (e *Engine) advance(dir models.Direction) bool {
	index := e.currentIndex()
	prev := index
	total := len(e.cfg.StepsOrder)

	if dir == models.DirectionBackward {
		index--
	} else {
		if index >= total-1 {
			e.complete()
			return false
		}
		index++
	}

	e.runCleanups()
	if err := e.sessions.SetStepIndex(e.ctx, index); err != nil {
		e.reportLocked(models.NewEngineError(models.ErrorCodeSessionSyncFailed, "step index write failed", err))
	}

	e.stateMu.Lock()
	e.generation++
	e.lastCommit = e.now()
	e.hasCommit = true
	e.autoAdvancing = false
	e.stateMu.Unlock()

	e.countNav(dir)
	e.queueStepChange(index, prev, dir)
	slog.Debug("Navigation committed", "direction", dir, "index", index, "previous", prev)
	return true
}

// complete moves the machine to the terminal completed state.
// Caller holds navMu.
func (e *Engine) complete() {
	e.runCleanups()

	e.stateMu.Lock()
	e.status = models.EngineStatusCompleted
	e.generation++
	e.lastCommit = e.now()
	e.hasCommit = true
	e.autoAdvancing = false
	e.view = View{}
	e.stateMu.Unlock()

	if e.metrics != nil {
		e.metrics.SessionsCompleted.Inc()
	}
	if cb := e.cfg.Callbacks.OnComplete; cb != nil {
		snapshot := e.sessions.Session()
		e.queue(func() { cb(snapshot) })
	}
	slog.Info("Engine completed", "experienceID", e.cfg.ExperienceID)
}

// renderLoop renders the current step and keeps advancing while a renderer
// requests a synchronous advance (a processing step mounting over an
// already-complete transform). Caller holds navMu.
func (e *Engine) renderLoop() {
	for {
		e.renderCurrent()

		e.stateMu.Lock()
		pending := e.pendingAdv
		e.pendingAdv = false
		status := e.status
		e.stateMu.Unlock()

		if !pending || status != models.EngineStatusRunning {
			return
		}
		if !e.advance(models.DirectionForward) {
			return
		}
	}
}

// renderCurrent dispatches the current step to its renderer inside an
// isolation boundary. A crashing or unregistered renderer yields an inert
// error placeholder and a RENDERER_ERROR report; the run itself survives.
// Caller holds navMu.
func (e *Engine) renderCurrent() {
	e.stateMu.RLock()
	status := e.status
	e.stateMu.RUnlock()
	if status != models.EngineStatusRunning {
		return
	}

	sess := e.sessions.Session()
	step := e.cfg.StepAt(sess.CurrentStepIndex)
	if step == nil {
		e.reportLocked(models.NewEngineError(models.ErrorCodeRendererError, fmt.Sprintf("no step at index %d", sess.CurrentStepIndex), nil))
		return
	}

	e.runCleanups()
	rc := e.buildContext(step, sess)

	var view View
	var err error
	if renderer, ok := Get(step.Type); ok {
		view, err = e.safeRender(renderer, rc)
	} else {
		err = fmt.Errorf("no renderer registered for step type %q", step.Type)
	}
	if err != nil {
		e.reportLocked(models.NewStepError(models.ErrorCodeRendererError, step.ID, err.Error(), err))
		view = View{StepID: step.ID, Kind: step.Type, ErrorMessage: "This step could not be displayed"}
	}

	e.stateMu.Lock()
	e.view = view
	e.autoAdvancing = view.AutoAdvancing
	e.stateMu.Unlock()
}

// safeRender invokes the renderer with panic recovery.
func (e *Engine) safeRender(renderer Renderer, rc *Context) (view View, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Renderer panicked", "stepID", rc.Step.ID, "panic", r)
			err = fmt.Errorf("renderer panic: %v", r)
		}
		e.stateMu.Lock()
		e.rendering = false
		e.stateMu.Unlock()
	}()

	e.stateMu.Lock()
	e.rendering = true
	e.stateMu.Unlock()
	return renderer.Render(rc)
}

// buildContext binds the renderer capability closures to the current
// generation. Caller holds navMu.
func (e *Engine) buildContext(step *models.Step, sess *models.EngineSession) *Context {
	e.stateMu.RLock()
	gen := e.generation
	e.stateMu.RUnlock()

	value, hasValue := sess.Data[step.ID]
	rc := &Context{
		Step:         step,
		Session:      sess,
		CurrentValue: value,
		HasValue:     hasValue,
		Theme:        e.cfg.Theme,
		ConfirmDelay: e.confirmDelay,
	}

	rc.Advance = func() {
		e.stateMu.Lock()
		if e.rendering && gen == e.generation {
			e.pendingAdv = true
			e.stateMu.Unlock()
			return
		}
		e.stateMu.Unlock()
		e.autoAdvance(gen)
	}

	rc.ScheduleAfter = func(delay time.Duration, fn func()) {
		id := e.timer.ScheduleAfter(delay, fn)
		e.addCleanup(func() { e.timer.Cancel(id) })
	}

	rc.WatchTransform = func(handler func(models.TransformationStatus)) {
		unwatch := e.sessions.WatchTransform(func(status models.TransformationStatus) {
			e.stateMu.RLock()
			stale := gen != e.generation
			e.stateMu.RUnlock()
			if stale {
				return
			}
			handler(status)
		})
		e.addCleanup(unwatch)

		// Deliver a status change that slipped in between the render snapshot
		// and the watcher registration.
		if current := e.sessions.Session(); current != nil && current.Transform != sess.Transform {
			handler(current.Transform)
		}
	}

	rc.TriggerTransform = func() error {
		return e.triggerTransform(step, sess)
	}

	rc.UpdateView = func(view View) {
		e.stateMu.Lock()
		defer e.stateMu.Unlock()
		if gen != e.generation {
			return
		}
		e.view = view
	}

	return rc
}

// triggerTransform interpolates the step's prompt, fires the job, and records
// the pending status. Caller holds navMu (via renderCurrent).
func (e *Engine) triggerTransform(step *models.Step, sess *models.EngineSession) error {
	if e.trigger == nil {
		err := errors.New("no transformation trigger configured")
		e.reportLocked(models.NewStepError(models.ErrorCodeTransformFailed, step.ID, err.Error(), err))
		return err
	}

	// Only idle and error statuses may fire; an accepted job is never replaced.
	switch sess.Transform.Status {
	case models.TransformStatePending, models.TransformStateProcessing, models.TransformStateComplete:
		slog.Debug("Transformation trigger skipped, job already accepted", "sessionID", sess.ID, "status", sess.Transform.Status)
		return nil
	}

	prompt := Interpolate(step.Config.Prompt, sess.Data, step.Config.Variables)
	jobID, err := e.trigger(e.ctx, sess.ID, prompt, step.Config.OutputSize)
	if err != nil {
		if e.metrics != nil {
			e.metrics.TransformFailures.Inc()
		}
		e.reportLocked(models.NewStepError(models.ErrorCodeTransformFailed, step.ID, "transformation trigger rejected", err))
		return err
	}

	if e.metrics != nil {
		e.metrics.TransformTriggers.Inc()
	}
	status := models.TransformationStatus{
		Status:    models.TransformStatePending,
		JobID:     jobID,
		UpdatedAt: time.Now(),
	}
	if err := e.sessions.SetTransformStatus(e.ctx, status); err != nil {
		slog.Error("Transform pending status write failed", "error", err, "sessionID", sess.ID)
	}
	slog.Debug("Transformation triggered", "sessionID", sess.ID, "jobID", jobID, "stepID", step.ID)
	return nil
}

// reportLocked queues an OnError emission and applies the code's fatality.
// Caller holds navMu.
func (e *Engine) reportLocked(err models.EngineError) {
	slog.Error("Engine error", "code", err.Code, "stepID", err.StepID, "error", err)
	if e.metrics != nil {
		e.metrics.EngineErrors.WithLabelValues(string(err.Code)).Inc()
	}
	if err.Code.IsFatal() {
		e.setStatus(models.EngineStatusError)
	}
	if cb := e.cfg.Callbacks.OnError; cb != nil {
		e.queue(func() { cb(err) })
	}
}

func (e *Engine) queueStepChange(index, prev int, dir models.Direction) {
	cb := e.cfg.Callbacks.OnStepChange
	if cb == nil {
		return
	}
	change := models.StepChange{
		Index:         index,
		PreviousIndex: prev,
		Step:          e.cfg.StepAt(index),
		Direction:     dir,
	}
	e.queue(func() { cb(change) })
}

// queue defers a callback emission until navMu is released, so a handler can
// call back into the engine without deadlocking. Caller holds navMu.
func (e *Engine) queue(fn func()) {
	e.emissions = append(e.emissions, fn)
}

// finish releases navMu and flushes queued callback emissions. Handler
// panics are swallowed at the call site, never propagated into the engine.
func (e *Engine) finish() {
	emissions := e.emissions
	e.emissions = nil
	e.navMu.Unlock()

	for _, fn := range emissions {
		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("Lifecycle callback panicked", "panic", r)
				}
			}()
			fn()
		}()
	}
}

func (e *Engine) addCleanup(fn func()) {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	e.cleanups = append(e.cleanups, fn)
}

// runCleanups invalidates the previous step's timers and watchers.
func (e *Engine) runCleanups() {
	e.stateMu.Lock()
	cleanups := e.cleanups
	e.cleanups = nil
	e.stateMu.Unlock()

	for _, fn := range cleanups {
		fn()
	}
}

func (e *Engine) setStatus(status models.EngineStatus) {
	e.stateMu.Lock()
	e.status = status
	e.stateMu.Unlock()
}

func (e *Engine) currentIndex() int {
	if sess := e.sessions.Session(); sess != nil {
		return sess.CurrentStepIndex
	}
	return 0
}

func (e *Engine) countNav(dir models.Direction) {
	if e.metrics != nil {
		e.metrics.NavTransitions.WithLabelValues(string(dir)).Inc()
	}
}
