package engine

import (
	"log/slog"

	"github.com/boothlabs/boothflow/internal/models"
)

func baseView(step *models.Step) View {
	return View{
		StepID:      step.ID,
		Kind:        step.Type,
		Title:       step.Config.Title,
		Body:        step.Config.Body,
		Placeholder: step.Config.Placeholder,
	}
}

// infoRenderer shows a static screen; the guest advances explicitly.
type infoRenderer struct{}

func (r *infoRenderer) Render(rc *Context) (View, error) {
	return baseView(rc.Step), nil
}

// captureRenderer collects a photo and advances the moment one is submitted.
type captureRenderer struct{}

func (r *captureRenderer) Render(rc *Context) (View, error) {
	view := baseView(rc.Step)
	view.AdvanceOnInput = true
	return view, nil
}

// textRenderer covers short_text, long_text, and email collection.
type textRenderer struct{}

func (r *textRenderer) Render(rc *Context) (View, error) {
	return baseView(rc.Step), nil
}

// multipleChoiceRenderer presents the authored options.
type multipleChoiceRenderer struct{}

func (r *multipleChoiceRenderer) Render(rc *Context) (View, error) {
	view := baseView(rc.Step)
	view.Options = rc.Step.Config.Options
	view.MultiSelect = rc.Step.Config.MultiSelect
	return view, nil
}

// yesNoRenderer collects a boolean answer and advances on submission.
type yesNoRenderer struct{}

func (r *yesNoRenderer) Render(rc *Context) (View, error) {
	view := baseView(rc.Step)
	view.AdvanceOnInput = true
	return view, nil
}

// opinionScaleRenderer collects a numeric rating on a bounded scale.
type opinionScaleRenderer struct{}

func (r *opinionScaleRenderer) Render(rc *Context) (View, error) {
	view := baseView(rc.Step)
	view.ScaleMin = rc.Step.Config.ScaleMin
	view.ScaleMax = rc.Step.Config.ScaleMax
	return view, nil
}

// aiTransformRenderer fires the transformation job and advances after a short
// confirmation delay without waiting for the job. A failed trigger shows an
// inline retry state and holds position.
type aiTransformRenderer struct{}

func (r *aiTransformRenderer) Render(rc *Context) (View, error) {
	view := baseView(rc.Step)

	// A job already accepted for this session is never re-triggered; a
	// revisited or resumed step confirms and advances as if it had just fired.
	switch rc.Session.Transform.Status {
	case models.TransformStatePending, models.TransformStateProcessing, models.TransformStateComplete:
		view.AutoAdvancing = true
		rc.ScheduleAfter(rc.ConfirmDelay, rc.Advance)
		return view, nil
	}

	if err := rc.TriggerTransform(); err != nil {
		slog.Error("aiTransformRenderer trigger failed", "error", err, "stepID", rc.Step.ID)
		view.ErrorMessage = "Transformation could not be started"
		view.CanRetry = true
		return view, nil
	}

	view.AutoAdvancing = true
	rc.ScheduleAfter(rc.ConfirmDelay, rc.Advance)
	return view, nil
}

// processingRenderer waits for the job to finish. An already-complete status
// advances immediately with no loading view; an error status is shown and
// never silently advanced past.
type processingRenderer struct{}

func (r *processingRenderer) Render(rc *Context) (View, error) {
	view := baseView(rc.Step)

	switch rc.Session.Transform.Status {
	case models.TransformStateComplete:
		rc.Advance()
		return view, nil
	case models.TransformStateError:
		view.ErrorMessage = rc.Session.Transform.ErrorMessage
		view.CanRetry = true
		return view, nil
	}

	view.Messages = rc.Step.Config.Messages
	view.Loading = true
	view.AutoAdvancing = true
	rc.WatchTransform(func(status models.TransformationStatus) {
		switch status.Status {
		case models.TransformStateComplete:
			rc.Advance()
		case models.TransformStateError:
			errView := baseView(rc.Step)
			errView.ErrorMessage = status.ErrorMessage
			errView.CanRetry = true
			rc.UpdateView(errView)
		}
	})
	return view, nil
}

// rewardRenderer presents the result. If the guest arrives ahead of the job
// it renders a skeleton and upgrades in place when the status completes, with
// no navigation event.
type rewardRenderer struct{}

func (r *rewardRenderer) Render(rc *Context) (View, error) {
	view := baseView(rc.Step)

	if rc.Session.Transform.Status == models.TransformStateComplete {
		view.ResultURL = rc.Session.Transform.ResultURL
		return view, nil
	}

	view.Loading = true
	rc.WatchTransform(func(status models.TransformationStatus) {
		if status.Status != models.TransformStateComplete {
			return
		}
		upgraded := baseView(rc.Step)
		upgraded.ResultURL = status.ResultURL
		rc.UpdateView(upgraded)
	})
	return view, nil
}
