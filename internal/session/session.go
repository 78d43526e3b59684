// Package session implements the engine's session store: the single owner of
// the per-run EngineSession record.
//
// Two interchangeable implementations exist behind one interface: an
// ephemeral store holding everything in process memory (editor preview), and
// a persisted store writing through to the document store with a realtime
// subscription for externally-originated updates (live guest run).
package session

import (
	"context"
	"errors"

	"github.com/boothlabs/boothflow/internal/models"
)

// ErrSessionLoadFailed indicates a resume target was missing or corrupt.
// Fatal for the run.
var ErrSessionLoadFailed = errors.New("session load failed")

// Store owns the EngineSession. All mutations flow through it; every other
// component holds read snapshots only.
//
// In both modes Session() reflects the most recent committed mutation
// synchronously for the caller that made it.
type Store interface {
	// Init resolves the session: resumes an existing one or creates a fresh one.
	Init(ctx context.Context) (*models.EngineSession, error)

	// Session returns a snapshot of the current session.
	Session() *models.EngineSession

	// SetStepInput records a collected input for a step. Last-write-wins per
	// step id.
	SetStepInput(ctx context.Context, stepID string, value models.StepInput) error

	// SetStepIndex commits a navigation position.
	SetStepIndex(ctx context.Context, index int) error

	// SetTransformStatus records a transformation status written by this
	// engine instance (the trigger's pending write).
	SetTransformStatus(ctx context.Context, status models.TransformationStatus) error

	// Reset returns the session to index 0 with empty data and an idle
	// transform status, in place.
	Reset(ctx context.Context) error

	// WatchTransform registers a handler invoked whenever the transform
	// status changes, locally or via the realtime subscription. Returns an
	// unsubscribe function.
	WatchTransform(handler func(status models.TransformationStatus)) func()

	// Dispose releases subscriptions and timers. The externally triggered job
	// is deliberately not cancelled; it remains resumable via the session id.
	Dispose()
}

// Config carries the identity fields for session resolution.
type Config struct {
	ExperienceID      string
	ExistingSessionID string
	ProjectID         string
	EventID           string
	CompanyID         string
}
