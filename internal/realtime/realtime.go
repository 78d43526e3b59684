// Package realtime provides the session update bus used by persisted-mode
// runs: the transform worker publishes the updated session document and every
// subscribed engine instance receives it push-style, without polling.
package realtime

import (
	"context"

	"github.com/boothlabs/boothflow/internal/models"
)

// Handler receives the full current session document on every change.
type Handler func(session *models.EngineSession)

// Bus is the publish/subscribe primitive over session documents.
type Bus interface {
	// Publish broadcasts the full session document to all subscribers of its id.
	Publish(ctx context.Context, session *models.EngineSession) error

	// Subscribe registers a handler for updates to the given session id and
	// returns an unsubscribe function. Handlers are invoked from the bus's
	// delivery goroutine; they must not block indefinitely.
	Subscribe(ctx context.Context, sessionID string, handler Handler) (func(), error)

	// Close releases the bus's resources.
	Close() error
}
