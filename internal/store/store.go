// Package store provides storage backends for Boothflow.
//
// It implements the session document store behind the persisted engine mode,
// the durable transformation job queue, and the result-delivery outbox, each
// with in-memory, SQLite, and PostgreSQL backends.
package store

import (
	"errors"
	"strings"

	"github.com/boothlabs/boothflow/internal/models"
)

// ErrSessionNotFound indicates a session id that does not resolve to a document.
var ErrSessionNotFound = errors.New("session not found")

// Store is the abstract session document store. Create returns the document
// with its id populated, update is idempotent on retry, and reads always
// return the full current document.
type Store interface {
	// CreateSession inserts a new session document.
	CreateSession(session models.EngineSession) error

	// GetSession retrieves a session document by id. Returns
	// ErrSessionNotFound if the id does not resolve.
	GetSession(id string) (*models.EngineSession, error)

	// UpdateSession writes the locally-owned fields (step index, data) of the
	// session document. The stored transform status is left untouched so a
	// concurrent worker write is never regressed.
	UpdateSession(session models.EngineSession) error

	// UpdateTransformStatus writes the externally-owned transform status and
	// returns the full updated document for realtime publication.
	UpdateTransformStatus(id string, status models.TransformationStatus) (*models.EngineSession, error)

	// DeleteSession removes a session document.
	DeleteSession(id string) error

	// Close releases the backend's resources.
	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithDSN sets the database connection string.
func WithDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// DetectDSNType classifies a DSN as "postgres" or "sqlite" based on its shape.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") ||
		strings.Contains(dsn, "host=") || strings.Contains(dsn, "dbname=") {
		return "postgres"
	}
	return "sqlite"
}
