// Package store provides storage backends for Boothflow.
//
// This file implements a PostgreSQL-backed store for sessions, jobs, and
// outbox messages.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/boothlabs/boothflow/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// Compile-time interface checks.
var (
	_ Store      = (*PostgresStore)(nil)
	_ JobRepo    = (*PostgresStore)(nil)
	_ OutboxRepo = (*PostgresStore)(nil)
)

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	// Apply options
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")
	// Determine DSN (required)
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	slog.Debug("Opening Postgres database connection")
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}
	slog.Debug("Postgres database opened")

	// Configure connection pool for better performance
	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}
	slog.Debug("Postgres ping successful")
	// Run migrations to ensure tables exist
	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

// CreateSession inserts a new session document.
func (s *PostgresStore) CreateSession(session models.EngineSession) error {
	dataJSON, transformJSON, err := marshalSessionColumns(&session)
	if err != nil {
		slog.Error("PostgresStore CreateSession marshal failed", "error", err, "id", session.ID)
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO sessions (id, experience_id, event_id, project_id, company_id, current_step_index, data, transform, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		session.ID, session.ExperienceID, nilIfEmpty(session.EventID), nilIfEmpty(session.ProjectID),
		nilIfEmpty(session.CompanyID), session.CurrentStepIndex, string(dataJSON), string(transformJSON),
		session.CreatedAt, session.UpdatedAt,
	)
	if err != nil {
		slog.Error("PostgresStore CreateSession failed", "error", err, "id", session.ID)
		return fmt.Errorf("failed to insert session %s: %w", session.ID, err)
	}
	slog.Debug("PostgresStore CreateSession succeeded", "id", session.ID, "experienceID", session.ExperienceID)
	return nil
}

// GetSession retrieves a session document by id.
func (s *PostgresStore) GetSession(id string) (*models.EngineSession, error) {
	row := s.db.QueryRow(
		`SELECT id, experience_id, event_id, project_id, company_id, current_step_index, data, transform, created_at, updated_at
		 FROM sessions WHERE id = $1`, id,
	)
	session, err := scanSession(row)
	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore GetSession not found", "id", id)
		return nil, ErrSessionNotFound
	}
	if err != nil {
		slog.Error("PostgresStore GetSession failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}
	slog.Debug("PostgresStore GetSession succeeded", "id", id, "stepIndex", session.CurrentStepIndex)
	return session, nil
}

// UpdateSession writes the locally-owned fields of the session document,
// leaving the stored transform status untouched.
func (s *PostgresStore) UpdateSession(session models.EngineSession) error {
	dataJSON, err := marshalData(session.Data)
	if err != nil {
		slog.Error("PostgresStore UpdateSession marshal failed", "error", err, "id", session.ID)
		return err
	}
	res, err := s.db.Exec(
		`UPDATE sessions SET current_step_index = $1, data = $2, updated_at = $3 WHERE id = $4`,
		session.CurrentStepIndex, string(dataJSON), session.UpdatedAt, session.ID,
	)
	if err != nil {
		slog.Error("PostgresStore UpdateSession failed", "error", err, "id", session.ID)
		return fmt.Errorf("failed to update session %s: %w", session.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSessionNotFound
	}
	slog.Debug("PostgresStore UpdateSession succeeded", "id", session.ID, "stepIndex", session.CurrentStepIndex)
	return nil
}

// UpdateTransformStatus writes the externally-owned transform status and
// returns the full updated document.
func (s *PostgresStore) UpdateTransformStatus(id string, status models.TransformationStatus) (*models.EngineSession, error) {
	transformJSON, err := marshalTransform(status)
	if err != nil {
		slog.Error("PostgresStore UpdateTransformStatus marshal failed", "error", err, "id", id)
		return nil, err
	}
	res, err := s.db.Exec(
		`UPDATE sessions SET transform = $1, updated_at = $2 WHERE id = $3`,
		string(transformJSON), status.UpdatedAt, id,
	)
	if err != nil {
		slog.Error("PostgresStore UpdateTransformStatus failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to update transform status for %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrSessionNotFound
	}
	slog.Debug("PostgresStore UpdateTransformStatus succeeded", "id", id, "status", status.Status)
	return s.GetSession(id)
}

// DeleteSession removes a session document.
func (s *PostgresStore) DeleteSession(id string) error {
	_, err := s.db.Exec(`DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		slog.Error("PostgresStore DeleteSession failed", "error", err, "id", id)
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	slog.Debug("PostgresStore DeleteSession succeeded", "id", id)
	return nil
}

// Close closes the PostgreSQL database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing PostgreSQL database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close PostgreSQL database", "error", err)
	} else {
		slog.Debug("PostgreSQL database connection closed successfully")
	}
	return err
}
