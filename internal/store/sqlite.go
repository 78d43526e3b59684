// Package store provides storage backends for Boothflow.
//
// This file implements an SQLite-backed store for sessions, jobs, and outbox
// messages.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "embed"

	"github.com/boothlabs/boothflow/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// Compile-time interface checks.
var (
	_ Store      = (*SQLiteStore)(nil)
	_ JobRepo    = (*SQLiteStore)(nil)
	_ OutboxRepo = (*SQLiteStore)(nil)
)

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	// Apply options
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	// Determine DSN (required)
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	// Ensure the directory exists
	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	slog.Debug("SQLite database directory verified/created", "dir", dir)

	slog.Debug("Opening SQLite database connection")
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	slog.Debug("SQLite database opened")

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}
	slog.Debug("SQLite ping successful")

	// Run migrations to ensure tables exist
	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

// CreateSession inserts a new session document.
func (s *SQLiteStore) CreateSession(session models.EngineSession) error {
	dataJSON, transformJSON, err := marshalSessionColumns(&session)
	if err != nil {
		slog.Error("SQLiteStore CreateSession marshal failed", "error", err, "id", session.ID)
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO sessions (id, experience_id, event_id, project_id, company_id, current_step_index, data, transform, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID, session.ExperienceID, nilIfEmpty(session.EventID), nilIfEmpty(session.ProjectID),
		nilIfEmpty(session.CompanyID), session.CurrentStepIndex, string(dataJSON), string(transformJSON),
		session.CreatedAt, session.UpdatedAt,
	)
	if err != nil {
		slog.Error("SQLiteStore CreateSession failed", "error", err, "id", session.ID)
		return fmt.Errorf("failed to insert session %s: %w", session.ID, err)
	}
	slog.Debug("SQLiteStore CreateSession succeeded", "id", session.ID, "experienceID", session.ExperienceID)
	return nil
}

// GetSession retrieves a session document by id.
func (s *SQLiteStore) GetSession(id string) (*models.EngineSession, error) {
	row := s.db.QueryRow(
		`SELECT id, experience_id, event_id, project_id, company_id, current_step_index, data, transform, created_at, updated_at
		 FROM sessions WHERE id = ?`, id,
	)
	session, err := scanSession(row)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore GetSession not found", "id", id)
		return nil, ErrSessionNotFound
	}
	if err != nil {
		slog.Error("SQLiteStore GetSession failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}
	slog.Debug("SQLiteStore GetSession succeeded", "id", id, "stepIndex", session.CurrentStepIndex)
	return session, nil
}

// UpdateSession writes the locally-owned fields of the session document,
// leaving the stored transform status untouched.
func (s *SQLiteStore) UpdateSession(session models.EngineSession) error {
	dataJSON, err := marshalData(session.Data)
	if err != nil {
		slog.Error("SQLiteStore UpdateSession marshal failed", "error", err, "id", session.ID)
		return err
	}
	res, err := s.db.Exec(
		`UPDATE sessions SET current_step_index = ?, data = ?, updated_at = ? WHERE id = ?`,
		session.CurrentStepIndex, string(dataJSON), session.UpdatedAt, session.ID,
	)
	if err != nil {
		slog.Error("SQLiteStore UpdateSession failed", "error", err, "id", session.ID)
		return fmt.Errorf("failed to update session %s: %w", session.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSessionNotFound
	}
	slog.Debug("SQLiteStore UpdateSession succeeded", "id", session.ID, "stepIndex", session.CurrentStepIndex)
	return nil
}

// UpdateTransformStatus writes the externally-owned transform status and
// returns the full updated document.
func (s *SQLiteStore) UpdateTransformStatus(id string, status models.TransformationStatus) (*models.EngineSession, error) {
	transformJSON, err := marshalTransform(status)
	if err != nil {
		slog.Error("SQLiteStore UpdateTransformStatus marshal failed", "error", err, "id", id)
		return nil, err
	}
	res, err := s.db.Exec(
		`UPDATE sessions SET transform = ?, updated_at = ? WHERE id = ?`,
		string(transformJSON), status.UpdatedAt, id,
	)
	if err != nil {
		slog.Error("SQLiteStore UpdateTransformStatus failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to update transform status for %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrSessionNotFound
	}
	slog.Debug("SQLiteStore UpdateTransformStatus succeeded", "id", id, "status", status.Status)
	return s.GetSession(id)
}

// DeleteSession removes a session document.
func (s *SQLiteStore) DeleteSession(id string) error {
	_, err := s.db.Exec(`DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		slog.Error("SQLiteStore DeleteSession failed", "error", err, "id", id)
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	slog.Debug("SQLiteStore DeleteSession succeeded", "id", id)
	return nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close SQLite database", "error", err)
	} else {
		slog.Debug("SQLite database connection closed successfully")
	}
	return err
}
