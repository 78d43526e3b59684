package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/boothlabs/boothflow/internal/models"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// marshalData serializes the session data column.
func marshalData(data models.SessionData) ([]byte, error) {
	out, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal session data failed: %w", err)
	}
	return out, nil
}

// marshalTransform serializes the transform status column.
func marshalTransform(status models.TransformationStatus) ([]byte, error) {
	out, err := json.Marshal(status)
	if err != nil {
		return nil, fmt.Errorf("marshal transform status failed: %w", err)
	}
	return out, nil
}

// marshalSessionColumns serializes the JSON-typed session columns.
func marshalSessionColumns(session *models.EngineSession) (dataJSON, transformJSON []byte, err error) {
	dataJSON, err = json.Marshal(session.Data)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal session data failed: %w", err)
	}
	transformJSON, err = json.Marshal(session.Transform)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal transform status failed: %w", err)
	}
	return dataJSON, transformJSON, nil
}

// sessionRowScanner abstracts *sql.Row and *sql.Rows.
type sessionRowScanner interface {
	Scan(dest ...interface{}) error
}

// scanSession scans an EngineSession from a row with the canonical column order.
func scanSession(row sessionRowScanner) (*models.EngineSession, error) {
	var s models.EngineSession
	var eventID, projectID, companyID, dataJSON, transformJSON sql.NullString
	err := row.Scan(
		&s.ID, &s.ExperienceID, &eventID, &projectID, &companyID,
		&s.CurrentStepIndex, &dataJSON, &transformJSON, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.EventID = eventID.String
	s.ProjectID = projectID.String
	s.CompanyID = companyID.String
	s.Data = make(models.SessionData)
	if dataJSON.Valid && dataJSON.String != "" {
		if err := json.Unmarshal([]byte(dataJSON.String), &s.Data); err != nil {
			return nil, fmt.Errorf("unmarshal session data failed: %w", err)
		}
	}
	if transformJSON.Valid && transformJSON.String != "" {
		if err := json.Unmarshal([]byte(transformJSON.String), &s.Transform); err != nil {
			return nil, fmt.Errorf("unmarshal transform status failed: %w", err)
		}
	}
	return &s, nil
}

// scanJob scans a Job from sql.Rows.
func scanJob(rows *sql.Rows) (Job, error) {
	var j Job
	var payloadJSON, lastError, dedupeKey sql.NullString
	var lockedAt sql.NullTime
	err := rows.Scan(
		&j.ID, &j.Kind, &j.RunAt, &payloadJSON, &j.Status, &j.Attempt, &j.MaxAttempts,
		&lastError, &lockedAt, &dedupeKey, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return j, fmt.Errorf("scan job failed: %w", err)
	}
	j.PayloadJSON = payloadJSON.String
	j.LastError = lastError.String
	j.DedupeKey = dedupeKey.String
	if lockedAt.Valid {
		j.LockedAt = &lockedAt.Time
	}
	return j, nil
}

// scanJobRow scans a Job from a single sql.Row.
func scanJobRow(row *sql.Row) (Job, error) {
	var j Job
	var payloadJSON, lastError, dedupeKey sql.NullString
	var lockedAt sql.NullTime
	err := row.Scan(
		&j.ID, &j.Kind, &j.RunAt, &payloadJSON, &j.Status, &j.Attempt, &j.MaxAttempts,
		&lastError, &lockedAt, &dedupeKey, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return j, err
	}
	j.PayloadJSON = payloadJSON.String
	j.LastError = lastError.String
	j.DedupeKey = dedupeKey.String
	if lockedAt.Valid {
		j.LockedAt = &lockedAt.Time
	}
	return j, nil
}

// scanOutboxMessage scans an OutboxMessage from sql.Rows.
func scanOutboxMessage(rows *sql.Rows) (OutboxMessage, error) {
	var m OutboxMessage
	var payloadJSON, lastError, dedupeKey sql.NullString
	var nextAttemptAt, lockedAt sql.NullTime
	err := rows.Scan(
		&m.ID, &m.SessionID, &m.Kind, &payloadJSON, &m.Status, &m.Attempts,
		&nextAttemptAt, &dedupeKey, &lockedAt, &lastError, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return m, fmt.Errorf("scan outbox message failed: %w", err)
	}
	m.PayloadJSON = payloadJSON.String
	m.LastError = lastError.String
	m.DedupeKey = dedupeKey.String
	if nextAttemptAt.Valid {
		m.NextAttemptAt = &nextAttemptAt.Time
	}
	if lockedAt.Valid {
		m.LockedAt = &lockedAt.Time
	}
	return m, nil
}
