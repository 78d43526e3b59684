package store

import (
	"sync"
	"time"

	"github.com/boothlabs/boothflow/internal/models"
	"github.com/boothlabs/boothflow/internal/util"
)

// InMemoryStore is a non-durable Store, JobRepo, and OutboxRepo used by
// editor previews and tests.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]models.EngineSession
	jobs     map[string]Job
	outbox   map[string]OutboxMessage
}

// Compile-time interface checks.
var (
	_ Store      = (*InMemoryStore)(nil)
	_ JobRepo    = (*InMemoryStore)(nil)
	_ OutboxRepo = (*InMemoryStore)(nil)
)

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[string]models.EngineSession),
		jobs:     make(map[string]Job),
		outbox:   make(map[string]OutboxMessage),
	}
}

// CreateSession inserts a new session document.
func (s *InMemoryStore) CreateSession(session models.EngineSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = *session.Clone()
	return nil
}

// GetSession retrieves a session document by id.
func (s *InMemoryStore) GetSession(id string) (*models.EngineSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session.Clone(), nil
}

// UpdateSession writes the locally-owned fields of the session document.
func (s *InMemoryStore) UpdateSession(session models.EngineSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.sessions[session.ID]
	if !ok {
		return ErrSessionNotFound
	}
	updated := *session.Clone()
	updated.Transform = existing.Transform
	updated.UpdatedAt = time.Now()
	s.sessions[session.ID] = updated
	return nil
}

// UpdateTransformStatus writes the externally-owned transform status.
func (s *InMemoryStore) UpdateTransformStatus(id string, status models.TransformationStatus) (*models.EngineSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	session.Transform = status
	session.UpdatedAt = time.Now()
	s.sessions[id] = session
	return session.Clone(), nil
}

// DeleteSession removes a session document.
func (s *InMemoryStore) DeleteSession(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}

// EnqueueJob inserts a new job, honoring dedupe keys on non-terminal jobs.
func (s *InMemoryStore) EnqueueJob(kind string, runAt time.Time, payloadJSON string, dedupeKey string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if dedupeKey != "" {
		// Only a live job blocks re-enqueue. Terminal jobs (done, canceled,
		// failed) are superseded so a permanently failed transform can be retried.
		for _, j := range s.jobs {
			if j.DedupeKey == dedupeKey && j.Status != JobStatusDone &&
				j.Status != JobStatusCanceled && j.Status != JobStatusFailed {
				return j.ID, nil
			}
		}
	}
	now := time.Now()
	job := Job{
		ID:          util.NewJobID(),
		Kind:        kind,
		RunAt:       runAt,
		PayloadJSON: payloadJSON,
		Status:      JobStatusQueued,
		MaxAttempts: DefaultJobMaxAttempts,
		DedupeKey:   dedupeKey,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.jobs[job.ID] = job
	return job.ID, nil
}

// ClaimDueJobs marks due queued jobs as running and returns them.
func (s *InMemoryStore) ClaimDueJobs(now time.Time, limit int) ([]Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var claimed []Job
	for id, j := range s.jobs {
		if len(claimed) >= limit {
			break
		}
		if j.Status == JobStatusQueued && !j.RunAt.After(now) {
			j.Status = JobStatusRunning
			lockedAt := now
			j.LockedAt = &lockedAt
			j.UpdatedAt = now
			s.jobs[id] = j
			claimed = append(claimed, j)
		}
	}
	return claimed, nil
}

// CompleteJob marks a job as done.
func (s *InMemoryStore) CompleteJob(id string) error {
	return s.setJobStatus(id, JobStatusDone, "")
}

// FailJob records a failure and reschedules or permanently fails the job.
func (s *InMemoryStore) FailJob(id string, errMsg string, nextRunAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil
	}
	j.Attempt++
	j.LastError = errMsg
	j.LockedAt = nil
	j.UpdatedAt = time.Now()
	if j.Attempt < j.MaxAttempts {
		j.Status = JobStatusQueued
		j.RunAt = nextRunAt
	} else {
		j.Status = JobStatusFailed
	}
	s.jobs[id] = j
	return nil
}

// CancelJob marks a job as canceled.
func (s *InMemoryStore) CancelJob(id string) error {
	return s.setJobStatus(id, JobStatusCanceled, "")
}

// RequeueStaleRunningJobs resets jobs stuck in running back to queued.
func (s *InMemoryStore) RequeueStaleRunningJobs(staleBefore time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for id, j := range s.jobs {
		if j.Status == JobStatusRunning && j.LockedAt != nil && j.LockedAt.Before(staleBefore) {
			j.Status = JobStatusQueued
			j.LockedAt = nil
			j.UpdatedAt = time.Now()
			s.jobs[id] = j
			count++
		}
	}
	return count, nil
}

// GetJob retrieves a single job by id.
func (s *InMemoryStore) GetJob(id string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, nil
	}
	out := j
	return &out, nil
}

func (s *InMemoryStore) setJobStatus(id string, status JobStatus, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil
	}
	j.Status = status
	if errMsg != "" {
		j.LastError = errMsg
	}
	j.UpdatedAt = time.Now()
	s.jobs[id] = j
	return nil
}

// EnqueueOutboxMessage inserts a new outbox message, honoring dedupe keys.
func (s *InMemoryStore) EnqueueOutboxMessage(sessionID, kind, payloadJSON, dedupeKey string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if dedupeKey != "" {
		for _, m := range s.outbox {
			if m.DedupeKey == dedupeKey && m.Status != OutboxStatusSent && m.Status != OutboxStatusCanceled {
				return m.ID, nil
			}
		}
	}
	now := time.Now()
	msg := OutboxMessage{
		ID:          util.NewMessageID(),
		SessionID:   sessionID,
		Kind:        kind,
		PayloadJSON: payloadJSON,
		Status:      OutboxStatusQueued,
		DedupeKey:   dedupeKey,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.outbox[msg.ID] = msg
	return msg.ID, nil
}

// ClaimDueOutboxMessages marks due queued messages as sending and returns them.
func (s *InMemoryStore) ClaimDueOutboxMessages(now time.Time, limit int) ([]OutboxMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var claimed []OutboxMessage
	for id, m := range s.outbox {
		if len(claimed) >= limit {
			break
		}
		due := m.NextAttemptAt == nil || !m.NextAttemptAt.After(now)
		if m.Status == OutboxStatusQueued && due {
			m.Status = OutboxStatusSending
			lockedAt := now
			m.LockedAt = &lockedAt
			m.UpdatedAt = now
			s.outbox[id] = m
			claimed = append(claimed, m)
		}
	}
	return claimed, nil
}

// MarkOutboxMessageSent marks a message as successfully sent.
func (s *InMemoryStore) MarkOutboxMessageSent(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.outbox[id]
	if !ok {
		return nil
	}
	m.Status = OutboxStatusSent
	m.LockedAt = nil
	m.UpdatedAt = time.Now()
	s.outbox[id] = m
	return nil
}

// FailOutboxMessage records a send failure and schedules a retry.
func (s *InMemoryStore) FailOutboxMessage(id string, errMsg string, nextAttemptAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.outbox[id]
	if !ok {
		return nil
	}
	m.Attempts++
	m.LastError = errMsg
	m.Status = OutboxStatusQueued
	m.NextAttemptAt = &nextAttemptAt
	m.LockedAt = nil
	m.UpdatedAt = time.Now()
	s.outbox[id] = m
	return nil
}

// RequeueStaleSendingMessages resets messages stuck in sending back to queued.
func (s *InMemoryStore) RequeueStaleSendingMessages(staleBefore time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for id, m := range s.outbox {
		if m.Status == OutboxStatusSending && m.LockedAt != nil && m.LockedAt.Before(staleBefore) {
			m.Status = OutboxStatusQueued
			m.LockedAt = nil
			m.UpdatedAt = time.Now()
			s.outbox[id] = m
			count++
		}
	}
	return count, nil
}
