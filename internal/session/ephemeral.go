package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/boothlabs/boothflow/internal/models"
	"github.com/boothlabs/boothflow/internal/util"
)

// EphemeralStore holds the session purely in memory. Init always creates a
// fresh session and no external I/O ever occurs.
type EphemeralStore struct {
	cfg      Config
	mu       sync.RWMutex
	session  *models.EngineSession
	watchers map[int]func(models.TransformationStatus)
	nextID   int
}

var _ Store = (*EphemeralStore)(nil)

// NewEphemeral creates an ephemeral session store.
func NewEphemeral(cfg Config) *EphemeralStore {
	slog.Debug("Creating EphemeralStore", "experienceID", cfg.ExperienceID)
	return &EphemeralStore{
		cfg:      cfg,
		watchers: make(map[int]func(models.TransformationStatus)),
	}
}

// Init creates a fresh in-memory session.
func (s *EphemeralStore) Init(ctx context.Context) (*models.EngineSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.session = &models.EngineSession{
		ID:           util.NewSessionID(),
		ExperienceID: s.cfg.ExperienceID,
		Data:         make(models.SessionData),
		Transform:    models.TransformationStatus{Status: models.TransformStateIdle},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	slog.Debug("EphemeralStore.Init created session", "sessionID", s.session.ID)
	return s.session.Clone(), nil
}

// Session returns a snapshot of the current session.
func (s *EphemeralStore) Session() *models.EngineSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.Clone()
}

// SetStepInput records a collected input for a step.
func (s *EphemeralStore) SetStepInput(ctx context.Context, stepID string, value models.StepInput) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session.Data[stepID] = value
	s.session.UpdatedAt = time.Now()
	return nil
}

// SetStepIndex commits a navigation position.
func (s *EphemeralStore) SetStepIndex(ctx context.Context, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session.CurrentStepIndex = index
	s.session.UpdatedAt = time.Now()
	return nil
}

// SetTransformStatus records a transformation status and notifies watchers.
func (s *EphemeralStore) SetTransformStatus(ctx context.Context, status models.TransformationStatus) error {
	s.mu.Lock()
	s.session.Transform = status
	s.session.UpdatedAt = time.Now()
	watchers := s.snapshotWatchersLocked()
	s.mu.Unlock()

	for _, w := range watchers {
		w(status)
	}
	return nil
}

// Reset clears collected data and returns to index 0.
func (s *EphemeralStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session.CurrentStepIndex = 0
	s.session.Data = make(models.SessionData)
	s.session.Transform = models.TransformationStatus{Status: models.TransformStateIdle}
	s.session.UpdatedAt = time.Now()
	return nil
}

// WatchTransform registers a transform status handler.
func (s *EphemeralStore) WatchTransform(handler func(models.TransformationStatus)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.watchers[id] = handler
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.watchers, id)
	}
}

// Dispose releases references. No subscriptions exist in ephemeral mode.
func (s *EphemeralStore) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watchers = make(map[int]func(models.TransformationStatus))
}

func (s *EphemeralStore) snapshotWatchersLocked() []func(models.TransformationStatus) {
	out := make([]func(models.TransformationStatus), 0, len(s.watchers))
	for _, w := range s.watchers {
		out = append(out, w)
	}
	return out
}
