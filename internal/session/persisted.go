package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/boothlabs/boothflow/internal/models"
	"github.com/boothlabs/boothflow/internal/realtime"
	"github.com/boothlabs/boothflow/internal/store"
	"github.com/boothlabs/boothflow/internal/util"
)

// SyncErrorHandler receives write-through failures. Local state is always
// retained; the failure is advisory.
type SyncErrorHandler func(err error)

// PersistedStore writes the session through to the document store and keeps a
// realtime subscription open so externally-originated updates (the worker's
// transform status writes) propagate into the local session.
//
// Reconciliation rule: this engine instance is the sole writer of the step
// index and collected data, so the subscription only ever adopts the
// externally-owned transform status, and only when it is newer than the local
// one. An echo of our own write can therefore never regress state.
type PersistedStore struct {
	cfg   Config
	docs  store.Store
	bus   realtime.Bus
	onErr SyncErrorHandler

	mu          sync.RWMutex
	session     *models.EngineSession
	watchers    map[int]func(models.TransformationStatus)
	nextID      int
	unsubscribe func()
}

var _ Store = (*PersistedStore)(nil)

// NewPersisted creates a persisted session store. onErr may be nil.
func NewPersisted(cfg Config, docs store.Store, bus realtime.Bus, onErr SyncErrorHandler) *PersistedStore {
	slog.Debug("Creating PersistedStore", "experienceID", cfg.ExperienceID, "resume", cfg.ExistingSessionID != "")
	if onErr == nil {
		onErr = func(err error) {}
	}
	return &PersistedStore{
		cfg:      cfg,
		docs:     docs,
		bus:      bus,
		onErr:    onErr,
		watchers: make(map[int]func(models.TransformationStatus)),
	}
}

// Init loads the resume target or creates a new document, then opens the
// realtime subscription.
func (s *PersistedStore) Init(ctx context.Context) (*models.EngineSession, error) {
	var sess *models.EngineSession

	if s.cfg.ExistingSessionID != "" {
		loaded, err := s.docs.GetSession(s.cfg.ExistingSessionID)
		if err != nil {
			slog.Error("PersistedStore.Init load failed", "error", err, "sessionID", s.cfg.ExistingSessionID)
			return nil, fmt.Errorf("%w: %s: %v", ErrSessionLoadFailed, s.cfg.ExistingSessionID, err)
		}
		sess = loaded
		slog.Debug("PersistedStore.Init resumed session", "sessionID", sess.ID, "stepIndex", sess.CurrentStepIndex)
	} else {
		now := time.Now()
		sess = &models.EngineSession{
			ID:           util.NewSessionID(),
			ExperienceID: s.cfg.ExperienceID,
			ProjectID:    s.cfg.ProjectID,
			EventID:      s.cfg.EventID,
			CompanyID:    s.cfg.CompanyID,
			Data:         make(models.SessionData),
			Transform:    models.TransformationStatus{Status: models.TransformStateIdle},
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := s.docs.CreateSession(*sess); err != nil {
			slog.Error("PersistedStore.Init create failed", "error", err)
			return nil, fmt.Errorf("failed to create session document: %w", err)
		}
		slog.Debug("PersistedStore.Init created session", "sessionID", sess.ID)
	}

	s.mu.Lock()
	s.session = sess
	s.mu.Unlock()

	unsubscribe, err := s.bus.Subscribe(ctx, sess.ID, s.onRemoteUpdate)
	if err != nil {
		slog.Error("PersistedStore.Init subscribe failed", "error", err, "sessionID", sess.ID)
		return nil, fmt.Errorf("failed to open session subscription: %w", err)
	}
	s.mu.Lock()
	s.unsubscribe = unsubscribe
	s.mu.Unlock()

	return sess.Clone(), nil
}

// Session returns a snapshot of the current session.
func (s *PersistedStore) Session() *models.EngineSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.Clone()
}

// SetStepInput records an input locally and writes it through. A write
// failure is reported but never rolls back local state.
func (s *PersistedStore) SetStepInput(ctx context.Context, stepID string, value models.StepInput) error {
	s.mu.Lock()
	s.session.Data[stepID] = value
	s.session.UpdatedAt = time.Now()
	snapshot := *s.session.Clone()
	s.mu.Unlock()

	s.writeThrough(snapshot)
	return nil
}

// SetStepIndex commits a navigation position locally and writes it through.
func (s *PersistedStore) SetStepIndex(ctx context.Context, index int) error {
	s.mu.Lock()
	s.session.CurrentStepIndex = index
	s.session.UpdatedAt = time.Now()
	snapshot := *s.session.Clone()
	s.mu.Unlock()

	s.writeThrough(snapshot)
	return nil
}

// SetTransformStatus records a locally-originated transform status (the
// trigger's pending write), writes it through, and publishes it so sibling
// instances observe it.
func (s *PersistedStore) SetTransformStatus(ctx context.Context, status models.TransformationStatus) error {
	s.mu.Lock()
	s.session.Transform = status
	s.session.UpdatedAt = time.Now()
	watchers := s.snapshotWatchersLocked()
	s.mu.Unlock()

	for _, w := range watchers {
		w(status)
	}

	updated, err := s.docs.UpdateTransformStatus(s.sessionID(), status)
	if err != nil {
		slog.Warn("PersistedStore.SetTransformStatus sync failed, local state retained", "error", err, "sessionID", s.sessionID())
		s.onErr(err)
		return nil
	}
	if err := s.bus.Publish(ctx, updated); err != nil {
		slog.Warn("PersistedStore.SetTransformStatus publish failed", "error", err, "sessionID", s.sessionID())
	}
	return nil
}

// Reset clears collected data, returns to index 0, and writes both halves of
// the document through.
func (s *PersistedStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	s.session.CurrentStepIndex = 0
	s.session.Data = make(models.SessionData)
	s.session.Transform = models.TransformationStatus{Status: models.TransformStateIdle, UpdatedAt: time.Now()}
	s.session.UpdatedAt = time.Now()
	snapshot := *s.session.Clone()
	transform := s.session.Transform
	s.mu.Unlock()

	s.writeThrough(snapshot)
	if _, err := s.docs.UpdateTransformStatus(snapshot.ID, transform); err != nil {
		slog.Warn("PersistedStore.Reset transform sync failed", "error", err, "sessionID", snapshot.ID)
		s.onErr(err)
	}
	return nil
}

// WatchTransform registers a transform status handler.
func (s *PersistedStore) WatchTransform(handler func(models.TransformationStatus)) func() {
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

// Dispose closes the realtime subscription. The session document and any
// running job remain, resumable via the session id.
func (s *PersistedStore) Dispose() {
	s.mu.Lock()
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.watchers = make(map[int]func(models.TransformationStatus))
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
		slog.Debug("PersistedStore.Dispose closed subscription", "sessionID", s.sessionID())
	}
}

// onRemoteUpdate reconciles an externally-delivered document into local
// state. Only the transform status is adopted, and only if newer.
func (s *PersistedStore) onRemoteUpdate(remote *models.EngineSession) {
	s.mu.Lock()
	if s.session == nil || remote.ID != s.session.ID {
		s.mu.Unlock()
		return
	}
	local := s.session.Transform
	if !remote.Transform.UpdatedAt.After(local.UpdatedAt) {
		// Stale delivery or echo of our own write.
		s.mu.Unlock()
		return
	}
	s.session.Transform = remote.Transform
	status := remote.Transform
	watchers := s.snapshotWatchersLocked()
	s.mu.Unlock()

	slog.Debug("PersistedStore.onRemoteUpdate adopted transform status", "sessionID", remote.ID, "status", status.Status)
	for _, w := range watchers {
		w(status)
	}
}

// writeThrough persists the locally-owned fields, reporting failures without
// rolling back.
func (s *PersistedStore) writeThrough(snapshot models.EngineSession) {
	if err := s.docs.UpdateSession(snapshot); err != nil {
		slog.Warn("PersistedStore write-through failed, local state retained", "error", err, "sessionID", snapshot.ID)
		s.onErr(err)
	}
}

func (s *PersistedStore) snapshotWatchersLocked() []func(models.TransformationStatus) {
	out := make([]func(models.TransformationStatus), 0, len(s.watchers))
	for _, w := range s.watchers {
		out = append(out, w)
	}
	return out
}

func (s *PersistedStore) sessionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return ""
	}
	return s.session.ID
}
