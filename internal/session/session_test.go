package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/boothlabs/boothflow/internal/models"
	"github.com/boothlabs/boothflow/internal/realtime"
	"github.com/boothlabs/boothflow/internal/store"
)

func TestEphemeralInitCreatesFreshSession(t *testing.T) {
	s := NewEphemeral(Config{ExperienceID: "exp-1"})
	sess, err := s.Init(context.Background())
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if sess.ID == "" {
		t.Fatal("expected a generated session id")
	}
	if sess.ExperienceID != "exp-1" {
		t.Errorf("expected experience id exp-1, got %s", sess.ExperienceID)
	}
	if sess.CurrentStepIndex != 0 {
		t.Errorf("expected step index 0, got %d", sess.CurrentStepIndex)
	}
	if sess.Transform.Status != models.TransformStateIdle {
		t.Errorf("expected idle transform status, got %s", sess.Transform.Status)
	}
}

func TestEphemeralMutationsAndReset(t *testing.T) {
	ctx := context.Background()
	s := NewEphemeral(Config{ExperienceID: "exp-1"})
	if _, err := s.Init(ctx); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	if err := s.SetStepInput(ctx, "name", models.TextInput("Ada")); err != nil {
		t.Fatalf("SetStepInput failed: %v", err)
	}
	if err := s.SetStepIndex(ctx, 2); err != nil {
		t.Fatalf("SetStepIndex failed: %v", err)
	}

	sess := s.Session()
	if got := sess.Data["name"].DisplayString(); got != "Ada" {
		t.Errorf("expected stored input Ada, got %q", got)
	}
	if sess.CurrentStepIndex != 2 {
		t.Errorf("expected step index 2, got %d", sess.CurrentStepIndex)
	}

	if err := s.Reset(ctx); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	sess = s.Session()
	if sess.CurrentStepIndex != 0 || len(sess.Data) != 0 {
		t.Errorf("expected cleared session after reset, got index %d data %v", sess.CurrentStepIndex, sess.Data)
	}
	if sess.Transform.Status != models.TransformStateIdle {
		t.Errorf("expected idle transform after reset, got %s", sess.Transform.Status)
	}
}

func TestEphemeralWatchTransform(t *testing.T) {
	ctx := context.Background()
	s := NewEphemeral(Config{ExperienceID: "exp-1"})
	if _, err := s.Init(ctx); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	var seen []models.TransformState
	unwatch := s.WatchTransform(func(st models.TransformationStatus) {
		seen = append(seen, st.Status)
	})

	if err := s.SetTransformStatus(ctx, models.TransformationStatus{Status: models.TransformStatePending, UpdatedAt: time.Now()}); err != nil {
		t.Fatalf("SetTransformStatus failed: %v", err)
	}
	unwatch()
	if err := s.SetTransformStatus(ctx, models.TransformationStatus{Status: models.TransformStateComplete, UpdatedAt: time.Now()}); err != nil {
		t.Fatalf("SetTransformStatus failed: %v", err)
	}

	if len(seen) != 1 || seen[0] != models.TransformStatePending {
		t.Errorf("expected exactly one pending notification, got %v", seen)
	}
}

func TestPersistedInitCreatesDocument(t *testing.T) {
	docs := store.NewInMemoryStore()
	bus := realtime.NewMemoryBus()
	s := NewPersisted(Config{ExperienceID: "exp-1", EventID: "ev-1"}, docs, bus, nil)

	sess, err := s.Init(context.Background())
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer s.Dispose()

	stored, err := docs.GetSession(sess.ID)
	if err != nil {
		t.Fatalf("expected session document to exist: %v", err)
	}
	if stored.ExperienceID != "exp-1" || stored.EventID != "ev-1" {
		t.Errorf("stored document missing identity fields: %+v", stored)
	}
}

func TestPersistedInitResumesExistingSession(t *testing.T) {
	docs := store.NewInMemoryStore()
	bus := realtime.NewMemoryBus()
	existing := models.EngineSession{
		ID:               "sess_resume",
		ExperienceID:     "exp-1",
		CurrentStepIndex: 3,
		Data:             models.SessionData{"name": models.TextInput("Ada")},
		Transform:        models.TransformationStatus{Status: models.TransformStateProcessing, UpdatedAt: time.Now()},
	}
	if err := docs.CreateSession(existing); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	s := NewPersisted(Config{ExperienceID: "exp-1", ExistingSessionID: "sess_resume"}, docs, bus, nil)
	sess, err := s.Init(context.Background())
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer s.Dispose()

	if sess.ID != "sess_resume" {
		t.Errorf("expected resumed id sess_resume, got %s", sess.ID)
	}
	if sess.CurrentStepIndex != 3 {
		t.Errorf("expected resumed step index 3, got %d", sess.CurrentStepIndex)
	}
	if sess.Transform.Status != models.TransformStateProcessing {
		t.Errorf("expected resumed processing status, got %s", sess.Transform.Status)
	}
}

func TestPersistedInitMissingResumeTargetIsFatal(t *testing.T) {
	docs := store.NewInMemoryStore()
	bus := realtime.NewMemoryBus()
	s := NewPersisted(Config{ExperienceID: "exp-1", ExistingSessionID: "sess_missing"}, docs, bus, nil)

	_, err := s.Init(context.Background())
	if err == nil {
		t.Fatal("expected error for missing resume target")
	}
	if !errors.Is(err, ErrSessionLoadFailed) {
		t.Errorf("expected ErrSessionLoadFailed, got %v", err)
	}
}

func TestPersistedWriteThrough(t *testing.T) {
	ctx := context.Background()
	docs := store.NewInMemoryStore()
	bus := realtime.NewMemoryBus()
	s := NewPersisted(Config{ExperienceID: "exp-1"}, docs, bus, nil)
	sess, err := s.Init(ctx)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer s.Dispose()

	if err := s.SetStepInput(ctx, "name", models.TextInput("Ada")); err != nil {
		t.Fatalf("SetStepInput failed: %v", err)
	}
	if err := s.SetStepIndex(ctx, 1); err != nil {
		t.Fatalf("SetStepIndex failed: %v", err)
	}

	stored, err := docs.GetSession(sess.ID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if stored.CurrentStepIndex != 1 {
		t.Errorf("expected persisted step index 1, got %d", stored.CurrentStepIndex)
	}
	if got := stored.Data["name"].DisplayString(); got != "Ada" {
		t.Errorf("expected persisted input Ada, got %q", got)
	}
}

func TestPersistedSyncFailureRetainsLocalState(t *testing.T) {
	ctx := context.Background()
	docs := &failingDocStore{inner: store.NewInMemoryStore()}
	bus := realtime.NewMemoryBus()

	var syncErrs []error
	s := NewPersisted(Config{ExperienceID: "exp-1"}, docs, bus, func(err error) {
		syncErrs = append(syncErrs, err)
	})
	if _, err := s.Init(ctx); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer s.Dispose()

	docs.failUpdates = true
	if err := s.SetStepIndex(ctx, 2); err != nil {
		t.Fatalf("SetStepIndex should not surface sync failures, got %v", err)
	}
	if len(syncErrs) != 1 {
		t.Fatalf("expected one sync error, got %d", len(syncErrs))
	}
	if got := s.Session().CurrentStepIndex; got != 2 {
		t.Errorf("expected local state retained at index 2, got %d", got)
	}
}

func TestPersistedAdoptsNewerRemoteTransform(t *testing.T) {
	ctx := context.Background()
	docs := store.NewInMemoryStore()
	bus := realtime.NewMemoryBus()
	s := NewPersisted(Config{ExperienceID: "exp-1"}, docs, bus, nil)
	sess, err := s.Init(ctx)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer s.Dispose()

	var notified []models.TransformState
	s.WatchTransform(func(st models.TransformationStatus) {
		notified = append(notified, st.Status)
	})

	// A worker writes a newer transform status and publishes the document.
	updated, err := docs.UpdateTransformStatus(sess.ID, models.TransformationStatus{
		Status:    models.TransformStateComplete,
		ResultURL: "https://cdn.example.com/result.png",
		UpdatedAt: time.Now().Add(time.Second),
	})
	if err != nil {
		t.Fatalf("UpdateTransformStatus failed: %v", err)
	}
	if err := bus.Publish(ctx, updated); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	got := s.Session().Transform
	if got.Status != models.TransformStateComplete {
		t.Errorf("expected adopted complete status, got %s", got.Status)
	}
	if got.ResultURL != "https://cdn.example.com/result.png" {
		t.Errorf("expected adopted result url, got %q", got.ResultURL)
	}
	if len(notified) != 1 || notified[0] != models.TransformStateComplete {
		t.Errorf("expected one complete notification, got %v", notified)
	}
}

func TestPersistedIgnoresStaleRemoteTransform(t *testing.T) {
	ctx := context.Background()
	docs := store.NewInMemoryStore()
	bus := realtime.NewMemoryBus()
	s := NewPersisted(Config{ExperienceID: "exp-1"}, docs, bus, nil)
	sess, err := s.Init(ctx)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer s.Dispose()

	now := time.Now()
	if err := s.SetTransformStatus(ctx, models.TransformationStatus{Status: models.TransformStateProcessing, UpdatedAt: now}); err != nil {
		t.Fatalf("SetTransformStatus failed: %v", err)
	}

	stale := sess.Clone()
	stale.Transform = models.TransformationStatus{Status: models.TransformStatePending, UpdatedAt: now.Add(-time.Second)}
	if err := bus.Publish(ctx, stale); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	if got := s.Session().Transform.Status; got != models.TransformStateProcessing {
		t.Errorf("stale remote transform should not regress local state, got %s", got)
	}
}

// failingDocStore wraps an InMemoryStore and fails updates on demand.
type failingDocStore struct {
	inner       *store.InMemoryStore
	failUpdates bool
}

func (f *failingDocStore) CreateSession(session models.EngineSession) error {
	return f.inner.CreateSession(session)
}

func (f *failingDocStore) GetSession(id string) (*models.EngineSession, error) {
	return f.inner.GetSession(id)
}

func (f *failingDocStore) UpdateSession(session models.EngineSession) error {
	if f.failUpdates {
		return errors.New("backend unavailable")
	}
	return f.inner.UpdateSession(session)
}

func (f *failingDocStore) UpdateTransformStatus(id string, status models.TransformationStatus) (*models.EngineSession, error) {
	if f.failUpdates {
		return nil, errors.New("backend unavailable")
	}
	return f.inner.UpdateTransformStatus(id, status)
}

func (f *failingDocStore) DeleteSession(id string) error {
	return f.inner.DeleteSession(id)
}

func (f *failingDocStore) Close() error {
	return f.inner.Close()
}
