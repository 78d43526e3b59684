package transform

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/boothlabs/boothflow/internal/models"
	"github.com/boothlabs/boothflow/internal/realtime"
	"github.com/boothlabs/boothflow/internal/store"
)

// mockGenerator implements genai.Generator for testing.
type mockGenerator struct {
	url   string
	err   error
	calls int
}

func (m *mockGenerator) GenerateImage(ctx context.Context, prompt, outputSize string) (string, error) {
	m.calls++
	return m.url, m.err
}

// mockDeliverer records EnqueueResult invocations.
type mockDeliverer struct {
	sessions []string
	urls     []string
	err      error
}

func (m *mockDeliverer) EnqueueResult(ctx context.Context, session *models.EngineSession, resultURL string) error {
	m.sessions = append(m.sessions, session.ID)
	m.urls = append(m.urls, resultURL)
	return m.err
}

func seedSession(t *testing.T, docs store.Store, id string) {
	t.Helper()
	err := docs.CreateSession(models.EngineSession{
		ID:           id,
		ExperienceID: "exp-1",
		Data:         make(models.SessionData),
		Transform:    models.TransformationStatus{Status: models.TransformStatePending, JobID: "job_1", UpdatedAt: time.Now()},
	})
	if err != nil {
		t.Fatalf("seed session failed: %v", err)
	}
}

func TestTriggerEnqueuesJob(t *testing.T) {
	repo := store.NewInMemoryStore()

	jobID, err := Trigger(repo, "sess_1", "a prompt", "1024x1024")
	if err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}
	if jobID == "" {
		t.Fatal("expected a job id")
	}

	job, err := repo.GetJob(jobID)
	if err != nil || job == nil {
		t.Fatalf("expected job to exist, got %v %v", job, err)
	}
	if job.Kind != store.JobKindTransform {
		t.Errorf("expected kind %s, got %s", store.JobKindTransform, job.Kind)
	}
	var payload Payload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		t.Fatalf("payload unmarshal failed: %v", err)
	}
	if payload.SessionID != "sess_1" || payload.Prompt != "a prompt" || payload.OutputSize != "1024x1024" {
		t.Errorf("unexpected payload: %+v", payload)
	}
}

func TestTriggerDedupesPerSession(t *testing.T) {
	repo := store.NewInMemoryStore()

	first, err := Trigger(repo, "sess_1", "prompt", "")
	if err != nil {
		t.Fatalf("first Trigger failed: %v", err)
	}
	second, err := Trigger(repo, "sess_1", "prompt", "")
	if err != nil {
		t.Fatalf("second Trigger failed: %v", err)
	}
	if first != second {
		t.Errorf("expected dedupe to return the same job id, got %s and %s", first, second)
	}

	other, err := Trigger(repo, "sess_2", "prompt", "")
	if err != nil {
		t.Fatalf("Trigger for second session failed: %v", err)
	}
	if other == first {
		t.Error("expected distinct sessions to get distinct jobs")
	}
}

func TestTriggerSupersedesPermanentlyFailedJob(t *testing.T) {
	repo := store.NewInMemoryStore()

	first, err := Trigger(repo, "sess_1", "prompt", "")
	if err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}

	// Exhaust the retry budget so the job lands in terminal failed status.
	for i := 0; i < store.DefaultJobMaxAttempts; i++ {
		jobs, err := repo.ClaimDueJobs(time.Now().Add(time.Hour), 10)
		if err != nil || len(jobs) != 1 {
			t.Fatalf("claim on attempt %d: got %d jobs, err %v", i, len(jobs), err)
		}
		if err := repo.FailJob(jobs[0].ID, "model unavailable", time.Now()); err != nil {
			t.Fatalf("FailJob on attempt %d failed: %v", i, err)
		}
	}
	job, err := repo.GetJob(first)
	if err != nil || job == nil || job.Status != store.JobStatusFailed {
		t.Fatalf("expected permanently failed job, got %+v (err %v)", job, err)
	}

	retried, err := Trigger(repo, "sess_1", "prompt", "")
	if err != nil {
		t.Fatalf("re-trigger failed: %v", err)
	}
	if retried == first {
		t.Fatal("expected a fresh job after permanent failure, got the failed job id")
	}
	jobs, err := repo.ClaimDueJobs(time.Now().Add(time.Hour), 10)
	if err != nil || len(jobs) != 1 || jobs[0].ID != retried {
		t.Fatalf("expected the fresh job to be claimable, got %+v (err %v)", jobs, err)
	}
}

func TestWorkerHandleSuccess(t *testing.T) {
	docs := store.NewInMemoryStore()
	bus := realtime.NewMemoryBus()
	gen := &mockGenerator{url: "https://cdn.example.com/result.png"}
	delivery := &mockDeliverer{}
	seedSession(t, docs, "sess_1")

	var published []models.TransformState
	if _, err := bus.Subscribe(context.Background(), "sess_1", func(s *models.EngineSession) {
		published = append(published, s.Transform.Status)
	}); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	w := NewWorker(docs, gen, bus, delivery)
	payload, _ := json.Marshal(Payload{SessionID: "sess_1", Prompt: "prompt"})
	if err := w.Handle(context.Background(), string(payload)); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	session, err := docs.GetSession("sess_1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if session.Transform.Status != models.TransformStateComplete {
		t.Errorf("expected complete status, got %s", session.Transform.Status)
	}
	if session.Transform.ResultURL != "https://cdn.example.com/result.png" {
		t.Errorf("expected result url, got %q", session.Transform.ResultURL)
	}
	if session.Transform.JobID != "job_1" {
		t.Errorf("expected job id carried forward, got %q", session.Transform.JobID)
	}

	if len(published) != 2 || published[0] != models.TransformStateProcessing || published[1] != models.TransformStateComplete {
		t.Errorf("expected processing then complete publications, got %v", published)
	}

	if len(delivery.sessions) != 1 || delivery.sessions[0] != "sess_1" {
		t.Errorf("expected one delivery enqueue for sess_1, got %v", delivery.sessions)
	}
}

func TestWorkerHandleGenerationError(t *testing.T) {
	docs := store.NewInMemoryStore()
	bus := realtime.NewMemoryBus()
	gen := &mockGenerator{err: errors.New("model overloaded")}
	seedSession(t, docs, "sess_1")

	w := NewWorker(docs, gen, bus, nil)
	payload, _ := json.Marshal(Payload{SessionID: "sess_1", Prompt: "prompt"})
	err := w.Handle(context.Background(), string(payload))
	if err == nil {
		t.Fatal("expected generation error to surface for retry")
	}

	// A retryable failure leaves the status at processing, not error.
	session, _ := docs.GetSession("sess_1")
	if session.Transform.Status != models.TransformStateProcessing {
		t.Errorf("expected processing status after retryable failure, got %s", session.Transform.Status)
	}
}

func TestWorkerHandleMissingSession(t *testing.T) {
	docs := store.NewInMemoryStore()
	w := NewWorker(docs, &mockGenerator{url: "u"}, realtime.NewMemoryBus(), nil)

	payload, _ := json.Marshal(Payload{SessionID: "sess_gone", Prompt: "prompt"})
	if err := w.Handle(context.Background(), string(payload)); err == nil {
		t.Fatal("expected error for missing session")
	}
}

func TestWorkerHandleFailureWritesErrorStatus(t *testing.T) {
	docs := store.NewInMemoryStore()
	bus := realtime.NewMemoryBus()
	seedSession(t, docs, "sess_1")

	w := NewWorker(docs, &mockGenerator{}, bus, nil)
	payload, _ := json.Marshal(Payload{SessionID: "sess_1", Prompt: "prompt"})
	w.HandleFailure(context.Background(), string(payload), "model overloaded")

	session, err := docs.GetSession("sess_1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if session.Transform.Status != models.TransformStateError {
		t.Errorf("expected error status, got %s", session.Transform.Status)
	}
	if session.Transform.ErrorMessage != "model overloaded" {
		t.Errorf("expected error message, got %q", session.Transform.ErrorMessage)
	}
}

func TestWorkerThroughJobRunner(t *testing.T) {
	docs := store.NewInMemoryStore()
	bus := realtime.NewMemoryBus()
	gen := &mockGenerator{url: "https://cdn.example.com/result.png"}
	seedSession(t, docs, "sess_1")

	runner := store.NewJobRunner(docs, time.Second)
	w := NewWorker(docs, gen, bus, nil)
	w.Register(runner)

	if _, err := Trigger(docs, "sess_1", "prompt", ""); err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}
	runner.Poll(context.Background())

	if gen.calls != 1 {
		t.Fatalf("expected one generation call, got %d", gen.calls)
	}
	session, _ := docs.GetSession("sess_1")
	if session.Transform.Status != models.TransformStateComplete {
		t.Errorf("expected complete status after poll, got %s", session.Transform.Status)
	}
}
