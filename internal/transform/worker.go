package transform

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/boothlabs/boothflow/internal/genai"
	"github.com/boothlabs/boothflow/internal/metrics"
	"github.com/boothlabs/boothflow/internal/models"
	"github.com/boothlabs/boothflow/internal/realtime"
	"github.com/boothlabs/boothflow/internal/store"
)

// ResultDeliverer enqueues delivery of a finished result to the guest.
// Implemented by the share package's outbox-backed delivery.
type ResultDeliverer interface {
	EnqueueResult(ctx context.Context, session *models.EngineSession, resultURL string) error
}

// Worker executes transformation jobs. Status transitions are written to the
// session document and published so every subscribed engine instance sees
// them; the worker never talks to an engine directly.
type Worker struct {
	docs      store.Store
	generator genai.Generator
	bus       realtime.Bus
	delivery  ResultDeliverer
	metrics   *metrics.Metrics
}

// WorkerOption configures optional worker collaborators.
type WorkerOption func(*Worker)

// WithMetrics attaches Prometheus instrumentation to the worker.
func WithMetrics(m *metrics.Metrics) WorkerOption {
	return func(w *Worker) {
		w.metrics = m
	}
}

// NewWorker creates a transformation worker. delivery may be nil when result
// delivery is not configured.
func NewWorker(docs store.Store, generator genai.Generator, bus realtime.Bus, delivery ResultDeliverer, opts ...WorkerOption) *Worker {
	w := &Worker{docs: docs, generator: generator, bus: bus, delivery: delivery}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Register wires the worker's handlers into a job runner.
func (w *Worker) Register(runner *store.JobRunner) {
	runner.RegisterHandler(store.JobKindTransform, w.Handle)
	runner.RegisterFailureHandler(store.JobKindTransform, w.HandleFailure)
}

// Handle executes one transformation job attempt.
func (w *Worker) Handle(ctx context.Context, payloadJSON string) error {
	var payload Payload
	if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal transform payload: %w", err)
	}

	session, err := w.docs.GetSession(payload.SessionID)
	if err != nil {
		return fmt.Errorf("failed to load session %s: %w", payload.SessionID, err)
	}
	jobID := session.Transform.JobID

	w.setStatus(ctx, payload.SessionID, models.TransformationStatus{
		Status:    models.TransformStateProcessing,
		JobID:     jobID,
		UpdatedAt: time.Now(),
	})

	started := time.Now()
	resultURL, err := w.generator.GenerateImage(ctx, payload.Prompt, payload.OutputSize)
	if err != nil {
		if w.metrics != nil {
			w.metrics.TransformFailures.Inc()
		}
		return fmt.Errorf("transform generation failed for session %s: %w", payload.SessionID, err)
	}
	if w.metrics != nil {
		w.metrics.TransformDuration.Observe(time.Since(started).Seconds())
	}

	updated := w.setStatus(ctx, payload.SessionID, models.TransformationStatus{
		Status:    models.TransformStateComplete,
		ResultURL: resultURL,
		JobID:     jobID,
		UpdatedAt: time.Now(),
	})
	slog.Info("Transform completed", "sessionID", payload.SessionID, "jobID", jobID)

	if w.delivery != nil && updated != nil {
		if err := w.delivery.EnqueueResult(ctx, updated, resultURL); err != nil {
			// Delivery is best-effort; the result is already on the session.
			slog.Error("Transform result delivery enqueue failed", "error", err, "sessionID", payload.SessionID)
		}
	}
	return nil
}

// HandleFailure records the terminal failure on the session so the processing
// step surfaces the error state instead of waiting forever.
func (w *Worker) HandleFailure(ctx context.Context, payloadJSON string, errMsg string) {
	var payload Payload
	if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
		slog.Error("HandleFailure: failed to unmarshal transform payload", "error", err)
		return
	}

	var jobID string
	if session, err := w.docs.GetSession(payload.SessionID); err == nil {
		jobID = session.Transform.JobID
	}

	w.setStatus(ctx, payload.SessionID, models.TransformationStatus{
		Status:       models.TransformStateError,
		ErrorMessage: errMsg,
		JobID:        jobID,
		UpdatedAt:    time.Now(),
	})
	slog.Error("Transform permanently failed", "sessionID", payload.SessionID, "error", errMsg)
}

func (w *Worker) setStatus(ctx context.Context, sessionID string, status models.TransformationStatus) *models.EngineSession {
	updated, err := w.docs.UpdateTransformStatus(sessionID, status)
	if err != nil {
		slog.Error("Transform status write failed", "error", err, "sessionID", sessionID, "status", status.Status)
		return nil
	}
	if err := w.bus.Publish(ctx, updated); err != nil {
		slog.Error("Transform status publish failed", "error", err, "sessionID", sessionID, "status", status.Status)
	}
	return updated
}
