// Package transform orchestrates the asynchronous AI transformation: the
// trigger enqueues a durable job when the guest passes the ai-transform step,
// and the worker executes it out of process, writing status updates back to
// the session document for the realtime subscription to deliver.
package transform

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/boothlabs/boothflow/internal/store"
)

// Payload is the durable job payload for a transformation.
type Payload struct {
	SessionID  string `json:"session_id"`
	Prompt     string `json:"prompt"`
	OutputSize string `json:"output_size,omitempty"`
}

// DedupeKey returns the job dedupe key for a session. One non-terminal
// transformation job exists per session at a time, so a re-entered
// ai-transform step never double-triggers.
func DedupeKey(sessionID string) string {
	return "transform:" + sessionID
}

// Trigger enqueues the transformation job for a session and returns the job
// id. Re-triggering while a job is still queued or running returns the
// existing job's id.
func Trigger(jobs store.JobRepo, sessionID, prompt, outputSize string) (string, error) {
	payload, err := json.Marshal(Payload{
		SessionID:  sessionID,
		Prompt:     prompt,
		OutputSize: outputSize,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal transform payload: %w", err)
	}

	jobID, err := jobs.EnqueueJob(store.JobKindTransform, time.Now(), string(payload), DedupeKey(sessionID))
	if err != nil {
		slog.Error("Trigger enqueue failed", "error", err, "sessionID", sessionID)
		return "", fmt.Errorf("failed to enqueue transform job: %w", err)
	}
	slog.Debug("Trigger enqueued transform job", "jobID", jobID, "sessionID", sessionID)
	return jobID, nil
}
