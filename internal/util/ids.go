package util

import (
	"strings"

	"github.com/google/uuid"
)

// NewID generates a prefixed unique identifier, e.g. "sess_4f1c...".
func NewID(prefix string) string {
	return prefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// NewSessionID generates a unique engine session id.
func NewSessionID() string {
	return NewID("sess_")
}

// NewJobID generates a unique transformation job id.
func NewJobID() string {
	return NewID("job_")
}

// NewMessageID generates a unique outbox message id.
func NewMessageID() string {
	return NewID("msg_")
}
