package models

import "fmt"

// ErrorCode classifies an engine failure per the error taxonomy.
type ErrorCode string

const (
	// ErrorCodeInitFailed indicates session/config resolution failed. Fatal.
	ErrorCodeInitFailed ErrorCode = "INIT_FAILED"
	// ErrorCodeSessionLoadFailed indicates a resume target was missing or corrupt. Fatal.
	ErrorCodeSessionLoadFailed ErrorCode = "SESSION_LOAD_FAILED"
	// ErrorCodeSessionSyncFailed indicates a write-through failed. Recoverable;
	// local state is retained.
	ErrorCodeSessionSyncFailed ErrorCode = "SESSION_SYNC_FAILED"
	// ErrorCodeTransformFailed indicates the job trigger was rejected. Recoverable.
	ErrorCodeTransformFailed ErrorCode = "TRANSFORM_FAILED"
	// ErrorCodeRendererError indicates an unknown step type or renderer crash,
	// isolated to the offending step.
	ErrorCodeRendererError ErrorCode = "RENDERER_ERROR"
	// ErrorCodeNavBlocked indicates a policy-disallowed navigation attempt.
	// Silently ignored; never surfaced to OnError.
	ErrorCodeNavBlocked ErrorCode = "NAV_BLOCKED"
	// ErrorCodeUnknown is the catch-all classification.
	ErrorCodeUnknown ErrorCode = "UNKNOWN"
)

// IsFatal reports whether the code moves the state machine to the terminal
// error state.
func (c ErrorCode) IsFatal() bool {
	return c == ErrorCodeInitFailed || c == ErrorCodeSessionLoadFailed
}

// EngineError is the failure payload delivered to OnError.
type EngineError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	StepID  string    `json:"step_id,omitempty"`
	Cause   error     `json:"-"`
}

// Error implements the error interface.
func (e EngineError) Error() string {
	if e.StepID != "" {
		return fmt.Sprintf("%s (step %s): %s", e.Code, e.StepID, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e EngineError) Unwrap() error {
	return e.Cause
}

// NewEngineError builds an EngineError wrapping an optional cause.
func NewEngineError(code ErrorCode, message string, cause error) EngineError {
	return EngineError{Code: code, Message: message, Cause: cause}
}

// NewStepError builds an EngineError scoped to a specific step.
func NewStepError(code ErrorCode, stepID, message string, cause error) EngineError {
	return EngineError{Code: code, Message: message, StepID: stepID, Cause: cause}
}
