package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/boothlabs/boothflow/internal/engine"
	"github.com/boothlabs/boothflow/internal/models"
	"github.com/boothlabs/boothflow/internal/session"
	"github.com/boothlabs/boothflow/internal/transform"
)

// createSessionRequest is the body for starting an experience run. All
// fields are optional; ExistingSessionID resumes a prior persisted run.
type createSessionRequest struct {
	ExistingSessionID string `json:"existing_session_id,omitempty"`
	ProjectID         string `json:"project_id,omitempty"`
	EventID           string `json:"event_id,omitempty"`
	CompanyID         string `json:"company_id,omitempty"`
}

// inputRequest is the body for submitting a step input.
type inputRequest struct {
	StepID string           `json:"step_id"`
	Value  models.StepInput `json:"value"`
}

// runResult is the response payload for state-returning endpoints.
type runResult struct {
	SessionID string             `json:"session_id"`
	State     models.EngineState `json:"state"`
	View      engine.View        `json:"view"`
}

func (s *Server) healthzHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]string{"status": "healthy"}))
}

// createSessionHandler starts a new engine run for an experience and returns
// its initial state.
func (s *Server) createSessionHandler(w http.ResponseWriter, r *http.Request) {
	experienceID := chi.URLParam(r, "experienceID")
	def, ok := s.experiences[experienceID]
	if !ok {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Experience not found"))
		return
	}

	var req createSessionRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid request body"))
			return
		}
	}

	cfg := def.EngineConfig()
	cfg.ExistingSessionID = req.ExistingSessionID
	cfg.ProjectID = req.ProjectID
	cfg.EventID = req.EventID
	cfg.CompanyID = req.CompanyID

	deps := engine.Deps{Metrics: s.metrics}
	if cfg.PersistSession {
		if s.docs == nil {
			slog.Error("Server.createSessionHandler: persisted experience without document store", "experienceID", experienceID)
			writeJSONResponse(w, http.StatusServiceUnavailable, models.Error("Persistence backend not configured"))
			return
		}
		deps.Sessions = session.NewPersisted(session.Config{
			ExperienceID:      def.ID,
			ExistingSessionID: req.ExistingSessionID,
			ProjectID:         req.ProjectID,
			EventID:           req.EventID,
			CompanyID:         req.CompanyID,
		}, s.docs, s.bus, func(err error) {
			slog.Warn("Session sync failed", "error", err, "experienceID", experienceID)
		})
	}
	if s.jobs != nil {
		deps.Trigger = func(ctx context.Context, sessionID, prompt, outputSize string) (string, error) {
			return transform.Trigger(s.jobs, sessionID, prompt, outputSize)
		}
	}

	eng, err := engine.New(cfg, deps)
	if err != nil {
		slog.Error("Server.createSessionHandler: engine construction failed", "error", err, "experienceID", experienceID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to initialize experience run"))
		return
	}

	if err := eng.Start(s.runContext()); err != nil {
		var engErr models.EngineError
		if errors.As(err, &engErr) && engErr.Code == models.ErrorCodeSessionLoadFailed {
			writeJSONResponse(w, http.StatusNotFound, models.Error("Session could not be loaded"))
			return
		}
		slog.Error("Server.createSessionHandler: engine start failed", "error", err, "experienceID", experienceID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to start experience run"))
		return
	}

	sess := eng.Session()
	if sess == nil {
		eng.Dispose()
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to resolve session"))
		return
	}

	s.storeRun(sess.ID, eng)
	slog.Info("Experience run started", "experienceID", experienceID, "sessionID", sess.ID)
	writeJSONResponse(w, http.StatusCreated, models.Success(runResult{
		SessionID: sess.ID,
		State:     eng.State(),
		View:      eng.CurrentView(),
	}))
}

// getSessionHandler returns the current state and view of a run.
func (s *Server) getSessionHandler(w http.ResponseWriter, r *http.Request) {
	eng, sessionID, ok := s.resolveRun(w, r)
	if !ok {
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(runResult{
		SessionID: sessionID,
		State:     eng.State(),
		View:      eng.CurrentView(),
	}))
}

// deleteSessionHandler disposes a run and removes it from the registry. The
// persisted session document is kept so the run stays resumable.
func (s *Server) deleteSessionHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	eng, ok := s.removeRun(sessionID)
	if !ok {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Session not found"))
		return
	}
	eng.Dispose()
	slog.Info("Experience run disposed", "sessionID", sessionID)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Session disposed", nil))
}

func (s *Server) nextHandler(w http.ResponseWriter, r *http.Request) {
	s.navHandler(w, r, func(e *engine.Engine) { e.Next() })
}

func (s *Server) previousHandler(w http.ResponseWriter, r *http.Request) {
	s.navHandler(w, r, func(e *engine.Engine) { e.Previous() })
}

func (s *Server) skipHandler(w http.ResponseWriter, r *http.Request) {
	s.navHandler(w, r, func(e *engine.Engine) { e.Skip() })
}

func (s *Server) restartHandler(w http.ResponseWriter, r *http.Request) {
	s.navHandler(w, r, func(e *engine.Engine) { e.Restart() })
}

func (s *Server) retryHandler(w http.ResponseWriter, r *http.Request) {
	s.navHandler(w, r, func(e *engine.Engine) { e.Retry() })
}

// navHandler runs a navigation operation and returns the resulting state.
// Policy-blocked navigation is not an error; the unchanged state is returned.
func (s *Server) navHandler(w http.ResponseWriter, r *http.Request, op func(*engine.Engine)) {
	eng, sessionID, ok := s.resolveRun(w, r)
	if !ok {
		return
	}
	op(eng)
	writeJSONResponse(w, http.StatusOK, models.Success(runResult{
		SessionID: sessionID,
		State:     eng.State(),
		View:      eng.CurrentView(),
	}))
}

// inputHandler records a step input and returns the resulting state.
func (s *Server) inputHandler(w http.ResponseWriter, r *http.Request) {
	eng, sessionID, ok := s.resolveRun(w, r)
	if !ok {
		return
	}

	var req inputRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid request body"))
		return
	}
	if req.StepID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("step_id is required"))
		return
	}

	if err := eng.SubmitInput(req.StepID, req.Value); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	writeJSONResponse(w, http.StatusOK, models.Success(runResult{
		SessionID: sessionID,
		State:     eng.State(),
		View:      eng.CurrentView(),
	}))
}

// resolveRun looks up the engine for the request's session id, writing a 404
// when absent.
func (s *Server) resolveRun(w http.ResponseWriter, r *http.Request) (*engine.Engine, string, bool) {
	sessionID := chi.URLParam(r, "sessionID")
	eng, ok := s.lookupRun(sessionID)
	if !ok {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Session not found"))
		return nil, "", false
	}
	return eng, sessionID, true
}
