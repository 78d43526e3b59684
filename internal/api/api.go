// Package api provides HTTP handlers and the API server for Boothflow.
//
// It exposes RESTful endpoints for starting experience runs, navigating
// their steps, and submitting inputs. Each run is a server-held engine
// instance addressed by its session id.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/boothlabs/boothflow/internal/engine"
	"github.com/boothlabs/boothflow/internal/experience"
	"github.com/boothlabs/boothflow/internal/metrics"
	"github.com/boothlabs/boothflow/internal/realtime"
	"github.com/boothlabs/boothflow/internal/store"
)

// DefaultAddr is the default API listen address.
const DefaultAddr = ":8080"

// Opts holds configuration options for the API server.
type Opts struct {
	Addr string
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) {
		o.Addr = addr
	}
}

// Server routes experience-run requests to engine instances.
type Server struct {
	addr        string
	experiences map[string]*experience.Definition
	docs        store.Store
	bus         realtime.Bus
	jobs        store.JobRepo
	metrics     *metrics.Metrics

	mu      sync.RWMutex
	runs    map[string]*engine.Engine
	baseCtx context.Context
}

// NewServer creates an API server. docs and bus may be nil when only
// ephemeral runs are served; jobs may be nil when no transformation backend
// is configured.
func NewServer(experiences map[string]*experience.Definition, docs store.Store, bus realtime.Bus, jobs store.JobRepo, m *metrics.Metrics, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Server{
		addr:        cfg.Addr,
		experiences: experiences,
		docs:        docs,
		bus:         bus,
		jobs:        jobs,
		metrics:     m,
		runs:        make(map[string]*engine.Engine),
	}
}

// Handler builds the HTTP routing table.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.healthzHandler)
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/experiences/{experienceID}/sessions", s.createSessionHandler)
	r.Get("/sessions/{sessionID}", s.getSessionHandler)
	r.Delete("/sessions/{sessionID}", s.deleteSessionHandler)
	r.Post("/sessions/{sessionID}/next", s.nextHandler)
	r.Post("/sessions/{sessionID}/previous", s.previousHandler)
	r.Post("/sessions/{sessionID}/skip", s.skipHandler)
	r.Post("/sessions/{sessionID}/restart", s.restartHandler)
	r.Post("/sessions/{sessionID}/retry", s.retryHandler)
	r.Post("/sessions/{sessionID}/input", s.inputHandler)

	return r
}

// Run starts the HTTP server and blocks until the context is cancelled. The
// context also bounds the lifetime of engines started by the handlers.
func (s *Server) Run(ctx context.Context) error {
	s.setBaseContext(ctx)
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("API server shutdown failed", "error", err)
			return err
		}
		slog.Info("API server stopped")
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) setBaseContext(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.baseCtx = ctx
}

// runContext returns the context engines are started with. Runs are
// server-held and outlive the request that created them, so the creating
// request's context must never bound them.
func (s *Server) runContext() context.Context {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.baseCtx != nil {
		return s.baseCtx
	}
	return context.Background()
}

// lookupRun resolves a session id to its engine instance.
func (s *Server) lookupRun(sessionID string) (*engine.Engine, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.runs[sessionID]
	return e, ok
}

func (s *Server) storeRun(sessionID string, e *engine.Engine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[sessionID] = e
}

func (s *Server) removeRun(sessionID string) (*engine.Engine, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.runs[sessionID]
	if ok {
		delete(s.runs, sessionID)
	}
	return e, ok
}
