// Package admin serves the HTTP control surface of the ingestion service.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/mixelka/clarify/internal/database"
	"github.com/mixelka/clarify/internal/scheduler"
	"github.com/mixelka/clarify/pkg/models"
)

// Controller is the scheduler surface exposed to operators
type Controller interface {
	Start(ctx context.Context) error
	Stop()
	Restart(ctx context.Context) error
	AddTeamMonitoring(ctx context.Context, teamID int64) error
	RemoveTeamMonitoring(teamID int64)
	TestTeamConnection(ctx context.Context, teamID int64) error
	GetStatus(ctx context.Context) (scheduler.Status, error)
	Health(ctx context.Context) scheduler.Health
}

// QueueAdmin is the queue surface exposed to operators
type QueueAdmin interface {
	Resubmit(ctx context.Context, id int64) error
	Stats(ctx context.Context) (models.QueueStats, error)
}

// Server is the admin HTTP server
type Server struct {
	ctrl   Controller
	queue  QueueAdmin
	logger *slog.Logger
	http   *http.Server
}

// NewServer creates a new admin server listening on addr
func NewServer(addr string, ctrl Controller, queue QueueAdmin, logger *slog.Logger) *Server {
	s := &Server{
		ctrl:   ctrl,
		queue:  queue,
		logger: logger.With("component", "admin"),
	}
	s.http = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Handler returns the routes of the control surface
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("POST /start", s.handleStart)
	mux.HandleFunc("POST /stop", s.handleStop)
	mux.HandleFunc("POST /restart", s.handleRestart)
	mux.HandleFunc("POST /teams/{id}/add", s.handleAddTeam)
	mux.HandleFunc("POST /teams/{id}/test", s.handleTestTeam)
	mux.HandleFunc("DELETE /teams/{id}", s.handleRemoveTeam)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /queue/{id}/resubmit", s.handleResubmit)
	mux.HandleFunc("GET /queue/stats", s.handleQueueStats)
	return mux
}

// ListenAndServe serves until Shutdown is called
func (s *Server) ListenAndServe() error {
	s.logger.Info("admin server listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.respondStatus(w, r)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.Start(r.Context()); err != nil {
		s.fail(w, http.StatusInternalServerError, err)
		return
	}
	s.respondStatus(w, r)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.ctrl.Stop()
	s.respondStatus(w, r)
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.Restart(r.Context()); err != nil {
		s.fail(w, http.StatusInternalServerError, err)
		return
	}
	s.respondStatus(w, r)
}

func (s *Server) handleAddTeam(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}

	err := s.ctrl.AddTeamMonitoring(r.Context(), id)
	switch {
	case errors.Is(err, scheduler.ErrNotRunning):
		s.fail(w, http.StatusConflict, err)
		return
	case errors.Is(err, scheduler.ErrTeamNotFound):
		s.fail(w, http.StatusNotFound, err)
		return
	case err != nil:
		s.fail(w, http.StatusBadGateway, err)
		return
	}
	s.respondStatus(w, r)
}

func (s *Server) handleTestTeam(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}

	err := s.ctrl.TestTeamConnection(r.Context(), id)
	switch {
	case errors.Is(err, scheduler.ErrTeamNotFound):
		s.fail(w, http.StatusNotFound, err)
		return
	case err != nil:
		s.fail(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"teamId": id, "ok": true})
}

func (s *Server) handleRemoveTeam(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	s.ctrl.RemoveTeamMonitoring(id)
	s.respondStatus(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Health(r.Context()))
}

func (s *Server) handleResubmit(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}

	err := s.queue.Resubmit(r.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		s.fail(w, http.StatusNotFound, errors.New("no failed or skipped entry with this id"))
		return
	}
	if err != nil {
		s.fail(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": models.QueuePending})
}

func (s *Server) handleQueueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.queue.Stats(r.Context())
	if err != nil {
		s.fail(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) respondStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.ctrl.GetStatus(r.Context())
	if err != nil {
		s.fail(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		s.fail(w, http.StatusBadRequest, errors.New("invalid id"))
		return 0, false
	}
	return id, true
}

func (s *Server) fail(w http.ResponseWriter, code int, err error) {
	if code >= http.StatusInternalServerError {
		s.logger.Error("admin request failed", "status", code, "error", err)
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
