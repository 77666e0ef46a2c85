// Package api serves a small local status endpoint so an operator can
// watch a run without tailing logs. Enabled only when STATUS_ADDR is
// set.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/mkuran/shopbot/internal/models"
)

// SnapshotFunc supplies the current run state.
type SnapshotFunc func() models.RunSnapshot

type Server struct {
	server   *http.Server
	logger   *slog.Logger
	snapshot SnapshotFunc
}

func NewServer(addr string, snapshot SnapshotFunc) *Server {
	s := &Server{
		logger:   slog.Default().With("component", "api"),
		snapshot: snapshot,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"http://localhost:*", "https://localhost:*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealth)
	r.Get("/status", s.handleStatus)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Start serves in the background; a listen failure is logged, not
// fatal, since the endpoint is a convenience.
func (s *Server) Start() {
	go func() {
		s.logger.Info("status endpoint listening", "addr", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Warn("status endpoint stopped", "error", err)
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) {
	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Warn("status endpoint shutdown failed", "error", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, s.snapshot())
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}
