// Package server exposes the session manager over HTTP: starting runs,
// polling deltas, and terminating sessions.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/szaher/xcompanion/internal/session"
	"github.com/szaher/xcompanion/internal/xctest"
)

// Manager is the session manager instantiation the server fronts.
type Manager = session.Manager[xctest.RunRequest, xctest.Result]

// Server is the xcompanion HTTP server.
type Server struct {
	mux       *http.ServeMux
	server    *http.Server
	logger    *slog.Logger
	sessions  *Manager
	metrics   http.Handler
	startTime time.Time
	apiKey    string
}

// ServerOption configures the Server.
type ServerOption func(*Server)

// WithAPIKey sets the API key for authentication.
func WithAPIKey(key string) ServerOption {
	return func(s *Server) { s.apiKey = key }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = logger }
}

// WithMetricsHandler mounts a handler on GET /metrics.
func WithMetricsHandler(h http.Handler) ServerOption {
	return func(s *Server) { s.metrics = h }
}

// New creates the HTTP server around a session manager.
func New(sessions *Manager, opts ...ServerOption) *Server {
	s := &Server{
		sessions:  sessions,
		logger:    slog.Default(),
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /v1/xctest/runs", s.handleListRuns)
	mux.HandleFunc("POST /v1/xctest/runs", s.handleStartRun)
	mux.HandleFunc("GET /v1/xctest/runs/{id}", s.handlePollRun)
	mux.HandleFunc("DELETE /v1/xctest/runs/{id}", s.handleTerminateRun)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}

	s.mux = mux
	return s
}

// Handler returns the HTTP handler for use with httptest or custom servers.
func (s *Server) Handler() http.Handler {
	return s.authMiddleware(s.mux)
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.authMiddleware(s.mux),
	}
	s.logger.Info("server starting", "addr", addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Health check doesn't require auth
		if r.URL.Path == "/healthz" {
			next.ServeHTTP(w, r)
			return
		}

		if s.apiKey == "" {
			next.ServeHTTP(w, r)
			return
		}

		key := r.Header.Get("X-API-Key")
		if key == "" {
			auth := r.Header.Get("Authorization")
			if strings.HasPrefix(auth, "Bearer ") {
				key = auth[7:]
			}
		}

		if key != s.apiKey {
			writeError(w, http.StatusUnauthorized, "unauthorized", "Missing or invalid API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "healthy",
		"uptime":   time.Since(s.startTime).String(),
		"sessions": len(s.sessions.List(r.Context())),
	})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"runs": s.sessions.List(r.Context()),
	})
}

func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string            `json:"session_id,omitempty"`
		Run       xctest.RunRequest `json:"run"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	id, err := s.sessions.Start(r.Context(), req.SessionID, req.Run)
	if err != nil {
		writeManagerError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"session_id": id,
	})
}

func (s *Server) handlePollRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	cursor, err := parseCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	snap, err := s.sessions.Poll(r.Context(), id, cursor)
	if err != nil {
		writeManagerError(w, err)
		return
	}

	resp := map[string]interface{}{
		"id":         snap.Identifier,
		"state":      snap.State,
		"results":    snap.Results,
		"log_output": snap.LogOutput,
		"cursor":     formatCursor(snap.Next),
	}
	if snap.Err != nil {
		resp["error"] = snap.Err.Error()
	}
	if path, ok := snap.Metadata[xctest.MetaResultBundlePath]; ok {
		resp["result_bundle_path"] = path
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTerminateRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.sessions.Terminate(r.Context(), id); err != nil {
		writeManagerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeManagerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, session.ErrAlreadyExists):
		writeError(w, http.StatusConflict, "already_exists", err.Error())
	case errors.Is(err, session.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

// parseCursor accepts the opaque token handed out by a previous poll, a
// plain fragment count, or an empty string for "from the beginning".
func parseCursor(token string) (session.Cursor, error) {
	if token == "" {
		return session.Cursor{}, nil
	}
	var c session.Cursor
	if _, err := fmt.Sscanf(token, "r%d.l%d", &c.Results, &c.LogOffset); err == nil {
		return c, nil
	}
	if _, err := fmt.Sscanf(token, "%d", &c.Results); err == nil {
		return session.Cursor{Results: c.Results}, nil
	}
	return session.Cursor{}, fmt.Errorf("invalid cursor %q", token)
}

func formatCursor(c session.Cursor) string {
	return fmt.Sprintf("r%d.l%d", c.Results, c.LogOffset)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"error":   code,
		"message": message,
	})
}
