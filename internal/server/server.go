// Package server exposes session state as JSON for an external dashboard.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/brandpulse/internal/model"
	"github.com/sells-group/brandpulse/internal/session"
)

// History reads stored audits. store.Store satisfies it.
type History interface {
	ListAudits(ctx context.Context, subjectID string, limit int) ([]model.AuditRecord, error)
}

// Option configures a Server.
type Option func(*Server)

// WithAllowedOrigins sets the CORS allowed origins.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) {
		if len(origins) > 0 {
			s.origins = origins
		}
	}
}

// Server serves the local API.
type Server struct {
	sessions *session.Manager
	history  History
	origins  []string
	log      *zap.Logger
}

// New creates a Server. history may be nil, in which case the audit
// history endpoint reports 503.
func New(sessions *session.Manager, history History, opts ...Option) *Server {
	s := &Server{
		sessions: sessions,
		history:  history,
		origins:  []string{"*"},
		log:      zap.L().With(zap.String("component", "server")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/subjects", s.handleSubjects)
	r.Route("/subjects/{id}", func(r chi.Router) {
		r.Get("/progress", s.handleProgress)
		r.Get("/audit", s.handleAudit)
		r.Post("/audit", s.handleStartAudit)
		r.Delete("/audit", s.handleCancelAudit)
		r.Get("/results", s.handleResults)
		r.Get("/audits", s.handleHistory)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSubjects(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"subjects": s.sessions.Subjects()})
}

// session returns the running session for the {id} path parameter,
// starting one if needed. It writes the error response itself.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	id := chi.URLParam(r, "id")
	sess, err := s.sessions.Get(id)
	if err != nil {
		s.log.Error("server: start session failed", zap.String("subject_id", id), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "session unavailable")
		return nil, false
	}
	return sess, true
}

// existing returns the session for the {id} path parameter without
// starting one. It writes a 404 when the subject is not followed.
func (s *Server) existing(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, ok := s.sessions.Lookup(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "no session for subject")
		return nil, false
	}
	return sess, true
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	u, ok := sess.Progress()
	if !ok {
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "polling", "subjectId": sess.SubjectID()})
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.existing(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.Audit())
}

func (s *Server) handleStartAudit(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	sess.StartAudit()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted", "subjectId": sess.SubjectID()})
}

func (s *Server) handleCancelAudit(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.existing(w, r)
	if !ok {
		return
	}
	sess.CancelAudit()
	writeJSON(w, http.StatusOK, sess.Audit())
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.existing(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	res, err := sess.Results(ctx)
	if err != nil {
		s.log.Warn("server: results unavailable", zap.String("subject_id", sess.SubjectID()), zap.Error(err))
		writeError(w, http.StatusBadGateway, "results unavailable")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, "audit history disabled")
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	id := chi.URLParam(r, "id")
	recs, err := s.history.ListAudits(r.Context(), id, limit)
	if err != nil {
		s.log.Error("server: list audits failed", zap.String("subject_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list audits failed")
		return
	}
	if recs == nil {
		recs = []model.AuditRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"subjectId": id, "audits": recs})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
