// Package api exposes the HTTP interface for the archiver service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sakuramoe/galarc/internal/gallery"
	"github.com/sakuramoe/galarc/internal/metrics"
	"github.com/sakuramoe/galarc/internal/vote"
)

// challengeSource picks random high-scored images for the guessing game.
type challengeSource interface {
	ChallengeCandidates(ctx context.Context, limit int) ([]gallery.ChallengeCandidate, error)
}

// Config controls the HTTP server.
type Config struct {
	// APIKey, when set, is required on every /v1 request.
	APIKey string
}

// Server wires HTTP handlers to the repositories and the vote service.
type Server struct {
	router    chi.Router
	repo      gallery.Repo
	votes     *vote.Service
	challenge challengeSource
	clock     gallery.Clock
	cfg       Config
	logger    *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	repo gallery.Repo,
	votes *vote.Service,
	challenge challengeSource,
	clock gallery.Clock,
	cfg Config,
	logger *zap.Logger,
) *Server {
	s := &Server{
		repo:      repo,
		votes:     votes,
		challenge: challenge,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(30 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.healthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.APIKey != "" {
			r.Use(apiKeyMiddleware(cfg.APIKey))
		}
		r.Route("/galleries", func(r chi.Router) {
			r.Get("/top", s.listTop)
			r.Route("/{gallery_id}", func(r chi.Router) {
				r.Get("/", s.getGallery)
				r.Delete("/", s.deleteGallery)
			})
		})
		r.Route("/polls/{poll_id}", func(r chi.Router) {
			r.Get("/", s.getPoll)
			r.Post("/votes", s.castVote)
		})
		r.Get("/challenge", s.getChallenge)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// listTop serves the best-of list for a date range, paginated.
func (s *Server) listTop(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	now := s.clock.Now()
	from := now.AddDate(0, 0, -30)
	to := now
	var err error
	if v := q.Get("from"); v != "" {
		if from, err = time.Parse("2006-01-02", v); err != nil {
			writeError(w, http.StatusBadRequest, "invalid from date")
			return
		}
	}
	if v := q.Get("to"); v != "" {
		if to, err = time.Parse("2006-01-02", v); err != nil {
			writeError(w, http.StatusBadRequest, "invalid to date")
			return
		}
	}

	limit := intParam(q.Get("limit"), 20)
	if limit < 1 || limit > 100 {
		limit = 20
	}
	offset := intParam(q.Get("offset"), 0)

	out, err := s.repo.ListTopScored(r.Context(), from, to, limit, offset)
	if err != nil {
		s.logger.Error("list top failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"galleries": out})
}

func (s *Server) getGallery(w http.ResponseWriter, r *http.Request) {
	id, ok := galleryIDParam(w, r)
	if !ok {
		return
	}
	rec, err := s.repo.Get(r.Context(), id)
	if err != nil {
		s.logger.Error("get gallery failed", zap.Uint32("gallery_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "gallery not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"gallery": rec})
}

// deleteGallery soft-deletes by default; purge=true removes the rows outright.
func (s *Server) deleteGallery(w http.ResponseWriter, r *http.Request) {
	id, ok := galleryIDParam(w, r)
	if !ok {
		return
	}

	var err error
	if r.URL.Query().Get("purge") == "true" {
		err = s.repo.HardDelete(r.Context(), id)
	} else {
		err = s.repo.SetDeleted(r.Context(), id, true)
	}
	if err != nil {
		s.logger.Error("delete gallery failed", zap.Uint32("gallery_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "delete failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"gallery_id": id, "deleted": true})
}

func (s *Server) getPoll(w http.ResponseWriter, r *http.Request) {
	pollID, err := strconv.ParseInt(chi.URLParam(r, "poll_id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid poll id")
		return
	}

	hist, err := s.votes.Histogram(r.Context(), pollID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	rank, err := s.votes.Rank(r.Context(), pollID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"poll_id":   pollID,
		"histogram": hist,
		"rank":      rank,
	})
}

type voteRequest struct {
	UserID int64 `json:"user_id"`
	Option int   `json:"option"`
}

func (s *Server) castVote(w http.ResponseWriter, r *http.Request) {
	pollID, err := strconv.ParseInt(chi.URLParam(r, "poll_id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid poll id")
		return
	}

	var req voteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == 0 {
		writeError(w, http.StatusBadRequest, "invalid vote payload")
		return
	}

	score, err := s.votes.Cast(r.Context(), req.UserID, pollID, req.Option)
	switch {
	case errors.Is(err, vote.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"poll_id": pollID, "score": score})
}

func (s *Server) getChallenge(w http.ResponseWriter, r *http.Request) {
	limit := intParam(r.URL.Query().Get("limit"), 1)
	if limit < 1 || limit > 20 {
		limit = 1
	}
	picks, err := s.challenge.ChallengeCandidates(r.Context(), limit)
	if err != nil {
		s.logger.Error("challenge pick failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"candidates": picks})
}

func galleryIDParam(w http.ResponseWriter, r *http.Request) (uint32, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "gallery_id"), 10, 32)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid gallery id")
		return 0, false
	}
	return uint32(id), true
}

func intParam(raw string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

type requestIDKey struct{}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("panic", rec))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("X-API-Key") != expected {
				writeError(w, http.StatusUnauthorized, "invalid api key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
