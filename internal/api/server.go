package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"ai-web-studio/internal/dispatch"
	"ai-web-studio/internal/llm"
	"ai-web-studio/internal/models"
	"ai-web-studio/internal/orchestrator"
	"ai-web-studio/internal/pipeline"
	"ai-web-studio/internal/ratelimit"
	"ai-web-studio/internal/telemetry"
)

// UserHeader carries the caller identity set by the authenticating proxy.
const UserHeader = "X-User-ID"

const (
	defaultListLimit = 50
	maxListLimit     = 200
	maxBodyBytes     = 4 << 20
)

// Service is the orchestration surface the handlers call.
type Service interface {
	CreateProject(ctx context.Context, userID string, params models.NewProjectParams) (models.Project, error)
	GetProject(ctx context.Context, userID, id string) (models.Project, error)
	ListProjects(ctx context.Context, userID string, limit int) ([]models.Project, error)
	Start(ctx context.Context, userID, projectID string) (models.Job, error)
	GetJob(ctx context.Context, userID, id string) (models.Job, error)
	Cancel(ctx context.Context, userID, jobID string) (models.Job, error)
	Complete(ctx context.Context, jobID string, r orchestrator.CallbackResult) (models.Job, error)
}

// Limiter decides whether a user may start another generation.
type Limiter interface {
	Allow(ctx context.Context, userID string) (ratelimit.Decision, error)
}

// DeadLetters exposes the worker dead-letter list.
type DeadLetters interface {
	DLQPeek(ctx context.Context, count int64) ([]string, error)
}

// Pinger reports whether a backing dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configure a Server. Limiter, DeadLetters and Health are optional; without
// a CallbackSecret the callback and dead-letter routes reject every request.
type Options struct {
	Service        Service
	Limiter        Limiter
	DeadLetters    DeadLetters
	Health         Pinger
	CallbackSecret string
	Logger         zerolog.Logger
}

// Server wires HTTP handlers for the studio API.
type Server struct {
	svc     Service
	limiter Limiter
	dlq     DeadLetters
	health  Pinger
	secret  string
	log     zerolog.Logger
}

// New constructs the API server.
func New(opts Options) *Server {
	return &Server{
		svc:     opts.Service,
		limiter: opts.Limiter,
		dlq:     opts.DeadLetters,
		health:  opts.Health,
		secret:  opts.CallbackSecret,
		log:     opts.Logger,
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.handleHealth)
	r.Mount("/metrics", telemetry.Handler())

	r.Group(func(r chi.Router) {
		r.Use(s.requireSecret)
		r.Post("/callbacks/jobs/{id}", s.handleCallback)
		r.Get("/dlq", s.handleDLQ)
	})

	r.Group(func(r chi.Router) {
		r.Use(requireUser)
		r.Post("/projects", s.handleCreateProject)
		r.Get("/projects", s.handleListProjects)
		r.Get("/projects/{id}", s.handleGetProject)
		r.Post("/projects/{id}/generate", s.handleGenerate)
		r.Get("/jobs/{id}", s.handleGetJob)
		r.Post("/jobs/{id}/cancel", s.handleCancel)
	})
	return r
}

type userKey struct{}

func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := strings.TrimSpace(r.Header.Get(UserHeader))
		if user == "" {
			writeError(w, http.StatusUnauthorized, UserHeader+" header is required")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey{}, user)))
	})
}

func userFrom(r *http.Request) string {
	v, _ := r.Context().Value(userKey{}).(string)
	return v
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health.Ping(r.Context()); err != nil {
			s.log.Warn().Err(err).Msg("health check")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req models.NewProjectParams
	if !decode(w, r, &req) {
		return
	}
	p, err := s.svc.CreateProject(r.Context(), userFrom(r), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxListLimit)
	}
	items, err := s.svc.ListProjects(r.Context(), userFrom(r), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if items == nil {
		items = []models.Project{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	p, err := s.svc.GetProject(r.Context(), userFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r)
	if s.limiter != nil {
		d, err := s.limiter.Allow(r.Context(), user)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		if !d.Allowed {
			telemetry.RateLimitRejects.Inc()
			if d.RetryAfter > 0 {
				w.Header().Set("Retry-After", strconv.Itoa(int(d.RetryAfter/time.Second)))
			}
			writeError(w, http.StatusTooManyRequests, "too many generation requests")
			return
		}
	}
	job, err := s.svc.Start(r.Context(), user, chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.svc.GetJob(r.Context(), userFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	job, err := s.svc.Cancel(r.Context(), userFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// requireSecret admits automation-engine and operator requests carrying the
// shared secret. With no secret configured every request is rejected.
func (s *Server) requireSecret(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get(dispatch.SecretHeader)
		if s.secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(s.secret)) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid secret")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.CallbackResult
	if !decode(w, r, &req) {
		return
	}
	job, err := s.svc.Complete(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// handleDLQ returns the IDs of dead-lettered jobs.
func (s *Server) handleDLQ(w http.ResponseWriter, r *http.Request) {
	if s.dlq == nil {
		writeJSON(w, http.StatusOK, map[string]any{"items": []string{}})
		return
	}
	items, err := s.dlq.DLQPeek(r.Context(), 100)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if items == nil {
		items = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return false
	}
	return true
}

// statusFor maps domain errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrActiveJob), errors.Is(err, models.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, dispatch.ErrDispatchFailed),
		errors.Is(err, pipeline.ErrStageFailed),
		errors.Is(err, llm.ErrUpstreamUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		s.log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		msg = "internal error"
	}
	writeError(w, code, msg)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
