// Package handler exposes the exam vault over a JSON HTTP API.
package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pavelanni/examvault/internal/attempt"
	"github.com/pavelanni/examvault/internal/exam"
	"github.com/pavelanni/examvault/internal/model"
	"github.com/pavelanni/examvault/internal/store"
)

// maxUploadSize bounds question set uploads.
const maxUploadSize = 4 << 20

// Config holds the HTTP layer settings.
type Config struct {
	JWTSecret      []byte
	TokenTTL       time.Duration
	SecureCookies  bool
	CORSOrigins    []string
	RateLimitRPS   float64
	RateLimitBurst int
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	repo     store.Repository
	exams    *exam.Service
	attempts *attempt.Engine
	config   Config
	now      func() time.Time
}

// New creates a new Handler.
func New(repo store.Repository, exams *exam.Service, attempts *attempt.Engine, cfg Config) (*Handler, error) {
	if len(cfg.JWTSecret) == 0 {
		return nil, fmt.Errorf("jwt secret is required")
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	return &Handler{repo: repo, exams: exams, attempts: attempts, config: cfg, now: time.Now}, nil
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/health", h.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/users/auth", h.handleLogin)
		r.Post("/users/logout", h.handleLogout)

		r.Group(func(r chi.Router) {
			r.Use(h.requireAuth)

			r.Route("/admin", func(r chi.Router) {
				r.Use(requireRole(model.UserRoleAdmin))
				r.Post("/users", h.handleCreateUser)
				r.Get("/requests", h.handleListRequests)
				r.Get("/requests/{id}", h.handleRequestDetails)
				r.Put("/requests/{id}", h.handleDecide)
				r.Get("/dashboard", h.handleDashboard)
			})

			r.Route("/upload", func(r chi.Router) {
				r.Use(requireRole(model.UserRoleInstitute))
				r.Post("/", h.handleUpload)
				r.Get("/my-uploads", h.handleMyUploads)
				r.Get("/{id}", h.handleUploadDetails)
			})

			r.Route("/exams", func(r chi.Router) {
				r.With(requireRole(model.UserRoleStudent)).Get("/available", h.handleAvailableExams)
				r.With(requireRole(model.UserRoleStudent)).Get("/my-results", h.handleMyResults)
				r.With(requireRole(model.UserRoleStudent)).Post("/{id}/start", h.handleStartExam)
				r.With(requireRole(model.UserRoleStudent)).Post("/{id}/submit", h.handleSubmitExam)
				r.With(requireRole(model.UserRoleInstitute)).Get("/{id}/results", h.handleExamResults)
				r.With(requireRole(model.UserRoleInstitute)).Post("/{id}/release", h.handleReleaseResults)
			})
		})
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if _, err := h.repo.UserCount(r.Context()); err != nil {
		slog.Error("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxUploadSize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %w", errBadRequest, err)
	}
	return nil
}
