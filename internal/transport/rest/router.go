// Package rest serves the scheduling API as JSON over HTTP.
package rest

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"clinicsched/backend/internal/auth"
)

type Config struct {
	Service  schedulingService
	Verifier *auth.Verifier
	// Ready backs /readyz; nil means always ready.
	Ready   func(ctx context.Context) error
	Metrics http.Handler
	Logger  *slog.Logger
}

func NewRouter(cfg Config) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("component", "http"))
	h := &handler{svc: cfg.Service, log: log}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(log))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if cfg.Ready != nil {
			if err := cfg.Ready(r.Context()); err != nil {
				log.Warn("readiness check failed", slog.Any("err", err))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(requireCaller(cfg.Verifier, log))
		r.Post("/appointments", h.createAppointment)
		r.Post("/appointments/conflicts", h.checkConflicts)
		r.Get("/appointments/{appointmentID}", h.getAppointment)
		r.Patch("/appointments/{appointmentID}", h.updateAppointment)
		r.Delete("/appointments/{appointmentID}", h.deleteAppointment)
		r.Get("/series/{groupID}", h.listSeries)
	})
	return r
}
