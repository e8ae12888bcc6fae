package rest

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"clinicsched/backend/internal/auth"
	"clinicsched/backend/internal/transport/payload"
)

// requestLogger logs one line per request after it completes.
func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Debug("request completed",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("request_id", middleware.GetReqID(r.Context())),
				slog.Int("status", ww.Status()),
				slog.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

// requireCaller verifies the bearer token and attaches the caller to the
// request context.
func requireCaller(verifier *auth.Verifier, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := auth.BearerToken(r.Header.Get("Authorization"))
			if err != nil {
				log.Info("unauthenticated", slog.String("path", r.URL.Path), slog.String("reason", "missing_token"))
				writeJSON(w, http.StatusUnauthorized, payload.ErrorResponse{Error: "authentication required"})
				return
			}
			caller, err := verifier.Verify(token)
			if err != nil {
				log.Info("unauthenticated", slog.String("path", r.URL.Path), slog.String("reason", "invalid_token"))
				writeJSON(w, http.StatusUnauthorized, payload.ErrorResponse{Error: "authentication required"})
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithCaller(r.Context(), caller)))
		})
	}
}
