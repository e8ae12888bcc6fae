package rest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"clinicsched/backend/internal/auth"
	"clinicsched/backend/internal/domain"
	"clinicsched/backend/internal/service/appointments"
	"clinicsched/backend/internal/store"
	"clinicsched/backend/internal/transport/payload"
)

const maxBodyBytes = 1 << 20

type schedulingService interface {
	Create(ctx context.Context, caller domain.Caller, req appointments.CreateRequest) (appointments.CreateResult, error)
	CheckConflicts(ctx context.Context, caller domain.Caller, req appointments.CreateRequest) (appointments.ConflictReport, error)
	Update(ctx context.Context, caller domain.Caller, req appointments.UpdateRequest) (appointments.UpdateResult, error)
	Delete(ctx context.Context, caller domain.Caller, req appointments.DeleteRequest) (appointments.DeleteResult, error)
	Get(ctx context.Context, caller domain.Caller, id uuid.UUID) (domain.Appointment, error)
	ListSeries(ctx context.Context, caller domain.Caller, groupID string) ([]domain.Appointment, error)
}

type handler struct {
	svc schedulingService
	log *slog.Logger
}

func (h *handler) createAppointment(w http.ResponseWriter, r *http.Request) {
	log := h.log.With(slog.String("route", "create_appointment"))
	caller, _ := auth.CallerFromContext(r.Context())

	var req payload.CreateRequest
	if !decodeBody(w, r, log, &req) {
		return
	}

	res, err := h.svc.Create(r.Context(), caller, req.ToService(strings.TrimSpace(r.Header.Get("Idempotency-Key"))))
	if err != nil {
		h.fail(w, log, "appointment create", err, slog.Int64("provider_id", req.ProviderID), slog.String("user_id", caller.UserID))
		return
	}

	log.Info("appointments created",
		slog.Int64("provider_id", req.ProviderID),
		slog.String("user_id", caller.UserID),
		slog.Int("occurrences", len(res.Appointments)),
		slog.String("recurrence_group_id", res.RecurrenceGroupID),
		slog.Int("conflicts_overridden", len(res.Conflicts)),
	)
	code := http.StatusCreated
	if res.Replayed {
		code = http.StatusOK
	}
	writeJSON(w, code, payload.FromCreateResult(res))
}

func (h *handler) checkConflicts(w http.ResponseWriter, r *http.Request) {
	log := h.log.With(slog.String("route", "check_conflicts"))
	caller, _ := auth.CallerFromContext(r.Context())

	var req payload.CreateRequest
	if !decodeBody(w, r, log, &req) {
		return
	}

	rep, err := h.svc.CheckConflicts(r.Context(), caller, req.ToService(""))
	if err != nil {
		h.fail(w, log, "conflict check", err, slog.Int64("provider_id", req.ProviderID))
		return
	}
	writeJSON(w, http.StatusOK, payload.FromConflictReport(rep))
}

func (h *handler) getAppointment(w http.ResponseWriter, r *http.Request) {
	log := h.log.With(slog.String("route", "get_appointment"))
	caller, _ := auth.CallerFromContext(r.Context())

	id, err := payload.ParseAppointmentID(chi.URLParam(r, "appointmentID"))
	if err != nil {
		h.fail(w, log, "appointment get", err)
		return
	}
	appt, err := h.svc.Get(r.Context(), caller, id)
	if err != nil {
		h.fail(w, log, "appointment get", err, slog.String("appointment_id", id.String()))
		return
	}
	writeJSON(w, http.StatusOK, payload.FromAppointment(appt))
}

func (h *handler) updateAppointment(w http.ResponseWriter, r *http.Request) {
	log := h.log.With(slog.String("route", "update_appointment"))
	caller, _ := auth.CallerFromContext(r.Context())

	var req payload.UpdateRequest
	if !decodeBody(w, r, log, &req) {
		return
	}
	req.AppointmentID = chi.URLParam(r, "appointmentID")
	upd, err := req.ToService()
	if err != nil {
		h.fail(w, log, "appointment update", err, slog.String("appointment_id", req.AppointmentID))
		return
	}

	res, err := h.svc.Update(r.Context(), caller, upd)
	if err != nil {
		h.fail(w, log, "appointment update", err, slog.String("appointment_id", req.AppointmentID), slog.String("user_id", caller.UserID))
		return
	}

	log.Info("appointments updated",
		slog.String("appointment_id", req.AppointmentID),
		slog.String("scope", string(res.Scope)),
		slog.Int("rows", len(res.Appointments)),
		slog.String("split_from_group_id", res.SplitFromGroupID),
	)
	writeJSON(w, http.StatusOK, payload.FromUpdateResult(res))
}

// deleteAppointment reads the series scope from the query string, or from a
// JSON body shaped like payload.DeleteRequest.
func (h *handler) deleteAppointment(w http.ResponseWriter, r *http.Request) {
	log := h.log.With(slog.String("route", "delete_appointment"))
	caller, _ := auth.CallerFromContext(r.Context())

	var req payload.DeleteRequest
	if r.ContentLength > 0 {
		if !decodeBody(w, r, log, &req) {
			return
		}
	}
	req.AppointmentID = chi.URLParam(r, "appointmentID")
	if q := r.URL.Query(); q.Get("scope") != "" || q.Get("recurrenceGroupId") != "" {
		req.SeriesData = &payload.SeriesData{Scope: q.Get("scope"), RecurrenceGroupID: q.Get("recurrenceGroupId")}
	}

	del, err := req.ToService()
	if err != nil {
		h.fail(w, log, "appointment delete", err, slog.String("appointment_id", req.AppointmentID))
		return
	}
	res, err := h.svc.Delete(r.Context(), caller, del)
	if err != nil {
		h.fail(w, log, "appointment delete", err, slog.String("appointment_id", req.AppointmentID), slog.String("user_id", caller.UserID))
		return
	}

	log.Info("appointments deleted",
		slog.String("appointment_id", req.AppointmentID),
		slog.String("scope", string(res.Scope)),
		slog.Int("deleted", res.Deleted),
	)
	writeJSON(w, http.StatusOK, payload.FromDeleteResult(res))
}

func (h *handler) listSeries(w http.ResponseWriter, r *http.Request) {
	log := h.log.With(slog.String("route", "list_series"))
	caller, _ := auth.CallerFromContext(r.Context())
	groupID := chi.URLParam(r, "groupID")

	rows, err := h.svc.ListSeries(r.Context(), caller, groupID)
	if err != nil {
		h.fail(w, log, "series list", err, slog.String("recurrence_group_id", groupID))
		return
	}
	writeJSON(w, http.StatusOK, payload.SeriesResponse{RecurrenceGroupID: groupID, Appointments: payload.FromAppointments(rows)})
}

func (h *handler) fail(w http.ResponseWriter, log *slog.Logger, op string, err error, attrs ...any) {
	args := append([]any{slog.Any("err", err)}, attrs...)

	var vErr *appointments.ValidationError
	if errors.As(err, &vErr) {
		log.Warn("invalid request", args...)
		writeJSON(w, http.StatusBadRequest, payload.ErrorResponse{Error: vErr.Error()})
		return
	}

	var conflictErr *appointments.ConflictError
	if errors.As(err, &conflictErr) {
		log.Info(op+" conflict", append(args, slog.Int("findings", len(conflictErr.Findings)))...)
		writeJSON(w, http.StatusConflict, payload.FromConflictError(conflictErr))
		return
	}

	switch {
	case errors.Is(err, store.ErrIdempotencyConflict):
		log.Info(op+" idempotency conflict", args...)
		writeJSON(w, http.StatusConflict, payload.ErrorResponse{Error: "This request key was already used for a different appointment. Try again."})
	case errors.Is(err, store.ErrConflict):
		log.Info(op+" concurrent modification", args...)
		writeJSON(w, http.StatusConflict, payload.ErrorResponse{Error: "The appointment changed while saving. Try again."})
	case errors.Is(err, store.ErrNotFound):
		log.Info("appointment not found", args...)
		writeJSON(w, http.StatusNotFound, payload.ErrorResponse{Error: "appointment not found"})
	case errors.Is(err, appointments.ErrForbidden):
		log.Info(op+" forbidden", args...)
		writeJSON(w, http.StatusForbidden, payload.ErrorResponse{Error: "only the owning provider may change an availability block"})
	case errors.Is(err, context.DeadlineExceeded):
		log.Warn(op+" timed out", args...)
		writeJSON(w, http.StatusGatewayTimeout, payload.ErrorResponse{Error: "request timed out"})
	default:
		log.Error(op+" failed", args...)
		writeJSON(w, http.StatusInternalServerError, payload.ErrorResponse{Error: "internal error"})
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, log *slog.Logger, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		log.Warn("invalid request", slog.String("reason", "malformed_payload"), slog.Any("err", err))
		writeJSON(w, http.StatusBadRequest, payload.ErrorResponse{Error: "malformed request"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
