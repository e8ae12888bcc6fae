package grpc

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"clinicsched/backend/internal/auth"
	"clinicsched/backend/internal/domain"
	"clinicsched/backend/internal/service/appointments"
	"clinicsched/backend/internal/store"
	"clinicsched/backend/internal/transport/payload"
)

type AppointmentsServer struct {
	svc schedulingService
	log *slog.Logger
}

var _ SchedulingServer = (*AppointmentsServer)(nil)

type schedulingService interface {
	Create(ctx context.Context, caller domain.Caller, req appointments.CreateRequest) (appointments.CreateResult, error)
	CheckConflicts(ctx context.Context, caller domain.Caller, req appointments.CreateRequest) (appointments.ConflictReport, error)
	Update(ctx context.Context, caller domain.Caller, req appointments.UpdateRequest) (appointments.UpdateResult, error)
	Delete(ctx context.Context, caller domain.Caller, req appointments.DeleteRequest) (appointments.DeleteResult, error)
	Get(ctx context.Context, caller domain.Caller, id uuid.UUID) (domain.Appointment, error)
	ListSeries(ctx context.Context, caller domain.Caller, groupID string) ([]domain.Appointment, error)
}

func NewAppointmentsServer(svc schedulingService, log *slog.Logger) *AppointmentsServer {
	if log == nil {
		log = slog.Default()
	}
	return &AppointmentsServer{
		svc: svc,
		log: log.With(slog.String("component", "grpc.appointments")),
	}
}

func (s *AppointmentsServer) CreateAppointment(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "CreateAppointment"))

	caller, err := callerFrom(ctx, log)
	if err != nil {
		return nil, err
	}
	var req payload.CreateRequest
	if err := decodeStruct(in, &req); err != nil {
		log.Warn("invalid request", slog.String("reason", "malformed_payload"), slog.Any("err", err))
		return nil, status.Error(codes.InvalidArgument, "malformed request")
	}

	res, err := s.svc.Create(ctx, caller, req.ToService(idempotencyKey(ctx)))
	if err != nil {
		return nil, s.fail(log, "appointment create", err, slog.Int64("provider_id", req.ProviderID), slog.String("user_id", caller.UserID))
	}

	log.Info(
		"appointments created",
		slog.Int64("provider_id", req.ProviderID),
		slog.String("user_id", caller.UserID),
		slog.Int("occurrences", len(res.Appointments)),
		slog.String("recurrence_group_id", res.RecurrenceGroupID),
		slog.Int("conflicts_overridden", len(res.Conflicts)),
		slog.Bool("replayed", res.Replayed),
	)
	return respond(log, payload.FromCreateResult(res))
}

func (s *AppointmentsServer) CheckConflicts(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "CheckConflicts"))

	caller, err := callerFrom(ctx, log)
	if err != nil {
		return nil, err
	}
	var req payload.CreateRequest
	if err := decodeStruct(in, &req); err != nil {
		log.Warn("invalid request", slog.String("reason", "malformed_payload"), slog.Any("err", err))
		return nil, status.Error(codes.InvalidArgument, "malformed request")
	}

	rep, err := s.svc.CheckConflicts(ctx, caller, req.ToService(""))
	if err != nil {
		return nil, s.fail(log, "conflict check", err, slog.Int64("provider_id", req.ProviderID))
	}

	log.Debug("conflicts checked", slog.Int64("provider_id", req.ProviderID), slog.Int("findings", len(rep.Findings)))
	return respond(log, payload.FromConflictReport(rep))
}

func (s *AppointmentsServer) UpdateAppointment(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "UpdateAppointment"))

	caller, err := callerFrom(ctx, log)
	if err != nil {
		return nil, err
	}
	var req payload.UpdateRequest
	if err := decodeStruct(in, &req); err != nil {
		log.Warn("invalid request", slog.String("reason", "malformed_payload"), slog.Any("err", err))
		return nil, status.Error(codes.InvalidArgument, "malformed request")
	}
	upd, err := req.ToService()
	if err != nil {
		return nil, s.fail(log, "appointment update", err, slog.String("appointment_id", req.AppointmentID))
	}

	res, err := s.svc.Update(ctx, caller, upd)
	if err != nil {
		return nil, s.fail(log, "appointment update", err, slog.String("appointment_id", req.AppointmentID), slog.String("user_id", caller.UserID))
	}

	log.Info(
		"appointments updated",
		slog.String("appointment_id", req.AppointmentID),
		slog.String("scope", string(res.Scope)),
		slog.Int("rows", len(res.Appointments)),
		slog.String("recurrence_group_id", res.RecurrenceGroupID),
		slog.String("split_from_group_id", res.SplitFromGroupID),
	)
	return respond(log, payload.FromUpdateResult(res))
}

func (s *AppointmentsServer) DeleteAppointment(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "DeleteAppointment"))

	caller, err := callerFrom(ctx, log)
	if err != nil {
		return nil, err
	}
	var req payload.DeleteRequest
	if err := decodeStruct(in, &req); err != nil {
		log.Warn("invalid request", slog.String("reason", "malformed_payload"), slog.Any("err", err))
		return nil, status.Error(codes.InvalidArgument, "malformed request")
	}
	del, err := req.ToService()
	if err != nil {
		return nil, s.fail(log, "appointment delete", err, slog.String("appointment_id", req.AppointmentID))
	}

	res, err := s.svc.Delete(ctx, caller, del)
	if err != nil {
		return nil, s.fail(log, "appointment delete", err, slog.String("appointment_id", req.AppointmentID), slog.String("user_id", caller.UserID))
	}

	log.Info(
		"appointments deleted",
		slog.String("appointment_id", req.AppointmentID),
		slog.String("scope", string(res.Scope)),
		slog.Int("deleted", res.Deleted),
	)
	return respond(log, payload.FromDeleteResult(res))
}

func (s *AppointmentsServer) GetAppointment(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "GetAppointment"))

	caller, err := callerFrom(ctx, log)
	if err != nil {
		return nil, err
	}
	var req payload.GetRequest
	if err := decodeStruct(in, &req); err != nil {
		log.Warn("invalid request", slog.String("reason", "malformed_payload"), slog.Any("err", err))
		return nil, status.Error(codes.InvalidArgument, "malformed request")
	}
	id, err := payload.ParseAppointmentID(req.AppointmentID)
	if err != nil {
		return nil, s.fail(log, "appointment get", err)
	}

	appt, err := s.svc.Get(ctx, caller, id)
	if err != nil {
		return nil, s.fail(log, "appointment get", err, slog.String("appointment_id", id.String()))
	}

	log.Debug("appointment fetched", slog.String("appointment_id", id.String()))
	return respond(log, payload.FromAppointment(appt))
}

func (s *AppointmentsServer) ListSeries(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "ListSeries"))

	caller, err := callerFrom(ctx, log)
	if err != nil {
		return nil, err
	}
	var req payload.ListSeriesRequest
	if err := decodeStruct(in, &req); err != nil {
		log.Warn("invalid request", slog.String("reason", "malformed_payload"), slog.Any("err", err))
		return nil, status.Error(codes.InvalidArgument, "malformed request")
	}

	rows, err := s.svc.ListSeries(ctx, caller, req.RecurrenceGroupID)
	if err != nil {
		return nil, s.fail(log, "series list", err, slog.String("recurrence_group_id", req.RecurrenceGroupID))
	}

	log.Debug("series listed", slog.String("recurrence_group_id", req.RecurrenceGroupID), slog.Int("count", len(rows)))
	return respond(log, payload.SeriesResponse{
		RecurrenceGroupID: req.RecurrenceGroupID,
		Appointments:      payload.FromAppointments(rows),
	})
}

// fail logs err at the level its class deserves and maps it to a status.
func (s *AppointmentsServer) fail(log *slog.Logger, op string, err error, attrs ...any) error {
	args := append([]any{slog.Any("err", err)}, attrs...)

	var vErr *appointments.ValidationError
	if errors.As(err, &vErr) {
		log.Warn("invalid request", args...)
		return status.Error(codes.InvalidArgument, vErr.Error())
	}

	var conflictErr *appointments.ConflictError
	if errors.As(err, &conflictErr) {
		log.Info(op+" conflict", append(args, slog.Int("findings", len(conflictErr.Findings)))...)
		return conflictStatus(log, conflictErr)
	}

	switch {
	case errors.Is(err, store.ErrIdempotencyConflict):
		log.Info(op+" idempotency conflict", args...)
		return status.Error(codes.FailedPrecondition, "This request key was already used for a different appointment. Try again.")
	case errors.Is(err, store.ErrConflict):
		log.Info(op+" concurrent modification", args...)
		return status.Error(codes.Aborted, "The appointment changed while saving. Try again.")
	case errors.Is(err, store.ErrNotFound):
		log.Info("appointment not found", args...)
		return status.Error(codes.NotFound, "appointment not found")
	case errors.Is(err, appointments.ErrForbidden):
		log.Info(op+" forbidden", args...)
		return status.Error(codes.PermissionDenied, "only the owning provider may change an availability block")
	case errors.Is(err, context.DeadlineExceeded):
		log.Warn(op+" timed out", args...)
		return status.Error(codes.DeadlineExceeded, "request timed out")
	case errors.Is(err, context.Canceled):
		log.Info(op+" canceled", args...)
		return status.Error(codes.Canceled, "request canceled")
	}

	log.Error(op+" failed", args...)
	return status.Error(codes.Internal, "internal error")
}

// conflictStatus carries the structured findings as a status detail.
func conflictStatus(log *slog.Logger, err *appointments.ConflictError) error {
	st := status.New(codes.FailedPrecondition, "The requested time conflicts with existing bookings. Retry with overrideConflicts to book anyway.")
	detail, encErr := encodeStruct(payload.FromConflictError(err))
	if encErr != nil {
		log.Error("conflict detail encode failed", slog.Any("err", encErr))
		return st.Err()
	}
	withDetail, encErr := st.WithDetails(detail)
	if encErr != nil {
		log.Error("conflict detail attach failed", slog.Any("err", encErr))
		return st.Err()
	}
	return withDetail.Err()
}

func respond(log *slog.Logger, v any) (*structpb.Struct, error) {
	out, err := encodeStruct(v)
	if err != nil {
		log.Error("response encode failed", slog.Any("err", err))
		return nil, status.Error(codes.Internal, "internal error")
	}
	return out, nil
}

func callerFrom(ctx context.Context, log *slog.Logger) (domain.Caller, error) {
	caller, ok := auth.CallerFromContext(ctx)
	if !ok || caller.UserID == "" {
		log.Info("unauthenticated", slog.String("reason", "no_caller"))
		return domain.Caller{}, status.Error(codes.Unauthenticated, "authentication required")
	}
	return caller, nil
}

func idempotencyKey(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get("idempotency-key")
	if len(values) == 0 {
		values = md.Get("x-idempotency-key")
	}
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}
