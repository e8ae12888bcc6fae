package appointments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"clinicsched/backend/internal/domain"
	"clinicsched/backend/internal/store"
)

var tracer = otel.Tracer("clinicsched/backend/internal/service/appointments")

type Service struct {
	repo     store.AppointmentRepository
	detector *ConflictDetector
	series   *SeriesEditor
	metrics  *Metrics
	log      *slog.Logger
}

type Option func(*Service)

func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithGroupIDs replaces the recurrence group id generator.
func WithGroupIDs(fn func() string) Option {
	return func(s *Service) { s.series = NewSeriesEditor(fn) }
}

func NewService(repo store.AppointmentRepository, categories store.CategoryReader, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		detector: NewConflictDetector(categories),
		series:   NewSeriesEditor(nil),
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type CreateResult struct {
	Appointments      []domain.Appointment
	RecurrenceGroupID string
	// Conflicts is non-empty only when the request overrode them.
	Conflicts []domain.ConflictFinding
	// Replayed is set when an idempotency key matched an earlier create.
	Replayed bool
}

type UpdateResult struct {
	Scope             SeriesScope
	Appointments      []domain.Appointment
	RecurrenceGroupID string
	SplitFromGroupID  string
	Conflicts         []domain.ConflictFinding
}

type DeleteResult struct {
	Scope             SeriesScope
	Deleted           int
	RecurrenceGroupID string
}

type ConflictReport struct {
	Occurrences int
	Findings    []domain.ConflictFinding
}

// Create validates the request, expands any recurrence and inserts one row
// per occurrence in a single transaction. Conflicting client appointments
// abort the whole create with a *ConflictError unless OverrideConflicts is set.
func (s *Service) Create(ctx context.Context, caller domain.Caller, req CreateRequest) (res CreateResult, err error) {
	ctx, span := tracer.Start(ctx, "appointments.Create")
	defer func() { s.finish(span, "create", err) }()

	if err := requireCaller(caller); err != nil {
		return CreateResult{}, err
	}
	plan, err := planCreate(req)
	if err != nil {
		return CreateResult{}, err
	}
	span.SetAttributes(
		attribute.Int64("provider_id", plan.template.ProviderID),
		attribute.Int("occurrences", len(plan.dates)),
		attribute.Bool("recurring", plan.recurring),
	)

	groupID := ""
	if plan.recurring {
		groupID = s.series.newGroupID()
	}
	key := strings.TrimSpace(req.IdempotencyKey)
	rows := buildRows(plan, groupID, key)

	var findings []domain.ConflictFinding
	err = s.repo.InProviderTransaction(ctx, []int64{plan.template.ProviderID}, func(ctx context.Context, tx store.SchedulingTx) error {
		if key != "" {
			stored, found, err := replayCreate(ctx, tx, rows)
			if err != nil {
				return err
			}
			if found {
				res = CreateResult{Appointments: stored, RecurrenceGroupID: stored[0].GroupID(), Replayed: true}
				return nil
			}
		}

		var err error
		findings, err = s.screenPlan(ctx, tx, plan)
		if err != nil {
			return err
		}
		if len(findings) > 0 && !req.OverrideConflicts {
			return &ConflictError{Findings: findings, Occurrences: len(plan.dates)}
		}

		inserted, err := tx.InsertAppointments(ctx, rows)
		if err != nil {
			return err
		}
		res = CreateResult{Appointments: inserted, RecurrenceGroupID: groupID, Conflicts: findings}
		return nil
	})
	if err != nil {
		var conflictErr *ConflictError
		if errors.As(err, &conflictErr) {
			s.metrics.ObserveConflicts(conflictErr.Findings, false)
		}
		return CreateResult{}, err
	}
	if res.Replayed {
		return res, nil
	}

	s.metrics.ObserveCreated(len(res.Appointments))
	if len(res.Conflicts) > 0 {
		s.metrics.ObserveConflicts(res.Conflicts, true)
		s.log.WarnContext(ctx, "conflicts overridden on create",
			slog.Int64("provider_id", plan.template.ProviderID),
			slog.String("user_id", caller.UserID),
			slog.Int("conflicts", len(res.Conflicts)),
			slog.String("recurrence_group_id", groupID),
		)
	}
	return res, nil
}

// CheckConflicts validates and expands req exactly like Create and reports
// the findings without writing anything.
func (s *Service) CheckConflicts(ctx context.Context, caller domain.Caller, req CreateRequest) (rep ConflictReport, err error) {
	ctx, span := tracer.Start(ctx, "appointments.CheckConflicts")
	defer func() { s.finish(span, "check_conflicts", err) }()

	if err := requireCaller(caller); err != nil {
		return ConflictReport{}, err
	}
	plan, err := planCreate(req)
	if err != nil {
		return ConflictReport{}, err
	}

	err = s.repo.InProviderTransaction(ctx, []int64{plan.template.ProviderID}, func(ctx context.Context, tx store.SchedulingTx) error {
		findings, err := s.screenPlan(ctx, tx, plan)
		if err != nil {
			return err
		}
		rep = ConflictReport{Occurrences: len(plan.dates), Findings: findings}
		return nil
	})
	if err != nil {
		return ConflictReport{}, err
	}
	return rep, nil
}

// Update applies the non-nil fields of req to the target row, or to the
// series rows selected by req.Scope. A future-scoped edit splits the group
// first so earlier occurrences stay untouched.
func (s *Service) Update(ctx context.Context, caller domain.Caller, req UpdateRequest) (res UpdateResult, err error) {
	ctx, span := tracer.Start(ctx, "appointments.Update", trace.WithAttributes(
		attribute.String("appointment_id", req.AppointmentID.String()),
		attribute.String("scope", string(req.Scope)),
	))
	defer func() { s.finish(span, "update", err) }()

	if err := requireCaller(caller); err != nil {
		return UpdateResult{}, err
	}
	patch, err := planUpdate(req)
	if err != nil {
		return UpdateResult{}, err
	}
	scope, err := ParseSeriesScope(string(req.Scope))
	if err != nil {
		return UpdateResult{}, err
	}

	current, err := s.repo.Get(ctx, req.AppointmentID)
	if err != nil {
		return UpdateResult{}, err
	}
	providers := []int64{current.ProviderID}
	if patch.providerID != nil {
		providers = append(providers, *patch.providerID)
	}

	err = s.repo.InProviderTransaction(ctx, providers, func(ctx context.Context, tx store.SchedulingTx) error {
		target, err := tx.GetAppointment(ctx, req.AppointmentID)
		if err != nil {
			return err
		}
		if target.ProviderID != current.ProviderID {
			return store.ErrConflict
		}
		if err := authorizeRows(caller, []domain.Appointment{target}); err != nil {
			return err
		}

		eff := EffectiveScope(target, scope)
		if eff != ScopeSingle && patch.date != nil && !sameDate(*patch.date, target.StartTime) {
			return validationError("event_date cannot change for a future or all series update")
		}

		targets, err := s.series.UpdateTargets(ctx, tx, target, eff)
		if err != nil {
			return err
		}
		if err := authorizeRows(caller, targets.Rows); err != nil {
			return err
		}

		updated := make([]domain.Appointment, len(targets.Rows))
		for i, row := range targets.Rows {
			updated[i] = patch.apply(row, eff != ScopeSingle)
		}

		var findings []domain.ConflictFinding
		if patch.needsScreening() {
			exclude := rowIDs(targets.Rows)
			for _, row := range updated {
				if row.IsAvailabilityBlock() || !row.Status.Screened() {
					continue
				}
				f, err := s.detector.Detect(ctx, tx, row.ProviderID, row.StartTime, row.DurationMinutes, exclude)
				if err != nil {
					return err
				}
				findings = append(findings, f...)
			}
			if len(findings) > 0 && !req.OverrideConflicts {
				return &ConflictError{Findings: findings, Occurrences: len(updated)}
			}
		}

		for i, row := range updated {
			saved, err := tx.UpdateAppointment(ctx, row)
			if err != nil {
				return err
			}
			updated[i] = saved
		}

		res = UpdateResult{
			Scope:             eff,
			Appointments:      updated,
			RecurrenceGroupID: targets.GroupID,
			SplitFromGroupID:  targets.SplitFrom,
			Conflicts:         findings,
		}
		return nil
	})
	if err != nil {
		var conflictErr *ConflictError
		if errors.As(err, &conflictErr) {
			s.metrics.ObserveConflicts(conflictErr.Findings, false)
		}
		return UpdateResult{}, err
	}

	s.metrics.ObserveUpdated(res.Scope, len(res.Appointments))
	if res.SplitFromGroupID != "" {
		s.metrics.ObserveSplit()
	}
	if len(res.Conflicts) > 0 {
		s.metrics.ObserveConflicts(res.Conflicts, true)
	}
	return res, nil
}

// Delete physically removes the target row, or the series rows selected by
// req.Scope, and reports how many rows were removed.
func (s *Service) Delete(ctx context.Context, caller domain.Caller, req DeleteRequest) (res DeleteResult, err error) {
	ctx, span := tracer.Start(ctx, "appointments.Delete", trace.WithAttributes(
		attribute.String("appointment_id", req.AppointmentID.String()),
		attribute.String("scope", string(req.Scope)),
	))
	defer func() { s.finish(span, "delete", err) }()

	if err := requireCaller(caller); err != nil {
		return DeleteResult{}, err
	}
	if req.AppointmentID == uuid.Nil {
		return DeleteResult{}, validationError("appointment_id is required")
	}
	scope, err := ParseSeriesScope(string(req.Scope))
	if err != nil {
		return DeleteResult{}, err
	}

	current, err := s.repo.Get(ctx, req.AppointmentID)
	if err != nil {
		return DeleteResult{}, err
	}

	err = s.repo.InProviderTransaction(ctx, []int64{current.ProviderID}, func(ctx context.Context, tx store.SchedulingTx) error {
		target, err := tx.GetAppointment(ctx, req.AppointmentID)
		if err != nil {
			return err
		}
		if target.ProviderID != current.ProviderID {
			return store.ErrConflict
		}
		group := strings.TrimSpace(req.RecurrenceGroupID)
		if group != "" && group != target.GroupID() {
			return store.ErrNotFound
		}

		eff := EffectiveScope(target, scope)
		rows, err := s.series.DeleteTargets(ctx, tx, target, eff)
		if err != nil {
			return err
		}
		if err := authorizeRows(caller, rows); err != nil {
			return err
		}

		n, err := s.series.Delete(ctx, tx, target, eff)
		if err != nil {
			return err
		}
		res = DeleteResult{Scope: eff, Deleted: n, RecurrenceGroupID: target.GroupID()}
		return nil
	})
	if err != nil {
		return DeleteResult{}, err
	}

	s.metrics.ObserveDeleted(res.Scope, res.Deleted)
	return res, nil
}

func (s *Service) Get(ctx context.Context, caller domain.Caller, id uuid.UUID) (appt domain.Appointment, err error) {
	ctx, span := tracer.Start(ctx, "appointments.Get")
	defer func() { s.finish(span, "get", err) }()

	if err := requireCaller(caller); err != nil {
		return domain.Appointment{}, err
	}
	if id == uuid.Nil {
		return domain.Appointment{}, validationError("appointment_id is required")
	}
	return s.repo.Get(ctx, id)
}

// ListSeries returns every occurrence of a recurrence group ordered by start time.
func (s *Service) ListSeries(ctx context.Context, caller domain.Caller, groupID string) (rows []domain.Appointment, err error) {
	ctx, span := tracer.Start(ctx, "appointments.ListSeries")
	defer func() { s.finish(span, "list_series", err) }()

	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	groupID = strings.TrimSpace(groupID)
	if groupID == "" {
		return nil, validationError("recurrence_group_id is required")
	}
	rows, err = s.repo.ListGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, store.ErrNotFound
	}
	return rows, nil
}

// Ready reports whether the backing store is reachable.
func (s *Service) Ready(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

func (s *Service) screenPlan(ctx context.Context, tx store.SchedulingTx, plan createPlan) ([]domain.ConflictFinding, error) {
	if plan.template.IsAvailabilityBlock() || !plan.template.Status.Screened() {
		return nil, nil
	}
	var findings []domain.ConflictFinding
	for _, date := range plan.dates {
		f, err := s.detector.Detect(ctx, tx, plan.template.ProviderID, plan.startOn(date), plan.template.DurationMinutes, nil)
		if err != nil {
			return nil, err
		}
		findings = append(findings, f...)
	}
	return findings, nil
}

func (s *Service) finish(span trace.Span, operation string, err error) {
	s.metrics.ObserveRequest(operation, err)
	if err != nil {
		span.RecordError(err)
		if outcome(err) == "error" {
			span.SetStatus(codes.Error, err.Error())
		}
	}
	span.End()
}

func buildRows(plan createPlan, groupID, idempotencyKey string) []domain.Appointment {
	rows := make([]domain.Appointment, len(plan.dates))
	for i, date := range plan.dates {
		row := plan.template
		row.Reschedule(plan.startOn(date), plan.template.DurationMinutes)
		row.SetGroup(groupID)
		if idempotencyKey != "" {
			row.ID = occurrenceID(row.ProviderID, idempotencyKey, i)
		}
		rows[i] = row
	}
	return rows
}

func occurrenceID(providerID int64, key string, n int) uuid.UUID {
	name := fmt.Sprintf("clinicsched:create_appointment:%d:%s:%d", providerID, key, n)
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name))
}

// replayCreate looks for rows stored by an earlier create with the same
// idempotency key. A stored create that differs from rows is an
// ErrIdempotencyConflict.
func replayCreate(ctx context.Context, tx store.SchedulingTx, rows []domain.Appointment) ([]domain.Appointment, bool, error) {
	first, err := tx.GetAppointment(ctx, rows[0].ID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	stored := []domain.Appointment{first}
	if first.GroupID() != "" {
		stored, err = tx.ListGroup(ctx, first.GroupID(), nil)
		if err != nil {
			return nil, false, err
		}
	}
	if len(stored) != len(rows) {
		return nil, false, store.ErrIdempotencyConflict
	}
	for i := range rows {
		if !sameBooking(stored[i], rows[i]) {
			return nil, false, store.ErrIdempotencyConflict
		}
	}
	return stored, true, nil
}

func sameBooking(stored, requested domain.Appointment) bool {
	return stored.ID == requested.ID &&
		stored.ProviderID == requested.ProviderID &&
		stored.ClientID == requested.ClientID &&
		stored.CategoryID == requested.CategoryID &&
		stored.StartTime.Equal(requested.StartTime) &&
		stored.DurationMinutes == requested.DurationMinutes &&
		stored.Title == requested.Title
}

func requireCaller(caller domain.Caller) error {
	if caller.UserID == "" {
		return validationError("caller is required")
	}
	return nil
}
