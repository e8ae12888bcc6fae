package appointments

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"clinicsched/backend/internal/domain"
)

const (
	dateLayout         = "2006-01-02"
	maxDurationMinutes = 24 * 60
	maxIdempotencyKey  = 256
)

type SeriesScope string

const (
	ScopeSingle SeriesScope = "single"
	ScopeFuture SeriesScope = "future"
	ScopeAll    SeriesScope = "all"
)

// ParseSeriesScope accepts the external scope names. An empty value means single.
func ParseSeriesScope(s string) (SeriesScope, error) {
	switch SeriesScope(strings.ToLower(strings.TrimSpace(s))) {
	case "", ScopeSingle:
		return ScopeSingle, nil
	case ScopeFuture:
		return ScopeFuture, nil
	case ScopeAll:
		return ScopeAll, nil
	}
	return "", validationError("scope must be single, future or all")
}

const (
	TerminationCount = "count"
	TerminationDate  = "date"
)

type RecurrenceInput struct {
	Enabled         bool
	Weekdays        []int
	IntervalWeeks   int
	TerminationType string
	Count           int
	EndDate         string
}

type CreateRequest struct {
	ProviderID        int64
	ClientID          int64
	CategoryID        int64
	EventDate         string
	StartTime         string
	DurationMinutes   int
	Title             string
	Comments          string
	StatusSymbol      string
	Room              string
	FacilityID        int64
	OverrideConflicts bool
	Recurrence        *RecurrenceInput
	IdempotencyKey    string
}

// UpdateRequest carries only the fields to change; nil fields keep the
// stored value.
type UpdateRequest struct {
	AppointmentID     uuid.UUID
	ProviderID        *int64
	ClientID          *int64
	CategoryID        *int64
	EventDate         *string
	StartTime         *string
	DurationMinutes   *int
	Title             *string
	Comments          *string
	StatusSymbol      *string
	Room              *string
	FacilityID        *int64
	OverrideConflicts bool
	Scope             SeriesScope
}

type DeleteRequest struct {
	AppointmentID     uuid.UUID
	Scope             SeriesScope
	RecurrenceGroupID string
}

// createPlan is a validated create request with its occurrence dates expanded.
type createPlan struct {
	template  domain.Appointment
	timeOfDay time.Duration
	dates     []time.Time
	recurring bool
}

func (p createPlan) startOn(date time.Time) time.Time {
	return date.Add(p.timeOfDay)
}

func planCreate(req CreateRequest) (createPlan, error) {
	if req.ProviderID <= 0 {
		return createPlan{}, validationError("provider_id is required")
	}
	if req.ClientID < 0 {
		return createPlan{}, validationError("client_id must not be negative")
	}
	if req.CategoryID <= 0 {
		return createPlan{}, validationError("category_id is required")
	}
	if req.FacilityID < 0 {
		return createPlan{}, validationError("facility_id must not be negative")
	}
	anchor, err := parseDate("event_date", req.EventDate)
	if err != nil {
		return createPlan{}, err
	}
	tod, err := parseClock(req.StartTime)
	if err != nil {
		return createPlan{}, err
	}
	if err := checkDuration(req.DurationMinutes); err != nil {
		return createPlan{}, err
	}
	if len(strings.TrimSpace(req.IdempotencyKey)) > maxIdempotencyKey {
		return createPlan{}, validationError("idempotency_key too long")
	}

	plan := createPlan{
		template: domain.Appointment{
			ProviderID:      req.ProviderID,
			ClientID:        req.ClientID,
			CategoryID:      req.CategoryID,
			DurationMinutes: req.DurationMinutes,
			Status:          domain.ParseStatusSymbol(strings.TrimSpace(req.StatusSymbol)),
			Title:           strings.TrimSpace(req.Title),
			Comments:        req.Comments,
			Room:            strings.TrimSpace(req.Room),
			FacilityID:      req.FacilityID,
		},
		timeOfDay: tod,
	}

	if req.Recurrence == nil || !req.Recurrence.Enabled {
		plan.dates = []time.Time{anchor}
		return plan, nil
	}

	rule, err := recurrenceRule(*req.Recurrence, anchor)
	if err != nil {
		return createPlan{}, err
	}
	dates, err := domain.ExpandRecurrence(anchor, rule)
	if err != nil {
		return createPlan{}, validationError(err.Error())
	}
	if len(dates) == 0 {
		return createPlan{}, validationError("recurrence rule produces no occurrences")
	}
	plan.dates = dates
	plan.recurring = true
	return plan, nil
}

func recurrenceRule(in RecurrenceInput, anchor time.Time) (domain.RecurrenceRule, error) {
	if len(in.Weekdays) == 0 {
		return domain.RecurrenceRule{}, validationError(domain.ErrNoWeekdays.Error())
	}
	weekdays := make([]time.Weekday, 0, len(in.Weekdays))
	for _, wd := range in.Weekdays {
		if wd < 0 || wd > 6 {
			return domain.RecurrenceRule{}, validationError(domain.ErrInvalidWeekday.Error())
		}
		weekdays = append(weekdays, time.Weekday(wd))
	}

	interval := in.IntervalWeeks
	if interval == 0 {
		interval = 1
	}

	rule := domain.RecurrenceRule{Weekdays: weekdays, IntervalWeeks: interval}
	switch strings.ToLower(strings.TrimSpace(in.TerminationType)) {
	case TerminationCount:
		if in.Count < 1 {
			return domain.RecurrenceRule{}, validationError(domain.ErrInvalidCount.Error())
		}
		rule.Count = in.Count
	case TerminationDate:
		until, err := parseDate("end_date", in.EndDate)
		if err != nil {
			return domain.RecurrenceRule{}, err
		}
		if until.Before(anchor) {
			return domain.RecurrenceRule{}, validationError("end_date must not be before event_date")
		}
		rule.Until = &until
	default:
		return domain.RecurrenceRule{}, validationError("termination_type must be count or date")
	}

	if err := rule.Validate(); err != nil {
		return domain.RecurrenceRule{}, validationError(err.Error())
	}
	return rule, nil
}

// updatePatch is a validated UpdateRequest.
type updatePatch struct {
	providerID      *int64
	clientID        *int64
	categoryID      *int64
	date            *time.Time
	timeOfDay       *time.Duration
	durationMinutes *int
	title           *string
	comments        *string
	status          *domain.Status
	room            *string
	facilityID      *int64
}

func planUpdate(req UpdateRequest) (updatePatch, error) {
	var p updatePatch
	if req.AppointmentID == uuid.Nil {
		return p, validationError("appointment_id is required")
	}
	if req.ProviderID != nil {
		if *req.ProviderID <= 0 {
			return p, validationError("provider_id must be positive")
		}
		p.providerID = req.ProviderID
	}
	if req.ClientID != nil {
		if *req.ClientID < 0 {
			return p, validationError("client_id must not be negative")
		}
		p.clientID = req.ClientID
	}
	if req.CategoryID != nil {
		if *req.CategoryID <= 0 {
			return p, validationError("category_id must be positive")
		}
		p.categoryID = req.CategoryID
	}
	if req.EventDate != nil {
		d, err := parseDate("event_date", *req.EventDate)
		if err != nil {
			return p, err
		}
		p.date = &d
	}
	if req.StartTime != nil {
		tod, err := parseClock(*req.StartTime)
		if err != nil {
			return p, err
		}
		p.timeOfDay = &tod
	}
	if req.DurationMinutes != nil {
		if err := checkDuration(*req.DurationMinutes); err != nil {
			return p, err
		}
		p.durationMinutes = req.DurationMinutes
	}
	if req.Title != nil {
		t := strings.TrimSpace(*req.Title)
		p.title = &t
	}
	p.comments = req.Comments
	if req.StatusSymbol != nil {
		st := domain.ParseStatusSymbol(strings.TrimSpace(*req.StatusSymbol))
		p.status = &st
	}
	if req.Room != nil {
		r := strings.TrimSpace(*req.Room)
		p.room = &r
	}
	if req.FacilityID != nil {
		if *req.FacilityID < 0 {
			return p, validationError("facility_id must not be negative")
		}
		p.facilityID = req.FacilityID
	}
	return p, nil
}

// movesTime reports whether the patch changes when or for whom a row is booked.
func (p updatePatch) movesTime() bool {
	return p.providerID != nil || p.date != nil || p.timeOfDay != nil || p.durationMinutes != nil
}

// needsScreening reports whether rows patched this way must be re-checked
// for conflicts.
func (p updatePatch) needsScreening() bool {
	return p.movesTime() || p.clientID != nil || p.status != nil
}

// apply returns row with the patch applied. Rows edited as part of a series
// keep their own calendar date.
func (p updatePatch) apply(row domain.Appointment, keepDate bool) domain.Appointment {
	if p.providerID != nil {
		row.ProviderID = *p.providerID
	}
	if p.clientID != nil {
		row.ClientID = *p.clientID
	}
	if p.categoryID != nil {
		row.CategoryID = *p.categoryID
	}
	if p.title != nil {
		row.Title = *p.title
	}
	if p.comments != nil {
		row.Comments = *p.comments
	}
	if p.status != nil {
		row.Status = *p.status
	}
	if p.room != nil {
		row.Room = *p.room
	}
	if p.facilityID != nil {
		row.FacilityID = *p.facilityID
	}

	date := row.Date()
	if p.date != nil && !keepDate {
		date = *p.date
	}
	tod := row.StartTime.Sub(row.Date())
	if p.timeOfDay != nil {
		tod = *p.timeOfDay
	}
	minutes := row.DurationMinutes
	if p.durationMinutes != nil {
		minutes = *p.durationMinutes
	}
	row.Reschedule(date.Add(tod), minutes)
	return row
}

func parseDate(field, s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, validationError(field + " is required")
	}
	d, err := time.ParseInLocation(dateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, validationError(field + " must be YYYY-MM-DD")
	}
	return d, nil
}

// parseClock parses HH:MM or HH:MM:SS into an offset from midnight.
func parseClock(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, validationError("start_time is required")
	}
	var (
		t   time.Time
		err error
	)
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err = time.Parse(layout, s); err == nil {
			break
		}
	}
	if err != nil {
		return 0, validationError("start_time must be HH:MM or HH:MM:SS")
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute + time.Duration(t.Second())*time.Second, nil
}

func checkDuration(minutes int) error {
	if minutes <= 0 {
		return validationError("duration_minutes must be positive")
	}
	if minutes > maxDurationMinutes {
		return validationError("duration too long")
	}
	return nil
}

func isValidation(err error) bool {
	var vErr *ValidationError
	return errors.As(err, &vErr)
}
