// Package payload defines the JSON wire shapes shared by the HTTP and gRPC
// transports and their conversion to service requests and from results.
package payload

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"clinicsched/backend/internal/domain"
	"clinicsched/backend/internal/service/appointments"
)

const (
	dateLayout  = "2006-01-02"
	clockLayout = "15:04:05"
)

type Recurrence struct {
	Enabled          bool   `json:"enabled"`
	SelectedWeekdays []int  `json:"selectedWeekdays"`
	IntervalWeeks    int    `json:"intervalWeeks,omitempty"`
	TerminationType  string `json:"terminationType"`
	Count            int    `json:"count,omitempty"`
	EndDate          string `json:"endDate,omitempty"`
}

type CreateRequest struct {
	ProviderID        int64       `json:"providerId"`
	ClientID          int64       `json:"clientId"`
	CategoryID        int64       `json:"categoryId"`
	EventDate         string      `json:"eventDate"`
	StartTime         string      `json:"startTime"`
	DurationMinutes   int         `json:"durationMinutes"`
	Title             string      `json:"title,omitempty"`
	Comments          string      `json:"comments,omitempty"`
	Status            string      `json:"status,omitempty"`
	Room              string      `json:"room,omitempty"`
	FacilityID        int64       `json:"facilityId,omitempty"`
	OverrideConflicts bool        `json:"overrideConflicts,omitempty"`
	Recurrence        *Recurrence `json:"recurrence,omitempty"`
}

func (r CreateRequest) ToService(idempotencyKey string) appointments.CreateRequest {
	out := appointments.CreateRequest{
		ProviderID:        r.ProviderID,
		ClientID:          r.ClientID,
		CategoryID:        r.CategoryID,
		EventDate:         r.EventDate,
		StartTime:         r.StartTime,
		DurationMinutes:   r.DurationMinutes,
		Title:             r.Title,
		Comments:          r.Comments,
		StatusSymbol:      r.Status,
		Room:              r.Room,
		FacilityID:        r.FacilityID,
		OverrideConflicts: r.OverrideConflicts,
		IdempotencyKey:    idempotencyKey,
	}
	if r.Recurrence != nil {
		out.Recurrence = &appointments.RecurrenceInput{
			Enabled:         r.Recurrence.Enabled,
			Weekdays:        r.Recurrence.SelectedWeekdays,
			IntervalWeeks:   r.Recurrence.IntervalWeeks,
			TerminationType: r.Recurrence.TerminationType,
			Count:           r.Recurrence.Count,
			EndDate:         r.Recurrence.EndDate,
		}
	}
	return out
}

type SeriesUpdate struct {
	Scope string `json:"scope"`
}

type UpdateRequest struct {
	AppointmentID     string        `json:"appointmentId"`
	ProviderID        *int64        `json:"providerId,omitempty"`
	ClientID          *int64        `json:"clientId,omitempty"`
	CategoryID        *int64        `json:"categoryId,omitempty"`
	EventDate         *string       `json:"eventDate,omitempty"`
	StartTime         *string       `json:"startTime,omitempty"`
	DurationMinutes   *int          `json:"durationMinutes,omitempty"`
	Title             *string       `json:"title,omitempty"`
	Comments          *string       `json:"comments,omitempty"`
	Status            *string       `json:"status,omitempty"`
	Room              *string       `json:"room,omitempty"`
	FacilityID        *int64        `json:"facilityId,omitempty"`
	OverrideConflicts bool          `json:"overrideConflicts,omitempty"`
	SeriesUpdate      *SeriesUpdate `json:"seriesUpdate,omitempty"`
}

func (r UpdateRequest) ToService() (appointments.UpdateRequest, error) {
	id, err := ParseAppointmentID(r.AppointmentID)
	if err != nil {
		return appointments.UpdateRequest{}, err
	}
	scope := ""
	if r.SeriesUpdate != nil {
		scope = r.SeriesUpdate.Scope
	}
	parsedScope, err := appointments.ParseSeriesScope(scope)
	if err != nil {
		return appointments.UpdateRequest{}, err
	}
	return appointments.UpdateRequest{
		AppointmentID:     id,
		ProviderID:        r.ProviderID,
		ClientID:          r.ClientID,
		CategoryID:        r.CategoryID,
		EventDate:         r.EventDate,
		StartTime:         r.StartTime,
		DurationMinutes:   r.DurationMinutes,
		Title:             r.Title,
		Comments:          r.Comments,
		StatusSymbol:      r.Status,
		Room:              r.Room,
		FacilityID:        r.FacilityID,
		OverrideConflicts: r.OverrideConflicts,
		Scope:             parsedScope,
	}, nil
}

type SeriesData struct {
	Scope             string `json:"scope"`
	RecurrenceGroupID string `json:"recurrenceGroupId,omitempty"`
}

type DeleteRequest struct {
	AppointmentID string      `json:"appointmentId"`
	SeriesData    *SeriesData `json:"seriesData,omitempty"`
}

func (r DeleteRequest) ToService() (appointments.DeleteRequest, error) {
	id, err := ParseAppointmentID(r.AppointmentID)
	if err != nil {
		return appointments.DeleteRequest{}, err
	}
	var scope, group string
	if r.SeriesData != nil {
		scope = r.SeriesData.Scope
		group = r.SeriesData.RecurrenceGroupID
	}
	parsedScope, err := appointments.ParseSeriesScope(scope)
	if err != nil {
		return appointments.DeleteRequest{}, err
	}
	return appointments.DeleteRequest{AppointmentID: id, Scope: parsedScope, RecurrenceGroupID: group}, nil
}

type GetRequest struct {
	AppointmentID string `json:"appointmentId"`
}

type ListSeriesRequest struct {
	RecurrenceGroupID string `json:"recurrenceGroupId"`
}

// ParseAppointmentID validates an appointment id from the wire.
func ParseAppointmentID(s string) (uuid.UUID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return uuid.Nil, appointments.NewValidationError("appointment_id is required")
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, appointments.NewValidationError("invalid appointment_id")
	}
	return id, nil
}

type Appointment struct {
	ID                string    `json:"id"`
	ProviderID        int64     `json:"providerId"`
	ClientID          int64     `json:"clientId"`
	CategoryID        int64     `json:"categoryId"`
	EventDate         string    `json:"eventDate"`
	StartTime         string    `json:"startTime"`
	EndTime           string    `json:"endTime"`
	StartDateTime     time.Time `json:"startDateTime"`
	EndDateTime       time.Time `json:"endDateTime"`
	DurationMinutes   int       `json:"durationMinutes"`
	Status            string    `json:"status"`
	StatusSymbol      string    `json:"statusSymbol"`
	Title             string    `json:"title"`
	Comments          string    `json:"comments"`
	Room              string    `json:"room"`
	FacilityID        int64     `json:"facilityId"`
	IsRecurring       bool      `json:"isRecurring"`
	RecurrenceGroupID string    `json:"recurrenceGroupId,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

func FromAppointment(a domain.Appointment) Appointment {
	return Appointment{
		ID:                a.ID.String(),
		ProviderID:        a.ProviderID,
		ClientID:          a.ClientID,
		CategoryID:        a.CategoryID,
		EventDate:         a.StartTime.Format(dateLayout),
		StartTime:         a.StartTime.Format(clockLayout),
		EndTime:           a.EndTime.Format(clockLayout),
		StartDateTime:     a.StartTime,
		EndDateTime:       a.EndTime,
		DurationMinutes:   a.DurationMinutes,
		Status:            string(a.Status),
		StatusSymbol:      a.Status.Symbol(),
		Title:             a.Title,
		Comments:          a.Comments,
		Room:              a.Room,
		FacilityID:        a.FacilityID,
		IsRecurring:       a.IsRecurring,
		RecurrenceGroupID: a.GroupID(),
		CreatedAt:         a.CreatedAt,
		UpdatedAt:         a.UpdatedAt,
	}
}

func FromAppointments(rows []domain.Appointment) []Appointment {
	out := make([]Appointment, 0, len(rows))
	for _, a := range rows {
		out = append(out, FromAppointment(a))
	}
	return out
}

type ConflictFinding struct {
	OccurrenceDate           string `json:"occurrenceDate"`
	Time                     string `json:"time"`
	Reason                   string `json:"reason"`
	ConflictType             string `json:"conflictType"`
	ConflictingAppointmentID string `json:"conflictingAppointmentId,omitempty"`
	ConflictingName          string `json:"conflictingName,omitempty"`
}

func FromFindings(findings []domain.ConflictFinding) []ConflictFinding {
	if len(findings) == 0 {
		return nil
	}
	out := make([]ConflictFinding, 0, len(findings))
	for _, f := range findings {
		cf := ConflictFinding{
			OccurrenceDate:  f.OccurrenceDate.Format(dateLayout),
			Time:            f.StartTime.Format("15:04") + "-" + f.EndTime.Format("15:04"),
			Reason:          f.Reason,
			ConflictType:    string(f.Type),
			ConflictingName: f.ConflictingName,
		}
		if f.ConflictingID != uuid.Nil {
			cf.ConflictingAppointmentID = f.ConflictingID.String()
		}
		out = append(out, cf)
	}
	return out
}

type CreateResponse struct {
	Appointments      []Appointment     `json:"appointments"`
	RecurrenceGroupID string            `json:"recurrenceGroupId,omitempty"`
	Occurrences       int               `json:"occurrences"`
	Conflicts         []ConflictFinding `json:"conflicts,omitempty"`
	Replayed          bool              `json:"replayed,omitempty"`
}

func FromCreateResult(res appointments.CreateResult) CreateResponse {
	return CreateResponse{
		Appointments:      FromAppointments(res.Appointments),
		RecurrenceGroupID: res.RecurrenceGroupID,
		Occurrences:       len(res.Appointments),
		Conflicts:         FromFindings(res.Conflicts),
		Replayed:          res.Replayed,
	}
}

// UpdateResponse carries the updated row for single edits and a summary
// for series edits.
type UpdateResponse struct {
	Scope             string            `json:"scope"`
	RowsAffected      int               `json:"rowsAffected"`
	Appointment       *Appointment      `json:"appointment,omitempty"`
	RecurrenceGroupID string            `json:"recurrenceGroupId,omitempty"`
	SplitFromGroupID  string            `json:"splitFromGroupId,omitempty"`
	Conflicts         []ConflictFinding `json:"conflicts,omitempty"`
}

func FromUpdateResult(res appointments.UpdateResult) UpdateResponse {
	out := UpdateResponse{
		Scope:             string(res.Scope),
		RowsAffected:      len(res.Appointments),
		RecurrenceGroupID: res.RecurrenceGroupID,
		SplitFromGroupID:  res.SplitFromGroupID,
		Conflicts:         FromFindings(res.Conflicts),
	}
	if res.Scope == appointments.ScopeSingle && len(res.Appointments) == 1 {
		a := FromAppointment(res.Appointments[0])
		out.Appointment = &a
	}
	return out
}

type DeleteResponse struct {
	Scope             string `json:"scope"`
	Deleted           int    `json:"deleted"`
	RecurrenceGroupID string `json:"recurrenceGroupId,omitempty"`
}

func FromDeleteResult(res appointments.DeleteResult) DeleteResponse {
	return DeleteResponse{Scope: string(res.Scope), Deleted: res.Deleted, RecurrenceGroupID: res.RecurrenceGroupID}
}

type CheckConflictsResponse struct {
	Occurrences  int               `json:"occurrences"`
	HasConflicts bool              `json:"hasConflicts"`
	Conflicts    []ConflictFinding `json:"conflicts,omitempty"`
}

func FromConflictReport(rep appointments.ConflictReport) CheckConflictsResponse {
	return CheckConflictsResponse{
		Occurrences:  rep.Occurrences,
		HasConflicts: len(rep.Findings) > 0,
		Conflicts:    FromFindings(rep.Findings),
	}
}

type SeriesResponse struct {
	RecurrenceGroupID string        `json:"recurrenceGroupId"`
	Appointments      []Appointment `json:"appointments"`
}

// ConflictResponse is the body of a rejected create or update.
type ConflictResponse struct {
	Error            string            `json:"error"`
	Conflicts        []ConflictFinding `json:"conflicts"`
	ConflictCount    int               `json:"conflictCount"`
	ConflictingDates int               `json:"conflictingDates"`
	Occurrences      int               `json:"occurrences"`
}

func FromConflictError(err *appointments.ConflictError) ConflictResponse {
	return ConflictResponse{
		Error:            "scheduling conflict",
		Conflicts:        FromFindings(err.Findings),
		ConflictCount:    len(err.Findings),
		ConflictingDates: err.ConflictingDates(),
		Occurrences:      err.Occurrences,
	}
}

type ErrorResponse struct {
	Error string `json:"error"`
}
