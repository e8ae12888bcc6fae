package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Appointment is one persisted occurrence. ClientID 0 marks a provider
// availability block rather than a client booking.
type Appointment struct {
	bun.BaseModel `bun:"table:appointments"`

	ID                uuid.UUID `bun:"id,pk,type:uuid"`
	ProviderID        int64     `bun:"provider_id,notnull"`
	ClientID          int64     `bun:"client_id,notnull"`
	CategoryID        int64     `bun:"category_id,notnull"`
	StartTime         time.Time `bun:"start_time,notnull"`
	EndTime           time.Time `bun:"end_time,notnull"`
	DurationMinutes   int       `bun:"duration_minutes,notnull"`
	Status            Status    `bun:"status,notnull"`
	Title             string    `bun:"title,notnull"`
	Comments          string    `bun:"comments,notnull"`
	Room              string    `bun:"room,notnull"`
	FacilityID        int64     `bun:"facility_id,notnull"`
	IsRecurring       bool      `bun:"is_recurring,notnull"`
	RecurrenceGroupID *string   `bun:"recurrence_group_id"`
	CreatedAt         time.Time `bun:"created_at,notnull"`
	UpdatedAt         time.Time `bun:"updated_at,notnull"`
}

func (a *Appointment) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if a.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			a.ID = id
		}
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
		if a.UpdatedAt.IsZero() {
			a.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		a.UpdatedAt = now
	}
	return nil
}

var _ bun.AfterScanRowHook = (*Appointment)(nil)

// AfterScanRow keeps scanned times UTC-located whatever the session time zone.
func (a *Appointment) AfterScanRow(ctx context.Context) error {
	a.StartTime = a.StartTime.UTC()
	a.EndTime = a.EndTime.UTC()
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return nil
}

func (a Appointment) IsAvailabilityBlock() bool {
	return a.ClientID == 0
}

// Reschedule sets the start and duration and derives EndTime from them.
func (a *Appointment) Reschedule(start time.Time, durationMinutes int) {
	a.StartTime = start
	a.DurationMinutes = durationMinutes
	a.EndTime = start.Add(time.Duration(durationMinutes) * time.Minute)
}

// Date is the calendar day of the occurrence at midnight in the start time's location.
func (a Appointment) Date() time.Time {
	return DateOf(a.StartTime)
}

func (a Appointment) GroupID() string {
	if a.RecurrenceGroupID == nil {
		return ""
	}
	return *a.RecurrenceGroupID
}

// SetGroup tags the row as part of a recurrence group, or clears it when
// groupID is empty.
func (a *Appointment) SetGroup(groupID string) {
	if groupID == "" {
		a.IsRecurring = false
		a.RecurrenceGroupID = nil
		return
	}
	g := groupID
	a.IsRecurring = true
	a.RecurrenceGroupID = &g
}

// DateOf truncates t to midnight in its own location.
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// Caller identifies who is invoking a scheduling operation.
type Caller struct {
	UserID     string
	ProviderID int64
}
