package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"clinicsched/backend/internal/domain"
)

// SchedulingTx is the set of row operations available inside a provider transaction.
type SchedulingTx interface {
	// GetAppointment locks and returns the row, or ErrNotFound.
	GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	// ListProviderDay returns the provider's rows starting on day's calendar date.
	ListProviderDay(ctx context.Context, providerID int64, day time.Time) ([]domain.Appointment, error)
	// ListGroup returns the group's rows ordered by start time; from, when
	// set, keeps only rows starting at or after it.
	ListGroup(ctx context.Context, groupID string, from *time.Time) ([]domain.Appointment, error)

	InsertAppointments(ctx context.Context, appts []domain.Appointment) ([]domain.Appointment, error)
	UpdateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)
	// ReassignGroup moves every row of groupID starting at or after from to
	// newGroupID and returns the number of rows moved.
	ReassignGroup(ctx context.Context, groupID string, from time.Time, newGroupID string) (int, error)

	DeleteAppointment(ctx context.Context, id uuid.UUID) (int, error)
	DeleteGroup(ctx context.Context, groupID string, from *time.Time) (int, error)
}
