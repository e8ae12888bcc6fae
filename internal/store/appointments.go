package store

import (
	"context"

	"github.com/google/uuid"

	"clinicsched/backend/internal/domain"
)

// AppointmentRepository is the persistence boundary for appointment rows.
// All mutations go through InProviderTransaction so conflict screening and
// writes for a provider are serialized.
type AppointmentRepository interface {
	Get(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	ListGroup(ctx context.Context, groupID string) ([]domain.Appointment, error)

	// InProviderTransaction runs fn in one transaction holding an exclusive
	// lock on every listed provider's calendar. fn's error rolls back all writes.
	InProviderTransaction(ctx context.Context, providerIDs []int64, fn func(ctx context.Context, tx SchedulingTx) error) error

	Ping(ctx context.Context) error
}

// CategoryReader resolves category reference data by id. Missing ids are
// absent from the returned map.
type CategoryReader interface {
	Categories(ctx context.Context, ids []int64) (map[int64]domain.Category, error)
}
