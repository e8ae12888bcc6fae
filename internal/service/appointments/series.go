package appointments

import (
	"context"
	"time"

	"github.com/google/uuid"

	"clinicsched/backend/internal/domain"
	"clinicsched/backend/internal/store"
)

// SeriesEditor resolves which rows of a recurrence group an update or delete
// touches.
type SeriesEditor struct {
	newGroupID func() string
}

func NewSeriesEditor(newGroupID func() string) *SeriesEditor {
	if newGroupID == nil {
		newGroupID = newV7GroupID
	}
	return &SeriesEditor{newGroupID: newGroupID}
}

// EffectiveScope degrades future and all to single for rows outside a group.
func EffectiveScope(target domain.Appointment, scope SeriesScope) SeriesScope {
	if scope == "" || target.GroupID() == "" {
		return ScopeSingle
	}
	return scope
}

// SeriesTargets is the row set an update applies to.
type SeriesTargets struct {
	Rows []domain.Appointment
	// GroupID labels Rows after resolution. For a future edit it is the
	// freshly split group.
	GroupID string
	// SplitFrom is the original group id when a split happened.
	SplitFrom string
}

// UpdateTargets resolves the rows an update under scope applies to. A future
// edit first moves target and every later row of its group to a new group,
// leaving earlier rows under the original id.
func (e *SeriesEditor) UpdateTargets(ctx context.Context, tx store.SchedulingTx, target domain.Appointment, scope SeriesScope) (SeriesTargets, error) {
	group := target.GroupID()
	switch EffectiveScope(target, scope) {
	case ScopeAll:
		rows, err := tx.ListGroup(ctx, group, nil)
		if err != nil {
			return SeriesTargets{}, err
		}
		return SeriesTargets{Rows: rows, GroupID: group}, nil
	case ScopeFuture:
		newID := e.newGroupID()
		moved, err := tx.ReassignGroup(ctx, group, target.StartTime, newID)
		if err != nil {
			return SeriesTargets{}, err
		}
		if moved == 0 {
			return SeriesTargets{}, store.ErrNotFound
		}
		rows, err := tx.ListGroup(ctx, newID, nil)
		if err != nil {
			return SeriesTargets{}, err
		}
		return SeriesTargets{Rows: rows, GroupID: newID, SplitFrom: group}, nil
	default:
		return SeriesTargets{Rows: []domain.Appointment{target}, GroupID: group}, nil
	}
}

// DeleteTargets lists the rows a delete under scope removes, without removing them.
func (e *SeriesEditor) DeleteTargets(ctx context.Context, tx store.SchedulingTx, target domain.Appointment, scope SeriesScope) ([]domain.Appointment, error) {
	switch EffectiveScope(target, scope) {
	case ScopeAll:
		return tx.ListGroup(ctx, target.GroupID(), nil)
	case ScopeFuture:
		from := target.StartTime
		return tx.ListGroup(ctx, target.GroupID(), &from)
	default:
		return []domain.Appointment{target}, nil
	}
}

// Delete removes the rows scope selects around target and returns how many
// were removed.
func (e *SeriesEditor) Delete(ctx context.Context, tx store.SchedulingTx, target domain.Appointment, scope SeriesScope) (int, error) {
	switch EffectiveScope(target, scope) {
	case ScopeAll:
		return tx.DeleteGroup(ctx, target.GroupID(), nil)
	case ScopeFuture:
		from := target.StartTime
		return tx.DeleteGroup(ctx, target.GroupID(), &from)
	default:
		return tx.DeleteAppointment(ctx, target.ID)
	}
}

func newV7GroupID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// authorizeRows enforces that availability blocks are modified only by the
// provider that owns them.
func authorizeRows(caller domain.Caller, rows []domain.Appointment) error {
	for _, row := range rows {
		if row.IsAvailabilityBlock() && row.ProviderID != caller.ProviderID {
			return ErrForbidden
		}
	}
	return nil
}

func rowIDs(rows []domain.Appointment) map[uuid.UUID]struct{} {
	out := make(map[uuid.UUID]struct{}, len(rows))
	for _, r := range rows {
		out[r.ID] = struct{}{}
	}
	return out
}

func sameDate(a, b time.Time) bool {
	return domain.DateOf(a).Equal(domain.DateOf(b))
}
