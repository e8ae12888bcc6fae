// Package memstore is an in-memory, transactional implementation of the
// appointment repository for local development and tests.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"clinicsched/backend/internal/domain"
	"clinicsched/backend/internal/store"
)

// Store serializes all transactions behind one mutex. A transaction works on
// a copy of the rows that replaces the committed set only when fn succeeds.
type Store struct {
	mu   sync.Mutex
	rows map[uuid.UUID]domain.Appointment

	catMu      sync.RWMutex
	categories map[int64]domain.Category
}

var (
	_ store.AppointmentRepository = (*Store)(nil)
	_ store.CategoryReader        = (*Store)(nil)
)

func New() *Store {
	return &Store{
		rows:       make(map[uuid.UUID]domain.Appointment),
		categories: make(map[int64]domain.Category),
	}
}

// AddCategory registers reference data.
func (s *Store) AddCategory(c domain.Category) {
	s.catMu.Lock()
	defer s.catMu.Unlock()
	s.categories[c.ID] = c
}

// Seed stores rows as-is, replacing rows with the same id.
func (s *Store) Seed(appts ...domain.Appointment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range appts {
		s.rows[a.ID] = a
	}
}

// All returns every committed row ordered by start time.
func (s *Store) All() []domain.Appointment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedRows(s.rows, func(domain.Appointment) bool { return true })
}

func (s *Store) Get(_ context.Context, id uuid.UUID) (domain.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.rows[id]
	if !ok {
		return domain.Appointment{}, store.ErrNotFound
	}
	return a, nil
}

func (s *Store) ListGroup(_ context.Context, groupID string) ([]domain.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedRows(s.rows, func(a domain.Appointment) bool { return inGroupFrom(a, groupID, nil) }), nil
}

func (s *Store) Ping(context.Context) error {
	return nil
}

func (s *Store) InProviderTransaction(ctx context.Context, _ []int64, fn func(ctx context.Context, tx store.SchedulingTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	working := make(map[uuid.UUID]domain.Appointment, len(s.rows))
	for id, a := range s.rows {
		working[id] = a
	}
	if err := fn(ctx, &tx{rows: working}); err != nil {
		return err
	}
	s.rows = working
	return nil
}

func (s *Store) Categories(_ context.Context, ids []int64) (map[int64]domain.Category, error) {
	s.catMu.RLock()
	defer s.catMu.RUnlock()
	out := make(map[int64]domain.Category, len(ids))
	for _, id := range ids {
		if c, ok := s.categories[id]; ok {
			out[id] = c
		}
	}
	return out, nil
}

type tx struct {
	rows map[uuid.UUID]domain.Appointment
}

func (t *tx) GetAppointment(_ context.Context, id uuid.UUID) (domain.Appointment, error) {
	a, ok := t.rows[id]
	if !ok {
		return domain.Appointment{}, store.ErrNotFound
	}
	return a, nil
}

func (t *tx) ListProviderDay(_ context.Context, providerID int64, day time.Time) ([]domain.Appointment, error) {
	dayStart := domain.DateOf(day)
	dayEnd := dayStart.AddDate(0, 0, 1)
	return sortedRows(t.rows, func(a domain.Appointment) bool {
		return a.ProviderID == providerID && !a.StartTime.Before(dayStart) && a.StartTime.Before(dayEnd)
	}), nil
}

func (t *tx) ListGroup(_ context.Context, groupID string, from *time.Time) ([]domain.Appointment, error) {
	return sortedRows(t.rows, func(a domain.Appointment) bool {
		return inGroupFrom(a, groupID, from)
	}), nil
}

func (t *tx) InsertAppointments(_ context.Context, appts []domain.Appointment) ([]domain.Appointment, error) {
	now := time.Now().UTC()
	out := make([]domain.Appointment, 0, len(appts))
	for _, a := range appts {
		if a.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return nil, err
			}
			a.ID = id
		}
		if _, exists := t.rows[a.ID]; exists {
			return nil, store.ErrConflict
		}
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
		if a.UpdatedAt.IsZero() {
			a.UpdatedAt = now
		}
		t.rows[a.ID] = a
		out = append(out, a)
	}
	return out, nil
}

func (t *tx) UpdateAppointment(_ context.Context, appt domain.Appointment) (domain.Appointment, error) {
	existing, ok := t.rows[appt.ID]
	if !ok {
		return domain.Appointment{}, store.ErrNotFound
	}
	appt.CreatedAt = existing.CreatedAt
	appt.UpdatedAt = time.Now().UTC()
	t.rows[appt.ID] = appt
	return appt, nil
}

func (t *tx) ReassignGroup(_ context.Context, groupID string, from time.Time, newGroupID string) (int, error) {
	n := 0
	for id, a := range t.rows {
		if !inGroupFrom(a, groupID, &from) {
			continue
		}
		a.SetGroup(newGroupID)
		a.UpdatedAt = time.Now().UTC()
		t.rows[id] = a
		n++
	}
	return n, nil
}

func (t *tx) DeleteAppointment(_ context.Context, id uuid.UUID) (int, error) {
	if _, ok := t.rows[id]; !ok {
		return 0, store.ErrNotFound
	}
	delete(t.rows, id)
	return 1, nil
}

func (t *tx) DeleteGroup(_ context.Context, groupID string, from *time.Time) (int, error) {
	n := 0
	for id, a := range t.rows {
		if inGroupFrom(a, groupID, from) {
			delete(t.rows, id)
			n++
		}
	}
	return n, nil
}

func inGroupFrom(a domain.Appointment, groupID string, from *time.Time) bool {
	if groupID == "" || a.GroupID() != groupID {
		return false
	}
	return from == nil || !a.StartTime.Before(*from)
}

func sortedRows(rows map[uuid.UUID]domain.Appointment, keep func(domain.Appointment) bool) []domain.Appointment {
	out := make([]domain.Appointment, 0)
	for _, a := range rows {
		if keep(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out
}
