package postgres

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"

	"clinicsched/backend/internal/domain"
	"clinicsched/backend/internal/store"
)

type AppointmentRepo struct {
	db *bun.DB
}

var _ store.AppointmentRepository = (*AppointmentRepo)(nil)

func NewAppointmentRepo(db *bun.DB) *AppointmentRepo {
	return &AppointmentRepo{db: db}
}

type schedulingTx struct {
	tx bun.Tx
}

var _ store.SchedulingTx = schedulingTx{}

func (r *AppointmentRepo) Get(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	var a domain.Appointment
	err := r.db.NewSelect().
		Model(&a).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Appointment{}, store.ErrNotFound
		}
		return domain.Appointment{}, err
	}
	return a, nil
}

func (r *AppointmentRepo) ListGroup(ctx context.Context, groupID string) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	err := r.db.NewSelect().
		Model(&rows).
		Where("recurrence_group_id = ?", groupID).
		OrderExpr("start_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *AppointmentRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *AppointmentRepo) InProviderTransaction(ctx context.Context, providerIDs []int64, fn func(ctx context.Context, tx store.SchedulingTx) error) error {
	ids := lockOrder(providerIDs)
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, id := range ids {
			if err := lockProviderCalendar(ctx, tx, id); err != nil {
				return err
			}
		}
		return fn(ctx, schedulingTx{tx: tx})
	})
}

// lockOrder dedupes and sorts provider ids so concurrent transactions take
// advisory locks in the same order.
func lockOrder(providerIDs []int64) []int64 {
	seen := make(map[int64]struct{}, len(providerIDs))
	out := make([]int64, 0, len(providerIDs))
	for _, id := range providerIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func lockProviderCalendar(ctx context.Context, tx bun.Tx, providerID int64) error {
	_, err := tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", providerLockKey(providerID)).Exec(ctx)
	return err
}

func providerLockKey(providerID int64) string {
	return "provider:" + strconv.FormatInt(providerID, 10)
}

func (r schedulingTx) GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	var a domain.Appointment
	err := r.tx.NewSelect().
		Model(&a).
		Where("id = ?", id).
		For("UPDATE").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Appointment{}, store.ErrNotFound
		}
		return domain.Appointment{}, err
	}
	return a, nil
}

func (r schedulingTx) ListProviderDay(ctx context.Context, providerID int64, day time.Time) ([]domain.Appointment, error) {
	dayStart := domain.DateOf(day)
	dayEnd := dayStart.AddDate(0, 0, 1)

	var rows []domain.Appointment
	err := r.tx.NewSelect().
		Model(&rows).
		Where("provider_id = ?", providerID).
		Where("start_time >= ?", dayStart).
		Where("start_time < ?", dayEnd).
		OrderExpr("start_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r schedulingTx) ListGroup(ctx context.Context, groupID string, from *time.Time) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	q := r.tx.NewSelect().
		Model(&rows).
		Where("recurrence_group_id = ?", groupID)
	if from != nil {
		q = q.Where("start_time >= ?", *from)
	}
	if err := q.OrderExpr("start_time ASC").Scan(ctx); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r schedulingTx) InsertAppointments(ctx context.Context, appts []domain.Appointment) ([]domain.Appointment, error) {
	if len(appts) == 0 {
		return nil, nil
	}

	now := time.Now().UTC()
	rows := make([]domain.Appointment, len(appts))
	for i, a := range appts {
		if a.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return nil, err
			}
			a.ID = id
		}
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
		if a.UpdatedAt.IsZero() {
			a.UpdatedAt = now
		}
		rows[i] = a
	}

	if _, err := r.tx.NewInsert().Model(&rows).Exec(ctx); err != nil {
		return nil, mapWriteError(err)
	}
	return rows, nil
}

func (r schedulingTx) UpdateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	m := appt
	res, err := r.tx.NewUpdate().
		Model(&m).
		ExcludeColumn("id", "created_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return domain.Appointment{}, mapWriteError(err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return domain.Appointment{}, err
	}
	if n == 0 {
		return domain.Appointment{}, store.ErrNotFound
	}
	return m, nil
}

func (r schedulingTx) ReassignGroup(ctx context.Context, groupID string, from time.Time, newGroupID string) (int, error) {
	res, err := r.tx.NewUpdate().
		Model((*domain.Appointment)(nil)).
		Set("recurrence_group_id = ?", newGroupID).
		Set("is_recurring = ?", true).
		Set("updated_at = ?", time.Now().UTC()).
		Where("recurrence_group_id = ?", groupID).
		Where("start_time >= ?", from).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return rowsAffected(res)
}

func (r schedulingTx) DeleteAppointment(ctx context.Context, id uuid.UUID) (int, error) {
	res, err := r.tx.NewDelete().
		Model((*domain.Appointment)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	n, err := rowsAffected(res)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, store.ErrNotFound
	}
	return n, nil
}

func (r schedulingTx) DeleteGroup(ctx context.Context, groupID string, from *time.Time) (int, error) {
	q := r.tx.NewDelete().
		Model((*domain.Appointment)(nil)).
		Where("recurrence_group_id = ?", groupID)
	if from != nil {
		q = q.Where("start_time >= ?", *from)
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return 0, err
	}
	return rowsAffected(res)
}

func rowsAffected(res sql.Result) (int, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return store.ErrConflict
	}
	return err
}
