package appointments

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"clinicsched/backend/internal/domain"
	"clinicsched/backend/internal/store"
)

// Metrics exposes counters for scheduling outcomes. A nil *Metrics is a no-op.
type Metrics struct {
	requestsTotal      *prometheus.CounterVec
	occurrencesCreated prometheus.Counter
	conflictsTotal     *prometheus.CounterVec
	seriesSplits       prometheus.Counter
	rowsUpdated        *prometheus.CounterVec
	rowsDeleted        *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicsched",
			Subsystem: "appointments",
			Name:      "requests_total",
			Help:      "Scheduling operations by outcome",
		}, []string{"operation", "outcome"}),
		occurrencesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clinicsched",
			Subsystem: "appointments",
			Name:      "occurrences_created_total",
			Help:      "Appointment rows inserted",
		}),
		conflictsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicsched",
			Subsystem: "appointments",
			Name:      "conflicts_total",
			Help:      "Conflict findings by type and whether the write went ahead",
		}, []string{"type", "overridden"}),
		seriesSplits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clinicsched",
			Subsystem: "appointments",
			Name:      "series_splits_total",
			Help:      "Recurrence groups split by future-scoped edits",
		}),
		rowsUpdated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicsched",
			Subsystem: "appointments",
			Name:      "rows_updated_total",
			Help:      "Appointment rows updated by scope",
		}, []string{"scope"}),
		rowsDeleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicsched",
			Subsystem: "appointments",
			Name:      "rows_deleted_total",
			Help:      "Appointment rows deleted by scope",
		}, []string{"scope"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.requestsTotal, m.occurrencesCreated, m.conflictsTotal, m.seriesSplits, m.rowsUpdated, m.rowsDeleted)
	return m
}

func (m *Metrics) ObserveRequest(operation string, err error) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(operation, outcome(err)).Inc()
}

func (m *Metrics) ObserveCreated(n int) {
	if m == nil {
		return
	}
	m.occurrencesCreated.Add(float64(n))
}

func (m *Metrics) ObserveConflicts(findings []domain.ConflictFinding, overridden bool) {
	if m == nil {
		return
	}
	label := "false"
	if overridden {
		label = "true"
	}
	for _, f := range findings {
		m.conflictsTotal.WithLabelValues(string(f.Type), label).Inc()
	}
}

func (m *Metrics) ObserveSplit() {
	if m == nil {
		return
	}
	m.seriesSplits.Inc()
}

func (m *Metrics) ObserveUpdated(scope SeriesScope, n int) {
	if m == nil {
		return
	}
	m.rowsUpdated.WithLabelValues(string(scope)).Add(float64(n))
}

func (m *Metrics) ObserveDeleted(scope SeriesScope, n int) {
	if m == nil {
		return
	}
	m.rowsDeleted.WithLabelValues(string(scope)).Add(float64(n))
}

func outcome(err error) string {
	var conflictErr *ConflictError
	switch {
	case err == nil:
		return "ok"
	case isValidation(err):
		return "invalid"
	case errors.As(err, &conflictErr):
		return "conflict"
	case errors.Is(err, store.ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, store.ErrIdempotencyConflict), errors.Is(err, store.ErrConflict):
		return "rejected"
	default:
		return "error"
	}
}
