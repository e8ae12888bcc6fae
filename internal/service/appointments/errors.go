package appointments

import (
	"errors"
	"fmt"
	"time"

	"clinicsched/backend/internal/domain"
)

type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

// NewValidationError reports input the caller must correct.
func NewValidationError(msg string) error {
	return &ValidationError{msg: msg}
}

func validationError(msg string) error {
	return NewValidationError(msg)
}

// ErrForbidden is returned when a caller modifies another provider's availability block.
var ErrForbidden = errors.New("availability block belongs to another provider")

// ConflictError aborts a create or update whose occurrences overlap blocking
// bookings. It is recoverable: the caller may retry with the override flag.
type ConflictError struct {
	Findings    []domain.ConflictFinding
	Occurrences int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%d scheduling conflict(s) across %d of %d occurrence(s)", len(e.Findings), e.ConflictingDates(), e.Occurrences)
}

// ConflictingDates counts distinct occurrence dates with at least one finding.
func (e *ConflictError) ConflictingDates() int {
	seen := make(map[time.Time]struct{}, len(e.Findings))
	for _, f := range e.Findings {
		seen[f.OccurrenceDate] = struct{}{}
	}
	return len(seen)
}
