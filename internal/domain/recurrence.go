package domain

import (
	"errors"
	"sort"
	"time"
)

// Safety ceilings for expansion. They bound work for malformed rules and
// are not business limits.
const (
	MaxRecurrenceWeeks       = 260
	MaxRecurrenceOccurrences = 365
)

var (
	ErrNoWeekdays         = errors.New("at least one weekday is required")
	ErrInvalidWeekday     = errors.New("invalid weekday")
	ErrInvalidInterval    = errors.New("interval must be at least 1")
	ErrInvalidTermination = errors.New("exactly one of count or end date is required")
	ErrInvalidCount       = errors.New("count must be at least 1")
)

// RecurrenceRule is a weekly rule. Exactly one of Count and Until is set.
type RecurrenceRule struct {
	Weekdays      []time.Weekday
	IntervalWeeks int
	Count         int
	Until         *time.Time
}

func (r RecurrenceRule) Validate() error {
	if len(r.Weekdays) == 0 {
		return ErrNoWeekdays
	}
	for _, wd := range r.Weekdays {
		if wd < time.Sunday || wd > time.Saturday {
			return ErrInvalidWeekday
		}
	}
	if r.IntervalWeeks < 1 {
		return ErrInvalidInterval
	}
	if r.Count < 0 {
		return ErrInvalidCount
	}
	if (r.Count > 0) == (r.Until != nil) {
		return ErrInvalidTermination
	}
	return nil
}

// ExpandRecurrence returns the ascending, duplicate-free occurrence dates of
// rule starting on anchor's calendar day. Dates are midnights in anchor's
// location.
//
// For week offset w the week anchor is anchor + w*interval*7 days, and each
// selected weekday contributes its first date on or after that week anchor.
// Within a week candidates are taken by distance from the week anchor, which
// keeps the whole sequence sorted. Expansion stops once Count dates are
// produced or a candidate passes Until, and in any case after
// MaxRecurrenceWeeks weeks or MaxRecurrenceOccurrences dates.
func ExpandRecurrence(anchor time.Time, rule RecurrenceRule) ([]time.Time, error) {
	if err := rule.Validate(); err != nil {
		return nil, err
	}

	start := DateOf(anchor)
	offsets := weekdayOffsets(start.Weekday(), rule.Weekdays)

	var until time.Time
	if rule.Until != nil {
		u := rule.Until.In(start.Location())
		until = DateOf(u)
	}

	limit := MaxRecurrenceOccurrences
	if rule.Count > 0 && rule.Count < limit {
		limit = rule.Count
	}

	out := make([]time.Time, 0, min(limit, 64))
	for w := 0; w < MaxRecurrenceWeeks; w++ {
		weekAnchor := start.AddDate(0, 0, w*rule.IntervalWeeks*7)
		for _, off := range offsets {
			d := weekAnchor.AddDate(0, 0, off)
			if d.Before(start) {
				continue
			}
			if rule.Until != nil && d.After(until) {
				return out, nil
			}
			out = append(out, d)
			if len(out) >= limit {
				return out, nil
			}
		}
	}
	return out, nil
}

// weekdayOffsets maps each distinct selected weekday to its distance in days
// (0..6) from from, ascending.
func weekdayOffsets(from time.Weekday, weekdays []time.Weekday) []int {
	seen := make(map[int]struct{}, len(weekdays))
	out := make([]int, 0, len(weekdays))
	for _, wd := range weekdays {
		off := (int(wd) - int(from) + 7) % 7
		if _, ok := seen[off]; ok {
			continue
		}
		seen[off] = struct{}{}
		out = append(out, off)
	}
	sort.Ints(out)
	return out
}
