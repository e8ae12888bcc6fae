package domain

import (
	"testing"
	"time"
)

func TestExpandRecurrence_Validation(t *testing.T) {
	anchor := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	until := anchor.AddDate(0, 1, 0)

	tests := []struct {
		name    string
		rule    RecurrenceRule
		wantErr error
	}{
		{
			name:    "empty weekday set",
			rule:    RecurrenceRule{IntervalWeeks: 1, Count: 3},
			wantErr: ErrNoWeekdays,
		},
		{
			name:    "invalid weekday",
			rule:    RecurrenceRule{Weekdays: []time.Weekday{7}, IntervalWeeks: 1, Count: 3},
			wantErr: ErrInvalidWeekday,
		},
		{
			name:    "zero interval",
			rule:    RecurrenceRule{Weekdays: []time.Weekday{time.Monday}, Count: 3},
			wantErr: ErrInvalidInterval,
		},
		{
			name:    "no termination",
			rule:    RecurrenceRule{Weekdays: []time.Weekday{time.Monday}, IntervalWeeks: 1},
			wantErr: ErrInvalidTermination,
		},
		{
			name:    "both terminations",
			rule:    RecurrenceRule{Weekdays: []time.Weekday{time.Monday}, IntervalWeeks: 1, Count: 2, Until: &until},
			wantErr: ErrInvalidTermination,
		},
		{
			name:    "negative count",
			rule:    RecurrenceRule{Weekdays: []time.Weekday{time.Monday}, IntervalWeeks: 1, Count: -1},
			wantErr: ErrInvalidCount,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ExpandRecurrence(anchor, tt.rule)
			if err != tt.wantErr {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestExpandRecurrence_MondayWednesdayCount(t *testing.T) {
	monday := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

	dates, err := ExpandRecurrence(monday, RecurrenceRule{
		Weekdays:      []time.Weekday{time.Wednesday, time.Monday},
		IntervalWeeks: 1,
		Count:         4,
	})
	if err != nil {
		t.Fatalf("ExpandRecurrence error: %v", err)
	}

	want := []time.Time{monday, monday.AddDate(0, 0, 2), monday.AddDate(0, 0, 7), monday.AddDate(0, 0, 9)}
	if len(dates) != len(want) {
		t.Fatalf("len(dates) = %d, want %d (%v)", len(dates), len(want), dates)
	}
	for i := range want {
		if !dates[i].Equal(want[i]) {
			t.Fatalf("dates[%d] = %v, want %v", i, dates[i], want[i])
		}
	}
}

func TestExpandRecurrence_CountProperties(t *testing.T) {
	anchors := []time.Time{
		time.Date(2026, 1, 4, 14, 30, 0, 0, time.UTC), // Sunday, non-midnight
		time.Date(2026, 1, 7, 0, 0, 0, 0, time.UTC),   // Wednesday
		time.Date(2026, 2, 27, 0, 0, 0, 0, time.UTC),  // Friday, month boundary
	}
	weekdaySets := [][]time.Weekday{
		{time.Monday},
		{time.Monday, time.Wednesday, time.Friday},
		{time.Saturday, time.Sunday},
		{time.Sunday, time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday},
	}

	for _, anchor := range anchors {
		for _, wds := range weekdaySets {
			for _, interval := range []int{1, 2, 3} {
				for _, count := range []int{1, 5, 17} {
					dates, err := ExpandRecurrence(anchor, RecurrenceRule{Weekdays: wds, IntervalWeeks: interval, Count: count})
					if err != nil {
						t.Fatalf("ExpandRecurrence error: %v", err)
					}
					if len(dates) != count {
						t.Fatalf("anchor=%v weekdays=%v interval=%d: len = %d, want %d", anchor, wds, interval, len(dates), count)
					}
					assertAscendingFrom(t, DateOf(anchor), dates)
					for _, d := range dates {
						if !containsWeekday(wds, d.Weekday()) {
							t.Fatalf("date %v has unselected weekday %v", d, d.Weekday())
						}
					}
				}
			}
		}
	}
}

func TestExpandRecurrence_UntilBound(t *testing.T) {
	anchor := time.Date(2026, 1, 7, 0, 0, 0, 0, time.UTC) // Wednesday
	until := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)   // Monday

	dates, err := ExpandRecurrence(anchor, RecurrenceRule{
		Weekdays:      []time.Weekday{time.Monday, time.Wednesday},
		IntervalWeeks: 1,
		Until:         &until,
	})
	if err != nil {
		t.Fatalf("ExpandRecurrence error: %v", err)
	}
	if len(dates) == 0 {
		t.Fatalf("expected dates")
	}
	assertAscendingFrom(t, anchor, dates)
	for _, d := range dates {
		if d.After(until) {
			t.Fatalf("date %v after until %v", d, until)
		}
	}
	last := dates[len(dates)-1]
	if !last.Equal(until) {
		t.Fatalf("last date = %v, want until %v to be included", last, until)
	}
}

func TestExpandRecurrence_UntilBeforeAnchorTerminatesEmpty(t *testing.T) {
	anchor := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	until := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	dates, err := ExpandRecurrence(anchor, RecurrenceRule{
		Weekdays:      []time.Weekday{time.Monday},
		IntervalWeeks: 4,
		Until:         &until,
	})
	if err != nil {
		t.Fatalf("ExpandRecurrence error: %v", err)
	}
	if len(dates) != 0 {
		t.Fatalf("len(dates) = %d, want 0", len(dates))
	}
}

func TestExpandRecurrence_Ceilings(t *testing.T) {
	anchor := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

	dates, err := ExpandRecurrence(anchor, RecurrenceRule{
		Weekdays:      []time.Weekday{time.Monday, time.Tuesday, time.Wednesday},
		IntervalWeeks: 1,
		Count:         1000,
	})
	if err != nil {
		t.Fatalf("ExpandRecurrence error: %v", err)
	}
	if len(dates) != MaxRecurrenceOccurrences {
		t.Fatalf("len(dates) = %d, want %d", len(dates), MaxRecurrenceOccurrences)
	}

	farUntil := anchor.AddDate(50, 0, 0)
	dates, err = ExpandRecurrence(anchor, RecurrenceRule{
		Weekdays:      []time.Weekday{time.Monday},
		IntervalWeeks: 1,
		Until:         &farUntil,
	})
	if err != nil {
		t.Fatalf("ExpandRecurrence error: %v", err)
	}
	if len(dates) != MaxRecurrenceWeeks {
		t.Fatalf("len(dates) = %d, want %d", len(dates), MaxRecurrenceWeeks)
	}
}

func TestExpandRecurrence_DeduplicatesWeekdays(t *testing.T) {
	anchor := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

	dates, err := ExpandRecurrence(anchor, RecurrenceRule{
		Weekdays:      []time.Weekday{time.Friday, time.Monday, time.Friday},
		IntervalWeeks: 2,
		Count:         4,
	})
	if err != nil {
		t.Fatalf("ExpandRecurrence error: %v", err)
	}
	want := []time.Time{anchor, anchor.AddDate(0, 0, 4), anchor.AddDate(0, 0, 14), anchor.AddDate(0, 0, 18)}
	for i := range want {
		if !dates[i].Equal(want[i]) {
			t.Fatalf("dates[%d] = %v, want %v", i, dates[i], want[i])
		}
	}
}

func assertAscendingFrom(t *testing.T, anchor time.Time, dates []time.Time) {
	t.Helper()
	for i, d := range dates {
		if d.Before(anchor) {
			t.Fatalf("date %v before anchor %v", d, anchor)
		}
		if i > 0 && !dates[i-1].Before(d) {
			t.Fatalf("dates not strictly ascending: %v then %v", dates[i-1], d)
		}
	}
}

func containsWeekday(set []time.Weekday, wd time.Weekday) bool {
	for _, s := range set {
		if s == wd {
			return true
		}
	}
	return false
}
