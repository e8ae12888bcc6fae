package domain

import (
	"testing"
	"time"
)

func TestOverlaps_HalfOpen(t *testing.T) {
	at := func(h, m int) time.Time { return time.Date(2026, 1, 5, h, m, 0, 0, time.UTC) }

	tests := []struct {
		name         string
		aStart, aEnd time.Time
		bStart, bEnd time.Time
		want         bool
	}{
		{"partial overlap", at(10, 0), at(10, 50), at(10, 30), at(11, 20), true},
		{"touching", at(10, 0), at(10, 50), at(10, 50), at(11, 40), false},
		{"contained", at(9, 0), at(12, 0), at(10, 0), at(10, 30), true},
		{"identical", at(10, 0), at(10, 50), at(10, 0), at(10, 50), true},
		{"disjoint", at(8, 0), at(9, 0), at(10, 0), at(11, 0), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Overlaps(tt.aStart, tt.aEnd, tt.bStart, tt.bEnd); got != tt.want {
				t.Fatalf("Overlaps = %v, want %v", got, tt.want)
			}
			if got := Overlaps(tt.bStart, tt.bEnd, tt.aStart, tt.aEnd); got != tt.want {
				t.Fatalf("Overlaps (swapped) = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClassifyOverlap(t *testing.T) {
	start := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)
	block := Appointment{ProviderID: 1, ClientID: 0, StartTime: start, EndTime: start.Add(time.Hour)}
	booking := Appointment{ProviderID: 1, ClientID: 42, Title: "Intake", StartTime: start, EndTime: start.Add(50 * time.Minute)}

	tests := []struct {
		name     string
		existing Appointment
		category *Category
		wantType ConflictType
		wantOK   bool
	}{
		{"lunch block", block, &Category{Name: "Lunch", IsAvailability: true}, ConflictTypeAvailability, true},
		{"keyword is case-insensitive substring", block, &Category{Name: "Out of Office", IsAvailability: true}, ConflictTypeAvailability, true},
		{"supervision block", block, &Category{Name: "Supervision", IsAvailability: true}, "", false},
		{"unknown category block", block, nil, "", false},
		{"client appointment", booking, &Category{Name: "Office Visit"}, ConflictTypeAppointment, true},
		{"client appointment unknown category", booking, nil, ConflictTypeAppointment, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			typ, reason, ok := ClassifyOverlap(tt.existing, tt.category)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if typ != tt.wantType {
				t.Fatalf("type = %q, want %q", typ, tt.wantType)
			}
			if ok && reason == "" {
				t.Fatalf("expected a reason")
			}
		})
	}
}

func TestCategoryBlocks(t *testing.T) {
	for _, name := range []string{"Vacation", "STAFF MEETING", "Coffee Break", "Holiday", "Away", "Unavailable"} {
		if !(Category{Name: name}).Blocks() {
			t.Fatalf("%q should block", name)
		}
	}
	for _, name := range []string{"Supervision", "Admin Time", ""} {
		if (Category{Name: name}).Blocks() {
			t.Fatalf("%q should not block", name)
		}
	}
}
