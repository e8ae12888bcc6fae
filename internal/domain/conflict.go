package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type ConflictType string

const (
	ConflictTypeAvailability ConflictType = "availability"
	ConflictTypeAppointment  ConflictType = "appointment"
)

// ConflictFinding describes one existing row that blocks a candidate occurrence.
type ConflictFinding struct {
	OccurrenceDate  time.Time
	StartTime       time.Time
	EndTime         time.Time
	Reason          string
	Type            ConflictType
	ConflictingID   uuid.UUID
	ConflictingName string
}

// Overlaps uses half-open intervals, so touching intervals do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

// ClassifyOverlap decides whether an existing row that overlaps the candidate
// blocks it. category is the existing row's category; nil means unknown, in
// which case the row's ClientID decides whether it is an availability block.
func ClassifyOverlap(existing Appointment, category *Category) (ConflictType, string, bool) {
	isBlock := existing.IsAvailabilityBlock()
	name := ""
	if category != nil {
		isBlock = category.IsAvailability
		name = category.Name
	}

	span := existing.StartTime.Format("15:04") + "-" + existing.EndTime.Format("15:04")
	if isBlock {
		if !NameBlocks(name) {
			return "", "", false
		}
		return ConflictTypeAvailability, fmt.Sprintf("Provider is unavailable (%s) %s", name, span), true
	}

	label := existing.Title
	if label == "" {
		label = name
	}
	if label == "" {
		return ConflictTypeAppointment, fmt.Sprintf("Provider already has an appointment %s", span), true
	}
	return ConflictTypeAppointment, fmt.Sprintf("Provider already has an appointment (%s) %s", label, span), true
}
