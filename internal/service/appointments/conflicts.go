package appointments

import (
	"context"
	"time"

	"github.com/google/uuid"

	"clinicsched/backend/internal/domain"
	"clinicsched/backend/internal/store"
)

type dayLister interface {
	ListProviderDay(ctx context.Context, providerID int64, day time.Time) ([]domain.Appointment, error)
}

// ConflictDetector screens a candidate interval against the provider's
// existing rows on the same date.
type ConflictDetector struct {
	categories store.CategoryReader
}

func NewConflictDetector(categories store.CategoryReader) *ConflictDetector {
	return &ConflictDetector{categories: categories}
}

// Detect returns the blocking findings for [start, start+duration). Rows in
// exclude are ignored, so an update never conflicts with the rows it edits.
func (d *ConflictDetector) Detect(ctx context.Context, rows dayLister, providerID int64, start time.Time, durationMinutes int, exclude map[uuid.UUID]struct{}) ([]domain.ConflictFinding, error) {
	end := start.Add(time.Duration(durationMinutes) * time.Minute)

	existing, err := rows.ListProviderDay(ctx, providerID, start)
	if err != nil {
		return nil, err
	}

	var overlapping []domain.Appointment
	for _, row := range existing {
		if _, skip := exclude[row.ID]; skip {
			continue
		}
		if !row.Status.Screened() {
			continue
		}
		if domain.Overlaps(start, end, row.StartTime, row.EndTime) {
			overlapping = append(overlapping, row)
		}
	}
	if len(overlapping) == 0 {
		return nil, nil
	}

	cats, err := d.lookupCategories(ctx, overlapping)
	if err != nil {
		return nil, err
	}

	var findings []domain.ConflictFinding
	for _, row := range overlapping {
		var cat *domain.Category
		if c, ok := cats[row.CategoryID]; ok {
			cat = &c
		}
		typ, reason, blocks := domain.ClassifyOverlap(row, cat)
		if !blocks {
			continue
		}
		f := domain.ConflictFinding{
			OccurrenceDate: domain.DateOf(start),
			StartTime:      start,
			EndTime:        end,
			Reason:         reason,
			Type:           typ,
			ConflictingID:  row.ID,
		}
		if cat != nil {
			f.ConflictingName = cat.Name
		}
		findings = append(findings, f)
	}
	return findings, nil
}

func (d *ConflictDetector) lookupCategories(ctx context.Context, rows []domain.Appointment) (map[int64]domain.Category, error) {
	if d.categories == nil {
		return nil, nil
	}
	seen := make(map[int64]struct{}, len(rows))
	ids := make([]int64, 0, len(rows))
	for _, row := range rows {
		if _, ok := seen[row.CategoryID]; ok {
			continue
		}
		seen[row.CategoryID] = struct{}{}
		ids = append(ids, row.CategoryID)
	}
	return d.categories.Categories(ctx, ids)
}
