package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"

	"skysched/database/schemas"
)

// SeriesSpec describes one run of weekly occurrences to materialize.
// WeeksAhead is inclusive: weeks 0..WeeksAhead are attempted, so the run
// spans WeeksAhead+1 candidate slots starting at Start.
type SeriesSpec struct {
	Owner      string
	CreatedBy  string
	Start      time.Time
	TimeOfDay  string // canonical HH:MM:SS
	Text       string
	Color      string
	Duration   float64
	SeriesID   string
	WeeksAhead int
}

// Materialize fills the weekly slots of a series, returning how many rows it
// created. A slot already holding an occurrence for (owner, date, time) is
// skipped, never overwritten: a user may have customized that exact slot,
// and the skip is also what makes re-running with the same spec a no-op.
func Materialize(ctx context.Context, q schemas.Querier, spec SeriesSpec) (int, error) {
	created := 0
	now := time.Now().UTC()

	for week := 0; week <= spec.WeeksAhead; week++ {
		candidate := spec.Start.AddDate(0, 0, 7*week)
		dateStr := formatDate(candidate)

		taken, err := schemas.OccurrenceExistsAt(ctx, q, spec.Owner, dateStr, spec.TimeOfDay, "")
		if err != nil {
			return created, err
		}
		if taken {
			continue
		}

		err = schemas.InsertOccurrence(ctx, q, schemas.Occurrence{
			ID:          uuid.NewString(),
			Owner:       spec.Owner,
			Date:        dateStr,
			TimeOfDay:   spec.TimeOfDay,
			Text:        spec.Text,
			Color:       spec.Color,
			Duration:    spec.Duration,
			IsRecurring: true,
			SeriesID:    spec.SeriesID,
			CreatedBy:   spec.CreatedBy,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
		if err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}
