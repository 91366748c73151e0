package scheduler

import (
	"context"
	"fmt"
	"time"

	"skysched/database/schemas"
)

// ConflictReport is what the advisory conflict check returns. It never
// blocks a save; callers use it to warn before submitting.
type ConflictReport struct {
	HasConflict bool
	Message     string
	Conflicting []schemas.Occurrence
}

// CheckConflict finds every occurrence on the given date whose time interval
// overlaps [time, time+duration). excludeID may be empty; when set, that
// occurrence is left out so an event being moved is not compared against
// itself.
func (m *Manager) CheckConflict(ctx context.Context, owner, date, timeOfDay string, duration float64, excludeID string) (ConflictReport, error) {
	day, err := ParseDate(date)
	if err != nil {
		return ConflictReport{}, err
	}
	timeStr, err := ParseTimeOfDay(timeOfDay)
	if err != nil {
		return ConflictReport{}, err
	}
	if duration <= 0 {
		return ConflictReport{}, validationErrorf("duration must be positive, got %v", duration)
	}

	existing, err := schemas.ListOccurrencesOnDate(ctx, m.db, owner, formatDate(day))
	if err != nil {
		return ConflictReport{}, err
	}

	conflicting := findConflicts(existing, timeStr, duration, excludeID)
	report := ConflictReport{
		HasConflict: len(conflicting) > 0,
		Conflicting: conflicting,
	}
	if report.HasConflict {
		report.Message = fmt.Sprintf("overlaps %d existing event(s)", len(conflicting))
	} else {
		report.Message = "slot is free"
	}
	return report, nil
}

// findConflicts applies the half-open interval test: [start, end) overlaps
// [s, e) iff start < e && end > s. Strict on both sides, so back-to-back
// events do not conflict.
func findConflicts(existing []schemas.Occurrence, timeStr string, duration float64, excludeID string) []schemas.Occurrence {
	start := hoursOfDay(timeStr)
	end := start + duration

	conflicting := make([]schemas.Occurrence, 0)
	for _, ev := range existing {
		if excludeID != "" && ev.ID == excludeID {
			continue
		}
		evStart := hoursOfDay(ev.TimeOfDay)
		evEnd := evStart + ev.Duration
		if start < evEnd && end > evStart {
			conflicting = append(conflicting, ev)
		}
	}
	return conflicting
}

// hoursOfDay converts a canonical HH:MM:SS string to fractional hours since
// midnight. Inputs here have already passed ParseTimeOfDay.
func hoursOfDay(timeStr string) float64 {
	t, err := time.Parse(timeLayout, timeStr)
	if err != nil {
		return 0
	}
	return float64(t.Hour()) + float64(t.Minute())/60 + float64(t.Second())/3600
}
