// Package scheduler implements the event and series manager: saving and
// deleting calendar occurrences, the weekly-series state transitions, and
// the advisory conflict check.
package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"skysched/database/schemas"
)

// A series spans at most this many occurrences, anchor included, and never
// reaches further than a year of weekly slots.
const seriesOccurrences = 52

// Editor identifies who is performing a mutation. Elevated editors may touch
// any owner's calendar; everyone else only occurrences they authored.
type Editor struct {
	ID       string
	Elevated bool
}

// SaveResult reports what a save did. SeriesID is set only when the saved
// occurrence is part of a recurring series.
type SaveResult struct {
	ID       string
	SeriesID string
	Created  bool
}

type Manager struct {
	db *sql.DB
	// lockingReads adds FOR UPDATE to series reads inside transactions.
	// Enabled on Postgres; off for the sqlite test store, which serializes
	// writers on its own.
	lockingReads bool
}

func NewManager(db *sql.DB, lockingReads bool) *Manager {
	return &Manager{db: db, lockingReads: lockingReads}
}

// SaveEvent creates or edits one occurrence for owner, on behalf of editor.
// Edits to a recurring series fan out to every member; all writes of one
// call commit or roll back together.
func (m *Manager) SaveEvent(ctx context.Context, owner string, editor Editor, payload EventPayload) (SaveResult, error) {
	parsed, err := parsePayload(payload)
	if err != nil {
		return SaveResult{}, err
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return SaveResult{}, fmt.Errorf("begin save tx: %w", err)
	}
	defer tx.Rollback()

	var result SaveResult
	if payload.ID == "" {
		result, err = m.createEvent(ctx, tx, owner, editor, parsed)
	} else {
		result, err = m.updateEvent(ctx, tx, owner, editor, payload.ID, parsed)
	}
	if err != nil {
		return SaveResult{}, err
	}

	if err := tx.Commit(); err != nil {
		return SaveResult{}, fmt.Errorf("commit save tx: %w", err)
	}
	return result, nil
}

func (m *Manager) createEvent(ctx context.Context, tx *sql.Tx, owner string, editor Editor, parsed parsedEvent) (SaveResult, error) {
	taken, err := schemas.OccurrenceExistsAt(ctx, tx, owner, parsed.dateStr, parsed.timeStr, "")
	if err != nil {
		return SaveResult{}, err
	}
	if taken {
		return SaveResult{}, duplicateErrorf("an event already exists at %s %s", parsed.dateStr, parsed.timeStr)
	}

	now := time.Now().UTC()
	anchor := schemas.Occurrence{
		ID:          uuid.NewString(),
		Owner:       owner,
		Date:        parsed.dateStr,
		TimeOfDay:   parsed.timeStr,
		Text:        parsed.text,
		Color:       parsed.color,
		Duration:    parsed.duration,
		IsRecurring: parsed.isRecurring,
		SeriesID:    uuid.NewString(),
		CreatedBy:   editor.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := schemas.InsertOccurrence(ctx, tx, anchor); err != nil {
		if schemas.IsUniqueViolation(err) {
			return SaveResult{}, duplicateErrorf("an event already exists at %s %s", parsed.dateStr, parsed.timeStr)
		}
		return SaveResult{}, err
	}

	if !parsed.isRecurring {
		return SaveResult{ID: anchor.ID, Created: true}, nil
	}

	if err := m.materializeFollowers(ctx, tx, anchor); err != nil {
		return SaveResult{}, err
	}
	return SaveResult{ID: anchor.ID, SeriesID: anchor.SeriesID, Created: true}, nil
}

// materializeFollowers fills weeks 1..51 of anchor's series. The anchor row
// itself covers week 0.
func (m *Manager) materializeFollowers(ctx context.Context, tx *sql.Tx, anchor schemas.Occurrence) error {
	start, err := ParseDate(anchor.Date)
	if err != nil {
		return err
	}
	_, err = Materialize(ctx, tx, SeriesSpec{
		Owner:      anchor.Owner,
		CreatedBy:  anchor.CreatedBy,
		Start:      start.AddDate(0, 0, 7),
		TimeOfDay:  anchor.TimeOfDay,
		Text:       anchor.Text,
		Color:      anchor.Color,
		Duration:   anchor.Duration,
		SeriesID:   anchor.SeriesID,
		WeeksAhead: seriesOccurrences - 2,
	})
	return err
}

func (m *Manager) updateEvent(ctx context.Context, tx *sql.Tx, owner string, editor Editor, id string, parsed parsedEvent) (SaveResult, error) {
	event, err := schemas.GetOccurrence(ctx, tx, owner, id)
	if errors.Is(err, schemas.ErrNotFound) {
		return SaveResult{}, notFoundErrorf("event %s not found", id)
	}
	if err != nil {
		return SaveResult{}, err
	}
	if !editor.Elevated && event.CreatedBy != editor.ID {
		return SaveResult{}, permissionErrorf("not allowed to modify this event")
	}

	taken, err := schemas.OccurrenceExistsAt(ctx, tx, owner, parsed.dateStr, parsed.timeStr, event.ID)
	if err != nil {
		return SaveResult{}, err
	}
	if taken {
		return SaveResult{}, duplicateErrorf("an event already exists at %s %s", parsed.dateStr, parsed.timeStr)
	}

	switch {
	case !event.IsRecurring && parsed.isRecurring:
		return m.promoteToSeries(ctx, tx, event, parsed)
	case event.IsRecurring && parsed.isRecurring:
		return m.updateSeries(ctx, tx, event, parsed)
	case event.IsRecurring && !parsed.isRecurring:
		return m.demoteToSingle(ctx, tx, event, parsed)
	default:
		return m.updateSingle(ctx, tx, event, parsed)
	}
}

// update-single: rewrite the row in place, no series side effects.
func (m *Manager) updateSingle(ctx context.Context, tx *sql.Tx, event schemas.Occurrence, parsed parsedEvent) (SaveResult, error) {
	event.Date = parsed.dateStr
	event.TimeOfDay = parsed.timeStr
	event.Text = parsed.text
	event.Color = parsed.color
	event.Duration = parsed.duration
	event.IsRecurring = false
	event.UpdatedAt = time.Now().UTC()

	if err := m.saveRow(ctx, tx, event); err != nil {
		return SaveResult{}, err
	}
	return SaveResult{ID: event.ID}, nil
}

// promote-to-series: the edited row becomes the anchor of a fresh series and
// 51 weekly followers are materialized after it.
func (m *Manager) promoteToSeries(ctx context.Context, tx *sql.Tx, event schemas.Occurrence, parsed parsedEvent) (SaveResult, error) {
	event.Date = parsed.dateStr
	event.TimeOfDay = parsed.timeStr
	event.Text = parsed.text
	event.Color = parsed.color
	event.Duration = parsed.duration
	event.IsRecurring = true
	event.SeriesID = uuid.NewString()
	event.UpdatedAt = time.Now().UTC()

	if err := m.saveRow(ctx, tx, event); err != nil {
		return SaveResult{}, err
	}
	if err := m.materializeFollowers(ctx, tx, event); err != nil {
		return SaveResult{}, err
	}
	return SaveResult{ID: event.ID, SeriesID: event.SeriesID}, nil
}

// update-series: fan text/color/duration and the time-of-day out to every
// member, so the whole series lands on one time while each member keeps its
// own date. Members already carrying all the new values are left untouched,
// their audit timestamps included. Dates are never rescheduled here, the
// anchor's included.
func (m *Manager) updateSeries(ctx context.Context, tx *sql.Tx, event schemas.Occurrence, parsed parsedEvent) (SaveResult, error) {
	members, err := schemas.ListSeries(ctx, tx, event.Owner, event.SeriesID, m.lockingReads)
	if err != nil {
		return SaveResult{}, err
	}

	now := time.Now().UTC()
	for _, member := range members {
		updated := member
		updated.Text = parsed.text
		updated.Color = parsed.color
		updated.Duration = parsed.duration
		updated.TimeOfDay = parsed.timeStr
		if updated == member {
			continue
		}
		updated.UpdatedAt = now
		if err := m.saveRow(ctx, tx, updated); err != nil {
			return SaveResult{}, err
		}
	}
	return SaveResult{ID: event.ID, SeriesID: event.SeriesID}, nil
}

// demote-to-single: split the series at the edited occurrence. Members dated
// after it are deleted, a replacement series carrying the pre-edit values is
// started at the next free weekly slot (dropped silently if none opens up
// within a year), and the edited row itself becomes standalone with the new
// values and a series id of its own.
func (m *Manager) demoteToSingle(ctx context.Context, tx *sql.Tx, event schemas.Occurrence, parsed parsedEvent) (SaveResult, error) {
	original := event // pre-edit values seed the replacement series

	if _, err := schemas.DeleteSeriesAfter(ctx, tx, event.Owner, event.SeriesID, parsed.dateStr); err != nil {
		return SaveResult{}, err
	}

	if err := m.reseedSeries(ctx, tx, original, parsed.date); err != nil {
		return SaveResult{}, err
	}

	event.Text = parsed.text
	event.Color = parsed.color
	event.Duration = parsed.duration
	event.IsRecurring = false
	event.SeriesID = uuid.NewString()
	event.UpdatedAt = time.Now().UTC()
	if err := m.saveRow(ctx, tx, event); err != nil {
		return SaveResult{}, err
	}
	return SaveResult{ID: event.ID}, nil
}

// reseedSeries starts a replacement series with original's values at the
// first weekly slot on or after splitDate where (owner, date, time) is free.
// The edited occurrence still sits in week 0 when its time was not changed,
// so the search normally lands one week out. Past a year of occupied slots
// the replacement is simply not created.
func (m *Manager) reseedSeries(ctx context.Context, tx *sql.Tx, original schemas.Occurrence, splitDate time.Time) error {
	limit := splitDate.AddDate(0, 0, 7*seriesOccurrences)

	start := splitDate
	for !start.After(limit) {
		taken, err := schemas.OccurrenceExistsAt(ctx, tx, original.Owner, formatDate(start), original.TimeOfDay, "")
		if err != nil {
			return err
		}
		if !taken {
			break
		}
		start = start.AddDate(0, 0, 7)
	}
	if start.After(limit) {
		return nil
	}

	_, err := Materialize(ctx, tx, SeriesSpec{
		Owner:      original.Owner,
		CreatedBy:  original.CreatedBy,
		Start:      start,
		TimeOfDay:  original.TimeOfDay,
		Text:       original.Text,
		Color:      original.Color,
		Duration:   original.Duration,
		SeriesID:   uuid.NewString(),
		WeeksAhead: seriesOccurrences - 1,
	})
	return err
}

// saveRow writes one occurrence back, translating constraint hits into the
// duplicate error so a mid-series collision rolls the whole request back
// with a meaningful cause.
func (m *Manager) saveRow(ctx context.Context, tx *sql.Tx, event schemas.Occurrence) error {
	err := schemas.UpdateOccurrence(ctx, tx, event)
	if schemas.IsUniqueViolation(err) {
		return duplicateErrorf("an event already exists at %s %s", event.Date, event.TimeOfDay)
	}
	return err
}

// DeleteEvent removes one occurrence, or its entire series when
// deleteRecurring is set.
func (m *Manager) DeleteEvent(ctx context.Context, owner string, editor Editor, id string, deleteRecurring bool) (int64, error) {
	if id == "" {
		return 0, validationErrorf("id is required")
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin delete tx: %w", err)
	}
	defer tx.Rollback()

	event, err := schemas.GetOccurrence(ctx, tx, owner, id)
	if errors.Is(err, schemas.ErrNotFound) {
		return 0, notFoundErrorf("event %s not found", id)
	}
	if err != nil {
		return 0, err
	}
	if !editor.Elevated && event.CreatedBy != editor.ID {
		return 0, permissionErrorf("not allowed to delete this event")
	}

	var deleted int64
	if deleteRecurring {
		deleted, err = schemas.DeleteSeries(ctx, tx, owner, event.SeriesID)
	} else {
		deleted, err = schemas.DeleteOccurrence(ctx, tx, owner, id)
	}
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit delete tx: %w", err)
	}
	return deleted, nil
}

// LoadEvents lists an owner's occurrences with dates in [dateFrom, dateTo],
// both inclusive.
func (m *Manager) LoadEvents(ctx context.Context, owner, dateFrom, dateTo string) ([]schemas.Occurrence, error) {
	from, err := ParseDate(dateFrom)
	if err != nil {
		return nil, err
	}
	to, err := ParseDate(dateTo)
	if err != nil {
		return nil, err
	}
	return schemas.ListOccurrencesInRange(ctx, m.db, owner, formatDate(from), formatDate(to))
}

// LoadSeriesEvents lists every member of one series.
func (m *Manager) LoadSeriesEvents(ctx context.Context, owner, seriesID string) ([]schemas.Occurrence, error) {
	if seriesID == "" {
		return nil, validationErrorf("series_id is required")
	}
	return schemas.ListSeries(ctx, m.db, owner, seriesID, false)
}
