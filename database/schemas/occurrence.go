package schemas

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

// Querier is satisfied by both *sql.DB and *sql.Tx so the same queries can
// run standalone or inside a per-request transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ErrNotFound is returned when a lookup matches no occurrence.
var ErrNotFound = errors.New("occurrence not found")

// Occurrence is one scheduled calendar entry: a standalone event, or one
// weekly member of a recurring series. Date and TimeOfDay are naive local
// ISO strings ("2006-01-02", "15:04:05"); their fixed width makes string
// comparison in SQL equivalent to chronological comparison.
type Occurrence struct {
	ID          string
	Owner       string
	Date        string
	TimeOfDay   string
	Text        string
	Color       string
	Duration    float64
	IsRecurring bool
	SeriesID    string
	CreatedBy   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func CreateOccurrenceSchema() Schema {
	cols := make([]Column, 0)
	cols = append(cols,
		Column{Name: "id",
			Type:       ColumnString,
			PrimaryKey: true},
		Column{Name: "owner",
			Type: ColumnString},
		Column{Name: "date",
			Type: ColumnString},
		Column{Name: "time",
			Type: ColumnString},
		Column{Name: "text",
			Type: ColumnText},
		Column{Name: "color",
			Type: ColumnString},
		Column{Name: "duration",
			Type:           ColumnFloat,
			DefaultSQLExpr: SQLDefault("1.0")},
		Column{Name: "is_recurring",
			Type:           ColumnBool,
			DefaultSQLExpr: DefaultFalse()},
		Column{Name: "series_id",
			Type: ColumnString},
		Column{Name: "created_by",
			Type: ColumnString},
		Column{Name: "created_at",
			Type:           ColumnTimestamp,
			DefaultSQLExpr: DefaultNow()},
		Column{Name: "updated_at",
			Type:           ColumnTimestamp,
			DefaultSQLExpr: DefaultNow()},
	)

	schema := Schema{
		Name:    "occurrences",
		Columns: cols,
		// One owner never holds two occurrences in the same slot.
		Uniques: [][]string{{"owner", "date", "time"}},
		Indexes: [][]string{{"owner", "date"}, {"owner", "series_id"}},
	}
	return schema
}

const occurrenceCols = `id, owner, date, time, text, color, duration, is_recurring, series_id, created_by, created_at, updated_at`

func scanOccurrence(row interface{ Scan(...any) error }) (Occurrence, error) {
	var o Occurrence
	err := row.Scan(
		&o.ID,
		&o.Owner,
		&o.Date,
		&o.TimeOfDay,
		&o.Text,
		&o.Color,
		&o.Duration,
		&o.IsRecurring,
		&o.SeriesID,
		&o.CreatedBy,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	return o, err
}

func collectOccurrences(rows *sql.Rows, what string) ([]Occurrence, error) {
	defer rows.Close()

	out := make([]Occurrence, 0)
	for rows.Next() {
		o, err := scanOccurrence(rows)
		if err != nil {
			return nil, fmt.Errorf("%s scan: %w", what, err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s rows: %w", what, err)
	}
	return out, nil
}

func InsertOccurrence(ctx context.Context, q Querier, in Occurrence) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO occurrences (`+occurrenceCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12);
	`, in.ID, in.Owner, in.Date, in.TimeOfDay, in.Text, in.Color, in.Duration,
		in.IsRecurring, in.SeriesID, in.CreatedBy, in.CreatedAt, in.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert occurrence: %w", err)
	}
	return nil
}

// GetOccurrence fetches one occurrence by id, scoped to its owner.
// Returns ErrNotFound when the id does not resolve for that owner.
func GetOccurrence(ctx context.Context, q Querier, owner, id string) (Occurrence, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+occurrenceCols+`
		FROM occurrences
		WHERE owner = $1 AND id = $2;
	`, owner, id)

	o, err := scanOccurrence(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Occurrence{}, ErrNotFound
	}
	if err != nil {
		return Occurrence{}, fmt.Errorf("get occurrence: %w", err)
	}
	return o, nil
}

// OccurrenceExistsAt reports whether the exact (owner, date, time) slot is
// taken. excludeID may be empty; when set, that row is ignored so an edit
// does not collide with itself.
func OccurrenceExistsAt(ctx context.Context, q Querier, owner, date, timeOfDay, excludeID string) (bool, error) {
	var exists bool
	err := q.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM occurrences
			WHERE owner = $1 AND date = $2 AND time = $3 AND id <> $4
		);
	`, owner, date, timeOfDay, excludeID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("occurrence exists: %w", err)
	}
	return exists, nil
}

// ListOccurrencesInRange returns an owner's occurrences with date_from <= date <= date_to.
func ListOccurrencesInRange(ctx context.Context, q Querier, owner, dateFrom, dateTo string) ([]Occurrence, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+occurrenceCols+`
		FROM occurrences
		WHERE owner = $1 AND date >= $2 AND date <= $3
		ORDER BY date, time;
	`, owner, dateFrom, dateTo)
	if err != nil {
		return nil, fmt.Errorf("list range query: %w", err)
	}
	return collectOccurrences(rows, "list range")
}

// ListOccurrencesOnDate returns every occurrence an owner has on one date.
func ListOccurrencesOnDate(ctx context.Context, q Querier, owner, date string) ([]Occurrence, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+occurrenceCols+`
		FROM occurrences
		WHERE owner = $1 AND date = $2
		ORDER BY time;
	`, owner, date)
	if err != nil {
		return nil, fmt.Errorf("list on date query: %w", err)
	}
	return collectOccurrences(rows, "list on date")
}

// ListSeries returns all members of a series in date order. forUpdate takes
// row locks for the length of the surrounding transaction; it must only be
// set on stores that support locking reads (Postgres, not the sqlite tests).
func ListSeries(ctx context.Context, q Querier, owner, seriesID string, forUpdate bool) ([]Occurrence, error) {
	query := `
		SELECT ` + occurrenceCols + `
		FROM occurrences
		WHERE owner = $1 AND series_id = $2
		ORDER BY date, time`
	if forUpdate {
		query += `
		FOR UPDATE`
	}
	rows, err := q.QueryContext(ctx, query+";", owner, seriesID)
	if err != nil {
		return nil, fmt.Errorf("list series query: %w", err)
	}
	return collectOccurrences(rows, "list series")
}

// UpdateOccurrence overwrites every mutable field of the row matching
// (owner, id). The caller is expected to have refreshed UpdatedAt.
func UpdateOccurrence(ctx context.Context, q Querier, in Occurrence) error {
	res, err := q.ExecContext(ctx, `
		UPDATE occurrences
		SET date = $1, time = $2, text = $3, color = $4, duration = $5,
		    is_recurring = $6, series_id = $7, updated_at = $8
		WHERE owner = $9 AND id = $10;
	`, in.Date, in.TimeOfDay, in.Text, in.Color, in.Duration,
		in.IsRecurring, in.SeriesID, in.UpdatedAt, in.Owner, in.ID)
	if err != nil {
		return fmt.Errorf("update occurrence: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update occurrence rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func DeleteOccurrence(ctx context.Context, q Querier, owner, id string) (int64, error) {
	res, err := q.ExecContext(ctx, `
		DELETE FROM occurrences WHERE owner = $1 AND id = $2;
	`, owner, id)
	if err != nil {
		return 0, fmt.Errorf("delete occurrence: %w", err)
	}
	return res.RowsAffected()
}

func DeleteSeries(ctx context.Context, q Querier, owner, seriesID string) (int64, error) {
	res, err := q.ExecContext(ctx, `
		DELETE FROM occurrences WHERE owner = $1 AND series_id = $2;
	`, owner, seriesID)
	if err != nil {
		return 0, fmt.Errorf("delete series: %w", err)
	}
	return res.RowsAffected()
}

// DeleteSeriesAfter removes the members of a series dated strictly after the
// given date. The row on the date itself is kept.
func DeleteSeriesAfter(ctx context.Context, q Querier, owner, seriesID, date string) (int64, error) {
	res, err := q.ExecContext(ctx, `
		DELETE FROM occurrences WHERE owner = $1 AND series_id = $2 AND date > $3;
	`, owner, seriesID, date)
	if err != nil {
		return 0, fmt.Errorf("delete series after: %w", err)
	}
	return res.RowsAffected()
}

// IsUniqueViolation reports whether err came from the (owner, date, time)
// unique constraint, in either the Postgres or the sqlite dialect.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint")
}
