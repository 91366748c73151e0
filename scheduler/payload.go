package scheduler

import (
	"time"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04:05"
)

// timeLayouts are tried in priority order; the first that parses wins.
var timeLayouts = []string{"15:04:05", "15:04", "15"}

// EventPayload is the decoded body of a save-event request. A present ID
// means "edit that occurrence"; an absent ID means "create".
type EventPayload struct {
	ID          string  `json:"id,omitempty"`
	Date        string  `json:"date"`
	Time        string  `json:"time"`
	Text        string  `json:"text"`
	Color       string  `json:"color"`
	IsRecurring bool    `json:"is_recurring"`
	Duration    float64 `json:"duration"`
}

// parsedEvent is an EventPayload after boundary validation: the date is a
// real calendar date and the time is canonicalized to HH:MM:SS.
type parsedEvent struct {
	date        time.Time
	dateStr     string
	timeStr     string
	text        string
	color       string
	isRecurring bool
	duration    float64
}

// ParseDate parses an ISO YYYY-MM-DD calendar date.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, validationErrorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return d, nil
}

// ParseTimeOfDay accepts HH:MM:SS, HH:MM, or bare HH, and returns the
// canonical HH:MM:SS form.
func ParseTimeOfDay(s string) (string, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(timeLayout), nil
		}
	}
	return "", validationErrorf("invalid time %q, expected HH:MM:SS, HH:MM or HH", s)
}

func formatDate(d time.Time) string {
	return d.Format(dateLayout)
}

func parsePayload(p EventPayload) (parsedEvent, error) {
	if p.Date == "" {
		return parsedEvent{}, validationErrorf("date is required")
	}
	if p.Time == "" {
		return parsedEvent{}, validationErrorf("time is required")
	}

	date, err := ParseDate(p.Date)
	if err != nil {
		return parsedEvent{}, err
	}
	timeStr, err := ParseTimeOfDay(p.Time)
	if err != nil {
		return parsedEvent{}, err
	}

	duration := p.Duration
	if duration == 0 {
		duration = 1.0
	}
	if duration < 0 {
		return parsedEvent{}, validationErrorf("duration must be positive, got %v", duration)
	}

	return parsedEvent{
		date:        date,
		dateStr:     formatDate(date),
		timeStr:     timeStr,
		text:        p.Text,
		color:       p.Color,
		isRecurring: p.IsRecurring,
		duration:    duration,
	}, nil
}
