package tradejournal

import (
	"database/sql"
	"time"
)

const monthTokenLayout = "2006-01"

// MonthToken returns the quota month (YYYY-MM) containing t, in UTC.
func MonthToken(t time.Time) string {
	return t.UTC().Format(monthTokenLayout)
}

// NextMonthStart returns the first instant of the UTC month after t.
func NextMonthStart(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month()+1, 1, 0, 0, 0, 0, time.UTC)
}

func monthStart(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func nullableTimestamp(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return formatTimestamp(*t)
}

func parseTimestamp(value string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, value)
}

func parseNullTimestamp(value sql.NullString) (*time.Time, error) {
	if !value.Valid || value.String == "" {
		return nil, nil
	}
	t, err := parseTimestamp(value.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
