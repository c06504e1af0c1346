package db

import (
	"fmt"
	"time"
)

// SQLite has no native date or timestamp types. Timestamps are stored as
// fixed-width UTC text so lexical order matches chronological order, and
// calendar dates as YYYY-MM-DD.
const (
	TimestampLayout = "2006-01-02T15:04:05.000000000Z"
	DateLayout      = "2006-01-02"
)

// FormatTimestamp renders t for a SQLite TEXT timestamp column.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp parses a value written by FormatTimestamp. RFC 3339 text
// from rows written by other tools is accepted too.
func ParseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(TimestampLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

// FormatDate renders the calendar date of t.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// ParseDate parses a YYYY-MM-DD date in UTC.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}
