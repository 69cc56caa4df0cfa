package ledger

import (
	"database/sql"
	"strings"
	"time"
)

// timeLayout has fixed-width fractions so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// parseStoredTime returns the zero time for NULL or unparseable values.
func parseStoredTime(value sql.NullString) time.Time {
	if !value.Valid {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, value.String)
	if err != nil {
		return time.Time{}
	}
	return t
}

// nullIfEmpty stores empty strings as NULL.
func nullIfEmpty(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}

func placeholders(count int) string {
	if count <= 0 {
		return ""
	}
	return "?" + strings.Repeat(",?", count-1)
}
