package domain

import (
	"math"
	"time"
)

// DeriveDueDate returns beg plus estDays days, truncated to the UTC day.
// Negative estimates yield a date before beg.
func DeriveDueDate(beg time.Time, estDays float64) time.Time {
	d := time.Duration(math.Round(estDays * float64(24*time.Hour)))
	due := beg.UTC().Add(d)
	return time.Date(due.Year(), due.Month(), due.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD date.
func ParseDate(field, s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, ValidationError{Field: field, Reason: "expected YYYY-MM-DD"}
	}
	return t, nil
}

// FormatDate renders t as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}
