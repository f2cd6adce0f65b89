package types

import (
	"fmt"
	"time"
)

// Date is a calendar date, stored as whole days since the Unix epoch (UTC).
// The integer representation keeps day arithmetic for retention windows an
// ordinary subtraction.
type Date int32

// DateOf returns the calendar date of the given instant in UTC.
func DateOf(t time.Time) Date {
	t = t.UTC()
	days := t.Unix() / 86400
	if t.Unix() < 0 && t.Unix()%86400 != 0 {
		days--
	}
	return Date(days)
}

// ParseDate parses a date in YYYY-MM-DD form.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return 0, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return DateOf(t), nil
}

// Time returns the date as midnight UTC.
func (d Date) Time() time.Time {
	return time.Unix(int64(d)*86400, 0).UTC()
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	return d.Time().Format("2006-01-02")
}

// AddDays returns the date n days later.
func (d Date) AddDays(n int) Date {
	return d + Date(n)
}

// DaysSince returns the number of whole days from other to d.
func (d Date) DaysSince(other Date) int {
	return int(d - other)
}
