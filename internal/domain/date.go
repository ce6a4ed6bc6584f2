package domain

import (
	"fmt"
	"time"
)

// DateFormat is the canonical text form of a Date.
const DateFormat = "2006-01-02"

// Date is a civil calendar date with day granularity. It carries no time zone
// and is safe to use as a map key.
type Date struct {
	y int
	m time.Month
	d int
}

// NewDate returns a normalized Date, so NewDate(2024, 1, 32) is 2024-02-01.
func NewDate(year int, month time.Month, day int) Date {
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return Date{t.Year(), t.Month(), t.Day()}
}

// DateOf returns the calendar date of t as observed in loc.
func DateOf(t time.Time, loc *time.Location) Date {
	if loc == nil {
		loc = time.UTC
	}
	return NewDate(t.In(loc).Date())
}

// ParseDate parses a YYYY-MM-DD string. Single-digit months and days are accepted.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-1-2", s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD: %w", s, err)
	}
	return NewDate(t.Date()), nil
}

// MustParseDate is like ParseDate but panics on error.
func MustParseDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err.Error())
	}
	return d
}

func (d Date) time() time.Time { return time.Date(d.y, d.m, d.d, 0, 0, 0, 0, time.UTC) }

// Year returns the year of d.
func (d Date) Year() int { return d.y }

// Month returns the month of d.
func (d Date) Month() time.Month { return d.m }

// Day returns the day of the month.
func (d Date) Day() int { return d.d }

// Weekday returns the day of the week.
func (d Date) Weekday() time.Weekday { return d.time().Weekday() }

// IsZero reports whether d is the zero Date.
func (d Date) IsZero() bool { return d == Date{} }

// Add returns the date n days after d. Negative n moves backwards.
func (d Date) Add(n int) Date { return NewDate(d.y, d.m, d.d+n) }

// Prev returns the day before d.
func (d Date) Prev() Date { return d.Add(-1) }

// Compare returns -1, 0 or +1 depending on whether d is before, equal to or after x.
func (d Date) Compare(x Date) int { return d.time().Compare(x.time()) }

// Before reports whether d is strictly before x.
func (d Date) Before(x Date) bool { return d.Compare(x) < 0 }

// After reports whether d is strictly after x.
func (d Date) After(x Date) bool { return d.Compare(x) > 0 }

// String formats d as YYYY-MM-DD.
func (d Date) String() string { return d.time().Format(DateFormat) }

// Start returns midnight of d in loc.
func (d Date) Start(loc *time.Location) time.Time {
	return time.Date(d.y, d.m, d.d, 0, 0, 0, 0, loc)
}

func (d Date) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// MonthKey identifies a calendar month.
type MonthKey struct {
	Year  int
	Month time.Month
}

// MonthOf returns the month containing d.
func MonthOf(d Date) MonthKey { return MonthKey{Year: d.y, Month: d.m} }

// String formats the month as YYYY-MM.
func (m MonthKey) String() string { return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month)) }

// First returns the first day of the month.
func (m MonthKey) First() Date { return NewDate(m.Year, m.Month, 1) }

// Last returns the last day of the month.
func (m MonthKey) Last() Date { return NewDate(m.Year, m.Month+1, 0) }

// Days returns the number of days in the month.
func (m MonthKey) Days() int { return m.Last().Day() }

// Shift returns the month n months after m.
func (m MonthKey) Shift(n int) MonthKey { return MonthOf(NewDate(m.Year, m.Month+time.Month(n), 1)) }

// ParseMonth parses a YYYY-MM string.
func ParseMonth(s string) (MonthKey, error) {
	t, err := time.Parse("2006-1", s)
	if err != nil {
		return MonthKey{}, fmt.Errorf("invalid month %q, want YYYY-MM: %w", s, err)
	}
	return MonthKey{Year: t.Year(), Month: t.Month()}, nil
}
