package domain

import (
	"fmt"
	"time"
)

// Date is a calendar day without a time zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the calendar day of t as seen in loc.
func DateOf(t time.Time, loc *time.Location) Date {
	if loc != nil {
		t = t.In(loc)
	}
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate parses YYYY-MM-DD.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return DateOf(t, nil), nil
}

// IsZero reports whether the date is unset.
func (d Date) IsZero() bool { return d == Date{} }

// Before reports whether d is strictly earlier than other.
func (d Date) Before(other Date) bool {
	if d.Year != other.Year {
		return d.Year < other.Year
	}
	if d.Month != other.Month {
		return d.Month < other.Month
	}
	return d.Day < other.Day
}

// In returns midnight of d in loc.
func (d Date) In(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// AddDays shifts the date by n days.
func (d Date) AddDays(n int) Date {
	return DateOf(d.In(time.UTC).AddDate(0, 0, n), time.UTC)
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// DateRange is an inclusive window. The zero value means "no date filter".
type DateRange struct {
	Start Date
	End   Date
}

// IsZero reports whether no window is set.
func (r DateRange) IsZero() bool { return r.Start.IsZero() && r.End.IsZero() }

// Contains reports whether d falls inside the window.
func (r DateRange) Contains(d Date) bool {
	return !d.Before(r.Start) && !r.End.Before(d)
}

// FilterSpec is the declarative filter applied to a dataset.
type FilterSpec struct {
	DateRange        DateRange
	IncludeCancelled bool
	// WarehouseTypes restricts rows to these warehouse labels; empty disables.
	WarehouseTypes []string
}

// NoticeKind classifies corrective actions taken by the filter engine.
type NoticeKind string

const (
	NoticeDateRangeSwapped NoticeKind = "date_range_swapped"
	NoticeSchemaMismatch   NoticeKind = "schema_mismatch"
)

// Notice is a non-fatal signal raised while filtering.
type Notice struct {
	Kind    NoticeKind
	Message string
}
