// Package period decides accounting period boundaries. A period is a
// calendar month identified by its end date; whether it has closed is
// judged against "now" shifted by the owning organization's UTC offset.
// The rule lives behind an interface because it is tenant policy, not
// ledger logic.
package period

import (
	"time"

	"go.uber.org/fx"
)

// Resolver converts instants into accounting period keys and decides
// whether a period has closed.
type Resolver interface {
	// PeriodEnd returns the period key for t: the last day of t's month
	// at midnight UTC.
	PeriodEnd(t time.Time) time.Time

	// IsClosed reports whether the period has closed relative to now
	// adjusted by the organization's UTC offset.
	IsClosed(periodEnd time.Time, utcOffsetMinutes int, now time.Time) bool

	// CloseOfDayWindow returns the start of the current UTC day, the
	// window the accrual sweep dedupes daily snapshots against.
	CloseOfDayWindow(now time.Time) time.Time
}

type monthEndResolver struct{}

// NewMonthEndResolver returns the default calendar-month policy.
func NewMonthEndResolver() Resolver { return monthEndResolver{} }

func (monthEndResolver) PeriodEnd(t time.Time) time.Time {
	u := t.UTC()
	// day 0 of the next month is the last day of this one
	return time.Date(u.Year(), u.Month()+1, 0, 0, 0, 0, 0, time.UTC)
}

func (monthEndResolver) IsClosed(periodEnd time.Time, utcOffsetMinutes int, now time.Time) bool {
	local := now.UTC().Add(time.Duration(utcOffsetMinutes) * time.Minute)
	boundary := periodEnd.AddDate(0, 0, 1)
	return !local.Before(boundary)
}

func (monthEndResolver) CloseOfDayWindow(now time.Time) time.Time {
	u := now.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// Module wires the default resolver.
var Module = fx.Module("period",
	fx.Provide(NewMonthEndResolver),
)
