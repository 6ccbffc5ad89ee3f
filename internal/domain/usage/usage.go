// Package usage describes embedding token consumption against the daily and
// monthly budgets.
package usage

import "time"

// Period is the budget window a report covers.
type Period string

// Budget windows.
const (
	PeriodDay   Period = "day"
	PeriodMonth Period = "month"
)

// ParsePeriod maps a query parameter to a Period. Empty selects the day window.
func ParsePeriod(s string) (Period, bool) {
	switch Period(s) {
	case "", PeriodDay:
		return PeriodDay, true
	case PeriodMonth:
		return PeriodMonth, true
	}
	return "", false
}

// Budget is a snapshot of one token window. A zero Limit means unlimited.
type Budget struct {
	Limit     int64
	Used      int64
	Remaining int64
	Exhausted bool
}

// NewBudget derives Remaining and Exhausted from limit and used.
func NewBudget(limit, used int64) Budget {
	b := Budget{Limit: limit, Used: used}
	if limit > 0 {
		b.Remaining = max(limit-used, 0)
		b.Exhausted = used >= limit
	}
	return b
}

// Unlimited reports whether the window has no cap.
func (b Budget) Unlimited() bool { return b.Limit <= 0 }

// Report is the embedding usage of one provider within one window.
type Report struct {
	Period   Period
	Provider string
	Start    time.Time
	End      time.Time
	Budget   Budget
}

// ResetsAt is when the window rolls over.
func (r Report) ResetsAt() time.Time { return r.End }
