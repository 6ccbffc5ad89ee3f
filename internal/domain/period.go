package domain

import "time"

// Period is a half-open date range [From, To).
type Period struct {
	From time.Time
	To   time.Time
}

// YearPeriod covers one calendar year.
func YearPeriod(year int) Period {
	from := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	return Period{From: from, To: from.AddDate(1, 0, 0)}
}

// CurrentYear covers the calendar year containing now.
func CurrentYear(now time.Time) Period {
	return YearPeriod(now.UTC().Year())
}

// Valid reports whether the range is non-empty.
func (p Period) Valid() bool {
	return !p.From.IsZero() && p.To.After(p.From)
}

// LastDay is the inclusive end of the range.
func (p Period) LastDay() time.Time {
	return p.To.AddDate(0, 0, -1)
}
