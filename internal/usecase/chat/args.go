package chat

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/kailas-cloud/finrag/internal/domain"
)

// Args are the decoded arguments of a function call. Accessors never fail:
// missing or malformed values fall back to the given default.
type Args map[string]any

// ParseArgs decodes a JSON object. Blank input yields empty Args.
func ParseArgs(raw string) (Args, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return Args{}, nil
	}
	var a Args
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		return nil, fmt.Errorf("function arguments: %w: %w", domain.ErrInvalidArgument, err)
	}
	if a == nil {
		a = Args{}
	}
	return a, nil
}

// String returns a trimmed string value or def.
func (a Args) String(key, def string) string {
	switch v := a[key].(type) {
	case string:
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return def
}

// Int returns an integer value or def. Numeric strings are accepted.
func (a Args) Int(key string, def int) int {
	switch v := a[key].(type) {
	case float64:
		if v == math.Trunc(v) && !math.IsInf(v, 0) {
			return int(v)
		}
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

// Float returns a number or def.
func (a Args) Float(key string, def float64) float64 {
	switch v := a[key].(type) {
	case float64:
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			return v
		}
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return def
}

var dateLayouts = []string{"2006-01-02", time.RFC3339, "2006-01", "2006/01/02", "02.01.2006"}

// Date parses a date value. Unparsable values count as absent.
func (a Args) Date(key string) (time.Time, bool) {
	s := a.String(key, "")
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			y, m, d := t.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

// Period resolves from/to (inclusive dates) or year into a half-open range.
// Anything missing, malformed or empty falls back to the calendar year of now.
func (a Args) Period(now time.Time) domain.Period {
	from, hasFrom := a.Date("from")
	to, hasTo := a.Date("to")

	var p domain.Period
	switch {
	case hasFrom && hasTo:
		p = domain.Period{From: from, To: to.AddDate(0, 0, 1)}
	case hasFrom:
		p = domain.Period{From: from, To: domain.YearPeriod(from.Year()).To}
	case hasTo:
		p = domain.Period{From: domain.YearPeriod(to.Year()).From, To: to.AddDate(0, 0, 1)}
	default:
		if y := a.Int("year", 0); y >= 1900 && y <= 2100 {
			p = domain.YearPeriod(y)
		}
	}
	if !p.Valid() {
		return domain.CurrentYear(now)
	}
	return p
}
