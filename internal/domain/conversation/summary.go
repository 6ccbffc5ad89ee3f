package conversation

import (
	"strings"
	"unicode/utf8"
)

// MaxSummaryLen bounds the rendered summary, ellipsis included.
const MaxSummaryLen = 1000

const ellipsis = "..."

const (
	lineCounterparties = "Counterparties: "
	lineCategories     = "Categories: "
	lineTimePeriods    = "Time periods: "
	lineQueryType      = "Query type: "
)

// Summary is the running digest of a session. List fields are ordered
// oldest-first so that truncation drops the oldest entries.
type Summary struct {
	Counterparties []string `json:"counterparties,omitempty"`
	Categories     []string `json:"categories,omitempty"`
	TimePeriods    []string `json:"time_periods,omitempty"`
	QueryType      string   `json:"query_type,omitempty"`
}

// SummaryFrom builds a summary from freshly extracted context.
// Extraction lists are newest-first, so they are reversed here.
func SummaryFrom(c FinancialContext) Summary {
	return Summary{
		Counterparties: reversed(c.Counterparties),
		Categories:     reversed(c.Categories),
		TimePeriods:    reversed(c.TimePeriods),
		QueryType:      c.QueryType(),
	}
}

// Empty reports whether the summary carries no fields.
func (s Summary) Empty() bool {
	return len(s.Counterparties) == 0 && len(s.Categories) == 0 &&
		len(s.TimePeriods) == 0 && s.QueryType == ""
}

// Merge folds newer into s. Values mentioned again move to the newest
// position; each list then keeps its newest entries up to the field cap.
// A non-empty query type in newer replaces the old one.
func (s Summary) Merge(newer Summary) Summary {
	out := Summary{
		Counterparties: mergeField(s.Counterparties, newer.Counterparties, MaxCounterparties),
		Categories:     mergeField(s.Categories, newer.Categories, MaxCategories),
		TimePeriods:    mergeField(s.TimePeriods, newer.TimePeriods, MaxTimePeriods),
		QueryType:      s.QueryType,
	}
	if newer.QueryType != "" {
		out.QueryType = newer.QueryType
	}
	return out
}

func mergeField(old, newer []string, limit int) []string {
	merged := make([]string, 0, len(old)+len(newer))
	for _, v := range old {
		if !containsFold(newer, v) && !containsFold(merged, v) {
			merged = append(merged, v)
		}
	}
	for _, v := range newer {
		if !containsFold(merged, v) {
			merged = append(merged, v)
		}
	}
	if len(merged) > limit {
		merged = merged[len(merged)-limit:]
	}
	if len(merged) == 0 {
		return nil
	}
	return merged
}

func containsFold(list []string, v string) bool {
	for _, have := range list {
		if strings.EqualFold(have, v) {
			return true
		}
	}
	return false
}

// String renders up to four lines, capped at MaxSummaryLen characters.
func (s Summary) String() string {
	var lines []string
	if len(s.Counterparties) > 0 {
		lines = append(lines, lineCounterparties+strings.Join(s.Counterparties, ", "))
	}
	if len(s.Categories) > 0 {
		lines = append(lines, lineCategories+strings.Join(s.Categories, ", "))
	}
	if len(s.TimePeriods) > 0 {
		lines = append(lines, lineTimePeriods+strings.Join(s.TimePeriods, ", "))
	}
	if s.QueryType != "" {
		lines = append(lines, lineQueryType+s.QueryType)
	}
	return truncate(strings.Join(lines, "\n"), MaxSummaryLen)
}

// ParseSummary reads the line format produced by String. Unknown lines
// are ignored; a truncated final line keeps whatever parsed cleanly.
func ParseSummary(text string) Summary {
	var s Summary
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSuffix(strings.TrimSpace(line), ellipsis)
		switch {
		case strings.HasPrefix(line, lineCounterparties):
			s.Counterparties = splitList(strings.TrimPrefix(line, lineCounterparties))
		case strings.HasPrefix(line, lineCategories):
			s.Categories = splitList(strings.TrimPrefix(line, lineCategories))
		case strings.HasPrefix(line, lineTimePeriods):
			s.TimePeriods = splitList(strings.TrimPrefix(line, lineTimePeriods))
		case strings.HasPrefix(line, lineQueryType):
			s.QueryType = strings.TrimSpace(strings.TrimPrefix(line, lineQueryType))
		}
	}
	return s
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit-len(ellipsis)]) + ellipsis
}
