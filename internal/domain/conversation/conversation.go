// Package conversation holds the session model and the rule tables that turn
// prior turns into context for under-specified follow-up questions.
package conversation

import (
	"strings"
	"time"
)

// Role is the author of a turn.
type Role string

// Turn roles.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message in a session.
type Turn struct {
	Role Role      `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// Snapshot is the persisted form of a session.
type Snapshot struct {
	ID        string    `json:"id"`
	Turns     []Turn    `json:"turns"`
	Summary   Summary   `json:"summary"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Per-field caps for extracted context.
const (
	MaxCounterparties = 3
	MaxCategories     = 3
	MaxTimePeriods    = 3
	MaxQueryTypes     = 2
)

// FinancialContext is the set of entities mentioned in recent turns,
// most established first. Derived on demand, never stored.
type FinancialContext struct {
	Counterparties []string
	Categories     []string
	TimePeriods    []string
	QueryTypes     []string
}

// Counterparty returns the leading counterparty or "".
func (c FinancialContext) Counterparty() string { return first(c.Counterparties) }

// Category returns the leading category or "".
func (c FinancialContext) Category() string { return first(c.Categories) }

// TimePeriod returns the leading time period or "".
func (c FinancialContext) TimePeriod() string { return first(c.TimePeriods) }

// QueryType returns the leading query type or "".
func (c FinancialContext) QueryType() string { return first(c.QueryTypes) }

// Empty reports whether nothing was extracted.
func (c FinancialContext) Empty() bool {
	return len(c.Counterparties) == 0 && len(c.Categories) == 0 &&
		len(c.TimePeriods) == 0 && len(c.QueryTypes) == 0
}

// WithFallback fills every empty field of c from the summary s.
func (c FinancialContext) WithFallback(s Summary) FinancialContext {
	if len(c.Counterparties) == 0 {
		c.Counterparties = reversed(s.Counterparties)
	}
	if len(c.Categories) == 0 {
		c.Categories = reversed(s.Categories)
	}
	if len(c.TimePeriods) == 0 {
		c.TimePeriods = reversed(s.TimePeriods)
	}
	if len(c.QueryTypes) == 0 && s.QueryType != "" {
		c.QueryTypes = []string{s.QueryType}
	}
	return c
}

func first(items []string) string {
	if len(items) == 0 {
		return ""
	}
	return items[0]
}

// reversed returns a copy newest-first; summaries store oldest-first.
func reversed(items []string) []string {
	if len(items) == 0 {
		return nil
	}
	out := make([]string, len(items))
	for i, v := range items {
		out[len(items)-1-i] = v
	}
	return out
}

// appendUnique adds v to list unless an equal value (case-insensitive) is
// present or the list is full.
func appendUnique(list []string, v string, limit int) []string {
	v = strings.TrimSpace(v)
	if v == "" || len(list) >= limit {
		return list
	}
	for _, have := range list {
		if strings.EqualFold(have, v) {
			return list
		}
	}
	return append(list, v)
}
