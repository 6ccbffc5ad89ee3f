package conversation

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	// GeneralContinuations are conversational follow-up openers.
	GeneralContinuations = []string{
		"what about", "how about", "tell me more", "explain", "more details", "and for",
		"what else", "same for", "show more", "go on", "continue", "and what", "and how",
	}

	// FinancialContinuations ask to repeat the last lookup somewhere else.
	FinancialContinuations = []string{
		"check in", "try", "search in", "look in", "look at", "check for", "now for",
		"also for", "instead", "compare with", "what if", "break it down", "break down",
	}

	// CategoryChanges redirect the previous question to another category.
	CategoryChanges = []string{
		"for category", "transactions for", "expenses for", "spending for", "in category",
		"switch to", "change to", "only for",
	}

	followUpPattern = phrasePattern(GeneralContinuations, FinancialContinuations, CategoryChanges)

	bareTimePattern = regexp.MustCompile(`(?i)^(?:` +
		`q[1-4](?:\s+(?:199\d|20\d\d))?` +
		`|(?:` + strings.Join(months, "|") + `)(?:\s+(?:199\d|20\d\d))?` +
		`|199\d|20\d\d` +
		`|(?:this|last|next|previous)\s+(?:year|quarter|month|week)` +
		`|year\s+to\s+date|ytd` +
		`)$`)
)

func phrasePattern(groups ...[]string) *regexp.Regexp {
	var quoted []string
	for _, g := range groups {
		for _, p := range g {
			quoted = append(quoted, regexp.QuoteMeta(p))
		}
	}
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`)
}

// bareToken strips surrounding space and terminal punctuation.
func bareToken(q string) string {
	return strings.TrimSpace(strings.TrimRight(strings.TrimSpace(q), "?!.,;:"))
}

// IsBareTime reports whether q is nothing but a time token such as
// "2025", "Q3 2024" or "March".
func IsBareTime(q string) bool {
	return bareTimePattern.MatchString(bareToken(q))
}

// IsBareCategory reports whether q is nothing but a known category name.
func IsBareCategory(q string) bool {
	tok := strings.ToLower(bareToken(q))
	for _, v := range CategoryVocabulary {
		if tok == v {
			return true
		}
	}
	return false
}

// IsFollowUp reports whether q needs prior context to be actionable.
func IsFollowUp(q string) bool {
	return IsBareTime(q) || IsBareCategory(q) || followUpPattern.MatchString(q)
}

// Reframe rewrites an elliptical follow-up into a self-contained question
// using ctx. Queries that are not follow-ups are returned unchanged.
func Reframe(q string, ctx FinancialContext) string {
	switch {
	case IsBareTime(q):
		return synthesize(ctx.QueryType(), ctx.Category(), ctx.Counterparty(), NormalizeTime(bareToken(q)))
	case IsBareCategory(q):
		return synthesize(ctx.QueryType(), strings.ToLower(bareToken(q)), ctx.Counterparty(), ctx.TimePeriod())
	case followUpPattern.MatchString(q):
		return appendMissing(q, ctx)
	}
	return q
}

// synthesize builds "can you get <type> related to <category> for <cp> in <time>?"
// omitting clauses whose value is unknown.
func synthesize(queryType, category, counterparty, period string) string {
	if queryType == "" {
		queryType = "transactions"
	}
	if category == "" {
		category = "all categories"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "can you get %s related to %s", queryType, category)
	if counterparty != "" {
		fmt.Fprintf(&b, " for %s", counterparty)
	}
	if period != "" {
		fmt.Fprintf(&b, " in %s", period)
	}
	b.WriteString("?")
	return b.String()
}

// appendMissing adds a trailing "for <value>" clause per context field whose
// value does not already appear in q.
func appendMissing(q string, ctx FinancialContext) string {
	trimmed := strings.TrimRight(strings.TrimSpace(q), "?!. ")
	question := strings.HasSuffix(strings.TrimSpace(q), "?")
	lower := strings.ToLower(trimmed)

	var b strings.Builder
	b.WriteString(trimmed)
	appended := false
	for _, v := range []string{ctx.Counterparty(), ctx.Category(), ctx.QueryType(), ctx.TimePeriod()} {
		if v == "" || strings.Contains(lower, strings.ToLower(v)) {
			continue
		}
		fmt.Fprintf(&b, " for %s", v)
		lower += " " + strings.ToLower(v)
		appended = true
	}
	if !appended {
		return q
	}
	if question {
		b.WriteString("?")
	}
	return b.String()
}
