package conversation

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/kailas-cloud/finrag/internal/domain/query"
)

// DefaultWindow is how many recent turns extraction looks at.
const DefaultWindow = 6

// trigger is a phrase that introduces a name. Strict triggers only accept
// capitalised tokens after them.
type trigger struct {
	re     *regexp.Regexp
	strict bool
}

// newTrigger matches phrase case-insensitively at a word start, followed by
// whitespace.
func newTrigger(phrase string, strict bool) trigger {
	body := strings.ReplaceAll(regexp.QuoteMeta(phrase), " ", `\s+`)
	return trigger{re: regexp.MustCompile(`(?i)(?:^|[^\p{L}\p{N}-])` + body + `\s+`), strict: strict}
}

var (
	// "for " is shared with categories, so only capitalised names count there.
	counterpartyTriggers = []trigger{
		newTrigger("for customer", false),
		newTrigger("customer", false),
		newTrigger("vendor", false),
		newTrigger("for", true),
	}
	categoryTriggers = []trigger{
		newTrigger("category", false),
		newTrigger("related to", false),
		newTrigger("about", false),
		newTrigger("for", false),
	}

	// queryTypeNouns maps English and Spanish nouns to a canonical label.
	queryTypeNouns = map[string]string{
		"transaction": "transactions", "transactions": "transactions",
		"transacción": "transactions", "transaccion": "transactions", "transacciones": "transactions",
		"category": "categories", "categories": "categories",
		"categoría": "categories", "categoria": "categories", "categorías": "categories", "categorias": "categories",
		"expense": "expenses", "expenses": "expenses", "gasto": "expenses", "gastos": "expenses",
		"cost": "costs", "costs": "costs", "costo": "costs", "costos": "costs",
		"spending": "spending", "spend": "spending",
		"payment": "payments", "payments": "payments", "pago": "payments", "pagos": "payments",
	}

	// stopwords are never part of an extracted name.
	stopwords = toSet(
		"the", "a", "an", "my", "our", "your", "all", "any", "this", "that", "these", "those",
		"in", "on", "at", "of", "to", "from", "by", "with", "and", "or", "but", "for", "per",
		"me", "us", "it", "them", "you", "we", "i", "he", "she", "they",
		"is", "are", "was", "were", "be", "do", "did", "does", "can", "could", "would", "should",
		"please", "show", "get", "give", "list", "find", "tell", "more", "same", "other", "else",
		"what", "which", "who", "how", "when", "where", "why",
		"last", "next", "previous", "current", "year", "month", "quarter", "week", "day", "period", "today",
		"category", "categories", "customer", "customers", "vendor", "vendors",
		"total", "totals", "top", "each", "every", "some", "no", "not",
		"here", "there", "found", "result", "results",
		"most", "least", "has", "have", "had", "spent", "paid", "billed", "owes", "owe",
	)

	months = []string{
		"january", "february", "march", "april", "may", "june", "july", "august",
		"september", "october", "november", "december",
	}
	monthSet = toSet(months...)

	timePattern = regexp.MustCompile(`(?i)\b(` +
		`q[1-4](?:\s+(?:199\d|20\d\d))?` +
		`|(?:` + strings.Join(months, "|") + `)(?:\s+(?:199\d|20\d\d))?` +
		`|199\d|20\d\d` +
		`|(?:this|last|next|previous)\s+(?:year|quarter|month|week)` +
		`|year\s+to\s+date|ytd|today|yesterday` +
		`)\b`)

	quarterPattern = regexp.MustCompile(`(?i)^q[1-4]$`)
)

// CategoryVocabulary lists category names recognised anywhere in a turn.
var CategoryVocabulary = vocabulary()

func vocabulary() []string {
	generic := toSet("category", "type", "classification", "group")
	var out []string
	for _, k := range query.CategoryKeywords {
		if !generic[k] {
			out = append(out, k)
		}
	}
	return out
}

// Extract derives context from the last window turns. Assistant turns are
// scanned first, newest first, so established context leads; user turns
// follow and add new signal. Each list is deduplicated and capped.
func Extract(turns []Turn, window int) FinancialContext {
	if window <= 0 {
		window = DefaultWindow
	}
	if len(turns) > window {
		turns = turns[len(turns)-window:]
	}

	var ctx FinancialContext
	for _, role := range []Role{RoleAssistant, RoleUser} {
		for i := len(turns) - 1; i >= 0; i-- {
			if turns[i].Role == role {
				ctx = extractInto(ctx, turns[i].Text)
			}
		}
	}
	return ctx
}

// ExtractText derives context from a single text.
func ExtractText(text string) FinancialContext {
	return extractInto(FinancialContext{}, text)
}

func extractInto(ctx FinancialContext, text string) FinancialContext {
	for _, cp := range Counterparties(text) {
		ctx.Counterparties = appendUnique(ctx.Counterparties, cp, MaxCounterparties)
	}
	for _, c := range Categories(text) {
		ctx.Categories = appendUnique(ctx.Categories, c, MaxCategories)
	}
	for _, tp := range TimePeriods(text) {
		ctx.TimePeriods = appendUnique(ctx.TimePeriods, tp, MaxTimePeriods)
	}
	for _, qt := range QueryTypes(text) {
		ctx.QueryTypes = appendUnique(ctx.QueryTypes, qt, MaxQueryTypes)
	}
	return ctx
}

// Counterparties captures names following a counterparty trigger. After a
// bare "for" the name must be capitalised; after "customer" or "vendor" any
// run of non-stopword tokens counts.
func Counterparties(text string) []string {
	var out []string
	for _, trig := range counterpartyTriggers {
		accept := isLooseNameToken
		if trig.strict {
			accept = isNameToken
		}
		for _, rest := range afterTrigger(text, trig) {
			if name := captureRun(rest, accept, 4); name != "" {
				out = appendUnique(out, name, MaxCounterparties)
			}
		}
	}
	return out
}

// Categories captures lower-case phrases following a category trigger, plus
// any vocabulary category mentioned anywhere in text.
func Categories(text string) []string {
	var out []string
	for _, trig := range categoryTriggers {
		for _, rest := range afterTrigger(text, trig) {
			if c := captureRun(rest, isCategoryToken, 3); c != "" {
				out = appendUnique(out, c, MaxCategories)
			}
		}
	}
	lower := " " + strings.Join(words(strings.ToLower(text)), " ") + " "
	for _, v := range CategoryVocabulary {
		if strings.Contains(lower, " "+v+" ") {
			out = appendUnique(out, v, MaxCategories)
		}
	}
	return out
}

// TimePeriods finds years, quarters, month names and relative periods.
func TimePeriods(text string) []string {
	var out []string
	for _, m := range timePattern.FindAllString(text, -1) {
		if m != "May" && strings.EqualFold(m, "may") {
			// the modal verb, not the month
			continue
		}
		out = appendUnique(out, NormalizeTime(m), MaxTimePeriods)
	}
	return out
}

// NormalizeTime canonicalises a time token: "q1  2025" -> "Q1 2025",
// "march" -> "March", relative terms lower-case.
func NormalizeTime(token string) string {
	parts := strings.Fields(token)
	for i, p := range parts {
		switch lp := strings.ToLower(p); {
		case quarterPattern.MatchString(p):
			parts[i] = strings.ToUpper(p)
		case monthSet[lp]:
			parts[i] = strings.ToUpper(lp[:1]) + lp[1:]
		case lp == "ytd":
			parts[i] = "YTD"
		default:
			parts[i] = lp
		}
	}
	return strings.Join(parts, " ")
}

// QueryTypes returns canonical labels for domain nouns found in text.
func QueryTypes(text string) []string {
	var out []string
	for _, w := range words(strings.ToLower(text)) {
		if label, ok := queryTypeNouns[w]; ok {
			out = appendUnique(out, label, MaxQueryTypes)
		}
	}
	return out
}

// afterTrigger returns the original text following every match of trig.
func afterTrigger(text string, trig trigger) []string {
	var out []string
	for _, loc := range trig.re.FindAllStringIndex(text, -1) {
		out = append(out, text[loc[1]:])
	}
	return out
}

// captureRun joins up to limit leading tokens of s accepted by ok. A token
// carrying trailing punctuation ends the run after being added.
func captureRun(s string, ok func(string) bool, limit int) string {
	var run []string
	for _, raw := range strings.Fields(s) {
		tok := strings.TrimRightFunc(raw, unicode.IsPunct)
		tok = strings.TrimLeftFunc(tok, unicode.IsPunct)
		if tok == "" || !ok(tok) {
			break
		}
		run = append(run, tok)
		if len(run) == limit || tok != raw {
			break
		}
	}
	return strings.Join(run, " ")
}

func isNameToken(tok string) bool {
	r := []rune(tok)
	if !unicode.IsUpper(r[0]) {
		return false
	}
	lower := strings.ToLower(tok)
	return !stopwords[lower] && !monthSet[lower] && !quarterPattern.MatchString(tok)
}

// isLooseNameToken accepts any case but still rejects stopwords, time tokens
// and domain nouns.
func isLooseNameToken(tok string) bool {
	lower := strings.ToLower(tok)
	if stopwords[lower] || monthSet[lower] || quarterPattern.MatchString(tok) {
		return false
	}
	if _, isNoun := queryTypeNouns[lower]; isNoun {
		return false
	}
	for _, r := range tok {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

func isCategoryToken(tok string) bool {
	for _, r := range tok {
		if !unicode.IsLetter(r) && r != '-' {
			return false
		}
	}
	if !unicode.IsLower([]rune(tok)[0]) {
		return false
	}
	if _, isNoun := queryTypeNouns[tok]; isNoun {
		return false
	}
	return !stopwords[tok] && !monthSet[tok]
}

func words(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool { return !isWordRune(r) })
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-'
}

func toSet(items ...string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, v := range items {
		m[v] = true
	}
	return m
}
