package chat

import "strings"

// KnowledgeTriggers route a question straight to a free-form answer. They
// mark conceptual questions the ledger cannot answer.
var KnowledgeTriggers = []string{
	"typical cost", "typically cost", "usually cost", "average cost of",
	"industry average", "industry norm", "industry standard", "industry benchmark",
	"is it normal to", "what is a normal", "what is a typical", "what's a typical",
	"what does the company do", "describe the company", "company description",
	"tell me about the company", "what kind of company",
	"costo típico", "promedio de la industria",
}

// IsKnowledgeQuery reports whether q matches a knowledge trigger.
func IsKnowledgeQuery(q string) bool {
	q = strings.ToLower(q)
	for _, t := range KnowledgeTriggers {
		if strings.Contains(q, t) {
			return true
		}
	}
	return false
}
