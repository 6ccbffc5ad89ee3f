package domain

import (
	"math"
	"time"
)

// SearchFilters narrows a similarity search. Zero values mean "no filter".
type SearchFilters struct {
	Counterparty string
	From         time.Time // inclusive
	To           time.Time // exclusive
	Year         int
}

// SearchHit is one ranked row of a similarity search.
type SearchHit struct {
	ID                  string
	Description         string
	Amount              float64
	Date                time.Time
	Counterparty        string
	CategoryCode        string
	CategoryDescription string
	CategoryShort       string
	Distance            float64
}

// Similarity converts the hit's cosine distance for display.
func (h SearchHit) Similarity() float64 { return Similarity(h.Distance) }

// Similarity maps a cosine distance to [0, 1]: 1 - min(distance, 1).
// Negative distances (float noise on identical vectors) count as zero, NaN maps to zero.
func Similarity(distance float64) float64 {
	switch {
	case math.IsNaN(distance):
		return 0
	case distance < 0:
		distance = 0
	}
	return 1 - math.Min(distance, 1)
}
