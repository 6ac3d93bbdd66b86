package heuristic

import "github.com/zombor/receipt-extractor/internal/receipt"

const (
	weightTotal        = 0.30
	weightLineItems    = 0.25
	weightVendor       = 0.20
	weightDate         = 0.15
	weightDocumentType = 0.10

	weakField   = 0.5
	maxOverall  = 0.95
	mathBoost   = 1.10
	layoutBoost = 1.05
	nearBoost   = 1.03
)

// Signals are the inputs to Score
type Signals struct {
	Vendor       float64
	Total        float64
	Date         float64
	LineItems    float64
	DocumentType float64

	// Math is set when the amounts add up (subtotal+tax or line items against the total)
	Math bool
	// Layout is set when both vendor and date were recognised rather than guessed
	Layout bool
	// Spatial is set when the total sat next to a total label
	Spatial bool
}

// Score combines field confidences into an overall confidence
func Score(s Signals) float64 {
	score := weightTotal*s.Total +
		weightLineItems*s.LineItems +
		weightVendor*s.Vendor +
		weightDate*s.Date +
		weightDocumentType*s.DocumentType

	if s.Vendor < weakField {
		score -= 0.1
	}
	if s.Total < weakField {
		score -= 0.15
	}
	if s.Date < weakField {
		score -= 0.05
	}

	if s.Math {
		score *= mathBoost
	}
	if s.Layout {
		score *= layoutBoost
	}
	if s.Spatial {
		score *= nearBoost
	}
	return receipt.Clamp(score, maxOverall)
}
