package heuristic

import (
	"strings"

	"github.com/zombor/receipt-extractor/internal/receipt"
)

// documentKeywords is checked in order so receipts win ties
var documentKeywords = []struct {
	Type     receipt.DocumentType
	Keywords []string
}{
	{receipt.DocumentReceipt, []string{"receipt", "thank you", "subtotal", "change due", "cashier", "tender", "cash", "visa", "mastercard", "register", "store #"}},
	{receipt.DocumentInvoice, []string{"invoice", "bill to", "due date", "payment terms", "net 30", "remit", "purchase order", "po number", "ship to"}},
	{receipt.DocumentStatement, []string{"statement", "account summary", "previous balance", "statement period", "opening balance", "closing balance", "minimum payment"}},
}

// DetectDocumentType classifies the text by counting keyword hits per document type
func DetectDocumentType(text string) receipt.Field[receipt.DocumentType] {
	lower := strings.ToLower(text)

	best, bestHits := receipt.DocumentUnknown, 0
	for _, candidate := range documentKeywords {
		hits := 0
		for _, keyword := range candidate.Keywords {
			if strings.Contains(lower, keyword) {
				hits++
			}
		}
		if hits > bestHits {
			best, bestHits = candidate.Type, hits
		}
	}

	if bestHits == 0 {
		return receipt.Field[receipt.DocumentType]{
			Value:      receipt.DocumentUnknown,
			Confidence: 0.3,
			Method:     receipt.MethodFallback,
		}
	}
	return receipt.Field[receipt.DocumentType]{
		Value:      best,
		Confidence: receipt.Clamp(0.5+0.1*float64(bestHits), 0.9),
		Method:     receipt.MethodInferred,
	}
}
