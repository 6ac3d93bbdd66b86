package receipt

import "math"

// Method describes how a field value was obtained
type Method string

const (
	MethodDirect     Method = "direct"
	MethodPattern    Method = "pattern"
	MethodFuzzy      Method = "fuzzy"
	MethodCalculated Method = "calculated"
	MethodInferred   Method = "inferred"
	MethodFallback   Method = "fallback"
)

// MaxConfidence is the ceiling for any confidence stored on a record
const MaxConfidence = 0.98

// Field is an extracted value together with how sure we are about it
type Field[T any] struct {
	Value      T       `json:"value"`
	Confidence float64 `json:"confidence"`
	Method     Method  `json:"method"`
	Source     string  `json:"source,omitempty"` // text the value was read from
}

// DocumentType classifies the scanned document
type DocumentType string

const (
	DocumentReceipt   DocumentType = "receipt"
	DocumentInvoice   DocumentType = "invoice"
	DocumentStatement DocumentType = "statement"
	DocumentUnknown   DocumentType = "unknown"
)

// LineItem is a single purchased item
type LineItem struct {
	Description string   `json:"description"`
	Quantity    *float64 `json:"quantity,omitempty"`
	UnitPrice   *float64 `json:"unitPrice,omitempty"`
	TotalPrice  float64  `json:"totalPrice"`
	Confidence  float64  `json:"confidence"`
}

// Record is the structured result of extracting a receipt
type Record struct {
	Vendor              Field[string]       `json:"vendor"`
	Total               Field[float64]      `json:"total"`
	Subtotal            *Field[float64]     `json:"subtotal,omitempty"`
	Tax                 *Field[float64]     `json:"tax,omitempty"`
	Date                Field[string]       `json:"date"` // YYYY-MM-DD
	LineItems           []LineItem          `json:"line_items"`
	LineItemsConfidence float64             `json:"line_items_confidence"`
	DocumentType        Field[DocumentType] `json:"document_type"`
	Overall             float64             `json:"overall_confidence"`
	Quality             Quality             `json:"quality"`
	Validation          Validation          `json:"validation"`
}

// Confidences is the per-field confidence map returned to clients
type Confidences struct {
	Vendor       float64 `json:"vendor"`
	Total        float64 `json:"total"`
	Date         float64 `json:"date"`
	LineItems    float64 `json:"lineItems"`
	DocumentType float64 `json:"documentType,omitempty"`
	Overall      float64 `json:"overall"`
}

// Confidences collects the field confidences of the record
func (r *Record) Confidences() Confidences {
	return Confidences{
		Vendor:       r.Vendor.Confidence,
		Total:        r.Total.Confidence,
		Date:         r.Date.Confidence,
		LineItems:    r.LineItemsConfidence,
		DocumentType: r.DocumentType.Confidence,
		Overall:      r.Overall,
	}
}

// Quality is a coarse bucket of the overall confidence
type Quality string

const (
	QualityExcellent Quality = "excellent"
	QualityGood      Quality = "good"
	QualityFair      Quality = "fair"
	QualityPoor      Quality = "poor"
)

// QualityFor maps a confidence onto its quality tier
func QualityFor(confidence float64) Quality {
	switch {
	case confidence >= 0.8:
		return QualityExcellent
	case confidence >= 0.65:
		return QualityGood
	case confidence >= 0.45:
		return QualityFair
	default:
		return QualityPoor
	}
}

// Clamp bounds a confidence to [0, max]
func Clamp(confidence, max float64) float64 {
	if math.IsNaN(confidence) || confidence < 0 {
		return 0
	}
	if confidence > max {
		return max
	}
	return confidence
}

// Round2 rounds a money value to cents
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Float returns a pointer to v
func Float(v float64) *float64 {
	return &v
}
