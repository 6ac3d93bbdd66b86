package scanning

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/zombor/receipt-extractor/internal/receipt"
)

// Completer sends a prompt to a language model and returns its text reply
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
	// Close closes the completer and releases resources
	Close() error
}

// ReceiptData is the JSON document the model is asked to return
type ReceiptData struct {
	Vendor     string         `json:"vendor"`
	Total      *Amount        `json:"total"`
	Date       string         `json:"date"` // ISO 8601 format
	Subtotal   *Amount        `json:"subtotal"`
	Tax        *Amount        `json:"tax"`
	LineItems  []LineItemData `json:"lineItems"`
	Confidence *float64       `json:"confidence"`
}

// LineItemData is a single item as returned by the model
type LineItemData struct {
	Description string  `json:"description"`
	Quantity    *Amount `json:"quantity"`
	UnitPrice   *Amount `json:"unitPrice"`
	TotalPrice  *Amount `json:"totalPrice"`
}

// UnmarshalJSON decodes each field on its own. A field of the wrong type is
// dropped with a warning; only a reply that is not a JSON object is an error.
func (d *ReceiptData) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	*d = ReceiptData{
		Total:    decodeAmount(raw, "total"),
		Subtotal: decodeAmount(raw, "subtotal"),
		Tax:      decodeAmount(raw, "tax"),
	}
	decodeField(raw, "vendor", &d.Vendor)
	decodeField(raw, "date", &d.Date)

	var confidence float64
	if decodeField(raw, "confidence", &confidence) {
		d.Confidence = &confidence
	}

	var items []json.RawMessage
	decodeField(raw, "lineItems", &items)
	for _, item := range items {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(item, &fields); err != nil || fields == nil {
			slog.Warn("Ignoring unreadable line item in model response", "item", string(item))
			continue
		}
		lineItem := LineItemData{
			Quantity:   decodeAmount(fields, "quantity"),
			UnitPrice:  decodeAmount(fields, "unitPrice"),
			TotalPrice: decodeAmount(fields, "totalPrice"),
		}
		decodeField(fields, "description", &lineItem.Description)
		d.LineItems = append(d.LineItems, lineItem)
	}
	return nil
}

// decodeField reports whether key was present, non-null and of the right type
func decodeField(raw map[string]json.RawMessage, key string, dst any) bool {
	v, ok := raw[key]
	if !ok || string(v) == "null" {
		return false
	}
	if err := json.Unmarshal(v, dst); err != nil {
		slog.Warn("Ignoring unreadable field in model response", "field", key, "value", string(v))
		return false
	}
	return true
}

// decodeAmount returns nil when key is missing or not readable as an amount
func decodeAmount(raw map[string]json.RawMessage, key string) *Amount {
	var a Amount
	if !decodeField(raw, key, &a) {
		return nil
	}
	return &a
}

// Amount accepts both JSON numbers and numeric strings such as "$48.60"
type Amount float64

func (a *Amount) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		if strings.TrimSpace(str) == "" {
			*a = 0
			return nil
		}
		v, ok := receipt.ParseAmount(str)
		if !ok {
			return fmt.Errorf("amount %q is not a number", str)
		}
		*a = Amount(v)
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*a = Amount(f)
	return nil
}

// value returns the amount and whether it is set to something positive
func (a *Amount) value() (float64, bool) {
	if a == nil || *a <= 0 {
		return 0, false
	}
	return float64(*a), true
}

// receiptScanPrompt is the prompt used by all LLM providers for extracting receipt text
const receiptScanPrompt = `You are analyzing the text of a receipt or invoice that was read with OCR. The text may contain OCR mistakes. Extract the following information:

1. **Vendor**: the merchant, store or business name, usually at the top. Examples: "Walmart", "Home Depot", "CVS Pharmacy".

2. **Date**: the transaction, purchase or invoice date in ISO 8601 format (YYYY-MM-DD).

3. **Total**: the final total, grand total or amount due. Usually at the bottom, labeled "TOTAL", "Amount Due", "Grand Total" or similar.

4. **Subtotal** and **Tax**: the amounts before tax and the tax charged, if printed.

5. **Line items**: each purchased item with its description, quantity, unit price and line total.

Return ONLY valid JSON in this exact format:
{
  "vendor": "Store Name",
  "total": 0.00,
  "date": "YYYY-MM-DD",
  "subtotal": 0.00,
  "tax": 0.00,
  "lineItems": [
    {"description": "Item", "quantity": 1, "unitPrice": 0.00, "totalPrice": 0.00}
  ],
  "confidence": 0.0
}

Important:
- Amounts must be numbers (not strings), representing dollars and cents
- "confidence" is your own estimate between 0 and 1 of how accurate the extraction is
- If you cannot find a field, use null for that field
- Do not include any text before or after the JSON
- Do not use markdown code blocks

Receipt text:
`

// buildPrompt embeds the OCR text into the extraction prompt
func buildPrompt(text string) string {
	return receiptScanPrompt + text
}
