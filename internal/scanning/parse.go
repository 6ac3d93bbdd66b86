package scanning

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ParseError means the model reply could not be read as JSON
type ParseError struct {
	Response string
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing model response: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

var nullableAmount = map[string]any{"type": []any{"number", "string", "null"}}

var receiptSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"vendor":     map[string]any{"type": []any{"string", "null"}},
		"total":      nullableAmount,
		"date":       map[string]any{"type": []any{"string", "null"}},
		"subtotal":   nullableAmount,
		"tax":        nullableAmount,
		"confidence": map[string]any{"type": []any{"number", "null"}, "minimum": 0, "maximum": 1},
		"lineItems": map[string]any{
			"type": []any{"array", "null"},
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"description": map[string]any{"type": "string"},
					"quantity":    nullableAmount,
					"unitPrice":   nullableAmount,
					"totalPrice":  nullableAmount,
				},
				"required": []any{"description"},
			},
		},
	},
	"required": []any{"vendor", "total", "date"},
}

// stripFences removes markdown code fences and anything around the outermost JSON object
func stripFences(text string) (string, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	text = strings.TrimSpace(text)

	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return "", fmt.Errorf("no JSON object found in response")
	}
	endIdx := strings.LastIndex(text, "}")
	if endIdx < startIdx {
		return "", fmt.Errorf("invalid JSON object in response")
	}
	return text[startIdx : endIdx+1], nil
}

// parseReceiptJSON parses the JSON reply from the model
func parseReceiptJSON(text string) (*ReceiptData, error) {
	body, err := stripFences(text)
	if err != nil {
		return nil, &ParseError{Response: text, Err: err}
	}

	var data ReceiptData
	if err := json.Unmarshal([]byte(body), &data); err != nil {
		return nil, &ParseError{Response: text, Err: fmt.Errorf("unmarshaling json: %w", err)}
	}

	if err := validateAgainstSchema([]byte(body)); err != nil {
		slog.Warn("Model response does not match schema", "error", err)
	}

	data.Vendor = strings.TrimSpace(data.Vendor)
	data.Date = normalizeDate(data.Date)
	return &data, nil
}

// normalizeDate rewrites common date layouts as YYYY-MM-DD. Unreadable dates become empty.
func normalizeDate(date string) string {
	date = strings.TrimSpace(date)
	if date == "" {
		return ""
	}
	formats := []string{
		"2006-01-02",
		"2006/01/02",
		"01/02/2006",
		"01-02-2006",
		time.RFC3339,
		"2006-01-02T15:04:05",
		"Jan 2, 2006",
		"January 2, 2006",
	}
	for _, format := range formats {
		if d, err := time.Parse(format, date); err == nil {
			return d.Format("2006-01-02")
		}
	}
	return ""
}

// validateAgainstSchema checks data against receiptSchema
func validateAgainstSchema(data []byte) error {
	b, err := json.Marshal(receiptSchema)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("receipt.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("receipt.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}
