package scanning

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/receipt-extractor/internal/heuristic"
	"github.com/zombor/receipt-extractor/internal/receipt"
)

const (
	missingConfidence = 0.1
	defaultOverall    = 0.8
)

// Strategy extracts receipts by asking a language model
type Strategy struct {
	completer Completer
}

// NewStrategy creates a Strategy backed by completer
func NewStrategy(completer Completer) *Strategy {
	return &Strategy{completer: completer}
}

// Extract sends text to the model and converts its reply into a record.
// A reply that is not JSON is returned as a *ParseError.
func (s *Strategy) Extract(ctx context.Context, text string, now time.Time) (*receipt.Record, error) {
	rid := uuid.New().String()
	start := time.Now()
	slog.Info("Extracting receipt with model", "req_id", rid, "text_length", len(text))

	reply, err := s.completer.Complete(ctx, buildPrompt(text))
	if err != nil {
		slog.Error("Model request failed", "req_id", rid, "error", err)
		return nil, fmt.Errorf("completing prompt: %w", err)
	}

	data, err := parseReceiptJSON(reply)
	if err != nil {
		slog.Error("Could not parse model response", "req_id", rid, "error", err)
		return nil, err
	}

	record := toRecord(data, text, now)
	slog.Info("Model extraction complete",
		"req_id", rid,
		"vendor", record.Vendor.Value,
		"total", record.Total.Value,
		"date", record.Date.Value,
		"line_items", len(record.LineItems),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return record, nil
}

// toRecord maps the model reply onto a record. The model does not score individual
// fields, so present fields get fixed baselines and missing ones a floor.
func toRecord(data *ReceiptData, text string, now time.Time) *receipt.Record {
	record := &receipt.Record{
		Vendor:       receipt.Field[string]{Value: data.Vendor, Confidence: missingConfidence, Method: receipt.MethodDirect},
		Total:        receipt.Field[float64]{Confidence: missingConfidence, Method: receipt.MethodDirect},
		Date:         receipt.Field[string]{Value: data.Date, Confidence: missingConfidence, Method: receipt.MethodDirect},
		DocumentType: heuristic.DetectDocumentType(text),
	}

	if data.Vendor != "" {
		record.Vendor.Confidence = 0.9
	}
	if total, ok := data.Total.value(); ok {
		record.Total.Value = total
		record.Total.Confidence = 0.95
	}
	if data.Date != "" {
		record.Date.Confidence = 0.9
	} else {
		record.Date.Value = now.Format("2006-01-02")
		record.Date.Method = receipt.MethodFallback
	}
	if subtotal, ok := data.Subtotal.value(); ok {
		record.Subtotal = &receipt.Field[float64]{Value: subtotal, Confidence: 0.9, Method: receipt.MethodDirect}
	}
	if data.Tax != nil && *data.Tax >= 0 {
		record.Tax = &receipt.Field[float64]{Value: float64(*data.Tax), Confidence: 0.9, Method: receipt.MethodDirect}
	}

	for _, item := range data.LineItems {
		lineItem := receipt.LineItem{Description: item.Description, Confidence: 0.9}
		if q, ok := item.Quantity.value(); ok {
			lineItem.Quantity = receipt.Float(q)
		}
		if u, ok := item.UnitPrice.value(); ok {
			lineItem.UnitPrice = receipt.Float(u)
		}
		if t, ok := item.TotalPrice.value(); ok {
			lineItem.TotalPrice = t
		} else if lineItem.Quantity != nil && lineItem.UnitPrice != nil {
			lineItem.TotalPrice = receipt.Mul(*lineItem.Quantity, *lineItem.UnitPrice)
		}
		record.LineItems = append(record.LineItems, lineItem)
	}
	record.LineItemsConfidence = missingConfidence
	if len(record.LineItems) > 0 {
		record.LineItemsConfidence = 0.9
	}

	record.Overall = defaultOverall
	if data.Confidence != nil {
		record.Overall = receipt.Clamp(*data.Confidence, receipt.MaxConfidence)
	}
	record.Quality = receipt.QualityFor(record.Overall)
	return record
}
