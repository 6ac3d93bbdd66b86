// Package heuristic extracts receipt fields from raw OCR text without a model.
package heuristic

import (
	"context"
	"log/slog"
	"time"

	"github.com/zombor/receipt-extractor/internal/receipt"
)

// Options tunes the heuristic extractor
type Options struct {
	// DecimalRepair reads bare 3-5 digit integers as cents before looking for amounts
	DecimalRepair bool
	// FuzzyVendor enables similarity matching against the vendor table
	FuzzyVendor bool
}

// DefaultOptions matches the production configuration
func DefaultOptions() Options {
	return Options{DecimalRepair: true}
}

// Extract builds a scored record from text. now is used for the date fallback.
func Extract(text string, now time.Time, opts Options) *receipt.Record {
	amounts := ParseAmounts(text, opts)
	items := ParseLineItems(text)

	record := &receipt.Record{
		Vendor:              DetectVendor(text, opts),
		Total:               amounts.Total,
		Subtotal:            amounts.Subtotal,
		Tax:                 amounts.Tax,
		Date:                ParseDate(text, now),
		LineItems:           items,
		LineItemsConfidence: LineItemsConfidence(items),
		DocumentType:        DetectDocumentType(text),
	}

	record.Overall = Score(Signals{
		Vendor:       record.Vendor.Confidence,
		Total:        record.Total.Confidence,
		Date:         record.Date.Confidence,
		LineItems:    record.LineItemsConfidence,
		DocumentType: record.DocumentType.Confidence,
		Math:         amountsAddUp(record),
		Layout:       recognised(record.Vendor.Method) && record.Date.Method == receipt.MethodPattern,
		Spatial:      amounts.Labelled,
	})
	record.Quality = receipt.QualityFor(record.Overall)
	return record
}

// Strategy adapts Extract to the extraction strategy interface used by the processing service
type Strategy struct {
	opts Options
}

// NewStrategy creates a heuristic Strategy
func NewStrategy(opts Options) *Strategy {
	return &Strategy{opts: opts}
}

// Extract never fails; text it cannot read yields low-confidence fields.
func (s *Strategy) Extract(_ context.Context, text string, now time.Time) (*receipt.Record, error) {
	record := Extract(text, now, s.opts)
	slog.Info("Heuristic extraction complete",
		"vendor", record.Vendor.Value,
		"total", record.Total.Value,
		"date", record.Date.Value,
		"line_items", len(record.LineItems),
		"overall_confidence", record.Overall,
	)
	return record, nil
}

func recognised(m receipt.Method) bool {
	return m == receipt.MethodPattern || m == receipt.MethodFuzzy
}

// amountsAddUp reports whether subtotal and tax, or the line items, account for the total
func amountsAddUp(r *receipt.Record) bool {
	if r.Total.Value <= 0 {
		return false
	}
	if r.Subtotal != nil && r.Tax != nil &&
		receipt.Reconciles(receipt.Add(r.Subtotal.Value, r.Tax.Value), r.Total.Value) {
		return true
	}
	if len(r.LineItems) == 0 {
		return false
	}
	prices := make([]float64, len(r.LineItems))
	for i, item := range r.LineItems {
		prices[i] = item.TotalPrice
	}
	sum := receipt.Add(prices...)
	if r.Subtotal != nil && receipt.Reconciles(sum, r.Subtotal.Value) {
		return true
	}
	return receipt.Reconciles(sum, r.Total.Value)
}
