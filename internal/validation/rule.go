// Package validation checks extracted records for mathematical and semantic consistency,
// repairs what it safely can and scores the result.
package validation

import (
	"time"

	"github.com/zombor/receipt-extractor/internal/receipt"
)

// Rule checks one aspect of a record
type Rule interface {
	Name() string
	// Priority orders rules; higher runs first
	Priority() int
	Validate(r *receipt.Record, now time.Time) Result
	// Fix rewrites the fields Validate reports as auto-fixable and returns what it changed.
	// Running Fix on a record it already fixed must change nothing.
	Fix(r *receipt.Record, now time.Time) []receipt.Issue
}

// Result is a single rule's verdict
type Result struct {
	Valid      bool
	Confidence float64
	Issues     []receipt.Issue
}

// resultFor derives validity and confidence from the issues a rule raised
func resultFor(issues []receipt.Issue) Result {
	confidence := 1.0
	valid := true
	for _, issue := range issues {
		switch issue.Severity {
		case receipt.SeverityError:
			valid = false
			confidence -= 0.3
		case receipt.SeverityWarning:
			confidence -= 0.1
		}
	}
	return Result{
		Valid:      valid,
		Confidence: receipt.Clamp(confidence, 1),
		Issues:     issues,
	}
}
