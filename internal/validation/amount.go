package validation

import (
	"fmt"
	"math"
	"time"

	"github.com/zombor/receipt-extractor/internal/receipt"
)

const (
	maxPlausibleTotal = 100000.0
	maxTaxRate        = 0.15
)

// AmountRule checks the total against the subtotal and tax
type AmountRule struct{}

func (AmountRule) Name() string  { return "amount" }
func (AmountRule) Priority() int { return 100 }

func (rule AmountRule) Validate(r *receipt.Record, _ time.Time) Result {
	var issues []receipt.Issue
	total := r.Total.Value
	sum, hasParts := partsSum(r)

	if total <= 0 {
		issue := receipt.Issue{
			Severity:     receipt.SeverityError,
			Field:        "total",
			Message:      "total must be positive",
			CurrentValue: total,
			Rule:         rule.Name(),
		}
		if hasParts && sum > 0 {
			issue.SuggestedValue = sum
			issue.AutoFixable = true
			issue.Math = true
		}
		issues = append(issues, issue)
	} else if total > maxPlausibleTotal {
		issues = append(issues, receipt.Issue{
			Severity:     receipt.SeverityWarning,
			Field:        "total",
			Message:      fmt.Sprintf("total exceeds %.0f", maxPlausibleTotal),
			CurrentValue: total,
			Rule:         rule.Name(),
		})
	}

	if hasParts && total > 0 && !receipt.Reconciles(sum, total) {
		issues = append(issues, receipt.Issue{
			Severity:       receipt.SeverityError,
			Field:          "total",
			Message:        fmt.Sprintf("subtotal %.2f plus tax %.2f does not equal total %.2f", r.Subtotal.Value, r.Tax.Value, total),
			CurrentValue:   total,
			SuggestedValue: sum,
			AutoFixable:    true,
			Rule:           rule.Name(),
			Math:           true,
		})
	}

	if r.Subtotal != nil && r.Tax != nil && r.Subtotal.Value > 0 {
		if rate := r.Tax.Value / r.Subtotal.Value; rate > maxTaxRate {
			issues = append(issues, receipt.Issue{
				Severity:     receipt.SeverityWarning,
				Field:        "tax",
				Message:      fmt.Sprintf("tax rate %.1f%% is unusually high", rate*100),
				CurrentValue: r.Tax.Value,
				Rule:         rule.Name(),
			})
		}
	}

	return resultFor(issues)
}

// Fix recomputes the total from the subtotal and tax
func (rule AmountRule) Fix(r *receipt.Record, _ time.Time) []receipt.Issue {
	sum, ok := partsSum(r)
	if !ok || sum <= 0 || receipt.Reconciles(sum, r.Total.Value) {
		return nil
	}
	fix := receipt.Issue{
		Severity:       receipt.SeverityError,
		Field:          "total",
		Message:        "total recomputed from subtotal and tax",
		CurrentValue:   r.Total.Value,
		SuggestedValue: sum,
		AutoFixable:    true,
		Rule:           rule.Name(),
		Math:           true,
	}
	r.Total.Value = sum
	r.Total.Method = receipt.MethodCalculated
	r.Total.Confidence = math.Min(r.Subtotal.Confidence, r.Tax.Confidence)
	return []receipt.Issue{fix}
}

func partsSum(r *receipt.Record) (float64, bool) {
	if r.Subtotal == nil || r.Tax == nil {
		return 0, false
	}
	return receipt.Add(r.Subtotal.Value, r.Tax.Value), true
}
