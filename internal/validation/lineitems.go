package validation

import (
	"fmt"
	"time"

	"github.com/zombor/receipt-extractor/internal/receipt"
)

const minDescriptionLength = 3

// LineItemRule checks each item's description and arithmetic
type LineItemRule struct{}

func (LineItemRule) Name() string  { return "line_items" }
func (LineItemRule) Priority() int { return 70 }

func (rule LineItemRule) Validate(r *receipt.Record, _ time.Time) Result {
	var issues []receipt.Issue
	for i, item := range r.LineItems {
		if len([]rune(item.Description)) < minDescriptionLength {
			issues = append(issues, receipt.Issue{
				Severity:     receipt.SeverityWarning,
				Field:        fmt.Sprintf("lineItems[%d].description", i),
				Message:      "item description is very short",
				CurrentValue: item.Description,
				Rule:         rule.Name(),
			})
		}
		if expected, ok := expectedTotal(item); ok && !receipt.Reconciles(expected, item.TotalPrice) {
			issues = append(issues, receipt.Issue{
				Severity:       receipt.SeverityError,
				Field:          fmt.Sprintf("lineItems[%d].totalPrice", i),
				Message:        fmt.Sprintf("quantity times unit price is %.2f, not %.2f", expected, item.TotalPrice),
				CurrentValue:   item.TotalPrice,
				SuggestedValue: expected,
				AutoFixable:    true,
				Rule:           rule.Name(),
				Math:           true,
			})
		}
	}
	return resultFor(issues)
}

// Fix recomputes item totals from quantity and unit price
func (rule LineItemRule) Fix(r *receipt.Record, _ time.Time) []receipt.Issue {
	var fixes []receipt.Issue
	for i := range r.LineItems {
		item := &r.LineItems[i]
		expected, ok := expectedTotal(*item)
		if !ok || receipt.Reconciles(expected, item.TotalPrice) {
			continue
		}
		fixes = append(fixes, receipt.Issue{
			Severity:       receipt.SeverityError,
			Field:          fmt.Sprintf("lineItems[%d].totalPrice", i),
			Message:        "item total recomputed from quantity and unit price",
			CurrentValue:   item.TotalPrice,
			SuggestedValue: expected,
			AutoFixable:    true,
			Rule:           rule.Name(),
			Math:           true,
		})
		item.TotalPrice = expected
	}
	return fixes
}

func expectedTotal(item receipt.LineItem) (float64, bool) {
	if item.Quantity == nil || item.UnitPrice == nil {
		return 0, false
	}
	return receipt.Mul(*item.Quantity, *item.UnitPrice), true
}
