package validation

import (
	"time"

	"github.com/zombor/receipt-extractor/internal/receipt"
)

const (
	dateLayout = "2006-01-02"
	maxAgeYear = 5
)

// DateRule checks the transaction date is a real calendar date that is not in the future
type DateRule struct{}

func (DateRule) Name() string  { return "date" }
func (DateRule) Priority() int { return 90 }

func (rule DateRule) Validate(r *receipt.Record, now time.Time) Result {
	date, err := time.Parse(dateLayout, r.Date.Value)
	if err != nil {
		return resultFor([]receipt.Issue{{
			Severity:     receipt.SeverityError,
			Field:        "date",
			Message:      "date is not a valid YYYY-MM-DD date",
			CurrentValue: r.Date.Value,
			Rule:         rule.Name(),
		}})
	}

	var issues []receipt.Issue
	today := startOfDay(now)
	switch {
	case date.After(today):
		issues = append(issues, receipt.Issue{
			Severity:       receipt.SeverityWarning,
			Field:          "date",
			Message:        "date is in the future",
			CurrentValue:   r.Date.Value,
			SuggestedValue: today.Format(dateLayout),
			AutoFixable:    true,
			Rule:           rule.Name(),
		})
	case date.Before(today.AddDate(-maxAgeYear, 0, 0)):
		issues = append(issues, receipt.Issue{
			Severity:     receipt.SeverityWarning,
			Field:        "date",
			Message:      "date is more than 5 years old",
			CurrentValue: r.Date.Value,
			Rule:         rule.Name(),
		})
	}
	return resultFor(issues)
}

// Fix clamps future dates to the processing date
func (rule DateRule) Fix(r *receipt.Record, now time.Time) []receipt.Issue {
	date, err := time.Parse(dateLayout, r.Date.Value)
	today := startOfDay(now)
	if err != nil || !date.After(today) {
		return nil
	}
	fix := receipt.Issue{
		Severity:       receipt.SeverityWarning,
		Field:          "date",
		Message:        "future date clamped to processing date",
		CurrentValue:   r.Date.Value,
		SuggestedValue: today.Format(dateLayout),
		AutoFixable:    true,
		Rule:           rule.Name(),
	}
	r.Date.Value = today.Format(dateLayout)
	r.Date.Method = receipt.MethodInferred
	return []receipt.Issue{fix}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
