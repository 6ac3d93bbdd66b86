package validation

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/zombor/receipt-extractor/internal/receipt"
)

const (
	panicConfidence  = 0.3
	reviewConfidence = 0.6
	reviewErrors     = 2
	mathPenalty      = 0.9
)

var tierBoost = map[receipt.Quality]float64{
	receipt.QualityExcellent: 1.15,
	receipt.QualityGood:      1.10,
	receipt.QualityFair:      1.05,
	receipt.QualityPoor:      1.0,
}

// Validator runs rules over records in priority order
type Validator struct {
	rules []Rule
}

// New returns a validator with the amount, date, vendor and line item rules
func New() *Validator {
	return NewWithRules(AmountRule{}, DateRule{}, VendorRule{}, LineItemRule{})
}

// NewWithRules returns a validator running the given rules, highest priority first
func NewWithRules(rules ...Rule) *Validator {
	sorted := append([]Rule(nil), rules...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority() > sorted[j].Priority()
	})
	return &Validator{rules: sorted}
}

// Process validates r, fixes what it can, applies remaining suggestions and boosts field confidences.
// The outcome is stored on r.Validation.
func (v *Validator) Process(r *receipt.Record, now time.Time) {
	outcome := v.Validate(r, now)

	var fixes []receipt.Issue
	if len(outcome.Issues) > 0 {
		fixes = append(fixes, v.AutoFix(r, now)...)
		outcome = v.Validate(r, now)

		if recovered := v.Recover(r, outcome.Issues); len(recovered) > 0 {
			fixes = append(fixes, recovered...)
			outcome = v.Validate(r, now)
		}
	}
	outcome.Fixes = fixes
	r.Validation = outcome

	v.Boost(r)
}

// Validate runs every rule and aggregates the verdicts. The record is not modified.
func (v *Validator) Validate(r *receipt.Record, now time.Time) receipt.Validation {
	outcome := receipt.Validation{Passed: true, Issues: []receipt.Issue{}}
	if len(v.rules) == 0 {
		outcome.Confidence = 1
		return outcome
	}

	sum := 0.0
	mathFields := map[string]bool{}
	for _, rule := range v.rules {
		result := v.run(rule, r, now)
		sum += result.Confidence
		if !result.Valid {
			outcome.Passed = false
		}
		for _, issue := range result.Issues {
			if issue.Math {
				mathFields[issue.Field] = true
			}
		}
		outcome.Issues = append(outcome.Issues, result.Issues...)
	}

	confidence := sum / float64(len(v.rules))
	for range mathFields {
		confidence *= mathPenalty
	}
	outcome.Confidence = receipt.Clamp(confidence, receipt.MaxConfidence)
	outcome.NeedsReview = outcome.Confidence < reviewConfidence || outcome.Errors() > reviewErrors
	return outcome
}

// run executes a single rule, turning a panic into a low-confidence failure
func (v *Validator) run(rule Rule, r *receipt.Record, now time.Time) (result Result) {
	defer func() {
		if p := recover(); p != nil {
			slog.Error("Validation rule failed", "rule", rule.Name(), "error", p)
			result = Result{
				Valid:      false,
				Confidence: panicConfidence,
				Issues: []receipt.Issue{{
					Severity: receipt.SeverityError,
					Field:    rule.Name(),
					Message:  fmt.Sprintf("rule %s failed to run", rule.Name()),
					Rule:     rule.Name(),
				}},
			}
		}
	}()
	return rule.Validate(r, now)
}

// AutoFix applies every rule's fixer in priority order and returns the fixes made
func (v *Validator) AutoFix(r *receipt.Record, now time.Time) []receipt.Issue {
	var fixes []receipt.Issue
	for _, rule := range v.rules {
		fixes = append(fixes, v.fix(rule, r, now)...)
	}
	return fixes
}

func (v *Validator) fix(rule Rule, r *receipt.Record, now time.Time) (fixes []receipt.Issue) {
	defer func() {
		if p := recover(); p != nil {
			slog.Error("Validation fix failed", "rule", rule.Name(), "error", p)
			fixes = nil
		}
	}()
	return rule.Fix(r, now)
}

// Recover applies the suggested value of each issue that carries one
func (v *Validator) Recover(r *receipt.Record, issues []receipt.Issue) []receipt.Issue {
	var applied []receipt.Issue
	for _, issue := range issues {
		if issue.SuggestedValue == nil {
			continue
		}
		if err := setField(r, issue.Field, issue.SuggestedValue); err != nil {
			slog.Warn("Could not apply suggested value", "field", issue.Field, "error", err)
			continue
		}
		applied = append(applied, issue)
	}
	return applied
}

// Boost lifts the vendor, date and total confidences by the record's quality tier
func (v *Validator) Boost(r *receipt.Record) {
	r.Quality = receipt.QualityFor(r.Overall)
	multiplier := tierBoost[r.Quality]

	r.Vendor.Confidence = receipt.Clamp(r.Vendor.Confidence*multiplier, receipt.MaxConfidence)
	r.Date.Confidence = receipt.Clamp(r.Date.Confidence*multiplier, receipt.MaxConfidence)
	r.Total.Confidence = receipt.Clamp(r.Total.Confidence*multiplier, receipt.MaxConfidence)
	clampConfidences(r)
}

// clampConfidences bounds every confidence on the record
func clampConfidences(r *receipt.Record) {
	r.Vendor.Confidence = receipt.Clamp(r.Vendor.Confidence, receipt.MaxConfidence)
	r.Date.Confidence = receipt.Clamp(r.Date.Confidence, receipt.MaxConfidence)
	r.Total.Confidence = receipt.Clamp(r.Total.Confidence, receipt.MaxConfidence)
	r.DocumentType.Confidence = receipt.Clamp(r.DocumentType.Confidence, receipt.MaxConfidence)
	r.LineItemsConfidence = receipt.Clamp(r.LineItemsConfidence, receipt.MaxConfidence)
	r.Overall = receipt.Clamp(r.Overall, receipt.MaxConfidence)
	if r.Subtotal != nil {
		r.Subtotal.Confidence = receipt.Clamp(r.Subtotal.Confidence, receipt.MaxConfidence)
	}
	if r.Tax != nil {
		r.Tax.Confidence = receipt.Clamp(r.Tax.Confidence, receipt.MaxConfidence)
	}
	for i := range r.LineItems {
		r.LineItems[i].Confidence = receipt.Clamp(r.LineItems[i].Confidence, receipt.MaxConfidence)
	}
}

var reItemPath = regexp.MustCompile(`^lineItems\[(\d+)\]\.(description|totalPrice|unitPrice|quantity)$`)

// setField writes value to the record field named by path, e.g. "total" or "lineItems[2].totalPrice"
func setField(r *receipt.Record, path string, value any) error {
	switch path {
	case "vendor":
		s, err := asString(value)
		if err != nil {
			return err
		}
		r.Vendor.Value = s
		r.Vendor.Method = receipt.MethodInferred
		return nil
	case "date":
		s, err := asString(value)
		if err != nil {
			return err
		}
		r.Date.Value = s
		r.Date.Method = receipt.MethodInferred
		return nil
	case "total":
		f, err := asFloat(value)
		if err != nil {
			return err
		}
		r.Total.Value = f
		r.Total.Method = receipt.MethodCalculated
		return nil
	case "subtotal", "tax":
		f, err := asFloat(value)
		if err != nil {
			return err
		}
		field := &receipt.Field[float64]{Value: f, Confidence: 0.5, Method: receipt.MethodCalculated}
		if path == "subtotal" {
			r.Subtotal = field
		} else {
			r.Tax = field
		}
		return nil
	}

	m := reItemPath.FindStringSubmatch(path)
	if m == nil {
		return fmt.Errorf("unknown field %q", path)
	}
	index, _ := strconv.Atoi(m[1])
	if index >= len(r.LineItems) {
		return fmt.Errorf("line item %d out of range", index)
	}
	item := &r.LineItems[index]
	if m[2] == "description" {
		s, err := asString(value)
		if err != nil {
			return err
		}
		item.Description = s
		return nil
	}
	f, err := asFloat(value)
	if err != nil {
		return err
	}
	switch m[2] {
	case "totalPrice":
		item.TotalPrice = f
	case "unitPrice":
		item.UnitPrice = receipt.Float(f)
	case "quantity":
		item.Quantity = receipt.Float(f)
	}
	return nil
}

func asString(value any) (string, error) {
	s, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("expected a string, got %T", value)
	}
	return s, nil
}

func asFloat(value any) (float64, error) {
	switch f := value.(type) {
	case float64:
		return f, nil
	case int:
		return float64(f), nil
	case string:
		v, ok := receipt.ParseAmount(f)
		if !ok {
			return 0, fmt.Errorf("cannot read %q as a number", f)
		}
		return v, nil
	}
	return 0, fmt.Errorf("expected a number, got %T", value)
}
