package validation

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/zombor/receipt-extractor/internal/receipt"
)

const (
	minVendorLength = 2
	maxVendorLength = 50
)

var (
	reUnusualVendor = regexp.MustCompile(`[^\p{L}\p{N}\s&'.,\-#/()!+]`)
	reDigitsOnly    = regexp.MustCompile(`^[\d\s]+$`)
)

// VendorRule checks the vendor name looks like a name
type VendorRule struct{}

func (VendorRule) Name() string  { return "vendor" }
func (VendorRule) Priority() int { return 80 }

func (rule VendorRule) Validate(r *receipt.Record, _ time.Time) Result {
	var issues []receipt.Issue
	vendor := strings.TrimSpace(r.Vendor.Value)
	length := utf8.RuneCountInString(vendor)

	switch {
	case length < minVendorLength:
		issues = append(issues, receipt.Issue{
			Severity:     receipt.SeverityError,
			Field:        "vendor",
			Message:      "vendor name is too short",
			CurrentValue: r.Vendor.Value,
			Rule:         rule.Name(),
		})
	case length > maxVendorLength:
		issues = append(issues, receipt.Issue{
			Severity:       receipt.SeverityError,
			Field:          "vendor",
			Message:        "vendor name is too long",
			CurrentValue:   r.Vendor.Value,
			SuggestedValue: truncate(vendor, maxVendorLength),
			Rule:           rule.Name(),
		})
	}

	if reDigitsOnly.MatchString(vendor) {
		issues = append(issues, receipt.Issue{
			Severity:     receipt.SeverityError,
			Field:        "vendor",
			Message:      "vendor name is only digits",
			CurrentValue: r.Vendor.Value,
			Rule:         rule.Name(),
		})
	} else if reUnusualVendor.MatchString(vendor) {
		issues = append(issues, receipt.Issue{
			Severity:     receipt.SeverityWarning,
			Field:        "vendor",
			Message:      "vendor name contains unusual characters",
			CurrentValue: r.Vendor.Value,
			Rule:         rule.Name(),
		})
	}

	return resultFor(issues)
}

// Fix does nothing; vendor problems are left to recovery or review
func (VendorRule) Fix(*receipt.Record, time.Time) []receipt.Issue {
	return nil
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return strings.TrimSpace(string(runes[:n]))
}
