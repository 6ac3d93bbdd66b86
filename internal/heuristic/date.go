package heuristic

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/zombor/receipt-extractor/internal/receipt"
)

const (
	dateLayout     = "2006-01-02"
	dateScanLines  = 5
	dateFallbackCf = 0.1
)

var (
	reNumericDate = regexp.MustCompile(`\b(\d{1,4})[/\-.](\d{1,2})[/\-.](\d{2,4})\b`)
	reMonthDate   = regexp.MustCompile(`(?i)\b(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.?\s+(\d{1,2}),?\s+(\d{4})\b`)
)

var monthNumbers = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March, "apr": time.April,
	"may": time.May, "jun": time.June, "jul": time.July, "aug": time.August,
	"sep": time.September, "oct": time.October, "nov": time.November, "dec": time.December,
}

// ParseDate finds the transaction date in the first lines of the text.
// When nothing matches, today's date (per now) is returned with low confidence.
func ParseDate(text string, now time.Time) receipt.Field[string] {
	lines := splitLines(text)
	if len(lines) > dateScanLines {
		lines = lines[:dateScanLines]
	}

	for _, line := range lines {
		if field, ok := firstMatch([]string{line}, matchNumericDate, matchMonthNameDate); ok {
			return field
		}
	}

	return receipt.Field[string]{
		Value:      now.Format(dateLayout),
		Confidence: dateFallbackCf,
		Method:     receipt.MethodFallback,
	}
}

// matchNumericDate reads 01/15/2024, 01-15-2024, 01.15.2024 and 2024-01-15.
// A first number above 31 can only be a year; otherwise the date is read month first.
func matchNumericDate(lines []string) (receipt.Field[string], bool) {
	for _, line := range lines {
		for _, m := range reNumericDate.FindAllStringSubmatch(line, -1) {
			a, _ := strconv.Atoi(m[1])
			b, _ := strconv.Atoi(m[2])
			c, _ := strconv.Atoi(m[3])

			var year, month, day int
			if a > 31 {
				if len(m[1]) != 4 {
					continue
				}
				year, month, day = a, b, c
			} else {
				if len(m[3]) != 4 {
					continue
				}
				year, month, day = c, a, b
			}

			if formatted, ok := calendarDate(year, month, day); ok {
				return receipt.Field[string]{
					Value:      formatted,
					Confidence: 0.85,
					Method:     receipt.MethodPattern,
					Source:     m[0],
				}, true
			}
		}
	}
	return receipt.Field[string]{}, false
}

// matchMonthNameDate reads "Jan 15, 2024" and "January 15 2024"
func matchMonthNameDate(lines []string) (receipt.Field[string], bool) {
	for _, line := range lines {
		m := reMonthDate.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		month := monthNumbers[strings.ToLower(m[1])]
		day, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		if formatted, ok := calendarDate(year, int(month), day); ok {
			return receipt.Field[string]{
				Value:      formatted,
				Confidence: 0.9,
				Method:     receipt.MethodPattern,
				Source:     m[0],
			}, true
		}
	}
	return receipt.Field[string]{}, false
}

// calendarDate formats the date, rejecting values that time.Date would normalize (e.g. Feb 30)
func calendarDate(year, month, day int) (string, bool) {
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return "", false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Year() != year || int(t.Month()) != month || t.Day() != day {
		return "", false
	}
	return t.Format(dateLayout), true
}
