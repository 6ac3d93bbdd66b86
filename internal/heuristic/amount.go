package heuristic

import (
	"regexp"
	"sort"
	"strings"

	"github.com/zombor/receipt-extractor/internal/receipt"
)

const amountPattern = `(\d{1,3}(?:,\d{3})+\.\d{2}|\d+\.\d{2})`

var (
	reAmountToken = regexp.MustCompile(`(\$[ \t]*)?` + amountPattern)
	reBareAmount  = regexp.MustCompile(`^\$?[ \t]*` + amountPattern + `$`)
	reDigitRun    = regexp.MustCompile(`\d+`)

	reTotalNextLine   = regexp.MustCompile(`(?i)\bTOTAL\b([^\n\d$]*)\n(?:[ \t]*\n)?[ \t]*\$?[ \t]*` + amountPattern)
	reStandaloneTotal = regexp.MustCompile(`(?i)^(?:GRAND[ \t]+)?TOTAL[ \t]*:?$`)
	reNotATotal       = regexp.MustCompile(`(?i)\b(TAX|SAVINGS?|ITEMS?|DISCOUNTS?|QTY|QUANTITY|POINTS|COUNT|SOLD|TENDER(?:ED)?)\b`)

	reSubtotal = regexp.MustCompile(`(?im)^[ \t]*SUB[ \t-]?TOTAL\b[^\n\d$]*(?:\n[ \t]*)?\$?[ \t]*` + amountPattern)
	reTax      = regexp.MustCompile(`(?im)^[ \t]*(?:SALES[ \t]+)?(?:TAX|HST|GST|VAT|PST)\b[^\n\d$]*(?:\d+(?:\.\d+)?[ \t]*%[^\n\d$]*)?(?:\n[ \t]*)?\$?[ \t]*` + amountPattern)

	reNearTotal    = regexp.MustCompile(`(?i)\b(total|due|owed)\b`)
	reNearSubtotal = regexp.MustCompile(`(?i)(sub[ \t-]?total|\btax\b|discount|savings)`)
)

// priorityTotal is a single-line total label with its base confidence and contextual boost
type priorityTotal struct {
	re    *regexp.Regexp
	base  float64
	boost float64
}

var priorityTotals = []priorityTotal{
	{regexp.MustCompile(`(?i)\bGRAND[ \t]+TOTAL\b[ \t:]*\$?[ \t]*` + amountPattern), 0.7, 0.2},
	{regexp.MustCompile(`(?i)\bAMOUNT[ \t]+DUE\b[ \t:]*\$?[ \t]*` + amountPattern), 0.7, 0.15},
	{regexp.MustCompile(`(?i)\bBALANCE[ \t]+DUE\b[ \t:]*\$?[ \t]*` + amountPattern), 0.7, 0},
	{regexp.MustCompile(`(?i)\bTOTAL\b[ \t:]*\$?[ \t]*` + amountPattern), 0.7, 0},
	{regexp.MustCompile(`(?i)\bFINAL[ \t]+TOTAL\b[ \t:]*\$?[ \t]*` + amountPattern), 0.8, 0},
}

// AmountResult carries the money fields found in the text
type AmountResult struct {
	Total    receipt.Field[float64]
	Found    bool
	Labelled bool // total came from a TOTAL-style label rather than the global scan
	Subtotal *receipt.Field[float64]
	Tax      *receipt.Field[float64]
}

// amountCandidate is a possible total
type amountCandidate struct {
	value      float64
	confidence float64
	source     string
}

// ParseAmounts extracts the total, subtotal and tax from receipt text
func ParseAmounts(text string, opts Options) AmountResult {
	working := strings.ReplaceAll(text, "\r\n", "\n")
	if opts.DecimalRepair {
		working = repairDecimals(working)
	}

	var result AmountResult
	stages := []struct {
		labelled bool
		run      func(string) []amountCandidate
	}{
		{true, totalOnNextLine},
		{true, priorityLineTotals},
		{true, standaloneTotalLine},
		{false, globalAmountScan},
	}
	for _, stage := range stages {
		candidates := stage.run(working)
		if len(candidates) == 0 {
			continue
		}
		best := pickCandidate(candidates)
		result.Total = receipt.Field[float64]{
			Value:      best.value,
			Confidence: best.confidence,
			Method:     receipt.MethodPattern,
			Source:     best.source,
		}
		if !stage.labelled {
			result.Total.Method = receipt.MethodInferred
		}
		result.Found = true
		result.Labelled = stage.labelled
		break
	}
	if !result.Found {
		result.Total.Method = receipt.MethodFallback
	}

	result.Subtotal = labelledAmount(reSubtotal, working, 0.85)
	result.Tax = labelledAmount(reTax, working, 0.8)
	return result
}

// pickCandidate prefers the highest confidence and then the larger amount
func pickCandidate(candidates []amountCandidate) amountCandidate {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].confidence != candidates[j].confidence {
			return candidates[i].confidence > candidates[j].confidence
		}
		return candidates[i].value > candidates[j].value
	})
	return candidates[0]
}

// repairDecimals rewrites bare 3-5 digit integers as cents, so "1299" becomes "12.99".
// Digits touching separators, codes or other punctuation are left alone.
func repairDecimals(text string) string {
	var b strings.Builder
	last := 0
	for _, loc := range reDigitRun.FindAllStringIndex(text, -1) {
		start, end := loc[0], loc[1]
		if n := end - start; n < 3 || n > 5 {
			continue
		}
		if start > 0 && !bareNeighbour(text[start-1]) {
			continue
		}
		if end < len(text) && !bareNeighbour(text[end]) {
			continue
		}
		b.WriteString(text[last:start])
		digits := text[start:end]
		b.WriteString(digits[:len(digits)-2])
		b.WriteByte('.')
		b.WriteString(digits[len(digits)-2:])
		last = end
	}
	b.WriteString(text[last:])
	return b.String()
}

func bareNeighbour(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '$':
		return true
	}
	return false
}

// totalOnNextLine finds a TOTAL label whose amount sits on the following line
func totalOnNextLine(text string) []amountCandidate {
	var out []amountCandidate
	for _, m := range reTotalNextLine.FindAllStringSubmatchIndex(text, -1) {
		labelStart := m[0]
		rest := text[m[2]:m[3]]
		if reNotATotal.MatchString(rest) || precededBySub(text, labelStart) || followedByDigit(text, m[5]) {
			continue
		}
		value, ok := receipt.ParseAmount(text[m[4]:m[5]])
		if !ok {
			continue
		}
		out = append(out, amountCandidate{value: value, confidence: 0.9, source: text[m[0]:m[1]]})
	}
	return out
}

// precededBySub reports whether the 20 characters before idx on the same line read as a subtotal label
func precededBySub(text string, idx int) bool {
	from := idx - 20
	if from < 0 {
		from = 0
	}
	if nl := strings.LastIndexByte(text[from:idx], '\n'); nl >= 0 {
		from += nl + 1
	}
	before := strings.ToUpper(text[from:idx])
	if strings.Contains(before, "SUBTOTAL") {
		return true
	}
	trimmed := strings.TrimRight(before, " \t-")
	return strings.HasSuffix(trimmed, "SUB")
}

// priorityLineTotals scores single-line total labels
func priorityLineTotals(text string) []amountCandidate {
	var out []amountCandidate
	for _, pt := range priorityTotals {
		for _, m := range pt.re.FindAllStringSubmatchIndex(text, -1) {
			if precededBySub(text, m[0]) || followedByDigit(text, m[3]) {
				continue
			}
			value, ok := receipt.ParseAmount(text[m[2]:m[3]])
			if !ok {
				continue
			}
			confidence := pt.base + pt.boost
			if !nearSubtotal(text, m[0]) {
				confidence += 0.1
			}
			out = append(out, amountCandidate{
				value:      value,
				confidence: receipt.Clamp(confidence, 0.95),
				source:     text[m[0]:m[1]],
			})
		}
	}
	return out
}

func nearSubtotal(text string, idx int) bool {
	from, to := idx-40, idx+40
	if from < 0 {
		from = 0
	}
	if to > len(text) {
		to = len(text)
	}
	return strings.Contains(strings.ToUpper(text[from:to]), "SUBTOTAL")
}

func followedByDigit(text string, end int) bool {
	return end < len(text) && text[end] >= '0' && text[end] <= '9'
}

// standaloneTotalLine finds a line reading just TOTAL and takes the first bare amount within four lines
func standaloneTotalLine(text string) []amountCandidate {
	lines := splitLines(text)
	for i, line := range lines {
		if !reStandaloneTotal.MatchString(line) {
			continue
		}
		for j := i + 1; j < len(lines) && j <= i+4; j++ {
			m := reBareAmount.FindStringSubmatch(lines[j])
			if m == nil {
				continue
			}
			if value, ok := receipt.ParseAmount(m[1]); ok {
				return []amountCandidate{{value: value, confidence: 0.75, source: line + "\n" + lines[j]}}
			}
		}
	}
	return nil
}

// globalAmountScan scores every currency-shaped token by its surroundings
func globalAmountScan(text string) []amountCandidate {
	var out []amountCandidate
	for _, m := range reAmountToken.FindAllStringSubmatchIndex(text, -1) {
		if followedByDigit(text, m[1]) {
			continue
		}
		value, ok := receipt.ParseAmount(text[m[4]:m[5]])
		if !ok {
			continue
		}

		from := m[0] - 30
		if from < 0 {
			from = 0
		}
		window := text[from:m[0]]

		score := 0.0
		if reNearTotal.MatchString(window) {
			score += 50
		}
		if m[2] >= 0 {
			score += 10
		}
		if float64(m[0]) >= 0.6*float64(len(text)) {
			score += 20
		}
		if reNearSubtotal.MatchString(window) {
			score -= 30
		}

		out = append(out, amountCandidate{
			value:      value,
			confidence: receipt.Clamp(0.3+score/200, 0.7),
			source:     text[m[0]:m[1]],
		})
	}
	return out
}

// labelledAmount returns the first amount captured by re, or nil
func labelledAmount(re *regexp.Regexp, text string, confidence float64) *receipt.Field[float64] {
	m := re.FindStringSubmatchIndex(text)
	if m == nil || followedByDigit(text, m[3]) {
		return nil
	}
	value, ok := receipt.ParseAmount(text[m[2]:m[3]])
	if !ok {
		return nil
	}
	return &receipt.Field[float64]{
		Value:      value,
		Confidence: confidence,
		Method:     receipt.MethodPattern,
		Source:     strings.TrimSpace(text[m[0]:m[1]]),
	}
}
