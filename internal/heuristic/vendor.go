package heuristic

import (
	"regexp"
	"strings"

	"github.com/agext/levenshtein"

	"github.com/zombor/receipt-extractor/internal/receipt"
)

// vendorAlias maps a canonical vendor name to text variants seen on receipts.
// Variants are written in normalized form (see normalizeVendorLine).
type vendorAlias struct {
	Name     string
	Variants []string
}

// vendorAliases is checked in order; earlier entries win when a line matches more than one.
var vendorAliases = []vendorAlias{
	{"Home Depot", []string{"THE HOME DEPOT", "HOME DEPOT", "HOME-DEPOT", "HOMEDEPOT", "HD SUPPLY", "HD"}},
	{"Lowe's", []string{"LOWE'S", "LOWES", "LOWE S", "LOWES HOME IMPROVEMENT"}},
	{"Walmart", []string{"WAL-MART", "WALMART", "WAL MART", "WALMART SUPERCENTER"}},
	{"Target", []string{"TARGET", "SUPER TARGET"}},
	{"Costco", []string{"COSTCO WHOLESALE", "COSTCO"}},
	{"Sam's Club", []string{"SAM'S CLUB", "SAMS CLUB", "SAMSCLUB"}},
	{"Menards", []string{"MENARDS"}},
	{"Ace Hardware", []string{"ACE HARDWARE", "ACE HDWE", "ACE"}},
	{"True Value", []string{"TRUE VALUE", "TRUEVALUE"}},
	{"Harbor Freight", []string{"HARBOR FREIGHT", "HARBOR FREIGHT TOOLS", "HFT"}},
	{"Sherwin-Williams", []string{"SHERWIN-WILLIAMS", "SHERWIN WILLIAMS", "SHERWIN"}},
	{"Grainger", []string{"GRAINGER", "W.W. GRAINGER", "WW GRAINGER"}},
	{"Ferguson", []string{"FERGUSON"}},
	{"Fastenal", []string{"FASTENAL"}},
	{"Staples", []string{"STAPLES"}},
	{"Office Depot", []string{"OFFICE DEPOT", "OFFICEMAX", "OFFICE MAX"}},
	{"Best Buy", []string{"BEST BUY", "BESTBUY"}},
	{"Amazon", []string{"AMAZON", "AMAZON.COM", "AMZN"}},
	{"CVS", []string{"CVS PHARMACY", "CVS"}},
	{"Walgreens", []string{"WALGREENS", "WALGREEN"}},
	{"Shell", []string{"SHELL OIL", "SHELL"}},
	{"Exxon", []string{"EXXONMOBIL", "EXXON", "MOBIL"}},
	{"Chevron", []string{"CHEVRON"}},
	{"Speedway", []string{"SPEEDWAY"}},
	{"Kroger", []string{"KROGER"}},
	{"Publix", []string{"PUBLIX"}},
	{"Whole Foods", []string{"WHOLE FOODS", "WHOLEFDS", "WHOLE FOODS MARKET"}},
	{"Starbucks", []string{"STARBUCKS"}},
	{"McDonald's", []string{"MCDONALD'S", "MCDONALDS"}},
}

var (
	reVendorPunct = regexp.MustCompile(`[^\p{L}\p{N}\s'\-]`)
	reSpaces      = regexp.MustCompile(`\s+`)
)

// normalizeVendorLine uppercases, drops punctuation other than hyphen and apostrophe, and collapses whitespace
func normalizeVendorLine(line string) string {
	line = strings.ToUpper(line)
	line = reVendorPunct.ReplaceAllString(line, " ")
	line = reSpaces.ReplaceAllString(line, " ")
	return strings.TrimSpace(line)
}

// containsToken reports whether variant occurs in line on token boundaries
func containsToken(line, variant string) bool {
	return strings.Contains(" "+line+" ", " "+variant+" ")
}

// DetectVendor finds the merchant name in the first lines of the text
func DetectVendor(text string, opts Options) receipt.Field[string] {
	lines := nonEmpty(splitLines(text), 3)

	chain := []matcher[string]{matchVendorAlias}
	if opts.FuzzyVendor {
		chain = append(chain, matchVendorFuzzy)
	}
	chain = append(chain, matchVendorFirstLine)

	field, ok := firstMatch(lines, chain...)
	if !ok {
		return receipt.Field[string]{Method: receipt.MethodFallback}
	}
	return field
}

func matchVendorAlias(lines []string) (receipt.Field[string], bool) {
	for _, line := range lines {
		normalized := normalizeVendorLine(line)
		if normalized == "" {
			continue
		}
		for _, alias := range vendorAliases {
			for _, variant := range alias.Variants {
				if containsToken(normalized, variant) {
					return receipt.Field[string]{
						Value:      alias.Name,
						Confidence: 0.9,
						Method:     receipt.MethodPattern,
						Source:     line,
					}, true
				}
			}
		}
	}
	return receipt.Field[string]{}, false
}

func matchVendorFuzzy(lines []string) (receipt.Field[string], bool) {
	var (
		best      receipt.Field[string]
		bestScore float64
	)
	for _, line := range lines {
		normalized := normalizeVendorLine(line)
		for _, alias := range vendorAliases {
			for _, variant := range alias.Variants {
				if len(variant) < 4 {
					continue
				}
				score := Similarity(normalized, variant)
				for _, word := range candidatePhrases(normalized, len(strings.Fields(variant))) {
					if s := Similarity(word, variant); s > score {
						score = s
					}
				}
				if score >= 0.8 && score > bestScore {
					bestScore = score
					best = receipt.Field[string]{
						Value:      alias.Name,
						Confidence: receipt.Clamp(score*0.85, receipt.MaxConfidence),
						Method:     receipt.MethodFuzzy,
						Source:     line,
					}
				}
			}
		}
	}
	return best, bestScore > 0
}

// candidatePhrases returns every run of n consecutive words in line
func candidatePhrases(line string, n int) []string {
	words := strings.Fields(line)
	if n <= 0 || len(words) < n {
		return nil
	}
	out := make([]string, 0, len(words)-n+1)
	for i := 0; i+n <= len(words); i++ {
		out = append(out, strings.Join(words[i:i+n], " "))
	}
	return out
}

func matchVendorFirstLine(lines []string) (receipt.Field[string], bool) {
	if len(lines) == 0 {
		return receipt.Field[string]{}, false
	}
	return receipt.Field[string]{
		Value:      lines[0],
		Confidence: 0.3,
		Method:     receipt.MethodFallback,
		Source:     lines[0],
	}, true
}

// Similarity scores two strings in [0,1] as 1 - distance/maxLen.
// Strings whose lengths differ by more than 30% of the longer one score 0 without computing the distance.
func Similarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	maxLen := len(ra)
	if len(rb) > maxLen {
		maxLen = len(rb)
	}
	if maxLen == 0 {
		return 1
	}
	diff := len(ra) - len(rb)
	if diff < 0 {
		diff = -diff
	}
	if float64(diff) > 0.3*float64(maxLen) {
		return 0
	}
	distance := levenshtein.Distance(a, b, nil)
	return 1 - float64(distance)/float64(maxLen)
}
