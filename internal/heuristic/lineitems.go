package heuristic

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/zombor/receipt-extractor/internal/receipt"
)

const (
	maxLineItems      = 20
	outlierFactor     = 10.0
	duplicateOverlap  = 0.7
	itemConfidenceCap = 0.95
)

var (
	reItemDeny = []*regexp.Regexp{
		// column headers
		regexp.MustCompile(`(?i)^(qty|quantity|item|description|desc)\b.*\b(price|amount|total|amt)\b`),
		// tender and payment
		regexp.MustCompile(`(?i)\b(cash|visa|mastercard|master card|amex|discover|debit|credit|change due|change|tender(ed)?|payment|card ?#|auth(orization)?|approval|approved|chip|contactless)\b`),
		// totals, tax and discounts
		regexp.MustCompile(`(?i)^\s*(sub[ \t-]?total|grand total|total|final total|amount due|balance( due)?|sales tax|tax|hst|gst|vat|pst|discount|savings|you saved|coupon)\b`),
		// barcodes
		regexp.MustCompile(`^[\d\s\-]{10,}$`),
		// boilerplate
		regexp.MustCompile(`(?i)\b(thank you|thanks|return policy|returns?|receipt|store #?|customer|cashier|register|trans(action)?|visit|www\.|http|\.com\b|tel|phone|survey|member|rewards)\b`),
	}

	reDescAmount = regexp.MustCompile(`\$?\s*\d{1,3}(?:,\d{3})*\.\d{2}|\$?\s*\d+\.\d{2}`)
	reDescQty    = regexp.MustCompile(`(?i)\b\d+(?:\.\d+)?\s*[x×*@]\s*|\b(?:qty|quantity)\s*:?\s*\d+\b|@`)
	reDescUnit   = regexp.MustCompile(`(?i)/\s*(?:ea|each|lb|lbs|oz|kg|ft|pc|pcs)\b`)
	reDescLabel  = regexp.MustCompile(`(?i)\b(?:sku|upc|dept|plu|item ?#|art ?#)\s*[:#]?\s*[A-Z0-9\-]*`)
	reDescLead   = regexp.MustCompile(`^\d{1,3}\s+([A-Za-z])`)
	reDescCode   = regexp.MustCompile(`\b[A-Za-z0-9]*\d[A-Za-z0-9]{5,}\b`)
	reDescFlag   = regexp.MustCompile(`\s+[A-Z]$`)
	reDescJunk   = regexp.MustCompile(`[#$*:;|=_]+`)
	reNumericish = regexp.MustCompile(`^[\d\s.,\-]+$`)
	reItemPrefix = regexp.MustCompile(`(?i)^item\b`)
)

// priceInfo is the structured price read from one line
type priceInfo struct {
	quantity  *float64
	unitPrice *float64
	total     *float64
}

// priceCategory reads part of a price from a line. amounts lists the submatch
// groups holding money values whose spans are consumed when the category applies.
type priceCategory struct {
	re      *regexp.Regexp
	amounts []int
	apply   func(groups []string, info *priceInfo) bool
}

const money = `(\d{1,3}(?:,\d{3})+\.\d{2}|\d+\.\d{2})`

var priceCategories = []priceCategory{
	{ // 2 x 3.50
		re:      regexp.MustCompile(`(?i)\b(\d+(?:\.\d+)?)\s*[x×*]\s*\$?` + money),
		amounts: []int{2},
		apply:   setQuantityAndUnit,
	},
	{ // 2 @ 3.50
		re:      regexp.MustCompile(`(?i)\b(\d+(?:\.\d+)?)\s*@\s*\$?` + money),
		amounts: []int{2},
		apply:   setQuantityAndUnit,
	},
	{ // 2 WIDGET 7.00
		re:      regexp.MustCompile(`^(\d{1,3})\s+[A-Za-z][^\n]*?\s\$?` + money + `\s*[A-Z]?$`),
		amounts: []int{2},
		apply: func(g []string, info *priceInfo) bool {
			if info.quantity != nil || info.total != nil {
				return false
			}
			info.quantity = parseQuantity(g[1])
			info.total = parseMoney(g[2])
			return info.quantity != nil && info.total != nil
		},
	},
	{ // WIDGET 7.00 T
		re:      regexp.MustCompile(`\$?` + money + `\s*[A-Z]{0,2}\s*$`),
		amounts: []int{1},
		apply:   setTotal,
	},
	{ // 7.00 WIDGET
		re:      regexp.MustCompile(`^\$?` + money + `\s+\S`),
		amounts: []int{1},
		apply:   setTotal,
	},
	{ // WIDGET total: 7.00
		re:      regexp.MustCompile(`(?i)\b(?:total|amt|amount)\s*:\s*\$?` + money),
		amounts: []int{1},
		apply:   setTotal,
	},
	{ // $7.00 anywhere
		re:      regexp.MustCompile(`\$\s*` + money + `(?:[^/\d]|$)`),
		amounts: []int{1},
		apply:   setTotal,
	},
	{ // 0.59/lb
		re:      regexp.MustCompile(`(?i)\$?` + money + `\s*/\s*(?:ea|each|lb|lbs|oz|kg|ft|pc|pcs)\b`),
		amounts: []int{1},
		apply: func(g []string, info *priceInfo) bool {
			if info.unitPrice != nil {
				return false
			}
			info.unitPrice = parseMoney(g[1])
			return info.unitPrice != nil
		},
	},
	{ // QTY 2
		re: regexp.MustCompile(`(?i)\b(?:qty|quantity)\s*:?\s*(\d+)\b`),
		apply: func(g []string, info *priceInfo) bool {
			if info.quantity != nil {
				return false
			}
			info.quantity = parseQuantity(g[1])
			return info.quantity != nil
		},
	},
}

func setQuantityAndUnit(g []string, info *priceInfo) bool {
	if info.quantity != nil || info.unitPrice != nil {
		return false
	}
	info.quantity = parseQuantity(g[1])
	info.unitPrice = parseMoney(g[2])
	return info.quantity != nil && info.unitPrice != nil
}

func setTotal(g []string, info *priceInfo) bool {
	if info.total != nil {
		return false
	}
	info.total = parseMoney(g[1])
	return info.total != nil
}

func parseMoney(s string) *float64 {
	v, ok := receipt.ParseAmount(s)
	if !ok {
		return nil
	}
	return &v
}

func parseQuantity(s string) *float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 {
		return nil
	}
	return &v
}

// span is a half-open byte range of a line
type span struct{ start, end int }

func overlaps(consumed []span, s span) bool {
	for _, c := range consumed {
		if s.start < c.end && c.start < s.end {
			return true
		}
	}
	return false
}

// ParseLineItems extracts purchased items from receipt text
func ParseLineItems(text string) []receipt.LineItem {
	var items []receipt.LineItem
	for _, line := range splitLines(text) {
		if line == "" || deniedLine(line) {
			continue
		}
		description := cleanDescription(line)
		if description == "" {
			continue
		}
		info, ok := parsePrice(line)
		if !ok {
			continue
		}
		items = append(items, buildItem(description, info))
	}
	return refineItems(items)
}

// LineItemsConfidence is the mean item confidence, or a floor when nothing was found
func LineItemsConfidence(items []receipt.LineItem) float64 {
	if len(items) == 0 {
		return 0.1
	}
	sum := 0.0
	for _, item := range items {
		sum += item.Confidence
	}
	return receipt.Clamp(sum/float64(len(items)), receipt.MaxConfidence)
}

func deniedLine(line string) bool {
	for _, re := range reItemDeny {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

// cleanDescription strips prices, quantities, codes and labels. An empty result means the line has no usable description.
func cleanDescription(line string) string {
	d := reDescLabel.ReplaceAllString(line, " ")
	d = reDescUnit.ReplaceAllString(d, " ")
	d = reDescQty.ReplaceAllString(d, " ")
	d = reDescLead.ReplaceAllString(d, "$1")
	d = reDescAmount.ReplaceAllString(d, " ")
	d = reDescCode.ReplaceAllString(d, " ")
	d = reDescJunk.ReplaceAllString(d, " ")
	d = strings.TrimSpace(reSpaces.ReplaceAllString(d, " "))
	d = strings.TrimSpace(reDescFlag.ReplaceAllString(d, ""))
	d = strings.Trim(d, " -.,")

	if len(d) <= 1 || reNumericish.MatchString(d) {
		return ""
	}
	return d
}

// parsePrice walks the price categories in order, merging what each one contributes.
// Money spans taken by an earlier category are never read again.
func parsePrice(line string) (priceInfo, bool) {
	var (
		info     priceInfo
		consumed []span
	)
	for _, category := range priceCategories {
		for _, m := range category.re.FindAllStringSubmatchIndex(line, -1) {
			spans := make([]span, 0, len(category.amounts))
			clash := false
			for _, g := range category.amounts {
				s := span{m[2*g], m[2*g+1]}
				if overlaps(consumed, s) {
					clash = true
					break
				}
				spans = append(spans, s)
			}
			if clash {
				continue
			}
			groups := make([]string, len(m)/2)
			for i := range groups {
				if m[2*i] >= 0 {
					groups[i] = line[m[2*i]:m[2*i+1]]
				}
			}
			trial := info
			if category.apply(groups, &trial) {
				info = trial
				consumed = append(consumed, spans...)
			}
			break
		}
	}

	switch {
	case info.total == nil && info.quantity != nil && info.unitPrice != nil:
		info.total = receipt.Float(receipt.Mul(*info.quantity, *info.unitPrice))
	case info.total != nil && info.quantity != nil && info.unitPrice == nil:
		info.unitPrice = receipt.Float(receipt.Div(*info.total, *info.quantity))
	}
	if info.total == nil || *info.total <= 0 {
		return info, false
	}
	return info, true
}

func buildItem(description string, info priceInfo) receipt.LineItem {
	item := receipt.LineItem{
		Description: description,
		Quantity:    info.quantity,
		UnitPrice:   info.unitPrice,
		TotalPrice:  *info.total,
	}

	confidence := 0.3
	if len(description) >= 3 {
		confidence += 0.15
	}
	if len(strings.Fields(description)) >= 2 {
		confidence += 0.1
	}
	confidence += 0.2
	if item.Quantity != nil {
		confidence += 0.05
	}
	if item.UnitPrice != nil {
		confidence += 0.05
	}
	if reconciles(item) {
		confidence += 0.15
	}
	if reItemPrefix.MatchString(description) {
		confidence -= 0.2
	}
	item.Confidence = receipt.Clamp(confidence, itemConfidenceCap)
	return item
}

func reconciles(item receipt.LineItem) bool {
	return item.Quantity != nil && item.UnitPrice != nil &&
		receipt.Reconciles(receipt.Mul(*item.Quantity, *item.UnitPrice), item.TotalPrice)
}

// refineItems drops price outliers, adjusts for math consistency, removes near duplicates and keeps the most confident items
func refineItems(items []receipt.LineItem) []receipt.LineItem {
	if len(items) == 0 {
		return nil
	}

	sum := 0.0
	for _, item := range items {
		sum += item.TotalPrice
	}
	average := sum / float64(len(items))

	kept := make([]receipt.LineItem, 0, len(items))
	for _, item := range items {
		if item.TotalPrice > outlierFactor*average {
			continue
		}
		if item.Quantity != nil && item.UnitPrice != nil {
			if reconciles(item) {
				item.Confidence = receipt.Clamp(item.Confidence+0.05, itemConfidenceCap)
			} else {
				item.Confidence = receipt.Clamp(item.Confidence-0.15, itemConfidenceCap)
			}
		}
		if duplicateOf(kept, item) {
			continue
		}
		kept = append(kept, item)
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Confidence > kept[j].Confidence
	})
	if len(kept) > maxLineItems {
		kept = kept[:maxLineItems]
	}
	return kept
}

// duplicateOf reports whether item repeats the description of an already kept item
func duplicateOf(kept []receipt.LineItem, item receipt.LineItem) bool {
	desc := strings.ToLower(item.Description)
	for _, k := range kept {
		other := strings.ToLower(k.Description)
		if strings.Contains(desc, other) || strings.Contains(other, desc) {
			return true
		}
		if tokenOverlap(desc, other) >= duplicateOverlap {
			return true
		}
	}
	return false
}

// tokenOverlap is the shared word count over the larger word count
func tokenOverlap(a, b string) float64 {
	wa, wb := strings.Fields(a), strings.Fields(b)
	if len(wa) == 0 || len(wb) == 0 {
		return 0
	}
	set := make(map[string]bool, len(wa))
	for _, w := range wa {
		set[w] = true
	}
	shared := 0
	seen := make(map[string]bool, len(wb))
	for _, w := range wb {
		if set[w] && !seen[w] {
			shared++
		}
		seen[w] = true
	}
	larger := len(wa)
	if len(wb) > larger {
		larger = len(wb)
	}
	return float64(shared) / float64(larger)
}
