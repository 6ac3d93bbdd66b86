package receipt

import "github.com/shopspring/decimal"

// Tolerance is the largest difference two money values may have and still be considered equal
var Tolerance = decimal.NewFromFloat(0.02)

// Reconciles reports whether a and b agree to within Tolerance
func Reconciles(a, b float64) bool {
	return decimal.NewFromFloat(a).Sub(decimal.NewFromFloat(b)).Abs().LessThanOrEqual(Tolerance)
}

// Add sums money values and rounds to cents
func Add(values ...float64) float64 {
	sum := decimal.Zero
	for _, v := range values {
		sum = sum.Add(decimal.NewFromFloat(v))
	}
	return sum.Round(2).InexactFloat64()
}

// Mul multiplies a quantity by a price and rounds to cents
func Mul(quantity, price float64) float64 {
	return decimal.NewFromFloat(quantity).Mul(decimal.NewFromFloat(price)).Round(2).InexactFloat64()
}

// Div divides a total by a quantity and rounds to cents
func Div(total, quantity float64) float64 {
	if quantity == 0 {
		return 0
	}
	return decimal.NewFromFloat(total).Div(decimal.NewFromFloat(quantity)).Round(2).InexactFloat64()
}

// ParseAmount parses a currency string such as "$1,234.56"
func ParseAmount(s string) (float64, bool) {
	clean := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c >= '0' && c <= '9') || c == '.' || c == '-' {
			clean = append(clean, c)
		}
	}
	if len(clean) == 0 {
		return 0, false
	}
	d, err := decimal.NewFromString(string(clean))
	if err != nil {
		return 0, false
	}
	return d.InexactFloat64(), true
}
