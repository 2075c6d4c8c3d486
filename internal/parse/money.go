package parse

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var amountRe = regexp.MustCompile(`^\s*([^\d.,\s-]*)\s*([\d,]*(?:\.\d*)?)\s*$`)

var (
	hundred  = decimal.NewFromInt(100)
	maxCents = decimal.NewFromInt(math.MaxInt64)
)

// FormatCents renders an amount in minor units with a leading currency
// symbol and exactly two fraction digits, e.g. 4000 -> "A$40.00".
func FormatCents(cents int64, symbol string) string {
	return symbol + decimal.New(cents, -2).StringFixed(2)
}

// ParseCents reads a human-entered price such as "A$1,234.50", "40" or ".99"
// and returns it in minor units. Any leading currency symbol is ignored.
func ParseCents(raw string) (int64, error) {
	m := amountRe.FindStringSubmatch(raw)
	if m == nil {
		return 0, fmt.Errorf("unable to parse price: %q", raw)
	}
	digits := strings.ReplaceAll(m[2], ",", "")
	if digits == "" || digits == "." {
		return 0, fmt.Errorf("unable to parse price: %q", raw)
	}
	if strings.HasSuffix(digits, ".") {
		digits += "0"
	}
	if strings.HasPrefix(digits, ".") {
		digits = "0" + digits
	}

	amount, err := decimal.NewFromString(digits)
	if err != nil {
		return 0, fmt.Errorf("unable to parse price %q: %w", raw, err)
	}
	cents := amount.Mul(hundred)
	if !cents.IsInteger() {
		return 0, fmt.Errorf("price %q has more than two fraction digits", raw)
	}
	if cents.GreaterThan(maxCents) {
		return 0, fmt.Errorf("price %q is too large", raw)
	}
	return cents.IntPart(), nil
}
