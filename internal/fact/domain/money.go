package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseMoney converts a decimal string such as "500.00" into minor units.
// More than two fractional digits is an error, not a rounding.
func ParseMoney(raw string) (int64, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return 0, fmt.Errorf("empty amount")
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", raw)
	}
	if !d.Equal(d.Truncate(2)) {
		return 0, fmt.Errorf("amount %q has more than two decimal places", raw)
	}
	minor := d.Shift(2)
	if !minor.IsInteger() || minor.GreaterThan(decimal.NewFromInt(1<<62)) || minor.LessThan(decimal.NewFromInt(-(1 << 62))) {
		return 0, fmt.Errorf("amount %q out of range", raw)
	}
	return minor.IntPart(), nil
}

// FormatMoney renders minor units with two decimal places.
func FormatMoney(minor int64) string {
	return decimal.New(minor, -2).StringFixed(2)
}
