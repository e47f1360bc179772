package classifier

import (
	"fmt"
	"strconv"
	"strings"
)

// currencySymbols are stripped from the front of an amount.
const currencySymbols = "€$£"

// ParseAmount parses a non-negative decimal such as "€1,234.50" or "89.5".
// A leading currency symbol and thousands separators are ignored.
func ParseAmount(s string) (float64, error) {
	v := strings.TrimSpace(s)
	v = strings.TrimLeft(v, currencySymbols)
	v = strings.TrimSpace(v)
	v = strings.ReplaceAll(v, ",", "")
	if v == "" {
		return 0, fmt.Errorf("empty amount %q", s)
	}
	for _, r := range v {
		if (r < '0' || r > '9') && r != '.' {
			return 0, fmt.Errorf("invalid amount %q", s)
		}
	}

	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	return f, nil
}

// ParseQuantity parses a non-negative integer quantity.
func ParseQuantity(s string) (int, error) {
	v := strings.TrimSpace(s)
	if v == "" {
		return 0, fmt.Errorf("empty quantity")
	}
	for _, r := range v {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("invalid quantity %q", s)
		}
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid quantity %q", s)
	}
	return n, nil
}
