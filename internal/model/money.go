package model

import (
	"fmt"
	"math"
	"strconv"
)

// ParseCents converts decimal string amounts (major units) to minor
// units. The storefront backend returns unit prices as decimal strings
// (e.g. "99.00" = 9900 minor units). Handles empty strings, missing
// decimals, and large values.
func ParseCents(s string) int64 {
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	// math.Round handles both positive and negative numbers correctly
	return int64(math.Round(f * 100))
}

// FormatCents renders minor units as the decimal string the backend
// expects. Examples: 9900 → "99.00", 5 → "0.05", -1000 → "-10.00".
func FormatCents(v int64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// ParsePrice is the strict form of ParseCents for operator and agent
// input: a missing, non-numeric, or negative amount is an error
// instead of zero.
func ParsePrice(s string) (int64, error) {
	if s == "" {
		return 0, fmt.Errorf("price is required")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid price %q", s)
	}
	if f < 0 {
		return 0, fmt.Errorf("price must not be negative")
	}
	return int64(math.Round(f * 100)), nil
}
