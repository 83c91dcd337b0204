package model

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseBool accepts true/false, 1/0, yes/no (and t/f, y/n), case-insensitive.
// ok is false for anything else, including the empty string.
func ParseBool(s string) (v bool, ok bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "1", "t", "true", "yes", "y":
		return true, true
	case "0", "f", "false", "no", "n":
		return false, true
	default:
		return false, false
	}
}

// ParseInt parses an integer cell. Thousand separators (",", "_", " ") are
// tolerated so that "1,200" and "1 200" both read as 1200. A trailing ".0"
// from spreadsheet exports is accepted.
func ParseInt(s string) (int64, error) {
	clean := stripNumberNoise(s)
	clean = strings.TrimSuffix(clean, ".0")
	if clean == "" {
		return 0, fmt.Errorf("empty number")
	}
	n, err := strconv.ParseInt(clean, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", strings.TrimSpace(s))
	}
	return n, nil
}

// ParseDecimal parses a money-like cell such as "$1,250,000.50" or "€ 900".
func ParseDecimal(s string) (float64, error) {
	clean := stripNumberNoise(s)
	clean = strings.TrimLeft(clean, "$€£¥")
	if clean == "" {
		return 0, fmt.Errorf("empty number")
	}
	f, err := strconv.ParseFloat(clean, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", strings.TrimSpace(s))
	}
	return f, nil
}

func stripNumberNoise(s string) string {
	s = strings.TrimSpace(s)
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case ',', '_', ' ', ' ':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
