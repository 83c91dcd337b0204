package model

import (
	"strings"

	"golang.org/x/text/cases"
)

// NameKey returns the canonical comparison form of a display name.
//
// Natural keys (organization names, lookup names, contact names) are matched
// case-insensitively: "manchester united", " Manchester  United " and
// "MANCHESTER UNITED" all share one key. Leading/trailing space is trimmed
// and internal whitespace runs collapse to a single space.
//
// An empty or whitespace-only name yields "".
func NameKey(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return ""
	}
	// A Caser keeps state between calls, so each call gets its own.
	return cases.Fold().String(strings.Join(fields, " "))
}
