package storage

import (
	"fmt"
	"strings"
)

// NormalizeKey converts a scanned name_key value to its string form, suitable
// for in-memory cache keys.
//
// Drivers disagree on the Go type they hand back for text columns (string,
// []byte, or any); this helper keeps lookup maps consistent across backends.
func NormalizeKey(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case []byte:
		return strings.TrimSpace(string(t))
	case int64:
		return fmt.Sprintf("%d", t)
	case int:
		return fmt.Sprintf("%d", t)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// Chunks splits n items into [start,end) windows of at most size items.
func Chunks(n, size int) [][2]int {
	if size <= 0 {
		size = n
	}
	var out [][2]int
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		out = append(out, [2]int{start, end})
	}
	return out
}
