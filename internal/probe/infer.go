package probe

import (
	"strings"
	"time"

	"bulksync/internal/model"
)

// Inferred type labels.
const (
	TypeInteger   = "integer"
	TypeFloat     = "float"
	TypeBoolean   = "boolean"
	TypeDate      = "date"
	TypeTimestamp = "timestamp"
	TypeText      = "text"
	TypeEmpty     = "empty"
)

// inferType infers a coarse type for one column of sampled values. Values go
// through the same codecs the pipelines use, so "1,200" is an integer and
// "$9.50" a float.
func inferType(values []string) string {
	var seen bool
	allInt := true
	allFloat := true
	allBool := true
	allDate := true
	allTS := true

	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		seen = true

		if allInt {
			if _, err := model.ParseInt(v); err != nil {
				allInt = false
			}
		}
		if allFloat {
			if _, err := model.ParseDecimal(v); err != nil {
				allFloat = false
			}
		}
		if allBool {
			if _, ok := model.ParseBool(v); !ok {
				allBool = false
			}
		}
		if allDate {
			if _, _, ok := parseDateLoose(v); !ok {
				allDate = false
			}
		}
		if allTS {
			if _, _, ok := parseTimestampLoose(v); !ok {
				allTS = false
			}
		}
	}

	if !seen {
		return TypeEmpty
	}
	// Prefer more specific types. 0/1 columns read as integers.
	switch {
	case allInt:
		return TypeInteger
	case allBool:
		return TypeBoolean
	case allDate:
		return TypeDate
	case allTS:
		return TypeTimestamp
	case allFloat:
		return TypeFloat
	default:
		return TypeText
	}
}

var dateLayouts = []string{
	"2006-01-02",
	"02.01.2006",
	"02/01/2006",
	"01/02/2006",
}

var tsLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05.000Z07:00",
	"02.01.2006 15:04:05",
}

func parseDateLoose(s string) (time.Time, string, bool) {
	s = strings.TrimSpace(s)
	for _, lay := range dateLayouts {
		if t, err := time.Parse(lay, s); err == nil {
			return t, lay, true
		}
	}
	return time.Time{}, "", false
}

func parseTimestampLoose(s string) (time.Time, string, bool) {
	s = strings.TrimSpace(s)
	for _, lay := range tsLayouts {
		if t, err := time.Parse(lay, s); err == nil {
			return t, lay, true
		}
	}
	return time.Time{}, "", false
}
