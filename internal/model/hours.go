package model

import (
	"encoding/json"
	"strings"
	"time"
)

// Interval is an opening window in 24h "HH:MM" form.
type Interval struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Hours maps a canonical weekday ("mon".."sun") to its opening window.
type Hours map[string]Interval

var weekdays = map[string]string{
	"mon": "mon", "monday": "mon",
	"tue": "tue", "tues": "tue", "tuesday": "tue",
	"wed": "wed", "wednesday": "wed",
	"thu": "thu", "thur": "thu", "thurs": "thu", "thursday": "thu",
	"fri": "fri", "friday": "fri",
	"sat": "sat", "saturday": "sat",
	"sun": "sun", "sunday": "sun",
}

var weekdayOrder = []string{"mon", "tue", "wed", "thu", "fri", "sat", "sun"}

// ParseHours decodes the inline "day:start-end;day:start-end" encoding, e.g.
// "mon:09:00-17:00;sat:10:00-14:00".
//
// The day is split off at the first ':'; the window at the first '-'. A
// segment with an unknown day, a missing window or an unparseable time is
// dropped without affecting its siblings. Times accept "9:00", "09:00" and
// "0900".
func ParseHours(s string) Hours {
	out := Hours{}
	for _, seg := range strings.Split(s, ";") {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		day, window, ok := strings.Cut(seg, ":")
		if !ok {
			continue
		}
		d, ok := weekdays[strings.ToLower(strings.TrimSpace(day))]
		if !ok {
			continue
		}
		start, end, ok := strings.Cut(window, "-")
		if !ok {
			continue
		}
		st, ok1 := parseClock(start)
		en, ok2 := parseClock(end)
		if !ok1 || !ok2 {
			continue
		}
		out[d] = Interval{Start: st, End: en}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func parseClock(s string) (string, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"15:04", "1504"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("15:04"), true
		}
	}
	return "", false
}

// JSON returns the stored form with days in week order.
func (h Hours) JSON() string {
	if len(h) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteByte('{')
	first := true
	for _, d := range weekdayOrder {
		iv, ok := h[d]
		if !ok {
			continue
		}
		if !first {
			b.WriteByte(',')
		}
		first = false
		vb, _ := json.Marshal(iv)
		b.WriteString(`"` + d + `":`)
		b.Write(vb)
	}
	b.WriteByte('}')
	return b.String()
}
