package model

import (
	"encoding/json"
	"sort"
	"strings"
)

// Socials maps a lower-cased platform name to its profile URL.
type Socials map[string]string

// ParseSocials decodes the inline "platform:url;platform:url" encoding.
//
// Each segment is split on its first ':' only, so "twitter:https://x.com/a"
// keeps the URL scheme. Segments without a platform or without a URL are
// dropped; the remaining segments still parse. A repeated platform keeps the
// last value.
func ParseSocials(s string) Socials {
	out := Socials{}
	for _, seg := range strings.Split(s, ";") {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		platform, url, ok := strings.Cut(seg, ":")
		if !ok {
			continue
		}
		platform = strings.ToLower(strings.TrimSpace(platform))
		url = strings.TrimSpace(url)
		if platform == "" || url == "" {
			continue
		}
		out[platform] = url
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// JSON returns the stored form. Keys are emitted in sorted order so equal
// maps always encode to the same text.
func (s Socials) JSON() string {
	if len(s) == 0 {
		return ""
	}
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		kb, _ := json.Marshal(k)
		vb, _ := json.Marshal(s[k])
		b.Write(kb)
		b.WriteByte(':')
		b.Write(vb)
	}
	b.WriteByte('}')
	return b.String()
}
