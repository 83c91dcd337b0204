// Package emailparser normalizes email cells from uploaded spreadsheets.
//
// Exports copied out of web pages and CRMs carry link residue: "mailto:"
// prefixes, HTML entities ("jane&#64;club.org"), angle-bracketed display
// forms ("Jane Doe <jane@club.org>") and stray whitespace. Normalize strips
// that residue and validates what is left.
package emailparser

import (
	"errors"
	"html"
	"regexp"
	"strings"
)

// ErrInvalid is returned for a non-empty cell that does not hold an email.
var ErrInvalid = errors.New("invalid email")

// reEmail accepts the RFC 5322 atext set in the local part and a dotted
// domain with an alphabetic TLD.
var reEmail = regexp.MustCompile("^[A-Za-z0-9!#$%&'*+/=?^_`{|}~.\\-]+@[A-Za-z0-9.\\-]+\\.[A-Za-z]{2,}$")

// Normalize returns the canonical form of raw: trimmed, unescaped, without a
// mailto: scheme or query, with the domain lowercased. An empty or blank cell
// returns "" and no error.
func Normalize(raw string) (string, error) {
	s := strings.TrimSpace(html.UnescapeString(raw))
	if s == "" {
		return "", nil
	}

	// "Display Name <addr>"
	if i := strings.LastIndexByte(s, '<'); i >= 0 && strings.HasSuffix(s, ">") {
		s = strings.TrimSpace(s[i+1 : len(s)-1])
	}

	if len(s) >= 7 && strings.EqualFold(s[:7], "mailto:") {
		s = s[7:]
	}
	// A query can only follow the domain; '?' is legal in the local part.
	if at := strings.LastIndexByte(s, '@'); at >= 0 {
		if i := strings.IndexByte(s[at:], '?'); i >= 0 {
			s = s[:at+i]
		}
	}
	s = strings.TrimSpace(s)

	if !looksLikeEmail(s) {
		return "", ErrInvalid
	}
	at := strings.LastIndexByte(s, '@')
	return s[:at] + "@" + strings.ToLower(s[at+1:]), nil
}

// looksLikeEmail reports whether s matches an addr-spec shape.
func looksLikeEmail(s string) bool {
	return reEmail.MatchString(s)
}
