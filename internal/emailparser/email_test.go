package emailparser

import (
	"errors"
	"testing"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "jane@club.org", "jane@club.org"},
		{"blank", "   ", ""},
		{"trim", "  jane@club.org\t", "jane@club.org"},
		{"mailto", "mailto:jane@club.org", "jane@club.org"},
		{"mailto_upper", "MAILTO:jane@club.org", "jane@club.org"},
		{"mailto_query", "mailto:jane@club.org?subject=Hi", "jane@club.org"},
		{"entity", "jane&#64;club.org", "jane@club.org"},
		{"display_form", "Jane Doe <jane@club.org>", "jane@club.org"},
		{"domain_lowered", "Jane.Doe@Club.ORG", "Jane.Doe@club.org"},
		{"apostrophe", "sean.o'neil@rovers.ie", "sean.o'neil@rovers.ie"},
		{"atext", "a!#$&*/=?^_{|}~b@club.org", "a!#$&*/=?^_{|}~b@club.org"},
		{"question_mark_local_then_query", "mailto:who?me@club.org?subject=Hi", "who?me@club.org"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := Normalize(tc.in)
			if err != nil {
				t.Fatalf("Normalize(%q) err=%v", tc.in, err)
			}
			if got != tc.want {
				t.Fatalf("Normalize(%q)=%q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestNormalize_Invalid(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"jane", "jane@club", "@club.org", "jane @club.org", "mailto:", "jane(x)@club.org", "jane@club.o"} {
		if _, err := Normalize(in); !errors.Is(err, ErrInvalid) {
			t.Fatalf("Normalize(%q) err=%v, want ErrInvalid", in, err)
		}
	}
}
