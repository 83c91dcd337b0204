// Package probe inspects an uploaded file before a run: which headers map to
// documented columns, which required ones are missing, what the sampled
// values look like and which names repeat.
//
// It backs the column-selection step of updates and the "bulksync inspect"
// command. Probing never writes and never fails on bad rows.
package probe

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"bulksync/internal/model"
	"bulksync/internal/parser"
	"bulksync/internal/schema"
)

// DefaultSample is the number of data rows inspected when Options.Sample
// is not set.
const DefaultSample = 1000

// distinctCapPerColumn bounds distinct tracking per column.
const distinctCapPerColumn = 10000

// Options controls Inspect.
type Options struct {
	Entity schema.Entity
	// Sample bounds the rows read for type inference and uniqueness.
	// <= 0 uses DefaultSample.
	Sample int
}

// Column describes one header of the file.
type Column struct {
	Header string `json:"header"`
	// Documented is the canonical schema header, or "" for an extra column.
	Documented string `json:"documented,omitempty"`
	Required   bool   `json:"required,omitempty"`
	Updatable  bool   `json:"updatable"`
	Inferred   string `json:"inferred"`
	// Expected is the documented cell kind, e.g. "integer" for Founded.
	Expected string `json:"expected,omitempty"`
	Filled   int    `json:"filled"`
	Distinct int    `json:"distinct"`
	Capped   bool   `json:"capped,omitempty"`
}

// Mismatch reports whether sampled values cannot be what the column expects.
func (c Column) Mismatch() bool {
	if c.Expected == "" || c.Inferred == TypeEmpty {
		return false
	}
	switch c.Expected {
	case TypeInteger:
		return c.Inferred != TypeInteger
	case TypeFloat:
		return c.Inferred != TypeInteger && c.Inferred != TypeFloat
	case TypeBoolean:
		return c.Inferred != TypeBoolean && c.Inferred != TypeInteger
	default:
		return false
	}
}

// Report is the outcome of Inspect.
type Report struct {
	Entity  schema.Entity `json:"entity"`
	Rows    int           `json:"rows"`
	Sampled int           `json:"sampled"`
	Columns []Column      `json:"columns"`
	// Missing lists required headers the file does not carry.
	Missing []string `json:"missing,omitempty"`
	// Unknown lists headers that are not documented columns.
	Unknown []string `json:"unknown,omitempty"`
	// DuplicateNames lists names that occur more than once in the sample,
	// compared case-insensitively.
	DuplicateNames []string `json:"duplicate_names,omitempty"`
}

// Updatable lists the headers an update may select.
func (r Report) Updatable() []string {
	var out []string
	for _, c := range r.Columns {
		if c.Updatable {
			out = append(out, c.Header)
		}
	}
	return out
}

// Inspect profiles tbl against the documented columns of opt.Entity.
func Inspect(tbl *parser.Table, opt Options) Report {
	sample := opt.Sample
	if sample <= 0 {
		sample = DefaultSample
	}
	header := tbl.Header()
	bind := schema.Bind(opt.Entity, header)

	rows := tbl.Rows(0).Take(sample)
	rep := Report{
		Entity:  opt.Entity,
		Rows:    tbl.Len(),
		Sampled: len(rows),
		Missing: bind.Missing(),
		Unknown: bind.Unknown(),
	}

	nameCol := -1
	seenDoc := map[string]bool{}
	for i, h := range header {
		values := make([]string, 0, len(rows))
		for _, r := range rows {
			values = append(values, r.Values[i])
		}

		c := Column{Header: h, Inferred: inferType(values)}
		if doc, ok := schema.Lookup(opt.Entity, h); ok && !seenDoc[doc.Header] {
			seenDoc[doc.Header] = true
			c.Documented = doc.Header
			c.Required = doc.Required
			c.Updatable = doc.Updatable()
			c.Expected = expectedType(doc.Kind)
			if doc.Header == schema.HeaderName {
				nameCol = i
			}
		}
		c.Filled, c.Distinct, c.Capped = uniqueness(values)
		rep.Columns = append(rep.Columns, c)
	}

	if nameCol >= 0 {
		rep.DuplicateNames = duplicateNames(rows, nameCol)
	}
	return rep
}

func expectedType(k schema.Kind) string {
	switch k {
	case schema.Integer:
		return TypeInteger
	case schema.Decimal:
		return TypeFloat
	case schema.Boolean:
		return TypeBoolean
	default:
		return ""
	}
}

// uniqueness counts non-empty values and their bounded distinct count.
func uniqueness(values []string) (filled, distinct int, capped bool) {
	set := make(map[string]struct{})
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		filled++
		if capped {
			continue
		}
		set[v] = struct{}{}
		if len(set) >= distinctCapPerColumn {
			capped = true
			set = nil
		}
	}
	if capped {
		return filled, distinctCapPerColumn, true
	}
	return filled, len(set), false
}

func duplicateNames(rows []parser.Row, col int) []string {
	counts := map[string]int{}
	first := map[string]string{}
	for _, r := range rows {
		k := model.NameKey(r.Values[col])
		if k == "" {
			continue
		}
		if _, ok := first[k]; !ok {
			first[k] = strings.TrimSpace(r.Values[col])
		}
		counts[k]++
	}
	var out []string
	for k, n := range counts {
		if n > 1 {
			out = append(out, first[k])
		}
	}
	sort.Strings(out)
	return out
}

// Format renders the report as an aligned text table.
func (r Report) Format() string {
	var b strings.Builder
	fmt.Fprintf(&b, "entity=%s rows=%d sampled=%d\n", r.Entity, r.Rows, r.Sampled)

	tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "header\tcolumn\ttype\tfilled\tunique\tnote")
	for _, c := range r.Columns {
		col := c.Documented
		if col == "" {
			col = "-"
		}
		var notes []string
		if c.Required {
			notes = append(notes, "required")
		}
		if c.Documented == "" {
			notes = append(notes, "ignored")
		}
		if c.Mismatch() {
			notes = append(notes, "expected "+c.Expected)
		}
		if c.Capped {
			notes = append(notes, "unique capped")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n", c.Header, col, c.Inferred, c.Filled, c.Distinct, strings.Join(notes, ", "))
	}
	_ = tw.Flush()

	if len(r.Missing) > 0 {
		fmt.Fprintf(&b, "missing required: %s\n", strings.Join(r.Missing, ", "))
	}
	if len(r.DuplicateNames) > 0 {
		fmt.Fprintf(&b, "repeated names: %s\n", strings.Join(r.DuplicateNames, ", "))
	}
	return strings.TrimRight(b.String(), "\n")
}
