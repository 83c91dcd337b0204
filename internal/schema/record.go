package schema

// Binding maps a file's header row onto an entity's documented columns.
type Binding struct {
	Entity  Entity
	Headers []string
	// index[i] is the documented column for header i, or nil for extras.
	index []*Column
}

// Bind resolves each header against the documented columns of e.
// When two headers fold to the same column, the first one wins and the
// later one is kept as an extra.
func Bind(e Entity, headers []string) Binding {
	b := Binding{Entity: e, Headers: headers, index: make([]*Column, len(headers))}
	seen := make(map[string]bool, len(headers))
	for i, h := range headers {
		c, ok := Lookup(e, h)
		if !ok || seen[c.Header] {
			continue
		}
		seen[c.Header] = true
		col := c
		b.index[i] = &col
	}
	return b
}

// Has reports whether the file carries the documented header.
func (b Binding) Has(header string) bool {
	for _, c := range b.index {
		if c != nil && c.Header == header {
			return true
		}
	}
	return false
}

// Missing lists required headers the file does not carry.
func (b Binding) Missing() []string {
	var out []string
	for _, h := range Required(b.Entity) {
		if !b.Has(h) {
			out = append(out, h)
		}
	}
	return out
}

// Unknown lists headers that are not documented columns.
func (b Binding) Unknown() []string {
	var out []string
	for i, c := range b.index {
		if c == nil && b.Headers[i] != "" {
			out = append(out, b.Headers[i])
		}
	}
	return out
}

// Record builds the typed view of one row. values must be aligned to Headers.
func (b Binding) Record(line int, values []string) Record {
	r := Record{Line: line, cells: make(map[string]string, len(values))}
	for i, v := range values {
		if i >= len(b.index) {
			break
		}
		if c := b.index[i]; c != nil {
			r.cells[c.Header] = v
			continue
		}
		if b.Headers[i] == "" {
			continue
		}
		if r.Extra == nil {
			r.Extra = make(map[string]string)
		}
		r.Extra[b.Headers[i]] = v
	}
	return r
}

// Record is one data row keyed by canonical header.
type Record struct {
	// Line is the 1-based row number in the source file.
	Line  int
	cells map[string]string
	// Extra holds cells under headers the schema does not document.
	Extra map[string]string
}

// Get returns the raw cell for a canonical header and whether the file has
// that column at all.
func (r Record) Get(header string) (string, bool) {
	v, ok := r.cells[header]
	return v, ok
}

// Value returns the raw cell or "".
func (r Record) Value(header string) string { return r.cells[header] }
