package parser

// Table is a parsed file: the header row plus every non-blank data row.
//
// Rows are kept as raw records and only padded/truncated to the header width
// when iterated, so a Table can be walked any number of times from any
// starting row.
type Table struct {
	header  []string
	records []record
}

type record struct {
	line  int
	cells []string
}

// Row is one data line aligned to the header.
type Row struct {
	// Line is the 1-based line of the file the row starts on; the header is
	// line 1 in a well-formed file.
	Line int
	// Values has exactly len(Header()) entries. Short lines are padded with
	// "" and cells past the last header are dropped.
	Values []string
}

// Header returns a copy of the header row.
func (t *Table) Header() []string {
	return append([]string(nil), t.header...)
}

// Len is the number of data rows in the file.
func (t *Table) Len() int { return len(t.records) }

// DataRows is the number of data rows at or after startingRow.
func (t *Table) DataRows(startingRow int) int {
	return len(t.records) - t.firstIndex(startingRow)
}

// Rows returns an iterator over data rows whose Line is >= startingRow.
// A startingRow below 2 starts at the first data row.
func (t *Table) Rows(startingRow int) *RowIter {
	return &RowIter{t: t, next: t.firstIndex(startingRow)}
}

func (t *Table) firstIndex(startingRow int) int {
	if startingRow < 2 {
		return 0
	}
	for i, r := range t.records {
		if r.line >= startingRow {
			return i
		}
	}
	return len(t.records)
}

// RowIter yields rows lazily. It is not safe for concurrent use.
type RowIter struct {
	t    *Table
	next int
}

// Next returns the next row, or false when the table is exhausted.
func (it *RowIter) Next() (Row, bool) {
	if it.next >= len(it.t.records) {
		return Row{}, false
	}
	rec := it.t.records[it.next]
	it.next++

	width := len(it.t.header)
	vals := make([]string, width)
	copy(vals, rec.cells)
	return Row{Line: rec.line, Values: vals}, true
}

// Take returns up to n further rows.
func (it *RowIter) Take(n int) []Row {
	out := make([]Row, 0, n)
	for len(out) < n {
		r, ok := it.Next()
		if !ok {
			break
		}
		out = append(out, r)
	}
	return out
}
