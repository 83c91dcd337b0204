// Package htmltable converts the first <table> of an HTML document to CSV
// text. Several CRMs export "Excel" files that are really HTML tables.
package htmltable

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// maxColspan bounds colspan expansion on hostile input.
const maxColspan = 64

// ToCSV renders the first table as CSV. th and td cells are both data; cell
// text is whitespace-collapsed and a colspan of n yields n-1 empty cells after
// the cell's text. Rows of nested tables are not included.
func ToCSV(data []byte) ([]byte, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	table := doc.Find("table").First()
	if table.Length() == 0 {
		return nil, fmt.Errorf("no <table> found")
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	var werr error

	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		if werr != nil {
			return
		}
		// Skip rows that belong to a nested table.
		if !tr.Closest("table").IsSelection(table) {
			return
		}
		var rec []string
		tr.ChildrenFiltered("th, td").Each(func(_ int, cell *goquery.Selection) {
			rec = append(rec, cellText(cell))
			if n, err := strconv.Atoi(strings.TrimSpace(cell.AttrOr("colspan", "1"))); err == nil && n > 1 {
				if n > maxColspan {
					n = maxColspan
				}
				for i := 1; i < n; i++ {
					rec = append(rec, "")
				}
			}
		})
		if len(rec) == 0 {
			rec = []string{"", ""}
		}
		werr = w.Write(rec)
	})
	if werr != nil {
		return nil, werr
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func cellText(sel *goquery.Selection) string {
	return strings.Join(strings.Fields(sel.Text()), " ")
}
