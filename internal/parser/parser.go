// Package parser turns uploaded CSV, spreadsheet and HTML-table files into a
// header plus lazily iterated rows.
package parser

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"bulksync/internal/parser/htmltable"
	"bulksync/internal/parser/xlsx"
)

// Format identifies the file layout.
type Format string

const (
	FormatAuto Format = "auto"
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatHTML Format = "html"
)

// ParseFormat maps a user-supplied name or file extension to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), ".") {
	case "", "auto":
		return FormatAuto, nil
	case "csv", "txt", "tsv":
		return FormatCSV, nil
	case "xlsx", "xlsm":
		return FormatXLSX, nil
	case "html", "htm", "xls":
		// Many ".xls" exports are HTML tables; true BIFF files are rejected by Sniff.
		return FormatHTML, nil
	default:
		return "", fmt.Errorf("unsupported format %q", s)
	}
}

// Options controls parsing. The zero value sniffs format, encoding and
// delimiter.
type Options struct {
	Format Format
	// Comma is the CSV delimiter. 0 sniffs ',', ';', tab or '|' from the header line.
	Comma rune
	// Encoding forces a text encoding; see DetectAndDecode.
	Encoding string
}

var (
	zipMagic  = []byte("PK\x03\x04")
	ole2Magic = []byte{0xD0, 0xCF, 0x11, 0xE0}
)

// Sniff guesses the format from the leading bytes.
func Sniff(data []byte) Format {
	if bytes.HasPrefix(data, zipMagic) || bytes.HasPrefix(data, ole2Magic) {
		return FormatXLSX
	}
	head := data
	if len(head) > 64<<10 {
		head = head[:64<<10]
	}
	head = bytes.TrimLeft(bytes.TrimPrefix(head, bomUTF8), " \t\r\n")
	if bytes.HasPrefix(head, []byte("<")) && bytes.Contains(bytes.ToLower(head), []byte("<table")) {
		return FormatHTML
	}
	return FormatCSV
}

// Parse reads the whole file into a Table.
//
// Spreadsheets (first sheet only) and HTML tables are first converted to CSV
// text so every format shares one row/padding behavior. A malformed CSV line
// never aborts the parse; it yields a row with empty cells. Errors are
// *ParseError values and mean no rows can be produced.
func Parse(data []byte, opt Options) (*Table, error) {
	format := opt.Format
	if format == "" || format == FormatAuto {
		format = Sniff(data)
	}

	// A .xls name may hold an HTML export or a real BIFF workbook.
	if bytes.HasPrefix(data, ole2Magic) {
		return nil, &ParseError{Format: format, Err: errors.New("legacy binary .xls workbooks are not supported; save as .xlsx or .csv")}
	}

	comma := opt.Comma
	var text []byte
	switch format {
	case FormatXLSX:
		out, err := xlsx.ToCSV(data)
		if err != nil {
			return nil, &ParseError{Format: format, Err: err}
		}
		text, comma = out, ','

	case FormatHTML:
		decoded, err := DetectAndDecode(data, opt.Encoding)
		if err != nil {
			return nil, &ParseError{Format: format, Err: err}
		}
		out, err := htmltable.ToCSV(decoded)
		if err != nil {
			return nil, &ParseError{Format: format, Err: err}
		}
		text, comma = out, ','

	case FormatCSV:
		decoded, err := DetectAndDecode(data, opt.Encoding)
		if err != nil {
			return nil, &ParseError{Format: format, Err: err}
		}
		text = decoded

	default:
		return nil, &ParseError{Format: format, Err: fmt.Errorf("unsupported format")}
	}

	if len(bytes.TrimSpace(text)) == 0 {
		return nil, &ParseError{Format: format, Err: ErrEmptyInput}
	}
	if comma == 0 {
		comma = sniffComma(text)
	}

	t, err := readCSV(text, comma)
	if err != nil {
		return nil, &ParseError{Format: format, Err: err}
	}
	return t, nil
}

func readCSV(text []byte, comma rune) (*Table, error) {
	cr := csv.NewReader(bytes.NewReader(text))
	cr.Comma = comma
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	t := &Table{}
	haveHeader := false

	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if !errors.As(err, &pe) {
				return nil, err
			}
			if !haveHeader {
				return nil, fmt.Errorf("read header: %w", err)
			}
			// Keep the line so row numbering and counts stay honest; the
			// empty cells fail required-field validation downstream.
			t.records = append(t.records, record{line: pe.StartLine})
			continue
		}

		line, _ := cr.FieldPos(0)
		if !haveHeader {
			if allBlank(rec) {
				continue
			}
			t.header = make([]string, len(rec))
			for i, h := range rec {
				h = strings.TrimSpace(h)
				if i == 0 {
					h = strings.TrimPrefix(h, "\uFEFF")
				}
				t.header[i] = h
			}
			haveHeader = true
			continue
		}
		if allBlank(rec) {
			continue
		}
		cells := make([]string, len(rec))
		for i, v := range rec {
			cells[i] = strings.TrimSpace(v)
		}
		t.records = append(t.records, record{line: line, cells: cells})
	}

	if !haveHeader {
		return nil, ErrEmptyInput
	}
	return t, nil
}

func allBlank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// sniffComma picks the most frequent candidate delimiter on the first line,
// ignoring quoted text. Ties and no hits fall back to ','.
func sniffComma(text []byte) rune {
	inQuote := false
	counts := map[rune]int{}
	for _, r := range string(text) {
		if r == '"' {
			inQuote = !inQuote
			continue
		}
		if inQuote {
			continue
		}
		if r == '\n' {
			break
		}
		switch r {
		case ',', ';', '\t', '|':
			counts[r]++
		}
	}
	best, bestN := ',', counts[',']
	for _, r := range []rune{';', '\t', '|'} {
		if counts[r] > bestN {
			best, bestN = r, counts[r]
		}
	}
	return best
}
