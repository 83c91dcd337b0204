package parser

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

func collect(t *testing.T, tbl *Table, start int) []Row {
	t.Helper()
	var out []Row
	it := tbl.Rows(start)
	for {
		r, ok := it.Next()
		if !ok {
			return out
		}
		out = append(out, r)
	}
}

func TestParse_CSVPadsAndTruncates(t *testing.T) {
	t.Parallel()

	data := []byte("Name,Sport,City\nRovers,Football\nUnited,Rugby,Leeds,EXTRA\n")
	tbl, err := Parse(data, Options{Format: FormatCSV})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := tbl.Header(); !reflect.DeepEqual(got, []string{"Name", "Sport", "City"}) {
		t.Fatalf("Header()=%v", got)
	}

	rows := collect(t, tbl, 2)
	want := []Row{
		{Line: 2, Values: []string{"Rovers", "Football", ""}},
		{Line: 3, Values: []string{"United", "Rugby", "Leeds"}},
	}
	if !reflect.DeepEqual(rows, want) {
		t.Fatalf("rows=%#v want %#v", rows, want)
	}
}

func TestParse_QuotedFieldsAndEmbeddedNewlines(t *testing.T) {
	t.Parallel()

	data := []byte("Name,Street\n\"Rovers, FC\",\"1 Main St\nUnit 4\"\nUnited,\"2 \"\"Quoted\"\" Rd\"\n")
	tbl, err := Parse(data, Options{})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	rows := collect(t, tbl, 0)
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].Values[0] != "Rovers, FC" || rows[0].Values[1] != "1 Main St\nUnit 4" {
		t.Fatalf("row 1 = %#v", rows[0].Values)
	}
	if rows[1].Line != 4 {
		t.Fatalf("expected second record to start on line 4, got %d", rows[1].Line)
	}
	if rows[1].Values[1] != `2 "Quoted" Rd` {
		t.Fatalf("row 2 street = %q", rows[1].Values[1])
	}
}

func TestParse_MalformedLineDoesNotAbort(t *testing.T) {
	t.Parallel()

	// A bare quote inside an unquoted field is rejected by a strict reader.
	data := []byte("Name,Sport\nGood,Football\nBad \"quote\" here,Rugby\nAlso Good,Hockey\n")
	tbl, err := Parse(data, Options{Format: FormatCSV})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	rows := collect(t, tbl, 0)
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d (%#v)", len(rows), rows)
	}
	if rows[1].Values[0] != `Bad "quote" here` || rows[1].Values[1] != "Rugby" {
		t.Fatalf("malformed row = %#v", rows[1])
	}
	if rows[2].Values[0] != "Also Good" {
		t.Fatalf("last row = %#v", rows[2])
	}
}

func TestParse_StartingRowAndBlankLines(t *testing.T) {
	t.Parallel()

	data := []byte("Name\nA\n\n,\nB\nC\n")
	tbl, err := Parse(data, Options{})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if tbl.Len() != 3 {
		t.Fatalf("Len()=%d want 3", tbl.Len())
	}
	if n := tbl.DataRows(5); n != 2 {
		t.Fatalf("DataRows(5)=%d want 2", n)
	}
	rows := collect(t, tbl, 5)
	if len(rows) != 2 || rows[0].Values[0] != "B" || rows[0].Line != 5 {
		t.Fatalf("rows from 5 = %#v", rows)
	}

	// Restartable: a second iterator sees the same rows.
	again := tbl.Rows(5).Take(10)
	if !reflect.DeepEqual(rows, again) {
		t.Fatalf("restart mismatch: %#v vs %#v", rows, again)
	}
}

func TestParse_EmptyInput(t *testing.T) {
	t.Parallel()

	for _, in := range [][]byte{nil, []byte("   \n\n"), []byte("\xEF\xBB\xBF")} {
		_, err := Parse(in, Options{})
		if !errors.Is(err, ErrEmptyInput) {
			t.Fatalf("Parse(%q) err=%v want ErrEmptyInput", in, err)
		}
		var pe *ParseError
		if !errors.As(err, &pe) {
			t.Fatalf("expected *ParseError, got %T", err)
		}
	}
}

func TestParse_SemicolonDelimiterSniffed(t *testing.T) {
	t.Parallel()

	tbl, err := Parse([]byte("Name;Revenue\n\"Rovers; FC\";1,5\n"), Options{})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	rows := collect(t, tbl, 0)
	if !reflect.DeepEqual(rows[0].Values, []string{"Rovers; FC", "1,5"}) {
		t.Fatalf("values=%#v", rows[0].Values)
	}
}

func TestParse_BOMAndWindows1252(t *testing.T) {
	t.Parallel()

	tbl, err := Parse([]byte("\xEF\xBB\xBFName\nZoë\n"), Options{})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if tbl.Header()[0] != "Name" {
		t.Fatalf("BOM not stripped: %q", tbl.Header()[0])
	}

	// 0xEB is ë in Windows-1252 and invalid as a lone UTF-8 byte.
	tbl, err = Parse([]byte("Name\nZo\xEB\n"), Options{})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := collect(t, tbl, 0)[0].Values[0]; got != "Zoë" {
		t.Fatalf("decoded %q want Zoë", got)
	}
}

func TestParse_UTF16WithBOM(t *testing.T) {
	t.Parallel()

	// "Name\nA\n" in UTF-16LE with BOM.
	data := []byte{0xFF, 0xFE, 'N', 0, 'a', 0, 'm', 0, 'e', 0, '\n', 0, 'A', 0, '\n', 0}
	tbl, err := Parse(data, Options{})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if tbl.Header()[0] != "Name" || collect(t, tbl, 0)[0].Values[0] != "A" {
		t.Fatalf("unexpected decode: header=%v", tbl.Header())
	}
}

func TestParse_XLSXMatchesCSV(t *testing.T) {
	t.Parallel()

	cells := [][]string{
		{"Name", "Sport", "Hours"},
		{"Rovers FC", "Football", "mon:09:00-17:00"},
		{"Comma, Club", "Rugby", ""},
	}

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	for i, row := range cells {
		for j, v := range row {
			if v == "" {
				continue
			}
			cell, _ := excelize.CoordinatesToCellName(j+1, i+1)
			if err := f.SetCellStr(sheet, cell, v); err != nil {
				t.Fatalf("SetCellStr: %v", err)
			}
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer: %v", err)
	}
	_ = f.Close()

	fromXLSX, err := Parse(buf.Bytes(), Options{})
	if err != nil {
		t.Fatalf("Parse xlsx: %v", err)
	}
	fromCSV, err := Parse([]byte("Name,Sport,Hours\nRovers FC,Football,mon:09:00-17:00\n\"Comma, Club\",Rugby,\n"), Options{})
	if err != nil {
		t.Fatalf("Parse csv: %v", err)
	}

	if !reflect.DeepEqual(fromXLSX.Header(), fromCSV.Header()) {
		t.Fatalf("headers differ: %v vs %v", fromXLSX.Header(), fromCSV.Header())
	}
	if !reflect.DeepEqual(collect(t, fromXLSX, 2), collect(t, fromCSV, 2)) {
		t.Fatalf("rows differ:\nxlsx=%#v\ncsv=%#v", collect(t, fromXLSX, 2), collect(t, fromCSV, 2))
	}
}

func TestParse_MalformedSpreadsheetIsFatal(t *testing.T) {
	t.Parallel()

	_, err := Parse([]byte("PK\x03\x04not really a zip"), Options{})
	var pe *ParseError
	if !errors.As(err, &pe) || pe.Format != FormatXLSX {
		t.Fatalf("expected xlsx ParseError, got %v", err)
	}

	// An .xls extension maps to FormatHTML; the workbook bytes still win.
	for _, f := range []Format{FormatAuto, FormatXLSX, FormatHTML, FormatCSV} {
		_, err = Parse([]byte{0xD0, 0xCF, 0x11, 0xE0, 0, 0}, Options{Format: f})
		if !errors.As(err, &pe) || !strings.Contains(pe.Error(), "legacy binary .xls") {
			t.Fatalf("format %q: expected legacy xls ParseError, got %v", f, err)
		}
	}
}

func TestParse_HTMLTable(t *testing.T) {
	t.Parallel()

	tbl, err := Parse([]byte("<html><table><tr><th>Name</th></tr><tr><td>Rovers</td></tr></table></html>"), Options{})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	rows := collect(t, tbl, 0)
	if len(rows) != 1 || rows[0].Values[0] != "Rovers" {
		t.Fatalf("rows=%#v", rows)
	}
}

func TestParseFormat(t *testing.T) {
	t.Parallel()

	tests := map[string]Format{"": FormatAuto, ".CSV": FormatCSV, "xlsx": FormatXLSX, "xls": FormatHTML}
	for in, want := range tests {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Fatalf("ParseFormat(%q)=(%v,%v) want %v", in, got, err, want)
		}
	}
	if _, err := ParseFormat("pdf"); err == nil {
		t.Fatalf("expected error for pdf")
	}
}
