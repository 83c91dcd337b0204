package parser

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// DetectAndDecode returns data as UTF-8 without a byte order mark.
//
// enc may force "utf-8", "utf-16le", "utf-16be" or "windows-1252". With ""
// or "auto" the encoding is detected: a BOM selects UTF-8/UTF-16, valid
// UTF-8 is kept as is, and anything else is read as Windows-1252 (the usual
// encoding of spreadsheet CSV exports on Windows).
func DetectAndDecode(data []byte, enc string) ([]byte, error) {
	var dec *encoding.Decoder

	switch strings.ToLower(strings.TrimSpace(enc)) {
	case "", "auto":
		switch {
		case bytes.HasPrefix(data, bomUTF8):
			return data[len(bomUTF8):], nil
		case bytes.HasPrefix(data, bomUTF16LE):
			dec = unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder()
		case bytes.HasPrefix(data, bomUTF16BE):
			dec = unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewDecoder()
		case utf8.Valid(data):
			return data, nil
		default:
			dec = charmap.Windows1252.NewDecoder()
		}
	case "utf-8", "utf8":
		return bytes.TrimPrefix(data, bomUTF8), nil
	case "utf-16le", "utf16le":
		dec = unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder()
	case "utf-16be", "utf16be":
		dec = unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewDecoder()
	case "windows-1252", "cp1252", "latin1", "iso-8859-1":
		dec = charmap.Windows1252.NewDecoder()
	default:
		return nil, fmt.Errorf("unsupported encoding %q", enc)
	}

	out, _, err := transform.Bytes(dec, data)
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return bytes.TrimPrefix(out, bomUTF8), nil
}
