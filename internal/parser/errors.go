package parser

import (
	"errors"
	"fmt"
)

// ErrEmptyInput is returned when the file has no header row at all.
var ErrEmptyInput = errors.New("empty input")

// ParseError is a fatal, pre-run failure to read the file. No rows are
// produced and nothing is written.
type ParseError struct {
	Format Format
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Format, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
