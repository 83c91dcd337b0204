package pipeline

import "errors"

// Pre-run validation failures. Nothing is written when one is returned.
var (
	ErrNoColumnsSelected = errors.New("no columns selected for update")
	ErrUnknownColumn     = errors.New("unknown column")
	ErrNameNotSelectable = errors.New("the Name column identifies records and cannot be updated")
	ErrNilTable          = errors.New("nil table")
	ErrNilRepository     = errors.New("nil repository")
)

// Row-level messages.
const (
	msgAmbiguousContact = "ambiguous contact name; add a Team column"
	msgClearTeam        = "Team cannot be cleared; contacts require a team"
)
