package pipeline

import (
	"fmt"
	"strings"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"bulksync/internal/progress"
	"bulksync/internal/schema"
)

// DefaultWorkers is the row parallelism within one batch.
const DefaultWorkers = 4

// RunOptions are shared by uploads and updates.
type RunOptions struct {
	// BatchSize is rows per batch. <= 0 uses the entity default.
	BatchSize int
	// StartingRow is the first file row to process (header is row 1).
	// Values below 2 start at the first data row.
	StartingRow int
	// Workers bounds row parallelism within a batch. <= 0 uses DefaultWorkers;
	// 1 processes rows strictly in file order.
	Workers int

	// OnProgress receives a cumulative snapshot after every batch, on the
	// calling goroutine. Returning from it lets the run continue.
	OnProgress progress.Func

	// Logger receives stage events. nil disables logging.
	Logger *zerolog.Logger
	// Clock measures elapsed time. nil uses the real clock.
	Clock clockwork.Clock
	// Job labels metrics. Defaults to "bulksync".
	Job string
}

func (o RunOptions) withDefaults(e schema.Entity) RunOptions {
	if o.BatchSize <= 0 {
		o.BatchSize = e.DefaultBatchSize()
	}
	if o.Workers <= 0 {
		o.Workers = DefaultWorkers
	}
	if o.Logger == nil {
		nop := zerolog.Nop()
		o.Logger = &nop
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	if o.Job == "" {
		o.Job = "bulksync"
	}
	return o
}

// Action is what an upload does with a row whose natural key already exists.
type Action string

const (
	ActionSkip      Action = "skip"
	ActionOverwrite Action = "overwrite"
)

// ParseAction accepts "skip" and "overwrite" in any case. Empty means skip.
func ParseAction(s string) (Action, error) {
	switch Action(strings.ToLower(strings.TrimSpace(s))) {
	case "", ActionSkip:
		return ActionSkip, nil
	case ActionOverwrite:
		return ActionOverwrite, nil
	default:
		return "", fmt.Errorf("unknown conflict action %q (want skip or overwrite)", s)
	}
}

// ConflictInstructions decide conflicts up front, keyed by file row number.
type ConflictInstructions struct {
	// Default applies to rows without an entry. The zero value skips.
	Default Action
	Rows    map[int]Action
}

// For returns the action for the row at line.
func (c ConflictInstructions) For(line int) Action {
	if a, ok := c.Rows[line]; ok && a != "" {
		return a
	}
	if c.Default == "" {
		return ActionSkip
	}
	return c.Default
}

// UploadOptions configure Upload.
type UploadOptions struct {
	Entity    schema.Entity
	Conflicts ConflictInstructions
	RunOptions
}

// UpdateOptions configure Update.
type UpdateOptions struct {
	Entity schema.Entity
	// SelectedColumns are the headers to write, matched case-insensitively
	// against the file's header row. Name can never be selected.
	SelectedColumns []string
	// NullifyEmpty writes NULL for an empty selected cell. When false the
	// column is left untouched for that row.
	NullifyEmpty bool
	RunOptions
}
