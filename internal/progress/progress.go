// Package progress accumulates per-row outcomes of a sync run and hands out
// immutable snapshots of the running totals.
package progress

import (
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Status is the outcome of one row.
type Status int

const (
	Succeeded Status = iota
	Failed
	Skipped
	NotFound
)

func (s Status) String() string {
	switch s {
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case Skipped:
		return "skipped"
	case NotFound:
		return "not_found"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Outcome is what happened to one row.
type Outcome struct {
	Line    int
	Name    string
	Status  Status
	Message string
}

// RowError is a row-level failure. The run continues past it.
type RowError struct {
	Line    int    `json:"row"`
	Name    string `json:"name,omitempty"`
	Message string `json:"message"`
}

func (e RowError) String() string {
	if e.Name != "" {
		return fmt.Sprintf("row %d (%s): %s", e.Line, e.Name, e.Message)
	}
	return fmt.Sprintf("row %d: %s", e.Line, e.Message)
}

// BatchResult is a cumulative snapshot of a run. Values handed out by a
// Tracker never change after they are returned.
type BatchResult struct {
	RunID         string        `json:"run_id"`
	Entity        string        `json:"entity"`
	Mode          string        `json:"mode"`
	TotalRows     int           `json:"total_rows"`
	Processed     int           `json:"processed"`
	Successful    int           `json:"successful"`
	Skipped       int           `json:"skipped"`
	NotFound      int           `json:"not_found"`
	Errors        []RowError    `json:"errors,omitempty"`
	NotFoundNames []string      `json:"not_found_names,omitempty"`
	Batches       int           `json:"batches"`
	Elapsed       time.Duration `json:"elapsed"`
}

// Cancelled reports a run that stopped before reaching the last row.
func (r BatchResult) Cancelled() bool { return r.Processed < r.TotalRows }

// ErrorStrings renders Errors as "row N: message" lines.
func (r BatchResult) ErrorStrings() []string {
	out := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		out[i] = e.String()
	}
	return out
}

// Func receives a snapshot after every batch.
type Func func(BatchResult)

// Tracker is a mutex-guarded accumulator for one run.
type Tracker struct {
	mu    sync.Mutex
	clock clockwork.Clock
	start time.Time
	res   BatchResult
}

// NewTracker starts a run of total rows. A nil clock uses the real clock.
func NewTracker(runID, entity, mode string, total int, clock clockwork.Clock) *Tracker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Tracker{
		clock: clock,
		start: clock.Now(),
		res: BatchResult{
			RunID:     runID,
			Entity:    entity,
			Mode:      mode,
			TotalRows: total,
		},
	}
}

// Record applies one row outcome.
func (t *Tracker) Record(o Outcome) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.res.Processed++
	switch o.Status {
	case Succeeded:
		t.res.Successful++
	case Skipped:
		t.res.Skipped++
	case NotFound:
		t.res.NotFound++
		t.res.NotFoundNames = append(t.res.NotFoundNames, o.Name)
	case Failed:
		t.res.Errors = append(t.res.Errors, RowError{Line: o.Line, Name: o.Name, Message: o.Message})
	}
}

// EndBatch marks a batch boundary.
func (t *Tracker) EndBatch() {
	t.mu.Lock()
	t.res.Batches++
	t.mu.Unlock()
}

// Snapshot returns a deep copy of the running totals.
func (t *Tracker) Snapshot() BatchResult {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := t.res
	out.Errors = append([]RowError(nil), t.res.Errors...)
	out.NotFoundNames = append([]string(nil), t.res.NotFoundNames...)
	out.Elapsed = t.clock.Since(t.start)
	return out
}
