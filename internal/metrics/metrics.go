// Package metrics is a small backend-agnostic layer for recording sync run
// metrics.
//
// A global backend defaults to a no-op, so pipelines can always record.
// Concrete systems live in subpackages (see metrics/datadog) and are
// installed by the CLI with SetBackend.
package metrics

import (
	"sync"
	"time"
)

// Metric names understood by backends.
const (
	StepTotal           = "sync_step_total"
	StepDurationSeconds = "sync_step_duration_seconds"
	RowsTotal           = "sync_rows_total"
	BatchesTotal        = "sync_batches_total"
	BatchRowsObserved   = "sync_batch_rows"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a distribution.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes buffered metrics, if the backend buffers.
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(name string, delta float64, labels Labels)       {}
func (nopBackend) ObserveHistogram(name string, value float64, labels Labels) {}
func (nopBackend) Flush() error                                               { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// SetBackend installs b. Passing nil restores the no-op backend.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		b = nopBackend{}
	}
	backend = b
}

// Flush delegates to the current backend.
func Flush() error {
	return current().Flush()
}

// RecordStep counts one run step (parse, validate, batch, run) and its latency.
func RecordStep(job, step string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	lbls := Labels{"job": job, "step": step, "status": status}

	b := current()
	b.IncCounter(StepTotal, 1, lbls)
	b.ObserveHistogram(StepDurationSeconds, d.Seconds(), lbls)
}

// RecordRows counts rows by outcome: "succeeded", "failed", "skipped",
// "not_found".
func RecordRows(job, entity, outcome string, delta int64) {
	if delta <= 0 {
		return
	}
	current().IncCounter(RowsTotal, float64(delta), Labels{
		"job":     job,
		"entity":  entity,
		"outcome": outcome,
	})
}

// RecordBatch counts one finished batch and the number of rows it held.
func RecordBatch(job, entity string, rows int) {
	lbls := Labels{"job": job, "entity": entity}
	b := current()
	b.IncCounter(BatchesTotal, 1, lbls)
	b.ObserveHistogram(BatchRowsObserved, float64(rows), lbls)
}
