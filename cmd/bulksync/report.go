package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"bulksync/internal/progress"
)

// reporter prints progress lines and the final summary.
type reporter struct {
	w io.Writer
}

func newReporter(w io.Writer) *reporter { return &reporter{w: w} }

func (r *reporter) progress(res progress.BatchResult) {
	fmt.Fprintf(r.w, "batch %d: %d/%d rows  ok=%d skipped=%d not_found=%d errors=%d\n",
		res.Batches, res.Processed, res.TotalRows,
		res.Successful, res.Skipped, res.NotFound, len(res.Errors))
}

func (r *reporter) summary(res progress.BatchResult) {
	status := "completed"
	if res.Cancelled() {
		status = "cancelled"
	}
	fmt.Fprintf(r.w, "%s %s %s: processed=%d/%d successful=%d skipped=%d not_found=%d errors=%d elapsed=%s\n",
		res.Mode, res.Entity, status,
		res.Processed, res.TotalRows, res.Successful, res.Skipped, res.NotFound, len(res.Errors),
		res.Elapsed.Truncate(time.Millisecond))
	for _, line := range res.ErrorStrings() {
		fmt.Fprintf(r.w, "  %s\n", line)
	}
	if len(res.NotFoundNames) > 0 {
		fmt.Fprintf(r.w, "  not found: %s\n", strings.Join(res.NotFoundNames, ", "))
	}
}
