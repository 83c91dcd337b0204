package pipeline

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/zeebo/xxh3"
	"golang.org/x/sync/errgroup"

	"bulksync/internal/metrics"
	"bulksync/internal/parser"
	"bulksync/internal/progress"
	"bulksync/internal/schema"
)

// job is one row's unit of work inside a batch.
type job struct {
	line int
	name string
	// lane groups rows that must run in file order, such as two rows with
	// the same natural key. Empty lanes are spread by position.
	lane string
	// done, when set, is the row's outcome without running.
	done *progress.Outcome
	run  func(ctx context.Context) progress.Outcome
}

func failed(line int, name, msg string) *progress.Outcome {
	return &progress.Outcome{Line: line, Name: name, Status: progress.Failed, Message: msg}
}

// batchHandler turns one batch of records into jobs. prepare runs on the
// run goroutine before any job of the batch starts; it is where caches are
// warmed and departments are created. An error from prepare is a storage
// failure and stops the run.
type batchHandler interface {
	prepare(ctx context.Context, recs []schema.Record) ([]job, error)
}

// runBatches drives a handler over tbl: batches are sequential, jobs inside a
// batch run on up to opt.Workers goroutines, a snapshot goes to OnProgress
// after every batch, and ctx is checked before each batch starts.
//
// Writes use a context detached from ctx so a row that has started always
// finishes and is counted. A cancelled run returns the snapshot of the
// batches that completed and a nil error.
func runBatches(ctx context.Context, tbl *parser.Table, entity schema.Entity, mode string, opt RunOptions, h batchHandler) (progress.BatchResult, error) {
	runID := uuid.NewString()
	log := opt.Logger.With().
		Str("run_id", runID).
		Str("entity", string(entity)).
		Str("mode", mode).
		Logger()

	bind := schema.Bind(entity, tbl.Header())
	total := tbl.DataRows(opt.StartingRow)
	tr := progress.NewTracker(runID, string(entity), mode, total, opt.Clock)
	writeCtx := context.WithoutCancel(ctx)
	runStart := opt.Clock.Now()

	log.Info().
		Int("rows", total).
		Int("batch_size", opt.BatchSize).
		Int("workers", opt.Workers).
		Strs("unknown_headers", bind.Unknown()).
		Msg("stage=start")

	it := tbl.Rows(opt.StartingRow)
	for batch := 1; ; batch++ {
		if err := ctx.Err(); err != nil {
			snap := tr.Snapshot()
			log.Warn().
				Int("processed", snap.Processed).
				Int("remaining", snap.TotalRows-snap.Processed).
				Msg("stage=cancelled")
			metrics.RecordStep(opt.Job, mode, nil, opt.Clock.Since(runStart))
			return snap, nil
		}

		rows := it.Take(opt.BatchSize)
		if len(rows) == 0 {
			break
		}

		batchStart := opt.Clock.Now()
		recs := make([]schema.Record, len(rows))
		for i, r := range rows {
			recs[i] = bind.Record(r.Line, r.Values)
		}

		jobs, err := h.prepare(writeCtx, recs)
		if err != nil {
			metrics.RecordStep(opt.Job, "batch", err, opt.Clock.Since(batchStart))
			log.Error().Err(err).Int("batch", batch).Msg("stage=batch")
			return tr.Snapshot(), fmt.Errorf("batch %d (rows %d-%d): %w", batch, rows[0].Line, rows[len(rows)-1].Line, err)
		}

		outcomes := runJobs(writeCtx, jobs, opt.Workers)

		var counts [4]int64
		for _, o := range outcomes {
			tr.Record(o)
			if int(o.Status) < len(counts) {
				counts[o.Status]++
			}
			if o.Status == progress.Failed {
				log.Debug().Int("row", o.Line).Str("name", o.Name).Str("error", o.Message).Msg("stage=row")
			}
		}
		tr.EndBatch()

		for s, n := range counts {
			metrics.RecordRows(opt.Job, string(entity), progress.Status(s).String(), n)
		}
		metrics.RecordBatch(opt.Job, string(entity), len(rows))
		metrics.RecordStep(opt.Job, "batch", nil, opt.Clock.Since(batchStart))

		snap := tr.Snapshot()
		log.Info().
			Int("batch", batch).
			Int("rows", len(rows)).
			Int("processed", snap.Processed).
			Int("successful", snap.Successful).
			Int("skipped", snap.Skipped).
			Int("not_found", snap.NotFound).
			Int("errors", len(snap.Errors)).
			Dur("took", opt.Clock.Since(batchStart)).
			Msg("stage=batch")

		if opt.OnProgress != nil {
			opt.OnProgress(snap)
		}
	}

	res := tr.Snapshot()
	metrics.RecordStep(opt.Job, mode, nil, opt.Clock.Since(runStart))
	log.Info().
		Int("processed", res.Processed).
		Int("successful", res.Successful).
		Int("skipped", res.Skipped).
		Int("not_found", res.NotFound).
		Int("errors", len(res.Errors)).
		Dur("elapsed", res.Elapsed).
		Msg("stage=done")
	return res, nil
}

// runJobs runs jobs on up to workers lanes and returns outcomes in job order.
//
// Jobs sharing a lane key hash to the same lane and run in order, so a later
// duplicate of a row always observes the earlier row's write.
func runJobs(ctx context.Context, jobs []job, workers int) []progress.Outcome {
	out := make([]progress.Outcome, len(jobs))
	if len(jobs) == 0 {
		return out
	}
	if workers < 1 {
		workers = 1
	}
	if workers > len(jobs) {
		workers = len(jobs)
	}

	lanes := make([][]int, workers)
	for i, j := range jobs {
		if j.done != nil {
			out[i] = *j.done
			continue
		}
		n := uint64(i)
		if j.lane != "" {
			n = xxh3.HashString(j.lane)
		}
		l := int(n % uint64(workers))
		lanes[l] = append(lanes[l], i)
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for _, lane := range lanes {
		if len(lane) == 0 {
			continue
		}
		g.Go(func() error {
			for _, i := range lane {
				o := jobs[i].run(ctx)
				if o.Line == 0 {
					o.Line = jobs[i].line
				}
				if o.Name == "" {
					o.Name = jobs[i].name
				}
				out[i] = o
			}
			return nil
		})
	}
	_ = g.Wait()
	return out
}
