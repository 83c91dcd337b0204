package config

import (
	"fmt"
	"strings"

	"bulksync/internal/logging"
	"bulksync/internal/parser"
	"bulksync/internal/pipeline"
	"bulksync/internal/schema"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError blocks the run.
	SeverityError IssueSeverity = "error"
	// SeverityWarning is surfaced but does not block the run.
	SeverityWarning IssueSeverity = "warning"
)

// Mode is the command a job is validated for.
type Mode string

const (
	ModeUpload  Mode = "upload"
	ModeUpdate  Mode = "update"
	ModeInspect Mode = "inspect"
)

// Issue is a single validation finding. Path is a dotted path into the job,
// e.g. "runtime.batch_size".
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue blocks the run.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

var knownStorageKinds = map[string]bool{
	"postgres": true,
	"sqlite":   true,
	"mssql":    true,
	"memory":   true,
}

// Validate lints job for the given command and entity. It does not open the
// source file or the database.
func Validate(job Job, mode Mode, entity schema.Entity) []Issue {
	var issues []Issue
	add := func(sev IssueSeverity, path, format string, a ...any) {
		issues = append(issues, Issue{Severity: sev, Path: path, Message: fmt.Sprintf(format, a...)})
	}

	if strings.TrimSpace(job.Job) == "" {
		add(SeverityError, "job", "job must not be empty; it labels metrics and logs")
	}
	if entity != schema.Organizations && entity != schema.Contacts {
		add(SeverityError, "entity", "unknown entity %q (want organizations or contacts)", entity)
	}

	issues = append(issues, validateStorage(job.Storage, mode)...)
	issues = append(issues, validateSource(job.Source)...)
	issues = append(issues, validateRuntime(job.Runtime)...)

	switch mode {
	case ModeUpdate:
		issues = append(issues, validateUpdate(job.Update, entity)...)
		if job.Conflicts.File != "" {
			add(SeverityWarning, "conflicts.file", "conflict files only apply to uploads; ignored")
		}
	case ModeUpload:
		if _, err := pipeline.ParseAction(job.Conflicts.Default); err != nil {
			add(SeverityError, "conflicts.default", "%v", err)
		}
		if len(job.Update.SelectedColumns) > 0 {
			add(SeverityWarning, "update.selected_columns", "selected columns only apply to updates; ignored")
		}
	}

	issues = append(issues, validateMetrics(job.Metrics)...)
	if !logging.ValidLevel(job.Log.Level) {
		add(SeverityWarning, "log.level", "unknown log level %q; using info", job.Log.Level)
	}
	switch strings.ToLower(job.Log.Format) {
	case "", "auto", "json", "console", "pretty":
	default:
		add(SeverityWarning, "log.format", "unknown log format %q; using json", job.Log.Format)
	}
	return issues
}

func validateStorage(s Storage, mode Mode) []Issue {
	if mode == ModeInspect {
		return nil
	}
	var issues []Issue
	kind := strings.TrimSpace(s.Kind)
	if kind == "" {
		return append(issues, Issue{SeverityError, "storage.kind", "storage.kind must not be empty"})
	}
	if !knownStorageKinds[kind] {
		issues = append(issues, Issue{SeverityWarning, "storage.kind",
			fmt.Sprintf("unknown storage kind %q; ensure a matching backend is registered", kind)})
	}
	if kind != "memory" && strings.TrimSpace(s.DSN) == "" {
		issues = append(issues, Issue{SeverityError, "storage.dsn", "storage.dsn must not be empty"})
	}
	return issues
}

func validateSource(s Source) []Issue {
	var issues []Issue
	if strings.TrimSpace(s.Path) == "" {
		issues = append(issues, Issue{SeverityError, "source.path", "source.path must not be empty"})
	}
	if _, err := parser.ParseFormat(s.Format); err != nil {
		issues = append(issues, Issue{SeverityError, "source.format", err.Error()})
	}
	if _, err := parseComma(s.Comma); err != nil {
		issues = append(issues, Issue{SeverityError, "source.comma", err.Error()})
	}
	return issues
}

func validateRuntime(r Runtime) []Issue {
	var issues []Issue
	if r.BatchSize < 0 {
		issues = append(issues, Issue{SeverityError, "runtime.batch_size", "batch_size must be >= 0 (0 uses the entity default)"})
	}
	if r.BatchSize > 1000 {
		issues = append(issues, Issue{SeverityWarning, "runtime.batch_size",
			fmt.Sprintf("batch_size %d is large; progress is only reported between batches", r.BatchSize)})
	}
	if r.StartingRow < 0 {
		issues = append(issues, Issue{SeverityError, "runtime.starting_row", "starting_row must be >= 0"})
	}
	if r.StartingRow == 1 {
		issues = append(issues, Issue{SeverityWarning, "runtime.starting_row", "row 1 is the header; starting at the first data row"})
	}
	if r.Workers < 0 {
		issues = append(issues, Issue{SeverityError, "runtime.workers", "workers must be >= 0"})
	}
	return issues
}

func validateUpdate(u Update, entity schema.Entity) []Issue {
	var issues []Issue
	if len(u.SelectedColumns) == 0 {
		return append(issues, Issue{SeverityError, "update.selected_columns", "select at least one column to update"})
	}
	for i, h := range u.SelectedColumns {
		path := fmt.Sprintf("update.selected_columns[%d]", i)
		col, ok := schema.Lookup(entity, h)
		switch {
		case !ok:
			issues = append(issues, Issue{SeverityError, path, fmt.Sprintf("%q is not a documented %s column", h, entity)})
		case !col.Updatable():
			issues = append(issues, Issue{SeverityError, path, fmt.Sprintf("%s is the match key and cannot be updated", col.Header)})
		}
	}
	return issues
}

func validateMetrics(m Metrics) []Issue {
	var issues []Issue
	switch strings.ToLower(strings.TrimSpace(m.Backend)) {
	case "", "none":
	case "datadog":
		if m.FlushEvery < 0 {
			issues = append(issues, Issue{SeverityError, "metrics.flush_every", "flush_every must be >= 0"})
		}
	default:
		issues = append(issues, Issue{SeverityWarning, "metrics.backend",
			fmt.Sprintf("unknown metrics backend %q; metrics disabled", m.Backend)})
	}
	return issues
}
