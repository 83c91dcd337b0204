package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"bulksync/internal/config"
	"bulksync/internal/logging"
	"bulksync/internal/parser"
	"bulksync/internal/schema"
	"bulksync/internal/storage"
)

// flagKeys maps every flag name to its job-file key.
var flagKeys = map[string]string{
	"config":             "config",
	"env-file":           "env_file",
	"job":                "job",
	"storage":            "storage.kind",
	"dsn":                "storage.dsn",
	"auto-create-tables": "storage.auto_create_tables",
	"file":               "source.path",
	"format":             "source.format",
	"encoding":           "source.encoding",
	"comma":              "source.comma",
	"batch-size":         "runtime.batch_size",
	"starting-row":       "runtime.starting_row",
	"workers":            "runtime.workers",
	"columns":            "update.selected_columns",
	"nullify-empty":      "update.nullify_empty",
	"on-conflict":        "conflicts.default",
	"conflicts":          "conflicts.file",
	"metrics":            "metrics.backend",
	"metrics-tags":       "metrics.tags",
	"log-level":          "log.level",
	"log-format":         "log.format",
	"log-output":         "log.output",
}

// app carries what every subcommand shares.
type app struct {
	v      *viper.Viper
	stdout io.Writer
	stderr io.Writer
}

func newRootCmd(v *viper.Viper, stdout, stderr io.Writer) *cobra.Command {
	a := &app{v: v, stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:           "bulksync",
		Short:         "Bulk upload and update organizations and contacts from spreadsheets",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return bindFlags(a.v, cmd.Flags())
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.String("config", "", "job file (YAML or JSON)")
	pf.String("env-file", ".env", "dotenv file loaded before reading the environment")
	pf.String("job", "bulksync", "job name used in logs and metrics")
	pf.String("storage", "", "storage backend: postgres, sqlite, mssql or memory")
	pf.String("dsn", "", "storage DSN; ${VARS} are expanded")
	pf.Bool("auto-create-tables", false, "create missing tables before the run")
	pf.String("metrics", "none", "metrics backend: none or datadog")
	pf.StringSlice("metrics-tags", nil, "extra metrics tags, e.g. team:data")
	pf.String("log-level", "info", "log level")
	pf.String("log-format", "auto", "log format: json, console or auto")
	pf.String("log-output", "stderr", "log output: stderr, stdout, discard or a file path")

	root.AddCommand(
		a.newUploadCmd(),
		a.newUpdateCmd(),
		a.newConflictsCmd(),
		a.newInspectCmd(),
		a.newValidateCmd(),
	)
	return root
}

// bindFlags binds the flags of the executing command only, so subcommands
// sharing a flag name never shadow each other.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	var errs []error
	fs.VisitAll(func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok {
			return
		}
		if err := v.BindPFlag(key, f); err != nil {
			errs = append(errs, fmt.Errorf("bind --%s: %w", f.Name, err))
		}
	})
	return errors.Join(errs...)
}

func addSourceFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringP("file", "f", "", "input file: CSV, XLSX or an HTML table export")
	f.String("format", "auto", "input format: auto, csv, xlsx or html")
	f.String("encoding", "", "force a text encoding, e.g. windows-1252")
	f.String("comma", "", "CSV delimiter; empty sniffs it")
}

func addRunFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.Int("batch-size", 0, "rows per batch; 0 uses the entity default")
	f.Int("starting-row", 0, "first file row to process; the header is row 1")
	f.Int("workers", 0, "row parallelism within a batch; 0 uses the default")
}

// loadJob reads the job and builds its logger.
func (a *app) loadJob() (config.Job, zerolog.Logger, error) {
	job, err := config.Load(a.v)
	if err != nil {
		return config.Job{}, zerolog.Nop(), err
	}
	return job, logging.New(job.Log), nil
}

// check prints every issue and fails when one of them is an error.
func (a *app) check(job config.Job, mode config.Mode, entity schema.Entity) error {
	issues := config.Validate(job, mode, entity)
	for _, iss := range issues {
		fmt.Fprintf(a.stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		return errors.New("configuration is invalid")
	}
	return nil
}

// prepare loads and validates the job for a command working on entity.
func (a *app) prepare(mode config.Mode, entityArg string) (config.Job, schema.Entity, zerolog.Logger, error) {
	entity, err := schema.ParseEntity(entityArg)
	if err != nil {
		return config.Job{}, "", zerolog.Nop(), err
	}
	job, log, err := a.loadJob()
	if err != nil {
		return config.Job{}, "", zerolog.Nop(), err
	}
	if err := a.check(job, mode, entity); err != nil {
		return config.Job{}, "", zerolog.Nop(), err
	}
	return job, entity, log, nil
}

// readTable parses the job's source file. An "auto" format is first guessed
// from the file extension, then from content.
func readTable(job config.Job) (*parser.Table, error) {
	opts, err := job.ParserOptions()
	if err != nil {
		return nil, err
	}
	if opts.Format == parser.FormatAuto {
		if f, err := parser.ParseFormat(filepath.Ext(job.Source.Path)); err == nil {
			opts.Format = f
		}
	}
	data, err := os.ReadFile(job.Source.Path)
	if err != nil {
		return nil, fmt.Errorf("read source: %w", err)
	}
	tbl, err := parser.Parse(data, opts)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", job.Source.Path, err)
	}
	return tbl, nil
}

// openRepo connects to storage and creates the schema when asked to.
func openRepo(cmd *cobra.Command, job config.Job) (storage.Repository, error) {
	ctx := cmd.Context()
	repo, err := storage.New(ctx, job.StorageConfig())
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	if job.Storage.AutoCreateTables {
		if err := repo.EnsureTables(ctx, schema.Tables()); err != nil {
			repo.Close()
			return nil, fmt.Errorf("create tables: %w", err)
		}
	}
	return repo, nil
}
