package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"bulksync/internal/config"
	"bulksync/internal/pipeline"
	"bulksync/internal/progress"
)

func (a *app) newUploadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upload <organizations|contacts>",
		Short: "Insert new rows; existing names are skipped or overwritten",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSync(cmd, config.ModeUpload, args[0])
		},
	}
	addSourceFlags(cmd)
	addRunFlags(cmd)
	cmd.Flags().String("on-conflict", "skip", "action for rows whose name already exists: skip or overwrite")
	cmd.Flags().String("conflicts", "", "conflicts YAML with per-row actions (see \"bulksync conflicts\")")
	return cmd
}

func (a *app) newUpdateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update <organizations|contacts>",
		Short: "Update selected columns of existing rows matched by name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSync(cmd, config.ModeUpdate, args[0])
		},
	}
	addSourceFlags(cmd)
	addRunFlags(cmd)
	cmd.Flags().StringSlice("columns", nil, "headers to update, e.g. Email,Phone")
	cmd.Flags().Bool("nullify-empty", false, "write NULL for empty selected cells instead of leaving them")
	return cmd
}

func (a *app) runSync(cmd *cobra.Command, mode config.Mode, entityArg string) error {
	job, entity, log, err := a.prepare(mode, entityArg)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	tbl, err := readTable(job)
	if err != nil {
		return err
	}

	var conflicts pipeline.ConflictInstructions
	if mode == config.ModeUpload {
		if conflicts, err = conflictInstructions(job); err != nil {
			return err
		}
	}

	cleanup, err := initMetrics(ctx, job.Metrics, job.Job, log)
	if err != nil {
		log.Warn().Err(err).Msg("metrics: disabled")
	}
	defer cleanup()

	repo, err := openRepo(cmd, job)
	if err != nil {
		return err
	}
	defer repo.Close()

	out := newReporter(a.stdout)
	run := pipeline.RunOptions{
		BatchSize:   job.Runtime.BatchSize,
		StartingRow: job.Runtime.StartingRow,
		Workers:     job.Runtime.Workers,
		OnProgress:  out.progress,
		Logger:      &log,
		Job:         job.Job,
	}

	var res progress.BatchResult
	switch mode {
	case config.ModeUpload:
		res, err = pipeline.Upload(ctx, repo, tbl, pipeline.UploadOptions{
			Entity:     entity,
			Conflicts:  conflicts,
			RunOptions: run,
		})
	case config.ModeUpdate:
		res, err = pipeline.Update(ctx, repo, tbl, pipeline.UpdateOptions{
			Entity:          entity,
			SelectedColumns: job.Update.SelectedColumns,
			NullifyEmpty:    job.Update.NullifyEmpty,
			RunOptions:      run,
		})
	default:
		return fmt.Errorf("unsupported mode %q", mode)
	}
	if res.RunID != "" {
		out.summary(res)
	}
	return err
}

// conflictInstructions reads the conflicts file when one is configured. Its
// own default then applies to rows it does not list.
func conflictInstructions(job config.Job) (pipeline.ConflictInstructions, error) {
	if job.Conflicts.File == "" {
		def, err := pipeline.ParseAction(job.Conflicts.Default)
		if err != nil {
			return pipeline.ConflictInstructions{}, err
		}
		return pipeline.ConflictInstructions{Default: def}, nil
	}
	data, err := os.ReadFile(job.Conflicts.File)
	if err != nil {
		return pipeline.ConflictInstructions{}, fmt.Errorf("read conflicts: %w", err)
	}
	return pipeline.ParseConflictFile(data)
}
