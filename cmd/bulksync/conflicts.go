package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"bulksync/internal/config"
	"bulksync/internal/pipeline"
)

func (a *app) newConflictsCmd() *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "conflicts <organizations|contacts>",
		Short: "List rows whose name already exists, as an editable YAML file for upload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, entity, log, err := a.prepare(config.ModeUpload, args[0])
			if err != nil {
				return err
			}
			tbl, err := readTable(job)
			if err != nil {
				return err
			}
			repo, err := openRepo(cmd, job)
			if err != nil {
				return err
			}
			defer repo.Close()

			found, err := pipeline.DetectConflicts(cmd.Context(), repo, tbl, entity, job.Runtime.StartingRow)
			if err != nil {
				return err
			}
			data, err := pipeline.MarshalConflicts(entity, found)
			if err != nil {
				return err
			}
			log.Info().Str("entity", string(entity)).Int("conflicts", len(found)).Msg("stage=conflicts")

			if outPath == "" || outPath == "-" {
				_, err = a.stdout.Write(data)
				return err
			}
			if err := os.WriteFile(outPath, data, 0o644); err != nil {
				return fmt.Errorf("write conflicts: %w", err)
			}
			fmt.Fprintf(a.stderr, "%d conflicts written to %s\n", len(found), outPath)
			return nil
		},
	}
	addSourceFlags(cmd)
	cmd.Flags().Int("starting-row", 0, "first file row to check; the header is row 1")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "output file; stdout when empty")
	return cmd
}
