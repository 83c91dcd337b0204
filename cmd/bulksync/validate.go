package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"bulksync/internal/config"
	"bulksync/internal/schema"
)

func (a *app) newValidateCmd() *cobra.Command {
	var mode string
	cmd := &cobra.Command{
		Use:   "validate <organizations|contacts>",
		Short: "Check a job configuration without reading the file or the database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entity, err := schema.ParseEntity(args[0])
			if err != nil {
				return err
			}
			m := config.Mode(mode)
			switch m {
			case config.ModeUpload, config.ModeUpdate, config.ModeInspect:
			default:
				return fmt.Errorf("unknown mode %q (want upload, update or inspect)", mode)
			}
			job, _, err := a.loadJob()
			if err != nil {
				return err
			}
			if err := a.check(job, m, entity); err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, "configuration is valid")
			return nil
		},
	}
	addSourceFlags(cmd)
	addRunFlags(cmd)
	cmd.Flags().StringVar(&mode, "mode", string(config.ModeUpload), "command to validate for: upload, update or inspect")
	cmd.Flags().StringSlice("columns", nil, "headers to update")
	cmd.Flags().Bool("nullify-empty", false, "write NULL for empty selected cells")
	cmd.Flags().String("on-conflict", "skip", "default conflict action")
	cmd.Flags().String("conflicts", "", "conflicts YAML")
	return cmd
}
