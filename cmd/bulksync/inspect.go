package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"bulksync/internal/config"
	"bulksync/internal/probe"
)

func (a *app) newInspectCmd() *cobra.Command {
	var (
		entityArg string
		sample    int
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show how a file's headers map to documented columns",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			job, entity, _, err := a.prepare(config.ModeInspect, entityArg)
			if err != nil {
				return err
			}
			tbl, err := readTable(job)
			if err != nil {
				return err
			}
			rep := probe.Inspect(tbl, probe.Options{Entity: entity, Sample: sample})
			if asJSON {
				enc := json.NewEncoder(a.stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(rep)
			}
			fmt.Fprintln(a.stdout, rep.Format())
			return nil
		},
	}
	addSourceFlags(cmd)
	cmd.Flags().StringVarP(&entityArg, "entity", "e", "organizations", "organizations or contacts")
	cmd.Flags().IntVar(&sample, "sample", probe.DefaultSample, "rows sampled for type inference")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}
