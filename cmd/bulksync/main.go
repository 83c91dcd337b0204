// Command bulksync loads organization and contact spreadsheets into a
// relational database.
//
// Subcommands:
//
//	bulksync inspect   --file clubs.xlsx --entity organizations
//	bulksync conflicts organizations --file clubs.csv --out conflicts.yaml
//	bulksync upload    organizations --file clubs.csv --conflicts conflicts.yaml
//	bulksync update    contacts --file staff.csv --columns Email,Phone --nullify-empty
//	bulksync validate  contacts --mode update --config job.yaml
//
// Every flag has a job-file key and a BULKSYNC_* environment variable; see
// internal/config. Interrupting a running upload or update stops it after the
// current batch and still prints the summary. The exit code is 0 for
// completed and cancelled runs and 1 when the run could not start or a
// storage failure aborted it.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/viper"

	// register all backends with the storage factory.
	_ "bulksync/internal/storage/all"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

// run executes one CLI invocation and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(viper.New(), stdout, stderr)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "bulksync: %v\n", err)
		return 1
	}
	return 0
}
