package cmd

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"
	"github.com/sparkify/datalake/boltdb"
	"github.com/spf13/cobra"
)

// NewRunsCommand returns a command printing the most recent runs recorded in
// a ledger.
func NewRunsCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	var (
		ledger string
		last   int
		tables bool
	)
	runsCommand := &cobra.Command{
		Use:   "runs",
		Short: "Print the runs recorded in a ledger.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if ledger == "" {
				return errors.New("--ledger is required")
			}
			l, err := boltdb.NewLedger(ledger)
			if err != nil {
				return err
			}
			defer l.Close()
			runs, err := l.Runs(last)
			if err != nil {
				return errors.Wrap(err, "reading runs")
			}
			return printRuns(stdout, runs, tables)
		},
	}
	flags := runsCommand.Flags()
	flags.StringVarP(&ledger, "ledger", "l", "", "Ledger file written by etl --ledger.")
	flags.IntVarP(&last, "last", "n", 10, "Number of runs to print. 0 prints all of them.")
	flags.BoolVarP(&tables, "tables", "t", false, "Also print the outcome of each table.")
	return runsCommand
}

func printRuns(out io.Writer, runs []boltdb.Run, tables bool) error {
	tw := tabwriter.NewWriter(out, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tID\tSTARTED\tDURATION\tSTATUS")
	for _, r := range runs {
		status, dur := "ok", "-"
		if r.Err != "" {
			status = "failed: " + r.Err
		} else if r.Finished.IsZero() {
			status = "unfinished"
		}
		if !r.Finished.IsZero() {
			dur = r.Finished.Sub(r.Started).Round(time.Millisecond).String()
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", r.Seq, r.ID, r.Started.Format(time.RFC3339), dur, status)
		if !tables {
			continue
		}
		res := append([]boltdb.TableResult(nil), r.Tables...)
		sort.Slice(res, func(i, j int) bool { return res[i].Table < res[j].Table })
		for _, t := range res {
			status := "ok"
			if t.Err != "" {
				status = "failed: " + strings.TrimSpace(t.Err)
			}
			fmt.Fprintf(tw, "\t%s\t%d rows\t%s\t%s\n", t.Table, t.Rows, t.Duration.Round(time.Millisecond), status)
		}
	}
	return tw.Flush()
}

func init() {
	subcommandFns["runs"] = NewRunsCommand
}
