package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent migration runs",
	Example: `  migrator history
  migrator history --limit 5 --output json`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

var historyLimit int

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20,
		"Maximum number of runs to show (0 for all)")
}

func runHistory(cmd *cobra.Command, args []string) error {
	if history == nil {
		return fmt.Errorf("run history is disabled")
	}

	runs, err := history.List(historyLimit)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}

	if done, err := structured(runs); done || err != nil {
		return err
	}

	if len(runs) == 0 {
		printInfo("No runs recorded yet")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tOPERATION\tSTARTED\tDURATION\tSTATUS\tARCHIVE")
	for _, r := range runs {
		status := green("ok")
		if !r.Success {
			status = red("failed")
		}
		if len(r.Warnings) > 0 {
			status += yellow(" (%d warnings)", len(r.Warnings))
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			shortID(r.ID), r.Operation.Verb(), humanize.Time(r.StartTime),
			r.Duration().Round(time.Millisecond), status, r.Archive)
	}
	return w.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
