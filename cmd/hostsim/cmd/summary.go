package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/sarchlab/hostsim/checkpoint"
	"github.com/sarchlab/hostsim/datarecording"
	"github.com/sarchlab/hostsim/survey"
)

var summaryCmd = &cobra.Command{
	Use:   "summary [database]",
	Short: "Print the survey results and the checkpoint log of a database.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		runID, _ := cmd.Flags().GetString("run")

		return printSummary(cmd.Context(), cmd.OutOrStdout(), args[0], runID)
	},
}

func init() {
	rootCmd.AddCommand(summaryCmd)
	summaryCmd.Flags().String("run", "", "Only show the run with this ID")
}

func printSummary(
	ctx context.Context,
	w io.Writer,
	dbFile string,
	runID string,
) error {
	_, err := os.Stat(dbFile)
	if err != nil {
		return err
	}

	reader, err := datarecording.NewReader(dbFile)
	if err != nil {
		return err
	}
	defer reader.Close()

	reader.Bind(survey.TableName, survey.Entry{})
	reader.Bind(checkpoint.LogTableName, checkpoint.LogEntry{})

	filter := datarecording.Filter{OrderBy: "RunID, Survey, OutID"}
	if runID != "" {
		filter.Where = "RunID = ?"
		filter.Args = []any{runID}
	}

	rows, err := readTable(ctx, reader, survey.TableName, filter)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "%-20s %6s %11s %-13s %5s %14s\n",
		"run", "survey", "output step", "measure", "id", "value")

	for _, r := range rows {
		e := r.(*survey.Entry)
		fmt.Fprintf(w, "%-20s %6d %11d %-13s %5d %14g\n",
			e.RunID, e.Survey, e.OutputStep, e.Measure, e.OutID, e.Value)
	}

	filter.OrderBy = "RunID, rowid"

	rows, err = readTable(ctx, reader, checkpoint.LogTableName, filter)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "\n%-20s %-8s %4s %10s %10s %9s\n",
		"run", "event", "slot", "step", "bytes", "seconds")

	for _, r := range rows {
		e := r.(*checkpoint.LogEntry)
		fmt.Fprintf(w, "%-20s %-8s %4d %10d %10d %9.3f\n",
			e.RunID, e.Event, e.Slot, e.SimulatedTime, e.Bytes, e.DurationSec)
	}

	return nil
}

// readTable returns no rows for a table the database does not hold. Surveys
// are only written when a run completes.
func readTable(
	ctx context.Context,
	reader *datarecording.Reader,
	tableName string,
	filter datarecording.Filter,
) ([]any, error) {
	found, err := reader.HasTable(ctx, tableName)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", tableName, err)
	}

	if !found {
		return nil, nil
	}

	rows, err := reader.Rows(ctx, tableName, filter)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", tableName, err)
	}

	return rows, nil
}
