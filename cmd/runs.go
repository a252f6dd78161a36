package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Chirlanio/mercury-sync/sync"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs [id]",
	Short: "Lists recent sync runs, or shows one run in detail",
	Long: `Lists recent sync runs and their counters. With a run id, shows that run
in full, including its error details and cursor position.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		pg, err := loadDatabase()
		if err != nil {
			return err
		}
		defer pg.Close()
		if len(args) == 1 {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid run id %q: %w", args[0], err)
			}
			r, err := pg.GetRun(id)
			if err != nil {
				return err
			}
			printRun(r)
			return nil
		}
		rs, err := pg.ListRuns(runsLimit)
		if err != nil {
			return err
		}
		fmt.Printf("%-6s %-10s %-10s %10s %10s %10s %10s %8s  %s\n",
			"ID", "TYPE", "STATUS", "PROCESSED", "INSERTED", "UPDATED", "SKIPPED", "ERRORS", "STARTED AT")
		for _, r := range rs {
			fmt.Printf("%-6d %-10s %-10s %10d %10d %10d %10d %8d  %s\n",
				r.ID, r.Type, r.Status, r.ProcessedRecords, r.InsertedRecords,
				r.UpdatedRecords, r.SkippedRecords, r.ErrorCount,
				r.StartedAt.Format("2006-01-02 15:04:05"))
			if r.ErrorCount > 0 && len(r.ErrorDetails) > 0 {
				fmt.Printf("       %s\n", strings.Join(r.ErrorDetails, "\n       "))
			}
		}
		return nil
	},
}

func printRun(r *sync.Run) {
	fmt.Printf("Run:            %d\n", r.ID)
	fmt.Printf("Type:           %s\n", r.Type)
	fmt.Printf("Status:         %s\n", r.Status)
	fmt.Printf("Started by:     %s\n", r.StartedBy)
	fmt.Printf("Started at:     %s\n", r.StartedAt.Format("2006-01-02 15:04:05"))
	if r.CompletedAt != nil {
		fmt.Printf("Completed at:   %s\n", r.CompletedAt.Format("2006-01-02 15:04:05"))
	}
	if r.LastReference != "" {
		fmt.Printf("Last reference: %s\n", r.LastReference)
	}
	fmt.Printf("Total:          %d\n", r.TotalRecords)
	fmt.Printf("Processed:      %d\n", r.ProcessedRecords)
	fmt.Printf("Inserted:       %d\n", r.InsertedRecords)
	fmt.Printf("Updated:        %d\n", r.UpdatedRecords)
	fmt.Printf("Skipped:        %d\n", r.SkippedRecords)
	fmt.Printf("Errors:         %d\n", r.ErrorCount)
	for _, d := range r.ErrorDetails {
		fmt.Printf("  %s\n", d)
	}
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <run>",
	Short: "Cancels a live sync run",
	Long: `Cancels a pending or running sync run. The engine checks the run status
between groups, so a live chunk stops within one page at most.`,
	Args: cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid run id %q: %w", args[0], err)
		}
		pg, err := loadDatabase()
		if err != nil {
			return err
		}
		defer pg.Close()
		return pg.CancelRun(id)
	},
}

func runsCLI() *cobra.Command {
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "l", 20, "maximum runs to list")
	return addDatabase(runsCmd)
}

func cancelCLI() *cobra.Command {
	return addDatabase(cancelCmd)
}
