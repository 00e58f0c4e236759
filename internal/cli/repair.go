package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var repairNoWatch bool

var repairCmd = &cobra.Command{
	Use:   "repair",
	Short: "Start a repair job for incomplete listings",
	Long: `Start a background repair job on the server.

The server scans for incomplete listings, snapshots them into a job, and
fills missing fields from the marketplace API. Fields that already have
values are never overwritten.

By default the command attaches a live progress display. Use --no-watch
to just print the job ID and return.

Examples:
  listsync repair              # start and watch
  listsync repair --no-watch   # fire and forget`,
	RunE: runRepair,
}

func init() {
	repairCmd.Flags().BoolVar(&repairNoWatch, "no-watch", false, "do not attach the progress display")
	rootCmd.AddCommand(repairCmd)
}

func runRepair(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	result, err := apiClient.StartRepair(ctx)
	if err != nil {
		return fmt.Errorf("start repair: %w", err)
	}

	if result.JobID == "" {
		fmt.Println(result.Message)
		return nil
	}

	fmt.Printf("Repair job %s started (%d listings)\n", result.JobID, result.ItemsToSync)

	if repairNoWatch {
		fmt.Printf("Use 'listsync jobs %s' to check progress.\n", result.JobID)
		return nil
	}

	return watchJob(ctx, result.JobID)
}
