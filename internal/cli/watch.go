package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/mgrabner/listsync-go/internal/service"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var watchCmd = &cobra.Command{
	Use:   "watch <job-id>",
	Short: "Follow a repair job's progress",
	Long: `Attach to a running repair job and follow its progress.

On a terminal this shows an interactive progress bar. When output is
redirected, progress snapshots are streamed as plain lines instead.

Example:
  listsync watch repair-20260301T120000-1a2b3c4d`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return watchJob(context.Background(), args[0])
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

// watchJob follows a job until it finishes, picking the display that fits
// the output destination.
func watchJob(ctx context.Context, id string) error {
	if term.IsTerminal(int(os.Stdout.Fd())) {
		return RunJobProgress(apiClient, id)
	}
	return streamJob(ctx, id)
}

// streamJob prints progress snapshots line by line over the server's
// websocket stream. Used for non-interactive output.
func streamJob(ctx context.Context, id string) error {
	var last service.JobSnapshot
	err := apiClient.WatchJob(ctx, id, func(snap service.JobSnapshot) error {
		fmt.Printf("%s %s %d/%d failed=%d phase=%s\n",
			snap.ID, snap.Status, snap.ProcessedItems+snap.FailedItems,
			snap.TotalItems, snap.FailedItems, snap.CurrentPhase)
		last = snap
		return nil
	})
	if err != nil {
		return fmt.Errorf("watch job: %w", err)
	}

	if last.Status == service.JobStatusFailed {
		if last.Error != nil {
			return fmt.Errorf("job failed: %s", *last.Error)
		}
		return fmt.Errorf("job failed")
	}
	return nil
}
