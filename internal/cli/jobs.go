package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mgrabner/listsync-go/internal/service"
	"github.com/spf13/cobra"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs [job-id]",
	Short: "List or inspect repair jobs",
	Long: `List recent repair jobs or inspect a specific job by ID.

Examples:
  listsync jobs                          # List recent jobs
  listsync jobs repair-20260301T120000-1a2b3c4d   # Show one job`,
	Args: cobra.MaximumNArgs(1),
	RunE: runJobs,
}

func init() {
	rootCmd.AddCommand(jobsCmd)
}

func runJobs(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if len(args) == 1 {
		return showJob(ctx, args[0])
	}
	return listJobs(ctx)
}

func listJobs(ctx context.Context) error {
	jobs, err := apiClient.ListJobs(ctx)
	if err != nil {
		return fmt.Errorf("list jobs: %w", err)
	}

	if len(jobs) == 0 {
		fmt.Println("No repair jobs found")
		return nil
	}

	fmt.Printf("%-42s %-10s %-10s %-24s %s\n", "ID", "STATUS", "PROGRESS", "PHASE", "STARTED")
	fmt.Println(strings.Repeat("-", 100))

	for _, job := range jobs {
		progress := fmt.Sprintf("%d/%d", job.ProcessedItems+job.FailedItems, job.TotalItems)
		started := job.StartedAt.Format("15:04:05")
		fmt.Printf("%-42s %-10s %-10s %-24s %s\n", job.ID, job.Status, progress, job.CurrentPhase, started)
	}

	return nil
}

func showJob(ctx context.Context, id string) error {
	job, err := apiClient.GetJob(ctx, id)
	if err != nil {
		return fmt.Errorf("get job: %w", err)
	}

	printJob(job)
	return nil
}

func printJob(job *service.JobSnapshot) {
	fmt.Printf("Job: %s\n", job.ID)
	fmt.Printf("  Status: %s\n", job.Status)
	fmt.Printf("  Phase: %s\n", job.CurrentPhase)
	fmt.Printf("  Progress: %d/%d (%.0f%%)\n",
		job.ProcessedItems+job.FailedItems, job.TotalItems, job.CompletionRate*100)
	if job.FailedItems > 0 {
		fmt.Printf("  Failed items: %d\n", job.FailedItems)
	}
	fmt.Printf("  Started: %s\n", job.StartedAt.Format(time.RFC3339))
	if job.EstimatedCompletion != nil {
		fmt.Printf("  Estimated completion: %s\n", job.EstimatedCompletion.Format(time.RFC3339))
	}
	if job.CompletedAt != nil {
		fmt.Printf("  Completed: %s\n", job.CompletedAt.Format(time.RFC3339))
		duration := job.CompletedAt.Sub(job.StartedAt)
		fmt.Printf("  Duration: %s\n", duration.Round(time.Second))
	}
	if job.Error != nil && *job.Error != "" {
		fmt.Printf("  Error: %s\n", *job.Error)
	}
}
