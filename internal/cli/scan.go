package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/mgrabner/listsync-go/internal/metrics"
	"github.com/mgrabner/listsync-go/internal/service"
	"github.com/spf13/cobra"
)

var (
	scanLimit int
	scanJSON  bool
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan listings for completeness gaps",
	Long: `Scan the listing store and report completeness gaps.

Each listing is scored against five checks (description, SKU, images,
structured attributes, price) worth 20 points each. Listings below 90
points are reported with their missing fields and repair priority.

Examples:
  listsync scan                # scan with the configured limit
  listsync scan --limit 1000   # scan more listings
  listsync scan --json         # machine-readable output`,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().IntVarP(&scanLimit, "limit", "n", 0, "maximum listings to check (0 = configured default)")
	scanCmd.Flags().BoolVar(&scanJSON, "json", false, "output the report as JSON")
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	gaps := service.NewGapService(dbClient, metrics.NewCollector(), cfg.ScanLimit)
	report, err := gaps.Scan(ctx, scanLimit)
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}

	if scanJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	printGapReport(report)
	return nil
}

func printGapReport(report *service.GapReport) {
	fmt.Printf("Checked %d listings, average completeness %.1f\n\n",
		report.TotalChecked, report.AverageCompleteness)

	if len(report.IncompleteItems) == 0 {
		fmt.Println("All listings complete")
		return
	}

	fmt.Println("Missing fields:")
	for field, count := range report.MissingByField {
		if count > 0 {
			fmt.Printf("  %-22s %d\n", field, count)
		}
	}
	fmt.Println()

	fmt.Printf("%-24s %-6s %-8s %s\n", "ID", "SCORE", "PRIORITY", "MISSING")
	fmt.Println(strings.Repeat("-", 72))
	for _, item := range report.IncompleteItems {
		fmt.Printf("%-24s %-6d %-8s %s\n",
			item.ID, item.Score, item.Priority, strings.Join(item.MissingFields, ", "))
	}
	fmt.Printf("\n%d listings need repair. Run 'listsync repair' to fix them.\n",
		len(report.IncompleteItems))
}
