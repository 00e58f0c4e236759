package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/mgrabner/listsync-go/internal/metrics"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show server operation timings",
	Long: `Show timing statistics for the server's scan, enrichment and
database operations since it started.`,
	RunE: runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	snap, err := apiClient.GetStats(context.Background())
	if err != nil {
		return fmt.Errorf("get stats: %w", err)
	}

	rows := []struct {
		name string
		op   *metrics.OperationSnapshot
	}{
		{"Gap scans", snap.Scan},
		{"Enrichment calls", snap.Enrich},
		{"DB queries", snap.DBQuery},
		{"Job items", snap.JobRecord},
	}

	fmt.Printf("Server uptime: %.0fs\n\n", snap.UptimeSeconds)
	fmt.Printf("%-18s %-8s %-10s %-10s %-10s %s\n", "OPERATION", "COUNT", "TOTAL", "AVG", "MIN", "MAX")
	fmt.Println(strings.Repeat("-", 70))
	for _, row := range rows {
		if row.op == nil || row.op.Count == 0 {
			fmt.Printf("%-18s %-8d\n", row.name, 0)
			continue
		}
		fmt.Printf("%-18s %-8d %-10s %-10s %-10s %s\n",
			row.name, row.op.Count,
			fmt.Sprintf("%dms", row.op.TotalTimeMs),
			fmt.Sprintf("%.1fms", row.op.AvgTimeMs),
			fmt.Sprintf("%dms", row.op.MinTimeMs),
			fmt.Sprintf("%dms", row.op.MaxTimeMs))
	}

	return nil
}
