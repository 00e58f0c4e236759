// Package cli provides the command-line interface for listsync.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/mgrabner/listsync-go/internal/client"
	"github.com/mgrabner/listsync-go/internal/config"
	"github.com/mgrabner/listsync-go/internal/db"
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose   bool
	serverURL string

	// Global config and clients
	cfg       config.Config
	dbClient  *db.Client
	apiClient *client.Client
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "listsync",
	Short: "Marketplace listing completeness and repair tool",
	Long: `Listsync keeps marketplace inventory listings complete.

It scores listings against a field checklist, reports which ones are
missing descriptions, SKUs, images, attributes or prices, and runs repair
jobs that fill gaps from the marketplace API without touching fields that
already have values.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip setup for version and help commands
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		cfg = config.Load()
		apiClient = client.New(serverURL)

		// Only the scan command reads the database directly; everything
		// else goes through the server API.
		if !commandNeedsDB(cmd) {
			return nil
		}

		ctx := context.Background()
		dbCfg := db.Config{
			URL:       cfg.SurrealDBURL,
			Namespace: cfg.SurrealDBNamespace,
			Database:  cfg.SurrealDBDatabase,
			Username:  cfg.SurrealDBUser,
			Password:  cfg.SurrealDBPass,
			AuthLevel: cfg.SurrealDBAuthLevel,
		}

		var err error
		dbClient, err = db.NewClient(ctx, dbCfg, nil)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}

		if err := dbClient.InitSchema(ctx); err != nil {
			return fmt.Errorf("initialize schema: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if dbClient != nil {
			if err := dbClient.Close(context.Background()); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
			}
		}
	},
}

// commandNeedsDB reports whether the command talks to SurrealDB directly.
func commandNeedsDB(cmd *cobra.Command) bool {
	return cmd.Name() == "scan"
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "listsync server URL (default from LISTSYNC_SERVER_URL)")
}

// exitWithError prints an error message and exits with code 1.
func exitWithError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
