package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "syncer",
	Short: "Sync new feed items into the record table",
	Long: `syncer polls a paginated content feed, detects items that are not yet in
the record table, and writes them above the existing rows after saving a
timestamped JSON backup of the table.

Without a subcommand it behaves like "syncer run".`,
	SilenceUsage: true,
	RunE:         runScheduled,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to config file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
