// Package cli provides the command-line interface for purefact.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/purefact/internal/config"
)

// Version and Commit are set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
)

var (
	configDir string
	verbose   bool
)

var rootCmd = &cobra.Command{
	Use:   "purefact",
	Short: "Turn new public data releases into short factual articles",
	Long: "purefact watches public data pages and news feeds, summarizes every new file or entry " +
		"into a short article, and posts it to Telegram or ntfy. Each item is delivered once.",
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("purefact %s (%s)\n", Version, Commit)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config", config.DefaultConfigDir, "config directory")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.AddCommand(versionCmd, initCmd, scanCmd, runCmd, statusCmd, seenCmd, doctorCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
