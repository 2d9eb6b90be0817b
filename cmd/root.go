// Package cmd implements the insight-crawler command-line interface.
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var debug bool

var rootCmd = &cobra.Command{
	Use:   "insight-crawler",
	Short: "Discovers and crawls insight articles from heterogeneous sources",
	Long: `insight-crawler resolves the right crawling technique for a website,
executes it with automatic fallback, and persists the harvested articles.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return cmd.Help()
	},
}

// Execute runs the CLI. The context is canceled on SIGINT or SIGTERM so
// in-flight crawls shut down cleanly.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(newResolveCommand())
	rootCmd.AddCommand(newCrawlCommand())
	rootCmd.AddCommand(newSourcesCommand())
}
