// Package main provides the trend_radar command line: run, resume and inspect trend
// analysis runs, serve the HTTP API and build the retrieval index.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "trend_radar",
	Short: "AI trend radar",
	Long: `trend_radar collects research papers, repositories, search trends and market reports for a set of
AI keywords, scores technologies and markets, and ranks fused themes in a markdown report.

Runs are checkpointed after every stage and can be resumed after an interruption.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default ./trend-radar.yaml when present)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
