package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dgallion1/threadgest/internal/config"
)

var (
	verbose bool
	cfg     config.Config
)

var rootCmd = &cobra.Command{
	Use:   "threadgest",
	Short: "Scrape forum threads and summarize them with an LLM",
	Long: `threadgest fetches every page of a paginated forum thread, extracts the
posts, batches them into chunks and optionally asks an LLM for a decision
summary.

Example usage:
  threadgest scrape --url https://forum.example.com/threads/42 --pages discover
  threadgest scrape --url https://forum.example.com/threads/42 --analyze --out digest.html
  threadgest serve`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load .env: %w", err)
		}
		cfg = config.Load()
		return cfg.Validate()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.AddCommand(scrapeCmd, serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("threadgest failed", "error", err)
		os.Exit(1)
	}
}

func logLevel() slog.Level {
	if verbose {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}
