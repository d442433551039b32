package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/IshaanNene/ReviewGoat/internal/config"
)

var (
	cfgFile string
	verbose bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "reviewgoat",
		Short: "ReviewGoat: paginated book review harvester",
		Long: `ReviewGoat collects the reviews shown on a book page, follows the
"next page" control and writes one record per review.

Features:
  • Headless browser (go-rod) or plain HTTP page sources
  • CSS selector and XPath queries
  • Configurable header and body parsing rules
  • JSON, JSONL, CSV and MongoDB output
  • Offline extraction from saved pages
  • Prometheus metrics endpoint`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(scrapeCmd())
	rootCmd.AddCommand(extractCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(configCmd())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

// versionCmd creates the "version" subcommand.
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("ReviewGoat %s\n", config.Version)
		},
	}
}

// configCmd creates the "config" subcommand for inspecting configuration.
func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			fmt.Printf("Source:\n")
			fmt.Printf("  Type:              %s\n", cfg.Source.Type)
			fmt.Printf("  URL:               %s\n", cfg.Source.URL)
			fmt.Printf("  Review Selector:   %s\n", cfg.Source.ReviewSelector)
			fmt.Printf("  Next Selector:     %s\n", cfg.Source.NextSelector)
			fmt.Printf("  Max Pages:         %d\n", cfg.Source.MaxPages)
			fmt.Printf("  Headless:          %v\n", cfg.Source.Headless)
			fmt.Printf("  Request Timeout:   %s\n", cfg.Source.RequestTimeout)
			fmt.Printf("\nHarvest:\n")
			fmt.Printf("  Book:              %s\n", cfg.Harvest.Book)
			fmt.Printf("  Politeness Delay:  %s\n", cfg.Harvest.PolitenessDelay)
			fmt.Printf("  Max Retries:       %d\n", cfg.Harvest.MaxRetries)
			fmt.Printf("  On Parse Failure:  %s\n", cfg.Harvest.OnParseFailure)
			fmt.Printf("  Dedup:             %v\n", cfg.Harvest.Dedup)
			fmt.Printf("\nExtract:\n")
			fmt.Printf("  Prefixes:          %d configured\n", len(cfg.Extract.Prefixes))
			fmt.Printf("  Separators:        %q\n", cfg.Extract.Separators)
			fmt.Printf("  Terminators:       %q\n", cfg.Extract.Terminators)
			fmt.Printf("  Body Markers:      %q\n", cfg.Extract.BodyMarkers)
			fmt.Printf("  Preview Length:    %d\n", cfg.Extract.PreviewLength)
			fmt.Printf("\nStorage:\n")
			fmt.Printf("  Type:              %s\n", cfg.Storage.Type)
			fmt.Printf("  Output Path:       %s\n", cfg.Storage.OutputPath)
			fmt.Printf("\nMetrics:\n")
			fmt.Printf("  Enabled:           %v\n", cfg.Metrics.Enabled)
			fmt.Printf("  Port:              %d\n", cfg.Metrics.Port)
			return nil
		},
	}
}

// setupLogger creates a structured logger from the logging config.
func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}
