package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/IshaanNene/ReviewGoat/internal/config"
	"github.com/IshaanNene/ReviewGoat/internal/extract"
	"github.com/IshaanNene/ReviewGoat/internal/harvest"
	"github.com/IshaanNene/ReviewGoat/internal/observability"
	"github.com/IshaanNene/ReviewGoat/internal/pipeline"
	"github.com/IshaanNene/ReviewGoat/internal/source"
	"github.com/IshaanNene/ReviewGoat/internal/storage"
)

var (
	book           string
	outputPath     string
	outputType     string
	maxPages       int
	sourceType     string
	sourceDir      string
	headless       bool
	delay          string
	onParseFailure string
	dryRun         bool
)

// scrapeCmd creates the "scrape" subcommand.
func scrapeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scrape [url]",
		Short: "Harvest the reviews of a book page",
		Long:  "Open the book page, collect its reviews and follow the next-page control until the last page.",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runScrape,
	}

	cmd.Flags().StringVarP(&book, "book", "b", "", "book identifier stored with every record")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "output directory")
	cmd.Flags().StringVarP(&outputType, "format", "f", "", "output format: json, jsonl, csv, mongodb")
	cmd.Flags().IntVarP(&maxPages, "max-pages", "m", -1, "maximum pages to harvest (0 = unlimited, -1 = config default)")
	cmd.Flags().StringVar(&sourceType, "source", "", "page source: rod, http, file")
	cmd.Flags().StringVar(&sourceDir, "dir", "", "directory of saved pages for the file source")
	cmd.Flags().BoolVar(&headless, "headless", true, "run the browser without a window")
	cmd.Flags().StringVar(&delay, "delay", "", "politeness delay between pages")
	cmd.Flags().StringVar(&onParseFailure, "on-parse-failure", "", "header parse failure policy: skip, partial, abort")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "harvest without writing output")

	return cmd
}

// runScrape executes the scrape command.
func runScrape(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if len(args) > 0 {
		cfg.Source.URL = args[0]
	}
	if err := applyCLIOverrides(cmd, cfg); err != nil {
		return err
	}

	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := setupLogger(cfg.Logging)
	ctx := cmd.Context()

	logger.Info("starting scrape",
		"source", cfg.Source.Type,
		"url", cfg.Source.URL,
		"book", cfg.Harvest.Book,
		"max_pages", cfg.Source.MaxPages,
		"output", cfg.Storage.OutputPath,
		"format", cfg.Storage.Type,
		"dry_run", dryRun,
	)

	ext, pipe, err := buildStages(cfg, logger)
	if err != nil {
		return err
	}

	var sink storage.Sink
	if !dryRun {
		sink, err = storage.Open(&cfg.Storage, logger)
		if err != nil {
			return fmt.Errorf("create storage: %w", err)
		}
		defer func() {
			if err := sink.Close(); err != nil {
				logger.Error("close storage", "error", err)
			}
		}()
	}

	metrics := observability.NewMetrics(logger)
	if cfg.Metrics.Enabled {
		if err := metrics.StartServer(ctx, cfg.Metrics.Port, cfg.Metrics.Path); err != nil {
			logger.Warn("failed to start metrics server", "error", err)
		}
	}

	src, err := source.Open(ctx, &cfg.Source, logger)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer src.Close()

	start := time.Now()
	h := harvest.New(src, ext, pipe, sink, metrics, harvest.OptionsFromConfig(cfg), logger)
	table, runErr := h.Run(ctx)

	printSummary(time.Since(start), table, metrics.Snapshot(), cfg, runErr)

	if runErr != nil && !errors.Is(runErr, ctx.Err()) {
		return runErr
	}
	return nil
}

// buildStages creates the extractor and record pipeline from config.
func buildStages(cfg *config.Config, logger *slog.Logger) (*extract.Extractor, *pipeline.Pipeline, error) {
	policy, err := extract.ParsePolicy(cfg.Harvest.OnParseFailure)
	if err != nil {
		return nil, nil, err
	}
	ext, err := extract.New(cfg.Extract, policy)
	if err != nil {
		return nil, nil, fmt.Errorf("compile extract patterns: %w", err)
	}
	pipe, err := pipeline.Build(cfg.Harvest.RequiredFields, cfg.Harvest.Dedup, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("build pipeline: %w", err)
	}
	return ext, pipe, nil
}

func printSummary(elapsed time.Duration, table *harvest.Table, stats map[string]int64, cfg *config.Config, runErr error) {
	status := "✅ Scrape complete"
	if runErr != nil {
		status = "⚠️  Scrape stopped"
	}
	fmt.Printf("\n%s in %s\n", status, elapsed.Round(time.Millisecond))
	fmt.Printf("   Pages:     %v processed, %v navigation retries\n", stats["pages_processed"], stats["navigation_retries"])
	fmt.Printf("   Records:   %d kept, %v extracted, %v filtered\n", table.Len(), stats["records_extracted"], stats["records_filtered"])
	fmt.Printf("   Failures:  %v headers unparsed, %v blocks dropped\n", stats["parse_failures"], stats["blocks_dropped"])
	if dryRun {
		fmt.Printf("   Output:    none (dry run)\n")
	} else {
		fmt.Printf("   Output:    %s (%s)\n", cfg.Storage.OutputPath, cfg.Storage.Type)
	}
	if runErr != nil {
		fmt.Printf("   Error:     %v\n", runErr)
	}

	if table.Len() == 0 && runErr == nil {
		fmt.Println("\n💡 No reviews were found. Check source.review_selector against the page,")
		fmt.Println("   or save a page and try: reviewgoat extract page.html --book <name>")
	}
}

// applyCLIOverrides applies command-line flag values to the config.
func applyCLIOverrides(cmd *cobra.Command, cfg *config.Config) error {
	if book != "" {
		cfg.Harvest.Book = book
	}
	if outputPath != "" {
		cfg.Storage.OutputPath = outputPath
	}
	if outputType != "" {
		cfg.Storage.Type = strings.ToLower(outputType)
	}
	if maxPages >= 0 {
		cfg.Source.MaxPages = maxPages
	}
	if sourceType != "" {
		cfg.Source.Type = strings.ToLower(sourceType)
	}
	if sourceDir != "" {
		cfg.Source.Dir = sourceDir
		if sourceType == "" {
			cfg.Source.Type = "file"
		}
	}
	if cmd.Flags().Changed("headless") {
		cfg.Source.Headless = headless
	}
	if delay != "" {
		d, err := time.ParseDuration(delay)
		if err != nil {
			return fmt.Errorf("invalid --delay %q: %w", delay, err)
		}
		cfg.Harvest.PolitenessDelay = d
	}
	if onParseFailure != "" {
		cfg.Harvest.OnParseFailure = strings.ToLower(onParseFailure)
	}
	return nil
}
