package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/IshaanNene/ReviewGoat/internal/config"
	"github.com/IshaanNene/ReviewGoat/internal/harvest"
	"github.com/IshaanNene/ReviewGoat/internal/observability"
	"github.com/IshaanNene/ReviewGoat/internal/source"
	"github.com/IshaanNene/ReviewGoat/internal/storage"
	"github.com/IshaanNene/ReviewGoat/internal/types"
)

var (
	extractBook   string
	extractFormat string
	extractOutput string
)

// extractCmd creates the "extract" subcommand for saved pages.
func extractCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract [file...]",
		Short: "Extract reviews from saved HTML pages",
		Long: `Run cleaning and extraction over saved pages without a browser or network.
Each file is treated as one page, in the order given. Records are printed as
JSON lines unless --output is set.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runExtract,
	}

	cmd.Flags().StringVarP(&extractBook, "book", "b", "", "book identifier (default: first file name)")
	cmd.Flags().StringVarP(&extractOutput, "output", "o", "", "write records to this directory instead of stdout")
	cmd.Flags().StringVarP(&extractFormat, "format", "f", "jsonl", "output format when --output is set: json, jsonl, csv")

	return cmd
}

func runExtract(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := setupLogger(cfg.Logging)

	if extractBook != "" {
		cfg.Harvest.Book = extractBook
	}
	if cfg.Harvest.Book == "" {
		base := filepath.Base(args[0])
		cfg.Harvest.Book = strings.TrimSuffix(base, filepath.Ext(base))
	}

	pages := make([]string, len(args))
	for i, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		pages[i] = string(data)
	}

	src, err := source.NewDocumentSource("", logger, pages...)
	if err != nil {
		return fmt.Errorf("parse pages: %w", err)
	}
	defer src.Close()

	ext, pipe, err := buildStages(cfg, logger)
	if err != nil {
		return err
	}

	var sink storage.Sink
	if extractOutput != "" {
		sink, err = storage.NewFileSink(strings.ToLower(extractFormat), extractOutput, logger)
		if err != nil {
			return fmt.Errorf("create storage: %w", err)
		}
		defer sink.Close()
	}

	opts := harvest.OptionsFromConfig(cfg)
	opts.MaxPages = 0
	opts.PolitenessDelay = 0

	h := harvest.New(src, ext, pipe, sink, observability.NewMetrics(logger), opts, logger)
	table, err := h.Run(cmd.Context())
	if err != nil {
		return err
	}

	if sink == nil {
		return printRecords(table.Records())
	}
	fmt.Fprintf(os.Stderr, "%d records written to %s\n", table.Len(), extractOutput)
	return nil
}

func printRecords(recs []types.ReviewRecord) error {
	for i, rec := range recs {
		b, err := rec.ToJSON(i + 1)
		if err != nil {
			return err
		}
		fmt.Println(string(b))
	}
	return nil
}
