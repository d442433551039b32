// Package reviewgoat provides a public SDK for embedding ReviewGoat as a library.
//
// Example usage:
//
//	h := reviewgoat.New(
//	    reviewgoat.WithBook("dune"),
//	    reviewgoat.WithSource("http"),
//	    reviewgoat.WithMaxPages(5),
//	)
//
//	records, err := h.Scrape(ctx, "https://www.goodreads.com/book/show/234225")
package reviewgoat

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/IshaanNene/ReviewGoat/internal/config"
	"github.com/IshaanNene/ReviewGoat/internal/extract"
	"github.com/IshaanNene/ReviewGoat/internal/harvest"
	"github.com/IshaanNene/ReviewGoat/internal/observability"
	"github.com/IshaanNene/ReviewGoat/internal/pipeline"
	"github.com/IshaanNene/ReviewGoat/internal/source"
	"github.com/IshaanNene/ReviewGoat/internal/storage"
	"github.com/IshaanNene/ReviewGoat/internal/types"
)

// Record is one harvested review.
type Record = types.ReviewRecord

// Harvester is the high-level API for using ReviewGoat as a library.
type Harvester struct {
	cfg    *config.Config
	output bool
	logger *slog.Logger
}

// Option configures a Harvester.
type Option func(*Harvester)

// WithBook sets the book identifier stored with every record.
func WithBook(book string) Option {
	return func(h *Harvester) { h.cfg.Harvest.Book = book }
}

// WithSource selects the page source: rod, http or file.
func WithSource(kind string) Option {
	return func(h *Harvester) { h.cfg.Source.Type = kind }
}

// WithSelectors overrides the review and next-page selectors.
func WithSelectors(review, next string) Option {
	return func(h *Harvester) {
		h.cfg.Source.ReviewSelector = review
		h.cfg.Source.NextSelector = next
	}
}

// WithMaxPages caps the number of pages harvested. 0 means no cap.
func WithMaxPages(n int) Option {
	return func(h *Harvester) { h.cfg.Source.MaxPages = n }
}

// WithDelay sets the politeness delay between pages.
func WithDelay(d time.Duration) Option {
	return func(h *Harvester) { h.cfg.Harvest.PolitenessDelay = d }
}

// WithPatterns replaces the header and body parsing rules.
func WithPatterns(p extract.Patterns) Option {
	return func(h *Harvester) { h.cfg.Extract = p }
}

// WithParseFailure sets the policy for headers that cannot be parsed.
func WithParseFailure(policy string) Option {
	return func(h *Harvester) { h.cfg.Harvest.OnParseFailure = policy }
}

// WithOutput also writes records to a file sink of the given format.
func WithOutput(format, path string) Option {
	return func(h *Harvester) {
		h.cfg.Storage.Type = format
		h.cfg.Storage.OutputPath = path
		h.output = true
	}
}

// WithLogger sets the logger. The default discards everything below warn.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Harvester) { h.logger = logger }
}

// New creates a new Harvester with the given options.
func New(opts ...Option) *Harvester {
	h := &Harvester{
		cfg:    config.DefaultConfig(),
		logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Scrape harvests every review reachable from rawURL.
func (h *Harvester) Scrape(ctx context.Context, rawURL string) ([]Record, error) {
	h.cfg.Source.URL = rawURL
	if err := config.Validate(h.cfg); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}

	src, err := source.Open(ctx, &h.cfg.Source, h.logger)
	if err != nil {
		return nil, fmt.Errorf("open source: %w", err)
	}
	defer src.Close()

	return h.run(ctx, src, harvest.OptionsFromConfig(h.cfg))
}

// ExtractHTML extracts reviews from already-fetched pages, in order.
func (h *Harvester) ExtractHTML(ctx context.Context, pages ...string) ([]Record, error) {
	src, err := source.NewDocumentSource("", h.logger, pages...)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	opts := harvest.OptionsFromConfig(h.cfg)
	opts.MaxPages = 0
	opts.PolitenessDelay = 0
	return h.run(ctx, src, opts)
}

func (h *Harvester) run(ctx context.Context, src source.PageSource, opts harvest.Options) ([]Record, error) {
	policy, err := extract.ParsePolicy(h.cfg.Harvest.OnParseFailure)
	if err != nil {
		return nil, err
	}
	ext, err := extract.New(h.cfg.Extract, policy)
	if err != nil {
		return nil, err
	}
	pipe, err := pipeline.Build(h.cfg.Harvest.RequiredFields, h.cfg.Harvest.Dedup, h.logger)
	if err != nil {
		return nil, err
	}

	var sink storage.Sink
	if h.output {
		sink, err = storage.Open(&h.cfg.Storage, h.logger)
		if err != nil {
			return nil, err
		}
		defer sink.Close()
	}

	hv := harvest.New(src, ext, pipe, sink, observability.NewMetrics(h.logger), opts, h.logger)
	table, err := hv.Run(ctx)
	return table.Records(), err
}
