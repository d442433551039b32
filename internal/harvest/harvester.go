// Package harvest drives a page source through cleaning, extraction and the
// record pipeline, page by page, into a sink.
package harvest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IshaanNene/ReviewGoat/internal/collector"
	"github.com/IshaanNene/ReviewGoat/internal/config"
	"github.com/IshaanNene/ReviewGoat/internal/extract"
	"github.com/IshaanNene/ReviewGoat/internal/observability"
	"github.com/IshaanNene/ReviewGoat/internal/pipeline"
	"github.com/IshaanNene/ReviewGoat/internal/source"
	"github.com/IshaanNene/ReviewGoat/internal/storage"
	"github.com/IshaanNene/ReviewGoat/internal/types"
)

// Options controls pagination and retry behavior.
type Options struct {
	Book            string
	ReviewSelector  string
	MaxPages        int // 0 means no ceiling
	PolitenessDelay time.Duration
	MaxRetries      int
	RetryDelay      time.Duration
}

// OptionsFromConfig picks the harvest options out of a loaded config.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Book:            cfg.Harvest.Book,
		ReviewSelector:  cfg.Source.ReviewSelector,
		MaxPages:        cfg.Source.MaxPages,
		PolitenessDelay: cfg.Harvest.PolitenessDelay,
		MaxRetries:      cfg.Harvest.MaxRetries,
		RetryDelay:      cfg.Harvest.RetryDelay,
	}
}

// Harvester runs one scrape from the source's current page onward.
type Harvester struct {
	src      source.PageSource
	ext      *extract.Extractor
	pipeline *pipeline.Pipeline
	sink     storage.Sink
	metrics  *observability.Metrics
	opts     Options
	logger   *slog.Logger

	// sleep waits for d or until ctx is done.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Harvester. sink may be nil, in which case records are only
// collected into the returned table.
func New(src source.PageSource, ext *extract.Extractor, pipe *pipeline.Pipeline, sink storage.Sink, metrics *observability.Metrics, opts Options, logger *slog.Logger) *Harvester {
	return &Harvester{
		src:      src,
		ext:      ext,
		pipeline: pipe,
		sink:     sink,
		metrics:  metrics,
		opts:     opts,
		logger:   logger.With("component", "harvester"),
		sleep:    sleepContext,
	}
}

// Run processes pages until the source reports no further page, MaxPages is
// reached, or an error occurs. The table collected so far is always returned,
// including when ctx is cancelled.
func (h *Harvester) Run(ctx context.Context) (*Table, error) {
	start := time.Now()
	table := NewTable()

	h.logger.Info("harvest starting",
		"source", h.src.Name(),
		"book", h.opts.Book,
		"max_pages", h.opts.MaxPages,
	)

	var err error
	page := 1
	for ; ; page++ {
		if err = ctx.Err(); err != nil {
			break
		}

		table, err = h.processPage(ctx, page, table)
		if err != nil {
			break
		}

		if h.opts.MaxPages > 0 && page >= h.opts.MaxPages {
			h.logger.Info("max pages reached", "pages", page)
			break
		}

		var more bool
		more, err = h.advance(ctx, page)
		if err != nil || !more {
			break
		}

		if err = h.sleep(ctx, h.opts.PolitenessDelay); err != nil {
			break
		}
	}

	logAttrs := []any{
		"pages", h.metrics.PagesProcessed.Load(),
		"records", table.Len(),
		"parse_failures", h.metrics.ParseFailures.Load(),
		"elapsed", time.Since(start).Round(time.Millisecond),
	}
	if err != nil {
		h.logger.Error("harvest stopped", append(logAttrs, "page", page, "error", err)...)
		return table, err
	}
	h.logger.Info("harvest complete", logAttrs...)
	return table, nil
}

// processPage harvests the current page and returns the table with its
// records appended.
func (h *Harvester) processPage(ctx context.Context, page int, table *Table) (*Table, error) {
	frags, err := h.src.Find(ctx, h.opts.ReviewSelector)
	if err != nil {
		return table, fmt.Errorf("page %d: find reviews: %w", page, err)
	}
	h.metrics.FragmentsFound.Add(int64(len(frags)))

	blocks := collector.Clean(frags)
	h.metrics.BlocksCleaned.Add(int64(len(blocks)))

	res, extractErr := h.ext.ExtractPage(page, blocks, h.opts.Book)
	h.metrics.RecordsExtracted.Add(int64(len(res.Records)))
	h.metrics.ParseFailures.Add(int64(len(res.Failures)))
	h.metrics.BlocksDropped.Add(int64(res.Dropped))

	for _, f := range res.Failures {
		h.logger.Warn("header not parsed",
			"page", f.Page,
			"pair", f.Pair,
			"block", types.Excerpt(f.Block, 80),
			"policy", h.ext.Policy(),
		)
	}
	if res.Dropped > 0 {
		h.logger.Warn("unpaired trailing block dropped", "page", page, "blocks", len(blocks))
	}

	records, filtered, err := h.pipeline.ProcessBatch(res.Records)
	h.metrics.RecordsFiltered.Add(int64(filtered))
	if err != nil {
		return table, fmt.Errorf("page %d: %w", page, err)
	}

	table.Append(records...)
	if h.sink != nil && len(records) > 0 {
		if err := h.sink.Append(records); err != nil {
			return table, fmt.Errorf("page %d: %w", page, err)
		}
		h.metrics.RecordsStored.Add(int64(len(records)))
	}
	h.metrics.PagesProcessed.Add(1)

	h.logger.Info("page harvested",
		"page", page,
		"fragments", len(frags),
		"records", len(records),
		"failures", len(res.Failures),
		"total", table.Len(),
	)

	if extractErr != nil {
		return table, extractErr
	}
	return table, nil
}

// advance moves the source to the next page, retrying failed attempts.
func (h *Harvester) advance(ctx context.Context, page int) (bool, error) {
	maxAttempts := h.opts.MaxRetries + 1
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	attempt := 1
	for ; attempt <= maxAttempts; attempt++ {
		more, err := h.src.AdvancePage(ctx)
		if err == nil {
			return more, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		lastErr = err
		if !retryable(err) || attempt == maxAttempts {
			break
		}

		delay := h.opts.RetryDelay
		var ferr *types.FetchError
		if errors.As(err, &ferr) && ferr.RetryAfter > delay {
			delay = ferr.RetryAfter
		}
		h.metrics.NavigationRetries.Add(1)
		h.logger.Warn("navigation failed, retrying",
			"page", page,
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)
		if err := h.sleep(ctx, delay); err != nil {
			return false, err
		}
	}

	return false, &types.NavigationError{Page: page, Attempts: min(attempt, maxAttempts), Err: lastErr}
}

func retryable(err error) bool {
	if errors.Is(err, types.ErrSourceClosed) || errors.Is(err, types.ErrInvalidSelector) {
		return false
	}
	var ferr *types.FetchError
	if errors.As(err, &ferr) {
		return ferr.IsRetryable()
	}
	return true
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
