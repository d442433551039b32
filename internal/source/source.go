// Package source renders review pages and hands back the markup of matched elements.
package source

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/IshaanNene/ReviewGoat/internal/config"
	"github.com/IshaanNene/ReviewGoat/internal/types"
)

// PageSource yields the raw markup of the current page and moves through pagination.
type PageSource interface {
	// Find returns the outer markup of every element matching selector, in
	// document order. Selectors beginning with "/" or "(" are XPath, the rest CSS.
	Find(ctx context.Context, selector string) ([]types.RawFragment, error)

	// AdvancePage moves to the next page. It reports false, with a nil error,
	// when there is no further page.
	AdvancePage(ctx context.Context) (bool, error)

	// Close releases any resources held by the source.
	Close() error

	// Name returns the source type identifier.
	Name() string
}

// IsXPath reports whether a selector is an XPath expression.
func IsXPath(selector string) bool {
	s := strings.TrimSpace(selector)
	return strings.HasPrefix(s, "/") || strings.HasPrefix(s, "(")
}

// Open creates the PageSource named by cfg.Type and loads its first page.
func Open(ctx context.Context, cfg *config.SourceConfig, logger *slog.Logger) (PageSource, error) {
	switch cfg.Type {
	case "rod":
		return NewRodSource(ctx, cfg, logger)
	case "http":
		return NewHTTPSource(ctx, cfg, logger)
	case "file":
		return NewDirSource(cfg.Dir, cfg.NextSelector, logger)
	default:
		return nil, fmt.Errorf("unsupported source type: %s", cfg.Type)
	}
}
