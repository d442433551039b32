package source

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/IshaanNene/ReviewGoat/internal/types"
)

// DocumentSource serves a fixed, ordered list of saved pages. Pagination
// moves to the next page in the list; when nextSelector is set, it also stops
// as soon as the current page has no usable next control.
type DocumentSource struct {
	pages        []*document
	names        []string
	nextSelector string
	idx          int
	logger       *slog.Logger
	closed       bool
}

// NewDocumentSource builds a source from in-memory HTML pages.
func NewDocumentSource(nextSelector string, logger *slog.Logger, pages ...string) (*DocumentSource, error) {
	s := &DocumentSource{
		nextSelector: nextSelector,
		logger:       logger.With("component", "document_source"),
	}
	for i, p := range pages {
		name := fmt.Sprintf("page-%d", i+1)
		doc, err := parseDocument(strings.NewReader(p), &url.URL{Scheme: "file", Path: "/" + name})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		s.pages = append(s.pages, doc)
		s.names = append(s.names, name)
	}
	if len(s.pages) == 0 {
		return nil, fmt.Errorf("document source needs at least one page")
	}
	return s, nil
}

// NewDirSource loads every .html/.htm file in dir, in lexical filename order.
func NewDirSource(dir, nextSelector string, logger *slog.Logger) (*DocumentSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read page dir: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".html", ".htm":
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	if len(files) == 0 {
		return nil, fmt.Errorf("no .html pages in %s", dir)
	}

	s := &DocumentSource{
		nextSelector: nextSelector,
		logger:       logger.With("component", "document_source"),
	}
	for _, name := range files {
		path := filepath.Join(dir, name)
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open page: %w", err)
		}
		abs, _ := filepath.Abs(path)
		doc, err := parseDocument(f, &url.URL{Scheme: "file", Path: filepath.ToSlash(abs)})
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		s.pages = append(s.pages, doc)
		s.names = append(s.names, name)
	}

	s.logger.Info("pages loaded", "dir", dir, "count", len(s.pages))
	return s, nil
}

func (s *DocumentSource) Name() string { return "file" }

// Find implements PageSource.
func (s *DocumentSource) Find(_ context.Context, selector string) ([]types.RawFragment, error) {
	if s.closed {
		return nil, types.ErrSourceClosed
	}
	return s.pages[s.idx].find(selector)
}

// AdvancePage implements PageSource.
func (s *DocumentSource) AdvancePage(ctx context.Context) (bool, error) {
	if s.closed {
		return false, types.ErrSourceClosed
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if s.idx+1 >= len(s.pages) {
		return false, nil
	}
	if s.nextSelector != "" {
		_, ok, err := s.pages[s.idx].nextHref(s.nextSelector)
		if err != nil || !ok {
			return false, err
		}
	}
	s.idx++
	s.logger.Debug("advanced", "page", s.names[s.idx])
	return true, nil
}

// Current returns the name of the page being served.
func (s *DocumentSource) Current() string { return s.names[s.idx] }

// Close implements PageSource.
func (s *DocumentSource) Close() error {
	s.closed = true
	return nil
}
