package types

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common failure modes.
var (
	ErrNoSeparator     = errors.New("no reviewer/rating separator in block")
	ErrSourceClosed    = errors.New("page source is closed")
	ErrInvalidSelector = errors.New("invalid selector")
	ErrEmptyResponse   = errors.New("empty response body")
)

// FetchError wraps errors that occur while loading a page.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
	Retryable  bool
	RetryAfter time.Duration // populated from Retry-After header on HTTP 429
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch error for %s (status %d): %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch error for %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) IsRetryable() bool { return e.Retryable }

// ParseError reports a review pair that could not be split into fields.
type ParseError struct {
	Page  int
	Pair  int // 1-based pair index within the page
	Block TextBlock
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error on page %d pair %d (block=%q): %v", e.Page, e.Pair, Excerpt(e.Block, 60), e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// NavigationError is returned when advancing to the next page keeps failing.
type NavigationError struct {
	Page     int
	Attempts int
	Err      error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("navigation from page %d failed after %d attempts: %v", e.Page, e.Attempts, e.Err)
}

func (e *NavigationError) Unwrap() error { return e.Err }

// StorageError wraps errors that occur during storage/export.
type StorageError struct {
	Backend string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error (%s): %v", e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// PipelineError wraps errors that occur in the record pipeline.
type PipelineError struct {
	Stage  string
	Record *ReviewRecord
	Err    error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline error at stage %q: %v", e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// Excerpt shortens a block to at most n runes for log output.
func Excerpt(b TextBlock, n int) string {
	r := []rune(string(b))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n]) + "..."
}
