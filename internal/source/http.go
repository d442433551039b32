package source

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/andybalholm/brotli"
	"golang.org/x/net/html/charset"

	"github.com/IshaanNene/ReviewGoat/internal/config"
	"github.com/IshaanNene/ReviewGoat/internal/types"
)

// HTTPSource loads server-rendered review pages and follows the next-page link.
type HTTPSource struct {
	client  *http.Client
	cfg     *config.SourceConfig
	logger  *slog.Logger
	current *document
	closed  bool
}

// NewHTTPSource creates an HTTP page source and fetches cfg.URL.
func NewHTTPSource(ctx context.Context, cfg *config.SourceConfig, logger *slog.Logger) (*HTTPSource, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		DisableCompression:  true, // We handle decompression ourselves (including brotli)
	}

	s := &HTTPSource{
		client: &http.Client{
			Transport: transport,
			Jar:       jar,
			Timeout:   cfg.RequestTimeout,
		},
		cfg:    cfg,
		logger: logger.With("component", "http_source"),
	}

	doc, err := s.load(ctx, cfg.URL)
	if err != nil {
		return nil, err
	}
	s.current = doc
	return s, nil
}

func (s *HTTPSource) Name() string { return "http" }

// Find implements PageSource.
func (s *HTTPSource) Find(_ context.Context, selector string) ([]types.RawFragment, error) {
	if s.closed {
		return nil, types.ErrSourceClosed
	}
	return s.current.find(selector)
}

// AdvancePage follows the href of the next-page control.
func (s *HTTPSource) AdvancePage(ctx context.Context) (bool, error) {
	if s.closed {
		return false, types.ErrSourceClosed
	}
	if s.cfg.NextSelector == "" {
		return false, nil
	}

	next, ok, err := s.current.nextHref(s.cfg.NextSelector)
	if err != nil || !ok {
		return false, err
	}
	if s.current.url != nil && next == s.current.url.String() {
		s.logger.Debug("next link points at current page", "url", next)
		return false, nil
	}

	doc, err := s.load(ctx, next)
	if err != nil {
		return false, err
	}
	s.current = doc
	return true, nil
}

// Close releases idle connections.
func (s *HTTPSource) Close() error {
	s.closed = true
	s.client.CloseIdleConnections()
	return nil
}

func (s *HTTPSource) load(ctx context.Context, rawURL string) (*document, error) {
	target, err := url.Parse(rawURL)
	if err != nil {
		return nil, &types.FetchError{URL: rawURL, Err: err, Retryable: false}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &types.FetchError{URL: rawURL, Err: err, Retryable: false}
	}
	ua := s.cfg.UserAgent
	if ua == "" {
		ua = "ReviewGoat/" + config.Version
	}
	httpReq.Header.Set("User-Agent", ua)
	httpReq.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	httpReq.Header.Set("Accept-Language", "en-US,en;q=0.9")
	httpReq.Header.Set("Accept-Encoding", "gzip, deflate, br")

	start := time.Now()
	httpResp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, &types.FetchError{URL: rawURL, Err: err, Retryable: isRetryableError(err)}
	}
	defer httpResp.Body.Close()

	// 429 carries the server's Retry-After
	if httpResp.StatusCode == http.StatusTooManyRequests {
		retryAfter := parseRetryAfter(httpResp.Header.Get("Retry-After"))
		return nil, &types.FetchError{
			URL:        rawURL,
			StatusCode: httpResp.StatusCode,
			Err:        fmt.Errorf("HTTP 429: rate limited (retry after %s)", retryAfter),
			Retryable:  true,
			RetryAfter: retryAfter,
		}
	}
	if httpResp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(httpResp.Body, 512))
		return nil, &types.FetchError{
			URL:        rawURL,
			StatusCode: httpResp.StatusCode,
			Err:        fmt.Errorf("HTTP %d: %s", httpResp.StatusCode, strings.TrimSpace(string(body))),
			Retryable:  httpResp.StatusCode >= 500,
		}
	}

	reader, err := decompressReader(httpResp, httpResp.Body)
	if err != nil {
		return nil, &types.FetchError{URL: rawURL, Err: err, Retryable: false}
	}
	// The limit applies to the decoded document, not the wire size.
	if s.cfg.MaxBodySize > 0 {
		reader = io.LimitReader(reader, s.cfg.MaxBodySize)
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, &types.FetchError{URL: rawURL, Err: err, Retryable: true}
	}
	if len(body) == 0 {
		return nil, &types.FetchError{URL: rawURL, StatusCode: httpResp.StatusCode, Err: types.ErrEmptyResponse}
	}

	utf8Reader, err := charset.NewReader(bytes.NewReader(body), httpResp.Header.Get("Content-Type"))
	if err != nil {
		return nil, &types.FetchError{URL: rawURL, Err: fmt.Errorf("decode charset: %w", err)}
	}

	// Use the post-redirect URL so relative next links resolve correctly.
	if httpResp.Request != nil && httpResp.Request.URL != nil {
		target = httpResp.Request.URL
	}
	doc, err := parseDocument(utf8Reader, target)
	if err != nil {
		return nil, &types.FetchError{URL: rawURL, Err: err}
	}

	s.logger.Debug("page loaded",
		"url", target.String(),
		"status", httpResp.StatusCode,
		"size", len(body),
		"duration", time.Since(start),
	)
	return doc, nil
}

// decompressReader wraps a reader with the appropriate decompressor.
// Handles gzip, deflate, and brotli (br) encodings.
func decompressReader(resp *http.Response, reader io.Reader) (io.Reader, error) {
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		return gzip.NewReader(reader)
	case "deflate":
		return flate.NewReader(reader), nil
	case "br":
		return brotli.NewReader(reader), nil
	default:
		return reader, nil
	}
}

// isRetryableError checks if a network error warrants a retry.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	// Context cancellation is NOT retryable
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if errors.Is(opErr.Err, syscall.ECONNRESET) ||
			errors.Is(opErr.Err, syscall.ECONNREFUSED) {
			return true
		}
	}
	return false
}

// parseRetryAfter parses the Retry-After header value.
// Supports both integer seconds and HTTP-date formats.
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 5 * time.Second // default back-off
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(header)); err == nil {
		if secs > 120 {
			secs = 120 // cap at 2 minutes
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(header); err == nil {
		d := time.Until(t)
		if d < 0 {
			return time.Second
		}
		if d > 2*time.Minute {
			return 2 * time.Minute
		}
		return d
	}
	return 5 * time.Second
}
