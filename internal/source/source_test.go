package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/andybalholm/brotli"

	"github.com/IshaanNene/ReviewGoat/internal/config"
	"github.com/IshaanNene/ReviewGoat/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

const reviewSelector = "#bookReviews .reviewHeader, #bookReviews .reviewText"

func reviewPage(next string, reviewers ...string) string {
	var b strings.Builder
	b.WriteString(`<html><body><div id="bookReviews">`)
	for _, r := range reviewers {
		fmt.Fprintf(&b, `<div class="review"><div class="reviewHeader"><a>%s</a> rated it <span>liked it</span></div>`, r)
		fmt.Fprintf(&b, `<div class="reviewText"><span>Review by %s.</span></div></div>`, r)
	}
	b.WriteString(`</div><div class="pager">`)
	if next != "" {
		fmt.Fprintf(&b, `<a class="next_page" href="%s">next »</a>`, next)
	} else {
		b.WriteString(`<span class="next_page disabled">next »</span>`)
	}
	b.WriteString(`</div></body></html>`)
	return b.String()
}

func TestIsXPath(t *testing.T) {
	tests := []struct {
		selector string
		expected bool
	}{
		{"//div[@class='reviewText']", true},
		{"(//a)[1]", true},
		{" /html/body", true},
		{"div.reviewText", false},
		{"#bookReviews .reviewHeader", false},
	}
	for _, tt := range tests {
		if got := IsXPath(tt.selector); got != tt.expected {
			t.Errorf("IsXPath(%q): expected %v, got %v", tt.selector, tt.expected, got)
		}
	}
}

func TestDocumentFindCSSKeepsDocumentOrder(t *testing.T) {
	src, err := NewDocumentSource("", testLogger, reviewPage("", "Ann", "Bob"))
	if err != nil {
		t.Fatalf("new source: %v", err)
	}

	frags, err := src.Find(context.Background(), reviewSelector)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(frags) != 4 {
		t.Fatalf("expected 4 fragments, got %d", len(frags))
	}
	wantPrefixes := []string{`<div class="reviewHeader">`, `<div class="reviewText">`, `<div class="reviewHeader">`, `<div class="reviewText">`}
	for i, p := range wantPrefixes {
		if !strings.HasPrefix(string(frags[i]), p) {
			t.Errorf("fragment %d: expected prefix %q, got %q", i, p, frags[i])
		}
	}
	if !strings.Contains(string(frags[2]), "Bob") {
		t.Errorf("expected third fragment to belong to Bob, got %q", frags[2])
	}
}

func TestDocumentFindXPath(t *testing.T) {
	src, err := NewDocumentSource("", testLogger, reviewPage("", "Ann", "Bob"))
	if err != nil {
		t.Fatalf("new source: %v", err)
	}

	frags, err := src.Find(context.Background(), "//div[@class='reviewText']")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(frags) != 2 {
		t.Fatalf("expected 2 fragments, got %d", len(frags))
	}
	if !strings.Contains(string(frags[1]), "Review by Bob") {
		t.Errorf("unexpected fragment: %q", frags[1])
	}

	_, err = src.Find(context.Background(), "//div[")
	if !errors.Is(err, types.ErrInvalidSelector) {
		t.Errorf("expected ErrInvalidSelector, got %v", err)
	}
}

func TestDocumentNextHref(t *testing.T) {
	tests := []struct {
		name     string
		page     string
		selector string
		want     string
		ok       bool
	}{
		{"relative link", reviewPage("/book/show/1?page=2", "Ann"), ".next_page", "file:///book/show/1?page=2", true},
		{"disabled span", reviewPage("", "Ann"), ".next_page", "", false},
		{"missing control", `<html><body></body></html>`, "a.next_page", "", false},
		{"javascript link", `<a class="next_page" href="javascript:void(0)">next</a>`, "a.next_page", "", false},
		{"xpath", reviewPage("?page=3", "Ann"), "//a[@class='next_page']", "file:///page-1?page=3", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := NewDocumentSource("", testLogger, tt.page)
			if err != nil {
				t.Fatalf("new source: %v", err)
			}
			got, ok, err := src.pages[0].nextHref(tt.selector)
			if err != nil {
				t.Fatalf("next href: %v", err)
			}
			if ok != tt.ok || got != tt.want {
				t.Errorf("expected (%q, %v), got (%q, %v)", tt.want, tt.ok, got, ok)
			}
		})
	}
}

func TestDocumentSourceAdvance(t *testing.T) {
	src, err := NewDocumentSource("",
		testLogger,
		reviewPage("?page=2", "Ann"),
		reviewPage("?page=3", "Bob"),
		reviewPage("", "Cid"),
	)
	if err != nil {
		t.Fatalf("new source: %v", err)
	}
	ctx := context.Background()

	var seen []string
	for {
		frags, err := src.Find(ctx, "//div[@class='reviewHeader']/a")
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		seen = append(seen, string(frags[0]))
		more, err := src.AdvancePage(ctx)
		if err != nil {
			t.Fatalf("advance: %v", err)
		}
		if !more {
			break
		}
	}

	want := []string{"<a>Ann</a>", "<a>Bob</a>", "<a>Cid</a>"}
	if strings.Join(seen, ",") != strings.Join(want, ",") {
		t.Errorf("expected %v, got %v", want, seen)
	}

	src.Close()
	if _, err := src.Find(ctx, "a"); !errors.Is(err, types.ErrSourceClosed) {
		t.Errorf("expected ErrSourceClosed after close, got %v", err)
	}
}

func TestDocumentSourceStopsAtDisabledNext(t *testing.T) {
	src, err := NewDocumentSource(".next_page", testLogger,
		reviewPage("", "Ann"),
		reviewPage("", "Bob"),
	)
	if err != nil {
		t.Fatalf("new source: %v", err)
	}
	more, err := src.AdvancePage(context.Background())
	if err != nil || more {
		t.Errorf("expected no further page, got (%v, %v)", more, err)
	}
}

func TestNewDirSource(t *testing.T) {
	dir := t.TempDir()
	pages := map[string]string{
		"02.html":   reviewPage("", "Bob"),
		"01.html":   reviewPage("?page=2", "Ann"),
		"notes.txt": "ignored",
	}
	for name, body := range pages {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	src, err := NewDirSource(dir, "", testLogger)
	if err != nil {
		t.Fatalf("new dir source: %v", err)
	}
	if len(src.pages) != 2 {
		t.Fatalf("expected 2 pages, got %d", len(src.pages))
	}
	if src.Current() != "01.html" {
		t.Errorf("expected lexical order, first page %q", src.Current())
	}

	if _, err := NewDirSource(t.TempDir(), "", testLogger); err == nil {
		t.Error("expected error for empty directory")
	}
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/book", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("page") {
		case "", "1":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			fmt.Fprint(w, reviewPage("/book?page=2", "Ann", "Bob"))
		case "2":
			var buf bytes.Buffer
			bw := brotli.NewWriter(&buf)
			bw.Write([]byte(reviewPage("", "Cid")))
			bw.Close()
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.Header().Set("Content-Encoding", "br")
			w.Write(buf.Bytes())
		}
	})
	mux.HandleFunc("/latin1", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=iso-8859-1")
		w.Write([]byte("<html><body><div class=\"reviewText\">Caf\xe9</div></body></html>"))
	})
	mux.HandleFunc("/broken", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	mux.HandleFunc("/gone", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func httpConfig(url string) *config.SourceConfig {
	cfg := config.DefaultConfig().Source
	cfg.Type = "http"
	cfg.URL = url
	cfg.RequestTimeout = 5 * time.Second
	return &cfg
}

func TestHTTPSourcePaginates(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	src, err := NewHTTPSource(ctx, httpConfig(srv.URL+"/book"), testLogger)
	if err != nil {
		t.Fatalf("new http source: %v", err)
	}
	defer src.Close()

	frags, err := src.Find(ctx, reviewSelector)
	if err != nil {
		t.Fatalf("find page 1: %v", err)
	}
	if len(frags) != 4 {
		t.Fatalf("expected 4 fragments on page 1, got %d", len(frags))
	}

	more, err := src.AdvancePage(ctx)
	if err != nil || !more {
		t.Fatalf("expected page 2, got (%v, %v)", more, err)
	}
	frags, err = src.Find(ctx, reviewSelector)
	if err != nil {
		t.Fatalf("find page 2: %v", err)
	}
	if len(frags) != 2 || !strings.Contains(string(frags[0]), "Cid") {
		t.Fatalf("unexpected page 2 fragments: %v", frags)
	}

	more, err = src.AdvancePage(ctx)
	if err != nil || more {
		t.Errorf("expected end of pagination, got (%v, %v)", more, err)
	}
}

func TestHTTPSourceDecodesCharset(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	src, err := NewHTTPSource(ctx, httpConfig(srv.URL+"/latin1"), testLogger)
	if err != nil {
		t.Fatalf("new http source: %v", err)
	}
	frags, err := src.Find(ctx, ".reviewText")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(frags) != 1 || !strings.Contains(string(frags[0]), "Café") {
		t.Errorf("expected decoded text, got %v", frags)
	}
}

func TestHTTPSourceErrors(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		path      string
		status    int
		retryable bool
	}{
		{"/broken", http.StatusInternalServerError, true},
		{"/gone", http.StatusNotFound, false},
	}

	for _, tt := range tests {
		_, err := NewHTTPSource(context.Background(), httpConfig(srv.URL+tt.path), testLogger)
		var ferr *types.FetchError
		if !errors.As(err, &ferr) {
			t.Fatalf("%s: expected FetchError, got %v", tt.path, err)
		}
		if ferr.StatusCode != tt.status {
			t.Errorf("%s: expected status %d, got %d", tt.path, tt.status, ferr.StatusCode)
		}
		if ferr.IsRetryable() != tt.retryable {
			t.Errorf("%s: expected retryable=%v", tt.path, tt.retryable)
		}
	}
}

func TestHTTPSourceLimitsDecodedBody(t *testing.T) {
	names := make([]string, 300)
	for i := range names {
		names[i] = fmt.Sprintf("Reader%03d", i)
	}
	var buf bytes.Buffer
	bw := brotli.NewWriter(&buf)
	bw.Write([]byte(reviewPage("", names...)))
	bw.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Content-Encoding", "br")
		w.Write(buf.Bytes())
	}))
	defer srv.Close()

	cfg := httpConfig(srv.URL)
	cfg.MaxBodySize = 4096
	if int64(buf.Len()) >= cfg.MaxBodySize {
		t.Fatalf("compressed page should fit the limit, got %d bytes", buf.Len())
	}

	src, err := NewHTTPSource(context.Background(), cfg, testLogger)
	if err != nil {
		t.Fatalf("new http source: %v", err)
	}
	frags, err := src.Find(context.Background(), reviewSelector)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(frags) == 0 || len(frags) >= 2*len(names) {
		t.Errorf("expected the decoded page to be cut at %d bytes, got %d fragments", cfg.MaxBodySize, len(frags))
	}
}

func TestRodSourceCloseIsIdempotent(t *testing.T) {
	var s RodSource
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		header   string
		expected time.Duration
	}{
		{"", 5 * time.Second},
		{"3", 3 * time.Second},
		{"600", 120 * time.Second},
		{"garbage", 5 * time.Second},
	}
	for _, tt := range tests {
		if got := parseRetryAfter(tt.header); got != tt.expected {
			t.Errorf("parseRetryAfter(%q): expected %s, got %s", tt.header, tt.expected, got)
		}
	}
}
