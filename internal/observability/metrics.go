package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"
)

// Metrics tracks counters for a harvest run.
type Metrics struct {
	// Source metrics
	PagesProcessed    atomic.Int64
	NavigationRetries atomic.Int64
	FragmentsFound    atomic.Int64

	// Extraction metrics
	BlocksCleaned    atomic.Int64
	BlocksDropped    atomic.Int64
	RecordsExtracted atomic.Int64
	ParseFailures    atomic.Int64

	// Sink metrics
	RecordsFiltered atomic.Int64
	RecordsStored   atomic.Int64

	logger *slog.Logger
}

// NewMetrics creates a new Metrics instance.
func NewMetrics(logger *slog.Logger) *Metrics {
	return &Metrics{
		logger: logger.With("component", "metrics"),
	}
}

type metric struct {
	name  string
	help  string
	value int64
}

func (m *Metrics) collect() []metric {
	return []metric{
		{"reviewgoat_pages_processed_total", "Total pages processed", m.PagesProcessed.Load()},
		{"reviewgoat_navigation_retries_total", "Total page navigation retries", m.NavigationRetries.Load()},
		{"reviewgoat_fragments_found_total", "Total fragments matched on pages", m.FragmentsFound.Load()},
		{"reviewgoat_blocks_cleaned_total", "Total text blocks produced", m.BlocksCleaned.Load()},
		{"reviewgoat_blocks_dropped_total", "Total unpaired trailing blocks", m.BlocksDropped.Load()},
		{"reviewgoat_records_extracted_total", "Total review records extracted", m.RecordsExtracted.Load()},
		{"reviewgoat_parse_failures_total", "Total header blocks that failed to parse", m.ParseFailures.Load()},
		{"reviewgoat_records_filtered_total", "Total records dropped by the pipeline", m.RecordsFiltered.Load()},
		{"reviewgoat_records_stored_total", "Total records written to the sink", m.RecordsStored.Load()},
	}
}

// ServeHTTP serves metrics in Prometheus text exposition format.
func (m *Metrics) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	for _, metric := range m.collect() {
		fmt.Fprintf(w, "# HELP %s %s\n", metric.name, metric.help)
		fmt.Fprintf(w, "# TYPE %s counter\n", metric.name)
		fmt.Fprintf(w, "%s %d\n", metric.name, metric.value)
	}
}

// StartServer starts the metrics HTTP server. The server shuts down when ctx
// is cancelled.
func (m *Metrics) StartServer(ctx context.Context, port int, path string) error {
	mux := http.NewServeMux()
	mux.Handle(path, m)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	m.logger.Info("metrics server starting", "addr", srv.Addr, "path", path)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error("metrics server error", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	return nil
}

// Snapshot returns all metrics as a map keyed by short name.
func (m *Metrics) Snapshot() map[string]int64 {
	return map[string]int64{
		"pages_processed":    m.PagesProcessed.Load(),
		"navigation_retries": m.NavigationRetries.Load(),
		"fragments_found":    m.FragmentsFound.Load(),
		"blocks_cleaned":     m.BlocksCleaned.Load(),
		"blocks_dropped":     m.BlocksDropped.Load(),
		"records_extracted":  m.RecordsExtracted.Load(),
		"parse_failures":     m.ParseFailures.Load(),
		"records_filtered":   m.RecordsFiltered.Load(),
		"records_stored":     m.RecordsStored.Load(),
	}
}
