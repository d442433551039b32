package observability

import (
	"log/slog"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func TestServeHTTP(t *testing.T) {
	m := NewMetrics(testLogger)
	m.PagesProcessed.Add(2)
	m.RecordsStored.Add(17)

	rec := httptest.NewRecorder()
	m.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	for _, want := range []string{
		"# TYPE reviewgoat_pages_processed_total counter",
		"reviewgoat_pages_processed_total 2\n",
		"reviewgoat_records_stored_total 17\n",
		"reviewgoat_parse_failures_total 0\n",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %q in output:\n%s", want, body)
		}
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("unexpected content type %q", ct)
	}
}

func TestSnapshot(t *testing.T) {
	m := NewMetrics(testLogger)
	m.ParseFailures.Add(1)
	m.BlocksDropped.Add(3)

	snap := m.Snapshot()
	if snap["parse_failures"] != 1 || snap["blocks_dropped"] != 3 || snap["records_extracted"] != 0 {
		t.Errorf("unexpected snapshot: %v", snap)
	}
	if len(snap) != len(m.collect()) {
		t.Errorf("snapshot and exposition should cover the same counters: %d vs %d", len(snap), len(m.collect()))
	}
}
