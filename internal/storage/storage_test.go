package storage

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/IshaanNene/ReviewGoat/internal/config"
	"github.com/IshaanNene/ReviewGoat/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

var sample = []types.ReviewRecord{
	{Book: "Dune", Reviewer: "Jane Doe", Rating: "it was amazing", Review: "Loved it, truly"},
	{Book: "Dune", Reviewer: "Bob", Rating: "as to-read", Review: ""},
	{Book: "Dune", Reviewer: "Ann-Marie", Rating: "liked it", Review: "Quote \"this\" line"},
}

func TestCSVSink(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileSink("csv", dir, testLogger)
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}
	if err := s.Append(sample[:2]); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.Append(sample[2:]); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	f, err := os.Open(filepath.Join(dir, "reviews.csv"))
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}

	if len(rows) != 4 {
		t.Fatalf("expected header + 3 rows, got %d", len(rows))
	}
	header := []string{"row", "book", "reviewer", "rating", "review"}
	for i, h := range header {
		if rows[0][i] != h {
			t.Errorf("header column %d: expected %q, got %q", i, h, rows[0][i])
		}
	}
	if rows[3][0] != "3" || rows[3][2] != "Ann-Marie" || rows[3][4] != `Quote "this" line` {
		t.Errorf("unexpected last row: %v", rows[3])
	}
	if rows[1][0] != "1" || rows[2][0] != "2" {
		t.Errorf("row index should continue across batches: %v %v", rows[1], rows[2])
	}
}

func TestJSONLSink(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileSink("jsonl", dir, testLogger)
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}
	if err := s.Append(sample); err != nil {
		t.Fatalf("append: %v", err)
	}
	s.Close()

	f, err := os.Open(filepath.Join(dir, "reviews.jsonl"))
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer f.Close()

	var lines []map[string]any
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var m map[string]any
		if err := json.Unmarshal(sc.Bytes(), &m); err != nil {
			t.Fatalf("decode line: %v", err)
		}
		lines = append(lines, m)
	}
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	if lines[1]["row"] != float64(2) || lines[1]["rating"] != "as to-read" {
		t.Errorf("unexpected second line: %v", lines[1])
	}
}

func TestJSONSink(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileSink("json", dir, testLogger)
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}
	s.Append(sample[:1])
	s.Append(sample[1:])
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "reviews.json"))
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	var out []struct {
		Row int `json:"row"`
		types.ReviewRecord
	}
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != 3 || out[2].Row != 3 || out[2].Reviewer != "Ann-Marie" {
		t.Errorf("unexpected JSON output: %+v", out)
	}
}

func TestNewFileSinkUnknownType(t *testing.T) {
	if _, err := NewFileSink("xml", t.TempDir(), testLogger); err == nil {
		t.Error("expected error for unsupported type")
	}
}

func TestMemorySink(t *testing.T) {
	s := NewMemorySink()
	s.Append(sample[:1])
	s.Append(sample[1:])

	if got := len(s.Records()); got != 3 {
		t.Errorf("expected 3 records, got %d", got)
	}
	if s.Batches() != 2 {
		t.Errorf("expected 2 batches, got %d", s.Batches())
	}

	s.Close()
	var serr *types.StorageError
	if err := s.Append(sample); !errors.As(err, &serr) {
		t.Errorf("expected StorageError after close, got %v", err)
	}
}

type failingSink struct{ MemorySink }

func (f *failingSink) Name() string { return "failing" }

func (f *failingSink) Append([]types.ReviewRecord) error {
	return &types.StorageError{Backend: "failing", Err: errors.New("disk full")}
}

func TestMultiSinkFanOut(t *testing.T) {
	a, b := NewMemorySink(), NewMemorySink()
	m := NewMultiSink([]Sink{a, &failingSink{}, b}, testLogger)

	err := m.Append(sample)
	if err == nil {
		t.Fatal("expected first backend error to surface")
	}
	if len(a.Records()) != 3 || len(b.Records()) != 3 {
		t.Errorf("healthy backends should still receive records: %d, %d", len(a.Records()), len(b.Records()))
	}
	if err := m.Close(); err != nil {
		t.Errorf("close: %v", err)
	}
}

func TestRecordDocuments(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	docs := recordDocuments(sample, 11, now)

	if len(docs) != 3 {
		t.Fatalf("expected 3 documents, got %d", len(docs))
	}
	d, ok := docs[2].(bson.D)
	if !ok {
		t.Fatalf("expected bson.D, got %T", docs[2])
	}
	m := d.Map()
	if m["row"] != 13 || m["reviewer"] != "Ann-Marie" || m["book"] != "Dune" {
		t.Errorf("unexpected document: %v", d)
	}
}

func TestInsertedCount(t *testing.T) {
	writeErr := func(idx ...int) mongo.BulkWriteException {
		var bwe mongo.BulkWriteException
		for _, i := range idx {
			bwe.WriteErrors = append(bwe.WriteErrors, mongo.BulkWriteError{WriteError: mongo.WriteError{Index: i, Code: 11000}})
		}
		return bwe
	}

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"stopped at third document", writeErr(2), 2},
		{"first document failed", writeErr(0), 0},
		{"lowest index wins", writeErr(3, 1), 1},
		{"write concern only", mongo.BulkWriteException{WriteConcernError: &mongo.WriteConcernError{Code: 64}}, 5},
		{"wrapped", fmt.Errorf("insert: %w", writeErr(4)), 4},
		{"network failure", errors.New("connection reset"), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := insertedCount(tt.err, 5); got != tt.want {
				t.Errorf("insertedCount = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestOpenFansOutOverStorageList(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.StorageConfig{Type: "csv,jsonl", OutputPath: dir}

	s, err := Open(cfg, testLogger)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, ok := s.(*MultiSink); !ok {
		t.Fatalf("expected *MultiSink for a storage list, got %T", s)
	}
	if err := s.Append(sample); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	for _, name := range []string{"reviews.csv", "reviews.jsonl"} {
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil {
			t.Errorf("expected %s: %v", name, err)
			continue
		}
		if info.Size() == 0 {
			t.Errorf("%s is empty", name)
		}
	}
}

func TestOpenSingleType(t *testing.T) {
	s, err := Open(&config.StorageConfig{Type: "jsonl", OutputPath: t.TempDir()}, testLogger)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()
	if s.Name() != "jsonl" {
		t.Errorf("expected jsonl sink, got %s", s.Name())
	}

	if _, err := Open(&config.StorageConfig{Type: "csv,xml", OutputPath: t.TempDir()}, testLogger); err == nil {
		t.Error("expected error for unsupported type in list")
	}
}
