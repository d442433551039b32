package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/IshaanNene/ReviewGoat/internal/types"
)

// --- CSV Sink ---

// CSVSink writes records as a delimited table with a leading 1-based row index.
type CSVSink struct {
	path   string
	file   *os.File
	writer *csv.Writer
	mu     sync.Mutex
	count  int
	logger *slog.Logger
}

// NewCSVSink creates the output file and writes the header row.
func NewCSVSink(outputPath string, logger *slog.Logger) (*CSVSink, error) {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return nil, &types.StorageError{Backend: "csv", Err: fmt.Errorf("create output dir: %w", err)}
	}

	f, err := os.Create(outputPath)
	if err != nil {
		return nil, &types.StorageError{Backend: "csv", Err: fmt.Errorf("create output file: %w", err)}
	}

	s := &CSVSink{
		path:   outputPath,
		file:   f,
		writer: csv.NewWriter(f),
		logger: logger.With("component", "csv_sink"),
	}

	header := append([]string{"row"}, types.Columns...)
	if err := s.writer.Write(header); err != nil {
		f.Close()
		return nil, &types.StorageError{Backend: "csv", Err: fmt.Errorf("write CSV header: %w", err)}
	}
	return s, nil
}

func (s *CSVSink) Name() string { return "csv" }

func (s *CSVSink) Append(batch []types.ReviewRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range batch {
		if err := s.writer.Write(rec.Row(s.count + 1)); err != nil {
			return &types.StorageError{Backend: "csv", Err: fmt.Errorf("write CSV row: %w", err)}
		}
		s.count++
	}

	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		return &types.StorageError{Backend: "csv", Err: err}
	}
	return nil
}

func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Info("CSV written", "path", s.path, "records", s.count)
	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		s.file.Close()
		return &types.StorageError{Backend: "csv", Err: err}
	}
	return s.file.Close()
}

// --- JSON Sink ---

// JSONSink buffers records and writes them as a JSON array on Close.
type JSONSink struct {
	path    string
	records []types.ReviewRecord
	mu      sync.Mutex
	logger  *slog.Logger
}

// NewJSONSink creates a new JSON file sink.
func NewJSONSink(outputPath string, logger *slog.Logger) (*JSONSink, error) {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return nil, &types.StorageError{Backend: "json", Err: fmt.Errorf("create output dir: %w", err)}
	}
	return &JSONSink{
		path:   outputPath,
		logger: logger.With("component", "json_sink"),
	}, nil
}

func (s *JSONSink) Name() string { return "json" }

func (s *JSONSink) Append(batch []types.ReviewRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, batch...)
	s.logger.Debug("records buffered", "count", len(batch), "total", len(s.records))
	return nil
}

func (s *JSONSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Create(s.path)
	if err != nil {
		return &types.StorageError{Backend: "json", Err: fmt.Errorf("create output file: %w", err)}
	}
	defer f.Close()

	out := make([]json.RawMessage, len(s.records))
	for i, rec := range s.records {
		b, err := rec.ToJSON(i + 1)
		if err != nil {
			return &types.StorageError{Backend: "json", Err: err}
		}
		out[i] = b
	}

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return &types.StorageError{Backend: "json", Err: fmt.Errorf("encode JSON: %w", err)}
	}

	s.logger.Info("JSON written", "path", s.path, "records", len(s.records))
	return nil
}

// --- JSONL Sink ---

// JSONLSink streams records as newline-delimited JSON (one object per line).
type JSONLSink struct {
	path   string
	file   *os.File
	mu     sync.Mutex
	count  int
	logger *slog.Logger
}

// NewJSONLSink creates a new JSONL file sink.
func NewJSONLSink(outputPath string, logger *slog.Logger) (*JSONLSink, error) {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return nil, &types.StorageError{Backend: "jsonl", Err: fmt.Errorf("create output dir: %w", err)}
	}

	f, err := os.Create(outputPath)
	if err != nil {
		return nil, &types.StorageError{Backend: "jsonl", Err: fmt.Errorf("create output file: %w", err)}
	}

	return &JSONLSink{
		path:   outputPath,
		file:   f,
		logger: logger.With("component", "jsonl_sink"),
	}, nil
}

func (s *JSONLSink) Name() string { return "jsonl" }

func (s *JSONLSink) Append(batch []types.ReviewRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range batch {
		b, err := rec.ToJSON(s.count + 1)
		if err != nil {
			return &types.StorageError{Backend: "jsonl", Err: err}
		}
		if _, err := s.file.Write(append(b, '\n')); err != nil {
			return &types.StorageError{Backend: "jsonl", Err: fmt.Errorf("write JSONL: %w", err)}
		}
		s.count++
	}
	return nil
}

func (s *JSONLSink) Close() error {
	s.logger.Info("JSONL written", "path", s.path, "records", s.count)
	return s.file.Close()
}

// --- Memory Sink ---

// MemorySink keeps appended records in memory.
type MemorySink struct {
	mu      sync.Mutex
	records []types.ReviewRecord
	batches int
	closed  bool
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink { return &MemorySink{} }

func (s *MemorySink) Name() string { return "memory" }

func (s *MemorySink) Append(batch []types.ReviewRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return &types.StorageError{Backend: "memory", Err: fmt.Errorf("append after close")}
	}
	s.records = append(s.records, batch...)
	s.batches++
	return nil
}

func (s *MemorySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Records returns a copy of everything appended so far.
func (s *MemorySink) Records() []types.ReviewRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.ReviewRecord(nil), s.records...)
}

// Batches returns how many Append calls were made.
func (s *MemorySink) Batches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.batches
}
