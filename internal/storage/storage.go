package storage

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/IshaanNene/ReviewGoat/internal/config"
	"github.com/IshaanNene/ReviewGoat/internal/types"
)

// Sink is the interface for all record sinks. Records are appended in batches
// and kept in insertion order.
type Sink interface {
	// Append persists a batch of records after those already appended.
	Append(batch []types.ReviewRecord) error

	// Close flushes pending writes and releases resources.
	Close() error

	// Name returns the sink backend identifier.
	Name() string
}

// NewFileSink creates the appropriate file-based sink by type. outputDir is a
// directory; the file is named reviews.<type>.
func NewFileSink(sinkType, outputDir string, logger *slog.Logger) (Sink, error) {
	switch sinkType {
	case "json":
		return NewJSONSink(filepath.Join(outputDir, "reviews.json"), logger)
	case "jsonl":
		return NewJSONLSink(filepath.Join(outputDir, "reviews.jsonl"), logger)
	case "csv":
		return NewCSVSink(filepath.Join(outputDir, "reviews.csv"), logger)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", sinkType)
	}
}

// Open creates the sink named by cfg.Type. A comma-separated list such as
// "csv,mongodb" fans out to every named backend.
func Open(cfg *config.StorageConfig, logger *slog.Logger) (Sink, error) {
	kinds := config.StorageTypes(cfg.Type)
	if len(kinds) == 0 {
		return nil, fmt.Errorf("no storage type configured")
	}
	if len(kinds) == 1 {
		return openOne(kinds[0], cfg, logger)
	}

	backends := make([]Sink, 0, len(kinds))
	for _, kind := range kinds {
		s, err := openOne(kind, cfg, logger)
		if err != nil {
			for _, b := range backends {
				_ = b.Close()
			}
			return nil, err
		}
		backends = append(backends, s)
	}
	return NewMultiSink(backends, logger), nil
}

func openOne(kind string, cfg *config.StorageConfig, logger *slog.Logger) (Sink, error) {
	if kind == "mongodb" {
		return NewMongoSink(cfg.Mongo.URI, cfg.Mongo.Database, cfg.Mongo.Collection, logger)
	}
	return NewFileSink(kind, cfg.OutputPath, logger)
}
