package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/IshaanNene/ReviewGoat/internal/extract"
)

// Validate checks the configuration for invalid values.
func Validate(cfg *Config) error {
	switch cfg.Source.Type {
	case "rod", "http":
		if err := ValidateURL(cfg.Source.URL); err != nil {
			return fmt.Errorf("source.url: %w", err)
		}
	case "file":
		if cfg.Source.Dir == "" {
			return fmt.Errorf("source.dir is required when source.type is 'file'")
		}
	default:
		return fmt.Errorf("source.type must be 'rod', 'http' or 'file', got %q", cfg.Source.Type)
	}
	if cfg.Source.ReviewSelector == "" {
		return fmt.Errorf("source.review_selector must not be empty")
	}
	if cfg.Source.MaxPages < 0 {
		return fmt.Errorf("source.max_pages must be >= 0, got %d", cfg.Source.MaxPages)
	}
	if cfg.Source.RequestTimeout <= 0 {
		return fmt.Errorf("source.request_timeout must be > 0")
	}
	if cfg.Source.MaxBodySize <= 0 {
		return fmt.Errorf("source.max_body_size must be > 0")
	}

	if cfg.Harvest.Book == "" {
		return fmt.Errorf("harvest.book must not be empty")
	}
	if cfg.Harvest.PolitenessDelay < 0 {
		return fmt.Errorf("harvest.politeness_delay must be >= 0")
	}
	if cfg.Harvest.MaxRetries < 0 {
		return fmt.Errorf("harvest.max_retries must be >= 0, got %d", cfg.Harvest.MaxRetries)
	}
	if _, err := extract.ParsePolicy(cfg.Harvest.OnParseFailure); err != nil {
		return fmt.Errorf("harvest.on_parse_failure: %w", err)
	}

	if len(cfg.Extract.Separators) == 0 {
		return fmt.Errorf("extract.separators must not be empty")
	}
	if cfg.Extract.PreviewLength <= 0 {
		return fmt.Errorf("extract.preview_length must be > 0, got %d", cfg.Extract.PreviewLength)
	}

	validStorageTypes := map[string]bool{
		"json": true, "jsonl": true, "csv": true, "mongodb": true,
	}
	kinds := StorageTypes(cfg.Storage.Type)
	if len(kinds) == 0 {
		return fmt.Errorf("storage.type must not be empty")
	}
	seen := make(map[string]bool, len(kinds))
	for _, kind := range kinds {
		if !validStorageTypes[kind] {
			return fmt.Errorf("storage.type %q is not supported (valid: json, jsonl, csv, mongodb)", kind)
		}
		if seen[kind] {
			return fmt.Errorf("storage.type lists %q twice", kind)
		}
		seen[kind] = true
	}
	if seen["mongodb"] && cfg.Storage.Mongo.URI == "" {
		return fmt.Errorf("storage.mongo.uri is required for mongodb storage")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be debug/info/warn/error, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be 'text' or 'json', got %q", cfg.Logging.Format)
	}

	if cfg.Metrics.Enabled {
		if cfg.Metrics.Port < 1 || cfg.Metrics.Port > 65535 {
			return fmt.Errorf("metrics.port must be 1-65535, got %d", cfg.Metrics.Port)
		}
	}

	return nil
}

// ValidateURL checks if a URL string is valid for harvesting.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}

// StorageTypes splits a storage.type value such as "csv,mongodb" into its
// backend names.
func StorageTypes(value string) []string {
	var kinds []string
	for _, k := range strings.Split(value, ",") {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			kinds = append(kinds, k)
		}
	}
	return kinds
}
