package config

import (
	"time"

	"github.com/IshaanNene/ReviewGoat/internal/extract"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Config is the root configuration for ReviewGoat.
type Config struct {
	Source  SourceConfig     `mapstructure:"source"  yaml:"source"`
	Harvest HarvestConfig    `mapstructure:"harvest" yaml:"harvest"`
	Extract extract.Patterns `mapstructure:"extract" yaml:"extract"`
	Storage StorageConfig    `mapstructure:"storage" yaml:"storage"`
	Logging LoggingConfig    `mapstructure:"logging" yaml:"logging"`
	Metrics MetricsConfig    `mapstructure:"metrics" yaml:"metrics"`
}

// SourceConfig controls how review pages are loaded and paginated.
type SourceConfig struct {
	Type           string        `mapstructure:"type"            yaml:"type"` // rod, http, file
	URL            string        `mapstructure:"url"             yaml:"url"`
	Dir            string        `mapstructure:"dir"             yaml:"dir"`
	ReviewSelector string        `mapstructure:"review_selector" yaml:"review_selector"`
	NextSelector   string        `mapstructure:"next_selector"   yaml:"next_selector"`
	MaxPages       int           `mapstructure:"max_pages"       yaml:"max_pages"`
	Headless       bool          `mapstructure:"headless"        yaml:"headless"`
	Stealth        bool          `mapstructure:"stealth"         yaml:"stealth"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	WaitStable     time.Duration `mapstructure:"wait_stable"     yaml:"wait_stable"`
	UserAgent      string        `mapstructure:"user_agent"      yaml:"user_agent"`
	MaxBodySize    int64         `mapstructure:"max_body_size"   yaml:"max_body_size"`
}

// HarvestConfig controls the page loop.
type HarvestConfig struct {
	Book            string        `mapstructure:"book"             yaml:"book"`
	PolitenessDelay time.Duration `mapstructure:"politeness_delay" yaml:"politeness_delay"`
	MaxRetries      int           `mapstructure:"max_retries"      yaml:"max_retries"`
	RetryDelay      time.Duration `mapstructure:"retry_delay"      yaml:"retry_delay"`
	OnParseFailure  string        `mapstructure:"on_parse_failure" yaml:"on_parse_failure"` // skip, partial, abort
	Dedup           bool          `mapstructure:"dedup"            yaml:"dedup"`
	RequiredFields  []string      `mapstructure:"required_fields"  yaml:"required_fields"`
}

// StorageConfig controls output/storage.
type StorageConfig struct {
	Type       string      `mapstructure:"type"        yaml:"type"`
	OutputPath string      `mapstructure:"output_path" yaml:"output_path"`
	Mongo      MongoConfig `mapstructure:"mongo"       yaml:"mongo"`
}

// MongoConfig is used when storage.type is "mongodb".
type MongoConfig struct {
	URI        string `mapstructure:"uri"        yaml:"uri"`
	Database   string `mapstructure:"database"   yaml:"database"`
	Collection string `mapstructure:"collection" yaml:"collection"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// MetricsConfig controls Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Port    int    `mapstructure:"port"    yaml:"port"`
	Path    string `mapstructure:"path"    yaml:"path"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Source: SourceConfig{
			Type:           "rod",
			ReviewSelector: "#bookReviews .reviewHeader, #bookReviews .reviewText",
			NextSelector:   "a.next_page",
			MaxPages:       10,
			Headless:       true,
			RequestTimeout: 30 * time.Second,
			WaitStable:     500 * time.Millisecond,
			UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			MaxBodySize:    10 * 1024 * 1024, // 10MB
		},
		Harvest: HarvestConfig{
			PolitenessDelay: 2 * time.Second,
			MaxRetries:      3,
			RetryDelay:      2 * time.Second,
			OnParseFailure:  string(extract.PolicySkip),
		},
		Extract: extract.DefaultPatterns(),
		Storage: StorageConfig{
			Type:       "csv",
			OutputPath: "./output",
			Mongo: MongoConfig{
				URI:        "mongodb://localhost:27017",
				Database:   "reviewgoat",
				Collection: "reviews",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
			Path:    "/metrics",
		},
	}
}
