package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from file, environment, and defaults.
// Priority (highest to lowest): env vars > config file > defaults.
// CLI flags are applied on top by the caller.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	setDefaults(v, cfg)

	v.SetEnvPrefix("REVIEWGOAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("reviewgoat")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".reviewgoat"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && configPath != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is okay if not explicitly specified
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// setDefaults registers default values in viper so env overrides resolve.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("source.type", cfg.Source.Type)
	v.SetDefault("source.url", cfg.Source.URL)
	v.SetDefault("source.dir", cfg.Source.Dir)
	v.SetDefault("source.review_selector", cfg.Source.ReviewSelector)
	v.SetDefault("source.next_selector", cfg.Source.NextSelector)
	v.SetDefault("source.max_pages", cfg.Source.MaxPages)
	v.SetDefault("source.headless", cfg.Source.Headless)
	v.SetDefault("source.stealth", cfg.Source.Stealth)
	v.SetDefault("source.request_timeout", cfg.Source.RequestTimeout)
	v.SetDefault("source.wait_stable", cfg.Source.WaitStable)
	v.SetDefault("source.user_agent", cfg.Source.UserAgent)
	v.SetDefault("source.max_body_size", cfg.Source.MaxBodySize)

	v.SetDefault("harvest.book", cfg.Harvest.Book)
	v.SetDefault("harvest.politeness_delay", cfg.Harvest.PolitenessDelay)
	v.SetDefault("harvest.max_retries", cfg.Harvest.MaxRetries)
	v.SetDefault("harvest.retry_delay", cfg.Harvest.RetryDelay)
	v.SetDefault("harvest.on_parse_failure", cfg.Harvest.OnParseFailure)
	v.SetDefault("harvest.dedup", cfg.Harvest.Dedup)

	v.SetDefault("extract.separators", cfg.Extract.Separators)
	v.SetDefault("extract.terminators", cfg.Extract.Terminators)
	v.SetDefault("extract.body_markers", cfg.Extract.BodyMarkers)
	v.SetDefault("extract.truncation_markers", cfg.Extract.TruncationMarkers)
	v.SetDefault("extract.preview_length", cfg.Extract.PreviewLength)

	v.SetDefault("storage.type", cfg.Storage.Type)
	v.SetDefault("storage.output_path", cfg.Storage.OutputPath)
	v.SetDefault("storage.mongo.uri", cfg.Storage.Mongo.URI)
	v.SetDefault("storage.mongo.database", cfg.Storage.Mongo.Database)
	v.SetDefault("storage.mongo.collection", cfg.Storage.Mongo.Collection)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)

	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	v.SetDefault("metrics.port", cfg.Metrics.Port)
	v.SetDefault("metrics.path", cfg.Metrics.Path)
}
