package engine

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds engine configuration.
type Config struct {
	// MaxRecordsPerScope caps record count per conversation scope; the store
	// evicts the oldest-by-modification records beyond it.
	// Default: 1000 (prevents unbounded growth).
	MaxRecordsPerScope int `yaml:"max_records_per_scope"`

	// MinSimilarity is the minimum score for semantic retrieval [0.0-1.0].
	// Default: 0.5
	// Note: the letter-frequency baseline scores similar prose high (~0.9);
	// real embedding models land in the 0.35-0.85 range depending on size.
	MinSimilarity float64 `yaml:"min_similarity"`

	// DefaultQueryLimit caps retrieve_user_data query results when the
	// directive carries no limit. Default: 5.
	DefaultQueryLimit int `yaml:"default_query_limit"`

	// IndexOnCreate embeds and indexes records as they are created by
	// add_record and save_user_data directives. Default: true. Updates do
	// not re-index; callers re-run IndexRecord or ReindexScope when they
	// need fresh vectors.
	IndexOnCreate bool `yaml:"index_on_create"`
}

// DefaultConfig returns a fresh config with sensible defaults. Each call
// returns a new copy, so callers may mutate the result freely.
func DefaultConfig() *Config {
	return &Config{
		MaxRecordsPerScope: 1000,
		MinSimilarity:      0.5,
		DefaultQueryLimit:  5,
		IndexOnCreate:      true,
	}
}

// LoadConfig reads a YAML config file. Unset fields fall back to defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
