// Package config loads and validates the DocMind configuration.
//
// Configuration is applied in order of increasing precedence: hardcoded
// defaults, the user config (~/.config/docmind/config.yaml), the project
// config (.docmind.yaml next to the data), then DOCMIND_* environment
// variables.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// weightTolerance is how far the two search weights may drift from
// summing to exactly 1.0.
const weightTolerance = 1e-6

// Config is the complete DocMind configuration.
type Config struct {
	Version     int               `yaml:"version"`
	DataDir     string            `yaml:"data_dir"`
	Search      SearchConfig      `yaml:"search"`
	Embeddings  EmbeddingsConfig  `yaml:"embeddings"`
	Performance PerformanceConfig `yaml:"performance"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// SearchConfig configures hybrid search.
type SearchConfig struct {
	// LexicalWeight is the weight for BM25 keyword matching (0.0-1.0).
	// Must sum to 1.0 with SemanticWeight.
	LexicalWeight float64 `yaml:"lexical_weight"`

	// SemanticWeight is the weight for embedding similarity (0.0-1.0).
	// Must sum to 1.0 with LexicalWeight.
	SemanticWeight float64 `yaml:"semantic_weight"`

	// TextBackend selects the full-text index backend.
	// Options: "bleve" (default) or "sqlite" (FTS5, concurrent access).
	TextBackend string `yaml:"text_backend"`

	// TitleBoost multiplies the score of title matches over content
	// matches. Default: 2.0.
	TitleBoost float64 `yaml:"title_boost"`

	// MinTokenLength drops tokens shorter than this during indexing.
	MinTokenLength int `yaml:"min_token_length"`

	MaxResults    int `yaml:"max_results"`
	SnippetLength int `yaml:"snippet_length"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider selects the embedder. Only "static" is built in.
	Provider string `yaml:"provider"`

	// QueryCacheSize bounds the LRU cache of query embeddings.
	QueryCacheSize int `yaml:"query_cache_size"`
}

// PerformanceConfig configures tuning options.
type PerformanceConfig struct {
	// IngestWorkers bounds concurrent batch ingestion.
	IngestWorkers int `yaml:"ingest_workers"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// File is the log destination. Empty logs to stderr.
	File string `yaml:"file"`

	// MaxSizeMB rotates the log file when it grows past this size.
	MaxSizeMB int `yaml:"max_size_mb"`
}

// NewConfig returns a Config with defaults applied.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		DataDir: defaultDataDir(),
		Search: SearchConfig{
			LexicalWeight:  0.5,
			SemanticWeight: 0.5,
			TextBackend:    "bleve",
			TitleBoost:     2.0,
			MinTokenLength: 2,
			MaxResults:     10,
			SnippetLength:  200,
		},
		Embeddings: EmbeddingsConfig{
			Provider:       "static",
			QueryCacheSize: 1000,
		},
		Performance: PerformanceConfig{
			IngestWorkers: runtime.NumCPU(),
		},
		Logging: LoggingConfig{
			Level:     "info",
			File:      "",
			MaxSizeMB: 10,
		},
	}
}

// defaultDataDir returns the default location for engine state.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".docmind")
	}
	return filepath.Join(home, ".docmind")
}

// UserConfigPath returns the path to the user configuration file,
// following the XDG Base Directory layout.
func UserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "docmind", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "docmind", "config.yaml")
	}
	return filepath.Join(home, ".config", "docmind", "config.yaml")
}

// Load builds the effective configuration for a project directory.
// Precedence, lowest to highest: defaults, user config, project config
// (.docmind.yaml or .docmind.yml in dir), DOCMIND_* env vars.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userPath := UserConfigPath(); fileExists(userPath) {
		if err := cfg.loadYAML(userPath); err != nil {
			return nil, fmt.Errorf("load user config: %w", err)
		}
	}

	if err := cfg.loadFromDir(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadFromDir loads .docmind.yaml or .docmind.yml from dir, if present.
func (c *Config) loadFromDir(dir string) error {
	for _, name := range []string{".docmind.yaml", ".docmind.yml"} {
		path := filepath.Join(dir, name)
		if fileExists(path) {
			return c.loadYAML(path)
		}
	}
	return nil
}

// loadYAML parses a YAML file and merges its non-zero values.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c. Both search
// weights merge together so a file overriding one without the other
// still fails validation loudly instead of silently renormalizing.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}
	if other.DataDir != "" {
		c.DataDir = other.DataDir
	}

	if other.Search.LexicalWeight != 0 || other.Search.SemanticWeight != 0 {
		c.Search.LexicalWeight = other.Search.LexicalWeight
		c.Search.SemanticWeight = other.Search.SemanticWeight
	}
	if other.Search.TextBackend != "" {
		c.Search.TextBackend = other.Search.TextBackend
	}
	if other.Search.TitleBoost != 0 {
		c.Search.TitleBoost = other.Search.TitleBoost
	}
	if other.Search.MinTokenLength != 0 {
		c.Search.MinTokenLength = other.Search.MinTokenLength
	}
	if other.Search.MaxResults != 0 {
		c.Search.MaxResults = other.Search.MaxResults
	}
	if other.Search.SnippetLength != 0 {
		c.Search.SnippetLength = other.Search.SnippetLength
	}

	if other.Embeddings.Provider != "" {
		c.Embeddings.Provider = other.Embeddings.Provider
	}
	if other.Embeddings.QueryCacheSize != 0 {
		c.Embeddings.QueryCacheSize = other.Embeddings.QueryCacheSize
	}

	if other.Performance.IngestWorkers != 0 {
		c.Performance.IngestWorkers = other.Performance.IngestWorkers
	}

	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
	if other.Logging.File != "" {
		c.Logging.File = other.Logging.File
	}
	if other.Logging.MaxSizeMB != 0 {
		c.Logging.MaxSizeMB = other.Logging.MaxSizeMB
	}
}

// applyEnvOverrides applies DOCMIND_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("DOCMIND_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("DOCMIND_LEXICAL_WEIGHT"); v != "" {
		if w, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && w >= 0 && w <= 1 {
			c.Search.LexicalWeight = w
		}
	}
	if v := os.Getenv("DOCMIND_SEMANTIC_WEIGHT"); v != "" {
		if w, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && w >= 0 && w <= 1 {
			c.Search.SemanticWeight = w
		}
	}
	if v := os.Getenv("DOCMIND_TEXT_BACKEND"); v != "" {
		c.Search.TextBackend = v
	}
	if v := os.Getenv("DOCMIND_INGEST_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Performance.IngestWorkers = n
		}
	}
	if v := os.Getenv("DOCMIND_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("DOCMIND_LOG_FILE"); v != "" {
		c.Logging.File = v
	}
}

// Validate checks the configuration for contradictions.
func (c *Config) Validate() error {
	var errs []string

	if c.DataDir == "" {
		errs = append(errs, "data_dir must not be empty")
	}

	if c.Search.LexicalWeight < 0 || c.Search.LexicalWeight > 1 {
		errs = append(errs, fmt.Sprintf("search.lexical_weight must be in [0,1], got %v", c.Search.LexicalWeight))
	}
	if c.Search.SemanticWeight < 0 || c.Search.SemanticWeight > 1 {
		errs = append(errs, fmt.Sprintf("search.semantic_weight must be in [0,1], got %v", c.Search.SemanticWeight))
	}
	if sum := c.Search.LexicalWeight + c.Search.SemanticWeight; math.Abs(sum-1.0) > weightTolerance {
		errs = append(errs, fmt.Sprintf("search weights must sum to 1.0, got %v", sum))
	}

	switch c.Search.TextBackend {
	case "bleve", "sqlite":
	default:
		errs = append(errs, fmt.Sprintf("search.text_backend must be bleve or sqlite, got %q", c.Search.TextBackend))
	}

	if c.Search.TitleBoost <= 0 {
		errs = append(errs, fmt.Sprintf("search.title_boost must be positive, got %v", c.Search.TitleBoost))
	}
	if c.Search.MaxResults <= 0 {
		errs = append(errs, fmt.Sprintf("search.max_results must be positive, got %d", c.Search.MaxResults))
	}
	if c.Search.SnippetLength <= 0 {
		errs = append(errs, fmt.Sprintf("search.snippet_length must be positive, got %d", c.Search.SnippetLength))
	}

	if c.Embeddings.Provider != "static" {
		errs = append(errs, fmt.Sprintf("embeddings.provider must be static, got %q", c.Embeddings.Provider))
	}
	if c.Embeddings.QueryCacheSize <= 0 {
		errs = append(errs, fmt.Sprintf("embeddings.query_cache_size must be positive, got %d", c.Embeddings.QueryCacheSize))
	}

	if c.Performance.IngestWorkers <= 0 {
		errs = append(errs, fmt.Sprintf("performance.ingest_workers must be positive, got %d", c.Performance.IngestWorkers))
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
