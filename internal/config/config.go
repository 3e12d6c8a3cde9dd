// Package config loads and validates CodeScope configuration.
//
// Configuration precedence (lowest to highest):
//  1. Built-in defaults
//  2. Project config (.codescope.yaml in the project root)
//  3. Environment variables (CODESCOPE_*)
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	cserrors "github.com/codescope/codescope/internal/errors"
)

// ProjectConfigName is the per-project configuration file name.
const ProjectConfigName = ".codescope.yaml"

// Config represents the complete CodeScope configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Paths      PathsConfig      `yaml:"paths" json:"paths"`
	Index      IndexConfig      `yaml:"index" json:"index"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Cache      CacheConfig      `yaml:"cache" json:"cache"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
}

// PathsConfig configures which paths to include and exclude.
type PathsConfig struct {
	// Include lists file extensions to index (e.g., ".go", ".py").
	Include []string `yaml:"include" json:"include"`
	// Exclude lists path substrings to skip (e.g., "node_modules", ".git").
	Exclude []string `yaml:"exclude" json:"exclude"`
}

// IndexConfig configures the chunking pipeline.
type IndexConfig struct {
	// MaxFileSizeBytes skips files larger than this entirely.
	MaxFileSizeBytes int64 `yaml:"max_file_size_bytes" json:"max_file_size_bytes"`

	// Workers bounds the per-file pipeline parallelism (default: NumCPU).
	Workers int `yaml:"workers" json:"workers"`

	// FilePreviewChars truncates file-level chunk content at this budget.
	FilePreviewChars int `yaml:"file_preview_chars" json:"file_preview_chars"`

	// FunctionSplitChars is the content length above which a function
	// chunk is re-segmented into block windows.
	FunctionSplitChars int `yaml:"function_split_chars" json:"function_split_chars"`

	// BlockWindowLines is the line count per block window.
	BlockWindowLines int `yaml:"block_window_lines" json:"block_window_lines"`

	// MinBlockChars drops block windows whose trimmed content is shorter.
	MinBlockChars int `yaml:"min_block_chars" json:"min_block_chars"`
}

// SearchConfig configures the dual-space search engine.
type SearchConfig struct {
	// CodeWeight is the fusion weight for the code-literal space.
	CodeWeight float64 `yaml:"code_weight" json:"code_weight"`

	// ConceptWeight is the fusion weight for the concept space.
	// Must sum to 1.0 with CodeWeight.
	ConceptWeight float64 `yaml:"concept_weight" json:"concept_weight"`

	// DefaultLimit is the default number of results (default: 10).
	DefaultLimit int `yaml:"default_limit" json:"default_limit"`

	// MaxLimit is the maximum allowed results (default: 100).
	MaxLimit int `yaml:"max_limit" json:"max_limit"`

	// Timeout bounds a single search invocation.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// CacheConfig configures the shared cache manager.
type CacheConfig struct {
	// MaxSizeBytes bounds total estimated entry size.
	MaxSizeBytes int64 `yaml:"max_size_bytes" json:"max_size_bytes"`

	// MaxEntries bounds entry count.
	MaxEntries int `yaml:"max_entries" json:"max_entries"`

	// DefaultTTL is the entry time-to-live when none is given (default: 24h).
	DefaultTTL time.Duration `yaml:"default_ttl" json:"default_ttl"`

	// SweepInterval is the period of the background TTL sweep (default: 5m).
	SweepInterval time.Duration `yaml:"sweep_interval" json:"sweep_interval"`
}

// EmbeddingsConfig configures the embedding service client.
type EmbeddingsConfig struct {
	// Provider selects the embedder: "http" or "static" (offline fallback).
	Provider string `yaml:"provider" json:"provider"`

	// BaseURL is the embedding service base URL.
	BaseURL string `yaml:"base_url" json:"base_url"`

	// CodeModel is the model used for the code-literal space.
	CodeModel string `yaml:"code_model" json:"code_model"`

	// ConceptModel is the model used for the concept space.
	ConceptModel string `yaml:"concept_model" json:"concept_model"`

	// BatchSize groups chunk texts before invocation (default: 500).
	BatchSize int `yaml:"batch_size" json:"batch_size"`

	// Timeout bounds a single embedding call.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`

	// MaxRetries is the retry budget for transient embedding failures.
	MaxRetries int `yaml:"max_retries" json:"max_retries"`
}

// Default returns the built-in default configuration.
func Default() *Config {
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			Include: []string{".go", ".ts", ".tsx", ".js", ".jsx", ".py", ".java"},
			Exclude: []string{".git", "node_modules", "vendor", "dist", "build"},
		},
		Index: IndexConfig{
			MaxFileSizeBytes:   1 << 20, // 1 MiB
			Workers:            runtime.NumCPU(),
			FilePreviewChars:   500,
			FunctionSplitChars: 1000,
			BlockWindowLines:   20,
			MinBlockChars:      50,
		},
		Search: SearchConfig{
			CodeWeight:    0.6,
			ConceptWeight: 0.4,
			DefaultLimit:  10,
			MaxLimit:      100,
			Timeout:       5 * time.Second,
		},
		Cache: CacheConfig{
			MaxSizeBytes:  64 << 20, // 64 MiB
			MaxEntries:    10000,
			DefaultTTL:    24 * time.Hour,
			SweepInterval: 5 * time.Minute,
		},
		Embeddings: EmbeddingsConfig{
			Provider:     "http",
			BaseURL:      "http://localhost:11434",
			CodeModel:    "nomic-embed-code",
			ConceptModel: "nomic-embed-text",
			BatchSize:    500,
			Timeout:      60 * time.Second,
			MaxRetries:   3,
		},
	}
}

// Load reads configuration for the given project root.
// A missing project config file is not an error; defaults apply.
func Load(rootDir string) (*Config, error) {
	cfg := Default()

	path := filepath.Join(rootDir, ProjectConfigName)
	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, cserrors.ConfigError(fmt.Sprintf("parse %s", path), err).
				WithSuggestion("fix the YAML syntax or delete the file to fall back to defaults")
		}
	} else if !os.IsNotExist(err) {
		return nil, cserrors.ConfigError(fmt.Sprintf("read %s", path), err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to the project root.
func Save(cfg *Config, rootDir string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(filepath.Join(rootDir, ProjectConfigName), data, 0o644)
}

// applyEnvOverrides applies CODESCOPE_* environment variables.
// Env vars have the highest precedence.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CODESCOPE_EMBED_URL"); v != "" {
		cfg.Embeddings.BaseURL = v
	}
	if v := os.Getenv("CODESCOPE_EMBED_PROVIDER"); v != "" {
		cfg.Embeddings.Provider = v
	}
	if v := os.Getenv("CODESCOPE_CODE_WEIGHT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Search.CodeWeight = f
		}
	}
	if v := os.Getenv("CODESCOPE_CONCEPT_WEIGHT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Search.ConceptWeight = f
		}
	}
	if v := os.Getenv("CODESCOPE_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Embeddings.BatchSize = n
		}
	}
	if v := os.Getenv("CODESCOPE_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Index.Workers = n
		}
	}
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	const epsilon = 1e-9
	sum := c.Search.CodeWeight + c.Search.ConceptWeight
	if sum < 1.0-epsilon || sum > 1.0+epsilon {
		return fmt.Errorf("search weights must sum to 1.0, got %.3f", sum)
	}
	if c.Search.CodeWeight < 0 || c.Search.ConceptWeight < 0 {
		return fmt.Errorf("search weights must be non-negative")
	}
	if c.Cache.MaxSizeBytes <= 0 {
		return fmt.Errorf("cache max_size_bytes must be positive, got %d", c.Cache.MaxSizeBytes)
	}
	if c.Cache.MaxEntries <= 0 {
		return fmt.Errorf("cache max_entries must be positive, got %d", c.Cache.MaxEntries)
	}
	if c.Embeddings.BatchSize <= 0 {
		return fmt.Errorf("embeddings batch_size must be positive, got %d", c.Embeddings.BatchSize)
	}
	if c.Index.MaxFileSizeBytes <= 0 {
		return fmt.Errorf("index max_file_size_bytes must be positive, got %d", c.Index.MaxFileSizeBytes)
	}
	if c.Index.BlockWindowLines <= 0 {
		return fmt.Errorf("index block_window_lines must be positive, got %d", c.Index.BlockWindowLines)
	}
	if c.Search.DefaultLimit <= 0 || c.Search.MaxLimit < c.Search.DefaultLimit {
		return fmt.Errorf("search limits misconfigured: default=%d max=%d",
			c.Search.DefaultLimit, c.Search.MaxLimit)
	}
	return nil
}

// DataDir returns the index data directory for a project root.
func DataDir(rootDir string) string {
	return filepath.Join(rootDir, ".codescope")
}
