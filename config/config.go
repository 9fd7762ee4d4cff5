package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for docqa.
type Config struct {
	Fetch      FetchConfig      `yaml:"fetch"`
	Chunking   ChunkingConfig   `yaml:"chunking"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Retrieve   RetrieveConfig   `yaml:"retrieve"`
	Generation GenerationConfig `yaml:"generation"`
	Answer     AnswerConfig     `yaml:"answer"`
	Cache      CacheConfig      `yaml:"cache"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// FetchConfig holds document download configuration.
type FetchConfig struct {
	TimeoutSecs int   `yaml:"timeout_secs"`
	MaxBytes    int64 `yaml:"max_bytes"`
}

// ChunkTier is one step of the adaptive chunk size policy. A document
// longer than MinDocChars uses ChunkSize and Overlap.
type ChunkTier struct {
	MinDocChars int `yaml:"min_doc_chars"`
	ChunkSize   int `yaml:"chunk_size"`
	Overlap     int `yaml:"overlap"`
}

// ChunkingConfig holds the adaptive chunking tiers.
type ChunkingConfig struct {
	Tiers []ChunkTier `yaml:"tiers"`
}

// EmbeddingConfig holds embedding configuration.
type EmbeddingConfig struct {
	Provider    string `yaml:"provider"`    // "openai", "deepseek", "jina", "ollama", "hash"
	Model       string `yaml:"model"`       // e.g., "text-embedding-3-small"
	APIKeyEnv   string `yaml:"api_key_env"` // Environment variable for API key
	BaseURL     string `yaml:"base_url"`
	Dimension   int    `yaml:"dimension"`
	BatchSize   int    `yaml:"batch_size"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	CachePath   string `yaml:"cache_path"` // bbolt file; empty disables the embedding cache
}

// RetrieveConfig holds retrieval configuration.
type RetrieveConfig struct {
	TopK           int     `yaml:"top_k"`
	HybridEnabled  bool    `yaml:"hybrid_enabled"`
	RRFK           int     `yaml:"rrf_k"`
	BM25Weight     float64 `yaml:"bm25_weight"`
	K1             float64 `yaml:"k1"`
	B              float64 `yaml:"b"`
	Stemming       bool    `yaml:"stemming"`
	IndexCacheSize int     `yaml:"index_cache_size"` // 0 rebuilds the index for every request
}

// GenerationConfig holds the answer model configuration.
type GenerationConfig struct {
	Provider          string  `yaml:"provider"` // "openai", "deepseek", "ollama"
	Model             string  `yaml:"model"`
	APIKeyEnv         string  `yaml:"api_key_env"`
	BaseURL           string  `yaml:"base_url"`
	Temperature       float64 `yaml:"temperature"`
	MaxTokens         int     `yaml:"max_tokens"`
	TimeoutSecs       int     `yaml:"timeout_secs"`
	RequestsPerSecond float64 `yaml:"requests_per_second"` // 0 = unlimited
}

// AnswerConfig holds per-question answering limits.
type AnswerConfig struct {
	QuestionTimeoutSecs int `yaml:"question_timeout_secs"`
	Concurrency         int `yaml:"concurrency"`
}

// CacheConfig holds answer cache configuration.
type CacheConfig struct {
	Path         string `yaml:"path"`
	WriteThrough bool   `yaml:"write_through"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Fetch: FetchConfig{
			TimeoutSecs: 60,
			MaxBytes:    100 << 20,
		},
		Chunking: ChunkingConfig{
			Tiers: DefaultTiers(),
		},
		Embedding: EmbeddingConfig{
			Provider:    "openai",
			Model:       "text-embedding-3-small",
			APIKeyEnv:   "OPENAI_API_KEY",
			Dimension:   1536,
			BatchSize:   100,
			TimeoutSecs: 60,
			CachePath:   filepath.Join(".docqa", "embeddings.db"),
		},
		Retrieve: RetrieveConfig{
			TopK:          5,
			HybridEnabled: true,
			RRFK:          60,
			BM25Weight:    0.5,
			K1:            1.2,
			B:             0.75,
			Stemming:      true,
		},
		Generation: GenerationConfig{
			Provider:    "openai",
			Model:       "gpt-4o-mini",
			APIKeyEnv:   "OPENAI_API_KEY",
			Temperature: 0,
			MaxTokens:   500,
			TimeoutSecs: 60,
		},
		Answer: AnswerConfig{
			QuestionTimeoutSecs: 30,
			Concurrency:         4,
		},
		Cache: CacheConfig{
			Path:         filepath.Join(".docqa", "answer_cache.json"),
			WriteThrough: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// DefaultTiers returns the chunking tiers, largest documents first.
func DefaultTiers() []ChunkTier {
	return []ChunkTier{
		{MinDocChars: 200_000, ChunkSize: 600, Overlap: 150},
		{MinDocChars: 100_000, ChunkSize: 1000, Overlap: 200},
		{MinDocChars: 0, ChunkSize: 1500, Overlap: 300},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Return defaults if no config file
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}

// LoadFromDir loads configuration from a directory (looks for docqa.yaml).
func LoadFromDir(dir string) (*Config, error) {
	path := filepath.Join(dir, "docqa.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	path = filepath.Join(dir, ".docqa", "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	return DefaultConfig(), nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks the values that would otherwise break the pipeline at
// request time. Tiers are sorted largest threshold first as a side effect.
func (c *Config) Validate() error {
	if len(c.Chunking.Tiers) == 0 {
		return fmt.Errorf("chunking: at least one tier is required")
	}
	sort.SliceStable(c.Chunking.Tiers, func(i, j int) bool {
		return c.Chunking.Tiers[i].MinDocChars > c.Chunking.Tiers[j].MinDocChars
	})
	for i, tier := range c.Chunking.Tiers {
		if tier.ChunkSize <= 0 {
			return fmt.Errorf("chunking: tier %d: chunk_size must be positive", i)
		}
		if tier.Overlap < 0 || tier.Overlap >= tier.ChunkSize {
			return fmt.Errorf("chunking: tier %d: overlap must be in [0, chunk_size)", i)
		}
		if i > 0 && tier.ChunkSize < c.Chunking.Tiers[i-1].ChunkSize {
			return fmt.Errorf("chunking: tiers must not use larger chunks for longer documents")
		}
	}

	if c.Retrieve.TopK <= 0 {
		return fmt.Errorf("retrieve: top_k must be positive")
	}
	if c.Retrieve.BM25Weight < 0 || c.Retrieve.BM25Weight > 1 {
		return fmt.Errorf("retrieve: bm25_weight must be in [0, 1]")
	}
	if c.Answer.QuestionTimeoutSecs <= 0 {
		return fmt.Errorf("answer: question_timeout_secs must be positive")
	}
	if c.Answer.Concurrency <= 0 {
		c.Answer.Concurrency = 1
	}
	if c.Cache.Path == "" {
		return fmt.Errorf("cache: path is required")
	}
	return nil
}

// StateDir returns the directory holding docqa's local state.
func StateDir(dir string) string {
	return filepath.Join(dir, ".docqa")
}

// EnsureStateDir ensures the .docqa directory exists.
func EnsureStateDir(dir string) error {
	return os.MkdirAll(StateDir(dir), 0755)
}

// ResolvePath anchors a relative state path at dir.
func ResolvePath(dir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}
