package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	// DataDirName is the per-directory folder holding the store and config.
	DataDirName = ".neurodb"

	BackendBolt   = "bolt"
	BackendSQLite = "sqlite"
)

// Config holds all configuration for neurodb.
type Config struct {
	Chunk     ChunkConfig     `yaml:"chunk"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Store     StoreConfig     `yaml:"store"`
	Search    SearchConfig    `yaml:"search"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ChunkConfig holds chunking configuration, in characters.
type ChunkConfig struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

// EmbeddingConfig holds embedding configuration.
type EmbeddingConfig struct {
	Provider    string `yaml:"provider"`    // "local", "openai", "deepseek", "jina", "ollama"
	Model       string `yaml:"model"`       // e.g., "text-embedding-3-small"
	APIKeyEnv   string `yaml:"api_key_env"` // Environment variable for API key
	BaseURL     string `yaml:"base_url"`
	Dimension   int    `yaml:"dimension"`
	BatchSize   int    `yaml:"batch_size"`
	Concurrency int    `yaml:"concurrency"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// StoreConfig selects the persistence substrate.
type StoreConfig struct {
	Backend         string `yaml:"backend"` // "bolt" or "sqlite"
	Path            string `yaml:"path"`    // relative paths resolve against the root dir
	LockTimeoutSecs int    `yaml:"lock_timeout_secs"`
}

// SearchConfig holds query configuration.
type SearchConfig struct {
	DefaultLimit int `yaml:"default_limit"`
	CacheSize    int `yaml:"cache_size"`
	CacheTTLSecs int `yaml:"cache_ttl_secs"`
}

// IngestConfig holds ingestion configuration.
type IngestConfig struct {
	ReplaceExisting bool     `yaml:"replace_existing"`
	Includes        []string `yaml:"includes"`
	Excludes        []string `yaml:"excludes"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Chunk: ChunkConfig{
			Size:    500,
			Overlap: 50,
		},
		Embedding: EmbeddingConfig{
			Provider:    "local",
			Model:       "local-hash",
			APIKeyEnv:   "OPENAI_API_KEY",
			Dimension:   384,
			BatchSize:   100,
			Concurrency: 1,
			TimeoutSecs: 60,
		},
		Store: StoreConfig{
			Backend:         BackendBolt,
			LockTimeoutSecs: 1,
		},
		Search: SearchConfig{
			DefaultLimit: 5,
			CacheSize:    128,
			CacheTTLSecs: 300,
		},
		Ingest: IngestConfig{
			ReplaceExisting: true,
			Includes:        []string{"**/*.pdf", "**/*.docx", "**/*.txt", "**/*.md"},
			Excludes:        []string{"**/.git/**", "**/" + DataDirName + "/**", "**/node_modules/**"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
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
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadFromDir loads configuration from a directory (looks for neurodb.yaml).
func LoadFromDir(dir string) (*Config, error) {
	path := filepath.Join(dir, "neurodb.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	path = filepath.Join(dir, DataDirName, "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	return DefaultConfig(), nil
}

// Validate rejects settings no component can work with.
func (c *Config) Validate() error {
	if c.Chunk.Size <= 0 {
		return fmt.Errorf("chunk.size must be positive, got %d", c.Chunk.Size)
	}
	if c.Chunk.Overlap < 0 || c.Chunk.Overlap >= c.Chunk.Size {
		return fmt.Errorf("chunk.overlap must be in [0, %d), got %d", c.Chunk.Size, c.Chunk.Overlap)
	}
	switch c.Store.Backend {
	case BackendBolt, BackendSQLite:
	default:
		return fmt.Errorf("unsupported store backend: %s", c.Store.Backend)
	}
	switch c.Embedding.Provider {
	case "local", "openai", "deepseek", "jina", "ollama":
	default:
		return fmt.Errorf("unsupported embedding provider: %s", c.Embedding.Provider)
	}
	if c.Search.DefaultLimit <= 0 {
		return fmt.Errorf("search.default_limit must be positive, got %d", c.Search.DefaultLimit)
	}
	return nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// StorePath returns the path to the store file for dir.
func (c *Config) StorePath(dir string) string {
	if c.Store.Path != "" {
		if filepath.IsAbs(c.Store.Path) {
			return c.Store.Path
		}
		return filepath.Join(dir, c.Store.Path)
	}
	name := "neuro.db"
	if c.Store.Backend == BackendSQLite {
		name = "neuro.sqlite"
	}
	return filepath.Join(dir, DataDirName, name)
}

// EnsureDataDir ensures the .neurodb directory exists.
func EnsureDataDir(dir string) error {
	return os.MkdirAll(filepath.Join(dir, DataDirName), 0755)
}
