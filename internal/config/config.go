// Package config loads the knowledge-rag configuration from YAML, .env and
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dshills/knowledge-rag/internal/detector"
	"github.com/dshills/knowledge-rag/internal/embedder"
	"github.com/dshills/knowledge-rag/internal/generator"
	"github.com/dshills/knowledge-rag/internal/logging"
	"github.com/dshills/knowledge-rag/internal/state"
	"github.com/dshills/knowledge-rag/internal/storage"
)

// ErrInvalidConfig is returned by Validate
var ErrInvalidConfig = errors.New("invalid configuration")

// Environment overrides
const (
	EnvConfig          = "KNOWLEDGE_RAG_CONFIG"
	EnvDocumentsDir    = "KNOWLEDGE_RAG_DOCUMENTS_DIR"
	EnvDataDir         = "KNOWLEDGE_RAG_DATA_DIR"
	EnvGenerationModel = "KNOWLEDGE_RAG_GENERATION_MODEL"
	EnvLogLevel        = "KNOWLEDGE_RAG_LOG_LEVEL"
	EnvEmbedding       = embedder.EnvProvider
)

// FileName is the config file looked up in the working directory
const FileName = "knowledge-rag.yaml"

// IndexConfig controls what is indexed and how
type IndexConfig struct {
	ChunkSize     int      `yaml:"chunk_size"`
	ChunkOverlap  int      `yaml:"chunk_overlap"`
	Extensions    []string `yaml:"extensions"`
	IncludeHidden bool     `yaml:"include_hidden"`
	MaxFileSize   int64    `yaml:"max_file_size"` // Bytes; 0 = unlimited
	BatchSize     int      `yaml:"batch_size"`
	Workers       int      `yaml:"workers"` // 0 = number of CPUs
}

// StorageConfig selects the vector collection and state backend
type StorageConfig struct {
	Collection   string `yaml:"collection"`
	Metric       string `yaml:"metric"`
	StateBackend string `yaml:"state_backend"` // json or bolt
}

// EmbeddingConfig configures the embedding provider
type EmbeddingConfig struct {
	Provider    string  `yaml:"provider"` // Empty = detect from environment
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	CacheSize   int     `yaml:"cache_size"`
	TimeoutSecs int     `yaml:"timeout_secs"`
	RateLimit   float64 `yaml:"rate_limit"` // Requests per second; 0 = unlimited
	RateBurst   int     `yaml:"rate_burst"`
}

// GenerationConfig configures the generation provider
type GenerationConfig struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	Temperature float64 `yaml:"temperature"`
	TimeoutSecs int     `yaml:"timeout_secs"`
}

// ChatConfig configures question answering
type ChatConfig struct {
	TopK            int `yaml:"top_k"`
	HistoryWindow   int `yaml:"history_window"`
	HistoryCapacity int `yaml:"history_capacity"`
	QueryCacheSize  int `yaml:"query_cache_size"`
}

// WatchConfig configures the file watcher
type WatchConfig struct {
	DebounceMS int `yaml:"debounce_ms"`
}

// LogConfig configures logging
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the root application configuration
type Config struct {
	DocumentsDir string           `yaml:"documents_dir"`
	DataDir      string           `yaml:"data_dir"`
	Index        IndexConfig      `yaml:"index"`
	Storage      StorageConfig    `yaml:"storage"`
	Embedding    EmbeddingConfig  `yaml:"embedding"`
	Generation   GenerationConfig `yaml:"generation"`
	Chat         ChatConfig       `yaml:"chat"`
	Watch        WatchConfig      `yaml:"watch"`
	Log          LogConfig        `yaml:"log"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		DocumentsDir: "documents",
		DataDir:      ".knowledge-rag",
		Index: IndexConfig{
			ChunkSize:    1000,
			ChunkOverlap: 200,
			Extensions:   append([]string(nil), detector.DefaultExtensions...),
			BatchSize:    1000,
		},
		Storage: StorageConfig{
			Collection:   storage.DefaultCollection,
			Metric:       storage.MetricCosine,
			StateBackend: state.BackendJSON,
		},
		Embedding: EmbeddingConfig{
			CacheSize:   10000,
			TimeoutSecs: 60,
		},
		Generation: GenerationConfig{
			Provider:    generator.ProviderOllama,
			Model:       generator.DefaultOllamaModel,
			Temperature: generator.DefaultTemperature,
			TimeoutSecs: 300,
		},
		Chat: ChatConfig{
			TopK:            5,
			HistoryWindow:   5,
			HistoryCapacity: 50,
			QueryCacheSize:  256,
		},
		Watch: WatchConfig{DebounceMS: 750},
		Log:   LogConfig{Level: "info", Format: logging.FormatText},
	}
}

// Load reads a config from path over the defaults. A missing file yields the
// defaults. Environment overrides are applied and the result validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, err
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDefault tries $KNOWLEDGE_RAG_CONFIG, ./knowledge-rag.yaml, then
// ~/.config/knowledge-rag/config.yaml. It returns the path used, or "" when
// running on defaults.
func LoadDefault() (*Config, string, error) {
	candidates := []string{os.Getenv(EnvConfig), FileName}
	if userPath, err := DefaultUserConfigPath(); err == nil {
		candidates = append(candidates, userPath)
	}
	for _, path := range candidates {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err == nil {
			cfg, err := Load(path)
			return cfg, path, err
		}
	}
	cfg, err := Load("")
	return cfg, "", err
}

// DefaultUserConfigPath returns ~/.config/knowledge-rag/config.yaml
func DefaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "knowledge-rag", "config.yaml"), nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (c *Config) applyEnv() {
	set := func(dst *string, env string) {
		if v := os.Getenv(env); v != "" {
			*dst = v
		}
	}
	set(&c.DocumentsDir, EnvDocumentsDir)
	set(&c.DataDir, EnvDataDir)
	set(&c.Embedding.Provider, EnvEmbedding)
	set(&c.Generation.Model, EnvGenerationModel)
	set(&c.Log.Level, EnvLogLevel)
}

// Validate rejects settings the pipeline cannot run with
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.DocumentsDir != "", "documents_dir is required")
	check(c.DataDir != "", "data_dir is required")
	check(c.Index.ChunkSize > 0, "index.chunk_size must be positive")
	check(c.Index.ChunkOverlap >= 0 && c.Index.ChunkOverlap < c.Index.ChunkSize,
		"index.chunk_overlap must be in [0, chunk_size)")
	check(c.Index.BatchSize > 0 && c.Index.BatchSize <= embedder.MaxBatchSize,
		"index.batch_size must be in [1, %d]", embedder.MaxBatchSize)
	check(c.Index.Workers >= 0, "index.workers must not be negative")
	check(len(c.Index.Extensions) > 0, "index.extensions must not be empty")
	check(c.Storage.Metric == storage.MetricCosine,
		"storage.metric %q is not supported", c.Storage.Metric)
	check(c.Storage.StateBackend == state.BackendJSON || c.Storage.StateBackend == state.BackendBolt,
		"storage.state_backend must be %s or %s", state.BackendJSON, state.BackendBolt)
	check(c.Generation.Temperature >= 0 && c.Generation.Temperature <= 2,
		"generation.temperature must be in [0, 2]")
	check(c.Chat.TopK > 0, "chat.top_k must be positive")
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}

// Workers returns the configured worker count, defaulting to the CPU count
func (c *Config) Workers() int {
	if c.Index.Workers > 0 {
		return c.Index.Workers
	}
	return runtime.NumCPU()
}

// DatabasePath is the SQLite vector store file
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "vectors.db")
}

// StatePath is the index state file for the configured backend
func (c *Config) StatePath() string {
	if c.Storage.StateBackend == state.BackendBolt {
		return filepath.Join(c.DataDir, "index_state.db")
	}
	return filepath.Join(c.DataDir, "index_state.json")
}

// LockPath is the file serialising synchronization passes across processes
func (c *Config) LockPath() string {
	return filepath.Join(c.DataDir, "index.lock")
}

// DetectorOptions returns the file selection options
func (c *Config) DetectorOptions() detector.Options {
	return detector.Options{
		Extensions:    c.Index.Extensions,
		IncludeHidden: c.Index.IncludeHidden,
		MaxFileSize:   c.Index.MaxFileSize,
	}
}

// EmbedderConfig returns the embedding provider settings
func (c *Config) EmbedderConfig() embedder.Config {
	return embedder.Config{
		Provider:  c.Embedding.Provider,
		APIKey:    envValue(c.Embedding.APIKeyEnv),
		BaseURL:   c.Embedding.BaseURL,
		Model:     c.Embedding.Model,
		CacheSize: c.Embedding.CacheSize,
		Timeout:   time.Duration(c.Embedding.TimeoutSecs) * time.Second,
		RateLimit: c.Embedding.RateLimit,
		RateBurst: c.Embedding.RateBurst,
	}
}

// GeneratorConfig returns the generation provider settings
func (c *Config) GeneratorConfig() generator.Config {
	return generator.Config{
		Provider: c.Generation.Provider,
		BaseURL:  c.Generation.BaseURL,
		Model:    c.Generation.Model,
		APIKey:   envValue(c.Generation.APIKeyEnv),
		Timeout:  time.Duration(c.Generation.TimeoutSecs) * time.Second,
	}
}

// WatchDebounce returns the watcher quiet period
func (c *Config) WatchDebounce() time.Duration {
	return time.Duration(c.Watch.DebounceMS) * time.Millisecond
}

func envValue(name string) string {
	if name == "" {
		return ""
	}
	return os.Getenv(name)
}
