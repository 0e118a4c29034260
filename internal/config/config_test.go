package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/knowledge-rag/internal/state"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, env := range []string{EnvConfig, EnvDocumentsDir, EnvDataDir, EnvEmbedding, EnvGenerationModel, EnvLogLevel} {
		t.Setenv(env, "")
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "documents", cfg.DocumentsDir)
	assert.Equal(t, 1000, cfg.Index.ChunkSize)
	assert.Equal(t, 200, cfg.Index.ChunkOverlap)
	assert.Equal(t, []string{".txt", ".md", ".py", ".js", ".json", ".csv"}, cfg.Index.Extensions)
	assert.Equal(t, 1000, cfg.Index.BatchSize)
	assert.Equal(t, "knowledge_base", cfg.Storage.Collection)
	assert.Equal(t, "cosine", cfg.Storage.Metric)
	assert.Equal(t, 5, cfg.Chat.TopK)
	assert.Equal(t, 50, cfg.Chat.HistoryCapacity)
	assert.InDelta(t, 0.7, cfg.Generation.Temperature, 1e-9)
	assert.Equal(t, "llama3.1:8b", cfg.Generation.Model)
	assert.Equal(t, 750*time.Millisecond, cfg.WatchDebounce())
	assert.Positive(t, cfg.Workers())
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "knowledge-rag.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
documents_dir: docs
index:
  chunk_size: 500
  chunk_overlap: 50
  workers: 3
storage:
  state_backend: bolt
embedding:
  provider: openai
  api_key_env: MY_EMBED_KEY
  rate_limit: 2.5
chat:
  top_k: 8
`), 0o644))
	t.Setenv("MY_EMBED_KEY", "sk-test")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "docs", cfg.DocumentsDir)
	assert.Equal(t, ".knowledge-rag", cfg.DataDir, "unset fields keep defaults")
	assert.Equal(t, 500, cfg.Index.ChunkSize)
	assert.Equal(t, 3, cfg.Workers())
	assert.Equal(t, 8, cfg.Chat.TopK)
	assert.Equal(t, filepath.Join(".knowledge-rag", "index_state.db"), cfg.StatePath())

	ec := cfg.EmbedderConfig()
	assert.Equal(t, "openai", ec.Provider)
	assert.Equal(t, "sk-test", ec.APIKey)
	assert.InDelta(t, 2.5, ec.RateLimit, 1e-9)
	assert.Equal(t, 60*time.Second, ec.Timeout)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvDocumentsDir, "/srv/docs")
	t.Setenv(EnvDataDir, "/var/lib/rag")
	t.Setenv(EnvEmbedding, "local")
	t.Setenv(EnvGenerationModel, "mistral")
	t.Setenv(EnvLogLevel, "debug")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/srv/docs", cfg.DocumentsDir)
	assert.Equal(t, filepath.Join("/var/lib/rag", "vectors.db"), cfg.DatabasePath())
	assert.Equal(t, filepath.Join("/var/lib/rag", "index.lock"), cfg.LockPath())
	assert.Equal(t, "local", cfg.Embedding.Provider)
	assert.Equal(t, "mistral", cfg.GeneratorConfig().Model)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_InvalidYAML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("index: [unclosed"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"overlap equals size", func(c *Config) { c.Index.ChunkOverlap = c.Index.ChunkSize }},
		{"zero chunk size", func(c *Config) { c.Index.ChunkSize = 0 }},
		{"zero batch", func(c *Config) { c.Index.BatchSize = 0 }},
		{"batch over provider limit", func(c *Config) { c.Index.BatchSize = 5000 }},
		{"unknown metric", func(c *Config) { c.Storage.Metric = "l2" }},
		{"unknown backend", func(c *Config) { c.Storage.StateBackend = "redis" }},
		{"no extensions", func(c *Config) { c.Index.Extensions = nil }},
		{"bad log level", func(c *Config) { c.Log.Level = "chatty" }},
		{"temperature too high", func(c *Config) { c.Generation.Temperature = 3 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}

	assert.NoError(t, Default().Validate())
}

func TestSaveAndLoad(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.Storage.StateBackend = state.BackendBolt
	cfg.Chat.TopK = 3

	require.NoError(t, Save(path, cfg))
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoadDefault_EnvPath(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("documents_dir: custom\n"), 0o644))
	t.Setenv(EnvConfig, path)

	cfg, used, err := LoadDefault()
	require.NoError(t, err)
	assert.Equal(t, path, used)
	assert.Equal(t, "custom", cfg.DocumentsDir)
}
