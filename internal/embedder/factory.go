package embedder

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// EnvProvider selects the embedding provider
const EnvProvider = "KNOWLEDGE_RAG_EMBEDDING_PROVIDER"

// Config holds embedder configuration
type Config struct {
	Provider  string        // jina, openai, ollama, local; empty = auto-detect
	APIKey    string        // Falls back to the provider's environment variable
	BaseURL   string        // Empty = provider default
	Model     string        // Empty = provider default
	CacheSize int           // 0 disables the cache
	Timeout   time.Duration // HTTP timeout
	RateLimit float64       // Requests per second; 0 = unlimited
	RateBurst int
}

// NewFromEnv creates an embedder based on environment variables
// Priority:
// 1. KNOWLEDGE_RAG_EMBEDDING_PROVIDER (jina, openai, ollama, local)
// 2. Check for API keys: JINA_API_KEY, OPENAI_API_KEY
// 3. Default to local if no API keys found
func NewFromEnv() (Embedder, error) {
	return New(Config{Provider: DetectProvider(), CacheSize: 10000})
}

// New creates an embedder with explicit configuration
func New(cfg Config) (Embedder, error) {
	var cache *Cache
	if cfg.CacheSize > 0 {
		cache = NewCache(cfg.CacheSize)
	}

	opts := ProviderOptions{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		Timeout: cfg.Timeout,
		Cache:   cache,
	}

	provider := strings.ToLower(cfg.Provider)
	if provider == "" {
		provider = DetectProvider()
	}

	var (
		e   Embedder
		err error
	)
	switch provider {
	case ProviderJina:
		e, err = NewJinaProvider(opts)
	case ProviderOpenAI:
		e, err = NewOpenAIProvider(opts)
	case ProviderOllama:
		e, err = NewOllamaProvider(opts)
	case ProviderLocal:
		e, err = NewLocalProvider(cache)
	default:
		return nil, fmt.Errorf("%w: unknown provider %s", ErrUnsupportedModel, cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	return NewRateLimited(e, cfg.RateLimit, cfg.RateBurst), nil
}

// DetectProvider returns the provider that would be used based on current environment
func DetectProvider() string {
	provider := os.Getenv(EnvProvider)
	if provider != "" {
		return strings.ToLower(provider)
	}

	if os.Getenv(EnvJinaAPIKey) != "" {
		return ProviderJina
	}
	if os.Getenv(EnvOpenAIAPIKey) != "" {
		return ProviderOpenAI
	}

	return ProviderLocal
}
