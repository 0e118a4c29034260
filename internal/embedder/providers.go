package embedder

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync/atomic"
	"time"
)

// Provider configuration
const (
	ProviderJina   = "jina"
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
	ProviderLocal  = "local"

	// Default models
	DefaultJinaModel   = "jina-embeddings-v3"
	DefaultOpenAIModel = "text-embedding-3-small"
	DefaultOllamaModel = "all-minilm"
	DefaultLocalModel  = "local-embeddings"

	// Default endpoints
	DefaultJinaBaseURL   = "https://api.jina.ai/v1"
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	DefaultOllamaBaseURL = "http://localhost:11434"

	// Dimensions
	JinaDimension   = 1024
	OpenAIDimension = 1536
	LocalDimension  = 384

	// Batch limits. A full indexing batch (1000 chunks) fits in one call.
	DefaultBatchSize = 1000
	MaxBatchSize     = 2048

	// Retry configuration
	MaxRetries        = 3
	InitialBackoffMs  = 100
	MaxBackoffMs      = 5000
	BackoffMultiplier = 2.0

	// Environment variables for API keys
	EnvJinaAPIKey   = "JINA_API_KEY"
	EnvOpenAIAPIKey = "OPENAI_API_KEY"

	defaultTimeout = 60 * time.Second
)

// ProviderOptions configures a remote provider
type ProviderOptions struct {
	APIKey  string
	BaseURL string        // Endpoint root, without the /embeddings suffix
	Model   string        // Empty = provider default
	Timeout time.Duration // HTTP timeout (default: 60s)
	Cache   *Cache        // Optional
}

func (o ProviderOptions) withDefaults(baseURL, model string) ProviderOptions {
	if o.BaseURL == "" {
		o.BaseURL = baseURL
	}
	o.BaseURL = strings.TrimRight(o.BaseURL, "/")
	if o.Model == "" {
		o.Model = model
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	return o
}

// embeddingsClient speaks the OpenAI-style /embeddings API that Jina also implements
type embeddingsClient struct {
	provider   string
	apiKey     string
	baseURL    string
	model      string
	dimension  int
	httpClient *http.Client
	cache      *Cache
}

func newEmbeddingsClient(provider string, opts ProviderOptions, dimension int) *embeddingsClient {
	return &embeddingsClient{
		provider:  provider,
		apiKey:    opts.APIKey,
		baseURL:   opts.BaseURL,
		model:     opts.Model,
		dimension: dimension,
		httpClient: &http.Client{
			Timeout: opts.Timeout,
		},
		cache: opts.Cache,
	}
}

func (c *embeddingsClient) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	// Use batch API for consistency
	resp, err := c.GenerateBatch(ctx, BatchEmbeddingRequest{
		Texts: []string{req.Text},
		Model: req.Model,
	})
	if err != nil {
		return nil, err
	}
	return resp.Embeddings[0], nil
}

func (c *embeddingsClient) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}

	model := req.Model
	if model == "" {
		model = c.model
	}

	embeddings, err := generateCached(ctx, c.cache, req, model, c.callAPI)
	if err != nil {
		return nil, err
	}

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   c.provider,
		Model:      model,
	}, nil
}

func (c *embeddingsClient) callAPI(ctx context.Context, texts []string, model string) ([]*Embedding, error) {
	reqBody := map[string]interface{}{
		"input": texts,
		"model": model,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{Code: resp.StatusCode, Body: string(bodyBytes)}
	}

	var apiResp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
		Model string `json:"model"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	// The API may return items out of order; index is authoritative
	sort.Slice(apiResp.Data, func(i, j int) bool { return apiResp.Data[i].Index < apiResp.Data[j].Index })

	if apiResp.Model == "" {
		apiResp.Model = model
	}
	embeddings := make([]*Embedding, len(apiResp.Data))
	for i, data := range apiResp.Data {
		embeddings[i] = &Embedding{
			Vector:    data.Embedding,
			Dimension: len(data.Embedding),
			Provider:  c.provider,
			Model:     apiResp.Model,
		}
	}

	return embeddings, nil
}

func (c *embeddingsClient) Dimension() int {
	return c.dimension
}

func (c *embeddingsClient) Provider() string {
	return c.provider
}

func (c *embeddingsClient) Model() string {
	return c.model
}

func (c *embeddingsClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// JinaProvider implements Embedder using Jina AI API
type JinaProvider struct {
	*embeddingsClient
}

// NewJinaProvider creates a new Jina AI embedder
func NewJinaProvider(opts ProviderOptions) (*JinaProvider, error) {
	if opts.APIKey == "" {
		opts.APIKey = os.Getenv(EnvJinaAPIKey)
	}
	if opts.APIKey == "" {
		return nil, fmt.Errorf("%w: %s not set", ErrNoProviderEnabled, EnvJinaAPIKey)
	}
	opts = opts.withDefaults(DefaultJinaBaseURL, DefaultJinaModel)
	return &JinaProvider{newEmbeddingsClient(ProviderJina, opts, JinaDimension)}, nil
}

// OpenAIProvider implements Embedder using OpenAI API
type OpenAIProvider struct {
	*embeddingsClient
}

// NewOpenAIProvider creates a new OpenAI embedder
func NewOpenAIProvider(opts ProviderOptions) (*OpenAIProvider, error) {
	if opts.APIKey == "" {
		opts.APIKey = os.Getenv(EnvOpenAIAPIKey)
	}
	if opts.APIKey == "" {
		return nil, fmt.Errorf("%w: %s not set", ErrNoProviderEnabled, EnvOpenAIAPIKey)
	}
	opts = opts.withDefaults(DefaultOpenAIBaseURL, DefaultOpenAIModel)
	return &OpenAIProvider{newEmbeddingsClient(ProviderOpenAI, opts, OpenAIDimension)}, nil
}

// LocalProvider produces deterministic pseudo-embeddings without a model.
// Identical texts map to identical unit vectors, which is enough for offline
// use and tests but carries no semantic similarity.
type LocalProvider struct {
	model string
	cache *Cache
	calls atomic.Int64
}

// NewLocalProvider creates a new local embedder
func NewLocalProvider(cache *Cache) (*LocalProvider, error) {
	return &LocalProvider{
		model: DefaultLocalModel,
		cache: cache,
	}, nil
}

func (l *LocalProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	resp, err := l.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: []string{req.Text}, Model: req.Model})
	if err != nil {
		return nil, err
	}
	return resp.Embeddings[0], nil
}

func (l *LocalProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}

	embeddings, err := generateCached(ctx, l.cache, req, l.model, l.embed)
	if err != nil {
		return nil, err
	}

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   ProviderLocal,
		Model:      l.model,
	}, nil
}

func (l *LocalProvider) embed(ctx context.Context, texts []string, model string) ([]*Embedding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.calls.Add(1)

	embeddings := make([]*Embedding, len(texts))
	for i, text := range texts {
		embeddings[i] = &Embedding{
			Vector:    localVector(text),
			Dimension: LocalDimension,
			Provider:  ProviderLocal,
			Model:     l.model,
		}
	}
	return embeddings, nil
}

// localVector expands SHA-256(counter || text) into a unit vector
func localVector(text string) []float32 {
	vector := make([]float32, LocalDimension)
	var block [4]byte
	for i := 0; i < LocalDimension; i += 8 {
		binary.LittleEndian.PutUint32(block[:], uint32(i))
		h := sha256.New()
		h.Write(block[:])
		h.Write([]byte(text))
		sum := h.Sum(nil)
		for j := 0; j < 8 && i+j < LocalDimension; j++ {
			bits := binary.LittleEndian.Uint32(sum[j*4:])
			vector[i+j] = float32(bits)/float32(math.MaxUint32)*2 - 1
		}
	}
	return NormalizeVector(vector)
}

// Calls returns the number of uncached embedding computations performed
func (l *LocalProvider) Calls() int64 {
	return l.calls.Load()
}

func (l *LocalProvider) Dimension() int {
	return LocalDimension
}

func (l *LocalProvider) Provider() string {
	return ProviderLocal
}

func (l *LocalProvider) Model() string {
	return l.model
}

func (l *LocalProvider) Close() error {
	return nil
}

// NormalizeVector normalizes a vector to unit length (for cosine similarity)
func NormalizeVector(v []float32) []float32 {
	var sum float64
	for _, val := range v {
		sum += float64(val) * float64(val)
	}

	if sum == 0 {
		return v
	}

	norm := float32(math.Sqrt(sum))
	result := make([]float32, len(v))
	for i, val := range v {
		result[i] = val / norm
	}

	return result
}
