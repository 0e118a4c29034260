package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dshills/knowledge-rag/internal/embedder"
	"github.com/dshills/knowledge-rag/internal/generator"
	"github.com/dshills/knowledge-rag/pkg/types"
)

var (
	// ErrEmptyQuery is returned for a blank question
	ErrEmptyQuery = errors.New("query cannot be empty")
	// ErrInvalidConfig is returned by New for missing collaborators
	ErrInvalidConfig = errors.New("invalid rag config")
)

// Defaults
const (
	DefaultTopK          = 5
	DefaultHistoryWindow = 5
	MaxTopK              = 100
)

// QueryEmbedder embeds a single query
type QueryEmbedder interface {
	GenerateEmbedding(ctx context.Context, req embedder.EmbeddingRequest) (*embedder.Embedding, error)
}

// Retriever returns the records closest to a vector
type Retriever interface {
	Query(ctx context.Context, vector []float32, k int) ([]types.SearchResult, error)
}

// Config configures an Answerer
type Config struct {
	Embedder        QueryEmbedder
	Store           Retriever
	Generator       generator.Generator
	TopK            int     // Chunks retrieved per question (default: 5)
	HistoryWindow   int     // Exchanges included in the prompt (default: 5)
	HistoryCapacity int     // Exchanges kept (default: 50)
	Temperature     float64 // 0 = generator.DefaultTemperature
	Model           string  // Empty = generator default
	QueryCacheSize  int     // Cached query embeddings; 0 disables the cache
	Logger          *slog.Logger
}

// AskOptions override per-question settings
type AskOptions struct {
	TopK        int      // 0 = configured TopK
	Temperature *float64 // nil = configured temperature
	NoHistory   bool     // Neither read nor record conversation history
}

// Answer is the result of Ask
type Answer struct {
	Question string
	Text     string
	Sources  []types.SearchResult
	Err      error // Generation failure; Text carries the rendered message
	Duration time.Duration
}

// Answerer retrieves context and generates answers
type Answerer struct {
	embedder    QueryEmbedder
	store       Retriever
	generator   generator.Generator
	topK        int
	window      int
	temperature float64
	model       string
	history     *History
	cache       *lru.Cache[string, []float32]
	logger      *slog.Logger
}

// New creates an Answerer
func New(cfg Config) (*Answerer, error) {
	if cfg.Embedder == nil || cfg.Store == nil || cfg.Generator == nil {
		return nil, fmt.Errorf("%w: embedder, store and generator are required", ErrInvalidConfig)
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = DefaultHistoryWindow
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = generator.DefaultTemperature
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	a := &Answerer{
		embedder:    cfg.Embedder,
		store:       cfg.Store,
		generator:   cfg.Generator,
		topK:        cfg.TopK,
		window:      cfg.HistoryWindow,
		temperature: cfg.Temperature,
		model:       cfg.Model,
		history:     NewHistory(cfg.HistoryCapacity),
		logger:      cfg.Logger,
	}
	if cfg.QueryCacheSize > 0 {
		cache, err := lru.New[string, []float32](cfg.QueryCacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create query cache: %w", err)
		}
		a.cache = cache
	}
	return a, nil
}

// History returns the conversation history
func (a *Answerer) History() *History {
	return a.history
}

// Search returns the k chunks closest to the query
func (a *Answerer) Search(ctx context.Context, query string, k int) ([]types.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if k <= 0 {
		k = a.topK
	}
	k = min(k, MaxTopK)

	vector, err := a.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	results, err := a.store.Query(ctx, vector, k)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	return results, nil
}

func (a *Answerer) embedQuery(ctx context.Context, query string) ([]float32, error) {
	if a.cache != nil {
		if v, ok := a.cache.Get(query); ok {
			return v, nil
		}
	}

	emb, err := a.embedder.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	if a.cache != nil {
		a.cache.Add(query, emb.Vector)
	}
	return emb.Vector, nil
}

// Ask answers a question from the top matching chunks and records the
// exchange in the history. A generation failure is not an error: the
// answer text reports it and Answer.Err holds the cause.
func (a *Answerer) Ask(ctx context.Context, question string, opts AskOptions) (*Answer, error) {
	start := time.Now()
	question = strings.TrimSpace(question)

	results, err := a.Search(ctx, question, opts.TopK)
	if err != nil {
		return nil, err
	}

	ans := &Answer{Question: question, Sources: results}
	if len(results) == 0 {
		ans.Text = NoResultsAnswer
	} else {
		var recent []Exchange
		if !opts.NoHistory {
			recent = a.history.Recent(a.window)
		}

		temperature := a.temperature
		if opts.Temperature != nil {
			temperature = *opts.Temperature
		}

		prompt := BuildPrompt(question, results, recent)
		text, err := a.generator.Generate(ctx, prompt, generator.Options{
			Temperature: temperature,
			Model:       a.model,
		})
		if err != nil {
			a.logger.Warn("generation failed", "error", err)
			ans.Err = err
			text = fmt.Sprintf("Error generating response: %v", err)
		}
		ans.Text = text
	}

	if !opts.NoHistory {
		a.history.Add(Exchange{Question: question, Answer: ans.Text})
	}
	ans.Duration = time.Since(start)
	return ans, nil
}
