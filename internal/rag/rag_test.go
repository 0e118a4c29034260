package rag

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/knowledge-rag/internal/embedder"
	"github.com/dshills/knowledge-rag/internal/generator"
	"github.com/dshills/knowledge-rag/pkg/types"
)

type countingEmbedder struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (c *countingEmbedder) GenerateEmbedding(_ context.Context, req embedder.EmbeddingRequest) (*embedder.Embedding, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return &embedder.Embedding{Vector: []float32{1, 0, 0}, Dimension: 3}, nil
}

type fakeRetriever struct {
	results []types.SearchResult
	err     error
	lastK   int
}

func (f *fakeRetriever) Query(_ context.Context, _ []float32, k int) ([]types.SearchResult, error) {
	f.lastK = k
	if f.err != nil {
		return nil, f.err
	}
	return f.results[:min(k, len(f.results))], nil
}

type fakeGenerator struct {
	reply   string
	err     error
	prompts []string
	opts    []generator.Options
}

func (f *fakeGenerator) Generate(_ context.Context, prompt string, opts generator.Options) (string, error) {
	f.prompts = append(f.prompts, prompt)
	f.opts = append(f.opts, opts)
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeGenerator) Model() string { return "fake" }

func sampleResults() []types.SearchResult {
	return []types.SearchResult{
		{Rank: 1, ID: "a.txt_chunk_0", Source: "a.txt", Content: "Alpha facts."},
		{Rank: 2, ID: "b.md_chunk_3", Source: "b.md", Content: "Beta facts."},
	}
}

func newAnswerer(t *testing.T, cfg Config) *Answerer {
	t.Helper()
	a, err := New(cfg)
	require.NoError(t, err)
	return a
}

func TestBuildPrompt(t *testing.T) {
	got := BuildPrompt("What is alpha?", sampleResults(), nil)
	want := "Based on the following context, answer the user's question. If the answer is not in the context, say so.\n\n" +
		"Context from documents:\n" +
		"Source: a.txt\nAlpha facts.\n\nSource: b.md\nBeta facts.\n\n" +
		"Current question: What is alpha?\n\n" +
		"Answer:"
	assert.Equal(t, want, got)
}

func TestBuildPrompt_WithConversation(t *testing.T) {
	recent := []Exchange{{Question: "hi", Answer: "hello"}}
	got := BuildPrompt("next?", sampleResults()[:1], recent)
	assert.Contains(t, got, "Source: a.txt\nAlpha facts.\n\nPrevious conversation:\nHuman: hi\nAssistant: hello\n\n\n\nCurrent question: next?")
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{Store: &fakeRetriever{}, Generator: &fakeGenerator{}})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestAsk_NoResults(t *testing.T) {
	gen := &fakeGenerator{reply: "unused"}
	a := newAnswerer(t, Config{Embedder: &countingEmbedder{}, Store: &fakeRetriever{}, Generator: gen})

	ans, err := a.Ask(context.Background(), "anything?", AskOptions{})
	require.NoError(t, err)
	assert.Equal(t, NoResultsAnswer, ans.Text)
	assert.Empty(t, gen.prompts, "generator not called without context")
	assert.Equal(t, 1, a.History().Len())
}

func TestAsk_UsesContextAndHistory(t *testing.T) {
	gen := &fakeGenerator{reply: "Alpha is the first letter."}
	store := &fakeRetriever{results: sampleResults()}
	a := newAnswerer(t, Config{Embedder: &countingEmbedder{}, Store: store, Generator: gen, HistoryWindow: 1})
	ctx := context.Background()

	ans, err := a.Ask(ctx, "  What is alpha? ", AskOptions{})
	require.NoError(t, err)
	assert.Equal(t, "What is alpha?", ans.Question)
	assert.Equal(t, "Alpha is the first letter.", ans.Text)
	assert.Len(t, ans.Sources, 2)
	assert.Equal(t, DefaultTopK, store.lastK)
	require.Len(t, gen.opts, 1)
	assert.InDelta(t, generator.DefaultTemperature, gen.opts[0].Temperature, 1e-9)
	assert.NotContains(t, gen.prompts[0], "Previous conversation")

	_, err = a.Ask(ctx, "And beta?", AskOptions{})
	require.NoError(t, err)
	assert.Contains(t, gen.prompts[1], "Human: What is alpha?\nAssistant: Alpha is the first letter.")

	_, err = a.Ask(ctx, "Third?", AskOptions{})
	require.NoError(t, err)
	assert.NotContains(t, gen.prompts[2], "What is alpha?", "window limits included exchanges")
	assert.Contains(t, gen.prompts[2], "Human: And beta?")
}

func TestAsk_GenerationErrorIsAnswer(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("connection refused")}
	a := newAnswerer(t, Config{Embedder: &countingEmbedder{}, Store: &fakeRetriever{results: sampleResults()}, Generator: gen})

	ans, err := a.Ask(context.Background(), "q", AskOptions{})
	require.NoError(t, err)
	assert.Equal(t, "Error generating response: connection refused", ans.Text)
	assert.EqualError(t, ans.Err, "connection refused")
	assert.Equal(t, ans.Text, a.History().Recent(1)[0].Answer)
}

func TestAsk_Options(t *testing.T) {
	gen := &fakeGenerator{reply: "ok"}
	store := &fakeRetriever{results: sampleResults()}
	a := newAnswerer(t, Config{Embedder: &countingEmbedder{}, Store: store, Generator: gen, Model: "m1"})
	temp := 0.1

	_, err := a.Ask(context.Background(), "q", AskOptions{TopK: 1, Temperature: &temp, NoHistory: true})
	require.NoError(t, err)
	assert.Equal(t, 1, store.lastK)
	assert.InDelta(t, 0.1, gen.opts[0].Temperature, 1e-9)
	assert.Equal(t, "m1", gen.opts[0].Model)
	assert.Zero(t, a.History().Len())
}

func TestAsk_RetrievalErrors(t *testing.T) {
	a := newAnswerer(t, Config{
		Embedder:  &countingEmbedder{err: embedder.ErrProviderFailed},
		Store:     &fakeRetriever{},
		Generator: &fakeGenerator{},
	})
	_, err := a.Ask(context.Background(), "q", AskOptions{})
	assert.ErrorIs(t, err, embedder.ErrProviderFailed)

	_, err = a.Ask(context.Background(), "   ", AskOptions{})
	assert.ErrorIs(t, err, ErrEmptyQuery)
	assert.Zero(t, a.History().Len())

	storeErr := errors.New("db closed")
	a = newAnswerer(t, Config{Embedder: &countingEmbedder{}, Store: &fakeRetriever{err: storeErr}, Generator: &fakeGenerator{}})
	_, err = a.Search(context.Background(), "q", 3)
	assert.ErrorIs(t, err, storeErr)
}

func TestSearch_QueryCache(t *testing.T) {
	emb := &countingEmbedder{}
	store := &fakeRetriever{results: sampleResults()}
	a := newAnswerer(t, Config{Embedder: emb, Store: store, Generator: &fakeGenerator{}, QueryCacheSize: 8})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := a.Search(ctx, "same question", 2)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, emb.calls)

	_, err := a.Search(ctx, "other question", 500)
	require.NoError(t, err)
	assert.Equal(t, 2, emb.calls)
	assert.Equal(t, MaxTopK, store.lastK)
}
