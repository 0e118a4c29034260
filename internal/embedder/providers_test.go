package embedder

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// embeddingsServer mimics the OpenAI/Jina /embeddings endpoint
func embeddingsServer(t *testing.T, calls *atomic.Int32, fail func(n int32) int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		if fail != nil {
			if code := fail(n); code != 0 {
				http.Error(w, "failure", code)
				return
			}
		}

		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		// Reverse order to check index-based reassembly
		data := make([]map[string]interface{}, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, map[string]interface{}{
				"index":     i,
				"embedding": []float32{float32(i), float32(len(req.Input[i]))},
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"model": req.Model, "data": data})
	}))
}

func TestOpenAIProvider_Batch(t *testing.T) {
	var calls atomic.Int32
	server := embeddingsServer(t, &calls, nil)
	defer server.Close()

	p, err := NewOpenAIProvider(ProviderOptions{APIKey: "test-key", BaseURL: server.URL + "/", Cache: NewCache(10)})
	require.NoError(t, err)
	defer p.Close()

	resp, err := p.GenerateBatch(context.Background(), BatchEmbeddingRequest{Texts: []string{"a", "bb", "ccc"}})
	require.NoError(t, err)

	assert.Equal(t, ProviderOpenAI, resp.Provider)
	assert.Equal(t, DefaultOpenAIModel, resp.Model)
	assert.Equal(t, [][]float32{{0, 1}, {1, 2}, {2, 3}}, resp.Vectors())

	// Second call is served from cache
	_, err = p.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "bb"})
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestJinaProvider_RetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	server := embeddingsServer(t, &calls, func(n int32) int {
		if n < 3 {
			return http.StatusServiceUnavailable
		}
		return 0
	})
	defer server.Close()

	p, err := NewJinaProvider(ProviderOptions{APIKey: "test-key", BaseURL: server.URL})
	require.NoError(t, err)

	resp, err := p.GenerateBatch(context.Background(), BatchEmbeddingRequest{Texts: []string{"x"}})
	require.NoError(t, err)
	assert.Len(t, resp.Embeddings, 1)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, JinaDimension, p.Dimension())
}

func TestProvider_PermanentErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := embeddingsServer(t, &calls, func(int32) int { return http.StatusUnauthorized })
	defer server.Close()

	p, err := NewOpenAIProvider(ProviderOptions{APIKey: "test-key", BaseURL: server.URL})
	require.NoError(t, err)

	_, err = p.GenerateBatch(context.Background(), BatchEmbeddingRequest{Texts: []string{"x"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProviderFailed)
	assert.Equal(t, int32(1), calls.Load())
}

func TestProvider_MissingAPIKey(t *testing.T) {
	t.Setenv(EnvJinaAPIKey, "")
	t.Setenv(EnvOpenAIAPIKey, "")

	_, err := NewJinaProvider(ProviderOptions{})
	assert.ErrorIs(t, err, ErrNoProviderEnabled)
	_, err = NewOpenAIProvider(ProviderOptions{})
	assert.ErrorIs(t, err, ErrNoProviderEnabled)
}

func TestOllamaProvider(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/api/embed", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))

		var req struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, DefaultOllamaModel, req.Model)

		vectors := make([][]float32, len(req.Input))
		for i := range vectors {
			vectors[i] = []float32{1, 0, float32(i)}
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"model": req.Model, "embeddings": vectors})
	}))
	defer server.Close()

	p, err := NewOllamaProvider(ProviderOptions{BaseURL: server.URL})
	require.NoError(t, err)
	defer p.Close()

	assert.Zero(t, p.Dimension(), "dimension unknown before first call")

	resp, err := p.GenerateBatch(context.Background(), BatchEmbeddingRequest{Texts: []string{"a", "b"}})
	require.NoError(t, err)
	assert.Len(t, resp.Embeddings, 2)
	assert.Equal(t, ProviderOllama, resp.Provider)
	assert.Equal(t, 3, p.Dimension())
}

func TestOllamaProvider_CountMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"embeddings": [][]float32{{1}}})
	}))
	defer server.Close()

	p, err := NewOllamaProvider(ProviderOptions{BaseURL: server.URL})
	require.NoError(t, err)

	_, err = p.GenerateBatch(context.Background(), BatchEmbeddingRequest{Texts: []string{"a", "b"}})
	assert.ErrorIs(t, err, ErrProviderFailed)
}

func TestRetryWithBackoff(t *testing.T) {
	config := RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2}

	t.Run("succeeds after failures", func(t *testing.T) {
		attempts := 0
		got, err := retryWithBackoff(context.Background(), config, func() (int, error) {
			attempts++
			if attempts < 3 {
				return 0, errors.New("transient")
			}
			return 7, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 7, got)
		assert.Equal(t, 3, attempts)
	})

	t.Run("gives up", func(t *testing.T) {
		attempts := 0
		_, err := retryWithBackoff(context.Background(), config, func() (int, error) {
			attempts++
			return 0, errors.New("down")
		})
		assert.EqualError(t, err, "down")
		assert.Equal(t, 3, attempts)
	})

	t.Run("stops on cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		attempts := 0
		_, err := retryWithBackoff(ctx, config, func() (int, error) {
			attempts++
			cancel()
			return 0, errors.New("down")
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, attempts)
	})

	t.Run("rate limited is retried", func(t *testing.T) {
		attempts := 0
		_, _ = retryWithBackoff(context.Background(), config, func() (int, error) {
			attempts++
			return 0, &StatusError{Code: http.StatusTooManyRequests}
		})
		assert.Equal(t, 3, attempts)
	})
}

func TestRateLimited(t *testing.T) {
	base := mustNewLocalProvider(t, nil)

	assert.Same(t, Embedder(base), NewRateLimited(base, 0, 0))

	limited := NewRateLimited(base, 1000, 1)
	_, err := limited.GenerateBatch(context.Background(), BatchEmbeddingRequest{Texts: []string{"a"}})
	require.NoError(t, err)
	assert.Equal(t, ProviderLocal, limited.Provider())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = limited.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: []string{"b"}})
	assert.ErrorIs(t, err, context.Canceled)
}
