package embedder

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimited wraps an Embedder so provider calls do not exceed a request rate
type RateLimited struct {
	Embedder
	limiter *rate.Limiter
}

// NewRateLimited limits e to rps requests per second with the given burst.
// A non-positive rps returns e unchanged.
func NewRateLimited(e Embedder, rps float64, burst int) Embedder {
	if rps <= 0 {
		return e
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{
		Embedder: e,
		limiter:  rate.NewLimiter(rate.Limit(rps), burst),
	}
}

func (r *RateLimited) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	return r.Embedder.GenerateEmbedding(ctx, req)
}

func (r *RateLimited) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	return r.Embedder.GenerateBatch(ctx, req)
}
