// Package embedder turns chunk text into vector embeddings.
//
// Four providers are available behind one Embedder interface: Jina AI,
// OpenAI, a local Ollama server, and an offline deterministic provider. All of
// them batch, cache by content hash, and retry transient failures.
//
// # Basic Usage
//
//	emb, err := embedder.New(embedder.Config{Provider: "ollama", CacheSize: 10000})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer emb.Close()
//
//	resp, err := emb.GenerateBatch(ctx, embedder.BatchEmbeddingRequest{
//	    Texts: []string{chunk1.Text, chunk2.Text},
//	})
//	for i, vector := range resp.Vectors() {
//	    // Store vector for chunk i
//	}
//
// The indexing pipeline only needs GenerateBatch, so it depends on the
// narrower BatchEmbedder interface. Up to MaxBatchSize texts fit in one call.
//
// # Provider Selection
//
// When Config.Provider is empty the provider is chosen from the environment:
//
//  1. If KNOWLEDGE_RAG_EMBEDDING_PROVIDER is set → use specified provider
//  2. Else if JINA_API_KEY is set → use Jina AI
//  3. Else if OPENAI_API_KEY is set → use OpenAI
//  4. Else → fallback to local provider (offline mode)
//
// Ollama is never auto-detected; select it explicitly. Its default model is
// all-minilm (384 dimensions).
//
// # Provider Comparison
//
// Jina AI:
//   - Dimensions: 1024
//   - Cost: Free tier available
//
// OpenAI:
//   - Dimensions: 1536
//   - Cost: Pay per token
//
// Ollama:
//   - Dimensions: model dependent, learned from the first response
//   - Cost: Free (runs locally)
//
// Local (offline):
//   - Dimensions: 384
//   - Deterministic hash vectors with no semantic meaning; for tests and demos
//
// # Caching
//
// Cache keys combine the model name with the SHA-256 of the text, so a batch
// that is partly cached only sends the misses to the provider.
//
// # Error Handling
//
// Timeouts, 429 and 5xx responses are retried with exponential backoff.
// Other 4xx responses fail immediately. Exhausted retries wrap
// ErrProviderFailed:
//
//	resp, err := emb.GenerateBatch(ctx, req)
//	if errors.Is(err, embedder.ErrProviderFailed) {
//	    // Skip this batch; the next synchronization pass retries it
//	}
//
// # Rate Limiting
//
// NewRateLimited wraps any embedder with a token bucket so concurrent batch
// workers stay within provider quotas.
package embedder
