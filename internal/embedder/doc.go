// Package embedder converts chunk and query text into fixed-dimension vectors.
//
// # Providers
//
// A Provider wraps one external embedding service:
//   - openai: OpenAI embeddings API through openai-go, or any OpenAI-compatible BaseURL
//   - jina: Jina AI embeddings API
//   - local: deterministic feature-hashed vectors, no network
//
// API keys come from configuration, falling back to OPENAI_API_KEY and JINA_API_KEY.
//
// # Client
//
// Client sits in front of a Provider and enforces the embedding contract:
//
//	provider, err := embedder.New(embedder.Config{Provider: "openai", Model: "text-embedding-3-small"})
//	client := embedder.NewClient(provider, embedder.WithCache(embedder.NewCache(10000)))
//
//	res, err := client.Embed(ctx, "termination notice period")
//	results, err := client.EmbedBatch(ctx, chunkTexts)
//
// Blank input fails with types.ErrEmptyInput (single) or types.ErrAllInputsEmpty
// (batch, after dropping blank entries). Vector count and length are checked
// against the provider; mismatches surface as *types.ProviderError.
//
// Batch token accounting splits the provider's billed total evenly across the
// batch. It is an estimate; providers do not report per-input usage.
//
// # Retries
//
// The client never retries. Callers that want backoff opt in:
//
//	provider = embedder.WithRetry(provider, embedder.DefaultRetryConfig())
//
// # Similarity
//
//	sim, err := embedder.CosineSimilarity(a, b) // *types.DimensionMismatchError if len(a) != len(b)
package embedder
