package embedder

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dshills/legalbrain/pkg/types"
)

// Client turns chunk and query texts into EmbeddingResults through a Provider.
// It validates provider output and never substitutes a default vector for a
// failed embedding.
type Client struct {
	provider Provider
	cache    *Cache
	logger   zerolog.Logger
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithCache enables the LRU cache in front of the provider
func WithCache(cache *Cache) ClientOption {
	return func(c *Client) {
		c.cache = cache
	}
}

// WithLogger sets the client logger
func WithLogger(logger zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a Client backed by provider
func NewClient(provider Provider, opts ...ClientOption) *Client {
	c := &Client{
		provider: provider,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Provider returns the underlying provider
func (c *Client) Provider() Provider {
	return c.provider
}

// Dimension returns the vector length of the provider model
func (c *Client) Dimension() int {
	return c.provider.Dimension()
}

// Model returns the provider model name
func (c *Client) Model() string {
	return c.provider.Model()
}

// Embed embeds a single text. Blank text fails with types.ErrEmptyInput.
func (c *Client) Embed(ctx context.Context, text string) (types.EmbeddingResult, error) {
	if strings.TrimSpace(text) == "" {
		return types.EmbeddingResult{}, types.ErrEmptyInput
	}

	results, err := c.embed(ctx, []string{text})
	if err != nil {
		return types.EmbeddingResult{}, err
	}

	return results[0], nil
}

// EmbedBatch embeds texts in one provider call.
//
// Blank entries are dropped first; if none remain it fails with
// types.ErrAllInputsEmpty. One result is returned per surviving text, in order.
// Per-item TokenCount is the provider's total divided evenly across the texts
// sent to it, with the remainder going to the first items. Providers do not
// report per-item usage for batched calls, so this is an estimate.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([]types.EmbeddingResult, error) {
	kept := make([]string, 0, len(texts))
	for _, text := range texts {
		if strings.TrimSpace(text) != "" {
			kept = append(kept, text)
		}
	}

	if len(kept) == 0 {
		return nil, types.ErrAllInputsEmpty
	}

	return c.embed(ctx, kept)
}

// embed resolves cache hits and sends the misses to the provider
func (c *Client) embed(ctx context.Context, texts []string) ([]types.EmbeddingResult, error) {
	results := make([]types.EmbeddingResult, len(texts))
	hashes := make([]string, len(texts))

	missIdx := make([]int, 0, len(texts))
	missTexts := make([]string, 0, len(texts))
	for i, text := range texts {
		if c.cache != nil {
			hashes[i] = ComputeHash(text)
			if vec, ok := c.cache.Get(hashes[i]); ok {
				results[i] = types.EmbeddingResult{Embedding: vec}
				continue
			}
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}

	if len(missTexts) == 0 {
		return results, nil
	}

	start := time.Now()
	vectors, totalTokens, err := c.provider.EmbedMany(ctx, missTexts)
	if err != nil {
		return nil, &types.ProviderError{ChunkIndex: types.NoChunkIndex, Err: err}
	}

	if len(vectors) != len(missTexts) {
		return nil, &types.ProviderError{
			ChunkIndex: types.NoChunkIndex,
			Err:        fmt.Errorf("provider returned %d vectors for %d inputs", len(vectors), len(missTexts)),
		}
	}

	want := c.provider.Dimension()
	for i, vec := range vectors {
		if len(vec) == 0 {
			return nil, &types.ProviderError{
				ChunkIndex: types.NoChunkIndex,
				Err:        fmt.Errorf("provider returned an empty vector for input %d", missIdx[i]),
			}
		}
		if want > 0 && len(vec) != want {
			return nil, &types.ProviderError{
				ChunkIndex: types.NoChunkIndex,
				Err:        &types.DimensionMismatchError{Want: want, Got: len(vec)},
			}
		}
	}

	shares := SplitTokens(totalTokens, len(vectors))
	for i, vec := range vectors {
		idx := missIdx[i]
		results[idx] = types.EmbeddingResult{Embedding: vec, TokenCount: shares[i]}
		if c.cache != nil {
			c.cache.Set(hashes[idx], vec)
		}
	}

	c.logger.Debug().
		Str("provider", c.provider.Name()).
		Int("inputs", len(texts)).
		Int("cache_hits", len(texts)-len(missTexts)).
		Int("tokens", totalTokens).
		Dur("duration", time.Since(start)).
		Msg("embedded batch")

	return results, nil
}

// SplitTokens divides total evenly across n items; the first total%n items
// get one extra token so the shares sum to total
func SplitTokens(total, n int) []int {
	shares := make([]int, n)
	if n == 0 || total <= 0 {
		return shares
	}

	base, rem := total/n, total%n
	for i := range shares {
		shares[i] = base
		if i < rem {
			shares[i]++
		}
	}
	return shares
}
