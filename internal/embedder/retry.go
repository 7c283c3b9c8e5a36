package embedder

import (
	"context"
	"time"
)

// Retry defaults, applied only when a caller opts into WithRetry
const (
	DefaultMaxRetries        = 3
	DefaultInitialBackoff    = 100 * time.Millisecond
	DefaultMaxBackoff        = 5 * time.Second
	DefaultBackoffMultiplier = 2.0
)

// RetryConfig configures exponential backoff retry behavior
type RetryConfig struct {
	MaxRetries int           // Retries after the first attempt; 0 disables retrying
	BaseDelay  time.Duration // Initial delay between retries
	MaxDelay   time.Duration // Maximum delay between retries
	Multiplier float64       // Exponential backoff multiplier
}

// DefaultRetryConfig returns sensible defaults for API retry
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: DefaultMaxRetries,
		BaseDelay:  DefaultInitialBackoff,
		MaxDelay:   DefaultMaxBackoff,
		Multiplier: DefaultBackoffMultiplier,
	}
}

// WithRetry wraps provider so failed EmbedMany calls are retried with backoff.
// Nothing in the pipeline retries on its own; this is a caller policy.
func WithRetry(provider Provider, config RetryConfig) Provider {
	if config.MaxRetries <= 0 {
		return provider
	}
	if config.Multiplier < 1 {
		config.Multiplier = 1
	}
	return &retryingProvider{Provider: provider, config: config}
}

type retryingProvider struct {
	Provider
	config RetryConfig
}

type embedManyResult struct {
	vectors [][]float32
	tokens  int
}

func (r *retryingProvider) EmbedMany(ctx context.Context, texts []string) ([][]float32, int, error) {
	res, err := retryWithBackoff(ctx, r.config, func() (embedManyResult, error) {
		vectors, tokens, err := r.Provider.EmbedMany(ctx, texts)
		return embedManyResult{vectors: vectors, tokens: tokens}, err
	})
	if err != nil {
		return nil, 0, err
	}
	return res.vectors, res.tokens, nil
}

// retryWithBackoff executes a function with exponential backoff retry logic
// The function fn should return (result, error). Retry is skipped on context cancellation.
func retryWithBackoff[T any](ctx context.Context, config RetryConfig, fn func() (T, error)) (T, error) {
	var lastErr error
	var zero T
	backoff := config.BaseDelay

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}

		lastErr = err

		// Don't retry on context cancellation
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}

		if attempt < config.MaxRetries {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(backoff):
				backoff = time.Duration(float64(backoff) * config.Multiplier)
				if config.MaxDelay > 0 && backoff > config.MaxDelay {
					backoff = config.MaxDelay
				}
			}
		}
	}

	return zero, lastErr
}
