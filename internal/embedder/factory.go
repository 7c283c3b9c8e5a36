package embedder

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config holds embedder configuration
type Config struct {
	Provider  string
	Model     string
	APIKey    string
	BaseURL   string
	Dimension int
	Timeout   time.Duration
	Retry     RetryConfig
}

// New creates a provider with explicit configuration, wrapped in the retry
// decorator when Retry.MaxRetries > 0
func New(cfg Config) (Provider, error) {
	provider, err := newProvider(cfg)
	if err != nil {
		return nil, err
	}
	return WithRetry(provider, cfg.Retry), nil
}

func newProvider(cfg Config) (Provider, error) {
	pc := ProviderConfig{
		APIKey:    cfg.APIKey,
		Model:     cfg.Model,
		BaseURL:   cfg.BaseURL,
		Dimension: cfg.Dimension,
		Timeout:   cfg.Timeout,
	}

	name := strings.ToLower(cfg.Provider)
	if name == "" {
		name = DetectProvider()
	}

	switch name {
	case ProviderJina:
		return NewJinaProvider(pc)
	case ProviderOpenAI:
		return NewOpenAIProvider(pc)
	case ProviderLocal:
		return NewLocalProvider(pc)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, cfg.Provider)
	}
}

// DetectProvider picks a provider from the API keys present in the environment,
// falling back to local
func DetectProvider() string {
	if os.Getenv(EnvOpenAIAPIKey) != "" {
		return ProviderOpenAI
	}
	if os.Getenv(EnvJinaAPIKey) != "" {
		return ProviderJina
	}
	return ProviderLocal
}
