package embedder

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
	"unicode"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/dshills/legalbrain/internal/chunker"
)

// Provider configuration
const (
	ProviderJina   = "jina"
	ProviderOpenAI = "openai"
	ProviderLocal  = "local"

	// Environment fallbacks for API keys
	EnvJinaAPIKey   = "JINA_API_KEY"
	EnvOpenAIAPIKey = "OPENAI_API_KEY"

	// Default models
	DefaultJinaModel   = "jina-embeddings-v3"
	DefaultOpenAIModel = "text-embedding-3-small"
	DefaultLocalModel  = "local-hash-embeddings"

	DefaultJinaURL = "https://api.jina.ai/v1/embeddings"

	// Dimensions
	JinaDimension   = 1024
	OpenAIDimension = 1536
	LocalDimension  = 384

	// Batch limits
	DefaultBatchSize = 50
	MaxBatchSize     = 100

	DefaultCacheSize = 10000
	DefaultTimeout   = 30 * time.Second
)

// ProviderConfig holds the settings shared by every provider
type ProviderConfig struct {
	APIKey    string
	Model     string
	BaseURL   string
	Dimension int
	Timeout   time.Duration
}

func validateBatch(texts []string) error {
	if len(texts) == 0 {
		return errors.New("no texts provided")
	}
	if len(texts) > MaxBatchSize {
		return fmt.Errorf("%w: %d texts, max %d", ErrBatchTooLarge, len(texts), MaxBatchSize)
	}
	return nil
}

// embeddingResponse is the wire format shared by OpenAI-compatible APIs and Jina
type embeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

// vectors orders the response data by its index field
func (r *embeddingResponse) vectors(n int) ([][]float32, error) {
	if r.Error != nil {
		return nil, errors.New(r.Error.Message)
	}
	if len(r.Data) != n {
		return nil, fmt.Errorf("got %d embeddings for %d inputs", len(r.Data), n)
	}

	out := make([][]float32, n)
	for _, d := range r.Data {
		if d.Index < 0 || d.Index >= n || out[d.Index] != nil {
			return nil, fmt.Errorf("invalid embedding index %d", d.Index)
		}
		vec := make([]float32, len(d.Embedding))
		for k, v := range d.Embedding {
			vec[k] = float32(v)
		}
		out[d.Index] = vec
	}

	return out, nil
}

func (r *embeddingResponse) tokens() int {
	if r.Usage.TotalTokens > 0 {
		return r.Usage.TotalTokens
	}
	return r.Usage.PromptTokens
}

// OpenAIProvider implements Provider using the OpenAI embeddings API.
// Any OpenAI-compatible endpoint (OpenRouter, Azure proxies, local servers)
// works through BaseURL.
type OpenAIProvider struct {
	client    openai.Client
	model     string
	dimension int
}

// NewOpenAIProvider creates a new OpenAI embedder with SDK retries disabled
func NewOpenAIProvider(cfg ProviderConfig) (*OpenAIProvider, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv(EnvOpenAIAPIKey)
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: %s not set", ErrNoProviderEnabled, EnvOpenAIAPIKey)
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = DefaultOpenAIModel
	}
	dimension := cfg.Dimension
	if dimension <= 0 {
		dimension = OpenAIDimension
	}

	return &OpenAIProvider{
		client:    openai.NewClient(opts...),
		model:     model,
		dimension: dimension,
	}, nil
}

func (o *OpenAIProvider) EmbedMany(ctx context.Context, texts []string) ([][]float32, int, error) {
	if err := validateBatch(texts); err != nil {
		return nil, 0, err
	}

	req := embeddingRequest{Model: o.model, Input: texts}
	if o.dimension != OpenAIDimension {
		req.Dimensions = o.dimension
	}

	var out embeddingResponse
	if err := o.client.Post(ctx, "/embeddings", req, &out); err != nil {
		return nil, 0, fmt.Errorf("openai embeddings: %w", err)
	}

	vectors, err := out.vectors(len(texts))
	if err != nil {
		return nil, 0, fmt.Errorf("openai embeddings: %w", err)
	}

	return vectors, out.tokens(), nil
}

func (o *OpenAIProvider) Dimension() int {
	return o.dimension
}

func (o *OpenAIProvider) Name() string {
	return ProviderOpenAI
}

func (o *OpenAIProvider) Model() string {
	return o.model
}

func (o *OpenAIProvider) Close() error {
	return nil
}

// JinaProvider implements Provider using the Jina AI embeddings API
type JinaProvider struct {
	apiKey     string
	model      string
	url        string
	dimension  int
	httpClient *http.Client
}

// NewJinaProvider creates a new Jina AI embedder
func NewJinaProvider(cfg ProviderConfig) (*JinaProvider, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv(EnvJinaAPIKey)
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: %s not set", ErrNoProviderEnabled, EnvJinaAPIKey)
	}

	p := &JinaProvider{
		apiKey:    apiKey,
		model:     cfg.Model,
		url:       cfg.BaseURL,
		dimension: cfg.Dimension,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
	if p.model == "" {
		p.model = DefaultJinaModel
	}
	if p.url == "" {
		p.url = DefaultJinaURL
	}
	if p.dimension <= 0 {
		p.dimension = JinaDimension
	}
	if p.httpClient.Timeout <= 0 {
		p.httpClient.Timeout = DefaultTimeout
	}

	return p, nil
}

func (j *JinaProvider) EmbedMany(ctx context.Context, texts []string) ([][]float32, int, error) {
	if err := validateBatch(texts); err != nil {
		return nil, 0, err
	}

	req := embeddingRequest{Model: j.model, Input: texts}
	if j.dimension != JinaDimension {
		req.Dimensions = j.dimension
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, 0, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, j.url, bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+j.apiKey)

	resp, err := j.httpClient.Do(httpReq)
	if err != nil {
		return nil, 0, fmt.Errorf("api call: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, 0, fmt.Errorf("api error %d: %s", resp.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}

	var out embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, 0, fmt.Errorf("decode response: %w", err)
	}

	vectors, err := out.vectors(len(texts))
	if err != nil {
		return nil, 0, err
	}

	return vectors, out.tokens(), nil
}

func (j *JinaProvider) Dimension() int {
	return j.dimension
}

func (j *JinaProvider) Name() string {
	return ProviderJina
}

func (j *JinaProvider) Model() string {
	return j.model
}

func (j *JinaProvider) Close() error {
	j.httpClient.CloseIdleConnections()
	return nil
}

// LocalProvider produces deterministic feature-hashed vectors without any
// network call. Texts sharing words get similar vectors, which is enough for
// offline development and tests; it is not a semantic model.
type LocalProvider struct {
	model     string
	dimension int
}

// NewLocalProvider creates a new local embedder
func NewLocalProvider(cfg ProviderConfig) (*LocalProvider, error) {
	p := &LocalProvider{model: cfg.Model, dimension: cfg.Dimension}
	if p.model == "" {
		p.model = DefaultLocalModel
	}
	if p.dimension <= 0 {
		p.dimension = LocalDimension
	}
	return p, nil
}

func (l *LocalProvider) EmbedMany(ctx context.Context, texts []string) ([][]float32, int, error) {
	if err := validateBatch(texts); err != nil {
		return nil, 0, err
	}

	vectors := make([][]float32, len(texts))
	tokens := 0
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		vectors[i] = l.vector(text)
		tokens += chunker.EstimateTokens(text)
	}

	return vectors, tokens, nil
}

func (l *LocalProvider) vector(text string) []float32 {
	vec := make([]float32, l.dimension)

	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New64a()
		_, _ = h.Write([]byte(w))
		sum := h.Sum64()
		idx := int(sum % uint64(l.dimension))
		if sum&(1<<63) != 0 {
			vec[idx]--
		} else {
			vec[idx]++
		}
	}

	// Punctuation-only text still gets a stable non-zero vector
	if len(words) == 0 {
		digest := sha256.Sum256([]byte(text))
		for i := 0; i < l.dimension; i++ {
			vec[i] = float32(digest[i%len(digest)])/255.0 + 0.01
		}
	}

	return NormalizeVector(vec)
}

func (l *LocalProvider) Dimension() int {
	return l.dimension
}

func (l *LocalProvider) Name() string {
	return ProviderLocal
}

func (l *LocalProvider) Model() string {
	return l.model
}

func (l *LocalProvider) Close() error {
	return nil
}
