package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/dshills/legalbrain/internal/chunker"
	"github.com/dshills/legalbrain/internal/embedder"
	"github.com/dshills/legalbrain/internal/ingest"
	"github.com/dshills/legalbrain/internal/logger"
	"github.com/dshills/legalbrain/internal/retrieval"
	"github.com/dshills/legalbrain/internal/storage"
)

const (
	// EnvPrefix prefixes every environment override; "__" separates sections,
	// so LEGALBRAIN_EMBEDDING__API_KEY sets embedding.api_key
	EnvPrefix = "LEGALBRAIN_"

	// EnvConfigFile names the YAML file to load when no path is given
	EnvConfigFile = "LEGALBRAIN_CONFIG"

	DefaultConfigFile = "legalbrain.yaml"
)

// Config is the full configuration of both binaries
type Config struct {
	Log       LogConfig       `koanf:"log"`
	Chunking  ChunkingConfig  `koanf:"chunking"`
	Embedding EmbeddingConfig `koanf:"embedding"`
	Store     StoreConfig     `koanf:"store"`
	Retrieval RetrievalConfig `koanf:"retrieval"`
	Ingest    IngestConfig    `koanf:"ingest"`
}

type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"oneof=console json"`
}

type ChunkingConfig struct {
	TargetTokens  int    `koanf:"target_tokens" validate:"gt=0,gtefield=MinTokens"`
	MaxTokens     int    `koanf:"max_tokens" validate:"gt=0,gtefield=TargetTokens"`
	MinTokens     int    `koanf:"min_tokens" validate:"gt=0"`
	OverlapTokens int    `koanf:"overlap_tokens" validate:"gte=0,ltfield=MaxTokens"`
	PageMarker    string `koanf:"page_marker"`
	DisablePages  bool   `koanf:"disable_pages"`
}

type RetryConfig struct {
	MaxRetries int           `koanf:"max_retries" validate:"gte=0"`
	BaseDelay  time.Duration `koanf:"base_delay" validate:"gte=0"`
	MaxDelay   time.Duration `koanf:"max_delay" validate:"gte=0"`
	Multiplier float64       `koanf:"multiplier" validate:"gte=0"`
}

type EmbeddingConfig struct {
	// Provider is openai, jina or local. Empty picks one from the API keys in the environment.
	Provider    string        `koanf:"provider" validate:"omitempty,oneof=openai jina local"`
	Model       string        `koanf:"model"`
	APIKey      string        `koanf:"api_key"`
	BaseURL     string        `koanf:"base_url" validate:"omitempty,url"`
	Dimension   int           `koanf:"dimension" validate:"gte=0"`
	Timeout     time.Duration `koanf:"timeout" validate:"gte=0"`
	BatchSize   int           `koanf:"batch_size" validate:"gt=0,lte=100"`
	Concurrency int           `koanf:"concurrency" validate:"gt=0"`
	CacheSize   int           `koanf:"cache_size" validate:"gte=0"`
	Retry       RetryConfig   `koanf:"retry"`
}

type SQLiteConfig struct {
	Path string `koanf:"path"`
}

type ChromemConfig struct {
	Path       string `koanf:"path"`
	InMemory   bool   `koanf:"in_memory"`
	Collection string `koanf:"collection"`
	Compress   bool   `koanf:"compress"`
}

type MilvusConfig struct {
	Address    string `koanf:"address"`
	Username   string `koanf:"username"`
	Password   string `koanf:"password"`
	Collection string `koanf:"collection"`
	Dimension  int    `koanf:"dimension" validate:"gte=0"`
	SearchEf   int    `koanf:"search_ef" validate:"gte=0"`
}

type StoreConfig struct {
	Backend string        `koanf:"backend" validate:"oneof=sqlite chromem milvus"`
	SQLite  SQLiteConfig  `koanf:"sqlite"`
	Chromem ChromemConfig `koanf:"chromem"`
	Milvus  MilvusConfig  `koanf:"milvus"`
}

type RetrievalConfig struct {
	DefaultTopK int           `koanf:"default_top_k" validate:"gt=0,ltefield=MaxTopK"`
	MaxTopK     int           `koanf:"max_top_k" validate:"gt=0"`
	CacheSize   int           `koanf:"cache_size" validate:"gte=0"`
	CacheTTL    time.Duration `koanf:"cache_ttl" validate:"gte=0"`
}

type IngestConfig struct {
	Pattern string `koanf:"pattern"`
	Workers int    `koanf:"workers" validate:"gte=0"`
}

// DataDir is where local stores live by default
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".legalbrain"
	}
	return filepath.Join(home, ".legalbrain")
}

// Default returns the compiled defaults
func Default() Config {
	retry := embedder.DefaultRetryConfig()
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: logger.FormatConsole,
		},
		Chunking: ChunkingConfig{
			TargetTokens:  chunker.DefaultTargetTokens,
			MaxTokens:     chunker.DefaultMaxTokens,
			MinTokens:     chunker.DefaultMinTokens,
			OverlapTokens: chunker.DefaultOverlapTokens,
		},
		Embedding: EmbeddingConfig{
			Timeout:     embedder.DefaultTimeout,
			BatchSize:   embedder.DefaultBatchSize,
			Concurrency: ingest.DefaultConcurrency,
			CacheSize:   embedder.DefaultCacheSize,
			Retry: RetryConfig{
				// Retrying is a caller policy and stays off unless configured
				MaxRetries: 0,
				BaseDelay:  retry.BaseDelay,
				MaxDelay:   retry.MaxDelay,
				Multiplier: retry.Multiplier,
			},
		},
		Store: StoreConfig{
			Backend: storage.BackendSQLite,
			SQLite:  SQLiteConfig{Path: filepath.Join(DataDir(), "legalbrain.db")},
			Chromem: ChromemConfig{
				Path:       filepath.Join(DataDir(), "chromem"),
				Collection: storage.DefaultCollection,
			},
			Milvus: MilvusConfig{
				Address:    "localhost:19530",
				Collection: storage.DefaultCollection,
				SearchEf:   64,
			},
		},
		Retrieval: RetrievalConfig{
			DefaultTopK: retrieval.DefaultTopK,
			MaxTopK:     retrieval.MaxTopK,
			CacheTTL:    retrieval.DefaultCacheTTL,
		},
		Ingest: IngestConfig{
			Pattern: ingest.DefaultPattern,
		},
	}
}

// Load layers defaults, the YAML file at path and LEGALBRAIN_ environment
// variables, in that order, and validates the result.
//
// An empty path falls back to $LEGALBRAIN_CONFIG and then to
// legalbrain.yaml in the working directory. A missing file is only an error
// when the path was given explicitly.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if path == "" {
		path = os.Getenv(EnvConfigFile)
		explicit = path != ""
	}
	if path == "" {
		path = DefaultConfigFile
	}

	k := koanf.New(".")

	cfg := Default()

	// file
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	// env LEGALBRAIN_STORE__BACKEND
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	// bind
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey maps LEGALBRAIN_EMBEDDING__API_KEY to embedding.api_key
func envKey(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	if s == strings.TrimPrefix(EnvConfigFile, EnvPrefix) {
		// Names the file, not a setting
		return ""
	}
	return strings.ReplaceAll(strings.ToLower(s), "__", ".")
}

var validate = validator.New()

// Validate checks field constraints and the settings that depend on the
// selected backend
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var errs validator.ValidationErrors
		if errors.As(err, &errs) {
			var sb strings.Builder
			sb.WriteString("invalid configuration:")
			for _, e := range errs {
				sb.WriteString(fmt.Sprintf("\n  %s: failed '%s' (value: %v)", e.Namespace(), e.Tag(), e.Value()))
			}
			return errors.New(sb.String())
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}

	switch c.Store.Backend {
	case storage.BackendSQLite:
		if c.Store.SQLite.Path == "" {
			return errors.New("invalid configuration: store.sqlite.path is required for the sqlite backend")
		}
	case storage.BackendChromem:
		if !c.Store.Chromem.InMemory && c.Store.Chromem.Path == "" {
			return errors.New("invalid configuration: store.chromem.path is required unless store.chromem.in_memory is set")
		}
	case storage.BackendMilvus:
		if c.Store.Milvus.Address == "" {
			return errors.New("invalid configuration: store.milvus.address is required for the milvus backend")
		}
	}

	if _, err := chunker.New(c.ChunkerOptions()); err != nil {
		return fmt.Errorf("invalid configuration: chunking: %w", err)
	}
	return nil
}

// ChunkerOptions converts the chunking section
func (c *Config) ChunkerOptions() chunker.Options {
	return chunker.Options{
		TargetTokens:  c.Chunking.TargetTokens,
		MaxTokens:     c.Chunking.MaxTokens,
		MinTokens:     c.Chunking.MinTokens,
		OverlapTokens: c.Chunking.OverlapTokens,
		PageMarker:    c.Chunking.PageMarker,
		DisablePages:  c.Chunking.DisablePages,
	}
}

// EmbedderConfig converts the embedding section
func (c *Config) EmbedderConfig() embedder.Config {
	return embedder.Config{
		Provider:  c.Embedding.Provider,
		Model:     c.Embedding.Model,
		APIKey:    c.Embedding.APIKey,
		BaseURL:   c.Embedding.BaseURL,
		Dimension: c.Embedding.Dimension,
		Timeout:   c.Embedding.Timeout,
		Retry: embedder.RetryConfig{
			MaxRetries: c.Embedding.Retry.MaxRetries,
			BaseDelay:  c.Embedding.Retry.BaseDelay,
			MaxDelay:   c.Embedding.Retry.MaxDelay,
			Multiplier: c.Embedding.Retry.Multiplier,
		},
	}
}

// StorageConfig converts the store section. dimension is the embedding
// dimension, used when the Milvus section does not fix one.
func (c *Config) StorageConfig(dimension int) storage.Config {
	milvusDim := c.Store.Milvus.Dimension
	if milvusDim == 0 {
		milvusDim = dimension
	}
	return storage.Config{
		Backend:    c.Store.Backend,
		SQLitePath: c.Store.SQLite.Path,
		Chromem: storage.ChromemConfig{
			Path:       c.Store.Chromem.Path,
			InMemory:   c.Store.Chromem.InMemory,
			Collection: c.Store.Chromem.Collection,
			Compress:   c.Store.Chromem.Compress,
		},
		Milvus: storage.MilvusConfig{
			Address:    c.Store.Milvus.Address,
			Username:   c.Store.Milvus.Username,
			Password:   c.Store.Milvus.Password,
			Collection: c.Store.Milvus.Collection,
			Dimension:  milvusDim,
			SearchEf:   c.Store.Milvus.SearchEf,
		},
	}
}

// PipelineConfig converts the embedding batch settings
func (c *Config) PipelineConfig() ingest.Config {
	return ingest.Config{
		BatchSize:   c.Embedding.BatchSize,
		Concurrency: c.Embedding.Concurrency,
	}
}

// CoordinatorConfig converts the retrieval section
func (c *Config) CoordinatorConfig() retrieval.Config {
	return retrieval.Config{
		DefaultTopK: c.Retrieval.DefaultTopK,
		MaxTopK:     c.Retrieval.MaxTopK,
		CacheSize:   c.Retrieval.CacheSize,
		CacheTTL:    c.Retrieval.CacheTTL,
	}
}

// LoggerConfig converts the log section
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{Level: c.Log.Level, Format: c.Log.Format}
}
