// Package app wires configuration into the ingestion and retrieval components
// shared by the MCP server and the ingest command.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/dshills/legalbrain/internal/chunker"
	"github.com/dshills/legalbrain/internal/config"
	"github.com/dshills/legalbrain/internal/embedder"
	"github.com/dshills/legalbrain/internal/ingest"
	"github.com/dshills/legalbrain/internal/logger"
	"github.com/dshills/legalbrain/internal/retrieval"
	"github.com/dshills/legalbrain/internal/storage"
)

// App holds the wired components. The embedding client is shared, so vectors
// cached while ingesting are reused by queries.
type App struct {
	Config    *config.Config
	Logger    zerolog.Logger
	Embedder  *embedder.Client
	Store     storage.VectorStore
	Pipeline  *ingest.Pipeline
	Retriever *retrieval.Coordinator
}

// New builds every component from cfg
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	c, err := chunker.New(cfg.ChunkerOptions())
	if err != nil {
		return nil, err
	}

	provider, err := embedder.New(cfg.EmbedderConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	opts := []embedder.ClientOption{embedder.WithLogger(logger.Component(log, "embedder"))}
	if cfg.Embedding.CacheSize > 0 {
		opts = append(opts, embedder.WithCache(embedder.NewCache(cfg.Embedding.CacheSize)))
	}
	client := embedder.NewClient(provider, opts...)

	store, err := storage.Open(ctx, cfg.StorageConfig(provider.Dimension()))
	if err != nil {
		_ = provider.Close()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	pc := cfg.PipelineConfig()
	ingestLog := logger.Component(log, "ingest")
	pc.Logger = &ingestLog
	pipeline := ingest.New(c, client, store, pc)

	rc := cfg.CoordinatorConfig()
	retrievalLog := logger.Component(log, "retrieval")
	rc.Logger = &retrievalLog
	retriever, err := retrieval.New(client, store, rc)
	if err != nil {
		_ = store.Close()
		_ = provider.Close()
		return nil, err
	}

	log.Info().
		Str("provider", provider.Name()).
		Str("model", provider.Model()).
		Int("dimension", provider.Dimension()).
		Str("store", storeName(cfg.Store.Backend)).
		Msg("components ready")

	return &App{
		Config:    cfg,
		Logger:    log,
		Embedder:  client,
		Store:     store,
		Pipeline:  pipeline,
		Retriever: retriever,
	}, nil
}

// Close releases the store and the embedding provider
func (a *App) Close() error {
	return errors.Join(a.Store.Close(), a.Embedder.Provider().Close())
}

func storeName(backend string) string {
	if backend == "" {
		return storage.BackendSQLite
	}
	return backend
}
