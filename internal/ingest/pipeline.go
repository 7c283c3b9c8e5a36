package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/legalbrain/internal/chunker"
	"github.com/dshills/legalbrain/internal/embedder"
	"github.com/dshills/legalbrain/internal/storage"
	"github.com/dshills/legalbrain/pkg/types"
)

const (
	// DefaultConcurrency is the number of embedding batches in flight per document
	DefaultConcurrency = 4
)

// ErrIngestInProgress is returned when a directory ingestion is already running
var ErrIngestInProgress = errors.New("ingestion already in progress")

// Pipeline coordinates ingestion: chunk -> embed -> store
type Pipeline struct {
	chunker     *chunker.Chunker
	embedder    *embedder.Client
	store       storage.VectorStore
	logger      zerolog.Logger
	batchSize   int
	concurrency int

	running atomic.Bool // set while IngestDirectory runs
}

// Config contains configuration for the pipeline
type Config struct {
	BatchSize   int // Chunks per embedding call (default: embedder.DefaultBatchSize)
	Concurrency int // Embedding calls in flight per document (default: DefaultConcurrency)
	Logger      *zerolog.Logger
}

// Result describes one ingested document
type Result struct {
	DocumentID string
	Chunks     int // Chunks offered to EmbedAndStore
	Stored     int // Chunks embedded and upserted
	Tokens     int // Tokens billed by the provider
	Duration   time.Duration

	// ResumeIndex is the index into the chunk slice of the first chunk not
	// stored. Passing chunks[ResumeIndex:] to EmbedAndStore finishes the document.
	ResumeIndex int
}

// New creates a Pipeline
func New(c *chunker.Chunker, e *embedder.Client, store storage.VectorStore, cfg Config) *Pipeline {
	p := &Pipeline{
		chunker:     c,
		embedder:    e,
		store:       store,
		logger:      zerolog.Nop(),
		batchSize:   cfg.BatchSize,
		concurrency: cfg.Concurrency,
	}
	if cfg.Logger != nil {
		p.logger = *cfg.Logger
	}
	if p.batchSize <= 0 {
		p.batchSize = embedder.DefaultBatchSize
	}
	if p.batchSize > embedder.MaxBatchSize {
		p.batchSize = embedder.MaxBatchSize
	}
	if p.concurrency <= 0 {
		p.concurrency = DefaultConcurrency
	}
	return p
}

// Store returns the vector store the pipeline writes to
func (p *Pipeline) Store() storage.VectorStore {
	return p.store
}

// StoreOption customizes how chunks are recorded
type StoreOption func(*storeOptions)

type storeOptions struct {
	source string
}

// WithSource records where the document came from, usually a file path
func WithSource(source string) StoreOption {
	return func(o *storeOptions) {
		o.source = source
	}
}

// IngestDocument replaces the stored chunks of documentID with the chunks of rawText
func (p *Pipeline) IngestDocument(ctx context.Context, documentID, rawText string, opts ...StoreOption) (*Result, error) {
	if documentID == "" {
		return nil, fmt.Errorf("%w: empty document id", storage.ErrInvalidID)
	}

	chunks, err := p.chunker.Chunk(rawText)
	if err != nil {
		return nil, fmt.Errorf("failed to chunk document %s: %w", documentID, err)
	}

	if err := p.store.Delete(ctx, documentID); err != nil {
		return nil, &types.StoreError{Op: "delete", DocumentID: documentID, ChunkIndex: types.NoChunkIndex, Err: err}
	}

	return p.EmbedAndStore(ctx, documentID, chunks, opts...)
}

// batchRange is a half-open range of chunk slice positions
type batchRange struct {
	start, end int
}

// EmbedAndStore embeds chunks in batches, at most Concurrency in flight, and
// upserts each batch as soon as its embeddings arrive. On failure the error is
// a *types.ProviderError or *types.StoreError naming the first chunk that was
// not stored, and Result.ResumeIndex says where to resume.
func (p *Pipeline) EmbedAndStore(ctx context.Context, documentID string, chunks []types.DocumentChunk, opts ...StoreOption) (*Result, error) {
	o := storeOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	start := time.Now()
	result := &Result{DocumentID: documentID, Chunks: len(chunks), ResumeIndex: len(chunks)}
	if len(chunks) == 0 {
		return result, nil
	}

	batches := make([]batchRange, 0, (len(chunks)+p.batchSize-1)/p.batchSize)
	for i := 0; i < len(chunks); i += p.batchSize {
		batches = append(batches, batchRange{start: i, end: min(i+p.batchSize, len(chunks))})
	}

	log := p.logger.With().Str("document_id", documentID).Logger()

	// Use errgroup for bounded concurrency with error propagation
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	done := make([]bool, len(batches))
	var (
		mu     sync.Mutex
		stored int
		tokens int
	)

	for bi, br := range batches {
		// Stop issuing new batches once the context is cancelled or a batch failed
		if gctx.Err() != nil {
			break
		}

		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			batchStart := time.Now()
			n, err := p.embedAndStoreBatch(gctx, documentID, o.source, chunks[br.start:br.end])
			if err != nil {
				log.Warn().Err(err).Int("batch", bi).Int("chunk_index", chunks[br.start].Index).Msg("batch failed")
				return err
			}

			mu.Lock()
			done[bi] = true
			stored += br.end - br.start
			tokens += n
			mu.Unlock()

			log.Debug().Int("batch", bi).Int("chunks", br.end-br.start).Int("tokens", n).
				Dur("duration", time.Since(batchStart)).Msg("batch stored")
			return nil
		})
	}

	err := g.Wait()

	result.Stored = stored
	result.Tokens = tokens
	result.Duration = time.Since(start)

	// Batches finish out of order, so resume from the first one that did not
	resume := len(chunks)
	for bi, ok := range done {
		if !ok {
			resume = batches[bi].start
			break
		}
	}
	result.ResumeIndex = resume

	if err == nil && resume < len(chunks) {
		// The caller's context was cancelled before every batch was issued
		err = ctx.Err()
	}
	if err != nil {
		return result, resumableError(err, documentID, chunks, resume)
	}

	log.Info().Int("chunks", stored).Int("tokens", tokens).Dur("duration", result.Duration).Msg("document stored")
	return result, nil
}

// embedAndStoreBatch embeds one batch and upserts it, returning billed tokens
func (p *Pipeline) embedAndStoreBatch(ctx context.Context, documentID, source string, batch []types.DocumentChunk) (int, error) {
	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.Content
	}

	first := batch[0].Index

	results, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, providerError(err, documentID, first)
	}
	// EmbedBatch drops blank texts, which would break index correlation
	if len(results) != len(batch) {
		return 0, &types.ProviderError{
			DocumentID: documentID,
			ChunkIndex: first,
			Err:        fmt.Errorf("got %d embeddings for %d chunks", len(results), len(batch)),
		}
	}

	records := make([]storage.Record, len(batch))
	tokens := 0
	for i, c := range batch {
		records[i] = storage.Record{
			ID:       types.ChunkID{DocumentID: documentID, Index: c.Index},
			Vector:   results[i].Embedding,
			Metadata: storage.MetadataFromChunk(c, source),
		}
		tokens += results[i].TokenCount
	}

	if err := storage.UpsertAll(ctx, p.store, records); err != nil {
		return 0, &types.StoreError{Op: "upsert", DocumentID: documentID, ChunkIndex: first, Err: err}
	}
	return tokens, nil
}

// providerError attaches document and chunk context to an embedding failure
func providerError(err error, documentID string, chunkIndex int) error {
	var pe *types.ProviderError
	if errors.As(err, &pe) {
		return &types.ProviderError{DocumentID: documentID, ChunkIndex: chunkIndex, Err: pe.Err}
	}
	return &types.ProviderError{DocumentID: documentID, ChunkIndex: chunkIndex, Err: err}
}

// resumableError points the failure at the first chunk that was not stored
func resumableError(err error, documentID string, chunks []types.DocumentChunk, resume int) error {
	index := types.NoChunkIndex
	if resume < len(chunks) {
		index = chunks[resume].Index
	}

	var pe *types.ProviderError
	if errors.As(err, &pe) {
		return &types.ProviderError{DocumentID: documentID, ChunkIndex: index, Err: pe.Err}
	}
	var se *types.StoreError
	if errors.As(err, &se) {
		return &types.StoreError{Op: se.Op, DocumentID: documentID, ChunkIndex: index, Err: se.Err}
	}
	return fmt.Errorf("ingest %s stopped at chunk %d: %w", documentID, index, err)
}
