package storage

import (
	"context"
	"sync"

	"github.com/dshills/legalbrain/pkg/types"
)

// VectorStore persists chunk embeddings and answers nearest-neighbour queries
type VectorStore interface {
	// Upsert writes or replaces the record keyed by (document_id, index)
	Upsert(ctx context.Context, id types.ChunkID, vector []float32, meta Metadata) error

	// Query returns at most topK matches in descending score order
	Query(ctx context.Context, vector []float32, topK int) ([]Match, error)

	// Delete removes every chunk of a document. Deleting an unknown document is not an error.
	Delete(ctx context.Context, documentID string) error

	Close() error
}

// Counter is implemented by stores that can report how many chunks they hold
type Counter interface {
	Count(ctx context.Context) (int, error)
}

// BatchUpserter is implemented by stores that can write several records in one round trip
type BatchUpserter interface {
	UpsertBatch(ctx context.Context, records []Record) error
}

// StatsReporter is implemented by stores that can describe their contents
type StatsReporter interface {
	Stats(ctx context.Context) (*Stats, error)
}

// Metadata is the chunk payload stored next to each vector
type Metadata struct {
	Content    string
	PageNumber *int
	CharStart  int
	CharEnd    int
	TokenCount int
	Source     string // Origin of the document, usually a file path
}

// MetadataFromChunk copies the stored fields of a chunk
func MetadataFromChunk(chunk types.DocumentChunk, source string) Metadata {
	var page *int
	if chunk.PageNumber != nil {
		page = types.IntPtr(*chunk.PageNumber)
	}
	return Metadata{
		Content:    chunk.Content,
		PageNumber: page,
		CharStart:  chunk.CharStart,
		CharEnd:    chunk.CharEnd,
		TokenCount: chunk.TokenCount,
		Source:     source,
	}
}

// Chunk rebuilds the document chunk with the given index
func (m Metadata) Chunk(index int) types.DocumentChunk {
	return types.DocumentChunk{
		Content:    m.Content,
		Index:      index,
		PageNumber: m.PageNumber,
		CharStart:  m.CharStart,
		CharEnd:    m.CharEnd,
		TokenCount: m.TokenCount,
	}
}

// Record is a single upsert
type Record struct {
	ID       types.ChunkID
	Vector   []float32
	Metadata Metadata
}

// Match is a query hit
type Match struct {
	ID       types.ChunkID
	Score    float64
	Metadata Metadata
}

// ScoredChunk converts the match into the retrieval output type
func (m Match) ScoredChunk() types.ScoredChunk {
	return types.ScoredChunk{
		DocumentID: m.ID.DocumentID,
		Chunk:      m.Metadata.Chunk(m.ID.Index),
		Score:      m.Score,
	}
}

// Stats summarizes the contents of a store
type Stats struct {
	Backend   string
	Documents int
	Chunks    int
	Dimension int // 0 until the first vector is written
	SizeBytes int64
}

// UpsertAll writes records through UpsertBatch when the store supports it
func UpsertAll(ctx context.Context, store VectorStore, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	if batch, ok := store.(BatchUpserter); ok {
		return batch.UpsertBatch(ctx, records)
	}
	for _, r := range records {
		if err := store.Upsert(ctx, r.ID, r.Vector, r.Metadata); err != nil {
			return err
		}
	}
	return nil
}

// dimensionGuard remembers the dimensionality of the first vector a collection receives
type dimensionGuard struct {
	mu  sync.Mutex
	dim int
}

// check fixes the dimension on first use and rejects vectors of any other length
func (g *dimensionGuard) check(n int) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.dim == 0 {
		g.dim = n
		return nil
	}
	if n != g.dim {
		return &types.DimensionMismatchError{Want: g.dim, Got: n}
	}
	return nil
}

// compare rejects a query vector without fixing the dimension. ok is false when
// nothing has been written yet.
func (g *dimensionGuard) compare(n int) (ok bool, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.dim == 0 {
		return false, nil
	}
	if n != g.dim {
		return true, &types.DimensionMismatchError{Want: g.dim, Got: n}
	}
	return true, nil
}

func (g *dimensionGuard) get() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.dim
}

func (g *dimensionGuard) set(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.dim = n
}
