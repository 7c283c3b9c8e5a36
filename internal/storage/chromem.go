package storage

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strconv"

	"github.com/philippgille/chromem-go"

	"github.com/dshills/legalbrain/pkg/types"
)

// DefaultCollection is the collection name used by the chromem and Milvus stores
const DefaultCollection = "legal_chunks"

// Metadata keys for chromem documents
const (
	keyDocumentID = "document_id"
	keyChunkIndex = "chunk_index"
	keyPage       = "page_number"
	keyCharStart  = "char_start"
	keyCharEnd    = "char_end"
	keyTokens     = "token_count"
	keySource     = "source"
)

// errNoEmbeddingFunc is returned if chromem ever tries to embed on its own
var errNoEmbeddingFunc = errors.New("chromem store only accepts precomputed embeddings")

// ChromemConfig configures the embedded chromem-go store
type ChromemConfig struct {
	Path       string // Directory for persistence; ignored when InMemory
	InMemory   bool
	Collection string
	Compress   bool
}

// ChromemStore implements VectorStore on an embedded chromem-go database
type ChromemStore struct {
	db         *chromem.DB
	collection *chromem.Collection
	dim        dimensionGuard
}

// NewChromemStore opens an in-memory or persistent chromem database
func NewChromemStore(cfg ChromemConfig) (*ChromemStore, error) {
	var db *chromem.DB
	if cfg.InMemory || cfg.Path == "" {
		db = chromem.NewDB()
	} else {
		var err error
		db, err = chromem.NewPersistentDB(cfg.Path, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("failed to open chromem database: %w", err)
		}
	}

	name := cfg.Collection
	if name == "" {
		name = DefaultCollection
	}

	noEmbedding := func(context.Context, string) ([]float32, error) {
		return nil, errNoEmbeddingFunc
	}
	collection, err := db.GetOrCreateCollection(name, nil, noEmbedding)
	if err != nil {
		return nil, fmt.Errorf("failed to create/get collection: %w", err)
	}

	return &ChromemStore{db: db, collection: collection}, nil
}

// Upsert writes or replaces one chunk
func (s *ChromemStore) Upsert(ctx context.Context, id types.ChunkID, vector []float32, meta Metadata) error {
	return s.UpsertBatch(ctx, []Record{{ID: id, Vector: vector, Metadata: meta}})
}

// UpsertBatch adds all records. chromem replaces documents with an existing ID.
func (s *ChromemStore) UpsertBatch(ctx context.Context, records []Record) error {
	docs := make([]chromem.Document, 0, len(records))
	for _, r := range records {
		if err := validateRecord(r); err != nil {
			return err
		}
		if err := s.dim.check(len(r.Vector)); err != nil {
			return err
		}
		docs = append(docs, chromem.Document{
			ID:        r.ID.String(),
			Content:   r.Metadata.Content,
			Metadata:  encodeMetadata(r.ID, r.Metadata),
			Embedding: append([]float32(nil), r.Vector...),
		})
	}
	if len(docs) == 0 {
		return nil
	}

	if err := s.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add documents: %w", err)
	}
	return nil
}

// Query returns the topK most similar chunks
func (s *ChromemStore) Query(ctx context.Context, vector []float32, topK int) ([]Match, error) {
	if len(vector) == 0 {
		return nil, ErrEmptyVector
	}
	if _, err := s.dim.compare(len(vector)); err != nil {
		return nil, err
	}

	count := s.collection.Count()
	if topK <= 0 || count == 0 {
		return []Match{}, nil
	}
	// chromem rejects nResults larger than the collection
	if topK > count {
		topK = count
	}

	results, err := s.collection.QueryEmbedding(ctx, vector, topK, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}

	matches := make([]Match, 0, len(results))
	for _, r := range results {
		m, err := decodeResult(r)
		if err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		if matches[i].ID.DocumentID != matches[j].ID.DocumentID {
			return matches[i].ID.DocumentID < matches[j].ID.DocumentID
		}
		return matches[i].ID.Index < matches[j].ID.Index
	})

	return matches, nil
}

// Delete removes every chunk of the document
func (s *ChromemStore) Delete(ctx context.Context, documentID string) error {
	if documentID == "" {
		return fmt.Errorf("%w: empty document id", ErrInvalidID)
	}
	if err := s.collection.Delete(ctx, map[string]string{keyDocumentID: documentID}, nil); err != nil {
		return fmt.Errorf("failed to delete document %s: %w", documentID, err)
	}
	return nil
}

// Count returns the number of stored chunks
func (s *ChromemStore) Count(context.Context) (int, error) {
	return s.collection.Count(), nil
}

// Stats reports the chunk count and pinned dimension. chromem has no
// aggregate queries, so Documents is not reported.
func (s *ChromemStore) Stats(context.Context) (*Stats, error) {
	return &Stats{
		Backend:   BackendChromem,
		Documents: -1,
		Chunks:    s.collection.Count(),
		Dimension: s.dim.get(),
	}, nil
}

// Close is a no-op; persistent chromem databases write through on every change
func (s *ChromemStore) Close() error {
	return nil
}

func encodeMetadata(id types.ChunkID, meta Metadata) map[string]string {
	m := map[string]string{
		keyDocumentID: id.DocumentID,
		keyChunkIndex: strconv.Itoa(id.Index),
		keyCharStart:  strconv.Itoa(meta.CharStart),
		keyCharEnd:    strconv.Itoa(meta.CharEnd),
		keyTokens:     strconv.Itoa(meta.TokenCount),
	}
	if meta.PageNumber != nil {
		m[keyPage] = strconv.Itoa(*meta.PageNumber)
	}
	if meta.Source != "" {
		m[keySource] = meta.Source
	}
	return m
}

func decodeResult(r chromem.Result) (Match, error) {
	m := Match{
		ID:    types.ChunkID{DocumentID: r.Metadata[keyDocumentID]},
		Score: float64(r.Similarity),
		Metadata: Metadata{
			Content: r.Content,
			Source:  r.Metadata[keySource],
		},
	}

	ints := []struct {
		key      string
		dst      *int
		optional bool
	}{
		{keyChunkIndex, &m.ID.Index, false},
		{keyCharStart, &m.Metadata.CharStart, false},
		{keyCharEnd, &m.Metadata.CharEnd, false},
		{keyTokens, &m.Metadata.TokenCount, true},
	}
	for _, f := range ints {
		raw, ok := r.Metadata[f.key]
		if !ok && f.optional {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return Match{}, fmt.Errorf("document %s: invalid %s %q: %w", r.ID, f.key, raw, err)
		}
		*f.dst = v
	}

	if raw, ok := r.Metadata[keyPage]; ok {
		page, err := strconv.Atoi(raw)
		if err != nil {
			return Match{}, fmt.Errorf("document %s: invalid %s %q: %w", r.ID, keyPage, raw, err)
		}
		m.Metadata.PageNumber = types.IntPtr(page)
	}

	if m.ID.DocumentID == "" {
		// Fall back to the chromem ID, which is ChunkID.String()
		id, err := types.ParseChunkID(r.ID)
		if err != nil {
			return Match{}, err
		}
		m.ID = id
	}

	return m, nil
}
