package storage

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/dshills/legalbrain/pkg/types"
)

// Milvus field names
const (
	fieldID         = "id"
	fieldDocumentID = "document_id"
	fieldChunkIndex = "chunk_index"
	fieldPage       = "page_number"
	fieldCharStart  = "char_start"
	fieldCharEnd    = "char_end"
	fieldTokens     = "token_count"
	fieldContent    = "content"
	fieldSource     = "source"
	fieldEmbedding  = "embedding"
)

const (
	maxIDLength      int64 = 512
	maxContentLength int64 = 65535
	maxSourceLength  int64 = 1024

	defaultHNSWM              = 16
	defaultHNSWEfConstruction = 200
	defaultSearchEf           = 64
)

var milvusOutputFields = []string{
	fieldDocumentID, fieldChunkIndex, fieldPage, fieldCharStart,
	fieldCharEnd, fieldTokens, fieldContent, fieldSource,
}

// MilvusConfig configures the Milvus store
type MilvusConfig struct {
	Address    string
	Username   string
	Password   string
	Collection string
	Dimension  int // Fixed at collection creation
	SearchEf   int
}

// MilvusStore implements VectorStore on a Milvus collection
type MilvusStore struct {
	client     client.Client
	collection string
	dim        dimensionGuard
	searchEf   int
}

// NewMilvusStore connects to Milvus, creating and indexing the collection on first use
func NewMilvusStore(ctx context.Context, cfg MilvusConfig) (*MilvusStore, error) {
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("milvus store requires a positive dimension, got %d", cfg.Dimension)
	}

	cli, err := client.NewClient(ctx, client.Config{
		Address:  cfg.Address,
		Username: cfg.Username,
		Password: cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to milvus at %s: %w", cfg.Address, err)
	}

	s := &MilvusStore{
		client:     cli,
		collection: cfg.Collection,
		searchEf:   cfg.SearchEf,
	}
	if s.collection == "" {
		s.collection = DefaultCollection
	}
	if s.searchEf <= 0 {
		s.searchEf = defaultSearchEf
	}
	s.dim.set(cfg.Dimension)

	if err := s.ensureCollection(ctx); err != nil {
		_ = cli.Close()
		return nil, err
	}
	return s, nil
}

func (s *MilvusStore) ensureCollection(ctx context.Context) error {
	exists, err := s.client.HasCollection(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection %s: %w", s.collection, err)
	}

	if !exists {
		if err := s.client.CreateCollection(ctx, chunkSchema(s.collection, s.dim.get()), 2); err != nil {
			return fmt.Errorf("failed to create collection %s: %w", s.collection, err)
		}
		idx, err := entity.NewIndexHNSW(entity.COSINE, defaultHNSWM, defaultHNSWEfConstruction)
		if err != nil {
			return err
		}
		if err := s.client.CreateIndex(ctx, s.collection, fieldEmbedding, idx, false); err != nil {
			return fmt.Errorf("failed to index collection %s: %w", s.collection, err)
		}
	}

	if err := s.client.LoadCollection(ctx, s.collection, false); err != nil {
		return fmt.Errorf("failed to load collection %s: %w", s.collection, err)
	}
	return nil
}

// chunkSchema keys rows by ChunkID.String() so upserts replace in place
func chunkSchema(name string, dim int) *entity.Schema {
	return entity.NewSchema().WithName(name).WithDescription("legal document chunks").
		WithField(entity.NewField().WithName(fieldID).WithDataType(entity.FieldTypeVarChar).
			WithIsPrimaryKey(true).WithMaxLength(maxIDLength)).
		WithField(entity.NewField().WithName(fieldDocumentID).WithDataType(entity.FieldTypeVarChar).
			WithMaxLength(maxIDLength)).
		WithField(entity.NewField().WithName(fieldChunkIndex).WithDataType(entity.FieldTypeInt64)).
		WithField(entity.NewField().WithName(fieldPage).WithDataType(entity.FieldTypeInt64)).
		WithField(entity.NewField().WithName(fieldCharStart).WithDataType(entity.FieldTypeInt64)).
		WithField(entity.NewField().WithName(fieldCharEnd).WithDataType(entity.FieldTypeInt64)).
		WithField(entity.NewField().WithName(fieldTokens).WithDataType(entity.FieldTypeInt64)).
		WithField(entity.NewField().WithName(fieldContent).WithDataType(entity.FieldTypeVarChar).
			WithMaxLength(maxContentLength)).
		WithField(entity.NewField().WithName(fieldSource).WithDataType(entity.FieldTypeVarChar).
			WithMaxLength(maxSourceLength)).
		WithField(entity.NewField().WithName(fieldEmbedding).WithDataType(entity.FieldTypeFloatVector).
			WithDim(int64(dim)))
}

// Upsert writes or replaces one chunk
func (s *MilvusStore) Upsert(ctx context.Context, id types.ChunkID, vector []float32, meta Metadata) error {
	return s.UpsertBatch(ctx, []Record{{ID: id, Vector: vector, Metadata: meta}})
}

// UpsertBatch writes all records in one columnar upsert
func (s *MilvusStore) UpsertBatch(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	for _, r := range records {
		if err := validateRecord(r); err != nil {
			return err
		}
		if err := s.dim.check(len(r.Vector)); err != nil {
			return err
		}
		if int64(len(r.Metadata.Content)) > maxContentLength {
			return fmt.Errorf("chunk %s content exceeds %d bytes", r.ID, maxContentLength)
		}
	}

	if _, err := s.client.Upsert(ctx, s.collection, "", recordColumns(records, s.dim.get())...); err != nil {
		return fmt.Errorf("failed to upsert %d chunks: %w", len(records), err)
	}
	return nil
}

// recordColumns converts records to Milvus columns. Page 0 means no page.
func recordColumns(records []Record, dim int) []entity.Column {
	n := len(records)
	ids := make([]string, n)
	docs := make([]string, n)
	indexes := make([]int64, n)
	pages := make([]int64, n)
	starts := make([]int64, n)
	ends := make([]int64, n)
	tokens := make([]int64, n)
	contents := make([]string, n)
	sources := make([]string, n)
	vectors := make([][]float32, n)

	for i, r := range records {
		ids[i] = r.ID.String()
		docs[i] = r.ID.DocumentID
		indexes[i] = int64(r.ID.Index)
		if r.Metadata.PageNumber != nil {
			pages[i] = int64(*r.Metadata.PageNumber)
		}
		starts[i] = int64(r.Metadata.CharStart)
		ends[i] = int64(r.Metadata.CharEnd)
		tokens[i] = int64(r.Metadata.TokenCount)
		contents[i] = r.Metadata.Content
		sources[i] = r.Metadata.Source
		vectors[i] = r.Vector
	}

	return []entity.Column{
		entity.NewColumnVarChar(fieldID, ids),
		entity.NewColumnVarChar(fieldDocumentID, docs),
		entity.NewColumnInt64(fieldChunkIndex, indexes),
		entity.NewColumnInt64(fieldPage, pages),
		entity.NewColumnInt64(fieldCharStart, starts),
		entity.NewColumnInt64(fieldCharEnd, ends),
		entity.NewColumnInt64(fieldTokens, tokens),
		entity.NewColumnVarChar(fieldContent, contents),
		entity.NewColumnVarChar(fieldSource, sources),
		entity.NewColumnFloatVector(fieldEmbedding, dim, vectors),
	}
}

// Query runs an HNSW cosine search
func (s *MilvusStore) Query(ctx context.Context, vector []float32, topK int) ([]Match, error) {
	if len(vector) == 0 {
		return nil, ErrEmptyVector
	}
	if _, err := s.dim.compare(len(vector)); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return []Match{}, nil
	}

	sp, err := entity.NewIndexHNSWSearchParam(s.searchEf)
	if err != nil {
		return nil, err
	}

	results, err := s.client.Search(
		ctx,
		s.collection,
		nil, // partitions
		"",  // expr
		milvusOutputFields,
		[]entity.Vector{entity.FloatVector(vector)},
		fieldEmbedding,
		entity.COSINE,
		topK,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("milvus search failed: %w", err)
	}
	if len(results) == 0 {
		return []Match{}, nil
	}

	it := results[0]
	return decodeColumns(it.ResultCount, it.Scores, it.Fields)
}

// decodeColumns turns a columnar search result into matches
func decodeColumns(n int, scores []float32, fields []entity.Column) ([]Match, error) {
	if len(scores) < n {
		return nil, fmt.Errorf("milvus returned %d scores for %d results", len(scores), n)
	}

	matches := make([]Match, n)
	for i := 0; i < n; i++ {
		matches[i].Score = float64(scores[i])
	}

	for _, field := range fields {
		switch col := field.(type) {
		case *entity.ColumnVarChar:
			data := col.Data()
			if len(data) < n {
				return nil, fmt.Errorf("milvus column %s has %d rows, want %d", col.Name(), len(data), n)
			}
			for i := 0; i < n; i++ {
				switch col.Name() {
				case fieldDocumentID:
					matches[i].ID.DocumentID = data[i]
				case fieldContent:
					matches[i].Metadata.Content = data[i]
				case fieldSource:
					matches[i].Metadata.Source = data[i]
				}
			}
		case *entity.ColumnInt64:
			data := col.Data()
			if len(data) < n {
				return nil, fmt.Errorf("milvus column %s has %d rows, want %d", col.Name(), len(data), n)
			}
			for i := 0; i < n; i++ {
				v := int(data[i])
				switch col.Name() {
				case fieldChunkIndex:
					matches[i].ID.Index = v
				case fieldPage:
					if v > 0 {
						matches[i].Metadata.PageNumber = types.IntPtr(v)
					}
				case fieldCharStart:
					matches[i].Metadata.CharStart = v
				case fieldCharEnd:
					matches[i].Metadata.CharEnd = v
				case fieldTokens:
					matches[i].Metadata.TokenCount = v
				}
			}
		}
	}

	return matches, nil
}

// Delete removes every chunk of the document
func (s *MilvusStore) Delete(ctx context.Context, documentID string) error {
	if documentID == "" {
		return fmt.Errorf("%w: empty document id", ErrInvalidID)
	}
	if err := s.client.Delete(ctx, s.collection, "", documentExpr(documentID)); err != nil {
		return fmt.Errorf("failed to delete document %s: %w", documentID, err)
	}
	return nil
}

// documentExpr builds a boolean expression matching one document
func documentExpr(documentID string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(documentID)
	return fieldDocumentID + ` == "` + escaped + `"`
}

// Count returns the row count reported by collection statistics
func (s *MilvusStore) Count(ctx context.Context) (int, error) {
	stats, err := s.client.GetCollectionStatistics(ctx, s.collection)
	if err != nil {
		return 0, fmt.Errorf("failed to read collection statistics: %w", err)
	}
	n, err := strconv.Atoi(stats["row_count"])
	if err != nil {
		return 0, fmt.Errorf("invalid row_count %q: %w", stats["row_count"], err)
	}
	return n, nil
}

// Stats reports the row count and dimension. Documents is not reported.
func (s *MilvusStore) Stats(ctx context.Context) (*Stats, error) {
	n, err := s.Count(ctx)
	if err != nil {
		return nil, err
	}
	return &Stats{Backend: BackendMilvus, Documents: -1, Chunks: n, Dimension: s.dim.get()}, nil
}

// Close closes the client connection
func (s *MilvusStore) Close() error {
	return s.client.Close()
}
