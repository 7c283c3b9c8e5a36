package storage

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/dshills/legalbrain/pkg/types"
)

var (
	// ErrEmptyVector is returned when upserting a zero-length embedding
	ErrEmptyVector = errors.New("empty vector")
	// ErrInvalidID is returned for a chunk ID without document or with a negative index
	ErrInvalidID = errors.New("invalid chunk id")
)

const metaDimensionKey = "dimension"

// SQLiteStore implements VectorStore on a SQLite database
type SQLiteStore struct {
	db   *sql.DB
	path string
	dim  dimensionGuard
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// SQLite benefits from a single writer, and :memory: needs a single connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStore opens (or creates) the database at dbPath and applies migrations
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	s := &SQLiteStore{db: db, path: dbPath}

	dim, err := s.loadDimension(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.dim.set(dim)

	return s, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Dimension returns the pinned vector dimension, or 0 for an empty store
func (s *SQLiteStore) Dimension() int {
	return s.dim.get()
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func (s *SQLiteStore) loadDimension(ctx context.Context, q querier) (int, error) {
	var value string
	err := q.QueryRowContext(ctx, "SELECT value FROM collection_meta WHERE key = ?", metaDimensionKey).Scan(&value)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read collection dimension: %w", err)
	}
	dim, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid collection dimension %q: %w", value, err)
	}
	return dim, nil
}

func (s *SQLiteStore) pinDimensionWithQuerier(ctx context.Context, q querier, dim int) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO collection_meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO NOTHING
	`, metaDimensionKey, strconv.Itoa(dim))
	if err != nil {
		return fmt.Errorf("failed to record collection dimension: %w", err)
	}
	return nil
}

// Upsert writes or replaces one chunk and its embedding
func (s *SQLiteStore) Upsert(ctx context.Context, id types.ChunkID, vector []float32, meta Metadata) error {
	return s.UpsertBatch(ctx, []Record{{ID: id, Vector: vector, Metadata: meta}})
}

// UpsertBatch writes all records in one transaction. Either every record is stored or none is.
func (s *SQLiteStore) UpsertBatch(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	dim := s.dim.get()
	for _, r := range records {
		if err := validateRecord(r); err != nil {
			return err
		}
		if dim == 0 {
			dim = len(r.Vector)
		}
		if len(r.Vector) != dim {
			return &types.DimensionMismatchError{Want: dim, Got: len(r.Vector)}
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.pinDimensionWithQuerier(ctx, tx, dim); err != nil {
		return err
	}
	// A concurrent first writer may have pinned a different dimension
	stored, err := s.loadDimension(ctx, tx)
	if err != nil {
		return err
	}
	if stored != dim {
		return &types.DimensionMismatchError{Want: stored, Got: dim}
	}

	for _, r := range records {
		chunkID, err := s.upsertChunkWithQuerier(ctx, tx, r.ID, r.Metadata)
		if err != nil {
			return err
		}
		if err := s.upsertEmbeddingWithQuerier(ctx, tx, chunkID, r.Vector); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit upsert: %w", err)
	}

	s.dim.set(dim)
	return nil
}

func validateRecord(r Record) error {
	if r.ID.DocumentID == "" || r.ID.Index < 0 {
		return fmt.Errorf("%w: %q", ErrInvalidID, r.ID.String())
	}
	if len(r.Vector) == 0 {
		return fmt.Errorf("%w for chunk %s", ErrEmptyVector, r.ID)
	}
	return nil
}

// upsertChunkWithQuerier inserts or updates a chunk row and returns its row id
func (s *SQLiteStore) upsertChunkWithQuerier(ctx context.Context, q querier, id types.ChunkID, meta Metadata) (int64, error) {
	query := `
		INSERT INTO chunks (document_id, chunk_index, content, content_hash, page_number,
		                    char_start, char_end, token_count, source, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT(document_id, chunk_index) DO UPDATE SET
			content = excluded.content,
			content_hash = excluded.content_hash,
			page_number = excluded.page_number,
			char_start = excluded.char_start,
			char_end = excluded.char_end,
			token_count = excluded.token_count,
			source = excluded.source,
			updated_at = CURRENT_TIMESTAMP
		RETURNING id
	`
	hash := sha256.Sum256([]byte(meta.Content))

	var page sql.NullInt64
	if meta.PageNumber != nil {
		page = sql.NullInt64{Int64: int64(*meta.PageNumber), Valid: true}
	}
	source := sql.NullString{String: meta.Source, Valid: meta.Source != ""}

	var chunkID int64
	err := q.QueryRowContext(ctx, query,
		id.DocumentID, id.Index, meta.Content, hash[:], page,
		meta.CharStart, meta.CharEnd, meta.TokenCount, source,
	).Scan(&chunkID)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert chunk %s: %w", id, err)
	}
	return chunkID, nil
}

func (s *SQLiteStore) upsertEmbeddingWithQuerier(ctx context.Context, q querier, chunkID int64, vector []float32) error {
	query := `
		INSERT INTO embeddings (chunk_id, vector, dimension, created_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(chunk_id) DO UPDATE SET
			vector = excluded.vector,
			dimension = excluded.dimension,
			created_at = CURRENT_TIMESTAMP
	`
	if _, err := q.ExecContext(ctx, query, chunkID, serializeVector(vector), len(vector)); err != nil {
		return fmt.Errorf("failed to upsert embedding: %w", err)
	}
	return nil
}

// Query returns the topK chunks most similar to vector
func (s *SQLiteStore) Query(ctx context.Context, vector []float32, topK int) ([]Match, error) {
	if len(vector) == 0 {
		return nil, ErrEmptyVector
	}
	pinned, err := s.dim.compare(len(vector))
	if err != nil {
		return nil, err
	}
	if !pinned || topK <= 0 {
		return []Match{}, nil
	}
	return searchVector(ctx, s.db, vector, topK)
}

// Delete removes every chunk of the document. Embeddings cascade.
func (s *SQLiteStore) Delete(ctx context.Context, documentID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM chunks WHERE document_id = ?", documentID)
	if err != nil {
		return fmt.Errorf("failed to delete document %s: %w", documentID, err)
	}
	return nil
}

// Count returns the number of stored chunks with an embedding
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM chunks c INNER JOIN embeddings e ON c.id = e.chunk_id
	`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return count, nil
}

// Stats reports document and chunk counts plus the database file size
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{Backend: BackendSQLite, Dimension: s.dim.get()}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT c.document_id), COUNT(*)
		FROM chunks c INNER JOIN embeddings e ON c.id = e.chunk_id
	`).Scan(&stats.Documents, &stats.Chunks)
	if err != nil {
		return nil, fmt.Errorf("failed to read stats: %w", err)
	}

	if s.path != "" && s.path != ":memory:" {
		if info, err := os.Stat(s.path); err == nil {
			stats.SizeBytes = info.Size()
		}
	}

	return stats, nil
}
