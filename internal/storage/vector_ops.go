package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/dshills/legalbrain/internal/embedder"
	"github.com/dshills/legalbrain/pkg/types"
)

const matchColumns = `
	c.document_id, c.chunk_index, c.content, c.page_number,
	c.char_start, c.char_end, c.token_count, c.source`

// searchVector performs vector similarity search using cosine similarity
func searchVector(ctx context.Context, q querier, queryVector []float32, limit int) ([]Match, error) {
	if limit <= 0 {
		return []Match{}, nil
	}
	// Use SQL-side distance when sqlite-vec is available
	if VectorExtensionAvailable {
		return searchVectorOptimized(ctx, q, queryVector, limit)
	}
	return searchVectorFallback(ctx, q, queryVector, limit)
}

// searchVectorOptimized uses sqlite-vec extension for SQL-based vector similarity search
func searchVectorOptimized(ctx context.Context, q querier, queryVector []float32, limit int) ([]Match, error) {
	// vec_distance_cosine returns distance (lower is better), converted to similarity here
	query := `
		SELECT` + matchColumns + `,
			1.0 - vec_distance_cosine(e.vector, ?) AS similarity
		FROM chunks c
		INNER JOIN embeddings e ON c.id = e.chunk_id
		WHERE e.dimension = ?
		ORDER BY similarity DESC, c.document_id, c.chunk_index
		LIMIT ?
	`
	rows, err := q.QueryContext(ctx, query, serializeVector(queryVector), len(queryVector), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to execute vector search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results := make([]Match, 0, limit)
	for rows.Next() {
		var m Match
		var page sql.NullInt64
		var source sql.NullString
		if err := rows.Scan(&m.ID.DocumentID, &m.ID.Index, &m.Metadata.Content, &page,
			&m.Metadata.CharStart, &m.Metadata.CharEnd, &m.Metadata.TokenCount, &source, &m.Score); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		fillNullable(&m.Metadata, page, source)
		results = append(results, m)
	}

	return results, rows.Err()
}

// searchVectorFallback scores every stored embedding in Go. Used by purego builds.
func searchVectorFallback(ctx context.Context, q querier, queryVector []float32, limit int) ([]Match, error) {
	query := `
		SELECT` + matchColumns + `, e.vector
		FROM chunks c
		INNER JOIN embeddings e ON c.id = e.chunk_id
		ORDER BY c.document_id, c.chunk_index
	`
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	candidates, err := computeSimilarityScores(rows, queryVector)
	if err != nil {
		return nil, err
	}

	sortCandidates(candidates)

	if limit > len(candidates) {
		limit = len(candidates)
	}
	return candidates[:limit], nil
}

// computeSimilarityScores scans rows and scores each stored vector against the query
func computeSimilarityScores(rows *sql.Rows, queryVector []float32) ([]Match, error) {
	candidates := make([]Match, 0)

	for rows.Next() {
		var m Match
		var page sql.NullInt64
		var source sql.NullString
		var blob []byte
		if err := rows.Scan(&m.ID.DocumentID, &m.ID.Index, &m.Metadata.Content, &page,
			&m.Metadata.CharStart, &m.Metadata.CharEnd, &m.Metadata.TokenCount, &source, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan embedding: %w", err)
		}
		fillNullable(&m.Metadata, page, source)

		score, err := embedder.CosineSimilarity(queryVector, deserializeVector(blob))
		if err != nil {
			// Rows written before the dimension was pinned can never match
			continue
		}
		m.Score = score
		candidates = append(candidates, m)
	}

	return candidates, rows.Err()
}

func fillNullable(meta *Metadata, page sql.NullInt64, source sql.NullString) {
	if page.Valid {
		meta.PageNumber = types.IntPtr(int(page.Int64))
	}
	meta.Source = source.String
}

// sortCandidates orders by descending score. Rows arrive in (document, index)
// order and the sort is stable, so ties keep that order.
func sortCandidates(candidates []Match) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
}

// serializeVector converts a float32 slice to a byte blob (little-endian)
func serializeVector(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// deserializeVector converts a byte blob back to a float32 slice
func deserializeVector(blob []byte) []float32 {
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		vector[i] = math.Float32frombits(bits)
	}
	return vector
}
