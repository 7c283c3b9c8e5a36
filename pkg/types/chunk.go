package types

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"
)

// DocumentChunk is a contiguous, addressable slice of a normalized document
type DocumentChunk struct {
	// Content is the trimmed chunk text
	Content string

	// Index is the 0-based ordinal of the chunk within its document
	Index int

	// PageNumber is set only when page markers were detected
	PageNumber *int

	// Offsets into the normalized source text, [CharStart, CharEnd)
	CharStart int
	CharEnd   int

	// TokenCount is an estimate derived from character length, not a tokenizer call
	TokenCount int
}

// Page returns the page number, or 0 when the chunk has none
func (c *DocumentChunk) Page() int {
	if c.PageNumber == nil {
		return 0
	}
	return *c.PageNumber
}

// Validate checks the chunk invariants
func (c *DocumentChunk) Validate() error {
	if strings.TrimSpace(c.Content) == "" {
		return errors.New("chunk content cannot be empty")
	}

	if c.Index < 0 {
		return errors.New("chunk index must be non-negative")
	}

	if c.CharStart >= c.CharEnd {
		return errors.New("char start must be before char end")
	}

	if c.TokenCount <= 0 {
		return errors.New("token count must be positive")
	}

	if c.PageNumber != nil && *c.PageNumber <= 0 {
		return errors.New("page number must be positive")
	}

	return nil
}

// ContentHash computes the SHA-256 hash of the chunk content
func (c *DocumentChunk) ContentHash() [32]byte {
	return sha256.Sum256([]byte(c.Content))
}

// IntPtr returns a pointer to n
func IntPtr(n int) *int {
	return &n
}

// ChunkID identifies a persisted chunk; (DocumentID, Index) is the upsert key
type ChunkID struct {
	DocumentID string
	Index      int
}

// String renders the ID as "<document>#<index>"
func (id ChunkID) String() string {
	return fmt.Sprintf("%s#%d", id.DocumentID, id.Index)
}

// ParseChunkID parses the String form of a ChunkID
func ParseChunkID(s string) (ChunkID, error) {
	i := strings.LastIndexByte(s, '#')
	if i <= 0 || i == len(s)-1 {
		return ChunkID{}, fmt.Errorf("malformed chunk id %q", s)
	}

	var index int
	if _, err := fmt.Sscanf(s[i+1:], "%d", &index); err != nil {
		return ChunkID{}, fmt.Errorf("malformed chunk index in %q: %w", s, err)
	}

	return ChunkID{DocumentID: s[:i], Index: index}, nil
}

// EmbeddingResult is the vector produced for exactly one chunk or query
type EmbeddingResult struct {
	Embedding  []float32
	TokenCount int // Tokens billed by the provider; an even share for batched calls
}

// Dimension returns the vector length
func (r EmbeddingResult) Dimension() int {
	return len(r.Embedding)
}

// ScoredChunk is a retrieval hit
type ScoredChunk struct {
	DocumentID string
	Chunk      DocumentChunk
	Score      float64 // Cosine similarity, higher is better
}
