package types

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by the chunking, embedding, storage and retrieval stages
var (
	// ErrEmptyInput is returned when normalization leaves nothing to chunk or embed
	ErrEmptyInput = errors.New("empty input")
	// ErrAllInputsEmpty is returned by batch embedding when every text is blank
	ErrAllInputsEmpty = errors.New("all inputs are empty")
	// ErrDimensionMismatch is matched by every *DimensionMismatchError
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	// ErrEmptyQuery is returned by retrieval for a blank query
	ErrEmptyQuery = errors.New("query cannot be empty")
	// ErrProvider is matched by every *ProviderError
	ErrProvider = errors.New("embedding provider failed")
	// ErrStore is matched by every *StoreError
	ErrStore = errors.New("vector store failed")
)

// Stage names the pipeline step an error came from
type Stage string

const (
	StageChunk Stage = "chunk"
	StageEmbed Stage = "embed"
	StageStore Stage = "store"
)

// NoChunkIndex marks errors that are not tied to a single chunk
const NoChunkIndex = -1

// DimensionMismatchError reports vectors of incompatible length
type DimensionMismatchError struct {
	Want int
	Got  int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("embedding dimension mismatch: want %d, got %d", e.Want, e.Got)
}

// Is lets errors.Is(err, ErrDimensionMismatch) match
func (e *DimensionMismatchError) Is(target error) bool {
	return target == ErrDimensionMismatch
}

// ProviderError wraps an embedding provider failure with enough context to resume
type ProviderError struct {
	DocumentID string
	ChunkIndex int // First chunk of the failed batch, or NoChunkIndex
	Err        error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s%s: %v", ErrProvider, location(e.DocumentID, e.ChunkIndex), e.Err)
}

func (e *ProviderError) Unwrap() []error {
	return []error{ErrProvider, e.Err}
}

// StoreError wraps a vector store failure with enough context to resume
type StoreError struct {
	Op         string // upsert, query, delete
	DocumentID string
	ChunkIndex int
	Err        error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %s%s: %v", ErrStore, e.Op, location(e.DocumentID, e.ChunkIndex), e.Err)
}

func (e *StoreError) Unwrap() []error {
	return []error{ErrStore, e.Err}
}

// RetrievalError tags a retrieval failure with the stage that produced it
type RetrievalError struct {
	Stage Stage
	Err   error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieval %s stage: %v", e.Stage, e.Err)
}

func (e *RetrievalError) Unwrap() error {
	return e.Err
}

// StageOf returns the retrieval stage recorded in err, if any
func StageOf(err error) (Stage, bool) {
	var re *RetrievalError
	if errors.As(err, &re) {
		return re.Stage, true
	}
	return "", false
}

func location(documentID string, chunkIndex int) string {
	switch {
	case documentID != "" && chunkIndex >= 0:
		return fmt.Sprintf(" (document %s, chunk %d)", documentID, chunkIndex)
	case documentID != "":
		return fmt.Sprintf(" (document %s)", documentID)
	case chunkIndex >= 0:
		return fmt.Sprintf(" (chunk %d)", chunkIndex)
	default:
		return ""
	}
}
