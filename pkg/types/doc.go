// Package types provides shared type definitions for the Legal Brain pipeline.
//
// This package defines the domain types passed between the chunker, embedder,
// storage, ingestion and retrieval components.
//
// # Core Types
//
// DocumentChunk is a contiguous slice of normalized document text and the
// smallest retrievable unit:
//
//	chunk := types.DocumentChunk{
//	    Content:    "1. DEFINITIONS: ...",
//	    Index:      0,
//	    PageNumber: types.IntPtr(3),
//	    CharStart:  0,
//	    CharEnd:    412,
//	    TokenCount: 103,
//	}
//
// Offsets always refer to the normalized text, not the raw extraction output.
// TokenCount is an estimate (4 characters per token), never an exact tokenizer count.
//
// ChunkID is the idempotent upsert key of a persisted chunk:
//
//	id := types.ChunkID{DocumentID: "lease-2024", Index: 7}
//	id.String() // "lease-2024#7"
//
// # Errors
//
// Every stage reports failures through the shared taxonomy. Sentinels are
// matched with errors.Is, typed errors with errors.As:
//
//	var pe *types.ProviderError
//	if errors.As(err, &pe) {
//	    // resume from chunks[pe.ChunkIndex:] without re-chunking
//	}
//
//	if stage, ok := types.StageOf(err); ok && stage == types.StageEmbed {
//	    // embedding failed, the store was never queried
//	}
package types
