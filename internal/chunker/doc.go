// Package chunker divides extracted document text into bounded, coherent chunks
// for embedding and retrieval.
//
// Every function here is pure: no I/O, no shared state, safe to run on any
// number of documents in parallel.
//
// # Basic Usage
//
//	c := chunker.NewDefault()
//	chunks, err := c.Chunk(rawText)
//	if errors.Is(err, types.ErrEmptyInput) {
//	    // nothing survived normalization
//	}
//
//	for _, chunk := range chunks {
//	    fmt.Printf("Chunk %d: page %d, %d tokens, chars %d-%d\n",
//	        chunk.Index, chunk.Page(), chunk.TokenCount, chunk.CharStart, chunk.CharEnd)
//	}
//
// # Pipeline
//
// Chunk runs these stages, each exported on its own:
//   - Normalize: line endings, whitespace, stray page-number lines
//   - FindBreakPoints: paragraph, header, line and sentence boundaries
//   - SplitPages / Split: greedy budget-bounded walk snapping to break points
//   - Merge: folds undersized chunks into a neighbor
//
// # Chunk Sizing
//
// Sizes are configured in tokens and converted to characters with
// CharsPerToken (4). Defaults:
//   - Target: 500 tokens
//   - Maximum: 1000 tokens
//   - Minimum: 100 tokens
//   - Overlap: 50 tokens
//
// Token estimation uses the same heuristic (EstimateTokens). Swap it for a
// real tokenizer only together with the budget conversion.
package chunker
