// Package retrieval answers natural-language queries with the most similar
// stored chunks.
//
// # Basic Usage
//
//	c, err := retrieval.New(client, store, retrieval.Config{DefaultTopK: 5})
//
//	results, err := c.Retrieve(ctx, "who pays for roof repairs?", 0)
//	for _, r := range results {
//	    fmt.Printf("%s#%d (score: %.2f)\n", r.DocumentID, r.Chunk.Index, r.Score)
//	}
//
// Results are ordered by descending cosine similarity. Equal scores are
// ordered by document ID and then chunk index, whichever backend produced them.
//
// # Errors
//
// A blank query returns types.ErrEmptyQuery before anything is embedded.
// Other failures are wrapped in *types.RetrievalError; types.StageOf tells
// an embedding failure (StageEmbed) from a store failure (StageStore).
//
// # Caching
//
// With Config.CacheSize > 0, results are kept in an LRU cache for CacheTTL.
// The cache does not see writes to the store, so callers that ingest or
// delete documents should call InvalidateCache afterwards.
package retrieval
