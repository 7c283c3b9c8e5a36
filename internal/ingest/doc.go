// Package ingest coordinates the document ingestion pipeline.
//
// A document's raw text is chunked, the chunks are embedded in batches and
// each batch is upserted into the vector store as soon as its embeddings
// arrive.
//
// # Basic Usage
//
//	p := ingest.New(chunker.NewDefault(), client, store, ingest.Config{
//	    BatchSize:   50,
//	    Concurrency: 4,
//	})
//
//	res, err := p.IngestDocument(ctx, "lease-2024", text)
//	fmt.Printf("Stored %d chunks (%d tokens) in %v\n", res.Stored, res.Tokens, res.Duration)
//
// # Failures and Resuming
//
// Batches run concurrently, so they can finish in any order. When one fails
// the remaining batches are not issued and the error names the document and
// the first chunk that was not stored:
//
//	res, err := p.EmbedAndStore(ctx, id, chunks)
//	var pe *types.ProviderError
//	if errors.As(err, &pe) {
//	    // retry later from where it stopped
//	    _, err = p.EmbedAndStore(ctx, id, chunks[res.ResumeIndex:])
//	}
//
// Upserts are keyed by (document, chunk index), so re-sending chunks that
// were already stored is harmless.
//
// # Directories
//
// IngestDirectory walks a directory with a doublestar pattern, extracts each
// file (plain text, Markdown or PDF) and ingests the files concurrently. Empty
// files are skipped and failing files are recorded in Statistics without
// stopping the run. Only one directory ingestion may run per Pipeline at a
// time; a second call returns ErrIngestInProgress.
package ingest
