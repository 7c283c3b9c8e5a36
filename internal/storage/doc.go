// Package storage persists chunk embeddings and answers similarity queries.
//
// Every backend implements VectorStore, keyed by types.ChunkID so that
// re-ingesting a document replaces its chunks in place:
//
//   - SQLiteStore: database/sql with schema migrations. Default backend.
//   - ChromemStore: embedded chromem-go database, in memory or persisted to a directory.
//   - MilvusStore: a Milvus collection with an HNSW cosine index.
//
// A collection remembers the dimension of the first vector it receives.
// Writing or querying with a different length returns a
// *types.DimensionMismatchError.
//
// # Basic Usage
//
//	store, err := storage.Open(ctx, storage.Config{
//	    Backend:    storage.BackendSQLite,
//	    SQLitePath: "~/.legalbrain/legalbrain.db",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
//	id := types.ChunkID{DocumentID: "lease-2024", Index: 0}
//	err = store.Upsert(ctx, id, vector, storage.MetadataFromChunk(chunk, "lease.pdf"))
//
//	matches, err := store.Query(ctx, queryVector, 5)
//	for _, m := range matches {
//	    fmt.Printf("%s: %.3f\n", m.ID, m.Score)
//	}
//
// # Optional Capabilities
//
// Stores may also implement Counter, StatsReporter and BatchUpserter.
// UpsertAll uses UpsertBatch when it is available, which lets SQLite write a
// whole embedding batch in one transaction.
//
// # Build Tags
//
// The SQLite backend supports two build configurations:
//
// CGO Build (sqlite_vec tag):
//
//   - Uses github.com/mattn/go-sqlite3 driver
//
//   - Similarity computed in SQL with vec_distance_cosine
//
//     CGO_ENABLED=1 go build -tags "sqlite_vec"
//
// Pure Go Build (default, or purego tag):
//
//   - Uses modernc.org/sqlite driver
//
//   - Similarity computed in Go
//
//     CGO_ENABLED=0 go build -tags "purego"
package storage
