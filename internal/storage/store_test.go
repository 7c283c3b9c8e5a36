package storage

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/legalbrain/pkg/types"
)

// The same behaviour is required of every backend that can run without a server

type storeFactory func(t *testing.T) VectorStore

func backends() map[string]storeFactory {
	return map[string]storeFactory{
		BackendSQLite: func(t *testing.T) VectorStore {
			return setupTestDB(t)
		},
		BackendChromem: func(t *testing.T) VectorStore {
			store, err := NewChromemStore(ChromemConfig{InMemory: true})
			require.NoError(t, err)
			t.Cleanup(func() { _ = store.Close() })
			return store
		},
	}
}

func meta(content string, page int) Metadata {
	m := Metadata{
		Content:    content,
		CharStart:  0,
		CharEnd:    len(content),
		TokenCount: (len(content) + 3) / 4,
		Source:     "lease.pdf",
	}
	if page > 0 {
		m.PageNumber = types.IntPtr(page)
	}
	return m
}

func chunkID(doc string, index int) types.ChunkID {
	return types.ChunkID{DocumentID: doc, Index: index}
}

func TestVectorStore_QueryOrdering(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			ctx := context.Background()

			require.NoError(t, store.Upsert(ctx, chunkID("lease", 0), []float32{0, 1, 0}, meta("parking", 1)))
			require.NoError(t, store.Upsert(ctx, chunkID("lease", 1), []float32{1, 0, 0}, meta("rent is due monthly", 2)))
			require.NoError(t, store.Upsert(ctx, chunkID("lease", 2), []float32{1, 1, 0}, meta("rent and parking", 0)))

			matches, err := store.Query(ctx, []float32{1, 0, 0}, 2)
			require.NoError(t, err)
			require.Len(t, matches, 2)

			assert.Equal(t, chunkID("lease", 1), matches[0].ID)
			assert.InDelta(t, 1.0, matches[0].Score, 1e-5)
			assert.Equal(t, "rent is due monthly", matches[0].Metadata.Content)
			require.NotNil(t, matches[0].Metadata.PageNumber)
			assert.Equal(t, 2, *matches[0].Metadata.PageNumber)
			assert.Equal(t, "lease.pdf", matches[0].Metadata.Source)

			assert.Equal(t, chunkID("lease", 2), matches[1].ID)
			assert.InDelta(t, 0.7071, matches[1].Score, 1e-3)
			assert.Nil(t, matches[1].Metadata.PageNumber)
		})
	}
}

func TestVectorStore_TopKLargerThanStore(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			ctx := context.Background()

			require.NoError(t, store.Upsert(ctx, chunkID("a", 0), []float32{1, 0}, meta("one", 1)))

			matches, err := store.Query(ctx, []float32{1, 0}, 50)
			require.NoError(t, err)
			assert.Len(t, matches, 1)

			matches, err = store.Query(ctx, []float32{1, 0}, 0)
			require.NoError(t, err)
			assert.Empty(t, matches)
		})
	}
}

func TestVectorStore_EmptyStore(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			store := factory(t)

			matches, err := store.Query(context.Background(), []float32{1, 0, 0}, 5)
			require.NoError(t, err)
			assert.Empty(t, matches)
		})
	}
}

func TestVectorStore_UpsertIsIdempotent(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			ctx := context.Background()
			id := chunkID("lease", 0)

			require.NoError(t, store.Upsert(ctx, id, []float32{1, 0}, meta("first draft", 1)))
			require.NoError(t, store.Upsert(ctx, id, []float32{0, 1}, meta("final text", 3)))

			counter, ok := store.(Counter)
			require.True(t, ok)
			n, err := counter.Count(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, n)

			matches, err := store.Query(ctx, []float32{0, 1}, 5)
			require.NoError(t, err)
			require.Len(t, matches, 1)
			assert.Equal(t, "final text", matches[0].Metadata.Content)
			assert.InDelta(t, 1.0, matches[0].Score, 1e-5)
			assert.Equal(t, 3, *matches[0].Metadata.PageNumber)
		})
	}
}

func TestVectorStore_DeleteByDocument(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			ctx := context.Background()

			for i := 0; i < 3; i++ {
				require.NoError(t, store.Upsert(ctx, chunkID("lease", i), []float32{1, float32(i)}, meta(fmt.Sprintf("lease %d", i), 1)))
			}
			require.NoError(t, store.Upsert(ctx, chunkID("nda", 0), []float32{1, 1}, meta("nda", 1)))

			require.NoError(t, store.Delete(ctx, "lease"))

			matches, err := store.Query(ctx, []float32{1, 0}, 10)
			require.NoError(t, err)
			require.Len(t, matches, 1)
			assert.Equal(t, "nda", matches[0].ID.DocumentID)

			// Unknown documents are not an error
			assert.NoError(t, store.Delete(ctx, "missing"))
		})
	}
}

func TestVectorStore_DimensionMismatch(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			ctx := context.Background()

			require.NoError(t, store.Upsert(ctx, chunkID("lease", 0), []float32{1, 0, 0}, meta("rent", 1)))

			err := store.Upsert(ctx, chunkID("lease", 1), []float32{1, 0}, meta("deposit", 1))
			assert.ErrorIs(t, err, types.ErrDimensionMismatch)

			_, err = store.Query(ctx, []float32{1, 0}, 5)
			require.Error(t, err)
			var dm *types.DimensionMismatchError
			require.ErrorAs(t, err, &dm)
			assert.Equal(t, 3, dm.Want)
			assert.Equal(t, 2, dm.Got)
		})
	}
}

func TestVectorStore_RejectsInvalidRecords(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			ctx := context.Background()

			assert.ErrorIs(t, store.Upsert(ctx, chunkID("", 0), []float32{1}, meta("x", 1)), ErrInvalidID)
			assert.ErrorIs(t, store.Upsert(ctx, chunkID("doc", -1), []float32{1}, meta("x", 1)), ErrInvalidID)
			assert.ErrorIs(t, store.Upsert(ctx, chunkID("doc", 0), nil, meta("x", 1)), ErrEmptyVector)

			_, err := store.Query(ctx, nil, 5)
			assert.ErrorIs(t, err, ErrEmptyVector)
		})
	}
}

func TestVectorStore_ConcurrentUpserts(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			ctx := context.Background()

			var wg sync.WaitGroup
			errs := make(chan error, 20)
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					errs <- store.Upsert(ctx, chunkID("lease", i), []float32{1, float32(i)}, meta(fmt.Sprintf("clause %d", i), 1))
				}(i)
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				require.NoError(t, err)
			}

			n, err := store.(Counter).Count(ctx)
			require.NoError(t, err)
			assert.Equal(t, 20, n)
		})
	}
}

func TestUpsertAll(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			ctx := context.Background()

			records := []Record{
				{ID: chunkID("lease", 0), Vector: []float32{1, 0}, Metadata: meta("a", 1)},
				{ID: chunkID("lease", 1), Vector: []float32{0, 1}, Metadata: meta("b", 1)},
			}
			require.NoError(t, UpsertAll(ctx, store, records))
			require.NoError(t, UpsertAll(ctx, store, nil))

			n, err := store.(Counter).Count(ctx)
			require.NoError(t, err)
			assert.Equal(t, 2, n)
		})
	}
}

// loopOnlyStore hides UpsertBatch so UpsertAll has to fall back to Upsert
type loopOnlyStore struct {
	VectorStore
	calls int
}

func (l *loopOnlyStore) Upsert(ctx context.Context, id types.ChunkID, vector []float32, meta Metadata) error {
	l.calls++
	return l.VectorStore.Upsert(ctx, id, vector, meta)
}

func TestUpsertAll_FallsBackToUpsert(t *testing.T) {
	store := &loopOnlyStore{VectorStore: setupTestDB(t)}

	records := []Record{
		{ID: chunkID("lease", 0), Vector: []float32{1, 0}, Metadata: meta("a", 1)},
		{ID: chunkID("lease", 1), Vector: []float32{0, 1}, Metadata: meta("b", 1)},
	}
	require.NoError(t, UpsertAll(context.Background(), store, records))
	assert.Equal(t, 2, store.calls)
}

func TestMatchScoredChunk(t *testing.T) {
	m := Match{
		ID:       chunkID("lease", 4),
		Score:    0.5,
		Metadata: meta("notice period", 2),
	}

	sc := m.ScoredChunk()
	assert.Equal(t, "lease", sc.DocumentID)
	assert.Equal(t, 4, sc.Chunk.Index)
	assert.Equal(t, "notice period", sc.Chunk.Content)
	assert.Equal(t, 2, sc.Chunk.Page())
	assert.Equal(t, 0.5, sc.Score)
}

func TestMetadataFromChunk(t *testing.T) {
	chunk := types.DocumentChunk{
		Content:    "Landlord shall repair.",
		Index:      3,
		PageNumber: types.IntPtr(7),
		CharStart:  10,
		CharEnd:    32,
		TokenCount: 6,
	}

	m := MetadataFromChunk(chunk, "lease.txt")
	*chunk.PageNumber = 1

	assert.Equal(t, 7, *m.PageNumber, "page pointer must be copied")
	assert.Equal(t, "lease.txt", m.Source)

	back := m.Chunk(3)
	assert.Equal(t, 3, back.Index)
	assert.Equal(t, 10, back.CharStart)
	assert.Equal(t, 32, back.CharEnd)
	assert.Equal(t, 6, back.TokenCount)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	t.Run("sqlite default", func(t *testing.T) {
		store, err := Open(ctx, Config{SQLitePath: ":memory:"})
		require.NoError(t, err)
		defer store.Close()
		_, ok := store.(*SQLiteStore)
		assert.True(t, ok)
	})

	t.Run("chromem persistent", func(t *testing.T) {
		store, err := Open(ctx, Config{Backend: "Chromem", Chromem: ChromemConfig{Path: t.TempDir() + "/vectors"}})
		require.NoError(t, err)
		defer store.Close()
		_, ok := store.(*ChromemStore)
		assert.True(t, ok)
	})

	t.Run("unknown backend", func(t *testing.T) {
		_, err := Open(ctx, Config{Backend: "pinecone"})
		assert.ErrorIs(t, err, ErrUnsupportedBackend)
	})

	t.Run("milvus needs a dimension", func(t *testing.T) {
		_, err := Open(ctx, Config{Backend: BackendMilvus})
		assert.Error(t, err)
	})
}

func TestDimensionGuard(t *testing.T) {
	var g dimensionGuard

	pinned, err := g.compare(3)
	assert.False(t, pinned)
	assert.NoError(t, err)

	require.NoError(t, g.check(3))
	assert.Equal(t, 3, g.get())
	assert.ErrorIs(t, g.check(4), types.ErrDimensionMismatch)

	pinned, err = g.compare(4)
	assert.True(t, pinned)
	assert.ErrorIs(t, err, types.ErrDimensionMismatch)
}
