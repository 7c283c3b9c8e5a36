package retrieval

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/dshills/legalbrain/internal/embedder"
	"github.com/dshills/legalbrain/internal/storage"
	"github.com/dshills/legalbrain/pkg/types"
)

const (
	DefaultTopK = 5
	MaxTopK     = 100

	DefaultCacheTTL = 10 * time.Minute
)

// Config contains configuration for the coordinator
type Config struct {
	DefaultTopK int // Used when a caller passes topK <= 0 (default: DefaultTopK)
	MaxTopK     int // Upper bound on topK (default: MaxTopK)

	// CacheSize enables a result cache of that many queries. Zero disables it.
	CacheSize int
	CacheTTL  time.Duration // default: DefaultCacheTTL

	Logger *zerolog.Logger
}

// cacheEntry represents cached results with an expiration time
type cacheEntry struct {
	results   []types.ScoredChunk
	expiresAt time.Time
}

// Coordinator embeds queries and asks the vector store for the nearest chunks
type Coordinator struct {
	embedder    *embedder.Client
	store       storage.VectorStore
	logger      zerolog.Logger
	defaultTopK int
	maxTopK     int

	cache    *lru.Cache[[32]byte, *cacheEntry]
	cacheTTL time.Duration
	cacheMu  sync.RWMutex
}

// New creates a Coordinator
func New(e *embedder.Client, store storage.VectorStore, cfg Config) (*Coordinator, error) {
	c := &Coordinator{
		embedder:    e,
		store:       store,
		logger:      zerolog.Nop(),
		defaultTopK: cfg.DefaultTopK,
		maxTopK:     cfg.MaxTopK,
		cacheTTL:    cfg.CacheTTL,
	}
	if cfg.Logger != nil {
		c.logger = *cfg.Logger
	}
	if c.maxTopK <= 0 {
		c.maxTopK = MaxTopK
	}
	if c.defaultTopK <= 0 {
		c.defaultTopK = DefaultTopK
	}
	if c.defaultTopK > c.maxTopK {
		c.defaultTopK = c.maxTopK
	}
	if c.cacheTTL <= 0 {
		c.cacheTTL = DefaultCacheTTL
	}

	if cfg.CacheSize > 0 {
		cache, err := lru.New[[32]byte, *cacheEntry](cfg.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create result cache: %w", err)
		}
		c.cache = cache
	}

	return c, nil
}

// Limit returns the topK a request for topK will actually use
func (c *Coordinator) Limit(topK int) int {
	if topK <= 0 {
		topK = c.defaultTopK
	}
	if topK > c.maxTopK {
		topK = c.maxTopK
	}
	return topK
}

// MaxTopK returns the largest topK the coordinator will query
func (c *Coordinator) MaxTopK() int {
	return c.maxTopK
}

// Retrieve returns the topK chunks most similar to query, best first.
//
// A blank query fails with types.ErrEmptyQuery. Embedding and store failures
// are returned as *types.RetrievalError carrying the stage that failed.
func (c *Coordinator) Retrieve(ctx context.Context, query string, topK int) ([]types.ScoredChunk, error) {
	if strings.TrimSpace(query) == "" {
		return nil, types.ErrEmptyQuery
	}
	topK = c.Limit(topK)
	start := time.Now()

	key := cacheKey(query, topK)
	if results, ok := c.cached(key); ok {
		c.logger.Debug().Int("top_k", topK).Int("results", len(results)).Msg("retrieval cache hit")
		return results, nil
	}

	emb, err := c.embedder.Embed(ctx, query)
	if err != nil {
		return nil, &types.RetrievalError{Stage: types.StageEmbed, Err: err}
	}

	matches, err := c.store.Query(ctx, emb.Embedding, topK)
	if err != nil {
		var se *types.StoreError
		if !errors.As(err, &se) {
			err = &types.StoreError{Op: "query", ChunkIndex: types.NoChunkIndex, Err: err}
		}
		return nil, &types.RetrievalError{Stage: types.StageStore, Err: err}
	}

	// Backends order their own results; re-sort so every backend agrees on ties
	sortMatches(matches)
	if len(matches) > topK {
		matches = matches[:topK]
	}

	results := make([]types.ScoredChunk, len(matches))
	for i, m := range matches {
		results[i] = m.ScoredChunk()
	}

	c.remember(key, results)

	c.logger.Debug().
		Int("top_k", topK).
		Int("results", len(results)).
		Dur("duration", time.Since(start)).
		Msg("retrieved chunks")

	return results, nil
}

// sortMatches orders by descending score, then by document and chunk index
func sortMatches(matches []storage.Match) {
	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.ID.DocumentID != b.ID.DocumentID {
			return a.ID.DocumentID < b.ID.DocumentID
		}
		return a.ID.Index < b.ID.Index
	})
}

// InvalidateCache drops every cached result. Call it after the store changes.
func (c *Coordinator) InvalidateCache() {
	if c.cache == nil {
		return
	}
	c.cacheMu.Lock()
	c.cache.Purge()
	c.cacheMu.Unlock()
}

func (c *Coordinator) cached(key [32]byte) ([]types.ScoredChunk, bool) {
	if c.cache == nil {
		return nil, false
	}

	c.cacheMu.RLock()
	entry, found := c.cache.Get(key)
	c.cacheMu.RUnlock()
	if !found {
		return nil, false
	}

	if time.Now().After(entry.expiresAt) {
		c.cacheMu.Lock()
		c.cache.Remove(key)
		c.cacheMu.Unlock()
		return nil, false
	}

	return copyResults(entry.results), true
}

func (c *Coordinator) remember(key [32]byte, results []types.ScoredChunk) {
	if c.cache == nil || len(results) == 0 {
		return
	}

	entry := &cacheEntry{
		results:   copyResults(results),
		expiresAt: time.Now().Add(c.cacheTTL),
	}

	c.cacheMu.Lock()
	c.cache.Add(key, entry)
	c.cacheMu.Unlock()
}

// copyResults deep copies results so callers cannot modify cached entries
func copyResults(src []types.ScoredChunk) []types.ScoredChunk {
	dst := make([]types.ScoredChunk, len(src))
	copy(dst, src)
	for i := range dst {
		if p := src[i].Chunk.PageNumber; p != nil {
			dst[i].Chunk.PageNumber = types.IntPtr(*p)
		}
	}
	return dst
}

func cacheKey(query string, topK int) [32]byte {
	return sha256.Sum256([]byte(fmt.Sprintf("%s|%d", query, topK)))
}
