package embedder

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/legalbrain/pkg/types"
)

func TestComputeHash(t *testing.T) {
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", ComputeHash(""))
	assert.Equal(t, "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9", ComputeHash("hello world"))
	assert.Equal(t, ComputeHash("test"), ComputeHash("test"))
}

func TestCache(t *testing.T) {
	t.Run("set and get", func(t *testing.T) {
		cache := NewCache(10)
		cache.Set("h1", []float32{1, 2, 3})

		got, ok := cache.Get("h1")
		require.True(t, ok)
		assert.Equal(t, []float32{1, 2, 3}, got)

		_, ok = cache.Get("missing")
		assert.False(t, ok)
	})

	t.Run("returned vectors are copies", func(t *testing.T) {
		cache := NewCache(10)
		vec := []float32{1, 2, 3}
		cache.Set("h1", vec)
		vec[0] = 99

		got, _ := cache.Get("h1")
		got[1] = 42

		again, _ := cache.Get("h1")
		assert.Equal(t, []float32{1, 2, 3}, again)
	})

	t.Run("lru eviction", func(t *testing.T) {
		cache := NewCache(2)
		cache.Set("a", []float32{1})
		cache.Set("b", []float32{2})
		_, _ = cache.Get("a")
		cache.Set("c", []float32{3})

		assert.Equal(t, 2, cache.Size())
		_, ok := cache.Get("b")
		assert.False(t, ok, "least recently used entry should be evicted")
		_, ok = cache.Get("a")
		assert.True(t, ok)
	})

	t.Run("clear", func(t *testing.T) {
		cache := NewCache(0)
		cache.Set("a", []float32{1})
		cache.Clear()
		assert.Equal(t, 0, cache.Size())
	})
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 2}, []float32{-1, -2}, -1},
		{"scaled", []float32{1, 1}, []float32{5, 5}, 1},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CosineSimilarity(tt.a, tt.b)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-6)
		})
	}
}

func TestCosineSimilarity_DimensionMismatch(t *testing.T) {
	_, err := CosineSimilarity([]float32{1, 2, 3}, []float32{1, 2})

	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrDimensionMismatch)

	var dm *types.DimensionMismatchError
	require.ErrorAs(t, err, &dm)
	assert.Equal(t, 3, dm.Want)
	assert.Equal(t, 2, dm.Got)
}

func TestCosineSimilarity_Symmetry(t *testing.T) {
	provider, err := NewLocalProvider(ProviderConfig{Dimension: 64})
	require.NoError(t, err)

	texts := []string{
		"the lessee shall pay rent monthly",
		"notice of default must be written",
		"landlord maintains the premises",
		"???",
	}
	vectors, _, err := provider.EmbedMany(context.Background(), texts)
	require.NoError(t, err)

	for i := range vectors {
		self, err := CosineSimilarity(vectors[i], vectors[i])
		require.NoError(t, err)
		assert.InDelta(t, 1.0, self, 1e-6)

		for j := range vectors {
			ab, err := CosineSimilarity(vectors[i], vectors[j])
			require.NoError(t, err)
			ba, err := CosineSimilarity(vectors[j], vectors[i])
			require.NoError(t, err)
			assert.Equal(t, ab, ba, "pair %d,%d", i, j)
			assert.LessOrEqual(t, math.Abs(ab), 1.0)
		}
	}
}

func TestNormalizeVector(t *testing.T) {
	got := NormalizeVector([]float32{3, 4})
	assert.InDelta(t, 0.6, got[0], 1e-6)
	assert.InDelta(t, 0.8, got[1], 1e-6)

	zero := []float32{0, 0}
	assert.Equal(t, zero, NormalizeVector(zero))
}

func TestLocalProvider(t *testing.T) {
	provider, err := NewLocalProvider(ProviderConfig{})
	require.NoError(t, err)
	defer provider.Close()

	assert.Equal(t, ProviderLocal, provider.Name())
	assert.Equal(t, DefaultLocalModel, provider.Model())
	assert.Equal(t, LocalDimension, provider.Dimension())

	ctx := context.Background()

	t.Run("deterministic", func(t *testing.T) {
		a, _, err := provider.EmbedMany(ctx, []string{"security deposit refund"})
		require.NoError(t, err)
		b, _, err := provider.EmbedMany(ctx, []string{"security deposit refund"})
		require.NoError(t, err)
		assert.Equal(t, a, b)
		assert.Len(t, a[0], LocalDimension)
	})

	t.Run("shared words score higher", func(t *testing.T) {
		vecs, tokens, err := provider.EmbedMany(ctx, []string{
			"security deposit refund",
			"refund of the security deposit",
			"parking space allocation",
		})
		require.NoError(t, err)
		assert.Greater(t, tokens, 0)

		related, err := CosineSimilarity(vecs[0], vecs[1])
		require.NoError(t, err)
		unrelated, err := CosineSimilarity(vecs[0], vecs[2])
		require.NoError(t, err)
		assert.Greater(t, related, unrelated)
	})

	t.Run("batch limits", func(t *testing.T) {
		_, _, err := provider.EmbedMany(ctx, nil)
		assert.Error(t, err)

		texts := make([]string, MaxBatchSize+1)
		for i := range texts {
			texts[i] = fmt.Sprintf("text %d", i)
		}
		_, _, err = provider.EmbedMany(ctx, texts)
		assert.ErrorIs(t, err, ErrBatchTooLarge)
	})

	t.Run("cancelled context", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		_, _, err := provider.EmbedMany(cancelled, []string{"text"})
		assert.ErrorIs(t, err, context.Canceled)
	})
}
