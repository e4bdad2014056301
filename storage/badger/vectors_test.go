package badger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/svjt78/ragmesh/core"
	"github.com/svjt78/ragmesh/storage"
)

func TestVectorStore_Search(t *testing.T) {
	ctx := context.Background()
	vectors := newTestStores(t).Vectors

	require.NoError(t, vectors.UpsertVectors(ctx,
		&core.Chunk{ChunkID: "a", DocID: "d1", Text: "alpha", Vector: []float32{1, 0}},
		&core.Chunk{ChunkID: "b", DocID: "d2", Text: "beta", Vector: []float32{0.8, 0.6}},
		&core.Chunk{ChunkID: "c", DocID: "d2", Text: "gamma", Vector: []float32{-1, 0}},
		&core.Chunk{ChunkID: "novec", DocID: "d3"},
	))

	results, err := vectors.Search(ctx, []float32{2, 0}, 10, 0.0, nil)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "a", results[0].ChunkID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
	assert.Equal(t, 1, results[0].Rank)
	assert.Equal(t, "b", results[1].ChunkID)
	assert.InDelta(t, 0.8, results[1].Score, 1e-6)
	assert.Equal(t, "alpha", results[0].Text)
	// opposite vector clamps to zero
	assert.Equal(t, 0.0, results[2].Score)

	t.Run("threshold", func(t *testing.T) {
		results, err := vectors.Search(ctx, []float32{1, 0}, 10, 0.9, nil)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "a", results[0].ChunkID)
	})

	t.Run("k and filter", func(t *testing.T) {
		results, err := vectors.Search(ctx, []float32{1, 0}, 1, 0, &storage.ChunkFilter{DocIDs: []string{"d2"}})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "b", results[0].ChunkID)
	})

	t.Run("zero query", func(t *testing.T) {
		results, err := vectors.Search(ctx, []float32{0, 0}, 5, 0, nil)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("invalid k", func(t *testing.T) {
		_, err := vectors.Search(ctx, []float32{1, 0}, 0, 0, nil)
		assert.ErrorIs(t, err, storage.ErrInvalidQuery)
	})
}

func TestVectorStore_Delete(t *testing.T) {
	ctx := context.Background()
	vectors := newTestStores(t).Vectors
	require.NoError(t, vectors.UpsertVectors(ctx, &core.Chunk{ChunkID: "a", DocID: "d1", Vector: []float32{1}}))
	require.NoError(t, vectors.DeleteVectors(ctx, "a"))

	results, err := vectors.Search(ctx, []float32{1}, 5, 0, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}
