package reembed

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/svjt78/ragmesh/ai/mock"
	"github.com/svjt78/ragmesh/core"
	"github.com/svjt78/ragmesh/storage/badger"
)

// unnormalized returns vectors of magnitude 3 for every text.
func unnormalized(_ context.Context, texts []string) ([][]float32, error) {
	result := make([][]float32, len(texts))
	for i := range texts {
		result[i] = []float32{1.0, 2.0, 2.0}
	}
	return result, nil
}

func setupTestStores(t *testing.T, docs map[string]int) *badger.Stores {
	t.Helper()
	stores, err := badger.NewMemoryStores()
	require.NoError(t, err)
	t.Cleanup(func() { stores.Close() })

	ctx := context.Background()
	for docID, n := range docs {
		doc := &core.Document{DocID: docID, Filename: docID + ".pdf"}
		for i := 0; i < n; i++ {
			doc.Chunks = append(doc.Chunks, &core.Chunk{
				ChunkID: fmt.Sprintf("%s-%02d", docID, i),
				DocID:   docID,
				PageNo:  i + 1,
				Text:    fmt.Sprintf("policy text %d of %s", i, docID),
			})
		}
		require.NoError(t, stores.Documents.PutDocument(ctx, doc))
	}
	return stores
}

func allChunks(t *testing.T, stores *badger.Stores) []*core.Chunk {
	t.Helper()
	chunks, err := stores.Documents.GetChunks(context.Background(), nil)
	require.NoError(t, err)
	return chunks
}

func assertUnit(t *testing.T, v []float32) {
	t.Helper()
	require.NotEmpty(t, v, "should have embedding")
	var magnitude float32
	for _, x := range v {
		magnitude += x * x
	}
	assert.InDelta(t, 1.0, magnitude, 0.01, "vector should be normalized")
}

func TestBatchProcessor_Process(t *testing.T) {
	stores := setupTestStores(t, map[string]int{"ho3": 2})
	ctx := context.Background()

	embedder := mock.NewMockEmbedder().WithEmbedTextsFunc(unnormalized)
	processor := NewBatchProcessor(stores.Documents, stores.Vectors, embedder, 3, 10*time.Millisecond)

	require.NoError(t, processor.Process(ctx, allChunks(t, stores)))

	for _, chunk := range allChunks(t, stores) {
		assertUnit(t, chunk.Vector)
	}

	results, err := stores.Vectors.Search(ctx, []float32{1, 2, 2}, 10, 0.99, nil)
	require.NoError(t, err)
	assert.Len(t, results, 2, "vector index is updated too")
}

func TestBatchProcessor_EmptyBatch(t *testing.T) {
	stores := setupTestStores(t, nil)
	embedder := mock.NewMockEmbedder()
	processor := NewBatchProcessor(stores.Documents, stores.Vectors, embedder, 3, 10*time.Millisecond)

	require.NoError(t, processor.Process(context.Background(), []*core.Chunk{}), "empty batch should not error")
	assert.Zero(t, embedder.CallCount())
}

func TestBatchProcessor_EmbeddingError(t *testing.T) {
	stores := setupTestStores(t, map[string]int{"ho3": 1})
	embedder := mock.NewMockEmbedder().WithEmbedTextsFunc(func(context.Context, []string) ([][]float32, error) {
		return nil, errors.New("embedding error")
	})
	processor := NewBatchProcessor(stores.Documents, stores.Vectors, embedder, 3, time.Millisecond)

	err := processor.Process(context.Background(), allChunks(t, stores))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embedding error")
	assert.Equal(t, 3, embedder.CallCount(), "every attempt is used")
}

func TestBatchProcessor_Retry(t *testing.T) {
	stores := setupTestStores(t, map[string]int{"ho3": 1})
	var attempts atomic.Int32
	embedder := mock.NewMockEmbedder().WithEmbedTextsFunc(func(ctx context.Context, texts []string) ([][]float32, error) {
		if attempts.Add(1) < 3 {
			return nil, errors.New("temporary error")
		}
		return unnormalized(ctx, texts)
	})
	processor := NewBatchProcessor(stores.Documents, stores.Vectors, embedder, 3, time.Millisecond)

	require.NoError(t, processor.Process(context.Background(), allChunks(t, stores)))
	assert.Equal(t, int32(3), attempts.Load())
	assertUnit(t, allChunks(t, stores)[0].Vector)
}

func TestBatchProcessor_CountMismatch(t *testing.T) {
	stores := setupTestStores(t, map[string]int{"ho3": 2})
	embedder := mock.NewMockEmbedder().WithEmbedTextsFunc(func(context.Context, []string) ([][]float32, error) {
		return [][]float32{{1, 0}}, nil
	})
	processor := NewBatchProcessor(stores.Documents, stores.Vectors, embedder, 1, time.Millisecond)

	err := processor.Process(context.Background(), allChunks(t, stores))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected 2, got 1")
}

func TestBatchProcessor_ContextCancellation(t *testing.T) {
	stores := setupTestStores(t, map[string]int{"ho3": 1})
	embedder := mock.NewMockEmbedder()
	processor := NewBatchProcessor(stores.Documents, stores.Vectors, embedder, 3, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := processor.Process(ctx, allChunks(t, stores))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBatchProcessor_DimensionMismatch(t *testing.T) {
	stores := setupTestStores(t, map[string]int{"ho3": 2})
	embedder := mock.NewMockEmbedder().WithEmbedTextsFunc(func(context.Context, []string) ([][]float32, error) {
		return [][]float32{{1, 0}, {1, 0, 0}}, nil
	})
	processor := NewBatchProcessor(stores.Documents, stores.Vectors, embedder, 1, time.Millisecond)

	err := processor.Process(context.Background(), allChunks(t, stores))
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	for _, chunk := range allChunks(t, stores) {
		assert.Empty(t, chunk.Vector)
	}
}
