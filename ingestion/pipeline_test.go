package ingestion

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/svjt78/ragmesh/ai"
	"github.com/svjt78/ragmesh/ai/mock"
	"github.com/svjt78/ragmesh/core"
	"github.com/svjt78/ragmesh/storage/badger"
)

func setupTestStores(t *testing.T) *badger.Stores {
	t.Helper()
	stores, err := badger.NewMemoryStores()
	require.NoError(t, err)
	t.Cleanup(func() { stores.Close() })
	return stores
}

func newTestPipeline(t *testing.T, stores *badger.Stores, provider ai.Provider, opts ...Option) *Pipeline {
	t.Helper()
	p, err := NewPipeline(stores.Documents, stores.Vectors, stores.Keywords, stores.Graph, provider, opts...)
	require.NoError(t, err)
	t.Cleanup(p.Release)
	return p
}

func homeownersPolicy() *core.Document {
	return &core.Document{
		DocID:      "ho3",
		Filename:   "ho3.pdf",
		FormNumber: "HO-3",
		Chunks: []*core.Chunk{
			{ChunkID: "ho3-1", DocID: "ho3", PageNo: 1, Text: "Coverage for Water Damage from a burst pipe."},
			{ChunkID: "ho3-2", DocID: "ho3", PageNo: 2, Text: "Flood damage is excluded under Section One.", Metadata: map[string]string{"form_number": "HO-3 ED"}},
		},
	}
}

func TestNewPipeline(t *testing.T) {
	stores := setupTestStores(t)
	provider := mock.NewMockProvider()

	t.Run("valid pipeline", func(t *testing.T) {
		pipeline := newTestPipeline(t, stores, provider)
		assert.NotNil(t, pipeline.embeddingPool)
		assert.NotNil(t, pipeline.graphPool)
		assert.Equal(t, ai.EntityTypes, pipeline.entityTypes)
	})

	tests := []struct {
		name string
		new  func() (*Pipeline, error)
		want error
	}{
		{"nil document store", func() (*Pipeline, error) {
			return NewPipeline(nil, stores.Vectors, stores.Keywords, stores.Graph, provider)
		}, ErrDocumentStoreRequired},
		{"nil vector store", func() (*Pipeline, error) {
			return NewPipeline(stores.Documents, nil, stores.Keywords, stores.Graph, provider)
		}, ErrVectorStoreRequired},
		{"nil keyword store", func() (*Pipeline, error) {
			return NewPipeline(stores.Documents, stores.Vectors, nil, stores.Graph, provider)
		}, ErrKeywordStoreRequired},
		{"nil graph store", func() (*Pipeline, error) {
			return NewPipeline(stores.Documents, stores.Vectors, stores.Keywords, nil, provider)
		}, ErrGraphStoreRequired},
		{"nil provider", func() (*Pipeline, error) {
			return NewPipeline(stores.Documents, stores.Vectors, stores.Keywords, stores.Graph, nil)
		}, ErrAIProviderRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.new()
			assert.Equal(t, tt.want, err)
		})
	}
}

func TestPipeline_WithOptions(t *testing.T) {
	stores := setupTestStores(t)
	provider := mock.NewMockProvider()

	t.Run("with pool size", func(t *testing.T) {
		pipeline := newTestPipeline(t, stores, provider, WithPoolSize(4))
		assert.Equal(t, 4, pipeline.embeddingPool.Cap())
		assert.Equal(t, 4, pipeline.graphPool.Cap())
	})

	t.Run("with pool size zero defaults to 1", func(t *testing.T) {
		pipeline := newTestPipeline(t, stores, provider, WithPoolSize(0))
		assert.Equal(t, 1, pipeline.embeddingPool.Cap())
	})

	t.Run("with nil logger falls back to default", func(t *testing.T) {
		pipeline := newTestPipeline(t, stores, provider, WithLogger(nil))
		assert.NotNil(t, pipeline.logger)
	})

	t.Run("with entity types", func(t *testing.T) {
		pipeline := newTestPipeline(t, stores, provider, WithEntityTypes("Peril"), WithLogger(slog.Default()))
		assert.Equal(t, []string{"Peril"}, pipeline.entityTypes)
	})

	t.Run("empty entity types rejected", func(t *testing.T) {
		_, err := NewPipeline(stores.Documents, stores.Vectors, stores.Keywords, stores.Graph, provider, WithEntityTypes())
		assert.Error(t, err)
	})
}

func TestPipeline_Ingest(t *testing.T) {
	stores := setupTestStores(t)
	provider := mock.NewMockProvider()
	pipeline := newTestPipeline(t, stores, provider, WithPoolSize(2), WithEntityTypes("Peril"))
	ctx := context.Background()

	require.NoError(t, pipeline.Ingest(ctx, homeownersPolicy()))

	t.Run("keyword index is ready immediately", func(t *testing.T) {
		results, err := stores.Keywords.Search(ctx, "burst pipe", 5)
		require.NoError(t, err)
		require.NotEmpty(t, results)
		assert.Equal(t, "ho3-1", results[0].ChunkID)
	})

	require.NoError(t, pipeline.Wait())

	t.Run("document and chunk fields", func(t *testing.T) {
		doc, err := stores.Documents.GetDocument(ctx, "ho3")
		require.NoError(t, err)
		assert.False(t, doc.IndexedAt.IsZero())
		require.Len(t, doc.Chunks, 2)
		assert.Equal(t, "HO-3", doc.Chunks[0].Metadata["form_number"])
		assert.Equal(t, "HO-3 ED", doc.Chunks[1].Metadata["form_number"], "chunk metadata wins")
		assert.Equal(t, 8, doc.Chunks[0].Tokens)
		assert.NotEmpty(t, doc.Chunks[0].Vector)
	})

	t.Run("vectors are searchable", func(t *testing.T) {
		results, err := stores.Vectors.Search(ctx, mock.BagOfWordsVector("Flood damage is excluded under Section One."), 1, 0, nil)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "ho3-2", results[0].ChunkID)
	})

	t.Run("entities and relationships are merged into the graph", func(t *testing.T) {
		entities, err := stores.Graph.FindEntities(ctx, []string{"Water", "Damage", "Flood"}, []string{"Peril"})
		require.NoError(t, err)
		byLabel := map[string]*core.Entity{}
		for _, e := range entities {
			byLabel[e.Label] = e
		}
		require.Contains(t, byLabel, "Damage")
		assert.Equal(t, NodeID("Peril", "damage"), byLabel["Damage"].NodeID)
		assert.ElementsMatch(t, []string{"ho3-1"}, byLabel["Damage"].ChunkIDs)
		require.Contains(t, byLabel, "Flood")
		assert.ElementsMatch(t, []string{"ho3-2"}, byLabel["Flood"].ChunkIDs)

		sub, err := stores.Graph.QuerySubgraph(ctx, []string{byLabel["Water"].NodeID}, 1)
		require.NoError(t, err)
		assert.NotEmpty(t, sub.Edges)
	})

	t.Run("invalid document", func(t *testing.T) {
		err := pipeline.Ingest(ctx, &core.Document{DocID: "bad", Chunks: []*core.Chunk{{ChunkID: "x", DocID: "bad", PageNo: 0}}})
		assert.ErrorIs(t, err, core.ErrInvalidDocument)
	})

	t.Run("document without chunks", func(t *testing.T) {
		require.NoError(t, pipeline.Ingest(ctx, &core.Document{DocID: "empty", Filename: "empty.pdf"}))
		require.NoError(t, pipeline.Wait())
	})
}

type tokenizerless struct{ ai.Provider }

func (tokenizerless) Tokenizer() ai.Tokenizer { return nil }

func TestPipeline_IngestPages(t *testing.T) {
	stores := setupTestStores(t)
	provider := mock.NewMockProvider()
	profile := core.ChunkingProfile{Name: "small", ChunkSize: 6, ChunkOverlap: 1, PageAware: true, SentenceAware: true}
	pipeline := newTestPipeline(t, stores, provider, WithChunking(profile))
	ctx := context.Background()

	doc := &core.Document{
		DocID:      "dp1",
		DocType:    "policy",
		FormNumber: "DP 00 01",
		Pages: []*core.Page{
			{PageNo: 1, Text: "Fire and lightning are covered perils. Windstorm is covered too."},
			{PageNo: 2, Text: "Flood damage is excluded."},
		},
	}
	require.NoError(t, pipeline.Ingest(ctx, doc))
	require.NoError(t, pipeline.Wait())
	assert.Nil(t, doc.Pages)

	stored, err := stores.Documents.GetDocument(ctx, "dp1")
	require.NoError(t, err)
	require.Len(t, stored.Chunks, 3)
	assert.Equal(t, "Fire and lightning are covered perils.", stored.Chunks[0].Text)
	assert.Equal(t, "Windstorm is covered too.", stored.Chunks[1].Text)
	assert.Equal(t, "dp1_p2_c002", stored.Chunks[2].ChunkID)
	for _, c := range stored.Chunks {
		assert.LessOrEqual(t, c.Tokens, 6)
		assert.Equal(t, "DP 00 01", c.Metadata["form_number"])
		assert.NotEmpty(t, c.Vector)
	}

	results, err := stores.Keywords.Search(ctx, "flood", 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "dp1_p2_c002", results[0].ChunkID)

	t.Run("invalid chunking profile", func(t *testing.T) {
		_, err := NewPipeline(stores.Documents, stores.Vectors, stores.Keywords, stores.Graph, provider,
			WithChunking(core.ChunkingProfile{ChunkSize: 2, ChunkOverlap: 2}))
		assert.ErrorIs(t, err, core.ErrInvalidProfile)
	})

	t.Run("pages need a tokenizer", func(t *testing.T) {
		p := newTestPipeline(t, stores, tokenizerless{provider})
		err := p.Ingest(ctx, &core.Document{DocID: "x", Pages: []*core.Page{{PageNo: 1, Text: "text"}}})
		assert.ErrorIs(t, err, ErrTokenizerRequired)
	})
}

func TestPipeline_EmbedderError(t *testing.T) {
	stores := setupTestStores(t)
	provider := mock.NewMockProvider()
	provider.GetMockEmbedder().WithEmbedTextsFunc(func(context.Context, []string) ([][]float32, error) {
		return nil, errors.New("embedder error")
	})
	pipeline := newTestPipeline(t, stores, provider)
	ctx := context.Background()

	require.NoError(t, pipeline.Ingest(ctx, homeownersPolicy()))
	err := pipeline.Wait()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embedder error")

	// Storage and keyword indexing do not depend on embeddings.
	_, err = stores.Documents.GetDocument(ctx, "ho3")
	require.NoError(t, err)
	results, err := stores.Keywords.Search(ctx, "flood", 5)
	require.NoError(t, err)
	assert.NotEmpty(t, results)

	assert.NoError(t, pipeline.Wait(), "errors are reported once")
}

func TestEmbeddingProcessor_Mismatch(t *testing.T) {
	stores := setupTestStores(t)
	embedder := mock.NewMockEmbedder().WithEmbedTextsFunc(func(context.Context, []string) ([][]float32, error) {
		return [][]float32{{1, 0}}, nil
	})
	ep, err := newEmbeddingProcessor(stores.Documents, stores.Vectors, embedder, nil)
	require.NoError(t, err)

	err = ep.process(context.Background(), homeownersPolicy().Chunks)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected 2, received 1")
}

func TestGraphProcessor_Process(t *testing.T) {
	ctx := context.Background()

	t.Run("partial failure is joined", func(t *testing.T) {
		stores := setupTestStores(t)
		extractor := mock.NewMockEntityExtractor().WithExtractFunc(func(_ context.Context, text string, _ []string) (*ai.Extraction, error) {
			if strings.Contains(text, "Flood") {
				return nil, errors.New("extraction error")
			}
			return &ai.Extraction{Entities: []ai.ExtractedEntity{{Label: "Burst Pipe", Type: "Peril"}}}, nil
		})
		gp, err := newGraphProcessor(stores.Graph, extractor, []string{"Peril"}, nil)
		require.NoError(t, err)

		err = gp.process(ctx, homeownersPolicy().Chunks)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "chunk ho3-2 extraction failed")

		entities, err := stores.Graph.FindEntities(ctx, []string{"burst pipe"}, nil)
		require.NoError(t, err)
		require.Len(t, entities, 1)
		assert.Equal(t, []string{"ho3-1"}, entities[0].ChunkIDs)
	})

	t.Run("relationships resolve by id or label", func(t *testing.T) {
		stores := setupTestStores(t)
		extractor := mock.NewMockEntityExtractor().WithExtractFunc(func(context.Context, string, []string) (*ai.Extraction, error) {
			return &ai.Extraction{
				Entities: []ai.ExtractedEntity{
					{ID: "e1", Label: "Section One", Type: "Coverage"},
					{Label: "Flood", Type: "Exclusion"},
				},
				Relationships: []ai.ExtractedRelationship{
					{Source: "e1", Target: "flood", Type: "excludes"},
					{Source: "e1", Target: "unknown", Type: "COVERS"},
					{Source: "e1", Target: "e1", Type: "DEFINES"},
				},
			}, nil
		})
		gp, err := newGraphProcessor(stores.Graph, extractor, ai.EntityTypes, nil)
		require.NoError(t, err)
		require.NoError(t, gp.process(ctx, homeownersPolicy().Chunks))

		sub, err := stores.Graph.QuerySubgraph(ctx, []string{NodeID("Coverage", "Section One")}, 1)
		require.NoError(t, err)
		require.Len(t, sub.Edges, 1)
		edge := sub.Edges[0]
		assert.Equal(t, "EXCLUDES", edge.Type)
		assert.Equal(t, NodeID("Exclusion", "flood"), edge.Target)
		assert.ElementsMatch(t, []string{"ho3-1", "ho3-2"}, edge.EvidenceChunkIDs)
	})
}

func TestNodeID(t *testing.T) {
	assert.Equal(t, NodeID("Peril", "Flood"), NodeID("Peril", "  flood "))
	assert.NotEqual(t, NodeID("Peril", "Flood"), NodeID("Exclusion", "Flood"))
}

func TestPipeline_Release(t *testing.T) {
	stores := setupTestStores(t)
	pipeline, err := NewPipeline(stores.Documents, stores.Vectors, stores.Keywords, stores.Graph, mock.NewMockProvider())
	require.NoError(t, err)

	// Release should not panic
	pipeline.Release()

	// Multiple releases should not panic
	pipeline.Release()

	err = pipeline.Ingest(context.Background(), homeownersPolicy())
	assert.ErrorIs(t, err, ErrPipelineReleased)
}
