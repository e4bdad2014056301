package retrieval

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/svjt78/ragmesh/ai"
	"github.com/svjt78/ragmesh/ai/mock"
	"github.com/svjt78/ragmesh/core"
	"github.com/svjt78/ragmesh/storage"
	"github.com/svjt78/ragmesh/storage/badger"
)

var corpus = []*core.Chunk{
	{ChunkID: "c1", DocID: "d1", PageNo: 1, Text: "Water damage from a burst pipe is covered.", Metadata: map[string]string{"form_number": "HO-3"}},
	{ChunkID: "c2", DocID: "d1", PageNo: 2, Text: "Flood damage is excluded.", Metadata: map[string]string{"form_number": "HO-3"}},
	{ChunkID: "c3", DocID: "d2", PageNo: 1, Text: "The deductible applies per occurrence.", Metadata: map[string]string{"form_number": "DP-1"}},
}

func seedStores(t *testing.T) *badger.Stores {
	t.Helper()
	ctx := context.Background()
	stores, err := badger.NewMemoryStores()
	require.NoError(t, err)
	t.Cleanup(func() { stores.Close() })

	byDoc := map[string][]*core.Chunk{}
	for _, c := range corpus {
		c.Vector = mock.BagOfWordsVector(c.Text)
		byDoc[c.DocID] = append(byDoc[c.DocID], c)
	}
	for docID, chunks := range byDoc {
		require.NoError(t, stores.Documents.PutDocument(ctx, &core.Document{DocID: docID, Filename: docID + ".pdf", Chunks: chunks}))
	}
	require.NoError(t, stores.Vectors.UpsertVectors(ctx, corpus...))
	require.NoError(t, stores.Keywords.Index(ctx, corpus...))
	require.NoError(t, stores.Graph.AddEntities(ctx,
		&core.Entity{NodeID: "water-damage", Label: "Water Damage", Type: "Peril", ChunkIDs: []string{"c1"}},
		&core.Entity{NodeID: "flood", Label: "Flood", Type: "Peril", ChunkIDs: []string{"c2"}},
	))
	require.NoError(t, stores.Graph.AddRelationships(ctx,
		&core.Relationship{Source: "water-damage", Target: "flood", Type: "EXCLUDES", EvidenceChunkIDs: []string{"c2"}},
	))
	return stores
}

func newTestRetriever(t *testing.T, stores *badger.Stores, provider ai.Provider) *Retriever {
	t.Helper()
	r, err := NewRetriever(stores.Documents, stores.Vectors, stores.Keywords, stores.Graph, provider)
	require.NoError(t, err)
	return r
}

func testProfile() core.RetrievalProfile {
	p := core.DefaultRetrievalProfile()
	p.VectorThreshold = 0
	p.GraphMaxHops = 1
	return p
}

type recordingMonitor struct {
	mu     sync.Mutex
	calls  []string
	bundle *core.RetrievalBundle
}

func (m *recordingMonitor) record(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, name)
}

func (m *recordingMonitor) Start(string) { m.record("start") }
func (m *recordingMonitor) AfterVectorSearch([]*core.ScoredChunk, time.Duration) {
	m.record("vector")
}
func (m *recordingMonitor) AfterKeywordSearch([]*core.ScoredChunk, time.Duration) {
	m.record("document")
}
func (m *recordingMonitor) AfterGraphSearch([]*core.ScoredChunk, *core.Subgraph, time.Duration) {
	m.record("graph")
}
func (m *recordingMonitor) Finish(b *core.RetrievalBundle) {
	m.record("finish")
	m.bundle = b
}

func TestNewRetriever_RequiresDependencies(t *testing.T) {
	stores := seedStores(t)
	provider := mock.NewMockProvider()

	_, err := NewRetriever(nil, stores.Vectors, stores.Keywords, stores.Graph, provider)
	assert.ErrorIs(t, err, ErrDocumentStoreRequired)
	_, err = NewRetriever(stores.Documents, nil, stores.Keywords, stores.Graph, provider)
	assert.ErrorIs(t, err, ErrVectorStoreRequired)
	_, err = NewRetriever(stores.Documents, stores.Vectors, nil, stores.Graph, provider)
	assert.ErrorIs(t, err, ErrKeywordStoreRequired)
	_, err = NewRetriever(stores.Documents, stores.Vectors, stores.Keywords, nil, provider)
	assert.ErrorIs(t, err, ErrGraphStoreRequired)
	_, err = NewRetriever(stores.Documents, stores.Vectors, stores.Keywords, stores.Graph, nil)
	assert.ErrorIs(t, err, ErrAIProviderRequired)
}

func TestRetriever_AllModalities(t *testing.T) {
	stores := seedStores(t)
	r := newTestRetriever(t, stores, mock.NewMockProvider())
	monitor := &recordingMonitor{}

	bundle, err := r.Retrieve(context.Background(), Request{
		Query:       "Is water damage covered?",
		Profile:     testProfile(),
		EnableGraph: true,
	}, monitor)
	require.NoError(t, err)

	require.NotEmpty(t, bundle.VectorResults)
	assert.Equal(t, "c1", bundle.VectorResults[0].ChunkID)
	assert.Equal(t, 1, bundle.VectorResults[0].Rank)

	require.NotEmpty(t, bundle.KeywordResults)
	assert.Equal(t, "c1", bundle.KeywordResults[0].ChunkID)

	// c2 is cited by the flood node and the edge, c1 only by the seed
	require.Len(t, bundle.GraphResults, 2)
	assert.Equal(t, "c2", bundle.GraphResults[0].ChunkID)
	assert.InDelta(t, 1.0, bundle.GraphResults[0].Score, 1e-9)
	assert.Equal(t, []string{"flood"}, bundle.GraphResults[0].EntityIDs)
	assert.Equal(t, "c1", bundle.GraphResults[1].ChunkID)
	assert.InDelta(t, 0.75, bundle.GraphResults[1].Score, 1e-9)
	assert.Equal(t, 2, bundle.GraphResults[1].Rank)
	assert.Equal(t, "Water damage from a burst pipe is covered.", bundle.GraphResults[1].Text)
	require.NotNil(t, bundle.Subgraph)
	assert.Len(t, bundle.Subgraph.Nodes, 2)

	assert.Equal(t, "start", monitor.calls[0])
	assert.Equal(t, "finish", monitor.calls[len(monitor.calls)-1])
	assert.ElementsMatch(t, []string{"start", "vector", "document", "graph", "finish"}, monitor.calls)
	assert.Same(t, bundle, monitor.bundle)
}

func TestRetriever_GraphDisabled(t *testing.T) {
	stores := seedStores(t)
	r := newTestRetriever(t, stores, mock.NewMockProvider())
	monitor := &recordingMonitor{}

	bundle, err := r.Retrieve(context.Background(), Request{Query: "water damage", Profile: testProfile()}, monitor)
	require.NoError(t, err)
	assert.Empty(t, bundle.GraphResults)
	assert.Nil(t, bundle.Subgraph)
	assert.NotContains(t, monitor.calls, "graph")
}

func TestRetriever_DocFilter(t *testing.T) {
	stores := seedStores(t)
	r := newTestRetriever(t, stores, mock.NewMockProvider())

	bundle, err := r.Retrieve(context.Background(), Request{
		Query:       "water damage deductible",
		Profile:     testProfile(),
		Filter:      &storage.ChunkFilter{DocIDs: []string{"d2"}},
		EnableGraph: true,
	}, nil)
	require.NoError(t, err)
	for _, list := range [][]*core.ScoredChunk{bundle.VectorResults, bundle.KeywordResults, bundle.GraphResults} {
		for _, c := range list {
			assert.Equal(t, "d2", c.DocID)
		}
	}
}

func TestRetriever_EmptyQuery(t *testing.T) {
	r := newTestRetriever(t, seedStores(t), mock.NewMockProvider())
	_, err := r.Retrieve(context.Background(), Request{Query: "  ", Profile: testProfile()}, nil)
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestRetriever_ModalityErrorFailsRetrieval(t *testing.T) {
	provider := mock.NewMockProvider()
	provider.GetMockEmbedder().WithEmbedTextFunc(func(context.Context, string) ([]float32, error) {
		return nil, errors.New("embedding service down")
	})
	r := newTestRetriever(t, seedStores(t), provider)

	_, err := r.Retrieve(context.Background(), Request{Query: "water", Profile: testProfile()}, nil)
	assert.ErrorContains(t, err, "embedding service down")
}

func TestGraphRetriever_Linking(t *testing.T) {
	ctx := context.Background()
	stores := seedStores(t)

	t.Run("extraction failure falls back to labels", func(t *testing.T) {
		extractor := mock.NewMockEntityExtractor().WithExtractFunc(func(context.Context, string, []string) (*ai.Extraction, error) {
			return nil, errors.New("llm unavailable")
		})
		g := NewGraphRetriever(stores.Graph, stores.Documents, extractor, testLogger())
		results, sub, err := g.Retrieve(ctx, "is flood covered", testProfile(), nil)
		require.NoError(t, err)
		require.NotNil(t, sub)
		assert.NotEmpty(t, results)
	})

	t.Run("fuzzy match on extracted entity", func(t *testing.T) {
		extractor := mock.NewMockEntityExtractor().WithExtractFunc(func(context.Context, string, []string) (*ai.Extraction, error) {
			return &ai.Extraction{Entities: []ai.ExtractedEntity{{Label: "Floods"}}}, nil
		})
		g := NewGraphRetriever(stores.Graph, stores.Documents, extractor, testLogger())
		seeds, err := g.linkEntities(ctx, "rising waters", nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"flood"}, seeds)
	})

	t.Run("type fallback", func(t *testing.T) {
		g := NewGraphRetriever(stores.Graph, stores.Documents, nil, testLogger())
		seeds, err := g.linkEntities(ctx, "what is the deductible", []string{"Peril"})
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"flood", "water-damage"}, seeds)
	})

	t.Run("nothing links without types", func(t *testing.T) {
		g := NewGraphRetriever(stores.Graph, stores.Documents, nil, testLogger())
		results, sub, err := g.Retrieve(ctx, "what is the deductible", testProfile(), nil)
		require.NoError(t, err)
		assert.Empty(t, results)
		assert.Nil(t, sub)
	})
}

func TestScoreChunks_CapsAtOne(t *testing.T) {
	sub := &core.Subgraph{Nodes: []*core.Entity{
		{NodeID: "a", ChunkIDs: []string{"x"}},
		{NodeID: "b", ChunkIDs: []string{"x", "y"}},
	}}
	results := scoreChunks([]string{"y", "x"}, []string{"a", "b"}, sub)
	require.Len(t, results, 2)
	assert.Equal(t, "x", results[0].ChunkID)
	assert.Equal(t, 1.0, results[0].Score)
	assert.Equal(t, []string{"a", "b"}, results[0].EntityIDs)
	assert.InDelta(t, 0.75, results[1].Score, 1e-9)
}
