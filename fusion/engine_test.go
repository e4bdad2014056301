package fusion

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/svjt78/ragmesh/core"
)

func newTestEngine(t require.TestingT) *Engine {
	e, err := NewEngine()
	require.NoError(t, err)
	return e
}

func hit(id, doc, text string, rank int) *core.ScoredChunk {
	return &core.ScoredChunk{ChunkID: id, DocID: doc, Text: text, Rank: rank, Score: 1 / float64(rank)}
}

func TestFuse_EmptyInput(t *testing.T) {
	res := newTestEngine(t).Fuse(nil, nil, nil, core.DefaultFusionProfile())
	assert.Empty(t, res.Candidates)
	assert.Equal(t, 0, res.Stats.Final)
}

func TestFuse_RankOneEverywhere(t *testing.T) {
	profile := core.DefaultFusionProfile()
	res := newTestEngine(t).Fuse(
		[]*core.ScoredChunk{hit("c1", "d1", "text", 1)},
		[]*core.ScoredChunk{hit("c1", "d1", "text", 1)},
		[]*core.ScoredChunk{{ChunkID: "c1", Rank: 1, EntityIDs: []string{"e1"}}},
		profile,
	)
	require.Len(t, res.Candidates, 1)
	c := res.Candidates[0]
	assert.InDelta(t, 3.0/61.0, c.FusedScore, 1e-12)
	assert.InDelta(t, 0.04918, c.FusedScore, 1e-5)
	assert.Equal(t, 1, c.FinalRank)
	require.NotNil(t, c.Vector)
	require.NotNil(t, c.Keyword)
	require.NotNil(t, c.Graph)
	assert.Equal(t, []string{"e1"}, c.EntityIDs)
	assert.Equal(t, "d1", c.DocID)
}

func TestFuse_AbsentModalityIsNil(t *testing.T) {
	res := newTestEngine(t).Fuse([]*core.ScoredChunk{hit("c1", "d1", "a", 1)}, nil, nil, core.DefaultFusionProfile())
	require.Len(t, res.Candidates, 1)
	assert.NotNil(t, res.Candidates[0].Vector)
	assert.Nil(t, res.Candidates[0].Keyword)
	assert.Nil(t, res.Candidates[0].Graph)
}

func TestFuse_Weights(t *testing.T) {
	profile := core.DefaultFusionProfile()
	profile.VectorWeight = 0
	profile.DocumentWeight = 2

	res := newTestEngine(t).Fuse(
		[]*core.ScoredChunk{hit("v", "d1", "v", 1)},
		[]*core.ScoredChunk{hit("k", "d2", "k", 1)},
		nil, profile,
	)
	require.Len(t, res.Candidates, 2)
	assert.Equal(t, "k", res.Candidates[0].ChunkID)
	assert.InDelta(t, 2.0/61.0, res.Candidates[0].FusedScore, 1e-12)
	assert.Equal(t, 0.0, res.Candidates[1].FusedScore)
}

func TestFuse_Diversity(t *testing.T) {
	profile := core.DefaultFusionProfile()
	profile.MaxChunksPerDoc = 2
	profile.MinDistinctDocs = 3

	var vector []*core.ScoredChunk
	for i := 1; i <= 5; i++ {
		vector = append(vector, hit(fmt.Sprintf("c%d", i), "d1", fmt.Sprintf("t%d", i), i))
	}
	vector = append(vector, hit("orphan", "", "no doc", 6))

	res := newTestEngine(t).Fuse(vector, nil, nil, profile)
	ids := make([]string, len(res.Candidates))
	for i, c := range res.Candidates {
		ids[i] = c.ChunkID
	}
	assert.Equal(t, []string{"c1", "c2", "orphan"}, ids)
	assert.True(t, res.Stats.LowDiversity)
	assert.Equal(t, 1, res.Stats.DistinctDocs)

	profile.ApplyDiversityConstraints = false
	res = newTestEngine(t).Fuse(vector, nil, nil, profile)
	assert.Len(t, res.Candidates, 6)
	assert.False(t, res.Stats.LowDiversity)
}

func TestFuse_DocFromMetadata(t *testing.T) {
	profile := core.DefaultFusionProfile()
	profile.MaxChunksPerDoc = 1
	vector := []*core.ScoredChunk{
		{ChunkID: "a", Rank: 1, Text: "a", Metadata: map[string]string{"doc_id": "d1"}},
		{ChunkID: "b", Rank: 2, Text: "b", Metadata: map[string]string{"doc_id": "d1"}},
	}
	res := newTestEngine(t).Fuse(vector, nil, nil, profile)
	require.Len(t, res.Candidates, 1)
	assert.Equal(t, "a", res.Candidates[0].ChunkID)
}

func TestFuse_Dedup(t *testing.T) {
	profile := core.DefaultFusionProfile()
	vector := []*core.ScoredChunk{
		hit("a", "d1", "Same text", 1),
		hit("b", "d2", "Same text", 2),
		hit("c", "d3", "", 3),
		hit("d", "d4", "", 4),
	}

	res := newTestEngine(t).Fuse(vector, nil, nil, profile)
	ids := make([]string, len(res.Candidates))
	for i, c := range res.Candidates {
		ids[i] = c.ChunkID
	}
	assert.Equal(t, []string{"a", "c", "d"}, ids)
	assert.Equal(t, []int{1, 2, 3}, []int{res.Candidates[0].FinalRank, res.Candidates[1].FinalRank, res.Candidates[2].FinalRank})

	profile.DedupThreshold = 1.0
	res = newTestEngine(t).Fuse(vector, nil, nil, profile)
	assert.Len(t, res.Candidates, 4)
}

func TestDedup_HashCollision(t *testing.T) {
	collide := func(string) string { return "same-bucket" }
	candidates := []*core.RetrievalCandidate{
		{ChunkID: "a", Text: "Coverage A applies."},
		{ChunkID: "b", Text: "Flood is excluded."},
		{ChunkID: "c", Text: "Coverage A applies."},
	}

	kept := dedup(candidates, collide)
	require.Len(t, kept, 2)
	assert.Equal(t, "a", kept[0].ChunkID)
	assert.Equal(t, "b", kept[1].ChunkID, "distinct text sharing a hash survives")
}

func TestFuse_TopK(t *testing.T) {
	profile := core.DefaultFusionProfile()
	profile.FinalTopK = 2
	profile.ApplyDiversityConstraints = false
	var vector []*core.ScoredChunk
	for i := 1; i <= 5; i++ {
		vector = append(vector, hit(fmt.Sprintf("c%d", i), "d1", fmt.Sprintf("t%d", i), i))
	}
	res := newTestEngine(t).Fuse(vector, nil, nil, profile)
	require.Len(t, res.Candidates, 2)
	assert.Equal(t, 2, res.Candidates[1].FinalRank)
}

// rankedList draws a modality result list over a small chunk universe.
func rankedList(t *rapid.T, label string) []*core.ScoredChunk {
	ids := rapid.SliceOfNDistinct(rapid.IntRange(0, 15), 0, 10, rapid.ID[int]).Draw(t, label)
	out := make([]*core.ScoredChunk, len(ids))
	for i, id := range ids {
		out[i] = &core.ScoredChunk{
			ChunkID: fmt.Sprintf("c%d", id),
			DocID:   fmt.Sprintf("d%d", id%4),
			Text:    fmt.Sprintf("text %d", id),
			Rank:    i + 1,
		}
	}
	return out
}

func TestFuse_Properties(t *testing.T) {
	engine := newTestEngine(t)

	rapid.Check(t, func(t *rapid.T) {
		profile := core.FusionProfile{
			VectorWeight:              rapid.Float64Range(0, 3).Draw(t, "wv"),
			DocumentWeight:            rapid.Float64Range(0, 3).Draw(t, "wd"),
			GraphWeight:               rapid.Float64Range(0, 3).Draw(t, "wg"),
			RRFK:                      rapid.IntRange(1, 100).Draw(t, "k"),
			MaxChunksPerDoc:           rapid.IntRange(1, 5).Draw(t, "maxPerDoc"),
			MinDistinctDocs:           2,
			DedupThreshold:            0.95,
			ApplyDiversityConstraints: true,
			FinalTopK:                 rapid.IntRange(1, 30).Draw(t, "topK"),
		}
		vector := rankedList(t, "vector")
		keyword := rankedList(t, "keyword")
		graph := rankedList(t, "graph")

		res := engine.Fuse(vector, keyword, graph, profile)

		if len(res.Candidates) > profile.FinalTopK {
			t.Fatalf("%d candidates exceed top-k %d", len(res.Candidates), profile.FinalTopK)
		}

		expected := make(map[string]float64)
		for _, l := range []struct {
			list   []*core.ScoredChunk
			weight float64
		}{{vector, profile.VectorWeight}, {keyword, profile.DocumentWeight}, {graph, profile.GraphWeight}} {
			for _, r := range l.list {
				expected[r.ChunkID] += l.weight / float64(profile.RRFK+r.Rank)
			}
		}

		perDoc := make(map[string]int)
		for i, c := range res.Candidates {
			if c.FinalRank != i+1 {
				t.Fatalf("final rank %d at position %d", c.FinalRank, i)
			}
			if diff := c.FusedScore - expected[c.ChunkID]; diff > 1e-12 || diff < -1e-12 {
				t.Fatalf("chunk %s fused %v, want %v", c.ChunkID, c.FusedScore, expected[c.ChunkID])
			}
			if i > 0 && c.FusedScore > res.Candidates[i-1].FusedScore {
				t.Fatalf("candidates not sorted at %d", i)
			}
			perDoc[c.DocID]++
			if perDoc[c.DocID] > profile.MaxChunksPerDoc {
				t.Fatalf("doc %s has %d candidates, cap %d", c.DocID, perDoc[c.DocID], profile.MaxChunksPerDoc)
			}
		}
	})
}

func TestFuse_RankOneEverywhereDominates(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		profile := core.DefaultFusionProfile()
		profile.RRFK = rapid.IntRange(1, 200).Draw(t, "k")
		w := rapid.Float64Range(0.1, 5).Draw(t, "w")
		profile.VectorWeight, profile.DocumentWeight, profile.GraphWeight = w, w, w
		profile.ApplyDiversityConstraints = false

		res := newTestEngine(t).Fuse(
			[]*core.ScoredChunk{hit("all", "d1", "all", 1), hit("one", "d2", "one", 2)},
			[]*core.ScoredChunk{hit("all", "d1", "all", 1)},
			[]*core.ScoredChunk{hit("all", "d1", "all", 1)},
			profile,
		)
		if res.Candidates[0].ChunkID != "all" {
			t.Fatalf("chunk ranked first everywhere is not first")
		}
	})
}
