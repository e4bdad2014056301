package retrieval

import (
	"context"
	"log/slog"
	"math"
	"slices"
	"strings"

	"github.com/svjt78/ragmesh/ai"
	"github.com/svjt78/ragmesh/core"
	"github.com/svjt78/ragmesh/storage"
)

const (
	// maxSeeds bounds the linked entities a traversal starts from.
	maxSeeds = 10

	// linkSimilarity is the ratio above which an extracted query entity
	// links to a graph entity.
	linkSimilarity = 0.8

	// seedBoost multiplies a chunk's score for each seed entity citing it.
	seedBoost = 1.5
)

// GraphRetriever ranks chunks by their support in the query's entity
// neighbourhood.
type GraphRetriever struct {
	graph     storage.GraphStore
	documents storage.DocumentStore
	extractor ai.EntityExtractor
	logger    *slog.Logger
}

// NewGraphRetriever creates a GraphRetriever.
func NewGraphRetriever(graph storage.GraphStore, documents storage.DocumentStore, extractor ai.EntityExtractor, logger *slog.Logger) *GraphRetriever {
	return &GraphRetriever{graph: graph, documents: documents, extractor: extractor, logger: logger}
}

// Retrieve links query to seed entities, expands them to a subgraph of
// profile.GraphMaxHops and scores the chunks the subgraph cites. A nil
// subgraph is returned when nothing links.
func (r *GraphRetriever) Retrieve(ctx context.Context, query string, profile core.RetrievalProfile, filter *storage.ChunkFilter) ([]*core.ScoredChunk, *core.Subgraph, error) {
	seeds, err := r.linkEntities(ctx, query, profile.GraphEntityTypes)
	if err != nil {
		return nil, nil, err
	}
	if len(seeds) == 0 {
		r.logger.Debug("no entities linked to query")
		return []*core.ScoredChunk{}, nil, nil
	}

	subgraph, err := r.graph.QuerySubgraph(ctx, seeds, profile.GraphMaxHops)
	if err != nil {
		r.logger.Error("error querying subgraph", "err", err)
		return nil, nil, err
	}

	nodeIDs := make([]string, 0, len(subgraph.Nodes))
	for _, n := range subgraph.Nodes {
		nodeIDs = append(nodeIDs, n.NodeID)
	}
	chunkIDs, err := r.graph.GetSupportingChunks(ctx, nodeIDs)
	if err != nil {
		return nil, nil, err
	}

	results := scoreChunks(chunkIDs, seeds, subgraph)
	if err := r.hydrate(ctx, results); err != nil {
		return nil, nil, err
	}

	filtered := results[:0]
	for _, res := range results {
		if filter.Matches(res.DocID, res.Metadata) {
			filtered = append(filtered, res)
		}
	}
	for i, res := range filtered {
		res.Rank = i + 1
	}
	r.logger.Debug("graph retrieval finished", "seeds", len(seeds), "nodes", len(subgraph.Nodes), "results", len(filtered))
	return filtered, subgraph, nil
}

// linkEntities maps the query onto at most maxSeeds entity ids.
func (r *GraphRetriever) linkEntities(ctx context.Context, query string, types []string) ([]string, error) {
	entities, err := r.graph.FindEntities(ctx, nil, types)
	if err != nil {
		return nil, err
	}
	if len(entities) == 0 {
		return nil, nil
	}

	var queryEntities []string
	if r.extractor != nil {
		extraction, err := r.extractor.ExtractEntities(ctx, query, types)
		if err != nil {
			r.logger.Warn("query entity extraction failed", "err", err)
		} else {
			for _, e := range extraction.Entities {
				if label := strings.ToLower(e.Label); label != "" {
					queryEntities = append(queryEntities, label)
				}
			}
		}
	}

	queryLower := strings.ToLower(query)
	var linked []string
	for _, e := range entities {
		label := strings.ToLower(e.Label)
		if label != "" && strings.Contains(queryLower, label) {
			linked = append(linked, e.NodeID)
			continue
		}
		for _, qe := range queryEntities {
			if similarityRatio(qe, label) > linkSimilarity {
				linked = append(linked, e.NodeID)
				break
			}
		}
	}
	if len(linked) > 0 {
		return linked[:min(len(linked), maxSeeds)], nil
	}

	if len(types) == 0 {
		return nil, nil
	}
	r.logger.Debug("no entity label matches, falling back to entity types")
	fallback := make([]string, 0, maxSeeds)
	for _, e := range entities {
		if len(fallback) == maxSeeds {
			break
		}
		fallback = append(fallback, e.NodeID)
	}
	return fallback, nil
}

// scoreChunks counts the subgraph nodes and edges citing each chunk,
// normalises by the largest count and boosts chunks cited by seeds.
// Scores are capped at 1.
func scoreChunks(chunkIDs, seeds []string, subgraph *core.Subgraph) []*core.ScoredChunk {
	counts := make(map[string]int)
	for _, n := range subgraph.Nodes {
		for _, id := range n.ChunkIDs {
			counts[id]++
		}
	}
	for _, e := range subgraph.Edges {
		for _, id := range e.EvidenceChunkIDs {
			counts[id]++
		}
	}
	maxCount := 1
	for _, c := range counts {
		maxCount = max(maxCount, c)
	}

	isSeed := make(map[string]bool, len(seeds))
	for _, s := range seeds {
		isSeed[s] = true
	}

	results := make([]*core.ScoredChunk, 0, len(chunkIDs))
	for _, chunkID := range chunkIDs {
		score := float64(counts[chunkID]) / float64(maxCount)
		var supporting []string
		for _, n := range subgraph.Nodes {
			if !slices.Contains(n.ChunkIDs, chunkID) {
				continue
			}
			if isSeed[n.NodeID] {
				score *= seedBoost
			}
			supporting = append(supporting, n.NodeID)
		}
		results = append(results, &core.ScoredChunk{
			ChunkID:   chunkID,
			Score:     math.Min(score, 1),
			EntityIDs: supporting,
		})
	}

	slices.SortStableFunc(results, func(a, b *core.ScoredChunk) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return 0
	})
	return results
}

// hydrate fills document id, text and metadata from the document store.
func (r *GraphRetriever) hydrate(ctx context.Context, results []*core.ScoredChunk) error {
	if len(results) == 0 {
		return nil
	}
	ids := make([]string, len(results))
	for i, res := range results {
		ids[i] = res.ChunkID
	}
	chunks, err := r.documents.GetChunksByIDs(ctx, ids...)
	if err != nil {
		return err
	}
	byID := make(map[string]*core.Chunk, len(chunks))
	for _, c := range chunks {
		byID[c.ChunkID] = c
	}
	for _, res := range results {
		if c, ok := byID[res.ChunkID]; ok {
			res.DocID = c.DocID
			res.Text = c.Text
			res.Metadata = c.Metadata
		}
	}
	return nil
}
