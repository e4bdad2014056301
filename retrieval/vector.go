package retrieval

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/svjt78/ragmesh/ai"
	"github.com/svjt78/ragmesh/core"
	"github.com/svjt78/ragmesh/storage"
)

// VectorRetriever performs dense similarity search.
type VectorRetriever struct {
	vectors  storage.VectorStore
	embedder ai.Embedder
	logger   *slog.Logger
}

// NewVectorRetriever creates a VectorRetriever.
func NewVectorRetriever(vectors storage.VectorStore, embedder ai.Embedder, logger *slog.Logger) *VectorRetriever {
	return &VectorRetriever{vectors: vectors, embedder: embedder, logger: logger}
}

// Retrieve embeds query and returns up to profile.VectorK chunks at or above
// profile.VectorThreshold.
func (r *VectorRetriever) Retrieve(ctx context.Context, query string, profile core.RetrievalProfile, filter *storage.ChunkFilter) ([]*core.ScoredChunk, error) {
	embedding, err := r.embedder.EmbedText(ctx, query)
	if err != nil {
		r.logger.Error("error generating embedding for query", "err", err)
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	results, err := r.vectors.Search(ctx, embedding, profile.VectorK, profile.VectorThreshold, filter)
	if err != nil {
		r.logger.Error("error querying vector store", "err", err)
		return nil, err
	}
	for i, res := range results {
		res.Rank = i + 1
	}
	r.logger.Debug("vector retrieval finished", "results", len(results))
	return results, nil
}
