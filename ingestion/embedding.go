package ingestion

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/svjt78/ragmesh/ai"
	"github.com/svjt78/ragmesh/core"
	"github.com/svjt78/ragmesh/storage"
)

// embeddingProcessor generates embeddings for chunks.
type embeddingProcessor struct {
	documents storage.DocumentStore
	vectors   storage.VectorStore
	embedder  ai.Embedder
	logger    *slog.Logger
}

var _ processor = (*embeddingProcessor)(nil)

// newEmbeddingProcessor creates a new embedding processor.
func newEmbeddingProcessor(documents storage.DocumentStore, vectors storage.VectorStore, embedder ai.Embedder, logger *slog.Logger) (processor, error) {
	if documents == nil {
		return nil, ErrDocumentStoreRequired
	}
	if vectors == nil {
		return nil, ErrVectorStoreRequired
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &embeddingProcessor{
		documents: documents,
		vectors:   vectors,
		embedder:  embedder,
		logger:    logger.With("processor", "embeddings"),
	}, nil
}

// process embeds the chunks and writes the vectors to both the document
// store and the vector index.
func (ep *embeddingProcessor) process(ctx context.Context, chunks []*core.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	ep.logger.Info("processing chunks for embeddings", "chunks", len(chunks))

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}

	embeddings, err := ep.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		ep.logger.Error("error generating embeddings", "err", err)
		return err
	}

	if len(embeddings) != len(chunks) {
		return fmt.Errorf("embedding result mismatch. expected %d, received %d", len(chunks), len(embeddings))
	}

	vectors := make(map[string][]float32, len(chunks))
	for i := range embeddings {
		chunks[i].Vector = embeddings[i]
		vectors[chunks[i].ChunkID] = embeddings[i]
	}

	if err := ep.documents.UpdateChunkVectors(ctx, vectors); err != nil {
		return err
	}
	return ep.vectors.UpsertVectors(ctx, chunks...)
}
