package reembed

import (
	"context"
	"fmt"
	"time"

	"github.com/svjt78/ragmesh/ai"
	"github.com/svjt78/ragmesh/core"
	"github.com/svjt78/ragmesh/storage"
)

// BatchProcessor handles embedding generation for batches of chunks.
type BatchProcessor struct {
	documents      storage.DocumentStore
	vectors        storage.VectorStore
	embedder       ai.Embedder
	maxRetries     int
	retryBaseDelay time.Duration
}

// NewBatchProcessor creates a new batch processor.
// maxRetries: maximum number of attempts for embedding API calls
// retryBaseDelay: base delay for exponential backoff
func NewBatchProcessor(documents storage.DocumentStore, vectors storage.VectorStore, embedder ai.Embedder, maxRetries int, retryBaseDelay time.Duration) *BatchProcessor {
	return &BatchProcessor{
		documents:      documents,
		vectors:        vectors,
		embedder:       embedder,
		maxRetries:     maxRetries,
		retryBaseDelay: retryBaseDelay,
	}
}

// Process generates embeddings for a batch of chunks and writes them to the
// document store and the vector index. Vectors are normalized after
// embedding to ensure compatibility with cosine similarity.
func (bp *BatchProcessor) Process(ctx context.Context, chunks []*core.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}

	// Generate embeddings with retry
	var embeddings [][]float32
	err := ai.RetryWithBackoff(ctx, func() error {
		var err error
		embeddings, err = bp.embedder.EmbedTexts(ctx, texts)
		return err
	}, bp.maxRetries, bp.retryBaseDelay)

	if err != nil {
		return fmt.Errorf("failed to generate embeddings after %d attempts: %w", bp.maxRetries, err)
	}

	if len(embeddings) != len(chunks) {
		return fmt.Errorf("embedding count mismatch: expected %d, got %d", len(chunks), len(embeddings))
	}

	normalized, err := normalizeBatch(embeddings)
	if err != nil {
		return err
	}

	vectors := make(map[string][]float32, len(chunks))
	for i := range chunks {
		chunks[i].Vector = normalized[i]
		vectors[chunks[i].ChunkID] = chunks[i].Vector
	}

	if err := bp.documents.UpdateChunkVectors(ctx, vectors); err != nil {
		return fmt.Errorf("failed to update chunks: %w", err)
	}
	if err := bp.vectors.UpsertVectors(ctx, chunks...); err != nil {
		return fmt.Errorf("failed to update vector index: %w", err)
	}

	return nil
}
