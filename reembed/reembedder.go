// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package reembed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/svjt78/ragmesh/ai"
	"github.com/svjt78/ragmesh/core"
	"github.com/svjt78/ragmesh/storage"
)

// Config holds configuration for the reembedding operation.
type Config struct {
	// BatchSize is the number of chunks to process in each batch
	BatchSize int

	// ReportInterval is how often to report progress (number of chunks)
	ReportInterval int

	// MaxRetries is the maximum number of attempts for failed embedding calls
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration

	// Filter restricts reembedding to matching chunks. Nil means all.
	Filter *storage.ChunkFilter
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      DefaultBatchSize,
		ReportInterval: 100,
		MaxRetries:     3,
		RetryDelay:     1 * time.Second,
	}
}

// Reembedder orchestrates the reembedding of every stored chunk.
type Reembedder struct {
	config    *Config
	progress  io.Writer
	processor *BatchProcessor
	iterator  *ChunkIterator
	logger    *slog.Logger
}

// NewReembedder creates a new reembedder.
// progress: where to write progress output (typically os.Stderr)
func NewReembedder(documents storage.DocumentStore, vectors storage.VectorStore, embedder ai.Embedder, config *Config, progress io.Writer) (*Reembedder, error) {
	if documents == nil {
		return nil, ErrDocumentStoreRequired
	}
	if vectors == nil {
		return nil, ErrVectorStoreRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if progress == nil {
		progress = io.Discard
	}

	return &Reembedder{
		config:    config,
		progress:  progress,
		processor: NewBatchProcessor(documents, vectors, embedder, config.MaxRetries, config.RetryDelay),
		iterator:  NewChunkIterator(documents, config.BatchSize, config.Filter),
		logger:    slog.Default().With("component", "reembedder"),
	}, nil
}

// Run executes the reembedding operation.
// All selected chunks are reembedded with the configured embedder.
// Progress is reported to the configured writer. The summary covers the
// chunks stored before any error.
func (r *Reembedder) Run(ctx context.Context) (Summary, error) {
	total, err := r.iterator.Count(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to count chunks: %w", err)
	}

	if total == 0 {
		fmt.Fprintf(r.progress, "No chunks found in database (0 chunks)\n")
		return Summary{Documents: map[string]int{}}, nil
	}

	fmt.Fprintf(r.progress, "Starting reembedding of %d chunks (batch size: %d)\n",
		total, r.iterator.batchSize)

	progress := newChunkProgress(r.progress, total, r.config.ReportInterval)
	err = r.iterator.ForEach(ctx, func(chunks []*core.Chunk) error {
		if err := r.processor.Process(ctx, chunks); err != nil {
			return fmt.Errorf("failed to process batch: %w", err)
		}
		progress.observe(chunks)
		return nil
	})
	summary := progress.finish()
	if err != nil {
		r.logger.Error("reembedding stopped", "processed", summary.Chunks, "err", err)
		return summary, err
	}

	for _, docID := range summary.DocumentIDs() {
		r.logger.Debug("document reembedded", "doc_id", docID, "chunks", summary.Documents[docID])
	}
	fmt.Fprintf(r.progress, "Reembedding complete. Processed %d chunks from %d documents in %v (%.1f chunks/sec)\n",
		summary.Chunks, len(summary.Documents), summary.Elapsed.Round(time.Millisecond), float64(summary.Chunks)/summary.Elapsed.Seconds())

	return summary, nil
}
