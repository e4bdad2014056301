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

	"github.com/svjt78/ragmesh/core"
	"github.com/svjt78/ragmesh/storage"
)

const (
	// DefaultBatchSize is the default number of chunks to fetch in each batch
	DefaultBatchSize = 100
)

// ChunkIterator iterates over stored chunks in batches.
type ChunkIterator struct {
	documents storage.DocumentStore
	batchSize int
	filter    *storage.ChunkFilter
}

// NewChunkIterator creates a new chunk iterator. A nil filter visits every
// chunk; otherwise only chunks passing the filter are visited.
// batchSize: number of chunks in each batch (defaults when <= 0)
func NewChunkIterator(documents storage.DocumentStore, batchSize int, filter *storage.ChunkFilter) *ChunkIterator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	return &ChunkIterator{
		documents: documents,
		batchSize: batchSize,
		filter:    filter,
	}
}

// Count returns the number of chunks ForEach will visit.
func (it *ChunkIterator) Count(ctx context.Context) (int, error) {
	if it.filter == nil {
		return it.documents.CountChunks(ctx)
	}
	chunks, err := it.documents.GetChunks(ctx, it.filter)
	if err != nil {
		return 0, err
	}
	return len(chunks), nil
}

// ForEach iterates over the chunks, calling fn for each batch.
// Iteration stops on first error from fn or when all chunks are processed.
// Context cancellation is checked between batches.
func (it *ChunkIterator) ForEach(ctx context.Context, fn func([]*core.Chunk) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	visit := func(batch []*core.Chunk) error {
		if err := fn(batch); err != nil {
			return err
		}
		return ctx.Err()
	}

	if it.filter == nil {
		return it.documents.ForEachChunk(ctx, it.batchSize, visit)
	}

	chunks, err := it.documents.GetChunks(ctx, it.filter)
	if err != nil {
		return err
	}
	for i := 0; i < len(chunks); i += it.batchSize {
		end := min(i+it.batchSize, len(chunks))
		if err := visit(chunks[i:end]); err != nil {
			return err
		}
	}
	return nil
}
