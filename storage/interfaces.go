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


package storage

import (
	"context"
	"time"

	"github.com/svjt78/ragmesh/core"
)

// ChunkFilter narrows chunk lookups. Empty fields match everything.
type ChunkFilter struct {
	// DocIDs restricts results to chunks of these documents.
	DocIDs []string

	// Metadata requires every key/value pair to be present on the chunk.
	Metadata map[string]string
}

// Matches reports whether chunk passes the filter. A nil filter matches all.
func (f *ChunkFilter) Matches(docID string, metadata map[string]string) bool {
	if f == nil {
		return true
	}
	if len(f.DocIDs) > 0 {
		found := false
		for _, id := range f.DocIDs {
			if id == docID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for k, v := range f.Metadata {
		if metadata[k] != v {
			return false
		}
	}
	return true
}

// DocumentStore persists documents and their chunks.
type DocumentStore interface {
	// PutDocument stores a document and all of its chunks, replacing any
	// previous version of the document.
	PutDocument(ctx context.Context, doc *core.Document) error

	// GetDocument retrieves a document with its chunks ordered by page and offset.
	// Returns ErrNotFound if the document doesn't exist.
	GetDocument(ctx context.Context, docID string) (*core.Document, error)

	// ListDocuments returns every document without its chunks, ordered by doc id.
	ListDocuments(ctx context.Context) ([]*core.Document, error)

	// DeleteDocument removes a document and its chunks.
	// Returns ErrNotFound if the document doesn't exist.
	DeleteDocument(ctx context.Context, docID string) error

	// GetChunk retrieves one chunk. Returns ErrNotFound if missing.
	GetChunk(ctx context.Context, chunkID string) (*core.Chunk, error)

	// GetChunks returns every chunk passing filter.
	GetChunks(ctx context.Context, filter *ChunkFilter) ([]*core.Chunk, error)

	// GetChunksByIDs returns the chunks that exist, in the order requested.
	GetChunksByIDs(ctx context.Context, chunkIDs ...string) ([]*core.Chunk, error)

	// UpdateChunkVectors overwrites the stored embedding of each chunk.
	UpdateChunkVectors(ctx context.Context, vectors map[string][]float32) error

	// CountChunks returns the number of stored chunks.
	CountChunks(ctx context.Context) (int, error)

	// ForEachChunk calls fn with consecutive batches of at most batchSize chunks.
	// Iteration stops at the first error fn returns.
	ForEachChunk(ctx context.Context, batchSize int, fn func([]*core.Chunk) error) error
}

// VectorStore indexes chunk embeddings for similarity search.
type VectorStore interface {
	// UpsertVectors stores or replaces the embedding of each chunk.
	// Chunks without a vector are skipped.
	UpsertVectors(ctx context.Context, chunks ...*core.Chunk) error

	// Search returns up to k chunks whose similarity to query is at least
	// threshold, highest first. Scores lie in [0,1]. Ranks are 1-indexed.
	Search(ctx context.Context, query []float32, k int, threshold float64, filter *ChunkFilter) ([]*core.ScoredChunk, error)

	// DeleteVectors removes embeddings by chunk id.
	DeleteVectors(ctx context.Context, chunkIDs ...string) error
}

// KeywordStore is a sparse lexical index over chunk text.
type KeywordStore interface {
	// Index adds or replaces chunks in the index.
	Index(ctx context.Context, chunks ...*core.Chunk) error

	// Search returns up to k chunks scored against query, highest first.
	// k <= 0 returns every chunk with a non-zero score.
	Search(ctx context.Context, query string, k int) ([]*core.ScoredChunk, error)

	// Remove drops chunks from the index.
	Remove(ctx context.Context, chunkIDs ...string) error
}

// GraphStore holds the entity graph extracted from the corpus.
type GraphStore interface {
	// AddEntities stores entities. An entity whose node id already exists is
	// merged: chunk ids are unioned and properties overlaid.
	AddEntities(ctx context.Context, entities ...*core.Entity) error

	// AddRelationships stores edges. Duplicate (source, type, target) edges
	// merge their evidence chunk ids.
	AddRelationships(ctx context.Context, rels ...*core.Relationship) error

	// FindEntities returns entities whose label is in labels (case-insensitive)
	// and whose type is in types. Empty slices match everything.
	FindEntities(ctx context.Context, labels, types []string) ([]*core.Entity, error)

	// QuerySubgraph returns the nodes within maxHops undirected hops of the
	// seeds, and every edge between returned nodes.
	QuerySubgraph(ctx context.Context, seedIDs []string, maxHops int) (*core.Subgraph, error)

	// GetSupportingChunks returns the distinct chunk ids cited by the entities.
	GetSupportingChunks(ctx context.Context, entityIDs []string) ([]string, error)
}

// RunInfo identifies a stored run.
type RunInfo struct {
	RunID     string
	CreatedAt time.Time
}

// RunStore persists run event logs and stage artifacts.
type RunStore interface {
	// CreateRun allocates storage for a run.
	CreateRun(ctx context.Context, runID string) error

	// AppendEvent appends one event to the run's log.
	AppendEvent(ctx context.Context, event *core.Event) error

	// Events returns the run's events in append order. A truncated final
	// line is ignored. Returns ErrNotFound for unknown runs.
	Events(ctx context.Context, runID string) ([]*core.Event, error)

	// SaveArtifact stores v as the named artifact of the run.
	SaveArtifact(ctx context.Context, runID, name string, v any) error

	// LoadArtifact returns the raw JSON of an artifact.
	// Returns ErrNotFound if the run or artifact doesn't exist.
	LoadArtifact(ctx context.Context, runID, name string) ([]byte, error)

	// ListRuns returns every stored run, newest first.
	ListRuns(ctx context.Context) ([]RunInfo, error)

	// DeleteRun removes a run and all of its files.
	// Returns ErrNotFound if the run doesn't exist.
	DeleteRun(ctx context.Context, runID string) error
}
