package badger

import (
	"context"
	"math"
	"slices"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/svjt78/ragmesh/core"
	"github.com/svjt78/ragmesh/storage"
)

// vectorRecord is the stored form of one embedded chunk.
type vectorRecord struct {
	ChunkID  string
	DocID    string
	Text     string
	Metadata map[string]string
	Vector   []float32
}

// VectorStore implements storage.VectorStore with an exhaustive cosine scan.
type VectorStore struct {
	backend *Backend
}

var _ storage.VectorStore = (*VectorStore)(nil)

// NewVectorStore creates a VectorStore.
func NewVectorStore(backend *Backend) *VectorStore {
	return &VectorStore{backend: backend}
}

// UpsertVectors stores chunk embeddings. Chunks without vectors are skipped.
func (s *VectorStore) UpsertVectors(ctx context.Context, chunks ...*core.Chunk) error {
	return s.backend.Update(func(tx *badger.Txn) error {
		for _, c := range chunks {
			if len(c.Vector) == 0 {
				continue
			}
			rec := vectorRecord{
				ChunkID:  c.ChunkID,
				DocID:    c.DocID,
				Text:     c.Text,
				Metadata: c.Metadata,
				Vector:   c.Vector,
			}
			if err := setValue(tx, makeVectorKey(c.ChunkID), vectorRecordMUS, rec); err != nil {
				return err
			}
		}
		return nil
	})
}

// Search scores every stored vector against query by cosine similarity.
// Negative similarities clamp to 0.
func (s *VectorStore) Search(ctx context.Context, query []float32, k int, threshold float64, filter *storage.ChunkFilter) ([]*core.ScoredChunk, error) {
	if k <= 0 {
		return nil, storage.ErrInvalidQuery
	}
	queryNorm := norm(query)
	if queryNorm == 0 {
		return []*core.ScoredChunk{}, nil
	}

	var results []*core.ScoredChunk
	err := s.backend.View(func(tx *badger.Txn) error {
		return scanValues(tx, []byte(vectorPrefix), vectorRecordMUS, func(rec *vectorRecord) error {
			if !filter.Matches(rec.DocID, rec.Metadata) {
				return nil
			}
			similarity := cosine(query, queryNorm, rec.Vector)
			if similarity < threshold {
				return nil
			}
			results = append(results, &core.ScoredChunk{
				ChunkID:  rec.ChunkID,
				DocID:    rec.DocID,
				Score:    similarity,
				Text:     rec.Text,
				Metadata: rec.Metadata,
			})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return rankScored(results, k), nil
}

// DeleteVectors removes embeddings by chunk id.
func (s *VectorStore) DeleteVectors(ctx context.Context, chunkIDs ...string) error {
	return s.backend.Update(func(tx *badger.Txn) error {
		for _, id := range chunkIDs {
			if err := tx.Delete(makeVectorKey(id)); err != nil {
				return err
			}
		}
		return nil
	})
}

// rankScored sorts by score descending (chunk id breaks ties), truncates to
// k when k > 0, and assigns 1-indexed ranks.
func rankScored(results []*core.ScoredChunk, k int) []*core.ScoredChunk {
	slices.SortFunc(results, func(a, b *core.ScoredChunk) int {
		if a.Score > b.Score {
			return -1
		}
		if a.Score < b.Score {
			return 1
		}
		return strings.Compare(a.ChunkID, b.ChunkID)
	})
	if k > 0 && len(results) > k {
		results = results[:k]
	}
	for i, r := range results {
		r.Rank = i + 1
	}
	if results == nil {
		results = []*core.ScoredChunk{}
	}
	return results
}

// cosine returns the cosine similarity of a and b clamped to [0,1].
func cosine(a []float32, aNorm float64, b []float32) float64 {
	bNorm := norm(b)
	if bNorm == 0 {
		return 0
	}
	sim := dotProduct(a, b) / (aNorm * bNorm)
	return math.Max(0, math.Min(1, sim))
}

// dotProduct calculates the dot product of two vectors.
func dotProduct(a, b []float32) float64 {
	var sum float64
	minLen := min(len(a), len(b))
	for i := 0; i < minLen; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func norm(v []float32) float64 {
	return math.Sqrt(dotProduct(v, v))
}
