package badger

import (
	"context"
	"math"

	"github.com/dgraph-io/badger/v4"

	"github.com/svjt78/ragmesh/core"
	"github.com/svjt78/ragmesh/storage"
)

// BM25 parameters.
const (
	bm25K1 = 1.5
	bm25B  = 0.75
)

// Weights of the two lexical scorers in the combined keyword score.
const (
	bm25Weight  = 0.6
	tfidfWeight = 0.4
)

// keywordDoc is the per-chunk entry of the keyword index.
type keywordDoc struct {
	ChunkID  string
	DocID    string
	Text     string
	Metadata map[string]string
	Length   int
	Terms    map[string]int
}

type keywordStats struct {
	Docs        int
	TotalLength int
}

// KeywordStore implements storage.KeywordStore as an inverted index.
// Scores combine normalised BM25 and TF-IDF cosine.
type KeywordStore struct {
	backend *Backend
}

var _ storage.KeywordStore = (*KeywordStore)(nil)

// NewKeywordStore creates a KeywordStore.
func NewKeywordStore(backend *Backend) *KeywordStore {
	return &KeywordStore{backend: backend}
}

// Index adds or replaces chunks.
func (s *KeywordStore) Index(ctx context.Context, chunks ...*core.Chunk) error {
	return s.backend.Update(func(tx *badger.Txn) error {
		stats, err := s.stats(tx)
		if err != nil {
			return err
		}

		for _, c := range chunks {
			if err := s.remove(tx, stats, c.ChunkID); err != nil {
				return err
			}

			terms := core.Terms(c.Text)
			tf := make(map[string]int, len(terms))
			for _, t := range terms {
				tf[t]++
			}
			for term, n := range tf {
				if err := setValue(tx, makePostingKey(term, c.ChunkID), storage.IntMUS, n); err != nil {
					return err
				}
			}
			doc := &keywordDoc{
				ChunkID:  c.ChunkID,
				DocID:    c.DocID,
				Text:     c.Text,
				Metadata: c.Metadata,
				Length:   len(terms),
				Terms:    tf,
			}
			if err := setValue(tx, makeKeywordDocKey(c.ChunkID), keywordDocMUS, *doc); err != nil {
				return err
			}
			stats.Docs++
			stats.TotalLength += doc.Length
		}

		return setValue(tx, []byte(keywordStatsKey), keywordStatsMUS, *stats)
	})
}

// Remove drops chunks from the index.
func (s *KeywordStore) Remove(ctx context.Context, chunkIDs ...string) error {
	return s.backend.Update(func(tx *badger.Txn) error {
		stats, err := s.stats(tx)
		if err != nil {
			return err
		}
		for _, id := range chunkIDs {
			if err := s.remove(tx, stats, id); err != nil {
				return err
			}
		}
		return setValue(tx, []byte(keywordStatsKey), keywordStatsMUS, *stats)
	})
}

// Search scores chunks sharing at least one term with query.
func (s *KeywordStore) Search(ctx context.Context, query string, k int) ([]*core.ScoredChunk, error) {
	queryTerms := distinct(core.Terms(query))
	if len(queryTerms) == 0 {
		return []*core.ScoredChunk{}, nil
	}

	var results []*core.ScoredChunk
	err := s.backend.View(func(tx *badger.Txn) error {
		stats, err := s.stats(tx)
		if err != nil {
			return err
		}
		if stats.Docs == 0 {
			return nil
		}

		// term -> chunk -> tf
		postings := make(map[string]map[string]int, len(queryTerms))
		candidates := make(map[string]*keywordDoc)
		for _, term := range queryTerms {
			prefix := makePartialPostingKey(term)
			byChunk := make(map[string]int)
			err := scanPrefix(tx, prefix, true, func(key, val []byte) error {
				tf, err := storage.Unmarshal(storage.IntMUS, val)
				if err != nil {
					return err
				}
				chunkID := suffixAfter(key, prefix)
				byChunk[chunkID] = *tf
				candidates[chunkID] = nil
				return nil
			})
			if err != nil {
				return err
			}
			postings[term] = byChunk
		}

		for id := range candidates {
			doc, err := getValue(tx, makeKeywordDocKey(id), keywordDocMUS)
			if err != nil {
				return err
			}
			candidates[id] = doc
		}

		results = score(queryTerms, postings, candidates, stats)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rankScored(results, k), nil
}

// score computes the combined lexical score of every candidate.
func score(queryTerms []string, postings map[string]map[string]int, candidates map[string]*keywordDoc, stats *keywordStats) []*core.ScoredChunk {
	n := float64(stats.Docs)
	avgLen := float64(stats.TotalLength) / n
	if avgLen == 0 {
		avgLen = 1
	}

	bm25 := make(map[string]float64, len(candidates))
	tfidf := make(map[string]float64, len(candidates))
	var queryNorm float64
	var maxBM25, maxTFIDF float64

	for _, term := range queryTerms {
		df := float64(len(postings[term]))
		if df == 0 {
			continue
		}
		bm25IDF := math.Log((n-df+0.5)/(df+0.5) + 1)
		smoothIDF := math.Log((1+n)/(1+df)) + 1
		queryNorm += smoothIDF * smoothIDF

		for id, tf := range postings[term] {
			doc := candidates[id]
			if doc == nil {
				continue
			}
			f := float64(tf)
			bm25[id] += bm25IDF * f * (bm25K1 + 1) / (f + bm25K1*(1-bm25B+bm25B*float64(doc.Length)/avgLen))
			tfidf[id] += f * smoothIDF * smoothIDF
		}
	}
	queryNorm = math.Sqrt(queryNorm)

	for id, doc := range candidates {
		if doc == nil {
			continue
		}
		var docNorm float64
		for _, tf := range doc.Terms {
			docNorm += float64(tf * tf)
		}
		if docNorm > 0 && queryNorm > 0 {
			tfidf[id] /= math.Sqrt(docNorm) * queryNorm
		}
		maxBM25 = math.Max(maxBM25, bm25[id])
		maxTFIDF = math.Max(maxTFIDF, tfidf[id])
	}

	results := make([]*core.ScoredChunk, 0, len(candidates))
	for id, doc := range candidates {
		if doc == nil {
			continue
		}
		var combined float64
		if maxBM25 > 0 {
			combined += bm25Weight * bm25[id] / maxBM25
		}
		if maxTFIDF > 0 {
			combined += tfidfWeight * tfidf[id] / maxTFIDF
		}
		if combined <= 0 {
			continue
		}
		results = append(results, &core.ScoredChunk{
			ChunkID:  doc.ChunkID,
			DocID:    doc.DocID,
			Score:    combined,
			Text:     doc.Text,
			Metadata: doc.Metadata,
		})
	}
	return results
}

func (s *KeywordStore) stats(tx *badger.Txn) (*keywordStats, error) {
	stats, err := getValue(tx, []byte(keywordStatsKey), keywordStatsMUS)
	if err != nil {
		return nil, err
	}
	if stats == nil {
		stats = &keywordStats{}
	}
	return stats, nil
}

// remove deletes a chunk's postings and entry, adjusting stats in place.
func (s *KeywordStore) remove(tx *badger.Txn, stats *keywordStats, chunkID string) error {
	doc, err := getValue(tx, makeKeywordDocKey(chunkID), keywordDocMUS)
	if err != nil || doc == nil {
		return err
	}
	for term := range doc.Terms {
		if err := tx.Delete(makePostingKey(term, chunkID)); err != nil {
			return err
		}
	}
	stats.Docs--
	stats.TotalLength -= doc.Length
	return tx.Delete(makeKeywordDocKey(chunkID))
}

func distinct(terms []string) []string {
	seen := make(map[string]bool, len(terms))
	out := terms[:0:0]
	for _, t := range terms {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}
