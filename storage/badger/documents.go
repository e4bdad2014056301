package badger

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/svjt78/ragmesh/core"
	"github.com/svjt78/ragmesh/storage"
)

// DocumentStore implements storage.DocumentStore on BadgerDB.
type DocumentStore struct {
	backend *Backend
}

var _ storage.DocumentStore = (*DocumentStore)(nil)

// NewDocumentStore creates a DocumentStore.
func NewDocumentStore(backend *Backend) *DocumentStore {
	return &DocumentStore{backend: backend}
}

// PutDocument stores a document and its chunks, replacing earlier chunks of
// the same document.
func (s *DocumentStore) PutDocument(ctx context.Context, doc *core.Document) error {
	if err := core.ValidateDocument(doc); err != nil {
		return err
	}

	return s.backend.Update(func(tx *badger.Txn) error {
		if err := s.deleteChunks(tx, doc.DocID); err != nil {
			return err
		}

		header := *doc
		header.Chunks = nil
		if header.CreatedAt.IsZero() {
			header.CreatedAt = time.Now().UTC()
		}
		if err := setValue(tx, makeDocumentKey(doc.DocID), storage.DocumentMUS, header); err != nil {
			return err
		}

		for _, chunk := range doc.Chunks {
			if err := setValue(tx, makeChunkKey(chunk.ChunkID), storage.ChunkMUS, *chunk); err != nil {
				return err
			}
			if err := tx.Set(makeDocChunkKey(doc.DocID, chunk.ChunkID), nil); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetDocument retrieves a document with its chunks.
func (s *DocumentStore) GetDocument(ctx context.Context, docID string) (*core.Document, error) {
	var doc *core.Document
	err := s.backend.View(func(tx *badger.Txn) error {
		var err error
		doc, err = getValue(tx, makeDocumentKey(docID), storage.DocumentMUS)
		if err != nil {
			return err
		}
		if doc == nil {
			return storage.ErrNotFound
		}
		doc.Chunks, err = s.chunksOf(tx, docID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// ListDocuments returns all documents without chunks.
func (s *DocumentStore) ListDocuments(ctx context.Context) ([]*core.Document, error) {
	var docs []*core.Document
	err := s.backend.View(func(tx *badger.Txn) error {
		return scanValues(tx, []byte(documentPrefix), storage.DocumentMUS, func(doc *core.Document) error {
			docs = append(docs, doc)
			return nil
		})
	})
	return docs, err
}

// DeleteDocument removes a document and its chunks.
func (s *DocumentStore) DeleteDocument(ctx context.Context, docID string) error {
	return s.backend.Update(func(tx *badger.Txn) error {
		key := makeDocumentKey(docID)
		if _, err := tx.Get(key); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return storage.ErrNotFound
			}
			return err
		}
		if err := s.deleteChunks(tx, docID); err != nil {
			return err
		}
		return tx.Delete(key)
	})
}

// GetChunk retrieves one chunk.
func (s *DocumentStore) GetChunk(ctx context.Context, chunkID string) (*core.Chunk, error) {
	var chunk *core.Chunk
	err := s.backend.View(func(tx *badger.Txn) error {
		var err error
		chunk, err = getValue(tx, makeChunkKey(chunkID), storage.ChunkMUS)
		return err
	})
	if err != nil {
		return nil, err
	}
	if chunk == nil {
		return nil, storage.ErrNotFound
	}
	return chunk, nil
}

// GetChunks returns every chunk passing filter.
func (s *DocumentStore) GetChunks(ctx context.Context, filter *storage.ChunkFilter) ([]*core.Chunk, error) {
	var chunks []*core.Chunk
	err := s.backend.View(func(tx *badger.Txn) error {
		if filter != nil && len(filter.DocIDs) > 0 {
			for _, docID := range filter.DocIDs {
				docChunks, err := s.chunksOf(tx, docID)
				if err != nil {
					return err
				}
				for _, c := range docChunks {
					if filter.Matches(c.DocID, c.Metadata) {
						chunks = append(chunks, c)
					}
				}
			}
			return nil
		}
		return scanValues(tx, []byte(chunkPrefix), storage.ChunkMUS, func(c *core.Chunk) error {
			if filter.Matches(c.DocID, c.Metadata) {
				chunks = append(chunks, c)
			}
			return nil
		})
	})
	return chunks, err
}

// GetChunksByIDs returns existing chunks in request order.
func (s *DocumentStore) GetChunksByIDs(ctx context.Context, chunkIDs ...string) ([]*core.Chunk, error) {
	chunks := make([]*core.Chunk, 0, len(chunkIDs))
	err := s.backend.View(func(tx *badger.Txn) error {
		for _, id := range chunkIDs {
			c, err := getValue(tx, makeChunkKey(id), storage.ChunkMUS)
			if err != nil {
				return err
			}
			if c != nil {
				chunks = append(chunks, c)
			}
		}
		return nil
	})
	return chunks, err
}

// UpdateChunkVectors overwrites chunk embeddings. Unknown chunk ids are ignored.
func (s *DocumentStore) UpdateChunkVectors(ctx context.Context, vectors map[string][]float32) error {
	return s.backend.Update(func(tx *badger.Txn) error {
		for id, vec := range vectors {
			c, err := getValue(tx, makeChunkKey(id), storage.ChunkMUS)
			if err != nil {
				return err
			}
			if c == nil {
				continue
			}
			c.Vector = vec
			if err := setValue(tx, makeChunkKey(id), storage.ChunkMUS, *c); err != nil {
				return err
			}
		}
		return nil
	})
}

// CountChunks returns the number of stored chunks.
func (s *DocumentStore) CountChunks(ctx context.Context) (int, error) {
	count := 0
	err := s.backend.View(func(tx *badger.Txn) error {
		return scanPrefix(tx, []byte(chunkPrefix), false, func(_, _ []byte) error {
			count++
			return nil
		})
	})
	return count, err
}

// ForEachChunk visits chunks in key order, batchSize at a time. Each batch
// is read in its own transaction so fn may write to the store.
func (s *DocumentStore) ForEachChunk(ctx context.Context, batchSize int, fn func([]*core.Chunk) error) error {
	if batchSize <= 0 {
		return storage.ErrInvalidQuery
	}

	var after []byte
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		batch := make([]*core.Chunk, 0, batchSize)
		err := s.backend.View(func(tx *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			opts.Prefix = []byte(chunkPrefix)
			iter := tx.NewIterator(opts)
			defer iter.Close()

			start := []byte(chunkPrefix)
			if after != nil {
				start = after
			}
			for iter.Seek(start); iter.Valid() && len(batch) < batchSize; iter.Next() {
				key := iter.Item().KeyCopy(nil)
				if after != nil && string(key) == string(after) {
					continue
				}
				val, err := iter.Item().ValueCopy(nil)
				if err != nil {
					return err
				}
				c, err := storage.Unmarshal(storage.ChunkMUS, val)
				if err != nil {
					return err
				}
				batch = append(batch, c)
				after = key
			}
			return nil
		})
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}
		if err := fn(batch); err != nil {
			return err
		}
		if len(batch) < batchSize {
			return nil
		}
	}
}

// chunksOf loads a document's chunks ordered by page then offset.
func (s *DocumentStore) chunksOf(tx *badger.Txn, docID string) ([]*core.Chunk, error) {
	prefix := makePartialDocChunkKey(docID)
	var chunks []*core.Chunk
	err := scanPrefix(tx, prefix, false, func(key, _ []byte) error {
		c, err := getValue(tx, makeChunkKey(suffixAfter(key, prefix)), storage.ChunkMUS)
		if err != nil {
			return err
		}
		if c != nil {
			chunks = append(chunks, c)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(chunks, func(a, b *core.Chunk) int {
		if a.PageNo != b.PageNo {
			return a.PageNo - b.PageNo
		}
		if a.CharStart != b.CharStart {
			return a.CharStart - b.CharStart
		}
		return strings.Compare(a.ChunkID, b.ChunkID)
	})
	return chunks, nil
}

func (s *DocumentStore) deleteChunks(tx *badger.Txn, docID string) error {
	prefix := makePartialDocChunkKey(docID)
	var keys [][]byte
	err := scanPrefix(tx, prefix, false, func(key, _ []byte) error {
		keys = append(keys, key)
		return nil
	})
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := tx.Delete(makeChunkKey(suffixAfter(key, prefix))); err != nil {
			return err
		}
		if err := tx.Delete(key); err != nil {
			return err
		}
	}
	return nil
}
