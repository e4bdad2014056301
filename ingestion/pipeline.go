package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/svjt78/ragmesh/ai"
	"github.com/svjt78/ragmesh/chunking"
	"github.com/svjt78/ragmesh/core"
	"github.com/svjt78/ragmesh/storage"
)

// Pipeline orchestrates the ingestion and enrichment of documents.
// It manages concurrent processing of embeddings and entity extraction.
type Pipeline struct {
	documents     storage.DocumentStore
	keywords      storage.KeywordStore
	tokenizer     ai.Tokenizer
	chunker       *chunking.Chunker
	chunking      core.ChunkingProfile
	embeddingPool *ants.Pool
	graphPool     *ants.Pool
	embeddingProc processor
	graphProc     processor
	entityTypes   []string
	logger        *slog.Logger

	// lifecycle is held shared while queueing work and exclusively by Release.
	lifecycle sync.RWMutex
	closed    bool

	wg   sync.WaitGroup
	mu   sync.Mutex
	errs []error
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithPoolSize sets the worker pool size for concurrent processing.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}

		// Release old pools
		if p.embeddingPool != nil {
			p.embeddingPool.Release()
		}
		if p.graphPool != nil {
			p.graphPool.Release()
		}

		embeddingPool, err := ants.NewPool(size)
		if err != nil {
			return err
		}

		graphPool, err := ants.NewPool(size)
		if err != nil {
			embeddingPool.Release()
			return err
		}

		p.embeddingPool = embeddingPool
		p.graphPool = graphPool
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// WithEntityTypes sets the entity types requested from the extractor.
// Default is ai.EntityTypes.
func WithEntityTypes(types ...string) Option {
	return func(p *Pipeline) error {
		if len(types) == 0 {
			return fmt.Errorf("at least one entity type is required")
		}
		p.entityTypes = types
		return nil
	}
}

// WithChunking sets the profile used to split document pages into chunks.
// Default is core.DefaultChunkingProfile().
func WithChunking(profile core.ChunkingProfile) Option {
	return func(p *Pipeline) error {
		if err := core.ValidateChunkingProfile(profile); err != nil {
			return err
		}
		p.chunking = profile
		return nil
	}
}

// NewPipeline creates a new ingestion pipeline.
func NewPipeline(
	documents storage.DocumentStore,
	vectors storage.VectorStore,
	keywords storage.KeywordStore,
	graph storage.GraphStore,
	provider ai.Provider,
	opts ...Option,
) (*Pipeline, error) {
	if documents == nil {
		return nil, ErrDocumentStoreRequired
	}
	if vectors == nil {
		return nil, ErrVectorStoreRequired
	}
	if keywords == nil {
		return nil, ErrKeywordStoreRequired
	}
	if graph == nil {
		return nil, ErrGraphStoreRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}

	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}

	embeddingPool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	graphPool, err := ants.NewPool(poolSize)
	if err != nil {
		embeddingPool.Release()
		return nil, err
	}

	p := &Pipeline{
		documents:     documents,
		keywords:      keywords,
		tokenizer:     provider.Tokenizer(),
		embeddingPool: embeddingPool,
		graphPool:     graphPool,
		chunking:      core.DefaultChunkingProfile(),
		entityTypes:   ai.EntityTypes,
		logger:        slog.Default(),
	}

	// Apply options (may override defaults)
	for _, opt := range opts {
		if optErr := opt(p); optErr != nil {
			p.Release()
			return nil, optErr
		}
	}
	p.logger = p.logger.With("component", "ingestion")

	if p.tokenizer != nil {
		if p.chunker, err = chunking.NewChunker(p.tokenizer, chunking.WithLogger(p.logger)); err != nil {
			p.Release()
			return nil, err
		}
	}

	// Create processors after options are applied (so they get final config)
	embeddingProc, err := newEmbeddingProcessor(documents, vectors, provider.Embedder(), p.logger)
	if err != nil {
		p.Release()
		return nil, err
	}

	graphProc, err := newGraphProcessor(graph, provider.EntityExtractor(), p.entityTypes, p.logger)
	if err != nil {
		p.Release()
		return nil, err
	}

	p.embeddingProc = embeddingProc
	p.graphProc = graphProc

	return p, nil
}

// Ingest stores doc and indexes its chunks for keyword search before
// returning. A document carrying pages instead of chunks is chunked with
// the pipeline's chunking profile first. Embedding and entity extraction are queued on the worker
// pools; call Wait to block until they finish.
func (p *Pipeline) Ingest(ctx context.Context, doc *core.Document) error {
	if err := core.ValidateDocument(doc); err != nil {
		return err
	}
	p.lifecycle.RLock()
	defer p.lifecycle.RUnlock()
	if p.closed {
		return ErrPipelineReleased
	}

	if len(doc.Pages) > 0 {
		if p.chunker == nil {
			return ErrTokenizerRequired
		}
		chunks, err := p.chunker.Chunk(doc, p.chunking)
		if err != nil {
			return fmt.Errorf("chunking document %s: %w", doc.DocID, err)
		}
		doc.Chunks = chunks
		doc.Pages = nil
	}

	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.IndexedAt = now
	for _, chunk := range doc.Chunks {
		if chunk.Tokens == 0 && p.tokenizer != nil {
			chunk.Tokens = p.tokenizer.CountTokens(chunk.Text)
		}
		if doc.FormNumber == "" {
			continue
		}
		if chunk.Metadata == nil {
			chunk.Metadata = map[string]string{}
		}
		if _, ok := chunk.Metadata["form_number"]; !ok {
			chunk.Metadata["form_number"] = doc.FormNumber
		}
	}

	if err := p.documents.PutDocument(ctx, doc); err != nil {
		return fmt.Errorf("storing document %s: %w", doc.DocID, err)
	}
	if len(doc.Chunks) == 0 {
		return nil
	}
	if err := p.keywords.Index(ctx, doc.Chunks...); err != nil {
		return fmt.Errorf("indexing document %s: %w", doc.DocID, err)
	}
	p.logger.Info("document stored", "doc_id", doc.DocID, "chunks", len(doc.Chunks))

	// Background work outlives the caller's deadline but keeps its values.
	bg := context.WithoutCancel(ctx)
	chunks := doc.Chunks
	if err := p.submit(p.embeddingPool, "embeddings", func() error { return p.embeddingProc.process(bg, chunks) }); err != nil {
		return err
	}
	return p.submit(p.graphPool, "entities", func() error { return p.graphProc.process(bg, chunks) })
}

func (p *Pipeline) submit(pool *ants.Pool, task string, fn func() error) error {
	p.wg.Add(1)
	err := pool.Submit(func() {
		defer p.wg.Done()
		if err := fn(); err != nil {
			p.logger.Error("error processing "+task, "err", err)
			p.mu.Lock()
			p.errs = append(p.errs, err)
			p.mu.Unlock()
		}
	})
	if err != nil {
		p.wg.Done()
		return fmt.Errorf("queueing %s: %w", task, err)
	}
	return nil
}

// Wait blocks until every queued task has finished and returns the errors
// they produced since the previous Wait.
func (p *Pipeline) Wait() error {
	p.wg.Wait()
	p.mu.Lock()
	defer p.mu.Unlock()
	err := errors.Join(p.errs...)
	p.errs = nil
	return err
}

// Release waits for queued work and releases the worker pools.
// The pipeline should not be used after calling Release.
func (p *Pipeline) Release() {
	p.lifecycle.Lock()
	p.closed = true
	p.lifecycle.Unlock()
	p.wg.Wait()
	if p.embeddingPool != nil {
		p.embeddingPool.Release()
	}
	if p.graphPool != nil {
		p.graphPool.Release()
	}
}
