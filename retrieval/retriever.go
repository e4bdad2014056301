package retrieval

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/svjt78/ragmesh/ai"
	"github.com/svjt78/ragmesh/core"
	"github.com/svjt78/ragmesh/storage"
)

// Request describes one retrieval.
type Request struct {
	Query   string
	Profile core.RetrievalProfile
	Filter  *storage.ChunkFilter

	// EnableGraph turns on the graph modality.
	EnableGraph bool
}

// Retriever runs the three modalities concurrently.
type Retriever struct {
	vector  *VectorRetriever
	keyword *KeywordRetriever
	graph   *GraphRetriever
	logger  *slog.Logger
}

// Option configures a Retriever.
type Option func(*Retriever) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Retriever) error {
		if logger == nil {
			logger = slog.Default()
		}
		r.logger = logger
		return nil
	}
}

// NewRetriever creates a Retriever over the given stores.
func NewRetriever(
	documents storage.DocumentStore,
	vectors storage.VectorStore,
	keywords storage.KeywordStore,
	graph storage.GraphStore,
	provider ai.Provider,
	opts ...Option,
) (*Retriever, error) {
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

	r := &Retriever{logger: slog.Default()}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	r.logger = r.logger.With("component", "retriever")

	r.vector = NewVectorRetriever(vectors, provider.Embedder(), r.logger.With("modality", "vector"))
	r.keyword = NewKeywordRetriever(keywords, r.logger.With("modality", "document"))
	r.graph = NewGraphRetriever(graph, documents, provider.EntityExtractor(), r.logger.With("modality", "graph"))
	return r, nil
}

// Retrieve queries every enabled modality and returns once all have
// completed. Any modality error fails the whole retrieval.
func (r *Retriever) Retrieve(ctx context.Context, req Request, monitor Monitor) (*core.RetrievalBundle, error) {
	if err := core.ValidateQuery(req.Query); err != nil {
		return nil, err
	}
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	monitor.Start(req.Query)

	bundle := &core.RetrievalBundle{
		Query:          req.Query,
		VectorResults:  []*core.ScoredChunk{},
		KeywordResults: []*core.ScoredChunk{},
		GraphResults:   []*core.ScoredChunk{},
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		start := time.Now()
		results, err := r.vector.Retrieve(gctx, req.Query, req.Profile, req.Filter)
		if err != nil {
			return err
		}
		bundle.VectorResults = results
		monitor.AfterVectorSearch(results, time.Since(start))
		return nil
	})
	g.Go(func() error {
		start := time.Now()
		results, err := r.keyword.Retrieve(gctx, req.Query, req.Profile, req.Filter)
		if err != nil {
			return err
		}
		bundle.KeywordResults = results
		monitor.AfterKeywordSearch(results, time.Since(start))
		return nil
	})
	if req.EnableGraph {
		g.Go(func() error {
			start := time.Now()
			results, subgraph, err := r.graph.Retrieve(gctx, req.Query, req.Profile, req.Filter)
			if err != nil {
				return err
			}
			bundle.GraphResults = results
			bundle.Subgraph = subgraph
			monitor.AfterGraphSearch(results, subgraph, time.Since(start))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		r.logger.Error("retrieval failed", "err", err)
		return nil, err
	}

	r.logger.Debug("retrieval finished",
		"vector", len(bundle.VectorResults),
		"document", len(bundle.KeywordResults),
		"graph", len(bundle.GraphResults))
	monitor.Finish(bundle)
	return bundle, nil
}
