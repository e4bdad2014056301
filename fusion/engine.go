package fusion

import (
	"log/slog"
	"slices"
	"strings"

	"github.com/svjt78/ragmesh/core"
)

// Stats describes how many candidates survived each pass.
type Stats struct {
	Unique         int  `json:"unique_chunks"`
	AfterDiversity int  `json:"after_diversity"`
	AfterDedup     int  `json:"after_dedup"`
	Final          int  `json:"final"`
	DistinctDocs   int  `json:"distinct_docs"`
	LowDiversity   bool `json:"low_diversity"`
}

// Result is the output of one fusion.
type Result struct {
	Candidates []*core.RetrievalCandidate
	Stats      Stats
}

// Engine fuses modality results. It holds no per-run state and is safe for
// concurrent use.
type Engine struct {
	logger *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine) error

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) error {
		if logger == nil {
			logger = slog.Default()
		}
		e.logger = logger
		return nil
	}
}

// NewEngine creates an Engine.
func NewEngine(opts ...Option) (*Engine, error) {
	e := &Engine{logger: slog.Default()}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	e.logger = e.logger.With("component", "fusion")
	return e, nil
}

// Fuse merges the three ranked lists under profile. Empty input yields an
// empty candidate list.
func (e *Engine) Fuse(vector, keyword, graph []*core.ScoredChunk, profile core.FusionProfile) *Result {
	candidates := e.score(vector, keyword, graph, profile)
	stats := Stats{Unique: len(candidates)}

	if profile.ApplyDiversityConstraints {
		var distinct int
		candidates, distinct = diversify(candidates, profile.MaxChunksPerDoc)
		stats.DistinctDocs = distinct
		if distinct < profile.MinDistinctDocs {
			stats.LowDiversity = true
			e.logger.Warn("too few distinct documents after diversity pass",
				"distinct", distinct, "minimum", profile.MinDistinctDocs)
		}
	} else {
		stats.DistinctDocs = countDocs(candidates)
	}
	stats.AfterDiversity = len(candidates)

	if profile.DedupThreshold < 1.0 {
		candidates = dedup(candidates, core.ContentHash)
	}
	stats.AfterDedup = len(candidates)

	if len(candidates) > profile.FinalTopK {
		candidates = candidates[:profile.FinalTopK]
	}
	for i, c := range candidates {
		c.FinalRank = i + 1
	}
	stats.Final = len(candidates)

	e.logger.Debug("fusion finished",
		"vector", len(vector), "document", len(keyword), "graph", len(graph),
		"unique", stats.Unique, "final", stats.Final)
	return &Result{Candidates: candidates, Stats: stats}
}

// score accumulates RRF contributions per chunk and sorts by fused score.
// Ties keep first-seen order across vector, keyword and graph lists.
func (e *Engine) score(vector, keyword, graph []*core.ScoredChunk, profile core.FusionProfile) []*core.RetrievalCandidate {
	byID := make(map[string]*core.RetrievalCandidate)
	var order []*core.RetrievalCandidate
	k := float64(profile.RRFK)

	add := func(results []*core.ScoredChunk, weight float64, set func(*core.RetrievalCandidate, *core.ModalityHit)) {
		for _, r := range results {
			c, ok := byID[r.ChunkID]
			if !ok {
				c = &core.RetrievalCandidate{ChunkID: r.ChunkID}
				byID[r.ChunkID] = c
				order = append(order, c)
			}
			c.FusedScore += weight / (k + float64(r.Rank))
			set(c, &core.ModalityHit{Score: r.Score, Rank: r.Rank})
			if c.DocID == "" {
				c.DocID = r.DocID
			}
			if c.Text == "" {
				c.Text = r.Text
			}
			if len(c.Metadata) == 0 {
				c.Metadata = r.Metadata
			}
			if len(r.EntityIDs) > 0 {
				c.EntityIDs = r.EntityIDs
			}
		}
	}
	add(vector, profile.VectorWeight, func(c *core.RetrievalCandidate, h *core.ModalityHit) { c.Vector = h })
	add(keyword, profile.DocumentWeight, func(c *core.RetrievalCandidate, h *core.ModalityHit) { c.Keyword = h })
	add(graph, profile.GraphWeight, func(c *core.RetrievalCandidate, h *core.ModalityHit) { c.Graph = h })

	slices.SortStableFunc(order, func(a, b *core.RetrievalCandidate) int {
		switch {
		case a.FusedScore > b.FusedScore:
			return -1
		case a.FusedScore < b.FusedScore:
			return 1
		}
		return 0
	})
	return order
}

// docOf returns the candidate's document id, falling back to metadata.
func docOf(c *core.RetrievalCandidate) string {
	if c.DocID != "" {
		return c.DocID
	}
	return c.Metadata["doc_id"]
}

// diversify keeps candidates in order, dropping any beyond maxPerDoc for
// their document. Candidates without a document always pass.
func diversify(candidates []*core.RetrievalCandidate, maxPerDoc int) ([]*core.RetrievalCandidate, int) {
	counts := make(map[string]int)
	kept := make([]*core.RetrievalCandidate, 0, len(candidates))
	for _, c := range candidates {
		doc := docOf(c)
		if doc == "" {
			kept = append(kept, c)
			continue
		}
		if counts[doc] < maxPerDoc {
			counts[doc]++
			kept = append(kept, c)
		}
	}
	return kept, len(counts)
}

// dedup drops candidates whose text exactly matches an earlier kept one.
// Texts are bucketed by hash and compared in full within a bucket.
// Candidates with empty text are always kept.
func dedup(candidates []*core.RetrievalCandidate, hash func(string) string) []*core.RetrievalCandidate {
	seen := make(map[string][]string)
	kept := make([]*core.RetrievalCandidate, 0, len(candidates))
	for _, c := range candidates {
		if strings.TrimSpace(c.Text) == "" {
			kept = append(kept, c)
			continue
		}
		key := hash(c.Text)
		if slices.Contains(seen[key], c.Text) {
			continue
		}
		seen[key] = append(seen[key], c.Text)
		kept = append(kept, c)
	}
	return kept
}

func countDocs(candidates []*core.RetrievalCandidate) int {
	docs := make(map[string]bool)
	for _, c := range candidates {
		if d := docOf(c); d != "" {
			docs[d] = true
		}
	}
	return len(docs)
}
