package retrieval

import (
	"time"

	"github.com/svjt78/ragmesh/core"
)

// Monitor provides hooks to observe retrieval. Modality hooks may be called
// concurrently and in any order.
type Monitor interface {
	Start(query string)
	AfterVectorSearch(results []*core.ScoredChunk, elapsed time.Duration)
	AfterKeywordSearch(results []*core.ScoredChunk, elapsed time.Duration)
	AfterGraphSearch(results []*core.ScoredChunk, subgraph *core.Subgraph, elapsed time.Duration)
	Finish(bundle *core.RetrievalBundle)
}

// noopMonitor is a no-op implementation of Monitor
type noopMonitor struct{}

var _ Monitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string)                                                            {}
func (n *noopMonitor) AfterVectorSearch(_ []*core.ScoredChunk, _ time.Duration)                  {}
func (n *noopMonitor) AfterKeywordSearch(_ []*core.ScoredChunk, _ time.Duration)                 {}
func (n *noopMonitor) AfterGraphSearch(_ []*core.ScoredChunk, _ *core.Subgraph, _ time.Duration) {}
func (n *noopMonitor) Finish(_ *core.RetrievalBundle)                                            {}
