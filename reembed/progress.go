package reembed

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/svjt78/ragmesh/core"
)

// Summary describes what a reembedding run touched.
type Summary struct {
	Chunks    int
	Tokens    int
	Documents map[string]int // chunks reembedded per document
	Elapsed   time.Duration
}

// DocumentIDs returns the reembedded document ids, sorted.
func (s Summary) DocumentIDs() []string {
	return slices.Sorted(maps.Keys(s.Documents))
}

// chunkProgress counts reembedded batches and writes a status line every
// interval chunks. It is safe for concurrent use.
type chunkProgress struct {
	mu           sync.Mutex
	writer       io.Writer
	total        int
	interval     int
	lastReported int
	start        time.Time
	summary      Summary
}

func newChunkProgress(writer io.Writer, total, interval int) *chunkProgress {
	return &chunkProgress{
		writer:   writer,
		total:    total,
		interval: max(interval, 1),
		start:    time.Now(),
		summary:  Summary{Documents: make(map[string]int)},
	}
}

// observe records a stored batch.
func (p *chunkProgress) observe(batch []*core.Chunk) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, chunk := range batch {
		p.summary.Chunks++
		p.summary.Tokens += chunk.Tokens
		p.summary.Documents[chunk.DocID]++
	}
	if p.summary.Chunks-p.lastReported >= p.interval {
		p.report()
		p.lastReported = p.summary.Chunks
	}
}

// finish writes the last status line and returns the totals.
func (p *chunkProgress) finish() Summary {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.summary.Elapsed = time.Since(p.start)
	p.report()
	fmt.Fprintln(p.writer)

	s := p.summary
	s.Documents = maps.Clone(p.summary.Documents)
	return s
}

// report writes the status line. Must be called with lock held.
func (p *chunkProgress) report() {
	percentage := 0.0
	if p.total > 0 {
		percentage = float64(p.summary.Chunks) / float64(p.total) * 100.0
	}
	fmt.Fprintf(p.writer, "\rProgress: %d/%d chunks (%.1f%%) across %d documents, %d tokens",
		p.summary.Chunks, p.total, percentage, len(p.summary.Documents), p.summary.Tokens)
}
