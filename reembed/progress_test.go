package reembed

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/svjt78/ragmesh/core"
)

func chunksOf(docID string, n, tokens int) []*core.Chunk {
	out := make([]*core.Chunk, n)
	for i := range out {
		out[i] = &core.Chunk{DocID: docID, Tokens: tokens}
	}
	return out
}

func TestChunkProgress_Observe(t *testing.T) {
	var buf bytes.Buffer
	p := newChunkProgress(&buf, 10, 4)

	p.observe(chunksOf("ho3", 3, 20))
	assert.Empty(t, buf.String(), "under the interval")

	p.observe(chunksOf("dp1", 2, 10))
	assert.Contains(t, buf.String(), "5/10 chunks (50.0%) across 2 documents, 80 tokens")

	buf.Reset()
	p.observe(chunksOf("dp1", 1, 10))
	assert.Empty(t, buf.String(), "interval counts from the last report")
}

func TestChunkProgress_Finish(t *testing.T) {
	var buf bytes.Buffer
	p := newChunkProgress(&buf, 4, 100)

	p.observe(chunksOf("ho3", 3, 5))
	p.observe(chunksOf("end", 1, 7))
	s := p.finish()

	assert.Equal(t, 4, s.Chunks)
	assert.Equal(t, 22, s.Tokens)
	assert.Equal(t, map[string]int{"ho3": 3, "end": 1}, s.Documents)
	assert.Equal(t, []string{"end", "ho3"}, s.DocumentIDs())

	output := buf.String()
	assert.Contains(t, output, "4/4 chunks (100.0%) across 2 documents")
	assert.True(t, strings.HasSuffix(output, "\n"))

	p.observe(chunksOf("ho3", 1, 1))
	assert.Equal(t, 3, s.Documents["ho3"], "summary is a snapshot")
}

func TestChunkProgress_ZeroTotal(t *testing.T) {
	var buf bytes.Buffer
	s := newChunkProgress(&buf, 0, 0).finish()

	assert.Zero(t, s.Chunks)
	assert.Contains(t, buf.String(), "0/0 chunks (0.0%)")
}
