package fusion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/svjt78/ragmesh/ai"
	"github.com/svjt78/ragmesh/core"
)

// ErrLLMRequired is returned when a Reranker is built without an LLM.
var ErrLLMRequired = errors.New("LLM required")

const rerankSystemPrompt = "You rank document chunks by how well they answer a query. Respond with JSON only."

const rerankPromptTemplate = `Given the query and the following chunks, rank them by relevance.
Output only the ranking as a JSON array of chunk numbers in order of relevance.

Query: %s

Chunks:
%s

Output format: {"ranking": [3, 1, 5, 2, 4]}`

// Reranker reorders fused candidates with an LLM judgement of relevance.
type Reranker struct {
	llm    ai.LLM
	logger *slog.Logger
}

// NewReranker creates a Reranker.
func NewReranker(llm ai.LLM, logger *slog.Logger) (*Reranker, error) {
	if llm == nil {
		return nil, ErrLLMRequired
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reranker{llm: llm, logger: logger.With("component", "reranker")}, nil
}

type rankingResponse struct {
	Ranking []any `json:"ranking"`
}

// Rerank asks the LLM to order the first profile.MaxChunks candidates.
// Entries of the returned ranking may be 1-indexed chunk numbers or chunk
// ids; unknown entries are ignored and unranked candidates follow in their
// original order. Final ranks are reassigned from 1.
//
// On failure the input order is returned together with the error.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []*core.RetrievalCandidate, profile core.RerankProfile) ([]*core.RetrievalCandidate, error) {
	if len(candidates) < 2 {
		return candidates, nil
	}
	window := candidates
	if profile.MaxChunks > 0 && len(window) > profile.MaxChunks {
		window = window[:profile.MaxChunks]
	}

	var sb strings.Builder
	for i, c := range window {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "[%d] %s", i+1, truncate(c.Text, profile.ChunkCharLimit))
	}

	resp, err := r.llm.Generate(ctx, ai.GenerateRequest{
		Prompt:       fmt.Sprintf(rerankPromptTemplate, query, sb.String()),
		SystemPrompt: rerankSystemPrompt,
		JSONMode:     true,
	})
	if err != nil {
		r.logger.Warn("rerank failed, keeping fusion order", "err", err)
		return candidates, err
	}
	var parsed rankingResponse
	if err := ai.DecodeJSON(resp.Content, &parsed); err != nil {
		r.logger.Warn("rerank response unparseable, keeping fusion order", "err", err)
		return candidates, err
	}

	byID := make(map[string]int, len(window))
	for i, c := range window {
		byID[c.ChunkID] = i
	}
	used := make([]bool, len(window))
	out := make([]*core.RetrievalCandidate, 0, len(candidates))
	for _, entry := range parsed.Ranking {
		idx := -1
		switch v := entry.(type) {
		case float64:
			if v == float64(int(v)) {
				idx = int(v) - 1
			}
		case string:
			if i, ok := byID[v]; ok {
				idx = i
			}
		}
		if idx < 0 || idx >= len(window) || used[idx] {
			continue
		}
		used[idx] = true
		out = append(out, window[idx])
	}
	for i, c := range window {
		if !used[i] {
			out = append(out, c)
		}
	}
	out = append(out, candidates[len(window):]...)

	for i, c := range out {
		c.FinalRank = i + 1
	}
	r.logger.Debug("rerank finished", "ranked", len(parsed.Ranking), "candidates", len(out))
	return out, nil
}

func truncate(text string, limit int) string {
	if limit <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
