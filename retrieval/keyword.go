package retrieval

import (
	"context"
	"log/slog"
	"slices"
	"strings"

	"github.com/svjt78/ragmesh/core"
	"github.com/svjt78/ragmesh/storage"
)

// KeywordRetriever performs sparse lexical search with match boosts.
type KeywordRetriever struct {
	keywords storage.KeywordStore
	logger   *slog.Logger
}

// NewKeywordRetriever creates a KeywordRetriever.
func NewKeywordRetriever(keywords storage.KeywordStore, logger *slog.Logger) *KeywordRetriever {
	return &KeywordRetriever{keywords: keywords, logger: logger}
}

// Retrieve scores every chunk against query, applies the profile's boosts
// and filter, and returns the best profile.DocK.
func (r *KeywordRetriever) Retrieve(ctx context.Context, query string, profile core.RetrievalProfile, filter *storage.ChunkFilter) ([]*core.ScoredChunk, error) {
	scored, err := r.keywords.Search(ctx, query, 0)
	if err != nil {
		r.logger.Error("error querying keyword index", "err", err)
		return nil, err
	}

	queryLower := strings.ToLower(query)
	phrase := quotedPhrase(query)

	results := make([]*core.ScoredChunk, 0, len(scored))
	for _, c := range scored {
		if !filter.Matches(c.DocID, c.Metadata) {
			continue
		}
		c.Score *= boost(c, queryLower, phrase, profile)
		results = append(results, c)
	}

	slices.SortStableFunc(results, func(a, b *core.ScoredChunk) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return strings.Compare(a.ChunkID, b.ChunkID)
	})
	if len(results) > profile.DocK {
		results = results[:profile.DocK]
	}
	for i, res := range results {
		res.Rank = i + 1
	}
	r.logger.Debug("keyword retrieval finished", "results", len(results))
	return results, nil
}

// boost returns the product of every boost factor that applies to chunk.
func boost(chunk *core.ScoredChunk, queryLower, phrase string, profile core.RetrievalProfile) float64 {
	factor := 1.0
	text := strings.ToLower(chunk.Text)

	if queryLower != "" && strings.Contains(text, queryLower) {
		factor *= profile.DocBoostExactMatch
	}
	if form := strings.ToLower(chunk.Metadata["form_number"]); form != "" && strings.Contains(queryLower, form) {
		factor *= profile.DocBoostFormNumber
	}
	if phrase != "" && strings.Contains(text, phrase) {
		factor *= profile.DocBoostDefinedTerm
	}
	return factor
}

// quotedPhrase returns the lowercased query without surrounding quotes when
// the query contains a double quote, otherwise "".
func quotedPhrase(query string) string {
	if !strings.Contains(query, `"`) {
		return ""
	}
	return strings.ToLower(strings.Trim(strings.TrimSpace(query), `"`))
}
