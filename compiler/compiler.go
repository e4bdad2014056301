// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.



package compiler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/svjt78/ragmesh/ai"
	"github.com/svjt78/ragmesh/core"
	"github.com/svjt78/ragmesh/pii"
	"github.com/svjt78/ragmesh/storage"
)

var (
	ErrDocumentStoreRequired = errors.New("document store required")
	ErrTokenizerRequired     = errors.New("tokenizer required")
)

// Compiler builds ContextPacks. It holds no mutable state; identical
// inputs always produce identical packs.
type Compiler struct {
	documents storage.DocumentStore
	tokenizer ai.Tokenizer
	logger    *slog.Logger
}

// Option configures a Compiler.
type Option func(*Compiler) error

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Compiler) error {
		c.logger = logger
		return nil
	}
}

// NewCompiler creates a Compiler that loads chunk text from documents and
// counts tokens with tokenizer.
func NewCompiler(documents storage.DocumentStore, tokenizer ai.Tokenizer, opts ...Option) (*Compiler, error) {
	if documents == nil {
		return nil, ErrDocumentStoreRequired
	}
	if tokenizer == nil {
		return nil, ErrTokenizerRequired
	}
	c := &Compiler{
		documents: documents,
		tokenizer: tokenizer,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	c.logger = c.logger.With("component", "context-compiler")
	return c, nil
}

// unit is a candidate joined with its stored chunk.
type unit struct {
	chunkID  string
	docID    string
	pageNo   int
	text     string
	metadata map[string]string
}

// Compile packs candidates, in the order given, into a context of at most
// profile.Budget()-reserved tokens. reserved is taken from the budget for
// chat history and may be zero.
func (c *Compiler) Compile(ctx context.Context, candidates []*core.RetrievalCandidate, query string, profile core.ContextProfile, reserved int) (*core.ContextPack, error) {
	budget := profile.Budget() - max(reserved, 0)
	if budget < 0 {
		budget = 0
	}

	units, err := c.load(ctx, candidates)
	if err != nil {
		return nil, err
	}

	pack := &core.ContextPack{
		Chunks:            []core.PackedChunk{},
		TokenBudget:       profile.MaxContextTokens,
		Coverage:          map[string][]string{},
		RedactionsApplied: []string{},
	}
	parts := make([]string, 0, len(units))
	for _, u := range units {
		rank := len(pack.Chunks) + 1
		rendered := render(u, rank, profile)
		tokens := c.tokenizer.CountTokens(rendered)
		if pack.TokensUsed+tokens > budget {
			c.logger.Debug("token budget reached", "rank", rank, "budget", budget, "used", pack.TokensUsed)
			break
		}
		pack.Chunks = append(pack.Chunks, core.PackedChunk{
			ChunkID:      u.chunkID,
			DocID:        u.docID,
			PageNo:       u.pageNo,
			Rank:         rank,
			RenderedText: rendered,
			Tokens:       tokens,
		})
		parts = append(parts, rendered)
		pack.TokensUsed += tokens
	}
	pack.ContextText = strings.Join(parts, "\n\n")
	pack.Coverage = coverage(query, pack.Chunks)

	if profile.RedactPII {
		text, applied := pii.Redact(pack.ContextText)
		pack.ContextText = text
		pack.RedactionsApplied = pii.Strings(applied)
		for i := range pack.Chunks {
			pack.Chunks[i].RenderedText, _ = pii.Redact(pack.Chunks[i].RenderedText)
		}
	}

	c.logger.Info("context compiled",
		"chunks", len(pack.Chunks),
		"tokens_used", pack.TokensUsed,
		"token_budget", pack.TokenBudget)
	return pack, nil
}

// load fetches chunk text for every candidate. Candidates whose chunk is
// missing from the store fall back to the text carried by retrieval; those
// with no text at all are dropped.
func (c *Compiler) load(ctx context.Context, candidates []*core.RetrievalCandidate) ([]unit, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	ids := make([]string, len(candidates))
	for i, cand := range candidates {
		ids[i] = cand.ChunkID
	}
	chunks, err := c.documents.GetChunksByIDs(ctx, ids...)
	if err != nil {
		return nil, fmt.Errorf("loading chunk texts: %w", err)
	}
	stored := make(map[string]*core.Chunk, len(chunks))
	for _, ch := range chunks {
		stored[ch.ChunkID] = ch
	}

	units := make([]unit, 0, len(candidates))
	for _, cand := range candidates {
		u := unit{
			chunkID:  cand.ChunkID,
			docID:    cand.DocID,
			pageNo:   1,
			text:     cand.Text,
			metadata: cand.Metadata,
		}
		if ch, ok := stored[cand.ChunkID]; ok {
			u.docID = ch.DocID
			u.text = ch.Text
			u.metadata = ch.Metadata
			if ch.PageNo > 0 {
				u.pageNo = ch.PageNo
			}
		}
		if u.text == "" {
			c.logger.Debug("skipping candidate without text", "chunk_id", cand.ChunkID)
			continue
		}
		units = append(units, u)
	}
	return units, nil
}

func render(u unit, rank int, profile core.ContextProfile) string {
	switch profile.CitationFormat {
	case core.CitationFormatDetailed:
		form := u.metadata["form_number"]
		if form == "" {
			form = "N/A"
		}
		return fmt.Sprintf("[Citation %d]\nDocument: %s\nPage: %d\nForm: %s\nContent: %s", rank, u.docID, u.pageNo, form, u.text)
	case core.CitationFormatInline:
		parts := []string{fmt.Sprintf("[%d]", rank)}
		if profile.IncludePageNumbers {
			parts = append(parts, fmt.Sprintf("(Page %d)", u.pageNo))
		}
		if profile.IncludeDocMetadata && u.docID != "" {
			parts = append(parts, fmt.Sprintf("(Doc: %s)", shortID(u.docID)))
		}
		return strings.Join(parts, " ") + " " + u.text
	default:
		return u.text
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// coverage maps each query term longer than three characters to the packed
// chunks whose rendered text contains it.
func coverage(query string, chunks []core.PackedChunk) map[string][]string {
	out := map[string][]string{}
	for _, term := range core.QueryTerms(query) {
		if _, done := out[term]; done {
			continue
		}
		var ids []string
		for _, ch := range chunks {
			if strings.Contains(strings.ToLower(ch.RenderedText), term) {
				ids = append(ids, ch.ChunkID)
			}
		}
		if len(ids) > 0 {
			out[term] = ids
		}
	}
	return out
}
