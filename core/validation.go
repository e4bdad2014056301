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



package core

import (
	"fmt"
	"strings"
)

// ValidateChunk validates a Chunk according to domain rules.
//
// Validation rules:
//   - ChunkID and DocID must not be empty
//   - PageNo must be 1 or greater
//
// NOT validated (populated by ingestion):
//   - Vector
func ValidateChunk(chunk *Chunk) error {
	if chunk == nil {
		return fmt.Errorf("%w: chunk is nil", ErrInvalidChunk)
	}
	if chunk.ChunkID == "" {
		return fmt.Errorf("%w: chunk_id is required", ErrInvalidChunk)
	}
	if chunk.DocID == "" {
		return fmt.Errorf("%w: doc_id is required", ErrInvalidChunk)
	}
	if chunk.PageNo < 1 {
		return fmt.Errorf("%w: page_no must be >= 1, got %d", ErrInvalidChunk, chunk.PageNo)
	}
	return nil
}

// ValidateDocument validates a Document and each of its chunks.
// Chunks must belong to the document.
func ValidateDocument(doc *Document) error {
	if doc == nil {
		return fmt.Errorf("%w: document is nil", ErrInvalidDocument)
	}
	if doc.DocID == "" {
		return fmt.Errorf("%w: doc_id is required", ErrInvalidDocument)
	}
	if len(doc.Chunks) > 0 && len(doc.Pages) > 0 {
		return fmt.Errorf("%w: document %s has both chunks and pages", ErrInvalidDocument, doc.DocID)
	}
	for _, page := range doc.Pages {
		if page == nil {
			return fmt.Errorf("%w: page is nil", ErrInvalidDocument)
		}
		if page.PageNo < 1 {
			return fmt.Errorf("%w: page_no must be >= 1, got %d", ErrInvalidDocument, page.PageNo)
		}
	}
	for _, c := range doc.Chunks {
		if err := ValidateChunk(c); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidDocument, err)
		}
		if c.DocID != doc.DocID {
			return fmt.Errorf("%w: chunk %s belongs to %s", ErrInvalidDocument, c.ChunkID, c.DocID)
		}
	}
	return nil
}

// ValidateQuery rejects blank queries.
func ValidateQuery(query string) error {
	if strings.TrimSpace(query) == "" {
		return fmt.Errorf("%w: %w", ErrValidation, ErrEmptyQuery)
	}
	return nil
}

// ValidateFusionProfile enforces weights >= 0, k > 0 and top-k >= 1.
func ValidateFusionProfile(p FusionProfile) error {
	if p.VectorWeight < 0 || p.DocumentWeight < 0 || p.GraphWeight < 0 {
		return fmt.Errorf("%w: fusion weights must be >= 0", ErrInvalidProfile)
	}
	if p.RRFK < 1 {
		return fmt.Errorf("%w: rrf_k must be >= 1", ErrInvalidProfile)
	}
	if p.FinalTopK < 1 {
		return fmt.Errorf("%w: final_top_k must be >= 1", ErrInvalidProfile)
	}
	if p.MaxChunksPerDoc < 1 {
		return fmt.Errorf("%w: max_chunks_per_doc must be >= 1", ErrInvalidProfile)
	}
	if p.DedupThreshold < 0 || p.DedupThreshold > 1 {
		return fmt.Errorf("%w: dedup_threshold must be within [0,1]", ErrInvalidProfile)
	}
	return nil
}

// ValidateRetrievalProfile checks result sizes and hop limits.
func ValidateRetrievalProfile(p RetrievalProfile) error {
	if p.VectorK < 1 || p.DocK < 1 {
		return fmt.Errorf("%w: vector_k and doc_k must be >= 1", ErrInvalidProfile)
	}
	if p.VectorThreshold < 0 || p.VectorThreshold > 1 {
		return fmt.Errorf("%w: vector_threshold must be within [0,1]", ErrInvalidProfile)
	}
	if p.GraphMaxHops < 0 {
		return fmt.Errorf("%w: graph_max_hops must be >= 0", ErrInvalidProfile)
	}
	return nil
}

// ValidateContextProfile checks the token budget and citation format.
func ValidateContextProfile(p ContextProfile) error {
	if p.MaxContextTokens < 1 {
		return fmt.Errorf("%w: max_context_tokens must be >= 1", ErrInvalidProfile)
	}
	if p.ReserveTokensForQuery < 0 || p.ReserveTokensForInstructions < 0 {
		return fmt.Errorf("%w: token reserves must be >= 0", ErrInvalidProfile)
	}
	switch p.CitationFormat {
	case CitationFormatInline, CitationFormatDetailed:
	default:
		return fmt.Errorf("%w: unknown citation_format %q", ErrInvalidProfile, p.CitationFormat)
	}
	return nil
}

// ValidateJudgeProfile checks every threshold lies within [0,1].
func ValidateJudgeProfile(p JudgeProfile) error {
	for _, name := range []string{
		CheckCitationCoverage, CheckGroundedness, CheckHallucination,
		CheckRelevance, CheckConsistency, CheckToxicity,
		CheckPIILeakage, CheckBias, CheckContradiction,
	} {
		cfg, _ := p.Check(name)
		if cfg.Threshold < 0 || cfg.Threshold > 1 {
			return fmt.Errorf("%w: %s threshold must be within [0,1]", ErrInvalidProfile, name)
		}
	}
	return nil
}

// ValidateChatProfile checks compaction limits.
func ValidateChatProfile(p ChatProfile) error {
	if p.MaxHistoryTurns < 1 {
		return fmt.Errorf("%w: max_history_turns must be >= 1", ErrInvalidProfile)
	}
	if p.CompactionThresholdTokens < 1 {
		return fmt.Errorf("%w: compaction_threshold_tokens must be >= 1", ErrInvalidProfile)
	}
	if p.SummarizationMaxTokens < 1 {
		return fmt.Errorf("%w: summarization_max_tokens must be >= 1", ErrInvalidProfile)
	}
	return nil
}

// ValidateChunkingProfile requires a positive size and an overlap smaller
// than it.
func ValidateChunkingProfile(p ChunkingProfile) error {
	if p.ChunkSize < 1 {
		return fmt.Errorf("%w: chunk_size must be >= 1", ErrInvalidProfile)
	}
	if p.ChunkOverlap < 0 || p.ChunkOverlap >= p.ChunkSize {
		return fmt.Errorf("%w: chunk_overlap must be in [0, chunk_size)", ErrInvalidProfile)
	}
	if p.MaxChunksPerDoc < 0 {
		return fmt.Errorf("%w: max_chunks_per_doc must not be negative", ErrInvalidProfile)
	}
	return nil
}

// ValidateWorkflowProfile requires an id and at least one step.
func ValidateWorkflowProfile(p WorkflowProfile) error {
	if p.WorkflowID == "" {
		return fmt.Errorf("%w: workflow_id is required", ErrInvalidProfile)
	}
	if len(p.Steps) == 0 {
		return fmt.Errorf("%w: workflow %s has no steps", ErrInvalidProfile, p.WorkflowID)
	}
	return nil
}
