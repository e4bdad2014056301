// Package fusion merges the ranked lists of the retrieval modalities into a
// single candidate list.
//
// Engine applies weighted Reciprocal Rank Fusion: a chunk at 1-indexed rank
// r in a modality contributes weight/(k+r) to its fused score. The fused
// list is then thinned by a per-document cap, deduplicated on exact chunk
// text and truncated to the profile's final top-k.
//
// Reranker optionally reorders the fused list with one LLM call.
package fusion
