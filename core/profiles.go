package core

// RetrievalProfile configures the three retrieval modalities.
type RetrievalProfile struct {
	Name                string   `json:"name" yaml:"name"`
	Description         string   `json:"description" yaml:"description"`
	VectorK             int      `json:"vector_k" yaml:"vector_k"`
	VectorThreshold     float64  `json:"vector_threshold" yaml:"vector_threshold"`
	DocK                int      `json:"doc_k" yaml:"doc_k"`
	DocBoostExactMatch  float64  `json:"doc_boost_exact_match" yaml:"doc_boost_exact_match"`
	DocBoostFormNumber  float64  `json:"doc_boost_form_number" yaml:"doc_boost_form_number"`
	DocBoostDefinedTerm float64  `json:"doc_boost_defined_term" yaml:"doc_boost_defined_term"`
	GraphMaxHops        int      `json:"graph_max_hops" yaml:"graph_max_hops"`
	GraphEntityTypes    []string `json:"graph_entity_types" yaml:"graph_entity_types"`
}

// DefaultRetrievalProfile returns the built-in retrieval profile.
func DefaultRetrievalProfile() RetrievalProfile {
	return RetrievalProfile{
		Name:                "default",
		Description:         "Balanced hybrid retrieval",
		VectorK:             10,
		VectorThreshold:     0.7,
		DocK:                10,
		DocBoostExactMatch:  1.5,
		DocBoostFormNumber:  1.5,
		DocBoostDefinedTerm: 1.5,
		GraphMaxHops:        2,
	}
}

// FusionProfile configures rank fusion, diversity and dedup.
type FusionProfile struct {
	Name                      string  `json:"name" yaml:"name"`
	VectorWeight              float64 `json:"vector_weight" yaml:"vector_weight"`
	DocumentWeight            float64 `json:"document_weight" yaml:"document_weight"`
	GraphWeight               float64 `json:"graph_weight" yaml:"graph_weight"`
	RRFK                      int     `json:"rrf_k" yaml:"rrf_k"`
	MaxChunksPerDoc           int     `json:"max_chunks_per_doc" yaml:"max_chunks_per_doc"`
	MinDistinctDocs           int     `json:"min_distinct_docs" yaml:"min_distinct_docs"`
	DedupThreshold            float64 `json:"dedup_threshold" yaml:"dedup_threshold"`
	ApplyDiversityConstraints bool    `json:"apply_diversity_constraints" yaml:"apply_diversity_constraints"`
	FinalTopK                 int     `json:"final_top_k" yaml:"final_top_k"`
}

// DefaultFusionProfile returns the built-in fusion profile.
func DefaultFusionProfile() FusionProfile {
	return FusionProfile{
		Name:                      "default",
		VectorWeight:              1.0,
		DocumentWeight:            1.0,
		GraphWeight:               1.0,
		RRFK:                      60,
		MaxChunksPerDoc:           3,
		MinDistinctDocs:           2,
		DedupThreshold:            0.95,
		ApplyDiversityConstraints: true,
		FinalTopK:                 20,
	}
}

// RerankProfile configures the optional LLM rerank pass.
type RerankProfile struct {
	MaxChunks      int `json:"max_chunks" yaml:"max_chunks"`
	ChunkCharLimit int `json:"chunk_char_limit" yaml:"chunk_char_limit"`
}

// DefaultRerankProfile returns the built-in rerank profile.
func DefaultRerankProfile() RerankProfile {
	return RerankProfile{MaxChunks: 20, ChunkCharLimit: 500}
}

// ContextProfile configures context packing.
type ContextProfile struct {
	Name                         string         `json:"name" yaml:"name"`
	MaxContextTokens             int            `json:"max_context_tokens" yaml:"max_context_tokens"`
	CitationFormat               CitationFormat `json:"citation_format" yaml:"citation_format"`
	IncludePageNumbers           bool           `json:"include_page_numbers" yaml:"include_page_numbers"`
	IncludeDocMetadata           bool           `json:"include_doc_metadata" yaml:"include_doc_metadata"`
	RedactPII                    bool           `json:"redact_pii" yaml:"redact_pii"`
	ReserveTokensForQuery        int            `json:"reserve_tokens_for_query" yaml:"reserve_tokens_for_query"`
	ReserveTokensForInstructions int            `json:"reserve_tokens_for_instructions" yaml:"reserve_tokens_for_instructions"`
}

// DefaultContextProfile returns the built-in context profile.
func DefaultContextProfile() ContextProfile {
	return ContextProfile{
		Name:               "default",
		MaxContextTokens:   3000,
		CitationFormat:     CitationFormatInline,
		IncludePageNumbers: true,
		IncludeDocMetadata: true,
		RedactPII:          true,
	}
}

// Budget returns the tokens available for packed chunks.
func (p ContextProfile) Budget() int {
	b := p.MaxContextTokens - p.ReserveTokensForQuery - p.ReserveTokensForInstructions
	if b < 0 {
		return 0
	}
	return b
}

// CheckConfig configures one judge check.
type CheckConfig struct {
	Enabled   bool    `json:"enabled" yaml:"enabled"`
	Threshold float64 `json:"threshold" yaml:"threshold"`
	HardFail  bool    `json:"hard_fail" yaml:"hard_fail"`
}

// JudgeProfile configures all nine checks.
type JudgeProfile struct {
	Name             string      `json:"name" yaml:"name"`
	CitationCoverage CheckConfig `json:"citation_coverage" yaml:"citation_coverage"`
	Groundedness     CheckConfig `json:"groundedness" yaml:"groundedness"`
	Hallucination    CheckConfig `json:"hallucination" yaml:"hallucination"`
	Relevance        CheckConfig `json:"relevance" yaml:"relevance"`
	Consistency      CheckConfig `json:"consistency" yaml:"consistency"`
	Toxicity         CheckConfig `json:"toxicity" yaml:"toxicity"`
	PIILeakage       CheckConfig `json:"pii_leakage" yaml:"pii_leakage"`
	Bias             CheckConfig `json:"bias" yaml:"bias"`
	Contradiction    CheckConfig `json:"contradiction" yaml:"contradiction"`
}

// Check returns the configuration for a named check.
func (p JudgeProfile) Check(name string) (CheckConfig, bool) {
	switch name {
	case CheckCitationCoverage:
		return p.CitationCoverage, true
	case CheckGroundedness:
		return p.Groundedness, true
	case CheckHallucination:
		return p.Hallucination, true
	case CheckRelevance:
		return p.Relevance, true
	case CheckConsistency:
		return p.Consistency, true
	case CheckToxicity:
		return p.Toxicity, true
	case CheckPIILeakage:
		return p.PIILeakage, true
	case CheckBias:
		return p.Bias, true
	case CheckContradiction:
		return p.Contradiction, true
	}
	return CheckConfig{}, false
}

// DefaultJudgeProfile returns the built-in judge profile.
func DefaultJudgeProfile() JudgeProfile {
	return JudgeProfile{
		Name:             "default",
		CitationCoverage: CheckConfig{Enabled: true, Threshold: 0.8, HardFail: true},
		Groundedness:     CheckConfig{Enabled: true, Threshold: 0.7, HardFail: true},
		Hallucination:    CheckConfig{Enabled: true, Threshold: 0.7, HardFail: true},
		Relevance:        CheckConfig{Enabled: true, Threshold: 0.6},
		Consistency:      CheckConfig{Enabled: true, Threshold: 0.7},
		Toxicity:         CheckConfig{Enabled: true, Threshold: 0.9, HardFail: true},
		PIILeakage:       CheckConfig{Enabled: true, Threshold: 1.0, HardFail: true},
		Bias:             CheckConfig{Enabled: true, Threshold: 0.8},
		Contradiction:    CheckConfig{Enabled: true, Threshold: 0.8},
	}
}

// ChatProfile configures conversational history and compaction.
type ChatProfile struct {
	Name                      string `json:"name" yaml:"name"`
	Description               string `json:"description" yaml:"description"`
	CompactionThresholdTokens int    `json:"compaction_threshold_tokens" yaml:"compaction_threshold_tokens"`
	MaxHistoryTurns           int    `json:"max_history_turns" yaml:"max_history_turns"`
	SummarizationMaxTokens    int    `json:"summarization_max_tokens" yaml:"summarization_max_tokens"`
	IncludeSummaryInContext   bool   `json:"include_summary_in_context" yaml:"include_summary_in_context"`
	ReserveTokensForHistory   int    `json:"reserve_tokens_for_history" yaml:"reserve_tokens_for_history"`
}

// DefaultChatProfile returns the built-in chat profile.
func DefaultChatProfile() ChatProfile {
	return ChatProfile{
		Name:                      "default",
		Description:               "Chat configuration",
		CompactionThresholdTokens: 2000,
		MaxHistoryTurns:           10,
		SummarizationMaxTokens:    500,
		IncludeSummaryInContext:   true,
		ReserveTokensForHistory:   800,
	}
}

// ChunkingProfile configures how page text is split into chunks. Sizes are
// in tokens.
type ChunkingProfile struct {
	Name            string `json:"name" yaml:"name"`
	Description     string `json:"description" yaml:"description"`
	ChunkSize       int    `json:"chunk_size" yaml:"chunk_size"`
	ChunkOverlap    int    `json:"chunk_overlap" yaml:"chunk_overlap"`
	PageAware       bool   `json:"page_aware" yaml:"page_aware"`
	SentenceAware   bool   `json:"sentence_aware" yaml:"sentence_aware"`
	MaxChunksPerDoc int    `json:"max_chunks_per_doc" yaml:"max_chunks_per_doc"` // 0 means unlimited
}

// DefaultChunkingProfile returns the built-in chunking profile.
func DefaultChunkingProfile() ChunkingProfile {
	return ChunkingProfile{
		Name:          "default",
		Description:   "Page and sentence aware chunking",
		ChunkSize:     256,
		ChunkOverlap:  48,
		PageAware:     true,
		SentenceAware: true,
	}
}

// WorkflowProfile selects pipeline steps and behaviour flags.
type WorkflowProfile struct {
	WorkflowID           string        `json:"workflow_id" yaml:"workflow_id"`
	Description          string        `json:"description" yaml:"description"`
	Steps                []string      `json:"steps" yaml:"steps"`
	EnableGraphRetrieval bool          `json:"enable_graph_retrieval" yaml:"enable_graph_retrieval"`
	EnableReranking      bool          `json:"enable_reranking" yaml:"enable_reranking"`
	FailOnJudgeBlock     bool          `json:"fail_on_judge_block" yaml:"fail_on_judge_block"`
	Rerank               RerankProfile `json:"rerank" yaml:"rerank"`
}

// HasStep reports whether the workflow includes step.
func (w WorkflowProfile) HasStep(step string) bool {
	for _, s := range w.Steps {
		if s == step {
			return true
		}
	}
	return false
}

// DefaultWorkflowProfile returns the built-in workflow.
func DefaultWorkflowProfile() WorkflowProfile {
	return WorkflowProfile{
		WorkflowID:           "default",
		Description:          "Full pipeline with judge validation",
		Steps:                []string{"retrieval", "fusion", "context_compilation", "generation", WorkflowStepJudge},
		EnableGraphRetrieval: true,
		FailOnJudgeBlock:     true,
		Rerank:               DefaultRerankProfile(),
	}
}

// ProfileSet is the fully resolved configuration of one run.
type ProfileSet struct {
	Workflow  WorkflowProfile  `json:"workflow"`
	Retrieval RetrievalProfile `json:"retrieval"`
	Fusion    FusionProfile    `json:"fusion"`
	Context   ContextProfile   `json:"context"`
	Judge     JudgeProfile     `json:"judge"`
	Chat      *ChatProfile     `json:"chat,omitempty"`
}
