package core

import (
	"encoding/hex"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ContentHash returns a deterministic 64-bit BLAKE2b digest of text, hex encoded.
// Identical content always produces identical hashes.
func ContentHash(text string) string {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// Document is a source document together with its pre-split chunks.
type Document struct {
	DocID         string            `json:"doc_id" yaml:"doc_id"`
	Filename      string            `json:"filename" yaml:"filename"`
	DocType       string            `json:"doc_type,omitempty" yaml:"doc_type"`
	FormNumber    string            `json:"form_number,omitempty" yaml:"form_number"`
	EffectiveDate string            `json:"effective_date,omitempty" yaml:"effective_date"`
	State         string            `json:"state,omitempty" yaml:"state"`
	Metadata      map[string]string `json:"metadata,omitempty" yaml:"metadata"`
	CreatedAt     time.Time         `json:"created_at" yaml:"-"`
	IndexedAt     time.Time         `json:"indexed_at,omitempty" yaml:"-"`
	Chunks        []*Chunk          `json:"chunks,omitempty" yaml:"chunks"`
	Pages         []*Page           `json:"-" yaml:"pages"` // Raw page text, chunked at ingestion
}

// Page is the extracted text of one document page.
type Page struct {
	PageNo   int               `json:"page_no" yaml:"page_no"`
	Text     string            `json:"text" yaml:"text"`
	Metadata map[string]string `json:"metadata,omitempty" yaml:"metadata"`
}

// Chunk is a retrievable unit of document text.
type Chunk struct {
	ChunkID   string            `json:"chunk_id" yaml:"chunk_id"`
	DocID     string            `json:"doc_id" yaml:"doc_id"`
	Text      string            `json:"text" yaml:"text"`
	PageNo    int               `json:"page_no" yaml:"page_no"`
	CharStart int               `json:"char_start" yaml:"char_start"`
	CharEnd   int               `json:"char_end" yaml:"char_end"`
	Tokens    int               `json:"tokens" yaml:"tokens"`
	Metadata  map[string]string `json:"metadata,omitempty" yaml:"metadata"`
	Vector    []float32         `json:"vector,omitempty" yaml:"-"` // Embedding (populated by ingestion)
}

// Entity is a node of the knowledge graph.
type Entity struct {
	NodeID     string            `json:"node_id"`
	Label      string            `json:"label"`
	Type       string            `json:"node_type"`
	Properties map[string]string `json:"properties,omitempty"`
	ChunkIDs   []string          `json:"chunk_ids,omitempty"` // Chunks mentioning this entity
}

// Relationship is a directed edge of the knowledge graph.
type Relationship struct {
	Source           string            `json:"source"`
	Target           string            `json:"target"`
	Type             string            `json:"edge_type"`
	Properties       map[string]string `json:"properties,omitempty"`
	EvidenceChunkIDs []string          `json:"evidence_chunk_ids,omitempty"`
}

// Subgraph is the bounded-hop neighbourhood around a set of seed entities.
type Subgraph struct {
	Nodes []*Entity       `json:"nodes"`
	Edges []*Relationship `json:"edges"`
}

// ScoredChunk is one entry of a single modality's ranked result list.
type ScoredChunk struct {
	ChunkID   string            `json:"chunk_id"`
	DocID     string            `json:"doc_id,omitempty"`
	Score     float64           `json:"score"`
	Rank      int               `json:"rank"` // 1-indexed
	Text      string            `json:"text,omitempty"`
	EntityIDs []string          `json:"entity_ids,omitempty"` // Graph modality only
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// RetrievalBundle groups the three modality result lists of one run.
type RetrievalBundle struct {
	Query          string         `json:"query"`
	VectorResults  []*ScoredChunk `json:"vector_results"`
	KeywordResults []*ScoredChunk `json:"document_results"`
	GraphResults   []*ScoredChunk `json:"graph_results"`
	Subgraph       *Subgraph      `json:"subgraph,omitempty"`
}

// ModalityHit is a candidate's score and rank within one modality.
type ModalityHit struct {
	Score float64 `json:"score"`
	Rank  int     `json:"rank"`
}

// RetrievalCandidate is a fused candidate. Per-modality hits are nil when
// the chunk was absent from that modality.
type RetrievalCandidate struct {
	ChunkID    string            `json:"chunk_id"`
	DocID      string            `json:"doc_id,omitempty"`
	Text       string            `json:"text,omitempty"`
	Vector     *ModalityHit      `json:"vector,omitempty"`
	Keyword    *ModalityHit      `json:"document,omitempty"`
	Graph      *ModalityHit      `json:"graph,omitempty"`
	FusedScore float64           `json:"rrf_score"`
	FinalRank  int               `json:"final_rank"`
	EntityIDs  []string          `json:"entity_ids,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// PackedChunk is one rendered unit of a ContextPack.
type PackedChunk struct {
	ChunkID      string `json:"chunk_id"`
	DocID        string `json:"doc_id"`
	PageNo       int    `json:"page_no"`
	Rank         int    `json:"rank"`
	RenderedText string `json:"text"`
	Tokens       int    `json:"tokens"`
}

// ContextPack is the token-bounded, citation-formatted context handed to
// generation. It is never mutated after compilation.
type ContextPack struct {
	ContextText       string              `json:"context_text"`
	Chunks            []PackedChunk       `json:"chunks"`
	TokenBudget       int                 `json:"token_budget"`
	TokensUsed        int                 `json:"tokens_used"`
	Coverage          map[string][]string `json:"coverage"`
	RedactionsApplied []string            `json:"redactions_applied"`
}

// HasChunk reports whether chunkID was packed.
func (p *ContextPack) HasChunk(chunkID string) bool {
	for _, c := range p.Chunks {
		if c.ChunkID == chunkID {
			return true
		}
	}
	return false
}

// Citation ties an answer claim to a packed chunk.
type Citation struct {
	ChunkID string `json:"chunk_id"`
	DocID   string `json:"doc_id"`
	PageNo  int    `json:"page_no"`
	Quote   string `json:"quote"`
	Reason  string `json:"reason"`
}

// Answer is the structured output of generation.
type Answer struct {
	Text        string     `json:"answer"`
	Citations   []Citation `json:"citations"`
	Assumptions []string   `json:"assumptions"`
	Limitations []string   `json:"limitations"`
	Confidence  Confidence `json:"confidence"`
	TokensUsed  int        `json:"tokens_used"`
	Cost        float64    `json:"cost"`
}

// CheckResult is the outcome of one judge check.
type CheckResult struct {
	CheckName string         `json:"check_name"`
	Status    CheckStatus    `json:"status"`
	Score     float64        `json:"score"`
	Threshold float64        `json:"threshold"`
	HardFail  bool           `json:"hard_fail"`
	Details   map[string]any `json:"details,omitempty"`
	Message   string         `json:"message"`
}

// Violation is a failed check projected into a severity.
type Violation struct {
	CheckName   string   `json:"check"`
	Severity    Severity `json:"severity"`
	Message     string   `json:"message"`
	Remediation string   `json:"remediation"`
}

// JudgeReport aggregates every check result into a decision.
type JudgeReport struct {
	Decision             JudgeDecision       `json:"decision"`
	Checks               []CheckResult       `json:"checks"`
	Violations           []Violation         `json:"violations"`
	OverallScore         float64             `json:"overall_score"`
	Passed               bool                `json:"passed"`
	ClaimEvidenceMapping map[string][]string `json:"claim_evidence_mapping"`
}

// ChatTurn is one query/answer exchange of a session.
type ChatTurn struct {
	TurnNumber int       `json:"turn_number"` // 1-indexed, strictly increasing
	Query      string    `json:"query"`
	Answer     Answer    `json:"answer"`
	RunID      string    `json:"run_id"`
	Timestamp  time.Time `json:"timestamp"`
	Tokens     int       `json:"tokens"`
}

// ChatSession is the in-memory conversation state of one session.
type ChatSession struct {
	SessionID          string     `json:"session_id"`
	Turns              []ChatTurn `json:"turns"`
	Summary            string     `json:"summary,omitempty"`
	SummaryCoversTurns []int      `json:"summary_covers_turns"`
	TotalTurns         int        `json:"total_turns"`
	TotalTokens        int        `json:"total_tokens"`
	WorkflowID         string     `json:"workflow_id"`
	ChatProfileID      string     `json:"chat_profile_id"`
	CreatedAt          time.Time  `json:"created_at"`
	LastUpdated        time.Time  `json:"last_updated"`
}

// Event is one entry of a run's append-only event log.
type Event struct {
	RunID      string         `json:"run_id"`
	Type       EventType      `json:"event_type"`
	Step       string         `json:"step"`
	Timestamp  time.Time      `json:"timestamp"`
	DurationMs *int64         `json:"duration_ms,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
}
