package orchestrator

import (
	"time"

	"github.com/svjt78/ragmesh/config"
	"github.com/svjt78/ragmesh/core"
	"github.com/svjt78/ragmesh/fusion"
	"github.com/svjt78/ragmesh/storage"
)

// Artifact names.
const (
	ArtifactConfigSnapshot  = "config_snapshot"
	ArtifactRetrievalBundle = "retrieval_bundle"
	ArtifactFusedResults    = "fused_results"
	ArtifactContextPack     = "context_pack"
	ArtifactAnswer          = "answer"
	ArtifactJudgeReport     = "judge_report"
)

// Artifacts lists every artifact a completed run may hold, in stage order.
var Artifacts = []string{
	ArtifactConfigSnapshot,
	ArtifactRetrievalBundle,
	ArtifactFusedResults,
	ArtifactContextPack,
	ArtifactAnswer,
	ArtifactJudgeReport,
}

// Stage names, as recorded on failures.
const (
	StageRetrieval  = "retrieval"
	StageFusion     = "fusion"
	StageContext    = "context_compilation"
	StageGeneration = "generation"
	StageJudge      = core.WorkflowStepJudge
	StageChat       = "chat"
)

// DecisionSkipped is reported when the workflow has no judge step.
const DecisionSkipped core.JudgeDecision = "SKIPPED"

// Request describes one run.
type Request struct {
	Query    string
	Profiles config.ProfileIDs
	Filter   *storage.ChunkFilter
	Mode     core.Mode

	// SessionID continues a conversation in chat mode. Empty starts one.
	SessionID string
}

// Result is the outcome of a run.
type Result struct {
	RunID            string             `json:"run_id"`
	Status           core.RunStatus     `json:"status"`
	Decision         core.JudgeDecision `json:"decision,omitempty"`
	Answer           *core.Answer       `json:"answer,omitempty"`
	JudgeReport      *core.JudgeReport  `json:"judge_report,omitempty"`
	Error            string             `json:"error,omitempty"`
	SessionID        string             `json:"session_id,omitempty"`
	TurnNumber       int                `json:"turn_number,omitempty"`
	HistoryCompacted bool               `json:"history_compacted,omitempty"`
}

// ConfigSnapshot is saved as the first artifact of every run.
type ConfigSnapshot struct {
	RunID     string               `json:"run_id"`
	Query     string               `json:"query"`
	Mode      core.Mode            `json:"mode"`
	IDs       config.ProfileIDs    `json:"profile_ids"`
	Profiles  *core.ProfileSet     `json:"profiles"`
	Filter    *storage.ChunkFilter `json:"doc_filter,omitempty"`
	CreatedAt time.Time            `json:"created_at"`
}

// FusedResults is the fused_results artifact.
type FusedResults struct {
	Candidates []*core.RetrievalCandidate `json:"candidates"`
	Stats      fusion.Stats               `json:"stats"`
	Reranked   bool                       `json:"reranked"`
}

// RunSummary is one entry of ListRuns.
type RunSummary struct {
	RunID     string         `json:"run_id"`
	Status    core.RunStatus `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
}
