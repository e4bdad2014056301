package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/svjt78/ragmesh/ai"
	"github.com/svjt78/ragmesh/chat"
	"github.com/svjt78/ragmesh/compiler"
	"github.com/svjt78/ragmesh/config"
	"github.com/svjt78/ragmesh/core"
	"github.com/svjt78/ragmesh/fusion"
	"github.com/svjt78/ragmesh/generation"
	"github.com/svjt78/ragmesh/judge"
	"github.com/svjt78/ragmesh/retrieval"
	"github.com/svjt78/ragmesh/storage"
)

var (
	ErrRegistryRequired  = errors.New("profile registry is required")
	ErrRunStoreRequired  = errors.New("run store is required")
	ErrRetrieverRequired = errors.New("retriever is required")
	ErrFusionRequired    = errors.New("fusion engine is required")
	ErrCompilerRequired  = errors.New("context compiler is required")
	ErrGeneratorRequired = errors.New("generator is required")
	ErrJudgeRequired     = errors.New("judge engine is required")
	ErrChatRequired      = errors.New("chat manager is required")
	ErrTokenizerRequired = errors.New("tokenizer is required")
)

// Components are the collaborators a run needs. Reranker is optional; when
// it is nil workflows that enable reranking keep the fused order.
type Components struct {
	Registry  *config.Registry
	Runs      storage.RunStore
	Retriever *retrieval.Retriever
	Fusion    *fusion.Engine
	Reranker  *fusion.Reranker
	Compiler  *compiler.Compiler
	Generator *generation.Generator
	Judge     *judge.Engine
	Chat      *chat.Manager
	Tokenizer ai.Tokenizer
}

func (c Components) validate() error {
	switch {
	case c.Registry == nil:
		return ErrRegistryRequired
	case c.Runs == nil:
		return ErrRunStoreRequired
	case c.Retriever == nil:
		return ErrRetrieverRequired
	case c.Fusion == nil:
		return ErrFusionRequired
	case c.Compiler == nil:
		return ErrCompilerRequired
	case c.Generator == nil:
		return ErrGeneratorRequired
	case c.Judge == nil:
		return ErrJudgeRequired
	case c.Chat == nil:
		return ErrChatRequired
	case c.Tokenizer == nil:
		return ErrTokenizerRequired
	}
	return nil
}

// Orchestrator executes runs. It is safe for concurrent use; runs share
// nothing but the chat manager, which serializes per session.
type Orchestrator struct {
	Components
	logger *slog.Logger
	now    func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator) error

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) error {
		if logger != nil {
			o.logger = logger
		}
		return nil
	}
}

// New creates an orchestrator over c.
func New(c Components, opts ...Option) (*Orchestrator, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	o := &Orchestrator{
		Components: c,
		logger:     slog.Default(),
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	o.logger = o.logger.With("component", "orchestrator")
	return o, nil
}

// run carries the state of one execution.
type run struct {
	id       string
	req      Request
	profiles *core.ProfileSet
	result   *Result
	logger   *slog.Logger
}

// Execute runs the pipeline for req. Invalid requests are rejected before a
// run is created and return a nil result. Once a run exists, a stage failure
// returns both the failed result and a *core.StageError.
func (o *Orchestrator) Execute(ctx context.Context, req Request) (*Result, error) {
	if req.Mode == "" {
		req.Mode = core.ModeQuery
	}
	if req.Mode != core.ModeQuery && req.Mode != core.ModeChat {
		return nil, fmt.Errorf("%w: unknown mode %q", core.ErrValidation, req.Mode)
	}
	if err := core.ValidateQuery(req.Query); err != nil {
		return nil, err
	}
	profiles, err := o.Registry.Resolve(req.Profiles, req.Mode == core.ModeChat)
	if err != nil {
		return nil, err
	}

	r := &run{
		id:       uuid.NewString(),
		req:      req,
		profiles: profiles,
	}
	r.result = &Result{RunID: r.id}
	r.logger = o.logger.With("run_id", r.id)

	if err := o.Runs.CreateRun(ctx, r.id); err != nil {
		return nil, fmt.Errorf("creating run: %w", err)
	}
	snapshot := ConfigSnapshot{
		RunID:     r.id,
		Query:     req.Query,
		Mode:      req.Mode,
		IDs:       req.Profiles,
		Profiles:  profiles,
		Filter:    req.Filter,
		CreatedAt: o.now(),
	}
	if err := o.Runs.SaveArtifact(ctx, r.id, ArtifactConfigSnapshot, snapshot); err != nil {
		return nil, fmt.Errorf("saving config snapshot: %w", err)
	}
	o.emit(ctx, r, core.EventRunStarted, "", nil, map[string]any{
		"query":       req.Query,
		"mode":        string(req.Mode),
		"workflow_id": profiles.Workflow.WorkflowID,
	})
	r.logger.Info("run started", "mode", req.Mode, "workflow", profiles.Workflow.WorkflowID)

	if req.Mode == core.ModeChat {
		if done := o.openSession(ctx, r); done {
			return r.result, nil
		}
	}

	if err := o.pipeline(ctx, r); err != nil {
		return o.fail(ctx, r, err)
	}
	return r.result, nil
}

// openSession resolves the chat session. It reports true when the query
// ended the conversation and the run is already terminated.
func (o *Orchestrator) openSession(ctx context.Context, r *run) bool {
	workflowID := r.profiles.Workflow.WorkflowID
	chatProfileID := r.req.Profiles.Chat
	if chatProfileID == "" {
		chatProfileID = config.DefaultProfileID
	}

	if chat.IsQuitCommand(r.req.Query) {
		sessionID := r.req.SessionID
		if sessionID != "" {
			o.Chat.DeleteSession(sessionID)
			o.emit(ctx, r, core.EventChatSessionTerminated, StageChat, nil, map[string]any{
				"session_id": sessionID,
			})
		}
		o.emit(ctx, r, core.EventRunTerminated, StageChat, nil, map[string]any{
			"reason": "user requested termination",
		})
		r.result.Status = core.RunStatusTerminated
		r.result.SessionID = sessionID
		r.logger.Info("chat session terminated", "session_id", sessionID)
		return true
	}

	session, created := o.Chat.ResolveSession(r.req.SessionID, workflowID, chatProfileID)
	r.result.SessionID = session.SessionID
	if created {
		o.emit(ctx, r, core.EventChatSessionCreated, StageChat, nil, map[string]any{
			"session_id":      session.SessionID,
			"workflow_id":     workflowID,
			"chat_profile_id": chatProfileID,
		})
	}
	return false
}

func (o *Orchestrator) pipeline(ctx context.Context, r *run) error {
	workflow := r.profiles.Workflow

	bundle, err := o.retrieve(ctx, r)
	if err != nil {
		return core.NewStageError(StageRetrieval, err)
	}

	candidates, err := o.fuse(ctx, r, bundle)
	if err != nil {
		return core.NewStageError(StageFusion, err)
	}

	history, reserved, err := o.history(ctx, r)
	if err != nil {
		return core.NewStageError(StageChat, err)
	}

	pack, err := o.compile(ctx, r, candidates, reserved)
	if err != nil {
		return core.NewStageError(StageContext, err)
	}

	answer, err := o.generate(ctx, r, pack, history)
	if err != nil {
		return core.NewStageError(StageGeneration, err)
	}
	r.result.Answer = answer

	if !workflow.HasStep(core.WorkflowStepJudge) {
		r.result.Decision = DecisionSkipped
		return o.complete(ctx, r)
	}

	report, err := o.validate(ctx, r, pack, answer)
	if err != nil {
		return core.NewStageError(StageJudge, err)
	}
	r.result.JudgeReport = report
	r.result.Decision = report.Decision

	if report.Decision == core.DecisionFailBlocked {
		if workflow.FailOnJudgeBlock {
			r.result.Answer = nil
		}
		r.result.Status = core.RunStatusBlocked
		o.emit(ctx, r, core.EventRunBlocked, StageJudge, nil, map[string]any{
			"decision":   string(report.Decision),
			"violations": report.Violations,
		})
		r.logger.Warn("run blocked", "violations", len(report.Violations))
		return nil
	}
	return o.complete(ctx, r)
}

func (o *Orchestrator) retrieve(ctx context.Context, r *run) (*core.RetrievalBundle, error) {
	o.emit(ctx, r, core.EventRetrievalStarted, StageRetrieval, nil, map[string]any{
		"query": r.req.Query,
	})
	bundle, err := o.Retriever.Retrieve(ctx, retrieval.Request{
		Query:       r.req.Query,
		Profile:     r.profiles.Retrieval,
		Filter:      r.req.Filter,
		EnableGraph: r.profiles.Workflow.EnableGraphRetrieval,
	}, &runMonitor{o: o, ctx: ctx, r: r})
	if err != nil {
		return nil, err
	}
	if err := o.Runs.SaveArtifact(ctx, r.id, ArtifactRetrievalBundle, bundle); err != nil {
		return nil, err
	}
	return bundle, nil
}

func (o *Orchestrator) fuse(ctx context.Context, r *run, bundle *core.RetrievalBundle) ([]*core.RetrievalCandidate, error) {
	start := time.Now()
	fused := o.Fusion.Fuse(bundle.VectorResults, bundle.KeywordResults, bundle.GraphResults, r.profiles.Fusion)
	candidates := fused.Candidates

	reranked := false
	if r.profiles.Workflow.EnableReranking && o.Reranker != nil && len(candidates) > 1 {
		ordered, err := o.Reranker.Rerank(ctx, r.req.Query, candidates, r.profiles.Workflow.Rerank)
		if err != nil {
			r.logger.Warn("reranking failed, keeping fused order", "error", err)
		} else {
			candidates = ordered
			reranked = true
		}
	}

	artifact := FusedResults{Candidates: candidates, Stats: fused.Stats, Reranked: reranked}
	if err := o.Runs.SaveArtifact(ctx, r.id, ArtifactFusedResults, artifact); err != nil {
		return nil, err
	}
	o.emit(ctx, r, core.EventFusionCompleted, StageFusion, since(start), map[string]any{
		"unique_candidates": fused.Stats.Unique,
		"after_diversity":   fused.Stats.AfterDiversity,
		"after_dedup":       fused.Stats.AfterDedup,
		"final_count":       fused.Stats.Final,
		"distinct_docs":     fused.Stats.DistinctDocs,
		"low_diversity":     fused.Stats.LowDiversity,
		"reranked":          reranked,
	})
	return candidates, nil
}

// history compacts the session if needed and returns the formatted history
// with the number of tokens to reserve for it.
func (o *Orchestrator) history(ctx context.Context, r *run) (string, int, error) {
	if r.req.Mode != core.ModeChat {
		return "", 0, nil
	}
	profile := *r.profiles.Chat
	sessionID := r.result.SessionID

	compaction, err := o.Chat.CheckAndCompact(ctx, sessionID, profile)
	if err != nil {
		return "", 0, err
	}
	if compaction.Compacted {
		r.result.HistoryCompacted = true
		data := map[string]any{
			"session_id":    sessionID,
			"removed_turns": compaction.RemovedTurns,
			"kept_turns":    compaction.KeptTurns,
			"summarized":    compaction.Summarized,
		}
		if compaction.Err != nil {
			data["error"] = compaction.Err.Error()
		}
		o.emit(ctx, r, core.EventChatCompacted, StageChat, nil, data)
	}

	text, tokens := o.Chat.FormattedHistory(sessionID, profile)
	return text, min(tokens, profile.ReserveTokensForHistory), nil
}

func (o *Orchestrator) compile(ctx context.Context, r *run, candidates []*core.RetrievalCandidate, reserved int) (*core.ContextPack, error) {
	start := time.Now()
	pack, err := o.Compiler.Compile(ctx, candidates, r.req.Query, r.profiles.Context, reserved)
	if err != nil {
		return nil, err
	}
	if err := o.Runs.SaveArtifact(ctx, r.id, ArtifactContextPack, pack); err != nil {
		return nil, err
	}
	o.emit(ctx, r, core.EventContextCompiled, StageContext, since(start), map[string]any{
		"chunks":             len(pack.Chunks),
		"tokens_used":        pack.TokensUsed,
		"token_budget":       pack.TokenBudget,
		"history_reserved":   reserved,
		"redactions_applied": pack.RedactionsApplied,
	})
	return pack, nil
}

func (o *Orchestrator) generate(ctx context.Context, r *run, pack *core.ContextPack, history string) (*core.Answer, error) {
	start := time.Now()
	answer, err := o.Generator.Generate(ctx, r.req.Query, pack, history)
	if err != nil {
		return nil, err
	}
	if err := o.Runs.SaveArtifact(ctx, r.id, ArtifactAnswer, answer); err != nil {
		return nil, err
	}
	o.emit(ctx, r, core.EventGenerationCompleted, StageGeneration, since(start), map[string]any{
		"citations":   len(answer.Citations),
		"confidence":  string(answer.Confidence),
		"tokens_used": answer.TokensUsed,
	})
	return answer, nil
}

func (o *Orchestrator) validate(ctx context.Context, r *run, pack *core.ContextPack, answer *core.Answer) (*core.JudgeReport, error) {
	start := time.Now()
	o.emit(ctx, r, core.EventJudgeStarted, StageJudge, nil, nil)
	report, err := o.Judge.Evaluate(ctx, r.req.Query, pack, answer, r.profiles.Judge,
		func(result core.CheckResult, elapsed time.Duration) {
			o.emit(ctx, r, core.EventJudgeCheckCompleted, StageJudge, &elapsed, map[string]any{
				"check_name": result.CheckName,
				"status":     string(result.Status),
				"score":      result.Score,
				"threshold":  result.Threshold,
			})
		})
	if err != nil {
		return nil, err
	}
	if err := o.Runs.SaveArtifact(ctx, r.id, ArtifactJudgeReport, report); err != nil {
		return nil, err
	}
	o.emit(ctx, r, core.EventJudgeCompleted, StageJudge, since(start), map[string]any{
		"decision":      string(report.Decision),
		"overall_score": report.OverallScore,
		"violations":    len(report.Violations),
	})
	return report, nil
}

// complete records the chat turn, if any, and ends the run successfully.
func (o *Orchestrator) complete(ctx context.Context, r *run) error {
	if r.req.Mode == core.ModeChat && r.result.Answer != nil {
		answer := r.result.Answer
		tokens := o.Tokenizer.CountTokens(fmt.Sprintf("User: %s\nAssistant: %s", r.req.Query, answer.Text))
		turn, err := o.Chat.AddTurn(r.result.SessionID, r.req.Query, *answer, r.id, tokens)
		if err != nil {
			return core.NewStageError(StageChat, err)
		}
		r.result.TurnNumber = turn
		o.emit(ctx, r, core.EventChatTurnAdded, StageChat, nil, map[string]any{
			"session_id":  r.result.SessionID,
			"turn_number": turn,
			"tokens":      tokens,
		})
	}
	r.result.Status = core.RunStatusCompleted
	o.emit(ctx, r, core.EventRunCompleted, "", nil, map[string]any{
		"decision": string(r.result.Decision),
	})
	r.logger.Info("run completed", "decision", r.result.Decision)
	return nil
}

func (o *Orchestrator) fail(ctx context.Context, r *run, err error) (*Result, error) {
	stage := "unknown"
	var stageErr *core.StageError
	if errors.As(err, &stageErr) {
		stage = stageErr.Stage
	} else {
		stageErr = core.NewStageError(stage, err)
	}
	r.result.Status = core.RunStatusFailed
	r.result.Error = stageErr.Err.Error()
	// The failure event must land even when the caller's context is gone.
	o.emit(context.WithoutCancel(ctx), r, core.EventRunFailed, stage, nil, map[string]any{
		"error": r.result.Error,
		"stage": stage,
	})
	r.logger.Error("run failed", "stage", stage, "error", stageErr.Err)
	return r.result, stageErr
}

// emit appends an event. A failed append is logged but never fails the run.
func (o *Orchestrator) emit(ctx context.Context, r *run, typ core.EventType, step string, elapsed *time.Duration, data map[string]any) {
	event := &core.Event{
		RunID:     r.id,
		Type:      typ,
		Step:      step,
		Timestamp: o.now(),
		Data:      data,
	}
	if elapsed != nil {
		ms := elapsed.Milliseconds()
		event.DurationMs = &ms
	}
	if err := o.Runs.AppendEvent(ctx, event); err != nil {
		r.logger.Warn("failed to append event", "event_type", typ, "error", err)
	}
}

func since(start time.Time) *time.Duration {
	d := time.Since(start)
	return &d
}

// runMonitor turns retrieval progress into run events.
type runMonitor struct {
	o   *Orchestrator
	ctx context.Context
	r   *run
}

var _ retrieval.Monitor = (*runMonitor)(nil)

func (m *runMonitor) Start(string) {}

func (m *runMonitor) AfterVectorSearch(results []*core.ScoredChunk, elapsed time.Duration) {
	m.o.emit(m.ctx, m.r, core.EventVectorSearchCompleted, "vector_search", &elapsed, map[string]any{
		"results": len(results),
	})
}

func (m *runMonitor) AfterKeywordSearch(results []*core.ScoredChunk, elapsed time.Duration) {
	m.o.emit(m.ctx, m.r, core.EventDocumentSearchCompleted, "doc_search", &elapsed, map[string]any{
		"results": len(results),
	})
}

func (m *runMonitor) AfterGraphSearch(results []*core.ScoredChunk, subgraph *core.Subgraph, elapsed time.Duration) {
	data := map[string]any{"results": len(results)}
	if subgraph != nil {
		data["nodes"] = len(subgraph.Nodes)
		data["edges"] = len(subgraph.Edges)
	}
	m.o.emit(m.ctx, m.r, core.EventGraphSearchCompleted, "graph_search", &elapsed, data)
}

func (m *runMonitor) Finish(*core.RetrievalBundle) {}
