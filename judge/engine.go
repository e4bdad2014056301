package judge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/svjt78/ragmesh/ai"
	"github.com/svjt78/ragmesh/core"
)

// ErrLLMRequired is returned when an Engine is built without an LLM.
var ErrLLMRequired = errors.New("LLM required")

const defaultPoolSize = 5

// Execution tiers. Tier A runs concurrently, tier B sequentially after it.
var (
	tierA = []string{
		core.CheckCitationCoverage,
		core.CheckRelevance,
		core.CheckToxicity,
		core.CheckPIILeakage,
		core.CheckBias,
	}
	tierB = []string{
		core.CheckGroundedness,
		core.CheckHallucination,
		core.CheckConsistency,
		core.CheckContradiction,
	}
)

// Order is the order in which check results are reported.
var Order = []string{
	core.CheckCitationCoverage,
	core.CheckGroundedness,
	core.CheckHallucination,
	core.CheckRelevance,
	core.CheckConsistency,
	core.CheckToxicity,
	core.CheckPIILeakage,
	core.CheckBias,
	core.CheckContradiction,
}

// CheckObserver receives every check result as soon as its tier finishes.
// Calls are made from the goroutine running Evaluate.
type CheckObserver func(result core.CheckResult, elapsed time.Duration)

// Engine evaluates answers against a JudgeProfile.
type Engine struct {
	checks map[string]Check
	pool   *ants.Pool
	logger *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine) error

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) error {
		if logger == nil {
			logger = slog.Default()
		}
		e.logger = logger
		return nil
	}
}

// WithPoolSize bounds how many tier A checks run at once. Defaults to 5.
func WithPoolSize(size int) Option {
	return func(e *Engine) error {
		if size < 1 {
			size = 1
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		if e.pool != nil {
			e.pool.Release()
		}
		e.pool = pool
		return nil
	}
}

// WithCheck replaces the built-in check of the same name.
func WithCheck(check Check) Option {
	return func(e *Engine) error {
		if _, ok := e.checks[check.Name()]; !ok {
			return fmt.Errorf("unknown check %q", check.Name())
		}
		e.checks[check.Name()] = check
		return nil
	}
}

// NewEngine creates an Engine whose model-graded checks use llm.
// Call Release when done.
func NewEngine(llm ai.LLM, opts ...Option) (*Engine, error) {
	if llm == nil {
		return nil, ErrLLMRequired
	}
	pool, err := ants.NewPool(defaultPoolSize)
	if err != nil {
		return nil, err
	}
	e := &Engine{
		checks: make(map[string]Check, len(Order)),
		pool:   pool,
		logger: slog.Default(),
	}
	for _, c := range DefaultChecks(llm) {
		e.checks[c.Name()] = c
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			e.Release()
			return nil, err
		}
	}
	e.logger = e.logger.With("component", "judge")
	return e, nil
}

// Release frees the worker pool.
func (e *Engine) Release() {
	if e.pool != nil {
		e.pool.Release()
	}
}

type timedResult struct {
	result  core.CheckResult
	elapsed time.Duration
}

// Evaluate runs every check configured in profile and compiles the report.
// A check that errors or panics is recorded with status ERROR and never
// affects its siblings. observe may be nil.
func (e *Engine) Evaluate(ctx context.Context, query string, pack *core.ContextPack, answer *core.Answer, profile core.JudgeProfile, observe CheckObserver) (*core.JudgeReport, error) {
	if answer == nil {
		return nil, errors.New("answer required")
	}
	in := Input{Query: query, Answer: answer.Text, Citations: answer.Citations}
	if pack != nil {
		in.Context = pack.ContextText
	}
	e.logger.Info("starting judge validation")

	results := make(map[string]timedResult, len(Order))

	// Tier A
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, name := range tierA {
		cfg, _ := profile.Check(name)
		if !cfg.Enabled {
			continue
		}
		wg.Add(1)
		task := func() {
			defer wg.Done()
			tr := e.run(ctx, name, cfg, in)
			mu.Lock()
			results[name] = tr
			mu.Unlock()
		}
		if err := e.pool.Submit(task); err != nil {
			e.logger.Warn("pool rejected check, running inline", "check", name, "err", err)
			task()
		}
	}
	wg.Wait()
	e.notify(tierA, results, observe)

	// Tier B
	for _, name := range tierB {
		cfg, _ := profile.Check(name)
		if !cfg.Enabled {
			continue
		}
		results[name] = e.run(ctx, name, cfg, in)
		e.notify([]string{name}, results, observe)
	}

	ordered := make([]core.CheckResult, 0, len(Order))
	for _, name := range Order {
		if tr, ok := results[name]; ok {
			ordered = append(ordered, tr.result)
			continue
		}
		cfg, _ := profile.Check(name)
		ordered = append(ordered, core.CheckResult{
			CheckName: name,
			Status:    core.CheckStatusSkipped,
			Score:     1.0,
			Threshold: cfg.Threshold,
			HardFail:  cfg.HardFail,
			Message:   "check disabled",
		})
	}

	report := compileReport(ordered, answer)
	e.logger.Info("judge validation complete",
		"decision", report.Decision,
		"overall_score", report.OverallScore,
		"violations", len(report.Violations))
	return report, nil
}

func (e *Engine) notify(names []string, results map[string]timedResult, observe CheckObserver) {
	if observe == nil {
		return
	}
	for _, name := range names {
		if tr, ok := results[name]; ok {
			observe(tr.result, tr.elapsed)
		}
	}
}

// run evaluates one check with fault isolation.
func (e *Engine) run(ctx context.Context, name string, cfg core.CheckConfig, in Input) (tr timedResult) {
	start := time.Now()
	result := core.CheckResult{
		CheckName: name,
		Threshold: cfg.Threshold,
		HardFail:  cfg.HardFail,
	}
	defer func() {
		if r := recover(); r != nil {
			result.Status = core.CheckStatusError
			result.Score = 0
			result.Details = map[string]any{"error": fmt.Sprint(r)}
			result.Message = fmt.Sprintf("Check failed with error: %v", r)
			e.logger.Error("check panicked", "check", name, "panic", r)
		}
		tr = timedResult{result: result, elapsed: time.Since(start)}
	}()

	in.Threshold = cfg.Threshold
	outcome, err := e.checks[name].Evaluate(ctx, in)
	if err != nil {
		err = fmt.Errorf("%w: %s: %w", core.ErrCheckEvaluation, name, err)
		e.logger.Error("check failed", "check", name, "err", err)
		result.Status = core.CheckStatusError
		result.Score = 0
		result.Details = map[string]any{"error": err.Error()}
		result.Message = fmt.Sprintf("Check failed with error: %v", err)
		return
	}

	result.Score = clamp(outcome.Score)
	result.Details = outcome.Details
	result.Message = outcome.Message
	result.Status = core.CheckStatusFail
	if result.Score >= cfg.Threshold {
		result.Status = core.CheckStatusPass
	}
	e.logger.Debug("check completed", "check", name, "status", result.Status, "score", result.Score)
	return
}
