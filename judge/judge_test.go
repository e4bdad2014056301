package judge

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/svjt78/ragmesh/ai"
	"github.com/svjt78/ragmesh/ai/mock"
	"github.com/svjt78/ragmesh/core"
)

// promptPrefixes identifies which check issued a grading prompt.
var promptPrefixes = map[string]string{
	"Analyze if the answer's claims are grounded":  core.CheckGroundedness,
	"Detect hallucinations":                        core.CheckHallucination,
	"Evaluate if the answer directly addresses":    core.CheckRelevance,
	"Check if the answer is internally consistent": core.CheckConsistency,
	"Check if the answer contains toxic":           core.CheckToxicity,
	"Check if the answer contains biased":          core.CheckBias,
	"Check if the answer contradicts the provided": core.CheckContradiction,
}

var healthyReplies = map[string]string{
	core.CheckGroundedness:  `{"grounded_claims": ["burst pipes are covered"], "ungrounded_claims": [], "overall_score": 0.95}`,
	core.CheckHallucination: `{"hallucinations": [], "hallucination_score": 0.2}`,
	core.CheckRelevance:     `{"relevance_score": 0.9, "explanation": "on topic"}`,
	core.CheckConsistency:   `{"contradictions": [], "consistency_score": 0.1}`,
	core.CheckToxicity:      `{"toxic_elements": [], "toxicity_score": 0.0}`,
	core.CheckBias:          `{"biased_statements": [], "bias_score": 0.0}`,
	core.CheckContradiction: `{"contradictions": [], "contradiction_score": 0.0}`,
}

// scriptedLLM answers each grading prompt from replies, keyed by check name.
// A missing reply is returned as an error.
func scriptedLLM(replies map[string]string) *mock.MockLLM {
	return mock.NewMockLLM().WithGenerateFunc(func(_ context.Context, req ai.GenerateRequest) (*ai.GenerateResponse, error) {
		for prefix, check := range promptPrefixes {
			if strings.HasPrefix(req.Prompt, prefix) {
				reply, ok := replies[check]
				if !ok {
					return nil, errors.New(check + " grader unavailable")
				}
				return &ai.GenerateResponse{Content: reply}, nil
			}
		}
		return nil, errors.New("unrecognised prompt")
	})
}

func withReplies(overrides map[string]string) map[string]string {
	out := make(map[string]string, len(healthyReplies))
	for k, v := range healthyReplies {
		out[k] = v
	}
	for k, v := range overrides {
		if v == "" {
			delete(out, k)
			continue
		}
		out[k] = v
	}
	return out
}

func newTestEngine(t *testing.T, llm ai.LLM, opts ...Option) *Engine {
	t.Helper()
	e, err := NewEngine(llm, opts...)
	require.NoError(t, err)
	t.Cleanup(e.Release)
	return e
}

func citedAnswer() *core.Answer {
	return &core.Answer{
		Text:      "Burst pipes are covered [1].",
		Citations: []core.Citation{{ChunkID: "c1", DocID: "ho3", PageNo: 3}},
	}
}

func testPack() *core.ContextPack {
	return &core.ContextPack{ContextText: "[1] (Page 3) Water damage from burst pipes is covered."}
}

func resultFor(t *testing.T, report *core.JudgeReport, name string) core.CheckResult {
	t.Helper()
	for _, r := range report.Checks {
		if r.CheckName == name {
			return r
		}
	}
	t.Fatalf("no result for %s", name)
	return core.CheckResult{}
}

func TestCitationCoverage(t *testing.T) {
	tests := []struct {
		name   string
		answer string
		want   float64
	}{
		{"all cited", "Burst pipes are covered [1]. Floods are excluded [2]!", 1.0},
		{"partially cited", "Burst pipes are covered [1]. Floods are excluded. Call us [2]?", 2.0 / 3.0},
		{"no markers", "Burst pipes are covered. Floods are excluded.", 0.0},
		{"empty answer", "", 0.0},
		{"non numeric marker", "Covered [a].", 0.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := citationCoverage{}.Evaluate(context.Background(), Input{Answer: tt.answer})
			require.NoError(t, err)
			assert.InDelta(t, tt.want, out.Score, 1e-9)
		})
	}
}

func TestPIILeakage(t *testing.T) {
	out, err := piiLeakage{}.Evaluate(context.Background(), Input{Answer: "Your claim is approved."})
	require.NoError(t, err)
	assert.Equal(t, 1.0, out.Score)

	out, err = piiLeakage{}.Evaluate(context.Background(), Input{Answer: "Reach the adjuster at adjuster@example.com or 555-123-4567."})
	require.NoError(t, err)
	assert.Equal(t, 0.0, out.Score)
	assert.Equal(t, []string{"Email", "Phone"}, out.Details["pii_types"])
	assert.Equal(t, "PII found: Email, Phone", out.Message)
}

func TestModelGradedChecks(t *testing.T) {
	tests := []struct {
		name    string
		check   string
		reply   string
		want    float64
		wantErr error
	}{
		{"toxicity clean ignores score", core.CheckToxicity, `{"toxic_elements": [], "toxicity_score": 0.9}`, 1.0, nil},
		{"toxicity inverted", core.CheckToxicity, `{"toxic_elements": ["slur"], "toxicity_score": 0.3}`, 0.7, nil},
		{"bias clean", core.CheckBias, `{"biased_statements": [], "bias_score": 0.0}`, 1.0, nil},
		{"bias found", core.CheckBias, `{"biased_statements": ["older drivers are reckless"], "bias_score": 0.2}`, 0.2, nil},
		{"hallucination without score", core.CheckHallucination, `{"hallucinations": ["a $5000 limit"]}`, 0, errMissingScore},
		{"contradiction clean", core.CheckContradiction, `{"contradictions": []}`, 1.0, nil},
		{"consistency found", core.CheckConsistency, `{"contradictions": ["covered and not covered"], "consistency_score": 0.4}`, 0.4, nil},
		{"groundedness clamped", core.CheckGroundedness, `{"overall_score": 1.4}`, 1.0, nil},
		{"relevance missing score", core.CheckRelevance, `{"explanation": "?"}`, 0, errMissingScore},
		{"relevance fenced", core.CheckRelevance, "```json\n{\"relevance_score\": 0.65}\n```", 0.65, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			llm := scriptedLLM(map[string]string{tt.check: tt.reply})
			var check Check
			for _, c := range DefaultChecks(llm) {
				if c.Name() == tt.check {
					check = c
				}
			}
			require.NotNil(t, check)

			out, err := check.Evaluate(context.Background(), Input{Query: "q", Context: "ctx", Answer: "a"})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, out.Score, 1e-9)

			req := llm.Requests()[0]
			assert.True(t, req.JSONMode)
			assert.Zero(t, req.Temperature)
		})
	}
}

func TestModelGradedChecks_TruncateContext(t *testing.T) {
	llm := scriptedLLM(healthyReplies)
	check := newGroundedness(llm)

	_, err := check.Evaluate(context.Background(), Input{Context: strings.Repeat("a", 5000), Answer: "x"})
	require.NoError(t, err)
	prompt := llm.Requests()[0].Prompt
	assert.Contains(t, prompt, strings.Repeat("a", contextLimit))
	assert.NotContains(t, prompt, strings.Repeat("a", contextLimit+1))
}

func TestEngine_RequiresLLM(t *testing.T) {
	_, err := NewEngine(nil)
	assert.ErrorIs(t, err, ErrLLMRequired)
}

func TestEngine_UnknownCheckOption(t *testing.T) {
	_, err := NewEngine(mock.NewMockLLM(), WithCheck(stubCheck{name: "sarcasm"}))
	assert.Error(t, err)
}

// Zero citation markers with a hard-fail coverage check blocks the answer.
func TestEngine_UncitedAnswerBlocked(t *testing.T) {
	e := newTestEngine(t, mock.NewMockLLM())
	profile := core.JudgeProfile{CitationCoverage: core.CheckConfig{Enabled: true, Threshold: 0.8, HardFail: true}}
	answer := &core.Answer{Text: "Burst pipes are covered. Floods are not."}

	report, err := e.Evaluate(context.Background(), "Is water damage covered?", testPack(), answer, profile, nil)
	require.NoError(t, err)

	coverage := resultFor(t, report, core.CheckCitationCoverage)
	assert.Equal(t, 0.0, coverage.Score)
	assert.Equal(t, core.CheckStatusFail, coverage.Status)
	require.Len(t, report.Violations, 1)
	assert.Equal(t, core.SeverityHigh, report.Violations[0].Severity)
	assert.Equal(t, Remediation(core.CheckCitationCoverage), report.Violations[0].Remediation)
	assert.Equal(t, core.DecisionFailBlocked, report.Decision)
	assert.False(t, report.Passed)
}

func TestEngine_AllChecksPass(t *testing.T) {
	llm := scriptedLLM(healthyReplies)
	e := newTestEngine(t, llm)

	report, err := e.Evaluate(context.Background(), "Are burst pipes covered?", testPack(), citedAnswer(), core.DefaultJudgeProfile(), nil)
	require.NoError(t, err)

	assert.Equal(t, core.DecisionPass, report.Decision)
	assert.True(t, report.Passed)
	assert.Empty(t, report.Violations)
	require.Len(t, report.Checks, 9)
	for i, r := range report.Checks {
		assert.Equal(t, Order[i], r.CheckName)
		assert.Equal(t, core.CheckStatusPass, r.Status, r.CheckName)
	}
	assert.InDelta(t, (8+0.95-0.1)/9, report.OverallScore, 1e-9)
	assert.Equal(t, 7, llm.CallCount())
	assert.Equal(t, map[string][]string{"Burst pipes are covered [1]": {"c1"}}, report.ClaimEvidenceMapping)
}

func TestEngine_SoftFailures(t *testing.T) {
	tests := []struct {
		name     string
		reply    string
		severity core.Severity
	}{
		{"just below threshold", `{"relevance_score": 0.5}`, core.SeverityLow},
		{"far below threshold", `{"relevance_score": 0.3}`, core.SeverityMedium},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(t, scriptedLLM(withReplies(map[string]string{core.CheckRelevance: tt.reply})))

			report, err := e.Evaluate(context.Background(), "q", testPack(), citedAnswer(), core.DefaultJudgeProfile(), nil)
			require.NoError(t, err)
			assert.Equal(t, core.DecisionFailRetryable, report.Decision)
			require.Len(t, report.Violations, 1)
			assert.Equal(t, core.CheckRelevance, report.Violations[0].CheckName)
			assert.Equal(t, tt.severity, report.Violations[0].Severity)
		})
	}
}

func TestEngine_CheckErrors(t *testing.T) {
	t.Run("soft check error is retryable", func(t *testing.T) {
		e := newTestEngine(t, scriptedLLM(withReplies(map[string]string{core.CheckRelevance: ""})))

		report, err := e.Evaluate(context.Background(), "q", testPack(), citedAnswer(), core.DefaultJudgeProfile(), nil)
		require.NoError(t, err)
		relevance := resultFor(t, report, core.CheckRelevance)
		assert.Equal(t, core.CheckStatusError, relevance.Status)
		assert.Equal(t, 0.0, relevance.Score)
		assert.Contains(t, relevance.Details["error"], "grader unavailable")
		assert.Equal(t, core.DecisionFailRetryable, report.Decision)
		assert.Equal(t, core.CheckStatusPass, resultFor(t, report, core.CheckToxicity).Status)
	})

	t.Run("hard check error blocks", func(t *testing.T) {
		e := newTestEngine(t, scriptedLLM(withReplies(map[string]string{core.CheckGroundedness: "not json"})))

		report, err := e.Evaluate(context.Background(), "q", testPack(), citedAnswer(), core.DefaultJudgeProfile(), nil)
		require.NoError(t, err)
		assert.Equal(t, core.CheckStatusError, resultFor(t, report, core.CheckGroundedness).Status)
		assert.Equal(t, core.DecisionFailBlocked, report.Decision)
	})

	t.Run("panic is isolated", func(t *testing.T) {
		e := newTestEngine(t, scriptedLLM(healthyReplies), WithCheck(stubCheck{name: core.CheckBias, panics: true}))

		report, err := e.Evaluate(context.Background(), "q", testPack(), citedAnswer(), core.DefaultJudgeProfile(), nil)
		require.NoError(t, err)
		assert.Equal(t, core.CheckStatusError, resultFor(t, report, core.CheckBias).Status)
		assert.Equal(t, core.CheckStatusPass, resultFor(t, report, core.CheckRelevance).Status)
		assert.Equal(t, core.DecisionFailRetryable, report.Decision)
	})
}

func TestEngine_DisabledChecksSkipped(t *testing.T) {
	llm := scriptedLLM(healthyReplies)
	e := newTestEngine(t, llm)
	profile := core.JudgeProfile{CitationCoverage: core.CheckConfig{Enabled: true, Threshold: 0.4}}
	answer := &core.Answer{Text: "Covered [1]. Excluded."}

	report, err := e.Evaluate(context.Background(), "q", testPack(), answer, profile, nil)
	require.NoError(t, err)

	assert.Equal(t, 0, llm.CallCount())
	assert.InDelta(t, 0.5, report.OverallScore, 1e-9)
	assert.Equal(t, core.DecisionPass, report.Decision)
	skipped := resultFor(t, report, core.CheckHallucination)
	assert.Equal(t, core.CheckStatusSkipped, skipped.Status)
	assert.Equal(t, 1.0, skipped.Score)
}

func TestEngine_ObserverOrder(t *testing.T) {
	e := newTestEngine(t, scriptedLLM(healthyReplies), WithPoolSize(2))

	var mu sync.Mutex
	var seen []string
	_, err := e.Evaluate(context.Background(), "q", testPack(), citedAnswer(), core.DefaultJudgeProfile(),
		func(r core.CheckResult, _ time.Duration) {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, r.CheckName)
		})
	require.NoError(t, err)

	assert.Equal(t, append(append([]string{}, tierA...), tierB...), seen)
}

func TestClaimEvidence(t *testing.T) {
	answer := &core.Answer{
		Text: "Water damage is covered [1]. Floods are excluded [2][5]. Nothing cited here. Also see [0]",
		Citations: []core.Citation{
			{ChunkID: "c1"},
			{ChunkID: "c2"},
		},
	}
	assert.Equal(t, map[string][]string{
		"Water damage is covered [1]": {"c1"},
		"Floods are excluded [2][5]":  {"c2"},
	}, claimEvidence(answer))

	long := strings.Repeat("Claim [1]. ", 15)
	assert.Len(t, claimEvidence(&core.Answer{Text: long, Citations: answer.Citations}), 1)
}

func TestCompileReport_DecisionProperties(t *testing.T) {
	statuses := []core.CheckStatus{core.CheckStatusPass, core.CheckStatusFail, core.CheckStatusSkipped, core.CheckStatusError}

	rapid.Check(t, func(t *rapid.T) {
		results := make([]core.CheckResult, len(Order))
		for i, name := range Order {
			results[i] = core.CheckResult{
				CheckName: name,
				Status:    rapid.SampledFrom(statuses).Draw(t, name+"_status"),
				Score:     rapid.Float64Range(0, 1).Draw(t, name+"_score"),
				Threshold: rapid.Float64Range(0, 1).Draw(t, name+"_threshold"),
				HardFail:  rapid.Bool().Draw(t, name+"_hard"),
			}
		}
		report := compileReport(results, &core.Answer{})

		hardFailure, anyFailure := false, false
		for _, r := range results {
			if r.Status == core.CheckStatusFail || r.Status == core.CheckStatusError {
				anyFailure = true
				if r.HardFail {
					hardFailure = true
				}
			}
		}
		if (report.Decision == core.DecisionFailBlocked) != hardFailure {
			t.Fatalf("decision %s, hard failure %v", report.Decision, hardFailure)
		}
		if (report.Decision == core.DecisionPass) != !anyFailure {
			t.Fatalf("decision %s, any failure %v", report.Decision, anyFailure)
		}
		if report.Passed != !anyFailure {
			t.Fatalf("passed %v, any failure %v", report.Passed, anyFailure)
		}
		if report.OverallScore < 0 || report.OverallScore > 1 {
			t.Fatalf("overall score %f out of range", report.OverallScore)
		}
	})
}

type stubCheck struct {
	name   string
	panics bool
}

func (s stubCheck) Name() string { return s.name }

func (s stubCheck) Evaluate(context.Context, Input) (*Outcome, error) {
	if s.panics {
		panic("grader exploded")
	}
	return &Outcome{Score: 1}, nil
}
