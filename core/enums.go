package core

// CheckStatus is the outcome class of a judge check.
type CheckStatus string

const (
	CheckStatusPass    CheckStatus = "PASS"
	CheckStatusFail    CheckStatus = "FAIL"
	CheckStatusSkipped CheckStatus = "SKIPPED"
	CheckStatusError   CheckStatus = "ERROR"
)

// JudgeDecision is the aggregate verdict of a judge report.
type JudgeDecision string

const (
	DecisionPass          JudgeDecision = "PASS"
	DecisionFailBlocked   JudgeDecision = "FAIL_BLOCKED"
	DecisionFailRetryable JudgeDecision = "FAIL_RETRYABLE"
)

// Severity grades a violation.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Confidence is the generator's self-reported confidence.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// ParseConfidence maps free text onto a Confidence, defaulting to medium.
func ParseConfidence(s string) Confidence {
	switch Confidence(s) {
	case ConfidenceLow, ConfidenceMedium, ConfidenceHigh:
		return Confidence(s)
	}
	return ConfidenceMedium
}

// CitationFormat selects how packed chunks are rendered.
type CitationFormat string

const (
	CitationFormatInline   CitationFormat = "inline"
	CitationFormatDetailed CitationFormat = "detailed"
)

// Mode selects single-shot or conversational execution.
type Mode string

const (
	ModeQuery Mode = "query"
	ModeChat  Mode = "chat"
)

// RunStatus is derived from a run's event log, never stored.
type RunStatus string

const (
	RunStatusCompleted  RunStatus = "completed"
	RunStatusBlocked    RunStatus = "blocked"
	RunStatusFailed     RunStatus = "failed"
	RunStatusTerminated RunStatus = "terminated"
	RunStatusUnknown    RunStatus = "unknown"
)

// EventType names a run lifecycle transition.
type EventType string

const (
	EventRunStarted              EventType = "run_started"
	EventRetrievalStarted        EventType = "retrieval_started"
	EventVectorSearchCompleted   EventType = "vector_search_completed"
	EventDocumentSearchCompleted EventType = "document_search_completed"
	EventGraphSearchCompleted    EventType = "graph_search_completed"
	EventFusionCompleted         EventType = "fusion_completed"
	EventContextCompiled         EventType = "context_compiled"
	EventGenerationCompleted     EventType = "generation_completed"
	EventJudgeStarted            EventType = "judge_started"
	EventJudgeCheckCompleted     EventType = "judge_check_completed"
	EventJudgeCompleted          EventType = "judge_completed"
	EventRunCompleted            EventType = "run_completed"
	EventRunBlocked              EventType = "run_blocked"
	EventRunFailed               EventType = "run_failed"
	EventRunTerminated           EventType = "run_terminated"
	EventChatSessionCreated      EventType = "chat_session_created"
	EventChatCompacted           EventType = "chat_compacted"
	EventChatTurnAdded           EventType = "chat_turn_added"
	EventChatSessionTerminated   EventType = "chat_session_terminated"
)

// TerminalStatus maps terminal event types to the run status they imply.
// Non-terminal events report false.
func (t EventType) TerminalStatus() (RunStatus, bool) {
	switch t {
	case EventRunCompleted:
		return RunStatusCompleted, true
	case EventRunBlocked:
		return RunStatusBlocked, true
	case EventRunFailed:
		return RunStatusFailed, true
	case EventRunTerminated:
		return RunStatusTerminated, true
	}
	return "", false
}

// Judge check names, in registration order.
const (
	CheckCitationCoverage = "citation_coverage"
	CheckGroundedness     = "groundedness"
	CheckHallucination    = "hallucination"
	CheckRelevance        = "relevance"
	CheckConsistency      = "consistency"
	CheckToxicity         = "toxicity"
	CheckPIILeakage       = "pii_leakage"
	CheckBias             = "bias"
	CheckContradiction    = "contradiction"
)

// WorkflowStepJudge is the workflow step that enables answer validation.
const WorkflowStepJudge = "judge_validation"
