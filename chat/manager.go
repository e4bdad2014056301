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



package chat

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/svjt78/ragmesh/ai"
	"github.com/svjt78/ragmesh/core"
)

// QuitCommand ends a chat session when sent as a message.
const QuitCommand = "quit"

const (
	defaultTTL        = time.Hour
	summarizerPrompt  = "You are a helpful assistant that summarizes conversations."
	summaryHeader     = "[Previous conversation summary]"
	recentTurnsHeader = "[Recent conversation]"
)

// IsQuitCommand reports whether message asks to end the session.
func IsQuitCommand(message string) bool {
	return strings.ToLower(strings.TrimSpace(message)) == QuitCommand
}

// entry guards one session. deleted is set under mu when the session is
// removed so that callers queued on the lock observe the removal.
type entry struct {
	mu      sync.Mutex
	session *core.ChatSession
	deleted bool
}

// Compaction describes the outcome of CheckAndCompact.
type Compaction struct {
	// Compacted is true when older turns were removed from the history.
	Compacted bool
	// Summarized is false when the summarizer failed and the turns were dropped.
	Summarized   bool
	RemovedTurns []int
	KeptTurns    int
	Err          error
}

// Manager owns the in-memory session table.
type Manager struct {
	sessions  *cache.Cache
	llm       ai.LLM
	tokenizer ai.Tokenizer
	ttl       time.Duration
	logger    *slog.Logger

	// createMu serializes session creation against id reuse.
	createMu sync.Mutex
}

// Option configures a Manager.
type Option func(*Manager) error

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) error {
		m.logger = logger
		return nil
	}
}

// WithTTL sets how long an idle session is kept. Defaults to one hour.
func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) error {
		if ttl <= 0 {
			return fmt.Errorf("session ttl must be positive, got %s", ttl)
		}
		m.ttl = ttl
		return nil
	}
}

// NewManager creates a Manager that summarizes with llm and measures
// history with tokenizer.
func NewManager(llm ai.LLM, tokenizer ai.Tokenizer, opts ...Option) (*Manager, error) {
	if llm == nil {
		return nil, ErrLLMRequired
	}
	if tokenizer == nil {
		return nil, ErrTokenizerRequired
	}
	m := &Manager{
		llm:       llm,
		tokenizer: tokenizer,
		ttl:       defaultTTL,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}
	m.logger = m.logger.With("component", "chat")
	m.sessions = cache.New(m.ttl, m.ttl/2)
	return m, nil
}

// CreateSession starts an empty session and returns a snapshot of it.
func (m *Manager) CreateSession(workflowID, chatProfileID string) *core.ChatSession {
	return m.createWithID(uuid.NewString(), workflowID, chatProfileID)
}

// ResolveSession returns the live session for sessionID. An empty or
// unknown id starts a new session, reusing a non-empty unknown id. The
// boolean reports whether a session was created.
func (m *Manager) ResolveSession(sessionID, workflowID, chatProfileID string) (*core.ChatSession, bool) {
	if sessionID == "" {
		return m.CreateSession(workflowID, chatProfileID), true
	}
	if s, ok := m.GetSession(sessionID); ok {
		return s, false
	}
	m.logger.Info("recreating unknown session", "session_id", sessionID)
	return m.createWithID(sessionID, workflowID, chatProfileID), true
}

func (m *Manager) createWithID(id, workflowID, chatProfileID string) *core.ChatSession {
	m.createMu.Lock()
	defer m.createMu.Unlock()
	if s, ok := m.GetSession(id); ok {
		return s
	}
	now := time.Now().UTC()
	e := &entry{session: &core.ChatSession{
		SessionID:          id,
		Turns:              []core.ChatTurn{},
		SummaryCoversTurns: []int{},
		WorkflowID:         workflowID,
		ChatProfileID:      chatProfileID,
		CreatedAt:          now,
		LastUpdated:        now,
	}}
	m.sessions.Set(id, e, cache.DefaultExpiration)
	m.logger.Info("created chat session", "session_id", id)
	return clone(e.session)
}

func (m *Manager) lookup(sessionID string) (*entry, bool) {
	v, ok := m.sessions.Get(sessionID)
	if !ok {
		return nil, false
	}
	return v.(*entry), true
}

// lock returns the locked entry of a live session. The caller must unlock.
func (m *Manager) lock(sessionID string) (*entry, error) {
	e, ok := m.lookup(sessionID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	e.mu.Lock()
	if e.deleted {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return e, nil
}

// touch renews the idle expiry of a session.
func (m *Manager) touch(sessionID string, e *entry) {
	m.sessions.Set(sessionID, e, cache.DefaultExpiration)
}

// GetSession returns a snapshot of a session.
func (m *Manager) GetSession(sessionID string) (*core.ChatSession, bool) {
	e, err := m.lock(sessionID)
	if err != nil {
		return nil, false
	}
	defer e.mu.Unlock()
	return clone(e.session), true
}

// AddTurn appends a completed exchange and returns its turn number.
func (m *Manager) AddTurn(sessionID, query string, answer core.Answer, runID string, tokens int) (int, error) {
	e, err := m.lock(sessionID)
	if err != nil {
		return 0, err
	}
	defer e.mu.Unlock()

	s := e.session
	n := s.TotalTurns + 1
	now := time.Now().UTC()
	s.Turns = append(s.Turns, core.ChatTurn{
		TurnNumber: n,
		Query:      query,
		Answer:     answer,
		RunID:      runID,
		Timestamp:  now,
		Tokens:     tokens,
	})
	s.TotalTurns = n
	s.TotalTokens += tokens
	s.LastUpdated = now
	m.touch(sessionID, e)

	m.logger.Info("added turn", "session_id", sessionID, "turn", n, "tokens", tokens)
	return n, nil
}

// CheckAndCompact compacts the session history when the verbatim turns
// exceed profile.CompactionThresholdTokens or profile.MaxHistoryTurns.
//
// The newest max(1, MaxHistoryTurns/2) turns are kept. When only the token
// threshold is exceeded and that many turns are already all that remain,
// every turn but the newest is compacted. Older turns are summarized with
// one LLM call; the prior summary, if any, is folded into the new one. A
// summarizer failure drops the older turns, leaves the summary unchanged
// and is reported in Compaction.Err wrapped in core.ErrCompaction.
func (m *Manager) CheckAndCompact(ctx context.Context, sessionID string, profile core.ChatProfile) (Compaction, error) {
	e, err := m.lock(sessionID)
	if err != nil {
		return Compaction{}, err
	}
	defer e.mu.Unlock()

	s := e.session
	historyTokens := 0
	for _, t := range s.Turns {
		historyTokens += t.Tokens
	}
	overTokens := historyTokens > profile.CompactionThresholdTokens
	overTurns := len(s.Turns) > profile.MaxHistoryTurns
	if !overTokens && !overTurns {
		return Compaction{KeptTurns: len(s.Turns)}, nil
	}

	keep := max(1, profile.MaxHistoryTurns/2)
	if keep >= len(s.Turns) {
		keep = len(s.Turns) - 1
	}
	if keep < 1 {
		return Compaction{KeptTurns: len(s.Turns)}, nil
	}

	older := s.Turns[:len(s.Turns)-keep]
	kept := slices.Clone(s.Turns[len(s.Turns)-keep:])
	removed := make([]int, len(older))
	for i, t := range older {
		removed[i] = t.TurnNumber
	}
	m.logger.Info("compacting session",
		"session_id", sessionID,
		"history_tokens", historyTokens,
		"turns", len(s.Turns),
		"removing", len(older))

	result := Compaction{Compacted: true, RemovedTurns: removed, KeptTurns: keep}
	summary, err := m.summarize(ctx, s.Summary, older, profile)
	if err != nil {
		result.Err = fmt.Errorf("%w: %w", core.ErrCompaction, err)
		m.logger.Warn("summarization failed, dropping older turns", "session_id", sessionID, "dropped", len(older), "err", err)
	} else {
		result.Summarized = true
		s.Summary = summary
		s.SummaryCoversTurns = append(s.SummaryCoversTurns, removed...)
	}
	s.Turns = kept
	s.LastUpdated = time.Now().UTC()
	m.touch(sessionID, e)
	return result, nil
}

func (m *Manager) summarize(ctx context.Context, previous string, turns []core.ChatTurn, profile core.ChatProfile) (string, error) {
	var sb strings.Builder
	if previous != "" {
		fmt.Fprintf(&sb, "Earlier summary: %s\n\n", previous)
	}
	for _, t := range turns {
		fmt.Fprintf(&sb, "User: %s\nAssistant: %s\n\n", t.Query, t.Answer.Text)
	}
	prompt := fmt.Sprintf(`Summarize the following conversation history concisely.
Focus on key topics discussed, important facts mentioned, and context needed for future questions.

Conversation:
%s
Provide a brief summary (max %d tokens):`, sb.String(), profile.SummarizationMaxTokens)

	resp, err := m.llm.Generate(ctx, ai.GenerateRequest{
		Prompt:       prompt,
		SystemPrompt: summarizerPrompt,
		Temperature:  0,
		MaxTokens:    profile.SummarizationMaxTokens,
	})
	if err != nil {
		return "", err
	}
	summary := strings.TrimSpace(resp.Content)
	if summary == "" {
		return "", errEmptySummary
	}
	return summary, nil
}

// FormattedHistory renders the session for inclusion in a prompt and
// returns the rendering's token count. Unknown sessions render empty.
func (m *Manager) FormattedHistory(sessionID string, profile core.ChatProfile) (string, int) {
	s, ok := m.GetSession(sessionID)
	if !ok {
		return "", 0
	}
	var parts []string
	if s.Summary != "" && profile.IncludeSummaryInContext {
		parts = append(parts, summaryHeader, s.Summary, "")
	}
	if len(s.Turns) > 0 {
		parts = append(parts, recentTurnsHeader)
		for _, t := range s.Turns {
			parts = append(parts, "User: "+t.Query, "Assistant: "+t.Answer.Text, "")
		}
	}
	if len(parts) == 0 {
		return "", 0
	}
	text := strings.Join(parts, "\n")
	return text, m.tokenizer.CountTokens(text)
}

// DeleteSession removes a session. It reports whether the session existed.
func (m *Manager) DeleteSession(sessionID string) bool {
	e, err := m.lock(sessionID)
	if err != nil {
		return false
	}
	defer e.mu.Unlock()
	e.deleted = true
	m.sessions.Delete(sessionID)
	m.logger.Info("deleted chat session", "session_id", sessionID)
	return true
}

// ListSessions returns snapshots of every live session, newest first.
func (m *Manager) ListSessions() []*core.ChatSession {
	items := m.sessions.Items()
	out := make([]*core.ChatSession, 0, len(items))
	for id := range items {
		if s, ok := m.GetSession(id); ok {
			out = append(out, s)
		}
	}
	slices.SortFunc(out, func(a, b *core.ChatSession) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.SessionID, b.SessionID)
	})
	return out
}

// SessionCount returns the number of live sessions.
func (m *Manager) SessionCount() int {
	return m.sessions.ItemCount()
}

func clone(s *core.ChatSession) *core.ChatSession {
	c := *s
	c.Turns = slices.Clone(s.Turns)
	c.SummaryCoversTurns = slices.Clone(s.SummaryCoversTurns)
	return &c
}
