package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/svjt78/ragmesh/ai"
	"github.com/svjt78/ragmesh/core"
)

// ErrLLMRequired is returned when a Generator is built without an LLM.
var ErrLLMRequired = errors.New("LLM required")

// UnstructuredLimitation is recorded on answers whose response was not valid JSON.
const UnstructuredLimitation = "response was not structured"

const defaultMaxTokens = 2000

// DefaultSystemPrompt instructs the model to answer from context with citations.
const DefaultSystemPrompt = `You are an expert insurance analyst. Your task is to answer questions about insurance policies based strictly on the provided context.

CRITICAL RULES:
1. Answer ONLY based on the provided context
2. Include citations for ALL factual claims using [N] format where N is the citation number
3. If information is not in the context, explicitly state "This information is not available in the provided documents"
4. Clearly state any assumptions you make
5. Note any limitations or uncertainties in your answer
6. Be precise and concise

OUTPUT FORMAT (JSON):
{
  "answer": "Your detailed answer with inline citations [1], [2], etc.",
  "citations": [
    {
      "chunk_id": "chunk_id_from_context",
      "doc_id": "document_id",
      "page_no": page_number,
      "quote": "Exact quote from context that supports the claim",
      "reason": "Why this citation supports the claim"
    }
  ],
  "assumptions": ["Any assumptions made in the answer"],
  "limitations": ["Any limitations or uncertainties"],
  "confidence": "low|medium|high"
}`

// Generator produces answers with one LLM call per query.
type Generator struct {
	llm          ai.LLM
	logger       *slog.Logger
	systemPrompt string
	maxTokens    int
}

// Option configures a Generator.
type Option func(*Generator) error

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(g *Generator) error {
		g.logger = logger
		return nil
	}
}

// WithSystemPrompt replaces DefaultSystemPrompt.
func WithSystemPrompt(prompt string) Option {
	return func(g *Generator) error {
		if strings.TrimSpace(prompt) == "" {
			return errors.New("system prompt cannot be empty")
		}
		g.systemPrompt = prompt
		return nil
	}
}

// WithMaxTokens bounds the response length. Defaults to 2000.
func WithMaxTokens(n int) Option {
	return func(g *Generator) error {
		if n < 1 {
			return fmt.Errorf("max tokens must be positive, got %d", n)
		}
		g.maxTokens = n
		return nil
	}
}

// NewGenerator creates a Generator.
func NewGenerator(llm ai.LLM, opts ...Option) (*Generator, error) {
	if llm == nil {
		return nil, ErrLLMRequired
	}
	g := &Generator{
		llm:          llm,
		logger:       slog.Default(),
		systemPrompt: DefaultSystemPrompt,
		maxTokens:    defaultMaxTokens,
	}
	for _, opt := range opts {
		if err := opt(g); err != nil {
			return nil, err
		}
	}
	g.logger = g.logger.With("component", "generator")
	return g, nil
}

// pageNumber accepts numbers and numeric strings.
type pageNumber int

func (p *pageNumber) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*p = 0
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		*p = 0
		return nil
	}
	*p = pageNumber(f)
	return nil
}

type rawCitation struct {
	ChunkID string     `json:"chunk_id"`
	DocID   string     `json:"doc_id"`
	PageNo  pageNumber `json:"page_no"`
	Quote   string     `json:"quote"`
	Reason  string     `json:"reason"`
}

type rawAnswer struct {
	Answer      string        `json:"answer"`
	Citations   []rawCitation `json:"citations"`
	Assumptions []string      `json:"assumptions"`
	Limitations []string      `json:"limitations"`
	Confidence  string        `json:"confidence"`
}

// Generate answers query from pack. history, when non-empty, is the
// rendered conversation so far and is placed ahead of the context.
//
// An LLM failure is returned as an error. A response that is not valid JSON
// is not an error: the raw text becomes a low-confidence answer.
func (g *Generator) Generate(ctx context.Context, query string, pack *core.ContextPack, history string) (*core.Answer, error) {
	resp, err := g.llm.Generate(ctx, ai.GenerateRequest{
		Prompt:       buildPrompt(query, pack, history),
		SystemPrompt: g.systemPrompt,
		JSONMode:     true,
		Temperature:  0,
		MaxTokens:    g.maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("generating answer: %w", err)
	}

	var raw rawAnswer
	if err := ai.DecodeJSON(resp.Content, &raw); err != nil {
		g.logger.Warn("answer was not valid JSON", "err", err)
		return &core.Answer{
			Text:        strings.TrimSpace(resp.Content),
			Citations:   []core.Citation{},
			Assumptions: []string{},
			Limitations: []string{UnstructuredLimitation},
			Confidence:  core.ConfidenceLow,
			TokensUsed:  resp.TokensUsed,
			Cost:        resp.Cost,
		}, nil
	}

	answer := &core.Answer{
		Text:        raw.Answer,
		Citations:   make([]core.Citation, 0, len(raw.Citations)),
		Assumptions: nonNil(raw.Assumptions),
		Limitations: nonNil(raw.Limitations),
		Confidence:  core.ParseConfidence(strings.ToLower(strings.TrimSpace(raw.Confidence))),
		TokensUsed:  resp.TokensUsed,
		Cost:        resp.Cost,
	}
	for _, c := range raw.Citations {
		if pack == nil || !pack.HasChunk(c.ChunkID) {
			g.logger.Debug("dropping citation outside context", "chunk_id", c.ChunkID)
			continue
		}
		page := int(c.PageNo)
		if page < 1 {
			page = 1
		}
		answer.Citations = append(answer.Citations, core.Citation{
			ChunkID: c.ChunkID,
			DocID:   c.DocID,
			PageNo:  page,
			Quote:   c.Quote,
			Reason:  c.Reason,
		})
	}

	g.logger.Info("answer generated", "citations", len(answer.Citations), "tokens_used", answer.TokensUsed)
	return answer, nil
}

func buildPrompt(query string, pack *core.ContextPack, history string) string {
	var sb strings.Builder
	if history = strings.TrimSpace(history); history != "" {
		sb.WriteString("CONVERSATION HISTORY:\n\n")
		sb.WriteString(history)
		sb.WriteString("\n\n")
	}
	sb.WriteString("AVAILABLE CONTEXT:\n\n")
	if pack != nil && pack.ContextText != "" {
		sb.WriteString(pack.ContextText)
	} else {
		sb.WriteString("(no context available)")
	}
	fmt.Fprintf(&sb, "\n\nQUERY: %s\n\n", query)
	sb.WriteString("Please provide a comprehensive answer using the context above. Remember to cite every factual claim using [N] format.")
	return sb.String()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
