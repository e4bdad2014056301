package ai

import (
	"context"
	"errors"
)

// ErrEmptyCompletion is returned when the model answers without any choice.
var ErrEmptyCompletion = errors.New("model returned no completion")

// GenerateRequest is a single chat-completion call.
type GenerateRequest struct {
	// Prompt is the user message.
	Prompt string

	// SystemPrompt is optional. When empty no system message is sent.
	SystemPrompt string

	// JSONMode asks the model for a single JSON object.
	JSONMode bool

	Temperature float64

	// MaxTokens bounds the completion length. Zero means provider default.
	MaxTokens int
}

// GenerateResponse carries the completion text and its accounting.
type GenerateResponse struct {
	Content    string
	TokensUsed int
	Cost       float64
}

// LLM generates completions. Implementations must be thread-safe for
// concurrent use and must honour JSONMode with deterministic output at
// temperature 0.
type LLM interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
}

// Embedder generates vector embeddings from text for semantic similarity search.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings in a batch.
	// The returned slice contains embeddings in the same order as the input texts.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// EntityExtractor extracts knowledge-graph entities and relationships from text.
// Implementations must be thread-safe for concurrent use.
type EntityExtractor interface {
	// ExtractEntities returns the entities of the given types mentioned in
	// text and the relationships between them. An empty Extraction is
	// returned when nothing is found.
	ExtractEntities(ctx context.Context, text string, types []string) (*Extraction, error)
}

// Tokenizer counts model tokens.
type Tokenizer interface {
	CountTokens(text string) int
}

// Extraction is the result of entity extraction.
type Extraction struct {
	Entities      []ExtractedEntity
	Relationships []ExtractedRelationship
}

// ExtractedEntity is an entity as reported by the model. ID is the
// model-local identifier relationships refer to; it may be empty.
type ExtractedEntity struct {
	ID         string
	Label      string
	Type       string
	Properties map[string]string
}

// ExtractedRelationship links two ExtractedEntity values by their model-local
// IDs or labels.
type ExtractedRelationship struct {
	Source     string
	Target     string
	Type       string
	Properties map[string]string
}

// Provider aggregates AI services for convenient initialization and lifecycle management.
// The services it returns share configuration and are safe for concurrent use.
type Provider interface {
	LLM() LLM
	Embedder() Embedder
	EntityExtractor() EntityExtractor
	Tokenizer() Tokenizer

	// Close releases resources held by the provider and its services.
	Close() error
}
