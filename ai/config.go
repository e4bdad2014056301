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


package ai

import (
	"errors"
	"strings"
	"time"
)

// Config holds configuration for AI service providers.
type Config struct {
	// EmbeddingHost is the base URL for the embedding service API.
	// Example: "http://localhost:11434/v1" for local OpenAI-compatible server
	EmbeddingHost string

	// ChatHost is the base URL for the chat completion service API used for
	// generation, judging, entity extraction and summarization.
	ChatHost string

	// EmbeddingModel is the model identifier to use for text embeddings.
	// Example: "nomic-embed-text", "text-embedding-3-small"
	EmbeddingModel string

	// ChatModel is the model identifier to use for completions.
	// Example: "qwen2.5:7b", "gpt-4o-mini"
	ChatModel string

	// APIKey is sent as the bearer token. Local servers accept "none".
	APIKey string

	// MaxRetries bounds attempts per LLM call, including the first.
	// Default: 3
	MaxRetries int

	// RetryBaseDelay is the initial backoff between attempts.
	// Default: 2s
	RetryBaseDelay time.Duration

	// CostPer1KInput and CostPer1KOutput price prompt and completion tokens in USD.
	CostPer1KInput  float64
	CostPer1KOutput float64

	// Encoding is the tiktoken encoding used for token counting.
	// Default: "cl100k_base"
	Encoding string
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithEmbeddingHost sets the embedding service host URL.
func WithEmbeddingHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
	}
}

// WithChatHost sets the chat completion service host URL.
func WithChatHost(host string) ConfigOption {
	return func(c *Config) {
		c.ChatHost = host
	}
}

// WithHost sets both embedding and chat hosts to the same URL.
func WithHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
		c.ChatHost = host
	}
}

// WithEmbeddingModel sets the embedding model identifier.
func WithEmbeddingModel(model string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingModel = model
	}
}

// WithChatModel sets the chat model identifier.
func WithChatModel(model string) ConfigOption {
	return func(c *Config) {
		c.ChatModel = model
	}
}

// WithAPIKey sets the API key.
func WithAPIKey(key string) ConfigOption {
	return func(c *Config) {
		c.APIKey = key
	}
}

// WithRetry sets the attempt count and initial backoff for LLM calls.
func WithRetry(maxRetries int, baseDelay time.Duration) ConfigOption {
	return func(c *Config) {
		c.MaxRetries = maxRetries
		c.RetryBaseDelay = baseDelay
	}
}

// WithPricing sets per-1K-token prices used for cost accounting.
func WithPricing(input, output float64) ConfigOption {
	return func(c *Config) {
		c.CostPer1KInput = input
		c.CostPer1KOutput = output
	}
}

// WithEncoding sets the tiktoken encoding name.
func WithEncoding(name string) ConfigOption {
	return func(c *Config) {
		c.Encoding = name
	}
}

// DefaultConfig returns a Config with sensible defaults for local OpenAI-compatible services.
// By default, both embedding and chat use the same host.
func DefaultConfig() *Config {
	defaultHost := "http://localhost:11434/v1"
	return &Config{
		EmbeddingHost:   defaultHost,
		ChatHost:        defaultHost,
		EmbeddingModel:  "nomic-embed-text",
		ChatModel:       "qwen2.5:7b",
		APIKey:          "none",
		MaxRetries:      3,
		RetryBaseDelay:  2 * time.Second,
		CostPer1KInput:  0.0005,
		CostPer1KOutput: 0.0015,
		Encoding:        "cl100k_base",
	}
}

// NewConfig creates a Config with the default values and applies the provided options.
//
// Example:
//
//	cfg := NewConfig(
//	    WithHost("https://api.openai.com/v1"),
//	    WithChatModel("gpt-4o-mini"),
//	    WithEmbeddingModel("text-embedding-3-small"),
//	)
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Cost prices a call from its prompt and completion token counts.
func (c *Config) Cost(promptTokens, completionTokens int) float64 {
	return float64(promptTokens)/1000*c.CostPer1KInput + float64(completionTokens)/1000*c.CostPer1KOutput
}

// Normalize ensures the configuration is in a canonical form.
// It adds the /v1 suffix to hosts if missing, which is required
// by most OpenAI-compatible APIs (Ollama, LocalAI, vLLM, etc).
func (c *Config) Normalize() {
	c.EmbeddingHost = normalizeHost(c.EmbeddingHost)
	c.ChatHost = normalizeHost(c.ChatHost)
	if c.APIKey == "" {
		c.APIKey = "none"
	}
}

func normalizeHost(host string) string {
	if host == "" || strings.HasSuffix(host, "/v1") {
		return host
	}
	return strings.TrimSuffix(host, "/") + "/v1"
}

// Validate checks that the configuration is valid and complete.
// It normalizes the configuration before validation.
func (c *Config) Validate() error {
	c.Normalize()

	if c.EmbeddingHost == "" {
		return errors.New("ai config: EmbeddingHost is required")
	}
	if c.ChatHost == "" {
		return errors.New("ai config: ChatHost is required")
	}
	if c.EmbeddingModel == "" {
		return errors.New("ai config: EmbeddingModel is required")
	}
	if c.ChatModel == "" {
		return errors.New("ai config: ChatModel is required")
	}
	if c.MaxRetries < 1 {
		return errors.New("ai config: MaxRetries must be at least 1")
	}
	if c.CostPer1KInput < 0 || c.CostPer1KOutput < 0 {
		return errors.New("ai config: pricing must not be negative")
	}
	return nil
}
