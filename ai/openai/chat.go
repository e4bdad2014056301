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


package openai

import (
	"context"
	"log/slog"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/svjt78/ragmesh/ai"
)

// ChatClient implements ai.LLM using OpenAI-compatible chat APIs.
type ChatClient struct {
	client llms.Model
	config *ai.Config
	logger *slog.Logger
}

var _ ai.LLM = (*ChatClient)(nil)

// newChatClient is an internal constructor that returns the concrete type.
// Used by Provider to manage the instance.
func newChatClient(config *ai.Config) (*ChatClient, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := openai.New(
		openai.WithBaseURL(config.ChatHost),
		openai.WithToken(config.APIKey),
		openai.WithModel(config.ChatModel),
	)
	if err != nil {
		return nil, err
	}

	return &ChatClient{
		client: client,
		config: config,
		logger: slog.Default().With("component", "openai-chat"),
	}, nil
}

// NewChatClient creates a new LLM client using the provided configuration.
//
// Returns ai.LLM interface to enforce abstraction.
func NewChatClient(config *ai.Config) (ai.LLM, error) {
	return newChatClient(config)
}

// Generate sends one completion request, retrying transport failures with
// exponential backoff.
func (c *ChatClient) Generate(ctx context.Context, req ai.GenerateRequest) (*ai.GenerateResponse, error) {
	content := make([]llms.MessageContent, 0, 2)
	if req.SystemPrompt != "" {
		content = append(content, llms.MessageContent{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(req.SystemPrompt)},
		})
	}
	content = append(content, llms.MessageContent{
		Role:  llms.ChatMessageTypeHuman,
		Parts: []llms.ContentPart{llms.TextPart(req.Prompt)},
	})

	opts := []llms.CallOption{llms.WithTemperature(req.Temperature)}
	if req.JSONMode {
		opts = append(opts, llms.WithJSONMode())
	}
	if req.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(req.MaxTokens))
	}

	var response *llms.ContentResponse
	err := ai.RetryWithBackoff(ctx, func() error {
		var err error
		response, err = c.client.GenerateContent(ctx, content, opts...)
		return err
	}, c.config.MaxRetries, c.config.RetryBaseDelay)
	if err != nil {
		c.logger.Error("failed to generate content", "err", err)
		return nil, err
	}

	if response == nil || len(response.Choices) < 1 {
		c.logger.Error("no choices returned from model", "model", c.config.ChatModel)
		return nil, ai.ErrEmptyCompletion
	}

	choice := response.Choices[0]
	promptTokens := intInfo(choice.GenerationInfo, "PromptTokens")
	completionTokens := intInfo(choice.GenerationInfo, "CompletionTokens")
	total := intInfo(choice.GenerationInfo, "TotalTokens")
	if total == 0 {
		total = promptTokens + completionTokens
	}
	cost := c.config.Cost(promptTokens, completionTokens)

	c.logger.Debug("generated completion", "tokens", total, "cost", cost)

	return &ai.GenerateResponse{
		Content:    choice.Content,
		TokensUsed: total,
		Cost:       cost,
	}, nil
}

// intInfo reads a numeric usage field from langchaingo generation info.
func intInfo(info map[string]any, key string) int {
	switch v := info[key].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}
