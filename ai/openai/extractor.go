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
	"fmt"
	"log/slog"

	"github.com/svjt78/ragmesh/ai"
)

// parseAttempts bounds regenerations when the model returns malformed JSON.
const parseAttempts = 3

// EntityExtractor implements ai.EntityExtractor on top of an ai.LLM.
type EntityExtractor struct {
	llm    ai.LLM
	logger *slog.Logger
}

var _ ai.EntityExtractor = (*EntityExtractor)(nil)

// extraction is an internal type used for JSON unmarshaling.
// It matches the structure requested from the LLM.
type extraction struct {
	Entities []struct {
		ID         string         `json:"id"`
		Label      string         `json:"label"`
		Type       string         `json:"type"`
		Properties map[string]any `json:"properties"`
	} `json:"entities"`
	Relationships []struct {
		Source     string         `json:"source"`
		Target     string         `json:"target"`
		Type       string         `json:"type"`
		Properties map[string]any `json:"properties"`
	} `json:"relationships"`
}

// NewEntityExtractor creates an extractor that prompts llm.
//
// Returns ai.EntityExtractor interface to enforce abstraction.
func NewEntityExtractor(llm ai.LLM) ai.EntityExtractor {
	return newEntityExtractor(llm)
}

func newEntityExtractor(llm ai.LLM) *EntityExtractor {
	return &EntityExtractor{
		llm:    llm,
		logger: slog.Default().With("component", "openai-extractor"),
	}
}

// ExtractEntities asks the model for entities of the given types. Malformed
// JSON is regenerated up to three times before giving up.
func (e *EntityExtractor) ExtractEntities(ctx context.Context, text string, types []string) (*ai.Extraction, error) {
	req := ai.GenerateRequest{
		Prompt:       buildExtractionPrompt(text, types),
		SystemPrompt: extractionSystemPrompt,
		JSONMode:     true,
		Temperature:  0.0,
	}

	var result extraction
	var lastErr error
	for attempt := 0; attempt < parseAttempts; attempt++ {
		response, err := e.llm.Generate(ctx, req)
		if err != nil {
			e.logger.Error("failed to generate content", "attempt", attempt+1, "err", err)
			return nil, err
		}

		if err := ai.DecodeJSON(response.Content, &result); err != nil {
			lastErr = err
			e.logger.Warn("error parsing extraction response",
				"attempt", attempt+1,
				"response", response.Content,
				"err", err)
			continue
		}

		lastErr = nil
		break
	}

	if lastErr != nil {
		e.logger.Error("failed to parse extraction response after retries", "err", lastErr)
		return nil, lastErr
	}

	out := &ai.Extraction{}
	for _, ent := range result.Entities {
		if ent.Label == "" {
			continue
		}
		out.Entities = append(out.Entities, ai.ExtractedEntity{
			ID:         ent.ID,
			Label:      ent.Label,
			Type:       ent.Type,
			Properties: stringify(ent.Properties),
		})
	}
	for _, rel := range result.Relationships {
		if rel.Source == "" || rel.Target == "" {
			continue
		}
		out.Relationships = append(out.Relationships, ai.ExtractedRelationship{
			Source:     rel.Source,
			Target:     rel.Target,
			Type:       rel.Type,
			Properties: stringify(rel.Properties),
		})
	}

	e.logger.Debug("extracted entities",
		"entities", len(out.Entities),
		"relationships", len(out.Relationships))

	return out, nil
}

func stringify(props map[string]any) map[string]string {
	if len(props) == 0 {
		return nil
	}
	out := make(map[string]string, len(props))
	for k, v := range props {
		out[k] = fmt.Sprint(v)
	}
	return out
}
