package openai

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/svjt78/ragmesh/ai"
	"github.com/svjt78/ragmesh/ai/mock"
)

func TestEntityExtractor_ExtractEntities(t *testing.T) {
	llm := mock.NewMockLLM().WithResponse("```json\n" + `{
  "entities": [
    {"id": "e1", "label": "Water Damage", "type": "Peril", "properties": {"sudden": true}},
    {"id": "e2", "label": "Coverage A", "type": "Coverage"},
    {"id": "e3", "label": "", "type": "Coverage"}
  ],
  "relationships": [
    {"source": "e2", "target": "e1", "type": "COVERS"},
    {"source": "", "target": "e1", "type": "COVERS"}
  ]
}` + "\n```")

	extractor := NewEntityExtractor(llm)
	got, err := extractor.ExtractEntities(context.Background(), "Coverage A covers sudden water damage.", []string{"Peril", "Coverage"})
	require.NoError(t, err)

	require.Len(t, got.Entities, 2)
	assert.Equal(t, "Water Damage", got.Entities[0].Label)
	assert.Equal(t, "true", got.Entities[0].Properties["sudden"])
	require.Len(t, got.Relationships, 1)
	assert.Equal(t, "COVERS", got.Relationships[0].Type)

	reqs := llm.Requests()
	require.Len(t, reqs, 1)
	assert.True(t, reqs[0].JSONMode)
	assert.Contains(t, reqs[0].Prompt, "Peril, Coverage")
}

func TestEntityExtractor_RetriesMalformedJSON(t *testing.T) {
	calls := 0
	llm := mock.NewMockLLM().WithGenerateFunc(func(context.Context, ai.GenerateRequest) (*ai.GenerateResponse, error) {
		calls++
		if calls < 3 {
			return &ai.GenerateResponse{Content: "entities: none"}, nil
		}
		return &ai.GenerateResponse{Content: `{"entities": [], "relationships": []}`}, nil
	})

	got, err := NewEntityExtractor(llm).ExtractEntities(context.Background(), "text", ai.EntityTypes)
	require.NoError(t, err)
	assert.Empty(t, got.Entities)
	assert.Equal(t, 3, calls)
}

func TestEntityExtractor_GiveUpAfterAttempts(t *testing.T) {
	llm := mock.NewMockLLM().WithResponse("still not json")
	_, err := NewEntityExtractor(llm).ExtractEntities(context.Background(), "text", ai.EntityTypes)
	assert.Error(t, err)
	assert.Equal(t, parseAttempts, llm.CallCount())
}

func TestEntityExtractor_LLMError(t *testing.T) {
	boom := errors.New("connection refused")
	llm := mock.NewMockLLM().WithGenerateFunc(func(context.Context, ai.GenerateRequest) (*ai.GenerateResponse, error) {
		return nil, boom
	})
	_, err := NewEntityExtractor(llm).ExtractEntities(context.Background(), "text", ai.EntityTypes)
	assert.ErrorIs(t, err, boom)
}

func TestIntInfo(t *testing.T) {
	info := map[string]any{"a": 3, "b": int64(4), "c": float64(5), "d": "x"}
	assert.Equal(t, 3, intInfo(info, "a"))
	assert.Equal(t, 4, intInfo(info, "b"))
	assert.Equal(t, 5, intInfo(info, "c"))
	assert.Equal(t, 0, intInfo(info, "d"))
	assert.Equal(t, 0, intInfo(nil, "a"))
}
