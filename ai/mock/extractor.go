package mock

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"unicode"

	"github.com/svjt78/ragmesh/ai"
)

// MockEntityExtractor is a test double for ai.EntityExtractor.
type MockEntityExtractor struct {
	mu          sync.Mutex
	extractFunc func(ctx context.Context, text string, types []string) (*ai.Extraction, error)
	callCount   atomic.Int64
}

var _ ai.EntityExtractor = (*MockEntityExtractor)(nil)

// NewMockEntityExtractor creates a new mock extractor with default behavior.
func NewMockEntityExtractor() *MockEntityExtractor {
	return &MockEntityExtractor{}
}

// WithExtractFunc sets custom behavior for ExtractEntities.
func (m *MockEntityExtractor) WithExtractFunc(fn func(ctx context.Context, text string, types []string) (*ai.Extraction, error)) *MockEntityExtractor {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.extractFunc = fn
	return m
}

// ExtractEntities returns the custom result if configured. By default every
// distinct capitalized word longer than three letters becomes an entity of
// the first requested type, and neighbouring entities are linked.
func (m *MockEntityExtractor) ExtractEntities(ctx context.Context, text string, types []string) (*ai.Extraction, error) {
	m.callCount.Add(1)
	m.mu.Lock()
	fn := m.extractFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, text, types)
	}

	entityType := "Term"
	if len(types) > 0 {
		entityType = types[0]
	}

	result := &ai.Extraction{}
	seen := make(map[string]bool)
	for _, word := range strings.Fields(text) {
		word = strings.Trim(word, ".,!?;:\"'()[]{}")
		if len(word) <= 3 || !unicode.IsUpper([]rune(word)[0]) || seen[word] {
			continue
		}
		seen[word] = true
		result.Entities = append(result.Entities, ai.ExtractedEntity{
			ID:    strings.ToLower(word),
			Label: word,
			Type:  entityType,
		})
	}
	for i := 1; i < len(result.Entities); i++ {
		result.Relationships = append(result.Relationships, ai.ExtractedRelationship{
			Source: result.Entities[i-1].ID,
			Target: result.Entities[i].ID,
			Type:   "RELATES_TO",
		})
	}
	return result, nil
}

// CallCount returns the number of times ExtractEntities was called.
func (m *MockEntityExtractor) CallCount() int {
	return int(m.callCount.Load())
}

// Reset clears the call count and custom behavior.
func (m *MockEntityExtractor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount.Store(0)
	m.extractFunc = nil
}
