package mock

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/svjt78/ragmesh/ai"
)

// Dimensions is the length of vectors produced by MockEmbedder.
const Dimensions = 128

// MockEmbedder is a test double for ai.Embedder.
type MockEmbedder struct {
	mu             sync.Mutex
	embedTextFunc  func(ctx context.Context, text string) ([]float32, error)
	embedTextsFunc func(ctx context.Context, texts []string) ([][]float32, error)
	callCount      atomic.Int64
}

var _ ai.Embedder = (*MockEmbedder)(nil)

// NewMockEmbedder creates a new mock embedder with default behavior.
func NewMockEmbedder() *MockEmbedder {
	return &MockEmbedder{}
}

// WithEmbedTextFunc sets custom behavior for EmbedText.
func (m *MockEmbedder) WithEmbedTextFunc(fn func(ctx context.Context, text string) ([]float32, error)) *MockEmbedder {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.embedTextFunc = fn
	return m
}

// WithEmbedTextsFunc sets custom behavior for EmbedTexts.
func (m *MockEmbedder) WithEmbedTextsFunc(fn func(ctx context.Context, texts []string) ([][]float32, error)) *MockEmbedder {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.embedTextsFunc = fn
	return m
}

// EmbedText returns the custom result if configured, otherwise a hashed
// bag-of-words vector.
func (m *MockEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	m.callCount.Add(1)
	m.mu.Lock()
	fn := m.embedTextFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, text)
	}
	return BagOfWordsVector(text), nil
}

// EmbedTexts returns the custom result if configured, otherwise one
// bag-of-words vector per text.
func (m *MockEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	m.callCount.Add(1)
	m.mu.Lock()
	fn := m.embedTextsFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, texts)
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = BagOfWordsVector(text)
	}
	return out, nil
}

// CallCount returns the number of times EmbedText or EmbedTexts was called.
func (m *MockEmbedder) CallCount() int {
	return int(m.callCount.Load())
}

// Reset clears the call count and custom behavior.
func (m *MockEmbedder) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount.Store(0)
	m.embedTextFunc = nil
	m.embedTextsFunc = nil
}

// BagOfWordsVector hashes each lowercased word of text into one of
// Dimensions buckets and returns the unit-length count vector. Texts with
// no words map to the zero vector.
func BagOfWordsVector(text string) []float32 {
	vector := make([]float32, Dimensions)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,!?;:\"'()[]{}")
		if w == "" {
			continue
		}
		h := fnv.New32a()
		h.Write([]byte(w))
		vector[h.Sum32()%Dimensions]++
	}

	var sumSquares float64
	for _, v := range vector {
		sumSquares += float64(v) * float64(v)
	}
	if sumSquares > 0 {
		norm := float32(1 / math.Sqrt(sumSquares))
		for i := range vector {
			vector[i] *= norm
		}
	}
	return vector
}
