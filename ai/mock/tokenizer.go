package mock

import (
	"strings"

	"github.com/svjt78/ragmesh/ai"
)

// MockTokenizer counts whitespace-separated words, or delegates to CountFunc.
type MockTokenizer struct {
	CountFunc func(text string) int
}

var _ ai.Tokenizer = (*MockTokenizer)(nil)

// NewMockTokenizer creates a word-counting tokenizer.
func NewMockTokenizer() *MockTokenizer {
	return &MockTokenizer{}
}

func (m *MockTokenizer) CountTokens(text string) int {
	if m.CountFunc != nil {
		return m.CountFunc(text)
	}
	return len(strings.Fields(text))
}
